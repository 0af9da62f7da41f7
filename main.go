package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/edgellm/llmpack/cmd"
)

func main() {
	cobra.CheckErr(cmd.NewCLI().ExecuteContext(context.Background()))
}
