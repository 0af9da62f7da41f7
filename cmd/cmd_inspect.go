// cmd_inspect.go - Subkommando inspect: Manifest oder Bundle tabellarisch anzeigen
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/edgellm/llmpack/bundle"
	"github.com/edgellm/llmpack/convert"
)

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect PATH",
		Short: "Show the contents of a weight directory or a .task bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			switch {
			case strings.HasSuffix(path, ".task"):
				return inspectBundle(path)
			case strings.HasSuffix(path, ".safetensors") || hasSafetensorsShards(path):
				return inspectCheckpoint(path)
			default:
				return inspectWeightDir(path)
			}
		},
	}
}

func inspectBundle(path string) error {
	entries, meta, err := bundle.Inspect(path)
	if err != nil {
		return err
	}

	var data [][]string
	for _, e := range entries {
		data = append(data, []string{e.Name, strconv.FormatUint(e.Size, 10)})
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ENTRY", "SIZE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	fmt.Println()
	fmt.Println("start token:   ", meta.StartToken)
	fmt.Println("stop tokens:   ", strings.Join(meta.StopTokens, ", "))
	if meta.BytesToUnicode {
		fmt.Println("bytes->unicode: enabled")
	}
	if meta.PromptPrefix != "" || meta.PromptSuffix != "" {
		fmt.Printf("prompt template: %q ... %q\n", meta.PromptPrefix, meta.PromptSuffix)
	}
	return nil
}

func hasSafetensorsShards(path string) bool {
	matches, err := filepath.Glob(filepath.Join(path, "*.safetensors"))
	return err == nil && len(matches) > 0
}

func inspectCheckpoint(path string) error {
	infos, err := convert.ListSafetensors(path)
	if err != nil {
		return err
	}

	var data [][]string
	for _, info := range infos {
		dims := make([]string, len(info.Shape))
		for i, d := range info.Shape {
			dims[i] = strconv.Itoa(d)
		}
		data = append(data, []string{info.Name, info.Dtype, strings.Join(dims, " x ")})
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"NAME", "DTYPE", "SHAPE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	return nil
}

func inspectWeightDir(dir string) error {
	raw, err := os.ReadFile(filepath.Join(dir, "layer_info.txt"))
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	var data [][]string
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		if line == "" {
			continue
		}
		// mdl_vars.<name>.<dtype>.<d0>_<d1>...
		parts := strings.Split(line, ".")
		if len(parts) < 3 {
			return fmt.Errorf("malformed manifest line %q", line)
		}
		shape := strings.ReplaceAll(parts[len(parts)-1], "_", " x ")
		dtype := parts[len(parts)-2]
		name := strings.Join(parts[:len(parts)-2], ".")
		data = append(data, []string{name, dtype, shape})
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"NAME", "DTYPE", "SHAPE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	return nil
}
