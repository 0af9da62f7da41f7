// cmd.go - CLI-Wurzel des Konverters
//
// Enthaelt:
// - NewCLI: Wurzelkommando mit den Subkommandos convert, bundle, inspect
// - Logging-Aufbau (Text-Handler, --verbose schaltet auf Debug)
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/edgellm/llmpack/logutil"
)

// Version wird beim Release ueber -ldflags gesetzt
var Version = "0.0.0"

func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "llmpack",
		Short:         "LLM checkpoint quantization and bundling",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(logutil.NewLogger(os.Stderr, level))
		},
		Run: func(cmd *cobra.Command, args []string) {
			if v, _ := cmd.Flags().GetBool("version"); v {
				cmd.Println(Version)
				return
			}
			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	rootCmd.AddCommand(
		convertCmd(),
		bundleCmd(),
		inspectCmd(),
	)

	return rootCmd
}
