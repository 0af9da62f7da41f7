// cmd_bundle.go - Subkommando bundle: Modell + Tokenizer + Metadaten -> .task
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/edgellm/llmpack/bundle"
)

func bundleCmd() *cobra.Command {
	var cfg bundle.Config

	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Assemble a .task bundle from converted artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return bundle.Create(cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.TFLiteModel, "model", "", "Deployable model file from the combine stage")
	f.StringVar(&cfg.TokenizerModel, "tokenizer", "", "SentencePiece tokenizer model")
	f.StringVar(&cfg.OutputFile, "output", "", "Bundle output path (.task appended if missing)")
	f.StringVar(&cfg.StartToken, "start-token", "", "Sequence start token")
	f.StringArrayVar(&cfg.StopTokens, "stop-token", nil, "Stop token (repeatable, at least one required)")
	f.BoolVar(&cfg.BytesToUnicode, "bytes-to-unicode", false, "Enable byte-to-unicode normalization")
	f.StringVar(&cfg.PromptPrefix, "prompt-prefix", "", "Optional prompt template prefix")
	f.StringVar(&cfg.PromptSuffix, "prompt-suffix", "", "Optional prompt template suffix")

	return cmd
}
