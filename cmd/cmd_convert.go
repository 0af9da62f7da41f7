// cmd_convert.go - Subkommando convert: Checkpoint -> Gewichtsdateien (-> Modell)
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edgellm/llmpack/convert"
	"github.com/edgellm/llmpack/tokenizer"
)

func convertCmd() *cobra.Command {
	var cfg convert.Config
	var format, family, backend string
	var combinerBin, vocabConverterBin string

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Quantize a checkpoint into per-tensor weight files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Format = convert.CheckpointFormat(format)
			cfg.Family = convert.ModelFamily(family)
			cfg.Backend = convert.Backend(backend)

			if err := cfg.Validate(); err != nil {
				return err
			}

			// Hugging-Face-Vokabulare werden vor dem Lauf nach
			// SentencePiece konvertiert
			if cfg.VocabFile != "" && tokenizer.IsHuggingFaceDir(cfg.VocabFile) {
				vc := &tokenizer.ExecVocabConverter{Binary: vocabConverterBin}
				converted, err := vc.ConvertBPEVocab(cmd.Context(), cfg.VocabFile)
				if err != nil {
					return err
				}
				cfg.VocabFile = converted
			} else if cfg.VocabFile != "" {
				if err := tokenizer.ValidateSentencePiece(cfg.VocabFile); err != nil {
					return err
				}
			}

			var comb convert.Combiner
			if combinerBin != "" {
				if cfg.VocabFile == "" {
					return fmt.Errorf("--vocab-file is required when combining")
				}
				comb = &convert.ExecCombiner{Binary: combinerBin}
			}

			return convert.Convert(cmd.Context(), cfg, comb)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Input, "input", "", "Checkpoint directory, glob or file")
	f.StringVar(&format, "format", "safetensors", "Checkpoint format (safetensors|torch)")
	f.StringVar(&family, "family", "", "Model family tag")
	f.StringVar(&backend, "backend", "gpu", "Target backend (cpu|gpu)")
	f.StringVar(&cfg.OutputDir, "output-dir", "", "Directory for weight files and manifest")
	f.StringVar(&cfg.VocabFile, "vocab-file", "", "SentencePiece model or Hugging Face tokenizer directory")

	f.BoolVar(&cfg.SymmetricQuant, "symmetric", false, "Quantize without zero point")
	f.BoolVar(&cfg.AlreadyQuantized, "already-quantized", false, "Copy tensors through unchanged")
	f.IntVar(&cfg.AttentionBits, "attention-bits", 8, "Bit width for attention weights")
	f.IntVar(&cfg.FeedforwardBits, "feedforward-bits", 8, "Bit width for feedforward weights")
	f.IntVar(&cfg.EmbeddingBits, "embedding-bits", 8, "Bit width for embedding weights")
	f.BoolVar(&cfg.MSEQuant, "mse-quant", false, "Enable per-channel bound search")
	f.BoolVar(&cfg.FakeWeights, "fake-weights", false, "Write zero-filled placeholder weights")

	f.IntVar(&cfg.LoRARank, "lora-rank", 0, "LoRA rank (gpu backend only)")
	f.StringVar(&cfg.LoRACheckpoint, "lora-checkpoint", "", "LoRA adapter checkpoint")
	f.StringVar(&cfg.ImageEncoderFile, "image-encoder", "", "Optional image encoder artifact")
	f.StringVar(&cfg.ImageAdapterFile, "image-adapter", "", "Optional image adapter artifact")

	f.StringVar(&combinerBin, "combiner", "", "Native combiner binary (skip combine stage if empty)")
	f.StringVar(&vocabConverterBin, "vocab-converter", "", "Native BPE vocab converter binary")

	return cmd
}
