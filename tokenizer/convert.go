// convert.go - Exec-gestuetzte BPE-nach-SentencePiece-Konvertierung
package tokenizer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
)

// ExecVocabConverter - Ruft die native Vokabular-Konvertierung als externes
// Programm auf; das erzeugte Modell landet in einem eigenen Arbeitsverzeichnis
type ExecVocabConverter struct {
	// Binary ist der Pfad zum Konvertierungsprogramm.
	Binary string
}

func (c *ExecVocabConverter) ConvertBPEVocab(ctx context.Context, inputDir string) (string, error) {
	if c.Binary == "" {
		return "", fmt.Errorf("vocab converter binary not configured")
	}
	if !IsHuggingFaceDir(inputDir) {
		return "", fmt.Errorf("%s is not a tokenizer directory (tokenizer.json and tokenizer_config.json required)", inputDir)
	}

	workDir := filepath.Join(os.TempDir(), "llmpack-vocab-"+uuid.NewString())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("create vocab work directory: %w", err)
	}

	outPath := filepath.Join(workDir, "spm.model")
	cmd := exec.CommandContext(ctx, c.Binary, "--input_dir", inputDir, "--output_file", outPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("vocab conversion failed: %w: %s", err, out)
	}

	if err := ValidateSentencePiece(outPath); err != nil {
		return "", err
	}
	return outPath, nil
}
