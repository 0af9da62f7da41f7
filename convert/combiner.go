// combiner.go - Nativer Combiner als externer Kollaborateur
//
// Der Combiner kompiliert das Gewichtsdateiverzeichnis plus Vokabular zu
// einem deploybaren Modell. Er ist eine opake Faehigkeit: hier nur der
// Aufruf-Kontrakt und eine exec-gestuetzte Implementierung.
package convert

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

// CombineParams - Aufruf-Kontrakt des nativen Combiners
type CombineParams struct {
	Backend    Backend
	WeightDir  string
	VocabFile  string
	OutputFile string

	// LoRA-Felder werden nur auf dem GPU-Backend uebergeben.
	LoRARank      int
	LoRAWeightDir string

	// Optionale Multimodal-Artefakte.
	ImageEncoderFile string
	ImageAdapterFile string
}

// Combiner - Externe Routine "Gewichtsdateien + Vokabular -> Modell".
// Ein Fehlerstatus der Routine ist fatal und traegt deren Meldung.
type Combiner interface {
	Combine(ctx context.Context, p CombineParams) error
}

// ExecCombiner - Ruft den Combiner als externes Programm auf
type ExecCombiner struct {
	// Binary ist der Pfad zum Combiner-Programm.
	Binary string
}

func (c *ExecCombiner) Combine(ctx context.Context, p CombineParams) error {
	if c.Binary == "" {
		return fmt.Errorf("combiner binary not configured")
	}

	// eindeutiges Staging-Verzeichnis, damit parallele Laeufe sich nicht
	// gegenseitig ueberschreiben
	staging := filepath.Join(os.TempDir(), "llmpack-combine-"+uuid.NewString())
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	args := []string{
		"--backend", string(p.Backend),
		"--weight_dir", p.WeightDir,
		"--vocab_file", p.VocabFile,
		"--output_file", p.OutputFile,
		"--staging_dir", staging,
	}
	if p.Backend == BackendGPU && p.LoRARank > 0 {
		args = append(args,
			"--lora_rank", strconv.Itoa(p.LoRARank),
			"--lora_weight_dir", p.LoRAWeightDir,
		)
	}
	if p.ImageEncoderFile != "" {
		args = append(args, "--image_encoder_file", p.ImageEncoderFile)
	}
	if p.ImageAdapterFile != "" {
		args = append(args, "--image_adapter_file", p.ImageAdapterFile)
	}

	cmd := exec.CommandContext(ctx, c.Binary, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("native combiner failed: %w: %s", err, out)
	}
	return nil
}
