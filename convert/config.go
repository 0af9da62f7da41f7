// config.go - Konversions-Konfiguration und eifrige Validierung
//
// Enthaelt:
// - Config: gesamte Options-Oberflaeche einer Konvertierung
// - Validate: alle Konfigurationsfehler werden vor jeglichem I/O erkannt
package convert

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Backend - Ziel-Backend des nativen Combiners
type Backend string

const (
	BackendCPU Backend = "cpu"
	BackendGPU Backend = "gpu"
)

// CheckpointFormat - Quellformat des Checkpoints
type CheckpointFormat string

const (
	FormatSafetensors CheckpointFormat = "safetensors"
	FormatTorch       CheckpointFormat = "torch"
)

// ModelFamily - Geschlossene Menge unterstuetzter Modell-Familien
type ModelFamily string

const (
	// FamilyFalconRW1B hat fusionierte Q/K/V-Gewichte, die beim Mapping
	// in drei Tensoren zerlegt werden.
	FamilyFalconRW1B ModelFamily = "falcon-rw-1b"
	// FamilyStableLM3B ist die generische Decoder-Familie.
	FamilyStableLM3B ModelFamily = "stablelm-3b"
	// FamilyPhi2 ist die Small-Model-Familie (kombiniertes Wqkv bleibt fusioniert).
	FamilyPhi2 ModelFamily = "phi-2"
	// FamilyGemma2B / FamilyGemma7B sind die beiden Varianten der Gated-Familie.
	FamilyGemma2B ModelFamily = "gemma-2b"
	FamilyGemma7B ModelFamily = "gemma-7b"
)

var knownFamilies = []ModelFamily{
	FamilyFalconRW1B,
	FamilyStableLM3B,
	FamilyPhi2,
	FamilyGemma2B,
	FamilyGemma7B,
}

// Config - Options-Oberflaeche einer Konvertierung
type Config struct {
	// Input ist das Checkpoint-Verzeichnis, ein Glob oder eine einzelne Datei.
	Input string
	// Format waehlt den Checkpoint-Loader.
	Format CheckpointFormat
	// Family waehlt den Layer Action Mapper.
	Family ModelFamily
	// Backend ist das Ziel-Backend des nativen Combiners.
	Backend Backend
	// OutputDir nimmt die Gewichts-Binaerdateien und das Manifest auf.
	OutputDir string
	// VocabFile ist das SentencePiece-Modell (oder Ergebnis der BPE-Konvertierung).
	VocabFile string

	// SymmetricQuant quantisiert ohne Zero-Point.
	SymmetricQuant bool
	// AlreadyQuantized kopiert alle Tensoren unveraendert durch.
	AlreadyQuantized bool
	// AttentionBits, FeedforwardBits, EmbeddingBits sind die Ziel-Bitbreiten
	// pro Layer-Klasse (0 bedeutet 8).
	AttentionBits   int
	FeedforwardBits int
	EmbeddingBits   int
	// MSEQuant aktiviert die Bound-Optimierung des Kernels.
	MSEQuant bool
	// FakeWeights schreibt nullgefuellte Daten gleicher Shape (Test-Bundles).
	FakeWeights bool

	// LoRARank und LoRACheckpoint muessen gepaart auftreten; LoRA ist nur
	// auf dem GPU-Backend verfuegbar.
	LoRARank       int
	LoRACheckpoint string

	// Optionale Multimodal-Pfade, unveraendert an den Combiner durchgereicht.
	ImageEncoderFile string
	ImageAdapterFile string
}

// Validate - Prueft die gesamte Konfiguration vor jeglichem I/O
func (c *Config) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("input checkpoint path is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}

	switch c.Format {
	case FormatSafetensors, FormatTorch:
	default:
		return fmt.Errorf("unknown checkpoint format %q", c.Format)
	}

	switch c.Backend {
	case BackendCPU, BackendGPU:
	default:
		return fmt.Errorf("unknown backend %q: must be cpu or gpu", c.Backend)
	}

	if !familyKnown(c.Family) {
		msg := fmt.Sprintf("unknown model family %q", c.Family)
		if s := closestFamily(c.Family); s != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", s)
		}
		return fmt.Errorf("%s", msg)
	}

	for _, b := range []struct {
		name string
		bits int
	}{
		{"attention", c.AttentionBits},
		{"feedforward", c.FeedforwardBits},
		{"embedding", c.EmbeddingBits},
	} {
		if b.bits != 0 && b.bits != 4 && b.bits != 8 {
			return fmt.Errorf("%s bit width %d: must be 4 or 8", b.name, b.bits)
		}
	}

	if (c.LoRARank > 0) != (c.LoRACheckpoint != "") {
		return fmt.Errorf("lora rank and lora checkpoint must be set together")
	}
	if c.LoRARank > 0 && c.Backend != BackendGPU {
		return fmt.Errorf("lora is only supported on the gpu backend")
	}

	return nil
}

// bitsFor - Ziel-Bitbreite fuer eine Layer-Klasse (Default 8)
func (c *Config) bitsFor(lt LayerType) int {
	var bits int
	switch lt {
	case LayerTypeAttention:
		bits = c.AttentionBits
	case LayerTypeFeedforward:
		bits = c.FeedforwardBits
	case LayerTypeEmbedding:
		bits = c.EmbeddingBits
	}
	if bits == 0 {
		bits = 8
	}
	return bits
}

func familyKnown(f ModelFamily) bool {
	for _, k := range knownFamilies {
		if k == f {
			return true
		}
	}
	return false
}

// closestFamily - Naechstliegender bekannter Familien-Tag fuer Fehlermeldungen
func closestFamily(f ModelFamily) ModelFamily {
	in := strings.ToLower(string(f))
	best := ModelFamily("")
	bestDist := len(in) + 1

	for _, k := range knownFamilies {
		d := levenshtein.ComputeDistance(in, string(k))
		if d < bestDist {
			best, bestDist = k, d
		}
	}

	// nur vorschlagen, wenn der Tipp plausibel nah ist
	if bestDist > len(in)/2+2 {
		return ""
	}
	return best
}
