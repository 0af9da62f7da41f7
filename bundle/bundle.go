// bundle.go - Bundle Assembler: packt Modell, Tokenizer und Metadaten in
// einen versionierten Container
//
// Der Container ist ein gewoehnliches Zip-Archiv mit genau drei Eintraegen
// in fester Reihenfolge; Eintragsnamen und Reihenfolge sind der externe
// Kontrakt des Runtime-Loaders.
package bundle

import (
	"archive/zip"
	"fmt"
	"os"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/edgellm/llmpack/tokenizer"
)

// Feste Eintragsnamen des Containers, in kanonischer Reihenfolge
const (
	EntryModel     = "TF_LITE_PREFILL_DECODE"
	EntryTokenizer = "TOKENIZER_MODEL"
	EntryMetadata  = "METADATA"
)

// taskSuffix - Dateiendung des fertigen Bundles
const taskSuffix = ".task"

// Config - Eingaben des Bundle Assemblers
type Config struct {
	// TFLiteModel ist das vom Combiner erzeugte deploybare Modell.
	TFLiteModel string
	// TokenizerModel ist das SentencePiece-Modell.
	TokenizerModel string
	// OutputFile ist der Zielpfad; taskSuffix wird bei Bedarf angehaengt.
	OutputFile string

	StartToken     string
	StopTokens     []string
	BytesToUnicode bool
	PromptPrefix   string
	PromptSuffix   string
}

// Create - Baut das Bundle. Alle Validierungen laufen, bevor der Zielpfad
// angefasst wird; ein leeres stop_tokens scheitert vor jeglichem I/O.
func Create(cfg Config) error {
	if len(cfg.StopTokens) == 0 {
		return fmt.Errorf("stop_tokens must be non-empty")
	}
	if cfg.OutputFile == "" {
		return fmt.Errorf("output file is required")
	}
	if err := tokenizer.ValidateSentencePiece(cfg.TokenizerModel); err != nil {
		return err
	}

	model, err := os.ReadFile(cfg.TFLiteModel)
	if err != nil {
		return fmt.Errorf("read model %s: %w", cfg.TFLiteModel, err)
	}
	vocab, err := os.ReadFile(cfg.TokenizerModel)
	if err != nil {
		return fmt.Errorf("read tokenizer model %s: %w", cfg.TokenizerModel, err)
	}

	meta := Metadata{
		StartToken:     cfg.StartToken,
		StopTokens:     cfg.StopTokens,
		BytesToUnicode: cfg.BytesToUnicode,
		PromptPrefix:   cfg.PromptPrefix,
		PromptSuffix:   cfg.PromptSuffix,
	}

	// Einfuege-Reihenfolge ist die kanonische Lese-Reihenfolge
	entries := orderedmap.New[string, []byte]()
	entries.Set(EntryModel, model)
	entries.Set(EntryTokenizer, vocab)
	entries.Set(EntryMetadata, meta.encode())

	out := cfg.OutputFile
	if !strings.HasSuffix(out, taskSuffix) {
		out += taskSuffix
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create bundle %s: %w", out, err)
	}

	zw := zip.NewWriter(f)
	for pair := entries.Oldest(); pair != nil; pair = pair.Next() {
		// Store statt Deflate: Modell und Tokenizer sind bereits dicht,
		// und der Runtime-Loader liest die Eintraege gemappt
		w, err := zw.CreateHeader(&zip.FileHeader{Name: pair.Key, Method: zip.Store})
		if err != nil {
			f.Close()
			return fmt.Errorf("add bundle entry %s: %w", pair.Key, err)
		}
		if _, err := w.Write(pair.Value); err != nil {
			f.Close()
			return fmt.Errorf("write bundle entry %s: %w", pair.Key, err)
		}
	}

	if err := zw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalize bundle %s: %w", out, err)
	}
	return f.Close()
}
