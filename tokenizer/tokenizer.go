// tokenizer.go - Tokenizer-Eingaben: SentencePiece-Validierung und
// Erkennung von Hugging-Face-Vokabularverzeichnissen
//
// Enthaelt:
// - ValidateSentencePiece: strukturelle Pruefung ohne vollstaendiges Parsen
// - IsHuggingFaceDir / VocabConverter: BPE-Vokabulare werden von einem
//   externen Kollaborateur nach SentencePiece konvertiert
package tokenizer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"google.golang.org/protobuf/encoding/protowire"
)

// huggingFaceFiles - Beide Dateien muessen vorliegen, damit ein Verzeichnis
// als Hugging-Face-Vokabular gilt
var huggingFaceFiles = []string{"tokenizer.json", "tokenizer_config.json"}

// IsHuggingFaceDir meldet, ob path ein Hugging-Face-Tokenizer-Verzeichnis ist
func IsHuggingFaceDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	for _, f := range huggingFaceFiles {
		if _, err := os.Stat(filepath.Join(path, f)); err != nil {
			return false
		}
	}
	return true
}

// VocabConverter - Externe Routine, die ein BPE-Vokabularverzeichnis in ein
// SentencePiece-Modell ueberfuehrt; liefert den Pfad des erzeugten Modells
type VocabConverter interface {
	ConvertBPEVocab(ctx context.Context, inputDir string) (string, error)
}

// ValidateSentencePiece prueft, dass path ein ladbares SentencePiece-Modell
// ist. Das Modell ist eine Protobuf-Nachricht, deren Feld 1 die wiederholten
// Pieces traegt; verlangt wird wohlgeformtes Wire-Format mit mindestens
// einem Piece. Fehler nennen immer den beanstandeten Pfad.
func ValidateSentencePiece(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read tokenizer model %s: %w", path, err)
	}

	pieces := 0
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return fmt.Errorf("%s is not a valid SentencePiece model: %w", path, protowire.ParseError(n))
		}
		raw = raw[n:]

		m := protowire.ConsumeFieldValue(num, typ, raw)
		if m < 0 {
			return fmt.Errorf("%s is not a valid SentencePiece model: %w", path, protowire.ParseError(m))
		}
		raw = raw[m:]

		if num == 1 && typ == protowire.BytesType {
			pieces++
		}
	}

	if pieces == 0 {
		return fmt.Errorf("%s is not a valid SentencePiece model: no pieces found", path)
	}
	return nil
}
