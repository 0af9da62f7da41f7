// logutil.go - Gemeinsamer slog-Aufbau der Kommandos
package logutil

import (
	"io"
	"log/slog"
	"path/filepath"
)

// NewLogger - Text-Handler mit Quellangabe; Dateipfade werden auf den
// Basisnamen gekuerzt
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.SourceKey {
				source := attr.Value.Any().(*slog.Source)
				source.File = filepath.Base(source.File)
			}
			return attr
		},
	}))
}
