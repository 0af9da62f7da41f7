// reader.go - Checkpoint-Loader: gemeinsames Interface und Pfadaufloesung
//
// Enthaelt:
// - Loader Interface (Tensor-Gruppen als Iterator, ein Fehler beendet den Strom)
// - Format-Factory
// - Shard-Aufloesung fuer Verzeichnis-, Glob- und Einzeldatei-Eingaben
package convert

import (
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Loader - Streamt Checkpoint-Tensoren als Aktions-Gruppen. Jede Gruppe
// stammt aus genau einem Quell-Tensor; der Aufrufer verarbeitet eine Gruppe
// vollstaendig, bevor die naechste geladen wird.
type Loader interface {
	Load() iter.Seq2[[]Action, error]
}

// NewLoader - Waehlt den Loader des Checkpoint-Formats
func NewLoader(cfg Config, m Mapper) (Loader, error) {
	switch cfg.Format {
	case FormatSafetensors:
		return newSafetensorsLoader(cfg.Input, m)
	case FormatTorch:
		return newTorchLoader(cfg.Input, m)
	default:
		return nil, fmt.Errorf("unknown checkpoint format %q", cfg.Format)
	}
}

// resolveShards - Loest Input auf konkrete Shard-Dateien auf.
// Ein Verzeichnis wird mit pattern expandiert, ein Glob direkt expandiert,
// alles andere als Einzeldatei gewertet.
func resolveShards(input, pattern string) ([]string, error) {
	if info, err := os.Stat(input); err == nil && info.IsDir() {
		input = filepath.Join(input, pattern)
	}

	var shards []string
	if strings.ContainsAny(input, "*?[") {
		matches, err := filepath.Glob(input)
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", input, err)
		}
		shards = matches
	} else {
		if _, err := os.Stat(input); err != nil {
			return nil, fmt.Errorf("open checkpoint: %w", err)
		}
		shards = []string{input}
	}

	if len(shards) == 0 {
		return nil, fmt.Errorf("no checkpoint shards match %s", input)
	}

	// deterministische Shard-Reihenfolge
	sort.Strings(shards)
	return shards, nil
}
