// inspect.go - Lesender Zugriff auf fertige Bundles
package bundle

import (
	"archive/zip"
	"fmt"
	"io"
)

// Entry - Ein Container-Eintrag in Lese-Reihenfolge
type Entry struct {
	Name string
	Size uint64
}

// Inspect - Listet die Eintraege eines Bundles und dekodiert die Metadaten
func Inspect(path string) ([]Entry, Metadata, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("open bundle %s: %w", path, err)
	}
	defer r.Close()

	var entries []Entry
	var meta Metadata
	for _, f := range r.File {
		entries = append(entries, Entry{Name: f.Name, Size: f.UncompressedSize64})

		if f.Name == EntryMetadata {
			rc, err := f.Open()
			if err != nil {
				return nil, Metadata{}, fmt.Errorf("open bundle entry %s: %w", f.Name, err)
			}
			raw, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, Metadata{}, fmt.Errorf("read bundle entry %s: %w", f.Name, err)
			}
			if meta, err = decodeMetadata(raw); err != nil {
				return nil, Metadata{}, err
			}
		}
	}

	return entries, meta, nil
}
