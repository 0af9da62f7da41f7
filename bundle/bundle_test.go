// bundle_test.go - Unit Tests fuer Bundle-Aufbau und Metadaten-Kodierung
package bundle

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/encoding/protowire"
)

// fakeSentencePiece baut ein minimal gueltiges Modell: zwei Pieces in Feld 1
func fakeSentencePiece(t *testing.T, dir string) string {
	t.Helper()

	var piece []byte
	piece = protowire.AppendTag(piece, 1, protowire.BytesType)
	piece = protowire.AppendString(piece, "<s>")

	var b []byte
	for range 2 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, piece)
	}

	path := filepath.Join(dir, "tokenizer.model")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func validBundleConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()

	model := filepath.Join(dir, "model.tflite")
	if err := os.WriteFile(model, []byte("tflite-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	return Config{
		TFLiteModel:    model,
		TokenizerModel: fakeSentencePiece(t, dir),
		OutputFile:     filepath.Join(dir, "model"),
		StartToken:     "<s>",
		StopTokens:     []string{"</s>", "<eos>"},
	}
}

// TestCreateBundleStructure prueft den festen Drei-Eintrag-Kontrakt
func TestCreateBundleStructure(t *testing.T) {
	cfg := validBundleConfig(t)
	if err := Create(cfg); err != nil {
		t.Fatal(err)
	}

	// .task wird angehaengt
	out := cfg.OutputFile + ".task"
	r, err := zip.OpenReader(out)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	want := []string{EntryModel, EntryTokenizer, EntryMetadata}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("entry order mismatch (-want +got):\n%s", diff)
	}

	// Eintraege sind unkomprimiert abgelegt
	for _, f := range r.File {
		if f.Method != zip.Store {
			t.Errorf("entry %s uses method %d, want Store", f.Name, f.Method)
		}
	}
}

func TestCreateBundleMetadataRoundTrip(t *testing.T) {
	cfg := validBundleConfig(t)
	cfg.BytesToUnicode = true
	cfg.PromptPrefix = "<start_of_turn>user\n"
	cfg.PromptSuffix = "<end_of_turn>\n"

	if err := Create(cfg); err != nil {
		t.Fatal(err)
	}

	_, meta, err := Inspect(cfg.OutputFile + ".task")
	if err != nil {
		t.Fatal(err)
	}

	want := Metadata{
		StartToken:     cfg.StartToken,
		StopTokens:     cfg.StopTokens,
		BytesToUnicode: true,
		PromptPrefix:   cfg.PromptPrefix,
		PromptSuffix:   cfg.PromptSuffix,
	}
	if diff := cmp.Diff(want, meta); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateBundleKeepsTaskSuffix(t *testing.T) {
	cfg := validBundleConfig(t)
	cfg.OutputFile += ".task"

	if err := Create(cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(cfg.OutputFile); err != nil {
		t.Errorf("bundle not at expected path: %v", err)
	}
	if _, err := os.Stat(cfg.OutputFile + ".task"); !os.IsNotExist(err) {
		t.Error("suffix must not be appended twice")
	}
}

// TestCreateBundleEmptyStopTokens prueft, dass der Fehler vor jeglichem
// Dateizugriff auftritt
func TestCreateBundleEmptyStopTokens(t *testing.T) {
	cfg := validBundleConfig(t)
	cfg.StopTokens = nil

	err := Create(cfg)
	if err == nil || !strings.Contains(err.Error(), "stop_tokens must be non-empty") {
		t.Fatalf("got %v, want stop_tokens error", err)
	}
	if _, err := os.Stat(cfg.OutputFile + ".task"); !os.IsNotExist(err) {
		t.Error("no output file may exist after a failed validation")
	}
}

func TestCreateBundleBadTokenizer(t *testing.T) {
	cfg := validBundleConfig(t)
	if err := os.WriteFile(cfg.TokenizerModel, []byte("not a model"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := Create(cfg)
	if err == nil || !strings.Contains(err.Error(), cfg.TokenizerModel) {
		t.Fatalf("error must name the bad tokenizer path, got %v", err)
	}
}

func TestMetadataSkipsUnknownFields(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, "<s>")
	// unbekanntes Feld 99 wird toleriert
	b = protowire.AppendTag(b, 99, protowire.VarintType)
	b = protowire.AppendVarint(b, 7)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, "</s>")

	meta, err := decodeMetadata(b)
	if err != nil {
		t.Fatal(err)
	}
	if meta.StartToken != "<s>" || len(meta.StopTokens) != 1 {
		t.Errorf("unexpected metadata: %+v", meta)
	}
}
