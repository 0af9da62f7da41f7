// reader_safetensors_test.go - Unit Tests fuer den Safetensors-Loader
package convert

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/d4l3k/go-bfloat16"
	"github.com/google/go-cmp/cmp"
	"github.com/x448/float16"

	"github.com/edgellm/llmpack/quant"
)

// passthroughMapper reicht jeden Tensor unveraendert durch
type passthroughMapper struct{}

func (passthroughMapper) Map(name string, v *quant.Tensor) ([]Action, error) {
	return []Action{{SourceName: name, Target: name, Value: v, Slices: 1}}, nil
}

type stEntry struct {
	dtype string
	shape []int
	raw   []byte
}

// writeSafetensors baut eine Shard-Datei mit fortlaufenden Offsets
func writeSafetensors(t *testing.T, path string, entries map[string]stEntry) {
	t.Helper()

	header := make(map[string]any, len(entries))
	var data []byte
	for name, e := range entries {
		header[name] = map[string]any{
			"dtype":        e.dtype,
			"shape":        e.shape,
			"data_offsets": []int{len(data), len(data) + len(e.raw)},
		}
		data = append(data, e.raw...)
	}

	hj, err := json.Marshal(header)
	if err != nil {
		t.Fatal(err)
	}

	var buf []byte
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(hj)))
	buf = append(buf, hj...)
	buf = append(buf, data...)

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}
}

func f32Bytes(values ...float32) []byte {
	var b []byte
	for _, v := range values {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
	}
	return b
}

func collectTensors(t *testing.T, l Loader) map[string]*quant.Tensor {
	t.Helper()
	out := make(map[string]*quant.Tensor)
	for group, err := range l.Load() {
		if err != nil {
			t.Fatal(err)
		}
		for _, a := range group {
			out[a.SourceName] = a.Value
		}
	}
	return out
}

func TestSafetensorsLoadTransposesMatrices(t *testing.T) {
	dir := t.TempDir()
	writeSafetensors(t, filepath.Join(dir, "model.safetensors"), map[string]stEntry{
		"w": {"F32", []int{2, 3}, f32Bytes(1, 2, 3, 4, 5, 6)},
		"b": {"F32", []int{3}, f32Bytes(7, 8, 9)},
	})

	l, err := newSafetensorsLoader(dir, passthroughMapper{})
	if err != nil {
		t.Fatal(err)
	}
	got := collectTensors(t, l)

	// 2-D Gewichte kommen transponiert an
	if diff := cmp.Diff([]int{3, 2}, got["w"].Shape); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float32{1, 4, 2, 5, 3, 6}, got["w"].Data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}

	// 1-D bleibt wie gespeichert
	if diff := cmp.Diff([]float32{7, 8, 9}, got["b"].Data); diff != "" {
		t.Errorf("bias mismatch (-want +got):\n%s", diff)
	}
}

func TestSafetensorsUpcast(t *testing.T) {
	values := []float32{0.5, -1.25, 2, 100}

	var f16raw []byte
	for _, v := range values {
		f16raw = binary.LittleEndian.AppendUint16(f16raw, float16.Fromfloat32(v).Bits())
	}

	dir := t.TempDir()
	writeSafetensors(t, filepath.Join(dir, "model.safetensors"), map[string]stEntry{
		"half":  {"F16", []int{4}, f16raw},
		"brain": {"BF16", []int{4}, bfloat16.EncodeFloat32(values)},
	})

	l, err := newSafetensorsLoader(dir, passthroughMapper{})
	if err != nil {
		t.Fatal(err)
	}
	got := collectTensors(t, l)

	// alle Testwerte sind in beiden Halbformaten exakt darstellbar
	if diff := cmp.Diff(values, got["half"].Data); diff != "" {
		t.Errorf("f16 upcast mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(values, got["brain"].Data); diff != "" {
		t.Errorf("bf16 upcast mismatch (-want +got):\n%s", diff)
	}
}

func TestSafetensorsDuplicateAcrossShards(t *testing.T) {
	dir := t.TempDir()
	writeSafetensors(t, filepath.Join(dir, "model-00001.safetensors"), map[string]stEntry{
		"w": {"F32", []int{1}, f32Bytes(1)},
	})
	writeSafetensors(t, filepath.Join(dir, "model-00002.safetensors"), map[string]stEntry{
		"w": {"F32", []int{1}, f32Bytes(2)},
	})

	_, err := newSafetensorsLoader(dir, passthroughMapper{})
	if err == nil || !strings.Contains(err.Error(), "appears in both") {
		t.Errorf("expected duplicate tensor error, got %v", err)
	}
}

func TestSafetensorsUnsupportedDtype(t *testing.T) {
	dir := t.TempDir()
	writeSafetensors(t, filepath.Join(dir, "model.safetensors"), map[string]stEntry{
		"w": {"I64", []int{1}, make([]byte, 8)},
	})

	l, err := newSafetensorsLoader(dir, passthroughMapper{})
	if err != nil {
		t.Fatal(err)
	}

	for _, err := range l.Load() {
		if err != nil {
			if !strings.Contains(err.Error(), "unsupported safetensors dtype") {
				t.Errorf("unexpected error: %v", err)
			}
			return
		}
	}
	t.Error("expected dtype error, got none")
}

func TestSafetensorsNoShards(t *testing.T) {
	if _, err := newSafetensorsLoader(t.TempDir(), passthroughMapper{}); err == nil {
		t.Error("expected error for empty checkpoint directory")
	}
}
