// reader_safetensors.go - Loader fuer Safetensors-Checkpoints
//
// Format: 8 Byte Little-Endian Header-Laenge, dann ein JSON-Header, der
// Tensornamen auf dtype/shape/data_offsets abbildet, dann der Datenblock.
// Offsets sind relativ zum Beginn des Datenblocks.
package convert

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"math"
	"os"
	"sort"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/edgellm/llmpack/quant"
)

// safetensorsPattern - Standard-Glob fuer Verzeichnis-Eingaben
const safetensorsPattern = "*.safetensors"

type safetensorsEntry struct {
	Dtype       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

type safetensorsShard struct {
	path       string
	names      []string
	entries    map[string]safetensorsEntry
	dataOffset int64
}

type safetensorsLoader struct {
	mapper Mapper
	shards []safetensorsShard
}

func newSafetensorsLoader(input string, m Mapper) (*safetensorsLoader, error) {
	paths, err := resolveShards(input, safetensorsPattern)
	if err != nil {
		return nil, err
	}

	l := &safetensorsLoader{mapper: m}
	seen := make(map[string]string)

	for _, path := range paths {
		shard, err := readSafetensorsHeader(path)
		if err != nil {
			return nil, err
		}
		// doppelte Tensornamen ueber Shards hinweg sind ein kaputter Checkpoint
		for _, name := range shard.names {
			if prev, ok := seen[name]; ok {
				return nil, fmt.Errorf("tensor %s appears in both %s and %s", name, prev, path)
			}
			seen[name] = path
		}
		l.shards = append(l.shards, shard)
	}

	return l, nil
}

func readSafetensorsHeader(path string) (safetensorsShard, error) {
	f, err := os.Open(path)
	if err != nil {
		return safetensorsShard{}, err
	}
	defer f.Close()

	var headerLen uint64
	if err := binary.Read(f, binary.LittleEndian, &headerLen); err != nil {
		return safetensorsShard{}, fmt.Errorf("read header length of %s: %w", path, err)
	}
	if headerLen == 0 || headerLen > 100<<20 {
		return safetensorsShard{}, fmt.Errorf("%s: implausible header length %d", path, headerLen)
	}

	raw := make([]byte, headerLen)
	if _, err := io.ReadFull(f, raw); err != nil {
		return safetensorsShard{}, fmt.Errorf("read header of %s: %w", path, err)
	}

	var header map[string]json.RawMessage
	if err := json.Unmarshal(raw, &header); err != nil {
		return safetensorsShard{}, fmt.Errorf("parse header of %s: %w", path, err)
	}

	shard := safetensorsShard{
		path:       path,
		entries:    make(map[string]safetensorsEntry, len(header)),
		dataOffset: int64(8 + headerLen),
	}
	for name, msg := range header {
		if name == "__metadata__" {
			continue
		}
		var e safetensorsEntry
		if err := json.Unmarshal(msg, &e); err != nil {
			return safetensorsShard{}, fmt.Errorf("parse entry %s of %s: %w", name, path, err)
		}
		shard.entries[name] = e
		shard.names = append(shard.names, name)
	}
	sort.Strings(shard.names)

	return shard, nil
}

func (l *safetensorsLoader) Load() iter.Seq2[[]Action, error] {
	return func(yield func([]Action, error) bool) {
		for _, shard := range l.shards {
			f, err := os.Open(shard.path)
			if err != nil {
				yield(nil, err)
				return
			}

			for _, name := range shard.names {
				t, err := shard.read(f, name)
				if err != nil {
					f.Close()
					yield(nil, fmt.Errorf("read %s from %s: %w", name, shard.path, err))
					return
				}

				slog.Debug("loaded tensor", "name", name, "shape", t.Shape, "shard", shard.path)

				group, err := l.mapper.Map(name, t)
				if err != nil {
					f.Close()
					yield(nil, err)
					return
				}
				if !yield(group, nil) {
					f.Close()
					return
				}
			}
			f.Close()
		}
	}
}

// read liest einen Tensor, hebt ihn auf Float32 an und transponiert
// 2-D Gewichte in die Mapper-Orientierung
func (s *safetensorsShard) read(f *os.File, name string) (*quant.Tensor, error) {
	e := s.entries[name]
	size := e.DataOffsets[1] - e.DataOffsets[0]
	if size < 0 {
		return nil, fmt.Errorf("negative data span %v", e.DataOffsets)
	}

	raw := make([]byte, size)
	if _, err := f.ReadAt(raw, s.dataOffset+e.DataOffsets[0]); err != nil {
		return nil, err
	}

	n := 1
	for _, d := range e.Shape {
		n *= d
	}
	data, err := upcastToF32(e.Dtype, raw, n)
	if err != nil {
		return nil, err
	}

	t, err := quant.NewTensor(data, e.Shape...)
	if err != nil {
		return nil, err
	}
	if len(t.Shape) == 2 {
		return transpose2D(t)
	}
	return t, nil
}

// TensorInfo - Header-Eintrag eines Checkpoints (Inspektion ohne Datenzugriff)
type TensorInfo struct {
	Name  string
	Dtype string
	Shape []int
}

// ListSafetensors - Liest nur die Shard-Header und listet alle Tensoren
func ListSafetensors(input string) ([]TensorInfo, error) {
	paths, err := resolveShards(input, safetensorsPattern)
	if err != nil {
		return nil, err
	}

	var infos []TensorInfo
	for _, path := range paths {
		shard, err := readSafetensorsHeader(path)
		if err != nil {
			return nil, err
		}
		for _, name := range shard.names {
			e := shard.entries[name]
			infos = append(infos, TensorInfo{Name: name, Dtype: e.Dtype, Shape: e.Shape})
		}
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// upcastToF32 - Hebt die gespeicherten Rohbytes auf Float32 an
func upcastToF32(dtype string, raw []byte, n int) ([]float32, error) {
	switch dtype {
	case "F32":
		if len(raw) != 4*n {
			return nil, fmt.Errorf("f32 tensor: got %d bytes, want %d", len(raw), 4*n)
		}
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
		}
		return out, nil

	case "F16":
		if len(raw) != 2*n {
			return nil, fmt.Errorf("f16 tensor: got %d bytes, want %d", len(raw), 2*n)
		}
		out := make([]float32, n)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[2*i:])).Float32()
		}
		return out, nil

	case "BF16":
		if len(raw) != 2*n {
			return nil, fmt.Errorf("bf16 tensor: got %d bytes, want %d", len(raw), 2*n)
		}
		return bfloat16.DecodeFloat32(raw), nil

	default:
		return nil, fmt.Errorf("unsupported safetensors dtype %q", dtype)
	}
}
