// reader_torch.go - Loader fuer PyTorch-Checkpoints (pickle-basiert)
//
// Laedt das state_dict ueber gopickle und hebt alle unterstuetzten
// Storage-Typen auf Float32 an. Wie beim Safetensors-Loader werden 2-D
// Gewichte beim Lesen in die Mapper-Orientierung transponiert.
package convert

import (
	"fmt"
	"iter"
	"log/slog"
	"sort"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"

	"github.com/edgellm/llmpack/quant"
)

type torchLoader struct {
	mapper  Mapper
	path    string
	tensors map[string]*pytorch.Tensor
	names   []string
}

func newTorchLoader(input string, m Mapper) (*torchLoader, error) {
	paths, err := resolveShards(input, "*.bin")
	if err != nil {
		return nil, err
	}

	l := &torchLoader{mapper: m, tensors: make(map[string]*pytorch.Tensor)}
	for _, path := range paths {
		l.path = path
		if err := l.readStateDict(path); err != nil {
			return nil, err
		}
	}
	sort.Strings(l.names)

	return l, nil
}

func (l *torchLoader) readStateDict(path string) error {
	loaded, err := pytorch.Load(path)
	if err != nil {
		return fmt.Errorf("load torch checkpoint %s: %w", path, err)
	}

	add := func(key, value any) error {
		name, ok := key.(string)
		if !ok {
			return fmt.Errorf("%s: non-string state dict key %v", path, key)
		}
		t, ok := value.(*pytorch.Tensor)
		if !ok {
			// Checkpoints tragen gelegentlich Metadaten neben den Tensoren
			slog.Debug("skipping non-tensor entry", "name", name, "path", path)
			return nil
		}
		if _, dup := l.tensors[name]; dup {
			return fmt.Errorf("tensor %s appears twice in %s", name, path)
		}
		l.tensors[name] = t
		l.names = append(l.names, name)
		return nil
	}

	switch d := loaded.(type) {
	case *types.Dict:
		for _, e := range *d {
			if err := add(e.Key, e.Value); err != nil {
				return err
			}
		}
	case *types.OrderedDict:
		for key, e := range d.Map {
			if err := add(key, e.Value); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%s: unexpected top-level object %T", path, loaded)
	}

	return nil
}

func (l *torchLoader) Load() iter.Seq2[[]Action, error] {
	return func(yield func([]Action, error) bool) {
		for _, name := range l.names {
			t, err := torchToTensor(l.tensors[name])
			if err != nil {
				yield(nil, fmt.Errorf("read %s: %w", name, err))
				return
			}
			// der Tensor wird nach dem Mapping nicht mehr gebraucht
			delete(l.tensors, name)

			slog.Debug("loaded tensor", "name", name, "shape", t.Shape)

			group, err := l.mapper.Map(name, t)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(group, nil) {
				return
			}
		}
	}
}

// torchToTensor materialisiert einen pytorch.Tensor als Float32-Tensor
func torchToTensor(t *pytorch.Tensor) (*quant.Tensor, error) {
	n := 1
	for _, d := range t.Size {
		n *= d
	}

	var data []float32
	switch s := t.Source.(type) {
	case *pytorch.FloatStorage:
		data = s.Data
	case *pytorch.HalfStorage:
		data = s.Data
	case *pytorch.BFloat16Storage:
		data = s.Data
	case *pytorch.DoubleStorage:
		data = make([]float32, len(s.Data))
		for i, v := range s.Data {
			data[i] = float32(v)
		}
	default:
		return nil, fmt.Errorf("unsupported torch storage %T", t.Source)
	}

	off := int(t.StorageOffset)
	if off < 0 || off+n > len(data) {
		return nil, fmt.Errorf("storage window [%d:%d] out of range (%d elements)", off, off+n, len(data))
	}

	out := make([]float32, n)
	copy(out, data[off:off+n])

	qt, err := quant.NewTensor(out, t.Size...)
	if err != nil {
		return nil, err
	}
	if len(qt.Shape) == 2 {
		return transpose2D(qt)
	}
	return qt, nil
}
