// writer.go - Persistenz quantisierter Tensoren als rohe Binaerdateien
//
// Enthaelt:
// - Variable: genau ein gesetzter Daten-Slice bestimmt den Dtype
// - Writer: eine Datei pro Tensor (Little-Endian, kein Header) plus das
//   nach jedem Schreibsatz neu geschriebene layer_info.txt Manifest
package weights

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/edgellm/llmpack/quant"
)

// manifestPrefix - Fester Namenspraefix der Manifestzeilen; im Dateipfad
// wird er abgestreift
const manifestPrefix = "mdl_vars."

// manifestName - Dateiname des Manifests im Ausgabeverzeichnis
const manifestName = "layer_info.txt"

// Variable - Ein zu schreibender Tensor. Genau einer der Daten-Slices ist
// gesetzt; Pack verlangt 4-Bit-Werte in I8 (signiert) oder U8 (unsigniert).
type Variable struct {
	F32 []float32
	I8  []int8
	U8  []uint8
	I32 []int32

	Shape []int
	Pack  bool
}

// dtype - Dtype-Tag der Manifestzeile
func (v Variable) dtype() (string, error) {
	set := 0
	name := ""
	for _, c := range []struct {
		ok bool
		n  string
	}{
		{v.F32 != nil, "float32"},
		{v.I8 != nil, "int8"},
		{v.U8 != nil, "uint8"},
		{v.I32 != nil, "int32"},
	} {
		if c.ok {
			set++
			name = c.n
		}
	}
	if set != 1 {
		return "", fmt.Errorf("variable must carry exactly one data slice, has %d", set)
	}
	return name, nil
}

// Writer - Schreibt Tensoren und haelt die akkumulierte Manifestmenge.
// Dateischreiben laeuft parallel; das Manifest ist Mutex-geschuetzt und
// wird nach jedem WriteVariables sortiert und dedupliziert neu geschrieben.
type Writer struct {
	dir string

	mu    sync.Mutex
	lines map[string]struct{}
}

func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &Writer{dir: dir, lines: make(map[string]struct{})}, nil
}

// WriteVariables - Schreibt einen Tensorsatz und aktualisiert das Manifest.
// Mit fake werden nullgefuellte Daten gleicher Shape und gleichen Dtyps
// geschrieben (Platzhalter-Bundles ohne echte Gewichte).
func (w *Writer) WriteVariables(vars map[string]Variable, fake bool) error {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, name := range names {
		g.Go(func() error {
			return w.writeOne(name, vars[name], fake)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return w.flushManifest()
}

func (w *Writer) writeOne(name string, v Variable, fake bool) error {
	dtype, err := v.dtype()
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	shape := v.Shape
	data := any(nil)
	switch {
	case v.F32 != nil:
		data = v.F32
	case v.I8 != nil:
		data = v.I8
	case v.U8 != nil:
		data = v.U8
	case v.I32 != nil:
		data = v.I32
	}

	if v.Pack {
		data, shape, dtype, err = packVariable(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if fake {
		data = zeroLike(data)
	}

	base := strings.TrimPrefix(name, manifestPrefix)
	path := filepath.Join(w.dir, base)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := binary.Write(bw, binary.LittleEndian, data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.Itoa(d)
	}
	line := manifestPrefix + base + "." + dtype + "." + strings.Join(dims, "_")

	w.mu.Lock()
	w.lines[line] = struct{}{}
	w.mu.Unlock()

	return nil
}

// packVariable flacht den Tensor ab und packt ihn entlang der neuen
// fuehrenden Achse; signierte Werte landen in int8-Containern, unsignierte
// in int32-Containern
func packVariable(v Variable) (any, []int, string, error) {
	n := 1
	for _, d := range v.Shape {
		n *= d
	}

	switch {
	case v.I8 != nil:
		p, err := quant.Pack4Bit(v.I8, []int{n, 1}, 0, quant.ContainerInt8)
		if err != nil {
			return nil, nil, "", err
		}
		return p.I8, p.Shape, "int8", nil
	case v.U8 != nil:
		p, err := quant.Pack4Bit(v.U8, []int{n, 1}, 0, quant.ContainerInt32)
		if err != nil {
			return nil, nil, "", err
		}
		return p.I32, p.Shape, "int32", nil
	default:
		return nil, nil, "", fmt.Errorf("pack flag requires int8 or uint8 data")
	}
}

func zeroLike(data any) any {
	switch d := data.(type) {
	case []float32:
		return make([]float32, len(d))
	case []int8:
		return make([]int8, len(d))
	case []uint8:
		return make([]uint8, len(d))
	case []int32:
		return make([]int32, len(d))
	}
	return data
}

// flushManifest schreibt die gesamte akkumulierte Menge sortiert neu;
// der letzte Stand gewinnt
func (w *Writer) flushManifest() error {
	w.mu.Lock()
	lines := make([]string, 0, len(w.lines))
	for line := range w.lines {
		lines = append(lines, line)
	}
	w.mu.Unlock()
	sort.Strings(lines)

	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	return os.WriteFile(filepath.Join(w.dir, manifestName), []byte(sb.String()), 0o644)
}
