// quantize.go - Quantisierungs-Kernel: Float32 -> Int8/Int4/Float8 Reduktion
//
// Enthaelt:
// - Quantize: Haupteinstieg mit symmetrisch/asymmetrisch, Percentile,
//   Bound-Optimierung (11-Punkt-Suche) und Block-Quantisierung
// - Dequantize: Rekonstruktion fuer Tests und Fehlersuche
// - groupLayout: Zuordnung Element -> Scale-Gruppe entlang der Kontraktionsachsen
package quant

import (
	"fmt"
	"math"
	"slices"

	"github.com/chewxy/math32"
)

// float8MaxValue - Maximalwert des einzigen unterstuetzten Float8-Formats (e4m3)
const float8MaxValue = 448

// boundSearchSteps - Anzahl der Kandidaten der diskreten Bound-Suche
// (linspace von 1.0 bis 0.5, Schrittweite 0.05)
const boundSearchSteps = 11

// Opts - Quantisierungs-Optionen fuer einen Kernel-Aufruf
type Opts struct {
	// Bits ist die Ziel-Bitbreite, 8 oder 4.
	Bits int
	// Symmetric quantisiert ohne Zero-Point um Null zentriert.
	Symmetric bool
	// FloatingPoint aktiviert die Float8-Variante (nur 8 Bit, e4m3).
	FloatingPoint bool
	// Percentile < 1.0 skaliert die Bound vor der Scale-Berechnung und
	// deaktiviert die Bound-Optimierung.
	Percentile float32
	// OptimizeBound aktiviert die diskrete MSE/P-Mean Bound-Suche.
	OptimizeBound bool
	// PMean ist der Fehler-Exponent der Bound-Suche (0 => 1, mittlerer Absolutfehler).
	PMean float64
	// PerChannel sucht den Bound-Multiplikator pro Scale-Gruppe statt global.
	PerChannel bool
	// BlockSize > 0 teilt die einzige Kontraktionsachse in Sub-Channels dieser Groesse.
	BlockSize int
	// EpsGuard addiert Maschinen-Epsilon auf Null-Scales statt sie durch 1.0 zu ersetzen.
	EpsGuard bool
}

// Result - Ausgabe des Kernels: Werte, Scale und optionaler Zero-Point
type Result struct {
	// Q haelt die quantisierten Werte fuer 8- und 4-Bit Integer-Modi.
	Q []int8
	// F8 haelt e4m3-kodierte Werte im Float8-Modus.
	F8 []uint8
	// Scale hat einen Eintrag pro Gruppe entlang der Kontraktionsachsen.
	Scale []float32
	// ZeroPoint ist nil im symmetrischen Modus, sonst gleich lang wie Scale.
	// Gespeichert in Scale-Einheiten: zp = scale*qmin - min.
	ZeroPoint []float32
	// Shape ist die unveraenderte Eingangs-Shape.
	Shape []int
	// ScaleShape ist die Shape der Scale-Gruppen (verbleibende Achsen,
	// bei Block-Quantisierung inklusive Sub-Channel-Achse).
	ScaleShape []int
}

// groupLayout - Zuordnung von Element-Indizes zu Scale-Gruppen
type groupLayout struct {
	shape      []int
	gstride    []int // 0 auf Kontraktionsachsen
	groups     int
	groupShape []int
}

func newGroupLayout(shape, axes []int) groupLayout {
	l := groupLayout{shape: shape, gstride: make([]int, len(shape))}

	l.groups = 1
	for ax := len(shape) - 1; ax >= 0; ax-- {
		if slices.Contains(axes, ax) {
			continue
		}
		l.gstride[ax] = l.groups
		l.groups *= shape[ax]
	}

	for ax, d := range shape {
		if !slices.Contains(axes, ax) {
			l.groupShape = append(l.groupShape, d)
		}
	}
	if len(l.groupShape) == 0 {
		l.groupShape = []int{1}
	}
	return l
}

// forEach ruft fn fuer jedes Element mit flachem Index und Gruppen-Index auf
func (l groupLayout) forEach(fn func(i, g int)) {
	n := 1
	for _, d := range l.shape {
		n *= d
	}

	coords := make([]int, len(l.shape))
	g := 0
	for i := range n {
		fn(i, g)

		for ax := len(l.shape) - 1; ax >= 0; ax-- {
			coords[ax]++
			if coords[ax] < l.shape[ax] {
				g += l.gstride[ax]
				break
			}
			coords[ax] = 0
			g -= (l.shape[ax] - 1) * l.gstride[ax]
		}
	}
}

// expandBlock ersetzt bei Block-Quantisierung die Kontraktionsachse durch
// (Sub-Channels, BlockSize) und verschiebt die Kontraktion auf die Block-Achse
func expandBlock(shape, axes []int, blockSize int) ([]int, []int, error) {
	if blockSize <= 0 {
		return shape, axes, nil
	}

	if len(axes) != 1 {
		return nil, nil, fmt.Errorf("block quantization requires exactly one contracting axis, got %d", len(axes))
	}

	ax := axes[0]
	d := shape[ax]
	if d%blockSize != 0 {
		return nil, nil, fmt.Errorf("axis %d size %d is not divisible by block size %d", ax, d, blockSize)
	}

	expanded := make([]int, 0, len(shape)+1)
	expanded = append(expanded, shape[:ax]...)
	expanded = append(expanded, d/blockSize, blockSize)
	expanded = append(expanded, shape[ax+1:]...)
	return expanded, []int{ax + 1}, nil
}

func validateAxes(shape, axes []int) error {
	if len(axes) == 0 {
		return fmt.Errorf("at least one contracting axis is required")
	}
	seen := make(map[int]bool, len(axes))
	for _, ax := range axes {
		if ax < 0 || ax >= len(shape) {
			return fmt.Errorf("contracting axis %d out of range for shape %v", ax, shape)
		}
		if seen[ax] {
			return fmt.Errorf("duplicate contracting axis %d", ax)
		}
		seen[ax] = true
	}
	return nil
}

// Quantize - Reduziert einen Float32-Tensor auf Int8/Int4 (plus Scale und
// optionalem Zero-Point) oder Float8, entlang der angegebenen Kontraktionsachsen
func Quantize(t *Tensor, axes []int, o Opts) (*Result, error) {
	if o.Bits != 4 && o.Bits != 8 {
		return nil, fmt.Errorf("unsupported bit width %d: must be 4 or 8", o.Bits)
	}
	if o.FloatingPoint {
		if o.Bits != 8 {
			return nil, fmt.Errorf("floating point quantization only supports 8 bits, got %d", o.Bits)
		}
		if !o.Symmetric {
			return nil, fmt.Errorf("floating point quantization is symmetric only")
		}
	}
	if err := validateAxes(t.Shape, axes); err != nil {
		return nil, err
	}

	shape, caxes, err := expandBlock(t.Shape, axes, o.BlockSize)
	if err != nil {
		return nil, err
	}
	lay := newGroupLayout(shape, caxes)

	mins := make([]float32, lay.groups)
	maxs := make([]float32, lay.groups)
	for g := range lay.groups {
		mins[g] = math32.MaxFloat32
		maxs[g] = -math32.MaxFloat32
	}
	lay.forEach(func(i, g int) {
		v := t.Data[i]
		if v < mins[g] {
			mins[g] = v
		}
		if v > maxs[g] {
			maxs[g] = v
		}
	})

	bounds := make([]float32, lay.groups)
	for g := range bounds {
		if o.Symmetric {
			bounds[g] = math32.Max(math32.Abs(mins[g]), math32.Abs(maxs[g]))
		} else {
			bounds[g] = maxs[g] - mins[g]
		}
	}

	usePercentile := o.Percentile > 0 && o.Percentile < 1
	if usePercentile {
		for g := range bounds {
			bounds[g] *= o.Percentile
		}
	}

	if o.OptimizeBound && !usePercentile && !o.FloatingPoint {
		optimizeBounds(t, lay, mins, bounds, o)
	}

	res := &Result{
		Shape:      t.Shape,
		ScaleShape: lay.groupShape,
		Scale:      make([]float32, lay.groups),
	}

	qmin, qmax := intRange(o)
	for g := range lay.groups {
		res.Scale[g] = scaleFor(bounds[g], qmin, qmax, o)
	}
	guardScales(res.Scale, o.EpsGuard)

	if !o.Symmetric {
		res.ZeroPoint = make([]float32, lay.groups)
		for g := range lay.groups {
			res.ZeroPoint[g] = res.Scale[g]*qmin - mins[g]
		}
	}

	if o.FloatingPoint {
		res.F8 = make([]uint8, t.Elements())
		lay.forEach(func(i, g int) {
			x := t.Data[i] / res.Scale[g]
			res.F8[i] = EncodeE4M3(clamp(x, -float8MaxValue, float8MaxValue))
		})
		return res, nil
	}

	res.Q = make([]int8, t.Elements())
	lay.forEach(func(i, g int) {
		res.Q[i] = quantizeValue(t.Data[i], res.Scale[g], mins[g], qmin, qmax, o.Symmetric)
	})
	return res, nil
}

// intRange gibt den gueltigen Integer-Bereich fuer die Bitbreite zurueck.
// Symmetrisch wird auf +/-(2^(b-1)-1) geclippt, asymmetrisch auf den vollen Bereich.
func intRange(o Opts) (float32, float32) {
	if o.FloatingPoint {
		return -float8MaxValue, float8MaxValue
	}
	qmax := float32(int32(1)<<(o.Bits-1) - 1)
	if o.Symmetric {
		return -qmax, qmax
	}
	return -(qmax + 1), qmax
}

func scaleFor(bound, qmin, qmax float32, o Opts) float32 {
	if o.Symmetric {
		return bound / qmax
	}
	return bound / (qmax - qmin)
}

func quantizeValue(v, scale, min, qmin, qmax float32, symmetric bool) int8 {
	var q float64
	if symmetric {
		q = math.RoundToEven(float64(v / scale))
	} else {
		q = math.RoundToEven(float64((v-min)/scale + qmin))
	}
	return int8(clamp(float32(q), qmin, qmax))
}

// guardScales ersetzt Null-Scales, um Division durch Null beim Dequantisieren
// zu vermeiden (konstante bzw. Null-Tensoren)
func guardScales(scale []float32, eps bool) {
	for i, s := range scale {
		if s != 0 {
			continue
		}
		if eps {
			scale[i] = s + machineEpsilon
		} else {
			scale[i] = 1
		}
	}
}

const machineEpsilon = float32(1.1920929e-07)

// optimizeBounds fuehrt die diskrete 11-Punkt-Suche ueber Bound-Multiplikatoren
// linspace(1.0, 0.5, 11) aus und minimiert mean(|dequant - x|^p)
func optimizeBounds(t *Tensor, lay groupLayout, mins, bounds []float32, o Opts) {
	p := o.PMean
	if p == 0 {
		p = 1
	}
	qmin, qmax := intRange(o)

	errSums := make([][]float64, boundSearchSteps)
	for k := range boundSearchSteps {
		c := float32(1) - 0.05*float32(k)
		errs := make([]float64, lay.groups)

		scale := make([]float32, lay.groups)
		for g := range lay.groups {
			scale[g] = scaleFor(bounds[g]*c, qmin, qmax, o)
		}
		guardScales(scale, o.EpsGuard)

		lay.forEach(func(i, g int) {
			v := t.Data[i]
			q := quantizeValue(v, scale[g], mins[g], qmin, qmax, o.Symmetric)
			var dq float32
			if o.Symmetric {
				dq = scale[g] * float32(q)
			} else {
				dq = scale[g]*(float32(q)-qmin) + mins[g]
			}
			d := math.Abs(float64(dq - v))
			if p == 1 {
				errs[g] += d
			} else {
				errs[g] += math.Pow(d, p)
			}
		})
		errSums[k] = errs
	}

	if o.PerChannel {
		for g := range lay.groups {
			best := 0
			for k := 1; k < boundSearchSteps; k++ {
				if errSums[k][g] < errSums[best][g] {
					best = k
				}
			}
			bounds[g] *= 1 - 0.05*float32(best)
		}
		return
	}

	best := 0
	var bestErr float64
	for k := range boundSearchSteps {
		var total float64
		for _, e := range errSums[k] {
			total += e
		}
		if k == 0 || total < bestErr {
			best, bestErr = k, total
		}
	}
	c := 1 - 0.05*float32(best)
	for g := range bounds {
		bounds[g] *= c
	}
}

// Dequantize - Rekonstruiert die Float32-Naeherung aus einem Kernel-Resultat
func Dequantize(r *Result, axes []int, o Opts) (*Tensor, error) {
	shape, caxes, err := expandBlock(r.Shape, axes, o.BlockSize)
	if err != nil {
		return nil, err
	}
	lay := newGroupLayout(shape, caxes)

	n := 1
	for _, d := range r.Shape {
		n *= d
	}
	out := make([]float32, n)

	lay.forEach(func(i, g int) {
		var q float32
		if r.F8 != nil {
			q = DecodeE4M3(r.F8[i])
		} else {
			q = float32(r.Q[i])
		}
		if r.ZeroPoint != nil {
			out[i] = r.Scale[g]*q - r.ZeroPoint[g]
		} else {
			out[i] = r.Scale[g] * q
		}
	})

	return &Tensor{Data: out, Shape: r.Shape}, nil
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
