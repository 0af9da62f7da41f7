// bitpack.go - 4-Bit Packing Codec
//
// Enthaelt:
// - Pack4Bit: Packt 4-Bit-Werte aus Int8/Uint8-Hosts in Int8- (2 Werte)
//   oder Int32-Container (8 Werte) entlang einer Achse
// - Unpack4Bit: Bit-exakte Umkehrung
package quant

import "fmt"

// Container - Zieltyp des 4-Bit Packings
type Container int

const (
	// ContainerInt8 packt zwei 4-Bit-Werte pro Byte.
	ContainerInt8 Container = iota
	// ContainerInt32 packt acht 4-Bit-Werte pro 32-Bit-Wort.
	ContainerInt32
)

// Lanes - Anzahl der 4-Bit-Werte pro Container
func (c Container) Lanes() int {
	if c == ContainerInt32 {
		return 8
	}
	return 2
}

func (c Container) String() string {
	if c == ContainerInt32 {
		return "int32"
	}
	return "int8"
}

// Packed - Ergebnis des 4-Bit Packings; genau eines der Werte-Felder ist gesetzt
type Packed struct {
	I8    []int8
	I32   []int32
	Shape []int
}

// Pack4Bit - Packt 4-Bit-Range-Werte entlang packDim in Container.
// Der Eingangs-Host ist int8 (vorzeichenbehaftet) oder uint8; uint8 in
// int8-Container wird abgelehnt (Wertebereich passt nicht).
func Pack4Bit[T int8 | uint8](values []T, shape []int, packDim int, c Container) (*Packed, error) {
	var zero T
	_, unsigned := any(zero).(uint8)
	if unsigned && c == ContainerInt8 {
		return nil, fmt.Errorf("cannot pack unsigned 4-bit values into an int8 container")
	}

	if packDim < 0 || packDim >= len(shape) {
		return nil, fmt.Errorf("pack dimension %d out of range for shape %v", packDim, shape)
	}
	if packDim == len(shape)-1 {
		return nil, fmt.Errorf("pack dimension %d must not be the last axis", packDim)
	}

	lanes := c.Lanes()
	if shape[packDim]%lanes != 0 {
		return nil, fmt.Errorf("axis %d size %d is not divisible by %d", packDim, shape[packDim], lanes)
	}

	n := 1
	for _, d := range shape {
		n *= d
	}
	if n != len(values) {
		return nil, fmt.Errorf("shape %v implies %d elements, got %d", shape, n, len(values))
	}

	outShape := make([]int, len(shape))
	copy(outShape, shape)
	outShape[packDim] /= lanes
	outStrides := strides(outShape)

	out := &Packed{Shape: outShape}
	packed := make([]int32, n/lanes)

	// Gruppe = packDim-Koordinate / lanes, Lane = packDim-Koordinate % lanes.
	// Entspricht dem Einschieben einer Lane-Achse direkt neben packDim.
	coords := make([]int, len(shape))
	for _, v := range values {
		oi := 0
		for ax, x := range coords {
			if ax == packDim {
				oi += (x / lanes) * outStrides[ax]
			} else {
				oi += x * outStrides[ax]
			}
		}
		lane := coords[packDim] % lanes
		packed[oi] |= (int32(v) & 0xF) << (4 * lane)

		for ax := len(shape) - 1; ax >= 0; ax-- {
			coords[ax]++
			if coords[ax] < shape[ax] {
				break
			}
			coords[ax] = 0
		}
	}

	if c == ContainerInt32 {
		out.I32 = packed
		return out, nil
	}

	out.I8 = make([]int8, len(packed))
	for i, v := range packed {
		out.I8[i] = int8(v)
	}
	return out, nil
}

// Unpack4Bit - Entpackt einen mit Pack4Bit erzeugten Container zurueck in
// den Host-Typ; fuer int8-Hosts werden die Nibbles vorzeichenerweitert
func Unpack4Bit[T int8 | uint8](p *Packed, packDim int) ([]T, []int, error) {
	var c Container
	var raw []int32
	switch {
	case p.I32 != nil:
		c = ContainerInt32
		raw = p.I32
	case p.I8 != nil:
		c = ContainerInt8
		raw = make([]int32, len(p.I8))
		for i, v := range p.I8 {
			raw[i] = int32(v)
		}
	default:
		return nil, nil, fmt.Errorf("packed tensor has no values")
	}

	var zero T
	_, unsigned := any(zero).(uint8)

	lanes := c.Lanes()
	shape := make([]int, len(p.Shape))
	copy(shape, p.Shape)
	shape[packDim] *= lanes
	inStrides := strides(p.Shape)

	n := 1
	for _, d := range shape {
		n *= d
	}
	out := make([]T, n)

	coords := make([]int, len(shape))
	for i := range out {
		ii := 0
		for ax, x := range coords {
			if ax == packDim {
				ii += (x / lanes) * inStrides[ax]
			} else {
				ii += x * inStrides[ax]
			}
		}
		lane := coords[packDim] % lanes
		nibble := (raw[ii] >> (4 * lane)) & 0xF

		if unsigned {
			out[i] = T(nibble)
		} else {
			// sign extend from 4 bits
			out[i] = T(int8(nibble<<4) >> 4)
		}

		for ax := len(shape) - 1; ax >= 0; ax-- {
			coords[ax]++
			if coords[ax] < shape[ax] {
				break
			}
			coords[ax] = 0
		}
	}

	return out, shape, nil
}
