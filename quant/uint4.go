// uint4.go - Konvertierung von signed Int4 in die Uint4-Konvention
//
// Bestimmte Inferenz-Backends erwarten 4-Bit-Gewichte als vorzeichenlose
// Werte mit einem einzelnen Integer-Zero-Point pro Tensor (bzw. pro
// Q/K/V-Slice bei fusionierten Tensoren). Die Umwandlung ist bewusst
// verlustbehaftet: ein Per-Channel-Zero-Point wird durch Mittelung
// kollabiert, dequant_signed und dequant_unsigned stimmen nur naeherungsweise
// ueberein.
package quant

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// uint4Offset - Fester Offset von signed [-8,7] nach unsigned [0,15]
const uint4Offset = 8

// Uint4Tensor - Uint4-Darstellung mit Integer-Zero-Point pro Slice
type Uint4Tensor struct {
	Q     []uint8
	Scale []float32
	// ZeroPoint hat einen Eintrag pro Slice (1, oder 3 bei fusioniertem Q/K/V).
	ZeroPoint []int32
}

// UpdateToUint4 - Rechnet eine symmetrische (zeroPoint nil) oder asymmetrische
// Int4-Darstellung in die Uint4-Konvention um. numSlices ist 1 fuer normale
// Tensoren und 3 fuer fusionierte Q/K/V-Tensoren; der Zero-Point wird pro
// Slice unabhaengig bestimmt.
func UpdateToUint4(q []int8, scale, zeroPoint []float32, numSlices int) (*Uint4Tensor, error) {
	if numSlices != 1 && numSlices != 3 {
		return nil, fmt.Errorf("unsupported slice count %d: must be 1 or 3", numSlices)
	}
	if len(scale) == 0 || len(scale)%numSlices != 0 {
		return nil, fmt.Errorf("scale length %d is not divisible by %d slices", len(scale), numSlices)
	}
	if zeroPoint != nil && len(zeroPoint) != len(scale) {
		return nil, fmt.Errorf("zero point length %d does not match scale length %d", len(zeroPoint), len(scale))
	}
	if len(q)%len(scale) != 0 {
		return nil, fmt.Errorf("value count %d is not divisible by %d channels", len(q), len(scale))
	}

	out := &Uint4Tensor{
		Q:         make([]uint8, len(q)),
		Scale:     scale,
		ZeroPoint: make([]int32, numSlices),
	}

	for i, v := range q {
		if v < -8 || v > 7 {
			return nil, fmt.Errorf("value %d at index %d outside int4 range", v, i)
		}
		out.Q[i] = uint8(int(v) + uint4Offset)
	}

	channelsPerSlice := len(scale) / numSlices
	for s := range numSlices {
		if zeroPoint == nil {
			out.ZeroPoint[s] = uint4Offset
			continue
		}

		// Zero-Point in Quantisierungseinheiten pro Channel, dann Mittelung
		// ueber alle Channels des Slices.
		units := make([]float64, channelsPerSlice)
		for c := range channelsPerSlice {
			ch := s*channelsPerSlice + c
			units[c] = float64(uint4Offset) + float64(zeroPoint[ch]/scale[ch])
		}
		out.ZeroPoint[s] = int32(math.RoundToEven(stat.Mean(units, nil)))
	}

	return out, nil
}

// DequantizeUint4 - Rekonstruiert Float32-Werte aus der Uint4-Darstellung;
// Channels liegen zusammenhaengend entlang der 0. Achse
func (u *Uint4Tensor) DequantizeUint4() []float32 {
	out := make([]float32, len(u.Q))
	perChannel := len(u.Q) / len(u.Scale)
	channelsPerSlice := len(u.Scale) / len(u.ZeroPoint)

	for i, v := range u.Q {
		ch := i / perChannel
		zp := u.ZeroPoint[ch/channelsPerSlice]
		out[i] = u.Scale[ch] * (float32(v) - float32(zp))
	}
	return out
}
