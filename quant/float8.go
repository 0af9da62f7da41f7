// float8.go - e4m3 Kodierung fuer die Float8-Quantisierung
//
// Einziges unterstuetztes Float8-Format: 1 Vorzeichen-Bit, 4 Exponenten-Bits
// (Bias 7), 3 Mantissen-Bits, kein Inf, Maximalwert 448 (e4m3fn-Konvention).
// Andere Float8-Formate sind bewusst nicht implementiert.
package quant

import "math"

// EncodeE4M3 - Kodiert einen Float32-Wert als e4m3-Byte.
// Werte ausserhalb von [-448, 448] saettigen; Rundung ist round-to-nearest-even.
func EncodeE4M3(f float32) uint8 {
	var sign uint8
	if math.Signbit(float64(f)) {
		sign = 0x80
	}

	a := math.Abs(float64(f))
	if math.IsNaN(a) {
		return sign | 0x7F
	}
	if a > float8MaxValue {
		a = float8MaxValue
	}
	if a == 0 {
		return sign
	}

	// Subnormale: Vielfache von 2^-9 unterhalb von 2^-6
	if a < 0x1p-6 {
		q := math.RoundToEven(a / 0x1p-9)
		if q == 0 {
			return sign
		}
		if q <= 7 {
			return sign | uint8(q)
		}
		// rundet auf die kleinste normale Zahl 2^-6
		return sign | 0x08
	}

	fr, e := math.Frexp(a) // a = fr * 2^e, fr in [0.5, 1)
	exp2 := e - 1          // a = m * 2^exp2, m in [1, 2)
	man := math.RoundToEven((fr*2 - 1) * 8)
	if man == 8 {
		man = 0
		exp2++
	}
	if exp2 > 8 || (exp2 == 8 && man > 6) {
		// 448 = 1.75 * 2^8, Mantisse 7 bei Exponent 15 ist NaN
		exp2, man = 8, 6
	}

	return sign | uint8(exp2+7)<<3 | uint8(man)
}

// DecodeE4M3 - Dekodiert ein e4m3-Byte zurueck nach Float32
func DecodeE4M3(b uint8) float32 {
	sign := float64(1)
	if b&0x80 != 0 {
		sign = -1
	}
	exp := (b >> 3) & 0xF
	man := b & 0x7

	if exp == 0xF && man == 0x7 {
		return float32(math.NaN())
	}
	if exp == 0 {
		return float32(sign * float64(man) * 0x1p-9)
	}
	return float32(sign * (1 + float64(man)/8) * math.Pow(2, float64(int(exp)-7)))
}
