// float8_test.go - Unit Tests fuer die e4m3 Kodierung
package quant

import (
	"math"
	"testing"
)

func TestE4M3RoundTrip(t *testing.T) {
	// exakt darstellbare Werte
	values := []float32{0, 0.5, -0.5, 1, 1.5, 1.875, 2, 3.5, -448, 448, 0x1p-6, 0x1p-9, 3 * 0x1p-9, -7 * 0x1p-9}

	for _, v := range values {
		got := DecodeE4M3(EncodeE4M3(v))
		if got != v {
			t.Errorf("round trip %v -> %v", v, got)
		}
	}
}

func TestE4M3Saturation(t *testing.T) {
	cases := []struct {
		in   float32
		want float32
	}{
		{500, 448},
		{-10000, -448},
		{448, 448},
	}

	for _, tt := range cases {
		if got := DecodeE4M3(EncodeE4M3(tt.in)); got != tt.want {
			t.Errorf("EncodeE4M3(%v) decodes to %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestE4M3RoundToNearestEven(t *testing.T) {
	cases := []struct {
		in   float32
		want float32
	}{
		// 1.0625 liegt genau zwischen 1.0 und 1.125 -> gerade Mantisse 1.0
		{1.0625, 1.0},
		// 1.1875 liegt genau zwischen 1.125 und 1.25 -> gerade Mantisse 1.25
		{1.1875, 1.25},
		// knapp unterhalb des Maximums
		{440, 448},
	}

	for _, tt := range cases {
		if got := DecodeE4M3(EncodeE4M3(tt.in)); got != tt.want {
			t.Errorf("EncodeE4M3(%v) decodes to %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestE4M3SubnormalBoundary(t *testing.T) {
	// 7.5 * 2^-9 rundet auf die kleinste normale Zahl 2^-6
	in := float32(7.5 * 0x1p-9)
	if got := DecodeE4M3(EncodeE4M3(in)); got != 0x1p-6 {
		t.Errorf("subnormal boundary: got %v, want %v", got, float32(0x1p-6))
	}

	// unterhalb der halben kleinsten Subnormalen wird Null
	if got := DecodeE4M3(EncodeE4M3(0x1p-11)); got != 0 {
		t.Errorf("underflow: got %v, want 0", got)
	}
}

func TestE4M3NaN(t *testing.T) {
	if got := DecodeE4M3(EncodeE4M3(float32(math.NaN()))); !math.IsNaN(float64(got)) {
		t.Errorf("NaN round trip produced %v", got)
	}
}
