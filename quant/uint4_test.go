// uint4_test.go - Unit Tests fuer die Uint4-Konvertierung
package quant

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestUpdateToUint4Symmetric(t *testing.T) {
	q := []int8{-8, -3, 0, 7, 1, -1, 5, -6}
	scale := []float32{0.5, 0.25}

	u, err := UpdateToUint4(q, scale, nil, 1)
	if err != nil {
		t.Fatal(err)
	}

	wantQ := []uint8{0, 5, 8, 15, 9, 7, 13, 2}
	if diff := cmp.Diff(wantQ, u.Q); diff != "" {
		t.Errorf("uint4 values mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int32{8}, u.ZeroPoint); diff != "" {
		t.Errorf("zero point mismatch (-want +got):\n%s", diff)
	}

	// symmetrischer Fall ist exakt: scale_n*(qx_n - zp_n) == scale*qx
	got := u.DequantizeUint4()
	for i := range q {
		want := scale[i/4] * float32(q[i])
		if got[i] != want {
			t.Errorf("element %d: dequant %v, want %v", i, got[i], want)
		}
	}
}

// TestUpdateToUint4Asymmetric prueft die verlustbehaftete Zero-Point-Mittelung:
// dequant_signed und dequant_unsigned stimmen nur innerhalb einer Toleranz ueberein
func TestUpdateToUint4Asymmetric(t *testing.T) {
	q := []int8{-8, -3, 0, 7, 1, -1, 5, -6}
	scale := []float32{0.5, 0.4}
	// zp in Scale-Einheiten; zp/scale variiert leicht zwischen den Channels
	zeroPoint := []float32{0.55, 0.48}

	u, err := UpdateToUint4(q, scale, zeroPoint, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(u.ZeroPoint) != 1 {
		t.Fatalf("expected a single per-tensor zero point, got %d", len(u.ZeroPoint))
	}

	got := u.DequantizeUint4()
	for i := range q {
		ch := i / 4
		want := scale[ch]*float32(q[i]) - zeroPoint[ch]
		if diff := math.Abs(float64(got[i] - want)); diff > float64(scale[ch]) {
			t.Errorf("element %d: |%v - %v| = %v exceeds one step %v", i, got[i], want, diff, scale[ch])
		}
	}
}

// TestUpdateToUint4ThreeSlices prueft, dass fusionierte Q/K/V-Tensoren pro
// Slice einen eigenen Zero-Point erhalten
func TestUpdateToUint4ThreeSlices(t *testing.T) {
	q := make([]int8, 12)
	for i := range q {
		q[i] = int8(i%16 - 8)
	}
	scale := []float32{0.5, 0.5, 0.25, 0.25, 1.0, 1.0}
	zeroPoint := []float32{0.5, 0.5, 0.5, 0.5, -1.0, -1.0}

	u, err := UpdateToUint4(q, scale, zeroPoint, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(u.ZeroPoint) != 3 {
		t.Fatalf("expected 3 slice zero points, got %d", len(u.ZeroPoint))
	}

	// zp/scale je Slice: {1,1} -> 9, {2,2} -> 10, {-1,-1} -> 7
	if diff := cmp.Diff([]int32{9, 10, 7}, u.ZeroPoint); diff != "" {
		t.Errorf("slice zero points mismatch (-want +got):\n%s", diff)
	}

	got := u.DequantizeUint4()
	for i := range q {
		ch := i / 2
		want := scale[ch]*float32(q[i]) - zeroPoint[ch]
		if got[i] != want {
			t.Errorf("element %d: dequant %v, want %v", i, got[i], want)
		}
	}
}

func TestUpdateToUint4Errors(t *testing.T) {
	cases := []struct {
		name      string
		q         []int8
		scale     []float32
		zeroPoint []float32
		slices    int
	}{
		{"bad_slice_count", []int8{0, 0}, []float32{1, 1}, nil, 2},
		{"scale_not_divisible", []int8{0, 0, 0, 0}, []float32{1, 1, 1, 1}, nil, 3},
		{"zp_length_mismatch", []int8{0, 0}, []float32{1, 1}, []float32{0}, 1},
		{"values_not_divisible", []int8{0, 0, 0}, []float32{1, 1}, nil, 1},
		{"out_of_int4_range", []int8{0, 16 - 8, 0, 127}, []float32{1, 1}, nil, 1},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UpdateToUint4(tt.q, tt.scale, tt.zeroPoint, tt.slices); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
