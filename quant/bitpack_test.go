// bitpack_test.go - Unit Tests fuer den 4-Bit Packing Codec
package quant

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPack4BitInt8Container(t *testing.T) {
	// Shape (4,3), gepackt entlang Achse 0: Zeilenpaare teilen sich ein Byte
	values := []int8{
		-1, 2, 7,
		2, -8, 0,
		3, 1, -2,
		-4, 5, 6,
	}

	p, err := Pack4Bit(values, []int{4, 3}, 0, ContainerInt8)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{2, 3}, p.Shape); diff != "" {
		t.Errorf("packed shape mismatch (-want +got):\n%s", diff)
	}

	// Nibble 0 kommt aus Zeile 0, Nibble 1 (geschoben) aus Zeile 1:
	// [0x2F, 0x82, 0x07, 0xC3, 0x51, 0x6E] als int8
	want := []int8{47, -126, 7, -61, 81, 110}
	if diff := cmp.Diff(want, p.I8); diff != "" {
		t.Errorf("packed values mismatch (-want +got):\n%s", diff)
	}
}

func TestPack4BitInt32Container(t *testing.T) {
	values := make([]int8, 16)
	for i := range values {
		values[i] = int8(i%16 - 8)
	}

	p, err := Pack4Bit(values, []int{8, 2}, 0, ContainerInt32)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{1, 2}, p.Shape); diff != "" {
		t.Errorf("packed shape mismatch (-want +got):\n%s", diff)
	}
	if len(p.I32) != 2 {
		t.Fatalf("expected 2 containers, got %d", len(p.I32))
	}
}

// TestPack4BitRoundTrip prueft bit-exakte Umkehrbarkeit fuer beide
// Host-Typen und beide Container
func TestPack4BitRoundTrip(t *testing.T) {
	signed := make([]int8, 48)
	unsigned := make([]uint8, 48)
	for i := range signed {
		signed[i] = int8(i%16 - 8)
		unsigned[i] = uint8(i % 16)
	}
	shape := []int{16, 3}

	t.Run("int8_container_signed", func(t *testing.T) {
		p, err := Pack4Bit(signed, shape, 0, ContainerInt8)
		if err != nil {
			t.Fatal(err)
		}
		got, gotShape, err := Unpack4Bit[int8](p, 0)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(signed, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(shape, gotShape); diff != "" {
			t.Errorf("shape mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("int32_container_signed", func(t *testing.T) {
		p, err := Pack4Bit(signed, shape, 0, ContainerInt32)
		if err != nil {
			t.Fatal(err)
		}
		got, _, err := Unpack4Bit[int8](p, 0)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(signed, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("int32_container_unsigned", func(t *testing.T) {
		p, err := Pack4Bit(unsigned, shape, 0, ContainerInt32)
		if err != nil {
			t.Fatal(err)
		}
		got, _, err := Unpack4Bit[uint8](p, 0)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(unsigned, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestPack4BitErrors(t *testing.T) {
	signed := make([]int8, 8)
	unsigned := make([]uint8, 8)

	cases := []struct {
		name string
		fn   func() error
	}{
		{"unsigned_into_int8", func() error {
			_, err := Pack4Bit(unsigned, []int{4, 2}, 0, ContainerInt8)
			return err
		}},
		{"pack_dim_last_axis", func() error {
			_, err := Pack4Bit(signed, []int{4, 2}, 1, ContainerInt8)
			return err
		}},
		{"not_divisible_int8", func() error {
			_, err := Pack4Bit(signed[:6], []int{3, 2}, 0, ContainerInt8)
			return err
		}},
		{"not_divisible_int32", func() error {
			_, err := Pack4Bit(signed, []int{4, 2}, 0, ContainerInt32)
			return err
		}},
		{"pack_dim_out_of_range", func() error {
			_, err := Pack4Bit(signed, []int{4, 2}, 2, ContainerInt8)
			return err
		}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
