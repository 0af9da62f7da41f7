// tensor.go - Flacher Float32-Tensor mit Shape fuer den Quantisierungs-Kernel
// Haupttypen: Tensor
package quant

import "fmt"

// Tensor - Value-owned Float32-Array mit Row-Major Shape
type Tensor struct {
	Data  []float32
	Shape []int
}

// NewTensor - Erstellt einen Tensor und prueft Shape gegen Datenlaenge
func NewTensor(data []float32, shape ...int) (*Tensor, error) {
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("invalid dimension %d in shape %v", d, shape)
		}
		n *= d
	}

	if n != len(data) {
		return nil, fmt.Errorf("shape %v implies %d elements, got %d", shape, n, len(data))
	}

	return &Tensor{Data: data, Shape: shape}, nil
}

// Elements - Anzahl der Elemente
func (t *Tensor) Elements() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// strides - Row-Major Strides fuer eine Shape
func strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}
