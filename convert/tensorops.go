// tensorops.go - Tensor-Hilfsoperationen des Mappers (Transposition, Spalten-Splits)
package convert

import (
	"fmt"
	"slices"

	"github.com/pdevine/tensor"
	"github.com/pdevine/tensor/native"

	"github.com/edgellm/llmpack/quant"
)

// transpose2D materialisiert die Transponierte eines 2-D Tensors
func transpose2D(t *quant.Tensor) (*quant.Tensor, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("transpose expects a 2-D tensor, got shape %v", t.Shape)
	}

	n := tensor.New(tensor.WithShape(t.Shape...), tensor.WithBacking(slices.Clone(t.Data)))
	if err := n.T(1, 0); err != nil {
		return nil, err
	}
	if err := n.Transpose(); err != nil {
		return nil, err
	}

	return quant.NewTensor(n.Data().([]float32), t.Shape[1], t.Shape[0])
}

// matrixRows liefert Zeilen-Sichten auf einen 2-D Tensor ohne Kopie
func matrixRows(t *quant.Tensor) ([][]float32, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("matrix view expects a 2-D tensor, got shape %v", t.Shape)
	}

	n := tensor.New(tensor.WithShape(t.Shape...), tensor.WithBacking(t.Data))
	return native.MatrixF32(n)
}
