// action.go - Quantisierungs-Aktionen und Layer-Klassifikation
// Haupttypen: Action, LayerType
package convert

import "github.com/edgellm/llmpack/quant"

// LayerType - Geschlossene Menge struktureller Layer-Rollen, abgeleitet
// rein aus Substring-Treffern auf dem Quell-Tensornamen
type LayerType int

const (
	LayerTypeNone LayerType = iota
	LayerTypeAttention
	LayerTypeFeedforward
	LayerTypeEmbedding
	LayerTypeLayerNorm
	// LayerTypeAdapter markiert LoRA-Gewichte; sie werden nie quantisiert.
	LayerTypeAdapter
)

func (l LayerType) String() string {
	switch l {
	case LayerTypeAttention:
		return "attention"
	case LayerTypeFeedforward:
		return "feedforward"
	case LayerTypeEmbedding:
		return "embedding"
	case LayerTypeLayerNorm:
		return "layer_norm"
	case LayerTypeAdapter:
		return "adapter"
	default:
		return "none"
	}
}

// Action - Konvertierungs-Anweisung fuer genau einen Ziel-Tensor.
// Wird vom Mapper erzeugt, genau einmal vom Kernel konsumiert und danach
// freigegeben (ein Tensor zur Zeit, kein geteilter Zustand).
type Action struct {
	// SourceName ist der rohe Tensorname aus dem Checkpoint.
	SourceName string
	// Target ist der kanonische Zielname (params.lm...-Schema).
	Target string
	// Value ist der rohe Float32-Tensor (value-owned).
	Value *quant.Tensor
	// Axes sind die Kontraktionsachsen der Quantisierung.
	// nil bedeutet: Tensor wird unveraendert unter Target uebernommen.
	Axes []int
	// Bits ist die Ziel-Bitbreite (8 oder 4); nur gueltig wenn Axes gesetzt ist.
	// 4-Bit-Werte packt der Writer nach dem Abflachen entlang der fuehrenden
	// Achse, die Packachse ist daher kein Teil der Aktion.
	Bits int
	// Slices ist 3 fuer kombinierte Q/K/V-Tensoren (treibt die
	// Slice-weise Zero-Point-Bestimmung der Uint4-Konvertierung), sonst 1.
	Slices int
}

// quantized meldet, ob die Aktion eine numerische Reduktion verlangt
func (a Action) quantized() bool {
	return a.Axes != nil
}
