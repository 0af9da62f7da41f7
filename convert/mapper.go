// mapper.go - Layer Action Mapper: Klassifikation, Umbenennung, Quantisierungs-Wahl
//
// Enthaelt:
// - Mapper Interface und Familien-Factory
// - mapperBase: gemeinsame Logik aller Familien (geordnete Ersetzungsregeln,
//   geordnete Substring-Klassifikation, Bitbreiten- und Achsen-Wahl)
package convert

import (
	"fmt"
	"strings"

	"github.com/edgellm/llmpack/quant"
)

// weightSuffix - Nur Eintraege mit diesem Suffix werden quantisiert
const weightSuffix = ".weight"

// Mapper - Uebersetzt einen Quell-Tensor in eine oder mehrere Aktionen
// (ein fusionierter Q/K/V-Tensor kann in drei Aktionen zerfallen)
type Mapper interface {
	Map(name string, value *quant.Tensor) ([]Action, error)
}

// NewMapper - Waehlt den Mapper der Modell-Familie; die Menge ist geschlossen
// und wird einmal zur Konfigurationszeit aufgeloest
func NewMapper(cfg Config) (Mapper, error) {
	switch cfg.Family {
	case FamilyFalconRW1B:
		return newFalconMapper(cfg), nil
	case FamilyStableLM3B:
		return newStableLMMapper(cfg), nil
	case FamilyPhi2:
		return newPhi2Mapper(cfg), nil
	case FamilyGemma2B, FamilyGemma7B:
		return newGemmaMapper(cfg), nil
	default:
		return nil, fmt.Errorf("unknown model family %q", cfg.Family)
	}
}

// layerClass - Ein Eintrag der geordneten Klassifikationstabelle.
// Die erste Uebereinstimmung gewinnt; die Listenreihenfolge ist Teil
// des Kontrakts jeder Familie.
type layerClass struct {
	substr string
	typ    LayerType
}

type mapperBase struct {
	cfg Config
	// rules sind geordnete (from, to)-Literalpaare. Anders als bei
	// strings.Replacer werden sie sequentiell angewendet: spaetere Regeln
	// duerfen auf Ausgaben frueherer Regeln greifen.
	rules []string
	// classes ist die geordnete Klassifikationstabelle.
	classes []layerClass
	// outputProj markiert die Attention-Output-Projektion der Familie
	// (auf dem CPU-Backend transponiert und entlang Achse 1 quantisiert).
	outputProj string
}

// rename wendet die Ersetzungsregeln in fester Reihenfolge an
func (m *mapperBase) rename(name string) string {
	if len(m.rules)%2 != 0 {
		panic("rename rules must come in pairs")
	}
	for i := 0; i < len(m.rules); i += 2 {
		name = strings.ReplaceAll(name, m.rules[i], m.rules[i+1])
	}
	return name
}

// classify bestimmt die Layer-Rolle per erster Substring-Uebereinstimmung
func (m *mapperBase) classify(name string) LayerType {
	for _, c := range m.classes {
		if strings.Contains(name, c.substr) {
			return c.typ
		}
	}
	return LayerTypeNone
}

// action baut die Standard-Aktion fuer einen Tensor: Umbenennung immer,
// Quantisierung nur fuer Gewichts-Eintraege quantisierbarer Layer-Rollen
func (m *mapperBase) action(name string, value *quant.Tensor) (Action, error) {
	a := Action{
		SourceName: name,
		Target:     m.rename(name),
		Value:      value,
		Slices:     1,
	}

	if m.cfg.AlreadyQuantized {
		return a, nil
	}
	if !strings.HasSuffix(name, weightSuffix) {
		return a, nil
	}

	lt := m.classify(name)
	switch lt {
	case LayerTypeNone, LayerTypeLayerNorm, LayerTypeAdapter:
		// Layer-Norm- und Adapter-Gewichte werden per Konvention nie quantisiert
		return a, nil
	}

	a.Bits = m.cfg.bitsFor(lt)
	a.Axes = []int{0}

	// Das CPU-Backend erwartet Output-Projektion und Embeddings transponiert
	// auf der Platte; quantisiert wird dann entlang Achse 1.
	if m.cfg.Backend == BackendCPU && len(value.Shape) == 2 &&
		(lt == LayerTypeEmbedding || (lt == LayerTypeAttention && strings.Contains(name, m.outputProj))) {
		v, err := transpose2D(value)
		if err != nil {
			return Action{}, fmt.Errorf("transpose %s: %w", name, err)
		}
		a.Value = v
		a.Axes = []int{1}
	}

	return a, nil
}
