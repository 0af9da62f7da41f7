// mapper_falcon.go - Layer Action Mapper der Falcon-RW-1B-Familie
//
// Falcon fuehrt Query/Key/Value als ein fusioniertes query_key_value-Gewicht,
// dessen Spalten in 64er-Bloecken zyklisch q, k, v zugeordnet sind. Der
// Mapper zerlegt es beim Mapping in drei eigenstaendige Tensoren.
package convert

import (
	"fmt"
	"strings"

	"github.com/edgellm/llmpack/quant"
)

// falconQKVChunk - Blockbreite des zyklischen q/k/v-Interleavings
const falconQKVChunk = 64

type falconMapper struct {
	mapperBase
}

func newFalconMapper(cfg Config) *falconMapper {
	return &falconMapper{mapperBase{
		cfg: cfg,
		rules: []string{
			"transformer.h.", "params.lm.transformer.x_layers_",
			// die drei q/k/v-Regeln greifen erst nach der Zerlegung
			".self_attention.q.weight", ".self_attention.q.w",
			".self_attention.k.weight", ".self_attention.k.w",
			".self_attention.v.weight", ".self_attention.v.w",
			".self_attention.q.bias", ".self_attention.q.b",
			".self_attention.k.bias", ".self_attention.k.b",
			".self_attention.v.bias", ".self_attention.v.b",
			".self_attention.dense.weight", ".self_attention.post.w",
			".self_attention.dense.bias", ".self_attention.post.b",
			".mlp.dense_h_to_4h.weight", ".ff_layer.ffn_layer1.w",
			".mlp.dense_h_to_4h.bias", ".ff_layer.ffn_layer1.b",
			".mlp.dense_4h_to_h.weight", ".ff_layer.ffn_layer2.w",
			".mlp.dense_4h_to_h.bias", ".ff_layer.ffn_layer2.b",
			".input_layernorm.weight", ".pre_layer_norm.scale",
			".input_layernorm.bias", ".pre_layer_norm.bias",
			".post_attention_layernorm.weight", ".post_layer_norm.scale",
			".post_attention_layernorm.bias", ".post_layer_norm.bias",
			"transformer.word_embeddings.weight", "params.lm.token_embedding.w",
			"transformer.ln_f.weight", "params.lm.final_ln.scale",
			"transformer.ln_f.bias", "params.lm.final_ln.bias",
			"lm_head.weight", "params.lm.softmax.logits_ffn.linear.w",
		},
		classes: []layerClass{
			{"lora", LayerTypeAdapter},
			{"mlp", LayerTypeFeedforward},
			{"self_attention", LayerTypeAttention},
			{"word_embeddings", LayerTypeEmbedding},
			{"lm_head", LayerTypeEmbedding},
			{"layernorm", LayerTypeLayerNorm},
			{"ln_f", LayerTypeLayerNorm},
		},
		outputProj: ".dense.",
	}}
}

func (m *falconMapper) Map(name string, value *quant.Tensor) ([]Action, error) {
	if strings.Contains(name, ".self_attention.query_key_value.") {
		return m.splitQKV(name, value)
	}

	a, err := m.action(name, value)
	if err != nil {
		return nil, err
	}
	return []Action{a}, nil
}

// splitQKV zerlegt den fusionierten Tensor in drei Teile und laesst jeden
// Teil den normalen Aktionspfad durchlaufen
func (m *falconMapper) splitQKV(name string, value *quant.Tensor) ([]Action, error) {
	var parts [3][]float32
	var shape []int

	switch len(value.Shape) {
	case 1:
		n := value.Shape[0]
		if n%(3*falconQKVChunk) != 0 {
			return nil, fmt.Errorf("%s: length %d not divisible into q/k/v chunks of %d", name, n, falconQKVChunk)
		}
		for off := 0; off < n; off += falconQKVChunk {
			p := (off / falconQKVChunk) % 3
			parts[p] = append(parts[p], value.Data[off:off+falconQKVChunk]...)
		}
		shape = []int{n / 3}

	case 2:
		// nach der Transposition beim Laden liegt die fusionierte Achse
		// auf den Spalten
		cols := value.Shape[1]
		if cols%(3*falconQKVChunk) != 0 {
			return nil, fmt.Errorf("%s: %d columns not divisible into q/k/v chunks of %d", name, cols, falconQKVChunk)
		}
		rows, err := matrixRows(value)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			for off := 0; off < cols; off += falconQKVChunk {
				p := (off / falconQKVChunk) % 3
				parts[p] = append(parts[p], row[off:off+falconQKVChunk]...)
			}
		}
		shape = []int{value.Shape[0], cols / 3}

	default:
		return nil, fmt.Errorf("%s: fused q/k/v tensor must be 1-D or 2-D, got shape %v", name, value.Shape)
	}

	actions := make([]Action, 0, 3)
	for i, part := range []string{"q", "k", "v"} {
		t, err := quant.NewTensor(parts[i], shape...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		a, err := m.action(strings.Replace(name, "query_key_value", part, 1), t)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, nil
}
