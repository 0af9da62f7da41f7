// mapper_phi2.go - Layer Action Mapper der Phi-2-Familie
//
// Phi-2 fuehrt Query/Key/Value als ein fusioniertes Wqkv-Gewicht. Es bleibt
// fusioniert; erst die Uint4-Konvertierung behandelt die drei Drittel als
// eigene Slices (Slices == 3).
package convert

import (
	"strings"

	"github.com/edgellm/llmpack/quant"
)

type phi2Mapper struct {
	mapperBase
}

func newPhi2Mapper(cfg Config) *phi2Mapper {
	return &phi2Mapper{mapperBase{
		cfg: cfg,
		// Die lm_head-Regeln muessen vor den generischen .ln-Regeln laufen,
		// sonst wuerde lm_head.ln.weight als Block-Norm umgeschrieben.
		rules: []string{
			"transformer.h.", "params.lm.transformer.x_layers_",
			".mixer.Wqkv.weight", ".self_attention.qkv.w",
			".mixer.Wqkv.bias", ".self_attention.qkv.b",
			".mixer.out_proj.weight", ".self_attention.post.w",
			".mixer.out_proj.bias", ".self_attention.post.b",
			".mlp.fc1.weight", ".ff_layer.ffn_layer1.w",
			".mlp.fc1.bias", ".ff_layer.ffn_layer1.b",
			".mlp.fc2.weight", ".ff_layer.ffn_layer2.w",
			".mlp.fc2.bias", ".ff_layer.ffn_layer2.b",
			"lm_head.linear.weight", "params.lm.softmax.logits_ffn.linear.w",
			"lm_head.linear.bias", "params.lm.softmax.logits_ffn.linear.b",
			"lm_head.ln.weight", "params.lm.final_ln.scale",
			"lm_head.ln.bias", "params.lm.final_ln.bias",
			".ln.weight", ".pre_layer_norm.scale",
			".ln.bias", ".pre_layer_norm.bias",
			"transformer.embd.wte.weight", "params.lm.token_embedding.w",
		},
		classes: []layerClass{
			{"lora", LayerTypeAdapter},
			{"mlp", LayerTypeFeedforward},
			{"mixer", LayerTypeAttention},
			{"wte", LayerTypeEmbedding},
			{"lm_head.linear", LayerTypeEmbedding},
			{"ln", LayerTypeLayerNorm},
		},
		outputProj: "out_proj",
	}}
}

func (m *phi2Mapper) Map(name string, value *quant.Tensor) ([]Action, error) {
	a, err := m.action(name, value)
	if err != nil {
		return nil, err
	}
	if a.quantized() && strings.Contains(name, "Wqkv.weight") {
		a.Slices = 3
	}
	return []Action{a}, nil
}
