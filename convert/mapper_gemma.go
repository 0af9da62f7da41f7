// mapper_gemma.go - Layer Action Mapper der Gemma-Familie (2B und 7B)
package convert

import "github.com/edgellm/llmpack/quant"

// gemmaMapper deckt beide Gemma-Varianten ab; die Layer-Struktur ist
// identisch, nur die Modell-Groesse unterscheidet sich
type gemmaMapper struct {
	mapperBase
}

func newGemmaMapper(cfg Config) *gemmaMapper {
	return &gemmaMapper{mapperBase{
		cfg: cfg,
		// Reihenfolge traegt: der Praefix-Tausch laeuft zuerst, die
		// Suffix-Regeln greifen auf den bereits umgeschriebenen Namen.
		rules: []string{
			"model.layers.", "params.lm.transformer.x_layers_",
			".self_attn.q_proj.weight", ".self_attention.q.w",
			".self_attn.k_proj.weight", ".self_attention.k.w",
			".self_attn.v_proj.weight", ".self_attention.v.w",
			".self_attn.o_proj.weight", ".self_attention.post.w",
			".mlp.gate_proj.weight", ".ff_layer.ffn_layer1_gate.w",
			".mlp.up_proj.weight", ".ff_layer.ffn_layer1.w",
			".mlp.down_proj.weight", ".ff_layer.ffn_layer2.w",
			".input_layernorm.weight", ".pre_layer_norm.scale",
			".post_attention_layernorm.weight", ".post_layer_norm.scale",
			"model.embed_tokens.weight", "params.lm.token_embedding.w",
			"model.norm.weight", "params.lm.final_ln.scale",
			"lm_head.weight", "params.lm.softmax.logits_ffn.linear.w",
		},
		// LoRA-Eintraege zuerst, damit Adapter-Gewichte an mlp/self_attn
		// angedockter Layer nicht als quantisierbar eingestuft werden.
		classes: []layerClass{
			{"lora", LayerTypeAdapter},
			{"mlp", LayerTypeFeedforward},
			{"self_attn", LayerTypeAttention},
			{"embed_tokens", LayerTypeEmbedding},
			{"lm_head", LayerTypeEmbedding},
			{"layernorm", LayerTypeLayerNorm},
			{"model.norm", LayerTypeLayerNorm},
		},
		outputProj: "o_proj",
	}}
}

func (m *gemmaMapper) Map(name string, value *quant.Tensor) ([]Action, error) {
	a, err := m.action(name, value)
	if err != nil {
		return nil, err
	}
	return []Action{a}, nil
}
