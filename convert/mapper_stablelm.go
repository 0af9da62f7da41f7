// mapper_stablelm.go - Layer Action Mapper der StableLM-3B-Familie
package convert

import "github.com/edgellm/llmpack/quant"

// stableLMMapper folgt dem generischen Decoder-Schema; anders als Gemma
// tragen die Layer-Normen Bias-Terme, die unveraendert durchlaufen
type stableLMMapper struct {
	mapperBase
}

func newStableLMMapper(cfg Config) *stableLMMapper {
	return &stableLMMapper{mapperBase{
		cfg: cfg,
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
			".input_layernorm.bias", ".pre_layer_norm.bias",
			".post_attention_layernorm.weight", ".post_layer_norm.scale",
			".post_attention_layernorm.bias", ".post_layer_norm.bias",
			"model.embed_tokens.weight", "params.lm.token_embedding.w",
			"model.norm.weight", "params.lm.final_ln.scale",
			"model.norm.bias", "params.lm.final_ln.bias",
			"lm_head.weight", "params.lm.softmax.logits_ffn.linear.w",
		},
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

func (m *stableLMMapper) Map(name string, value *quant.Tensor) ([]Action, error) {
	a, err := m.action(name, value)
	if err != nil {
		return nil, err
	}
	return []Action{a}, nil
}
