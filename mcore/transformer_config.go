// Package mcore describes the transformer execution configuration consumed by
// the distributed training runtime's model builder.
package mcore

import (
	"github.com/BearBiscuit05/verl/ml"
)

type AttnBackend string

const (
	AttnBackendAuto    AttnBackend = "auto"
	AttnBackendFlash   AttnBackend = "flash"
	AttnBackendFused   AttnBackend = "fused"
	AttnBackendUnfused AttnBackend = "unfused"
	AttnBackendLocal   AttnBackend = "local"
)

type Normalization string

const (
	LayerNorm Normalization = "LayerNorm"
	RMSNorm   Normalization = "RMSNorm"
)

type ActivationFunc string

const (
	GELU ActivationFunc = "gelu"
	SiLU ActivationFunc = "silu"
)

// DispatcherType selects how tokens are exchanged between expert parallel ranks.
type DispatcherType string

const (
	DispatcherAllGather DispatcherType = "allgather"
	DispatcherAllToAll  DispatcherType = "alltoall"
	DispatcherFlex      DispatcherType = "flex"
)

type LoadBalancingType string

const (
	LoadBalancingAuxLoss    LoadBalancingType = "aux_loss"
	LoadBalancingSeqAuxLoss LoadBalancingType = "seq_aux_loss"
	LoadBalancingSinkhorn   LoadBalancingType = "sinkhorn"
	LoadBalancingNone       LoadBalancingType = "none"
)

type ScoreFunction string

const (
	ScoreSoftmax ScoreFunction = "softmax"
	ScoreSigmoid ScoreFunction = "sigmoid"
)

// TransformerConfig is built once per conversion and handed to the model
// builder. Field tags use the runtime's own field names.
type TransformerConfig struct {
	NumLayers         int     `json:"num_layers" yaml:"num_layers"`
	HiddenSize        int     `json:"hidden_size" yaml:"hidden_size"`
	NumAttentionHeads int     `json:"num_attention_heads" yaml:"num_attention_heads"`
	NumQueryGroups    int     `json:"num_query_groups,omitempty" yaml:"num_query_groups,omitempty"`
	FFNHiddenSize     int     `json:"ffn_hidden_size,omitempty" yaml:"ffn_hidden_size,omitempty"`
	LayerNormEpsilon  float64 `json:"layernorm_epsilon" yaml:"layernorm_epsilon"`

	ParamsDType   ml.DType `json:"params_dtype" yaml:"params_dtype"`
	PipelineDType ml.DType `json:"pipeline_dtype" yaml:"pipeline_dtype"`
	BF16          bool     `json:"bf16" yaml:"bf16"`

	TensorModelParallelSize          int  `json:"tensor_model_parallel_size" yaml:"tensor_model_parallel_size"`
	PipelineModelParallelSize        int  `json:"pipeline_model_parallel_size" yaml:"pipeline_model_parallel_size"`
	VirtualPipelineModelParallelSize *int `json:"virtual_pipeline_model_parallel_size" yaml:"virtual_pipeline_model_parallel_size"`
	ContextParallelSize              int  `json:"context_parallel_size" yaml:"context_parallel_size"`
	SequenceParallel                 bool `json:"sequence_parallel" yaml:"sequence_parallel"`
	OverlapP2PComm                   bool `json:"overlap_p2p_comm" yaml:"overlap_p2p_comm"`
	BatchP2PComm                     bool `json:"batch_p2p_comm" yaml:"batch_p2p_comm"`

	MaskedSoftmaxFusion  bool        `json:"masked_softmax_fusion" yaml:"masked_softmax_fusion"`
	BiasActivationFusion bool        `json:"bias_activation_fusion" yaml:"bias_activation_fusion"`
	BiasDropoutFusion    bool        `json:"bias_dropout_fusion" yaml:"bias_dropout_fusion"`
	PersistLayerNorm     bool        `json:"persist_layer_norm" yaml:"persist_layer_norm"`
	AttentionBackend     AttnBackend `json:"attention_backend" yaml:"attention_backend"`
	VariableSeqLengths   bool        `json:"variable_seq_lengths" yaml:"variable_seq_lengths"`
	UseCPUInitialization bool        `json:"use_cpu_initialization" yaml:"use_cpu_initialization"`

	Normalization    Normalization  `json:"normalization" yaml:"normalization"`
	ActivationFunc   ActivationFunc `json:"activation_func" yaml:"activation_func"`
	GatedLinearUnit  bool           `json:"gated_linear_unit" yaml:"gated_linear_unit"`
	AddBiasLinear    bool           `json:"add_bias_linear" yaml:"add_bias_linear"`
	AddQKVBias       bool           `json:"add_qkv_bias" yaml:"add_qkv_bias"`
	AttentionDropout float64        `json:"attention_dropout" yaml:"attention_dropout"`
	HiddenDropout    float64        `json:"hidden_dropout" yaml:"hidden_dropout"`

	MoETokenDispatcherType          DispatcherType    `json:"moe_token_dispatcher_type" yaml:"moe_token_dispatcher_type"`
	MoERouterTopK                   int               `json:"moe_router_topk" yaml:"moe_router_topk"`
	NumMoEExperts                   int               `json:"num_moe_experts,omitempty" yaml:"num_moe_experts,omitempty"`
	MoEFFNHiddenSize                int               `json:"moe_ffn_hidden_size,omitempty" yaml:"moe_ffn_hidden_size,omitempty"`
	MoESharedExpertIntermediateSize int               `json:"moe_shared_expert_intermediate_size,omitempty" yaml:"moe_shared_expert_intermediate_size,omitempty"`
	MoERouterScoreFunction          ScoreFunction     `json:"moe_router_score_function" yaml:"moe_router_score_function"`
	MoERouterLoadBalancingType      LoadBalancingType `json:"moe_router_load_balancing_type" yaml:"moe_router_load_balancing_type"`
	MoEAuxLossCoeff                 float64           `json:"moe_aux_loss_coeff" yaml:"moe_aux_loss_coeff"`
	MoERouterPreSoftmax             bool              `json:"moe_router_pre_softmax" yaml:"moe_router_pre_softmax"`
	MoERouterBiasUpdateRate         float64           `json:"moe_router_bias_update_rate" yaml:"moe_router_bias_update_rate"`
	MoESharedExpertOverlap          bool              `json:"moe_shared_expert_overlap" yaml:"moe_shared_expert_overlap"`
	MoEGroupedGEMM                  bool              `json:"moe_grouped_gemm" yaml:"moe_grouped_gemm"`
}

// NewTransformerConfig returns the runtime's defaults. Fields a conversion
// does not set keep these values.
func NewTransformerConfig() *TransformerConfig {
	return &TransformerConfig{
		LayerNormEpsilon: 1e-5,

		ParamsDType:   ml.DTypeF32,
		PipelineDType: ml.DTypeF32,

		TensorModelParallelSize:   1,
		PipelineModelParallelSize: 1,
		ContextParallelSize:       1,
		BatchP2PComm:              true,

		AttentionBackend: AttnBackendAuto,

		Normalization:    LayerNorm,
		ActivationFunc:   GELU,
		AddBiasLinear:    true,
		AttentionDropout: 0.1,
		HiddenDropout:    0.1,

		MoETokenDispatcherType:     DispatcherAllGather,
		MoERouterTopK:              2,
		MoERouterScoreFunction:     ScoreSoftmax,
		MoERouterLoadBalancingType: LoadBalancingAuxLoss,
		MoERouterBiasUpdateRate:    1e-3,
	}
}

// IsMoE reports whether the configuration routes tokens through experts.
func (c *TransformerConfig) IsMoE() bool {
	return c.NumMoEExperts > 0
}

// NumParameters estimates the parameter count of the transformer blocks,
// excluding embeddings, the output head and the final norm.
func (c *TransformerConfig) NumParameters() uint64 {
	if c.NumAttentionHeads == 0 {
		return 0
	}

	h := uint64(c.HiddenSize)
	groups := uint64(c.NumQueryGroups)
	if groups == 0 {
		groups = uint64(c.NumAttentionHeads)
	}

	kv := groups * (h / uint64(c.NumAttentionHeads))

	// q, k, v and output projections
	attn := 2*h*h + 2*h*kv
	if c.AddQKVBias || c.AddBiasLinear {
		attn += h + 2*kv
	}
	if c.AddBiasLinear {
		attn += h
	}

	mlp := func(ffn uint64) uint64 {
		if c.GatedLinearUnit {
			return 3 * h * ffn
		}
		return 2 * h * ffn
	}

	var ffn uint64
	if c.IsMoE() {
		ffn = uint64(c.NumMoEExperts)*mlp(uint64(c.MoEFFNHiddenSize)) + h*uint64(c.NumMoEExperts)
		if c.MoESharedExpertIntermediateSize > 0 {
			ffn += mlp(uint64(c.MoESharedExpertIntermediateSize))
		}
	} else {
		ffn = mlp(uint64(c.FFNHiddenSize))
	}

	norm := 2 * h
	if c.Normalization == LayerNorm {
		norm *= 2
	}

	return uint64(c.NumLayers) * (attn + ffn + norm)
}
