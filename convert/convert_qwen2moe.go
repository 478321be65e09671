package convert

import (
	"log/slog"
	"slices"

	"github.com/BearBiscuit05/verl/mcore"
	"github.com/BearBiscuit05/verl/ml"
	"github.com/BearBiscuit05/verl/parallel"
)

var qwen2MoEKeys = append(slices.Clone(denseKeys),
	"rms_norm_eps",
	"moe_intermediate_size",
	"num_experts_per_tok",
	"num_experts",
	"shared_expert_intermediate_size",
	"router_aux_loss_coef",
)

// ConvertQwen2MoE converts Qwen2MoeForCausalLM, a sparse mixture of experts
// model with a shared expert.
func ConvertQwen2MoE(c *Config, dtype ml.DType, t parallel.Topology) (*mcore.TransformerConfig, error) {
	if err := c.require(qwen2MoEKeys...); err != nil {
		return nil, err
	}

	tc := newDecoderConfig(c, dtype, t)
	tc.UseCPUInitialization = false
	tc.LayerNormEpsilon = c.RMSNormEPS

	tc.MoEFFNHiddenSize = c.MoEIntermediateSize
	tc.MoETokenDispatcherType = mcore.DispatcherAllToAll
	tc.MoERouterBiasUpdateRate = 0.001
	tc.MoERouterTopK = c.NumExpertsPerTok
	tc.NumMoEExperts = c.NumExperts
	tc.MoESharedExpertIntermediateSize = c.SharedExpertIntermediateSize
	tc.MoEAuxLossCoeff = c.RouterAuxLossCoef
	tc.MoERouterLoadBalancingType = mcore.LoadBalancingAuxLoss
	tc.MoESharedExpertOverlap = true
	tc.MoEGroupedGEMM = true
	tc.MoERouterScoreFunction = mcore.ScoreSoftmax
	tc.MoERouterPreSoftmax = true

	tc.PersistLayerNorm = true
	tc.BiasActivationFusion = true
	tc.BiasDropoutFusion = true

	// Qwen2 MoE always has bias on the qkv projection
	tc.AddQKVBias = true

	if tc.LayerNormEpsilon > 0 && dtype.Round(float32(tc.LayerNormEpsilon)) == 0 {
		slog.Warn("layernorm epsilon underflows to zero", "epsilon", tc.LayerNormEpsilon, "dtype", dtype)
	}

	return tc, nil
}
