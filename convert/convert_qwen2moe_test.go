package convert

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BearBiscuit05/verl/logutil"
	"github.com/BearBiscuit05/verl/mcore"
	"github.com/BearBiscuit05/verl/ml"
	"github.com/BearBiscuit05/verl/parallel"
)

func TestConvertQwen2MoE(t *testing.T) {
	c := loadTestdata(t, "Qwen1.5-MoE-A2.7B")
	topology := parallel.Topology{TensorParallel: 2, PipelineParallel: 2, VirtualPipelineParallel: intPtr(4), ContextParallel: 1}

	got, err := Convert(c, ml.DTypeBF16, topology)
	require.NoError(t, err)

	want := &mcore.TransformerConfig{
		NumLayers:         24,
		HiddenSize:        2048,
		NumAttentionHeads: 16,
		NumQueryGroups:    16,
		FFNHiddenSize:     5632,
		LayerNormEpsilon:  1e-6,

		ParamsDType:   ml.DTypeBF16,
		PipelineDType: ml.DTypeBF16,
		BF16:          true,

		TensorModelParallelSize:          2,
		PipelineModelParallelSize:        2,
		VirtualPipelineModelParallelSize: intPtr(4),
		ContextParallelSize:              1,
		SequenceParallel:                 true,
		OverlapP2PComm:                   true,
		BatchP2PComm:                     false,

		MaskedSoftmaxFusion:  true,
		BiasActivationFusion: true,
		BiasDropoutFusion:    true,
		PersistLayerNorm:     true,
		AttentionBackend:     mcore.AttnBackendFlash,
		VariableSeqLengths:   true,
		UseCPUInitialization: false,

		Normalization:    mcore.RMSNorm,
		ActivationFunc:   mcore.SiLU,
		GatedLinearUnit:  true,
		AddBiasLinear:    false,
		AddQKVBias:       true,
		AttentionDropout: 0,
		HiddenDropout:    0,

		MoETokenDispatcherType:          mcore.DispatcherAllToAll,
		MoERouterTopK:                   4,
		NumMoEExperts:                   60,
		MoEFFNHiddenSize:                1408,
		MoESharedExpertIntermediateSize: 5632,
		MoERouterScoreFunction:          mcore.ScoreSoftmax,
		MoERouterLoadBalancingType:      mcore.LoadBalancingAuxLoss,
		MoEAuxLossCoeff:                 0.001,
		MoERouterPreSoftmax:             true,
		MoERouterBiasUpdateRate:         0.001,
		MoESharedExpertOverlap:          true,
		MoEGroupedGEMM:                  true,
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestConvertQwen2MoEIgnoresAttentionBias(t *testing.T) {
	for _, bias := range []bool{false, true} {
		m := llamaSource()
		m["architectures"] = []any{"Qwen2MoeForCausalLM"}
		m["attention_bias"] = bias
		m["rms_norm_eps"] = 1e-6
		m["moe_intermediate_size"] = 64
		m["num_experts_per_tok"] = 2
		m["num_experts"] = 8
		m["shared_expert_intermediate_size"] = 256
		m["router_aux_loss_coef"] = 0.01

		got, err := ConvertQwen2MoE(mustConfig(t, m), ml.DTypeF16, parallel.Single())
		require.NoError(t, err)

		assert.True(t, got.AddQKVBias)
		assert.Equal(t, 2, got.MoERouterTopK)
		assert.Equal(t, 8, got.NumMoEExperts)
		assert.Equal(t, 0.01, got.MoEAuxLossCoeff)
		assert.False(t, got.OverlapP2PComm)
		assert.False(t, got.SequenceParallel)
		assert.False(t, got.BF16)
	}
}

func TestConvertDenseOmitsMoE(t *testing.T) {
	got, err := Convert(loadTestdata(t, "Qwen2-7B"), ml.DTypeBF16, parallel.Single())
	require.NoError(t, err)

	defaults := mcore.NewTransformerConfig()
	assert.False(t, got.IsMoE())
	assert.Equal(t, defaults.MoERouterTopK, got.MoERouterTopK)
	assert.Equal(t, defaults.MoEAuxLossCoeff, got.MoEAuxLossCoeff)
	assert.Equal(t, defaults.MoEGroupedGEMM, got.MoEGroupedGEMM)
	assert.Equal(t, defaults.PersistLayerNorm, got.PersistLayerNorm)
	assert.Equal(t, defaults.LayerNormEpsilon, got.LayerNormEpsilon)
	assert.True(t, got.AddQKVBias)
}

func TestConvertDeepseekV3Testdata(t *testing.T) {
	got, err := Convert(loadTestdata(t, "DeepSeek-V3"), ml.DTypeBF16, parallel.Single())
	require.ErrorIs(t, err, ErrUnsupportedArchitecture)
	assert.Nil(t, got)
}

func TestConvertQwen2MoEEpsilonUnderflow(t *testing.T) {
	var buf bytes.Buffer
	defer slog.SetDefault(slog.Default())
	slog.SetDefault(logutil.NewLogger(&buf, slog.LevelInfo))

	m := llamaSource()
	m["architectures"] = []any{"Qwen2MoeForCausalLM"}
	m["rms_norm_eps"] = 1e-9
	m["moe_intermediate_size"] = 64
	m["num_experts_per_tok"] = 2
	m["num_experts"] = 8
	m["shared_expert_intermediate_size"] = 256
	m["router_aux_loss_coef"] = 0.01

	for _, tt := range []struct {
		dtype ml.DType
		warn  bool
	}{
		{ml.DTypeF16, true},
		{ml.DTypeBF16, false},
		{ml.DTypeF32, false},
	} {
		buf.Reset()

		got, err := ConvertQwen2MoE(mustConfig(t, m), tt.dtype, parallel.Single())
		require.NoError(t, err)
		assert.Equal(t, 1e-9, got.LayerNormEpsilon, "epsilon is passed through unchanged")
		assert.Equal(t, tt.warn, bytes.Contains(buf.Bytes(), []byte("layernorm epsilon underflows to zero")), tt.dtype.String())
	}
}
