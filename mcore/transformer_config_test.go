package mcore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/BearBiscuit05/verl/ml"
)

func TestNewTransformerConfigDefaults(t *testing.T) {
	c := NewTransformerConfig()

	assert.Equal(t, 1, c.TensorModelParallelSize)
	assert.Equal(t, 1, c.PipelineModelParallelSize)
	assert.Equal(t, 1, c.ContextParallelSize)
	assert.Nil(t, c.VirtualPipelineModelParallelSize)
	assert.True(t, c.BatchP2PComm)
	assert.Equal(t, LayerNorm, c.Normalization)
	assert.Equal(t, GELU, c.ActivationFunc)
	assert.Equal(t, DispatcherAllGather, c.MoETokenDispatcherType)
	assert.Equal(t, 2, c.MoERouterTopK)
	assert.Equal(t, ml.DTypeF32, c.ParamsDType)
	assert.False(t, c.IsMoE())
}

func TestNumParametersDense(t *testing.T) {
	c := NewTransformerConfig()
	c.NumLayers = 32
	c.HiddenSize = 4096
	c.NumAttentionHeads = 32
	c.NumQueryGroups = 8
	c.FFNHiddenSize = 14336
	c.GatedLinearUnit = true
	c.AddBiasLinear = false
	c.Normalization = RMSNorm

	assert.Equal(t, uint64(6_979_584_000), c.NumParameters())
}

func TestNumParametersMoE(t *testing.T) {
	c := NewTransformerConfig()
	c.NumLayers = 2
	c.HiddenSize = 8
	c.NumAttentionHeads = 2
	c.NumQueryGroups = 1
	c.GatedLinearUnit = true
	c.AddBiasLinear = false
	c.AddQKVBias = true
	c.Normalization = RMSNorm
	c.NumMoEExperts = 4
	c.MoEFFNHiddenSize = 4
	c.MoESharedExpertIntermediateSize = 16

	require.True(t, c.IsMoE())
	assert.Equal(t, uint64(2048), c.NumParameters())
}

func TestNumParametersEmpty(t *testing.T) {
	assert.Zero(t, NewTransformerConfig().NumParameters())
}

func TestTransformerConfigMarshal(t *testing.T) {
	c := NewTransformerConfig()
	c.ParamsDType = ml.DTypeBF16
	vpp := 2
	c.VirtualPipelineModelParallelSize = &vpp

	bts, err := json.Marshal(c)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(bts, &m))
	assert.Equal(t, "bfloat16", m["params_dtype"])
	assert.Equal(t, float64(2), m["virtual_pipeline_model_parallel_size"])
	assert.Equal(t, "LayerNorm", m["normalization"])
	assert.NotContains(t, m, "num_moe_experts")

	bts, err = yaml.Marshal(c)
	require.NoError(t, err)

	m = nil
	require.NoError(t, yaml.Unmarshal(bts, &m))
	assert.Equal(t, "bfloat16", m["params_dtype"])
	assert.Equal(t, "auto", m["attention_backend"])
}
