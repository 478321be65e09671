package convert

import (
	"slices"

	"github.com/BearBiscuit05/verl/logutil"
	"github.com/BearBiscuit05/verl/mcore"
	"github.com/BearBiscuit05/verl/ml"
	"github.com/BearBiscuit05/verl/parallel"
)

var denseKeys = []string{
	"num_hidden_layers",
	"hidden_size",
	"num_attention_heads",
	"num_key_value_heads",
	"intermediate_size",
	"attention_dropout",
}

// ConvertDense converts decoder-only dense models such as LlamaForCausalLM
// and Qwen2ForCausalLM.
func ConvertDense(c *Config, dtype ml.DType, t parallel.Topology) (*mcore.TransformerConfig, error) {
	if err := c.require(denseKeys...); err != nil {
		return nil, err
	}

	tc := newDecoderConfig(c, dtype, t)
	tc.UseCPUInitialization = true
	tc.MoETokenDispatcherType = mcore.DispatcherAllToAll

	// Qwen2 always has bias on the qkv projection
	tc.AddQKVBias = slices.Contains(c.Architectures, "Qwen2ForCausalLM") || c.AttentionBias
	return tc, nil
}

// newDecoderConfig sets the fields shared by every supported decoder-only
// family: shape, precision, parallelism and the fused kernels they all use.
func newDecoderConfig(c *Config, dtype ml.DType, t parallel.Topology) *mcore.TransformerConfig {
	tc := mcore.NewTransformerConfig()

	tc.NumLayers = c.NumHiddenLayers
	tc.HiddenSize = c.HiddenSize
	tc.NumAttentionHeads = c.NumAttentionHeads
	tc.NumQueryGroups = c.NumKeyValueHeads
	tc.FFNHiddenSize = c.IntermediateSize

	tc.ActivationFunc = mcore.SiLU
	tc.GatedLinearUnit = true
	tc.Normalization = mcore.RMSNorm
	tc.AddBiasLinear = false

	tc.AttentionDropout = c.AttentionDropout
	// zero when absent
	tc.HiddenDropout = c.HiddenDropout

	tc.ParamsDType = dtype
	tc.PipelineDType = dtype
	tc.BF16 = dtype == ml.DTypeBF16

	tc.TensorModelParallelSize = t.TensorParallel
	tc.PipelineModelParallelSize = t.PipelineParallel
	if t.VirtualPipelineParallel != nil {
		vpp := *t.VirtualPipelineParallel
		tc.VirtualPipelineModelParallelSize = &vpp
	}
	tc.ContextParallelSize = t.ContextParallel
	tc.SequenceParallel = t.TensorParallel > 1
	tc.OverlapP2PComm = t.VirtualPipelineEnabled()
	tc.BatchP2PComm = false

	tc.VariableSeqLengths = true
	tc.MaskedSoftmaxFusion = true
	tc.AttentionBackend = mcore.AttnBackendFlash

	logutil.Trace("parallel flags", "sequence_parallel", tc.SequenceParallel, "overlap_p2p_comm", tc.OverlapP2PComm)
	return tc
}
