package convert

import (
	"github.com/BearBiscuit05/verl/mcore"
	"github.com/BearBiscuit05/verl/ml"
	"github.com/BearBiscuit05/verl/parallel"
)

func ConvertDeepseekV3(*Config, ml.DType, parallel.Topology) (*mcore.TransformerConfig, error) {
	return nil, &UnsupportedArchitectureError{Architecture: "DeepseekV3ForCausalLM"}
}

func ConvertQwen25VL(*Config, ml.DType, parallel.Topology) (*mcore.TransformerConfig, error) {
	return nil, &UnsupportedArchitectureError{Architecture: "Qwen2_5_VLForConditionalGeneration"}
}

func ConvertLlama4(*Config, ml.DType, parallel.Topology) (*mcore.TransformerConfig, error) {
	return nil, &UnsupportedArchitectureError{Architecture: "Llama4ForConditionalGeneration"}
}
