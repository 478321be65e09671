package convert

import (
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/BearBiscuit05/verl/mcore"
	"github.com/BearBiscuit05/verl/ml"
	"github.com/BearBiscuit05/verl/parallel"
)

// ConverterFunc maps a source config to a transformer config. It either
// returns a complete config or an error, never both.
type ConverterFunc func(*Config, ml.DType, parallel.Topology) (*mcore.TransformerConfig, error)

type Family string

const (
	FamilyDense      Family = "dense"
	FamilyQwen2MoE   Family = "qwen2moe"
	FamilyDeepseekV3 Family = "deepseekv3"
	FamilyQwen25VL   Family = "qwen2.5-vl"
	FamilyLlama4     Family = "llama4"
)

type Architecture struct {
	Name      string `json:"name"`
	Family    Family `json:"family"`
	Supported bool   `json:"supported"`

	convert ConverterFunc
}

var architectures = map[string]Architecture{
	"LlamaForCausalLM":                   {Family: FamilyDense, Supported: true, convert: ConvertDense},
	"Qwen2ForCausalLM":                   {Family: FamilyDense, Supported: true, convert: ConvertDense},
	"Qwen2MoeForCausalLM":                {Family: FamilyQwen2MoE, Supported: true, convert: ConvertQwen2MoE},
	"DeepseekV3ForCausalLM":              {Family: FamilyDeepseekV3, convert: ConvertDeepseekV3},
	"Qwen2_5_VLForConditionalGeneration": {Family: FamilyQwen25VL, convert: ConvertQwen25VL},
	"Llama4ForConditionalGeneration":     {Family: FamilyLlama4, convert: ConvertLlama4},
}

// Lookup returns the table entry for an architecture name.
func Lookup(name string) (Architecture, error) {
	a, ok := architectures[name]
	if !ok {
		if name == "" {
			return Architecture{}, ErrUnknownArchitecture
		}
		return Architecture{}, fmt.Errorf("%w %q", ErrUnknownArchitecture, name)
	}

	a.Name = name
	return a, nil
}

// Architectures lists every recognized architecture sorted by name.
func Architectures() []Architecture {
	s := make([]Architecture, 0, len(architectures))
	for name, a := range architectures {
		a.Name = name
		s = append(s, a)
	}

	sort.Slice(s, func(i, j int) bool {
		return s[i].Name < s[j].Name
	})

	return s
}

// Convert selects the converter for c's declared architecture and runs it.
func Convert(c *Config, dtype ml.DType, t parallel.Topology) (*mcore.TransformerConfig, error) {
	if _, err := ml.ParseDType(dtype.String()); err != nil {
		return nil, err
	}

	a, err := Lookup(c.Architecture())
	if err != nil {
		return nil, err
	}

	slog.Debug("converting", "architecture", a.Name, "family", a.Family, "dtype", dtype, "topology", t)
	return a.convert(c, dtype, t)
}

// ConvertModel reads config.json from a model directory and converts it
// using the topology reported by r.
func ConvertModel(fsys fs.FS, dtype ml.DType, r parallel.Reporter) (*mcore.TransformerConfig, error) {
	c, err := LoadConfig(fsys)
	if err != nil {
		return nil, err
	}

	a, err := Lookup(c.Architecture())
	if err != nil {
		return nil, err
	}

	// stubbed families fail without consulting the topology
	if !a.Supported {
		return a.convert(c, dtype, parallel.Topology{})
	}

	t, err := r.Topology()
	if err != nil {
		return nil, err
	}

	return Convert(c, dtype, t)
}
