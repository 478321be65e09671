package convert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/mitchellh/mapstructure"
)

// Config is the subset of a Hugging Face config.json read by conversions.
// It is read-only once decoded.
type Config struct {
	Architectures []string `mapstructure:"architectures"`
	ModelType     string   `mapstructure:"model_type"`

	NumHiddenLayers   int `mapstructure:"num_hidden_layers"`
	HiddenSize        int `mapstructure:"hidden_size"`
	NumAttentionHeads int `mapstructure:"num_attention_heads"`
	NumKeyValueHeads  int `mapstructure:"num_key_value_heads"`
	IntermediateSize  int `mapstructure:"intermediate_size"`

	AttentionDropout float64 `mapstructure:"attention_dropout"`
	HiddenDropout    float64 `mapstructure:"hidden_dropout"`
	RMSNormEPS       float64 `mapstructure:"rms_norm_eps"`
	AttentionBias    bool    `mapstructure:"attention_bias"`

	// mixture of experts
	NumExperts                   int     `mapstructure:"num_experts"`
	NumExpertsPerTok             int     `mapstructure:"num_experts_per_tok"`
	MoEIntermediateSize          int     `mapstructure:"moe_intermediate_size"`
	SharedExpertIntermediateSize int     `mapstructure:"shared_expert_intermediate_size"`
	RouterAuxLossCoef            float64 `mapstructure:"router_aux_loss_coef"`

	keys map[string]struct{}
}

// LoadConfig reads config.json from a model directory.
func LoadConfig(fsys fs.FS) (*Config, error) {
	bts, err := fs.ReadFile(fsys, "config.json")
	if err != nil {
		return nil, err
	}

	return ParseConfig(bts)
}

// ParseConfig decodes the contents of a config.json.
func ParseConfig(bts []byte) (*Config, error) {
	m, err := ParseConfigMap(bts)
	if err != nil {
		return nil, err
	}

	return ConfigFromMap(m)
}

// ParseConfigMap decodes a config.json into a generic map. Non-finite
// numbers, which Python writes as bare Infinity or NaN, become null.
func ParseConfigMap(bts []byte) (map[string]any, error) {
	d := json.NewDecoder(bytes.NewReader(replaceNonFinite(bts)))
	d.UseNumber()

	var m map[string]any
	if err := d.Decode(&m); err != nil {
		return nil, err
	}

	return m, nil
}

// ConfigFromMap decodes an already parsed config. Keys set to null are
// treated as absent.
func ConfigFromMap(m map[string]any) (*Config, error) {
	var c Config
	var md mapstructure.Metadata
	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata: &md,
		Result:   &c,
	})
	if err != nil {
		return nil, err
	}

	if err := d.Decode(m); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	c.keys = make(map[string]struct{}, len(md.Keys))
	for _, k := range md.Keys {
		c.keys[k] = struct{}{}
	}

	slog.Debug("config", "architectures", c.Architectures, "keys", len(md.Keys), "unused", len(md.Unused))
	return &c, nil
}

// Has reports whether the source config carried key.
func (c *Config) Has(key string) bool {
	_, ok := c.keys[key]
	return ok
}

// Architecture returns the declared architecture name used for dispatch.
func (c *Config) Architecture() string {
	if len(c.Architectures) > 0 {
		return c.Architectures[0]
	}
	return ""
}

// require returns a MissingFieldError for the first key absent from c.
func (c *Config) require(keys ...string) error {
	for _, k := range keys {
		if !c.Has(k) {
			return &MissingFieldError{Architecture: c.Architecture(), Field: k}
		}
	}
	return nil
}
