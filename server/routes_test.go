package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BearBiscuit05/verl/api"
	"github.com/BearBiscuit05/verl/envconfig"
	"github.com/BearBiscuit05/verl/mcore"
	"github.com/BearBiscuit05/verl/ml"
	"github.com/BearBiscuit05/verl/parallel"
	"github.com/BearBiscuit05/verl/version"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("VERL_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	t.Setenv("VERL_DTYPE", "")
	envconfig.ReloadFile()
	t.Cleanup(envconfig.ReloadFile)
}

func llama() map[string]any {
	return map[string]any{
		"architectures":       []string{"LlamaForCausalLM"},
		"num_hidden_layers":   32,
		"hidden_size":         4096,
		"num_attention_heads": 32,
		"num_key_value_heads": 8,
		"intermediate_size":   14336,
		"attention_dropout":   0.0,
	}
}

func newServer(t *testing.T, topology parallel.Topology) http.Handler {
	t.Helper()
	isolate(t)
	gin.SetMode(gin.TestMode)

	return New(parallel.Static(topology)).GenerateRoutes()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	switch body := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(body)
	default:
		bts, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(bts)
	}

	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRoutes(t *testing.T) {
	h := newServer(t, parallel.Topology{TensorParallel: 4, PipelineParallel: 1, ContextParallel: 1})

	t.Run("root", func(t *testing.T) {
		w := doJSON(t, h, http.MethodGet, "/", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "verl is running", w.Body.String())
	})

	t.Run("version", func(t *testing.T) {
		w := doJSON(t, h, http.MethodGet, "/api/version", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, version.Version, resp["version"])
	})

	t.Run("architectures", func(t *testing.T) {
		w := doJSON(t, h, http.MethodGet, "/api/architectures", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp api.ListArchitecturesResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Architectures, 6)
		assert.Contains(t, resp.Architectures, api.ArchitectureResponse{Name: "Qwen2MoeForCausalLM", Family: "qwen2moe", Supported: true})
		assert.Contains(t, resp.Architectures, api.ArchitectureResponse{Name: "Llama4ForConditionalGeneration", Family: "llama4"})
	})

	t.Run("method not allowed", func(t *testing.T) {
		w := doJSON(t, h, http.MethodGet, "/api/convert", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestConvertHandler(t *testing.T) {
	h := newServer(t, parallel.Topology{TensorParallel: 4, PipelineParallel: 1, ContextParallel: 1})

	t.Run("server topology", func(t *testing.T) {
		w := doJSON(t, h, http.MethodPost, "/api/convert", api.ConvertRequest{Config: llama()})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp api.ConvertResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

		assert.Equal(t, "LlamaForCausalLM", resp.Architecture)
		assert.Equal(t, "dense", resp.Family)

		c := resp.Config
		require.NotNil(t, c)
		assert.Equal(t, 4, c.TensorModelParallelSize)
		assert.True(t, c.SequenceParallel)
		assert.True(t, c.BF16, "dtype defaults to bfloat16")
		assert.Equal(t, ml.DTypeBF16, c.ParamsDType)
		assert.Equal(t, mcore.DispatcherAllToAll, c.MoETokenDispatcherType)
		assert.Equal(t, c.NumParameters(), resp.Parameters)
	})

	t.Run("request topology", func(t *testing.T) {
		vpp := 2
		w := doJSON(t, h, http.MethodPost, "/api/convert", api.ConvertRequest{
			Config: llama(),
			DType:  "fp16",
			Topology: &parallel.Topology{
				TensorParallel:          1,
				PipelineParallel:        4,
				VirtualPipelineParallel: &vpp,
				ContextParallel:         2,
			},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp api.ConvertResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

		c := resp.Config
		assert.Equal(t, 1, c.TensorModelParallelSize)
		assert.False(t, c.SequenceParallel)
		assert.Equal(t, 4, c.PipelineModelParallelSize)
		require.NotNil(t, c.VirtualPipelineModelParallelSize)
		assert.Equal(t, 2, *c.VirtualPipelineModelParallelSize)
		assert.True(t, c.OverlapP2PComm)
		assert.Equal(t, 2, c.ContextParallelSize)
		assert.False(t, c.BF16)
		assert.Equal(t, ml.DTypeF16, c.PipelineDType)
	})

	t.Run("environment dtype", func(t *testing.T) {
		t.Setenv("VERL_DTYPE", "float32")

		w := doJSON(t, h, http.MethodPost, "/api/convert", api.ConvertRequest{Config: llama()})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp api.ConvertResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, ml.DTypeF32, resp.Config.ParamsDType)
	})

	missing := llama()
	delete(missing, "num_key_value_heads")

	unknown := llama()
	unknown["architectures"] = []string{"MistralForCausalLM"}

	unsupported := llama()
	unsupported["architectures"] = []string{"DeepseekV3ForCausalLM"}

	cases := []struct {
		name   string
		body   any
		status int
		error  string
	}{
		{"malformed", `{"config":`, http.StatusBadRequest, ""},
		{"no config", api.ConvertRequest{DType: "bf16"}, http.StatusBadRequest, "config is required"},
		{"bad dtype", api.ConvertRequest{Config: llama(), DType: "int8"}, http.StatusBadRequest, `unknown dtype "int8"`},
		{"bad field type", api.ConvertRequest{Config: map[string]any{"architectures": []string{"LlamaForCausalLM"}, "hidden_size": "wide"}}, http.StatusBadRequest, ""},
		{"missing field", api.ConvertRequest{Config: missing}, http.StatusBadRequest, `LlamaForCausalLM config has no attribute "num_key_value_heads"`},
		{"invalid topology", api.ConvertRequest{Config: llama(), Topology: &parallel.Topology{TensorParallel: 0, PipelineParallel: 1, ContextParallel: 1}}, http.StatusBadRequest, "invalid topology: tensor parallel size must be positive, got 0"},
		{"unknown", api.ConvertRequest{Config: unknown}, http.StatusNotFound, `unknown architecture "MistralForCausalLM"`},
		{"no architectures", api.ConvertRequest{Config: map[string]any{"hidden_size": 64}}, http.StatusNotFound, "unknown architecture"},
		{"unsupported", api.ConvertRequest{Config: unsupported}, http.StatusUnprocessableEntity, "DeepseekV3ForCausalLM is not supported yet"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, h, http.MethodPost, "/api/convert", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())

			var resp struct {
				Error string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.NotEmpty(t, resp.Error)
			if tt.error != "" {
				assert.Equal(t, tt.error, resp.Error)
			}
		})
	}
}

func TestConvertHandlerTopologyError(t *testing.T) {
	isolate(t)
	gin.SetMode(gin.TestMode)
	t.Setenv("VERL_TENSOR_PARALLEL_SIZE", "two")

	w := doJSON(t, New(parallel.FromEnv()).GenerateRoutes(), http.MethodPost, "/api/convert", api.ConvertRequest{Config: llama()})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestRequestID(t *testing.T) {
	h := newServer(t, parallel.Single())

	t.Run("generated", func(t *testing.T) {
		w := doJSON(t, h, http.MethodGet, "/api/version", nil)
		_, err := uuid.Parse(w.Header().Get(requestIDHeader))
		assert.NoError(t, err)
	})

	t.Run("propagated", func(t *testing.T) {
		id := uuid.NewString()

		req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
		req.Header.Set(requestIDHeader, id)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, id, w.Header().Get(requestIDHeader))
	})

	t.Run("replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
		req.Header.Set(requestIDHeader, "not-a-uuid")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.NotEqual(t, "not-a-uuid", w.Header().Get(requestIDHeader))
	})
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}
