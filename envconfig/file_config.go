package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// Config represents the TOML configuration structure
type Config struct {
	Server struct {
		Host    string   `toml:"host"`
		Origins []string `toml:"origins"`
	} `toml:"server"`

	Convert struct {
		DType string `toml:"dtype"`
	} `toml:"convert"`

	Parallel struct {
		TensorParallel          int `toml:"tensor_parallel"`
		PipelineParallel        int `toml:"pipeline_parallel"`
		VirtualPipelineParallel int `toml:"virtual_pipeline_parallel"`
		ContextParallel         int `toml:"context_parallel"`
	} `toml:"parallel"`

	Logging struct {
		Debug bool `toml:"debug"`
	} `toml:"logging"`
}

var (
	configMu   sync.Mutex
	configOnce sync.Once
	config     *Config
	configPath string
)

// GetConfigPaths returns the list of possible config file paths for the current OS
func GetConfigPaths() []string {
	if p := strings.Trim(strings.TrimSpace(os.Getenv("VERL_CONFIG")), "\"'"); p != "" {
		return []string{p}
	}

	var paths []string

	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			paths = append(paths, filepath.Join(appData, "verl", "config.toml"))
		}
		if userProfile := os.Getenv("USERPROFILE"); userProfile != "" {
			paths = append(paths, filepath.Join(userProfile, ".verl", "config.toml"))
		}
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			paths = append(paths, filepath.Join(xdgConfig, "verl", "config.toml"))
		}
		home, err := os.UserHomeDir()
		if err == nil {
			paths = append(paths,
				filepath.Join(home, ".config", "verl", "config.toml"),
				filepath.Join(home, ".verl", "config.toml"),
			)
		}
	}

	return paths
}

// loadConfig loads the first available configuration file
func loadConfig() (*Config, string, error) {
	for _, path := range GetConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			var cfg Config
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, "", fmt.Errorf("error parsing config file %s: %w", path, err)
			}
			return &cfg, path, nil
		}
	}
	return nil, "", nil
}

// File returns the loaded configuration file, or nil if none was found.
func File() (*Config, string) {
	configMu.Lock()
	defer configMu.Unlock()

	configOnce.Do(func() {
		var err error
		config, configPath, err = loadConfig()
		if err != nil {
			slog.Warn("failed to load config file", "error", err)
		} else if config != nil {
			slog.Debug("loaded config file", "path", configPath)
		}
	})

	return config, configPath
}

// ReloadFile forgets the loaded configuration file so the next lookup reads it again.
func ReloadFile() {
	configMu.Lock()
	defer configMu.Unlock()

	configOnce = sync.Once{}
	config, configPath = nil, ""
}

// fileValue returns the value for a given environment variable key from the config file
func fileValue(key string) string {
	config, _ := File()
	if config == nil {
		return ""
	}

	positive := func(n int) string {
		if n > 0 {
			return strconv.Itoa(n)
		}
		return ""
	}

	switch key {
	case "VERL_HOST":
		return config.Server.Host
	case "VERL_ORIGINS":
		return strings.Join(config.Server.Origins, ",")
	case "VERL_DTYPE":
		return config.Convert.DType
	case "VERL_TENSOR_PARALLEL_SIZE":
		return positive(config.Parallel.TensorParallel)
	case "VERL_PIPELINE_PARALLEL_SIZE":
		return positive(config.Parallel.PipelineParallel)
	case "VERL_VIRTUAL_PIPELINE_PARALLEL_SIZE":
		return positive(config.Parallel.VirtualPipelineParallel)
	case "VERL_CONTEXT_PARALLEL_SIZE":
		return positive(config.Parallel.ContextParallel)
	case "VERL_DEBUG":
		if config.Logging.Debug {
			return "1"
		}
	}

	return ""
}

// GenerateExampleConfig returns a commented example TOML configuration
func GenerateExampleConfig() string {
	return `# verl configuration file
# Environment variables take precedence over values set here.

[server]
# Network binding address (default: "127.0.0.1:8976")
host = "127.0.0.1:8976"
# Allowed CORS origins
origins = ["http://localhost:3000"]

[convert]
# Parameter precision: "bf16", "fp16" or "fp32" (default: "bf16")
dtype = "bf16"

[parallel]
# Parallel degrees reported to conversions (default: 1, virtual pipeline unset)
tensor_parallel = 1
pipeline_parallel = 1
# virtual_pipeline_parallel = 2
context_parallel = 1

[logging]
# Enable debug logging (default: false)
debug = false
`
}
