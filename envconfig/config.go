package envconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Host returns the scheme and host the server listens on. Host can be
// configured via the VERL_HOST environment variable.
// Default is scheme "http" and host "127.0.0.1:8976"
func Host() *url.URL {
	defaultPort := "8976"

	s := strings.TrimSpace(Var("VERL_HOST"))
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	hostport, path, _ := strings.Cut(hostport, "/")
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   path,
	}
}

// AllowedOrigins returns a list of allowed origins. AllowedOrigins can be configured via the VERL_ORIGINS environment variable.
func AllowedOrigins() (origins []string) {
	if s := Var("VERL_ORIGINS"); s != "" {
		origins = strings.Split(s, ",")
	}

	for _, origin := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		origins = append(origins,
			fmt.Sprintf("http://%s", origin),
			fmt.Sprintf("https://%s", origin),
			fmt.Sprintf("http://%s", net.JoinHostPort(origin, "*")),
			fmt.Sprintf("https://%s", net.JoinHostPort(origin, "*")),
		)
	}

	return origins
}

// LogLevel returns the log level for the application.
// Values are 0 or false INFO (Default), 1 or true DEBUG, 2 TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("VERL_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

var (
	// DType is the default parameter precision for conversions.
	DType = String("VERL_DTYPE")
	// TensorParallelSize is the tensor parallel degree of the job.
	TensorParallelSize = String("VERL_TENSOR_PARALLEL_SIZE")
	// PipelineParallelSize is the pipeline parallel degree of the job.
	PipelineParallelSize = String("VERL_PIPELINE_PARALLEL_SIZE")
	// VirtualPipelineParallelSize is the number of virtual stages per pipeline stage. Unset means not configured.
	VirtualPipelineParallelSize = String("VERL_VIRTUAL_PIPELINE_PARALLEL_SIZE")
	// ContextParallelSize is the context parallel degree of the job.
	ContextParallelSize = String("VERL_CONTEXT_PARALLEL_SIZE")
)

var ErrInvalidSize = errors.New("invalid parallel size")

// Size parses a parallel degree read from the environment. Empty values
// return def and ok=false.
func Size(key, value string, def int) (n int, ok bool, err error) {
	if value == "" {
		return def, false, nil
	}

	n, err = strconv.Atoi(value)
	if err != nil || n < 1 {
		return 0, false, fmt.Errorf("%w: %s=%q", ErrInvalidSize, key, value)
	}

	return n, true, nil
}

func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"VERL_DEBUG":                          {"VERL_DEBUG", LogLevel(), "Show additional debug information (e.g. VERL_DEBUG=1)"},
		"VERL_HOST":                           {"VERL_HOST", Host(), "IP Address for the conversion server (default 127.0.0.1:8976)"},
		"VERL_ORIGINS":                        {"VERL_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins"},
		"VERL_DTYPE":                          {"VERL_DTYPE", DType(), "Parameter precision used when none is requested (default bf16)"},
		"VERL_TENSOR_PARALLEL_SIZE":           {"VERL_TENSOR_PARALLEL_SIZE", TensorParallelSize(), "Tensor parallel degree (default 1)"},
		"VERL_PIPELINE_PARALLEL_SIZE":         {"VERL_PIPELINE_PARALLEL_SIZE", PipelineParallelSize(), "Pipeline parallel degree (default 1)"},
		"VERL_VIRTUAL_PIPELINE_PARALLEL_SIZE": {"VERL_VIRTUAL_PIPELINE_PARALLEL_SIZE", VirtualPipelineParallelSize(), "Virtual pipeline stages per pipeline stage (default unset)"},
		"VERL_CONTEXT_PARALLEL_SIZE":          {"VERL_CONTEXT_PARALLEL_SIZE", ContextParallelSize(), "Context parallel degree (default 1)"},
		"VERL_CONFIG":                         {"VERL_CONFIG", os.Getenv("VERL_CONFIG"), "Path to a TOML configuration file"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// Var returns an environment variable stripped of leading and trailing quotes or spaces.
// Values from the configuration file are used when the variable is unset.
func Var(key string) string {
	if s := strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'"); s != "" {
		return s
	}

	return fileValue(key)
}
