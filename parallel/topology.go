// Package parallel describes the device topology a model is split across.
package parallel

import (
	"errors"
	"fmt"
	"log/slog"
)

// Topology holds the parallel degrees of the current job. A nil
// VirtualPipelineParallel means virtual pipelining is not configured.
type Topology struct {
	TensorParallel          int  `json:"tensor_parallel" toml:"tensor_parallel"`
	PipelineParallel        int  `json:"pipeline_parallel" toml:"pipeline_parallel"`
	VirtualPipelineParallel *int `json:"virtual_pipeline_parallel,omitempty" toml:"virtual_pipeline_parallel"`
	ContextParallel         int  `json:"context_parallel" toml:"context_parallel"`
}

var ErrInvalidTopology = errors.New("invalid topology")

// Single is the topology of a job running on one device.
func Single() Topology {
	return Topology{TensorParallel: 1, PipelineParallel: 1, ContextParallel: 1}
}

// Validate checks that every configured degree is positive.
func (t Topology) Validate() error {
	for _, d := range []struct {
		name  string
		value int
	}{
		{"tensor parallel", t.TensorParallel},
		{"pipeline parallel", t.PipelineParallel},
		{"context parallel", t.ContextParallel},
	} {
		if d.value < 1 {
			return fmt.Errorf("%w: %s size must be positive, got %d", ErrInvalidTopology, d.name, d.value)
		}
	}

	if t.VirtualPipelineParallel != nil && *t.VirtualPipelineParallel < 1 {
		return fmt.Errorf("%w: virtual pipeline parallel size must be positive, got %d", ErrInvalidTopology, *t.VirtualPipelineParallel)
	}

	return nil
}

// VirtualPipelineEnabled reports whether pipeline stages are subdivided.
func (t Topology) VirtualPipelineEnabled() bool {
	return t.VirtualPipelineParallel != nil && *t.VirtualPipelineParallel > 1
}

func (t Topology) WorldSize() int {
	return t.TensorParallel * t.PipelineParallel * t.ContextParallel
}

func (t Topology) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("tp", t.TensorParallel),
		slog.Int("pp", t.PipelineParallel),
		slog.Int("cp", t.ContextParallel),
	}
	if t.VirtualPipelineParallel != nil {
		attrs = append(attrs, slog.Int("vpp", *t.VirtualPipelineParallel))
	}
	return slog.GroupValue(attrs...)
}

// Reporter reports the topology of the running job.
type Reporter interface {
	Topology() (Topology, error)
}

// Static reports a fixed topology.
type Static Topology

func (s Static) Topology() (Topology, error) {
	t := Topology(s)
	if err := t.Validate(); err != nil {
		return Topology{}, err
	}
	return t, nil
}

// ReporterFunc adapts a function to a Reporter.
type ReporterFunc func() (Topology, error)

func (f ReporterFunc) Topology() (Topology, error) {
	return f()
}
