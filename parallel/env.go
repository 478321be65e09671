package parallel

import (
	"github.com/BearBiscuit05/verl/envconfig"
)

type env struct{}

// FromEnv reports the topology configured through envconfig. Unset degrees
// default to 1 and an unset virtual pipeline size means not configured.
func FromEnv() Reporter {
	return env{}
}

func (env) Topology() (Topology, error) {
	var t Topology
	var err error

	for _, d := range []struct {
		key   string
		value func() string
		dst   *int
	}{
		{"VERL_TENSOR_PARALLEL_SIZE", envconfig.TensorParallelSize, &t.TensorParallel},
		{"VERL_PIPELINE_PARALLEL_SIZE", envconfig.PipelineParallelSize, &t.PipelineParallel},
		{"VERL_CONTEXT_PARALLEL_SIZE", envconfig.ContextParallelSize, &t.ContextParallel},
	} {
		if *d.dst, _, err = envconfig.Size(d.key, d.value(), 1); err != nil {
			return Topology{}, err
		}
	}

	vpp, ok, err := envconfig.Size("VERL_VIRTUAL_PIPELINE_PARALLEL_SIZE", envconfig.VirtualPipelineParallelSize(), 0)
	if err != nil {
		return Topology{}, err
	}
	if ok {
		t.VirtualPipelineParallel = &vpp
	}

	return t, nil
}
