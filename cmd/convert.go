package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/BearBiscuit05/verl/api"
	"github.com/BearBiscuit05/verl/convert"
	"github.com/BearBiscuit05/verl/envconfig"
	"github.com/BearBiscuit05/verl/format"
	"github.com/BearBiscuit05/verl/mcore"
	"github.com/BearBiscuit05/verl/ml"
	"github.com/BearBiscuit05/verl/parallel"
)

const (
	formatJSON  = "json"
	formatYAML  = "yaml"
	formatTable = "table"
)

func defaultFormat(w io.Writer) string {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return formatTable
	}
	return formatJSON
}

// topologyFlags overlays --tp, --pp, --vpp and --cp on the environment.
// ok is false when none of them were given.
func topologyFlags(cmd *cobra.Command) (r parallel.Reporter, ok bool) {
	flags := cmd.Flags()
	for _, name := range []string{"tp", "pp", "vpp", "cp"} {
		ok = ok || flags.Changed(name)
	}

	return parallel.ReporterFunc(func() (parallel.Topology, error) {
		t, err := parallel.FromEnv().Topology()
		if err != nil {
			return parallel.Topology{}, err
		}

		for _, f := range []struct {
			name string
			dst  *int
		}{
			{"tp", &t.TensorParallel},
			{"pp", &t.PipelineParallel},
			{"cp", &t.ContextParallel},
		} {
			if flags.Changed(f.name) {
				if *f.dst, err = flags.GetInt(f.name); err != nil {
					return parallel.Topology{}, err
				}
			}
		}

		if flags.Changed("vpp") {
			vpp, err := flags.GetInt("vpp")
			if err != nil {
				return parallel.Topology{}, err
			}
			t.VirtualPipelineParallel = &vpp
		}

		return parallel.Static(t).Topology()
	}), ok
}

func ConvertHandler(cmd *cobra.Command, args []string) error {
	output, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}

	if output == "" {
		output = defaultFormat(cmd.OutOrStdout())
	}

	switch output {
	case formatJSON, formatYAML, formatTable:
	default:
		return fmt.Errorf("unknown format %q, expected json, yaml or table", output)
	}

	name, err := cmd.Flags().GetString("dtype")
	if err != nil {
		return err
	}

	remote, err := cmd.Flags().GetBool("remote")
	if err != nil {
		return err
	}

	limit, err := cmd.Flags().GetInt("parallel")
	if err != nil {
		return err
	}

	if limit < 1 {
		limit = runtime.NumCPU()
	}

	reporter, topologyChanged := topologyFlags(cmd)

	results := make([]*mcore.TransformerConfig, len(args))

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(limit)

	if remote {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return err
		}

		req := api.ConvertRequest{DType: name}
		if topologyChanged {
			t, err := reporter.Topology()
			if err != nil {
				return err
			}
			req.Topology = &t
		}

		for i, dir := range args {
			g.Go(func() error {
				bts, err := os.ReadFile(filepath.Join(dir, "config.json"))
				if err != nil {
					return err
				}

				req := req
				if req.Config, err = convert.ParseConfigMap(bts); err != nil {
					return fmt.Errorf("%s: %w", dir, err)
				}

				resp, err := client.Convert(ctx, &req)
				if err != nil {
					return fmt.Errorf("%s: %w", dir, err)
				}

				results[i] = resp.Config
				return nil
			})
		}
	} else {
		if name == "" {
			name = envconfig.DType()
		}
		if name == "" {
			name = ml.DTypeBF16.String()
		}

		dtype, err := ml.ParseDType(name)
		if err != nil {
			return err
		}

		for i, dir := range args {
			g.Go(func() error {
				tc, err := convert.ConvertModel(os.DirFS(dir), dtype, reporter)
				if err != nil {
					return fmt.Errorf("%s: %w", dir, err)
				}

				results[i] = tc
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	switch output {
	case formatYAML:
		e := yaml.NewEncoder(w)
		e.SetIndent(2)
		for _, tc := range results {
			if err := e.Encode(tc); err != nil {
				return err
			}
		}
		return e.Close()
	case formatTable:
		return writeTable(w, args, results)
	default:
		e := json.NewEncoder(w)
		e.SetIndent("", "  ")
		for _, tc := range results {
			if err := e.Encode(tc); err != nil {
				return err
			}
		}
		return nil
	}
}

func writeTable(w io.Writer, dirs []string, results []*mcore.TransformerConfig) error {
	var data [][]string
	for i, tc := range results {
		experts := "-"
		if tc.IsMoE() {
			experts = fmt.Sprintf("%d (top %d)", tc.NumMoEExperts, tc.MoERouterTopK)
		}

		params := tc.NumParameters()
		data = append(data, []string{
			filepath.Base(filepath.Clean(dirs[i])),
			strconv.Itoa(tc.NumLayers),
			strconv.Itoa(tc.HiddenSize),
			experts,
			format.Parameters(params),
			format.Bytes(params * tc.ParamsDType.Size()),
			tc.ParamsDType.String(),
			layout(tc),
		})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"MODEL", "LAYERS", "HIDDEN", "EXPERTS", "PARAMETERS", "SIZE", "DTYPE", "PARALLEL"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	return nil
}

func layout(tc *mcore.TransformerConfig) string {
	parts := []string{
		"tp" + strconv.Itoa(tc.TensorModelParallelSize),
		"pp" + strconv.Itoa(tc.PipelineModelParallelSize),
	}
	if vpp := tc.VirtualPipelineModelParallelSize; vpp != nil {
		parts = append(parts, "vpp"+strconv.Itoa(*vpp))
	}
	parts = append(parts, "cp"+strconv.Itoa(tc.ContextParallelSize))

	return strings.Join(parts, " ")
}
