package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BearBiscuit05/verl/api"
	"github.com/BearBiscuit05/verl/envconfig"
	"github.com/BearBiscuit05/verl/version"
)

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-37s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

func versionHandler(cmd *cobra.Command, _ []string) {
	w := cmd.OutOrStdout()

	if remote, _ := cmd.Flags().GetBool("remote"); remote {
		var serverVersion string
		client, err := api.ClientFromEnvironment()
		if err == nil {
			serverVersion, err = client.Version(cmd.Context())
		}

		if err != nil {
			fmt.Fprintln(w, "Warning: could not connect to a running verl server")
		}

		if serverVersion != "" {
			fmt.Fprintf(w, "verl server version is %s\n", serverVersion)
		}
	}

	fmt.Fprintf(w, "verl version is %s\n", version.Version)
}

func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "verl",
		Short:         "Map pretrained model configs to transformer execution configs",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
	rootCmd.PersistentFlags().Bool("remote", false, "Use a running verl server at VERL_HOST")

	convertCmd := &cobra.Command{
		Use:   "convert MODEL_DIR...",
		Short: "Convert model configs to transformer configs",
		Long: `Convert reads config.json from each model directory and prints the
transformer config the training runtime builds the model from.`,
		Args: cobra.MinimumNArgs(1),
		RunE: ConvertHandler,
	}

	convertCmd.Flags().String("dtype", "", "Parameter precision, e.g. bf16, fp16 or fp32 (default bf16)")
	convertCmd.Flags().Int("tp", 0, "Tensor parallel size")
	convertCmd.Flags().Int("pp", 0, "Pipeline parallel size")
	convertCmd.Flags().Int("vpp", 0, "Virtual pipeline parallel size")
	convertCmd.Flags().Int("cp", 0, "Context parallel size")
	convertCmd.Flags().StringP("format", "f", "", "Output format: json, yaml or table (default table on a terminal, json otherwise)")
	convertCmd.Flags().Int("parallel", 0, "Maximum number of models converted at once (default number of CPUs)")

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List model architectures",
		Args:    cobra.NoArgs,
		RunE:    ListHandler,
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE:  ConfigHandler,
	}

	configCmd.Flags().Bool("example", false, "Print an example configuration file")

	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the conversion server",
		Args:    cobra.ExactArgs(0),
		RunE:    RunServer,
	}

	envVars := envconfig.AsMap()

	parallelEnvs := []envconfig.EnvVar{
		envVars["VERL_TENSOR_PARALLEL_SIZE"],
		envVars["VERL_PIPELINE_PARALLEL_SIZE"],
		envVars["VERL_VIRTUAL_PIPELINE_PARALLEL_SIZE"],
		envVars["VERL_CONTEXT_PARALLEL_SIZE"],
	}

	for _, cmd := range []*cobra.Command{convertCmd, listCmd, configCmd, serveCmd} {
		switch cmd {
		case convertCmd:
			appendEnvDocs(cmd, append([]envconfig.EnvVar{
				envVars["VERL_DEBUG"],
				envVars["VERL_HOST"],
				envVars["VERL_DTYPE"],
				envVars["VERL_CONFIG"],
			}, parallelEnvs...))
		case serveCmd:
			appendEnvDocs(cmd, append([]envconfig.EnvVar{
				envVars["VERL_DEBUG"],
				envVars["VERL_HOST"],
				envVars["VERL_ORIGINS"],
				envVars["VERL_DTYPE"],
				envVars["VERL_CONFIG"],
			}, parallelEnvs...))
		case configCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["VERL_CONFIG"]})
		default:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["VERL_HOST"]})
		}
	}

	rootCmd.AddCommand(
		convertCmd,
		listCmd,
		configCmd,
		serveCmd,
	)

	return rootCmd
}
