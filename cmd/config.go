package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/BearBiscuit05/verl/envconfig"
)

func ConfigHandler(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()

	if example, _ := cmd.Flags().GetBool("example"); example {
		fmt.Fprint(w, envconfig.GenerateExampleConfig())
		return nil
	}

	if _, path := envconfig.File(); path != "" {
		fmt.Fprintf(w, "Config file: %s\n\n", path)
	} else {
		fmt.Fprintf(w, "No config file found, searched: %s\n\n", strings.Join(envconfig.GetConfigPaths(), ", "))
	}

	vars := envconfig.AsMap()
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	slices.Sort(names)

	var data [][]string
	for _, name := range names {
		v := vars[name]
		data = append(data, []string{v.Name, fmt.Sprintf("%v", v.Value)})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"NAME", "VALUE"})
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
