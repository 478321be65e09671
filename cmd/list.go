package cmd

import (
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/BearBiscuit05/verl/api"
	"github.com/BearBiscuit05/verl/convert"
)

func ListHandler(cmd *cobra.Command, args []string) error {
	var archs []api.ArchitectureResponse

	if remote, _ := cmd.Flags().GetBool("remote"); remote {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return err
		}

		resp, err := client.Architectures(cmd.Context())
		if err != nil {
			return err
		}

		archs = resp.Architectures
	} else {
		for _, a := range convert.Architectures() {
			archs = append(archs, api.ArchitectureResponse{
				Name:      a.Name,
				Family:    string(a.Family),
				Supported: a.Supported,
			})
		}
	}

	var data [][]string
	for _, a := range archs {
		supported := "no"
		if a.Supported {
			supported = "yes"
		}
		data = append(data, []string{a.Name, a.Family, supported})
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"ARCHITECTURE", "FAMILY", "SUPPORTED"})
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
