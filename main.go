package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/BearBiscuit05/verl/cmd"
)

func main() {
	cobra.CheckErr(cmd.NewCLI().ExecuteContext(context.Background()))
}
