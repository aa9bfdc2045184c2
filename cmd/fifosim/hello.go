package main

import (
	"github.com/sarchlab/fifosim/perfmodel"
	"github.com/spf13/cobra"
)

var helloCmd = &cobra.Command{
	Use:   "hello [name]",
	Short: "Run a one-process simulation that prints a greeting",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := "hello"
		if len(args) > 0 {
			name = args[0]
		}

		return perfmodel.RunHello(name, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(helloCmd)
}
