package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:          "eventsync",
		Short:        "Aggregate downtown and base events into one calendar",
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	g.register(cmd.PersistentFlags())
	cmd.AddCommand(
		newSyncCmd(g),
		newServeCmd(g),
		newNotifyCmd(g),
		newVenuesCmd(g),
		newVersionCmd(),
	)
	return cmd
}
