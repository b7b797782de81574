package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dukerupert/eventsync/internal/store"
)

func newVenuesCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "venues",
		Short: "Manage the venue directory",
	}
	cmd.AddCommand(newVenuesImportCmd(g), newVenuesListCmd(g))
	return cmd
}

func newVenuesImportCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Upsert venues and their aliases from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.load(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.openDB(); err != nil {
				return err
			}
			n, err := importVenues(store.NewVenueStore(a.db), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d venues\n", n)
			return nil
		},
	}
}

func newVenuesListCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the venue directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.load(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.openDB(); err != nil {
				return err
			}
			venues, err := store.NewVenueStore(a.db).List()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tALIASES")
			for _, v := range venues {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", v.ID, v.Name, len(v.Aliases))
			}
			return tw.Flush()
		},
	}
}
