package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List tables and their entry counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			infos, err := a.store.Tables()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, ti := range infos {
				fmt.Fprintf(w, "%s\t%d\n", ti.Name, ti.Entries)
			}
			return w.Flush()
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the open database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			infos, err := a.store.Tables()
			if err != nil {
				return err
			}
			entries := 0
			for _, ti := range infos {
				entries += ti.Entries
			}
			d := a.cfg.Database
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "backend:\t%s\n", d.Backend)
			if d.Backend != "memory" {
				fmt.Fprintf(w, "path:\t%s\n", d.Path)
			}
			fmt.Fprintf(w, "read-only:\t%t\n", d.ReadOnly)
			fmt.Fprintf(w, "tables:\t%d\n", len(infos))
			fmt.Fprintf(w, "entries:\t%d\n", entries)
			return w.Flush()
		},
	}
}
