package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"txdb/pkg/db"
)

var errNotFound = errors.New("not found")

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <table> <key>",
		Short: "Print the value stored under a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.store.Get(db.Table(args[0]), []byte(args[1]))
			if err != nil {
				return err
			}
			if v == nil {
				return fmt.Errorf("%s/%s: %w", args[0], args[1], errNotFound)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", v)
			return err
		},
	}
}

func newPutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "put <table> <key> <value>",
		Short: "Store a value under a key",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.Set(db.Table(args[0]), []byte(args[1]), []byte(args[2])); err != nil {
				return err
			}
			logger.Debug("put", "table", args[0], "key", args[1], "bytes", len(args[2]))
			return nil
		},
	}
}

func newDelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "del <table> <key>...",
		Short: "Delete keys from a table in one transaction",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			table := db.Table(args[0])
			werr, err := db.Update(a.database(), func(tx db.DbTxMut) error {
				for _, k := range args[1:] {
					if err := tx.Delete(table, []byte(k)); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			return werr
		},
	}
}

func newScanCmd(a *app) *cobra.Command {
	var (
		from  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "scan <table>",
		Short: "Print the entries of a table in key order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var start []byte
			if from != "" {
				start = []byte(from)
			}
			out := cmd.OutOrStdout()
			n := 0
			stop := errors.New("limit reached")
			err := a.store.ForEach(db.Table(args[0]), start, func(k, v []byte) error {
				if limit > 0 && n >= limit {
					return stop
				}
				n++
				_, err := fmt.Fprintf(out, "%s\t%s\n", k, v)
				return err
			})
			if errors.Is(err, stop) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start at the first key >= this one")
	cmd.Flags().IntVar(&limit, "limit", 0, "print at most this many entries (0 for all)")
	return cmd
}
