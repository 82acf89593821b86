package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"txdb/internal/backend"
	"txdb/internal/config"
	"txdb/pkg/db"
	"txdb/pkg/db/dump"
)

func tableArgs(args []string) []db.Table {
	tables := make([]db.Table, len(args))
	for i, a := range args {
		tables[i] = db.Table(a)
	}
	return tables
}

func newDumpCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "dump [table]...",
		Short: "Write tables to a checksummed dump (all tables when none given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" || out == "-" {
				return a.dump(cmd.OutOrStdout(), args)
			}
			return writeFileAtomic(out, func(w io.Writer) error {
				return a.dump(w, args)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func (a *app) dump(w io.Writer, args []string) error {
	bw := bufio.NewWriter(w)
	type result struct {
		st  dump.Stats
		err error
	}
	res, err := db.View(a.database(), func(tx db.DbTx) result {
		st, err := dump.Export(bw, tx, tableArgs(args)...)
		return result{st, err}
	})
	if err != nil {
		return err
	}
	if res.err != nil {
		return res.err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing dump: %w", err)
	}
	logger.Info("dump written", "tables", res.st.Tables, "entries", res.st.Entries, "bytes", res.st.Bytes)
	return nil
}

// writeFileAtomic writes through a temporary file in path's directory and
// renames it over path only when write succeeds. On failure path is left
// untouched.
func writeFileAtomic(path string, write func(io.Writer) error) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating dump file: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()
	if err := write(f); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing dump file: %w", err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("renaming dump file: %w", err)
	}
	return nil
}

func newRestoreCmd(a *app) *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Load a dump in a single transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var r io.Reader = cmd.InOrStdin()
			if in != "" && in != "-" {
				f, err := os.Open(in)
				if err != nil {
					return fmt.Errorf("opening dump file: %w", err)
				}
				defer f.Close()
				r = f
			}

			tx, err := a.database().TxMut()
			if err != nil {
				return err
			}
			st, err := dump.Import(r, tx)
			if err != nil {
				tx.Abort()
				return err
			}
			if err := tx.Commit(); err != nil {
				return err
			}
			logger.Info("dump restored", "tables", st.Tables, "entries", st.Entries, "bytes", st.Bytes)
			return nil
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "", "input file (default stdin)")
	return cmd
}

func newCopyCmd(a *app) *cobra.Command {
	var dst config.DatabaseConfig
	cmd := &cobra.Command{
		Use:   "copy [table]...",
		Short: "Copy tables into another database, possibly on another backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dst.Backend == "" {
				dst.Backend = a.cfg.Database.Backend
			}
			if dst.Backend == a.cfg.Database.Backend &&
				config.ExpandHome(dst.Path) == config.ExpandHome(a.cfg.Database.Path) {
				return fmt.Errorf("copy: source and destination are the same database")
			}
			target, err := backend.Open(dst)
			if err != nil {
				return err
			}
			defer target.Close()

			src, err := a.database().Tx()
			if err != nil {
				return err
			}
			defer src.Abort()

			tables := tableArgs(args)
			if len(tables) == 0 {
				if tables, err = src.Tables(); err != nil {
					return err
				}
			}
			dtx, err := target.TxMut()
			if err != nil {
				return err
			}
			for _, t := range tables {
				if err := dtx.ImportTable(t, src); err != nil {
					dtx.Abort()
					return err
				}
			}
			if err := dtx.Commit(); err != nil {
				return err
			}
			logger.Info("tables copied", "tables", len(tables), "to_backend", dst.Backend, "to_path", dst.Path)
			return src.Commit()
		},
	}
	cmd.Flags().StringVar(&dst.Backend, "to-backend", "", "destination engine (default: same as source)")
	cmd.Flags().StringVar(&dst.Path, "to-path", "", "destination path")
	return cmd
}
