package main

import (
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/term"

	"txdb/internal/backend"
	"txdb/internal/config"
	"txdb/internal/logging"
	"txdb/internal/store"
	"txdb/pkg/db"
	"txdb/pkg/db/metrics"
)

var logger = logging.For("cli")

// app carries flag values and the database opened for one invocation.
type app struct {
	configPath string
	backend    string
	path       string
	readOnly   bool
	logLevel   string
	logFormat  string
	metrics    bool

	cfg     *config.Config
	shared  *db.Shared
	metered *metrics.Database
	store   *store.Store

	// isTerminal reports whether w is an interactive terminal.
	isTerminal func(w io.Writer) bool
}

func stderrIsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// run executes one command line and releases everything it opened.
func run(args []string, stdout, stderr io.Writer) error {
	a := &app{isTerminal: stderrIsTerminal}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	if cerr := a.close(stderr); err == nil {
		err = cerr
	}
	return err
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "txdb",
		Short:         "Inspect and edit transactional key-value databases",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "path to config file (default "+config.DefaultPath+")")
	f.StringVar(&a.backend, "backend", "", fmt.Sprintf("storage engine %v (overrides config)", backend.Names()))
	f.StringVar(&a.path, "path", "", "database path (overrides config)")
	f.BoolVar(&a.readOnly, "read-only", false, "open the database read-only")
	f.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	f.StringVar(&a.logFormat, "log-format", "", "text or json (default text on a terminal, json otherwise)")
	f.BoolVar(&a.metrics, "metrics", false, "print transaction metrics on exit")

	root.AddCommand(
		newGetCmd(a),
		newPutCmd(a),
		newDelCmd(a),
		newScanCmd(a),
		newTablesCmd(a),
		newStatsCmd(a),
		newDumpCmd(a),
		newRestoreCmd(a),
		newCopyCmd(a),
	)
	return root
}

// setup loads the config, applies flag overrides, initializes logging and
// opens the database.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Database.Backend = a.backend
	}
	if flags.Changed("path") {
		cfg.Database.Path = a.path
	}
	if flags.Changed("read-only") {
		cfg.Database.ReadOnly = a.readOnly
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = a.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = a.logFormat
	}
	if flags.Changed("metrics") {
		cfg.Metrics.Enabled = a.metrics
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
		if a.isTerminal(cmd.ErrOrStderr()) {
			cfg.Logging.Format = "text"
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.cfg = cfg

	logging.InitWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)

	shared, err := backend.Open(cfg.Database)
	if err != nil {
		return err
	}
	a.shared = shared

	var d db.Database = shared
	if cfg.Metrics.Enabled {
		a.metered = metrics.Wrap(shared, metrics.Options{Namespace: cfg.Metrics.Namespace})
		d = a.metered
	}
	a.store = store.New(d)
	return nil
}

// database is the handle commands open transactions on.
func (a *app) database() db.Database {
	return a.store.Database()
}

func (a *app) close(metricsOut io.Writer) error {
	if a.shared == nil {
		return nil
	}
	var err error
	if a.metered != nil {
		err = writeMetrics(metricsOut, a.metered)
	}
	err = multierr.Append(err, a.shared.Close())
	a.shared, a.store = nil, nil
	return err
}

func writeMetrics(w io.Writer, c prometheus.Collector) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	return nil
}
