// Package backend opens the storage engine named in the configuration.
package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"txdb/internal/config"
	"txdb/internal/logging"
	"txdb/pkg/db"
	"txdb/pkg/db/bolt"
	"txdb/pkg/db/leveldb"
	"txdb/pkg/db/memdb"
	"txdb/pkg/db/sqlite"
)

var logger = logging.For("backend")

type opener func(path string, cfg config.DatabaseConfig) (db.Database, error)

var openers = map[string]opener{
	"bolt": func(path string, cfg config.DatabaseConfig) (db.Database, error) {
		return bolt.Open(path, bolt.Options{
			ReadOnly:   cfg.ReadOnly,
			MaxReaders: cfg.MaxReaders,
			Timeout:    cfg.OpenTimeout.Duration,
		})
	},
	"leveldb": func(path string, cfg config.DatabaseConfig) (db.Database, error) {
		return leveldb.Open(path, leveldb.Options{
			ReadOnly:   cfg.ReadOnly,
			MaxReaders: cfg.MaxReaders,
		})
	},
	"memory": func(_ string, cfg config.DatabaseConfig) (db.Database, error) {
		return memdb.New(memdb.Options{
			ReadOnly:   cfg.ReadOnly,
			MaxReaders: cfg.MaxReaders,
		}), nil
	},
	"sqlite": func(path string, cfg config.DatabaseConfig) (db.Database, error) {
		return sqlite.Open(path, sqlite.Options{
			ReadOnly:    cfg.ReadOnly,
			MaxReaders:  cfg.MaxReaders,
			BusyTimeout: cfg.OpenTimeout.Duration,
		})
	},
}

// Names lists the supported backends in sorted order.
func Names() []string {
	names := make([]string, 0, len(openers))
	for name := range openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens the configured backend and returns its first shared handle.
// Closing the last handle cloned from it closes the engine. The parent
// directory of a writable file-backed database is created if missing.
func Open(cfg config.DatabaseConfig) (*db.Shared, error) {
	open, ok := openers[cfg.Backend]
	if !ok {
		return nil, db.NewError(db.KindOpen, "backend.Open", fmt.Errorf("unknown backend %q", cfg.Backend))
	}

	var path string
	if cfg.Backend != "memory" {
		if cfg.Path == "" {
			return nil, db.NewError(db.KindOpen, "backend.Open", fmt.Errorf("backend %q needs a path", cfg.Backend))
		}
		path = config.ExpandHome(cfg.Path)
		if !cfg.ReadOnly {
			if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
				return nil, db.NewError(db.KindOpen, "backend.Open", fmt.Errorf("creating data dir: %w", err))
			}
		}
	}

	d, err := open(path, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("database opened", "backend", cfg.Backend, "path", path, "read_only", cfg.ReadOnly)
	return db.Share(d), nil
}
