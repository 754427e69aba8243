package docstore

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/docsnap/internal/core/domain"
)

// Config selects and configures a Store engine.
type Config struct {
	Engine      string
	DataDir     string
	DSN         string
	Collections []domain.CollectionSpec
	Badger      BadgerOptions

	// Registry receives engine metrics when set.
	Registry prometheus.Registerer
}

// Open creates the Store selected by cfg.Engine.
func Open(cfg Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, c := range cfg.Collections {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}

	switch cfg.Engine {
	case EngineMemory:
		return NewMemoryStore(cfg.Collections), nil

	case EngineBadger, "":
		dir := cfg.DataDir
		if dir != "" {
			dir = filepath.Join(dir, "badger")
		}
		opts := cfg.Badger
		if opts == (BadgerOptions{}) {
			opts = DefaultBadgerOptions()
		}
		s, err := NewBadgerStore(dir, cfg.Collections, opts, logger)
		if err != nil {
			return nil, err
		}
		if cfg.Registry != nil {
			s.RegisterMetrics(cfg.Registry)
		}
		return s, nil

	case EngineSQLite:
		dsn := cfg.DSN
		if dsn == "" && cfg.DataDir != "" {
			dsn = filepath.Join(cfg.DataDir, "docsnap.db")
		}
		return NewSQLiteStore(dsn, cfg.Collections, logger)

	default:
		return nil, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("unknown storage engine %q", cfg.Engine))
	}
}
