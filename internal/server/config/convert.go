package config

import (
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/docsnap/internal/backup"
	"github.com/yndnr/docsnap/internal/storage/docstore"
	"github.com/yndnr/docsnap/internal/telemetry/logger"
	"github.com/yndnr/docsnap/internal/telemetry/tracer"
)

// StoreConfig maps the storage section onto docstore.Config.
func (c *ServerConfig) StoreConfig(registry prometheus.Registerer) docstore.Config {
	s := c.Storage
	return docstore.Config{
		Engine:      s.Engine,
		DataDir:     s.DataDir,
		DSN:         s.DSN,
		Collections: s.Collections,
		Badger: docstore.BadgerOptions{
			GCInterval:  s.Badger.GCInterval,
			GCThreshold: s.Badger.GCThreshold,
			CacheSize:   s.Badger.CacheSizeMB << 20,
			SyncWrites:  s.Badger.SyncWrites,
		},
		Registry: registry,
	}
}

// BackupConfig maps the backup section onto backup.Config.
func (c *ServerConfig) BackupConfig() backup.Config {
	b := c.Backup
	dir := b.Dir
	if !filepath.IsAbs(dir) && c.Storage.DataDir != "" {
		dir = filepath.Join(c.Storage.DataDir, dir)
	}
	return backup.Config{
		Dir:                  dir,
		Compression:          b.Compression,
		EncryptionPassphrase: b.EncryptionPassphrase,
		EncryptionCipher:     b.EncryptionCipher,
		FetchConcurrency:     b.FetchConcurrency,
		RestoreRateLimit:     b.RestoreRateLimit,
	}
}

// LoggerConfig maps the log section onto logger.Config.
func (c *ServerConfig) LoggerConfig() logger.Config {
	l := c.Log
	return logger.Config{
		Level:  l.Level,
		Format: l.Format,
		File: logger.FileConfig{
			Path:       l.File,
			MaxSizeMB:  l.MaxSizeMB,
			MaxBackups: l.MaxBackups,
			MaxAgeDays: l.MaxAgeDays,
			Compress:   true,
		},
	}
}

// TracerConfig maps the telemetry section onto tracer.Config.
func (c *ServerConfig) TracerConfig() tracer.Config {
	return tracer.Config{
		Endpoint:    c.Telemetry.OTelEndpoint,
		SampleRatio: c.Telemetry.SampleRatio,
	}
}
