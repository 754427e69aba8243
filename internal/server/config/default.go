package config

import (
	"time"

	"github.com/yndnr/docsnap/internal/core/domain"
)

// Default configuration values.
const (
	DefaultHTTPAddr        = "127.0.0.1:5090"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 10 * time.Minute
	DefaultShutdownTimeout = 30 * time.Second

	DefaultEngine  = "badger"
	DefaultDataDir = "/var/lib/docsnap/data"

	DefaultBackupDir        = "/var/lib/docsnap/backups"
	DefaultCompression      = "gzip"
	DefaultFetchConcurrency = 4

	DefaultFullInterval        = 24 * time.Hour
	DefaultIncrementalInterval = 6 * time.Hour
	DefaultPruneInterval       = 7 * 24 * time.Hour
	DefaultRetentionDays       = 30

	DefaultLogLevel   = "info"
	DefaultLogFormat  = "json"
	DefaultLogMaxSize = 100
	DefaultLogBackups = 5
	DefaultLogMaxAge  = 30

	DefaultServiceName = "docsnap-server"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:            DefaultHTTPAddr,
				RateBurst:       20,
				ReadTimeout:     DefaultReadTimeout,
				WriteTimeout:    DefaultWriteTimeout,
				ShutdownTimeout: DefaultShutdownTimeout,
			},
		},
		Storage: StorageSection{
			Engine:  DefaultEngine,
			DataDir: DefaultDataDir,
			Collections: []domain.CollectionSpec{
				{Name: "users"},
			},
			Badger: BadgerSection{
				GCInterval:  10 * time.Minute,
				GCThreshold: 0.5,
				CacheSizeMB: 64,
				SyncWrites:  true,
			},
		},
		Backup: BackupSection{
			Dir:              DefaultBackupDir,
			Compression:      DefaultCompression,
			FetchConcurrency: DefaultFetchConcurrency,
		},
		Schedule: ScheduleSection{
			Enabled:             true,
			FullInterval:        DefaultFullInterval,
			IncrementalInterval: DefaultIncrementalInterval,
			PruneInterval:       DefaultPruneInterval,
			RetentionDays:       DefaultRetentionDays,
		},
		Log: LogSection{
			Level:      DefaultLogLevel,
			Format:     DefaultLogFormat,
			MaxSizeMB:  DefaultLogMaxSize,
			MaxBackups: DefaultLogBackups,
			MaxAgeDays: DefaultLogMaxAge,
		},
		Telemetry: TelemetrySection{
			ServiceName: DefaultServiceName,
		},
	}
}
