package config

import (
	"time"

	"github.com/yndnr/docsnap/internal/core/domain"
)

// ServerConfig is the root configuration for docsnap-server.
type ServerConfig struct {
	Server    ServerSection    `koanf:"server"`
	Security  SecuritySection  `koanf:"security"`
	Storage   StorageSection   `koanf:"storage"`
	Backup    BackupSection    `koanf:"backup"`
	Schedule  ScheduleSection  `koanf:"schedule"`
	Log       LogSection       `koanf:"log"`
	Telemetry TelemetrySection `koanf:"telemetry"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP HTTPConfig `koanf:"http"`
}

// HTTPConfig configures the admin HTTP server.
type HTTPConfig struct {
	Addr        string `koanf:"addr"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	// RateLimit is requests per second per client IP. Zero disables it.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`

	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// SecuritySection configures admin access.
type SecuritySection struct {
	// AdminToken is the bearer token required on /admin routes.
	AdminToken string `koanf:"admin_token"`

	// AdminAllowList restricts /admin routes to these IPs or CIDRs.
	AdminAllowList []string `koanf:"admin_allow_list"`
}

// StorageSection configures the document store.
type StorageSection struct {
	Engine      string                  `koanf:"engine"`
	DataDir     string                  `koanf:"data_dir"`
	DSN         string                  `koanf:"dsn"`
	Collections []domain.CollectionSpec `koanf:"collections"`
	Badger      BadgerSection           `koanf:"badger"`
}

// BadgerSection tunes the badger engine.
type BadgerSection struct {
	GCInterval  time.Duration `koanf:"gc_interval"`
	GCThreshold float64       `koanf:"gc_threshold"`
	CacheSizeMB int64         `koanf:"cache_size_mb"`
	SyncWrites  bool          `koanf:"sync_writes"`
}

// BackupSection configures the snapshot subsystem.
type BackupSection struct {
	Dir                  string `koanf:"dir"`
	Compression          string `koanf:"compression"`
	EncryptionPassphrase string `koanf:"encryption_passphrase"`
	EncryptionCipher     string `koanf:"encryption_cipher"`
	FetchConcurrency     int    `koanf:"fetch_concurrency"`

	// RestoreRateLimit caps document writes per second during restore.
	// Zero means unlimited.
	RestoreRateLimit int `koanf:"restore_rate_limit"`
}

// ScheduleSection configures periodic backup jobs.
type ScheduleSection struct {
	Enabled             bool          `koanf:"enabled"`
	FullInterval        time.Duration `koanf:"full_interval"`
	IncrementalInterval time.Duration `koanf:"incremental_interval"`
	PruneInterval       time.Duration `koanf:"prune_interval"`
	RetentionDays       int           `koanf:"retention_days"`
	RunOnStart          bool          `koanf:"run_on_start"`
}

// LogSection configures logging.
type LogSection struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
}

// TelemetrySection configures tracing.
type TelemetrySection struct {
	OTelEndpoint string  `koanf:"otel_endpoint"`
	SampleRatio  float64 `koanf:"sample_ratio"`
	ServiceName  string  `koanf:"service_name"`
}
