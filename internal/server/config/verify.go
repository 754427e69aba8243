package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/yndnr/docsnap/internal/backup/archive"
	"github.com/yndnr/docsnap/internal/storage/docstore"
	"github.com/yndnr/docsnap/internal/telemetry/logger"
)

// Verify validates the configuration and returns every problem found.
func Verify(cfg *ServerConfig) error {
	return errors.Join(
		verifyServer(&cfg.Server),
		verifySecurity(&cfg.Security),
		verifyStorage(&cfg.Storage),
		verifyBackup(&cfg.Backup, &cfg.Storage),
		verifySchedule(&cfg.Schedule),
		verifyLog(&cfg.Log),
		verifyTelemetry(&cfg.Telemetry),
	)
}

func verifyServer(cfg *ServerSection) error {
	h := cfg.HTTP
	if h.Addr == "" {
		return errors.New("server.http.addr is required")
	}
	if _, _, err := net.SplitHostPort(h.Addr); err != nil {
		return fmt.Errorf("server.http.addr: %w", err)
	}
	if (h.TLSCertFile == "") != (h.TLSKeyFile == "") {
		return errors.New("server.http.tls_cert_file and tls_key_file must be set together")
	}
	for _, f := range []string{h.TLSCertFile, h.TLSKeyFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("server.http tls file: %w", err)
		}
	}
	if h.RateLimit < 0 {
		return errors.New("server.http.rate_limit must be >= 0")
	}
	return nil
}

func verifySecurity(cfg *SecuritySection) error {
	for _, entry := range cfg.AdminAllowList {
		if strings.Contains(entry, "/") {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				return fmt.Errorf("security.admin_allow_list: %w", err)
			}
			continue
		}
		if net.ParseIP(entry) == nil {
			return fmt.Errorf("security.admin_allow_list: invalid ip %q", entry)
		}
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	switch cfg.Engine {
	case docstore.EngineMemory, docstore.EngineBadger, docstore.EngineSQLite:
	default:
		return fmt.Errorf("storage.engine: unknown engine %q", cfg.Engine)
	}
	if cfg.Engine != docstore.EngineMemory && cfg.DataDir == "" && cfg.DSN == "" {
		return errors.New("storage.data_dir is required")
	}
	if len(cfg.Collections) == 0 {
		return errors.New("storage.collections must list at least one collection")
	}
	seen := make(map[string]bool, len(cfg.Collections))
	for _, c := range cfg.Collections {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("storage.collections: %w", err)
		}
		if seen[c.Name] {
			return fmt.Errorf("storage.collections: duplicate collection %q", c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

func verifyBackup(cfg *BackupSection, storage *StorageSection) error {
	if cfg.Dir == "" {
		return errors.New("backup.dir is required")
	}
	if storage.DataDir != "" && cfg.Dir == storage.DataDir {
		return errors.New("backup.dir must differ from storage.data_dir")
	}
	if _, err := archive.ParseCompression(cfg.Compression); err != nil {
		return fmt.Errorf("backup.compression: %w", err)
	}
	if cfg.EncryptionPassphrase != "" && len(cfg.EncryptionPassphrase) < archive.MinPassphraseLength {
		return fmt.Errorf("backup.encryption_passphrase must be at least %d characters", archive.MinPassphraseLength)
	}
	if cfg.FetchConcurrency < 0 || cfg.RestoreRateLimit < 0 {
		return errors.New("backup.fetch_concurrency and backup.restore_rate_limit must be >= 0")
	}
	return nil
}

func verifySchedule(cfg *ScheduleSection) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.FullInterval <= 0 || cfg.IncrementalInterval <= 0 || cfg.PruneInterval <= 0 {
		return errors.New("schedule intervals must be positive")
	}
	if cfg.RetentionDays < 0 {
		return errors.New("schedule.retention_days must be >= 0")
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if !logger.ValidLevel(cfg.Level) {
		return fmt.Errorf("log.level: unknown level %q", cfg.Level)
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text", "console":
	default:
		return fmt.Errorf("log.format: unknown format %q", cfg.Format)
	}
	return nil
}

func verifyTelemetry(cfg *TelemetrySection) error {
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return errors.New("telemetry.sample_ratio must be within [0,1]")
	}
	return nil
}
