package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Environment variables read by Merge.
const (
	EnvServer   = "DOCSNAP_SERVER"
	EnvToken    = "DOCSNAP_TOKEN"
	EnvCAFile   = "DOCSNAP_CA_FILE"
	EnvInsecure = "DOCSNAP_INSECURE"
	EnvOutput   = "DOCSNAP_OUTPUT"
)

// DefaultConfigPath returns the default CLI config file path.
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".docsnap", "cli.yaml")
}

// Load reads the config file at path, or DefaultConfigPath when path is
// empty. A missing file yields the defaults.
func Load(path string) (*CLIConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cli config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse cli config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path with owner-only permissions, since it may
// hold the admin token.
func Save(cfg *CLIConfig, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode cli config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write cli config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write cli config: %w", err)
	}
	return nil
}

// Merge returns a copy of cfg overridden first by env (DOCSNAP_* keys)
// and then by flags (keyed by flag name). Empty values are ignored.
func Merge(cfg *CLIConfig, env map[string]string, flags map[string]string) *CLIConfig {
	out := *cfg

	apply := func(server, token, caFile, insecure, output string) {
		if server != "" {
			out.Server = server
		}
		if token != "" {
			out.Token = token
		}
		if caFile != "" {
			out.CAFile = caFile
		}
		if b, err := strconv.ParseBool(insecure); err == nil {
			out.Insecure = b
		}
		if output != "" {
			out.Output = output
		}
	}

	apply(env[EnvServer], env[EnvToken], env[EnvCAFile], env[EnvInsecure], env[EnvOutput])
	apply(flags["server"], flags["token"], flags["ca-file"], flags["insecure"], flags["output"])
	return &out
}

// Environ collects the DOCSNAP_* variables Merge understands.
func Environ() map[string]string {
	env := make(map[string]string)
	for _, key := range []string{EnvServer, EnvToken, EnvCAFile, EnvInsecure, EnvOutput} {
		if v, ok := os.LookupEnv(key); ok {
			env[key] = v
		}
	}
	return env
}
