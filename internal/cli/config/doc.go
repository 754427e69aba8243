// Package config loads the docsnap-cli settings file (~/.docsnap/cli.yaml)
// and layers DOCSNAP_* environment variables and command-line flags on
// top of it.
package config
