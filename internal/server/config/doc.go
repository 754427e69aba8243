// Package config defines the docsnap-server configuration structure,
// its defaults and its validation.
package config
