// Package command defines the docsnap-cli commands using urfave/cli/v2.
//
// Global flags are merged with ~/.docsnap/cli.yaml and DOCSNAP_*
// environment variables in the app's Before hook; every command then
// reaches the server through the shared admin API client.
package command
