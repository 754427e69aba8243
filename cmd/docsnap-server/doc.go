// Command docsnap-server hosts a document store together with its
// snapshot backup subsystem.
//
// It serves the admin HTTP API used by docsnap-cli, runs the periodic
// full, incremental and prune jobs, and exposes Prometheus metrics.
//
// Usage:
//
//	docsnap-server -config /etc/docsnap/server.yaml
//	docsnap-server -config server.yaml -check-config
//	DOCSNAP_SECURITY_ADMIN_TOKEN=... docsnap-server
//
// Editing log.level in the config file takes effect without a restart;
// other settings are read at startup only.
package main
