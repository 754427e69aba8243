// Command docsnap-cli manages snapshots on a running docsnap-server.
//
// Examples:
//
//	docsnap-cli backup create
//	docsnap-cli backup create --incremental
//	docsnap-cli backup list -o json
//	docsnap-cli backup restore full_backup_1700000000000.json.gz --clear
//	docsnap-cli backup prune --days 30
//	docsnap-cli system status
//
// Connection settings come from ~/.docsnap/cli.yaml, DOCSNAP_* environment
// variables and global flags, in increasing order of precedence.
package main
