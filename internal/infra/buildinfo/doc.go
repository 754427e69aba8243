// Package buildinfo exposes docsnap build metadata.
//
// Values are injected with ldflags:
//
//	go build -ldflags "-X github.com/yndnr/docsnap/internal/infra/buildinfo.Version=v1.2.0"
//
// Unset values fall back to the module and VCS data embedded by the Go
// toolchain.
package buildinfo
