// Package httpserver serves the docsnap admin API.
//
// Routes:
//
//   - /health, /ready: unauthenticated probes
//   - /metrics: Prometheus exposition
//   - /admin/v1/backups/*, /admin/v1/status/summary: bearer-token admin API
//
// Every request passes through Recover, RequestID and Audit. Admin
// routes add the network ACL, the per-IP rate limit and AdminAuth.
package httpserver
