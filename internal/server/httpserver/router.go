package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/docsnap/internal/backup"
	"github.com/yndnr/docsnap/internal/server/httpserver/handler"
	"github.com/yndnr/docsnap/internal/storage/docstore"
	"github.com/yndnr/docsnap/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	Backup *backup.Service
	Store  docstore.Store

	// Metrics serves /metrics and records request counters. Optional.
	Metrics *metric.Metrics

	Logger *slog.Logger

	// AdminToken guards /admin/v1. Empty disables authentication.
	AdminToken string

	// AdminAllowList is the IP/CIDR allowlist for admin API (empty = no restriction).
	AdminAllowList []string

	// RateLimit is requests/second per client IP on admin routes (0 = off).
	RateLimit float64
	RateBurst int

	// Tracing starts a span per request.
	Tracing bool
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(cfg *RouterConfig) (http.Handler, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	h := handler.New(cfg.Backup, cfg.Store, log)

	acl, err := NetworkACL(cfg.AdminAllowList, log)
	if err != nil {
		return nil, err
	}
	var limiters *RateLimiters
	if cfg.RateLimit > 0 {
		limiters = NewRateLimiters(cfg.RateLimit, cfg.RateBurst)
	}

	base := []Middleware{Recover(log), RequestID()}
	if cfg.Tracing {
		base = append(base, Trace())
	}
	base = append(base, Audit(log, cfg.Metrics))

	mux := http.NewServeMux()

	probe := Chain(h, base...)
	mux.Handle("GET /health", probe)
	mux.Handle("GET /ready", probe)

	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", Chain(cfg.Metrics.Handler(), Recover(log)))
	}

	admin := Chain(h, append(base, acl, RateLimit(limiters), AdminAuth(cfg.AdminToken, log))...)
	mux.Handle("/admin/v1/", admin)

	return mux, nil
}
