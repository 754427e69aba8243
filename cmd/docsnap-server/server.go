package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	"github.com/yndnr/docsnap/internal/backup"
	"github.com/yndnr/docsnap/internal/backup/exporter"
	"github.com/yndnr/docsnap/internal/infra/buildinfo"
	"github.com/yndnr/docsnap/internal/infra/shutdown"
	"github.com/yndnr/docsnap/internal/infra/tlsroots"
	"github.com/yndnr/docsnap/internal/scheduler"
	"github.com/yndnr/docsnap/internal/server/config"
	"github.com/yndnr/docsnap/internal/server/httpserver"
	"github.com/yndnr/docsnap/internal/storage/docstore"
	"github.com/yndnr/docsnap/internal/telemetry/metric"
	"github.com/yndnr/docsnap/internal/telemetry/tracer"
)

// server holds the long-lived components of one process.
type server struct {
	cfg *config.ServerConfig
	log *slog.Logger

	traceShutdown func(context.Context) error
	metrics       *metric.Metrics
	store         docstore.Store
	backup        *backup.Service
	sched         *scheduler.Scheduler
	certs         *tlsroots.CertReloader
	http          *httpserver.Server

	cancel context.CancelFunc
}

// newServer builds every component. Nothing is started yet; on error the
// components built so far are released.
func newServer(ctx context.Context, cfg *config.ServerConfig, log *slog.Logger) (_ *server, err error) {
	s := &server{cfg: cfg, log: log, metrics: metric.New()}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	s.traceShutdown, err = tracer.Setup(ctx, cfg.Telemetry.ServiceName, buildinfo.Get().Version, cfg.TracerConfig())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	s.store, err = docstore.Open(cfg.StoreConfig(s.metrics.Registry()), log.With("component", "docstore"))
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}

	exp, err := exporter.New(s.store, cfg.Storage.Collections)
	if err != nil {
		return nil, fmt.Errorf("init exporter: %w", err)
	}

	s.backup, err = backup.New(cfg.BackupConfig(), exp, s.metrics, log)
	if err != nil {
		return nil, fmt.Errorf("init backup service: %w", err)
	}

	if cfg.Schedule.Enabled {
		s.sched = scheduler.New(log, scheduler.WithRunOnStart(cfg.Schedule.RunOnStart))
		for _, job := range backupJobs(s.backup, cfg.Schedule) {
			if err := s.sched.Add(job); err != nil {
				return nil, fmt.Errorf("schedule %s: %w", job.Name, err)
			}
		}
	}

	var tlsCfg *tls.Config
	if h := cfg.Server.HTTP; h.TLSCertFile != "" {
		s.certs, err = tlsroots.NewCertReloader(h.TLSCertFile, h.TLSKeyFile, tlsroots.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("load TLS certificate: %w", err)
		}
		tlsCfg = s.certs.ServerTLSConfig()
	}

	router, err := httpserver.NewRouter(&httpserver.RouterConfig{
		Backup:         s.backup,
		Store:          s.store,
		Metrics:        s.metrics,
		Logger:         log,
		AdminToken:     cfg.Security.AdminToken,
		AdminAllowList: cfg.Security.AdminAllowList,
		RateLimit:      cfg.Server.HTTP.RateLimit,
		RateBurst:      cfg.Server.HTTP.RateBurst,
		Tracing:        cfg.TracerConfig().Enabled(),
	})
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}

	s.http = httpserver.New(httpserver.ServerConfig{
		Addr:         cfg.Server.HTTP.Addr,
		TLSConfig:    tlsCfg,
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
	}, router, log.With("component", "http"))

	return s, nil
}

// backupJobs maps the schedule onto scheduler jobs. A zero interval
// disables that job.
func backupJobs(svc *backup.Service, sc config.ScheduleSection) []scheduler.Job {
	var jobs []scheduler.Job
	if sc.FullInterval > 0 {
		jobs = append(jobs, scheduler.Job{
			Name:     "full",
			Interval: sc.FullInterval,
			Run: func(ctx context.Context) error {
				_, err := svc.CreateFull(ctx, true)
				return err
			},
		})
	}
	if sc.IncrementalInterval > 0 {
		jobs = append(jobs, scheduler.Job{
			Name:     "incremental",
			Interval: sc.IncrementalInterval,
			Run: func(ctx context.Context) error {
				_, err := svc.CreateIncremental(ctx)
				return err
			},
		})
	}
	if sc.PruneInterval > 0 && sc.RetentionDays > 0 {
		jobs = append(jobs, scheduler.Job{
			Name:     "prune",
			Interval: sc.PruneInterval,
			Run: func(ctx context.Context) error {
				_, err := svc.PruneOlderThan(ctx, sc.RetentionDays)
				return err
			},
		})
	}
	return jobs
}

// start binds the listener and launches the background goroutines. A
// serve failure after startup triggers shutdown.
func (s *server) start(ctx context.Context, sh *shutdown.Handler) error {
	if err := s.http.Listen(); err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Server.HTTP.Addr, err)
	}

	ctx, s.cancel = context.WithCancel(ctx)

	if s.certs != nil {
		go func() {
			if err := s.certs.Run(ctx); err != nil {
				s.log.Error("certificate watcher stopped", "error", err)
			}
		}()
	}

	if s.sched != nil {
		if err := s.sched.Start(ctx); err != nil {
			return err
		}
	}

	go func() {
		if err := s.http.Serve(); err != nil {
			s.log.Error("admin API stopped", "error", err)
			sh.Trigger()
		}
	}()
	return nil
}

// registerShutdown registers hooks so that, run in reverse, the HTTP
// server stops first and the store closes last.
func (s *server) registerShutdown(sh *shutdown.Handler) {
	sh.OnShutdown("tracer", func(ctx context.Context) error {
		if s.traceShutdown == nil {
			return nil
		}
		return s.traceShutdown(ctx)
	})
	sh.OnShutdown("document store", func(context.Context) error {
		return s.store.Close()
	})
	sh.OnShutdown("scheduler", func(context.Context) error {
		if s.sched != nil {
			s.sched.Stop()
		}
		if s.cancel != nil {
			s.cancel()
		}
		return nil
	})
	sh.OnShutdown("admin API", func(ctx context.Context) error {
		return s.http.Shutdown(ctx)
	})
}

// close releases whatever newServer managed to build.
func (s *server) close() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.log.Warn("close document store", "error", err)
		}
	}
	if s.traceShutdown != nil {
		_ = s.traceShutdown(context.Background())
	}
}
