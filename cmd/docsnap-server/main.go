package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/yndnr/docsnap/internal/infra/buildinfo"
	"github.com/yndnr/docsnap/internal/infra/confloader"
	"github.com/yndnr/docsnap/internal/infra/shutdown"
	"github.com/yndnr/docsnap/internal/server/config"
	"github.com/yndnr/docsnap/internal/telemetry/logger"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("docsnap-server", flag.ContinueOnError)
	var (
		configFile  = fs.String("config", "", "path to configuration file")
		showVersion = fs.Bool("version", false, "show version information")
		checkOnly   = fs.Bool("check-config", false, "validate the configuration and exit")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Fprintf(stdout, "docsnap-server %s\n", buildinfo.String())
		return nil
	}

	loader := confloader.NewLoader(confloader.WithConfigFile(*configFile))
	cfg, err := loadConfig(loader)
	if err != nil {
		return err
	}
	if *checkOnly {
		fmt.Fprintln(stdout, "configuration OK")
		return nil
	}

	log, logCloser, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logCloser.Close()
	logger.SetDefault(log)

	info := buildinfo.Get()
	log.Info("starting docsnap-server",
		"version", info.Version,
		"commit", info.Commit,
		"go_version", info.GoVersion,
		"config", *configFile)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	srv, err := newServer(ctx, cfg, log)
	if err != nil {
		return err
	}

	sh := shutdown.NewHandler(cfg.Server.HTTP.ShutdownTimeout, log)
	srv.registerShutdown(sh)

	if *configFile != "" {
		if err := watchConfig(loader, sh, log); err != nil {
			log.Warn("config hot reload disabled", "error", err)
		}
	}

	if err := srv.start(ctx, sh); err != nil {
		sh.Trigger()
		_ = sh.Wait(ctx)
		return err
	}

	log.Info("server started", "addr", srv.http.Addr())
	if err := sh.Wait(ctx); err != nil {
		log.Error("shutdown completed with errors", "error", err)
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}

func loadConfig(loader *confloader.Loader) (*config.ServerConfig, error) {
	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// watchConfig applies log level changes from the config file. Invalid
// edits are logged and ignored.
func watchConfig(loader *confloader.Loader, sh *shutdown.Handler, log *slog.Logger) error {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return err
	}
	if err := w.Watch(loader.FilePath()); err != nil {
		_ = w.Stop()
		return err
	}

	w.OnChange(func(string) {
		next := config.Default()
		if err := loader.Reload(next); err != nil {
			log.Error("config reload failed", "error", err)
			return
		}
		if err := config.Verify(next); err != nil {
			log.Error("reloaded config rejected", "error", err)
			return
		}
		prev := logger.GetLevel()
		logger.SetLevel(next.Log.Level)
		if now := logger.GetLevel(); now != prev {
			log.Info("log level changed", "from", prev, "to", now)
		}
	})
	w.StartAsync()

	sh.OnShutdown("config watcher", func(context.Context) error { return w.Stop() })
	return nil
}
