package tlsroots

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultExpiryWarning is how long before NotAfter a reload logs a warning.
const DefaultExpiryWarning = 30 * 24 * time.Hour

// CertReloader serves a key pair and reloads it when the files change.
type CertReloader struct {
	certFile string
	keyFile  string
	logger   *slog.Logger
	debounce time.Duration
	warnIn   time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	cert     *tls.Certificate
	notAfter time.Time
	reloads  int
}

// ReloaderOption configures a CertReloader.
type ReloaderOption func(*CertReloader)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ReloaderOption {
	return func(r *CertReloader) { r.logger = logger }
}

// WithDebounce sets how long file events settle before a reload.
func WithDebounce(d time.Duration) ReloaderOption {
	return func(r *CertReloader) { r.debounce = d }
}

// WithExpiryWarning sets the expiry warning window.
func WithExpiryWarning(d time.Duration) ReloaderOption {
	return func(r *CertReloader) { r.warnIn = d }
}

// NewCertReloader loads the key pair once. Watching starts with Run.
func NewCertReloader(certFile, keyFile string, opts ...ReloaderOption) (*CertReloader, error) {
	r := &CertReloader{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   slog.Default(),
		debounce: 250 * time.Millisecond,
		warnIn:   DefaultExpiryWarning,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Reload(); err != nil {
		return nil, fmt.Errorf("tlsroots: initial load: %w", err)
	}
	return r, nil
}

// Reload reads the key pair from disk. On failure the previous
// certificate stays in service.
func (r *CertReloader) Reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}
	leaf := cert.Leaf
	if leaf == nil && len(cert.Certificate) > 0 {
		if leaf, err = x509.ParseCertificate(cert.Certificate[0]); err != nil {
			return fmt.Errorf("parse leaf: %w", err)
		}
	}

	r.mu.Lock()
	r.cert = &cert
	if leaf != nil {
		r.notAfter = leaf.NotAfter
	}
	r.reloads++
	notAfter := r.notAfter
	r.mu.Unlock()

	r.logger.Info("certificate loaded", "cert_file", r.certFile, "not_after", notAfter)
	if left := notAfter.Sub(r.now()); !notAfter.IsZero() && left < r.warnIn {
		r.logger.Warn("certificate expires soon", "cert_file", r.certFile, "not_after", notAfter, "remaining", left.Round(time.Minute))
	}
	return nil
}

// Run watches the certificate directories until ctx ends.
func (r *CertReloader) Run(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	defer w.Close()

	certPath, err := filepath.Abs(r.certFile)
	if err != nil {
		return err
	}
	keyPath, err := filepath.Abs(r.keyFile)
	if err != nil {
		return err
	}

	// Watching the parent directories survives rename-based replacement.
	dirs := map[string]struct{}{filepath.Dir(certPath): {}, filepath.Dir(keyPath): {}}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("tlsroots: watch %s: %w", dir, err)
		}
	}

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name, _ := filepath.Abs(ev.Name)
			if name != certPath && name != keyPath {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(r.debounce)
		case <-timer.C:
			if err := r.Reload(); err != nil {
				r.logger.Error("certificate reload failed", "error", err, "cert_file", r.certFile)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("certificate watcher error", "error", err)
		}
	}
}

// GetCertificate implements tls.Config.GetCertificate.
func (r *CertReloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert, nil
}

// NotAfter returns the expiry of the served certificate.
func (r *CertReloader) NotAfter() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.notAfter
}

// Reloads returns the number of successful loads.
func (r *CertReloader) Reloads() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reloads
}

// ServerTLSConfig returns a server config backed by the reloader.
func (r *CertReloader) ServerTLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: r.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}
