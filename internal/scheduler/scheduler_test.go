package scheduler

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/docsnap/internal/core/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestAddValidation(t *testing.T) {
	s := New(discard())
	noop := func(context.Context) error { return nil }

	tests := []struct {
		name string
		job  Job
	}{
		{"empty name", Job{Interval: time.Second, Run: noop}},
		{"nil run", Job{Name: "x", Interval: time.Second}},
		{"zero interval", Job{Name: "x", Run: noop}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Add(tt.job); err == nil {
				t.Error("Add() succeeded, want error")
			}
		})
	}

	if err := s.Add(Job{Name: "full", Interval: time.Hour, Run: noop}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := s.Add(Job{Name: "full", Interval: time.Hour, Run: noop}); err == nil {
		t.Error("duplicate job accepted")
	}
	if got := s.Jobs(); len(got) != 1 || got[0] != "full" {
		t.Errorf("Jobs() = %v", got)
	}
}

func TestRunsOnInterval(t *testing.T) {
	s := New(discard())
	var runs atomic.Int32
	_ = s.Add(Job{Name: "tick", Interval: 10 * time.Millisecond, Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	if runs.Load() < 3 {
		t.Errorf("runs = %d, want >= 3", runs.Load())
	}
	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	if runs.Load() != after {
		t.Error("job ran after Stop")
	}
}

func TestRunOnStart(t *testing.T) {
	s := New(discard(), WithRunOnStart(true))
	ran := make(chan struct{}, 1)
	_ = s.Add(Job{Name: "once", Interval: time.Hour, Run: func(context.Context) error {
		ran <- struct{}{}
		return nil
	}})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run on start")
	}
}

func TestNoOverlap(t *testing.T) {
	s := New(discard(), WithRunOnStart(true))
	var active, maxActive atomic.Int32
	var mu sync.Mutex
	_ = s.Add(Job{Name: "slow", Interval: time.Millisecond, Run: func(ctx context.Context) error {
		n := active.Add(1)
		mu.Lock()
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		return nil
	}})

	_ = s.Start(context.Background())
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	if maxActive.Load() != 1 {
		t.Errorf("max concurrent runs = %d, want 1", maxActive.Load())
	}
}

func TestStopCancelsRunningJob(t *testing.T) {
	s := New(discard(), WithRunOnStart(true))
	started := make(chan struct{})
	_ = s.Add(Job{Name: "block", Interval: time.Hour, Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}})

	_ = s.Start(context.Background())
	<-started

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestStartTwice(t *testing.T) {
	s := New(discard())
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start succeeded")
	}
	if err := s.Add(Job{Name: "late", Interval: time.Second, Run: func(context.Context) error { return nil }}); err == nil {
		t.Error("Add after Start succeeded")
	}
}

func TestContentionLoggedAtWarn(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	logger := slog.New(slog.NewTextHandler(&lockedWriter{w: &buf, mu: &mu}, nil))

	s := New(logger, WithRunOnStart(true))
	ran := make(chan struct{}, 4)
	_ = s.Add(Job{Name: "prune", Interval: time.Hour, Run: func(context.Context) error {
		ran <- struct{}{}
		return domain.ErrLockContention.WithDetails("prune refused")
	}})
	_ = s.Add(Job{Name: "broken", Interval: time.Hour, Run: func(context.Context) error {
		ran <- struct{}{}
		panic("boom")
	}})

	_ = s.Start(context.Background())
	<-ran
	<-ran
	s.Stop()

	mu.Lock()
	out := buf.String()
	mu.Unlock()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "job=prune") {
		t.Errorf("contention not logged at warn:\n%s", out)
	}
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "panicked") {
		t.Errorf("panic not logged as error:\n%s", out)
	}
}

type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
