// Package dirlock serializes backup operations per backup directory.
//
// Every directory has one Lock shared by the whole process. Writers
// (snapshot creation, restore apply, pruning, deletion) hold the exclusive
// side. Restore apply also holds the write side of a read gate, which
// catalog reads and restore previews take shared. No call blocks: a busy
// lock fails with domain.ErrLockContention.
package dirlock

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/yndnr/docsnap/internal/core/domain"
)

var (
	registryMu sync.Mutex
	registry   = make(map[string]*Lock)
)

// Lock guards one backup directory.
type Lock struct {
	dir  string
	mu   sync.Mutex
	gate sync.RWMutex

	holderMu sync.Mutex
	holder   string
}

// For returns the process-wide lock for dir.
func For(dir string) (*Lock, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("dirlock: resolve %s: %w", dir, err)
	}
	abs = filepath.Clean(abs)

	registryMu.Lock()
	defer registryMu.Unlock()
	if l, ok := registry[abs]; ok {
		return l, nil
	}
	l := &Lock{dir: abs}
	registry[abs] = l
	return l, nil
}

// Dir returns the absolute directory the lock guards.
func (l *Lock) Dir() string { return l.dir }

// Holder returns the operation holding the exclusive side, if any.
func (l *Lock) Holder() string {
	l.holderMu.Lock()
	defer l.holderMu.Unlock()
	return l.holder
}

func (l *Lock) setHolder(op string) {
	l.holderMu.Lock()
	l.holder = op
	l.holderMu.Unlock()
}

func (l *Lock) contention(op string) error {
	holder := l.Holder()
	if holder == "" {
		holder = "another operation"
	}
	return domain.ErrLockContention.WithDetails(fmt.Sprintf("%s refused: %s is running", op, holder))
}

// TryWrite acquires the exclusive side for op.
func (l *Lock) TryWrite(op string) (release func(), err error) {
	if !l.mu.TryLock() {
		return nil, l.contention(op)
	}
	l.setHolder(op)
	return func() {
		l.setHolder("")
		l.mu.Unlock()
	}, nil
}

// TryApply acquires the exclusive side and the write side of the read gate.
func (l *Lock) TryApply(op string) (release func(), err error) {
	if !l.mu.TryLock() {
		return nil, l.contention(op)
	}
	if !l.gate.TryLock() {
		l.mu.Unlock()
		return nil, domain.ErrLockContention.WithDetails(op + " refused: snapshot reads in progress")
	}
	l.setHolder(op)
	return func() {
		l.setHolder("")
		l.gate.Unlock()
		l.mu.Unlock()
	}, nil
}

// TryRead acquires the shared side of the read gate. It only fails while a
// restore apply runs.
func (l *Lock) TryRead(op string) (release func(), err error) {
	if !l.gate.TryRLock() {
		return nil, l.contention(op)
	}
	return l.gate.RUnlock, nil
}
