package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when the maintenance lock is held in a conflicting mode.
var ErrLocked = errors.New("maintenance lock is held by another process")

const defaultLockRetry = 250 * time.Millisecond

// MaintenanceLock is an advisory file lock shared with backup and restore
// tooling. Ingestion holds it shared; maintenance holds it exclusive.
//
// Shared holders inside this process are reference counted over one file
// handle, since releasing a flock on a handle releases it for every holder.
type MaintenanceLock struct {
	path  string
	retry time.Duration

	mu      sync.Mutex
	shared  *flock.Flock
	holders int
}

// NewMaintenanceLock prepares the lock file at path.
func NewMaintenanceLock(path string) (*MaintenanceLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	return &MaintenanceLock{
		path:   path,
		retry:  defaultLockRetry,
		shared: flock.New(path),
	}, nil
}

// Path returns the lock file path.
func (l *MaintenanceLock) Path() string {
	return l.path
}

// AcquireShared takes the shared lock, waiting until ctx is done. The
// returned release func is safe to call more than once.
func (l *MaintenanceLock) AcquireShared(ctx context.Context) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.holders == 0 {
		ok, err := l.shared.TryRLockContext(ctx, l.retry)
		if err != nil {
			return nil, fmt.Errorf("acquiring shared lock: %w", err)
		}
		if !ok {
			return nil, ErrLocked
		}
	}
	l.holders++
	return sync.OnceFunc(l.releaseShared), nil
}

func (l *MaintenanceLock) releaseShared() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holders--
	if l.holders == 0 {
		_ = l.shared.Unlock()
	}
}

// TryExclusive takes the exclusive lock without waiting. It fails with
// ErrLocked while any shared or exclusive holder exists, including shared
// holders in this process.
func (l *MaintenanceLock) TryExclusive() (func(), error) {
	fl := flock.New(l.path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring exclusive lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return sync.OnceFunc(func() { _ = fl.Unlock() }), nil
}
