package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrBusy is returned when another backup or restore holds the lock.
var ErrBusy = errors.New("another backup/restore is already running")

const retryDelay = 250 * time.Millisecond

type Lock struct {
	file *flock.Flock
}

// DefaultPath is used when no lock file is configured.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), "ffbackup.lock")
}

// Acquire takes the host-wide operation lock. With wait > 0 it keeps trying
// until the lock frees up or wait elapses.
func Acquire(ctx context.Context, path string, wait time.Duration) (*Lock, error) {
	if path == "" {
		path = DefaultPath()
	}
	fl := flock.New(path)

	var (
		ok  bool
		err error
	)
	if wait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		ok, err = fl.TryLockContext(waitCtx, retryDelay)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			ok, err = false, nil
		}
	} else {
		ok, err = fl.TryLock()
	}
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock: %s)", ErrBusy, path)
	}
	return &Lock{file: fl}, nil
}

// Release frees the lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Unlock()
}
