// Package proclock enforces single-instance execution with an advisory
// file lock. The lock dies with the process, so a crashed instance never
// blocks its successor; the pid written into the file is informational.
package proclock

import (
	"fmt"
	"os"
	"strconv"

	"github.com/gofrs/flock"
)

// Lock is a held process lock.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes the advisory lock on path and records this process's pid
// in it. It fails without blocking when a live peer holds the lock.
func Acquire(path string) (*Lock, error) {
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("proclock: lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("proclock: %s is held by a running instance", path)
	}

	pid := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(path, []byte(pid), 0o644); err != nil {
		_ = fl.Unlock()
		return nil, fmt.Errorf("proclock: write pid to %s: %w", path, err)
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock. The file is left behind; only the lock matters.
func (l *Lock) Release() error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("proclock: unlock %s: %w", l.fl.Path(), err)
	}
	return nil
}
