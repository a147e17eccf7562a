// Package lockfile serializes install runs against the same root with
// an advisory file lock.
package lockfile

import (
	"fmt"
	"os"
	"time"
)

// Mutex is a file-backed mutual exclusion lock.
type Mutex struct {
	path string
}

// MutexAt returns a Mutex for the given lock file path. The file is
// created on first Lock and never removed; only the lock state
// matters.
func MutexAt(path string) *Mutex {
	return &Mutex{path: path}
}

// Lock acquires the lock, waiting up to timeout for a concurrent
// holder. It returns the unlock function.
func (m *Mutex) Lock(timeout time.Duration) (unlock func(), err error) {
	f, err := os.OpenFile(m.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	for {
		err = tryLock(f)
		if err == nil {
			break
		}
		if !wouldBlock(err) {
			f.Close()
			return nil, fmt.Errorf("locking %s: %w", m.path, err)
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, fmt.Errorf("timed out waiting for lock %s (held by a concurrent install?)", m.path)
		}
		time.Sleep(50 * time.Millisecond)
	}

	return func() {
		unlockFile(f)
		f.Close()
	}, nil
}
