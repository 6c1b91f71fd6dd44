package store

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another run holds the lock.
var ErrLocked = errors.New("another run is in progress")

// RunLock keeps concurrent runs off the same store.
type RunLock struct {
	fl *flock.Flock
}

// AcquireRunLock takes a non-blocking exclusive lock on path + ".lock".
func AcquireRunLock(path string) (*RunLock, error) {
	fl := flock.New(path + ".lock")
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", fl.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: %w", fl.Path(), ErrLocked)
	}
	return &RunLock{fl: fl}, nil
}

func (l *RunLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
