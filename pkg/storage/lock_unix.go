//go:build unix

package storage

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// FileLock is an exclusive advisory lock on a file, shared by every
// process that opens the same path.
//
// Lock blocks until the lock is free. There is no timeout: a holder that
// never releases stalls every other writer. The operating system drops the
// lock when the holding process exits, so a crashed writer does not leave
// the table locked.
//
// Example:
//
//	lock := storage.NewFileLock(filepath.Join(dir, "test_results.lock"))
//	if err := lock.Lock(); err != nil {
//		return err
//	}
//	defer lock.Unlock()
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock returns an unlocked lock on path.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// Lock acquires the exclusive lock, creating the file if needed.
func (l *FileLock) Lock() error {
	if l.file != nil {
		return fmt.Errorf("lock %s already held", l.path)
	}

	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to lock %s: %w", l.path, err)
	}

	l.file = f
	return nil
}

// Unlock releases the lock. Unlocking an unheld lock is a no-op.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil

	unlockErr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	closeErr := f.Close()
	if unlockErr != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.path, unlockErr)
	}
	return closeErr
}
