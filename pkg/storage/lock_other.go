//go:build !unix

package storage

import "errors"

// ErrLockUnsupported is returned by Lock on platforms without flock.
var ErrLockUnsupported = errors.New("advisory file locks are not supported on this platform")

// FileLock is an exclusive advisory lock on a file. Only unix platforms
// implement it.
type FileLock struct {
	path string
}

// NewFileLock returns an unlocked lock on path.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// Lock always fails with ErrLockUnsupported.
func (l *FileLock) Lock() error {
	return ErrLockUnsupported
}

// Unlock is a no-op.
func (l *FileLock) Unlock() error {
	return nil
}
