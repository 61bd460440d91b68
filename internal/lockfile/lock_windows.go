//go:build windows

package lockfile

import (
	"errors"
	"os"
)

var errProcessLocked = errors.New("working directory lock already held by another process")

// FlockExclusiveNonBlocking attempts to acquire an exclusive non-blocking lock.
// Returns nil if the lock was acquired, ErrLockBusy if another process
// already holds it.
func FlockExclusiveNonBlocking(f *os.File) error {
	return FlockExclusiveNonBlock(f)
}

// FlockUnlock releases a lock previously acquired with
// FlockExclusiveNonBlocking or FlockSharedNonBlock.
func FlockUnlock(f *os.File) error {
	return unlockFile(f)
}
