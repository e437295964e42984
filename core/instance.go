package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"
)

// ErrDirectoryInUse means another node process holds the data directory.
var ErrDirectoryInUse = errors.New("data directory in use")

// InstanceGuard holds the exclusive advisory lock on the data directory so
// only one node process can operate on it at a time. The lock lives for the
// process lifetime and is released during shutdown.
type InstanceGuard struct {
	dataDir string
	lock    *flock.Flock
	pidFile string
}

// AcquireInstanceGuard takes the data directory lock, creating the lock file
// if it does not exist, and writes the pid file. It fails before any
// persistent store is touched when another process owns the directory.
func AcquireInstanceGuard(dataDir string) (*InstanceGuard, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create data directory %s: %w", dataDir, err)
	}
	lock := flock.New(filepath.Join(dataDir, ".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("cannot lock data directory %s: %w", dataDir, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s (is another instance running?)", ErrDirectoryInUse, dataDir)
	}

	guard := &InstanceGuard{
		dataDir: dataDir,
		lock:    lock,
		pidFile: filepath.Join(dataDir, "nyxd.pid"),
	}
	pid := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(guard.pidFile, []byte(pid), 0o600); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("cannot write pid file %s: %w", guard.pidFile, err)
	}
	return guard, nil
}

// Release removes the pid file and drops the lock. Idempotent.
func (g *InstanceGuard) Release() error {
	if g == nil || g.lock == nil {
		return nil
	}
	_ = os.Remove(g.pidFile)
	err := g.lock.Unlock()
	g.lock = nil
	return err
}
