package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Error kinds surfaced by the bootstrapper. Callers discriminate with
// errors.Is; all are fatal.
var (
	ErrStoreUnavailable = errors.New("storage: environment unavailable")
	ErrWalletCorrupt    = errors.New("storage: wallet corrupt, salvage failed")
	ErrIndexUnavailable = errors.New("storage: block index unavailable")
)

// envDirName is the wallet/chain environment directory inside the data dir.
const envDirName = "database"

// OpenOutcome distinguishes a clean open from one that needed recovery.
// A recovered environment still starts, but the operator is warned.
type OpenOutcome int

const (
	OpenOK OpenOutcome = iota
	RecoveredOK
)

// OpenEnvironment opens the persistent wallet/chain environment under the
// data directory. When the first open fails, recovery runs in place; if that
// also fails the existing environment is renamed aside (best effort) and a
// fresh one is opened in its place. A store that defeats all three attempts
// is unavailable and startup cannot proceed.
func OpenEnvironment(dataDir string, cacheMB int, logger *slog.Logger) (*LevelDB, OpenOutcome, error) {
	if logger == nil {
		logger = slog.Default()
	}
	path := filepath.Join(dataDir, envDirName)

	env, err := OpenLevelDB(path, cacheMB)
	if err == nil {
		return env, OpenOK, nil
	}
	firstErr := err

	// In-place recovery first: rebuild the manifest from whatever tables are
	// still readable before giving up on the environment's contents.
	if env, err = RecoverLevelDB(path, cacheMB); err == nil {
		logger.Warn("database environment recovered in place", slog.String("path", path))
		return env, RecoveredOK, nil
	}

	backup := filepath.Join(dataDir, fmt.Sprintf("%s.%d.bak", envDirName, time.Now().Unix()))
	if renameErr := os.Rename(path, backup); renameErr == nil {
		logger.Warn("moved damaged database environment aside; retrying",
			slog.String("from", path),
			slog.String("to", backup))
	}
	// A failed rename is tolerated; the retry is no worse off than the
	// first attempt.

	env, err = OpenLevelDB(path, cacheMB)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s (open: %v, retry: %v)", ErrStoreUnavailable, path, firstErr, err)
	}
	logger.Warn("database environment recovered after retry", slog.String("path", path))
	return env, RecoveredOK, nil
}

// OpenChainIndex opens the persisted block index store. Failure here is fatal
// and distinct from wallet-environment failures.
func OpenChainIndex(dataDir string, cacheMB int) (*LevelDB, error) {
	path := filepath.Join(dataDir, "txleveldb")
	db, err := OpenLevelDB(path, cacheMB)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIndexUnavailable, path, err)
	}
	return db, nil
}
