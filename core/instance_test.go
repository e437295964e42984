package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestInstanceGuardExclusive(t *testing.T) {
	dir := t.TempDir()

	guard, err := AcquireInstanceGuard(dir)
	if err != nil {
		t.Fatalf("AcquireInstanceGuard: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "nyxd.pid")); err != nil {
		t.Fatalf("pid file missing: %v", err)
	}

	if _, err := AcquireInstanceGuard(dir); !errors.Is(err, ErrDirectoryInUse) {
		t.Fatalf("second acquire err = %v, want ErrDirectoryInUse", err)
	}

	if err := guard.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "nyxd.pid")); !os.IsNotExist(err) {
		t.Fatal("pid file survived release")
	}

	// Released directory can be reacquired, and release is idempotent.
	if err := guard.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	again, err := AcquireInstanceGuard(dir)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	_ = again.Release()
}

func TestInstanceGuardCreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	guard, err := AcquireInstanceGuard(dir)
	if err != nil {
		t.Fatalf("AcquireInstanceGuard: %v", err)
	}
	defer guard.Release()
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("data directory not created: %v", err)
	}
}
