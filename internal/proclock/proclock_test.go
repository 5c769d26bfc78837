package proclock_test

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"alerta/internal/proclock"
)

func TestAcquireWritesPid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alertad.pid")

	lock, err := proclock.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Release()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("pid file content %q is not a pid", data)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
}

func TestAcquireFailsWhileHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alertad.pid")

	lock, err := proclock.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Release()

	if _, err := proclock.Acquire(path); err == nil {
		t.Fatal("second Acquire succeeded while the lock is held")
	}
}

func TestAcquireSucceedsAfterRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alertad.pid")

	lock, err := proclock.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	again, err := proclock.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	again.Release()
}
