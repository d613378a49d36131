package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	if l.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", l.PID, os.Getpid())
	}
	if _, err := os.Stat(l.Path()); err != nil {
		t.Fatalf("lock file missing: %v", err)
	}

	if err := l.Release(); err != nil {
		t.Fatalf("Release error: %v", err)
	}
	if _, err := os.Stat(l.Path()); !os.IsNotExist(err) {
		t.Error("lock file should be gone after Release")
	}
}

func TestAcquire_HeldByLiveProcess(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Release()

	// This test process is alive, so a second acquire must fail.
	_, err = Acquire(dir)
	var locked *ErrLocked
	if !errors.As(err, &locked) {
		t.Fatalf("err = %v, want ErrLocked", err)
	}
	if locked.PID != os.Getpid() {
		t.Errorf("ErrLocked.PID = %d, want %d", locked.PID, os.Getpid())
	}
}

func TestAcquire_TakesOverStaleLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LockFileName)

	stale := Lock{PID: 1 << 30, StartedAt: time.Now().Add(-time.Hour)}
	data, err := yaml.Marshal(stale)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	l, err := Acquire(dir)
	if err != nil {
		t.Fatalf("stale lock should be taken over: %v", err)
	}
	defer l.Release()
	if l.PID != os.Getpid() {
		t.Errorf("PID = %d, want current process", l.PID)
	}
}

func TestAcquire_CorruptLockFileIsReplaced(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, LockFileName), []byte("{not yaml"), 0644)

	l, err := Acquire(dir)
	if err != nil {
		t.Fatalf("corrupt lock should be replaced: %v", err)
	}
	l.Release()
}

func TestRelease_NilSafe(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Errorf("nil Release error: %v", err)
	}
}
