// Package lockfile implements bidoc.lock — an advisory run lock that
// serializes sync runs over one project. Concurrent syncs of the same
// document would race on the hash store (last writer wins), so the CLI
// takes this lock before touching any document.
//
// The lock file is stored alongside bidoc.yaml as bidoc.lock and
// records the holder's pid and start time. A lock whose pid no longer
// exists is considered stale and is taken over.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"
)

// LockFileName is the default lock file name.
const LockFileName = "bidoc.lock"

// Lock represents a held project lock.
type Lock struct {
	// PID is the process holding the lock.
	PID int `yaml:"pid"`
	// StartedAt is when the lock was taken.
	StartedAt time.Time `yaml:"started_at"`

	path string
}

// ErrLocked is wrapped into Acquire's error when another live process
// holds the lock.
type ErrLocked struct {
	PID  int
	Path string
}

func (e *ErrLocked) Error() string {
	return fmt.Sprintf("project is locked by pid %d (%s)", e.PID, e.Path)
}

// Acquire takes the project lock in dir, failing if a live process
// already holds it. Stale locks from dead processes are replaced.
func Acquire(dir string) (*Lock, error) {
	path := filepath.Join(dir, LockFileName)

	if data, err := os.ReadFile(path); err == nil {
		var existing Lock
		if yaml.Unmarshal(data, &existing) == nil && existing.PID > 0 && processAlive(existing.PID) {
			return nil, &ErrLocked{PID: existing.PID, Path: path}
		}
		// Stale lock: the holder is gone.
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	l := &Lock{
		PID:       os.Getpid(),
		StartedAt: time.Now(),
		path:      path,
	}
	data, err := yaml.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshaling lock file: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	return l, nil
}

// Release removes the lock file. Safe to call once per Acquire.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", l.path, err)
	}
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// processAlive reports whether a pid refers to a running process.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes existence without delivering anything.
	return proc.Signal(syscall.Signal(0)) == nil
}
