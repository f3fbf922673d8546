// Package cron manages the shared periodic-job schedule owned by the runner
// principal. The schedule is a shared mutable resource: every change goes
// through a whole-set replacement guarded by an exclusive file lock, so two
// operators re-running provisioning cannot lose each other's updates.
package cron

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// JobStore is the periodic-job store collaborator: list the current entries,
// replace the whole set atomically.
type JobStore interface {
	List() ([]string, error)
	ReplaceAll(lines []string) error
}

// Crontab drives the principal's crontab via the crontab binary.
type Crontab struct {
	// User is the crontab owner. Empty means the invoking user.
	User string
}

func (c *Crontab) args(extra ...string) []string {
	var a []string
	if c.User != "" {
		a = append(a, "-u", c.User)
	}
	return append(a, extra...)
}

// List returns the current crontab lines. A missing crontab is an empty set.
func (c *Crontab) List() ([]string, error) {
	out, err := exec.Command("crontab", c.args("-l")...).CombinedOutput()
	if err != nil {
		// crontab -l exits non-zero when the user has no crontab yet.
		if strings.Contains(string(out), "no crontab") {
			return nil, nil
		}
		return nil, fmt.Errorf("crontab -l: %w: %s", err, strings.TrimSpace(string(out)))
	}
	var lines []string
	for _, l := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

// ReplaceAll installs the given lines as the complete crontab. crontab(1)
// replaces the whole spool file in one operation, which gives the atomic
// whole-set semantics the scheduler relies on.
func (c *Crontab) ReplaceAll(lines []string) error {
	body := strings.Join(lines, "\n")
	if body != "" {
		body += "\n"
	}
	cmd := exec.Command("crontab", c.args("-")...)
	cmd.Stdin = strings.NewReader(body)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("crontab install: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// FileLock serializes read-modify-write cycles across processes.
type FileLock struct {
	path string
	f    *os.File
}

func NewFileLock(path string) *FileLock { return &FileLock{path: path} }

func (l *FileLock) Lock() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return fmt.Errorf("flock %s: %w", l.path, err)
	}
	l.f = f
	return nil
}

func (l *FileLock) Unlock() error {
	if l.f == nil {
		return nil
	}
	err := syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	closeErr := l.f.Close()
	l.f = nil
	if err != nil {
		return err
	}
	return closeErr
}
