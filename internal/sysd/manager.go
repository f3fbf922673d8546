// Package sysd wraps the operating system service manager. Everything the
// fleet engine needs from systemd goes through the Manager interface so tests
// can substitute fakes.
package sysd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Manager is the OS service manager collaborator.
type Manager interface {
	Install(u Unit) error
	Uninstall(name string) error
	Start(name string) error
	Stop(name string) error
	Restart(name string) error
	Enable(name string) error
	Disable(name string) error
	IsActive(name string) (bool, error)
	ApplyOverride(name, profile string) error
	RemoveOverride(name string) error
	DaemonReload() error
}

// Systemctl drives systemd by executing the systemctl binary. Unit files and
// overrides are written under UnitDir.
type Systemctl struct {
	// UnitDir is where unit files live. Defaults to /etc/systemd/system.
	UnitDir string

	// run executes systemctl with the given arguments. Overridable in tests.
	run func(args ...string) (string, error)
}

func NewSystemctl() *Systemctl {
	return &Systemctl{UnitDir: "/etc/systemd/system"}
}

// Available checks if systemctl is on PATH.
func (s *Systemctl) Available() bool {
	_, err := exec.LookPath("systemctl")
	return err == nil
}

func (s *Systemctl) exec(args ...string) (string, error) {
	if s.run != nil {
		return s.run(args...)
	}
	out, err := exec.Command("systemctl", args...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func (s *Systemctl) unitDir() string {
	if s.UnitDir != "" {
		return s.UnitDir
	}
	return "/etc/systemd/system"
}

func (s *Systemctl) unitPath(name string) string {
	return filepath.Join(s.unitDir(), name)
}

func (s *Systemctl) overrideDir(name string) string {
	return filepath.Join(s.unitDir(), name+".d")
}

// Install writes the unit file. The caller reloads the daemon afterwards.
func (s *Systemctl) Install(u Unit) error {
	if err := os.MkdirAll(s.unitDir(), 0o755); err != nil {
		return fmt.Errorf("create unit dir: %w", err)
	}
	if err := os.WriteFile(s.unitPath(u.Name), []byte(u.Render()), 0o644); err != nil {
		return fmt.Errorf("write unit %s: %w", u.Name, err)
	}
	return nil
}

// Uninstall removes the unit file and any override directory.
func (s *Systemctl) Uninstall(name string) error {
	if err := os.Remove(s.unitPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove unit %s: %w", name, err)
	}
	if err := os.RemoveAll(s.overrideDir(name)); err != nil {
		return fmt.Errorf("remove override dir %s: %w", name, err)
	}
	return nil
}

func (s *Systemctl) Start(name string) error   { return s.ctl("start", name) }
func (s *Systemctl) Stop(name string) error    { return s.ctl("stop", name) }
func (s *Systemctl) Restart(name string) error { return s.ctl("restart", name) }
func (s *Systemctl) Enable(name string) error  { return s.ctl("enable", name) }
func (s *Systemctl) Disable(name string) error { return s.ctl("disable", name) }

func (s *Systemctl) ctl(verb, name string) error {
	if out, err := s.exec(verb, name); err != nil {
		return fmt.Errorf("systemctl %s %s: %w: %s", verb, name, err, out)
	}
	return nil
}

// IsActive reports liveness. An "inactive" or "failed" answer is not an error;
// only a failure to ask systemd at all is.
func (s *Systemctl) IsActive(name string) (bool, error) {
	out, err := s.exec("is-active", name)
	if out == "active" {
		return true, nil
	}
	switch out {
	case "inactive", "failed", "activating", "deactivating", "unknown":
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("systemctl is-active %s: %w", name, err)
	}
	return false, nil
}

// ApplyOverride writes the full override file, truncating any previous one so
// repeated application converges on the same state.
func (s *Systemctl) ApplyOverride(name, profile string) error {
	dir := s.overrideDir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create override dir %s: %w", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "override.conf"), []byte(profile), 0o644); err != nil {
		return fmt.Errorf("write override for %s: %w", name, err)
	}
	return nil
}

// RemoveOverride deletes the override directory. Missing is fine.
func (s *Systemctl) RemoveOverride(name string) error {
	if err := os.RemoveAll(s.overrideDir(name)); err != nil {
		return fmt.Errorf("remove override for %s: %w", name, err)
	}
	return nil
}

func (s *Systemctl) DaemonReload() error {
	if out, err := s.exec("daemon-reload"); err != nil {
		return fmt.Errorf("systemctl daemon-reload: %w: %s", err, out)
	}
	log.Debug().Msg("systemd configuration reloaded")
	return nil
}
