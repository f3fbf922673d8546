package sysd

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// scriptedManager plays back a scripted sequence of liveness answers.
type scriptedManager struct {
	overrides map[string]string
	calls     []string
	liveness  []bool
	restarts  int
}

func newScriptedManager(liveness ...bool) *scriptedManager {
	return &scriptedManager{overrides: map[string]string{}, liveness: liveness}
}

func (m *scriptedManager) record(c string) { m.calls = append(m.calls, c) }

func (m *scriptedManager) Install(u Unit) error          { m.record("install"); return nil }
func (m *scriptedManager) Uninstall(name string) error   { m.record("uninstall"); return nil }
func (m *scriptedManager) Start(name string) error       { m.record("start"); return nil }
func (m *scriptedManager) Stop(name string) error        { m.record("stop"); return nil }
func (m *scriptedManager) Enable(name string) error      { m.record("enable"); return nil }
func (m *scriptedManager) Disable(name string) error     { m.record("disable"); return nil }
func (m *scriptedManager) DaemonReload() error           { m.record("daemon-reload"); return nil }

func (m *scriptedManager) Restart(name string) error {
	m.record("restart")
	m.restarts++
	return nil
}

func (m *scriptedManager) IsActive(name string) (bool, error) {
	m.record("is-active")
	if len(m.liveness) == 0 {
		return false, errors.New("liveness script exhausted")
	}
	v := m.liveness[0]
	m.liveness = m.liveness[1:]
	return v, nil
}

func (m *scriptedManager) ApplyOverride(name, profile string) error {
	m.record("apply-override")
	m.overrides[name] = profile
	return nil
}

func (m *scriptedManager) RemoveOverride(name string) error {
	m.record("remove-override")
	delete(m.overrides, name)
	return nil
}

func newTestController(m Manager) *Controller {
	c := NewController(m, time.Second)
	c.sleep = func(time.Duration) {}
	return c
}

func TestHardenVerified(t *testing.T) {
	mgr := newScriptedManager(true)
	c := newTestController(mgr)

	state, err := c.Harden("svc.service", "/opt/runner")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != HardeningVerified {
		t.Errorf("expected verified, got %s", state)
	}
	if _, ok := mgr.overrides["svc.service"]; !ok {
		t.Errorf("override must stay in place when the service survives")
	}
}

func TestHardenRollbackLeavesServiceActiveAndOverrideRemoved(t *testing.T) {
	// inactive after apply, active again after rollback
	mgr := newScriptedManager(false, true)
	c := newTestController(mgr)

	state, err := c.Harden("svc.service", "/opt/runner")
	if err != nil {
		t.Fatalf("rollback that restores the service is not an error: %v", err)
	}
	if state != HardeningRolledBack {
		t.Errorf("expected rolled-back, got %s", state)
	}
	if _, ok := mgr.overrides["svc.service"]; ok {
		t.Errorf("override must be removed on rollback")
	}
	if mgr.restarts != 2 {
		t.Errorf("expected restart after apply and after rollback, got %d", mgr.restarts)
	}
}

func TestHardenRollbackFailureIsFatalButOverrideGone(t *testing.T) {
	// inactive after apply and still inactive after rollback
	mgr := newScriptedManager(false, false)
	c := newTestController(mgr)

	state, err := c.Harden("svc.service", "/opt/runner")
	var hf HardeningFailure
	if !errors.As(err, &hf) {
		t.Fatalf("expected HardeningFailure, got %v", err)
	}
	if state != HardeningRolledBack {
		t.Errorf("expected rolled-back state, got %s", state)
	}
	if _, ok := mgr.overrides["svc.service"]; ok {
		t.Errorf("override must be removed even when rollback does not revive the service")
	}
}

func TestApplyTwiceConverges(t *testing.T) {
	mgr := newScriptedManager()
	c := newTestController(mgr)

	if err := c.Apply("svc.service", "/opt/runner"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	first := mgr.overrides["svc.service"]
	if err := c.Apply("svc.service", "/opt/runner"); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	second := mgr.overrides["svc.service"]
	if first != second {
		t.Errorf("repeated apply must fully overwrite, not append")
	}
}

func TestHardeningProfileScopesWritesToInstanceDir(t *testing.T) {
	p := HardeningProfile("/opt/runner-2")
	if !strings.Contains(p, "ReadWritePaths=/opt/runner-2") {
		t.Errorf("profile must keep the instance dir writable:\n%s", p)
	}
	if !strings.Contains(p, "NoNewPrivileges=yes") {
		t.Errorf("profile missing NoNewPrivileges:\n%s", p)
	}
}
