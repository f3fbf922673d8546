package sysd

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// HardeningState tracks the per-instance hardening state machine:
// NotApplied -> Applied -> (Verified | RolledBack).
type HardeningState string

const (
	HardeningNotApplied HardeningState = "not-applied"
	HardeningApplied    HardeningState = "applied"
	HardeningVerified   HardeningState = "verified"
	HardeningRolledBack HardeningState = "rolled-back"
)

// HardeningFailure means the service stayed down even after the hardening
// override was rolled back. The override is removed by then; the fault lies
// elsewhere.
type HardeningFailure struct {
	Service string
	Err     error
}

func (e HardeningFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("hardening %s: service inactive after rollback: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("hardening %s: service inactive after rollback", e.Service)
}

func (e HardeningFailure) Unwrap() error { return e.Err }

// HardeningProfile renders the restrictive override applied to one instance's
// service. The instance directory stays writable; everything else locks down.
// Some sandboxed hosts reject individual restrictions, which is why rollback
// exists: prefer running unhardened over not running.
func HardeningProfile(dir string) string {
	return fmt.Sprintf(`[Service]
NoNewPrivileges=yes
PrivateTmp=yes
ProtectSystem=full
ProtectKernelModules=yes
ProtectKernelTunables=yes
ProtectControlGroups=yes
RestrictSUIDSGID=yes
RestrictRealtime=yes
LockPersonality=yes
ReadWritePaths=%s
`, dir)
}

// Controller applies a hardening profile to a provisioned instance's service
// and verifies the service survives it, rolling back when it does not.
type Controller struct {
	Manager Manager

	// Grace is how long to wait after a restart before checking liveness.
	Grace time.Duration

	// sleep is overridable in tests.
	sleep func(time.Duration)
}

func NewController(m Manager, grace time.Duration) *Controller {
	return &Controller{Manager: m, Grace: grace}
}

func (c *Controller) wait() {
	if c.sleep != nil {
		c.sleep(c.Grace)
		return
	}
	time.Sleep(c.Grace)
}

// Apply writes the override (full overwrite, so a second Apply converges on
// the same state), reloads systemd, and restarts the service.
func (c *Controller) Apply(service, dir string) error {
	if err := c.Manager.ApplyOverride(service, HardeningProfile(dir)); err != nil {
		return err
	}
	if err := c.Manager.DaemonReload(); err != nil {
		return err
	}
	if err := c.Manager.Restart(service); err != nil {
		return err
	}
	return nil
}

// Verify checks liveness after the grace period. An inactive service triggers
// a complete rollback: override removed, configuration reloaded, service
// restarted and re-checked. Only a service that stays down after rollback is
// a failure, and by then the override is guaranteed gone.
func (c *Controller) Verify(service string) (HardeningState, error) {
	c.wait()
	active, err := c.Manager.IsActive(service)
	if err != nil {
		return HardeningApplied, err
	}
	if active {
		return HardeningVerified, nil
	}

	log.Warn().Str("service", service).Msg("service inactive after hardening, rolling back")
	if err := c.Manager.RemoveOverride(service); err != nil {
		return HardeningApplied, err
	}
	if err := c.Manager.DaemonReload(); err != nil {
		return HardeningRolledBack, err
	}
	if err := c.Manager.Restart(service); err != nil {
		return HardeningRolledBack, HardeningFailure{Service: service, Err: err}
	}
	c.wait()
	active, err = c.Manager.IsActive(service)
	if err != nil {
		return HardeningRolledBack, err
	}
	if !active {
		return HardeningRolledBack, HardeningFailure{Service: service}
	}
	return HardeningRolledBack, nil
}

// Harden runs the full apply-then-verify sequence for one instance.
func (c *Controller) Harden(service, dir string) (HardeningState, error) {
	if err := c.Apply(service, dir); err != nil {
		return HardeningNotApplied, err
	}
	return c.Verify(service)
}
