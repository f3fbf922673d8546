package fleet

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/runnerfleet/runnerfleet/internal/cron"
	"github.com/runnerfleet/runnerfleet/internal/sysd"
	"github.com/runnerfleet/runnerfleet/pkg/api"
)

type maintenanceRemover interface {
	Remove(tag string) error
}

type manifestReader interface {
	List(ctx context.Context) ([]Identity, error)
	Delete(ctx context.Context, name string) error
}

// Teardown discovers previously provisioned instances and removes them,
// tolerating partial failure: every discovered instance is attempted no
// matter how many before it failed.
type Teardown struct {
	Service   sysd.Manager
	Registrar Registrar
	Scheduler maintenanceRemover
	Manifest  manifestReader
}

// Discover returns the instances to tear down. The persisted manifest is the
// source of truth; the naming-convention scan is the fallback when the
// manifest is missing or empty (for example fleets provisioned by an older
// build).
func (t *Teardown) Discover(ctx context.Context, baseName, baseDir, repo string) []Identity {
	if t.Manifest != nil {
		ids, err := t.Manifest.List(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("manifest read failed, falling back to convention scan")
		} else if len(ids) > 0 {
			return ids
		}
	}
	return ScanConvention(baseName, baseDir, repo)
}

// Down removes every given instance: stop and uninstall its service
// (best-effort), deregister it with the removal credential, delete its
// directory and manifest row. Afterwards it retracts the shared maintenance
// entries, which reference possibly-now-deleted paths.
func (t *Teardown) Down(ctx context.Context, ids []Identity, removeToken string) api.TeardownResult {
	res := api.TeardownResult{Attempted: len(ids)}

	for _, id := range ids {
		if err := t.downOne(ctx, id, removeToken); err != nil {
			log.Error().Err(err).Str("instance", id.Name).Msg("teardown failed")
			res.Failed++
			res.Failures = append(res.Failures, api.TeardownFailure{Name: id.Name, Reason: err.Error()})
			continue
		}
		log.Info().Str("instance", id.Name).Msg("instance removed")
	}

	for _, tag := range []string{cron.TagPrune, cron.TagSweep} {
		if err := t.Scheduler.Remove(tag); err != nil {
			log.Warn().Err(err).Str("tag", tag).Msg("maintenance entry retraction failed")
		}
	}
	return res
}

func (t *Teardown) downOne(ctx context.Context, id Identity, removeToken string) error {
	// Service removal is best-effort: a unit that is already gone or a
	// systemd hiccup must not leave the runner registered remotely.
	if err := t.Service.Stop(id.Service); err != nil {
		log.Warn().Err(err).Str("service", id.Service).Msg("stop failed")
	}
	if err := t.Service.Disable(id.Service); err != nil {
		log.Warn().Err(err).Str("service", id.Service).Msg("disable failed")
	}
	if err := t.Service.Uninstall(id.Service); err != nil {
		log.Warn().Err(err).Str("service", id.Service).Msg("uninstall failed")
	}
	if err := t.Service.DaemonReload(); err != nil {
		log.Warn().Err(err).Msg("daemon-reload failed")
	}

	if err := t.Registrar.Deregister(ctx, id.Dir, id.Name, removeToken); err != nil {
		return err
	}

	if err := os.RemoveAll(id.Dir); err != nil {
		return FilesystemError{Op: "remove", Path: id.Dir, Err: err}
	}
	if t.Manifest != nil {
		if err := t.Manifest.Delete(ctx, id.Name); err != nil {
			log.Warn().Err(err).Str("instance", id.Name).Msg("manifest row removal failed")
		}
	}
	return nil
}
