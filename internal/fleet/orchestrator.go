package fleet

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/runnerfleet/runnerfleet/internal/artifact"
	"github.com/runnerfleet/runnerfleet/internal/cron"
	"github.com/runnerfleet/runnerfleet/internal/sysd"
	"github.com/runnerfleet/runnerfleet/pkg/api"
)

type fetcher interface {
	Fetch(ctx context.Context, src artifact.Source) (*artifact.Artifact, error)
}

type provisioner interface {
	Provision(ctx context.Context, id Identity, art *artifact.Artifact, spec Spec) Record
}

type hardener interface {
	Harden(service, dir string) (sysd.HardeningState, error)
}

type maintenance interface {
	Upsert(e cron.Entry) error
}

type manifestWriter interface {
	Save(ctx context.Context, id Identity, repo string) error
}

// Orchestrator sequences one provisioning run: derive identities, fetch the
// artifact once, provision and harden each instance in index order, then
// upsert the fleet-wide maintenance entries. One instance's failure never
// aborts the rest of the fleet.
type Orchestrator struct {
	Fetcher     fetcher
	Provisioner provisioner
	Hardening   hardener
	Scheduler   maintenance
	Manifest    manifestWriter
	Source      artifact.Source
}

// ErrPartialFailure reports that at least one instance failed. The per-instance
// outcomes still cover the whole fleet.
var ErrPartialFailure = errors.New("some instances failed")

// Up provisions the fleet. Validation and artifact acquisition failures abort
// the run before any instance is touched; everything after that is isolated
// per instance. The run succeeds only when no instance failed; rolled-back
// hardening counts as degraded success and is reported, not hidden.
func (o *Orchestrator) Up(ctx context.Context, spec Spec) ([]api.InstanceOutcome, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	ids := Identities(spec)

	art, err := o.Fetcher.Fetch(ctx, o.Source)
	if err != nil {
		return nil, err
	}
	defer art.Close()

	outcomes := make([]api.InstanceOutcome, 0, len(ids))
	failed := 0
	for _, id := range ids {
		outcomes = append(outcomes, o.runInstance(ctx, id, art, spec))
		if outcomes[len(outcomes)-1].Status == api.StatusFailed {
			failed++
		}
	}

	// Maintenance entries span the whole fleet and are upserted exactly once
	// per run, replacing whatever an earlier (possibly differently sized) run
	// left behind.
	workDirs := make([]string, 0, len(ids))
	for _, id := range ids {
		workDirs = append(workDirs, WorkDir(id))
	}
	if err := o.Scheduler.Upsert(cron.PruneEntry(spec.BaseDir)); err != nil {
		return outcomes, fmt.Errorf("upsert prune schedule: %w", err)
	}
	if err := o.Scheduler.Upsert(cron.SweepEntry(workDirs)); err != nil {
		return outcomes, fmt.Errorf("upsert sweep schedule: %w", err)
	}

	if failed > 0 {
		return outcomes, fmt.Errorf("%w: %d of %d", ErrPartialFailure, failed, len(ids))
	}
	return outcomes, nil
}

func (o *Orchestrator) runInstance(ctx context.Context, id Identity, art *artifact.Artifact, spec Spec) api.InstanceOutcome {
	out := api.InstanceOutcome{
		Index:     id.Index,
		Name:      id.Name,
		Directory: id.Dir,
		Service:   id.Service,
		Hardening: string(sysd.HardeningNotApplied),
	}

	rec := o.Provisioner.Provision(ctx, id, art, spec)
	out.State = string(rec.State)
	if rec.Err != nil {
		log.Error().Err(rec.Err).Str("instance", id.Name).Str("state", string(rec.State)).Msg("provisioning failed")
		out.Status = api.StatusFailed
		out.Error = rec.Err.Error()
		return out
	}

	if err := o.Manifest.Save(ctx, id, spec.Repo); err != nil {
		// The instance itself is healthy; a manifest write failure only
		// degrades later discovery, which still has the convention scan.
		log.Warn().Err(err).Str("instance", id.Name).Msg("manifest write failed")
	}

	state, err := o.Hardening.Harden(id.Service, id.Dir)
	out.Hardening = string(state)
	if err != nil {
		log.Error().Err(err).Str("instance", id.Name).Msg("hardening failed")
		out.Status = api.StatusFailed
		out.Error = err.Error()
		return out
	}
	if state == sysd.HardeningRolledBack {
		log.Warn().Str("instance", id.Name).Msg("running unhardened after rollback")
		out.Status = api.StatusDegraded
		return out
	}
	out.Status = api.StatusSucceeded
	return out
}
