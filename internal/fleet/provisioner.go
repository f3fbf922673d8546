package fleet

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/runnerfleet/runnerfleet/internal/artifact"
	"github.com/runnerfleet/runnerfleet/internal/sysd"
)

// Provisioner drives a single instance through install -> register ->
// service-wrap. Every step is individually safe to re-run; there is no
// partial rollback, an idempotent re-run is the recovery path.
type Provisioner struct {
	Service   sysd.Manager
	Registrar Registrar

	// Principal is the dedicated unprivileged user that owns instance
	// directories and runs the services. Empty skips ownership changes
	// (tests, or an operator already running as the principal).
	Principal string

	ServerURL string
}

// Provision runs the step sequence for one instance. It stops at the first
// failing step and returns a record carrying the state reached plus the error.
func (p *Provisioner) Provision(ctx context.Context, id Identity, art *artifact.Artifact, spec Spec) Record {
	rec := Record{Identity: id, State: StateUnprovisioned}

	if err := p.ensureDir(id.Dir); err != nil {
		rec.Err = err
		return rec
	}
	if err := art.Unpack(id.Dir); err != nil {
		rec.Err = FilesystemError{Op: "extract into", Path: id.Dir, Err: err}
		return rec
	}
	if err := p.chownTree(id.Dir); err != nil {
		rec.Err = err
		return rec
	}
	rec.State = StateExtracted
	log.Debug().Str("instance", id.Name).Str("dir", id.Dir).Msg("runner package extracted")

	err := p.Registrar.Register(ctx, id.Dir, RegisterParams{
		ServerURL: p.ServerURL,
		Repo:      spec.Repo,
		Token:     spec.Token,
		Name:      id.Name,
		Labels:    spec.Labels,
		Replace:   true,
	})
	if err != nil {
		rec.Err = err
		return rec
	}
	rec.State = StateRegistered
	log.Info().Str("instance", id.Name).Str("repo", spec.Repo).Msg("instance registered")

	unit := sysd.Unit{
		Name:        id.Service,
		Description: fmt.Sprintf("CI runner %s (%s)", id.Name, spec.Repo),
		Dir:         id.Dir,
		User:        p.Principal,
	}
	if err := p.Service.Install(unit); err != nil {
		rec.Err = err
		return rec
	}
	if err := p.Service.DaemonReload(); err != nil {
		rec.Err = err
		return rec
	}
	if err := p.Service.Enable(id.Service); err != nil {
		rec.Err = err
		return rec
	}
	if err := p.Service.Start(id.Service); err != nil {
		rec.Err = err
		return rec
	}
	rec.State = StateServiceInstalled
	log.Info().Str("instance", id.Name).Str("service", id.Service).Msg("service installed and started")
	return rec
}

// ensureDir creates the instance directory with restrictive permissions and
// hands it to the principal.
func (p *Provisioner) ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return FilesystemError{Op: "create", Path: dir, Err: err}
	}
	return p.chown(dir)
}

func (p *Provisioner) lookupPrincipal() (uid, gid int, err error) {
	u, err := user.Lookup(p.Principal)
	if err != nil {
		return 0, 0, err
	}
	uid, err = strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, err
	}
	gid, err = strconv.Atoi(u.Gid)
	if err != nil {
		return 0, 0, err
	}
	return uid, gid, nil
}

func (p *Provisioner) chown(path string) error {
	if p.Principal == "" {
		return nil
	}
	uid, gid, err := p.lookupPrincipal()
	if err != nil {
		return FilesystemError{Op: "lookup principal for", Path: path, Err: err}
	}
	if err := os.Chown(path, uid, gid); err != nil {
		return FilesystemError{Op: "chown", Path: path, Err: err}
	}
	return nil
}

// chownTree re-owns the extracted tree. Extraction runs as the invoking
// principal, the service runs as the dedicated one.
func (p *Provisioner) chownTree(root string) error {
	if p.Principal == "" {
		return nil
	}
	uid, gid, err := p.lookupPrincipal()
	if err != nil {
		return FilesystemError{Op: "lookup principal for", Path: root, Err: err}
	}
	return walkChown(root, uid, gid)
}

func walkChown(root string, uid, gid int) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return FilesystemError{Op: "read", Path: root, Err: err}
	}
	if err := os.Chown(root, uid, gid); err != nil {
		return FilesystemError{Op: "chown", Path: root, Err: err}
	}
	for _, e := range entries {
		path := root + string(os.PathSeparator) + e.Name()
		if e.IsDir() {
			if err := walkChown(path, uid, gid); err != nil {
				return err
			}
			continue
		}
		if err := os.Lchown(path, uid, gid); err != nil {
			return FilesystemError{Op: "chown", Path: path, Err: err}
		}
	}
	return nil
}
