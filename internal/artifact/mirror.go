package artifact

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/runnerfleet/runnerfleet/internal/sshx"
)

// Mirror fetches the runner package from an internal SFTP mirror, for hosts
// that cannot reach the public release endpoint. The mirror lays out packages
// as <dir>/runner-<version>-<os>-<arch>.tar.gz with a .sha256 sidecar.
type Mirror struct {
	Addr       string
	User       string
	KeyPath    string
	KnownHosts string
	Dir        string
}

func (m *Mirror) packageName(version string) string {
	return fmt.Sprintf("runner-%s-%s-%s.tar.gz", version, runtime.GOOS, runtime.GOARCH)
}

func (f *Fetcher) fetchMirror(ctx context.Context, src Source, scratch string) (*Artifact, error) {
	m := src.Mirror
	if src.Version == "" {
		return nil, ResolutionError{Ref: m.Addr, Err: fmt.Errorf("mirror fetch requires a pinned version")}
	}

	signer, err := sshx.LoadPrivateKeySigner(m.KeyPath)
	if err != nil {
		return nil, ResolutionError{Ref: m.Addr, Err: err}
	}
	kh, err := sshx.LoadKnownHostsCallback(m.KnownHosts)
	if err != nil {
		return nil, ResolutionError{Ref: m.Addr, Err: err}
	}
	cli, err := sshx.Dial(ctx, &sshx.Client{
		Addr:       m.Addr,
		User:       m.User,
		Signer:     signer,
		KnownHosts: kh,
		Timeout:    15 * time.Second,
		Retries:    2,
		Backoff:    500 * time.Millisecond,
	})
	if err != nil {
		return nil, ResolutionError{Ref: m.Addr, Err: err}
	}
	defer cli.Close()

	name := m.packageName(src.Version)
	remote := path.Join(m.Dir, name)
	local := filepath.Join(scratch, name)

	sumBytes, err := sshx.ReadRemoteFile(ctx, cli, remote+".sha256")
	if err != nil {
		return nil, ResolutionError{Ref: remote, Err: err}
	}
	fields := strings.Fields(strings.TrimSpace(string(sumBytes)))
	if len(fields) == 0 {
		return nil, ResolutionError{Ref: remote + ".sha256", Err: fmt.Errorf("empty checksum sidecar")}
	}
	want := strings.ToLower(fields[0])

	if err := sshx.PullFile(ctx, cli, remote, local); err != nil {
		return nil, ResolutionError{Ref: remote, Err: err}
	}
	got, err := FileSHA256(local)
	if err != nil {
		return nil, fmt.Errorf("checksum local copy: %w", err)
	}
	if got != want {
		return nil, IntegrityError{Path: local, Want: want, Got: got}
	}

	log.Info().Str("mirror", m.Addr).Str("version", src.Version).Msg("runner package pulled from mirror and verified")
	return &Artifact{Version: src.Version, Path: local, Checksum: got, scratch: scratch}, nil
}
