package artifact

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Source describes where the runner agent package comes from.
type Source struct {
	// ReleaseURL serves release metadata (JSON) for the HTTPS path.
	ReleaseURL string

	// Version pins a release. Empty means whatever the endpoint calls latest.
	Version string

	// Mirror, when set, fetches from an internal SFTP mirror instead of the
	// release endpoint.
	Mirror *Mirror
}

// Artifact is the downloaded, verified runner package. It is fetched once per
// orchestration run and shared read-only by every provisioning step. Close
// releases the scratch area and must run on every exit path.
type Artifact struct {
	Version  string
	Path     string
	Checksum string

	scratch string
}

// Close removes the scratch directory holding the download.
func (a *Artifact) Close() error {
	if a.scratch == "" {
		return nil
	}
	err := os.RemoveAll(a.scratch)
	a.scratch = ""
	return err
}

// releaseMeta is the metadata document served by the release endpoint.
type releaseMeta struct {
	Version string `json:"version"`
	Assets  []struct {
		Name   string `json:"name"`
		OS     string `json:"os"`
		Arch   string `json:"arch"`
		URL    string `json:"url"`
		SHA256 string `json:"sha256"`
	} `json:"assets"`
}

// Fetcher downloads and verifies the runner package.
type Fetcher struct {
	Client *RetryableHTTPClient
}

func NewFetcher() *Fetcher {
	return &Fetcher{Client: NewRetryableHTTPClient(5 * time.Minute)}
}

// Fetch acquires the artifact into a private scratch directory. On any error
// the scratch directory is already removed; on success the caller owns it via
// Artifact.Close.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (a *Artifact, err error) {
	scratch, err := os.MkdirTemp("", "runnerfleet-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if err != nil {
			os.RemoveAll(scratch)
		}
	}()

	if src.Mirror != nil {
		return f.fetchMirror(ctx, src, scratch)
	}

	meta, err := f.resolve(ctx, src)
	if err != nil {
		return nil, err
	}
	name, url, sum, err := pickAsset(meta, src)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(scratch, name)
	got, err := f.download(ctx, url, path)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(got, sum) {
		return nil, IntegrityError{Path: path, Want: strings.ToLower(sum), Got: got}
	}

	log.Info().Str("version", meta.Version).Str("path", path).Msg("runner package fetched and verified")
	return &Artifact{Version: meta.Version, Path: path, Checksum: got, scratch: scratch}, nil
}

func (f *Fetcher) resolve(ctx context.Context, src Source) (*releaseMeta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.ReleaseURL, nil)
	if err != nil {
		return nil, ResolutionError{Ref: src.ReleaseURL, Err: err}
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, ResolutionError{Ref: src.ReleaseURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, ResolutionError{Ref: src.ReleaseURL, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	var meta releaseMeta
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, ResolutionError{Ref: src.ReleaseURL, Err: fmt.Errorf("decode metadata: %w", err)}
	}
	return &meta, nil
}

func pickAsset(meta *releaseMeta, src Source) (name, url, sum string, err error) {
	if src.Version != "" && meta.Version != src.Version {
		return "", "", "", ResolutionError{Ref: src.Version, Err: fmt.Errorf("endpoint serves %s", meta.Version)}
	}
	for _, as := range meta.Assets {
		if as.OS == runtime.GOOS && as.Arch == runtime.GOARCH {
			return as.Name, as.URL, as.SHA256, nil
		}
	}
	return "", "", "", ResolutionError{Ref: fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)}
}

// download streams the asset to path, hashing as it goes.
func (f *Fetcher) download(ctx context.Context, url, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", ResolutionError{Ref: url, Err: err}
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return "", ResolutionError{Ref: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", ResolutionError{Ref: url, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}
	defer dst.Close()

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(dst, hasher), resp.Body); err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// FileSHA256 computes the hex sha256 of a file.
func FileSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Unpack extracts the gzipped tarball into dir with overwrite semantics:
// re-provisioning always installs the current artifact, never layers onto a
// stale one.
func (a *Artifact) Unpack(dir string) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("gzip reader: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}
		target, err := safeJoin(dir, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)&0o777); err != nil {
				return fmt.Errorf("mkdir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("mkdir %s: %w", filepath.Dir(target), err)
			}
			dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)&0o777)
			if err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
			if _, err := io.Copy(dst, tr); err != nil {
				dst.Close()
				return fmt.Errorf("extract %s: %w", target, err)
			}
			dst.Close()
		case tar.TypeSymlink:
			os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("symlink %s: %w", target, err)
			}
		}
	}
}

// safeJoin rejects tar entries that would escape the destination directory.
func safeJoin(dir, name string) (string, error) {
	target := filepath.Join(dir, name)
	if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) && target != filepath.Clean(dir) {
		return "", fmt.Errorf("tar entry escapes destination: %s", name)
	}
	return target, nil
}
