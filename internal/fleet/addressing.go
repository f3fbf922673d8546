package fleet

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MarkerFile is written into an instance directory by the runner agent once it
// has been configured. Discovery uses it to tell genuine instances apart from
// unrelated directories that happen to match the naming convention.
const MarkerFile = ".runner"

// Identities derives the instance identities for a spec. Pure and stable:
// the same spec always yields the same identities. A fleet of one keeps the
// unsuffixed legacy name and directory.
func Identities(s Spec) []Identity {
	ids := make([]Identity, 0, s.Size)
	for i := 1; i <= s.Size; i++ {
		name := s.BaseName
		dir := s.BaseDir
		if s.Size > 1 {
			name = fmt.Sprintf("%s-%d", s.BaseName, i)
			dir = fmt.Sprintf("%s-%d", s.BaseDir, i)
		}
		ids = append(ids, Identity{
			Index:   i,
			Name:    name,
			Dir:     dir,
			Service: ServiceName(s.Repo, name),
		})
	}
	return ids
}

// ServiceName maps (repository, instance name) to a systemd unit name.
func ServiceName(repo, name string) string {
	repo = strings.ReplaceAll(repo, "/", "-")
	return fmt.Sprintf("runnerfleet-%s-%s.service", repo, name)
}

// ScanConvention discovers previously provisioned instances by inverting the
// naming scheme: the unsuffixed base directory, then {base}-k for k=1,2,...
// until the first missing directory. Candidates without the marker file are
// skipped. A gap in k stops the scan; the manifest is the preferred discovery
// path for exactly that reason.
func ScanConvention(baseName, baseDir, repo string) []Identity {
	var ids []Identity
	if hasMarker(baseDir) {
		ids = append(ids, Identity{
			Index:   1,
			Name:    baseName,
			Dir:     baseDir,
			Service: ServiceName(repo, baseName),
		})
	}
	for k := 1; ; k++ {
		dir := fmt.Sprintf("%s-%d", baseDir, k)
		if _, err := os.Stat(dir); err != nil {
			break
		}
		if !hasMarker(dir) {
			continue
		}
		name := fmt.Sprintf("%s-%d", baseName, k)
		ids = append(ids, Identity{
			Index:   k,
			Name:    name,
			Dir:     dir,
			Service: ServiceName(repo, name),
		})
	}
	return ids
}

func hasMarker(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, MarkerFile))
	return err == nil
}

// WorkDir is the per-instance scratch area the runner agent executes jobs in.
func WorkDir(id Identity) string {
	return filepath.Join(id.Dir, "_work")
}
