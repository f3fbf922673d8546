package cron

import (
	"fmt"
	"strings"
)

// Tags for the two fleet-wide maintenance entries.
const (
	TagPrune = "prune"
	TagSweep = "sweep"
)

const marker = "# runnerfleet:"

// Entry is one tagged periodic job. At most one live entry exists per tag;
// re-application is an upsert, never an append.
type Entry struct {
	Tag      string
	Schedule string
	Command  string
}

// Line renders the crontab line with the tag marker appended.
func (e Entry) Line() string {
	return fmt.Sprintf("%s %s %s%s", e.Schedule, e.Command, marker, e.Tag)
}

// Scheduler upserts tagged entries into a shared job store. All mutation is a
// locked read-modify-write so concurrent operator runs cannot lose updates.
type Scheduler struct {
	Store JobStore
	Lock  *FileLock
}

// Upsert removes any existing entry with the same tag and appends the new
// one, then writes the whole set back.
func (s *Scheduler) Upsert(e Entry) error {
	return s.locked(func() error {
		lines, err := s.Store.List()
		if err != nil {
			return err
		}
		kept := withoutTag(lines, e.Tag)
		kept = append(kept, e.Line())
		return s.Store.ReplaceAll(kept)
	})
}

// Remove retracts the entry with the given tag, if present.
func (s *Scheduler) Remove(tag string) error {
	return s.locked(func() error {
		lines, err := s.Store.List()
		if err != nil {
			return err
		}
		kept := withoutTag(lines, tag)
		if len(kept) == len(lines) {
			return nil
		}
		return s.Store.ReplaceAll(kept)
	})
}

func (s *Scheduler) locked(fn func() error) error {
	if s.Lock != nil {
		if err := s.Lock.Lock(); err != nil {
			return err
		}
		defer s.Lock.Unlock()
	}
	return fn()
}

func withoutTag(lines []string, tag string) []string {
	kept := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.Contains(l, marker+tag) {
			continue
		}
		kept = append(kept, l)
	}
	return kept
}

// PruneEntry is the weekly cleanup of stale build byproducts (diagnostic logs
// older than two weeks) under every directory matching the base path.
func PruneEntry(baseDir string) Entry {
	return Entry{
		Tag:      TagPrune,
		Schedule: "17 3 * * 0",
		Command:  fmt.Sprintf("find %s*/_diag -name '*.log' -mtime +14 -delete 2>/dev/null", baseDir),
	}
}

// SweepEntry is the monthly sweep of stale temporary work directories. The
// command spans the union of all current instances' work paths; when the
// fleet size changes, the caller upserts a fresh entry so no stale path list
// stays active.
func SweepEntry(workDirs []string) Entry {
	targets := make([]string, 0, len(workDirs))
	for _, d := range workDirs {
		targets = append(targets, d+"/_temp")
	}
	return Entry{
		Tag:      TagSweep,
		Schedule: "23 4 1 * *",
		Command:  fmt.Sprintf("rm -rf %s", strings.Join(targets, " ")),
	}
}
