package cron

import (
	"strings"
	"testing"
)

// memStore is an in-memory JobStore.
type memStore struct {
	lines    []string
	replaces int
}

func (m *memStore) List() ([]string, error) { return append([]string(nil), m.lines...), nil }

func (m *memStore) ReplaceAll(lines []string) error {
	m.lines = append([]string(nil), lines...)
	m.replaces++
	return nil
}

func countTag(lines []string, tag string) int {
	n := 0
	for _, l := range lines {
		if strings.Contains(l, marker+tag) {
			n++
		}
	}
	return n
}

func TestUpsertAddsEntry(t *testing.T) {
	store := &memStore{lines: []string{"0 0 * * * /usr/bin/backup"}}
	s := &Scheduler{Store: store}

	if err := s.Upsert(PruneEntry("/opt/runner")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if countTag(store.lines, TagPrune) != 1 {
		t.Fatalf("expected exactly one prune entry, got %v", store.lines)
	}
	if len(store.lines) != 2 {
		t.Errorf("unrelated entries must survive: %v", store.lines)
	}
}

func TestUpsertTwiceYieldsOneEntry(t *testing.T) {
	store := &memStore{}
	s := &Scheduler{Store: store}

	if err := s.Upsert(SweepEntry([]string{"/opt/runner-1/_work"})); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Upsert(SweepEntry([]string{"/opt/runner-1/_work"})); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if countTag(store.lines, TagSweep) != 1 {
		t.Fatalf("re-applying the same tag must not duplicate: %v", store.lines)
	}
}

func TestUpsertReplacesStalePathList(t *testing.T) {
	store := &memStore{}
	s := &Scheduler{Store: store}

	if err := s.Upsert(SweepEntry([]string{"/opt/runner-1/_work", "/opt/runner-2/_work", "/opt/runner-3/_work"})); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// fleet shrank to 2
	if err := s.Upsert(SweepEntry([]string{"/opt/runner-1/_work", "/opt/runner-2/_work"})); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if countTag(store.lines, TagSweep) != 1 {
		t.Fatalf("expected one sweep entry, got %v", store.lines)
	}
	for _, l := range store.lines {
		if strings.Contains(l, marker+TagSweep) && strings.Contains(l, "runner-3") {
			t.Errorf("stale path list must not survive a re-upsert: %s", l)
		}
	}
}

func TestRemoveRetractsOnlyTaggedEntry(t *testing.T) {
	store := &memStore{lines: []string{"0 0 * * * /usr/bin/backup"}}
	s := &Scheduler{Store: store}

	if err := s.Upsert(PruneEntry("/opt/runner")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Remove(TagPrune); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if countTag(store.lines, TagPrune) != 0 {
		t.Errorf("entry should be retracted: %v", store.lines)
	}
	if len(store.lines) != 1 {
		t.Errorf("unrelated entries must survive retraction: %v", store.lines)
	}
}

func TestRemoveMissingTagDoesNotRewrite(t *testing.T) {
	store := &memStore{lines: []string{"0 0 * * * /usr/bin/backup"}}
	s := &Scheduler{Store: store}

	if err := s.Remove(TagSweep); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if store.replaces != 0 {
		t.Errorf("no rewrite expected when the tag is absent")
	}
}

func TestSweepEntryCommandSpansUnion(t *testing.T) {
	e := SweepEntry([]string{"/opt/runner-1/_work", "/opt/runner-2/_work"})
	for _, want := range []string{"/opt/runner-1/_work/_temp", "/opt/runner-2/_work/_temp"} {
		if !strings.Contains(e.Command, want) {
			t.Errorf("sweep command missing %s: %s", want, e.Command)
		}
	}
}

func TestEntryLineCarriesMarker(t *testing.T) {
	e := Entry{Tag: "prune", Schedule: "17 3 * * 0", Command: "true"}
	line := e.Line()
	if !strings.HasPrefix(line, "17 3 * * 0 true") {
		t.Errorf("unexpected line: %s", line)
	}
	if !strings.HasSuffix(line, marker+"prune") {
		t.Errorf("line must end with the tag marker: %s", line)
	}
}
