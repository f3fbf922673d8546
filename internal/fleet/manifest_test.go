package fleet

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestManifest(t *testing.T) *Manifest {
	t.Helper()
	m, err := OpenManifest(filepath.Join(t.TempDir(), "state", "manifest.db"))
	if err != nil {
		t.Fatalf("open manifest: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestManifestRoundTrip(t *testing.T) {
	m := openTestManifest(t)
	ctx := context.Background()

	ids := []Identity{
		{Index: 2, Name: "nuc-2", Dir: "/opt/runner-2", Service: "s2"},
		{Index: 1, Name: "nuc-1", Dir: "/opt/runner-1", Service: "s1"},
	}
	for _, id := range ids {
		if err := m.Save(ctx, id, "acme/widgets"); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got, err := m.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].Name != "nuc-1" || got[1].Name != "nuc-2" {
		t.Errorf("expected index order, got %v", got)
	}
}

func TestManifestSaveIsUpsert(t *testing.T) {
	m := openTestManifest(t)
	ctx := context.Background()

	id := Identity{Index: 1, Name: "nuc", Dir: "/opt/runner", Service: "s"}
	if err := m.Save(ctx, id, "acme/widgets"); err != nil {
		t.Fatalf("save: %v", err)
	}
	id.Dir = "/srv/runner"
	if err := m.Save(ctx, id, "acme/widgets"); err != nil {
		t.Fatalf("re-save: %v", err)
	}

	got, err := m.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected single row after re-save, got %d", len(got))
	}
	if got[0].Dir != "/srv/runner" {
		t.Errorf("expected updated dir, got %s", got[0].Dir)
	}
}

func TestManifestDelete(t *testing.T) {
	m := openTestManifest(t)
	ctx := context.Background()

	if err := m.Save(ctx, Identity{Index: 1, Name: "nuc", Dir: "/opt/runner", Service: "s"}, "acme/widgets"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := m.Delete(ctx, "nuc"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.Delete(ctx, "nuc"); err != nil {
		t.Fatalf("deleting a missing row must not error: %v", err)
	}
	got, err := m.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty manifest, got %v", got)
	}
}
