package commands

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sitesync/sitesync/pkg/model"
)

func writeSnapshotFile(t *testing.T, dir, name string, snap *model.Snapshot) string {
	t.Helper()
	data, err := model.Encode(snap)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

// runCLI executes the root command with a deadline so a command that
// wrongly blocks (a watch loop, a hung provider) fails instead of
// hanging the test.
func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := newRootCommand("test", "none", "unknown")
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func TestRestoreSurfacesProtectedSkips(t *testing.T) {
	dir := t.TempDir()

	// The live site carries only the protected management VLAN; the
	// snapshot to restore has no VLANs at all. The planned delete
	// becomes a skip, which must reach the report and the exit status.
	live := model.New("site-a", time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC))
	live.Sections[model.SectionAppliance] = []model.Entity{
		{Type: model.TypeVLAN, Key: "1", Fields: map[string]any{"id": int64(1), "name": "Management"}},
	}
	seedPath := writeSnapshotFile(t, dir, "seed.json", live)

	target := model.New("site-a", time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC))
	targetPath := writeSnapshotFile(t, dir, "target.json", target)

	err := runCLI(t,
		"restore", targetPath,
		"--provider", "memory:"+seedPath,
		"--store", filepath.Join(dir, "snapshots"),
		"--catalog", filepath.Join(dir, "catalog.db"),
	)
	var ee *ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("restore error = %v, want *ExitError for a skipped operation", err)
	}
	if ee.Code != 1 {
		t.Errorf("exit code = %d, want 1 when the run skipped operations", ee.Code)
	}
	if !strings.Contains(ee.Msg, "skipped") {
		t.Errorf("error = %q, want a skip explanation", ee.Msg)
	}
}

func TestRestoreExitsZeroWhenNothingToDo(t *testing.T) {
	dir := t.TempDir()

	snap := model.New("site-a", time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC))
	snap.Sections[model.SectionAppliance] = []model.Entity{
		{Type: model.TypeVLAN, Key: "1", Fields: map[string]any{"id": int64(1), "name": "Management"}},
	}
	seedPath := writeSnapshotFile(t, dir, "seed.json", snap)
	targetPath := writeSnapshotFile(t, dir, "target.json", snap)

	err := runCLI(t,
		"restore", targetPath,
		"--provider", "memory:"+seedPath,
		"--store", filepath.Join(dir, "snapshots"),
		"--catalog", filepath.Join(dir, "catalog.db"),
	)
	if err != nil {
		t.Errorf("restore of an already-matching site returned %v, want nil", err)
	}
}

func TestVerifyWatchChecksSiteFirst(t *testing.T) {
	dir := t.TempDir()

	base := model.New("site-a", time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC))
	base.Sections[model.SectionAppliance] = []model.Entity{
		{Type: model.TypeVLAN, Key: "1", Fields: map[string]any{"id": int64(1), "name": "Management"}},
	}
	path := writeSnapshotFile(t, dir, "base.json", base)

	err := runCLI(t,
		"verify", path, "--watch", "--site", "site-b",
		"--provider", "memory:",
		"--store", filepath.Join(dir, "snapshots"),
		"--catalog", filepath.Join(dir, "catalog.db"),
	)
	if err == nil {
		t.Fatal("verify --watch accepted a snapshot for a different site")
	}
	if !strings.Contains(err.Error(), "belongs to site") {
		t.Errorf("error = %v, want the site mismatch", err)
	}
}
