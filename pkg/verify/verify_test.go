package verify

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sitesync/sitesync/pkg/guard"
	"github.com/sitesync/sitesync/pkg/model"
	"github.com/sitesync/sitesync/pkg/normalize"
	"github.com/sitesync/sitesync/pkg/provider"
)

func testVerifier(t *testing.T, mem *provider.Memory) *Verifier {
	t.Helper()
	g, err := guard.NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("guard.NewEngine() error = %v", err)
	}
	return New(mem, normalize.New(g, zerolog.Nop()), nil, zerolog.Nop())
}

func baselineSnapshot(siteID string) *model.Snapshot {
	snap := model.New(siteID, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	snap.Sections[model.SectionAppliance] = []model.Entity{
		{Type: model.TypeVLAN, Key: "1", Fields: map[string]any{"id": int64(1), "name": "Management"}},
		{Type: model.TypeVLAN, Key: "100", Fields: map[string]any{"id": int64(100), "name": "Corp", "subnet": "10.0.100.0/24"}},
	}
	snap.Sections[model.SectionWireless] = []model.Entity{
		{Type: model.TypeSSID, Key: "0", Fields: map[string]any{"number": int64(0), "name": "corp-wifi", "enabled": true, "defaultVlanId": int64(100)}},
	}
	return snap
}

func TestVerifyInSync(t *testing.T) {
	mem := provider.NewMemory()
	mem.Seed(baselineSnapshot("site-a"))
	v := testVerifier(t, mem)

	drift, err := v.Verify(context.Background(), baselineSnapshot("site-a"))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !drift.InSync() {
		t.Errorf("InSync() = false, changes = %+v", drift.Changes)
	}
	for sec, n := range drift.Sections {
		if n != 0 {
			t.Errorf("section %s drift count = %d, want 0", sec, n)
		}
	}
}

func TestVerifyDetectsDrift(t *testing.T) {
	mem := provider.NewMemory()
	mem.Seed(baselineSnapshot("site-a"))
	v := testVerifier(t, mem)
	ctx := context.Background()

	// An operator renamed the corp VLAN and added a rogue SSID.
	_, err := mem.Update(ctx, "site-a", model.Entity{
		Type: model.TypeVLAN, Key: "100",
		Fields: map[string]any{"id": int64(100), "name": "Corporate", "subnet": "10.0.100.0/24"},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	_, err = mem.Create(ctx, "site-a", model.Entity{
		Type: model.TypeSSID, Key: "5",
		Fields: map[string]any{"number": int64(5), "name": "rogue", "enabled": true},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	drift, err := v.Verify(ctx, baselineSnapshot("site-a"))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if drift.InSync() {
		t.Fatal("InSync() = true, want drift")
	}
	if got := drift.Sections[model.SectionAppliance]; got != 1 {
		t.Errorf("appliance drift = %d, want 1", got)
	}
	if got := drift.Sections[model.SectionWireless]; got != 1 {
		t.Errorf("wireless drift = %d, want 1", got)
	}

	delta := drift.Changes.Deltas[model.TypeVLAN]
	if len(delta.Modified) != 1 || delta.Modified[0].Key != "100" {
		t.Fatalf("vlan delta = %+v, want one modification of key 100", delta)
	}
	fd := delta.Modified[0].Fields[0]
	if fd.Field != "name" || fd.After != "Corporate" {
		t.Errorf("field diff = %+v, want name -> Corporate", fd)
	}
	ssidDelta := drift.Changes.Deltas[model.TypeSSID]
	if len(ssidDelta.Added) != 1 || ssidDelta.Added[0].Key != "5" {
		t.Errorf("ssid delta = %+v, want rogue ssid 5 added", ssidDelta)
	}
}

func TestVerifyIgnoresVolatileFields(t *testing.T) {
	base := baselineSnapshot("site-a")
	base.Sections[model.SectionSwitch] = []model.Entity{
		{Type: model.TypeSwitchDevice, Key: "Q2XX-0001", Fields: map[string]any{
			"serial": "Q2XX-0001", "name": "core", "firmware": "ms-15.21",
		}},
	}
	mem := provider.NewMemory()
	mem.Seed(base)
	v := testVerifier(t, mem)
	ctx := context.Background()

	// Firmware upgrades on the device are volatile, not drift.
	_, err := mem.Update(ctx, "site-a", model.Entity{
		Type: model.TypeSwitchDevice, Key: "Q2XX-0001",
		Fields: map[string]any{"serial": "Q2XX-0001", "name": "core", "firmware": "ms-16.1"},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	drift, err := v.Verify(ctx, base)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !drift.InSync() {
		t.Errorf("volatile field change reported as drift: %+v", drift.Changes)
	}
}

func writeBaseline(t *testing.T, dir string, snap *model.Snapshot) string {
	t.Helper()
	data, err := model.Encode(snap)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	path := filepath.Join(dir, "site-a.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestVerifyFile(t *testing.T) {
	mem := provider.NewMemory()
	mem.Seed(baselineSnapshot("site-a"))
	v := testVerifier(t, mem)

	path := writeBaseline(t, t.TempDir(), baselineSnapshot("site-a"))
	drift, err := v.VerifyFile(context.Background(), path)
	if err != nil {
		t.Fatalf("VerifyFile() error = %v", err)
	}
	if !drift.InSync() {
		t.Errorf("InSync() = false, changes = %+v", drift.Changes)
	}

	if _, err := v.VerifyFile(context.Background(), filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("VerifyFile() accepted missing baseline")
	}
}

func TestWatchReverifiesOnChange(t *testing.T) {
	mem := provider.NewMemory()
	mem.Seed(baselineSnapshot("site-a"))
	v := testVerifier(t, mem)

	dir := t.TempDir()
	path := writeBaseline(t, dir, baselineSnapshot("site-a"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan *Drift, 4)
	done := make(chan error, 1)
	go func() {
		done <- v.Watch(ctx, path, func(d *Drift, err error) {
			if err != nil {
				t.Errorf("watch verification error = %v", err)
				return
			}
			results <- d
		})
	}()

	// Initial verification fires immediately.
	select {
	case d := <-results:
		if !d.InSync() {
			t.Errorf("initial verification drifted: %+v", d.Changes)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no initial verification")
	}

	// Rewriting the baseline with a changed VLAN name must trigger a
	// re-verification that now reports drift.
	changed := baselineSnapshot("site-a")
	changed.Sections[model.SectionAppliance][1].Fields["name"] = "Corporate"
	writeBaseline(t, dir, changed)

	select {
	case d := <-results:
		if d.InSync() {
			t.Error("re-verification saw no drift after baseline change")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no re-verification after baseline change")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch() did not stop on cancellation")
	}
}
