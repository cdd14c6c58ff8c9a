package diff

import (
	"testing"
	"time"

	"github.com/sitesync/sitesync/pkg/model"
)

func snapWith(t *testing.T, entities ...model.Entity) *model.Snapshot {
	t.Helper()
	snap := model.New("site-a", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	for _, e := range entities {
		sec := model.SectionOf(e.Type)
		snap.Sections[sec] = append(snap.Sections[sec], e)
	}
	if err := snap.Validate(); err != nil {
		t.Fatalf("test snapshot invalid: %v", err)
	}
	return snap
}

func TestComputeModification(t *testing.T) {
	base := snapWith(t,
		model.Entity{Type: model.TypeVLAN, Key: "10", Fields: map[string]any{
			"id": int64(10), "name": "Corp", "subnet": "10.10.10.0/24",
		}},
	)
	target := snapWith(t,
		model.Entity{Type: model.TypeVLAN, Key: "10", Fields: map[string]any{
			"id": int64(10), "name": "Corporate", "subnet": "10.10.10.0/24",
		}},
	)

	cs := Compute(base, target, Options{})
	delta, ok := cs.Deltas[model.TypeVLAN]
	if !ok {
		t.Fatal("no vlan delta")
	}
	if len(delta.Added) != 0 || len(delta.Removed) != 0 {
		t.Errorf("rename produced add/remove: %+v", delta)
	}
	if len(delta.Modified) != 1 {
		t.Fatalf("modified count = %d, want 1", len(delta.Modified))
	}
	mod := delta.Modified[0]
	if mod.Key != "10" {
		t.Errorf("modified key = %q, want 10", mod.Key)
	}
	if len(mod.Fields) != 1 || mod.Fields[0].Field != "name" {
		t.Fatalf("field diffs = %+v, want single name change", mod.Fields)
	}
	if mod.Fields[0].Before != "Corp" || mod.Fields[0].After != "Corporate" {
		t.Errorf("name diff = %v -> %v, want Corp -> Corporate", mod.Fields[0].Before, mod.Fields[0].After)
	}
}

func TestComputeAddRemove(t *testing.T) {
	base := snapWith(t,
		model.Entity{Type: model.TypeVLAN, Key: "10", Fields: map[string]any{"id": int64(10), "name": "Corp"}},
		model.Entity{Type: model.TypeVLAN, Key: "20", Fields: map[string]any{"id": int64(20), "name": "Guest"}},
	)
	target := snapWith(t,
		model.Entity{Type: model.TypeVLAN, Key: "10", Fields: map[string]any{"id": int64(10), "name": "Corp"}},
		model.Entity{Type: model.TypeVLAN, Key: "30", Fields: map[string]any{"id": int64(30), "name": "IoT"}},
	)

	cs := Compute(base, target, Options{})
	delta := cs.Deltas[model.TypeVLAN]
	if len(delta.Added) != 1 || delta.Added[0].Key != "30" {
		t.Errorf("added = %+v, want vlan 30", delta.Added)
	}
	if len(delta.Removed) != 1 || delta.Removed[0].Key != "20" {
		t.Errorf("removed = %+v, want vlan 20", delta.Removed)
	}
	if len(delta.Modified) != 0 {
		t.Errorf("modified = %+v, want none", delta.Modified)
	}
}

func TestComputeIgnoresOrder(t *testing.T) {
	a := model.Entity{Type: model.TypeVLAN, Key: "10", Fields: map[string]any{"id": int64(10), "name": "Corp"}}
	b := model.Entity{Type: model.TypeVLAN, Key: "20", Fields: map[string]any{"id": int64(20), "name": "Guest"}}

	cs := Compute(snapWith(t, a, b), snapWith(t, b, a), Options{})
	if !cs.Empty() {
		t.Errorf("reordered sections produced changes: %+v", cs.Deltas)
	}
}

func TestComputeExcludesGenerated(t *testing.T) {
	gen := model.Entity{Type: model.TypeSSID, Key: "7", Generated: true, Fields: map[string]any{
		"number": int64(7), "name": "Unconfigured SSID 8",
	}}
	base := snapWith(t)
	target := snapWith(t, gen)

	cs := Compute(base, target, Options{})
	if !cs.Empty() {
		t.Errorf("generated entity leaked into diff: %+v", cs.Deltas)
	}

	cs = Compute(base, target, Options{IncludeGenerated: true})
	if len(cs.Deltas[model.TypeSSID].Added) != 1 {
		t.Error("IncludeGenerated did not surface generated entity")
	}
}

func TestComputeNestedFieldChange(t *testing.T) {
	base := snapWith(t,
		model.Entity{Type: model.TypeVPNSetting, Key: "siteToSite", Fields: map[string]any{
			"mode": "spoke",
			"hubs": []any{map[string]any{"hubId": "N_100"}},
		}},
	)
	target := snapWith(t,
		model.Entity{Type: model.TypeVPNSetting, Key: "siteToSite", Fields: map[string]any{
			"mode": "spoke",
			"hubs": []any{map[string]any{"hubId": "N_200"}},
		}},
	)

	cs := Compute(base, target, Options{})
	mods := cs.Deltas[model.TypeVPNSetting].Modified
	if len(mods) != 1 || len(mods[0].Fields) != 1 || mods[0].Fields[0].Field != "hubs" {
		t.Fatalf("nested change = %+v, want single hubs diff", mods)
	}
}

func TestComputeFieldAddedAndRemoved(t *testing.T) {
	base := snapWith(t,
		model.Entity{Type: model.TypeSSID, Key: "0", Fields: map[string]any{
			"number": int64(0), "name": "Corp-WiFi", "psk": "old-secret",
		}},
	)
	target := snapWith(t,
		model.Entity{Type: model.TypeSSID, Key: "0", Fields: map[string]any{
			"number": int64(0), "name": "Corp-WiFi", "defaultVlanId": int64(10),
		}},
	)

	cs := Compute(base, target, Options{})
	mods := cs.Deltas[model.TypeSSID].Modified
	if len(mods) != 1 {
		t.Fatalf("modified = %+v, want one entity", mods)
	}
	fields := mods[0].Fields
	if len(fields) != 2 {
		t.Fatalf("field diffs = %+v, want defaultVlanId + psk", fields)
	}
	// Sorted by name: defaultVlanId before psk.
	if fields[0].Field != "defaultVlanId" || fields[0].Before != nil {
		t.Errorf("added field diff = %+v", fields[0])
	}
	if fields[1].Field != "psk" || fields[1].After != nil {
		t.Errorf("removed field diff = %+v", fields[1])
	}
}

func TestCounts(t *testing.T) {
	base := snapWith(t,
		model.Entity{Type: model.TypeVLAN, Key: "20", Fields: map[string]any{"id": int64(20), "name": "Guest"}},
		model.Entity{Type: model.TypeSSID, Key: "0", Fields: map[string]any{"number": int64(0), "name": "A"}},
	)
	target := snapWith(t,
		model.Entity{Type: model.TypeVLAN, Key: "30", Fields: map[string]any{"id": int64(30), "name": "IoT"}},
		model.Entity{Type: model.TypeSSID, Key: "0", Fields: map[string]any{"number": int64(0), "name": "B"}},
	)

	cs := Compute(base, target, Options{})
	added, removed, modified := cs.Counts()
	if added != 1 || removed != 1 || modified != 1 {
		t.Errorf("Counts() = %d/%d/%d, want 1/1/1", added, removed, modified)
	}

	sections := cs.SectionCounts()
	if sections[model.SectionAppliance] != 2 || sections[model.SectionWireless] != 1 {
		t.Errorf("SectionCounts() = %+v", sections)
	}
}
