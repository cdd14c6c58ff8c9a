package normalize

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sitesync/sitesync/pkg/guard"
	"github.com/sitesync/sitesync/pkg/model"
)

func testNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	g, err := guard.NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("guard.NewEngine() error = %v", err)
	}
	return New(g, zerolog.Nop())
}

func rawSnapshot(t *testing.T) *model.Snapshot {
	t.Helper()
	snap := model.New("site-a", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	snap.Sections[model.SectionAppliance] = []model.Entity{
		{Type: model.TypeVLAN, Key: "1", Fields: map[string]any{"id": int64(1), "name": "Management"}},
		{Type: model.TypeVLAN, Key: "10", Fields: map[string]any{"id": int64(10), "name": "Corp"}},
		{Type: model.TypeFirewallRuleL3, Key: "aaa111", Fields: map[string]any{
			"comment": "Default rule", "policy": "allow", "protocol": "Any",
			"srcCidr": "Any", "srcPort": "Any", "destCidr": "Any", "destPort": "Any",
		}},
	}
	snap.Sections[model.SectionWireless] = []model.Entity{
		{Type: model.TypeSSID, Key: "0", Fields: map[string]any{"number": int64(0), "name": "Corp-WiFi"}},
		{Type: model.TypeSSID, Key: "7", Fields: map[string]any{"number": int64(7), "name": "Unconfigured SSID 8"}},
	}
	snap.Sections[model.SectionSwitch] = []model.Entity{
		{Type: model.TypeSwitchDevice, Key: "Q2SW-0001", Fields: map[string]any{
			"serial": "Q2SW-0001", "name": "sw1", "model": "MS120",
			"mac": "00:11:22:33:44:55", "lanIp": "10.10.50.9", "firmware": "ms-15.21",
		}},
	}
	if err := snap.Validate(); err != nil {
		t.Fatalf("raw snapshot invalid: %v", err)
	}
	return snap
}

func TestNormalizeFlagsAndStrips(t *testing.T) {
	n := testNormalizer(t)
	snap := rawSnapshot(t)

	out, err := n.Normalize(context.Background(), snap)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if out.EntityCount() != snap.EntityCount() {
		t.Errorf("entity count changed: %d -> %d", snap.EntityCount(), out.EntityCount())
	}

	mgmt, _ := out.Lookup(model.TypeVLAN, "1")
	if !mgmt.Protected {
		t.Error("management vlan not flagged protected")
	}
	corp, _ := out.Lookup(model.TypeVLAN, "10")
	if corp.Protected || corp.Generated {
		t.Error("ordinary vlan wrongly flagged")
	}
	rule, _ := out.Lookup(model.TypeFirewallRuleL3, "aaa111")
	if !rule.Generated {
		t.Error("default firewall rule not flagged generated")
	}
	slot, _ := out.Lookup(model.TypeSSID, "7")
	if !slot.Generated {
		t.Error("unconfigured ssid slot not flagged generated")
	}

	dev, _ := out.Lookup(model.TypeSwitchDevice, "Q2SW-0001")
	for _, f := range []string{"mac", "lanIp", "firmware"} {
		if _, ok := dev.Fields[f]; ok {
			t.Errorf("volatile field %q survived normalization", f)
		}
	}
	if dev.StringField("name") != "sw1" {
		t.Error("stable field lost in normalization")
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	n := testNormalizer(t)
	snap := rawSnapshot(t)

	if _, err := n.Normalize(context.Background(), snap); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	dev, _ := snap.Lookup(model.TypeSwitchDevice, "Q2SW-0001")
	if _, ok := dev.Fields["mac"]; !ok {
		t.Error("normalization stripped fields from the input snapshot")
	}
	mgmt, _ := snap.Lookup(model.TypeVLAN, "1")
	if mgmt.Protected {
		t.Error("normalization flagged entities on the input snapshot")
	}
}

func TestNormalizePreservesOrder(t *testing.T) {
	n := testNormalizer(t)
	snap := rawSnapshot(t)

	out, err := n.Normalize(context.Background(), snap)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	for _, sec := range model.Sections() {
		before := snap.Sections[sec]
		after := out.Sections[sec]
		if len(before) != len(after) {
			t.Fatalf("%s: length changed %d -> %d", sec, len(before), len(after))
		}
		for i := range before {
			if before[i].Key != after[i].Key {
				t.Errorf("%s[%d]: order changed %s -> %s", sec, i, before[i].Key, after[i].Key)
			}
		}
	}
}

func TestNormalizeNamesUnnamedSwitchDevice(t *testing.T) {
	n := testNormalizer(t)
	snap := model.New("site-a", time.Now())
	snap.Sections[model.SectionSwitch] = []model.Entity{
		{Type: model.TypeSwitchDevice, Key: "Q2XX-ABCD-9876", Fields: map[string]any{
			"serial": "Q2XX-ABCD-9876", "model": "MS120-8",
		}},
		{Type: model.TypeSwitchDevice, Key: "Q2XX-AAAA-1111", Fields: map[string]any{
			"serial": "Q2XX-AAAA-1111", "model": "MS120-8", "name": "core",
		}},
	}

	out, err := n.Normalize(context.Background(), snap)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	unnamed, _ := out.Lookup(model.TypeSwitchDevice, "Q2XX-ABCD-9876")
	if got := unnamed.StringField("name"); got != "MS120-8-9876" {
		t.Errorf("fallback name = %q, want MS120-8-9876", got)
	}
	named, _ := out.Lookup(model.TypeSwitchDevice, "Q2XX-AAAA-1111")
	if got := named.StringField("name"); got != "core" {
		t.Errorf("existing name = %q, want core", got)
	}
}
