package model

import (
	"testing"
	"time"
)

func vlanEntity(id int64, name, subnet string) Entity {
	return Entity{
		Type: TypeVLAN,
		Key:  vlanKeyForTest(id),
		Fields: map[string]any{
			"id":     id,
			"name":   name,
			"subnet": subnet,
		},
	}
}

func vlanKeyForTest(id int64) string {
	key, _ := vlanKey(id)
	return key
}

func testSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	snap := New("site-a", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	snap.Sections[SectionAppliance] = []Entity{
		vlanEntity(1, "Management", "10.10.50.0/24"),
		vlanEntity(10, "Corp", "10.10.10.0/24"),
	}
	snap.Sections[SectionWireless] = []Entity{
		{Type: TypeSSID, Key: "0", Fields: map[string]any{
			"number": int64(0), "name": "Corp-WiFi", "enabled": true, "defaultVlanId": int64(10),
		}},
	}
	if err := snap.Validate(); err != nil {
		t.Fatalf("test snapshot invalid: %v", err)
	}
	return snap
}

func TestSnapshotValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Snapshot)
		wantErr bool
	}{
		{
			name:   "valid snapshot",
			mutate: func(s *Snapshot) {},
		},
		{
			name: "duplicate identity key",
			mutate: func(s *Snapshot) {
				s.Sections[SectionAppliance] = append(s.Sections[SectionAppliance],
					vlanEntity(10, "Duplicate", "10.10.99.0/24"))
			},
			wantErr: true,
		},
		{
			name: "entity in wrong section",
			mutate: func(s *Snapshot) {
				s.Sections[SectionSwitch] = append(s.Sections[SectionSwitch],
					vlanEntity(20, "Misfiled", "10.10.20.0/24"))
			},
			wantErr: true,
		},
		{
			name: "empty identity key",
			mutate: func(s *Snapshot) {
				s.Sections[SectionPolicies] = []Entity{{Type: TypeGroupPolicy, Fields: map[string]any{}}}
			},
			wantErr: true,
		},
		{
			name: "unsupported format version",
			mutate: func(s *Snapshot) {
				s.FormatVersion = "2.0"
			},
			wantErr: true,
		},
		{
			name: "empty site id",
			mutate: func(s *Snapshot) {
				s.SiteID = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := New("site-a", time.Now())
			snap.Sections[SectionAppliance] = []Entity{
				vlanEntity(1, "Management", "10.10.50.0/24"),
				vlanEntity(10, "Corp", "10.10.10.0/24"),
			}
			tt.mutate(snap)
			err := snap.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSnapshotCloneIsDeep(t *testing.T) {
	snap := testSnapshot(t)
	clone := snap.Clone()

	clone.Sections[SectionAppliance][0].Fields["name"] = "Tampered"
	clone.Sections[SectionAppliance] = append(clone.Sections[SectionAppliance],
		vlanEntity(30, "IoT", "10.10.30.0/24"))

	if got := snap.Sections[SectionAppliance][0].Fields["name"]; got != "Management" {
		t.Errorf("clone mutation leaked into original: name = %v", got)
	}
	if len(snap.Sections[SectionAppliance]) != 2 {
		t.Errorf("clone append leaked into original: %d entities", len(snap.Sections[SectionAppliance]))
	}
}

func TestSnapshotAppendDoesNotMutateReceiver(t *testing.T) {
	snap := testSnapshot(t)
	before := snap.EntityCount()

	grown := snap.Append(vlanEntity(20, "Guest", "10.10.20.0/24"))

	if snap.EntityCount() != before {
		t.Errorf("Append mutated receiver: count %d, want %d", snap.EntityCount(), before)
	}
	if grown.EntityCount() != before+1 {
		t.Errorf("Append result count = %d, want %d", grown.EntityCount(), before+1)
	}
}

func TestSnapshotIndexAndLookup(t *testing.T) {
	snap := testSnapshot(t)

	idx := snap.Index(TypeVLAN)
	if len(idx) != 2 {
		t.Fatalf("Index(vlan) size = %d, want 2", len(idx))
	}
	if idx["10"].Fields["name"] != "Corp" {
		t.Errorf("Index(vlan)[10].name = %v, want Corp", idx["10"].Fields["name"])
	}

	if _, ok := snap.Lookup(TypeSSID, "0"); !ok {
		t.Error("Lookup(ssid, 0) not found")
	}
	if _, ok := snap.Lookup(TypeVLAN, "999"); ok {
		t.Error("Lookup(vlan, 999) unexpectedly found")
	}
}

func TestReferences(t *testing.T) {
	tests := []struct {
		name   string
		entity Entity
		want   []Ref
	}{
		{
			name: "ssid references its default vlan",
			entity: Entity{Type: TypeSSID, Key: "1", Fields: map[string]any{
				"number": int64(1), "name": "Guest", "defaultVlanId": int64(20),
			}},
			want: []Ref{{Type: TypeVLAN, Key: "20"}},
		},
		{
			name: "switch port references vlan, voice vlan and device",
			entity: Entity{Type: TypeSwitchPort, Key: "Q2SW-0001/1", Fields: map[string]any{
				"serial": "Q2SW-0001", "portId": "1", "vlan": int64(10), "voiceVlan": int64(40),
			}},
			want: []Ref{
				{Type: TypeVLAN, Key: "10"},
				{Type: TypeVLAN, Key: "40"},
				{Type: TypeSwitchDevice, Key: "Q2SW-0001"},
			},
		},
		{
			name:   "vlan has no references",
			entity: vlanEntity(10, "Corp", "10.10.10.0/24"),
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := References(tt.entity)
			if len(got) != len(tt.want) {
				t.Fatalf("References() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("References()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
