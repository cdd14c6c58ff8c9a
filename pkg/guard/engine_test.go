package guard

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sitesync/sitesync/pkg/model"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func TestClassifyBuiltins(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		entity model.Entity
		want   Verdict
	}{
		{
			name: "management vlan is protected",
			entity: model.Entity{Type: model.TypeVLAN, Key: "1", Fields: map[string]any{
				"id": int64(1), "name": "Management",
			}},
			want: Verdict{Protected: true},
		},
		{
			name: "ordinary vlan is unclassified",
			entity: model.Entity{Type: model.TypeVLAN, Key: "10", Fields: map[string]any{
				"id": int64(10), "name": "Corp",
			}},
			want: Verdict{},
		},
		{
			name: "default allow-any firewall rule is generated",
			entity: model.Entity{Type: model.TypeFirewallRuleL3, Key: "abc123", Fields: map[string]any{
				"comment": "Default rule", "policy": "allow", "protocol": "Any",
				"srcCidr": "Any", "srcPort": "Any", "destCidr": "Any", "destPort": "Any",
			}},
			want: Verdict{Generated: true},
		},
		{
			name: "deny rule with default comment is not generated",
			entity: model.Entity{Type: model.TypeFirewallRuleL3, Key: "def456", Fields: map[string]any{
				"comment": "Default rule", "policy": "deny", "protocol": "any",
				"srcCidr": "Any", "srcPort": "Any", "destCidr": "Any", "destPort": "Any",
			}},
			want: Verdict{},
		},
		{
			name: "unconfigured ssid slot is generated",
			entity: model.Entity{Type: model.TypeSSID, Key: "7", Fields: map[string]any{
				"number": int64(7), "name": "Unconfigured SSID 8", "enabled": false,
			}},
			want: Verdict{Generated: true},
		},
		{
			name: "configured ssid is unclassified",
			entity: model.Entity{Type: model.TypeSSID, Key: "0", Fields: map[string]any{
				"number": int64(0), "name": "Corp-WiFi", "enabled": true,
			}},
			want: Verdict{},
		},
		{
			name: "firewall rule without comment is not generated",
			entity: model.Entity{Type: model.TypeFirewallRuleL3, Key: "ghi789", Fields: map[string]any{
				"policy": "allow", "protocol": "any",
				"srcCidr": "10.0.0.0/8", "srcPort": "any", "destCidr": "Any", "destPort": "any",
			}},
			want: Verdict{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Classify(ctx, tt.entity)
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Classify() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLoadPolicyDir(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	dir := t.TempDir()
	custom := `package sitesync.protection

import rego.v1

protected if {
	input.type == "vlan"
	object.get(input.fields, "name", "") == "Payments"
}
`
	if err := os.WriteFile(filepath.Join(dir, "payments.rego"), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := e.LoadPolicyDir(ctx, dir); err != nil {
		t.Fatalf("LoadPolicyDir() error = %v", err)
	}

	v, err := e.Classify(ctx, model.Entity{Type: model.TypeVLAN, Key: "40", Fields: map[string]any{
		"id": int64(40), "name": "Payments",
	}})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if !v.Protected {
		t.Error("custom policy did not mark Payments vlan protected")
	}

	// Built-ins still apply after loading extras.
	v, err = e.Classify(ctx, model.Entity{Type: model.TypeVLAN, Key: "1", Fields: map[string]any{
		"id": int64(1), "name": "Management",
	}})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if !v.Protected {
		t.Error("management vlan lost protection after LoadPolicyDir")
	}
}

func TestLoadPolicyDirBadRego(t *testing.T) {
	e := testEngine(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.rego"), []byte("not rego at all {"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := e.LoadPolicyDir(context.Background(), dir); err == nil {
		t.Error("LoadPolicyDir() accepted malformed rego")
	}
}
