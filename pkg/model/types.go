// Package model defines the canonical typed representation of a site's
// network configuration: immutable Snapshots holding identity-keyed
// Entities grouped into sections. Snapshots are produced by capture
// (Config Provider read) or by template expansion and are never mutated
// afterwards; new states are new Snapshot values.
package model

import (
	"fmt"
	"sort"
	"time"
)

// FormatVersion is the persisted snapshot format version written by this
// build. The major component is checked on load; an unknown major version
// is a fatal load error.
const FormatVersion = "1.0"

// Section identifies a top-level configuration area of a site.
type Section string

const (
	// SectionAppliance holds security-appliance configuration (VLANs,
	// L3 firewall rules, site-to-site VPN).
	SectionAppliance Section = "appliance"

	// SectionWireless holds wireless configuration (SSIDs, RF profiles).
	SectionWireless Section = "wireless"

	// SectionSwitch holds switch devices and their port configuration.
	SectionSwitch Section = "switch"

	// SectionPolicies holds network-wide group policies.
	SectionPolicies Section = "policies"
)

// Sections lists all sections in their canonical order.
func Sections() []Section {
	return []Section{SectionAppliance, SectionWireless, SectionSwitch, SectionPolicies}
}

// Validate checks if the section is valid.
func (s Section) Validate() error {
	switch s {
	case SectionAppliance, SectionWireless, SectionSwitch, SectionPolicies:
		return nil
	default:
		return fmt.Errorf("invalid section: %s", s)
	}
}

// EntityType identifies one kind of configuration object.
type EntityType string

const (
	// TypeVLAN is an appliance VLAN, keyed by VLAN id.
	TypeVLAN EntityType = "vlan"

	// TypeFirewallRuleL3 is a layer-3 firewall rule. The provider assigns
	// no stable id, so the identity key is a content hash of the rule tuple.
	TypeFirewallRuleL3 EntityType = "firewallRuleL3"

	// TypeVPNSetting is the site-to-site VPN configuration, a singleton
	// keyed by setting name.
	TypeVPNSetting EntityType = "vpnSetting"

	// TypeSSID is a wireless SSID, keyed by slot number.
	TypeSSID EntityType = "ssid"

	// TypeRFProfile is a wireless RF profile, keyed by profile id.
	TypeRFProfile EntityType = "rfProfile"

	// TypeSwitchDevice is a switch appliance, keyed by serial.
	TypeSwitchDevice EntityType = "switchDevice"

	// TypeSwitchPort is one port of a switch, keyed by serial/portId.
	TypeSwitchPort EntityType = "switchPort"

	// TypeGroupPolicy is a network group policy, keyed by groupPolicyId.
	TypeGroupPolicy EntityType = "groupPolicy"
)

// SectionOf returns the section an entity type belongs to.
func SectionOf(t EntityType) Section {
	switch t {
	case TypeVLAN, TypeFirewallRuleL3, TypeVPNSetting:
		return SectionAppliance
	case TypeSSID, TypeRFProfile:
		return SectionWireless
	case TypeSwitchDevice, TypeSwitchPort:
		return SectionSwitch
	default:
		return SectionPolicies
	}
}

// EntityTypes lists all entity types in a fixed, deterministic order.
func EntityTypes() []EntityType {
	return []EntityType{
		TypeVLAN, TypeFirewallRuleL3, TypeVPNSetting,
		TypeSSID, TypeRFProfile,
		TypeSwitchDevice, TypeSwitchPort,
		TypeGroupPolicy,
	}
}

// Validate checks if the entity type is valid.
func (t EntityType) Validate() error {
	switch t {
	case TypeVLAN, TypeFirewallRuleL3, TypeVPNSetting, TypeSSID,
		TypeRFProfile, TypeSwitchDevice, TypeSwitchPort, TypeGroupPolicy:
		return nil
	default:
		return fmt.Errorf("invalid entity type: %s", t)
	}
}

// Entity is one configuration object with a stable identity key.
type Entity struct {
	// Type is the entity type.
	Type EntityType `json:"type"`

	// Key is the identity key, unique within (snapshot, type). Diffing
	// relies on its stability across snapshots; a provider that reassigns
	// keys on recreation degrades diffs to remove+add.
	Key string `json:"key"`

	// Fields holds the entity's configuration values by field name.
	Fields map[string]any `json:"fields"`

	// Generated marks provider-generated entities (default firewall
	// rules, unconfigured SSID slots). Generated entities are excluded
	// from diff output but retained so planning can refuse to delete them.
	Generated bool `json:"generated,omitempty"`

	// Protected marks operationally required entities (the reserved
	// management VLAN). Protected entities are never scheduled for delete.
	Protected bool `json:"protected,omitempty"`
}

// Field returns a field value and whether it is present.
func (e Entity) Field(name string) (any, bool) {
	v, ok := e.Fields[name]
	return v, ok
}

// StringField returns a field value as a string, or "" if absent or not
// a string.
func (e Entity) StringField(name string) string {
	if v, ok := e.Fields[name].(string); ok {
		return v
	}
	return ""
}

// Clone returns a deep copy of the entity.
func (e Entity) Clone() Entity {
	out := e
	out.Fields = cloneValue(e.Fields).(map[string]any)
	return out
}

// Snapshot is an immutable captured or synthesized configuration state
// for one site.
type Snapshot struct {
	// SiteID identifies the site this snapshot belongs to.
	SiteID string `json:"siteId"`

	// CapturedAt is when the snapshot was captured or synthesized.
	CapturedAt time.Time `json:"capturedAt"`

	// FormatVersion is the persisted format version ("major.minor").
	FormatVersion string `json:"formatVersion"`

	// Sections maps each section to its ordered entity collection.
	Sections map[Section][]Entity `json:"sections"`
}

// New creates a snapshot for a site with the current format version.
func New(siteID string, capturedAt time.Time) *Snapshot {
	return &Snapshot{
		SiteID:        siteID,
		CapturedAt:    capturedAt,
		FormatVersion: FormatVersion,
		Sections:      make(map[Section][]Entity),
	}
}

// Entities returns all entities of the given type, in section order.
func (s *Snapshot) Entities(t EntityType) []Entity {
	var out []Entity
	for _, e := range s.Sections[SectionOf(t)] {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Index returns the entities of the given type keyed by identity.
func (s *Snapshot) Index(t EntityType) map[string]Entity {
	out := make(map[string]Entity)
	for _, e := range s.Entities(t) {
		out[e.Key] = e
	}
	return out
}

// Lookup returns the entity with the given type and key.
func (s *Snapshot) Lookup(t EntityType, key string) (Entity, bool) {
	for _, e := range s.Entities(t) {
		if e.Key == key {
			return e, true
		}
	}
	return Entity{}, false
}

// Append returns a copy of the snapshot with the entity added to its
// section. The receiver is not modified.
func (s *Snapshot) Append(e Entity) *Snapshot {
	out := s.Clone()
	sec := SectionOf(e.Type)
	out.Sections[sec] = append(out.Sections[sec], e)
	return out
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		SiteID:        s.SiteID,
		CapturedAt:    s.CapturedAt,
		FormatVersion: s.FormatVersion,
		Sections:      make(map[Section][]Entity, len(s.Sections)),
	}
	for sec, ents := range s.Sections {
		cp := make([]Entity, len(ents))
		for i, e := range ents {
			cp[i] = e.Clone()
		}
		out.Sections[sec] = cp
	}
	return out
}

// EntityCount returns the total number of entities across all sections.
func (s *Snapshot) EntityCount() int {
	n := 0
	for _, ents := range s.Sections {
		n += len(ents)
	}
	return n
}

// Validate checks structural invariants: known sections and types,
// entities filed under the right section, and identity key uniqueness
// within each (section, type) pair.
func (s *Snapshot) Validate() error {
	if s.SiteID == "" {
		return &ValidationError{Reason: "snapshot has empty site id"}
	}
	if err := CheckFormatVersion(s.FormatVersion); err != nil {
		return err
	}
	seen := make(map[string]struct{})
	for sec, ents := range s.Sections {
		if err := sec.Validate(); err != nil {
			return &ValidationError{Reason: err.Error()}
		}
		for _, e := range ents {
			if err := e.Type.Validate(); err != nil {
				return &ValidationError{Reason: err.Error()}
			}
			if SectionOf(e.Type) != sec {
				return &ValidationError{
					EntityType: e.Type,
					Key:        e.Key,
					Reason:     fmt.Sprintf("entity filed under section %s, belongs to %s", sec, SectionOf(e.Type)),
				}
			}
			if e.Key == "" {
				return &ValidationError{EntityType: e.Type, Reason: "entity has empty identity key"}
			}
			id := string(e.Type) + "\x00" + e.Key
			if _, dup := seen[id]; dup {
				return &ValidationError{
					EntityType: e.Type,
					Key:        e.Key,
					Reason:     "duplicate identity key",
				}
			}
			seen[id] = struct{}{}
		}
	}
	return nil
}

// SortedKeys returns the identity keys of a keyed entity map in sorted
// order, for deterministic iteration.
func SortedKeys(m map[string]Entity) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValidationError reports a malformed snapshot, template or binding.
// It is fatal and raised before any write is attempted.
type ValidationError struct {
	// EntityType is the offending entity type, if applicable.
	EntityType EntityType

	// Key is the offending identity key, if applicable.
	Key string

	// Reason describes what is malformed.
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.EntityType != "" && e.Key != "" {
		return fmt.Sprintf("validation: %s %s: %s", e.EntityType, e.Key, e.Reason)
	}
	if e.EntityType != "" {
		return fmt.Sprintf("validation: %s: %s", e.EntityType, e.Reason)
	}
	return fmt.Sprintf("validation: %s", e.Reason)
}

// cloneValue deep-copies the JSON-shaped values an Entity carries.
func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}
