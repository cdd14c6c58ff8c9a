package model

import (
	"fmt"
	"strconv"
)

// Ref is a cross-entity reference: one entity's field pointing at
// another entity's identity.
type Ref struct {
	// Type is the referenced entity type.
	Type EntityType

	// Key is the referenced identity key.
	Key string
}

// String returns a compact "type/key" form for logs and reports.
func (r Ref) String() string {
	return fmt.Sprintf("%s/%s", r.Type, r.Key)
}

// References extracts the cross-entity references an entity carries.
// The restore planner uses these to block dependents of a failed
// operation; the template engine uses them to check that an expanded
// snapshot is internally consistent.
func References(e Entity) []Ref {
	var refs []Ref
	switch e.Type {
	case TypeSSID:
		if key, ok := vlanKey(e.Fields["defaultVlanId"]); ok {
			refs = append(refs, Ref{Type: TypeVLAN, Key: key})
		}
	case TypeSwitchPort:
		if key, ok := vlanKey(e.Fields["vlan"]); ok {
			refs = append(refs, Ref{Type: TypeVLAN, Key: key})
		}
		if key, ok := vlanKey(e.Fields["voiceVlan"]); ok {
			refs = append(refs, Ref{Type: TypeVLAN, Key: key})
		}
		if serial := e.StringField("serial"); serial != "" {
			refs = append(refs, Ref{Type: TypeSwitchDevice, Key: serial})
		}
	case TypeGroupPolicy:
		if key, ok := vlanKey(e.Fields["vlanId"]); ok {
			refs = append(refs, Ref{Type: TypeVLAN, Key: key})
		}
	case TypeFirewallRuleL3:
		if key, ok := vlanKey(e.Fields["vlanId"]); ok {
			refs = append(refs, Ref{Type: TypeVLAN, Key: key})
		}
	}
	return refs
}

// vlanKey normalizes a VLAN reference field to its identity key form.
// Providers deliver VLAN ids as JSON numbers, strings or nil.
func vlanKey(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		if val == "" {
			return "", false
		}
		return val, true
	case float64:
		return strconv.FormatInt(int64(val), 10), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	default:
		return "", false
	}
}
