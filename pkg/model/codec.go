package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// document is the persisted snapshot record shape.
type document struct {
	Metadata  metadata    `json:"metadata"`
	Appliance appliance   `json:"appliance"`
	Wireless  wireless    `json:"wireless"`
	Switch    switchBlock `json:"switch"`
	Policies  policies    `json:"policies"`
}

type metadata struct {
	Timestamp     time.Time `json:"timestamp"`
	SiteID        string    `json:"siteId"`
	FormatVersion string    `json:"formatVersion"`
}

type appliance struct {
	VLANs           []map[string]any `json:"vlans"`
	FirewallRulesL3 []map[string]any `json:"firewallRulesL3"`
	VPNSettings     map[string]any   `json:"vpnSettings,omitempty"`
}

type wireless struct {
	SSIDs      []map[string]any `json:"ssids"`
	RFProfiles []map[string]any `json:"rfProfiles"`
}

type switchBlock struct {
	Devices []switchDevice `json:"devices"`
}

type switchDevice struct {
	Serial string           `json:"serial"`
	Name   string           `json:"name"`
	Model  string           `json:"model"`
	Ports  []map[string]any `json:"ports"`
}

type policies struct {
	GroupPolicies []map[string]any `json:"groupPolicies"`
}

// CheckFormatVersion verifies a persisted format version. An unknown
// major version is a fatal load error; minor versions are forward
// compatible within a major.
func CheckFormatVersion(v string) error {
	major, _, ok := strings.Cut(v, ".")
	if !ok {
		return &ValidationError{Reason: fmt.Sprintf("malformed format version %q", v)}
	}
	wantMajor, _, _ := strings.Cut(FormatVersion, ".")
	if major != wantMajor {
		return &ValidationError{
			Reason: fmt.Sprintf("unsupported snapshot format version %s (supported major: %s)", v, wantMajor),
		}
	}
	return nil
}

// Decode parses a persisted snapshot record and builds the typed model.
// It derives identity keys per entity type, applies the switch device
// naming fallback, and validates structural invariants. No silent
// best-effort parsing: malformed documents fail with a ValidationError.
func Decode(data []byte) (*Snapshot, error) {
	var doc document
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("malformed snapshot document: %v", err)}
	}
	if err := CheckFormatVersion(doc.Metadata.FormatVersion); err != nil {
		return nil, err
	}

	snap := New(doc.Metadata.SiteID, doc.Metadata.Timestamp)
	snap.FormatVersion = doc.Metadata.FormatVersion

	for _, fields := range doc.Appliance.VLANs {
		e, err := buildEntity(TypeVLAN, normalizeNumbers(fields))
		if err != nil {
			return nil, err
		}
		snap.Sections[SectionAppliance] = append(snap.Sections[SectionAppliance], e)
	}
	for _, fields := range doc.Appliance.FirewallRulesL3 {
		e, err := buildEntity(TypeFirewallRuleL3, normalizeNumbers(fields))
		if err != nil {
			return nil, err
		}
		snap.Sections[SectionAppliance] = append(snap.Sections[SectionAppliance], e)
	}
	if len(doc.Appliance.VPNSettings) > 0 {
		e, err := buildEntity(TypeVPNSetting, normalizeNumbers(doc.Appliance.VPNSettings))
		if err != nil {
			return nil, err
		}
		snap.Sections[SectionAppliance] = append(snap.Sections[SectionAppliance], e)
	}
	for _, fields := range doc.Wireless.SSIDs {
		e, err := buildEntity(TypeSSID, normalizeNumbers(fields))
		if err != nil {
			return nil, err
		}
		snap.Sections[SectionWireless] = append(snap.Sections[SectionWireless], e)
	}
	for _, fields := range doc.Wireless.RFProfiles {
		e, err := buildEntity(TypeRFProfile, normalizeNumbers(fields))
		if err != nil {
			return nil, err
		}
		snap.Sections[SectionWireless] = append(snap.Sections[SectionWireless], e)
	}
	for _, dev := range doc.Switch.Devices {
		name := dev.Name
		if name == "" {
			name = FallbackDeviceName(dev.Model, dev.Serial)
		}
		devEntity := Entity{
			Type: TypeSwitchDevice,
			Key:  dev.Serial,
			Fields: map[string]any{
				"serial": dev.Serial,
				"name":   name,
				"model":  dev.Model,
			},
		}
		if dev.Serial == "" {
			return nil, &ValidationError{EntityType: TypeSwitchDevice, Reason: "switch device has empty serial"}
		}
		snap.Sections[SectionSwitch] = append(snap.Sections[SectionSwitch], devEntity)

		for _, port := range dev.Ports {
			fields := normalizeNumbers(port)
			fields["serial"] = dev.Serial
			e, err := buildEntity(TypeSwitchPort, fields)
			if err != nil {
				return nil, err
			}
			snap.Sections[SectionSwitch] = append(snap.Sections[SectionSwitch], e)
		}
	}
	for _, fields := range doc.Policies.GroupPolicies {
		e, err := buildEntity(TypeGroupPolicy, normalizeNumbers(fields))
		if err != nil {
			return nil, err
		}
		snap.Sections[SectionPolicies] = append(snap.Sections[SectionPolicies], e)
	}

	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Encode serializes a snapshot into the persisted record shape.
func Encode(s *Snapshot) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	doc := document{
		Metadata: metadata{
			Timestamp:     s.CapturedAt,
			SiteID:        s.SiteID,
			FormatVersion: s.FormatVersion,
		},
		Appliance: appliance{
			VLANs:           []map[string]any{},
			FirewallRulesL3: []map[string]any{},
		},
		Wireless: wireless{SSIDs: []map[string]any{}, RFProfiles: []map[string]any{}},
		Switch:   switchBlock{Devices: []switchDevice{}},
		Policies: policies{GroupPolicies: []map[string]any{}},
	}

	ports := make(map[string][]map[string]any)
	for _, e := range s.Entities(TypeSwitchPort) {
		serial := e.StringField("serial")
		fields := cloneValue(e.Fields).(map[string]any)
		delete(fields, "serial")
		ports[serial] = append(ports[serial], fields)
	}
	for _, e := range s.Entities(TypeSwitchDevice) {
		doc.Switch.Devices = append(doc.Switch.Devices, switchDevice{
			Serial: e.Key,
			Name:   e.StringField("name"),
			Model:  e.StringField("model"),
			Ports:  ports[e.Key],
		})
	}

	for _, e := range s.Entities(TypeVLAN) {
		doc.Appliance.VLANs = append(doc.Appliance.VLANs, e.Fields)
	}
	for _, e := range s.Entities(TypeFirewallRuleL3) {
		doc.Appliance.FirewallRulesL3 = append(doc.Appliance.FirewallRulesL3, e.Fields)
	}
	for _, e := range s.Entities(TypeVPNSetting) {
		doc.Appliance.VPNSettings = e.Fields
	}
	for _, e := range s.Entities(TypeSSID) {
		doc.Wireless.SSIDs = append(doc.Wireless.SSIDs, e.Fields)
	}
	for _, e := range s.Entities(TypeRFProfile) {
		doc.Wireless.RFProfiles = append(doc.Wireless.RFProfiles, e.Fields)
	}
	for _, e := range s.Entities(TypeGroupPolicy) {
		doc.Policies.GroupPolicies = append(doc.Policies.GroupPolicies, e.Fields)
	}

	return json.MarshalIndent(doc, "", "  ")
}

// BuildEntity derives an entity with its identity key from raw provider
// fields. It is used both by the codec and when ingesting Config
// Provider reads.
func BuildEntity(t EntityType, fields map[string]any) (Entity, error) {
	return buildEntity(t, normalizeNumbers(fields))
}

func buildEntity(t EntityType, fields map[string]any) (Entity, error) {
	key, err := identityKey(t, fields)
	if err != nil {
		return Entity{}, err
	}
	return Entity{Type: t, Key: key, Fields: fields}, nil
}

// identityKey derives the identity key for an entity type from its
// fields.
func identityKey(t EntityType, fields map[string]any) (string, error) {
	missing := func(field string) error {
		return &ValidationError{EntityType: t, Reason: fmt.Sprintf("missing identity field %q", field)}
	}
	switch t {
	case TypeVLAN:
		key, ok := vlanKey(fields["id"])
		if !ok {
			return "", missing("id")
		}
		return key, nil
	case TypeFirewallRuleL3:
		return FirewallRuleKey(fields), nil
	case TypeVPNSetting:
		return "siteToSite", nil
	case TypeSSID:
		key, ok := vlanKey(fields["number"])
		if !ok {
			return "", missing("number")
		}
		return key, nil
	case TypeRFProfile:
		key, ok := vlanKey(fields["id"])
		if !ok {
			return "", missing("id")
		}
		return key, nil
	case TypeSwitchDevice:
		serial, _ := fields["serial"].(string)
		if serial == "" {
			return "", missing("serial")
		}
		return serial, nil
	case TypeSwitchPort:
		serial, _ := fields["serial"].(string)
		port, ok := vlanKey(fields["portId"])
		if serial == "" || !ok {
			return "", missing("serial/portId")
		}
		return serial + "/" + port, nil
	case TypeGroupPolicy:
		key, ok := vlanKey(fields["groupPolicyId"])
		if !ok {
			return "", missing("groupPolicyId")
		}
		return key, nil
	default:
		return "", &ValidationError{EntityType: t, Reason: "unknown entity type"}
	}
}

// FirewallRuleKey computes the content-hash identity of an L3 firewall
// rule. The provider assigns rules no stable id; hashing the rule tuple
// makes an unchanged rule keep its key across snapshots, while any
// edit shows up as remove+add (a documented limitation of positional
// rule lists).
func FirewallRuleKey(fields map[string]any) string {
	parts := []string{
		fmt.Sprint(fields["comment"]),
		fmt.Sprint(fields["policy"]),
		fmt.Sprint(fields["protocol"]),
		fmt.Sprint(fields["srcCidr"]),
		fmt.Sprint(fields["srcPort"]),
		fmt.Sprint(fields["destCidr"]),
		fmt.Sprint(fields["destPort"]),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:6])
}

// FallbackDeviceName names an unnamed device model-<last4 of serial>.
// Capture and normalization both apply it, so two reads of the same
// unnamed device always compare equal.
func FallbackDeviceName(model, serial string) string {
	tail := serial
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	return model + "-" + tail
}

// normalizeNumbers rewrites json.Number values into int64 where the
// value is integral and float64 otherwise, recursively. Entity fields
// then compare predictably regardless of decode path.
func normalizeNumbers(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = normalizeNumber(v)
	}
	return out
}

func normalizeNumber(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
		return val
	case map[string]any:
		return normalizeNumbers(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeNumber(item)
		}
		return out
	default:
		return val
	}
}

// ParseVLANID parses a VLAN identity key back to its numeric id.
func ParseVLANID(key string) (int, error) {
	id, err := strconv.Atoi(key)
	if err != nil {
		return 0, &ValidationError{EntityType: TypeVLAN, Key: key, Reason: "non-numeric vlan id"}
	}
	return id, nil
}
