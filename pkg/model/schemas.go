package model

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry validates entity fields against per-type CUE schemas.
// Dynamic, loosely typed provider payloads get an explicit typed shape
// here, checked at snapshot construction instead of ad-hoc key lookups
// later.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[EntityType]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry with the built-in entity schemas.
func NewSchemaRegistry() (*SchemaRegistry, error) {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[EntityType]cue.Value),
	}
	for t, schema := range builtinEntitySchemas {
		if err := sr.Register(t, schema); err != nil {
			return nil, err
		}
	}
	return sr, nil
}

// Register compiles and registers a schema for an entity type,
// replacing any existing one.
func (sr *SchemaRegistry) Register(t EntityType, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", t, err)
	}
	sr.schemas[t] = val
	return nil
}

// ValidateEntity checks an entity's fields against its type schema.
func (sr *SchemaRegistry) ValidateEntity(e Entity) error {
	sr.mu.RLock()
	schema, ok := sr.schemas[e.Type]
	sr.mu.RUnlock()
	if !ok {
		return &ValidationError{EntityType: e.Type, Key: e.Key, Reason: "no schema registered"}
	}

	dataVal := sr.ctx.Encode(e.Fields)
	if err := dataVal.Err(); err != nil {
		return &ValidationError{EntityType: e.Type, Key: e.Key, Reason: fmt.Sprintf("encode: %v", err)}
	}
	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{EntityType: e.Type, Key: e.Key, Reason: err.Error()}
	}
	return nil
}

// ValidateSnapshot checks every entity in the snapshot against its
// type schema.
func (sr *SchemaRegistry) ValidateSnapshot(s *Snapshot) error {
	for _, sec := range Sections() {
		for _, e := range s.Sections[sec] {
			if err := sr.ValidateEntity(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// Built-in entity schemas. Fields the provider may omit are optional;
// every schema stays open so newer provider fields pass through.
var builtinEntitySchemas = map[EntityType]string{
	TypeVLAN: `
// Appliance VLAN
{
	id:          int & >=1 & <=4094
	name:        string
	subnet?:     string & =~"^[0-9.]+/[0-9]+$"
	applianceIp?: string
	...
}
`,
	TypeFirewallRuleL3: `
// Layer-3 firewall rule
{
	comment?:  string
	policy:    "allow" | "deny"
	protocol:  "any" | "tcp" | "udp" | "icmp"
	srcCidr:   string
	srcPort:   string | int
	destCidr:  string
	destPort:  string | int
	...
}
`,
	TypeVPNSetting: `
// Site-to-site VPN configuration
{
	mode: "none" | "spoke" | "hub"
	hubs?: [...{hubId: string, useDefaultRoute?: bool}]
	subnets?: [...{localSubnet: string, useVpn?: bool}]
	...
}
`,
	TypeSSID: `
// Wireless SSID slot
{
	number:   int & >=0 & <=14
	name:     string
	enabled?: bool
	authMode?: "open" | "psk" | "open-with-radius" | "8021x-radius"
	psk?:            string
	encryptionMode?: string
	defaultVlanId?:  int
	ipAssignmentMode?: string
	...
}
`,
	TypeRFProfile: `
// Wireless RF profile
{
	id:   string | int
	name: string
	bandSelectionType?: string
	...
}
`,
	TypeSwitchDevice: `
// Switch device
{
	serial: string & =~"^[A-Z0-9-]+$"
	name:   string
	model?: string
	...
}
`,
	TypeSwitchPort: `
// Switch port
{
	serial:     string
	portId:     string | int
	name?:      string
	enabled?:   bool
	type?:      "access" | "trunk"
	vlan?:      int
	voiceVlan?: int
	poeEnabled?: bool
	...
}
`,
	TypeGroupPolicy: `
// Network group policy
{
	groupPolicyId: string | int
	name:          string
	scheduling?: {...}
	bandwidth?: {...}
	firewallAndTrafficShaping?: {...}
	...
}
`,
}
