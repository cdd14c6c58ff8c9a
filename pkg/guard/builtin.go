package guard

// builtinModules are the Rego policies compiled into every engine.
// They mark the entities restore planning must never delete: the
// reserved management VLAN, backend-generated default firewall rules,
// and unconfigured SSID slots the backend pre-creates.
var builtinModules = map[string]string{
	"management_vlan.rego": `package sitesync.protection

import rego.v1

# VLAN 1 carries device management traffic. Deleting it strands the
# appliance, so it is protected regardless of what a snapshot says.
protected if {
	input.type == "vlan"
	input.key == "1"
}
`,

	"default_firewall_rule.rego": `package sitesync.protection

import rego.v1

# The backend appends an implicit allow-any rule to every L3 rule set.
# It is generated, not operator configuration.
generated if {
	input.type == "firewallRuleL3"
	lower(object.get(input.fields, "comment", "")) == "default rule"
	lower(object.get(input.fields, "policy", "")) == "allow"
	lower(object.get(input.fields, "srcCidr", "")) == "any"
	lower(object.get(input.fields, "destCidr", "")) == "any"
}
`,

	"unconfigured_ssid.rego": `package sitesync.protection

import rego.v1

# Wireless slots exist whether configured or not. A slot still carrying
# the factory "Unconfigured SSID ..." name is backend-generated.
generated if {
	input.type == "ssid"
	startswith(object.get(input.fields, "name", ""), "Unconfigured SSID")
}
`,
}
