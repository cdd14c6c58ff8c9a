// Package template expands site configuration templates into concrete
// snapshots. A template is the persisted snapshot section tree with
// ${expr} placeholders; expressions are Starlark, evaluated against
// per-site bindings, so one template fans out to many sites with
// site-specific addressing.
package template

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Template is a parsed site configuration template.
type Template struct {
	// Name identifies the template.
	Name string `yaml:"name"`

	// Description is free-form operator documentation.
	Description string `yaml:"description"`

	// Defaults are binding values used when a site does not override
	// them.
	Defaults map[string]any `yaml:"defaults"`

	// Sections is the raw section tree (appliance, wireless, switch,
	// policies) with placeholder strings still in place.
	Sections map[string]any `yaml:"sections"`
}

// Load parses a YAML template document.
func Load(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("malformed template: %w", err)
	}
	if t.Name == "" {
		return nil, fmt.Errorf("template has no name")
	}
	if len(t.Sections) == 0 {
		return nil, fmt.Errorf("template %s has no sections", t.Name)
	}
	for sec := range t.Sections {
		switch sec {
		case "appliance", "wireless", "switch", "policies":
		default:
			return nil, fmt.Errorf("template %s has unknown section %q", t.Name, sec)
		}
	}
	return &t, nil
}

// bindingsFor merges template defaults with site overrides and the
// implicit SITE_ID binding.
func (t *Template) bindingsFor(siteID string, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(t.Defaults)+len(overrides)+1)
	for k, v := range t.Defaults {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	out["SITE_ID"] = siteID
	return out
}
