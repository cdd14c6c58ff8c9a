package template

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// BindingsFile is the fan-out document for one apply run: the target
// sites with their overrides, plus execution settings.
type BindingsFile struct {
	// Sites lists the targets. At least one is required.
	Sites []SiteBinding `yaml:"sites" validate:"required,min=1,dive"`

	// Parallel caps concurrent site workers. Zero means the default.
	Parallel int `yaml:"parallel" validate:"omitempty,gte=1,lte=64"`

	// RatePerSecond is the shared provider call budget across all
	// workers. Zero means unlimited.
	RatePerSecond float64 `yaml:"ratePerSecond" validate:"omitempty,gt=0"`

	// Burst is the rate gate's burst allowance. Zero means the default.
	Burst int `yaml:"burst" validate:"omitempty,gte=1"`
}

var validate = validator.New()

// LoadBindings parses and validates a bindings document.
func LoadBindings(data []byte) (*BindingsFile, error) {
	var bf BindingsFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("parse bindings: %w", err)
	}
	if err := validate.Struct(&bf); err != nil {
		return nil, fmt.Errorf("invalid bindings: %w", err)
	}
	seen := make(map[string]bool, len(bf.Sites))
	for _, s := range bf.Sites {
		if seen[s.SiteID] {
			return nil, fmt.Errorf("invalid bindings: site %s listed twice", s.SiteID)
		}
		seen[s.SiteID] = true
	}
	return &bf, nil
}
