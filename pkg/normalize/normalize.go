// Package normalize prepares captured snapshots for diffing. It strips
// volatile, backend-assigned fields that change on every read, and
// flags protected and generated entities via the guard policies.
// Normalization never removes an entity and never reorders sections;
// the output snapshot is a new value.
package normalize

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sitesync/sitesync/pkg/guard"
	"github.com/sitesync/sitesync/pkg/model"
)

// volatileFields lists per-type fields the backend rewrites on its own
// (addresses, uptime counters, firmware strings). Keeping them in the
// model would make every diff noisy.
var volatileFields = map[model.EntityType][]string{
	model.TypeSwitchDevice: {"mac", "lanIp", "firmware", "url", "lastReportedAt"},
	model.TypeSwitchPort:   {"linkNegotiationCapabilities", "usage"},
	model.TypeSSID:         {"radiusServers"}, // secrets are never persisted
	model.TypeVPNSetting:   {"peerIps"},
}

// Normalizer applies guard classification and volatile-field stripping.
type Normalizer struct {
	guard  *guard.Engine
	logger zerolog.Logger
}

// New creates a normalizer backed by the given guard engine.
func New(g *guard.Engine, logger zerolog.Logger) *Normalizer {
	return &Normalizer{
		guard:  g,
		logger: logger.With().Str("component", "normalize").Logger(),
	}
}

// Normalize returns a normalized copy of the snapshot. The input is not
// modified.
func (n *Normalizer) Normalize(ctx context.Context, snap *model.Snapshot) (*model.Snapshot, error) {
	out := snap.Clone()
	flagged := 0
	for _, sec := range model.Sections() {
		ents := out.Sections[sec]
		for i := range ents {
			v, err := n.guard.Classify(ctx, ents[i])
			if err != nil {
				return nil, err
			}
			ents[i].Protected = v.Protected
			ents[i].Generated = v.Generated
			if v.Protected || v.Generated {
				flagged++
			}
			for _, f := range volatileFields[ents[i].Type] {
				delete(ents[i].Fields, f)
			}
			applyNameFallback(&ents[i])
		}
	}

	n.logger.Debug().
		Str("site_id", snap.SiteID).
		Int("entities", out.EntityCount()).
		Int("flagged", flagged).
		Msg("Snapshot normalized")
	return out, nil
}

// applyNameFallback names an unnamed switch device with the model's
// shared fallback, covering entities that entered the snapshot without
// going through the codec (template expansion, direct provider reads).
func applyNameFallback(e *model.Entity) {
	if e.Type != model.TypeSwitchDevice || e.StringField("name") != "" {
		return
	}
	deviceModel := e.StringField("model")
	serial := e.StringField("serial")
	if deviceModel == "" || serial == "" {
		return
	}
	e.Fields["name"] = model.FallbackDeviceName(deviceModel, serial)
}
