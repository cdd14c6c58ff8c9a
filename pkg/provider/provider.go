package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sitesync/sitesync/pkg/model"
)

// Provider reads and writes live site configuration. Implementations
// translate between the typed entity model and whatever API or store
// the site backend exposes. All calls are subject to the backend's own
// rate limiting; callers pace and retry, implementations only classify.
type Provider interface {
	// ReadSection returns the live entities of one configuration section.
	ReadSection(ctx context.Context, siteID string, section model.Section) ([]model.Entity, error)

	// Create creates a new entity on the site and returns it as the
	// backend materialized it (the backend may fill defaulted fields).
	Create(ctx context.Context, siteID string, e model.Entity) (model.Entity, error)

	// Update replaces the fields of an existing entity, matched by
	// identity key.
	Update(ctx context.Context, siteID string, e model.Entity) (model.Entity, error)

	// Delete removes the entity with the given type and key.
	Delete(ctx context.Context, siteID string, t model.EntityType, key string) error
}

// Factory constructs a provider from an endpoint string (the part of a
// provider URI after the scheme).
type Factory func(endpoint string) (Provider, error)

var (
	factoryMu sync.RWMutex
	factories = make(map[string]Factory)
)

// RegisterFactory registers a provider factory under a URI scheme.
// Called from package init in provider implementations.
func RegisterFactory(scheme string, f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[scheme] = f
}

// New constructs a provider from a "scheme:endpoint" URI.
func New(uri string) (Provider, error) {
	scheme, endpoint, ok := strings.Cut(uri, ":")
	if !ok {
		return nil, fmt.Errorf("malformed provider uri %q (want scheme:endpoint)", uri)
	}
	factoryMu.RLock()
	f, ok := factories[scheme]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider scheme %q (registered: %s)", scheme, strings.Join(Schemes(), ", "))
	}
	return f(endpoint)
}

// Schemes lists the registered provider schemes in sorted order.
func Schemes() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	out := make([]string, 0, len(factories))
	for s := range factories {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Capture reads every section of a site and assembles a snapshot. The
// read is not transactional; each section reflects the live state at
// the moment its read completed.
func Capture(ctx context.Context, p Provider, siteID string) (*model.Snapshot, error) {
	snap := model.New(siteID, time.Now().UTC())
	for _, sec := range model.Sections() {
		ents, err := p.ReadSection(ctx, siteID, sec)
		if err != nil {
			return nil, err
		}
		snap.Sections[sec] = ents
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}
