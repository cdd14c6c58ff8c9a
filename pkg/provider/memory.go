package provider

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/sitesync/sitesync/pkg/model"
)

func init() {
	// memory:<path> seeds the store from a snapshot document; a bare
	// "memory:" endpoint starts empty.
	RegisterFactory("memory", func(endpoint string) (Provider, error) {
		m := NewMemory()
		if endpoint == "" {
			return m, nil
		}
		data, err := os.ReadFile(endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to read seed snapshot: %w", err)
		}
		snap, err := model.Decode(data)
		if err != nil {
			return nil, err
		}
		m.Seed(snap)
		return m, nil
	})
}

// Memory is an in-process provider backed by a map. It serves dry runs,
// offline verification against a stored snapshot, and tests. Writes
// apply atomically under a single lock.
type Memory struct {
	mu    sync.Mutex
	sites map[string]map[model.EntityType]map[string]model.Entity

	// WriteHook, when set, runs before every Create, Update and Delete
	// with the action name and target entity. Returning an error aborts
	// the write without applying it. Tests use it to inject classified
	// failures.
	WriteHook func(action, siteID string, e model.Entity) error
}

// NewMemory creates an empty in-memory provider.
func NewMemory() *Memory {
	return &Memory{sites: make(map[string]map[model.EntityType]map[string]model.Entity)}
}

// Seed loads a snapshot's entities as the live state of its site,
// replacing any existing state for that site.
func (m *Memory) Seed(snap *model.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	site := make(map[model.EntityType]map[string]model.Entity)
	for _, sec := range model.Sections() {
		for _, e := range snap.Sections[sec] {
			byKey := site[e.Type]
			if byKey == nil {
				byKey = make(map[string]model.Entity)
				site[e.Type] = byKey
			}
			byKey[e.Key] = e.Clone()
		}
	}
	m.sites[snap.SiteID] = site
}

// ReadSection implements Provider.
func (m *Memory) ReadSection(ctx context.Context, siteID string, section model.Section) ([]model.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewTransient("read cancelled", err).WithSite(siteID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	site, ok := m.sites[siteID]
	if !ok {
		return nil, NewNotFound("unknown site", nil).WithSite(siteID)
	}
	var out []model.Entity
	for _, t := range model.EntityTypes() {
		if model.SectionOf(t) != section {
			continue
		}
		byKey := site[t]
		for _, key := range model.SortedKeys(byKey) {
			out = append(out, byKey[key].Clone())
		}
	}
	return out, nil
}

// Create implements Provider.
func (m *Memory) Create(ctx context.Context, siteID string, e model.Entity) (model.Entity, error) {
	if err := m.checkWrite(ctx, "create", siteID, e); err != nil {
		return model.Entity{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	byKey := m.bucket(siteID, e.Type)
	if _, exists := byKey[e.Key]; exists {
		return model.Entity{}, NewConflict("entity already exists", nil).
			WithSite(siteID).WithEntity(string(e.Type), e.Key)
	}
	byKey[e.Key] = e.Clone()
	return e, nil
}

// Update implements Provider.
func (m *Memory) Update(ctx context.Context, siteID string, e model.Entity) (model.Entity, error) {
	if err := m.checkWrite(ctx, "update", siteID, e); err != nil {
		return model.Entity{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	byKey := m.bucket(siteID, e.Type)
	if _, exists := byKey[e.Key]; !exists {
		return model.Entity{}, NewNotFound("entity does not exist", nil).
			WithSite(siteID).WithEntity(string(e.Type), e.Key)
	}
	byKey[e.Key] = e.Clone()
	return e, nil
}

// Delete implements Provider.
func (m *Memory) Delete(ctx context.Context, siteID string, t model.EntityType, key string) error {
	if err := m.checkWrite(ctx, "delete", siteID, model.Entity{Type: t, Key: key}); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	byKey := m.bucket(siteID, t)
	if _, exists := byKey[key]; !exists {
		return NewNotFound("entity does not exist", nil).
			WithSite(siteID).WithEntity(string(t), key)
	}
	delete(byKey, key)
	return nil
}

func (m *Memory) checkWrite(ctx context.Context, action, siteID string, e model.Entity) error {
	if err := ctx.Err(); err != nil {
		return NewTransient("write cancelled", err).WithSite(siteID)
	}
	if m.WriteHook != nil {
		if err := m.WriteHook(action, siteID, e); err != nil {
			return err
		}
	}
	return nil
}

// bucket returns the per-site, per-type entity map, creating it if
// needed. Caller holds m.mu.
func (m *Memory) bucket(siteID string, t model.EntityType) map[string]model.Entity {
	site := m.sites[siteID]
	if site == nil {
		site = make(map[model.EntityType]map[string]model.Entity)
		m.sites[siteID] = site
	}
	byKey := site[t]
	if byKey == nil {
		byKey = make(map[string]model.Entity)
		site[t] = byKey
	}
	return byKey
}
