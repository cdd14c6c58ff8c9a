// Package diff computes semantic change sets between two snapshots.
// Entities pair up by identity key, never by position, so reordering a
// section produces no changes. Output ordering is deterministic: types
// in model order, keys sorted, fields sorted.
package diff

import (
	"reflect"
	"sort"

	"github.com/sitesync/sitesync/pkg/model"
)

// FieldDiff is one changed field of a modified entity. A nil Before
// means the field was added, a nil After means it was removed.
type FieldDiff struct {
	// Field is the field name.
	Field string `json:"field"`

	// Before is the value in the base snapshot.
	Before any `json:"before"`

	// After is the value in the target snapshot.
	After any `json:"after"`
}

// Modification is an entity present on both sides with differing fields.
type Modification struct {
	// Key is the entity identity key.
	Key string `json:"key"`

	// Fields lists the changed fields, sorted by name.
	Fields []FieldDiff `json:"fields"`
}

// TypeDelta groups the changes of one entity type.
type TypeDelta struct {
	// Added entities exist only in the target snapshot.
	Added []model.Entity `json:"added,omitempty"`

	// Removed entities exist only in the base snapshot.
	Removed []model.Entity `json:"removed,omitempty"`

	// Modified entities exist on both sides with differing fields.
	Modified []Modification `json:"modified,omitempty"`
}

// ChangeSet is the semantic difference from a base snapshot to a
// target snapshot: applying the changes to base yields target.
type ChangeSet struct {
	// SiteID is the site both snapshots describe.
	SiteID string `json:"siteId"`

	// Deltas maps entity types to their changes. Types with no changes
	// are absent.
	Deltas map[model.EntityType]TypeDelta `json:"deltas"`
}

// Options control change-set computation.
type Options struct {
	// IncludeGenerated includes backend-generated entities in the
	// comparison. Off by default; generated entities are noise in
	// operator-facing diffs.
	IncludeGenerated bool
}

// Compute diffs base against target. Both snapshots should be
// normalized first; unnormalized volatile fields show up as
// modifications.
func Compute(base, target *model.Snapshot, opts Options) *ChangeSet {
	cs := &ChangeSet{
		SiteID: target.SiteID,
		Deltas: make(map[model.EntityType]TypeDelta),
	}

	for _, t := range model.EntityTypes() {
		before := filterIndex(base.Index(t), opts)
		after := filterIndex(target.Index(t), opts)

		var delta TypeDelta
		for _, key := range model.SortedKeys(after) {
			ent := after[key]
			prev, existed := before[key]
			if !existed {
				delta.Added = append(delta.Added, ent)
				continue
			}
			if fields := diffFields(prev.Fields, ent.Fields); len(fields) > 0 {
				delta.Modified = append(delta.Modified, Modification{Key: key, Fields: fields})
			}
		}
		for _, key := range model.SortedKeys(before) {
			if _, exists := after[key]; !exists {
				delta.Removed = append(delta.Removed, before[key])
			}
		}

		if len(delta.Added)+len(delta.Removed)+len(delta.Modified) > 0 {
			cs.Deltas[t] = delta
		}
	}
	return cs
}

// Empty reports whether the change set contains no changes.
func (c *ChangeSet) Empty() bool {
	return len(c.Deltas) == 0
}

// Counts returns the total added, removed and modified entity counts.
func (c *ChangeSet) Counts() (added, removed, modified int) {
	for _, d := range c.Deltas {
		added += len(d.Added)
		removed += len(d.Removed)
		modified += len(d.Modified)
	}
	return added, removed, modified
}

// SectionCounts returns per-section change totals, for drift summaries.
func (c *ChangeSet) SectionCounts() map[model.Section]int {
	out := make(map[model.Section]int)
	for t, d := range c.Deltas {
		out[model.SectionOf(t)] += len(d.Added) + len(d.Removed) + len(d.Modified)
	}
	return out
}

// filterIndex drops generated entities unless included by options.
func filterIndex(idx map[string]model.Entity, opts Options) map[string]model.Entity {
	if opts.IncludeGenerated {
		return idx
	}
	out := make(map[string]model.Entity, len(idx))
	for k, e := range idx {
		if e.Generated {
			continue
		}
		out[k] = e
	}
	return out
}

// diffFields compares two field maps and returns the changed fields
// sorted by name. Values compare by deep equality; number normalization
// upstream keeps 10 and 10.0 from differing.
func diffFields(before, after map[string]any) []FieldDiff {
	names := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		names[k] = struct{}{}
	}
	for k := range after {
		names[k] = struct{}{}
	}

	var out []FieldDiff
	for name := range names {
		b, inBefore := before[name]
		a, inAfter := after[name]
		if inBefore && inAfter && reflect.DeepEqual(b, a) {
			continue
		}
		if !inBefore && !inAfter {
			continue
		}
		out = append(out, FieldDiff{Field: name, Before: b, After: a})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}
