package plan

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/sitesync/sitesync/pkg/diff"
	"github.com/sitesync/sitesync/pkg/model"
)

// Kind is the kind of a planned operation.
type Kind string

const (
	// KindCreate creates an entity that exists in the target state only.
	KindCreate Kind = "create"

	// KindUpdate rewrites an entity whose fields differ.
	KindUpdate Kind = "update"

	// KindDelete removes an entity that exists live but not in the
	// target state.
	KindDelete Kind = "delete"

	// KindSkip records an operation that was considered and refused
	// (protected or generated entity). Skips carry a reason and are
	// never executed.
	KindSkip Kind = "skip"
)

// Operation is one planned step.
type Operation struct {
	// Kind is the operation kind.
	Kind Kind `json:"kind"`

	// EntityType is the target entity type.
	EntityType model.EntityType `json:"entityType"`

	// Key is the target identity key.
	Key string `json:"key"`

	// Entity is the desired state for create and update, the live
	// state for delete and skip.
	Entity model.Entity `json:"entity"`

	// Rank is the dependency rank the ordering derives from.
	Rank int `json:"rank"`

	// Reason explains a skip. Empty for executable kinds.
	Reason string `json:"reason,omitempty"`
}

// RestorePlan is an ordered list of operations that transforms the live
// state of a site into the target state. Executable operations come
// first in dependency-safe order; skips trail for reporting.
type RestorePlan struct {
	// PlanID uniquely identifies this plan.
	PlanID string `json:"planId"`

	// SiteID is the site the plan applies to.
	SiteID string `json:"siteId"`

	// Operations is the ordered operation list.
	Operations []Operation `json:"operations"`
}

// Build plans the restore of target over live. Both snapshots should be
// normalized. Creates and updates are ordered by ascending dependency
// rank so referenced entities exist before their referents; deletes run
// afterwards in descending rank.
func Build(live, target *model.Snapshot) (*RestorePlan, error) {
	graph, err := NewTypeGraph()
	if err != nil {
		return nil, err
	}
	if err := CheckReferences(target); err != nil {
		return nil, err
	}

	cs := diff.Compute(live, target, diff.Options{IncludeGenerated: true})

	var writes, deletes, skips []Operation
	for _, t := range model.EntityTypes() {
		delta, ok := cs.Deltas[t]
		if !ok {
			continue
		}
		rank := graph.Rank(t)

		for _, e := range delta.Added {
			if e.Generated {
				skips = append(skips, Operation{
					Kind: KindSkip, EntityType: t, Key: e.Key, Entity: e, Rank: rank,
					Reason: "generated entity is backend-owned, not restored",
				})
				continue
			}
			writes = append(writes, Operation{Kind: KindCreate, EntityType: t, Key: e.Key, Entity: e, Rank: rank})
		}
		targetIdx := target.Index(t)
		for _, m := range delta.Modified {
			writes = append(writes, Operation{
				Kind: KindUpdate, EntityType: t, Key: m.Key, Entity: targetIdx[m.Key], Rank: rank,
			})
		}
		for _, e := range delta.Removed {
			switch {
			case e.Protected:
				skips = append(skips, Operation{
					Kind: KindSkip, EntityType: t, Key: e.Key, Entity: e, Rank: rank,
					Reason: "protected entity is never deleted",
				})
			case e.Generated:
				skips = append(skips, Operation{
					Kind: KindSkip, EntityType: t, Key: e.Key, Entity: e, Rank: rank,
					Reason: "generated entity is never deleted",
				})
			default:
				deletes = append(deletes, Operation{Kind: KindDelete, EntityType: t, Key: e.Key, Entity: e, Rank: rank})
			}
		}
	}

	typeOrder := make(map[model.EntityType]int, len(model.EntityTypes()))
	for i, t := range model.EntityTypes() {
		typeOrder[t] = i
	}
	less := func(ops []Operation, ascending bool) func(i, j int) bool {
		return func(i, j int) bool {
			a, b := ops[i], ops[j]
			if a.Rank != b.Rank {
				if ascending {
					return a.Rank < b.Rank
				}
				return a.Rank > b.Rank
			}
			if typeOrder[a.EntityType] != typeOrder[b.EntityType] {
				return typeOrder[a.EntityType] < typeOrder[b.EntityType]
			}
			return a.Key < b.Key
		}
	}
	sort.SliceStable(writes, less(writes, true))
	sort.SliceStable(deletes, less(deletes, false))
	sort.SliceStable(skips, less(skips, true))

	ops := make([]Operation, 0, len(writes)+len(deletes)+len(skips))
	ops = append(ops, writes...)
	ops = append(ops, deletes...)
	ops = append(ops, skips...)

	return &RestorePlan{PlanID: uuid.NewString(), SiteID: target.SiteID, Operations: ops}, nil
}

// Empty reports whether the plan contains no executable operations.
func (p *RestorePlan) Empty() bool {
	for _, op := range p.Operations {
		if op.Kind != KindSkip {
			return false
		}
	}
	return true
}

// Counts returns the number of operations per kind.
func (p *RestorePlan) Counts() map[Kind]int {
	out := make(map[Kind]int)
	for _, op := range p.Operations {
		out[op.Kind]++
	}
	return out
}

// CheckReferences verifies every reference in the target state resolves
// within the target state. A dangling reference would plan a write the
// backend must reject.
func CheckReferences(target *model.Snapshot) error {
	for _, sec := range model.Sections() {
		for _, e := range target.Sections[sec] {
			for _, ref := range model.References(e) {
				if _, ok := target.Lookup(ref.Type, ref.Key); !ok {
					return &StructuralError{
						Reason: fmt.Sprintf("%s %s references missing %s %s", e.Type, e.Key, ref.Type, ref.Key),
					}
				}
			}
		}
	}
	return nil
}
