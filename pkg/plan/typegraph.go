// Package plan turns a change set into an ordered restore plan.
// Ordering comes from a fixed dependency graph over entity types:
// referenced types rank before referencing types, creates and updates
// run in ascending rank, deletes in descending rank. Protected and
// generated entities are never scheduled for delete.
package plan

import (
	"fmt"
	"strings"

	"github.com/sitesync/sitesync/pkg/model"
)

// typeEdges lists the dependency edges between entity types. An edge
// A -> B means B references A, so A must exist before B is written.
var typeEdges = [][2]model.EntityType{
	{model.TypeVLAN, model.TypeGroupPolicy},
	{model.TypeGroupPolicy, model.TypeFirewallRuleL3},
	{model.TypeFirewallRuleL3, model.TypeVPNSetting},
	{model.TypeVLAN, model.TypeSSID},
	{model.TypeSSID, model.TypeRFProfile},
	{model.TypeSwitchDevice, model.TypeSwitchPort},
	{model.TypeVLAN, model.TypeSwitchPort},
}

// StructuralError reports an unsatisfiable plan: a dependency cycle or
// a dangling reference. It is fatal and raised before any write.
type StructuralError struct {
	// Reason describes the structural problem.
	Reason string

	// Cycle holds the offending type cycle, if one was found.
	Cycle []model.EntityType
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	if len(e.Cycle) > 0 {
		parts := make([]string, len(e.Cycle))
		for i, t := range e.Cycle {
			parts[i] = string(t)
		}
		return fmt.Sprintf("structural: %s: %s", e.Reason, strings.Join(parts, " -> "))
	}
	return "structural: " + e.Reason
}

// TypeGraph holds the dependency ranks of all entity types.
type TypeGraph struct {
	adjacency map[model.EntityType][]model.EntityType
	inDegree  map[model.EntityType]int
	ranks     map[model.EntityType]int
	depth     int
}

// NewTypeGraph builds the graph from the fixed edge set, verifies it is
// acyclic and computes ranks level by level.
func NewTypeGraph() (*TypeGraph, error) {
	g := &TypeGraph{
		adjacency: make(map[model.EntityType][]model.EntityType),
		inDegree:  make(map[model.EntityType]int),
		ranks:     make(map[model.EntityType]int),
	}
	for _, t := range model.EntityTypes() {
		g.inDegree[t] = 0
	}
	for _, edge := range typeEdges {
		g.adjacency[edge[0]] = append(g.adjacency[edge[0]], edge[1])
		g.inDegree[edge[1]]++
	}

	if cycle := g.findCycle(); len(cycle) > 0 {
		return nil, &StructuralError{Reason: "dependency cycle between entity types", Cycle: cycle}
	}
	g.computeRanks()
	return g, nil
}

// Rank returns the dependency rank of an entity type. Lower ranks are
// written first on create, last on delete.
func (g *TypeGraph) Rank(t model.EntityType) int {
	return g.ranks[t]
}

// Depth returns the number of rank levels.
func (g *TypeGraph) Depth() int {
	return g.depth
}

// findCycle runs DFS over the type edges and returns a cycle path, or
// nil when the graph is acyclic.
func (g *TypeGraph) findCycle() []model.EntityType {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[model.EntityType]int)
	var path []model.EntityType

	var visit func(t model.EntityType) []model.EntityType
	visit = func(t model.EntityType) []model.EntityType {
		color[t] = gray
		path = append(path, t)
		for _, next := range g.adjacency[t] {
			switch color[next] {
			case white:
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			case gray:
				for i, p := range path {
					if p == next {
						return append(append([]model.EntityType{}, path[i:]...), next)
					}
				}
			}
		}
		color[t] = black
		path = path[:len(path)-1]
		return nil
	}

	for _, t := range model.EntityTypes() {
		if color[t] == white {
			if cycle := visit(t); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// computeRanks assigns levels with Kahn's algorithm. Types in the same
// level have no ordering constraint between them.
func (g *TypeGraph) computeRanks() {
	remaining := make(map[model.EntityType]int, len(g.inDegree))
	for t, d := range g.inDegree {
		remaining[t] = d
	}

	var level []model.EntityType
	for _, t := range model.EntityTypes() {
		if remaining[t] == 0 {
			level = append(level, t)
		}
	}

	rank := 0
	for len(level) > 0 {
		var next []model.EntityType
		for _, t := range level {
			g.ranks[t] = rank
			for _, dep := range g.adjacency[t] {
				remaining[dep]--
				if remaining[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		level = next
		rank++
	}
	g.depth = rank
}
