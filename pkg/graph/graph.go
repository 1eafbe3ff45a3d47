// Package graph — Handoff Graph Analyzer.
//
// Two directed graphs over the same node set are derived independently:
// the declared graph from catalog outputs_to edges, and the observed graph
// from explicit ledger evidence cross-references. Cycles found in each are
// corroborated against the other; neither source is trusted alone.
package graph

import (
	"sort"

	"github.com/paragon-ops/govalid/pkg/catalog"
	"github.com/paragon-ops/govalid/pkg/ledger"
)

// Graph is a directed graph over protocol ids and sink labels.
// Sinks are terminal: they never carry outgoing edges.
type Graph struct {
	nodes map[string]bool
	sinks map[string]bool
	edges map[string]map[string]bool
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]bool),
		sinks: make(map[string]bool),
		edges: make(map[string]map[string]bool),
	}
}

// AddNode registers a node.
func (g *Graph) AddNode(id string) {
	g.nodes[id] = true
}

// AddSink registers a terminal sink label.
func (g *Graph) AddSink(label string) {
	g.nodes[label] = true
	g.sinks[label] = true
}

// AddEdge records a directed edge. Unknown endpoints are registered as
// plain nodes.
func (g *Graph) AddEdge(from, to string) {
	g.nodes[from] = true
	g.nodes[to] = true
	if g.edges[from] == nil {
		g.edges[from] = make(map[string]bool)
	}
	g.edges[from][to] = true
}

// HasEdge reports whether the directed edge exists.
func (g *Graph) HasEdge(from, to string) bool {
	return g.edges[from][to]
}

// OutDegree returns the number of outgoing edges from a node.
func (g *Graph) OutDegree(id string) int {
	return len(g.edges[id])
}

// EdgeCount returns the total number of edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, targets := range g.edges {
		n += len(targets)
	}
	return n
}

// Nodes returns all node ids in sorted order.
func (g *Graph) Nodes() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// neighbors returns the sorted edge targets of a node, so traversal order
// and therefore reported cycle paths are deterministic.
func (g *Graph) neighbors(id string) []string {
	targets := make([]string, 0, len(g.edges[id]))
	for t := range g.edges[id] {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	return targets
}

// pruneSinks returns a copy with sink nodes removed. Sinks have no outgoing
// edges by construction, so this is an optimization, not a correctness
// requirement.
func (g *Graph) pruneSinks() *Graph {
	pruned := New()
	for id := range g.nodes {
		if !g.sinks[id] {
			pruned.AddNode(id)
		}
	}
	for from, targets := range g.edges {
		if g.sinks[from] {
			continue
		}
		for to := range targets {
			if g.sinks[to] {
				continue
			}
			pruned.AddEdge(from, to)
		}
	}
	return pruned
}

// FromCatalog builds the declared handoff graph from outputs_to edges.
func FromCatalog(c *catalog.Catalog) *Graph {
	g := New()
	for _, s := range c.Sinks {
		g.AddSink(s)
	}
	for _, p := range c.Protocols {
		g.AddNode(p.ID)
		for _, target := range p.OutputsTo {
			g.AddEdge(p.ID, target)
		}
	}
	return g
}

// FromSnapshot builds the observed handoff graph from ledger evidence.
// An edge is recorded only when an event's evidence carries an explicit
// handoff cross-reference to a known protocol or sink — never inferred
// from chronological adjacency.
func FromSnapshot(snap *ledger.Snapshot, c *catalog.Catalog) *Graph {
	g := New()
	for _, s := range c.Sinks {
		g.AddSink(s)
	}
	for _, p := range c.Protocols {
		g.AddNode(p.ID)
	}
	for _, event := range snap.Events() {
		if _, known := c.Protocol(event.ProtocolID); !known {
			continue
		}
		for _, target := range event.Handoffs() {
			_, isProtocol := c.Protocol(target)
			if !isProtocol && !c.IsSink(target) {
				continue
			}
			g.AddEdge(event.ProtocolID, target)
		}
	}
	return g
}
