package graph

import (
	"sort"
	"strings"
)

// CyclePath is an ordered list of node ids forming a cycle, normalized so
// the lexicographically smallest node comes first. The closing edge back to
// the first node is implicit.
type CyclePath struct {
	Nodes []string `json:"nodes"`
}

// Key returns a canonical identity for set operations across graphs.
func (c CyclePath) Key() string {
	return strings.Join(c.Nodes, "->")
}

// Contains reports whether the cycle passes through the given node.
func (c CyclePath) Contains(id string) bool {
	for _, n := range c.Nodes {
		if n == id {
			return true
		}
	}
	return false
}

// normalize rotates the path so the smallest node id leads.
func normalize(path []string) CyclePath {
	minIdx := 0
	for i, n := range path {
		if n < path[minIdx] {
			minIdx = i
		}
	}
	nodes := make([]string, 0, len(path))
	nodes = append(nodes, path[minIdx:]...)
	nodes = append(nodes, path[:minIdx]...)
	return CyclePath{Nodes: nodes}
}

// dfsFrame is one level of the explicit traversal stack.
type dfsFrame struct {
	node string
	next int // index into neighbors(node) of the next edge to follow
}

// DetectCycles finds all cycles reachable in the graph using iterative
// depth-first traversal with an explicit recursion stack. A back-edge to a
// node currently on the stack yields a CyclePath running from the back-edge
// target to the current node. Sink nodes are pruned before traversal.
// Results are deduplicated and sorted for deterministic output.
func DetectCycles(g *Graph) []CyclePath {
	pruned := g.pruneSinks()

	visited := make(map[string]bool, len(pruned.nodes))
	onStack := make(map[string]int) // node -> position in path
	seen := make(map[string]bool)   // canonical cycle keys
	var cycles []CyclePath

	for _, start := range pruned.Nodes() {
		if visited[start] {
			continue
		}

		stack := []dfsFrame{{node: start}}
		path := []string{start}
		onStack[start] = 0

		for len(stack) > 0 {
			frame := &stack[len(stack)-1]
			neighbors := pruned.neighbors(frame.node)

			if frame.next < len(neighbors) {
				target := neighbors[frame.next]
				frame.next++

				if pos, on := onStack[target]; on {
					// Back-edge: path[pos:] is a cycle from target to here.
					cycle := normalize(path[pos:])
					if !seen[cycle.Key()] {
						seen[cycle.Key()] = true
						cycles = append(cycles, cycle)
					}
					continue
				}
				if visited[target] {
					continue
				}
				stack = append(stack, dfsFrame{node: target})
				onStack[target] = len(path)
				path = append(path, target)
				continue
			}

			visited[frame.node] = true
			delete(onStack, frame.node)
			path = path[:len(path)-1]
			stack = stack[:len(stack)-1]
		}
	}

	sort.Slice(cycles, func(i, j int) bool {
		return cycles[i].Key() < cycles[j].Key()
	})
	return cycles
}
