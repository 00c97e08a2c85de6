package kdag

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Validation limits to prevent pathological cases
const (
	MaxNodesPerDAG     = 10000
	MaxDepth           = 500
	MaxChildrenPerNode = 1000
)

// Validate checks the whole graph before it is turned into a DAG: size
// limits, every edge against the roles and ports of its endpoints, cycles and
// stages unreachable from every source. It returns the first violation.
//
// AddEdge already rejects most bad edges one at a time. Validate checks them
// again because Graph is exported and may be assembled by hand.
func (g *Graph) Validate() error {
	if len(g.Nodes) == 0 {
		return fmt.Errorf("%w: graph has no nodes", ErrInvalidTopology)
	}
	if len(g.Nodes) > MaxNodesPerDAG {
		return fmt.Errorf("%w: node count %d exceeds maximum %d",
			ErrInvalidTopology, len(g.Nodes), MaxNodesPerDAG)
	}

	for _, e := range g.Edges {
		if err := g.checkEdge(e.From, e.To); err != nil {
			return fmt.Errorf("DAG validation failed: edge %s: %w", e, err)
		}
	}
	if err := g.detectCycles(); err != nil {
		return fmt.Errorf("DAG validation failed: %w", err)
	}
	if err := g.validateNoOrphans(); err != nil {
		return fmt.Errorf("DAG validation failed: %w", err)
	}
	return nil
}

// checkEdge validates one connection: both stages exist, data flows from a
// source or processor into a processor or sink, and both ports are declared.
func (g *Graph) checkEdge(from, to Endpoint) error {
	parent, ok := g.Nodes[from.Node]
	if !ok {
		return fmt.Errorf("%w: parent %s", ErrNodeNotFound, from.Node)
	}
	child, ok := g.Nodes[to.Node]
	if !ok {
		return fmt.Errorf("%w: child %s", ErrNodeNotFound, to.Node)
	}
	if parent.Type == NodeTypeSink {
		return fmt.Errorf("%w: sink %s cannot have outgoing edges", ErrInvalidTopology, from.Node)
	}
	if child.Type == NodeTypeSource {
		return fmt.Errorf("%w: source %s cannot have incoming edges", ErrInvalidTopology, to.Node)
	}
	if !parent.OutputPorts.Contains(from.Port) {
		return fmt.Errorf("%w: output %s (declared %s)", ErrPortNotFound, from, parent.OutputPorts)
	}
	if !child.InputPorts.Contains(to.Port) {
		return fmt.Errorf("%w: input %s (declared %s)", ErrPortNotFound, to, child.InputPorts)
	}
	return nil
}

// outEdges returns the outgoing edges of id in declaration order.
func (g *Graph) outEdges(id NodeID) []Edge {
	node := g.Nodes[id]
	out := make([]Edge, 0, len(node.Out))
	for _, i := range node.Out {
		out = append(out, g.Edges[i])
	}
	return out
}

// detectCycles walks the graph depth-first along edges. Nodes are visited in
// insertion order so the reported cycle is deterministic. The error names the
// stages on the cycle and the port-level edges closing it.
func (g *Graph) detectCycles() error {
	visited := make(map[NodeID]bool, len(g.Nodes))
	onPath := make(map[NodeID]int, len(g.Nodes))

	var trail []Edge
	var dfs func(NodeID, int) error
	dfs = func(id NodeID, depth int) error {
		if depth > MaxDepth {
			return fmt.Errorf("%w: maximum depth %d exceeded at %s", ErrInvalidTopology, MaxDepth, id)
		}
		edges := g.outEdges(id)
		if len(edges) > MaxChildrenPerNode {
			return fmt.Errorf("%w: node %s has %d outgoing edges, exceeds maximum %d",
				ErrInvalidTopology, id, len(edges), MaxChildrenPerNode)
		}

		visited[id] = true
		onPath[id] = len(trail)
		for _, e := range edges {
			child := e.To.Node
			if start, ok := onPath[child]; ok {
				return cycleError(append(slices.Clone(trail[start:]), e))
			}
			if visited[child] {
				continue
			}
			trail = append(trail, e)
			if err := dfs(child, depth+1); err != nil {
				return err
			}
			trail = trail[:len(trail)-1]
		}
		delete(onPath, id)
		return nil
	}

	for _, id := range g.NodeOrder {
		if !visited[id] {
			if err := dfs(id, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

func cycleError(cycle []Edge) error {
	stages := make([]string, 0, len(cycle)+1)
	edges := make([]string, 0, len(cycle))
	for _, e := range cycle {
		stages = append(stages, string(e.From.Node))
		edges = append(edges, e.String())
	}
	stages = append(stages, string(cycle[0].From.Node))
	return fmt.Errorf("%w: %s (edges %s)", ErrCycleDetected,
		strings.Join(stages, " -> "), strings.Join(edges, ", "))
}

// validateNoOrphans checks that every stage is reachable from at least one
// source. Each orphan is reported with its inbound edges, which all come
// from other orphans.
func (g *Graph) validateNoOrphans() error {
	reachable := make(map[NodeID]bool, len(g.Nodes))
	for _, src := range g.Sources() {
		g.markReachable(src, reachable)
	}

	var orphans []NodeID
	for id := range g.Nodes {
		if !reachable[id] {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) == 0 {
		return nil
	}

	slices.Sort(orphans)
	desc := make([]string, len(orphans))
	for i, id := range orphans {
		in := g.Nodes[id].In
		if len(in) == 0 {
			desc[i] = string(id) + " (no inbound edges)"
			continue
		}
		fed := make([]string, len(in))
		for j, idx := range in {
			fed[j] = g.Edges[idx].String()
		}
		desc[i] = fmt.Sprintf("%s (fed by %s)", id, strings.Join(fed, ", "))
	}
	return fmt.Errorf("%w (unreachable from sources): %s",
		ErrOrphanedNodes, strings.Join(desc, "; "))
}

func (g *Graph) markReachable(id NodeID, reachable map[NodeID]bool) {
	if reachable[id] {
		return
	}
	reachable[id] = true
	for _, e := range g.outEdges(id) {
		g.markReachable(e.To.Node, reachable)
	}
}

// insertSorted inserts an item into a sorted slice maintaining sort order.
func insertSorted(slice []NodeID, item NodeID) []NodeID {
	idx := sort.Search(len(slice), func(i int) bool {
		return slice[i] >= item
	})
	return slices.Insert(slice, idx, item)
}

// topologicalSort orders stages with Kahn's algorithm. In-degrees count
// edges, not neighbours, so parallel edges between two stages (for example
// two router ports feeding one sink) are released together. Among ready
// stages the smallest id comes first.
func (g *Graph) topologicalSort() ([]NodeID, error) {
	inDegree := make(map[NodeID]int, len(g.Nodes))
	var queue []NodeID
	for id, node := range g.Nodes {
		inDegree[id] = len(node.In)
		if len(node.In) == 0 {
			queue = append(queue, id)
		}
	}
	slices.Sort(queue)

	result := make([]NodeID, 0, len(g.Nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		result = append(result, id)

		for _, e := range g.outEdges(id) {
			child := e.To.Node
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = insertSorted(queue, child)
			}
		}
	}

	if len(result) != len(g.Nodes) {
		return nil, fmt.Errorf("%w: topological sort failed", ErrCycleDetected)
	}
	return result, nil
}

// findDescendants returns all nodes reachable from id, excluding id itself,
// in sorted order.
func (g *Graph) findDescendants(id NodeID) []NodeID {
	seen := make(map[NodeID]bool)
	var out []NodeID
	stack := []NodeID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.outEdges(cur) {
			if seen[e.To.Node] {
				continue
			}
			seen[e.To.Node] = true
			out = append(out, e.To.Node)
			stack = append(stack, e.To.Node)
		}
	}
	slices.Sort(out)
	return out
}
