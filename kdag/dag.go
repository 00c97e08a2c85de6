package kdag

import "slices"

// DAG is a validated, immutable pipeline graph.
type DAG struct {
	graph *Graph
	order []NodeID
}

// GetGraph returns the underlying graph for plan building.
func (d *DAG) GetGraph() *Graph {
	return d.graph
}

// TopologicalOrder returns every node id, parents before children.
func (d *DAG) TopologicalOrder() []NodeID {
	return slices.Clone(d.order)
}

// Node returns the node with the given id.
func (d *DAG) Node(id NodeID) (*Node, bool) {
	n, ok := d.graph.Nodes[id]
	return n, ok
}

// Edges returns all edges in declaration order.
func (d *DAG) Edges() []Edge {
	return slices.Clone(d.graph.Edges)
}

// Sources returns the ids of all source nodes in sorted order.
func (d *DAG) Sources() []NodeID {
	return d.graph.Sources()
}

// Downstream returns every node reachable from id, in sorted order.
func (d *DAG) Downstream(id NodeID) []NodeID {
	return d.graph.findDescendants(id)
}
