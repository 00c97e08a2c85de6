package kdag

import (
	"fmt"
	"slices"
	"strings"

	"github.com/birdayz/kflow/kprocessor"
)

// NodeID is a strongly-typed identifier for graph nodes.
// NodeIDs must be non-empty and cannot contain whitespace or NUL bytes.
type NodeID string

// Validate checks if the NodeID is valid.
// Returns ErrInvalidNodeID if the ID is empty or contains whitespace or NUL.
func (id NodeID) Validate() error {
	if id == "" {
		return fmt.Errorf("%w: NodeID cannot be empty", ErrInvalidNodeID)
	}
	if strings.ContainsAny(string(id), " \t\n\r\x00") {
		return fmt.Errorf("%w: NodeID %q cannot contain whitespace or NUL", ErrInvalidNodeID, id)
	}
	return nil
}

// NodeType represents the role of a node in the DAG.
type NodeType int

const (
	NodeTypeSource NodeType = iota
	NodeTypeProcessor
	NodeTypeSink
)

func (t NodeType) String() string {
	switch t {
	case NodeTypeSource:
		return "Source"
	case NodeTypeProcessor:
		return "Processor"
	case NodeTypeSink:
		return "Sink"
	default:
		return "Unknown"
	}
}

// Endpoint addresses one port of one node.
type Endpoint struct {
	Node NodeID
	Port kprocessor.PortHandle
}

// Default addresses the default port of node.
func Default(node NodeID) Endpoint {
	return Endpoint{Node: node, Port: kprocessor.DefaultPortHandle}
}

// Port addresses an explicitly declared port of node.
func Port(node NodeID, port kprocessor.PortHandle) Endpoint {
	return Endpoint{Node: node, Port: port}
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%s", e.Node, e.Port)
}

// Edge connects an output port to an input port. Index is the position of
// the edge in Graph.Edges.
type Edge struct {
	Index int
	From  Endpoint
	To    Endpoint
}

func (e Edge) String() string {
	return fmt.Sprintf("%s -> %s", e.From, e.To)
}

// Node is the build-time representation of a stage.
type Node struct {
	ID   NodeID
	Type NodeType

	// Exactly one of Source, Processor and Sink is set, matching Type.
	Source    kprocessor.Source
	Processor kprocessor.Processor
	Sink      kprocessor.Sink

	InputPorts  kprocessor.Ports
	OutputPorts kprocessor.Ports

	// Parents and Children are deduplicated neighbour ids.
	Parents  []NodeID
	Children []NodeID

	// In and Out are indices into Graph.Edges.
	In  []int
	Out []int
}

// Stage returns the stage implementation regardless of role.
func (n *Node) Stage() any {
	switch n.Type {
	case NodeTypeSource:
		return n.Source
	case NodeTypeProcessor:
		return n.Processor
	default:
		return n.Sink
	}
}

// Graph is the build-time DAG representation.
type Graph struct {
	Nodes map[NodeID]*Node
	Edges []Edge

	// Deterministic node ordering (insertion order)
	NodeOrder []NodeID
}

func NewGraph() *Graph {
	return &Graph{
		Nodes:     make(map[NodeID]*Node),
		NodeOrder: make([]NodeID, 0),
	}
}

func checkPorts(id NodeID, side string, p kprocessor.Ports) error {
	handles := p.Handles()
	seen := make(map[kprocessor.PortHandle]bool, len(handles))
	for _, h := range handles {
		if seen[h] {
			return fmt.Errorf("%w: %s %s port %s", ErrDuplicatePort, id, side, h)
		}
		seen[h] = true
	}
	return nil
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(node *Node) error {
	if err := node.ID.Validate(); err != nil {
		return err
	}
	if _, exists := g.Nodes[node.ID]; exists {
		return fmt.Errorf("%w: %s", ErrNodeAlreadyExists, node.ID)
	}
	if err := checkPorts(node.ID, "input", node.InputPorts); err != nil {
		return err
	}
	if err := checkPorts(node.ID, "output", node.OutputPorts); err != nil {
		return err
	}
	g.Nodes[node.ID] = node
	g.NodeOrder = append(g.NodeOrder, node.ID)
	return nil
}

// AddEdge adds a directed edge between two declared ports.
func (g *Graph) AddEdge(from, to Endpoint) error {
	if err := g.checkEdge(from, to); err != nil {
		return fmt.Errorf("cannot connect %s -> %s: %w", from, to, err)
	}
	parent, child := g.Nodes[from.Node], g.Nodes[to.Node]
	for _, i := range parent.Out {
		if g.Edges[i].To == to && g.Edges[i].From == from {
			return fmt.Errorf("%w: duplicate edge %s -> %s", ErrInvalidTopology, from, to)
		}
	}

	idx := len(g.Edges)
	g.Edges = append(g.Edges, Edge{Index: idx, From: from, To: to})
	parent.Out = append(parent.Out, idx)
	child.In = append(child.In, idx)
	if !slices.Contains(parent.Children, to.Node) {
		parent.Children = append(parent.Children, to.Node)
	}
	if !slices.Contains(child.Parents, from.Node) {
		child.Parents = append(child.Parents, from.Node)
	}
	return nil
}

// Sources returns all source node ids in sorted order.
func (g *Graph) Sources() []NodeID {
	var out []NodeID
	for id, n := range g.Nodes {
		if n.Type == NodeTypeSource {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// ReverseTopologicalSort returns nodes in reverse topological order.
// This means children come before parents.
func (g *Graph) ReverseTopologicalSort() ([]NodeID, error) {
	order, err := g.topologicalSort()
	if err != nil {
		return nil, err
	}
	slices.Reverse(order)
	return order, nil
}
