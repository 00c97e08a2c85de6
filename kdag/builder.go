package kdag

import (
	"fmt"

	"github.com/birdayz/kflow/kprocessor"
)

// Builder constructs a pipeline DAG.
//
// IMPORTANT: Builder is NOT safe for concurrent use. All registration
// methods must be called from a single goroutine. The resulting DAG
// is immutable and safe to use concurrently.
type Builder struct {
	graph *Graph
}

func NewBuilder() *Builder {
	return &Builder{
		graph: NewGraph(),
	}
}

// Build validates and finalizes the DAG. Failures are *GraphError.
func (b *Builder) Build() (*DAG, error) {
	if err := b.graph.Validate(); err != nil {
		return nil, graphErr(err)
	}

	order, err := b.graph.topologicalSort()
	if err != nil {
		return nil, graphErr(err)
	}

	return &DAG{
		graph: b.graph,
		order: order,
	}, nil
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild() *DAG {
	dag, err := b.Build()
	if err != nil {
		panic(err)
	}
	return dag
}

// GetGraph returns the underlying graph for read-only access.
func (b *Builder) GetGraph() *Graph {
	return b.graph
}

// GetNode returns a node by ID if it exists.
func (b *Builder) GetNode(id NodeID) (*Node, bool) {
	node, ok := b.graph.Nodes[id]
	return node, ok
}

// AddSource registers a source stage. Sources have no input ports.
func (b *Builder) AddSource(id NodeID, s kprocessor.Source) error {
	if s == nil {
		return graphErr(fmt.Errorf("%w: source %s is nil", ErrInvalidTopology, id))
	}
	return graphErr(b.graph.AddNode(&Node{
		ID:          id,
		Type:        NodeTypeSource,
		Source:      s,
		InputPorts:  kprocessor.NoPorts(),
		OutputPorts: s.OutputPorts(),
	}))
}

// AddProcessor registers a processor stage.
func (b *Builder) AddProcessor(id NodeID, p kprocessor.Processor) error {
	if p == nil {
		return graphErr(fmt.Errorf("%w: processor %s is nil", ErrInvalidTopology, id))
	}
	return graphErr(b.graph.AddNode(&Node{
		ID:          id,
		Type:        NodeTypeProcessor,
		Processor:   p,
		InputPorts:  p.InputPorts(),
		OutputPorts: p.OutputPorts(),
	}))
}

// AddSink registers a sink stage. Sinks have no output ports.
func (b *Builder) AddSink(id NodeID, s kprocessor.Sink) error {
	if s == nil {
		return graphErr(fmt.Errorf("%w: sink %s is nil", ErrInvalidTopology, id))
	}
	return graphErr(b.graph.AddNode(&Node{
		ID:          id,
		Type:        NodeTypeSink,
		Sink:        s,
		InputPorts:  s.InputPorts(),
		OutputPorts: kprocessor.NoPorts(),
	}))
}

// Connect adds an edge from an output port to an input port.
func (b *Builder) Connect(from, to Endpoint) error {
	return graphErr(b.graph.AddEdge(from, to))
}

func (b *Builder) MustAddSource(id NodeID, s kprocessor.Source) {
	must(b.AddSource(id, s))
}

func (b *Builder) MustAddProcessor(id NodeID, p kprocessor.Processor) {
	must(b.AddProcessor(id, p))
}

func (b *Builder) MustAddSink(id NodeID, s kprocessor.Sink) {
	must(b.AddSink(id, s))
}

func (b *Builder) MustConnect(from, to Endpoint) {
	must(b.Connect(from, to))
}
