package execution

import (
	"context"
	"sync"

	"github.com/birdayz/kflow/kdag"
	"github.com/birdayz/kflow/kprocessor"
)

// DefaultChannelCapacity is the buffer size of every edge unless configured
// otherwise.
const DefaultChannelCapacity = 64

// edge is the bounded transport of one kdag.Edge. Only the producing unit
// closes ch; only the consuming unit detaches.
type edge struct {
	kdag.Edge
	ch chan kprocessor.Message

	// detached is closed when the consumer stopped receiving.
	detached   chan struct{}
	detachOnce sync.Once
	closeOnce  sync.Once
}

func newEdge(e kdag.Edge, capacity int) *edge {
	return &edge{
		Edge:     e,
		ch:       make(chan kprocessor.Message, capacity),
		detached: make(chan struct{}),
	}
}

// send delivers msg unless the consumer is detached, in which case the
// message is dropped.
func (e *edge) send(ctx context.Context, msg kprocessor.Message) error {
	select {
	case <-e.detached:
		return nil
	default:
	}

	select {
	case e.ch <- msg:
		return nil
	case <-e.detached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *edge) detach() {
	e.detachOnce.Do(func() { close(e.detached) })
}

func (e *edge) close() {
	e.closeOnce.Do(func() { close(e.ch) })
}

// discard detaches the edge and drops buffered messages. It returns the
// number of dropped messages.
func (e *edge) discard() int {
	e.detach()
	n := 0
	for {
		select {
		case _, ok := <-e.ch:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

// unit is the execution unit of one stage.
type unit struct {
	node *kdag.Node
	in   []*edge
	out  []*edge
}

// Plan is the resolved execution layout of a DAG: one unit per stage and one
// channel per edge.
type Plan struct {
	dag      *kdag.DAG
	capacity int
	units    map[kdag.NodeID]*unit
	edges    []*edge
}

// NewPlan allocates the units and channels of dag. A capacity below 1 selects
// DefaultChannelCapacity.
func NewPlan(dag *kdag.DAG, capacity int) *Plan {
	if capacity < 1 {
		capacity = DefaultChannelCapacity
	}

	p := &Plan{
		dag:      dag,
		capacity: capacity,
		units:    make(map[kdag.NodeID]*unit),
	}
	for _, id := range dag.TopologicalOrder() {
		node, _ := dag.Node(id)
		p.units[id] = &unit{node: node}
	}
	for _, e := range dag.Edges() {
		pe := newEdge(e, capacity)
		p.edges = append(p.edges, pe)
		p.units[e.From.Node].out = append(p.units[e.From.Node].out, pe)
		p.units[e.To.Node].in = append(p.units[e.To.Node].in, pe)
	}
	return p
}

// Units returns the number of execution units.
func (p *Plan) Units() int {
	return len(p.units)
}

// Channels returns the number of allocated channels.
func (p *Plan) Channels() int {
	return len(p.edges)
}

// Capacity returns the buffer size of each channel.
func (p *Plan) Capacity() int {
	return p.capacity
}
