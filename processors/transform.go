package processors

import (
	"context"
	"fmt"

	"github.com/birdayz/kflow/kprocessor"
)

// Filter forwards data messages whose operation satisfies keep. Begin and
// Commit always pass, so downstream stages keep seeing complete transactions.
type Filter struct {
	keep func(op kprocessor.Operation) bool
}

func NewFilter(keep func(op kprocessor.Operation) bool) *Filter {
	return &Filter{keep: keep}
}

func (p *Filter) InputPorts() kprocessor.Ports       { return kprocessor.DefaultPorts() }
func (p *Filter) OutputPorts() kprocessor.Ports      { return kprocessor.DefaultPorts() }
func (p *Filter) Init(kprocessor.StageContext) error { return nil }
func (p *Filter) Close() error                       { return nil }

func (p *Filter) Process(ctx context.Context, _ kprocessor.PortHandle, msg kprocessor.Message, _ kprocessor.StageContext, fw kprocessor.Forwarder) (kprocessor.Control, error) {
	if msg.Kind == kprocessor.KindData && !p.keep(*msg.Op) {
		return kprocessor.Continue, nil
	}
	return kprocessor.Continue, fw.Send(ctx, msg, kprocessor.Broadcast)
}

// Map rewrites the operation of every data message.
type Map struct {
	fn func(op kprocessor.Operation) (kprocessor.Operation, error)
}

func NewMap(fn func(op kprocessor.Operation) (kprocessor.Operation, error)) *Map {
	return &Map{fn: fn}
}

func (p *Map) InputPorts() kprocessor.Ports       { return kprocessor.DefaultPorts() }
func (p *Map) OutputPorts() kprocessor.Ports      { return kprocessor.DefaultPorts() }
func (p *Map) Init(kprocessor.StageContext) error { return nil }
func (p *Map) Close() error                       { return nil }

func (p *Map) Process(ctx context.Context, _ kprocessor.PortHandle, msg kprocessor.Message, _ kprocessor.StageContext, fw kprocessor.Forwarder) (kprocessor.Control, error) {
	if msg.Kind == kprocessor.KindData {
		op, err := p.fn(*msg.Op)
		if err != nil {
			return kprocessor.Continue, fmt.Errorf("map seq %d: %w", msg.Seq, err)
		}
		msg.Op = &op
	}
	return kprocessor.Continue, fw.Send(ctx, msg, kprocessor.Broadcast)
}

// Router sends each data message to the port chosen by route. Begin and
// Commit are broadcast to every port.
type Router struct {
	out   kprocessor.Ports
	route func(op kprocessor.Operation) kprocessor.PortHandle
}

func NewRouter(route func(op kprocessor.Operation) kprocessor.PortHandle, ports ...kprocessor.PortHandle) *Router {
	return &Router{out: kprocessor.DeclarePorts(ports...), route: route}
}

func (p *Router) InputPorts() kprocessor.Ports       { return kprocessor.DefaultPorts() }
func (p *Router) OutputPorts() kprocessor.Ports      { return p.out }
func (p *Router) Init(kprocessor.StageContext) error { return nil }
func (p *Router) Close() error                       { return nil }

func (p *Router) Process(ctx context.Context, _ kprocessor.PortHandle, msg kprocessor.Message, _ kprocessor.StageContext, fw kprocessor.Forwarder) (kprocessor.Control, error) {
	if msg.Kind != kprocessor.KindData {
		return kprocessor.Continue, fw.Send(ctx, msg, kprocessor.Broadcast)
	}
	return kprocessor.Continue, fw.Send(ctx, msg, kprocessor.To(p.route(*msg.Op)))
}
