package processors

import (
	"context"

	"github.com/birdayz/kflow/kprocessor"
)

// Broadcast forwards every message unchanged to all of its output edges.
type Broadcast struct {
	out kprocessor.Ports
}

// NewBroadcast creates a Broadcast with the given output ports, or with the
// default output port when none are given.
func NewBroadcast(ports ...kprocessor.PortHandle) *Broadcast {
	out := kprocessor.DefaultPorts()
	if len(ports) > 0 {
		out = kprocessor.DeclarePorts(ports...)
	}
	return &Broadcast{out: out}
}

func (p *Broadcast) InputPorts() kprocessor.Ports       { return kprocessor.DefaultPorts() }
func (p *Broadcast) OutputPorts() kprocessor.Ports      { return p.out }
func (p *Broadcast) Init(kprocessor.StageContext) error { return nil }
func (p *Broadcast) Close() error                       { return nil }

func (p *Broadcast) Process(ctx context.Context, _ kprocessor.PortHandle, msg kprocessor.Message, _ kprocessor.StageContext, fw kprocessor.Forwarder) (kprocessor.Control, error) {
	return kprocessor.Continue, fw.Send(ctx, msg, kprocessor.Broadcast)
}
