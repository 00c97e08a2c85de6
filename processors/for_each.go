package processors

import (
	"context"

	"github.com/birdayz/kflow/kprocessor"
)

// ForEach returns a sink calling forEachFunc for every message it receives.
func ForEach(forEachFunc func(msg kprocessor.Message)) *ForEachSink {
	return &ForEachSink{forEachFunc: forEachFunc}
}

type ForEachSink struct {
	forEachFunc func(kprocessor.Message)
}

func (p *ForEachSink) InputPorts() kprocessor.Ports { return kprocessor.DefaultPorts() }

func (p *ForEachSink) Init(kprocessor.StageContext) error {
	return nil
}

func (p *ForEachSink) Process(_ context.Context, _ kprocessor.PortHandle, msg kprocessor.Message, _ kprocessor.StageContext) (kprocessor.Control, error) {
	p.forEachFunc(msg)
	return kprocessor.Continue, nil
}

func (p *ForEachSink) Close() error {
	return nil
}
