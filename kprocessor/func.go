package kprocessor

import "context"

// ProcessFunc is the body of a processor created with NewFunc.
type ProcessFunc func(ctx context.Context, from PortHandle, msg Message, sc StageContext, fw Forwarder) (Control, error)

// FuncOption configures optional behavior for NewFunc processors.
type FuncOption func(*funcProcessor)

// WithInit adds custom initialization logic to a NewFunc processor.
func WithInit(fn func(sc StageContext) error) FuncOption {
	return func(p *funcProcessor) {
		p.initFn = fn
	}
}

// WithClose adds custom cleanup logic to a NewFunc processor.
func WithClose(fn func() error) FuncOption {
	return func(p *funcProcessor) {
		p.closeFn = fn
	}
}

// WithPorts overrides the default input and output ports.
func WithPorts(in, out Ports) FuncOption {
	return func(p *funcProcessor) {
		p.in, p.out = in, out
	}
}

// NewFunc creates a Processor from a function. Unless WithPorts is given it
// has one default input and one default output port.
//
// Example:
//
//	kprocessor.NewFunc(func(ctx context.Context, _ kprocessor.PortHandle, msg kprocessor.Message, _ kprocessor.StageContext, fw kprocessor.Forwarder) (kprocessor.Control, error) {
//	    return kprocessor.Continue, fw.Send(ctx, msg, kprocessor.Broadcast)
//	})
func NewFunc(processFn ProcessFunc, opts ...FuncOption) Processor {
	p := &funcProcessor{
		processFn: processFn,
		in:        DefaultPorts(),
		out:       DefaultPorts(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type funcProcessor struct {
	processFn ProcessFunc
	initFn    func(StageContext) error
	closeFn   func() error
	in, out   Ports
}

func (p *funcProcessor) InputPorts() Ports  { return p.in }
func (p *funcProcessor) OutputPorts() Ports { return p.out }

func (p *funcProcessor) Init(sc StageContext) error {
	if p.initFn != nil {
		return p.initFn(sc)
	}
	return nil
}

func (p *funcProcessor) Close() error {
	if p.closeFn != nil {
		return p.closeFn()
	}
	return nil
}

func (p *funcProcessor) Process(ctx context.Context, from PortHandle, msg Message, sc StageContext, fw Forwarder) (Control, error) {
	return p.processFn(ctx, from, msg, sc, fw)
}
