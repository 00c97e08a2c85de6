package kdag

import (
	"context"

	"github.com/birdayz/kflow/kcheckpoint"
	"github.com/birdayz/kflow/kprocessor"
)

type testSource struct {
	ports kprocessor.Ports
}

func (s *testSource) OutputPorts() kprocessor.Ports      { return s.ports }
func (s *testSource) Init(kprocessor.StageContext) error { return nil }
func (s *testSource) Close() error                       { return nil }
func (s *testSource) Start(context.Context, kprocessor.Forwarder, kcheckpoint.Position) error {
	return nil
}

type testProcessor struct {
	in, out kprocessor.Ports
}

func (p *testProcessor) InputPorts() kprocessor.Ports       { return p.in }
func (p *testProcessor) OutputPorts() kprocessor.Ports      { return p.out }
func (p *testProcessor) Init(kprocessor.StageContext) error { return nil }
func (p *testProcessor) Close() error                       { return nil }
func (p *testProcessor) Process(context.Context, kprocessor.PortHandle, kprocessor.Message, kprocessor.StageContext, kprocessor.Forwarder) (kprocessor.Control, error) {
	return kprocessor.Continue, nil
}

type testSink struct {
	in kprocessor.Ports
}

func (s *testSink) InputPorts() kprocessor.Ports       { return s.in }
func (s *testSink) Init(kprocessor.StageContext) error { return nil }
func (s *testSink) Close() error                       { return nil }
func (s *testSink) Process(context.Context, kprocessor.PortHandle, kprocessor.Message, kprocessor.StageContext) (kprocessor.Control, error) {
	return kprocessor.Continue, nil
}

func newSource() *testSource {
	return &testSource{ports: kprocessor.DefaultPorts()}
}

func newProcessor() *testProcessor {
	return &testProcessor{in: kprocessor.DefaultPorts(), out: kprocessor.DefaultPorts()}
}

func newSink() *testSink {
	return &testSink{in: kprocessor.DefaultPorts()}
}

// chain builds source -> p0 -> ... -> p(n-1) -> sink.
func chain(b *Builder, n int) {
	b.MustAddSource("source", newSource())
	parent := NodeID("source")
	for i := 0; i < n; i++ {
		id := NodeID("proc-" + string(rune('a'+i%26)) + string(rune('a'+i/26)))
		b.MustAddProcessor(id, newProcessor())
		b.MustConnect(Default(parent), Default(id))
		parent = id
	}
	b.MustAddSink("sink", newSink())
	b.MustConnect(Default(parent), Default("sink"))
}
