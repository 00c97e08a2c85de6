package execution

import (
	"context"
	"fmt"
	"sync"

	"github.com/birdayz/kflow/kdag"
	"github.com/birdayz/kflow/kprocessor"
)

// forwarder routes messages of one stage to its outbound edges.
//
// Channel errors are remembered so that a stage swallowing the error returned
// by Send still fails.
type forwarder struct {
	stage kdag.NodeID
	all   []*edge
	ports map[kprocessor.PortHandle][]*edge

	// lifecycle is set for sources only.
	lifecycle *lifecycle

	mu     sync.RWMutex
	closed bool

	errMu sync.Mutex
	err   error
}

func newForwarder(u *unit) *forwarder {
	f := &forwarder{
		stage: u.node.ID,
		all:   u.out,
		ports: make(map[kprocessor.PortHandle][]*edge),
	}
	for _, h := range u.node.OutputPorts.Handles() {
		f.ports[h] = nil
	}
	for _, e := range u.out {
		f.ports[e.From.Port] = append(f.ports[e.From.Port], e)
	}
	if u.node.Type == kdag.NodeTypeSource {
		f.lifecycle = &lifecycle{source: string(u.node.ID)}
	}
	return f
}

func (f *forwarder) Send(ctx context.Context, msg kprocessor.Message, target kprocessor.Target) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return f.fail(fmt.Errorf("%w: stage %s", kprocessor.ErrChannelClosed, f.stage))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	targets := f.all
	if !target.IsBroadcast() {
		edges, ok := f.ports[target.Port()]
		if !ok {
			return f.fail(fmt.Errorf("%w: stage %s has no output port %s", kprocessor.ErrUnknownPort, f.stage, target.Port()))
		}
		targets = edges
	}

	if f.lifecycle != nil {
		if err := f.lifecycle.observe(&msg); err != nil {
			return f.fail(err)
		}
	}

	for _, e := range targets {
		if err := e.send(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (f *forwarder) fail(err error) error {
	f.errMu.Lock()
	defer f.errMu.Unlock()
	if f.err == nil {
		f.err = err
	}
	return err
}

// channelErr returns the first channel error raised by Send.
func (f *forwarder) channelErr() error {
	f.errMu.Lock()
	defer f.errMu.Unlock()
	return f.err
}

// close closes every outbound edge. Later sends fail with ErrChannelClosed.
func (f *forwarder) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, e := range f.all {
		e.close()
	}
}

// lifecycle enforces the Begin, Data*, Commit order of one source and stamps
// the source id on every message.
type lifecycle struct {
	source string

	open       bool
	hasData    bool
	lastSeq    uint64
	hasCommit  bool
	lastCommit [2]uint64
}

func (l *lifecycle) observe(msg *kprocessor.Message) error {
	msg.Source = l.source

	switch msg.Kind {
	case kprocessor.KindBegin:
		if l.open {
			return fmt.Errorf("%w: %s: begin inside open transaction", kprocessor.ErrInvalidLifecycle, l.source)
		}
		l.open = true

	case kprocessor.KindData:
		if !l.open {
			return fmt.Errorf("%w: %s: data #%d outside transaction", kprocessor.ErrInvalidLifecycle, l.source, msg.Seq)
		}
		if msg.Op == nil {
			return fmt.Errorf("%w: %s: data #%d without operation", kprocessor.ErrInvalidLifecycle, l.source, msg.Seq)
		}
		if l.hasData && msg.Seq <= l.lastSeq {
			return fmt.Errorf("%w: %s: data #%d after #%d", kprocessor.ErrInvalidLifecycle, l.source, msg.Seq, l.lastSeq)
		}
		l.hasData = true
		l.lastSeq = msg.Seq

	case kprocessor.KindCommit:
		if !l.open {
			return fmt.Errorf("%w: %s: commit outside transaction", kprocessor.ErrInvalidLifecycle, l.source)
		}
		if l.hasData && msg.Seq < l.lastSeq {
			return fmt.Errorf("%w: %s: commit #%d before data #%d", kprocessor.ErrInvalidLifecycle, l.source, msg.Seq, l.lastSeq)
		}
		pos := [2]uint64{msg.Seq, msg.TxID}
		if l.hasCommit && (pos[0] < l.lastCommit[0] || pos[0] == l.lastCommit[0] && pos[1] < l.lastCommit[1]) {
			return fmt.Errorf("%w: %s: commit %d/%d after %d/%d", kprocessor.ErrInvalidLifecycle,
				l.source, pos[0], pos[1], l.lastCommit[0], l.lastCommit[1])
		}
		l.open = false
		l.hasCommit = true
		l.lastCommit = pos

	default:
		return fmt.Errorf("%w: %s: unknown message kind %d", kprocessor.ErrInvalidLifecycle, l.source, msg.Kind)
	}
	return nil
}
