package execution

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/birdayz/kflow/kcheckpoint"
	"github.com/birdayz/kflow/kprocessor"
)

// txSource emits txs transactions of size data messages each. When txs is
// negative it runs until cancelled.
type txSource struct {
	txs   int
	size  int
	ports kprocessor.Ports

	initErr error
	from    kcheckpoint.Position

	inits  atomic.Int32
	starts atomic.Int32
	closes atomic.Int32
}

func newTxSource(txs, size int) *txSource {
	return &txSource{txs: txs, size: size, ports: kprocessor.DefaultPorts()}
}

func (s *txSource) OutputPorts() kprocessor.Ports { return s.ports }

func (s *txSource) Init(kprocessor.StageContext) error {
	s.inits.Add(1)
	return s.initErr
}

func (s *txSource) Close() error {
	s.closes.Add(1)
	return nil
}

func (s *txSource) Start(ctx context.Context, fw kprocessor.Forwarder, from kcheckpoint.Position) error {
	s.starts.Add(1)
	s.from = from

	seq := from.Next()
	for tx := uint64(0); s.txs < 0 || tx < uint64(s.txs); tx++ {
		if err := fw.Send(ctx, kprocessor.Begin(), kprocessor.Broadcast); err != nil {
			return err
		}
		for i := 0; i < s.size; i++ {
			key := binary.BigEndian.AppendUint64(nil, seq)
			msg := kprocessor.Data(seq, kprocessor.Operation{Kind: kprocessor.OpInsert, Key: key, New: key})
			if err := fw.Send(ctx, msg, kprocessor.Broadcast); err != nil {
				return err
			}
			seq++
		}
		if err := fw.Send(ctx, kprocessor.Commit(seq-1, tx), kprocessor.Broadcast); err != nil {
			return err
		}
	}
	return nil
}

// funcSource runs an arbitrary body.
type funcSource struct {
	start func(ctx context.Context, fw kprocessor.Forwarder) error
}

func (s *funcSource) OutputPorts() kprocessor.Ports      { return kprocessor.DefaultPorts() }
func (s *funcSource) Init(kprocessor.StageContext) error { return nil }
func (s *funcSource) Close() error                       { return nil }
func (s *funcSource) Start(ctx context.Context, fw kprocessor.Forwarder, _ kcheckpoint.Position) error {
	return s.start(ctx, fw)
}

type delivery struct {
	port kprocessor.PortHandle
	msg  kprocessor.Message
}

// recordingSink records every delivery. It stops after stopAfter messages
// when stopAfter is positive.
type recordingSink struct {
	in        kprocessor.Ports
	stopAfter int
	initErr   error
	durable   bool

	mu     sync.Mutex
	got    []delivery
	inits  atomic.Int32
	closes atomic.Int32
}

func newRecordingSink() *recordingSink {
	return &recordingSink{in: kprocessor.DefaultPorts()}
}

func (s *recordingSink) InputPorts() kprocessor.Ports { return s.in }

func (s *recordingSink) Init(kprocessor.StageContext) error {
	s.inits.Add(1)
	return s.initErr
}

func (s *recordingSink) Close() error {
	s.closes.Add(1)
	return nil
}

func (s *recordingSink) Durable() bool { return s.durable }

func (s *recordingSink) Process(_ context.Context, from kprocessor.PortHandle, msg kprocessor.Message, _ kprocessor.StageContext) (kprocessor.Control, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, delivery{port: from, msg: msg})
	if s.stopAfter > 0 && len(s.got) >= s.stopAfter {
		return kprocessor.Stop, nil
	}
	return kprocessor.Continue, nil
}

func (s *recordingSink) messages() []kprocessor.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]kprocessor.Message, len(s.got))
	for i, d := range s.got {
		out[i] = d.msg
	}
	return out
}

func (s *recordingSink) dataSeqs() []uint64 {
	var out []uint64
	for _, m := range s.messages() {
		if m.Kind == kprocessor.KindData {
			out = append(out, m.Seq)
		}
	}
	return out
}

var errBoom = errors.New("boom")

// passThrough forwards every message to target and fails on data message
// failAt when failAt is set.
func passThrough(target kprocessor.Target, failAt *uint64) kprocessor.ProcessFunc {
	return func(ctx context.Context, _ kprocessor.PortHandle, msg kprocessor.Message, _ kprocessor.StageContext, fw kprocessor.Forwarder) (kprocessor.Control, error) {
		if failAt != nil && msg.Kind == kprocessor.KindData && msg.Seq == *failAt {
			return kprocessor.Continue, errBoom
		}
		return kprocessor.Continue, fw.Send(ctx, msg, target)
	}
}
