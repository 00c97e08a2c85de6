package processors

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/kflow/kcheckpoint"
	"github.com/birdayz/kflow/kprocessor"
)

func process(t *testing.T, p kprocessor.Processor, msgs []kprocessor.Message) []sent {
	t.Helper()
	fw := &recordingForwarder{}
	for _, msg := range msgs {
		_, err := p.Process(context.Background(), kprocessor.DefaultPortHandle, msg, nil, fw)
		assert.NoError(t, err)
	}
	return fw.sent
}

func TestFilterKeepsTransactionBoundaries(t *testing.T) {
	f := NewFilter(func(op kprocessor.Operation) bool {
		return bytes.HasPrefix(op.Key, []byte("keep"))
	})
	out := process(t, f, tx("src", 0, 0, insert("keep-1", "a"), insert("drop", "b"), insert("keep-2", "c")))

	var kinds []kprocessor.MessageKind
	var keys []string
	for _, s := range out {
		kinds = append(kinds, s.msg.Kind)
		if s.msg.Kind == kprocessor.KindData {
			keys = append(keys, string(s.msg.Op.Key))
		}
	}
	assert.Equal(t, []kprocessor.MessageKind{kprocessor.KindBegin, kprocessor.KindData, kprocessor.KindData, kprocessor.KindCommit}, kinds)
	assert.Equal(t, []string{"keep-1", "keep-2"}, keys)
}

func TestMap(t *testing.T) {
	m := NewMap(func(op kprocessor.Operation) (kprocessor.Operation, error) {
		op.New = bytes.ToUpper(op.New)
		return op, nil
	})
	out := process(t, m, tx("src", 0, 0, insert("k", "value")))
	assert.Equal(t, 3, len(out))
	assert.Equal(t, "VALUE", string(out[1].msg.Op.New))

	failing := NewMap(func(op kprocessor.Operation) (kprocessor.Operation, error) {
		return op, errors.New("boom")
	})
	_, err := failing.Process(context.Background(), kprocessor.DefaultPortHandle, kprocessor.Data(4, insert("k", "v")), nil, &recordingForwarder{})
	assert.EqualError(t, err, "map seq 4: boom")
}

func TestRouter(t *testing.T) {
	r := NewRouter(func(op kprocessor.Operation) kprocessor.PortHandle {
		return kprocessor.PortHandle(op.Key[0] - 'a')
	}, 0, 1)
	assert.Equal(t, []kprocessor.PortHandle{0, 1}, r.OutputPorts().Handles())

	out := process(t, r, tx("src", 0, 0, insert("a", ""), insert("b", "")))
	assert.Equal(t, 4, len(out))
	assert.True(t, out[0].target.IsBroadcast())
	assert.Equal(t, kprocessor.To(0), out[1].target)
	assert.Equal(t, kprocessor.To(1), out[2].target)
	assert.True(t, out[3].target.IsBroadcast())
}

func TestSampleSink(t *testing.T) {
	var samples []uint64
	s := NewSampleSink(WithOnSample(func(seq uint64, elapsed time.Duration) {
		samples = append(samples, seq)
	}))
	sc := newTestContext(t, "sample")
	assert.NoError(t, s.Init(sc))

	ops := make([]kprocessor.Operation, 3000)
	for i := range ops {
		ops[i] = insert("k", "v")
	}
	feed(t, s, sc, tx("src", 0, 0, ops...))

	assert.Equal(t, []uint64{0, 1000, 2000}, samples)
}

func TestGeneratorResumesAfterPosition(t *testing.T) {
	g := &GeneratorSource{Total: 40, TxSize: 10}
	assert.NoError(t, g.Init(nil))

	fw := &recordingForwarder{}
	assert.NoError(t, g.Start(context.Background(), fw, kcheckpoint.At(19, 1)))

	var data []uint64
	var commits []kcheckpoint.Position
	for _, s := range fw.sent {
		switch s.msg.Kind {
		case kprocessor.KindData:
			data = append(data, s.msg.Seq)
		case kprocessor.KindCommit:
			commits = append(commits, kcheckpoint.At(s.msg.Seq, s.msg.TxID))
		}
	}
	assert.Equal(t, 20, len(data))
	assert.Equal(t, uint64(20), data[0])
	assert.Equal(t, uint64(39), data[len(data)-1])
	assert.Equal(t, []kcheckpoint.Position{kcheckpoint.At(29, 2), kcheckpoint.At(39, 3)}, commits)
}

func TestGeneratorStopsOnCancel(t *testing.T) {
	g := &GeneratorSource{}
	assert.NoError(t, g.Init(nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fw := &cancellingForwarder{}
	err := g.Start(ctx, fw, kcheckpoint.Unknown())
	assert.IsError(t, err, context.Canceled)
}

type cancellingForwarder struct{}

func (cancellingForwarder) Send(ctx context.Context, _ kprocessor.Message, _ kprocessor.Target) error {
	return ctx.Err()
}
