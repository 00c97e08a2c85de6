package processors

import (
	"context"
	"log/slog"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/kflow/kprocessor"
	"github.com/birdayz/kflow/kstate"
)

type testContext struct {
	id  string
	env *kstate.Env
}

func newTestContext(t *testing.T, id string) *testContext {
	t.Helper()
	env, err := kstate.Open(t.TempDir(), kstate.WithSync(false))
	assert.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return &testContext{id: id, env: env}
}

func (c *testContext) StageID() string                 { return c.id }
func (c *testContext) Env() *kstate.Env                { return c.env }
func (c *testContext) Logger() *slog.Logger            { return slog.New(slog.DiscardHandler) }
func (c *testContext) DatabaseName(name string) string { return c.id + "/" + name }

type sent struct {
	msg    kprocessor.Message
	target kprocessor.Target
}

type recordingForwarder struct {
	sent []sent
}

func (f *recordingForwarder) Send(_ context.Context, msg kprocessor.Message, target kprocessor.Target) error {
	f.sent = append(f.sent, sent{msg: msg, target: target})
	return nil
}

type recordingSink struct {
	messages []kprocessor.Message
	closed   bool
}

func (s *recordingSink) InputPorts() kprocessor.Ports       { return kprocessor.DefaultPorts() }
func (s *recordingSink) Init(kprocessor.StageContext) error { return nil }
func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func (s *recordingSink) Process(_ context.Context, _ kprocessor.PortHandle, msg kprocessor.Message, _ kprocessor.StageContext) (kprocessor.Control, error) {
	s.messages = append(s.messages, msg)
	return kprocessor.Continue, nil
}

func insert(key, value string) kprocessor.Operation {
	return kprocessor.Operation{Kind: kprocessor.OpInsert, Key: []byte(key), New: []byte(value)}
}

// tx builds a complete transaction of source with consecutive sequence ids
// starting at first.
func tx(source string, first, txid uint64, ops ...kprocessor.Operation) []kprocessor.Message {
	out := []kprocessor.Message{kprocessor.Begin()}
	seq := first
	for _, op := range ops {
		out = append(out, kprocessor.Data(seq, op))
		seq++
	}
	out = append(out, kprocessor.Commit(seq-1, txid))
	for i := range out {
		out[i].Source = source
	}
	return out
}

func feed(t *testing.T, sink kprocessor.Sink, sc kprocessor.StageContext, msgs []kprocessor.Message) {
	t.Helper()
	for _, msg := range msgs {
		ctrl, err := sink.Process(context.Background(), kprocessor.DefaultPortHandle, msg, sc)
		assert.NoError(t, err)
		assert.Equal(t, kprocessor.Continue, ctrl)
	}
}
