// Package nats reads change events from a JetStream stream.
//
// The stream sequence is the sequence id. Messages are grouped into
// transactions of at most BatchSize messages; a partial batch is committed
// once no message arrived for FlushInterval.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/birdayz/kflow/kcheckpoint"
	"github.com/birdayz/kflow/kprocessor"
	"github.com/nats-io/nats.go"
)

var ErrInvalidConfig = errors.New("nats: invalid config")

// HeaderOp selects the operation kind of a message. Absent means insert.
const HeaderOp = "Kflow-Op"

type SourceConfig struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222")
	URL     string
	Subject string

	// BatchSize is the maximum number of messages per transaction. Default 100.
	BatchSize int
	// FlushInterval commits a partial batch after this idle time. Default 1s.
	FlushInterval time.Duration
	// EndSequence ends the source after the message with this stream
	// sequence was committed. 0 means unbounded.
	EndSequence uint64

	// Decode turns a message into an operation. Default: DecodeMsg.
	Decode func(msg *nats.Msg) (kprocessor.Operation, error)

	// Opts are appended to the connection options.
	Opts []nats.Option
}

type Source struct {
	cfg SourceConfig
	log *slog.Logger
}

func NewSource(cfg SourceConfig) *Source {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.Decode == nil {
		cfg.Decode = DecodeMsg
	}
	return &Source{cfg: cfg}
}

// DecodeMsg keys the operation by subject. The HeaderOp header selects update
// or delete.
func DecodeMsg(msg *nats.Msg) (kprocessor.Operation, error) {
	op := kprocessor.Operation{Key: []byte(msg.Subject), New: msg.Data}
	if h := msg.Header.Get(HeaderOp); h != "" {
		if err := op.Kind.UnmarshalText([]byte(h)); err != nil {
			return op, err
		}
	}
	if op.Kind == kprocessor.OpDelete {
		op.New = nil
	}
	return op, nil
}

func (s *Source) OutputPorts() kprocessor.Ports { return kprocessor.DefaultPorts() }

func (s *Source) Init(sc kprocessor.StageContext) error {
	if s.cfg.URL == "" || s.cfg.Subject == "" {
		return fmt.Errorf("%w: url and subject are required", ErrInvalidConfig)
	}
	s.log = sc.Logger().With("subject", s.cfg.Subject)
	return nil
}

func (s *Source) Start(ctx context.Context, fw kprocessor.Forwarder, from kcheckpoint.Position) error {
	conn, err := nats.Connect(s.cfg.URL, append([]nats.Option{nats.Name("kflow-" + s.cfg.Subject)}, s.cfg.Opts...)...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer conn.Close()

	js, err := conn.JetStream()
	if err != nil {
		return err
	}

	if s.cfg.EndSequence > 0 && from.Next() > s.cfg.EndSequence {
		s.log.Info("Stream already consumed up to end sequence", "from", from, "end", s.cfg.EndSequence)
		return nil
	}

	start := nats.DeliverAll()
	if from.IsKnown() {
		start = nats.StartSequence(from.Next())
	}
	sub, err := js.SubscribeSync(s.cfg.Subject, nats.OrderedConsumer(), start)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.cfg.Subject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	s.log.Info("Consuming stream", "from", from)

	var b batch
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := sub.NextMsg(s.cfg.FlushInterval)
		if errors.Is(err, nats.ErrTimeout) {
			if err := b.flush(ctx, fw); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}

		meta, err := msg.Metadata()
		if err != nil {
			return err
		}
		op, err := s.cfg.Decode(msg)
		if err != nil {
			return fmt.Errorf("decode stream sequence %d: %w", meta.Sequence.Stream, err)
		}
		b.add(meta.Sequence.Stream, op)

		end := s.cfg.EndSequence > 0 && meta.Sequence.Stream >= s.cfg.EndSequence
		if end || b.len() >= s.cfg.BatchSize {
			if err := b.flush(ctx, fw); err != nil {
				return err
			}
		}
		if end {
			s.log.Info("Reached end sequence", "end", s.cfg.EndSequence)
			return nil
		}
	}
}

func (s *Source) Close() error {
	return nil
}

// batch collects the data messages of the open transaction.
type batch struct {
	data []kprocessor.Message
}

func (b *batch) add(seq uint64, op kprocessor.Operation) {
	b.data = append(b.data, kprocessor.Data(seq, op))
}

func (b *batch) len() int {
	return len(b.data)
}

// messages returns the complete transaction. The transaction id is the last
// stream sequence.
func (b *batch) messages() []kprocessor.Message {
	if len(b.data) == 0 {
		return nil
	}
	last := b.data[len(b.data)-1].Seq
	msgs := make([]kprocessor.Message, 0, len(b.data)+2)
	msgs = append(msgs, kprocessor.Begin())
	msgs = append(msgs, b.data...)
	return append(msgs, kprocessor.Commit(last, last))
}

func (b *batch) flush(ctx context.Context, fw kprocessor.Forwarder) error {
	for _, msg := range b.messages() {
		if err := fw.Send(ctx, msg, kprocessor.Broadcast); err != nil {
			return err
		}
	}
	b.data = b.data[:0]
	return nil
}
