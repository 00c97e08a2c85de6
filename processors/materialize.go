package processors

import (
	"context"

	"github.com/birdayz/kflow/kcommit"
	"github.com/birdayz/kflow/kprocessor"
	"github.com/birdayz/kflow/kserde"
	"github.com/birdayz/kflow/kstate"
)

// MaterializeSink keeps a table of the latest value per key. Operations are
// buffered per source and applied together with the source's checkpoint
// when its Commit arrives; a transaction that never commits leaves no trace.
type MaterializeSink struct {
	durable

	name    string
	in      kprocessor.Ports
	guard   kcommit.Guard
	table   kstate.Map[[]byte]
	pending *kcommit.Buffer[kprocessor.Operation]
}

// NewMaterializeSink creates a sink materializing into the stage-scoped
// database name.
func NewMaterializeSink(name string) *MaterializeSink {
	return &MaterializeSink{
		name:    name,
		in:      kprocessor.DefaultPorts(),
		pending: kcommit.NewBuffer[kprocessor.Operation](),
	}
}

func (s *MaterializeSink) InputPorts() kprocessor.Ports { return s.in }

func (s *MaterializeSink) Init(sc kprocessor.StageContext) error {
	if err := s.guard.Setup(sc); err != nil {
		return err
	}
	table, err := kstate.OpenMap(sc.Env(), sc.DatabaseName(s.name), true, kserde.Bytes)
	if err != nil {
		return err
	}
	s.table = table
	return nil
}

func (s *MaterializeSink) Process(_ context.Context, _ kprocessor.PortHandle, msg kprocessor.Message, sc kprocessor.StageContext) (kprocessor.Control, error) {
	switch msg.Kind {
	case kprocessor.KindBegin:
		return kprocessor.Continue, s.pending.Begin(msg.Source)

	case kprocessor.KindData:
		return kprocessor.Continue, s.pending.Add(msg.Source, *msg.Op)

	case kprocessor.KindCommit:
		ops, err := s.pending.Commit(msg.Source)
		if err != nil {
			return kprocessor.Continue, err
		}
		applied, err := s.guard.Commit(msg, func(txn *kstate.RwTxn) error {
			return s.apply(txn, ops)
		})
		if err != nil {
			return kprocessor.Continue, err
		}
		if !applied {
			sc.Logger().Debug("Skipping redelivered transaction", "source", msg.Source, "seq", msg.Seq, "txid", msg.TxID)
		}
	}
	return kprocessor.Continue, nil
}

func (s *MaterializeSink) apply(txn *kstate.RwTxn, ops []kprocessor.Operation) error {
	for _, op := range ops {
		switch op.Kind {
		case kprocessor.OpDelete:
			if _, err := s.table.Remove(txn, op.Key); err != nil {
				return err
			}
		default:
			if err := s.table.Put(txn, op.Key, op.New); err != nil {
				return err
			}
		}
	}
	return nil
}

// Table returns the handle of the materialized table. It is valid after Init.
func (s *MaterializeSink) Table() kstate.Map[[]byte] {
	return s.table
}

func (s *MaterializeSink) Close() error {
	s.pending.Reset()
	return nil
}
