package processors

import (
	"context"
	"encoding/binary"
	"sync/atomic"

	"github.com/birdayz/kflow/kcommit"
	"github.com/birdayz/kflow/kprocessor"
	"github.com/birdayz/kflow/kserde"
	"github.com/birdayz/kflow/kstate"
)

// Dedup guards a sink against redelivered data messages. It records the
// (source, seq) of every data message it passed on in a processed-id set and
// drops data messages already in the set.
//
// Ids are persisted with the checkpoint after the wrapped sink accepted the
// Commit. A crash between the two redelivers the transaction, and the wrapped
// sink sees it again: delivery stays at-least-once, with the duplicate window
// bounded to one transaction per source.
type Dedup struct {
	durable

	inner     kprocessor.Sink
	guard     kcommit.Guard
	processed kstate.Set[[]byte]
	pending   *kcommit.Buffer[[]byte]
	skipped   atomic.Uint64
}

func NewDedup(inner kprocessor.Sink) *Dedup {
	return &Dedup{
		inner:   inner,
		pending: kcommit.NewBuffer[[]byte](),
	}
}

func (d *Dedup) InputPorts() kprocessor.Ports { return d.inner.InputPorts() }

func (d *Dedup) Init(sc kprocessor.StageContext) error {
	if err := d.guard.Setup(sc); err != nil {
		return err
	}
	set, err := kstate.OpenSet(sc.Env(), sc.DatabaseName("processed"), true, kserde.Bytes)
	if err != nil {
		return err
	}
	d.processed = set
	return d.inner.Init(sc)
}

func processedID(source string, seq uint64) []byte {
	id := make([]byte, 0, len(source)+9)
	id = append(id, source...)
	id = append(id, 0)
	return binary.BigEndian.AppendUint64(id, seq)
}

func (d *Dedup) Process(ctx context.Context, from kprocessor.PortHandle, msg kprocessor.Message, sc kprocessor.StageContext) (kprocessor.Control, error) {
	switch msg.Kind {
	case kprocessor.KindBegin:
		if err := d.pending.Begin(msg.Source); err != nil {
			return kprocessor.Continue, err
		}

	case kprocessor.KindData:
		id := processedID(msg.Source, msg.Seq)
		var seen bool
		err := d.guard.Env().View(func(txn *kstate.ReadTxn) error {
			var err error
			seen, err = d.processed.Contains(txn, id)
			return err
		})
		if err != nil {
			return kprocessor.Continue, err
		}
		if seen {
			d.skipped.Add(1)
			return kprocessor.Continue, nil
		}
		if err := d.pending.Add(msg.Source, id); err != nil {
			return kprocessor.Continue, err
		}

	case kprocessor.KindCommit:
		ids, err := d.pending.Commit(msg.Source)
		if err != nil {
			return kprocessor.Continue, err
		}
		ctrl, err := d.inner.Process(ctx, from, msg, sc)
		if err != nil {
			return ctrl, err
		}
		_, err = d.guard.Commit(msg, func(txn *kstate.RwTxn) error {
			_, err := d.processed.Extend(txn, ids)
			return err
		})
		return ctrl, err
	}

	return d.inner.Process(ctx, from, msg, sc)
}

// Skipped returns the number of dropped duplicates.
func (d *Dedup) Skipped() uint64 {
	return d.skipped.Load()
}

func (d *Dedup) Close() error {
	d.pending.Reset()
	return d.inner.Close()
}
