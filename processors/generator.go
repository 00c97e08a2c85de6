package processors

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/birdayz/kflow/kcheckpoint"
	"github.com/birdayz/kflow/kprocessor"
)

// GeneratorSource emits synthetic inserts in transactions of TxSize data
// messages. Sequence ids start at 0 and transaction ids are seq / TxSize, so
// a resumed generator reproduces the transactions of an earlier run.
type GeneratorSource struct {
	// Total is the number of data messages to emit. 0 means unbounded.
	Total uint64
	// TxSize is the number of data messages per transaction. Default 1.
	TxSize uint64
	// Pause is slept between transactions.
	Pause time.Duration
	// Make builds the operation of a sequence id. Default: an insert whose
	// key and value are the big-endian sequence id.
	Make func(seq uint64) kprocessor.Operation
	// Ports are the output ports. Default: the default port.
	Ports []kprocessor.PortHandle
}

func (g *GeneratorSource) OutputPorts() kprocessor.Ports {
	if len(g.Ports) == 0 {
		return kprocessor.DefaultPorts()
	}
	return kprocessor.DeclarePorts(g.Ports...)
}

func (g *GeneratorSource) Init(kprocessor.StageContext) error {
	if g.TxSize == 0 {
		g.TxSize = 1
	}
	if g.Make == nil {
		g.Make = func(seq uint64) kprocessor.Operation {
			key := binary.BigEndian.AppendUint64(nil, seq)
			return kprocessor.Operation{Kind: kprocessor.OpInsert, Key: key, New: key}
		}
	}
	return nil
}

func (g *GeneratorSource) Start(ctx context.Context, fw kprocessor.Forwarder, from kcheckpoint.Position) error {
	seq := from.Next()
	for g.Total == 0 || seq < g.Total {
		txid := seq / g.TxSize
		end := (txid + 1) * g.TxSize
		if g.Total > 0 && end > g.Total {
			end = g.Total
		}

		if err := fw.Send(ctx, kprocessor.Begin(), kprocessor.Broadcast); err != nil {
			return err
		}
		for ; seq < end; seq++ {
			if err := fw.Send(ctx, kprocessor.Data(seq, g.Make(seq)), kprocessor.Broadcast); err != nil {
				return err
			}
		}
		if err := fw.Send(ctx, kprocessor.Commit(end-1, txid), kprocessor.Broadcast); err != nil {
			return err
		}

		if g.Pause > 0 {
			select {
			case <-time.After(g.Pause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

func (g *GeneratorSource) Close() error {
	return nil
}
