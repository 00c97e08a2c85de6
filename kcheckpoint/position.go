// Package kcheckpoint records how far each durability stage has committed the
// transactions of each source, and computes where a source resumes.
package kcheckpoint

import "fmt"

// Position identifies the last committed transaction of a source: the
// sequence id of its last data message and the transaction id carried by its
// Commit. A Position is either unknown (nothing committed yet) or known.
type Position struct {
	Seq   uint64
	TxID  uint64
	known bool
}

// Unknown returns the position of a source that has never committed.
func Unknown() Position {
	return Position{}
}

// At returns a known position.
func At(seq, txid uint64) Position {
	return Position{Seq: seq, TxID: txid, known: true}
}

func (p Position) IsKnown() bool {
	return p.known
}

// Next returns the first sequence id a source has to emit when resuming from
// p: 0 when p is unknown, Seq+1 otherwise.
func (p Position) Next() uint64 {
	if !p.known {
		return 0
	}
	return p.Seq + 1
}

// Less orders positions by (Seq, TxID). An unknown position precedes every
// known one.
func (p Position) Less(o Position) bool {
	switch {
	case !p.known:
		return o.known
	case !o.known:
		return false
	case p.Seq != o.Seq:
		return p.Seq < o.Seq
	default:
		return p.TxID < o.TxID
	}
}

// Covers reports whether a stage checkpointed at p already committed o.
func (p Position) Covers(o Position) bool {
	return p.known && !p.Less(o)
}

func (p Position) String() string {
	if !p.known {
		return "unknown"
	}
	return fmt.Sprintf("%d/%d", p.Seq, p.TxID)
}
