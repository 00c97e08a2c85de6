package kstate

import (
	"errors"
	"io"

	"github.com/cockroachdb/pebble"
)

// Txn is satisfied by both ReadTxn and RwTxn. Read-only operations of Map and
// Set accept any Txn.
type Txn interface {
	get(key []byte) ([]byte, bool, error)
	newIter(lower, upper []byte) (*pebble.Iterator, error)
	track(c invalidator)
}

type invalidator interface {
	invalidate()
}

// txnState tracks the cursors opened inside a transaction so they can be
// invalidated when it ends.
type txnState struct {
	closed  bool
	cursors []invalidator
}

func (s *txnState) track(c invalidator) {
	s.cursors = append(s.cursors, c)
}

func (s *txnState) end() {
	s.closed = true
	for _, c := range s.cursors {
		c.invalidate()
	}
	s.cursors = nil
}

type reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) *pebble.Iterator
}

func getFrom(r reader, key []byte) ([]byte, bool, error) {
	val, closer, err := r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapErr("get", err)
	}
	defer closer.Close()

	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

// ReadTxn is a read-only view of a consistent snapshot.
type ReadTxn struct {
	snap *pebble.Snapshot
	txnState
}

func (t *ReadTxn) get(key []byte) ([]byte, bool, error) {
	if t.closed {
		return nil, false, ErrTxnClosed
	}
	return getFrom(t.snap, key)
}

func (t *ReadTxn) newIter(lower, upper []byte) (*pebble.Iterator, error) {
	if t.closed {
		return nil, ErrTxnClosed
	}
	return t.snap.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper}), nil
}

// Close ends the transaction and invalidates its cursors. Calling Close more
// than once is a no-op.
func (t *ReadTxn) Close() {
	if t.closed {
		return
	}
	t.end()
	_ = t.snap.Close()
}

// RwTxn is the single active read-write transaction. Its reads observe its
// own uncommitted writes.
type RwTxn struct {
	env   *Env
	batch *pebble.Batch
	txnState
}

func (t *RwTxn) get(key []byte) ([]byte, bool, error) {
	if t.closed {
		return nil, false, ErrTxnClosed
	}
	return getFrom(t.batch, key)
}

func (t *RwTxn) newIter(lower, upper []byte) (*pebble.Iterator, error) {
	if t.closed {
		return nil, ErrTxnClosed
	}
	return t.batch.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper}), nil
}

func (t *RwTxn) set(key, value []byte) error {
	if t.closed {
		return ErrTxnClosed
	}
	return wrapErr("set", t.batch.Set(key, value, nil))
}

func (t *RwTxn) delete(key []byte) error {
	if t.closed {
		return ErrTxnClosed
	}
	return wrapErr("delete", t.batch.Delete(key, nil))
}

// Commit atomically applies all writes and releases the writer lock. The
// transaction is closed afterwards, whether or not the commit succeeded.
func (t *RwTxn) Commit() error {
	if t.closed {
		return ErrTxnClosed
	}
	t.end()
	defer t.env.writeMu.Unlock()

	err := t.batch.Commit(t.env.writeOptions())
	_ = t.batch.Close()
	return wrapErr("commit", err)
}

// Abort discards all writes and releases the writer lock. Calling Abort on a
// closed transaction is a no-op.
func (t *RwTxn) Abort() {
	if t.closed {
		return
	}
	t.end()
	_ = t.batch.Close()
	t.env.writeMu.Unlock()
}
