package kstate

import (
	"fmt"

	"github.com/birdayz/kflow/kserde"
	"github.com/cockroachdb/pebble"
)

// Cursor iterates one database in ascending key order. It is valid only
// within the transaction that created it.
//
//	c, err := m.Iter(txn)
//	if err != nil { ... }
//	defer c.Close()
//	for c.Next() {
//		use(c.Key(), c.Value())
//	}
//	if err := c.Err(); err != nil { ... }
type Cursor[K any] struct {
	it      *pebble.Iterator
	keys    kserde.Serde[K]
	skip    int
	started bool
	done    bool

	key   K
	value []byte
	err   error
}

func newCursor[K any](txn Txn, id DatabaseID, keys kserde.Serde[K]) (*Cursor[K], error) {
	lower := prefixOf(id)
	it, err := txn.newIter(lower, prefixOf(id+1))
	if err != nil {
		return nil, err
	}
	c := &Cursor[K]{it: it, keys: keys, skip: len(lower)}
	txn.track(c)
	return c, nil
}

// Next advances to the next entry. It returns false when the database is
// exhausted, an error occurred, or the cursor was closed.
func (c *Cursor[K]) Next() bool {
	if c.done {
		return false
	}

	var ok bool
	if !c.started {
		c.started = true
		ok = c.it.First()
	} else {
		ok = c.it.Next()
	}
	if !ok {
		c.err = wrapErr("iterate", c.it.Error())
		c.release()
		return false
	}

	k, err := c.keys.Deserializer(c.it.Key()[c.skip:])
	if err != nil {
		c.err = fmt.Errorf("decode key: %w", err)
		c.release()
		return false
	}
	c.key = k
	raw := c.it.Value()
	c.value = make([]byte, len(raw))
	copy(c.value, raw)
	return true
}

// Key returns the current key.
func (c *Cursor[K]) Key() K {
	return c.key
}

// Value returns a copy of the current value.
func (c *Cursor[K]) Value() []byte {
	return c.value
}

// Err returns the error that stopped iteration, if any. A cursor whose
// transaction ended before it was exhausted reports ErrTxnClosed.
func (c *Cursor[K]) Err() error {
	return c.err
}

// Close releases the cursor. It is safe to call more than once.
func (c *Cursor[K]) Close() error {
	c.release()
	return nil
}

func (c *Cursor[K]) invalidate() {
	if !c.done {
		c.err = ErrTxnClosed
		c.release()
	}
}

func (c *Cursor[K]) release() {
	if c.done {
		return
	}
	c.done = true
	_ = c.it.Close()
}
