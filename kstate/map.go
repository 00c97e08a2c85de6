package kstate

import (
	"fmt"
	"iter"

	"github.com/birdayz/kflow/kserde"
)

// Map is an ordered map from K to byte values, stored in one database of an
// Env. The zero value is not usable; obtain one with OpenMap.
type Map[K any] struct {
	db   DatabaseID
	keys kserde.Serde[K]
}

// Entry is a key/value pair of a Map.
type Entry[K any] struct {
	Key   K
	Value []byte
}

// OpenMap opens the named database as a Map, creating it when create is set.
// The empty name refers to the default database, which always exists.
func OpenMap[K any](env *Env, name string, create bool, keys kserde.Serde[K]) (Map[K], error) {
	id, err := env.Database(name, create)
	if err != nil {
		return Map[K]{}, err
	}
	return Map[K]{db: id, keys: keys}, nil
}

// Database returns the registry id backing the map.
func (m Map[K]) Database() DatabaseID {
	return m.db
}

func (m Map[K]) encode(key K) ([]byte, error) {
	raw, err := m.keys.Serializer(key)
	if err != nil {
		return nil, fmt.Errorf("encode key: %w", err)
	}
	out := make([]byte, 0, prefixLen+len(raw))
	out = append(out, prefixOf(m.db)...)
	return append(out, raw...), nil
}

// Get returns the value stored under key. The bool reports whether the key
// was present.
func (m Map[K]) Get(txn Txn, key K) ([]byte, bool, error) {
	k, err := m.encode(key)
	if err != nil {
		return nil, false, err
	}
	return txn.get(k)
}

func (m Map[K]) Contains(txn Txn, key K) (bool, error) {
	_, ok, err := m.Get(txn, key)
	return ok, err
}

// Insert stores value under key if the key is absent. It returns true iff the
// entry was inserted; an existing value is left untouched.
func (m Map[K]) Insert(txn *RwTxn, key K, value []byte) (bool, error) {
	k, err := m.encode(key)
	if err != nil {
		return false, err
	}
	_, exists, err := txn.get(k)
	if err != nil || exists {
		return false, err
	}
	if err := txn.set(k, value); err != nil {
		return false, err
	}
	return true, nil
}

// Put stores value under key, overwriting any existing value.
func (m Map[K]) Put(txn *RwTxn, key K, value []byte) error {
	k, err := m.encode(key)
	if err != nil {
		return err
	}
	return txn.set(k, value)
}

// Remove deletes key. It returns true iff the key was present.
func (m Map[K]) Remove(txn *RwTxn, key K) (bool, error) {
	k, err := m.encode(key)
	if err != nil {
		return false, err
	}
	_, exists, err := txn.get(k)
	if err != nil || !exists {
		return false, err
	}
	if err := txn.delete(k); err != nil {
		return false, err
	}
	return true, nil
}

// Clear removes every entry of the map.
func (m Map[K]) Clear(txn *RwTxn) error {
	it, err := txn.newIter(prefixOf(m.db), prefixOf(m.db+1))
	if err != nil {
		return err
	}

	var keys [][]byte
	for it.First(); it.Valid(); it.Next() {
		k := make([]byte, len(it.Key()))
		copy(k, it.Key())
		keys = append(keys, k)
	}
	if err := it.Error(); err != nil {
		_ = it.Close()
		return wrapErr("clear", err)
	}
	if err := it.Close(); err != nil {
		return wrapErr("clear", err)
	}

	for _, k := range keys {
		if err := txn.delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of entries visible to txn.
func (m Map[K]) Count(txn Txn) (int, error) {
	it, err := txn.newIter(prefixOf(m.db), prefixOf(m.db+1))
	if err != nil {
		return 0, err
	}
	defer func() { _ = it.Close() }()

	n := 0
	for it.First(); it.Valid(); it.Next() {
		n++
	}
	return n, wrapErr("count", it.Error())
}

// Iter returns a cursor over all entries in ascending key order.
func (m Map[K]) Iter(txn Txn) (*Cursor[K], error) {
	return newCursor(txn, m.db, m.keys)
}

// All yields every entry in ascending key order. An iteration error is
// yielded once with a zero Entry, after which iteration stops.
func (m Map[K]) All(txn Txn) iter.Seq2[Entry[K], error] {
	return func(yield func(Entry[K], error) bool) {
		c, err := m.Iter(txn)
		if err != nil {
			yield(Entry[K]{}, err)
			return
		}
		defer c.Close()

		for c.Next() {
			if !yield(Entry[K]{Key: c.Key(), Value: c.Value()}, nil) {
				return
			}
		}
		if err := c.Err(); err != nil {
			yield(Entry[K]{}, err)
		}
	}
}

// Extend inserts every entry whose key is absent. Existing values are never
// overwritten. It returns the number of entries inserted.
func (m Map[K]) Extend(txn *RwTxn, entries []Entry[K]) (int, error) {
	n := 0
	for _, e := range entries {
		ok, err := m.Insert(txn, e.Key, e.Value)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}
