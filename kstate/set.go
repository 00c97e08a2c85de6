package kstate

import (
	"iter"

	"github.com/birdayz/kflow/kserde"
)

// Set is an ordered set of K. It is a Map whose values are empty.
type Set[K any] struct {
	m Map[K]
}

// OpenSet opens the named database as a Set, creating it when create is set.
func OpenSet[K any](env *Env, name string, create bool, keys kserde.Serde[K]) (Set[K], error) {
	m, err := OpenMap(env, name, create, keys)
	if err != nil {
		return Set[K]{}, err
	}
	return Set[K]{m: m}, nil
}

func (s Set[K]) Database() DatabaseID {
	return s.m.db
}

func (s Set[K]) Contains(txn Txn, key K) (bool, error) {
	return s.m.Contains(txn, key)
}

// Insert adds key. It returns true iff the key was not yet a member.
func (s Set[K]) Insert(txn *RwTxn, key K) (bool, error) {
	return s.m.Insert(txn, key, nil)
}

// Remove deletes key. It returns true iff the key was a member.
func (s Set[K]) Remove(txn *RwTxn, key K) (bool, error) {
	return s.m.Remove(txn, key)
}

func (s Set[K]) Clear(txn *RwTxn) error {
	return s.m.Clear(txn)
}

func (s Set[K]) Count(txn Txn) (int, error) {
	return s.m.Count(txn)
}

// Iter returns a cursor over the members in ascending order. Cursor.Value is
// always empty.
func (s Set[K]) Iter(txn Txn) (*Cursor[K], error) {
	return s.m.Iter(txn)
}

// All yields every member in ascending order. An iteration error is yielded
// once with a zero key, after which iteration stops.
func (s Set[K]) All(txn Txn) iter.Seq2[K, error] {
	return func(yield func(K, error) bool) {
		for e, err := range s.m.All(txn) {
			if !yield(e.Key, err) {
				return
			}
		}
	}
}

// Extend adds every key and returns how many were new.
func (s Set[K]) Extend(txn *RwTxn, keys []K) (int, error) {
	n := 0
	for _, k := range keys {
		ok, err := s.Insert(txn, k)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}
