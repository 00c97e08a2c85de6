package kstate

import (
	"errors"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/kflow/kserde"
)

func TestMapInsertIsInsertIfAbsent(t *testing.T) {
	env := openTestEnv(t)
	m, err := OpenMap(env, "m", true, kserde.String)
	assert.NoError(t, err)

	err = env.Update(func(txn *RwTxn) error {
		ok, err := m.Insert(txn, "k", []byte("first"))
		assert.NoError(t, err)
		assert.True(t, ok)

		ok, err = m.Insert(txn, "k", []byte("second"))
		assert.NoError(t, err)
		assert.False(t, ok)

		val, found, err := m.Get(txn, "k")
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "first", string(val))

		assert.NoError(t, m.Put(txn, "k", []byte("third")))
		val, _, err = m.Get(txn, "k")
		assert.NoError(t, err)
		assert.Equal(t, "third", string(val))
		return nil
	})
	assert.NoError(t, err)
}

func TestMapIterationIsOrdered(t *testing.T) {
	env := openTestEnv(t)
	m, err := OpenMap(env, "signed", true, kserde.Int64)
	assert.NoError(t, err)

	err = env.Update(func(txn *RwTxn) error {
		_, err := m.Extend(txn, []Entry[int64]{
			{Key: 7, Value: []byte("7")},
			{Key: -3, Value: []byte("-3")},
			{Key: 0, Value: []byte("0")},
			{Key: -100, Value: []byte("-100")},
		})
		return err
	})
	assert.NoError(t, err)

	txn := env.BeginRead()
	defer txn.Close()

	c, err := m.Iter(txn)
	assert.NoError(t, err)
	defer c.Close()

	var keys []int64
	var values []string
	for c.Next() {
		keys = append(keys, c.Key())
		values = append(values, string(c.Value()))
	}
	assert.NoError(t, c.Err())
	assert.Equal(t, []int64{-100, -3, 0, 7}, keys)
	assert.Equal(t, []string{"-100", "-3", "0", "7"}, values)
}

func TestDatabasesAreIsolated(t *testing.T) {
	env := openTestEnv(t)
	a, err := OpenMap(env, "a", true, kserde.Uint32)
	assert.NoError(t, err)
	b, err := OpenMap(env, "b", true, kserde.Uint32)
	assert.NoError(t, err)
	assert.NotEqual(t, a.Database(), b.Database())

	err = env.Update(func(txn *RwTxn) error {
		for i := uint32(0); i < 10; i++ {
			if err := a.Put(txn, i, nil); err != nil {
				return err
			}
		}
		return b.Put(txn, 1, []byte("b"))
	})
	assert.NoError(t, err)

	err = env.Update(func(txn *RwTxn) error {
		return a.Clear(txn)
	})
	assert.NoError(t, err)

	err = env.View(func(txn *ReadTxn) error {
		n, err := a.Count(txn)
		assert.NoError(t, err)
		assert.Equal(t, 0, n)

		n, err = b.Count(txn)
		assert.NoError(t, err)
		assert.Equal(t, 1, n)
		return nil
	})
	assert.NoError(t, err)
}

func TestOpenMissingDatabase(t *testing.T) {
	env := openTestEnv(t)

	_, err := OpenMap(env, "missing", false, kserde.String)
	assert.True(t, errors.Is(err, ErrNotFound))

	def, err := OpenMap(env, "", false, kserde.String)
	assert.NoError(t, err)
	assert.Equal(t, DefaultDatabase, def.Database())
}

func TestReopenKeepsDataAndRegistry(t *testing.T) {
	dir := t.TempDir()

	env, err := Open(dir)
	assert.NoError(t, err)
	m, err := OpenMap(env, "persisted", true, kserde.String)
	assert.NoError(t, err)
	id := m.Database()
	err = env.Update(func(txn *RwTxn) error {
		return m.Put(txn, "key", []byte("value"))
	})
	assert.NoError(t, err)
	assert.NoError(t, env.Close())

	env, err = Open(dir)
	assert.NoError(t, err)
	defer env.Close()

	m, err = OpenMap(env, "persisted", false, kserde.String)
	assert.NoError(t, err)
	assert.Equal(t, id, m.Database())

	other, err := OpenMap(env, "other", true, kserde.String)
	assert.NoError(t, err)
	assert.NotEqual(t, id, other.Database())

	err = env.View(func(txn *ReadTxn) error {
		val, ok, err := m.Get(txn, "key")
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "value", string(val))
		return nil
	})
	assert.NoError(t, err)
}

func TestReadTxnIsSnapshot(t *testing.T) {
	env := openTestEnv(t)
	m, err := OpenMap(env, "", false, kserde.String)
	assert.NoError(t, err)

	assert.NoError(t, env.Update(func(txn *RwTxn) error {
		return m.Put(txn, "a", []byte("1"))
	}))

	read := env.BeginRead()
	defer read.Close()

	write := env.BeginWrite()
	assert.NoError(t, m.Put(write, "a", []byte("2")))
	assert.NoError(t, m.Put(write, "b", []byte("2")))

	val, _, err := m.Get(read, "a")
	assert.NoError(t, err)
	assert.Equal(t, "1", string(val))

	assert.NoError(t, write.Commit())

	val, _, err = m.Get(read, "a")
	assert.NoError(t, err)
	assert.Equal(t, "1", string(val))
	ok, err := m.Contains(read, "b")
	assert.NoError(t, err)
	assert.False(t, ok)

	err = env.View(func(txn *ReadTxn) error {
		val, _, err := m.Get(txn, "a")
		assert.Equal(t, "2", string(val))
		return err
	})
	assert.NoError(t, err)
}

func TestAbortDiscardsWrites(t *testing.T) {
	env := openTestEnv(t)
	m, err := OpenMap(env, "", false, kserde.String)
	assert.NoError(t, err)

	boom := errors.New("boom")
	err = env.Update(func(txn *RwTxn) error {
		if err := m.Put(txn, "a", []byte("1")); err != nil {
			return err
		}
		return boom
	})
	assert.True(t, errors.Is(err, boom))

	err = env.View(func(txn *ReadTxn) error {
		ok, err := m.Contains(txn, "a")
		assert.False(t, ok)
		return err
	})
	assert.NoError(t, err)
}

func TestSecondWriterBlocks(t *testing.T) {
	env := openTestEnv(t)

	first := env.BeginWrite()

	acquired := make(chan *RwTxn)
	go func() {
		acquired <- env.BeginWrite()
	}()

	select {
	case <-acquired:
		t.Fatal("second writer acquired the lock while the first was active")
	case <-time.After(50 * time.Millisecond):
	}

	assert.NoError(t, first.Commit())

	select {
	case second := <-acquired:
		second.Abort()
	case <-time.After(5 * time.Second):
		t.Fatal("second writer never acquired the lock")
	}
}

func TestCursorInvalidatedByCommit(t *testing.T) {
	env := openTestEnv(t)
	m, err := OpenMap(env, "", false, kserde.Uint32)
	assert.NoError(t, err)

	txn := env.BeginWrite()
	assert.NoError(t, m.Put(txn, 1, nil))
	assert.NoError(t, m.Put(txn, 2, nil))

	c, err := m.Iter(txn)
	assert.NoError(t, err)
	assert.True(t, c.Next())
	assert.Equal(t, uint32(1), c.Key())

	assert.NoError(t, txn.Commit())

	assert.False(t, c.Next())
	assert.True(t, errors.Is(c.Err(), ErrTxnClosed))
	assert.NoError(t, c.Close())

	assert.True(t, errors.Is(txn.Commit(), ErrTxnClosed))
	_, _, err = m.Get(txn, 1)
	assert.True(t, errors.Is(err, ErrTxnClosed))
}
