package kstate

import (
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/kflow/kserde"
)

func openTestEnv(t *testing.T) *Env {
	t.Helper()
	env, err := Open(t.TempDir(), WithSync(false))
	assert.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func collectSet[K any](t *testing.T, s Set[K], txn Txn) []K {
	t.Helper()
	var out []K
	for k, err := range s.All(txn) {
		assert.NoError(t, err)
		out = append(out, k)
	}
	return out
}

func TestSet(t *testing.T) {
	env := openTestEnv(t)
	set, err := OpenSet(env, "set", true, kserde.Uint64)
	assert.NoError(t, err)

	txn := env.BeginWrite()
	defer txn.Abort()

	inserted, err := set.Insert(txn, 1)
	assert.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = set.Insert(txn, 1)
	assert.NoError(t, err)
	assert.False(t, inserted)

	count, err := set.Count(txn)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)

	ok, err := set.Contains(txn, 1)
	assert.NoError(t, err)
	assert.True(t, ok)

	removed, err := set.Remove(txn, 2)
	assert.NoError(t, err)
	assert.False(t, removed)

	removed, err = set.Remove(txn, 1)
	assert.NoError(t, err)
	assert.True(t, removed)

	ok, err = set.Contains(txn, 1)
	assert.NoError(t, err)
	assert.False(t, ok)

	n, err := set.Extend(txn, []uint64{5, 4, 3})
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []uint64{3, 4, 5}, collectSet(t, set, txn))

	assert.NoError(t, set.Clear(txn))
	count, err = set.Count(txn)
	assert.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, []uint64(nil), collectSet(t, set, txn))
}

func TestSetExtendSkipsMembers(t *testing.T) {
	env := openTestEnv(t)
	set, err := OpenSet(env, "", false, kserde.String)
	assert.NoError(t, err)

	err = env.Update(func(txn *RwTxn) error {
		_, err := set.Insert(txn, "b")
		if err != nil {
			return err
		}
		n, err := set.Extend(txn, []string{"c", "a", "b"})
		assert.Equal(t, 2, n)
		return err
	})
	assert.NoError(t, err)

	txn := env.BeginRead()
	defer txn.Close()
	assert.Equal(t, []string{"a", "b", "c"}, collectSet(t, set, txn))
}
