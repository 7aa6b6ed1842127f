package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newMemStore(t *testing.T) *Store {
	t.Helper()
	db, err := OpenLevelDBMem()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestStorePutGetRemove(t *testing.T) {
	s := newMemStore(t)
	prefix := GasNodesPrefix
	key := []byte{1, 2, 3}

	v, err := s.Get(prefix, key)
	require.NoError(t, err)
	require.Nil(t, v)

	require.NoError(t, s.Put(prefix, key, []byte("hello")))
	v, err = s.Get(prefix, key)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), v)

	require.NoError(t, s.Remove(prefix, key))
	v, err = s.Get(prefix, key)
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestStoreIterHonorsPrefix(t *testing.T) {
	s := newMemStore(t)
	require.NoError(t, s.Put(GasNodesPrefix, []byte{1}, []byte("a")))
	require.NoError(t, s.Put(GasNodesPrefix, []byte{2}, []byte("b")))
	require.NoError(t, s.Put(ReservationsPrefix, []byte{1}, []byte("c")))

	it := s.Iter(GasNodesPrefix)
	defer it.Release()
	count := 0
	for it.Next() {
		count++
	}
	require.NoError(t, it.Error())
	require.Equal(t, 2, count)
}

func TestCompressingStoreRoundTrip(t *testing.T) {
	db, err := OpenLevelDBMem()
	require.NoError(t, err)
	defer db.Close()
	cs := NewCompressingStore(db)
	require.NoError(t, cs.Put([]byte("k"), []byte("some page payload bytes")))
	v, err := cs.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("some page payload bytes"), v)
}
