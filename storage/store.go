// Package storage implements the external storage collaborator of
// SPEC_FULL §6: a prefix-keyed byte store with get/put/remove/iter,
// modeled on the collaborator's probedb.KeyValueStore interface
// (probedb/leveldb/leveldb_test.go) and backed by goleveldb.
package storage

import "io"

// KeyValueStore is the flat byte-oriented store every collaborator
// implementation must satisfy.
type KeyValueStore interface {
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	NewIterator(prefix []byte) Iterator
	io.Closer
}

// Iterator walks keys sharing a prefix in lexicographic order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

// Store is the prefix-keyed façade described in §6: every entity
// (program pages, gas nodes, reservation slots) lives under a distinct
// prefix so unrelated entities never collide in the flat keyspace.
type Store struct {
	kv KeyValueStore
}

// NewStore wraps a raw KeyValueStore as a prefix-keyed Store.
func NewStore(kv KeyValueStore) *Store { return &Store{kv: kv} }

func composeKey(prefix, key []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(key))
	out = append(out, prefix...)
	out = append(out, key...)
	return out
}

// Get returns the value at (prefix, key), or nil if absent.
func (s *Store) Get(prefix, key []byte) ([]byte, error) {
	ok, err := s.kv.Has(composeKey(prefix, key))
	if err != nil || !ok {
		return nil, err
	}
	return s.kv.Get(composeKey(prefix, key))
}

// Put writes value at (prefix, key).
func (s *Store) Put(prefix, key, value []byte) error {
	return s.kv.Put(composeKey(prefix, key), value)
}

// Remove deletes (prefix, key); a missing key is not an error.
func (s *Store) Remove(prefix, key []byte) error {
	return s.kv.Delete(composeKey(prefix, key))
}

// Iter streams every (key, value) pair stored under prefix.
func (s *Store) Iter(prefix []byte) Iterator {
	return s.kv.NewIterator(prefix)
}

// Close releases the underlying KeyValueStore.
func (s *Store) Close() error { return s.kv.Close() }
