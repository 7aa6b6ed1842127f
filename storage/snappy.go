package storage

import "github.com/golang/snappy"

// CompressingStore wraps a KeyValueStore, snappy-compressing values on the
// way in and decompressing on the way out. Nothing in this repository
// stores through it outside its own test: gear page payloads, gas-node and
// reservation records all go through the plain Store.
type CompressingStore struct {
	KeyValueStore
}

func NewCompressingStore(kv KeyValueStore) *CompressingStore {
	return &CompressingStore{KeyValueStore: kv}
}

func (c *CompressingStore) Get(key []byte) ([]byte, error) {
	v, err := c.KeyValueStore.Get(key)
	if err != nil || v == nil {
		return v, err
	}
	return snappy.Decode(nil, v)
}

func (c *CompressingStore) Put(key, value []byte) error {
	return c.KeyValueStore.Put(key, snappy.Encode(nil, value))
}
