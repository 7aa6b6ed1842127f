package storage

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	ldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	ldbutil "github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB is the reference KeyValueStore implementation, grounded on the
// collaborator's probedb/leveldb package.
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens (creating if absent) a goleveldb database at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// OpenLevelDBMem opens an in-memory database, used by tests and by
// cmd/gearrun's --mem flag.
func OpenLevelDBMem() (*LevelDB, error) {
	db, err := leveldb.Open(ldbstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

func (d *LevelDB) Has(key []byte) (bool, error) {
	_, err := d.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *LevelDB) Get(key []byte) ([]byte, error) {
	v, err := d.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	return v, err
}

func (d *LevelDB) Put(key, value []byte) error {
	return d.db.Put(key, value, nil)
}

func (d *LevelDB) Delete(key []byte) error {
	return d.db.Delete(key, nil)
}

func (d *LevelDB) NewIterator(prefix []byte) Iterator {
	return &ldbIterator{it: d.db.NewIterator(ldbutil.BytesPrefix(prefix), nil)}
}

func (d *LevelDB) Close() error { return d.db.Close() }

type ldbIterator struct {
	it iterator.Iterator
}

func (i *ldbIterator) Next() bool       { return i.it.Next() }
func (i *ldbIterator) Key() []byte      { return i.it.Key() }
func (i *ldbIterator) Value() []byte    { return i.it.Value() }
func (i *ldbIterator) Release()         { i.it.Release() }
func (i *ldbIterator) Error() error     { return i.it.Error() }
