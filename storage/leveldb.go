package storage

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB persists state in a goleveldb directory.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB opens the database at path, creating it when missing.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		BlockCacheCapacity: 16 * opt.MiB,
		WriteBuffer:        8 * opt.MiB,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open leveldb %s: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Put(key, value []byte) error { return l.db.Put(key, value, nil) }

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (l *LevelDB) Has(key []byte) (bool, error) { return l.db.Has(key, nil) }

func (l *LevelDB) Delete(key []byte) error { return l.db.Delete(key, nil) }

// Write commits batch with a synced write.
func (l *LevelDB) Write(batch *Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	var lb leveldb.Batch
	for _, op := range batch.ops {
		if op.isDelete() {
			lb.Delete(op.key)
		} else {
			lb.Put(op.key, op.value)
		}
	}
	return l.db.Write(&lb, &opt.WriteOptions{Sync: true})
}

func (l *LevelDB) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	it := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()
	for it.Next() {
		if !fn(clone(it.Key()), clone(it.Value())) {
			break
		}
	}
	return it.Error()
}

func (l *LevelDB) Close() { _ = l.db.Close() }
