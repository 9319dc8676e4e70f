package storage

import (
	"bytes"
	"slices"
	"strings"
	"sync"
)

// MemDB keeps everything in a map. Tests and the view overlays use it.
type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{data: make(map[string][]byte)}
}

func (db *MemDB) Put(key, value []byte) error {
	db.mu.Lock()
	db.data[string(key)] = bytes.Clone(value)
	db.mu.Unlock()
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if value, ok := db.data[string(key)]; ok {
		return bytes.Clone(value), nil
	}
	return nil, ErrNotFound
}

func (db *MemDB) Has(key []byte) (bool, error) {
	db.mu.RLock()
	_, ok := db.data[string(key)]
	db.mu.RUnlock()
	return ok, nil
}

func (db *MemDB) Delete(key []byte) error {
	db.mu.Lock()
	delete(db.data, string(key))
	db.mu.Unlock()
	return nil
}

func (db *MemDB) Write(batch *Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, op := range batch.ops {
		if op.isDelete() {
			delete(db.data, string(op.key))
		} else {
			db.data[string(op.key)] = op.value
		}
	}
	return nil
}

// Iterate snapshots the matching entries first so fn may write to db.
func (db *MemDB) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	type entry struct {
		key   string
		value []byte
	}
	db.mu.RLock()
	var matched []entry
	for k, v := range db.data {
		if strings.HasPrefix(k, string(prefix)) {
			matched = append(matched, entry{k, bytes.Clone(v)})
		}
	}
	db.mu.RUnlock()

	slices.SortFunc(matched, func(a, b entry) int { return strings.Compare(a.key, b.key) })
	for _, e := range matched {
		if !fn([]byte(e.key), e.value) {
			return nil
		}
	}
	return nil
}

func (db *MemDB) Close() {}
