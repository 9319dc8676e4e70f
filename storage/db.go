// Package storage holds the key-value backends module state is written to.
package storage

import "errors"

// ErrNotFound is returned by Get when the key has no stored value.
var ErrNotFound = errors.New("storage: key not found")

// Database is the key-value store behind module state. Implementations copy
// keys and values on the way in and out.
type Database interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	// Write applies every queued operation of batch atomically.
	Write(batch *Batch) error
	// Iterate calls fn for each key under prefix in ascending byte order
	// until fn returns false.
	Iterate(prefix []byte, fn func(key, value []byte) bool) error
	Close()
}

// Batch queues puts and deletes for Database.Write. Operations apply in the
// order they were queued.
type Batch struct {
	ops []batchOp
}

type batchOp struct {
	key   []byte
	value []byte // nil marks a delete
}

func (b *Batch) Put(key, value []byte) {
	if value == nil {
		value = []byte{}
	}
	b.ops = append(b.ops, batchOp{key: clone(key), value: clone(value)})
}

func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{key: clone(key)})
}

func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ops)
}

func (op batchOp) isDelete() bool { return op.value == nil }

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
