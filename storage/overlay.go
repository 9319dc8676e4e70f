package storage

import (
	"errors"
	"sync"
)

var errOverlayClosed = errors.New("storage: overlay already committed or discarded")

type pendingEntry struct {
	value   []byte
	deleted bool
}

type journalEntry struct {
	key     string
	prev    pendingEntry
	hadPrev bool
}

// Overlay buffers writes on top of a base Database. Reads fall through to the
// base for keys the overlay has not touched. Nothing reaches the base until
// Commit, so a failed transaction is dropped with Discard.
type Overlay struct {
	mu      sync.Mutex
	base    Database
	pending map[string]pendingEntry
	journal []journalEntry
	closed  bool
}

// NewOverlay opens a write buffer over base.
func NewOverlay(base Database) *Overlay {
	return &Overlay{base: base, pending: make(map[string]pendingEntry)}
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	o.mu.Lock()
	entry, ok := o.pending[string(key)]
	o.mu.Unlock()
	if ok {
		if entry.deleted {
			return nil, ErrNotFound
		}
		return append([]byte(nil), entry.value...), nil
	}
	return o.base.Get(key)
}

func (o *Overlay) Has(key []byte) (bool, error) {
	o.mu.Lock()
	entry, ok := o.pending[string(key)]
	o.mu.Unlock()
	if ok {
		return !entry.deleted, nil
	}
	return o.base.Has(key)
}

func (o *Overlay) Put(key []byte, value []byte) error {
	return o.set(string(key), pendingEntry{value: append([]byte(nil), value...)})
}

func (o *Overlay) Delete(key []byte) error {
	return o.set(string(key), pendingEntry{deleted: true})
}

func (o *Overlay) set(key string, entry pendingEntry) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errOverlayClosed
	}
	prev, had := o.pending[key]
	o.journal = append(o.journal, journalEntry{key: key, prev: prev, hadPrev: had})
	o.pending[key] = entry
	return nil
}

// Snapshot returns a revision marker for RevertToSnapshot.
func (o *Overlay) Snapshot() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.journal)
}

// RevertToSnapshot undoes every write made after the given revision.
func (o *Overlay) RevertToSnapshot(rev int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if rev < 0 {
		rev = 0
	}
	for i := len(o.journal) - 1; i >= rev; i-- {
		j := o.journal[i]
		if j.hadPrev {
			o.pending[j.key] = j.prev
		} else {
			delete(o.pending, j.key)
		}
	}
	if rev < len(o.journal) {
		o.journal = o.journal[:rev]
	}
}

// Dirty reports the number of keys touched by the overlay.
func (o *Overlay) Dirty() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Commit flushes the buffered writes to the base database in one batch.
func (o *Overlay) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errOverlayClosed
	}
	batch := new(Batch)
	for key, entry := range o.pending {
		if entry.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), entry.value)
	}
	if err := o.base.Write(batch); err != nil {
		return err
	}
	o.closed = true
	o.pending = nil
	o.journal = nil
	return nil
}

// Discard drops every buffered write.
func (o *Overlay) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.pending = nil
	o.journal = nil
}
