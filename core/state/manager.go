// Package state persists lending, claims and token records as RLP values
// in a storage.Overlay. Nothing reaches the base database until the
// overlay commits.
package state

import (
	"errors"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"frendlend/storage"
)

var (
	errNilManager = errors.New("state: manager unavailable")
	errEmptyKey   = errors.New("state: empty key")
)

// EventJournal is the event buffer of the running transaction. Reverting a
// snapshot drops events emitted after it.
type EventJournal interface {
	Len() int
	Truncate(n int)
}

type revision struct {
	kv     int
	events int
}

// Manager reads and writes module records. Logical keys are hashed with
// keccak256 before they reach the overlay.
type Manager struct {
	db        *storage.Overlay
	journal   EventJournal
	revisions []revision
}

func NewManager(db *storage.Overlay) *Manager {
	return &Manager{db: db}
}

func (m *Manager) SetEventJournal(j EventJournal) { m.journal = j }

// Snapshot marks the current writes and events. Pass the id to
// RevertToSnapshot to undo everything after it.
func (m *Manager) Snapshot() int {
	rev := revision{kv: m.db.Snapshot()}
	if m.journal != nil {
		rev.events = m.journal.Len()
	}
	m.revisions = append(m.revisions, rev)
	return len(m.revisions) - 1
}

// RevertToSnapshot invalidates id and every later snapshot. Unknown ids are
// ignored.
func (m *Manager) RevertToSnapshot(id int) {
	if id < 0 || id >= len(m.revisions) {
		return
	}
	rev := m.revisions[id]
	m.db.RevertToSnapshot(rev.kv)
	if m.journal != nil {
		m.journal.Truncate(rev.events)
	}
	m.revisions = m.revisions[:id]
}

func (m *Manager) raw(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, errEmptyKey
	}
	if m == nil || m.db == nil {
		return nil, errNilManager
	}
	data, err := m.db.Get(ethcrypto.Keccak256(key))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

// KVPut RLP-encodes value under key.
func (m *Manager) KVPut(key []byte, value any) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	if m == nil || m.db == nil {
		return errNilManager
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(ethcrypto.Keccak256(key), encoded)
}

// KVGet decodes the value under key into out and reports whether it was
// present. A nil out only checks presence.
func (m *Manager) KVGet(key []byte, out any) (bool, error) {
	data, err := m.raw(key)
	if err != nil || len(data) == 0 {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	return true, rlp.DecodeBytes(data, out)
}

func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	if m == nil || m.db == nil {
		return errNilManager
	}
	return m.db.Delete(ethcrypto.Keccak256(key))
}

// loadList decodes the list under key. A missing key yields an empty,
// non-nil slice.
func loadList[T any](m *Manager, key []byte) ([]T, error) {
	out := []T{}
	if _, err := m.KVGet(key, &out); err != nil {
		return nil, err
	}
	return out, nil
}
