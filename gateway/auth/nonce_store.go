package auth

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"frendlend/storage"
)

var (
	nonceByKeyPrefix  = []byte("auth/nonce/")
	nonceByTimePrefix = []byte("auth/seen/")
)

// NonceStore persists used nonces in a storage.Database so replays are
// refused across restarts.
//
// auth/nonce/<signer|ts|nonce> holds the observation time and
// auth/seen/<be64 nanos><signer|ts|nonce> orders entries for pruning.
type NonceStore struct {
	mu   sync.Mutex
	db   storage.Database
	owns bool
}

// NewNonceStore keeps nonces in db. The caller keeps ownership of db.
func NewNonceStore(db storage.Database) *NonceStore {
	return &NonceStore{db: db}
}

// OpenNonceStore opens a LevelDB directory dedicated to nonces.
func OpenNonceStore(path string) (*NonceStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("auth: nonce store path required")
	}
	db, err := storage.NewLevelDB(path)
	if err != nil {
		return nil, fmt.Errorf("auth: open nonce store: %w", err)
	}
	return &NonceStore{db: db, owns: true}, nil
}

// Close releases the database when the store opened it.
func (s *NonceStore) Close() error {
	if s.owns {
		s.db.Close()
	}
	return nil
}

// EnsureNonce records a nonce and reports whether it was already stored.
func (s *NonceStore) EnsureNonce(ctx context.Context, record NonceRecord) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if record.Signer == "" || record.Timestamp == "" || record.Nonce == "" {
		return false, errors.New("auth: nonce record incomplete")
	}
	observed := record.ObservedAt
	if observed.IsZero() {
		observed = time.Now()
	}
	composite := record.key()
	byKey := append(bytes.Clone(nonceByKeyPrefix), composite...)

	s.mu.Lock()
	defer s.mu.Unlock()
	prev, err := s.db.Get(byKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return false, fmt.Errorf("auth: load nonce: %w", err)
	case len(prev) == 8:
		return true, nil
	}
	batch := new(storage.Batch)
	batch.Put(byKey, be64(observed.UnixNano()))
	batch.Put(seenKey(observed.UnixNano(), composite), nil)
	if err := s.db.Write(batch); err != nil {
		return false, fmt.Errorf("auth: record nonce: %w", err)
	}
	return false, nil
}

// RecentNonces returns nonces observed at or after cutoff, oldest first.
func (s *NonceStore) RecentNonces(ctx context.Context, cutoff time.Time) ([]NonceRecord, error) {
	floor := cutoff.UnixNano()
	var records []NonceRecord
	err := s.db.Iterate(nonceByTimePrefix, func(key, _ []byte) bool {
		if ctx.Err() != nil {
			return false
		}
		nanos, composite, ok := parseSeenKey(key)
		if !ok || nanos < floor {
			return true
		}
		parts := strings.SplitN(composite, "|", 3)
		if len(parts) != 3 {
			return true
		}
		records = append(records, NonceRecord{
			Signer:     parts[0],
			Timestamp:  parts[1],
			Nonce:      parts[2],
			ObservedAt: time.Unix(0, nanos).UTC(),
		})
		return true
	})
	if err == nil {
		err = ctx.Err()
	}
	return records, err
}

// PruneNonces forgets nonces observed before cutoff.
func (s *NonceStore) PruneNonces(ctx context.Context, cutoff time.Time) error {
	ceiling := cutoff.UnixNano()
	batch := new(storage.Batch)

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.Iterate(nonceByTimePrefix, func(key, _ []byte) bool {
		if ctx.Err() != nil {
			return false
		}
		nanos, composite, ok := parseSeenKey(key)
		if !ok {
			return true
		}
		if nanos >= ceiling {
			return false
		}
		batch.Delete(key)
		batch.Delete(append(bytes.Clone(nonceByKeyPrefix), composite...))
		return true
	})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return err
	}
	return s.db.Write(batch)
}

func seenKey(nanos int64, composite string) []byte {
	key := append(bytes.Clone(nonceByTimePrefix), be64(nanos)...)
	return append(key, composite...)
}

func parseSeenKey(key []byte) (int64, string, bool) {
	rest := bytes.TrimPrefix(key, nonceByTimePrefix)
	if len(rest) < 8 {
		return 0, "", false
	}
	return int64(binary.BigEndian.Uint64(rest[:8])), string(rest[8:]), true
}

func be64(v int64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, uint64(v))
	return out
}
