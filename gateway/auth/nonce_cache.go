package auth

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultNonceCapacity = 4096
	maxNonceCapacity     = 65536
)

// nonceCache remembers nonces used within ttl. The LRU bounds memory when
// the window is busy; an evicted nonce falls back to the persistent store.
type nonceCache struct {
	ttl   time.Duration
	mu    sync.Mutex
	cache *lru.Cache[string, time.Time]
}

func newNonceCache(ttl time.Duration, capacity int) (*nonceCache, error) {
	if ttl <= 0 {
		ttl = maxNonceTTL
	}
	if capacity <= 0 {
		capacity = defaultNonceCapacity
	}
	capacity = min(capacity, maxNonceCapacity)
	cache, err := lru.New[string, time.Time](capacity)
	if err != nil {
		return nil, err
	}
	return &nonceCache{ttl: ttl, cache: cache}, nil
}

// Seen reports whether key is live and records it when it is not.
func (n *nonceCache) Seen(key string, now time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.live(key, now) {
		return true
	}
	n.cache.Add(key, now)
	return false
}

func (n *nonceCache) Contains(key string, now time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.live(key, now)
}

func (n *nonceCache) Add(key string, at time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cache.Add(key, at)
}

func (n *nonceCache) Len() int { return n.cache.Len() }

func (n *nonceCache) live(key string, now time.Time) bool {
	at, ok := n.cache.Peek(key)
	if !ok {
		return false
	}
	if now.Sub(at) > n.ttl {
		n.cache.Remove(key)
		return false
	}
	return true
}
