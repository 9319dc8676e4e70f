// Package auth authenticates lendingd requests signed with an account key.
// The recovered signer becomes the sender of the submitted transaction.
package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"frendlend/crypto"
)

const (
	// HeaderSigner optionally names the expected signer.
	HeaderSigner    = "X-Signer"
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"
	// HeaderSignature carries the hex 65 byte secp256k1 signature.
	HeaderSignature = "X-Signature"
	// MaxBodyForSignature bounds the body hashed into a signature.
	MaxBodyForSignature int = 1 << 20

	maxTimestampSkew   = 2 * time.Minute
	maxNonceTTL        = 10 * time.Minute
	nonceStorePruneGap = time.Minute
)

var (
	ErrMissingHeader  = errors.New("auth: missing signature header")
	ErrBodyTooLarge   = errors.New("auth: request body too large to sign")
	ErrStaleTimestamp = errors.New("auth: timestamp outside allowed skew")
	ErrBadSignature   = errors.New("auth: invalid signature")
	ErrSignerMismatch = errors.New("auth: signature does not match X-Signer")
	ErrNonceReplayed  = errors.New("auth: nonce already used")
)

// Principal is the account that signed a request.
type Principal struct {
	Address common.Address
}

// NonceRecord is one persisted nonce use.
type NonceRecord struct {
	Signer     string
	Timestamp  string
	Nonce      string
	ObservedAt time.Time
}

func (r NonceRecord) key() string {
	return compositeKey(r.Signer, r.Timestamp, r.Nonce)
}

// NoncePersistence keeps nonce use beyond the in-memory window.
type NoncePersistence interface {
	EnsureNonce(ctx context.Context, record NonceRecord) (bool, error)
	RecentNonces(ctx context.Context, cutoff time.Time) ([]NonceRecord, error)
	PruneNonces(ctx context.Context, cutoff time.Time) error
}

// Authenticator recovers the signer of a request and rejects replays.
type Authenticator struct {
	skew     time.Duration
	nonceTTL time.Duration
	now      func() time.Time
	nonces   *nonceCache
	store    NoncePersistence

	pruneMu    sync.Mutex
	lastPruned time.Time
}

// NewAuthenticator builds an Authenticator. Skew is capped at two minutes
// and the nonce window at ten; zero values take the caps. store may be nil.
func NewAuthenticator(skew, nonceTTL time.Duration, nonceCapacity int, now func() time.Time, store NoncePersistence) (*Authenticator, error) {
	if now == nil {
		now = time.Now
	}
	if skew <= 0 || skew > maxTimestampSkew {
		skew = maxTimestampSkew
	}
	if nonceTTL <= 0 || nonceTTL > maxNonceTTL {
		nonceTTL = maxNonceTTL
	}
	cache, err := newNonceCache(nonceTTL, nonceCapacity)
	if err != nil {
		return nil, err
	}
	return &Authenticator{skew: skew, nonceTTL: nonceTTL, now: now, nonces: cache, store: store}, nil
}

// envelope is the signature material carried in request headers.
type envelope struct {
	timestamp string
	nonce     string
	signature []byte
	claimed   string
}

func readEnvelope(h http.Header) (envelope, error) {
	env := envelope{
		timestamp: strings.TrimSpace(h.Get(HeaderTimestamp)),
		nonce:     strings.TrimSpace(h.Get(HeaderNonce)),
		claimed:   strings.TrimSpace(h.Get(HeaderSigner)),
	}
	rawSig := strings.TrimPrefix(strings.TrimSpace(h.Get(HeaderSignature)), "0x")
	for name, v := range map[string]string{HeaderTimestamp: env.timestamp, HeaderNonce: env.nonce, HeaderSignature: rawSig} {
		if v == "" {
			return env, fmt.Errorf("%w: %s", ErrMissingHeader, name)
		}
	}
	sig, err := hex.DecodeString(rawSig)
	if err != nil {
		return env, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	env.signature = sig
	return env, nil
}

// Authenticate checks the signature envelope on r against body and returns
// the signer. Each (signer, timestamp, nonce) is accepted once.
func (a *Authenticator) Authenticate(r *http.Request, body []byte) (*Principal, error) {
	if len(body) > MaxBodyForSignature {
		return nil, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, len(body))
	}
	env, err := readEnvelope(r.Header)
	if err != nil {
		return nil, err
	}
	secs, err := strconv.ParseInt(env.timestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp: %w", err)
	}
	now := a.now().UTC()
	if d := now.Sub(time.Unix(secs, 0)); d > a.skew || d < -a.skew {
		return nil, fmt.Errorf("%w of %s", ErrStaleTimestamp, a.skew)
	}

	digest := SigningDigest(env.timestamp, env.nonce, r.Method, CanonicalRequestPath(r), body)
	signer, err := crypto.RecoverAddress(digest, env.signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if env.claimed != "" {
		if expected, err := crypto.ParseAddress(env.claimed); err != nil || expected != signer {
			return nil, ErrSignerMismatch
		}
	}

	replayed, err := a.useNonce(r.Context(), NonceRecord{
		Signer:     signer.Hex(),
		Timestamp:  env.timestamp,
		Nonce:      env.nonce,
		ObservedAt: now,
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		return nil, ErrNonceReplayed
	}
	return &Principal{Address: signer}, nil
}

// HydrateNonces loads nonces persisted since cutoff into the cache.
func (a *Authenticator) HydrateNonces(ctx context.Context, cutoff time.Time) error {
	if a.store == nil {
		return nil
	}
	records, err := a.store.RecentNonces(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("load persistent nonces: %w", err)
	}
	for _, rec := range records {
		if rec.Signer == "" || rec.Timestamp == "" || rec.Nonce == "" {
			continue
		}
		at := rec.ObservedAt
		if at.IsZero() {
			at = cutoff
		}
		a.nonces.Add(rec.key(), at)
	}
	return nil
}

// useNonce records rec and reports whether it had been used before.
func (a *Authenticator) useNonce(ctx context.Context, rec NonceRecord) (bool, error) {
	key := rec.key()
	if a.nonces.Contains(key, rec.ObservedAt) {
		return true, nil
	}
	if a.store != nil {
		if err := a.prune(ctx, rec.ObservedAt); err != nil {
			return false, err
		}
		existed, err := a.store.EnsureNonce(ctx, rec)
		if err != nil {
			return false, fmt.Errorf("persist nonce: %w", err)
		}
		if existed {
			a.nonces.Add(key, rec.ObservedAt)
			return true, nil
		}
	}
	return a.nonces.Seen(key, rec.ObservedAt), nil
}

func (a *Authenticator) prune(ctx context.Context, now time.Time) error {
	a.pruneMu.Lock()
	defer a.pruneMu.Unlock()
	if !a.lastPruned.IsZero() && now.Sub(a.lastPruned) < nonceStorePruneGap {
		return nil
	}
	if err := a.store.PruneNonces(ctx, now.Add(-a.nonceTTL)); err != nil {
		return fmt.Errorf("prune persistent nonces: %w", err)
	}
	a.lastPruned = now
	return nil
}

func compositeKey(signer, timestamp, nonce string) string {
	return strings.ToLower(signer) + "|" + timestamp + "|" + nonce
}
