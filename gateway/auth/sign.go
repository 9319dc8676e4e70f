package auth

import (
	"encoding/hex"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"frendlend/crypto"
)

// CanonicalRequestPath is the path plus sorted query a signature covers.
func CanonicalRequestPath(r *http.Request) string {
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	if q := CanonicalQuery(r.URL.RawQuery); q != "" {
		path += "?" + q
	}
	return path
}

// CanonicalQuery sorts the raw query parameters.
func CanonicalQuery(raw string) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "&")
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

// SigningDigest is keccak256 over the newline joined timestamp, nonce,
// method, canonical path and body.
func SigningDigest(timestamp, nonce, method, path string, body []byte) []byte {
	var b strings.Builder
	b.Grow(len(timestamp) + len(nonce) + len(method) + len(path) + len(body) + 4)
	for _, part := range []string{timestamp, nonce, strings.ToUpper(method), path} {
		b.WriteString(part)
		b.WriteByte('\n')
	}
	b.Write(body)
	return crypto.Keccak256([]byte(b.String()))
}

// SignRequest sets the signature headers on req. body must be the exact
// bytes sent.
func SignRequest(req *http.Request, key *crypto.PrivateKey, body []byte, ts time.Time, nonce string) error {
	timestamp := strconv.FormatInt(ts.Unix(), 10)
	sig, err := key.Sign(SigningDigest(timestamp, nonce, req.Method, CanonicalRequestPath(req), body))
	if err != nil {
		return err
	}
	req.Header.Set(HeaderSigner, key.Address().Hex())
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderNonce, nonce)
	req.Header.Set(HeaderSignature, "0x"+hex.EncodeToString(sig))
	return nil
}
