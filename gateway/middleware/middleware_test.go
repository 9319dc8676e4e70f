package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthenticatorScopes(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{
		Enabled:        true,
		HMACSecret:     "s3cret",
		Issuer:         "frendlend",
		Audience:       "lendingd",
		OptionalPaths:  []string{"/v1/offers/"},
		AllowAnonymous: true,
	}, nil)
	var scopes []string
	handler := auth.Middleware("lending:admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scopes = ScopesFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	do := func(path, token string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		return res.Code
	}
	exp := time.Now().Add(time.Hour).Unix()

	require.Equal(t, http.StatusUnauthorized, do("/v1/admin/fees", ""))
	require.Equal(t, http.StatusOK, do("/v1/offers/1", ""), "optional path allows anonymous")

	good := signToken(t, "s3cret", jwt.MapClaims{"iss": "frendlend", "aud": "lendingd", "exp": exp, "scope": "lending:admin lending:read"})
	require.Equal(t, http.StatusOK, do("/v1/admin/fees", good))
	require.Equal(t, []string{"lending:admin", "lending:read"}, scopes)

	narrow := signToken(t, "s3cret", jwt.MapClaims{"iss": "frendlend", "aud": []any{"lendingd"}, "exp": exp, "scope": []any{"lending:read"}})
	require.Equal(t, http.StatusForbidden, do("/v1/admin/fees", narrow))

	wrongIssuer := signToken(t, "s3cret", jwt.MapClaims{"iss": "other", "aud": "lendingd", "exp": exp})
	require.Equal(t, http.StatusUnauthorized, do("/v1/admin/fees", wrongIssuer))

	expired := signToken(t, "s3cret", jwt.MapClaims{"iss": "frendlend", "aud": "lendingd", "exp": time.Now().Add(-time.Hour).Unix(), "scope": "lending:admin"})
	require.Equal(t, http.StatusUnauthorized, do("/v1/admin/fees", expired))

	forged := signToken(t, "other", jwt.MapClaims{"iss": "frendlend", "aud": "lendingd", "exp": exp, "scope": "lending:admin"})
	require.Equal(t, http.StatusUnauthorized, do("/v1/admin/fees", forged))
}

func TestAuthenticatorDisabledPassesThrough(t *testing.T) {
	handler := NewAuthenticator(AuthConfig{}, nil).Middleware("lending:admin")(okHandler())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/admin/fees", nil))
	require.Equal(t, http.StatusOK, res.Code)
}

func TestObservabilityCountsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewObservability(ObservabilityConfig{Enabled: true, MetricsPrefix: "test"}, reg, nil)
	handler := obs.Middleware("offers.create")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/offers", nil))
	require.Equal(t, 1.0, testutil.ToFloat64(obs.requests.WithLabelValues("offers.create", http.MethodPost, "409")))
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"https://app.frendlend.test"}})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/v1/offers", nil)
	req.Header.Set("Origin", "https://app.frendlend.test")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusNoContent, res.Code)
	require.Equal(t, "https://app.frendlend.test", res.Header().Get("Access-Control-Allow-Origin"))
	require.True(t, strings.Contains(res.Header().Get("Access-Control-Allow-Headers"), "X-Signature"))

	req = httptest.NewRequest(http.MethodGet, "/v1/offers", nil)
	req.Header.Set("Origin", "https://evil.test")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	require.Empty(t, res.Header().Get("Access-Control-Allow-Origin"))
}
