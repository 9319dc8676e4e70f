package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// AuthConfig configures the optional bearer token gate in front of the
// lendingd admin routes.
type AuthConfig struct {
	Enabled    bool
	HMACSecret string
	Issuer     string
	Audience   string
	// ScopeClaim names the claim holding granted scopes, either a space
	// separated string or an array. Defaults to "scope".
	ScopeClaim     string
	OptionalPaths  []string
	AllowAnonymous bool
	ClockSkew      time.Duration
}

type scopesKey struct{}

// Authenticator validates HS256/384/512 JWTs and the scopes they grant.
type Authenticator struct {
	enabled    bool
	anonymous  bool
	optional   []string
	scopeClaim string
	secret     []byte
	parser     *jwt.Parser
	logger     *slog.Logger
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = 2 * time.Minute
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(skew),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	claim := strings.TrimSpace(cfg.ScopeClaim)
	if claim == "" {
		claim = "scope"
	}
	return &Authenticator{
		enabled:    cfg.Enabled,
		anonymous:  cfg.AllowAnonymous,
		optional:   cfg.OptionalPaths,
		scopeClaim: claim,
		secret:     []byte(strings.TrimSpace(cfg.HMACSecret)),
		parser:     jwt.NewParser(opts...),
		logger:     logger,
	}
}

// Middleware rejects requests without a valid token carrying every scope in
// required. Missing or invalid tokens get 401, missing scopes 403.
func (a *Authenticator) Middleware(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.enabled || (a.anonymous && a.isOptional(r.URL.Path)) {
				next.ServeHTTP(w, r)
				return
			}
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
				return
			}
			scopes, err := a.verify(raw)
			if err != nil {
				a.logger.Warn("bearer token rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
				writeAuthError(w, http.StatusUnauthorized, "unauthenticated", "invalid bearer token")
				return
			}
			if missing := missingScope(scopes, required); missing != "" {
				writeAuthError(w, http.StatusForbidden, "forbidden", "token lacks scope "+missing)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), scopesKey{}, scopes)))
		})
	}
}

func (a *Authenticator) verify(raw string) ([]string, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("jwt secret not configured")
	}
	claims := jwt.MapClaims{}
	if _, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}); err != nil {
		return nil, err
	}
	return scopesOf(claims[a.scopeClaim]), nil
}

func (a *Authenticator) isOptional(path string) bool {
	for _, prefix := range a.optional {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func scopesOf(raw any) []string {
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// missingScope returns the first required scope not granted, or "".
func missingScope(granted, required []string) string {
	for _, want := range required {
		found := false
		for _, have := range granted {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return want
		}
	}
	return ""
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="lendingd"`)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "message": message})
}

// ScopesFromContext returns the scopes granted to the request's token.
func ScopesFromContext(ctx context.Context) []string {
	scopes, _ := ctx.Value(scopesKey{}).([]string)
	return scopes
}
