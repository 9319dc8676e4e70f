package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"frendlend/core"
	"frendlend/core/events"
	"frendlend/core/types"
	"frendlend/gateway/auth"
	"frendlend/gateway/middleware"
	"frendlend/observability"
	"frendlend/services/lendingd/indexer"
)

const HeaderRequestID = "X-Request-ID"

type contextKey string

const requestIDKey contextKey = "lendingd.request_id"

// Config wires the server to its collaborators. Executor and Signatures are
// required; everything else is optional.
type Config struct {
	Executor      *core.Executor
	Signatures    *auth.Authenticator
	JWT           *middleware.Authenticator
	AdminScope    string
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          *middleware.CORSConfig
	Indexer       *indexer.Indexer
	ExportDir     string
	Stream        http.Handler
	Metrics       http.Handler
	Logger        *slog.Logger
}

// Server exposes the lending, claims and token modules over HTTP+JSON.
// Mutating routes take a signed request whose signer becomes the sender.
type Server struct {
	exec    *core.Executor
	sigs    *auth.Authenticator
	indexer   *indexer.Indexer
	exportDir string
	logger    *slog.Logger
	router    http.Handler
}

func New(cfg Config) (*Server, error) {
	if cfg.Executor == nil {
		return nil, errors.New("server: executor required")
	}
	if cfg.Signatures == nil {
		return nil, errors.New("server: signature authenticator required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.AdminScope == "" {
		cfg.AdminScope = "lending:admin"
	}
	s := &Server{
		exec:      cfg.Executor,
		sigs:      cfg.Signatures,
		indexer:   cfg.Indexer,
		exportDir: cfg.ExportDir,
		logger:    cfg.Logger,
	}
	s.router = s.buildRouter(cfg)
	return s, nil
}

// Handler exposes the configured router with server-side tracing.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "lendingd")
}

func (s *Server) buildRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(withRequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.CORS != nil {
		r.Use(middleware.CORS(*cfg.CORS))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	if cfg.Stream != nil {
		r.Handle("/v1/stream", cfg.Stream)
	}

	if cfg.RateLimiter != nil {
		cfg.RateLimiter.OnLimit(func(key string) {
			observability.API().RecordThrottle(key, "rate_limit")
		})
	}

	group := func(name string, scopes []string, mount func(chi.Router)) {
		r.Group(func(g chi.Router) {
			if cfg.RateLimiter != nil {
				g.Use(cfg.RateLimiter.Middleware(name))
			}
			if cfg.JWT != nil && scopes != nil {
				g.Use(cfg.JWT.Middleware(scopes...))
			}
			if cfg.Observability != nil {
				g.Use(cfg.Observability.Middleware(name))
			}
			mount(g)
		})
	}

	group("views", nil, func(g chi.Router) {
		g.Get("/v1/offers/count", s.handleOfferCount)
		g.Get("/v1/offers/{id}", s.handleGetOffer)
		g.Get("/v1/loans/{claimID}", s.handleGetLoan)
		g.Get("/v1/loans/{claimID}/due", s.handleAmountDue)
		g.Get("/v1/claims/{id}", s.handleGetClaim)
		g.Get("/v1/claims/approvals/{owner}/{operator}", s.handleClaimApproval)
		g.Get("/v1/accounts/{account}/core-fee", s.handleRequiredCoreFee)
		g.Get("/v1/fees", s.handleFees)
		g.Get("/v1/fees/tokens/{token}", s.handleFeeToken)
		g.Get("/v1/callbacks/{contract}/{selector}", s.handleCallbackStatus)
		g.Get("/v1/interfaces/{id}", s.handleSupportsInterface)
		g.Get("/v1/tokens/{token}/balances/{owner}", s.handleBalance)
		g.Get("/v1/tokens/{token}/allowances/{owner}/{spender}", s.handleAllowance)
		g.Get("/v1/index/events", s.handleIndexedEvents)
		g.Get("/v1/index/loans/{claimID}", s.handleIndexedLoan)
		g.Get("/v1/index/accounts/{account}/loans", s.handleIndexedAccountLoans)
	})

	group("offers", nil, func(g chi.Router) {
		g.Post("/v1/offers", s.signed(s.handleOfferLoan))
		g.Post("/v1/offers/{id}/reject", s.signed(s.handleRejectOffer))
		g.Post("/v1/offers/{id}/accept", s.signed(s.handleAcceptOffer))
		g.Post("/v1/offers/accept-batch", s.signed(s.handleBatchAccept))
		g.Post("/v1/batch", s.signed(s.handleBatch))
	})

	group("loans", nil, func(g chi.Router) {
		g.Post("/v1/loans/{claimID}/pay", s.signed(s.handlePayLoan))
		g.Post("/v1/loans/{claimID}/impair", s.signed(s.handleImpairLoan))
		g.Post("/v1/loans/{claimID}/mark-paid", s.signed(s.handleMarkPaid))
		g.Post("/v1/tokens/{token}/approve", s.signed(s.handleApproveToken))
		g.Post("/v1/claims/approvals", s.signed(s.handleApproveClaims))
		g.Post("/v1/claims/permit", s.signed(s.handlePermit))
	})

	group("admin", []string{cfg.AdminScope}, func(g chi.Router) {
		g.Post("/v1/admin/lending/admin", s.signed(s.handleSetLendingAdmin))
		g.Post("/v1/admin/lending/protocol-fee", s.signed(s.handleSetProtocolFee))
		g.Post("/v1/admin/lending/processing-fee", s.signed(s.handleSetProcessingFee))
		g.Post("/v1/admin/lending/withdraw-fees", s.signed(s.handleWithdrawFees))
		g.Post("/v1/admin/lending/fee-tokens/whitelist", s.signed(s.handleFeeTokenWhitelist))
		g.Post("/v1/admin/lending/fee-tokens/blacklist", s.signed(s.handleFeeTokenBlacklist))
		g.Post("/v1/admin/lending/callbacks", s.signed(s.handleCallbackWhitelist))
		g.Post("/v1/admin/claims/admin", s.signed(s.handleSetClaimsAdmin))
		g.Post("/v1/admin/claims/core-fee", s.signed(s.handleSetCoreFee))
		g.Post("/v1/admin/claims/withdraw-core-fees", s.signed(s.handleWithdrawCoreFees))
		g.Post("/v1/admin/claims/exemptions", s.signed(s.handleSetExemption))
		g.Post("/v1/admin/export", s.signed(s.handleExport))
	})
	return r
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// RequestID returns the id assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

type signedHandler func(w http.ResponseWriter, r *http.Request, sender common.Address, body []byte)

// signed authenticates the request signature and hands the verified body
// and signer to h.
func (s *Server) signed(h signedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, int64(auth.MaxBodyForSignature)+1))
		if err != nil {
			s.writeError(w, r, badRequest("read body: %v", err))
			return
		}
		principal, err := s.sigs.Authenticate(r, body)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		h(w, r, principal.Address, body)
	}
}

// txResponse is returned by every mutating route.
type txResponse struct {
	RequestID string         `json:"requestId"`
	Sender    common.Address `json:"sender"`
	Result    any            `json:"result,omitempty"`
	Events    []*types.Event `json:"events"`
}

// execute runs fn as one transaction and writes its result and events.
func (s *Server) execute(w http.ResponseWriter, r *http.Request, msg core.Message, fn func(*core.Modules) (any, error)) {
	start := time.Now()
	var result any
	evts, err := s.exec.Execute(r.Context(), msg, func(m *core.Modules) error {
		var err error
		result, err = fn(m)
		return err
	})
	module, method := splitOperation(msg.Operation)
	if err != nil {
		observability.API().Observe(module, method, classify(err).status, time.Since(start))
		s.writeError(w, r, err)
		return
	}
	observability.API().Observe(module, method, http.StatusOK, time.Since(start))
	rendered := make([]*types.Event, 0, len(evts))
	for _, evt := range evts {
		rendered = append(rendered, events.ToEvent(evt))
	}
	writeJSON(w, http.StatusOK, txResponse{
		RequestID: RequestID(r.Context()),
		Sender:    msg.From,
		Result:    result,
		Events:    rendered,
	})
}

// view runs fn read-only and writes its result.
func (s *Server) view(w http.ResponseWriter, r *http.Request, fn func(*core.Modules) (any, error)) {
	var result any
	err := s.exec.View(func(m *core.Modules) error {
		var err error
		result, err = fn(m)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// splitOperation maps "claims.setAdmin" to (claims, setAdmin). Unprefixed
// operations belong to the lending module.
func splitOperation(op string) (string, string) {
	if module, method, ok := strings.Cut(op, "."); ok {
		return module, method
	}
	return "lending", op
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(body []byte, dst any) error {
	if len(body) == 0 {
		return badRequest("request body required")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid payload: %v", err)
	}
	return nil
}

func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, badRequest("%s: invalid amount %q", field, raw)
	}
	return v, nil
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func pathError(name string, err error) error {
	return badRequest("%s: %v", name, err)
}

func chiParam(r *http.Request, name string) string {
	return strings.TrimSpace(chi.URLParam(r, name))
}
