package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"frendlend/core/events"
	"frendlend/core/state"
	"frendlend/native/claims"
	nativecommon "frendlend/native/common"
	"frendlend/native/lending"
	"frendlend/native/token"
	"frendlend/observability"
	"frendlend/storage"
)

var (
	ErrNilDatabase     = errors.New("executor: database required")
	ErrValueNoReceiver = errors.New("executor: value attached without a receiver")
)

// Message is the envelope of a transaction: who sends it, which module
// receives the attached native value and how much.
type Message struct {
	From      common.Address
	To        common.Address
	Value     *big.Int
	Operation string
}

// Modules are the engines bound to one transaction's state.
type Modules struct {
	State   *state.Manager
	Tokens  *token.Ledger
	Claims  *claims.Engine
	Lending *lending.Engine
}

// Executor serializes transactions against the database. Each transaction
// runs on its own overlay and either commits every write and event or none.
type Executor struct {
	mu        sync.RWMutex
	db        storage.Database
	pauses    nativecommon.PauseView
	nowFn     func() int64
	emitter   events.Emitter
	logger    *slog.Logger
	metrics   *observability.ExecutorMetrics
	callbacks *CallbackRegistry
}

// NewExecutor wraps db. Committed events are dropped until SetEmitter is
// called.
func NewExecutor(db storage.Database) (*Executor, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}
	return &Executor{
		db:        db,
		nowFn:     func() int64 { return time.Now().Unix() },
		emitter:   events.NoopEmitter{},
		logger:    slog.Default(),
		callbacks: NewCallbackRegistry(),
	}, nil
}

func (x *Executor) SetPauses(p nativecommon.PauseView) { x.pauses = p }

// SetNowFunc overrides the block time source. Intended for tests.
func (x *Executor) SetNowFunc(now func() int64) {
	if now == nil {
		x.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	x.nowFn = now
}

// SetEmitter configures where committed events are published.
func (x *Executor) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		x.emitter = events.NoopEmitter{}
		return
	}
	x.emitter = emitter
}

func (x *Executor) SetLogger(logger *slog.Logger) {
	if logger != nil {
		x.logger = logger
	}
}

func (x *Executor) SetMetrics(m *observability.ExecutorMetrics) { x.metrics = m }

// Callbacks returns the registry of acceptance callback handlers.
func (x *Executor) Callbacks() *CallbackRegistry { return x.callbacks }

// Now returns the executor's current block time.
func (x *Executor) Now() int64 { return x.nowFn() }

func (x *Executor) bind(db *storage.Overlay, rec *events.Recorder) *Modules {
	mgr := state.NewManager(db)
	mgr.SetEventJournal(rec)
	now := x.nowFn()
	nowFn := func() int64 { return now }

	tokens := token.NewLedger()
	tokens.SetState(mgr)
	tokens.SetEmitter(rec)
	tokens.SetPauses(x.pauses)

	claimsEngine := claims.NewEngine()
	claimsEngine.SetState(mgr)
	claimsEngine.SetTokenLedger(tokens)
	claimsEngine.SetEmitter(rec)
	claimsEngine.SetPauses(x.pauses)
	claimsEngine.SetNowFunc(nowFn)

	mods := &Modules{State: mgr, Tokens: tokens, Claims: claimsEngine}

	lendingEngine := lending.NewEngine()
	lendingEngine.SetState(mgr)
	lendingEngine.SetClaimLedger(claimsEngine)
	lendingEngine.SetTokenLedger(tokens)
	lendingEngine.SetEmitter(rec)
	lendingEngine.SetPauses(x.pauses)
	lendingEngine.SetNowFunc(nowFn)
	lendingEngine.SetCallbackDispatcher(&dispatcher{registry: x.callbacks, mods: mods, metrics: x.metrics})
	mods.Lending = lendingEngine
	return mods
}

// Execute runs fn as one transaction. msg.Value is moved from msg.From to
// msg.To before fn runs. On success the overlay is committed and the events
// fn produced are published and returned; on error nothing is persisted.
func (x *Executor) Execute(ctx context.Context, msg Message, fn func(*Modules) error) ([]events.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	x.mu.Lock()
	defer x.mu.Unlock()

	evts, err := x.execute(msg, fn)
	x.metrics.Observe(msg.Operation, time.Since(start), err)
	if err != nil {
		x.logger.Debug("transaction reverted",
			slog.String("operation", msg.Operation),
			slog.String("from", msg.From.Hex()),
			slog.String("error", err.Error()))
		return nil, err
	}
	for _, evt := range evts {
		x.emitter.Emit(evt)
	}
	return evts, nil
}

func (x *Executor) execute(msg Message, fn func(*Modules) error) ([]events.Event, error) {
	overlay := storage.NewOverlay(x.db)
	rec := &events.Recorder{}
	mods := x.bind(overlay, rec)

	if msg.Value != nil && msg.Value.Sign() != 0 {
		if msg.To == (common.Address{}) {
			overlay.Discard()
			return nil, ErrValueNoReceiver
		}
		if err := mods.Tokens.Transfer(token.Native, msg.From, msg.To, msg.Value); err != nil {
			overlay.Discard()
			return nil, fmt.Errorf("attach value: %w", err)
		}
	}
	if err := fn(mods); err != nil {
		overlay.Discard()
		return nil, err
	}
	if err := overlay.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return rec.Events(), nil
}

// View runs fn against the current state. Writes made by fn are discarded.
func (x *Executor) View(fn func(*Modules) error) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	overlay := storage.NewOverlay(x.db)
	defer overlay.Discard()
	return fn(x.bind(overlay, &events.Recorder{}))
}
