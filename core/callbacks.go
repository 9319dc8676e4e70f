package core

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"frendlend/native/lending"
	"frendlend/observability"
)

var ErrNoCallbackHandler = errors.New("executor: no handler registered for callback")

// CallbackCall describes one acceptance notification. Modules is the live
// transaction state, so handlers observe the accepted loan and may call back
// into the engines acting as Contract.
type CallbackCall struct {
	Modules  *Modules
	Contract common.Address
	Selector lending.Selector
	OfferID  uint64
	ClaimID  uint64
}

// CallbackFunc handles a notification. Returning an error fails the
// acceptance that triggered it.
type CallbackFunc func(call CallbackCall) error

type callbackKey struct {
	contract common.Address
	selector lending.Selector
}

// CallbackRegistry maps (contract, selector) pairs to in-process handlers.
// Registration is separate from the on-chain whitelist: a pair must be both
// whitelisted and registered for an acceptance to succeed.
type CallbackRegistry struct {
	mu       sync.RWMutex
	handlers map[callbackKey]CallbackFunc
}

func NewCallbackRegistry() *CallbackRegistry {
	return &CallbackRegistry{handlers: make(map[callbackKey]CallbackFunc)}
}

// Register installs fn for the pair, replacing any previous handler. A nil
// fn removes it.
func (r *CallbackRegistry) Register(contract common.Address, selector lending.Selector, fn CallbackFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := callbackKey{contract: contract, selector: selector}
	if fn == nil {
		delete(r.handlers, key)
		return
	}
	r.handlers[key] = fn
}

func (r *CallbackRegistry) lookup(contract common.Address, selector lending.Selector) CallbackFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[callbackKey{contract: contract, selector: selector}]
}

// dispatcher binds the registry to one transaction's modules.
type dispatcher struct {
	registry *CallbackRegistry
	mods     *Modules
	metrics  *observability.ExecutorMetrics
}

func (d *dispatcher) Notify(contract common.Address, selector lending.Selector, offerID, claimID uint64) error {
	fn := d.registry.lookup(contract, selector)
	var err error
	if fn == nil {
		err = fmt.Errorf("%w: %s %s", ErrNoCallbackHandler, contract.Hex(), selector)
	} else {
		err = fn(CallbackCall{Modules: d.mods, Contract: contract, Selector: selector, OfferID: offerID, ClaimID: claimID})
	}
	d.metrics.RecordCallback(err)
	return err
}
