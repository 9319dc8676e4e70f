package lending

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"frendlend/core/events"
	"frendlend/crypto"
	"frendlend/native/claims"
	nativecommon "frendlend/native/common"
	"frendlend/native/token"
)

var (
	errNilState  = errors.New("lending engine: state not configured")
	errNilClaims = errors.New("lending engine: claims ledger not configured")
	errNilTokens = errors.New("lending engine: token ledger not configured")

	ErrLoanOfferExpired       = errors.New("lending engine: loan offer expired")
	ErrLoanOfferNotFound      = errors.New("lending engine: loan offer not found")
	ErrCallbackNotWhitelisted = errors.New("lending engine: callback not whitelisted")
	ErrIncorrectFee           = errors.New("lending engine: incorrect fee")
	ErrBatchFeeMismatch       = errors.New("lending engine: batch fee mismatch")
	ErrInvalidProtocolFee     = errors.New("lending engine: invalid protocol fee")
	ErrNotAdmin               = errors.New("lending engine: caller is not admin")
	ErrCallbackFailed         = errors.New("lending engine: callback failed")
	ErrNotOfferor             = errors.New("lending engine: caller did not make the offer")
	ErrNotCounterparty        = errors.New("lending engine: caller is not the counterparty")
	ErrNotCreditor            = errors.New("lending engine: caller is not the creditor")
	ErrNotCreditorOrDebtor    = errors.New("lending engine: caller is neither creditor nor debtor")
	ErrInvalidLoanParams      = errors.New("lending engine: invalid loan parameters")
	ErrInvalidReceiver        = errors.New("lending engine: invalid receiver")
	ErrLoanNotFound           = errors.New("lending engine: loan not found")
	ErrLoanNotActive          = errors.New("lending engine: loan is not active")
	ErrStillInGracePeriod     = errors.New("lending engine: loan still in grace period")
	ErrInvalidPaymentAmount   = errors.New("lending engine: payment amount must be positive")
)

const moduleName = "lending"

// MaxDuration caps TermLength and ImpairmentGracePeriod at 100 years of
// seconds so due dates and grace deadlines stay inside int64.
const MaxDuration int64 = 100 * 365 * 24 * 60 * 60

type engineState interface {
	LendingSettings() (*Settings, error)
	PutLendingSettings(settings *Settings) error
	LoanOfferGet(id uint64) (*LoanOffer, bool, error)
	LoanOfferPut(id uint64, offer *LoanOffer) error
	LoanOfferDelete(id uint64) error
	LoanOfferMetadataGet(id uint64) (*LoanOfferMetadata, bool, error)
	LoanOfferMetadataPut(id uint64, meta *LoanOfferMetadata) error
	LoanOfferMetadataDelete(id uint64) error
	LoanGet(claimID uint64) (*Loan, bool, error)
	LoanPut(loan *Loan) error
	ProtocolFeeBalance(tok common.Address) (*big.Int, error)
	SetProtocolFeeBalance(tok common.Address, amount *big.Int) error
	ProtocolFeeTokens() ([]common.Address, error)
	SetProtocolFeeTokens(tokens []common.Address) error
	FeeTokenBlacklisted(tok common.Address) (bool, error)
	SetFeeTokenBlacklisted(tok common.Address, blacklisted bool) error
	FeeTokenWhitelisted(tok common.Address) (bool, error)
	SetFeeTokenWhitelisted(tok common.Address, whitelisted bool) error
	CallbackWhitelisted(contract common.Address, selector Selector) (bool, error)
	SetCallbackWhitelisted(contract common.Address, selector Selector, whitelisted bool) error
	Snapshot() int
	RevertToSnapshot(rev int)
}

// ClaimLedger is the claims module surface the engine depends on.
type ClaimLedger interface {
	CreateClaimFrom(operator, from common.Address, params claims.CreateParams) (uint64, error)
	GetClaim(id uint64) (*claims.Claim, error)
	RecordPayment(caller common.Address, id uint64, amount *big.Int) (*claims.Claim, error)
	MarkAsPaid(caller common.Address, id uint64) error
	Impair(caller common.Address, id uint64) error
	CoreFee() (*big.Int, error)
	IsAllowed(account common.Address) (bool, error)
}

// TokenLedger moves loan principal, repayments and fees.
type TokenLedger interface {
	Transfer(tok, from, to common.Address, amount *big.Int) error
	TransferFrom(tok, spender, from, to common.Address, amount *big.Int) error
}

// CallbackDispatcher delivers the post-acceptance notification to a
// whitelisted (contract, selector) pair.
type CallbackDispatcher interface {
	Notify(contract common.Address, selector Selector, offerID, claimID uint64) error
}

// Engine orchestrates the loan offer lifecycle, fee accounting and
// repayment settlement.
type Engine struct {
	state         engineState
	claims        ClaimLedger
	tokens        TokenLedger
	callbacks     CallbackDispatcher
	emitter       events.Emitter
	pauses        nativecommon.PauseView
	nowFn         func() int64
	moduleAddress common.Address
}

// NewEngine creates a lending engine with a no-op emitter and the wall clock.
func NewEngine() *Engine {
	return &Engine{
		emitter:       events.NoopEmitter{},
		nowFn:         func() int64 { return time.Now().Unix() },
		moduleAddress: ModuleAddress(),
	}
}

// ModuleAddress returns the account that holds collected protocol fees.
func ModuleAddress() common.Address { return crypto.ModuleAddress(moduleName) }

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetClaimLedger(ledger ClaimLedger) { e.claims = ledger }

func (e *Engine) SetTokenLedger(tokens TokenLedger) { e.tokens = tokens }

// SetCallbackDispatcher configures how whitelisted callbacks are invoked.
func (e *Engine) SetCallbackDispatcher(d CallbackDispatcher) { e.callbacks = d }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case e.claims == nil:
		return errNilClaims
	case e.tokens == nil:
		return errNilTokens
	}
	return nil
}

func (e *Engine) mutable() error {
	if err := e.ready(); err != nil {
		return err
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

func (e *Engine) settings() (*Settings, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	s, err := e.state.LendingSettings()
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// OfferLoan stores a new offer and returns its id. The caller must be one of
// the two parties; an offer posted by the creditor waits for the debtor and
// vice versa.
func (e *Engine) OfferLoan(caller common.Address, params LoanRequestParams) (uint64, error) {
	return e.offerLoan(caller, params, nil)
}

// OfferLoanWithMetadata behaves like OfferLoan and also stores metadata under
// the same id.
func (e *Engine) OfferLoanWithMetadata(caller common.Address, params LoanRequestParams, meta LoanOfferMetadata) (uint64, error) {
	return e.offerLoan(caller, params, &meta)
}

func (e *Engine) offerLoan(caller common.Address, params LoanRequestParams, meta *LoanOfferMetadata) (uint64, error) {
	if err := e.mutable(); err != nil {
		return 0, err
	}
	if params.ExpiresAt != 0 && params.ExpiresAt <= e.now() {
		return 0, ErrLoanOfferExpired
	}
	if params.HasCallback() {
		ok, err := e.state.CallbackWhitelisted(params.CallbackContract, params.CallbackSelector)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, ErrCallbackNotWhitelisted
		}
	}
	if err := validateParams(params); err != nil {
		return 0, err
	}
	if caller != params.Creditor && caller != params.Debtor {
		return 0, ErrNotCreditorOrDebtor
	}

	s, err := e.settings()
	if err != nil {
		return 0, err
	}
	id := s.LoanOfferCount
	offer := &LoanOffer{
		Params:              params.Clone(),
		RequestedByCreditor: caller == params.Creditor,
	}
	offer.Params.Description = strings.TrimSpace(offer.Params.Description)
	if err := e.state.LoanOfferPut(id, offer); err != nil {
		return 0, err
	}
	if meta != nil {
		if err := e.state.LoanOfferMetadataPut(id, meta); err != nil {
			return 0, err
		}
	}
	s.LoanOfferCount = id + 1
	if err := e.state.PutLendingSettings(s); err != nil {
		return 0, err
	}
	e.emit(events.LoanOfferCreated{
		OfferID:             id,
		Creditor:            params.Creditor,
		Debtor:              params.Debtor,
		Token:               params.Token,
		Amount:              cloneBigInt(params.LoanAmount),
		RequestedByCreditor: offer.RequestedByCreditor,
		ExpiresAt:           params.ExpiresAt,
	})
	return id, nil
}

func validateParams(p LoanRequestParams) error {
	zero := common.Address{}
	switch {
	case p.LoanAmount == nil || p.LoanAmount.Sign() <= 0:
		return fmt.Errorf("%w: loan amount must be positive", ErrInvalidLoanParams)
	case p.Creditor == zero || p.Debtor == zero:
		return fmt.Errorf("%w: creditor and debtor required", ErrInvalidLoanParams)
	case p.Creditor == p.Debtor:
		return fmt.Errorf("%w: creditor equals debtor", ErrInvalidLoanParams)
	case p.Token == zero:
		return fmt.Errorf("%w: token required", ErrInvalidLoanParams)
	case p.TermLength <= 0:
		return fmt.Errorf("%w: term length must be positive", ErrInvalidLoanParams)
	case p.ImpairmentGracePeriod < 0 || p.ExpiresAt < 0:
		return fmt.Errorf("%w: negative duration", ErrInvalidLoanParams)
	case p.TermLength > MaxDuration:
		return fmt.Errorf("%w: term length exceeds %d seconds", ErrInvalidLoanParams, MaxDuration)
	case p.ImpairmentGracePeriod > MaxDuration:
		return fmt.Errorf("%w: grace period exceeds %d seconds", ErrInvalidLoanParams, MaxDuration)
	}
	if err := token.CheckAmount(p.LoanAmount); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLoanParams, err)
	}
	return nil
}

// RejectLoanOffer deletes an offer. Only the party that posted it may do so,
// and expiry does not matter.
func (e *Engine) RejectLoanOffer(caller common.Address, offerID uint64) error {
	if err := e.mutable(); err != nil {
		return err
	}
	offer, err := e.loadOffer(offerID)
	if err != nil {
		return err
	}
	if caller != offer.Offeror() {
		return ErrNotOfferor
	}
	if err := e.deleteOffer(offerID); err != nil {
		return err
	}
	e.emit(events.LoanOfferRejected{OfferID: offerID, Caller: caller})
	return nil
}

func (e *Engine) loadOffer(id uint64) (*LoanOffer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	offer, ok, err := e.state.LoanOfferGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || offer == nil || offer.Params.Creditor == (common.Address{}) {
		return nil, ErrLoanOfferNotFound
	}
	return offer.Clone(), nil
}

func (e *Engine) deleteOffer(id uint64) error {
	if err := e.state.LoanOfferDelete(id); err != nil {
		return err
	}
	return e.state.LoanOfferMetadataDelete(id)
}

// GetLoanOffer returns the offer stored under id.
func (e *Engine) GetLoanOffer(id uint64) (*LoanOffer, error) {
	return e.loadOffer(id)
}

// GetLoanOfferMetadata returns the metadata of a live offer. Offers created
// without metadata report empty URIs.
func (e *Engine) GetLoanOfferMetadata(id uint64) (*LoanOfferMetadata, error) {
	if _, err := e.loadOffer(id); err != nil {
		return nil, err
	}
	meta, ok, err := e.state.LoanOfferMetadataGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || meta == nil {
		return &LoanOfferMetadata{}, nil
	}
	copied := *meta
	return &copied, nil
}

// LoanOfferCount returns the number of offers ever created.
func (e *Engine) LoanOfferCount() (uint64, error) {
	s, err := e.settings()
	if err != nil {
		return 0, err
	}
	return s.LoanOfferCount, nil
}

// creditFee adds amount to the token's fee pool. Blacklisted tokens never
// accrue; the tokens stay in the module account untracked.
func (e *Engine) creditFee(tok common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	blacklisted, err := e.state.FeeTokenBlacklisted(tok)
	if err != nil {
		return err
	}
	if blacklisted {
		return nil
	}
	bal, err := e.state.ProtocolFeeBalance(tok)
	if err != nil {
		return err
	}
	if err := e.state.SetProtocolFeeBalance(tok, new(big.Int).Add(cloneBigInt(bal), amount)); err != nil {
		return err
	}
	list, err := e.state.ProtocolFeeTokens()
	if err != nil {
		return err
	}
	for _, existing := range list {
		if existing == tok {
			return nil
		}
	}
	return e.state.SetProtocolFeeTokens(append(list, tok))
}
