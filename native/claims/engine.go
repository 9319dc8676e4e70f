package claims

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"frendlend/core/events"
	"frendlend/crypto"
	nativecommon "frendlend/native/common"
	"frendlend/native/token"
)

const moduleName = "claims"

// UnlimitedApproval marks an operator approval that is never decremented.
const UnlimitedApproval = math.MaxUint64

var (
	errNilState             = errors.New("claims engine: state not configured")
	errNilTokens            = errors.New("claims engine: token ledger not configured")
	ErrClaimNotFound        = errors.New("claims engine: claim not found")
	ErrNotAdmin             = errors.New("claims engine: caller is not admin")
	ErrNotController        = errors.New("claims engine: caller does not control claim")
	ErrNotAuthorized        = errors.New("claims engine: operator not approved to create claims")
	ErrInvalidClaim         = errors.New("claims engine: invalid claim parameters")
	ErrClaimClosed          = errors.New("claims engine: claim no longer accepts updates")
	ErrInvalidPaymentAmount = errors.New("claims engine: payment amount must be positive")
	ErrPermitExpired        = errors.New("claims engine: permit expired")
	ErrInvalidPermit        = errors.New("claims engine: permit signature invalid")
)

type engineState interface {
	ClaimCount() (uint64, error)
	SetClaimCount(count uint64) error
	ClaimGet(id uint64) (*Claim, bool, error)
	ClaimPut(claim *Claim) error
	ClaimsSettings() (*Settings, error)
	PutClaimsSettings(settings *Settings) error
	ClaimApproval(owner, operator common.Address) (uint64, error)
	SetClaimApproval(owner, operator common.Address, count uint64) error
	PermitNonce(owner common.Address) (uint64, error)
	SetPermitNonce(owner common.Address, nonce uint64) error
	FeeExempt(account common.Address) (bool, error)
	SetFeeExempt(account common.Address, exempt bool) error
}

// TokenLedger moves the native coin collected as core fees.
type TokenLedger interface {
	BalanceOf(token, owner common.Address) (*big.Int, error)
	Transfer(token, from, to common.Address, amount *big.Int) error
}

// Engine owns the claims ledger: claim creation, payment bookkeeping, the
// core fee and the fee exemption registry.
type Engine struct {
	state         engineState
	tokens        TokenLedger
	emitter       events.Emitter
	pauses        nativecommon.PauseView
	nowFn         func() int64
	moduleAddress common.Address
}

func NewEngine() *Engine {
	return &Engine{
		emitter:       events.NoopEmitter{},
		nowFn:         func() int64 { return time.Now().Unix() },
		moduleAddress: ModuleAddress(),
	}
}

// ModuleAddress returns the account holding collected core fees.
func ModuleAddress() common.Address { return crypto.ModuleAddress(moduleName) }

func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetTokenLedger(tokens TokenLedger) { e.tokens = tokens }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
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

func (e *Engine) settings() (*Settings, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	s, err := e.state.ClaimsSettings()
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

func (e *Engine) requireAdmin(caller common.Address) (*Settings, error) {
	s, err := e.settings()
	if err != nil {
		return nil, err
	}
	if s.Admin == (common.Address{}) || s.Admin != caller {
		return nil, ErrNotAdmin
	}
	return s, nil
}

// Admin returns the current admin account.
func (e *Engine) Admin() (common.Address, error) {
	s, err := e.settings()
	if err != nil {
		return common.Address{}, err
	}
	return s.Admin, nil
}

// SetAdmin hands admin rights to next. Only the current admin may call it.
func (e *Engine) SetAdmin(caller, next common.Address) error {
	s, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	prev := s.Admin
	s.Admin = next
	if err := e.state.PutClaimsSettings(s); err != nil {
		return err
	}
	e.emit(events.AdminChanged{Module: moduleName, Previous: prev, Next: next})
	return nil
}

// CoreFee is the fixed native amount charged when a loan is accepted.
func (e *Engine) CoreFee() (*big.Int, error) {
	s, err := e.settings()
	if err != nil {
		return nil, err
	}
	return cloneAmount(s.CoreFee), nil
}

func (e *Engine) SetCoreFee(caller common.Address, fee *big.Int) error {
	s, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	if err := token.CheckAmount(fee); err != nil {
		return err
	}
	prev := cloneAmount(s.CoreFee)
	s.CoreFee = cloneAmount(fee)
	if err := e.state.PutClaimsSettings(s); err != nil {
		return err
	}
	e.emit(events.CoreFeeUpdated{Previous: prev, Current: cloneAmount(fee)})
	return nil
}

// WithdrawCoreFees sends the module's native balance to the admin.
func (e *Engine) WithdrawCoreFees(caller common.Address) (*big.Int, error) {
	s, err := e.requireAdmin(caller)
	if err != nil {
		return nil, err
	}
	if e.tokens == nil {
		return nil, errNilTokens
	}
	bal, err := e.tokens.BalanceOf(token.Native, e.moduleAddress)
	if err != nil {
		return nil, err
	}
	if bal.Sign() == 0 {
		return bal, nil
	}
	if err := e.tokens.Transfer(token.Native, e.moduleAddress, s.Admin, bal); err != nil {
		return nil, err
	}
	e.emit(events.CoreFeesWithdrawn{Recipient: s.Admin, Amount: cloneAmount(bal)})
	return bal, nil
}

// IsAllowed reports whether account is exempt from core and protocol fees.
func (e *Engine) IsAllowed(account common.Address) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	return e.state.FeeExempt(account)
}

func (e *Engine) SetExemption(caller, account common.Address, exempt bool) error {
	if _, err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.state.SetFeeExempt(account, exempt); err != nil {
		return err
	}
	e.emit(events.FeeExemptionUpdated{Account: account, Exempt: exempt})
	return nil
}

// ApproveCreateClaim lets operator create up to count claims on behalf of
// owner. UnlimitedApproval never runs out; zero revokes.
func (e *Engine) ApproveCreateClaim(owner, operator common.Address, count uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.state.SetClaimApproval(owner, operator, count); err != nil {
		return err
	}
	e.emit(events.ClaimApproval{Owner: owner, Operator: operator, Count: count})
	return nil
}

// CreateApproval returns the remaining number of claims operator may create
// for owner.
func (e *Engine) CreateApproval(owner, operator common.Address) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.ClaimApproval(owner, operator)
}

func (e *Engine) spendApproval(owner, operator common.Address) error {
	if owner == operator {
		return nil
	}
	remaining, err := e.state.ClaimApproval(owner, operator)
	if err != nil {
		return err
	}
	if remaining == 0 {
		return fmt.Errorf("%w: %s for %s", ErrNotAuthorized, operator.Hex(), owner.Hex())
	}
	if remaining == UnlimitedApproval {
		return nil
	}
	return e.state.SetClaimApproval(owner, operator, remaining-1)
}

// CreateClaimFrom creates a claim on behalf of from. The operator becomes the
// claim's controller and is the only account that can record payments.
func (e *Engine) CreateClaimFrom(operator, from common.Address, params CreateParams) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if err := validateCreate(from, params); err != nil {
		return 0, err
	}
	if err := e.spendApproval(from, operator); err != nil {
		return 0, err
	}
	count, err := e.state.ClaimCount()
	if err != nil {
		return 0, err
	}
	id := count + 1
	claim := &Claim{
		ID:                    id,
		Creditor:              params.Creditor,
		Debtor:                params.Debtor,
		Token:                 params.Token,
		Amount:                cloneAmount(params.Amount),
		PaidAmount:            big.NewInt(0),
		Description:           trimDescription(params.Description),
		DueBy:                 params.DueBy,
		ImpairmentGracePeriod: params.ImpairmentGracePeriod,
		Binding:               params.Binding,
		Status:                StatusPending,
		Controller:            operator,
		TokenURI:              params.TokenURI,
		AttachmentURI:         params.AttachmentURI,
		CreatedAt:             e.now(),
	}
	if err := e.state.ClaimPut(claim); err != nil {
		return 0, err
	}
	if err := e.state.SetClaimCount(id); err != nil {
		return 0, err
	}
	e.emit(events.ClaimCreated{
		ID:       id,
		Operator: operator,
		Creditor: claim.Creditor,
		Debtor:   claim.Debtor,
		Token:    claim.Token,
		Amount:   cloneAmount(claim.Amount),
		DueBy:    claim.DueBy,
	})
	return id, nil
}

func validateCreate(from common.Address, p CreateParams) error {
	zero := common.Address{}
	switch {
	case p.Creditor == zero || p.Debtor == zero:
		return fmt.Errorf("%w: creditor and debtor required", ErrInvalidClaim)
	case p.Creditor == p.Debtor:
		return fmt.Errorf("%w: creditor equals debtor", ErrInvalidClaim)
	case from != p.Creditor && from != p.Debtor:
		return fmt.Errorf("%w: creator must be a party", ErrInvalidClaim)
	case p.Amount == nil || p.Amount.Sign() <= 0:
		return fmt.Errorf("%w: amount must be positive", ErrInvalidClaim)
	case p.DueBy < 0 || p.ImpairmentGracePeriod < 0:
		return fmt.Errorf("%w: negative duration", ErrInvalidClaim)
	}
	return token.CheckAmount(p.Amount)
}

// GetClaim returns a copy of the claim.
func (e *Engine) GetClaim(id uint64) (*Claim, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	claim, ok, err := e.state.ClaimGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || claim == nil {
		return nil, ErrClaimNotFound
	}
	return claim.Clone(), nil
}

// ClaimCount returns the number of claims ever created.
func (e *Engine) ClaimCount() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.ClaimCount()
}

func (e *Engine) controlled(caller common.Address, id uint64) (*Claim, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	claim, err := e.GetClaim(id)
	if err != nil {
		return nil, err
	}
	if claim.Controller != caller {
		return nil, ErrNotController
	}
	if !claim.Status.Open() {
		return nil, fmt.Errorf("%w: claim %d is %s", ErrClaimClosed, id, claim.Status)
	}
	return claim, nil
}

// RecordPayment books amount against the claim's principal. Token movement is
// the controller's concern.
func (e *Engine) RecordPayment(caller common.Address, id uint64, amount *big.Int) (*Claim, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidPaymentAmount
	}
	claim, err := e.controlled(caller, id)
	if err != nil {
		return nil, err
	}
	claim.PaidAmount = new(big.Int).Add(claim.PaidAmount, amount)
	switch {
	case claim.PaidAmount.Cmp(claim.Amount) >= 0:
		claim.PaidAmount = cloneAmount(claim.Amount)
		claim.Status = StatusPaid
	case claim.Status == StatusPending:
		claim.Status = StatusRepaying
	}
	if err := e.state.ClaimPut(claim); err != nil {
		return nil, err
	}
	e.emit(events.ClaimPayment{ID: id, Amount: cloneAmount(amount), PaidAmount: cloneAmount(claim.PaidAmount), Status: claim.Status.String()})
	return claim.Clone(), nil
}

// MarkAsPaid closes the claim without further payment.
func (e *Engine) MarkAsPaid(caller common.Address, id uint64) error {
	return e.transition(caller, id, StatusPaid)
}

// Impair flags the claim as impaired. Impaired claims remain payable.
func (e *Engine) Impair(caller common.Address, id uint64) error {
	return e.transition(caller, id, StatusImpaired)
}

func (e *Engine) transition(caller common.Address, id uint64, next Status) error {
	claim, err := e.controlled(caller, id)
	if err != nil {
		return err
	}
	if claim.Status == next {
		return fmt.Errorf("%w: claim %d already %s", ErrClaimClosed, id, next)
	}
	claim.Status = next
	if err := e.state.ClaimPut(claim); err != nil {
		return err
	}
	e.emit(events.ClaimStatusChanged{ID: id, Status: next.String()})
	return nil
}
