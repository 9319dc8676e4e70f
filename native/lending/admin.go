package lending

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"frendlend/core/events"
	"frendlend/native/fees"
)

func (e *Engine) requireAdmin(caller common.Address) (*Settings, error) {
	s, err := e.settings()
	if err != nil {
		return nil, err
	}
	if s.Admin == (common.Address{}) || caller != s.Admin {
		return nil, ErrNotAdmin
	}
	return s, nil
}

// Admin returns the account allowed to manage fees and whitelists.
func (e *Engine) Admin() (common.Address, error) {
	s, err := e.settings()
	if err != nil {
		return common.Address{}, err
	}
	return s.Admin, nil
}

// SetAdmin transfers admin rights. Only the current admin may call it.
func (e *Engine) SetAdmin(caller, next common.Address) error {
	s, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	prev := s.Admin
	s.Admin = next
	if err := e.state.PutLendingSettings(s); err != nil {
		return err
	}
	e.emit(events.AdminChanged{Module: moduleName, Previous: prev, Next: next})
	return nil
}

func (e *Engine) ProtocolFeeBps() (uint16, error) {
	s, err := e.settings()
	if err != nil {
		return 0, err
	}
	return s.ProtocolFeeBps, nil
}

func (e *Engine) ProcessingFeeBps() (uint16, error) {
	s, err := e.settings()
	if err != nil {
		return 0, err
	}
	return s.ProcessingFeeBps, nil
}

// SetProtocolFee sets the rate charged on interest payments.
func (e *Engine) SetProtocolFee(caller common.Address, bps uint16) error {
	return e.setFeeRate(caller, bps, events.TypeProtocolFeeUpdated, func(s *Settings) *uint16 { return &s.ProtocolFeeBps })
}

// SetProcessingFee sets the rate deducted from principal at acceptance.
func (e *Engine) SetProcessingFee(caller common.Address, bps uint16) error {
	return e.setFeeRate(caller, bps, events.TypeProcessingFeeUpdated, func(s *Settings) *uint16 { return &s.ProcessingFeeBps })
}

func (e *Engine) setFeeRate(caller common.Address, bps uint16, eventType string, field func(*Settings) *uint16) error {
	s, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	if err := fees.ValidateBps(uint64(bps)); err != nil {
		return fmt.Errorf("%w: %d bps", ErrInvalidProtocolFee, bps)
	}
	target := field(s)
	prev := *target
	*target = bps
	if err := e.state.PutLendingSettings(s); err != nil {
		return err
	}
	e.emit(events.FeeRateUpdated{Type: eventType, Previous: prev, Current: bps})
	return nil
}

// ProtocolFeesByToken returns the fees tracked for tok and not yet withdrawn.
func (e *Engine) ProtocolFeesByToken(tok common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	bal, err := e.state.ProtocolFeeBalance(tok)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(bal), nil
}

// ProtocolFeeTokens lists the tokens that have accrued fees, in first-accrual
// order.
func (e *Engine) ProtocolFeeTokens() ([]common.Address, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	list, err := e.state.ProtocolFeeTokens()
	if err != nil {
		return nil, err
	}
	return append([]common.Address(nil), list...), nil
}

func (e *Engine) IsFeeTokenBlacklisted(tok common.Address) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	return e.state.FeeTokenBlacklisted(tok)
}

func (e *Engine) IsFeeTokenWhitelisted(tok common.Address) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	return e.state.FeeTokenWhitelisted(tok)
}

// WithdrawAllFees pays every withdrawable fee balance to the admin. Tokens
// missing from the withdrawal whitelist are skipped and keep accruing.
func (e *Engine) WithdrawAllFees(caller common.Address) ([]FeeWithdrawal, error) {
	if err := e.mutable(); err != nil {
		return nil, err
	}
	s, err := e.requireAdmin(caller)
	if err != nil {
		return nil, err
	}
	list, err := e.state.ProtocolFeeTokens()
	if err != nil {
		return nil, err
	}
	var out []FeeWithdrawal
	for _, tok := range list {
		allowed, err := e.state.FeeTokenWhitelisted(tok)
		if err != nil {
			return nil, err
		}
		if !allowed {
			continue
		}
		bal, err := e.state.ProtocolFeeBalance(tok)
		if err != nil {
			return nil, err
		}
		if bal == nil || bal.Sign() == 0 {
			continue
		}
		if err := e.state.SetProtocolFeeBalance(tok, big.NewInt(0)); err != nil {
			return nil, err
		}
		if err := e.tokens.Transfer(tok, e.moduleAddress, s.Admin, bal); err != nil {
			return nil, err
		}
		out = append(out, FeeWithdrawal{Token: tok, Amount: cloneBigInt(bal)})
		e.emit(events.FeesWithdrawn{Token: tok, Amount: cloneBigInt(bal), Recipient: s.Admin})
	}
	return out, nil
}

func (e *Engine) AddToFeeTokenWhitelist(caller, tok common.Address) error {
	return e.setFeeTokenWhitelisted(caller, tok, true)
}

func (e *Engine) RemoveFromFeeTokenWhitelist(caller, tok common.Address) error {
	return e.setFeeTokenWhitelisted(caller, tok, false)
}

func (e *Engine) setFeeTokenWhitelisted(caller, tok common.Address, whitelisted bool) error {
	if _, err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.state.SetFeeTokenWhitelisted(tok, whitelisted); err != nil {
		return err
	}
	e.emit(events.FeeTokenPolicyUpdated{Type: events.TypeFeeTokenWhitelistUpdated, Token: tok, Enabled: whitelisted})
	return nil
}

// AddToFeeTokenBlacklist stops fee tracking for tok. Fees already tracked for
// it are forfeited and the token leaves the iteration set.
func (e *Engine) AddToFeeTokenBlacklist(caller, tok common.Address) error {
	if _, err := e.requireAdmin(caller); err != nil {
		return err
	}
	forfeited, err := e.state.ProtocolFeeBalance(tok)
	if err != nil {
		return err
	}
	if err := e.state.SetFeeTokenBlacklisted(tok, true); err != nil {
		return err
	}
	if err := e.state.SetProtocolFeeBalance(tok, big.NewInt(0)); err != nil {
		return err
	}
	list, err := e.state.ProtocolFeeTokens()
	if err != nil {
		return err
	}
	kept := list[:0]
	for _, existing := range list {
		if existing != tok {
			kept = append(kept, existing)
		}
	}
	if err := e.state.SetProtocolFeeTokens(kept); err != nil {
		return err
	}
	e.emit(events.FeeTokenPolicyUpdated{Type: events.TypeFeeTokenBlacklisted, Token: tok, Enabled: true, Forfeited: cloneBigInt(forfeited)})
	return nil
}

// RemoveFromFeeTokenBlacklist resumes fee tracking for tok. The token rejoins
// the iteration set on its next fee.
func (e *Engine) RemoveFromFeeTokenBlacklist(caller, tok common.Address) error {
	if _, err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.state.SetFeeTokenBlacklisted(tok, false); err != nil {
		return err
	}
	e.emit(events.FeeTokenPolicyUpdated{Type: events.TypeFeeTokenUnblacklisted, Token: tok})
	return nil
}

// AddToCallbackWhitelist allows offers to name (contract, selector). Adding
// an entry twice is a no-op.
func (e *Engine) AddToCallbackWhitelist(caller, contract common.Address, selector Selector) error {
	return e.setCallbackWhitelisted(caller, contract, selector, true)
}

// RemoveFromCallbackWhitelist is idempotent.
func (e *Engine) RemoveFromCallbackWhitelist(caller, contract common.Address, selector Selector) error {
	return e.setCallbackWhitelisted(caller, contract, selector, false)
}

func (e *Engine) setCallbackWhitelisted(caller, contract common.Address, selector Selector, whitelisted bool) error {
	if _, err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.state.SetCallbackWhitelisted(contract, selector, whitelisted); err != nil {
		return err
	}
	e.emit(events.CallbackWhitelistUpdated{Contract: contract, Selector: selector, Whitelisted: whitelisted})
	return nil
}

// IsCallbackWhitelisted never reports a pair with a zero contract or a zero
// selector as whitelisted, whatever was stored.
func (e *Engine) IsCallbackWhitelisted(contract common.Address, selector Selector) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	if contract == (common.Address{}) || selector.IsZero() {
		return false, nil
	}
	return e.state.CallbackWhitelisted(contract, selector)
}
