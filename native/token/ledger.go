package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"frendlend/core/events"
	nativecommon "frendlend/native/common"
)

// Native identifies the chain's value token, the one carried by msg.value.
var Native = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

const moduleName = "token"

var (
	errNilState              = errors.New("token ledger: state not configured")
	ErrInvalidAmount         = errors.New("token ledger: amount must not be negative")
	ErrInsufficientBalance   = errors.New("token ledger: insufficient balance")
	ErrInsufficientAllowance = errors.New("token ledger: insufficient allowance")
	ErrAmountOverflow        = errors.New("token ledger: amount exceeds 256 bits")
	ErrZeroAddress           = errors.New("token ledger: zero address")
)

type engineState interface {
	TokenBalance(token, owner common.Address) (*big.Int, error)
	SetTokenBalance(token, owner common.Address, amount *big.Int) error
	TokenAllowance(token, owner, spender common.Address) (*big.Int, error)
	SetTokenAllowance(token, owner, spender common.Address, amount *big.Int) error
}

// Ledger tracks balances and allowances for every token, including Native.
type Ledger struct {
	state   engineState
	emitter events.Emitter
	pauses  nativecommon.PauseView
}

func NewLedger() *Ledger {
	return &Ledger{emitter: events.NoopEmitter{}}
}

func (l *Ledger) SetState(state engineState) { l.state = state }

func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) SetPauses(p nativecommon.PauseView) {
	if l == nil {
		return
	}
	l.pauses = p
}

func (l *Ledger) emit(evt events.Event) {
	if l == nil || l.emitter == nil {
		return
	}
	l.emitter.Emit(evt)
}

// CheckAmount rejects negative values and values that do not fit in 256 bits.
func CheckAmount(amount *big.Int) error {
	if amount == nil {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return ErrAmountOverflow
	}
	return nil
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (l *Ledger) BalanceOf(token, owner common.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	bal, err := l.state.TokenBalance(token, owner)
	if err != nil {
		return nil, err
	}
	return cloneAmount(bal), nil
}

func (l *Ledger) Allowance(token, owner, spender common.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	allowance, err := l.state.TokenAllowance(token, owner, spender)
	if err != nil {
		return nil, err
	}
	return cloneAmount(allowance), nil
}

// Approve sets the amount spender may move out of owner's balance.
func (l *Ledger) Approve(token, owner, spender common.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if spender == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := CheckAmount(amount); err != nil {
		return err
	}
	if err := l.state.SetTokenAllowance(token, owner, spender, cloneAmount(amount)); err != nil {
		return err
	}
	l.emit(events.Approval{Token: token, Owner: owner, Spender: spender, Amount: cloneAmount(amount)})
	return nil
}

// Transfer moves amount from `from` to `to`. Zero amounts succeed without
// touching state.
func (l *Ledger) Transfer(token, from, to common.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if err := CheckAmount(amount); err != nil {
		return err
	}
	if amount == nil || amount.Sign() == 0 || from == to {
		return nil
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	fromBal, err := l.state.TokenBalance(token, from)
	if err != nil {
		return err
	}
	fromBal = cloneAmount(fromBal)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromBal, amount)
	}
	toBal, err := l.state.TokenBalance(token, to)
	if err != nil {
		return err
	}
	nextTo := new(big.Int).Add(cloneAmount(toBal), amount)
	if err := CheckAmount(nextTo); err != nil {
		return err
	}
	if err := l.state.SetTokenBalance(token, from, fromBal.Sub(fromBal, amount)); err != nil {
		return err
	}
	if err := l.state.SetTokenBalance(token, to, nextTo); err != nil {
		return err
	}
	l.emit(events.Transfer{Token: token, From: from, To: to, Amount: cloneAmount(amount)})
	return nil
}

// TransferFrom moves amount on behalf of from, spending spender's allowance.
// A spender moving its own funds needs no allowance.
func (l *Ledger) TransferFrom(token, spender, from, to common.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := CheckAmount(amount); err != nil {
		return err
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if spender != from {
		allowance, err := l.state.TokenAllowance(token, from, spender)
		if err != nil {
			return err
		}
		allowance = cloneAmount(allowance)
		if allowance.Cmp(amount) < 0 {
			return fmt.Errorf("%w: have %s, need %s", ErrInsufficientAllowance, allowance, amount)
		}
		if err := l.state.SetTokenAllowance(token, from, spender, allowance.Sub(allowance, amount)); err != nil {
			return err
		}
	}
	return l.Transfer(token, from, to, amount)
}

// Mint credits new supply to `to`. It is only reachable from genesis and
// operator tooling.
func (l *Ledger) Mint(token, to common.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := CheckAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	bal, err := l.state.TokenBalance(token, to)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(cloneAmount(bal), cloneAmount(amount))
	if err := CheckAmount(next); err != nil {
		return err
	}
	if err := l.state.SetTokenBalance(token, to, next); err != nil {
		return err
	}
	l.emit(events.Transfer{Token: token, To: to, Amount: cloneAmount(amount)})
	return nil
}
