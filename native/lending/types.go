package lending

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Selector is a 4-byte function selector naming a callback entry point.
type Selector [4]byte

// IsZero reports whether the selector is unset.
func (s Selector) IsZero() bool { return s == Selector{} }

func (s Selector) String() string { return hexutil.Encode(s[:]) }

func (s Selector) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Selector) UnmarshalText(text []byte) error {
	parsed, err := ParseSelector(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSelector decodes a 0x-prefixed 4 byte hex string. The empty string
// decodes to the zero selector.
func ParseSelector(s string) (Selector, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Selector{}, nil
	}
	raw, err := hexutil.Decode(trimmed)
	if err != nil || len(raw) != len(Selector{}) {
		return Selector{}, fmt.Errorf("lending: invalid selector %q", s)
	}
	var out Selector
	copy(out[:], raw)
	return out, nil
}

// InterestConfig describes how a loan accrues interest. A zero
// NumberOfPeriodsPerYear means simple interest accrued every second.
type InterestConfig struct {
	InterestRateBps        uint16 `json:"interestRateBps"`
	NumberOfPeriodsPerYear uint16 `json:"numberOfPeriodsPerYear"`
}

// InterestState is the accrual bookkeeping carried by a loan.
type InterestState struct {
	AccruedInterest        *big.Int `json:"accruedInterest"`
	LatestPeriodNumber     uint64   `json:"latestPeriodNumber"`
	TotalGrossInterestPaid *big.Int `json:"totalGrossInterestPaid"`
}

// Clone returns a deep copy of the interest state.
func (s InterestState) Clone() InterestState {
	return InterestState{
		AccruedInterest:        cloneBigInt(s.AccruedInterest),
		LatestPeriodNumber:     s.LatestPeriodNumber,
		TotalGrossInterestPaid: cloneBigInt(s.TotalGrossInterestPaid),
	}
}

// LoanRequestParams are the immutable terms of an offer.
type LoanRequestParams struct {
	TermLength            int64          `json:"termLength"`
	Interest              InterestConfig `json:"interestConfig"`
	LoanAmount            *big.Int       `json:"loanAmount"`
	Creditor              common.Address `json:"creditor"`
	Debtor                common.Address `json:"debtor"`
	Description           string         `json:"description"`
	Token                 common.Address `json:"token"`
	ImpairmentGracePeriod int64          `json:"impairmentGracePeriod"`
	ExpiresAt             int64          `json:"expiresAt"`
	CallbackContract      common.Address `json:"callbackContract"`
	CallbackSelector      Selector       `json:"callbackSelector"`
}

// Clone returns a deep copy of the params.
func (p LoanRequestParams) Clone() LoanRequestParams {
	p.LoanAmount = cloneBigInt(p.LoanAmount)
	return p
}

// HasCallback reports whether both halves of the callback descriptor are set.
func (p LoanRequestParams) HasCallback() bool {
	return p.CallbackContract != (common.Address{}) && !p.CallbackSelector.IsZero()
}

// LoanOffer is a pending offer waiting for the counterparty.
type LoanOffer struct {
	Params              LoanRequestParams `json:"params"`
	RequestedByCreditor bool              `json:"requestedByCreditor"`
}

// Clone returns a deep copy of the offer.
func (o *LoanOffer) Clone() *LoanOffer {
	if o == nil {
		return nil
	}
	return &LoanOffer{Params: o.Params.Clone(), RequestedByCreditor: o.RequestedByCreditor}
}

// Offeror returns the party that posted the offer.
func (o *LoanOffer) Offeror() common.Address {
	if o.RequestedByCreditor {
		return o.Params.Creditor
	}
	return o.Params.Debtor
}

// Counterparty returns the party allowed to accept the offer.
func (o *LoanOffer) Counterparty() common.Address {
	if o.RequestedByCreditor {
		return o.Params.Debtor
	}
	return o.Params.Creditor
}

// LoanOfferMetadata is stored alongside an offer and copied onto the claim.
type LoanOfferMetadata struct {
	TokenURI      string `json:"tokenURI"`
	AttachmentURI string `json:"attachmentURI"`
}

// Loan is the accepted form of an offer, keyed by its claim id.
type Loan struct {
	ClaimID               uint64         `json:"claimId"`
	OfferID               uint64         `json:"offerId"`
	Creditor              common.Address `json:"creditor"`
	Debtor                common.Address `json:"debtor"`
	Token                 common.Address `json:"token"`
	ClaimAmount           *big.Int       `json:"claimAmount"`
	Interest              InterestConfig `json:"interestConfig"`
	InterestState         InterestState  `json:"interestComputationState"`
	ImpairmentGracePeriod int64          `json:"impairmentGracePeriod"`
	ProtocolFeeExempt     bool           `json:"protocolFeeExempt"`
	AcceptedAt            int64          `json:"acceptedAt"`
	DueBy                 int64          `json:"dueBy"`
}

// Clone returns a deep copy of the loan.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	clone.ClaimAmount = cloneBigInt(l.ClaimAmount)
	clone.InterestState = l.InterestState.Clone()
	return &clone
}

// LoanView joins a loan with its claim as of a point in time.
type LoanView struct {
	Loan
	Status             string   `json:"status"`
	PaidAmount         *big.Int `json:"paidAmount"`
	RemainingPrincipal *big.Int `json:"remainingPrincipal"`
	InterestOwed       *big.Int `json:"interestOwed"`
}

// Payment summarises the outcome of PayLoan.
type Payment struct {
	ClaimID            uint64   `json:"claimId"`
	GrossInterest      *big.Int `json:"grossInterest"`
	Principal          *big.Int `json:"principal"`
	ProtocolFee        *big.Int `json:"protocolFee"`
	RemainingPrincipal *big.Int `json:"remainingPrincipal"`
	Status             string   `json:"status"`
}

// Settings is the admin-scoped configuration of the module.
type Settings struct {
	Admin            common.Address
	ProtocolFeeBps   uint16
	ProcessingFeeBps uint16
	LoanOfferCount   uint64
}

// Clone returns a copy of the settings.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return &Settings{}
	}
	clone := *s
	return &clone
}

// FeeWithdrawal records the amount paid out for one token.
type FeeWithdrawal struct {
	Token  common.Address `json:"token"`
	Amount *big.Int       `json:"amount"`
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
