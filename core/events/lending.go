package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"frendlend/core/types"
)

const (
	TypeLoanOfferCreated         = "lending.offer.created"
	TypeLoanOfferRejected        = "lending.offer.rejected"
	TypeLoanOfferAccepted        = "lending.offer.accepted"
	TypeLoanPayment              = "lending.loan.payment"
	TypeLoanImpaired             = "lending.loan.impaired"
	TypeLoanMarkedPaid           = "lending.loan.marked_paid"
	TypeFeesWithdrawn            = "lending.fees.withdrawn"
	TypeProtocolFeeUpdated       = "lending.fees.protocol_updated"
	TypeProcessingFeeUpdated     = "lending.fees.processing_updated"
	TypeFeeTokenBlacklisted      = "lending.fees.token_blacklisted"
	TypeFeeTokenUnblacklisted    = "lending.fees.token_unblacklisted"
	TypeFeeTokenWhitelistUpdated = "lending.fees.token_whitelisted"
	TypeCallbackWhitelisted      = "lending.callback.whitelisted"
	TypeCallbackRemoved          = "lending.callback.removed"
	TypeAdminChanged             = "admin.changed"
)

// LoanOfferCreated is emitted when a creditor or debtor posts an offer.
type LoanOfferCreated struct {
	OfferID             uint64
	Creditor            common.Address
	Debtor              common.Address
	Token               common.Address
	Amount              *big.Int
	RequestedByCreditor bool
	ExpiresAt           int64
}

func (LoanOfferCreated) EventType() string { return TypeLoanOfferCreated }

func (e LoanOfferCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanOfferCreated,
		Attributes: map[string]string{
			"offerId":             uintToString(e.OfferID),
			"creditor":            formatAddress(e.Creditor),
			"debtor":              formatAddress(e.Debtor),
			"token":               formatAddress(e.Token),
			"amount":              formatAmount(e.Amount),
			"requestedByCreditor": strconv.FormatBool(e.RequestedByCreditor),
			"expiresAt":           intToString(e.ExpiresAt),
		},
	}
}

type LoanOfferRejected struct {
	OfferID uint64
	Caller  common.Address
}

func (LoanOfferRejected) EventType() string { return TypeLoanOfferRejected }

func (e LoanOfferRejected) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanOfferRejected,
		Attributes: map[string]string{
			"offerId": uintToString(e.OfferID),
			"caller":  formatAddress(e.Caller),
		},
	}
}

// LoanOfferAccepted records the fees charged when an offer became a loan.
type LoanOfferAccepted struct {
	OfferID       uint64
	ClaimID       uint64
	Acceptor      common.Address
	Receiver      common.Address
	Token         common.Address
	Amount        *big.Int
	ProcessingFee *big.Int
	CoreFee       *big.Int
	FeeExempt     bool
}

func (LoanOfferAccepted) EventType() string { return TypeLoanOfferAccepted }

func (e LoanOfferAccepted) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanOfferAccepted,
		Attributes: map[string]string{
			"offerId":       uintToString(e.OfferID),
			"claimId":       uintToString(e.ClaimID),
			"acceptor":      formatAddress(e.Acceptor),
			"receiver":      formatAddress(e.Receiver),
			"token":         formatAddress(e.Token),
			"amount":        formatAmount(e.Amount),
			"processingFee": formatAmount(e.ProcessingFee),
			"coreFee":       formatAmount(e.CoreFee),
			"feeExempt":     strconv.FormatBool(e.FeeExempt),
		},
	}
}

type LoanPayment struct {
	ClaimID       uint64
	Payer         common.Address
	Token         common.Address
	GrossInterest *big.Int
	Principal     *big.Int
	ProtocolFee   *big.Int
}

func (LoanPayment) EventType() string { return TypeLoanPayment }

func (e LoanPayment) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanPayment,
		Attributes: map[string]string{
			"claimId":       uintToString(e.ClaimID),
			"payer":         formatAddress(e.Payer),
			"token":         formatAddress(e.Token),
			"grossInterest": formatAmount(e.GrossInterest),
			"principal":     formatAmount(e.Principal),
			"protocolFee":   formatAmount(e.ProtocolFee),
		},
	}
}

// LoanStatusChanged covers creditor driven transitions of a loan's claim.
type LoanStatusChanged struct {
	Type     string
	ClaimID  uint64
	Creditor common.Address
}

func (e LoanStatusChanged) EventType() string { return e.Type }

func (e LoanStatusChanged) Event() *types.Event {
	return &types.Event{
		Type: e.Type,
		Attributes: map[string]string{
			"claimId":  uintToString(e.ClaimID),
			"creditor": formatAddress(e.Creditor),
		},
	}
}

type FeesWithdrawn struct {
	Token     common.Address
	Amount    *big.Int
	Recipient common.Address
}

func (FeesWithdrawn) EventType() string { return TypeFeesWithdrawn }

func (e FeesWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeFeesWithdrawn,
		Attributes: map[string]string{
			"token":     formatAddress(e.Token),
			"amount":    formatAmount(e.Amount),
			"recipient": formatAddress(e.Recipient),
		},
	}
}

// FeeRateUpdated is emitted for both protocol and processing fee changes.
type FeeRateUpdated struct {
	Type     string
	Previous uint16
	Current  uint16
}

func (e FeeRateUpdated) EventType() string { return e.Type }

func (e FeeRateUpdated) Event() *types.Event {
	return &types.Event{
		Type: e.Type,
		Attributes: map[string]string{
			"previousBps": strconv.FormatUint(uint64(e.Previous), 10),
			"currentBps":  strconv.FormatUint(uint64(e.Current), 10),
		},
	}
}

// FeeTokenPolicyUpdated covers blacklist and withdrawal whitelist changes.
// Forfeited is set when blacklisting discarded tracked fees.
type FeeTokenPolicyUpdated struct {
	Type      string
	Token     common.Address
	Enabled   bool
	Forfeited *big.Int
}

func (e FeeTokenPolicyUpdated) EventType() string { return e.Type }

func (e FeeTokenPolicyUpdated) Event() *types.Event {
	attrs := map[string]string{
		"token":   formatAddress(e.Token),
		"enabled": strconv.FormatBool(e.Enabled),
	}
	if e.Forfeited != nil && e.Forfeited.Sign() > 0 {
		attrs["forfeited"] = e.Forfeited.String()
	}
	return &types.Event{Type: e.Type, Attributes: attrs}
}

type CallbackWhitelistUpdated struct {
	Contract    common.Address
	Selector    [4]byte
	Whitelisted bool
}

func (e CallbackWhitelistUpdated) EventType() string {
	if e.Whitelisted {
		return TypeCallbackWhitelisted
	}
	return TypeCallbackRemoved
}

func (e CallbackWhitelistUpdated) Event() *types.Event {
	return &types.Event{
		Type: e.EventType(),
		Attributes: map[string]string{
			"contract": formatAddress(e.Contract),
			"selector": formatSelector(e.Selector),
		},
	}
}

type AdminChanged struct {
	Module   string
	Previous common.Address
	Next     common.Address
}

func (AdminChanged) EventType() string { return TypeAdminChanged }

func (e AdminChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeAdminChanged,
		Attributes: map[string]string{
			"module":   e.Module,
			"previous": formatAddress(e.Previous),
			"next":     formatAddress(e.Next),
		},
	}
}
