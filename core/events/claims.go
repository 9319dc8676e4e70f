package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"frendlend/core/types"
)

const (
	TypeClaimCreated        = "claims.created"
	TypeClaimPayment        = "claims.payment"
	TypeClaimStatusChanged  = "claims.status"
	TypeClaimApproval       = "claims.approval"
	TypeCoreFeeUpdated      = "claims.core_fee.updated"
	TypeCoreFeesWithdrawn   = "claims.core_fee.withdrawn"
	TypeFeeExemptionUpdated = "claims.exemption.updated"
)

type ClaimCreated struct {
	ID       uint64
	Operator common.Address
	Creditor common.Address
	Debtor   common.Address
	Token    common.Address
	Amount   *big.Int
	DueBy    int64
}

func (ClaimCreated) EventType() string { return TypeClaimCreated }

func (e ClaimCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeClaimCreated,
		Attributes: map[string]string{
			"id":       uintToString(e.ID),
			"operator": formatAddress(e.Operator),
			"creditor": formatAddress(e.Creditor),
			"debtor":   formatAddress(e.Debtor),
			"token":    formatAddress(e.Token),
			"amount":   formatAmount(e.Amount),
			"dueBy":    intToString(e.DueBy),
		},
	}
}

type ClaimPayment struct {
	ID         uint64
	Amount     *big.Int
	PaidAmount *big.Int
	Status     string
}

func (ClaimPayment) EventType() string { return TypeClaimPayment }

func (e ClaimPayment) Event() *types.Event {
	return &types.Event{
		Type: TypeClaimPayment,
		Attributes: map[string]string{
			"id":         uintToString(e.ID),
			"amount":     formatAmount(e.Amount),
			"paidAmount": formatAmount(e.PaidAmount),
			"status":     e.Status,
		},
	}
}

type ClaimStatusChanged struct {
	ID     uint64
	Status string
}

func (ClaimStatusChanged) EventType() string { return TypeClaimStatusChanged }

func (e ClaimStatusChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeClaimStatusChanged,
		Attributes: map[string]string{
			"id":     uintToString(e.ID),
			"status": e.Status,
		},
	}
}

// ClaimApproval records an owner authorising an operator to create claims.
type ClaimApproval struct {
	Owner     common.Address
	Operator  common.Address
	Count     uint64
	ViaPermit bool
}

func (ClaimApproval) EventType() string { return TypeClaimApproval }

func (e ClaimApproval) Event() *types.Event {
	return &types.Event{
		Type: TypeClaimApproval,
		Attributes: map[string]string{
			"owner":     formatAddress(e.Owner),
			"operator":  formatAddress(e.Operator),
			"count":     uintToString(e.Count),
			"viaPermit": strconv.FormatBool(e.ViaPermit),
		},
	}
}

type CoreFeeUpdated struct {
	Previous *big.Int
	Current  *big.Int
}

func (CoreFeeUpdated) EventType() string { return TypeCoreFeeUpdated }

func (e CoreFeeUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeCoreFeeUpdated,
		Attributes: map[string]string{
			"previous": formatAmount(e.Previous),
			"current":  formatAmount(e.Current),
		},
	}
}

type CoreFeesWithdrawn struct {
	Recipient common.Address
	Amount    *big.Int
}

func (CoreFeesWithdrawn) EventType() string { return TypeCoreFeesWithdrawn }

func (e CoreFeesWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeCoreFeesWithdrawn,
		Attributes: map[string]string{
			"recipient": formatAddress(e.Recipient),
			"amount":    formatAmount(e.Amount),
		},
	}
}

type FeeExemptionUpdated struct {
	Account common.Address
	Exempt  bool
}

func (FeeExemptionUpdated) EventType() string { return TypeFeeExemptionUpdated }

func (e FeeExemptionUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeFeeExemptionUpdated,
		Attributes: map[string]string{
			"account": formatAddress(e.Account),
			"exempt":  strconv.FormatBool(e.Exempt),
		},
	}
}
