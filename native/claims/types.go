package claims

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Status enumerates the lifecycle states of a claim.
type Status uint8

const (
	StatusPending Status = iota + 1
	StatusRepaying
	StatusPaid
	StatusImpaired
)

func (s Status) Valid() bool {
	return s >= StatusPending && s <= StatusImpaired
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRepaying:
		return "repaying"
	case StatusPaid:
		return "paid"
	case StatusImpaired:
		return "impaired"
	default:
		return "unknown"
	}
}

// Open reports whether the claim still accepts payments.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusRepaying || s == StatusImpaired
}

// Binding describes whether the debtor has agreed to the claim.
type Binding uint8

const (
	Unbound Binding = iota
	BindingPending
	Bound
)

func (b Binding) String() string {
	switch b {
	case Unbound:
		return "unbound"
	case BindingPending:
		return "binding_pending"
	case Bound:
		return "bound"
	default:
		return "unknown"
	}
}

// Claim is an obligation from Debtor to Creditor denominated in Token.
type Claim struct {
	ID                    uint64
	Creditor              common.Address
	Debtor                common.Address
	Token                 common.Address
	Amount                *big.Int
	PaidAmount            *big.Int
	Description           string
	DueBy                 int64
	ImpairmentGracePeriod int64
	Binding               Binding
	Status                Status
	Controller            common.Address
	TokenURI              string
	AttachmentURI         string
	CreatedAt             int64
}

// Clone returns a deep copy of the claim.
func (c *Claim) Clone() *Claim {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Amount = cloneAmount(c.Amount)
	clone.PaidAmount = cloneAmount(c.PaidAmount)
	return &clone
}

// Outstanding returns Amount - PaidAmount, floored at zero.
func (c *Claim) Outstanding() *big.Int {
	if c == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Sub(cloneAmount(c.Amount), cloneAmount(c.PaidAmount))
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}

// CreateParams describes a claim to be created.
type CreateParams struct {
	Creditor              common.Address
	Debtor                common.Address
	Token                 common.Address
	Amount                *big.Int
	Description           string
	DueBy                 int64
	ImpairmentGracePeriod int64
	Binding               Binding
	TokenURI              string
	AttachmentURI         string
}

// Settings hold the module-wide configuration.
type Settings struct {
	Admin   common.Address
	CoreFee *big.Int
}

// Clone returns a deep copy of the settings.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return &Settings{CoreFee: big.NewInt(0)}
	}
	return &Settings{Admin: s.Admin, CoreFee: cloneAmount(s.CoreFee)}
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func trimDescription(s string) string {
	return strings.TrimSpace(s)
}
