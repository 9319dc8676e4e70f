package fees

import (
	"errors"
	"math/big"
)

// MaxBps is the basis point value representing 100%.
const MaxBps = 10_000

var ErrInvalidBps = errors.New("fees: basis points exceed 10000")

var basisPoints = big.NewInt(MaxBps)

// ApplyResult summarises the computed fee and the remaining net amount.
type ApplyResult struct {
	Fee *big.Int
	Net *big.Int
}

// Apply charges bps of gross, rounding the fee down. A nil or non-positive
// gross yields a zero fee.
func Apply(gross *big.Int, bps uint16) ApplyResult {
	result := ApplyResult{Fee: big.NewInt(0)}
	if gross != nil {
		result.Net = new(big.Int).Set(gross)
	} else {
		result.Net = big.NewInt(0)
	}
	if result.Net.Sign() <= 0 || bps == 0 {
		return result
	}
	if bps >= MaxBps {
		result.Fee = result.Net
		result.Net = big.NewInt(0)
		return result
	}
	fee := new(big.Int).Mul(result.Net, big.NewInt(int64(bps)))
	fee.Quo(fee, basisPoints)
	result.Fee = fee
	result.Net = new(big.Int).Sub(result.Net, fee)
	return result
}

// ValidateBps rejects rates above 100%.
func ValidateBps(bps uint64) error {
	if bps > MaxBps {
		return ErrInvalidBps
	}
	return nil
}

// Totals aggregates fee accounting for a single token.
type Totals struct {
	Gross *big.Int
	Fee   *big.Int
	Net   *big.Int
}

// Add folds a result into the totals.
func (t *Totals) Add(gross *big.Int, r ApplyResult) {
	if t.Gross == nil {
		t.Gross, t.Fee, t.Net = big.NewInt(0), big.NewInt(0), big.NewInt(0)
	}
	if gross != nil {
		t.Gross.Add(t.Gross, gross)
	}
	t.Fee.Add(t.Fee, r.Fee)
	t.Net.Add(t.Net, r.Net)
}
