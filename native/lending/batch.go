package lending

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"frendlend/native/token"
)

// Batchable method names.
const (
	MethodOfferLoan              = "offerLoan"
	MethodOfferLoanWithMetadata  = "offerLoanWithMetadata"
	MethodRejectLoanOffer        = "rejectLoanOffer"
	MethodAcceptLoan             = "acceptLoan"
	MethodAcceptLoanWithReceiver = "acceptLoanWithReceiver"
	MethodPayLoan                = "payLoan"
	MethodImpairLoan             = "impairLoan"
	MethodMarkLoanAsPaid         = "markLoanAsPaid"
)

var ErrUnknownMethod = errors.New("lending engine: unknown batch method")

// Call is one sub-call of a generic batch. Only the fields relevant to Method
// are read. Value is the native amount forwarded to an accept call.
type Call struct {
	Method   string             `json:"method"`
	Params   *LoanRequestParams `json:"params,omitempty"`
	Metadata *LoanOfferMetadata `json:"metadata,omitempty"`
	OfferID  uint64             `json:"offerId,omitempty"`
	ClaimID  uint64             `json:"claimId,omitempty"`
	Receiver common.Address     `json:"receiver,omitempty"`
	Amount   *big.Int           `json:"amount,omitempty"`
	Value    *big.Int           `json:"value,omitempty"`
}

// CallResult reports the outcome of one sub-call.
type CallResult struct {
	Success bool     `json:"success"`
	OfferID uint64   `json:"offerId,omitempty"`
	ClaimID uint64   `json:"claimId,omitempty"`
	Payment *Payment `json:"payment,omitempty"`
	Err     error    `json:"-"`
	Error   string   `json:"error,omitempty"`
}

// Batch runs calls in order on behalf of caller. value must equal the sum of
// the calls' Value fields. With revertOnFail the first failure aborts the
// batch and its state changes are rolled back. Otherwise each failing call is
// rolled back on its own and the native value it carried is refunded.
func (e *Engine) Batch(caller common.Address, value *big.Int, calls []Call, revertOnFail bool) ([]CallResult, error) {
	if err := e.mutable(); err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, c := range calls {
		if err := token.CheckAmount(c.Value); err != nil {
			return nil, err
		}
		total.Add(total, cloneBigInt(c.Value))
	}
	if cloneBigInt(value).Cmp(total) != 0 {
		return nil, fmt.Errorf("%w: attached %s, calls carry %s", ErrBatchFeeMismatch, cloneBigInt(value), total)
	}

	start := e.state.Snapshot()
	results := make([]CallResult, len(calls))
	refund := big.NewInt(0)
	for i, c := range calls {
		rev := e.state.Snapshot()
		res := e.dispatch(caller, c)
		if res.Err != nil {
			if revertOnFail {
				e.state.RevertToSnapshot(start)
				return nil, fmt.Errorf("batch call %d (%s): %w", i, c.Method, res.Err)
			}
			e.state.RevertToSnapshot(rev)
			res.Error = res.Err.Error()
			refund.Add(refund, cloneBigInt(c.Value))
		}
		results[i] = res
	}
	if refund.Sign() > 0 {
		if err := e.tokens.Transfer(token.Native, e.moduleAddress, caller, refund); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (e *Engine) dispatch(caller common.Address, c Call) CallResult {
	var res CallResult
	if c.Value != nil && c.Value.Sign() > 0 && c.Method != MethodAcceptLoan && c.Method != MethodAcceptLoanWithReceiver {
		res.Err = fmt.Errorf("%w: %s does not take value", ErrIncorrectFee, c.Method)
		return res
	}
	switch c.Method {
	case MethodOfferLoan, MethodOfferLoanWithMetadata:
		if c.Params == nil {
			res.Err = fmt.Errorf("%w: missing params", ErrInvalidLoanParams)
			break
		}
		if c.Method == MethodOfferLoanWithMetadata && c.Metadata != nil {
			res.OfferID, res.Err = e.OfferLoanWithMetadata(caller, *c.Params, *c.Metadata)
		} else {
			res.OfferID, res.Err = e.OfferLoan(caller, *c.Params)
		}
	case MethodRejectLoanOffer:
		res.OfferID = c.OfferID
		res.Err = e.RejectLoanOffer(caller, c.OfferID)
	case MethodAcceptLoan:
		res.OfferID = c.OfferID
		res.ClaimID, res.Err = e.AcceptLoan(caller, c.Value, c.OfferID)
	case MethodAcceptLoanWithReceiver:
		res.OfferID = c.OfferID
		res.ClaimID, res.Err = e.AcceptLoanWithReceiver(caller, c.Value, c.OfferID, c.Receiver)
	case MethodPayLoan:
		res.ClaimID = c.ClaimID
		res.Payment, res.Err = e.PayLoan(caller, c.ClaimID, c.Amount)
	case MethodImpairLoan:
		res.ClaimID = c.ClaimID
		res.Err = e.ImpairLoan(caller, c.ClaimID)
	case MethodMarkLoanAsPaid:
		res.ClaimID = c.ClaimID
		res.Err = e.MarkLoanAsPaid(caller, c.ClaimID)
	default:
		res.Err = fmt.Errorf("%w: %q", ErrUnknownMethod, c.Method)
	}
	res.Success = res.Err == nil
	return res
}
