package lending

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"frendlend/core/events"
	"frendlend/native/claims"
	"frendlend/native/fees"
	"frendlend/native/token"
)

// RequiredCoreFee returns the native value account must attach when
// accepting an offer. Exempt accounts pay nothing.
func (e *Engine) RequiredCoreFee(account common.Address) (*big.Int, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	exempt, err := e.claims.IsAllowed(account)
	if err != nil {
		return nil, false, err
	}
	if exempt {
		return big.NewInt(0), true, nil
	}
	fee, err := e.claims.CoreFee()
	if err != nil {
		return nil, false, err
	}
	return cloneBigInt(fee), false, nil
}

// AcceptLoan turns an offer into a loan. value is the native amount the
// caller attached and must match the core fee exactly.
func (e *Engine) AcceptLoan(caller common.Address, value *big.Int, offerID uint64) (uint64, error) {
	return e.acceptLoan(caller, value, offerID, common.Address{})
}

// AcceptLoanWithReceiver behaves like AcceptLoan but sends the principal to
// receiver. Only a debtor accepting a creditor's offer may redirect funds.
func (e *Engine) AcceptLoanWithReceiver(caller common.Address, value *big.Int, offerID uint64, receiver common.Address) (uint64, error) {
	if receiver == (common.Address{}) {
		return 0, ErrInvalidReceiver
	}
	return e.acceptLoan(caller, value, offerID, receiver)
}

// BatchAcceptLoans accepts every offer in order. value must equal the sum of
// the per-offer core fees. Any failure fails the whole batch.
func (e *Engine) BatchAcceptLoans(caller common.Address, value *big.Int, offerIDs []uint64) ([]uint64, error) {
	if err := e.mutable(); err != nil {
		return nil, err
	}
	perOffer, _, err := e.RequiredCoreFee(caller)
	if err != nil {
		return nil, err
	}
	required := new(big.Int).Mul(perOffer, big.NewInt(int64(len(offerIDs))))
	if cloneBigInt(value).Cmp(required) != 0 {
		return nil, fmt.Errorf("%w: attached %s, required %s", ErrBatchFeeMismatch, cloneBigInt(value), required)
	}
	rev := e.state.Snapshot()
	claimIDs := make([]uint64, 0, len(offerIDs))
	for _, id := range offerIDs {
		claimID, err := e.acceptLoan(caller, perOffer, id, common.Address{})
		if err != nil {
			e.state.RevertToSnapshot(rev)
			return nil, fmt.Errorf("offer %d: %w", id, err)
		}
		claimIDs = append(claimIDs, claimID)
	}
	return claimIDs, nil
}

func (e *Engine) acceptLoan(caller common.Address, value *big.Int, offerID uint64, receiver common.Address) (uint64, error) {
	if err := e.mutable(); err != nil {
		return 0, err
	}
	offer, err := e.loadOffer(offerID)
	if err != nil {
		return 0, err
	}
	params := offer.Params
	now := e.now()
	if params.ExpiresAt != 0 && now >= params.ExpiresAt {
		return 0, ErrLoanOfferExpired
	}
	if caller != offer.Counterparty() {
		return 0, ErrNotCounterparty
	}
	if receiver == (common.Address{}) {
		receiver = params.Debtor
	} else if caller != params.Debtor {
		return 0, ErrInvalidReceiver
	}

	// Exemption is resolved once, against the accepting party, and frozen
	// into the loan.
	coreFee, exempt, err := e.RequiredCoreFee(caller)
	if err != nil {
		return 0, err
	}
	if cloneBigInt(value).Cmp(coreFee) != 0 {
		return 0, fmt.Errorf("%w: attached %s, required %s", ErrIncorrectFee, cloneBigInt(value), coreFee)
	}

	s, err := e.settings()
	if err != nil {
		return 0, err
	}
	split := fees.Apply(params.LoanAmount, s.ProcessingFeeBps)
	if err := e.tokens.TransferFrom(params.Token, e.moduleAddress, params.Creditor, e.moduleAddress, split.Fee); err != nil {
		return 0, err
	}
	if err := e.tokens.TransferFrom(params.Token, e.moduleAddress, params.Creditor, receiver, split.Net); err != nil {
		return 0, err
	}
	if err := e.creditFee(params.Token, split.Fee); err != nil {
		return 0, err
	}

	meta, _, err := e.state.LoanOfferMetadataGet(offerID)
	if err != nil {
		return 0, err
	}
	if meta == nil {
		meta = &LoanOfferMetadata{}
	}
	dueBy := now + params.TermLength
	claimID, err := e.claims.CreateClaimFrom(e.moduleAddress, params.Creditor, claims.CreateParams{
		Creditor:              params.Creditor,
		Debtor:                params.Debtor,
		Token:                 params.Token,
		Amount:                cloneBigInt(params.LoanAmount),
		Description:           params.Description,
		DueBy:                 dueBy,
		ImpairmentGracePeriod: params.ImpairmentGracePeriod,
		Binding:               claims.Bound,
		TokenURI:              meta.TokenURI,
		AttachmentURI:         meta.AttachmentURI,
	})
	if err != nil {
		return 0, err
	}
	loan := &Loan{
		ClaimID:               claimID,
		OfferID:               offerID,
		Creditor:              params.Creditor,
		Debtor:                params.Debtor,
		Token:                 params.Token,
		ClaimAmount:           cloneBigInt(params.LoanAmount),
		Interest:              params.Interest,
		InterestState:         InterestState{AccruedInterest: big.NewInt(0), TotalGrossInterestPaid: big.NewInt(0)},
		ImpairmentGracePeriod: params.ImpairmentGracePeriod,
		ProtocolFeeExempt:     exempt,
		AcceptedAt:            now,
		DueBy:                 dueBy,
	}
	if err := e.state.LoanPut(loan); err != nil {
		return 0, err
	}
	if err := e.deleteOffer(offerID); err != nil {
		return 0, err
	}
	if coreFee.Sign() > 0 {
		if err := e.tokens.Transfer(token.Native, e.moduleAddress, claims.ModuleAddress(), coreFee); err != nil {
			return 0, err
		}
	}
	e.emit(events.LoanOfferAccepted{
		OfferID:       offerID,
		ClaimID:       claimID,
		Acceptor:      caller,
		Receiver:      receiver,
		Token:         params.Token,
		Amount:        cloneBigInt(params.LoanAmount),
		ProcessingFee: split.Fee,
		CoreFee:       coreFee,
		FeeExempt:     exempt,
	})

	// The callback runs last so a re-entrant call sees the accepted state.
	if params.HasCallback() {
		if e.callbacks == nil {
			return 0, fmt.Errorf("%w: no dispatcher for %s", ErrCallbackFailed, params.CallbackContract.Hex())
		}
		if err := e.callbacks.Notify(params.CallbackContract, params.CallbackSelector, offerID, claimID); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrCallbackFailed, err)
		}
	}
	return claimID, nil
}
