package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"frendlend/core/events"
	"frendlend/native/claims"
	"frendlend/native/fees"
)

func (e *Engine) loadLoan(claimID uint64) (*Loan, *claims.Claim, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	loan, ok, err := e.state.LoanGet(claimID)
	if err != nil {
		return nil, nil, err
	}
	if !ok || loan == nil {
		return nil, nil, ErrLoanNotFound
	}
	claim, err := e.claims.GetClaim(claimID)
	if err != nil {
		return nil, nil, err
	}
	return loan.Clone(), claim, nil
}

// accrued returns the loan's interest state brought forward to now.
func (e *Engine) accrued(loan *Loan, claim *claims.Claim) InterestState {
	if !claim.Status.Open() {
		return loan.InterestState.Clone()
	}
	return computeInterest(claim.Outstanding(), loan.Interest, loan.AcceptedAt, e.now(), loan.InterestState)
}

// GetLoan returns the loan for claimID with interest computed as of now.
func (e *Engine) GetLoan(claimID uint64) (*LoanView, error) {
	loan, claim, err := e.loadLoan(claimID)
	if err != nil {
		return nil, err
	}
	state := e.accrued(loan, claim)
	view := &LoanView{
		Loan:               *loan,
		Status:             claim.Status.String(),
		PaidAmount:         cloneBigInt(claim.PaidAmount),
		RemainingPrincipal: principalOwed(claim),
		InterestOwed:       big.NewInt(0),
	}
	if claim.Status.Open() {
		view.InterestOwed = cloneBigInt(state.AccruedInterest)
	}
	view.InterestState = state
	return view, nil
}

// GetTotalAmountDue returns the remaining principal and the interest owed as
// of now. Both are zero once the claim is closed.
func (e *Engine) GetTotalAmountDue(claimID uint64) (principal, interest *big.Int, err error) {
	loan, claim, err := e.loadLoan(claimID)
	if err != nil {
		return nil, nil, err
	}
	if !claim.Status.Open() {
		return big.NewInt(0), big.NewInt(0), nil
	}
	state := e.accrued(loan, claim)
	return claim.Outstanding(), cloneBigInt(state.AccruedInterest), nil
}

// principalOwed is the unpaid principal of an open claim.
func principalOwed(claim *claims.Claim) *big.Int {
	if !claim.Status.Open() {
		return big.NewInt(0)
	}
	return claim.Outstanding()
}

// PayLoan applies amount to the loan, interest first. Amounts above the total
// due are capped. Unless the loan is exempt, the protocol fee is taken out of
// the interest portion before the creditor is paid.
func (e *Engine) PayLoan(caller common.Address, claimID uint64, amount *big.Int) (*Payment, error) {
	if err := e.mutable(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidPaymentAmount
	}
	loan, claim, err := e.loadLoan(claimID)
	if err != nil {
		return nil, err
	}
	if !claim.Status.Open() {
		return nil, ErrLoanNotActive
	}
	state := e.accrued(loan, claim)
	principalDue := claim.Outstanding()
	total := new(big.Int).Add(principalDue, state.AccruedInterest)

	pay := cloneBigInt(amount)
	if pay.Cmp(total) > 0 {
		pay = total
	}
	interestPortion := cloneBigInt(pay)
	if interestPortion.Cmp(state.AccruedInterest) > 0 {
		interestPortion = cloneBigInt(state.AccruedInterest)
	}
	principalPortion := new(big.Int).Sub(pay, interestPortion)

	protocolFee := big.NewInt(0)
	if !loan.ProtocolFeeExempt {
		s, err := e.settings()
		if err != nil {
			return nil, err
		}
		protocolFee = fees.Apply(interestPortion, s.ProtocolFeeBps).Fee
	}
	if err := e.tokens.TransferFrom(loan.Token, e.moduleAddress, caller, e.moduleAddress, protocolFee); err != nil {
		return nil, err
	}
	if err := e.tokens.TransferFrom(loan.Token, e.moduleAddress, caller, claim.Creditor, new(big.Int).Sub(pay, protocolFee)); err != nil {
		return nil, err
	}
	if err := e.creditFee(loan.Token, protocolFee); err != nil {
		return nil, err
	}

	state.AccruedInterest.Sub(state.AccruedInterest, interestPortion)
	state.TotalGrossInterestPaid.Add(state.TotalGrossInterestPaid, interestPortion)
	loan.InterestState = state
	if err := e.state.LoanPut(loan); err != nil {
		return nil, err
	}
	if principalPortion.Sign() > 0 {
		if claim, err = e.claims.RecordPayment(e.moduleAddress, claimID, principalPortion); err != nil {
			return nil, err
		}
	}
	e.emit(events.LoanPayment{
		ClaimID:       claimID,
		Payer:         caller,
		Token:         loan.Token,
		GrossInterest: cloneBigInt(interestPortion),
		Principal:     cloneBigInt(principalPortion),
		ProtocolFee:   cloneBigInt(protocolFee),
	})
	return &Payment{
		ClaimID:            claimID,
		GrossInterest:      interestPortion,
		Principal:          principalPortion,
		ProtocolFee:        protocolFee,
		RemainingPrincipal: claim.Outstanding(),
		Status:             claim.Status.String(),
	}, nil
}

// ImpairLoan lets the creditor flag a loan once its due date and grace
// period have passed.
func (e *Engine) ImpairLoan(caller common.Address, claimID uint64) error {
	if err := e.mutable(); err != nil {
		return err
	}
	loan, claim, err := e.loadLoan(claimID)
	if err != nil {
		return err
	}
	if caller != claim.Creditor {
		return ErrNotCreditor
	}
	if claim.Status != claims.StatusPending && claim.Status != claims.StatusRepaying {
		return ErrLoanNotActive
	}
	if now := e.now(); now < loan.DueBy || now-loan.DueBy < loan.ImpairmentGracePeriod {
		return ErrStillInGracePeriod
	}
	if err := e.claims.Impair(e.moduleAddress, claimID); err != nil {
		return err
	}
	e.emit(events.LoanStatusChanged{Type: events.TypeLoanImpaired, ClaimID: claimID, Creditor: caller})
	return nil
}

// MarkLoanAsPaid lets the creditor close a loan without further repayment.
func (e *Engine) MarkLoanAsPaid(caller common.Address, claimID uint64) error {
	if err := e.mutable(); err != nil {
		return err
	}
	_, claim, err := e.loadLoan(claimID)
	if err != nil {
		return err
	}
	if caller != claim.Creditor {
		return ErrNotCreditor
	}
	if !claim.Status.Open() {
		return ErrLoanNotActive
	}
	if err := e.claims.MarkAsPaid(e.moduleAddress, claimID); err != nil {
		return err
	}
	e.emit(events.LoanStatusChanged{Type: events.TypeLoanMarkedPaid, ClaimID: claimID, Creditor: caller})
	return nil
}
