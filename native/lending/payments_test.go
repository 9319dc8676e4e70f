package lending

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"frendlend/core/events"
)

const monthlyPeriod = secondsPerYear / 12

func TestComputeInterestCompoundsPerPeriod(t *testing.T) {
	cfg := InterestConfig{InterestRateBps: 1200, NumberOfPeriodsPerYear: 12}
	start := InterestState{AccruedInterest: big.NewInt(0), TotalGrossInterestPaid: big.NewInt(0)}

	same := computeInterest(ether(1_000), cfg, 0, monthlyPeriod-1, start)
	require.Zero(t, same.AccruedInterest.Sign())

	one := computeInterest(ether(1_000), cfg, 0, monthlyPeriod, start)
	require.Equal(t, ether(10), one.AccruedInterest)
	require.Equal(t, uint64(1), one.LatestPeriodNumber)

	two := computeInterest(ether(1_000), cfg, 0, 2*monthlyPeriod, start)
	want, _ := new(big.Int).SetString("20100000000000000000", 10)
	require.Equal(t, want, two.AccruedInterest)

	stepwise := computeInterest(ether(1_000), cfg, 0, 2*monthlyPeriod, one)
	require.Equal(t, want, stepwise.AccruedInterest)
}

func TestComputeInterestSimpleMode(t *testing.T) {
	cfg := InterestConfig{InterestRateBps: 1000}
	start := InterestState{AccruedInterest: big.NewInt(0), TotalGrossInterestPaid: big.NewInt(0)}
	year := computeInterest(ether(1_000), cfg, 100, 100+secondsPerYear, start)
	require.Equal(t, ether(100), year.AccruedInterest)
	require.Equal(t, uint64(secondsPerYear), year.LatestPeriodNumber)

	zeroRate := computeInterest(ether(1_000), InterestConfig{}, 0, secondsPerYear, start)
	require.Zero(t, zeroRate.AccruedInterest.Sign())
}

func acceptedLoan(t *testing.T, h *harness, amount *big.Int) uint64 {
	t.Helper()
	claimID, err := h.accept(debtor, coreFee, h.offer(creditor, h.params(amount)))
	require.NoError(t, err)
	return claimID
}

func TestPayLoanSettlesInterestFirst(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.SetProtocolFee(admin, 1_000))
	claimID := acceptedLoan(t, h, ether(1_000))
	h.now += monthlyPeriod + 5

	principal, interest, err := h.engine.GetTotalAmountDue(claimID)
	require.NoError(t, err)
	require.Equal(t, ether(1_000), principal)
	require.Equal(t, ether(10), interest)

	creditorBefore := h.balance(usd, creditor)
	payment, err := h.engine.PayLoan(debtor, claimID, ether(110))
	require.NoError(t, err)
	require.Equal(t, ether(10), payment.GrossInterest)
	require.Equal(t, ether(100), payment.Principal)
	require.Equal(t, ether(1), payment.ProtocolFee)
	require.Equal(t, ether(900), payment.RemainingPrincipal)
	require.Equal(t, "repaying", payment.Status)

	require.Equal(t, ether(109), new(big.Int).Sub(h.balance(usd, creditor), creditorBefore))
	require.Equal(t, ether(1), h.fees(usd))

	view, err := h.engine.GetLoan(claimID)
	require.NoError(t, err)
	require.Zero(t, view.InterestOwed.Sign())
	require.Equal(t, ether(10), view.InterestState.TotalGrossInterestPaid)

	paid := h.recorder.OfType(events.TypeLoanPayment)
	require.Len(t, paid, 1)
	require.Equal(t, ether(1).String(), paid[0].Attr("protocolFee"))
}

func TestPayLoanCapsAtTotalDue(t *testing.T) {
	h := newHarness(t)
	claimID := acceptedLoan(t, h, ether(100))
	h.now += monthlyPeriod

	debtorBefore := h.balance(usd, debtor)
	payment, err := h.engine.PayLoan(debtor, claimID, ether(1_000))
	require.NoError(t, err)
	require.Equal(t, ether(1), payment.GrossInterest)
	require.Equal(t, ether(100), payment.Principal)
	require.Equal(t, "paid", payment.Status)
	require.Equal(t, ether(101), new(big.Int).Sub(debtorBefore, h.balance(usd, debtor)))

	_, err = h.engine.PayLoan(debtor, claimID, ether(1))
	require.ErrorIs(t, err, ErrLoanNotActive)
}

func TestPayLoanRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.PayLoan(debtor, 7, ether(1))
	require.ErrorIs(t, err, ErrLoanNotFound)

	claimID := acceptedLoan(t, h, ether(100))
	_, err = h.engine.PayLoan(debtor, claimID, big.NewInt(0))
	require.ErrorIs(t, err, ErrInvalidPaymentAmount)
}

func TestExemptionFixedAtAcceptance(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.SetProtocolFee(admin, 1_000))

	h.setExempt(debtor, true)
	exemptID, err := h.accept(debtor, 0, h.offer(creditor, h.params(ether(1_000))))
	require.NoError(t, err)
	h.setExempt(debtor, false)
	payingID := acceptedLoan(t, h, ether(1_000))

	// flipping the registry afterwards changes nothing for either loan
	h.setExempt(debtor, true)
	h.now += monthlyPeriod

	payment, err := h.engine.PayLoan(debtor, exemptID, ether(10))
	require.NoError(t, err)
	require.Zero(t, payment.ProtocolFee.Sign())

	payment, err = h.engine.PayLoan(debtor, payingID, ether(10))
	require.NoError(t, err)
	require.Equal(t, ether(1), payment.ProtocolFee)
}

func TestImpairLoanAfterGracePeriod(t *testing.T) {
	h := newHarness(t)
	claimID := acceptedLoan(t, h, ether(100))
	loan, err := h.engine.GetLoan(claimID)
	require.NoError(t, err)

	require.ErrorIs(t, h.engine.ImpairLoan(debtor, claimID), ErrNotCreditor)
	h.now = loan.DueBy + loan.ImpairmentGracePeriod - 1
	require.ErrorIs(t, h.engine.ImpairLoan(creditor, claimID), ErrStillInGracePeriod)

	h.now++
	require.NoError(t, h.engine.ImpairLoan(creditor, claimID))
	view, err := h.engine.GetLoan(claimID)
	require.NoError(t, err)
	require.Equal(t, "impaired", view.Status)
	require.ErrorIs(t, h.engine.ImpairLoan(creditor, claimID), ErrLoanNotActive)

	// impaired loans can still be repaid
	_, err = h.engine.PayLoan(debtor, claimID, ether(1_000))
	require.NoError(t, err)
	view, err = h.engine.GetLoan(claimID)
	require.NoError(t, err)
	require.Equal(t, "paid", view.Status)
	require.Len(t, h.recorder.OfType(events.TypeLoanImpaired), 1)
}

func TestMarkLoanAsPaid(t *testing.T) {
	h := newHarness(t)
	claimID := acceptedLoan(t, h, ether(100))
	require.ErrorIs(t, h.engine.MarkLoanAsPaid(debtor, claimID), ErrNotCreditor)
	require.NoError(t, h.engine.MarkLoanAsPaid(creditor, claimID))
	require.ErrorIs(t, h.engine.MarkLoanAsPaid(creditor, claimID), ErrLoanNotActive)

	h.now += 10 * monthlyPeriod
	principal, interest, err := h.engine.GetTotalAmountDue(claimID)
	require.NoError(t, err)
	require.Zero(t, principal.Sign())
	require.Zero(t, interest.Sign())

	view, err := h.engine.GetLoan(claimID)
	require.NoError(t, err)
	require.Equal(t, "paid", view.Status)
	require.Zero(t, view.RemainingPrincipal.Sign())
	require.Zero(t, view.InterestOwed.Sign())
}

func TestImpairLoanWithMaximumGracePeriod(t *testing.T) {
	h := newHarness(t)
	p := h.params(ether(100))
	p.ImpairmentGracePeriod = MaxDuration
	claimID, err := h.accept(debtor, coreFee, h.offer(creditor, p))
	require.NoError(t, err)
	loan, err := h.engine.GetLoan(claimID)
	require.NoError(t, err)

	h.now++
	require.ErrorIs(t, h.engine.ImpairLoan(creditor, claimID), ErrStillInGracePeriod)
	h.now = loan.DueBy + MaxDuration - 1
	require.ErrorIs(t, h.engine.ImpairLoan(creditor, claimID), ErrStillInGracePeriod)
	h.now++
	require.NoError(t, h.engine.ImpairLoan(creditor, claimID))
}

func TestImpairLoanBeforeDueDateWithoutGrace(t *testing.T) {
	h := newHarness(t)
	p := h.params(ether(100))
	p.ImpairmentGracePeriod = 0
	claimID, err := h.accept(debtor, coreFee, h.offer(creditor, p))
	require.NoError(t, err)
	loan, err := h.engine.GetLoan(claimID)
	require.NoError(t, err)

	h.now = loan.DueBy - 1
	require.ErrorIs(t, h.engine.ImpairLoan(creditor, claimID), ErrStillInGracePeriod)
	h.now = loan.DueBy
	require.NoError(t, h.engine.ImpairLoan(creditor, claimID))
}
