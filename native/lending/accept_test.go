package lending

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"frendlend/core/events"
	"frendlend/native/claims"
	"frendlend/native/token"
)

func TestAcceptDeductsProcessingFee(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.SetProcessingFee(admin, 500))
	id := h.offer(creditor, h.params(ether(1_000)))

	debtorBefore := h.balance(usd, debtor)
	creditorBefore := h.balance(usd, creditor)
	claimID, err := h.accept(debtor, coreFee, id)
	require.NoError(t, err)

	require.Equal(t, ether(950), new(big.Int).Sub(h.balance(usd, debtor), debtorBefore))
	require.Equal(t, ether(1_000), new(big.Int).Sub(creditorBefore, h.balance(usd, creditor)))
	require.Equal(t, ether(50), h.fees(usd))
	require.Equal(t, ether(50), h.balance(usd, ModuleAddress()))

	claim, err := h.claims.GetClaim(claimID)
	require.NoError(t, err)
	require.Equal(t, ether(1_000), claim.Amount)
	require.Equal(t, creditor, claim.Creditor)
	require.Equal(t, debtor, claim.Debtor)
	require.Equal(t, claims.Bound, claim.Binding)
	require.Equal(t, h.now+30*24*3600, claim.DueBy)

	_, err = h.engine.GetLoanOffer(id)
	require.ErrorIs(t, err, ErrLoanOfferNotFound)

	accepted := h.recorder.OfType(events.TypeLoanOfferAccepted)
	require.Len(t, accepted, 1)
	require.Equal(t, ether(50).String(), accepted[0].Attr("processingFee"))
	require.Equal(t, "1000", accepted[0].Attr("coreFee"))
}

func TestSequentialLoansAccumulateFees(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.SetProcessingFee(admin, 500))
	first := h.offer(creditor, h.params(ether(1_000)))
	_, err := h.accept(debtor, coreFee, first)
	require.NoError(t, err)
	require.Equal(t, ether(50), h.fees(usd))

	require.NoError(t, h.engine.SetProcessingFee(admin, 1_000))
	second := h.offer(creditor, h.params(ether(1_000)))
	_, err = h.accept(debtor, coreFee, second)
	require.NoError(t, err)
	require.Equal(t, ether(150), h.fees(usd))

	tokens, err := h.engine.ProtocolFeeTokens()
	require.NoError(t, err)
	require.Equal(t, []common.Address{usd}, tokens)
}

func TestFeesTrackedPerToken(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.SetProcessingFee(admin, 100))
	p := h.params(ether(100))
	p.Token = eur
	_, err := h.accept(debtor, coreFee, h.offer(creditor, p))
	require.NoError(t, err)
	_, err = h.accept(debtor, coreFee, h.offer(creditor, h.params(ether(200))))
	require.NoError(t, err)

	require.Equal(t, ether(1), h.fees(eur))
	require.Equal(t, ether(2), h.fees(usd))
	tokens, err := h.engine.ProtocolFeeTokens()
	require.NoError(t, err)
	require.Equal(t, []common.Address{eur, usd}, tokens)
}

func TestCoreFeeMustMatchExactly(t *testing.T) {
	h := newHarness(t)
	id := h.offer(creditor, h.params(ether(10)))

	_, err := h.accept(debtor, coreFee-1, id)
	require.ErrorIs(t, err, ErrIncorrectFee)
	_, err = h.accept(debtor, coreFee+1, id)
	require.ErrorIs(t, err, ErrIncorrectFee)
	_, err = h.accept(debtor, 0, id)
	require.ErrorIs(t, err, ErrIncorrectFee)

	_, err = h.accept(debtor, coreFee, id)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(coreFee), h.balance(token.Native, claims.ModuleAddress()))
}

func TestExemptAcceptorPaysNoCoreFee(t *testing.T) {
	h := newHarness(t)
	h.setExempt(debtor, true)
	id := h.offer(creditor, h.params(ether(10)))

	_, err := h.accept(debtor, coreFee, id)
	require.ErrorIs(t, err, ErrIncorrectFee)

	claimID, err := h.accept(debtor, 0, id)
	require.NoError(t, err)
	loan, err := h.engine.GetLoan(claimID)
	require.NoError(t, err)
	require.True(t, loan.ProtocolFeeExempt)
	require.Zero(t, h.balance(token.Native, claims.ModuleAddress()).Sign())
}

func TestProcessingFeeIndependentOfExemption(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.SetProcessingFee(admin, 500))

	_, err := h.accept(debtor, coreFee, h.offer(creditor, h.params(ether(1_000))))
	require.NoError(t, err)
	nonExempt := h.fees(usd)

	h.setExempt(debtor, true)
	_, err = h.accept(debtor, 0, h.offer(creditor, h.params(ether(1_000))))
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Mul(nonExempt, big.NewInt(2)), h.fees(usd))
}

func TestExemptionResolvedAgainstAcceptingParty(t *testing.T) {
	h := newHarness(t)
	h.setExempt(creditor, true)

	// debtor posts a borrow request; the exempt creditor accepts it
	request := h.offer(debtor, h.params(ether(10)))
	_, err := h.accept(creditor, coreFee, request)
	require.ErrorIs(t, err, ErrIncorrectFee)
	claimID, err := h.accept(creditor, 0, request)
	require.NoError(t, err)
	loan, err := h.engine.GetLoan(claimID)
	require.NoError(t, err)
	require.True(t, loan.ProtocolFeeExempt)

	// the non-exempt debtor accepting the creditor's offer pays
	offer := h.offer(creditor, h.params(ether(10)))
	claimID, err = h.accept(debtor, coreFee, offer)
	require.NoError(t, err)
	loan, err = h.engine.GetLoan(claimID)
	require.NoError(t, err)
	require.False(t, loan.ProtocolFeeExempt)
}

func TestOnlyCounterpartyMayAccept(t *testing.T) {
	h := newHarness(t)
	id := h.offer(creditor, h.params(ether(10)))
	_, err := h.accept(creditor, coreFee, id)
	require.ErrorIs(t, err, ErrNotCounterparty)
	_, err = h.accept(stranger, 0, id)
	require.ErrorIs(t, err, ErrNotCounterparty)

	_, err = h.accept(debtor, coreFee, 99)
	require.ErrorIs(t, err, ErrLoanOfferNotFound)
}

func TestAcceptWithReceiver(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.SetProcessingFee(admin, 500))
	id := h.offer(creditor, h.params(ether(100)))

	require.NoError(t, h.tokens.Transfer(token.Native, debtor, ModuleAddress(), big.NewInt(coreFee)))
	claimID, err := h.engine.AcceptLoanWithReceiver(debtor, big.NewInt(coreFee), id, stranger)
	require.NoError(t, err)
	require.Equal(t, ether(95), h.balance(usd, stranger))

	claim, err := h.claims.GetClaim(claimID)
	require.NoError(t, err)
	require.Equal(t, debtor, claim.Debtor)

	request := h.offer(debtor, h.params(ether(10)))
	_, err = h.engine.AcceptLoanWithReceiver(creditor, big.NewInt(0), request, stranger)
	require.ErrorIs(t, err, ErrInvalidReceiver)
	_, err = h.engine.AcceptLoanWithReceiver(debtor, big.NewInt(0), request, common.Address{})
	require.ErrorIs(t, err, ErrInvalidReceiver)
}

func TestAcceptRequiresClaimApprovalAndAllowance(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.claims.ApproveCreateClaim(creditor, ModuleAddress(), 0))
	id := h.offer(creditor, h.params(ether(10)))
	_, err := h.accept(debtor, coreFee, id)
	require.ErrorIs(t, err, claims.ErrNotAuthorized)

	h2 := newHarness(t)
	require.NoError(t, h2.tokens.Approve(usd, creditor, ModuleAddress(), big.NewInt(0)))
	id = h2.offer(creditor, h2.params(ether(10)))
	_, err = h2.accept(debtor, coreFee, id)
	require.ErrorIs(t, err, token.ErrInsufficientAllowance)
}

func TestCallbackInvokedAfterAcceptance(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.AddToCallbackWhitelist(admin, callbackContract, callbackSelector))
	p := h.params(ether(10))
	p.CallbackContract = callbackContract
	p.CallbackSelector = callbackSelector
	id := h.offer(creditor, p)

	h.dispatcher.fn = func(n notification) error {
		// re-entrant reads observe the accepted state
		_, err := h.engine.GetLoanOffer(n.offerID)
		require.ErrorIs(t, err, ErrLoanOfferNotFound)
		loan, err := h.engine.GetLoan(n.claimID)
		require.NoError(t, err)
		require.Equal(t, n.offerID, loan.OfferID)
		_, err = h.engine.AcceptLoan(debtor, big.NewInt(0), n.offerID)
		require.ErrorIs(t, err, ErrLoanOfferNotFound)
		return nil
	}
	claimID, err := h.accept(debtor, coreFee, id)
	require.NoError(t, err)
	require.Equal(t, []notification{{contract: callbackContract, selector: callbackSelector, offerID: id, claimID: claimID}}, h.dispatcher.calls)
}

func TestCallbackFailureFailsAcceptance(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.AddToCallbackWhitelist(admin, callbackContract, callbackSelector))
	p := h.params(ether(10))
	p.CallbackContract = callbackContract
	p.CallbackSelector = callbackSelector
	id := h.offer(creditor, p)

	h.dispatcher.fn = func(notification) error { return errCallbackBoom }
	_, err := h.accept(debtor, coreFee, id)
	require.ErrorIs(t, err, ErrCallbackFailed)
	require.ErrorIs(t, err, errCallbackBoom)

	h.engine.SetCallbackDispatcher(nil)
	id = h.offer(creditor, p)
	_, err = h.accept(debtor, coreFee, id)
	require.ErrorIs(t, err, ErrCallbackFailed)
}

func TestBatchAcceptLoans(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.SetProcessingFee(admin, 500))
	first := h.offer(creditor, h.params(ether(100)))
	second := h.offer(creditor, h.params(ether(200)))

	require.NoError(t, h.tokens.Transfer(token.Native, debtor, ModuleAddress(), big.NewInt(2*coreFee)))
	_, err := h.engine.BatchAcceptLoans(debtor, big.NewInt(coreFee), []uint64{first, second})
	require.ErrorIs(t, err, ErrBatchFeeMismatch)
	_, err = h.engine.BatchAcceptLoans(debtor, big.NewInt(3*coreFee), []uint64{first, second})
	require.ErrorIs(t, err, ErrBatchFeeMismatch)

	claimIDs, err := h.engine.BatchAcceptLoans(debtor, big.NewInt(2*coreFee), []uint64{first, second})
	require.NoError(t, err)
	require.Len(t, claimIDs, 2)
	require.Equal(t, ether(15), h.fees(usd))
	require.Equal(t, big.NewInt(2*coreFee), h.balance(token.Native, claims.ModuleAddress()))
}

func TestBatchAcceptIsAllOrNothing(t *testing.T) {
	h := newHarness(t)
	p := h.params(ether(100))
	p.ExpiresAt = h.now + 10
	live := h.offer(creditor, h.params(ether(100)))
	expiring := h.offer(creditor, p)
	h.now += 10

	require.NoError(t, h.tokens.Transfer(token.Native, debtor, ModuleAddress(), big.NewInt(2*coreFee)))
	_, err := h.engine.BatchAcceptLoans(debtor, big.NewInt(2*coreFee), []uint64{live, expiring})
	require.ErrorIs(t, err, ErrLoanOfferExpired)

	_, err = h.engine.GetLoanOffer(live)
	require.NoError(t, err)
	count, err := h.claims.ClaimCount()
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestBatchAcceptExemptRequiresZeroValue(t *testing.T) {
	h := newHarness(t)
	h.setExempt(debtor, true)
	ids := []uint64{h.offer(creditor, h.params(ether(1))), h.offer(creditor, h.params(ether(1)))}
	_, err := h.engine.BatchAcceptLoans(debtor, big.NewInt(coreFee), ids)
	require.ErrorIs(t, err, ErrBatchFeeMismatch)
	_, err = h.engine.BatchAcceptLoans(debtor, big.NewInt(0), ids)
	require.NoError(t, err)
}
