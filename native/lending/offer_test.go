package lending

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"frendlend/core/events"
	nativecommon "frendlend/native/common"
)

func TestOfferIDsAreSequentialFromZero(t *testing.T) {
	h := newHarness(t)
	for want := uint64(0); want < 3; want++ {
		require.Equal(t, want, h.offer(creditor, h.params(ether(10))))
	}
	count, err := h.engine.LoanOfferCount()
	require.NoError(t, err)
	require.Equal(t, uint64(3), count)

	require.NoError(t, h.engine.RejectLoanOffer(creditor, 1))
	count, err = h.engine.LoanOfferCount()
	require.NoError(t, err)
	require.Equal(t, uint64(3), count)
	require.Equal(t, uint64(3), h.offer(debtor, h.params(ether(10))))
}

func TestOfferRecordsRequestingParty(t *testing.T) {
	h := newHarness(t)
	byCreditor := h.offer(creditor, h.params(ether(10)))
	byDebtor := h.offer(debtor, h.params(ether(10)))

	offer, err := h.engine.GetLoanOffer(byCreditor)
	require.NoError(t, err)
	require.True(t, offer.RequestedByCreditor)
	require.Equal(t, "rent advance", offer.Params.Description)

	offer, err = h.engine.GetLoanOffer(byDebtor)
	require.NoError(t, err)
	require.False(t, offer.RequestedByCreditor)

	_, err = h.engine.OfferLoan(stranger, h.params(ether(10)))
	require.ErrorIs(t, err, ErrNotCreditorOrDebtor)

	created := h.recorder.OfType(events.TypeLoanOfferCreated)
	require.Len(t, created, 2)
	require.Equal(t, "0", created[0].Attr("offerId"))
	require.Equal(t, "false", created[1].Attr("requestedByCreditor"))
}

func TestOfferWithPastExpiryFails(t *testing.T) {
	h := newHarness(t)
	p := h.params(ether(10))
	p.ExpiresAt = h.now - 1
	_, err := h.engine.OfferLoan(creditor, p)
	require.ErrorIs(t, err, ErrLoanOfferExpired)

	p.ExpiresAt = h.now
	_, err = h.engine.OfferLoan(creditor, p)
	require.ErrorIs(t, err, ErrLoanOfferExpired)

	count, err := h.engine.LoanOfferCount()
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestOfferValidation(t *testing.T) {
	h := newHarness(t)
	cases := map[string]func(p *LoanRequestParams){
		"zero amount":    func(p *LoanRequestParams) { p.LoanAmount = big.NewInt(0) },
		"nil amount":     func(p *LoanRequestParams) { p.LoanAmount = nil },
		"same parties":   func(p *LoanRequestParams) { p.Debtor = creditor },
		"zero token":     func(p *LoanRequestParams) { p.Token = [20]byte{} },
		"zero term":      func(p *LoanRequestParams) { p.TermLength = 0 },
		"huge amount":    func(p *LoanRequestParams) { p.LoanAmount = new(big.Int).Lsh(big.NewInt(1), 256) },
		"negative grace": func(p *LoanRequestParams) { p.ImpairmentGracePeriod = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := h.params(ether(10))
			mutate(&p)
			_, err := h.engine.OfferLoan(creditor, p)
			require.ErrorIs(t, err, ErrInvalidLoanParams)
		})
	}
}

func TestOfferLoanWithMetadata(t *testing.T) {
	h := newHarness(t)
	meta := LoanOfferMetadata{TokenURI: "ipfs://token", AttachmentURI: "ipfs://contract.pdf"}
	id, err := h.engine.OfferLoanWithMetadata(creditor, h.params(ether(10)), meta)
	require.NoError(t, err)

	got, err := h.engine.GetLoanOfferMetadata(id)
	require.NoError(t, err)
	require.Equal(t, meta, *got)

	plain := h.offer(creditor, h.params(ether(10)))
	got, err = h.engine.GetLoanOfferMetadata(plain)
	require.NoError(t, err)
	require.Empty(t, got.TokenURI)

	claimID, err := h.accept(debtor, coreFee, id)
	require.NoError(t, err)
	claim, err := h.claims.GetClaim(claimID)
	require.NoError(t, err)
	require.Equal(t, "ipfs://contract.pdf", claim.AttachmentURI)

	_, err = h.engine.GetLoanOfferMetadata(id)
	require.ErrorIs(t, err, ErrLoanOfferNotFound)
}

func TestGetMissingOfferFails(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.GetLoanOffer(0)
	require.ErrorIs(t, err, ErrLoanOfferNotFound)

	id := h.offer(creditor, h.params(ether(10)))
	require.NoError(t, h.engine.RejectLoanOffer(creditor, id))
	_, err = h.engine.GetLoanOffer(id)
	require.ErrorIs(t, err, ErrLoanOfferNotFound)
	_, err = h.engine.GetLoanOfferMetadata(id)
	require.ErrorIs(t, err, ErrLoanOfferNotFound)
}

func TestRejectOnlyByOfferor(t *testing.T) {
	h := newHarness(t)
	id := h.offer(debtor, h.params(ether(10)))
	require.ErrorIs(t, h.engine.RejectLoanOffer(creditor, id), ErrNotOfferor)
	require.ErrorIs(t, h.engine.RejectLoanOffer(stranger, id), ErrNotOfferor)
	require.NoError(t, h.engine.RejectLoanOffer(debtor, id))
	require.ErrorIs(t, h.engine.RejectLoanOffer(debtor, id), ErrLoanOfferNotFound)
	require.Len(t, h.recorder.OfType(events.TypeLoanOfferRejected), 1)
}

func TestRejectAfterExpirySucceedsButAcceptFails(t *testing.T) {
	h := newHarness(t)
	p := h.params(ether(10))
	p.ExpiresAt = h.now + 60
	expiring := h.offer(creditor, p)
	other := h.offer(creditor, p)

	h.now += 60
	_, err := h.accept(debtor, coreFee, other)
	require.ErrorIs(t, err, ErrLoanOfferExpired)

	require.NoError(t, h.engine.RejectLoanOffer(creditor, expiring))
	_, err = h.engine.GetLoanOffer(expiring)
	require.ErrorIs(t, err, ErrLoanOfferNotFound)
}

func TestCallbackMustBeWhitelistedAtOffer(t *testing.T) {
	h := newHarness(t)
	p := h.params(ether(10))
	p.CallbackContract = callbackContract
	p.CallbackSelector = callbackSelector
	_, err := h.engine.OfferLoan(creditor, p)
	require.ErrorIs(t, err, ErrCallbackNotWhitelisted)

	require.NoError(t, h.engine.AddToCallbackWhitelist(admin, callbackContract, callbackSelector))
	h.offer(creditor, p)

	// a half-specified callback is not a callback
	p.CallbackSelector = Selector{}
	h.offer(creditor, p)
}

func TestExpiryCheckedBeforeCallback(t *testing.T) {
	h := newHarness(t)
	p := h.params(ether(10))
	p.ExpiresAt = h.now - 10
	p.CallbackContract = callbackContract
	p.CallbackSelector = callbackSelector
	_, err := h.engine.OfferLoan(creditor, p)
	require.ErrorIs(t, err, ErrLoanOfferExpired)
}

func TestPausedModuleBlocksMutation(t *testing.T) {
	h := newHarness(t)
	id := h.offer(creditor, h.params(ether(10)))
	h.engine.SetPauses(nativecommon.NewPauseSet(moduleName))

	_, err := h.engine.OfferLoan(creditor, h.params(ether(10)))
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)
	require.ErrorIs(t, h.engine.RejectLoanOffer(creditor, id), nativecommon.ErrModulePaused)
	_, err = h.engine.AcceptLoan(debtor, big.NewInt(coreFee), id)
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)

	offer, err := h.engine.GetLoanOffer(id)
	require.NoError(t, err)
	require.Equal(t, ether(10), offer.Params.LoanAmount)
}

func TestOfferRejectsUnboundedDurations(t *testing.T) {
	h := newHarness(t)
	for _, mutate := range []func(*LoanRequestParams){
		func(p *LoanRequestParams) { p.TermLength = math.MaxInt64 - 1000 },
		func(p *LoanRequestParams) { p.TermLength = MaxDuration + 1 },
		func(p *LoanRequestParams) { p.ImpairmentGracePeriod = math.MaxInt64 - 1000 },
		func(p *LoanRequestParams) { p.ImpairmentGracePeriod = MaxDuration + 1 },
	} {
		p := h.params(ether(10))
		mutate(&p)
		_, err := h.engine.OfferLoan(debtor, p)
		require.ErrorIs(t, err, ErrInvalidLoanParams)
	}
	count, err := h.engine.LoanOfferCount()
	require.NoError(t, err)
	require.Zero(t, count)

	p := h.params(ether(10))
	p.TermLength = MaxDuration
	claimID, err := h.accept(debtor, coreFee, h.offer(creditor, p))
	require.NoError(t, err)
	loan, err := h.engine.GetLoan(claimID)
	require.NoError(t, err)
	require.Equal(t, h.now+MaxDuration, loan.DueBy)
}
