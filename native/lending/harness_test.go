package lending

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"frendlend/core/events"
	"frendlend/native/claims"
	"frendlend/native/token"
)

func newTestAddress(fill byte) common.Address {
	var a common.Address
	for i := range a {
		a[i] = fill
	}
	return a
}

var (
	admin    = newTestAddress(0x0A)
	creditor = newTestAddress(0xC1)
	debtor   = newTestAddress(0xD1)
	stranger = newTestAddress(0x5E)
	usd      = newTestAddress(0x11)
	eur      = newTestAddress(0x22)

	callbackContract = newTestAddress(0xCB)
	callbackSelector = Selector{0xde, 0xad, 0xbe, 0xef}
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

type notification struct {
	contract common.Address
	selector Selector
	offerID  uint64
	claimID  uint64
}

type stubDispatcher struct {
	calls []notification
	fn    func(n notification) error
}

func (d *stubDispatcher) Notify(contract common.Address, selector Selector, offerID, claimID uint64) error {
	n := notification{contract: contract, selector: selector, offerID: offerID, claimID: claimID}
	d.calls = append(d.calls, n)
	if d.fn != nil {
		return d.fn(n)
	}
	return nil
}

type harness struct {
	t          *testing.T
	now        int64
	state      *mockState
	engine     *Engine
	claims     *claims.Engine
	tokens     *token.Ledger
	recorder   *events.Recorder
	dispatcher *stubDispatcher
}

const coreFee = 1_000

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, now: 1_700_000_000, state: newMockState(), recorder: &events.Recorder{}, dispatcher: &stubDispatcher{}}
	now := func() int64 { return h.now }

	h.tokens = token.NewLedger()
	h.tokens.SetState(h.state)

	h.claims = claims.NewEngine()
	h.claims.SetState(h.state)
	h.claims.SetTokenLedger(h.tokens)
	h.claims.SetNowFunc(now)

	h.engine = NewEngine()
	h.engine.SetState(h.state)
	h.engine.SetClaimLedger(h.claims)
	h.engine.SetTokenLedger(h.tokens)
	h.engine.SetCallbackDispatcher(h.dispatcher)
	h.engine.SetEmitter(h.recorder)
	h.engine.SetNowFunc(now)

	h.state.settings.Admin = admin
	h.state.claimsSettings.Admin = admin
	h.state.claimsSettings.CoreFee = big.NewInt(coreFee)

	unlimited := new(big.Int).Lsh(big.NewInt(1), 255)
	for _, party := range []common.Address{creditor, debtor} {
		for _, tok := range []common.Address{usd, eur} {
			require.NoError(t, h.tokens.Mint(tok, party, ether(1_000_000)))
			require.NoError(t, h.tokens.Approve(tok, party, ModuleAddress(), unlimited))
		}
		require.NoError(t, h.tokens.Mint(token.Native, party, big.NewInt(1_000_000)))
	}
	require.NoError(t, h.claims.ApproveCreateClaim(creditor, ModuleAddress(), claims.UnlimitedApproval))
	return h
}

func (h *harness) params(amount *big.Int) LoanRequestParams {
	return LoanRequestParams{
		TermLength:            30 * 24 * 3600,
		Interest:              InterestConfig{InterestRateBps: 1200, NumberOfPeriodsPerYear: 12},
		LoanAmount:            amount,
		Creditor:              creditor,
		Debtor:                debtor,
		Description:           "rent advance",
		Token:                 usd,
		ImpairmentGracePeriod: 7 * 24 * 3600,
	}
}

func (h *harness) offer(caller common.Address, p LoanRequestParams) uint64 {
	h.t.Helper()
	id, err := h.engine.OfferLoan(caller, p)
	require.NoError(h.t, err)
	return id
}

// accept forwards value to the module first, as the executor does.
func (h *harness) accept(caller common.Address, value int64, offerID uint64) (uint64, error) {
	h.t.Helper()
	v := big.NewInt(value)
	require.NoError(h.t, h.tokens.Transfer(token.Native, caller, ModuleAddress(), v))
	return h.engine.AcceptLoan(caller, v, offerID)
}

func (h *harness) balance(tok, owner common.Address) *big.Int {
	h.t.Helper()
	bal, err := h.tokens.BalanceOf(tok, owner)
	require.NoError(h.t, err)
	return bal
}

func (h *harness) fees(tok common.Address) *big.Int {
	h.t.Helper()
	bal, err := h.engine.ProtocolFeesByToken(tok)
	require.NoError(h.t, err)
	return bal
}

func (h *harness) setExempt(account common.Address, exempt bool) {
	h.t.Helper()
	require.NoError(h.t, h.claims.SetExemption(admin, account, exempt))
}

var errCallbackBoom = errors.New("callback boom")
