package state

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"frendlend/core/events"
	"frendlend/native/claims"
	"frendlend/native/lending"
	"frendlend/native/token"
	"frendlend/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.Overlay, storage.Database) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	ov := storage.NewOverlay(db)
	return NewManager(ov), ov, db
}

func TestKVHelpersRoundTrip(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	var missing uint64
	ok, err := mgr.KVGet([]byte("absent"), &missing)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, mgr.KVPut([]byte("answer"), uint64(42)))
	var got uint64
	ok, err = mgr.KVGet([]byte("answer"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(42), got)

	tokens := []common.Address{{0x01}, {0x02}}
	require.NoError(t, mgr.KVPut([]byte("list"), tokens))
	list, err := loadList[common.Address](mgr, []byte("list"))
	require.NoError(t, err)
	require.Equal(t, tokens, list)

	empty, err := loadList[common.Address](mgr, []byte("none"))
	require.NoError(t, err)
	require.NotNil(t, empty)
	require.Empty(t, empty)

	require.NoError(t, mgr.KVDelete([]byte("answer")))
	ok, err = mgr.KVGet([]byte("answer"), &got)
	require.NoError(t, err)
	require.False(t, ok)

	require.Error(t, mgr.KVPut(nil, uint64(1)))
}

func TestSnapshotRevertsWritesAndEvents(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	rec := &events.Recorder{}
	mgr.SetEventJournal(rec)

	owner := common.HexToAddress("0x01")
	require.NoError(t, mgr.SetTokenBalance(token.Native, owner, big.NewInt(10)))
	rec.Emit(events.Transfer{Token: token.Native, To: owner, Amount: big.NewInt(10)})

	rev := mgr.Snapshot()
	require.NoError(t, mgr.SetTokenBalance(token.Native, owner, big.NewInt(99)))
	rec.Emit(events.Transfer{Token: token.Native, To: owner, Amount: big.NewInt(89)})
	inner := mgr.Snapshot()
	require.NoError(t, mgr.SetFeeExempt(owner, true))

	mgr.RevertToSnapshot(rev)
	bal, err := mgr.TokenBalance(token.Native, owner)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10), bal)
	exempt, err := mgr.FeeExempt(owner)
	require.NoError(t, err)
	require.False(t, exempt)
	require.Equal(t, 1, rec.Len())

	// reverting past a snapshot invalidates the ones taken after it
	mgr.RevertToSnapshot(inner)
	bal, err = mgr.TokenBalance(token.Native, owner)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10), bal)
}

func TestStateVersion(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	require.NoError(t, mgr.CheckStateVersion())

	require.NoError(t, mgr.SetStateVersion(StateVersion+1))
	require.ErrorIs(t, mgr.CheckStateVersion(), ErrStateVersionMismatch)

	require.NoError(t, mgr.SetStateVersion(StateVersion))
	version, ok, err := mgr.StateVersion()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StateVersion, version)
}

func TestClaimRecordsRoundTrip(t *testing.T) {
	mgr, ov, db := newTestManager(t)
	claim := &claims.Claim{
		ID:                    3,
		Creditor:              common.HexToAddress("0xc1"),
		Debtor:                common.HexToAddress("0xd1"),
		Token:                 common.HexToAddress("0x11"),
		Amount:                big.NewInt(500),
		PaidAmount:            big.NewInt(120),
		Description:           "invoice 12",
		DueBy:                 1_700_000_000,
		ImpairmentGracePeriod: 3600,
		Binding:               claims.Bound,
		Status:                claims.StatusRepaying,
		Controller:            lending.ModuleAddress(),
		TokenURI:              "ipfs://claim",
		CreatedAt:             1_690_000_000,
	}
	require.NoError(t, mgr.ClaimPut(claim))
	require.NoError(t, mgr.SetClaimCount(3))
	require.NoError(t, ov.Commit())

	reopened := NewManager(storage.NewOverlay(db))
	got, ok, err := reopened.ClaimGet(3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, claim, got)
	count, err := reopened.ClaimCount()
	require.NoError(t, err)
	require.Equal(t, uint64(3), count)

	_, ok, err = reopened.ClaimGet(4)
	require.NoError(t, err)
	require.False(t, ok)

	bad := claim.Clone()
	bad.DueBy = -1
	require.Error(t, reopened.ClaimPut(bad))
}

func TestLendingRecordsRoundTrip(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	offer := &lending.LoanOffer{
		Params: lending.LoanRequestParams{
			TermLength:            86_400,
			Interest:              lending.InterestConfig{InterestRateBps: 1200, NumberOfPeriodsPerYear: 12},
			LoanAmount:            big.NewInt(1_000),
			Creditor:              common.HexToAddress("0xc1"),
			Debtor:                common.HexToAddress("0xd1"),
			Description:           "bridge loan",
			Token:                 common.HexToAddress("0x11"),
			ImpairmentGracePeriod: 600,
			ExpiresAt:             1_800_000_000,
			CallbackContract:      common.HexToAddress("0xcb"),
			CallbackSelector:      lending.Selector{0xde, 0xad, 0xbe, 0xef},
		},
		RequestedByCreditor: true,
	}
	require.NoError(t, mgr.LoanOfferPut(0, offer))
	got, ok, err := mgr.LoanOfferGet(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, offer, got)

	meta := &lending.LoanOfferMetadata{TokenURI: "ipfs://a", AttachmentURI: "ipfs://b"}
	require.NoError(t, mgr.LoanOfferMetadataPut(0, meta))
	gotMeta, ok, err := mgr.LoanOfferMetadataGet(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, meta, gotMeta)

	require.NoError(t, mgr.LoanOfferDelete(0))
	require.NoError(t, mgr.LoanOfferMetadataDelete(0))
	_, ok, err = mgr.LoanOfferGet(0)
	require.NoError(t, err)
	require.False(t, ok)

	loan := &lending.Loan{
		ClaimID:     1,
		OfferID:     0,
		Creditor:    offer.Params.Creditor,
		Debtor:      offer.Params.Debtor,
		Token:       offer.Params.Token,
		ClaimAmount: big.NewInt(1_000),
		Interest:    offer.Params.Interest,
		InterestState: lending.InterestState{
			AccruedInterest:        big.NewInt(7),
			LatestPeriodNumber:     2,
			TotalGrossInterestPaid: big.NewInt(3),
		},
		ImpairmentGracePeriod: 600,
		ProtocolFeeExempt:     true,
		AcceptedAt:            1_700_000_000,
		DueBy:                 1_700_086_400,
	}
	require.NoError(t, mgr.LoanPut(loan))
	gotLoan, ok, err := mgr.LoanGet(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, loan, gotLoan)

	tokens := []common.Address{common.HexToAddress("0x11"), common.HexToAddress("0x22")}
	require.NoError(t, mgr.SetProtocolFeeTokens(tokens))
	gotTokens, err := mgr.ProtocolFeeTokens()
	require.NoError(t, err)
	require.Equal(t, tokens, gotTokens)

	require.NoError(t, mgr.SetCallbackWhitelisted(offer.Params.CallbackContract, offer.Params.CallbackSelector, true))
	listed, err := mgr.CallbackWhitelisted(offer.Params.CallbackContract, lending.Selector{0xde, 0xad, 0xbe, 0xee})
	require.NoError(t, err)
	require.False(t, listed)
}

func TestManagerBacksLendingEngine(t *testing.T) {
	mgr, ov, db := newTestManager(t)
	admin := common.HexToAddress("0x0a")
	creditor := common.HexToAddress("0xc1")
	debtor := common.HexToAddress("0xd1")
	usd := common.HexToAddress("0x11")

	tokens := token.NewLedger()
	tokens.SetState(mgr)
	claimsEngine := claims.NewEngine()
	claimsEngine.SetState(mgr)
	claimsEngine.SetTokenLedger(tokens)
	engine := lending.NewEngine()
	engine.SetState(mgr)
	engine.SetClaimLedger(claimsEngine)
	engine.SetTokenLedger(tokens)

	require.NoError(t, mgr.PutLendingSettings(&lending.Settings{Admin: admin, ProcessingFeeBps: 500}))
	require.NoError(t, tokens.Mint(usd, creditor, big.NewInt(10_000)))
	require.NoError(t, tokens.Approve(usd, creditor, lending.ModuleAddress(), big.NewInt(10_000)))
	require.NoError(t, claimsEngine.ApproveCreateClaim(creditor, lending.ModuleAddress(), 1))

	offerID, err := engine.OfferLoan(creditor, lending.LoanRequestParams{
		TermLength: 86_400,
		LoanAmount: big.NewInt(1_000),
		Creditor:   creditor,
		Debtor:     debtor,
		Token:      usd,
	})
	require.NoError(t, err)
	claimID, err := engine.AcceptLoan(debtor, big.NewInt(0), offerID)
	require.NoError(t, err)
	require.NoError(t, ov.Commit())

	reopened := NewManager(storage.NewOverlay(db))
	bal, err := reopened.TokenBalance(usd, debtor)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(950), bal)
	fee, err := reopened.ProtocolFeeBalance(usd)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(50), fee)
	loan, ok, err := reopened.LoanGet(claimID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, offerID, loan.OfferID)
	settings, err := reopened.LendingSettings()
	require.NoError(t, err)
	require.Equal(t, uint64(1), settings.LoanOfferCount)
}
