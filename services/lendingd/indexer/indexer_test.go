package indexer

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
	"gorm.io/gorm"

	"frendlend/core/events"
	"frendlend/core/types"
)

var (
	creditor = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	debtor   = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	usd      = common.HexToAddress("0x0000000000000000000000000000000000000555")
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	return db
}

func acceptanceEvents() []events.Event {
	return []events.Event{
		events.ClaimCreated{ID: 1, Operator: creditor, Creditor: creditor, Debtor: debtor, Token: usd, Amount: big.NewInt(1000), DueBy: 1_700_086_400},
		events.LoanOfferAccepted{OfferID: 0, ClaimID: 1, Acceptor: debtor, Receiver: debtor, Token: usd, Amount: big.NewInt(1000), ProcessingFee: big.NewInt(50), CoreFee: big.NewInt(1)},
	}
}

func TestIndexBuildsLoanReadModel(t *testing.T) {
	idx, err := New(openTestDB(t), 8, nil)
	require.NoError(t, err)
	ctx := context.Background()

	for _, evt := range acceptanceEvents() {
		_, err := idx.Index(ctx, evt)
		require.NoError(t, err)
	}
	loan, err := idx.Loan(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, loan.OfferID)
	require.Equal(t, uint64(0), *loan.OfferID)
	require.Equal(t, "pending", loan.Status)
	require.Equal(t, "1000", loan.Amount)
	require.Equal(t, creditor.Hex(), loan.Creditor)

	_, err = idx.Index(ctx, events.ClaimPayment{ID: 1, Amount: big.NewInt(400), PaidAmount: big.NewInt(400), Status: "repaying"})
	require.NoError(t, err)
	_, err = idx.Index(ctx, events.ClaimStatusChanged{ID: 1, Status: "impaired"})
	require.NoError(t, err)

	loan, err = idx.Loan(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "impaired", loan.Status)
	require.Equal(t, "400", loan.PaidAmount)

	loans, err := idx.LoansByAccount(ctx, debtor.Hex())
	require.NoError(t, err)
	require.Len(t, loans, 1)

	_, err = idx.Loan(ctx, 9)
	require.ErrorIs(t, err, ErrLoanNotIndexed)
}

func TestEventsFilterAndSequenceResume(t *testing.T) {
	db := openTestDB(t)
	idx, err := New(db, 8, nil)
	require.NoError(t, err)
	ctx := context.Background()
	for _, evt := range acceptanceEvents() {
		_, err := idx.Index(ctx, evt)
		require.NoError(t, err)
	}

	claimID := uint64(1)
	byClaim, err := idx.Events(ctx, Filter{ClaimID: &claimID})
	require.NoError(t, err)
	require.Len(t, byClaim, 2)
	require.Equal(t, uint64(1), byClaim[0].Sequence)

	accepted, err := idx.Events(ctx, Filter{Type: events.TypeLoanOfferAccepted})
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	require.Contains(t, accepted[0].Attributes, `"processingFee":"50"`)

	resumed, err := New(db, 8, nil)
	require.NoError(t, err)
	rec, err := resumed.Index(ctx, events.ClaimStatusChanged{ID: 1, Status: "paid"})
	require.NoError(t, err)
	require.Equal(t, uint64(3), rec.Sequence)

	after, err := resumed.Events(ctx, Filter{AfterSequence: 2})
	require.NoError(t, err)
	require.Len(t, after, 1)
}

func TestFingerprintIgnoresAttributeOrder(t *testing.T) {
	a := &types.Event{Type: "x", Attributes: map[string]string{"a": "1", "b": "2"}}
	b := &types.Event{Type: "x", Attributes: map[string]string{"b": "2", "a": "1"}}
	require.Equal(t, Fingerprint(1, a), Fingerprint(1, b))
	require.NotEqual(t, Fingerprint(1, a), Fingerprint(2, a))
	require.Len(t, Fingerprint(1, a), 64)
}

func TestRunDrainsQueueOnCancel(t *testing.T) {
	idx, err := New(openTestDB(t), 8, nil)
	require.NoError(t, err)
	for _, evt := range acceptanceEvents() {
		idx.Emit(evt)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- idx.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("indexer did not stop")
	}
	rows, err := idx.Events(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestExportParquet(t *testing.T) {
	idx, err := New(openTestDB(t), 8, nil)
	require.NoError(t, err)
	ctx := context.Background()
	for _, evt := range acceptanceEvents() {
		_, err := idx.Index(ctx, evt)
		require.NoError(t, err)
	}
	_, err = idx.Index(ctx, events.FeesWithdrawn{Token: usd, Amount: big.NewInt(5), Recipient: creditor})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "events.parquet")
	n, err := idx.ExportParquet(ctx, path, Filter{})
	require.NoError(t, err)
	require.Equal(t, 3, n)

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(parquetEvent), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	require.Equal(t, int64(3), pr.GetNumRows())
	rows := make([]parquetEvent, 3)
	require.NoError(t, pr.Read(&rows))
	require.Equal(t, events.TypeClaimCreated, rows[0].Type)
	require.Equal(t, int64(1), rows[1].ClaimID)
	require.Equal(t, int64(-1), rows[2].ClaimID)
}
