package token

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"frendlend/core/events"
	nativecommon "frendlend/native/common"
)

type allowanceKey struct {
	token, owner, spender common.Address
}

type mockState struct {
	balances   map[[2]common.Address]*big.Int
	allowances map[allowanceKey]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		balances:   make(map[[2]common.Address]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
	}
}

func (m *mockState) TokenBalance(token, owner common.Address) (*big.Int, error) {
	return m.balances[[2]common.Address{token, owner}], nil
}

func (m *mockState) SetTokenBalance(token, owner common.Address, amount *big.Int) error {
	m.balances[[2]common.Address{token, owner}] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) TokenAllowance(token, owner, spender common.Address) (*big.Int, error) {
	return m.allowances[allowanceKey{token, owner, spender}], nil
}

func (m *mockState) SetTokenAllowance(token, owner, spender common.Address, amount *big.Int) error {
	m.allowances[allowanceKey{token, owner, spender}] = new(big.Int).Set(amount)
	return nil
}

func addr(fill byte) common.Address {
	var a common.Address
	for i := range a {
		a[i] = fill
	}
	return a
}

func newTestLedger(t *testing.T) (*Ledger, *events.Recorder) {
	t.Helper()
	l := NewLedger()
	l.SetState(newMockState())
	rec := &events.Recorder{}
	l.SetEmitter(rec)
	return l, rec
}

func TestTransferMovesBalance(t *testing.T) {
	l, rec := newTestLedger(t)
	tok, alice, bob := addr(0x01), addr(0xAA), addr(0xBB)
	require.NoError(t, l.Mint(tok, alice, big.NewInt(100)))
	require.NoError(t, l.Transfer(tok, alice, bob, big.NewInt(40)))

	bal, err := l.BalanceOf(tok, alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(60), bal)
	bal, err = l.BalanceOf(tok, bob)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(40), bal)

	require.ErrorIs(t, l.Transfer(tok, bob, alice, big.NewInt(41)), ErrInsufficientBalance)
	require.Len(t, rec.OfType(events.TypeTransfer), 2)
}

func TestTransferFromSpendsAllowance(t *testing.T) {
	l, _ := newTestLedger(t)
	tok, alice, bob, module := addr(0x01), addr(0xAA), addr(0xBB), addr(0xCC)
	require.NoError(t, l.Mint(tok, alice, big.NewInt(100)))

	require.ErrorIs(t, l.TransferFrom(tok, module, alice, bob, big.NewInt(10)), ErrInsufficientAllowance)

	require.NoError(t, l.Approve(tok, alice, module, big.NewInt(30)))
	require.NoError(t, l.TransferFrom(tok, module, alice, bob, big.NewInt(25)))
	remaining, err := l.Allowance(tok, alice, module)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(5), remaining)

	require.NoError(t, l.TransferFrom(tok, alice, alice, bob, big.NewInt(5)))
}

func TestAmountBounds(t *testing.T) {
	l, _ := newTestLedger(t)
	tok, alice := addr(0x01), addr(0xAA)
	huge := new(big.Int).Lsh(big.NewInt(1), 256)
	require.ErrorIs(t, l.Mint(tok, alice, huge), ErrAmountOverflow)
	require.ErrorIs(t, l.Transfer(tok, alice, addr(0xBB), big.NewInt(-1)), ErrInvalidAmount)
	require.ErrorIs(t, l.Mint(tok, common.Address{}, big.NewInt(1)), ErrZeroAddress)
}

func TestPausedLedgerRejectsTransfers(t *testing.T) {
	l, _ := newTestLedger(t)
	tok, alice := addr(0x01), addr(0xAA)
	require.NoError(t, l.Mint(tok, alice, big.NewInt(10)))
	l.SetPauses(nativecommon.NewPauseSet(moduleName))
	require.ErrorIs(t, l.Transfer(tok, alice, addr(0xBB), big.NewInt(1)), nativecommon.ErrModulePaused)
}
