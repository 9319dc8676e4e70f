package fees

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustAmount(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok)
	return v
}

func TestApplyRoundsFeeDown(t *testing.T) {
	res := Apply(big.NewInt(1999), 500)
	require.Equal(t, big.NewInt(99), res.Fee)
	require.Equal(t, big.NewInt(1900), res.Net)
}

func TestApplyProcessingFeeScenario(t *testing.T) {
	res := Apply(mustAmount(t, "1000000000000000000000"), 500)
	require.Equal(t, mustAmount(t, "50000000000000000000"), res.Fee)
	require.Equal(t, mustAmount(t, "950000000000000000000"), res.Net)
}

func TestApplyEdgeRates(t *testing.T) {
	zero := Apply(big.NewInt(100), 0)
	require.Zero(t, zero.Fee.Sign())
	require.Equal(t, big.NewInt(100), zero.Net)

	full := Apply(big.NewInt(100), MaxBps)
	require.Equal(t, big.NewInt(100), full.Fee)
	require.Zero(t, full.Net.Sign())

	empty := Apply(nil, 250)
	require.Zero(t, empty.Fee.Sign())
}

func TestValidateBps(t *testing.T) {
	require.NoError(t, ValidateBps(MaxBps))
	require.ErrorIs(t, ValidateBps(MaxBps+1), ErrInvalidBps)
}

func TestTotalsAdd(t *testing.T) {
	var totals Totals
	totals.Add(big.NewInt(1000), Apply(big.NewInt(1000), 500))
	totals.Add(big.NewInt(1000), Apply(big.NewInt(1000), 1000))
	require.Equal(t, big.NewInt(2000), totals.Gross)
	require.Equal(t, big.NewInt(150), totals.Fee)
	require.Equal(t, big.NewInt(1850), totals.Net)
}
