package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

func (m *Manager) loadAmount(key []byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.KVGet(key, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// storeAmount drops zero amounts instead of writing them.
func (m *Manager) storeAmount(key []byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return m.KVDelete(key)
	}
	return m.KVPut(key, amount)
}

func (m *Manager) TokenBalance(token, owner common.Address) (*big.Int, error) {
	return m.loadAmount(tokenBalanceKey(token, owner))
}

func (m *Manager) SetTokenBalance(token, owner common.Address, amount *big.Int) error {
	return m.storeAmount(tokenBalanceKey(token, owner), amount)
}

func (m *Manager) TokenAllowance(token, owner, spender common.Address) (*big.Int, error) {
	return m.loadAmount(tokenAllowanceKey(token, owner, spender))
}

func (m *Manager) SetTokenAllowance(token, owner, spender common.Address, amount *big.Int) error {
	return m.storeAmount(tokenAllowanceKey(token, owner, spender), amount)
}

func (m *Manager) loadFlag(key []byte) (bool, error) {
	var flag bool
	ok, err := m.KVGet(key, &flag)
	if err != nil || !ok {
		return false, err
	}
	return flag, nil
}

func (m *Manager) storeFlag(key []byte, flag bool) error {
	if !flag {
		return m.KVDelete(key)
	}
	return m.KVPut(key, true)
}

func (m *Manager) loadCounter(key []byte) (uint64, error) {
	var v uint64
	if _, err := m.KVGet(key, &v); err != nil {
		return 0, err
	}
	return v, nil
}
