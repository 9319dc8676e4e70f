package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"frendlend/native/claims"
)

type callbackKey struct {
	contract common.Address
	selector Selector
}

// mockState backs the lending, claims and token engines at once so tests can
// drive real collaborators. Snapshots deep-copy the whole state.
type mockState struct {
	settings   *Settings
	offers     map[uint64]*LoanOffer
	metadata   map[uint64]*LoanOfferMetadata
	loans      map[uint64]*Loan
	feeBal     map[common.Address]*big.Int
	feeTokens  []common.Address
	blacklist  map[common.Address]bool
	whitelist  map[common.Address]bool
	callbacks  map[callbackKey]bool
	balances   map[[2]common.Address]*big.Int
	allowances map[[3]common.Address]*big.Int

	claimCount     uint64
	claims         map[uint64]*claims.Claim
	claimsSettings *claims.Settings
	approvals      map[[2]common.Address]uint64
	nonces         map[common.Address]uint64
	exempt         map[common.Address]bool

	snapshots []*mockState
}

func newMockState() *mockState {
	return &mockState{
		settings:       &Settings{},
		offers:         make(map[uint64]*LoanOffer),
		metadata:       make(map[uint64]*LoanOfferMetadata),
		loans:          make(map[uint64]*Loan),
		feeBal:         make(map[common.Address]*big.Int),
		blacklist:      make(map[common.Address]bool),
		whitelist:      make(map[common.Address]bool),
		callbacks:      make(map[callbackKey]bool),
		balances:       make(map[[2]common.Address]*big.Int),
		allowances:     make(map[[3]common.Address]*big.Int),
		claims:         make(map[uint64]*claims.Claim),
		claimsSettings: &claims.Settings{CoreFee: big.NewInt(0)},
		approvals:      make(map[[2]common.Address]uint64),
		nonces:         make(map[common.Address]uint64),
		exempt:         make(map[common.Address]bool),
	}
}

func (m *mockState) clone() *mockState {
	c := newMockState()
	c.settings = m.settings.Clone()
	for k, v := range m.offers {
		c.offers[k] = v.Clone()
	}
	for k, v := range m.metadata {
		copied := *v
		c.metadata[k] = &copied
	}
	for k, v := range m.loans {
		c.loans[k] = v.Clone()
	}
	for k, v := range m.feeBal {
		c.feeBal[k] = cloneBigInt(v)
	}
	c.feeTokens = append([]common.Address(nil), m.feeTokens...)
	for k, v := range m.blacklist {
		c.blacklist[k] = v
	}
	for k, v := range m.whitelist {
		c.whitelist[k] = v
	}
	for k, v := range m.callbacks {
		c.callbacks[k] = v
	}
	for k, v := range m.balances {
		c.balances[k] = cloneBigInt(v)
	}
	for k, v := range m.allowances {
		c.allowances[k] = cloneBigInt(v)
	}
	c.claimCount = m.claimCount
	for k, v := range m.claims {
		c.claims[k] = v.Clone()
	}
	c.claimsSettings = m.claimsSettings.Clone()
	for k, v := range m.approvals {
		c.approvals[k] = v
	}
	for k, v := range m.nonces {
		c.nonces[k] = v
	}
	for k, v := range m.exempt {
		c.exempt[k] = v
	}
	return c
}

func (m *mockState) Snapshot() int {
	m.snapshots = append(m.snapshots, m.clone())
	return len(m.snapshots) - 1
}

func (m *mockState) RevertToSnapshot(rev int) {
	if rev < 0 || rev >= len(m.snapshots) {
		return
	}
	saved := m.snapshots[rev]
	snapshots := m.snapshots[:rev]
	*m = *saved.clone()
	m.snapshots = snapshots
}

// lending state

func (m *mockState) LendingSettings() (*Settings, error) { return m.settings.Clone(), nil }

func (m *mockState) PutLendingSettings(s *Settings) error {
	m.settings = s.Clone()
	return nil
}

func (m *mockState) LoanOfferGet(id uint64) (*LoanOffer, bool, error) {
	o, ok := m.offers[id]
	if !ok {
		return nil, false, nil
	}
	return o.Clone(), true, nil
}

func (m *mockState) LoanOfferPut(id uint64, o *LoanOffer) error {
	m.offers[id] = o.Clone()
	return nil
}

func (m *mockState) LoanOfferDelete(id uint64) error {
	delete(m.offers, id)
	return nil
}

func (m *mockState) LoanOfferMetadataGet(id uint64) (*LoanOfferMetadata, bool, error) {
	meta, ok := m.metadata[id]
	if !ok {
		return nil, false, nil
	}
	copied := *meta
	return &copied, true, nil
}

func (m *mockState) LoanOfferMetadataPut(id uint64, meta *LoanOfferMetadata) error {
	copied := *meta
	m.metadata[id] = &copied
	return nil
}

func (m *mockState) LoanOfferMetadataDelete(id uint64) error {
	delete(m.metadata, id)
	return nil
}

func (m *mockState) LoanGet(id uint64) (*Loan, bool, error) {
	l, ok := m.loans[id]
	if !ok {
		return nil, false, nil
	}
	return l.Clone(), true, nil
}

func (m *mockState) LoanPut(l *Loan) error {
	m.loans[l.ClaimID] = l.Clone()
	return nil
}

func (m *mockState) ProtocolFeeBalance(tok common.Address) (*big.Int, error) {
	return cloneBigInt(m.feeBal[tok]), nil
}

func (m *mockState) SetProtocolFeeBalance(tok common.Address, amount *big.Int) error {
	m.feeBal[tok] = cloneBigInt(amount)
	return nil
}

func (m *mockState) ProtocolFeeTokens() ([]common.Address, error) {
	return append([]common.Address(nil), m.feeTokens...), nil
}

func (m *mockState) SetProtocolFeeTokens(tokens []common.Address) error {
	m.feeTokens = append([]common.Address(nil), tokens...)
	return nil
}

func (m *mockState) FeeTokenBlacklisted(tok common.Address) (bool, error) {
	return m.blacklist[tok], nil
}

func (m *mockState) SetFeeTokenBlacklisted(tok common.Address, v bool) error {
	m.blacklist[tok] = v
	return nil
}

func (m *mockState) FeeTokenWhitelisted(tok common.Address) (bool, error) {
	return m.whitelist[tok], nil
}

func (m *mockState) SetFeeTokenWhitelisted(tok common.Address, v bool) error {
	m.whitelist[tok] = v
	return nil
}

func (m *mockState) CallbackWhitelisted(contract common.Address, sel Selector) (bool, error) {
	return m.callbacks[callbackKey{contract, sel}], nil
}

func (m *mockState) SetCallbackWhitelisted(contract common.Address, sel Selector, v bool) error {
	m.callbacks[callbackKey{contract, sel}] = v
	return nil
}

// token state

func (m *mockState) TokenBalance(tok, owner common.Address) (*big.Int, error) {
	return cloneBigInt(m.balances[[2]common.Address{tok, owner}]), nil
}

func (m *mockState) SetTokenBalance(tok, owner common.Address, amount *big.Int) error {
	m.balances[[2]common.Address{tok, owner}] = cloneBigInt(amount)
	return nil
}

func (m *mockState) TokenAllowance(tok, owner, spender common.Address) (*big.Int, error) {
	return cloneBigInt(m.allowances[[3]common.Address{tok, owner, spender}]), nil
}

func (m *mockState) SetTokenAllowance(tok, owner, spender common.Address, amount *big.Int) error {
	m.allowances[[3]common.Address{tok, owner, spender}] = cloneBigInt(amount)
	return nil
}

// claims state

func (m *mockState) ClaimCount() (uint64, error)      { return m.claimCount, nil }
func (m *mockState) SetClaimCount(count uint64) error { m.claimCount = count; return nil }

func (m *mockState) ClaimGet(id uint64) (*claims.Claim, bool, error) {
	c, ok := m.claims[id]
	if !ok {
		return nil, false, nil
	}
	return c.Clone(), true, nil
}

func (m *mockState) ClaimPut(c *claims.Claim) error {
	m.claims[c.ID] = c.Clone()
	return nil
}

func (m *mockState) ClaimsSettings() (*claims.Settings, error) { return m.claimsSettings.Clone(), nil }

func (m *mockState) PutClaimsSettings(s *claims.Settings) error {
	m.claimsSettings = s.Clone()
	return nil
}

func (m *mockState) ClaimApproval(owner, operator common.Address) (uint64, error) {
	return m.approvals[[2]common.Address{owner, operator}], nil
}

func (m *mockState) SetClaimApproval(owner, operator common.Address, count uint64) error {
	m.approvals[[2]common.Address{owner, operator}] = count
	return nil
}

func (m *mockState) PermitNonce(owner common.Address) (uint64, error) { return m.nonces[owner], nil }

func (m *mockState) SetPermitNonce(owner common.Address, nonce uint64) error {
	m.nonces[owner] = nonce
	return nil
}

func (m *mockState) FeeExempt(a common.Address) (bool, error) { return m.exempt[a], nil }

func (m *mockState) SetFeeExempt(a common.Address, v bool) error {
	m.exempt[a] = v
	return nil
}
