package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"frendlend/native/claims"
)

type storedClaim struct {
	ID                    uint64
	Creditor              common.Address
	Debtor                common.Address
	Token                 common.Address
	Amount                *big.Int
	PaidAmount            *big.Int
	Description           string
	DueBy                 uint64
	ImpairmentGracePeriod uint64
	Binding               uint8
	Status                uint8
	Controller            common.Address
	TokenURI              string
	AttachmentURI         string
	CreatedAt             uint64
}

func newStoredClaim(c *claims.Claim) (*storedClaim, error) {
	if c.DueBy < 0 || c.ImpairmentGracePeriod < 0 || c.CreatedAt < 0 {
		return nil, fmt.Errorf("claims: negative timestamp on claim %d", c.ID)
	}
	return &storedClaim{
		ID:                    c.ID,
		Creditor:              c.Creditor,
		Debtor:                c.Debtor,
		Token:                 c.Token,
		Amount:                amountOrZero(c.Amount),
		PaidAmount:            amountOrZero(c.PaidAmount),
		Description:           c.Description,
		DueBy:                 uint64(c.DueBy),
		ImpairmentGracePeriod: uint64(c.ImpairmentGracePeriod),
		Binding:               uint8(c.Binding),
		Status:                uint8(c.Status),
		Controller:            c.Controller,
		TokenURI:              c.TokenURI,
		AttachmentURI:         c.AttachmentURI,
		CreatedAt:             uint64(c.CreatedAt),
	}, nil
}

func (s *storedClaim) toClaim() (*claims.Claim, error) {
	status := claims.Status(s.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("claims: stored claim %d has invalid status %d", s.ID, s.Status)
	}
	return &claims.Claim{
		ID:                    s.ID,
		Creditor:              s.Creditor,
		Debtor:                s.Debtor,
		Token:                 s.Token,
		Amount:                amountOrZero(s.Amount),
		PaidAmount:            amountOrZero(s.PaidAmount),
		Description:           s.Description,
		DueBy:                 int64(s.DueBy),
		ImpairmentGracePeriod: int64(s.ImpairmentGracePeriod),
		Binding:               claims.Binding(s.Binding),
		Status:                status,
		Controller:            s.Controller,
		TokenURI:              s.TokenURI,
		AttachmentURI:         s.AttachmentURI,
		CreatedAt:             int64(s.CreatedAt),
	}, nil
}

type storedClaimsSettings struct {
	Admin   common.Address
	CoreFee *big.Int
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (m *Manager) ClaimCount() (uint64, error) {
	return m.loadCounter(claimCountKey)
}

func (m *Manager) SetClaimCount(count uint64) error {
	return m.KVPut(claimCountKey, count)
}

func (m *Manager) ClaimGet(id uint64) (*claims.Claim, bool, error) {
	var stored storedClaim
	ok, err := m.KVGet(claimRecordKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	claim, err := stored.toClaim()
	if err != nil {
		return nil, false, err
	}
	return claim, true, nil
}

func (m *Manager) ClaimPut(claim *claims.Claim) error {
	if claim == nil {
		return fmt.Errorf("claims: nil claim")
	}
	stored, err := newStoredClaim(claim)
	if err != nil {
		return err
	}
	return m.KVPut(claimRecordKey(claim.ID), stored)
}

func (m *Manager) ClaimsSettings() (*claims.Settings, error) {
	var stored storedClaimsSettings
	ok, err := m.KVGet(claimsSettingsKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &claims.Settings{CoreFee: big.NewInt(0)}, nil
	}
	return &claims.Settings{Admin: stored.Admin, CoreFee: amountOrZero(stored.CoreFee)}, nil
}

func (m *Manager) PutClaimsSettings(settings *claims.Settings) error {
	if settings == nil {
		return fmt.Errorf("claims: nil settings")
	}
	return m.KVPut(claimsSettingsKey, &storedClaimsSettings{Admin: settings.Admin, CoreFee: amountOrZero(settings.CoreFee)})
}

func (m *Manager) ClaimApproval(owner, operator common.Address) (uint64, error) {
	return m.loadCounter(claimApprovalKey(owner, operator))
}

func (m *Manager) SetClaimApproval(owner, operator common.Address, count uint64) error {
	key := claimApprovalKey(owner, operator)
	if count == 0 {
		return m.KVDelete(key)
	}
	return m.KVPut(key, count)
}

func (m *Manager) PermitNonce(owner common.Address) (uint64, error) {
	return m.loadCounter(claimPermitNonceKey(owner))
}

func (m *Manager) SetPermitNonce(owner common.Address, nonce uint64) error {
	return m.KVPut(claimPermitNonceKey(owner), nonce)
}

func (m *Manager) FeeExempt(account common.Address) (bool, error) {
	return m.loadFlag(claimFeeExemptKey(account))
}

func (m *Manager) SetFeeExempt(account common.Address, exempt bool) error {
	return m.storeFlag(claimFeeExemptKey(account), exempt)
}
