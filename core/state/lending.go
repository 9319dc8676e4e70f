package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"frendlend/native/lending"
)

type storedLoanOffer struct {
	TermLength            uint64
	InterestRateBps       uint16
	PeriodsPerYear        uint16
	LoanAmount            *big.Int
	Creditor              common.Address
	Debtor                common.Address
	Description           string
	Token                 common.Address
	ImpairmentGracePeriod uint64
	ExpiresAt             uint64
	CallbackContract      common.Address
	CallbackSelector      [4]byte
	RequestedByCreditor   bool
}

func nonNegative(field string, v int64) (uint64, error) {
	if v < 0 {
		return 0, fmt.Errorf("lending: negative %s", field)
	}
	return uint64(v), nil
}

func newStoredLoanOffer(o *lending.LoanOffer) (*storedLoanOffer, error) {
	p := o.Params
	term, err := nonNegative("term length", p.TermLength)
	if err != nil {
		return nil, err
	}
	grace, err := nonNegative("grace period", p.ImpairmentGracePeriod)
	if err != nil {
		return nil, err
	}
	expires, err := nonNegative("expiry", p.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &storedLoanOffer{
		TermLength:            term,
		InterestRateBps:       p.Interest.InterestRateBps,
		PeriodsPerYear:        p.Interest.NumberOfPeriodsPerYear,
		LoanAmount:            amountOrZero(p.LoanAmount),
		Creditor:              p.Creditor,
		Debtor:                p.Debtor,
		Description:           p.Description,
		Token:                 p.Token,
		ImpairmentGracePeriod: grace,
		ExpiresAt:             expires,
		CallbackContract:      p.CallbackContract,
		CallbackSelector:      p.CallbackSelector,
		RequestedByCreditor:   o.RequestedByCreditor,
	}, nil
}

func (s *storedLoanOffer) toLoanOffer() *lending.LoanOffer {
	return &lending.LoanOffer{
		Params: lending.LoanRequestParams{
			TermLength:            int64(s.TermLength),
			Interest:              lending.InterestConfig{InterestRateBps: s.InterestRateBps, NumberOfPeriodsPerYear: s.PeriodsPerYear},
			LoanAmount:            amountOrZero(s.LoanAmount),
			Creditor:              s.Creditor,
			Debtor:                s.Debtor,
			Description:           s.Description,
			Token:                 s.Token,
			ImpairmentGracePeriod: int64(s.ImpairmentGracePeriod),
			ExpiresAt:             int64(s.ExpiresAt),
			CallbackContract:      s.CallbackContract,
			CallbackSelector:      lending.Selector(s.CallbackSelector),
		},
		RequestedByCreditor: s.RequestedByCreditor,
	}
}

type storedLoan struct {
	ClaimID                uint64
	OfferID                uint64
	Creditor               common.Address
	Debtor                 common.Address
	Token                  common.Address
	ClaimAmount            *big.Int
	InterestRateBps        uint16
	PeriodsPerYear         uint16
	AccruedInterest        *big.Int
	LatestPeriodNumber     uint64
	TotalGrossInterestPaid *big.Int
	ImpairmentGracePeriod  uint64
	ProtocolFeeExempt      bool
	AcceptedAt             uint64
	DueBy                  uint64
}

func newStoredLoan(l *lending.Loan) (*storedLoan, error) {
	grace, err := nonNegative("grace period", l.ImpairmentGracePeriod)
	if err != nil {
		return nil, err
	}
	accepted, err := nonNegative("acceptance time", l.AcceptedAt)
	if err != nil {
		return nil, err
	}
	due, err := nonNegative("due date", l.DueBy)
	if err != nil {
		return nil, err
	}
	return &storedLoan{
		ClaimID:                l.ClaimID,
		OfferID:                l.OfferID,
		Creditor:               l.Creditor,
		Debtor:                 l.Debtor,
		Token:                  l.Token,
		ClaimAmount:            amountOrZero(l.ClaimAmount),
		InterestRateBps:        l.Interest.InterestRateBps,
		PeriodsPerYear:         l.Interest.NumberOfPeriodsPerYear,
		AccruedInterest:        amountOrZero(l.InterestState.AccruedInterest),
		LatestPeriodNumber:     l.InterestState.LatestPeriodNumber,
		TotalGrossInterestPaid: amountOrZero(l.InterestState.TotalGrossInterestPaid),
		ImpairmentGracePeriod:  grace,
		ProtocolFeeExempt:      l.ProtocolFeeExempt,
		AcceptedAt:             accepted,
		DueBy:                  due,
	}, nil
}

func (s *storedLoan) toLoan() *lending.Loan {
	return &lending.Loan{
		ClaimID:     s.ClaimID,
		OfferID:     s.OfferID,
		Creditor:    s.Creditor,
		Debtor:      s.Debtor,
		Token:       s.Token,
		ClaimAmount: amountOrZero(s.ClaimAmount),
		Interest:    lending.InterestConfig{InterestRateBps: s.InterestRateBps, NumberOfPeriodsPerYear: s.PeriodsPerYear},
		InterestState: lending.InterestState{
			AccruedInterest:        amountOrZero(s.AccruedInterest),
			LatestPeriodNumber:     s.LatestPeriodNumber,
			TotalGrossInterestPaid: amountOrZero(s.TotalGrossInterestPaid),
		},
		ImpairmentGracePeriod: int64(s.ImpairmentGracePeriod),
		ProtocolFeeExempt:     s.ProtocolFeeExempt,
		AcceptedAt:            int64(s.AcceptedAt),
		DueBy:                 int64(s.DueBy),
	}
}

type storedLendingSettings struct {
	Admin            common.Address
	ProtocolFeeBps   uint16
	ProcessingFeeBps uint16
	LoanOfferCount   uint64
}

func (m *Manager) LendingSettings() (*lending.Settings, error) {
	var stored storedLendingSettings
	if _, err := m.KVGet(lendingSettingsKey, &stored); err != nil {
		return nil, err
	}
	return &lending.Settings{
		Admin:            stored.Admin,
		ProtocolFeeBps:   stored.ProtocolFeeBps,
		ProcessingFeeBps: stored.ProcessingFeeBps,
		LoanOfferCount:   stored.LoanOfferCount,
	}, nil
}

func (m *Manager) PutLendingSettings(settings *lending.Settings) error {
	if settings == nil {
		return fmt.Errorf("lending: nil settings")
	}
	return m.KVPut(lendingSettingsKey, &storedLendingSettings{
		Admin:            settings.Admin,
		ProtocolFeeBps:   settings.ProtocolFeeBps,
		ProcessingFeeBps: settings.ProcessingFeeBps,
		LoanOfferCount:   settings.LoanOfferCount,
	})
}

func (m *Manager) LoanOfferGet(id uint64) (*lending.LoanOffer, bool, error) {
	var stored storedLoanOffer
	ok, err := m.KVGet(lendingOfferKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toLoanOffer(), true, nil
}

func (m *Manager) LoanOfferPut(id uint64, offer *lending.LoanOffer) error {
	if offer == nil {
		return fmt.Errorf("lending: nil offer")
	}
	stored, err := newStoredLoanOffer(offer)
	if err != nil {
		return err
	}
	return m.KVPut(lendingOfferKey(id), stored)
}

func (m *Manager) LoanOfferDelete(id uint64) error {
	return m.KVDelete(lendingOfferKey(id))
}

func (m *Manager) LoanOfferMetadataGet(id uint64) (*lending.LoanOfferMetadata, bool, error) {
	meta := new(lending.LoanOfferMetadata)
	ok, err := m.KVGet(lendingOfferMetaKey(id), meta)
	if err != nil || !ok {
		return nil, false, err
	}
	return meta, true, nil
}

func (m *Manager) LoanOfferMetadataPut(id uint64, meta *lending.LoanOfferMetadata) error {
	if meta == nil {
		return fmt.Errorf("lending: nil offer metadata")
	}
	return m.KVPut(lendingOfferMetaKey(id), meta)
}

func (m *Manager) LoanOfferMetadataDelete(id uint64) error {
	return m.KVDelete(lendingOfferMetaKey(id))
}

func (m *Manager) LoanGet(claimID uint64) (*lending.Loan, bool, error) {
	var stored storedLoan
	ok, err := m.KVGet(lendingLoanKey(claimID), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toLoan(), true, nil
}

func (m *Manager) LoanPut(loan *lending.Loan) error {
	if loan == nil {
		return fmt.Errorf("lending: nil loan")
	}
	stored, err := newStoredLoan(loan)
	if err != nil {
		return err
	}
	return m.KVPut(lendingLoanKey(loan.ClaimID), stored)
}

func (m *Manager) ProtocolFeeBalance(tok common.Address) (*big.Int, error) {
	return m.loadAmount(lendingFeeBalanceKey(tok))
}

func (m *Manager) SetProtocolFeeBalance(tok common.Address, amount *big.Int) error {
	return m.storeAmount(lendingFeeBalanceKey(tok), amount)
}

func (m *Manager) ProtocolFeeTokens() ([]common.Address, error) {
	return loadList[common.Address](m, lendingFeeTokensKey)
}

func (m *Manager) SetProtocolFeeTokens(tokens []common.Address) error {
	if len(tokens) == 0 {
		return m.KVDelete(lendingFeeTokensKey)
	}
	return m.KVPut(lendingFeeTokensKey, tokens)
}

func (m *Manager) FeeTokenBlacklisted(tok common.Address) (bool, error) {
	return m.loadFlag(lendingBlacklistKey(tok))
}

func (m *Manager) SetFeeTokenBlacklisted(tok common.Address, blacklisted bool) error {
	return m.storeFlag(lendingBlacklistKey(tok), blacklisted)
}

func (m *Manager) FeeTokenWhitelisted(tok common.Address) (bool, error) {
	return m.loadFlag(lendingWhitelistKey(tok))
}

func (m *Manager) SetFeeTokenWhitelisted(tok common.Address, whitelisted bool) error {
	return m.storeFlag(lendingWhitelistKey(tok), whitelisted)
}

func (m *Manager) CallbackWhitelisted(contract common.Address, selector lending.Selector) (bool, error) {
	return m.loadFlag(lendingCallbackKey(contract, selector))
}

func (m *Manager) SetCallbackWhitelisted(contract common.Address, selector lending.Selector, whitelisted bool) error {
	return m.storeFlag(lendingCallbackKey(contract, selector), whitelisted)
}
