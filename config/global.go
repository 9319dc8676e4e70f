package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"frendlend/crypto"
	"frendlend/native/lending"
	"frendlend/native/token"
)

// ParsedBalance is a Balance with its fields decoded.
type ParsedBalance struct {
	Token   common.Address
	Address common.Address
	Amount  *big.Int
}

// ParsedCallback is a Callback with its fields decoded.
type ParsedCallback struct {
	Contract common.Address
	Selector lending.Selector
}

// Parsed is the runtime form of a Genesis.
type Parsed struct {
	Timestamp         int64
	LendingAdmin      common.Address
	ProtocolFeeBps    uint16
	ProcessingFeeBps  uint16
	FeeTokenWhitelist []common.Address
	FeeTokenBlacklist []common.Address
	ClaimsAdmin       common.Address
	CoreFee           *big.Int
	Pauses            Pauses
	Balances          []ParsedBalance
	Exemptions        []common.Address
	Callbacks         []ParsedCallback
}

// Parse decodes the addresses and amounts in g.
func (g Genesis) Parse() (*Parsed, error) {
	out := &Parsed{
		Timestamp:        g.Timestamp,
		ProtocolFeeBps:   uint16(g.Lending.ProtocolFeeBps),
		ProcessingFeeBps: uint16(g.Lending.ProcessingFeeBps),
		Pauses:           g.Pauses,
	}
	var err error
	if out.LendingAdmin, err = parseOptionalAddress(g.Lending.Admin); err != nil {
		return nil, fmt.Errorf("invalid lending.Admin: %w", err)
	}
	if out.ClaimsAdmin, err = parseOptionalAddress(g.Claims.Admin); err != nil {
		return nil, fmt.Errorf("invalid claims.Admin: %w", err)
	}
	if out.CoreFee, err = parseUintAmount(g.Claims.CoreFeeWei); err != nil {
		return nil, fmt.Errorf("invalid claims.CoreFeeWei: %w", err)
	}
	if out.FeeTokenWhitelist, err = parseAddressList(g.Lending.FeeTokenWhitelist); err != nil {
		return nil, fmt.Errorf("invalid lending.FeeTokenWhitelist: %w", err)
	}
	if out.FeeTokenBlacklist, err = parseAddressList(g.Lending.FeeTokenBlacklist); err != nil {
		return nil, fmt.Errorf("invalid lending.FeeTokenBlacklist: %w", err)
	}
	for i, b := range g.Balances {
		parsed := ParsedBalance{}
		if parsed.Token, err = ParseToken(b.Token); err != nil {
			return nil, fmt.Errorf("invalid balances[%d].Token: %w", i, err)
		}
		if parsed.Address, err = crypto.ParseAddress(b.Address); err != nil {
			return nil, fmt.Errorf("invalid balances[%d].Address: %w", i, err)
		}
		if parsed.Amount, err = parseUintAmount(b.Amount); err != nil {
			return nil, fmt.Errorf("invalid balances[%d].Amount: %w", i, err)
		}
		out.Balances = append(out.Balances, parsed)
	}
	for i, e := range g.Exemptions {
		addr, err := crypto.ParseAddress(e.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid exemptions[%d].Address: %w", i, err)
		}
		out.Exemptions = append(out.Exemptions, addr)
	}
	for i, c := range g.Callbacks {
		parsed := ParsedCallback{}
		if parsed.Contract, err = crypto.ParseAddress(c.Contract); err != nil {
			return nil, fmt.Errorf("invalid callbacks[%d].Contract: %w", i, err)
		}
		if parsed.Selector, err = lending.ParseSelector(c.Selector); err != nil {
			return nil, fmt.Errorf("invalid callbacks[%d].Selector: %w", i, err)
		}
		out.Callbacks = append(out.Callbacks, parsed)
	}
	return out, nil
}

// ParseToken accepts a hex token address or the alias "native".
func ParseToken(s string) (common.Address, error) {
	if strings.EqualFold(strings.TrimSpace(s), "native") {
		return token.Native, nil
	}
	return crypto.ParseAddress(s)
}

func parseOptionalAddress(s string) (common.Address, error) {
	if strings.TrimSpace(s) == "" {
		return common.Address{}, nil
	}
	return crypto.ParseAddress(s)
}

func parseAddressList(values []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(values))
	for _, v := range values {
		addr, err := crypto.ParseAddress(v)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func parseUintAmount(s string) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not a decimal integer", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%q is negative", s)
	}
	return v, nil
}
