package config

import (
	"fmt"

	"frendlend/native/fees"
)

func ValidateGenesis(g *Genesis) error {
	if g.Timestamp < 0 {
		return fmt.Errorf("genesis: negative timestamp")
	}
	if err := fees.ValidateBps(uint64(g.Lending.ProtocolFeeBps)); err != nil {
		return fmt.Errorf("lending: protocol fee: %w", err)
	}
	if err := fees.ValidateBps(uint64(g.Lending.ProcessingFeeBps)); err != nil {
		return fmt.Errorf("lending: processing fee: %w", err)
	}
	parsed, err := g.Parse()
	if err != nil {
		return err
	}
	blacklisted := make(map[string]bool, len(parsed.FeeTokenBlacklist))
	for _, tok := range parsed.FeeTokenBlacklist {
		blacklisted[tok.Hex()] = true
	}
	for _, tok := range parsed.FeeTokenWhitelist {
		if blacklisted[tok.Hex()] {
			return fmt.Errorf("lending: fee token %s is both whitelisted and blacklisted", tok.Hex())
		}
	}
	return nil
}
