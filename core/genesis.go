package core

import (
	"fmt"

	"frendlend/config"
	"frendlend/core/state"
	"frendlend/native/claims"
	nativecommon "frendlend/native/common"
	"frendlend/native/lending"
	"frendlend/storage"
)

// InitGenesis seeds an empty database from g and stamps the state version.
// A database that already carries a version is left untouched and reported
// as not initialised; its version must match this binary's.
func InitGenesis(db storage.Database, g *config.Genesis) (bool, error) {
	if db == nil {
		return false, ErrNilDatabase
	}
	if err := config.ValidateGenesis(g); err != nil {
		return false, err
	}
	parsed, err := g.Parse()
	if err != nil {
		return false, err
	}

	overlay := storage.NewOverlay(db)
	defer overlay.Discard()
	mgr := state.NewManager(overlay)
	if _, ok, err := mgr.StateVersion(); err != nil {
		return false, err
	} else if ok {
		return false, mgr.CheckStateVersion()
	}

	if err := mgr.PutLendingSettings(&lending.Settings{
		Admin:            parsed.LendingAdmin,
		ProtocolFeeBps:   parsed.ProtocolFeeBps,
		ProcessingFeeBps: parsed.ProcessingFeeBps,
	}); err != nil {
		return false, err
	}
	for _, tok := range parsed.FeeTokenWhitelist {
		if err := mgr.SetFeeTokenWhitelisted(tok, true); err != nil {
			return false, err
		}
	}
	for _, tok := range parsed.FeeTokenBlacklist {
		if err := mgr.SetFeeTokenBlacklisted(tok, true); err != nil {
			return false, err
		}
	}
	for _, cb := range parsed.Callbacks {
		if err := mgr.SetCallbackWhitelisted(cb.Contract, cb.Selector, true); err != nil {
			return false, err
		}
	}
	if err := mgr.PutClaimsSettings(&claims.Settings{Admin: parsed.ClaimsAdmin, CoreFee: parsed.CoreFee}); err != nil {
		return false, err
	}
	for _, addr := range parsed.Exemptions {
		if err := mgr.SetFeeExempt(addr, true); err != nil {
			return false, err
		}
	}
	for i, b := range parsed.Balances {
		current, err := mgr.TokenBalance(b.Token, b.Address)
		if err != nil {
			return false, err
		}
		if err := mgr.SetTokenBalance(b.Token, b.Address, current.Add(current, b.Amount)); err != nil {
			return false, fmt.Errorf("balances[%d]: %w", i, err)
		}
	}
	if err := mgr.SetStateVersion(state.StateVersion); err != nil {
		return false, err
	}
	if err := overlay.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// PauseSet builds the runtime pause view from the genesis pause flags.
func PauseSet(p config.Pauses) *nativecommon.PauseSet {
	set := nativecommon.NewPauseSet()
	set.Set("lending", p.Lending)
	set.Set("claims", p.Claims)
	set.Set("token", p.Token)
	return set
}

// StampStateVersion records this binary's state version over whatever the
// database carries. Callers gate it behind an explicit migrate flag.
func StampStateVersion(db storage.Database) error {
	if db == nil {
		return ErrNilDatabase
	}
	overlay := storage.NewOverlay(db)
	defer overlay.Discard()
	if err := state.NewManager(overlay).SetStateVersion(state.StateVersion); err != nil {
		return err
	}
	return overlay.Commit()
}
