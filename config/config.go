package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Load reads a genesis file. Keys the decoder does not recognise are
// reported as errors so typos do not silently fall back to defaults.
func Load(path string) (*Genesis, error) {
	g := &Genesis{}
	meta, err := toml.DecodeFile(path, g)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("genesis %s: unknown key %s", path, undecoded[0].String())
	}
	if g.Balances == nil {
		g.Balances = []Balance{}
	}
	if err := ValidateGenesis(g); err != nil {
		return nil, fmt.Errorf("genesis %s: %w", path, err)
	}
	return g, nil
}

// Default returns a genesis with admin controlling both modules and no fees.
func Default(admin string) *Genesis {
	return &Genesis{
		Lending:  Lending{Admin: admin},
		Claims:   Claims{Admin: admin, CoreFeeWei: "0"},
		Balances: []Balance{},
	}
}

// Persist writes g to path as TOML, creating parent directories as needed.
func Persist(path string, g *Genesis) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(g)
}
