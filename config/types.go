package config

// Lending captures the lending module's genesis settings.
type Lending struct {
	Admin             string   `toml:"Admin"`
	ProtocolFeeBps    uint32   `toml:"ProtocolFeeBps"`
	ProcessingFeeBps  uint32   `toml:"ProcessingFeeBps"`
	FeeTokenWhitelist []string `toml:"FeeTokenWhitelist"`
	FeeTokenBlacklist []string `toml:"FeeTokenBlacklist"`
}

// Claims captures the claims ledger's genesis settings. CoreFeeWei is a
// decimal string so amounts above 2^64 survive the TOML round trip.
type Claims struct {
	Admin      string `toml:"Admin"`
	CoreFeeWei string `toml:"CoreFeeWei"`
}

type Pauses struct {
	Lending bool `toml:"Lending"`
	Claims  bool `toml:"Claims"`
	Token   bool `toml:"Token"`
}

// Balance seeds an account. Token may be "native" for the native coin.
type Balance struct {
	Token   string `toml:"Token"`
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
}

// Exemption marks an account as exempt from the core and protocol fees.
type Exemption struct {
	Address string `toml:"Address"`
}

// Callback whitelists a (contract, selector) pair at genesis.
type Callback struct {
	Contract string `toml:"Contract"`
	Selector string `toml:"Selector"`
}

// Genesis bundles the initial module state.
type Genesis struct {
	Timestamp  int64       `toml:"Timestamp"`
	Lending    Lending     `toml:"lending"`
	Claims     Claims      `toml:"claims"`
	Pauses     Pauses      `toml:"pauses"`
	Balances   []Balance   `toml:"balances"`
	Exemptions []Exemption `toml:"exemptions"`
	Callbacks  []Callback  `toml:"callbacks"`
}
