// Package config loads the daemon's runtime configuration from a TOML
// file, writing a seeded default on first run: external canister
// endpoints, the governance share ratio, and the protocol's minimums and
// dissolve-delay constants.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the daemon's TOML-loaded configuration.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`

	LedgerEndpointT  string `toml:"LedgerEndpointT"`
	LedgerEndpointNT string `toml:"LedgerEndpointNT"`
	LedgerEndpointR  string `toml:"LedgerEndpointR"`

	GovernanceEndpoint    string `toml:"GovernanceEndpoint"`
	SecondaryDAOEndpoint  string `toml:"SecondaryDAOEndpoint"`
	SecondaryDAOPrincipal string `toml:"SecondaryDAOPrincipal"`

	// GovernanceShareBps is the governance treasury's share of harvested
	// rewards, in basis points of 10_000 (default 1000 bps = 0.1).
	GovernanceShareBps uint64 `toml:"GovernanceShareBps"`

	MinDepositE8s      uint64 `toml:"MinDepositE8s"`
	MinWithdrawE8s     uint64 `toml:"MinWithdrawE8s"`
	MinDistributionE8s uint64 `toml:"MinDistributionE8s"`

	JWTSigningKey string `toml:"JWTSigningKey"`

	// CanisterPrincipal is this process's own principal, used as the nT
	// ledger burn account (withdrawal burns debit here) and as the
	// controller whose short-term neuron staking subaccount receives T
	// deposits, and excluded from secondary-DAO neuron enumeration.
	CanisterPrincipal string `toml:"CanisterPrincipal"`

	// ShortTermNeuronId and LongTermNeuronId are the two main neurons this
	// process manages, created and staked once by an operator outside this
	// process (key management stays with the operator, so this process
	// never stakes T on its own behalf). Zero means "not yet
	// configured"; InitializeMainNeurons claims whichever id is set and
	// only logs and skips when neither is.
	ShortTermNeuronId uint64 `toml:"ShortTermNeuronId"`
	LongTermNeuronId  uint64 `toml:"LongTermNeuronId"`

	OTelEndpoint string `toml:"OTelEndpoint"`
	Environment  string `toml:"Environment"`
}

// Load reads cfg from path, creating a default configuration file there if
// none exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// createDefault writes and returns a configuration seeded with the
// protocol defaults: minimum deposit 1 T, minimum withdrawal 10 T,
// minimum distribution 100 T, governance share 0.1.
func createDefault(path string) (*Config, error) {
	const e8sPerT = 100_000_000
	cfg := &Config{
		ListenAddress:        ":8080",
		DataDir:              "./liquidneuron-data",
		LedgerEndpointT:      "http://localhost:9001",
		LedgerEndpointNT:     "http://localhost:9002",
		LedgerEndpointR:      "http://localhost:9003",
		GovernanceEndpoint:   "http://localhost:9010",
		SecondaryDAOEndpoint: "http://localhost:9020",
		GovernanceShareBps:   1_000,
		MinDepositE8s:        1 * e8sPerT,
		MinWithdrawE8s:       10 * e8sPerT,
		MinDistributionE8s:   100 * e8sPerT,
		CanisterPrincipal:    "aaaaa-aa",
		Environment:          "production",
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: encode default %s: %w", path, err)
	}
	return cfg, nil
}
