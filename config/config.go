// Package config loads the layered configuration described in spec.md §6/§9:
// file (TOML) + environment + code defaults are flattened into one validated
// struct before the core ever sees it. Only a small whitelist of fields is
// hot-reloadable at runtime (§9 "Configuration layering"); everything else
// requires a restart.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"

	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/common/hexutil"
)

// ChainParameters are the chain-wide parameters referenced throughout §3-§5:
// timeouts, capacities and limits every peer must agree on bit-for-bit,
// since they gate what counts as a valid block. Load reads them from the
// same layers as the rest of Config (defaults, file, environment); they are
// not part of Hot, so changing them takes a restart.
type ChainParameters struct {
	BlockTime      time.Duration `toml:"block_time" envconfig:"BLOCK_TIME" default:"2s"`
	CommitTime     time.Duration `toml:"commit_time" envconfig:"COMMIT_TIME" default:"4s"`
	TxReceiptTime  time.Duration `toml:"tx_receipt_time" envconfig:"TX_RECEIPT_TIME" default:"500ms"`
	MaxTTL         time.Duration `toml:"max_ttl" envconfig:"MAX_TTL" default:"86400s"`
	FutureThreshold time.Duration `toml:"future_threshold" envconfig:"FUTURE_THRESHOLD" default:"1s"`

	MaxTransactionsInBlock int `toml:"max_transactions_in_block" envconfig:"MAX_TRANSACTIONS_IN_BLOCK" default:"512"`

	TransactionLimits TransactionLimits `toml:"transaction_limits"`
}

// TransactionLimits bounds WASM transactions (§4.3 TransactionLimits reason).
type TransactionLimits struct {
	MaxInstructionCount uint64 `toml:"max_instruction_count" default:"4096"`
	MaxWasmSizeBytes    uint64 `toml:"max_wasm_size_bytes" default:"4194304"`
}

// Hot is the restart-free subset called out in §9: log level and a limited
// whitelist of operational knobs. The rest of Config requires a restart to
// change.
type Hot struct {
	LogLevel               string `toml:"log_level" envconfig:"LOG_LEVEL" default:"info"`
	GossipPeriod           time.Duration `toml:"gossip_period" envconfig:"GOSSIP_PERIOD" default:"1s"`
	GossipBatchSize        int           `toml:"gossip_batch_size" envconfig:"GOSSIP_BATCH_SIZE" default:"64"`
	BlockSyncPeriod        time.Duration `toml:"block_sync_period" envconfig:"BLOCK_SYNC_PERIOD" default:"10s"`
}

// Config is the fully validated, flattened parameter set described in
// spec.md §6 "Configuration": "peer key pair, chain identifier,
// trusted-peer list, network address, timeouts, queue capacities, block
// store path, block-time/commit-time, transaction limits, WASM fuel/memory
// caps."
type Config struct {
	ChainID string `toml:"chain_id" envconfig:"CHAIN_ID"`

	KeyPair KeyPair `toml:"key_pair"`

	ListenAddress string      `toml:"listen_address" envconfig:"LISTEN_ADDRESS" default:"0.0.0.0:1337"`
	TrustedPeers  []PeerEntry `toml:"trusted_peers"`

	GenesisPublicKey hexutil.Bytes `toml:"genesis_public_key"`
	GenesisSubmitter bool          `toml:"genesis_submitter" envconfig:"GENESIS_SUBMITTER"`
	GenesisPath      string        `toml:"genesis_path" envconfig:"GENESIS_PATH"`

	BlockStorePath string `toml:"block_store_path" envconfig:"BLOCK_STORE_PATH" default:"./storage/blocks"`
	BlocksPerFile  int    `toml:"blocks_per_file" envconfig:"BLOCKS_PER_FILE" default:"1000"`

	QueueCapacity         int `toml:"queue_capacity" envconfig:"QUEUE_CAPACITY" default:"65536"`
	QueueCapacityPerUser  int `toml:"queue_capacity_per_user" envconfig:"QUEUE_CAPACITY_PER_USER" default:"4096"`

	Chain ChainParameters `toml:"chain"`
	Hot   Hot             `toml:"hot"`
}

// KeyPair is this peer's own identity (§3 Peer identity).
type KeyPair struct {
	PublicKey  hexutil.Bytes `toml:"public_key"`
	PrivateKey hexutil.Bytes `toml:"private_key"`
}

// PeerEntry is one row of the trusted-peer list (§3).
type PeerEntry struct {
	Address   string        `toml:"address"`
	PublicKey hexutil.Bytes `toml:"public_key"`
}

func (p PeerEntry) ID() common.PeerID {
	var pk common.PublicKey
	copy(pk[:], p.PublicKey)
	return common.PeerID{Address: p.Address, PublicKey: pk}
}

// Load flattens defaults, then the TOML file at path (if non-empty), then
// environment variables prefixed IROHA_, in that increasing order of
// precedence, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	// 1. code defaults, via envconfig's `default` tag applied against an
	// empty environment read.
	if err := envconfig.Process("iroha_defaults_unused", cfg); err != nil {
		return nil, fmt.Errorf("config: applying defaults: %w", err)
	}

	// 2. file layer.
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	// 3. environment layer, highest precedence.
	if err := envconfig.Process("iroha", cfg); err != nil {
		return nil, fmt.Errorf("config: applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the invariants Load's layering can't: a chain id must be
// set, the genesis submitter must actually know a genesis path, and quorum
// math must have somewhere to operate (n = 3f+1, n >= 1).
func (c *Config) Validate() error {
	if c.ChainID == "" {
		return fmt.Errorf("config: chain_id is required")
	}
	if c.GenesisSubmitter && c.GenesisPath == "" {
		return fmt.Errorf("config: genesis_submitter requires genesis_path")
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("config: queue_capacity must be positive")
	}
	if c.QueueCapacityPerUser <= 0 || c.QueueCapacityPerUser > c.QueueCapacity {
		return fmt.Errorf("config: queue_capacity_per_user must be in (0, queue_capacity]")
	}
	if c.Chain.CommitTime <= c.Chain.BlockTime {
		return fmt.Errorf("config: chain.commit_time must exceed chain.block_time")
	}
	return nil
}

// ApplyHot merges a reloaded Hot subset into the running config; any field
// outside Hot is ignored here by construction — the caller never gets the
// chance to change it without a restart.
func (c *Config) ApplyHot(h Hot) {
	c.Hot = h
}
