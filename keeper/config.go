package keeper

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the keeper daemon's runtime configuration: connection info,
// program addresses, tick intervals, per-operation enable flags, and
// transaction tuning (spec §4.7, §6), named after and grounded on
// original_source's KeeperConfig/Args (keeper_config.rs).
type Config struct {
	RPCURL                     string `yaml:"rpc_url"`
	KeypairPath                string `yaml:"keypair_path"`
	OracleAuthorityKeypairPath string `yaml:"oracle_authority_keypair_path,omitempty"`
	GossipEntrypoint           string `yaml:"gossip_entrypoint,omitempty"`

	ValidatorHistoryProgramID string `yaml:"validator_history_program_id"`
	TipDistributionProgramID  string `yaml:"tip_distribution_program_id"`
	StewardProgramID          string `yaml:"steward_program_id"`
	StewardConfig             string `yaml:"steward_config"`
	TokenMint                 string `yaml:"token_mint"`

	BlockMetadataPath string `yaml:"block_metadata_path"`

	// MetricsListenAddr is the address a Prometheus /metrics HTTP endpoint
	// is served on. Empty disables the endpoint; this is independent of
	// RunEmitMetrics, which governs the in-process Registry bookkeeping
	// rather than whether it is exposed over HTTP.
	MetricsListenAddr string `yaml:"metrics_listen_addr"`

	ValidatorHistoryIntervalSeconds uint64 `yaml:"validator_history_interval"`
	StewardIntervalSeconds          uint64 `yaml:"steward_interval"`
	BlockMetadataIntervalSeconds    uint64 `yaml:"block_metadata_interval"`
	MetricsIntervalSeconds          uint64 `yaml:"metrics_interval"`

	PriorityFeeMicrolamports uint64 `yaml:"priority_fee_microlamports"`
	TxRetryCount             uint16 `yaml:"tx_retry_count"`
	TxConfirmationSeconds    uint64 `yaml:"tx_confirmation_seconds"`
	CoolDownRangeMinutes     uint8  `yaml:"cool_down_range_minutes"`

	RunClusterHistory        bool `yaml:"run_cluster_history"`
	RunCopyVoteAccounts      bool `yaml:"run_copy_vote_accounts"`
	RunMEVCommission         bool `yaml:"run_mev_commission"`
	RunMEVEarned             bool `yaml:"run_mev_earned"`
	RunStakeUpload           bool `yaml:"run_stake_upload"`
	RunGossipUpload          bool `yaml:"run_gossip_upload"`
	RunPriorityFeeCommission bool `yaml:"run_priority_fee_commission"`
	RunSteward               bool `yaml:"run_steward"`
	RunPreferredWithdraw     bool `yaml:"run_preferred_withdraw"`
	RunBlockMetadata         bool `yaml:"run_block_metadata"`
	RunEmitMetrics           bool `yaml:"run_emit_metrics"`

	FullStartup       bool `yaml:"full_startup"`
	PayForNewAccounts bool `yaml:"pay_for_new_accounts"`
}

// ErrInvalidConfig is returned by Config.Validate for any field that
// cannot produce a working scheduler.
var ErrInvalidConfig = fmt.Errorf("keeper: invalid configuration")

// DefaultConfig returns the interval and tuning defaults from
// original_source's Args (keeper_config.rs), with every run_* flag
// enabled except stake upload and gossip upload, which need an oracle
// authority keypair and a gossip entrypoint respectively.
func DefaultConfig() Config {
	return Config{
		ValidatorHistoryProgramID: "HistoryJTGbKQD2mRgLZ3XhqHnN811Qpez8X9kCcGHoa",
		TipDistributionProgramID:  "4R3gSG8BpU4t19KYj8CfnbtRpnT8gtk4dvTHxVRwc2r7",
		StewardProgramID:          "Stewardf95sJbmtcZsyagb2dg4Mo8eVQho8gpECvLx8",
		StewardConfig:             "jitoVjT9jRUyeXHzvCwzPgHj7yWNRhLcUoXtes4wtjv",
		TokenMint:                 "So11111111111111111111111111111111111111112",

		ValidatorHistoryIntervalSeconds: 300,
		StewardIntervalSeconds:          301,
		BlockMetadataIntervalSeconds:    300,
		MetricsIntervalSeconds:          60,

		PriorityFeeMicrolamports: 20_000,
		TxRetryCount:             50,
		TxConfirmationSeconds:    30,
		CoolDownRangeMinutes:     20,

		RunClusterHistory:        true,
		RunCopyVoteAccounts:      true,
		RunMEVCommission:         true,
		RunMEVEarned:             true,
		RunStakeUpload:           false,
		RunGossipUpload:          false,
		RunPriorityFeeCommission: true,
		RunSteward:               true,
		RunPreferredWithdraw:     true,
		RunBlockMetadata:         true,
		RunEmitMetrics:           true,

		MetricsListenAddr: ":9090",

		FullStartup: true,
	}
}

// LoadConfig reads a YAML override file and applies it on top of
// DefaultConfig. A missing field in path keeps its default value, since
// the whole document is unmarshaled onto an already-populated Config.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("keeper: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("keeper: parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every field is internally consistent: addresses
// are present, intervals are positive, stake upload has an oracle
// authority keypair configured, and gossip upload has a gossip entrypoint.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("%w: rpc_url is required", ErrInvalidConfig)
	}
	if c.KeypairPath == "" {
		return fmt.Errorf("%w: keypair_path is required", ErrInvalidConfig)
	}
	if c.ValidatorHistoryProgramID == "" || c.TipDistributionProgramID == "" ||
		c.StewardProgramID == "" || c.StewardConfig == "" || c.TokenMint == "" {
		return fmt.Errorf("%w: program ids, steward config address, and token mint are required", ErrInvalidConfig)
	}
	if c.ValidatorHistoryIntervalSeconds == 0 || c.StewardIntervalSeconds == 0 ||
		c.BlockMetadataIntervalSeconds == 0 || c.MetricsIntervalSeconds == 0 {
		return fmt.Errorf("%w: every interval must be positive", ErrInvalidConfig)
	}
	if c.RunStakeUpload && c.OracleAuthorityKeypairPath == "" {
		return fmt.Errorf("%w: run_stake_upload requires oracle_authority_keypair_path", ErrInvalidConfig)
	}
	if c.RunGossipUpload && c.GossipEntrypoint == "" {
		return fmt.Errorf("%w: run_gossip_upload requires gossip_entrypoint", ErrInvalidConfig)
	}
	return nil
}

func (c Config) validatorHistoryInterval() time.Duration {
	return time.Duration(c.ValidatorHistoryIntervalSeconds) * time.Second
}

func (c Config) stewardInterval() time.Duration {
	return time.Duration(c.StewardIntervalSeconds) * time.Second
}

func (c Config) blockMetadataInterval() time.Duration {
	return time.Duration(c.BlockMetadataIntervalSeconds) * time.Second
}

func (c Config) metricsInterval() time.Duration {
	return time.Duration(c.MetricsIntervalSeconds) * time.Second
}

// interval returns the configured interval for the group an operation
// belongs to.
func (c Config) interval(group IntervalGroup) time.Duration {
	switch group {
	case IntervalSteward:
		return c.stewardInterval()
	case IntervalBlockMetadata:
		return c.blockMetadataInterval()
	case IntervalMetrics:
		return c.metricsInterval()
	default:
		return c.validatorHistoryInterval()
	}
}

// maxIntervalSeconds is the largest of the four tick intervals, used to
// size the startup burst (spec §4.7: "one-shot Startup flag clearing on
// the max_interval+1-th tick").
func (c Config) maxIntervalSeconds() uint64 {
	max := c.ValidatorHistoryIntervalSeconds
	if c.StewardIntervalSeconds > max {
		max = c.StewardIntervalSeconds
	}
	if c.BlockMetadataIntervalSeconds > max {
		max = c.BlockMetadataIntervalSeconds
	}
	if c.MetricsIntervalSeconds > max {
		max = c.MetricsIntervalSeconds
	}
	return max
}

// enabled reports whether kind's run_* flag permits it to fire.
func (c Config) enabled(kind OperationKind) bool {
	switch kind {
	case OpPreCreateUpdate, OpCreateMissingAccounts, OpPostCreateUpdate, OpCheckpointHistories:
		return true
	case OpClusterHistory:
		return c.RunClusterHistory
	case OpCopyVoteAccounts:
		return c.RunCopyVoteAccounts
	case OpMEVCommission:
		return c.RunMEVCommission
	case OpMEVEarned:
		return c.RunMEVEarned
	case OpStakeUpload:
		return c.RunStakeUpload
	case OpGossipUpload:
		return c.RunGossipUpload
	case OpPriorityFeeCommission:
		return c.RunPriorityFeeCommission
	case OpSteward:
		return c.RunSteward
	case OpPreferredWithdraw:
		return c.RunPreferredWithdraw
	case OpBlockMetadata:
		return c.RunBlockMetadata
	case OpEmitMetrics:
		return c.RunEmitMetrics
	default:
		return false
	}
}
