package main

import (
	"os"
	"strconv"

	"github.com/solsteward/steward/keeper"
)

// applyEnvironment overrides cfg fields from STEWARD_KEEPERD_* environment
// variables. Flags parsed after LoadConfig/applyEnvironment in run still
// take precedence, since they are applied last.
func applyEnvironment(cfg *keeper.Config) {
	if v := os.Getenv("STEWARD_KEEPERD_RPC_URL"); v != "" {
		cfg.RPCURL = v
	}
	if v := os.Getenv("STEWARD_KEEPERD_KEYPAIR"); v != "" {
		cfg.KeypairPath = v
	}
	if v := os.Getenv("STEWARD_KEEPERD_ORACLE_AUTHORITY_KEYPAIR"); v != "" {
		cfg.OracleAuthorityKeypairPath = v
	}
	if v := os.Getenv("STEWARD_KEEPERD_GOSSIP_ENTRYPOINT"); v != "" {
		cfg.GossipEntrypoint = v
	}

	if v := os.Getenv("STEWARD_KEEPERD_VALIDATOR_HISTORY_PROGRAM_ID"); v != "" {
		cfg.ValidatorHistoryProgramID = v
	}
	if v := os.Getenv("STEWARD_KEEPERD_TIP_DISTRIBUTION_PROGRAM_ID"); v != "" {
		cfg.TipDistributionProgramID = v
	}
	if v := os.Getenv("STEWARD_KEEPERD_STEWARD_PROGRAM_ID"); v != "" {
		cfg.StewardProgramID = v
	}
	if v := os.Getenv("STEWARD_KEEPERD_STEWARD_CONFIG"); v != "" {
		cfg.StewardConfig = v
	}
	if v := os.Getenv("STEWARD_KEEPERD_TOKEN_MINT"); v != "" {
		cfg.TokenMint = v
	}
	if v := os.Getenv("STEWARD_KEEPERD_BLOCK_METADATA_PATH"); v != "" {
		cfg.BlockMetadataPath = v
	}
	if v := os.Getenv("STEWARD_KEEPERD_METRICS_LISTEN_ADDR"); v != "" {
		cfg.MetricsListenAddr = v
	}

	applyUint64Env("STEWARD_KEEPERD_VALIDATOR_HISTORY_INTERVAL", &cfg.ValidatorHistoryIntervalSeconds)
	applyUint64Env("STEWARD_KEEPERD_STEWARD_INTERVAL", &cfg.StewardIntervalSeconds)
	applyUint64Env("STEWARD_KEEPERD_BLOCK_METADATA_INTERVAL", &cfg.BlockMetadataIntervalSeconds)
	applyUint64Env("STEWARD_KEEPERD_METRICS_INTERVAL", &cfg.MetricsIntervalSeconds)
	applyUint64Env("STEWARD_KEEPERD_PRIORITY_FEE_MICROLAMPORTS", &cfg.PriorityFeeMicrolamports)
	applyUint64Env("STEWARD_KEEPERD_TX_CONFIRMATION_SECONDS", &cfg.TxConfirmationSeconds)

	if v := os.Getenv("STEWARD_KEEPERD_TX_RETRY_COUNT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			cfg.TxRetryCount = uint16(n)
		}
	}
	if v := os.Getenv("STEWARD_KEEPERD_COOL_DOWN_RANGE_MINUTES"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 8); err == nil {
			cfg.CoolDownRangeMinutes = uint8(n)
		}
	}

	applyBoolEnv("STEWARD_KEEPERD_RUN_CLUSTER_HISTORY", &cfg.RunClusterHistory)
	applyBoolEnv("STEWARD_KEEPERD_RUN_COPY_VOTE_ACCOUNTS", &cfg.RunCopyVoteAccounts)
	applyBoolEnv("STEWARD_KEEPERD_RUN_MEV_COMMISSION", &cfg.RunMEVCommission)
	applyBoolEnv("STEWARD_KEEPERD_RUN_MEV_EARNED", &cfg.RunMEVEarned)
	applyBoolEnv("STEWARD_KEEPERD_RUN_STAKE_UPLOAD", &cfg.RunStakeUpload)
	applyBoolEnv("STEWARD_KEEPERD_RUN_GOSSIP_UPLOAD", &cfg.RunGossipUpload)
	applyBoolEnv("STEWARD_KEEPERD_RUN_PRIORITY_FEE_COMMISSION", &cfg.RunPriorityFeeCommission)
	applyBoolEnv("STEWARD_KEEPERD_RUN_STEWARD", &cfg.RunSteward)
	applyBoolEnv("STEWARD_KEEPERD_RUN_PREFERRED_WITHDRAW", &cfg.RunPreferredWithdraw)
	applyBoolEnv("STEWARD_KEEPERD_RUN_BLOCK_METADATA", &cfg.RunBlockMetadata)
	applyBoolEnv("STEWARD_KEEPERD_RUN_EMIT_METRICS", &cfg.RunEmitMetrics)
	applyBoolEnv("STEWARD_KEEPERD_FULL_STARTUP", &cfg.FullStartup)
	applyBoolEnv("STEWARD_KEEPERD_PAY_FOR_NEW_ACCOUNTS", &cfg.PayForNewAccounts)
}

func applyUint64Env(name string, dst *uint64) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	if n, err := strconv.ParseUint(v, 10, 64); err == nil {
		*dst = n
	}
}

func applyBoolEnv(name string, dst *bool) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	if b, err := strconv.ParseBool(v); err == nil {
		*dst = b
	}
}
