// Command steward-keeperd runs the off-chain scheduling loop that drives
// the validator-history and steward programs: a single-threaded tick
// clock firing a priority-ordered set of account-bookkeeping, feed-update,
// steward, and block-metadata operations at configurable intervals.
//
// Usage:
//
//	steward-keeperd [flags]
//
// Required flags:
//
//	--rpc-url                        Solana JSON RPC URL
//	--keypair                        signing keypair path
//	--validator-history-program-id   validator-history program ID
//	--tip-distribution-program-id    tip-distribution program ID
//	--steward-program-id             steward program ID
//	--steward-config                 steward config account address
//	--token-mint                     stake pool token mint
//
// Every flag has a matching STEWARD_KEEPERD_* environment variable, which
// the flag's default value falls back to if set; an explicit flag on the
// command line always wins.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solsteward/steward/keeper"
	"github.com/solsteward/steward/log"
	"github.com/solsteward/steward/metrics"
)

var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	cfg, configFile, exit, code := parseFlags(args)
	if exit {
		return code
	}
	applyEnvironment(&cfg)

	if configFile != "" {
		fileCfg, err := keeper.LoadConfig(configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "steward-keeperd: %v\n", err)
			return 1
		}
		cfg = fileCfg
		applyEnvironment(&cfg)
	}
	if exit, code := applyFlagsOnTop(&cfg, args); exit {
		return code
	}

	logger := log.Default().Module("keeperd")
	logger.Info("steward-keeperd starting", "version", version, "commit", commit)
	logger.Info("configuration resolved",
		"rpc_url", cfg.RPCURL,
		"validator_history_interval", cfg.ValidatorHistoryIntervalSeconds,
		"steward_interval", cfg.StewardIntervalSeconds,
		"block_metadata_interval", cfg.BlockMetadataIntervalSeconds,
		"metrics_interval", cfg.MetricsIntervalSeconds,
		"full_startup", cfg.FullStartup,
	)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	deps, cleanup, err := buildDeps(cfg, logger)
	if err != nil {
		logger.Error("failed to build keeper dependencies", "error", err)
		return 1
	}
	defer cleanup()

	sched := keeper.NewScheduler(deps, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MetricsListenAddr != "" {
		metricsServer := startMetricsServer(cfg.MetricsListenAddr, deps.Metrics, logger)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown failed", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := sched.Run(ctx, time.Second); err != nil && ctx.Err() == nil {
		logger.Error("scheduler run exited with error", "error", err)
		return 1
	}

	logger.Info("shutdown complete")
	return 0
}

// startMetricsServer wraps registry in a metrics.RegistryCollector, registers
// it with a dedicated prometheus.Registry (kept separate from
// prometheus.DefaultRegisterer so importing this command never pulls in the
// process/Go-runtime collectors client_golang registers on its default
// registerer by side effect), and serves it over /metrics on addr.
func startMetricsServer(addr string, registry *metrics.Registry, logger *log.Logger) *http.Server {
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(metrics.NewRegistryCollector(registry, "steward"))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("metrics server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return server
}

// parseFlags parses CLI arguments into a keeper.Config and the optional
// --config file path. Returns the config, the config file path, whether
// the caller should exit immediately, and the exit code.
func parseFlags(args []string) (keeper.Config, string, bool, int) {
	cfg := keeper.DefaultConfig()
	var configFile string
	fs := newFlagSet(&cfg, &configFile)

	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cfg, configFile, true, 2
	}
	if *showVersion {
		fmt.Printf("steward-keeperd %s (commit %s)\n", version, commit)
		return cfg, configFile, true, 0
	}
	return cfg, configFile, false, 0
}

// applyFlagsOnTop re-parses args onto a config file's already-loaded
// values, so a flag passed alongside --config wins over the file. Since
// flag.FlagSet only records whether a flag was set at parse time (not
// after), we re-run Parse against the file-loaded config rather than
// diffing flag.Visit results.
func applyFlagsOnTop(cfg *keeper.Config, args []string) (bool, int) {
	var unused string
	fs := newFlagSet(cfg, &unused)
	fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return true, 2
	}
	return false, 0
}

// newFlagSet creates a flag.FlagSet that binds all CLI flags to the given
// Config. The FlagSet uses ContinueOnError so callers control the error
// handling behavior.
func newFlagSet(cfg *keeper.Config, configFile *string) *flagSet {
	fs := newCustomFlagSet("steward-keeperd")

	fs.StringVar(configFile, "config", "", "optional YAML config file overriding defaults")

	fs.StringVar(&cfg.RPCURL, "rpc-url", cfg.RPCURL, "Solana JSON RPC URL")
	fs.StringVar(&cfg.KeypairPath, "keypair", cfg.KeypairPath, "signing keypair path")
	fs.StringVar(&cfg.OracleAuthorityKeypairPath, "oracle-authority-keypair", cfg.OracleAuthorityKeypairPath, "oracle authority keypair path (required for stake/priority-fee uploads)")
	fs.StringVar(&cfg.GossipEntrypoint, "gossip-entrypoint", cfg.GossipEntrypoint, "gossip entrypoint address (required for gossip upload)")

	fs.StringVar(&cfg.ValidatorHistoryProgramID, "validator-history-program-id", cfg.ValidatorHistoryProgramID, "validator-history program ID")
	fs.StringVar(&cfg.TipDistributionProgramID, "tip-distribution-program-id", cfg.TipDistributionProgramID, "tip-distribution program ID")
	fs.StringVar(&cfg.StewardProgramID, "steward-program-id", cfg.StewardProgramID, "steward program ID")
	fs.StringVar(&cfg.StewardConfig, "steward-config", cfg.StewardConfig, "steward config account address")
	fs.StringVar(&cfg.TokenMint, "token-mint", cfg.TokenMint, "stake pool token mint")

	fs.StringVar(&cfg.BlockMetadataPath, "block-metadata-path", cfg.BlockMetadataPath, "SQLite path for the block-metadata cache")
	fs.StringVar(&cfg.MetricsListenAddr, "metrics-listen-addr", cfg.MetricsListenAddr, "address to serve a Prometheus /metrics endpoint on (empty disables it)")

	fs.Uint64Var(&cfg.ValidatorHistoryIntervalSeconds, "validator-history-interval", cfg.ValidatorHistoryIntervalSeconds, "validator-history feed-update tick interval, seconds")
	fs.Uint64Var(&cfg.StewardIntervalSeconds, "steward-interval", cfg.StewardIntervalSeconds, "steward crank tick interval, seconds")
	fs.Uint64Var(&cfg.BlockMetadataIntervalSeconds, "block-metadata-interval", cfg.BlockMetadataIntervalSeconds, "block-metadata tick interval, seconds")
	fs.Uint64Var(&cfg.MetricsIntervalSeconds, "metrics-interval", cfg.MetricsIntervalSeconds, "metrics emission tick interval, seconds")

	fs.Uint64Var(&cfg.PriorityFeeMicrolamports, "priority-fee-microlamports", cfg.PriorityFeeMicrolamports, "priority fee, micro-lamports")
	fs.Uint64Var(&cfg.TxConfirmationSeconds, "tx-confirmation-seconds", cfg.TxConfirmationSeconds, "transaction confirmation window, seconds")

	var retryCount, coolDownRange uint64
	retryCount = uint64(cfg.TxRetryCount)
	coolDownRange = uint64(cfg.CoolDownRangeMinutes)
	fs.Uint64Var(&retryCount, "tx-retry-count", retryCount, "transaction retry count")
	fs.Uint64Var(&coolDownRange, "cool-down-range-minutes", coolDownRange, "jittered-retry cool-down range, minutes")
	fs.FinalizeFunc = func() {
		cfg.TxRetryCount = uint16(retryCount)
		cfg.CoolDownRangeMinutes = uint8(coolDownRange)
	}

	fs.BoolVar(&cfg.RunClusterHistory, "run-cluster-history", cfg.RunClusterHistory, "enable the cluster-history feed operation")
	fs.BoolVar(&cfg.RunCopyVoteAccounts, "run-copy-vote-accounts", cfg.RunCopyVoteAccounts, "enable the copy-vote-accounts feed operation")
	fs.BoolVar(&cfg.RunMEVCommission, "run-mev-commission", cfg.RunMEVCommission, "enable the mev-commission feed operation")
	fs.BoolVar(&cfg.RunMEVEarned, "run-mev-earned", cfg.RunMEVEarned, "enable the mev-earned feed operation")
	fs.BoolVar(&cfg.RunStakeUpload, "run-stake-upload", cfg.RunStakeUpload, "enable the oracle-gated stake-upload feed operation")
	fs.BoolVar(&cfg.RunGossipUpload, "run-gossip-upload", cfg.RunGossipUpload, "enable the gossip-upload feed operation")
	fs.BoolVar(&cfg.RunPriorityFeeCommission, "run-priority-fee-commission", cfg.RunPriorityFeeCommission, "enable the priority-fee-commission feed operation")
	fs.BoolVar(&cfg.RunSteward, "run-steward", cfg.RunSteward, "enable the steward crank")
	fs.BoolVar(&cfg.RunPreferredWithdraw, "run-preferred-withdraw", cfg.RunPreferredWithdraw, "enable preferred-withdraw-validator selection")
	fs.BoolVar(&cfg.RunBlockMetadata, "run-block-metadata", cfg.RunBlockMetadata, "enable the block-metadata persistence operation")
	fs.BoolVar(&cfg.RunEmitMetrics, "run-emit-metrics", cfg.RunEmitMetrics, "enable the metrics-emission operation")

	fs.BoolVar(&cfg.FullStartup, "full-startup", cfg.FullStartup, "fire every operation at least once during the startup burst")
	fs.BoolVar(&cfg.PayForNewAccounts, "pay-for-new-accounts", cfg.PayForNewAccounts, "keeper pays rent for newly created validator-history accounts")

	return fs
}
