package main

import (
	"fmt"

	"github.com/solsteward/steward/account"
	"github.com/solsteward/steward/bitmask"
	"github.com/solsteward/steward/chain"
	"github.com/solsteward/steward/config"
	"github.com/solsteward/steward/history"
	"github.com/solsteward/steward/keeper"
	"github.com/solsteward/steward/keeper/blockmeta"
	"github.com/solsteward/steward/log"
	"github.com/solsteward/steward/metrics"
	"github.com/solsteward/steward/steward"
)

// ErrWireClientUnconfigured is returned by buildDeps: constructing a
// Solana JSON-RPC/gossip/transaction-signing client is wire-protocol work
// outside the scheduling loop this command ships, so no concrete
// chain.RPCClient/Signer/StakePoolClient/VoteAccountSource/GossipSource
// exists yet. A deployment wires these in by replacing buildDeps with one
// that dials cfg.RPCURL and loads cfg.KeypairPath.
var ErrWireClientUnconfigured = fmt.Errorf("steward-keeperd: no Solana RPC/signing client wired in")

// buildDeps assembles everything the scheduler needs that this repository
// owns outright (the local block-metadata cache, the metrics registry,
// the logger, and an empty steward/history working set), then fails with
// ErrWireClientUnconfigured rather than fabricating a Solana wire client.
func buildDeps(cfg keeper.Config, logger *log.Logger) (*keeper.Deps, func(), error) {
	store, err := blockmeta.Open(cfg.BlockMetadataPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open block-metadata store: %w", err)
	}
	cleanup := func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("block-metadata store close failed", "error", cerr)
		}
	}

	// DefaultParams is a placeholder until the steward config account is
	// fetched on chain; its Validate bound depends on the live epoch, so
	// it is not checked here.
	params := config.DefaultParams()

	// steward.New and bitmask.New require a positive capacity; 1 is a
	// placeholder until the stake pool's validator list is fetched on
	// chain and the real capacity is known.
	const placeholderCapacity = 1

	histories, err := loadCheckpointedHistories(store)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("load checkpointed histories: %w", err)
	}

	registry := metrics.NewRegistry()
	deps := &keeper.Deps{
		ValidatorList: nil,
		Histories:     histories,
		Cluster:       history.NewClusterHistory(),
		BlockMeta:     store,
		Steward:       steward.New(placeholderCapacity),
		Params:        params,
		Blacklist:     bitmask.New(placeholderCapacity),
		Metrics:       registry,
		Std:           metrics.NewStandard(registry),
		Log:           logger,
	}
	logger.Info("restored validator history checkpoint", "validators", len(histories))

	// No concrete chain.RPCClient/Signer/StakePoolClient/VoteAccountSource/
	// GossipSource is wired in: see ErrWireClientUnconfigured.
	cleanup()
	return deps, func() {}, ErrWireClientUnconfigured
}

// loadCheckpointedHistories rebuilds each tracked validator's history
// record from the block-metadata store's local checkpoint, restoring the
// single latest entry opCheckpointHistories persisted (spec §6's packed
// layout, decoded via account.UnmarshalEntry). A validator's enumeration
// Index/Bump are unknown until the stake pool's live validator list is
// fetched, so they are left at their zero value here and corrected once
// that fetch happens.
func loadCheckpointedHistories(store *blockmeta.Store) (map[chain.Pubkey]*history.ValidatorHistory, error) {
	raw, err := store.LoadHistoryEntries()
	if err != nil {
		return nil, err
	}
	histories := make(map[chain.Pubkey]*history.ValidatorHistory, len(raw))
	for voteAccount, data := range raw {
		entry, err := account.UnmarshalEntry(data)
		if err != nil {
			return nil, fmt.Errorf("decode checkpointed entry for %x: %w", voteAccount, err)
		}
		h := history.NewValidatorHistory(voteAccount, 0, 0)
		if err := h.RestoreEntry(entry); err != nil {
			return nil, fmt.Errorf("restore checkpointed entry for %x: %w", voteAccount, err)
		}
		histories[chain.Pubkey(voteAccount)] = h
	}
	return histories, nil
}
