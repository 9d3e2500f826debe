package keeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/solsteward/steward/account"
	"github.com/solsteward/steward/bitmask"
	"github.com/solsteward/steward/chain"
	"github.com/solsteward/steward/config"
	"github.com/solsteward/steward/gossip"
	"github.com/solsteward/steward/history"
	"github.com/solsteward/steward/historyentry"
	"github.com/solsteward/steward/keeper/blockmeta"
	"github.com/solsteward/steward/log"
	"github.com/solsteward/steward/metrics"
	"github.com/solsteward/steward/preferredwithdraw"
	"github.com/solsteward/steward/rebalance"
	"github.com/solsteward/steward/scoring"
	"github.com/solsteward/steward/steward"
)

// Deps bundles every external collaborator and every piece of in-memory
// state an Operation needs. It is explicitly threaded through each call
// rather than captured in package-level state (spec §5).
type Deps struct {
	RPC          chain.RPCClient
	Signer       chain.Signer
	StakePool    chain.StakePoolClient
	VoteAccounts chain.VoteAccountSource
	Gossip       chain.GossipSource

	ValidatorHistoryClient  chain.ValidatorHistoryClient
	SlotHistory             chain.SlotHistorySource
	TipDistribution         chain.TipDistributionSource
	PriorityFeeDistribution chain.PriorityFeeDistributionSource
	StakeOracle             chain.StakeOracleSource
	PriorityFeeOracle       chain.PriorityFeeOracleSource

	// ValidatorList maps a steward.State index to its vote account,
	// mirroring the stake pool's on-chain validator list ordering.
	ValidatorList []chain.PubkeyIndexEntry
	Histories     map[chain.Pubkey]*history.ValidatorHistory
	Cluster       *history.ClusterHistory
	BlockMeta     *blockmeta.Store
	Steward       *steward.State
	Params        config.Params
	Blacklist     *bitmask.Bitmask

	Metrics *metrics.Registry
	Std     *metrics.Standard
	Log     *log.Logger

	// PreferredWithdrawValidator caches the pool's currently-configured
	// withdraw source, since chain.StakePoolClient exposes only a setter
	// (spec §4.6); opPreferredWithdraw is the sole writer.
	PreferredWithdrawValidator    [32]byte
	PreferredWithdrawValidatorSet bool

	pendingVoteAccounts []chain.VoteAccountInfo
}

func (d *Deps) logger() *log.Logger {
	if d.Log != nil {
		return d.Log
	}
	return log.Default()
}

// getEpochInfo wraps RPC.GetEpochInfo with the RPC metrics every operation
// that polls the epoch shares, so d.Std.RPCRequests/RPCErrors/RPCLatency
// reflect every call site in this file rather than one hand-picked path.
func (d *Deps) getEpochInfo(ctx context.Context) (chain.EpochInfo, error) {
	start := time.Now()
	info, err := d.RPC.GetEpochInfo(ctx)
	if d.Std != nil {
		d.Std.RPCRequests.Inc()
		d.Std.RPCLatency.Observe(float64(time.Since(start).Milliseconds()))
		if err != nil {
			d.Std.RPCErrors.Inc()
		}
	}
	return info, err
}

// OperationFunc is the concrete shape every scheduled operation
// implements: given the shared collaborators and the current scheduling
// snapshot, perform one unit of work and report how many transactions it
// submitted.
type OperationFunc func(ctx context.Context, d *Deps, st *KeeperState) (txs int, err error)

// defaultOperations returns the built-in implementation of every
// OperationKind in priorityOrder, grounded on history.ValidatorHistory's
// and history.ClusterHistory's feed methods and steward.State's
// transition API. Callers may override individual entries (e.g. in
// tests) by replacing the returned map's values before constructing a
// Scheduler.
func defaultOperations() map[OperationKind]OperationFunc {
	return map[OperationKind]OperationFunc{
		OpPreCreateUpdate:       opRefreshVoteAccounts,
		OpCreateMissingAccounts: opCreateMissingAccounts,
		OpPostCreateUpdate:      opRefreshVoteAccounts,
		OpClusterHistory:        opClusterHistory,
		OpCopyVoteAccounts:      opCopyVoteAccounts,
		OpMEVCommission:         opMEVCommission,
		OpMEVEarned:             opMEVEarned,
		OpStakeUpload:           opStakeUpload,
		OpGossipUpload:          opGossipUpload,
		OpPriorityFeeCommission: opPriorityFeeCommission,
		OpSteward:               opSteward,
		OpPreferredWithdraw:     opPreferredWithdraw,
		OpBlockMetadata:         opBlockMetadata,
		OpCheckpointHistories:   opCheckpointHistories,
		OpEmitMetrics:           opEmitMetrics,
	}
}

func opRefreshVoteAccounts(ctx context.Context, d *Deps, st *KeeperState) (int, error) {
	accounts, err := d.VoteAccounts.VoteAccounts(ctx)
	if err != nil {
		return 0, MarkRetryable(fmt.Errorf("refresh vote accounts: %w", err))
	}
	d.pendingVoteAccounts = accounts
	return 0, nil
}

func opCreateMissingAccounts(ctx context.Context, d *Deps, st *KeeperState) (int, error) {
	if d.ValidatorHistoryClient == nil {
		return 0, nil
	}
	created := 0
	for _, va := range d.pendingVoteAccounts {
		key := chain.Pubkey(va.VoteAccount)
		if _, ok := d.Histories[key]; ok {
			continue
		}
		if err := d.ValidatorHistoryClient.CreateValidatorHistoryAccount(ctx, va.VoteAccount); err != nil {
			return created, MarkRetryable(fmt.Errorf("create validator history account: %w", err))
		}
		idx := uint32(len(d.ValidatorList))
		d.Histories[key] = history.NewValidatorHistory(va.VoteAccount, idx, 0)
		d.ValidatorList = append(d.ValidatorList, chain.PubkeyIndexEntry{VoteAccount: va.VoteAccount, NodePubkey: va.NodePubkey})
		created++
	}
	if d.Std != nil && created > 0 {
		d.Std.ValidatorsAutoAdded.Add(int64(created))
	}
	return created, nil
}

func opClusterHistory(ctx context.Context, d *Deps, st *KeeperState) (int, error) {
	if d.SlotHistory == nil || d.Cluster == nil {
		return 0, nil
	}
	epochInfo, err := d.getEpochInfo(ctx)
	if err != nil {
		return 0, MarkRetryable(fmt.Errorf("cluster-history: %w", err))
	}
	bitmap, err := d.SlotHistory.SlotHistoryBitmap(ctx)
	if err != nil {
		return 0, MarkRetryable(fmt.Errorf("cluster-history: %w", err))
	}
	epochOf := func(slot uint64) uint64 {
		if epochInfo.SlotsInEpoch == 0 {
			return 0
		}
		return slot / epochInfo.SlotsInEpoch
	}
	// epoch start wallclock is an external-collaborator concern (a
	// getBlockTime RPC call) not modeled by chain.RPCClient; a zero
	// timestamp only affects EpochStartTimestamp bookkeeping, never the
	// block-count tally this operation exists to maintain.
	epochStartTimestamp := func(uint64) uint64 { return 0 }

	if err := d.Cluster.UpdateClusterHistory(bitmap, epochInfo.AbsoluteSlot, epochOf, epochStartTimestamp); err != nil {
		return 0, fmt.Errorf("%w: cluster-history: %v", ErrOperationFailed, err)
	}
	return 0, nil
}

func opCopyVoteAccounts(ctx context.Context, d *Deps, st *KeeperState) (int, error) {
	epochInfo, err := d.getEpochInfo(ctx)
	if err != nil {
		return 0, MarkRetryable(fmt.Errorf("copy-vote-accounts: %w", err))
	}
	count := 0
	forceRerun := st.RerunVote
	for _, va := range d.pendingVoteAccounts {
		h, ok := d.Histories[chain.Pubkey(va.VoteAccount)]
		if !ok {
			continue
		}
		current := h.EntryAt(epochInfo.Epoch)
		unchanged := current.Commission == va.Commission && current.EpochCredits == va.EpochCredits
		if unchanged && !forceRerun {
			continue
		}
		if err := h.CopyVoteAccount(epochInfo.Epoch, va.Commission, va.EpochCredits, epochInfo.AbsoluteSlot); err != nil {
			if d.Std != nil {
				d.Std.HistoryUpdateErrors.Inc()
			}
			return count, fmt.Errorf("%w: copy-vote-account %x: %v", ErrOperationFailed, va.VoteAccount, err)
		}
		if d.Std != nil {
			d.Std.HistoryUpdatesApplied.Inc()
		}
		count++
	}
	st.RerunVote = false
	return count, nil
}

func opMEVCommission(ctx context.Context, d *Deps, st *KeeperState) (int, error) {
	if d.TipDistribution == nil {
		return 0, nil
	}
	epochInfo, err := d.getEpochInfo(ctx)
	if err != nil {
		return 0, MarkRetryable(fmt.Errorf("mev-commission: %w", err))
	}
	count := 0
	for key, h := range d.Histories {
		commissionBps, _, slot, ok, err := d.TipDistribution.TipDistribution(ctx, [32]byte(key))
		if err != nil {
			return count, MarkRetryable(fmt.Errorf("mev-commission %x: %w", key, err))
		}
		if !ok {
			continue
		}
		if err := h.CopyTipDistribution(epochInfo.Epoch, commissionBps, 0, slot); err != nil {
			if d.Std != nil {
				d.Std.HistoryUpdateErrors.Inc()
			}
			return count, fmt.Errorf("%w: mev-commission %x: %v", ErrOperationFailed, key, err)
		}
		if d.Std != nil {
			d.Std.HistoryUpdatesApplied.Inc()
		}
		count++
	}
	return count, nil
}

func opMEVEarned(ctx context.Context, d *Deps, st *KeeperState) (int, error) {
	if d.TipDistribution == nil {
		return 0, nil
	}
	epochInfo, err := d.getEpochInfo(ctx)
	if err != nil {
		return 0, MarkRetryable(fmt.Errorf("mev-earned: %w", err))
	}
	count := 0
	for key, h := range d.Histories {
		commissionBps, earned, slot, ok, err := d.TipDistribution.TipDistribution(ctx, [32]byte(key))
		if err != nil {
			return count, MarkRetryable(fmt.Errorf("mev-earned %x: %w", key, err))
		}
		if !ok || earned == 0 {
			continue
		}
		current := h.EntryAt(epochInfo.Epoch)
		preservedCommission := current.MEVCommission
		if !current.HasMEVCommission() {
			// No commission recorded yet for this epoch: fall back to
			// whatever this call observed rather than writing a sentinel.
			preservedCommission = commissionBps
		}
		if err := h.CopyTipDistribution(epochInfo.Epoch, preservedCommission, earned, slot); err != nil {
			if d.Std != nil {
				d.Std.HistoryUpdateErrors.Inc()
			}
			return count, fmt.Errorf("%w: mev-earned %x: %v", ErrOperationFailed, key, err)
		}
		if d.Std != nil {
			d.Std.HistoryUpdatesApplied.Inc()
		}
		count++
	}
	return count, nil
}

func opStakeUpload(ctx context.Context, d *Deps, st *KeeperState) (int, error) {
	if d.StakeOracle == nil {
		return 0, nil
	}
	epochInfo, err := d.getEpochInfo(ctx)
	if err != nil {
		return 0, MarkRetryable(fmt.Errorf("stake-upload: %w", err))
	}
	ranking, err := d.StakeOracle.StakeRanking(ctx)
	if err != nil {
		return 0, MarkRetryable(fmt.Errorf("stake-upload: %w", err))
	}
	count := 0
	for _, r := range ranking {
		h, ok := d.Histories[chain.Pubkey(r.VoteAccount)]
		if !ok {
			continue
		}
		if err := h.UpdateStakeHistory(epochInfo.Epoch, r.ActivatedStakeLamports, r.Rank, r.Superminority); err != nil {
			if d.Std != nil {
				d.Std.HistoryUpdateErrors.Inc()
			}
			return count, fmt.Errorf("%w: stake-upload %x: %v", ErrOperationFailed, r.VoteAccount, err)
		}
		if d.Std != nil {
			d.Std.HistoryUpdatesApplied.Inc()
		}
		count++
	}
	if d.PriorityFeeOracle != nil {
		for key, h := range d.Histories {
			earned, ok, err := d.PriorityFeeOracle.PriorityFeesEarned(ctx, [32]byte(key))
			if err != nil {
				return count, MarkRetryable(fmt.Errorf("stake-upload priority-fee %x: %w", key, err))
			}
			if !ok {
				continue
			}
			if err := h.UpdatePriorityFeeHistory(epochInfo.Epoch, earned); err != nil {
				if d.Std != nil {
					d.Std.HistoryUpdateErrors.Inc()
				}
				return count, fmt.Errorf("%w: stake-upload priority-fee %x: %v", ErrOperationFailed, key, err)
			}
			if d.Std != nil {
				d.Std.HistoryUpdatesApplied.Inc()
			}
			count++
		}
	}
	return count, nil
}

func opGossipUpload(ctx context.Context, d *Deps, st *KeeperState) (int, error) {
	if d.Gossip == nil {
		return 0, nil
	}
	epochInfo, err := d.getEpochInfo(ctx)
	if err != nil {
		return 0, MarkRetryable(fmt.Errorf("gossip-upload: %w", err))
	}
	data, err := d.Gossip.PendingContactInfo(ctx)
	if err != nil {
		return 0, MarkRetryable(fmt.Errorf("gossip-upload: %w", err))
	}
	count := 0
	for _, datum := range data {
		verified, err := gossip.Verify(datum.Instruction, datum.Ed25519ProgramID)
		if err != nil {
			if d.Std != nil {
				d.Std.GossipSignaturesRejected.Inc()
			}
			continue // unverifiable datum: skip, don't fail the tick
		}
		if d.Std != nil {
			d.Std.GossipSignaturesVerified.Inc()
		}
		info, err := gossip.DecodeContactInfo(verified.Message)
		if err != nil || info.NodePubkey != verified.Signer {
			continue
		}
		voteAccount, matched := d.lookupByNodePubkey(info.NodePubkey)
		if !matched {
			continue
		}
		h, ok := d.Histories[chain.Pubkey(voteAccount)]
		if !ok {
			continue
		}
		gd := history.GossipDatum{
			ClientType:      historyentry.ClientUnknown,
			IP:              info.IP,
			VersionMajor:    info.VersionMajor,
			VersionMinor:    info.VersionMinor,
			VersionPatch:    info.VersionPatch,
			WallclockMillis: info.WallclockMillis,
		}
		if err := h.CopyGossip(epochInfo.Epoch, gd, uint64(time.Now().Unix())); err != nil {
			if errors.Is(err, history.ErrGossipDataInFuture) {
				continue
			}
			if d.Std != nil {
				d.Std.HistoryUpdateErrors.Inc()
			}
			return count, fmt.Errorf("%w: gossip-upload %x: %v", ErrOperationFailed, voteAccount, err)
		}
		if d.Std != nil {
			d.Std.HistoryUpdatesApplied.Inc()
		}
		count++
	}
	return count, nil
}

func (d *Deps) lookupByNodePubkey(node [32]byte) ([32]byte, bool) {
	for _, entry := range d.ValidatorList {
		if entry.NodePubkey == node {
			return entry.VoteAccount, true
		}
	}
	return [32]byte{}, false
}

func opPriorityFeeCommission(ctx context.Context, d *Deps, st *KeeperState) (int, error) {
	if d.PriorityFeeDistribution == nil {
		return 0, nil
	}
	epochInfo, err := d.getEpochInfo(ctx)
	if err != nil {
		return 0, MarkRetryable(fmt.Errorf("priority-fee-commission: %w", err))
	}
	count := 0
	for key, h := range d.Histories {
		commissionBps, authority, ok, err := d.PriorityFeeDistribution.PriorityFeeDistribution(ctx, [32]byte(key))
		if err != nil {
			return count, MarkRetryable(fmt.Errorf("priority-fee-commission %x: %w", key, err))
		}
		if !ok {
			continue
		}
		if err := h.CopyPriorityFeeDistribution(epochInfo.Epoch, commissionBps, authority); err != nil {
			if d.Std != nil {
				d.Std.HistoryUpdateErrors.Inc()
			}
			return count, fmt.Errorf("%w: priority-fee-commission %x: %v", ErrOperationFailed, key, err)
		}
		if d.Std != nil {
			d.Std.HistoryUpdatesApplied.Inc()
		}
		count++
	}
	return count, nil
}

// opSteward drives the steward state machine one phase-step per tick:
// ComputeScores/ComputeInstantUnstake/Rebalance each process every
// not-yet-progressed index in this call, then Transition is invoked to
// advance (or abandon) the phase against the freshly observed epoch
// (spec §4.5, §4.7).
func opSteward(ctx context.Context, d *Deps, st *KeeperState) (int, error) {
	if d.Steward == nil {
		return 0, nil
	}
	epochInfo, err := d.getEpochInfo(ctx)
	if err != nil {
		return 0, MarkRetryable(fmt.Errorf("steward: %w", err))
	}
	if d.Std != nil {
		d.Std.StewardCycleEpoch.Set(int64(d.Steward.NextCycleEpoch))
	}

	scoringParams := scoring.Params{
		MEVCommissionRange:            uint64(d.Params.MEVCommissionRange),
		MEVCommissionBpsThreshold:     d.Params.MEVCommissionBpsThreshold,
		CommissionRange:               uint64(d.Params.CommissionRange),
		CommissionThreshold:           d.Params.CommissionThreshold,
		HistoricalCommissionThreshold: d.Params.HistoricalCommissionThreshold,
		EpochCreditsRange:             uint64(d.Params.EpochCreditsRange),
		DelinquencyThresholdRatio:     d.Params.ScoringDelinquencyThresholdRatio,
		Blacklist:                     d.Blacklist,
		ProgramInceptionEpoch:         config.ValidatorHistoryFirstReliableEpoch,
	}

	txs := 0
	switch d.Steward.StateTag {
	case steward.StateComputeScores:
		for idx, entry := range d.ValidatorList {
			if d.Steward.Progress.IsSet(idx) {
				continue
			}
			h, ok := d.Histories[chain.Pubkey(entry.VoteAccount)]
			if !ok {
				continue
			}
			result, err := scoring.Score(h, d.Cluster, scoringParams, idx, epochInfo.Epoch)
			if err != nil {
				return txs, fmt.Errorf("%w: steward score index %d: %v", ErrOperationFailed, idx, err)
			}
			if err := d.Steward.MarkScoreComputed(idx, result); err != nil {
				return txs, fmt.Errorf("%w: steward mark-score index %d: %v", ErrOperationFailed, idx, err)
			}
		}

	case steward.StateComputeDelegations:
		if err := d.Steward.ComputeDelegations(d.Params); err != nil {
			return txs, fmt.Errorf("%w: steward compute-delegations: %v", ErrOperationFailed, err)
		}

	case steward.StateComputeInstantUnstake:
		for idx, entry := range d.ValidatorList {
			if d.Steward.Progress.IsSet(idx) {
				continue
			}
			h, ok := d.Histories[chain.Pubkey(entry.VoteAccount)]
			if !ok {
				continue
			}
			result, err := scoring.Score(h, d.Cluster, scoringParams, idx, epochInfo.Epoch)
			if err != nil {
				return txs, fmt.Errorf("%w: steward instant-unstake score index %d: %v", ErrOperationFailed, idx, err)
			}
			check := steward.InstantUnstakeCheck{
				Delinquent:          !result.Filters.Delinquency,
				CommissionJumped:    !result.Filters.Commission,
				MEVCommissionJumped: !result.Filters.MEVCommission,
				Blacklisted:         !result.Filters.Blacklist,
			}
			if d.Std != nil && (check.Delinquent || check.CommissionJumped || check.MEVCommissionJumped || check.Blacklisted) {
				d.Std.StewardInstantUnstakes.Inc()
			}
			if err := d.Steward.MarkInstantUnstake(idx, check); err != nil {
				return txs, fmt.Errorf("%w: steward mark-instant-unstake index %d: %v", ErrOperationFailed, idx, err)
			}
		}

	case steward.StateRebalance:
		totalLamports, err := d.StakePool.TotalLamports(ctx)
		if err != nil {
			return txs, MarkRetryable(fmt.Errorf("steward rebalance: %w", err))
		}
		reserve, err := d.StakePool.ReserveLamports(ctx)
		if err != nil {
			return txs, MarkRetryable(fmt.Errorf("steward rebalance: %w", err))
		}
		for idx := range d.ValidatorList {
			if d.Steward.Progress.IsSet(idx) {
				continue
			}
			current := d.Steward.ValidatorLamportBalances[idx]
			if current == rebalance.LamportBalanceDefault {
				current = 0
			}
			target, err := rebalance.TargetLamports(totalLamports, d.Steward.Delegations[idx])
			if err != nil {
				return txs, fmt.Errorf("%w: steward target-lamports index %d: %v", ErrOperationFailed, idx, err)
			}
			instantUnstakeSet := d.Steward.InstantUnstake.IsSet(idx)
			decision, result, err := rebalance.Evaluate(current, target, instantUnstakeSet, current, reserve, d.Steward.Unstake)
			if err != nil {
				return txs, fmt.Errorf("%w: steward evaluate index %d: %v", ErrOperationFailed, idx, err)
			}
			if err := applyRebalanceDecision(ctx, d, idx, decision); err != nil {
				return txs, MarkRetryable(fmt.Errorf("steward apply index %d: %w", idx, err))
			}
			var newBalance uint64
			switch decision.Kind {
			case rebalance.KindIncrease:
				newBalance = current + decision.IncreaseAmount
				reserve = result // result is the remaining reserve after this allocation
				if d.Std != nil {
					d.Std.StewardRebalanceLamportsMoved.Add(int64(decision.IncreaseAmount))
				}
				txs++
			case rebalance.KindDecrease:
				newBalance = current - result // result is the decrease total applied
				if d.Std != nil {
					d.Std.StewardRebalanceLamportsMoved.Add(int64(result))
				}
				txs++
			default:
				newBalance = current
			}
			d.Steward.ValidatorLamportBalances[idx] = newBalance
			if err := d.Steward.MarkRebalanced(idx, decision); err != nil {
				return txs, fmt.Errorf("%w: steward mark-rebalanced index %d: %v", ErrOperationFailed, idx, err)
			}
		}
	}

	if d.Std != nil && d.Steward.StateTag == steward.StateComputeScores && d.Steward.ComputeScoreSlotRangeExceeded(epochInfo.AbsoluteSlot, d.Params) {
		d.Std.StewardComputeScoreTimeouts.Inc()
	}

	stateBefore := d.Steward.StateTag
	inputsPastProgress := d.Steward.Progress.IsFullUpTo(len(d.ValidatorList))
	if err := d.Steward.Transition(epochInfo.Epoch, epochInfo.AbsoluteSlot, epochInfo.Progress(), inputsPastProgress, d.Params); err != nil {
		return txs, fmt.Errorf("%w: steward transition: %v", ErrOperationFailed, err)
	}
	if d.Std != nil && d.Steward.StateTag != stateBefore {
		d.Std.StewardTransitions.Inc()
	}
	return txs, nil
}

func applyRebalanceDecision(ctx context.Context, d *Deps, idx int, decision rebalance.Decision) error {
	if idx >= len(d.ValidatorList) {
		return steward.ErrIndexOutOfBounds
	}
	voteAccount := d.ValidatorList[idx].VoteAccount
	switch decision.Kind {
	case rebalance.KindNone:
		return nil
	case rebalance.KindIncrease:
		return d.StakePool.IncreaseValidatorStake(ctx, voteAccount, decision.IncreaseAmount)
	case rebalance.KindDecrease:
		total, err := decision.DecreaseAmounts.Total()
		if err != nil {
			return err
		}
		return d.StakePool.DecreaseValidatorStake(ctx, voteAccount, total)
	default:
		return nil
	}
}

// opPreferredWithdraw runs the independent periodic routine of spec §4.6:
// pick the lowest-raw-scoring validator with enough spare active stake to
// serve as a withdraw source, and push the update only when the pool's
// pointer actually changes.
func opPreferredWithdraw(ctx context.Context, d *Deps, st *KeeperState) (int, error) {
	if d.Steward == nil || d.StakePool == nil {
		return 0, nil
	}
	stakeByVoteAccount := make(map[chain.Pubkey]uint64, len(d.pendingVoteAccounts))
	for _, va := range d.pendingVoteAccounts {
		stakeByVoteAccount[chain.Pubkey(va.VoteAccount)] = va.ActivatedStakeLamports
	}
	stakes := make([]preferredwithdraw.ValidatorStakeInfo, len(d.ValidatorList))
	for i, entry := range d.ValidatorList {
		lamports, active := stakeByVoteAccount[chain.Pubkey(entry.VoteAccount)]
		stakes[i] = preferredwithdraw.ValidatorStakeInfo{
			VoteAccount:         entry.VoteAccount,
			ActiveStakeLamports: lamports,
			Active:              active,
		}
	}

	// Stake-account rent exemption is an external collaborator concern
	// (a getMinimumBalanceForRentExemption RPC call) not modeled by
	// chain.RPCClient; omitting it from the base only makes the
	// threshold check marginally more permissive.
	base := preferredwithdraw.BaseLamportBalance(d.Params.MinimumStakeLamports, 0)
	selected, selectedSet := preferredwithdraw.Select(d.Steward.SortedRawScoreIndices, d.Steward.NumPoolValidators, stakes, base)

	if !preferredwithdraw.NeedsUpdate(d.PreferredWithdrawValidator, selected, d.PreferredWithdrawValidatorSet, selectedSet) {
		return 0, nil
	}
	if err := d.StakePool.SetPreferredWithdrawValidator(ctx, selected, !selectedSet); err != nil {
		return 0, MarkRetryable(fmt.Errorf("preferred-withdraw: %w", err))
	}
	d.PreferredWithdrawValidator = selected
	d.PreferredWithdrawValidatorSet = selectedSet
	return 1, nil
}

func opBlockMetadata(ctx context.Context, d *Deps, st *KeeperState) (int, error) {
	if d.BlockMeta == nil || d.SlotHistory == nil {
		return 0, nil
	}
	epochInfo, err := d.getEpochInfo(ctx)
	if err != nil {
		return 0, MarkRetryable(fmt.Errorf("block-metadata: %w", err))
	}
	start := uint64(0)
	if last, ok := d.BlockMeta.LatestSlot(); ok {
		start = last + 1
	}
	if start > epochInfo.AbsoluteSlot {
		return 0, nil
	}
	bitmap, err := d.SlotHistory.SlotHistoryBitmap(ctx)
	if err != nil {
		return 0, MarkRetryable(fmt.Errorf("block-metadata: %w", err))
	}
	count := 0
	for slot := start; slot <= epochInfo.AbsoluteSlot; slot++ {
		if !bitmap.Contains(slot) {
			continue
		}
		if err := d.BlockMeta.RecordSlot(slot, bitmap.IsSet(slot)); err != nil {
			return count, fmt.Errorf("%w: block-metadata slot %d: %v", ErrOperationFailed, slot, err)
		}
		count++
	}
	return count, nil
}

// opCheckpointHistories persists every tracked validator's latest feed
// entry into the local block-metadata database, using the same
// bit-exact on-chain layout (spec §6) the cluster would itself store it
// in, so a restart can resume from disk instead of re-deriving every feed
// from the chain.
func opCheckpointHistories(ctx context.Context, d *Deps, st *KeeperState) (int, error) {
	if d.BlockMeta == nil {
		return 0, nil
	}
	count := 0
	for voteAccount, h := range d.Histories {
		entry, ok := h.Buf.Last()
		if !ok {
			continue
		}
		if err := d.BlockMeta.SaveHistoryEntry([32]byte(voteAccount), account.MarshalEntry(entry)); err != nil {
			return count, fmt.Errorf("%w: checkpoint-histories %x: %v", ErrOperationFailed, voteAccount, err)
		}
		count++
	}
	return count, nil
}

// opEmitMetrics publishes this tick's scheduling snapshot. The per-kind
// breakdown goes to d.Metrics under dynamic names (one gauge per
// OperationKind, generated from priorityOrder, since the set of kinds is
// fixed but Standard has no way to express "one series per kind" through
// fixed fields); KeeperOperationRuns/Errors/TransactionsSubmitted, the
// cross-kind monotonic totals, are incremented directly by the scheduler
// as each operation completes rather than derived here, since RunsForEpoch
// and friends reset every epoch and so cannot be resampled into a
// monotonic counter without double-counting across the reset.
func opEmitMetrics(ctx context.Context, d *Deps, st *KeeperState) (int, error) {
	if d.Std != nil {
		d.Std.ValidatorsInPool.Set(int64(len(d.ValidatorList)))
	}
	if d.Metrics == nil {
		return 0, nil
	}
	d.Metrics.Gauge("keeper.epoch").Set(int64(st.CurrentEpoch))
	d.Metrics.Gauge("validators.in_pool").Set(int64(len(d.ValidatorList)))
	for _, kind := range priorityOrder {
		s := st.Stats(kind)
		prefix := "keeper." + kind.String()
		d.Metrics.Gauge(prefix + ".runs_for_epoch").Set(int64(s.RunsForEpoch))
		d.Metrics.Gauge(prefix + ".errors_for_epoch").Set(int64(s.ErrorsForEpoch))
		d.Metrics.Gauge(prefix + ".txs_for_epoch").Set(int64(s.TxsForEpoch))
	}
	return 0, nil
}
