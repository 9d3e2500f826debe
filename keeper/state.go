package keeper

import (
	"fmt"
	"time"
)

// OperationKind identifies one step of the keeper's priority-ordered drain
// (spec §4.7).
type OperationKind int

const (
	OpPreCreateUpdate OperationKind = iota
	OpCreateMissingAccounts
	OpPostCreateUpdate
	OpClusterHistory
	OpCopyVoteAccounts
	OpMEVCommission
	OpMEVEarned
	OpStakeUpload
	OpGossipUpload
	OpPriorityFeeCommission
	OpSteward
	OpPreferredWithdraw
	OpBlockMetadata
	OpCheckpointHistories
	OpEmitMetrics
)

func (k OperationKind) String() string {
	switch k {
	case OpPreCreateUpdate:
		return "pre-create-update"
	case OpCreateMissingAccounts:
		return "create-missing-accounts"
	case OpPostCreateUpdate:
		return "post-create-update"
	case OpClusterHistory:
		return "cluster-history"
	case OpCopyVoteAccounts:
		return "copy-vote-accounts"
	case OpMEVCommission:
		return "mev-commission"
	case OpMEVEarned:
		return "mev-earned"
	case OpStakeUpload:
		return "stake-upload"
	case OpGossipUpload:
		return "gossip-upload"
	case OpPriorityFeeCommission:
		return "priority-fee-commission"
	case OpSteward:
		return "steward"
	case OpPreferredWithdraw:
		return "preferred-withdraw"
	case OpBlockMetadata:
		return "block-metadata"
	case OpCheckpointHistories:
		return "checkpoint-histories"
	case OpEmitMetrics:
		return "emit-metrics"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// priorityOrder is the exact firing order within one tick (spec §4.7):
// account bookkeeping, then every feed update, then the steward crank,
// then local persistence, then metrics.
var priorityOrder = []OperationKind{
	OpPreCreateUpdate,
	OpCreateMissingAccounts,
	OpPostCreateUpdate,
	OpClusterHistory,
	OpCopyVoteAccounts,
	OpMEVCommission,
	OpMEVEarned,
	OpStakeUpload,
	OpGossipUpload,
	OpPriorityFeeCommission,
	OpSteward,
	OpPreferredWithdraw,
	OpBlockMetadata,
	OpCheckpointHistories,
	OpEmitMetrics,
}

// IntervalGroup is one of the keeper's four configurable tick intervals
// (spec §4.7, §5).
type IntervalGroup int

const (
	IntervalValidatorHistory IntervalGroup = iota
	IntervalSteward
	IntervalBlockMetadata
	IntervalMetrics
)

// Group reports which interval bucket an operation belongs to. Every
// feed-update and account-bookkeeping operation shares the validator-
// history interval; steward, block-metadata, and metrics each get their
// own.
func (k OperationKind) Group() IntervalGroup {
	switch k {
	case OpSteward:
		return IntervalSteward
	case OpBlockMetadata, OpCheckpointHistories:
		return IntervalBlockMetadata
	case OpEmitMetrics:
		return IntervalMetrics
	default:
		return IntervalValidatorHistory
	}
}

// OperationStats is one operation's per-epoch retry accounting (spec
// §4.7): how many times it ran, how many of those runs errored, and how
// many transactions it submitted. Reset whenever the observed epoch
// advances.
type OperationStats struct {
	RunsForEpoch   uint64
	ErrorsForEpoch uint64
	TxsForEpoch    uint64
}

// KeeperState is the scheduler's mutable snapshot (spec §5): "mutated
// inline on the scheduling task... modeled as a struct explicitly
// threaded through every operation; no ambient globals." It tracks the
// observed epoch, the one-shot startup burst, per-operation timing and
// retry counters, and keeper flags an operator or a prior tick can set to
// change an operation's behavior (e.g. RerunVote).
type KeeperState struct {
	CurrentEpoch uint64

	// Startup is true for the keeper's first burst of ticks so every
	// operation fires at least once regardless of its configured
	// interval, matching original_source's full_startup flag. Cleared
	// after Config.maxIntervalSeconds()+1 ticks have elapsed.
	Startup bool

	// RerunVote forces copy-vote-accounts to ignore its skip heuristic
	// (re-write every tracked validator's vote-account fields even if
	// they look unchanged since the last run) on the next tick it fires,
	// then clears itself.
	RerunVote bool

	startupTicks int
	lastRun      map[OperationKind]time.Time
	stats        map[OperationKind]*OperationStats
}

// NewKeeperState creates a fresh KeeperState. startup mirrors
// original_source's full_startup CLI flag.
func NewKeeperState(startup bool) *KeeperState {
	s := &KeeperState{
		Startup: startup,
		lastRun: make(map[OperationKind]time.Time),
		stats:   make(map[OperationKind]*OperationStats, len(priorityOrder)),
	}
	for _, k := range priorityOrder {
		s.stats[k] = &OperationStats{}
	}
	return s
}

// Stats returns a copy of kind's current per-epoch counters.
func (s *KeeperState) Stats(kind OperationKind) OperationStats {
	if st, ok := s.stats[kind]; ok {
		return *st
	}
	return OperationStats{}
}

// resetForEpoch zeroes every operation's per-epoch counters and records
// the new observed epoch. Called whenever the scheduler sees the cluster
// epoch advance (spec §4.7).
func (s *KeeperState) resetForEpoch(epoch uint64) {
	s.CurrentEpoch = epoch
	for _, st := range s.stats {
		*st = OperationStats{}
	}
}

// due reports whether kind is due to fire: the startup burst is still
// active, it has never run, or at least interval has elapsed since its
// last run.
func (s *KeeperState) due(kind OperationKind, interval time.Duration, now time.Time) bool {
	if s.Startup {
		return true
	}
	last, ok := s.lastRun[kind]
	if !ok {
		return true
	}
	return now.Sub(last) >= interval
}

// recordRun updates kind's timestamp and per-epoch counters after a Fire
// call, whether or not it succeeded.
func (s *KeeperState) recordRun(kind OperationKind, now time.Time, txs int, err error) {
	s.lastRun[kind] = now
	st := s.stats[kind]
	if st == nil {
		st = &OperationStats{}
		s.stats[kind] = st
	}
	st.RunsForEpoch++
	if txs > 0 {
		st.TxsForEpoch += uint64(txs)
	}
	if err != nil {
		st.ErrorsForEpoch++
	}
}

// tickStartup advances the startup-burst counter and clears Startup once
// maxIntervalSeconds+1 ticks have elapsed, guaranteeing every operation
// has had at least one opportunity to fire during the burst regardless of
// its own interval.
func (s *KeeperState) tickStartup(maxIntervalSeconds uint64) {
	if !s.Startup {
		return
	}
	s.startupTicks++
	if uint64(s.startupTicks) > maxIntervalSeconds+1 {
		s.Startup = false
	}
}
