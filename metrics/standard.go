package metrics

// Standard bundles every pre-declared domain metric the keeper emits, all
// backed by one Registry. cmd/steward-keeperd's buildDeps builds exactly
// one Standard from the same Registry it hands to keeper.Deps, so the
// counters keeper/operations.go increments are the same ones a Prometheus
// scrape (RegistryCollector) or a local snapshot reads back.
type Standard struct {
	// ---- Validator history metrics ----

	// HistoryUpdatesApplied counts successful per-epoch history feed
	// updates across all validators.
	HistoryUpdatesApplied *Counter
	// HistoryUpdateErrors counts feed updates rejected by an invariant
	// check (out-of-order epoch, arithmetic overflow).
	HistoryUpdateErrors *Counter
	// GossipSignaturesVerified counts ed25519 gossip signatures that
	// passed verification.
	GossipSignaturesVerified *Counter
	// GossipSignaturesRejected counts ed25519 gossip signatures that
	// failed verification.
	GossipSignaturesRejected *Counter

	// ---- Steward state machine metrics ----

	// StewardCycleEpoch tracks the epoch the current scoring cycle
	// started at.
	StewardCycleEpoch *Gauge
	// StewardTransitions counts state-machine phase transitions.
	StewardTransitions *Counter
	// StewardComputeScoreTimeouts counts ComputeScores restarts caused
	// by the slot-range timeout.
	StewardComputeScoreTimeouts *Counter
	// StewardInstantUnstakes counts validators flagged for instant
	// unstake in a ComputeInstantUnstake pass.
	StewardInstantUnstakes *Counter
	// StewardRebalanceLamportsMoved sums lamports moved by rebalance
	// decisions (increase and decrease combined).
	StewardRebalanceLamportsMoved *Counter

	// ---- Validator list maintenance metrics ----

	// ValidatorsAutoAdded counts validators admitted via AutoAdd.
	ValidatorsAutoAdded *Counter
	// ValidatorsRemoved counts validators removed during epoch
	// maintenance (both delayed and immediate removal).
	ValidatorsRemoved *Counter
	// ValidatorsInPool tracks the current pool size.
	ValidatorsInPool *Gauge

	// ---- Keeper scheduling metrics ----

	// KeeperOperationRuns counts scheduling-loop operation invocations.
	KeeperOperationRuns *Counter
	// KeeperOperationErrors counts operation invocations that returned
	// an error.
	KeeperOperationErrors *Counter
	// KeeperTransactionsSubmitted counts transactions the keeper
	// submitted to the cluster.
	KeeperTransactionsSubmitted *Counter
	// KeeperTickLatency records one scheduling-loop tick's duration in
	// milliseconds.
	KeeperTickLatency *Histogram

	// ---- RPC metrics ----

	// RPCRequests counts outgoing Solana RPC requests the keeper makes.
	RPCRequests *Counter
	// RPCErrors counts RPC requests that returned an error.
	RPCErrors *Counter
	// RPCLatency records RPC request latency in milliseconds.
	RPCLatency *Histogram

	// ---- Process metrics ----

	// ProcessCPUPercent is this process's CPU utilization, sampled once
	// per tick by a CPUTracker.
	ProcessCPUPercent *Gauge
	// TickRate1 is the scheduling loop's 1-minute EWMA tick rate, scaled
	// by 1000 so a sub-1-tick/s rate survives the Gauge's int64 value.
	TickRate1 *Gauge
}

// NewStandard registers every pre-declared metric name against r and
// returns the bundle. Registry's Counter/Gauge/Histogram accessors are
// get-or-create, so calling NewStandard twice against the same r yields
// two Standards whose fields alias the same underlying series.
func NewStandard(r *Registry) *Standard {
	return &Standard{
		HistoryUpdatesApplied:    r.Counter("history.updates_applied"),
		HistoryUpdateErrors:      r.Counter("history.update_errors"),
		GossipSignaturesVerified: r.Counter("gossip.signatures_verified"),
		GossipSignaturesRejected: r.Counter("gossip.signatures_rejected"),

		StewardCycleEpoch:             r.Gauge("steward.cycle_epoch"),
		StewardTransitions:            r.Counter("steward.transitions"),
		StewardComputeScoreTimeouts:   r.Counter("steward.compute_score_timeouts"),
		StewardInstantUnstakes:        r.Counter("steward.instant_unstakes"),
		StewardRebalanceLamportsMoved: r.Counter("steward.rebalance_lamports_moved"),

		ValidatorsAutoAdded: r.Counter("validators.auto_added"),
		ValidatorsRemoved:   r.Counter("validators.removed"),
		ValidatorsInPool:    r.Gauge("validators.in_pool"),

		KeeperOperationRuns:         r.Counter("keeper.operation_runs"),
		KeeperOperationErrors:       r.Counter("keeper.operation_errors"),
		KeeperTransactionsSubmitted: r.Counter("keeper.transactions_submitted"),
		KeeperTickLatency:           r.Histogram("keeper.tick_latency_ms"),

		RPCRequests: r.Counter("rpc.requests"),
		RPCErrors:   r.Counter("rpc.errors"),
		RPCLatency:  r.Histogram("rpc.latency_ms"),

		ProcessCPUPercent: r.Gauge("process.cpu_percent"),
		TickRate1:         r.Gauge("keeper.tick_rate1_per_1000s"),
	}
}
