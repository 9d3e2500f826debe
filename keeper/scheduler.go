package keeper

import (
	"context"
	"errors"
	"time"

	"github.com/solsteward/steward/metrics"
)

// Scheduler is the keeper's single-task cooperative tick clock (spec §4.7,
// §5): one goroutine, one KeeperState, no ambient globals. Each call to Tick
// polls the cluster epoch, fires every operation whose interval is due in
// priority order, and stops draining the tick on the first operation
// failure.
type Scheduler struct {
	Deps       *Deps
	State      *KeeperState
	Config     Config
	Operations map[OperationKind]OperationFunc

	// Now lets tests substitute a deterministic clock. Defaults to
	// time.Now when nil.
	Now func() time.Time

	cpu       *metrics.CPUTracker
	tickMeter *metrics.Meter
}

// NewScheduler builds a Scheduler with the built-in operation set.
// Override Operations after construction (e.g. in tests) to replace
// individual steps.
func NewScheduler(deps *Deps, cfg Config) *Scheduler {
	return &Scheduler{
		Deps:       deps,
		State:      NewKeeperState(cfg.FullStartup),
		Config:     cfg,
		Operations: defaultOperations(),
		cpu:        metrics.NewCPUTracker(),
		tickMeter:  metrics.NewMeter(),
	}
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Tick runs one pass of the scheduling loop: it polls the current epoch,
// resets per-epoch counters on an epoch advance, advances the startup
// burst, then drains priorityOrder in order, firing every operation that
// is both enabled and due. It returns the first operation error
// encountered, which also ends the tick's drain (spec §4.7: "on the first
// operation failure in a tick, the drain stops; already-fired operations
// in that tick keep their results").
func (s *Scheduler) Tick(ctx context.Context) error {
	if len(s.Operations) == 0 {
		return ErrNoOperations
	}

	tickStart := time.Now()
	s.tickMeter.Mark(1)
	s.cpu.RecordCPU()
	if s.Deps.Std != nil {
		s.Deps.Std.ProcessCPUPercent.Set(int64(s.cpu.Usage()))
		s.Deps.Std.TickRate1.Set(int64(s.tickMeter.Rate1() * 1000))
	}
	defer func() {
		if s.Deps.Std != nil {
			s.Deps.Std.KeeperTickLatency.Observe(float64(time.Since(tickStart).Milliseconds()))
		}
	}()

	epochInfo, err := s.Deps.getEpochInfo(ctx)
	if err != nil {
		return MarkRetryable(errors.Join(ErrEpochPollFailed, err))
	}
	if epochInfo.Epoch != s.State.CurrentEpoch {
		s.State.resetForEpoch(epochInfo.Epoch)
	}
	s.State.tickStartup(s.Config.maxIntervalSeconds())

	now := s.now()
	for _, kind := range priorityOrder {
		if !s.Config.enabled(kind) {
			continue
		}
		if !s.State.due(kind, s.Config.interval(kind.Group()), now) {
			continue
		}

		fn, ok := s.Operations[kind]
		if !ok {
			return ErrUnknownOperation
		}

		txs, opErr := fn(ctx, s.Deps, s.State)
		s.State.recordRun(kind, now, txs, opErr)
		if s.Deps.Std != nil {
			s.Deps.Std.KeeperOperationRuns.Inc()
			if opErr != nil {
				s.Deps.Std.KeeperOperationErrors.Inc()
			}
			if txs > 0 {
				s.Deps.Std.KeeperTransactionsSubmitted.Add(int64(txs))
			}
		}
		s.Deps.logger().Info("keeper operation completed",
			"operation", kind.String(),
			"epoch", s.State.CurrentEpoch,
			"txs", txs,
			"error", opErr,
		)
		if opErr != nil {
			return opErr
		}

		// Re-poll the epoch after every successful operation so
		// an epoch advance mid-tick preempts the remaining drain (spec
		// §4.7 scenario: epoch transition during a steward crank) rather
		// than finishing a now-stale tick against last epoch's state.
		if refreshed, err := s.Deps.getEpochInfo(ctx); err == nil && refreshed.Epoch != s.State.CurrentEpoch {
			s.State.resetForEpoch(refreshed.Epoch)
			return nil
		}
	}
	return nil
}

// Run calls Tick once per interval tick until ctx is cancelled, sleeping
// tickInterval between calls regardless of how long a tick itself took
// (spec §4.7's "1-second-granularity tick clock"). A Tick error is logged
// and does not stop the loop: each operation already records its own
// failure in KeeperState, and the next tick's due() check determines
// whether it retries.
func (s *Scheduler) Run(ctx context.Context, tickInterval time.Duration) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.Deps.logger().Error("keeper tick failed", "error", err)
			}
		}
	}
}
