package keeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/solsteward/steward/chain"
)

// fakeRPC is a minimal chain.RPCClient whose epoch can be advanced between
// calls, for exercising the scheduler's epoch-poll-driven behavior without
// a real Solana endpoint.
type fakeRPC struct {
	epoch        uint64
	absoluteSlot uint64
}

func (f *fakeRPC) GetEpochInfo(ctx context.Context) (chain.EpochInfo, error) {
	return chain.EpochInfo{Epoch: f.epoch, AbsoluteSlot: f.absoluteSlot, SlotsInEpoch: 1000}, nil
}
func (f *fakeRPC) GetAccountData(ctx context.Context, address [32]byte) ([]byte, error) {
	return nil, nil
}
func (f *fakeRPC) GetMultipleAccountData(ctx context.Context, addresses [][32]byte) ([][]byte, error) {
	return nil, nil
}
func (f *fakeRPC) SendTransaction(ctx context.Context, tx []byte) ([64]byte, error) {
	return [64]byte{}, nil
}
func (f *fakeRPC) ConfirmTransaction(ctx context.Context, signature [64]byte) (bool, error) {
	return true, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RunStakeUpload = false
	cfg.RunGossipUpload = false
	return cfg
}

func newFixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSchedulerTickFiresDueOperationsInPriorityOrder(t *testing.T) {
	var fired []OperationKind
	rpc := &fakeRPC{epoch: 5}
	deps := &Deps{RPC: rpc}
	cfg := DefaultConfig()
	cfg.RunStakeUpload = true
	cfg.RunGossipUpload = true
	sched := NewScheduler(deps, cfg)
	sched.Now = newFixedClock(time.Unix(1000, 0))
	sched.Operations = make(map[OperationKind]OperationFunc, len(priorityOrder))
	for _, kind := range priorityOrder {
		kind := kind
		sched.Operations[kind] = func(ctx context.Context, d *Deps, st *KeeperState) (int, error) {
			fired = append(fired, kind)
			return 0, nil
		}
	}

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if len(fired) != len(priorityOrder) {
		t.Fatalf("fired %d operations, want %d (startup burst should fire everything)", len(fired), len(priorityOrder))
	}
	for i, kind := range priorityOrder {
		if fired[i] != kind {
			t.Fatalf("fired[%d] = %s, want %s (priority order violated)", i, fired[i], kind)
		}
	}
}

func TestSchedulerSkipsOperationsNotYetDue(t *testing.T) {
	rpc := &fakeRPC{epoch: 5}
	deps := &Deps{RPC: rpc}
	cfg := testConfig()
	cfg.FullStartup = false
	sched := NewScheduler(deps, cfg)

	base := time.Unix(10_000, 0)
	sched.Now = newFixedClock(base)

	runs := 0
	sched.Operations = make(map[OperationKind]OperationFunc, len(priorityOrder))
	for _, kind := range priorityOrder {
		sched.Operations[kind] = func(ctx context.Context, d *Deps, st *KeeperState) (int, error) { return 0, nil }
	}
	sched.Operations[OpSteward] = func(ctx context.Context, d *Deps, st *KeeperState) (int, error) {
		runs++
		return 0, nil
	}

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("first Tick: %v", err)
	}
	if runs != 1 {
		t.Fatalf("runs after first tick = %d, want 1", runs)
	}

	// Same instant, well inside steward_interval: must not fire again.
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("second Tick: %v", err)
	}
	if runs != 1 {
		t.Fatalf("runs after second (too-soon) tick = %d, want 1", runs)
	}

	// Advance past the configured interval: must fire again.
	sched.Now = newFixedClock(base.Add(time.Duration(cfg.StewardIntervalSeconds+1) * time.Second))
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("third Tick: %v", err)
	}
	if runs != 2 {
		t.Fatalf("runs after interval-elapsed tick = %d, want 2", runs)
	}
}

func TestSchedulerStopsDrainOnFirstOperationFailure(t *testing.T) {
	var fired []OperationKind
	failAt := priorityOrder[3]
	boom := errors.New("boom")

	rpc := &fakeRPC{epoch: 1}
	deps := &Deps{RPC: rpc}
	sched := NewScheduler(deps, testConfig())
	sched.Now = newFixedClock(time.Unix(1, 0))
	sched.Operations = make(map[OperationKind]OperationFunc, len(priorityOrder))
	for _, kind := range priorityOrder {
		kind := kind
		sched.Operations[kind] = func(ctx context.Context, d *Deps, st *KeeperState) (int, error) {
			fired = append(fired, kind)
			if kind == failAt {
				return 0, boom
			}
			return 0, nil
		}
	}

	err := sched.Tick(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Tick err = %v, want to wrap %v", err, boom)
	}

	for i, kind := range priorityOrder {
		if kind == failAt {
			break
		}
		if fired[i] != kind {
			t.Fatalf("fired[%d] = %s, want %s before the failure point", i, fired[i], kind)
		}
	}
	if fired[len(fired)-1] != failAt {
		t.Fatalf("last fired operation = %s, want %s (the failing one)", fired[len(fired)-1], failAt)
	}
	if len(fired) != 4 {
		t.Fatalf("fired %d operations, want exactly 4 (drain stops at the failure)", len(fired))
	}

	stats := sched.State.Stats(failAt)
	if stats.ErrorsForEpoch != 1 {
		t.Fatalf("ErrorsForEpoch for %s = %d, want 1", failAt, stats.ErrorsForEpoch)
	}
}

func TestSchedulerPreemptsRemainingDrainOnEpochAdvance(t *testing.T) {
	var fired []OperationKind
	advanceAt := priorityOrder[2]

	rpc := &fakeRPC{epoch: 10}
	deps := &Deps{RPC: rpc}
	sched := NewScheduler(deps, testConfig())
	sched.Now = newFixedClock(time.Unix(1, 0))
	sched.Operations = make(map[OperationKind]OperationFunc, len(priorityOrder))
	for _, kind := range priorityOrder {
		kind := kind
		sched.Operations[kind] = func(ctx context.Context, d *Deps, st *KeeperState) (int, error) {
			fired = append(fired, kind)
			if kind == advanceAt {
				rpc.epoch++
			}
			return 0, nil
		}
	}

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	for i, kind := range priorityOrder {
		if kind == advanceAt {
			break
		}
		if fired[i] != kind {
			t.Fatalf("fired[%d] = %s, want %s", i, fired[i], kind)
		}
	}
	if len(fired) != 3 {
		t.Fatalf("fired %d operations, want exactly 3 (drain stops once the epoch advance is observed)", len(fired))
	}
	if sched.State.CurrentEpoch != 11 {
		t.Fatalf("CurrentEpoch = %d, want 11 (advanced epoch recorded)", sched.State.CurrentEpoch)
	}
}

func TestSchedulerStartupBurstClearsAfterMaxIntervalTicks(t *testing.T) {
	rpc := &fakeRPC{epoch: 1}
	deps := &Deps{RPC: rpc}
	cfg := testConfig()
	cfg.ValidatorHistoryIntervalSeconds = 2
	cfg.StewardIntervalSeconds = 2
	cfg.BlockMetadataIntervalSeconds = 2
	cfg.MetricsIntervalSeconds = 2
	sched := NewScheduler(deps, cfg)
	sched.Operations = map[OperationKind]OperationFunc{}
	for _, kind := range priorityOrder {
		sched.Operations[kind] = func(ctx context.Context, d *Deps, st *KeeperState) (int, error) { return 0, nil }
	}

	if !sched.State.Startup {
		t.Fatal("expected Startup true initially (FullStartup default)")
	}
	maxTicks := int(cfg.maxIntervalSeconds()) + 1
	for i := 0; i <= maxTicks; i++ {
		sched.Now = newFixedClock(time.Unix(int64(i), 0))
		if err := sched.Tick(context.Background()); err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
	}
	if sched.State.Startup {
		t.Fatal("expected Startup cleared after maxIntervalSeconds+1 ticks")
	}
}
