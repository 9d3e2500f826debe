// Package steward implements the delegation state machine of spec.md
// §4.5: per-cycle scoring, delegation allocation, instant-unstake
// detection, and rebalancing, plus the epoch-boundary and validator-list
// maintenance that gate it (§3.5, §4.5). Grounded on
// original_source/programs/steward/src/state/steward_state.rs and its
// test suite (test_state_transitions.rs, test_epoch_maintenance.rs), and
// styled after sync/pipeline.go's staged-orchestrator pattern.
package steward

import (
	"errors"
	"fmt"

	"github.com/solsteward/steward/bitmask"
	"github.com/solsteward/steward/rebalance"
)

// StateTag is one of the five cycle phases of spec §4.5.
type StateTag uint8

const (
	StateComputeScores StateTag = iota
	StateComputeDelegations
	StateIdle
	StateComputeInstantUnstake
	StateRebalance
)

func (s StateTag) String() string {
	switch s {
	case StateComputeScores:
		return "ComputeScores"
	case StateComputeDelegations:
		return "ComputeDelegations"
	case StateIdle:
		return "Idle"
	case StateComputeInstantUnstake:
		return "ComputeInstantUnstake"
	case StateRebalance:
		return "Rebalance"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Status flag bits on State.StatusFlags. EpochMaintenance is named in
// spec §4.5; ComputeScoresPaused/RebalancePaused are supplemented (see
// SPEC_FULL.md), generalizing original_source's per-validator paused
// bitmask in parameters.rs to a per-phase flag.
const (
	StatusFlagEpochMaintenance     uint32 = 1 << 0
	StatusFlagComputeScoresPaused  uint32 = 1 << 1
	StatusFlagRebalancePaused      uint32 = 1 << 2
)

// SentinelIndex marks an unused slot in SortedScoreIndices/
// SortedRawScoreIndices.
const SentinelIndex uint16 = 0xFFFF

var (
	ErrIndexOutOfBounds  = errors.New("steward: validator index out of bounds")
	ErrWrongState        = errors.New("steward: operation invalid for current state tag")
	ErrInvalidState      = errors.New("steward: state invariant violated")
)

// State is the steward's in-memory mirror of spec §3.5's packed account:
// one entry per validator index, bounded by a fixed capacity chosen at
// construction (the on-chain account fixes this at config.MaxValidators;
// tests may use a smaller capacity).
type State struct {
	StateTag StateTag

	ValidatorLamportBalances []uint64
	Scores                   []uint64
	SortedScoreIndices       []uint16
	RawScores                []uint64
	SortedRawScoreIndices    []uint16
	Delegations              []rebalance.Delegation

	InstantUnstake                *bitmask.Bitmask
	Progress                      *bitmask.Bitmask
	ValidatorsForImmediateRemoval *bitmask.Bitmask
	ValidatorsToRemove            *bitmask.Bitmask

	StartComputingScoresSlot uint64
	CurrentEpoch             uint64
	NextCycleEpoch           uint64
	PhaseEpoch               uint64 // epoch at which ComputeInstantUnstake/Rebalance began

	NumPoolValidators int
	ValidatorsAdded   uint32
	StatusFlags       uint32
	RebalanceCompleted bool

	Unstake rebalance.UnstakeState
}

// New allocates a State with room for `capacity` validators, all fields
// at their zero/sentinel defaults and StateTag starting at ComputeScores.
func New(capacity int) *State {
	if capacity <= 0 {
		panic("steward: capacity must be positive")
	}
	s := &State{
		StateTag:                     StateComputeScores,
		ValidatorLamportBalances:     make([]uint64, capacity),
		Scores:                       make([]uint64, capacity),
		SortedScoreIndices:           make([]uint16, capacity),
		RawScores:                    make([]uint64, capacity),
		SortedRawScoreIndices:        make([]uint16, capacity),
		Delegations:                  make([]rebalance.Delegation, capacity),
		InstantUnstake:               bitmask.New(capacity),
		Progress:                     bitmask.New(capacity),
		ValidatorsForImmediateRemoval: bitmask.New(capacity),
		ValidatorsToRemove:            bitmask.New(capacity),
	}
	for i := range s.ValidatorLamportBalances {
		s.ValidatorLamportBalances[i] = rebalance.LamportBalanceDefault
		s.SortedScoreIndices[i] = SentinelIndex
		s.SortedRawScoreIndices[i] = SentinelIndex
	}
	return s
}

// StartCycle initializes the scoring-cycle clock fields. Call once after
// New (mirroring the on-chain initialize-state instruction) before the
// first Transition call; Transition itself re-schedules NextCycleEpoch on
// every subsequent cycle reset.
func (s *State) StartCycle(currentEpoch, currentSlot, numEpochsBetweenScoring uint64) {
	s.StartComputingScoresSlot = currentSlot
	s.NextCycleEpoch = currentEpoch + numEpochsBetweenScoring
}

// HasFlag reports whether the given status flag bit is set.
func (s *State) HasFlag(flag uint32) bool {
	return s.StatusFlags&flag != 0
}

// SetFlag sets a status flag bit.
func (s *State) SetFlag(flag uint32) {
	s.StatusFlags |= flag
}

// ClearFlag clears a status flag bit.
func (s *State) ClearFlag(flag uint32) {
	s.StatusFlags &^= flag
}

func (s *State) checkIndex(i int) error {
	if i < 0 || i >= s.NumPoolValidators {
		return fmt.Errorf("%w: index %d, num_pool_validators %d", ErrIndexOutOfBounds, i, s.NumPoolValidators)
	}
	return nil
}

// CheckInvariants validates the universal invariants of spec §3.5 that
// must hold between any two transitions.
func (s *State) CheckInvariants() error {
	if s.NumPoolValidators > len(s.Scores) {
		return fmt.Errorf("%w: num_pool_validators %d exceeds capacity %d", ErrInvalidState, s.NumPoolValidators, len(s.Scores))
	}
	for _, bm := range []*bitmask.Bitmask{s.InstantUnstake, s.Progress, s.ValidatorsForImmediateRemoval, s.ValidatorsToRemove} {
		if !bm.OnlyBelow(s.NumPoolValidators) {
			return fmt.Errorf("%w: bitmask has bits set at or beyond num_pool_validators %d", ErrInvalidState, s.NumPoolValidators)
		}
	}
	if s.Unstake.ScoringUnstakeTotal > s.Unstake.ScoringUnstakeCap {
		return fmt.Errorf("%w: scoring_unstake_total exceeds cap", ErrInvalidState)
	}
	if s.Unstake.InstantUnstakeTotal > s.Unstake.InstantUnstakeCap {
		return fmt.Errorf("%w: instant_unstake_total exceeds cap", ErrInvalidState)
	}
	if s.Unstake.StakeDepositUnstakeTotal > s.Unstake.StakeDepositUnstakeCap {
		return fmt.Errorf("%w: stake_deposit_unstake_total exceeds cap", ErrInvalidState)
	}
	return nil
}
