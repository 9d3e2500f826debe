package steward

import (
	"fmt"

	"github.com/solsteward/steward/config"
	"github.com/solsteward/steward/rebalance"
	"github.com/solsteward/steward/scoring"
)

// MarkScoreComputed records a validator's score during the ComputeScores
// phase (spec §4.5), inserting its index into both sorted-index arrays
// by descending score with ties broken by lower index first (spec §3.5
// invariant 3).
func (s *State) MarkScoreComputed(index int, result scoring.Result) error {
	if s.StateTag != StateComputeScores {
		return fmt.Errorf("%w: MarkScoreComputed requires ComputeScores, got %s", ErrWrongState, s.StateTag)
	}
	if err := s.checkIndex(index); err != nil {
		return err
	}
	s.Scores[index] = result.Score
	s.RawScores[index] = result.RawScore
	insortDescending(s.SortedScoreIndices, s.Scores, uint16(index), s.NumPoolValidators)
	insortDescending(s.SortedRawScoreIndices, s.RawScores, uint16(index), s.NumPoolValidators)
	return s.Progress.Set(index)
}

// insortDescending inserts `index` into `sorted[:n]` (a partially built
// permutation, unused tail slots holding SentinelIndex) so that
// values[sorted[0]] >= values[sorted[1]] >= ... , lower index first on
// ties.
func insortDescending(sorted []uint16, values []uint64, index uint16, n int) {
	pos := n
	for i := 0; i < n; i++ {
		if sorted[i] == SentinelIndex {
			pos = i
			break
		}
		if values[sorted[i]] < values[index] || (values[sorted[i]] == values[index] && sorted[i] > index) {
			pos = i
			break
		}
	}
	for i := n - 1; i > pos; i-- {
		sorted[i] = sorted[i-1]
	}
	if pos < len(sorted) {
		sorted[pos] = index
	}
}

// ComputeDelegations performs the one-shot allocation of spec §4.5's
// ComputeDelegations phase: the top params.NumDelegationValidators
// indices (by descending score, skipping zero scores) each get
// numerator=1, denominator=num_delegation_validators; everyone else gets
// numerator=0. Must be called while StateTag == ComputeDelegations; it
// transitions directly to Idle on success.
func (s *State) ComputeDelegations(params config.Params) error {
	if s.StateTag != StateComputeDelegations {
		return fmt.Errorf("%w: ComputeDelegations requires ComputeDelegations, got %s", ErrWrongState, s.StateTag)
	}
	for i := range s.Delegations[:s.NumPoolValidators] {
		s.Delegations[i] = rebalance.Delegation{}
	}
	denominator := params.NumDelegationValidators
	selected := 0
	for _, idx16 := range s.SortedScoreIndices[:s.NumPoolValidators] {
		if uint32(selected) >= denominator {
			break
		}
		if idx16 == SentinelIndex {
			continue
		}
		if s.Scores[idx16] == 0 {
			continue
		}
		s.Delegations[idx16] = rebalance.Delegation{Numerator: 1, Denominator: denominator}
		selected++
	}
	s.StateTag = StateIdle
	s.Progress.ClearAll()
	return nil
}

// InstantUnstakeCheck is the per-validator outcome of spec §4.3's
// instant-unstake filter re-evaluation (delinquency / commission jump /
// MEV commission jump / blacklist); any true field forces an instant
// unstake.
type InstantUnstakeCheck struct {
	Delinquent          bool
	CommissionJumped    bool
	MEVCommissionJumped bool
	Blacklisted         bool
}

// ShouldUnstake reports whether any instant-unstake trigger fired.
func (c InstantUnstakeCheck) ShouldUnstake() bool {
	return c.Delinquent || c.CommissionJumped || c.MEVCommissionJumped || c.Blacklisted
}

// MarkInstantUnstake records a validator's instant-unstake verdict
// during the ComputeInstantUnstake phase (spec §4.5).
func (s *State) MarkInstantUnstake(index int, check InstantUnstakeCheck) error {
	if s.StateTag != StateComputeInstantUnstake {
		return fmt.Errorf("%w: MarkInstantUnstake requires ComputeInstantUnstake, got %s", ErrWrongState, s.StateTag)
	}
	if err := s.checkIndex(index); err != nil {
		return err
	}
	if check.ShouldUnstake() {
		if err := s.InstantUnstake.Set(index); err != nil {
			return err
		}
	}
	return s.Progress.Set(index)
}

// MarkRebalanced applies a rebalance decision's running-total effects and
// records the validator as processed during the Rebalance phase (spec
// §4.4, §4.5).
func (s *State) MarkRebalanced(index int, decision rebalance.Decision) error {
	if s.StateTag != StateRebalance {
		return fmt.Errorf("%w: MarkRebalanced requires Rebalance, got %s", ErrWrongState, s.StateTag)
	}
	if err := s.checkIndex(index); err != nil {
		return err
	}
	if decision.Kind == rebalance.KindDecrease {
		s.Unstake = rebalance.ApplyDecrease(s.Unstake, decision.DecreaseAmounts)
	}
	return s.Progress.Set(index)
}

// Transition advances the state machine per spec §4.5's rules, given the
// latest clock/epoch-progress observations. currentSlot is used for the
// ComputeScores time-bound; epochProgress and inputsPastProgress gate the
// Idle -> ComputeInstantUnstake move.
func (s *State) Transition(currentEpoch, currentSlot uint64, epochProgress float64, inputsPastProgress bool, params config.Params) error {
	if currentEpoch >= s.NextCycleEpoch {
		// A new cycle is due regardless of the current phase: abandon
		// whatever phase we're in and restart scoring from scratch.
		s.resetForNewCycle(currentEpoch, currentSlot, params)
		return nil
	}

	switch s.StateTag {
	case StateComputeScores:
		if s.ComputeScoreSlotRangeExceeded(currentSlot, params) {
			s.Progress.ClearAll()
			for i := range s.Scores {
				s.Scores[i] = 0
				s.RawScores[i] = 0
				s.SortedScoreIndices[i] = SentinelIndex
				s.SortedRawScoreIndices[i] = SentinelIndex
			}
			s.StartComputingScoresSlot = currentSlot
			return nil
		}
		if s.Progress.IsFullUpTo(s.NumPoolValidators) {
			s.StateTag = StateComputeDelegations
			s.Progress.ClearAll()
		}
		return nil

	case StateComputeDelegations:
		// One-shot; advanced only by an explicit ComputeDelegations call.
		return nil

	case StateIdle:
		if !s.RebalanceCompleted && epochProgress >= params.InstantUnstakeEpochProgress && inputsPastProgress {
			s.StateTag = StateComputeInstantUnstake
			s.PhaseEpoch = currentEpoch
			s.Progress.ClearAll()
			s.InstantUnstake.ClearAll()
		}
		return nil

	case StateComputeInstantUnstake:
		if currentEpoch > s.PhaseEpoch {
			s.StateTag = StateIdle
			s.Progress.ClearAll()
			return nil
		}
		if s.Progress.IsFullUpTo(s.NumPoolValidators) {
			s.StateTag = StateRebalance
			s.PhaseEpoch = currentEpoch
			s.Progress.ClearAll()
		}
		return nil

	case StateRebalance:
		if s.Progress.IsFullUpTo(s.NumPoolValidators) {
			s.StateTag = StateIdle
			s.RebalanceCompleted = true
			s.Progress.ClearAll()
			return nil
		}
		if currentEpoch > s.PhaseEpoch {
			s.StateTag = StateIdle
			s.Progress.ClearAll()
			return nil
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown state tag %d", ErrInvalidState, s.StateTag)
	}
}

// ComputeScoreSlotRangeExceeded reports whether ComputeScores has been
// running longer than params.ComputeScoreSlotRange slots (spec §4.5's
// "time-bounded" clause, keeping the state machine from getting stuck
// mid-cycle on stale data).
func (s *State) ComputeScoreSlotRangeExceeded(currentSlot uint64, params config.Params) bool {
	return currentSlot > s.StartComputingScoresSlot+params.ComputeScoreSlotRange
}

func (s *State) resetForNewCycle(currentEpoch, currentSlot uint64, params config.Params) {
	s.StateTag = StateComputeScores
	s.Progress.ClearAll()
	s.InstantUnstake.ClearAll()
	for i := range s.Scores {
		s.Scores[i] = 0
		s.RawScores[i] = 0
		s.SortedScoreIndices[i] = SentinelIndex
		s.SortedRawScoreIndices[i] = SentinelIndex
		s.Delegations[i] = rebalance.Delegation{}
	}
	s.StartComputingScoresSlot = currentSlot
	s.NextCycleEpoch = currentEpoch + params.NumEpochsBetweenScoring
	s.RebalanceCompleted = false
	s.Unstake = rebalance.UnstakeState{
		ScoringUnstakeCap:      s.Unstake.ScoringUnstakeCap,
		InstantUnstakeCap:      s.Unstake.InstantUnstakeCap,
		StakeDepositUnstakeCap: s.Unstake.StakeDepositUnstakeCap,
	}
}
