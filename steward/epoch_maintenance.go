package steward

import (
	"fmt"

	"github.com/solsteward/steward/rebalance"
)

// ErrValidatorsNotRemovedYet mirrors original_source's
// ValidatorsHaveNotBeenRemoved: epoch maintenance was asked to advance
// the epoch while a pending removal has not yet been reflected in the
// external validator list.
var ErrValidatorsNotRemovedYet = fmt.Errorf("steward: validators pending removal have not been removed from the pool list")

// ErrListStateMismatch mirrors original_source's ListStateMismatch: the
// caller's reported validatorListLen disagrees with NumPoolValidators
// after a removal was supposed to have landed.
var ErrListStateMismatch = fmt.Errorf("steward: validator list length disagrees with steward state")

// NeedsEpochMaintenance reports whether a transaction observing
// observedEpoch must run epoch maintenance before any other
// state-machine call (spec §4.5).
func (s *State) NeedsEpochMaintenance(observedEpoch uint64) bool {
	return observedEpoch > s.CurrentEpoch
}

// RemoveFromPoolList is the external collaborator callback epoch
// maintenance uses to remove a validator from the stake pool's on-chain
// list (spec §4.5's "pool's validator list agrees" requirement); it
// reports the pool list's length after removal.
type RemoveFromPoolList func(index int) (newListLen int, err error)

// RunEpochMaintenance drains one pending removal (from
// ValidatorsToRemove ∪ ValidatorsForImmediateRemoval) per call via
// remove, until both sets are empty and the external list length agrees
// with NumPoolValidators; only then does it advance CurrentEpoch, reset
// per-cycle running totals, and set the EpochMaintenance flag (spec
// §4.5). Returns (stillPending, error); stillPending is true when more
// calls are needed before the epoch can advance.
func (s *State) RunEpochMaintenance(observedEpoch uint64, currentListLen int, remove RemoveFromPoolList) (stillPending bool, err error) {
	if !s.NeedsEpochMaintenance(observedEpoch) {
		return false, nil
	}

	if idx, ok := s.nextPendingRemoval(); ok {
		newLen, err := remove(idx)
		if err != nil {
			return true, err
		}
		s.removeValidatorAtIndex(idx)
		if newLen != s.NumPoolValidators {
			return true, fmt.Errorf("%w: pool list length %d, steward expects %d", ErrListStateMismatch, newLen, s.NumPoolValidators)
		}
		return true, nil
	}

	if currentListLen != s.NumPoolValidators {
		return true, fmt.Errorf("%w: pool list length %d, steward expects %d", ErrListStateMismatch, currentListLen, s.NumPoolValidators)
	}

	s.CurrentEpoch = observedEpoch
	s.ValidatorsAdded = 0
	s.Unstake.ScoringUnstakeTotal = 0
	s.Unstake.InstantUnstakeTotal = 0
	s.Unstake.StakeDepositUnstakeTotal = 0
	s.SetFlag(StatusFlagEpochMaintenance)
	return false, nil
}

func (s *State) nextPendingRemoval() (int, bool) {
	for i := 0; i < s.NumPoolValidators; i++ {
		if s.ValidatorsForImmediateRemoval.IsSet(i) || s.ValidatorsToRemove.IsSet(i) {
			return i, true
		}
	}
	return 0, false
}

// removeValidatorAtIndex drops validator i from every per-validator
// array by swapping it with the last valid index and shrinking
// NumPoolValidators, then repointing any sorted-index entries that
// referenced either position. This is a simplification of the on-chain
// program's list-compaction logic (which shifts rather than swaps); both
// give a valid dense index space, and a full rescore always follows
// within one cycle.
func (s *State) removeValidatorAtIndex(i int) {
	last := s.NumPoolValidators - 1
	if i != last {
		s.ValidatorLamportBalances[i] = s.ValidatorLamportBalances[last]
		s.Scores[i] = s.Scores[last]
		s.RawScores[i] = s.RawScores[last]
		s.Delegations[i] = s.Delegations[last]
		swapBit(s.Progress, i, last)
		swapBit(s.InstantUnstake, i, last)
		swapBit(s.ValidatorsForImmediateRemoval, i, last)
		swapBit(s.ValidatorsToRemove, i, last)
		repointSortedIndices(s.SortedScoreIndices, i, last)
		repointSortedIndices(s.SortedRawScoreIndices, i, last)
	} else {
		s.Progress.Clear(i)
		s.InstantUnstake.Clear(i)
	}
	s.ValidatorsForImmediateRemoval.Clear(last)
	s.ValidatorsToRemove.Clear(last)
	s.ValidatorLamportBalances[last] = 0
	s.Scores[last] = 0
	s.RawScores[last] = 0
	s.Delegations[last] = rebalance.Delegation{}
	s.NumPoolValidators--
}

func swapBit(b interface {
	IsSet(int) bool
	Set(int) error
	Clear(int) error
}, i, j int) {
	bi, bj := b.IsSet(i), b.IsSet(j)
	if bi == bj {
		return
	}
	if bj {
		_ = b.Set(i)
	} else {
		_ = b.Clear(i)
	}
	_ = b.Clear(j)
}

// repointSortedIndices drops any entry equal to `removed` and rewrites
// any entry equal to `moved` (the index that was just swapped into
// `removed`'s old slot) to `removed`.
func repointSortedIndices(sorted []uint16, removed, moved int) {
	r, m := uint16(removed), uint16(moved)
	for i, v := range sorted {
		switch v {
		case r:
			sorted[i] = SentinelIndex
		case m:
			sorted[i] = r
		}
	}
}
