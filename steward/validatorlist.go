package steward

import (
	"fmt"

	"github.com/solsteward/steward/config"
	"github.com/solsteward/steward/history"
	"github.com/solsteward/steward/historyentry"
	"github.com/solsteward/steward/rebalance"
)

// ErrNotEligibleForAutoAdd is returned when AutoAdd's eligibility check
// fails (spec §4.5's auto-add criteria).
var ErrNotEligibleForAutoAdd = fmt.Errorf("steward: validator not eligible for auto-add")

// EligibleForAutoAdd reports whether a validator-history record meets
// spec §4.5's auto-add bar: non-missing epoch-credits in each of the
// last minimumVotingEpochs epochs, and the latest entry's activated
// stake at least minimumStakeLamports.
func EligibleForAutoAdd(h *history.ValidatorHistory, currentEpoch uint64, params config.Params) bool {
	if params.MinimumVotingEpochs > 0 {
		if currentEpoch < params.MinimumVotingEpochs {
			return false
		}
		start := currentEpoch - params.MinimumVotingEpochs
		for epoch := start; epoch < currentEpoch; epoch++ {
			entry, ok := h.Buf.At(epoch)
			if !ok || !entry.HasEpochCredits() {
				return false
			}
		}
	}

	latest, ok := h.LatestNonDefault(func(e historyentry.Entry) bool {
		return e.HasActivatedStake()
	})
	if !ok {
		return false
	}
	return latest.ActivatedStakeLamports >= params.MinimumStakeLamports
}

// AutoAdd admits a validator into the pool (spec §4.5's "Auto-add"),
// appending it as the next index and returning that index. Fails if the
// pool is already at capacity or the validator is not eligible.
func (s *State) AutoAdd(h *history.ValidatorHistory, currentEpoch uint64, params config.Params) (int, error) {
	if !EligibleForAutoAdd(h, currentEpoch, params) {
		return 0, ErrNotEligibleForAutoAdd
	}
	if s.NumPoolValidators >= len(s.Scores) {
		return 0, fmt.Errorf("%w: pool at capacity %d", ErrInvalidState, len(s.Scores))
	}
	index := s.NumPoolValidators
	s.ValidatorLamportBalances[index] = rebalance.LamportBalanceDefault
	s.Scores[index] = 0
	s.RawScores[index] = 0
	s.Delegations[index] = rebalance.Delegation{}
	s.NumPoolValidators++
	s.ValidatorsAdded++
	return index, nil
}

// MarkForRemoval flags a validator for delayed removal (permissionless,
// spec §4.5's "Auto-remove": deactivated stake account or closed vote
// account).
func (s *State) MarkForRemoval(index int) error {
	if err := s.checkIndex(index); err != nil {
		return err
	}
	return s.ValidatorsToRemove.Set(index)
}

// MarkForImmediateRemoval flags a validator for removal without the
// deactivation delay, processed during the next epoch maintenance pass
// (spec §4.5's "Instant-remove").
func (s *State) MarkForImmediateRemoval(index int) error {
	if err := s.checkIndex(index); err != nil {
		return err
	}
	return s.ValidatorsForImmediateRemoval.Set(index)
}
