// Package preferredwithdraw implements spec §4.6's independent periodic
// routine: pick the validator the stake pool should prefer for
// withdrawals: walking from the lowest raw score upward, the first active
// validator whose spare lamports reach ThresholdLamports.
// Grounded on
// original_source/programs/steward/src/instructions/update_preferred_withdraw_validator.rs.
package preferredwithdraw

// ThresholdLamports is the minimum spare balance (active stake minus the
// base lamport balance) a validator must have before it is considered a
// withdraw source. Not present anywhere in the retrieval pack's
// constants; chosen as a conservative 1 SOL to avoid repeatedly draining
// a validator down to its rent-exempt floor.
const ThresholdLamports uint64 = 1_000_000_000

// ValidatorStakeInfo is the external pool's per-validator withdrawal
// candidacy data, read from the stake pool's validator list.
type ValidatorStakeInfo struct {
	VoteAccount         [32]byte
	ActiveStakeLamports uint64
	Active              bool
}

// BaseLamportBalance is the floor every validator's stake account must
// keep: the stake program's minimum delegation plus its rent-exempt
// reserve.
func BaseLamportBalance(minimumDelegation, stakeRent uint64) uint64 {
	return minimumDelegation + stakeRent
}

// AvailableLamports is the amount that could be withdrawn from a
// validator without dropping it below base. Saturates at zero rather
// than underflowing, mirroring the original's saturating_sub.
func AvailableLamports(activeStakeLamports, base uint64) uint64 {
	if activeStakeLamports < base {
		return 0
	}
	return activeStakeLamports - base
}

// Select walks sortedRawScoreIndices (ascending raw score when read in
// reverse, i.e. lowest-scoring validators first) and returns the vote
// account of the first active validator whose available lamports meet
// ThresholdLamports. index is looked up in validators by its position;
// entries beyond numPoolValidators or the sentinel index are skipped.
// Returns (zero value, false) if no validator qualifies.
func Select(sortedRawScoreIndices []uint16, numPoolValidators int, validators []ValidatorStakeInfo, base uint64) ([32]byte, bool) {
	indices := sortedRawScoreIndices
	if numPoolValidators < len(indices) {
		indices = indices[:numPoolValidators]
	}
	for i := len(indices) - 1; i >= 0; i-- {
		idx := int(indices[i])
		if idx < 0 || idx >= len(validators) {
			continue
		}
		v := validators[idx]
		if !v.Active {
			continue
		}
		if AvailableLamports(v.ActiveStakeLamports, base) >= ThresholdLamports {
			return v.VoteAccount, true
		}
	}
	return [32]byte{}, false
}

// NeedsUpdate reports whether the pool's currently-configured preferred
// withdraw validator differs from the newly selected one, so the caller
// only issues an on-chain update transaction when something changed.
func NeedsUpdate(current, selected [32]byte, currentSet, selectedSet bool) bool {
	if currentSet != selectedSet {
		return true
	}
	if !currentSet {
		return false
	}
	return current != selected
}
