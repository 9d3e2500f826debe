package account

import (
	"encoding/binary"
	"fmt"
)

// StateTagSize is the packed width of the state machine's StateTag enum.
const StateTagSize = 1

// BitmaskWords returns the word count of a packed bitmask sized for max
// validator indices (ceil(max/64) uint64 words), matching
// bitmask.Bitmask's in-memory layout.
func BitmaskWords(max int) int {
	return (max + 63) / 64
}

func bitmaskBytes(max int) int {
	return BitmaskWords(max) * 8
}

// stateV1Layout holds the byte offsets (relative to the start of the
// state struct, i.e. after any outer account discriminator) of every v1
// field for a given max validator count: scores and what the original
// calls yield_scores are still u32-width, unlike v2. Grounded on
// original_source/programs/steward/src/instructions/migrate_state_to_v2.rs's
// offset algebra.
type stateV1Layout struct {
	stateTag           int
	balances           int
	scores             int // u32[max]
	sortedScoreIndices int // u16[max]
	yieldScores        int // u32[max]
	sortedYieldIndices int // u16[max]
	delegations        int // Delegation[max], 8 bytes each
	instantUnstake     int
	progress           int
	immediateRemoval   int
	toRemove           int
	startSlot          int
	currentEpoch       int
	nextCycleEpoch     int
	numPoolValidators  int
	scoringUnstake     int
	instantUnstakeTot  int
	stakeDepositTot    int
	statusFlags        int
	validatorsAdded    int
	total              int
}

func computeV1Layout(max int) stateV1Layout {
	szU32Arr := 4 * max
	szU16Arr := 2 * max
	szDeleg := 8 * max
	szBitmask := bitmaskBytes(max)

	var l stateV1Layout
	l.stateTag = 0
	l.balances = l.stateTag + StateTagSize
	l.scores = l.balances + 8*max
	l.sortedScoreIndices = l.scores + szU32Arr
	l.yieldScores = l.sortedScoreIndices + szU16Arr
	l.sortedYieldIndices = l.yieldScores + szU32Arr
	l.delegations = l.sortedYieldIndices + szU16Arr
	l.instantUnstake = l.delegations + szDeleg
	l.progress = l.instantUnstake + szBitmask
	l.immediateRemoval = l.progress + szBitmask
	l.toRemove = l.immediateRemoval + szBitmask
	l.startSlot = l.toRemove + szBitmask
	l.currentEpoch = l.startSlot + 8
	l.nextCycleEpoch = l.currentEpoch + 8
	l.numPoolValidators = l.nextCycleEpoch + 8
	l.scoringUnstake = l.numPoolValidators + 8
	l.instantUnstakeTot = l.scoringUnstake + 8
	l.stakeDepositTot = l.instantUnstakeTot + 8
	l.statusFlags = l.stakeDepositTot + 8
	l.validatorsAdded = l.statusFlags + 4
	l.total = l.validatorsAdded + 2
	return l
}

// stateV2Layout mirrors stateV1Layout but with scores and raw_scores
// (v1's yield_scores) widened from u32 to u64. Unlike the original
// Rust migration, which repacks V2's widened arrays into whatever dead
// space V1's tail padding left behind (a space-saving trick forced by
// Anchor's in-place account realloc), this layout simply lays every v2
// field out in its natural logical order: there is no equivalent
// constraint in a Go byte slice, and the straightforward order is easier
// to reason about and test. The semantic transform (u32->u64 widening,
// yield_scores renamed to raw_scores, index-array relocation) is
// preserved exactly; only the packing strategy differs.
type stateV2Layout struct {
	stateTag              int
	balances              int
	scores                int // u64[max]
	sortedScoreIndices    int // u16[max]
	rawScores             int // u64[max]
	sortedRawScoreIndices int // u16[max]
	delegations           int
	instantUnstake        int
	progress              int
	immediateRemoval      int
	toRemove              int
	startSlot             int
	currentEpoch          int
	nextCycleEpoch        int
	numPoolValidators     int
	scoringUnstake        int
	instantUnstakeTot     int
	stakeDepositTot       int
	statusFlags           int
	validatorsAdded       int
	total                 int
}

func computeV2Layout(max int) stateV2Layout {
	szU64Arr := 8 * max
	szU16Arr := 2 * max
	szDeleg := 8 * max
	szBitmask := bitmaskBytes(max)

	var l stateV2Layout
	l.stateTag = 0
	l.balances = l.stateTag + StateTagSize
	l.scores = l.balances + szU64Arr
	l.sortedScoreIndices = l.scores + szU64Arr
	l.rawScores = l.sortedScoreIndices + szU16Arr
	l.sortedRawScoreIndices = l.rawScores + szU64Arr
	l.delegations = l.sortedRawScoreIndices + szU16Arr
	l.instantUnstake = l.delegations + szDeleg
	l.progress = l.instantUnstake + szBitmask
	l.immediateRemoval = l.progress + szBitmask
	l.toRemove = l.immediateRemoval + szBitmask
	l.startSlot = l.toRemove + szBitmask
	l.currentEpoch = l.startSlot + 8
	l.nextCycleEpoch = l.currentEpoch + 8
	l.numPoolValidators = l.nextCycleEpoch + 8
	l.scoringUnstake = l.numPoolValidators + 8
	l.instantUnstakeTot = l.scoringUnstake + 8
	l.stakeDepositTot = l.instantUnstakeTot + 8
	l.statusFlags = l.stakeDepositTot + 8
	l.validatorsAdded = l.statusFlags + 4
	l.total = l.validatorsAdded + 2
	return l
}

// StateV1Size returns the packed byte width of a v1 steward state for
// the given max validator count, not including any outer discriminator.
func StateV1Size(max int) int {
	return computeV1Layout(max).total
}

// StateV2Size returns the packed byte width of a v2 steward state for
// the given max validator count, not including any outer discriminator.
func StateV2Size(max int) int {
	return computeV2Layout(max).total
}

// MigrateV1ToV2 decodes a v1-layout steward state buffer and reassembles
// it as a v2-layout buffer: scores and raw_scores (v1's yield_scores)
// widen from u32 to u64, sorted_yield_score_indices becomes
// sorted_raw_score_indices, and every other field is carried across
// unchanged. data must be exactly StateV1Size(max) bytes; the returned
// slice is exactly StateV2Size(max) bytes.
func MigrateV1ToV2(data []byte, max int) ([]byte, error) {
	v1 := computeV1Layout(max)
	if len(data) != v1.total {
		return nil, fmt.Errorf("%w: v1 state is %d bytes, want %d", ErrSize, len(data), v1.total)
	}
	v2 := computeV2Layout(max)
	out := make([]byte, v2.total)

	copy(out[v2.stateTag:v2.balances], data[v1.stateTag:v1.balances])
	copy(out[v2.balances:v2.balances+8*max], data[v1.balances:v1.balances+8*max])

	for i := 0; i < max; i++ {
		srcOff := v1.scores + i*4
		dstOff := v2.scores + i*8
		val := uint64(binary.LittleEndian.Uint32(data[srcOff : srcOff+4]))
		binary.LittleEndian.PutUint64(out[dstOff:dstOff+8], val)
	}
	copy(out[v2.sortedScoreIndices:v2.sortedScoreIndices+2*max],
		data[v1.sortedScoreIndices:v1.sortedScoreIndices+2*max])

	for i := 0; i < max; i++ {
		srcOff := v1.yieldScores + i*4
		dstOff := v2.rawScores + i*8
		val := uint64(binary.LittleEndian.Uint32(data[srcOff : srcOff+4]))
		binary.LittleEndian.PutUint64(out[dstOff:dstOff+8], val)
	}
	copy(out[v2.sortedRawScoreIndices:v2.sortedRawScoreIndices+2*max],
		data[v1.sortedYieldIndices:v1.sortedYieldIndices+2*max])

	// Every field from delegations onward is byte-identical in content
	// (though not necessarily at an identical offset, since v2's
	// preceding region is laid out compactly rather than reusing v1's
	// tail padding); copy it across in one pass.
	copy(out[v2.delegations:], data[v1.delegations:])

	return out, nil
}
