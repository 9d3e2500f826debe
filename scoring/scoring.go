// Package scoring implements the v2 four-tier validator score: an
// AND-composed set of eligibility filters gating a packed uint64 raw score
// (spec.md §4.3), grounded on original_source's score_v2.rs. v1's f64
// multiplier scheme is legacy and intentionally not ported (spec §9 item 3).
package scoring

import (
	"github.com/solsteward/steward/bitmask"
	"github.com/solsteward/steward/history"
	"github.com/solsteward/steward/historyentry"
)

// Bit layout of the packed raw score (spec §4.3 table). Higher is better in
// every tier; the tiers are ordered so a single uint64 comparison sorts
// lexicographically by commission, then MEV commission, then age, then
// latest credits.
const (
	commissionShift    = 56
	mevCommissionShift = 42
	ageShift           = 25
	creditsShift       = 0

	maxCommissionValue    = 100
	maxMEVCommissionValue = 10000
	maxAgeValue           = (1 << 17) - 1 // saturates at 2^17-1
	maxCreditsValue       = (1 << 25) - 1 // saturates at 2^25-1
)

// Params holds the tunable thresholds and lookback windows scoring needs
// from config.Params, named directly here to keep this package free of a
// dependency on the config package (config.Params holds the matching
// fields flat; the keeper's opSteward copies them over one by one).
type Params struct {
	MEVCommissionRange            uint64
	MEVCommissionBpsThreshold     uint16
	CommissionRange               uint64
	CommissionThreshold           uint8
	HistoricalCommissionThreshold uint8
	EpochCreditsRange             uint64
	DelinquencyThresholdRatio     float64
	Blacklist                     *bitmask.Bitmask
	ProgramInceptionEpoch         uint64
}

// Filters records the 0/1 outcome of each eligibility component (spec
// §4.3), kept individually so callers (instant-unstake, diagnostics) can
// tell which filter failed instead of only seeing a zeroed score.
type Filters struct {
	MEVCommission       bool
	Commission          bool
	HistoricalCommission bool
	RunningJito         bool
	Delinquency         bool
	Superminority       bool
	Blacklist           bool
}

// Pass reports whether every filter component passed (AND-composition).
func (f Filters) Pass() bool {
	return f.MEVCommission && f.Commission && f.HistoricalCommission &&
		f.RunningJito && f.Delinquency && f.Superminority && f.Blacklist
}

// Result is the output of Score: the filter breakdown, the raw (unfiltered)
// score, and the final AND-gated score.
type Result struct {
	Filters  Filters
	RawScore uint64
	Score    uint64
}

// ErrStakeHistoryNotRecentEnough is returned when epoch credits exist for
// the current epoch but no superminority flag has been recorded for it yet
// (spec §4.3's superminority filter note); the state machine should retry
// after the oracle updates.
type ErrStakeHistoryNotRecentEnough struct{}

func (ErrStakeHistoryNotRecentEnough) Error() string {
	return "scoring: stake history not recent enough for superminority check"
}

// Score computes a validator's score for currentEpoch against the given
// validator and cluster history and the config's scoring parameters (spec
// §4.3). validatorIndex is the validator's position in config.Blacklist.
func Score(h *history.ValidatorHistory, cluster *history.ClusterHistory, p Params, validatorIndex int, currentEpoch uint64) (Result, error) {
	filters := Filters{}

	maxMEVCommission, anyMEVRecorded := maxOver(h, p.MEVCommissionRange, currentEpoch, func(e historyentry.Entry) (uint64, bool) {
		if !e.HasMEVCommission() {
			return 0, false
		}
		return uint64(e.MEVCommission), true
	})
	filters.MEVCommission = !anyMEVRecorded || maxMEVCommission <= uint64(p.MEVCommissionBpsThreshold)
	filters.RunningJito = anyMEVRecorded

	maxCommission, anyCommissionRecorded := maxOver(h, p.CommissionRange, currentEpoch, func(e historyentry.Entry) (uint64, bool) {
		if !e.HasCommission() {
			return 0, false
		}
		return uint64(e.Commission), true
	})
	filters.Commission = !anyCommissionRecorded || maxCommission <= uint64(p.CommissionThreshold)

	historicalMax := maxOverAllEpochs(h, p.ProgramInceptionEpoch, currentEpoch, func(e historyentry.Entry) (uint64, bool) {
		if !e.HasCommission() {
			return 0, false
		}
		return uint64(e.Commission), true
	})
	filters.HistoricalCommission = historicalMax <= uint64(p.HistoricalCommissionThreshold)

	delinquent, err := isDelinquent(h, cluster, p, currentEpoch)
	if err != nil {
		return Result{}, err
	}
	filters.Delinquency = !delinquent

	if creditsRecordedForEpoch(h, currentEpoch) {
		if current, _ := h.Buf.At(currentEpoch); !current.HasSuperminority() {
			return Result{}, ErrStakeHistoryNotRecentEnough{}
		}
	}
	superminorityEntry, found := h.LatestNonDefault(func(e historyentry.Entry) bool { return e.HasSuperminority() })
	if !found {
		filters.Superminority = true // no data yet and current epoch not waiting on it: treat as passing
	} else {
		filters.Superminority = superminorityEntry.Superminority == 0
	}

	filters.Blacklist = p.Blacklist == nil || !p.Blacklist.IsSet(validatorIndex)

	rawScore := packRawScore(maxCommission, anyCommissionRecorded, maxMEVCommission, anyMEVRecorded, validatorAge(h), previousEpochCredits(h, currentEpoch))

	result := Result{Filters: filters, RawScore: rawScore}
	if filters.Pass() {
		result.Score = rawScore
	}
	return result, nil
}

func packRawScore(maxCommission uint64, commissionRecorded bool, maxMEV uint64, mevRecorded bool, age uint64, credits uint64) uint64 {
	commissionForEncoding := uint64(0)
	if commissionRecorded {
		commissionForEncoding = maxCommission
	}
	if commissionForEncoding > maxCommissionValue {
		commissionForEncoding = maxCommissionValue
	}
	commissionTier := maxCommissionValue - commissionForEncoding

	mevForEncoding := uint64(0)
	if mevRecorded {
		mevForEncoding = maxMEV
	}
	if mevForEncoding > maxMEVCommissionValue {
		mevForEncoding = maxMEVCommissionValue
	}
	mevTier := maxMEVCommissionValue - mevForEncoding

	ageTier := age
	if ageTier > maxAgeValue {
		ageTier = maxAgeValue
	}

	creditsTier := credits
	if creditsTier > maxCreditsValue {
		creditsTier = maxCreditsValue
	}

	return commissionTier<<commissionShift | mevTier<<mevCommissionShift | ageTier<<ageShift | creditsTier<<creditsShift
}

// maxOver returns the maximum value of field over the last `window` epochs
// ending at currentEpoch-1 (i.e. [currentEpoch-window, currentEpoch-1]),
// and whether any value was recorded at all in that window.
func maxOver(h *history.ValidatorHistory, window uint64, currentEpoch uint64, field func(historyentry.Entry) (uint64, bool)) (uint64, bool) {
	if currentEpoch == 0 {
		return 0, false
	}
	end := currentEpoch - 1
	start := uint64(0)
	if end >= window {
		start = end - window + 1
	}
	return maxInRange(h, start, end, field)
}

func maxOverAllEpochs(h *history.ValidatorHistory, inceptionEpoch uint64, currentEpoch uint64, field func(historyentry.Entry) (uint64, bool)) uint64 {
	if currentEpoch == 0 {
		return 0
	}
	max, _ := maxInRange(h, inceptionEpoch, currentEpoch-1, field)
	return max
}

func maxInRange(h *history.ValidatorHistory, start, end uint64, field func(historyentry.Entry) (uint64, bool)) (uint64, bool) {
	if start > end {
		return 0, false
	}
	opts, err := h.Range(start, end)
	if err != nil {
		return 0, false
	}
	max := uint64(0)
	found := false
	for _, opt := range opts {
		if !opt.Present {
			continue
		}
		v, ok := field(opt.Value)
		if !ok {
			continue
		}
		if !found || v > max {
			max = v
			found = true
		}
	}
	return max, found
}

func validatorAge(h *history.ValidatorHistory) uint64 {
	return uint64(h.ValidatorAge)
}

func previousEpochCredits(h *history.ValidatorHistory, currentEpoch uint64) uint64 {
	if currentEpoch == 0 {
		return 0
	}
	entry, ok := h.Buf.At(currentEpoch - 1)
	if !ok || !entry.HasEpochCredits() {
		return 0
	}
	return entry.EpochCredits
}

func creditsRecordedForEpoch(h *history.ValidatorHistory, epoch uint64) bool {
	entry, ok := h.Buf.At(epoch)
	return ok && entry.HasEpochCredits()
}

// isDelinquent implements spec §4.3's delinquency filter: for each epoch in
// [currentEpoch-epochCreditsRange, currentEpoch-1], if the cluster produced
// blocks that epoch, the validator's credits/blocks ratio must meet the
// threshold. Missing cluster data skips the epoch; missing validator
// credits with present cluster data count as a zero-credit failure.
func isDelinquent(h *history.ValidatorHistory, cluster *history.ClusterHistory, p Params, currentEpoch uint64) (bool, error) {
	if currentEpoch == 0 {
		return false, nil
	}
	end := currentEpoch - 1
	start := uint64(0)
	if end >= p.EpochCreditsRange {
		start = end - p.EpochCreditsRange + 1
	}
	for epoch := start; epoch <= end; epoch++ {
		totalBlocks, ok := cluster.BlocksAt(epoch)
		if !ok || totalBlocks == 0 {
			continue
		}
		entry, ok := h.Buf.At(epoch)
		credits := uint64(0)
		if ok && entry.HasEpochCredits() {
			credits = entry.EpochCredits
		}
		ratio := float64(credits) / float64(totalBlocks)
		if ratio < p.DelinquencyThresholdRatio {
			return true, nil
		}
	}
	return false, nil
}
