// Package config holds the steward's typed tunable parameters: scoring
// windows and thresholds, delegation caps, and state-machine timing (spec
// §2, §3.5 invariant 5), grounded on original_source's parameters.rs and
// styled after consensus/config.go's typed-config-with-Validate pattern.
package config

import "fmt"

// MaxValidators is the steward's MAX: the fixed capacity of every
// per-validator array and bitmask in steward.State (spec §3.5 invariant 1).
const MaxValidators = 10_000

// BasisPointsMax is the largest legal basis-point value (100%).
const BasisPointsMax = 10_000

// CommissionMax is the largest legal commission percentage.
const CommissionMax = 100

// EpochProgressMax is the largest legal epoch-progress fraction.
const EpochProgressMax = 1.0

// ComputeScoreSlotRangeMin is the smallest legal compute_score_slot_range.
const ComputeScoreSlotRangeMin = 500

// NumEpochsBetweenScoringMax bounds how stale a delegation set may become
// before a rescore is forced.
const NumEpochsBetweenScoringMax = 30

// ValidatorHistoryFirstReliableEpoch is the earliest epoch whose history
// entries are trusted; scoring windows may not reach further back.
const ValidatorHistoryFirstReliableEpoch = 520

// ErrInvalidParameterValue is returned by Validate for any field outside
// its legal bound.
var ErrInvalidParameterValue = fmt.Errorf("config: invalid parameter value")

// Params is the steward's tunable configuration (spec §2, §3.5 invariant
// 5, §4.3, §4.4, §4.5). Field names and groupings mirror
// original_source's Parameters struct.
type Params struct {
	// Scoring parameters.
	MEVCommissionRange                     uint16
	EpochCreditsRange                      uint16
	CommissionRange                        uint16
	MEVCommissionBpsThreshold               uint16
	ScoringDelinquencyThresholdRatio        float64
	InstantUnstakeDelinquencyThresholdRatio float64
	CommissionThreshold                     uint8
	HistoricalCommissionThreshold           uint8

	// Delegation parameters.
	NumDelegationValidators    uint32
	ScoringUnstakeCapBps       uint32
	InstantUnstakeCapBps       uint32
	StakeDepositUnstakeCapBps  uint32

	// State-machine operation parameters.
	ComputeScoreSlotRange                 uint64
	InstantUnstakeEpochProgress           float64
	InstantUnstakeInputsEpochProgress     float64
	NumEpochsBetweenScoring               uint64
	MinimumStakeLamports                  uint64
	MinimumVotingEpochs                   uint64
}

// DefaultParams returns the parameter set used throughout the test suite
// and a reasonable starting point for a new deployment.
func DefaultParams() Params {
	return Params{
		MEVCommissionRange:                      10,
		EpochCreditsRange:                        20,
		CommissionRange:                          20,
		MEVCommissionBpsThreshold:                1000,
		ScoringDelinquencyThresholdRatio:          0.85,
		InstantUnstakeDelinquencyThresholdRatio:   0.70,
		CommissionThreshold:                       10,
		HistoricalCommissionThreshold:             10,
		NumDelegationValidators:                   3,
		ScoringUnstakeCapBps:                      1000,
		InstantUnstakeCapBps:                      1000,
		StakeDepositUnstakeCapBps:                 1000,
		ComputeScoreSlotRange:                      500,
		InstantUnstakeEpochProgress:                0.95,
		InstantUnstakeInputsEpochProgress:          0.5,
		NumEpochsBetweenScoring:                    10,
		MinimumStakeLamports:                       1,
		MinimumVotingEpochs:                        1,
	}
}

// Validate checks every field against its legal bound (spec §3.5
// invariant 5 and original_source's Parameters::validate), given the
// current epoch and the cluster's slots-per-epoch.
func (p Params) Validate(currentEpoch uint64, slotsPerEpoch uint64) error {
	windowMax := windowMax(currentEpoch)

	if uint64(p.MEVCommissionRange) > windowMax {
		return fmt.Errorf("%w: mev_commission_range %d exceeds window %d", ErrInvalidParameterValue, p.MEVCommissionRange, windowMax)
	}
	if uint64(p.EpochCreditsRange) > windowMax {
		return fmt.Errorf("%w: epoch_credits_range %d exceeds window %d", ErrInvalidParameterValue, p.EpochCreditsRange, windowMax)
	}
	if uint64(p.CommissionRange) > windowMax {
		return fmt.Errorf("%w: commission_range %d exceeds window %d", ErrInvalidParameterValue, p.CommissionRange, windowMax)
	}
	if !ratioInRange(p.ScoringDelinquencyThresholdRatio) {
		return fmt.Errorf("%w: scoring_delinquency_threshold_ratio %f not in [0,1]", ErrInvalidParameterValue, p.ScoringDelinquencyThresholdRatio)
	}
	if !ratioInRange(p.InstantUnstakeDelinquencyThresholdRatio) {
		return fmt.Errorf("%w: instant_unstake_delinquency_threshold_ratio %f not in [0,1]", ErrInvalidParameterValue, p.InstantUnstakeDelinquencyThresholdRatio)
	}
	if uint64(p.MEVCommissionBpsThreshold) > BasisPointsMax {
		return fmt.Errorf("%w: mev_commission_bps_threshold %d exceeds %d", ErrInvalidParameterValue, p.MEVCommissionBpsThreshold, BasisPointsMax)
	}
	if uint64(p.CommissionThreshold) > CommissionMax {
		return fmt.Errorf("%w: commission_threshold %d exceeds %d", ErrInvalidParameterValue, p.CommissionThreshold, CommissionMax)
	}
	if uint64(p.HistoricalCommissionThreshold) > CommissionMax {
		return fmt.Errorf("%w: historical_commission_threshold %d exceeds %d", ErrInvalidParameterValue, p.HistoricalCommissionThreshold, CommissionMax)
	}
	if p.NumDelegationValidators == 0 || p.NumDelegationValidators > MaxValidators {
		return fmt.Errorf("%w: num_delegation_validators %d out of range", ErrInvalidParameterValue, p.NumDelegationValidators)
	}
	if uint64(p.ScoringUnstakeCapBps) > BasisPointsMax {
		return fmt.Errorf("%w: scoring_unstake_cap_bps %d exceeds %d", ErrInvalidParameterValue, p.ScoringUnstakeCapBps, BasisPointsMax)
	}
	if uint64(p.InstantUnstakeCapBps) > BasisPointsMax {
		return fmt.Errorf("%w: instant_unstake_cap_bps %d exceeds %d", ErrInvalidParameterValue, p.InstantUnstakeCapBps, BasisPointsMax)
	}
	if uint64(p.StakeDepositUnstakeCapBps) > BasisPointsMax {
		return fmt.Errorf("%w: stake_deposit_unstake_cap_bps %d exceeds %d", ErrInvalidParameterValue, p.StakeDepositUnstakeCapBps, BasisPointsMax)
	}
	if p.InstantUnstakeEpochProgress < 0 || p.InstantUnstakeEpochProgress > EpochProgressMax {
		return fmt.Errorf("%w: instant_unstake_epoch_progress %f not in [0,%f]", ErrInvalidParameterValue, p.InstantUnstakeEpochProgress, EpochProgressMax)
	}
	if p.InstantUnstakeInputsEpochProgress < 0 || p.InstantUnstakeInputsEpochProgress > EpochProgressMax {
		return fmt.Errorf("%w: instant_unstake_inputs_epoch_progress %f not in [0,%f]", ErrInvalidParameterValue, p.InstantUnstakeInputsEpochProgress, EpochProgressMax)
	}
	if p.MinimumVotingEpochs > windowMax {
		return fmt.Errorf("%w: minimum_voting_epochs %d exceeds window %d", ErrInvalidParameterValue, p.MinimumVotingEpochs, windowMax)
	}
	if p.ComputeScoreSlotRange < ComputeScoreSlotRangeMin || p.ComputeScoreSlotRange > slotsPerEpoch {
		return fmt.Errorf("%w: compute_score_slot_range %d out of range [%d,%d]", ErrInvalidParameterValue, p.ComputeScoreSlotRange, ComputeScoreSlotRangeMin, slotsPerEpoch)
	}
	if p.NumEpochsBetweenScoring == 0 || p.NumEpochsBetweenScoring > NumEpochsBetweenScoringMax {
		return fmt.Errorf("%w: num_epochs_between_scoring %d out of range", ErrInvalidParameterValue, p.NumEpochsBetweenScoring)
	}
	return nil
}

func windowMax(currentEpoch uint64) uint64 {
	if currentEpoch < ValidatorHistoryFirstReliableEpoch {
		return 0
	}
	w := currentEpoch - ValidatorHistoryFirstReliableEpoch
	const maxItemsMinusOne = 511 // ringbuffer.DefaultCapacity - 1
	if w > maxItemsMinusOne {
		return maxItemsMinusOne
	}
	return w
}

func ratioInRange(r float64) bool {
	return r >= 0 && r <= 1
}

// Update describes an authority-submitted parameter change: every field is
// optional (nil means "leave unchanged"), mirroring
// original_source's UpdateParametersArgs.
type Update struct {
	MEVCommissionRange                      *uint16
	EpochCreditsRange                       *uint16
	CommissionRange                         *uint16
	ScoringDelinquencyThresholdRatio        *float64
	InstantUnstakeDelinquencyThresholdRatio *float64
	MEVCommissionBpsThreshold               *uint16
	CommissionThreshold                     *uint8
	HistoricalCommissionThreshold           *uint8
	NumDelegationValidators                 *uint32
	ScoringUnstakeCapBps                    *uint32
	InstantUnstakeCapBps                    *uint32
	StakeDepositUnstakeCapBps               *uint32
	InstantUnstakeEpochProgress             *float64
	ComputeScoreSlotRange                   *uint64
	InstantUnstakeInputsEpochProgress       *float64
	NumEpochsBetweenScoring                 *uint64
	MinimumStakeLamports                    *uint64
	MinimumVotingEpochs                     *uint64
}

// Apply merges u into p and validates the result, returning the new
// params unchanged from p on error (authority update must be all-or-
// nothing; spec §2's "Configuration & parameters").
func (p Params) Apply(u Update, currentEpoch, slotsPerEpoch uint64) (Params, error) {
	next := p
	if u.MEVCommissionRange != nil {
		next.MEVCommissionRange = *u.MEVCommissionRange
	}
	if u.EpochCreditsRange != nil {
		next.EpochCreditsRange = *u.EpochCreditsRange
	}
	if u.CommissionRange != nil {
		next.CommissionRange = *u.CommissionRange
	}
	if u.ScoringDelinquencyThresholdRatio != nil {
		next.ScoringDelinquencyThresholdRatio = *u.ScoringDelinquencyThresholdRatio
	}
	if u.InstantUnstakeDelinquencyThresholdRatio != nil {
		next.InstantUnstakeDelinquencyThresholdRatio = *u.InstantUnstakeDelinquencyThresholdRatio
	}
	if u.MEVCommissionBpsThreshold != nil {
		next.MEVCommissionBpsThreshold = *u.MEVCommissionBpsThreshold
	}
	if u.CommissionThreshold != nil {
		next.CommissionThreshold = *u.CommissionThreshold
	}
	if u.HistoricalCommissionThreshold != nil {
		next.HistoricalCommissionThreshold = *u.HistoricalCommissionThreshold
	}
	if u.NumDelegationValidators != nil {
		next.NumDelegationValidators = *u.NumDelegationValidators
	}
	if u.ScoringUnstakeCapBps != nil {
		next.ScoringUnstakeCapBps = *u.ScoringUnstakeCapBps
	}
	if u.InstantUnstakeCapBps != nil {
		next.InstantUnstakeCapBps = *u.InstantUnstakeCapBps
	}
	if u.StakeDepositUnstakeCapBps != nil {
		next.StakeDepositUnstakeCapBps = *u.StakeDepositUnstakeCapBps
	}
	if u.InstantUnstakeEpochProgress != nil {
		next.InstantUnstakeEpochProgress = *u.InstantUnstakeEpochProgress
	}
	if u.ComputeScoreSlotRange != nil {
		next.ComputeScoreSlotRange = *u.ComputeScoreSlotRange
	}
	if u.InstantUnstakeInputsEpochProgress != nil {
		next.InstantUnstakeInputsEpochProgress = *u.InstantUnstakeInputsEpochProgress
	}
	if u.NumEpochsBetweenScoring != nil {
		next.NumEpochsBetweenScoring = *u.NumEpochsBetweenScoring
	}
	if u.MinimumStakeLamports != nil {
		next.MinimumStakeLamports = *u.MinimumStakeLamports
	}
	if u.MinimumVotingEpochs != nil {
		next.MinimumVotingEpochs = *u.MinimumVotingEpochs
	}

	if err := next.Validate(currentEpoch, slotsPerEpoch); err != nil {
		return p, err
	}
	return next, nil
}
