package scoring

import (
	"testing"

	"github.com/solsteward/steward/bitmask"
	"github.com/solsteward/steward/history"
)

func defaultParams() Params {
	return Params{
		MEVCommissionRange:            10,
		MEVCommissionBpsThreshold:     1000,
		CommissionRange:               10,
		CommissionThreshold:           10,
		HistoricalCommissionThreshold: 10,
		EpochCreditsRange:             10,
		DelinquencyThresholdRatio:     0.5,
		Blacklist:                     bitmask.New(10),
		ProgramInceptionEpoch:         0,
	}
}

// TestPackRawScoreScenarioS1 mirrors spec scenario S1: commission 5, MEV
// commission 100 bps, age 200, credits 432_000 ->
// raw score = (95 << 56) | (9900 << 42) | (200 << 25) | 432_000.
func TestPackRawScoreScenarioS1(t *testing.T) {
	got := packRawScore(5, true, 100, true, 200, 432_000)
	want := uint64(95)<<56 | uint64(9900)<<42 | uint64(200)<<25 | uint64(432_000)
	if got != want {
		t.Fatalf("packRawScore = %#x, want %#x", got, want)
	}
}

func buildHistoryForS1(t *testing.T) (*history.ValidatorHistory, *history.ClusterHistory) {
	t.Helper()
	h := history.NewValidatorHistory([32]byte{9}, 0, 255)
	cluster := history.NewClusterHistory()

	for epoch := uint64(0); epoch < 10; epoch++ {
		if err := cluster.UpdateClusterHistory(fakeFullBitmap{}, epoch*4+3, func(s uint64) uint64 { return s / 4 }, func(e uint64) uint64 { return e }); err != nil {
			t.Fatalf("update cluster history: %v", err)
		}
	}
	for epoch := uint64(0); epoch < 10; epoch++ {
		credits := uint64(2)
		if epoch == 9 {
			credits = 432_000
		}
		if err := h.CopyVoteAccount(epoch, 5, credits, epoch); err != nil {
			t.Fatalf("copy vote account: %v", err)
		}
		if err := h.CopyTipDistribution(epoch, 100, 0, epoch); err != nil {
			t.Fatalf("copy tip distribution: %v", err)
		}
		if err := h.UpdateStakeHistory(epoch, 1_000_000, 1, false); err != nil {
			t.Fatalf("update stake history: %v", err)
		}
	}
	h.ValidatorAge = 200
	return h, cluster
}

type fakeFullBitmap struct{}

func (fakeFullBitmap) Contains(slot uint64) bool { return true }
func (fakeFullBitmap) IsSet(slot uint64) bool     { return true }

func TestScorePassesAllFiltersScenarioS1(t *testing.T) {
	h, cluster := buildHistoryForS1(t)
	p := defaultParams()

	result, err := Score(h, cluster, p, 0, 10)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if !result.Filters.Pass() {
		t.Fatalf("expected all filters to pass, got %+v", result.Filters)
	}
	want := uint64(95)<<56 | uint64(9900)<<42 | uint64(200)<<25 | uint64(432_000)
	if result.Score != want {
		t.Fatalf("score = %#x, want %#x", result.Score, want)
	}
}

// TestScoreCommissionFilterZeroesScoreScenarioS1 mirrors S1's second half:
// same inputs but commission 11 with commission_threshold=10 zeroes the
// final score even though raw_score is still computed.
func TestScoreCommissionFilterZeroesScoreScenarioS1(t *testing.T) {
	h := history.NewValidatorHistory([32]byte{9}, 0, 255)
	cluster := history.NewClusterHistory()
	for epoch := uint64(0); epoch < 10; epoch++ {
		_ = cluster.UpdateClusterHistory(fakeFullBitmap{}, epoch*4+3, func(s uint64) uint64 { return s / 4 }, func(e uint64) uint64 { return e })
	}
	for epoch := uint64(0); epoch < 10; epoch++ {
		credits := uint64(2)
		if epoch == 9 {
			credits = 432_000
		}
		_ = h.CopyVoteAccount(epoch, 11, credits, epoch)
		_ = h.UpdateStakeHistory(epoch, 1_000_000, 1, false)
	}
	h.ValidatorAge = 200

	p := defaultParams()
	result, err := Score(h, cluster, p, 0, 10)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if result.Filters.Commission {
		t.Fatal("commission filter should fail with commission 11 > threshold 10")
	}
	if result.Score != 0 {
		t.Fatalf("final score = %d, want 0 when a filter fails", result.Score)
	}
}

func TestScoreBlacklistFilter(t *testing.T) {
	h := history.NewValidatorHistory([32]byte{1}, 0, 255)
	cluster := history.NewClusterHistory()
	p := defaultParams()
	_ = p.Blacklist.Set(3)

	result, err := Score(h, cluster, p, 3, 5)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if result.Filters.Blacklist {
		t.Fatal("expected blacklist filter to fail for a blacklisted index")
	}
	if result.Score != 0 {
		t.Fatal("expected zero score for a blacklisted validator")
	}
}

func TestScoreSuperminorityNotRecentEnough(t *testing.T) {
	h := history.NewValidatorHistory([32]byte{1}, 0, 255)
	cluster := history.NewClusterHistory()
	p := defaultParams()

	// Current-epoch credits recorded but no superminority flag ever
	// recorded anywhere -> ErrStakeHistoryNotRecentEnough.
	if err := h.CopyVoteAccount(6, 5, 100, 1); err != nil {
		t.Fatalf("copy vote account: %v", err)
	}

	_, err := Score(h, cluster, p, 0, 6)
	if _, ok := err.(ErrStakeHistoryNotRecentEnough); !ok {
		t.Fatalf("err = %v, want ErrStakeHistoryNotRecentEnough", err)
	}
}
