// Package history implements the per-validator and cluster-wide telemetry
// records described in spec.md §3.3/§3.4, and the feed-update operations of
// §4.2: one method per data feed, each owning a disjoint set of fields on
// the current epoch's entry.
package history

import (
	"errors"
	"fmt"

	"github.com/solsteward/steward/historyentry"
	"github.com/solsteward/steward/ringbuffer"
)

// Feed-update errors, classified per spec §7.
var (
	// ErrGossipDataInvalid classifies a preceding Ed25519 instruction whose
	// offsets are malformed or whose signer does not match the vote
	// account's node identity (input-stale-adjacent, but actually an
	// authorization failure at the call site). Nothing in this package
	// returns it: those checks run in the gossip package before CopyGossip.
	ErrGossipDataInvalid = errors.New("history: gossip data invalid")
	// ErrGossipDataInFuture is returned when the signed gossip datum's
	// timestamp is more than 10 minutes ahead of the current time.
	ErrGossipDataInFuture = errors.New("history: gossip data timestamp too far in future")
	// ErrArithmetic is returned on overflow in a feed-update computation.
	ErrArithmetic = errors.New("history: arithmetic overflow")
)

// ValidatorHistory is the per-validator telemetry record: static identity
// fields plus a ring buffer of per-epoch entries (spec §3.3).
type ValidatorHistory struct {
	VoteAccount   [32]byte
	Index         uint32 // position in the validator enumeration, assigned at creation; monotone
	Bump          uint8
	StructVersion uint32
	ValidatorAge  uint32 // lifetime count of distinct epochs with non-zero epoch credits

	Buf *ringbuffer.Buf[historyentry.Entry]
}

// NewValidatorHistory creates an empty record for a validator at the given
// enumeration index.
func NewValidatorHistory(voteAccount [32]byte, index uint32, bump uint8) *ValidatorHistory {
	return &ValidatorHistory{
		VoteAccount:   voteAccount,
		Index:         index,
		Bump:          bump,
		StructVersion: 2,
		Buf:           ringbuffer.NewDefault[historyentry.Entry](),
	}
}

func (h *ValidatorHistory) entryAt(epoch uint64) historyentry.Entry {
	if last, ok := h.Buf.Last(); ok && last.Epoch() == epoch {
		return last
	}
	if e, ok := h.Buf.At(epoch); ok {
		return e
	}
	return historyentry.Default(epoch)
}

func (h *ValidatorHistory) push(entry historyentry.Entry) error {
	return h.Buf.Push(entry, historyentry.Default)
}

// CopyVoteAccount writes commission and epoch-credits for the given epoch,
// sourced from the validator's vote account. Permissionless; idempotent per
// epoch (re-invocation overwrites with the latest values). Spec §4.2.
func (h *ValidatorHistory) CopyVoteAccount(epoch uint64, commission uint8, epochCredits uint64, updateSlot uint64) error {
	// validator_age: recomputed when a call lands in a new epoch (one whose
	// entry does not yet exist) with a non-zero credit delta (spec §3.3).
	// Re-invocations within the same epoch never bump age, regardless of
	// how epochCredits changes across them.
	_, alreadyRecorded := h.Buf.At(epoch)
	landsInNewEpoch := !alreadyRecorded

	entry := h.entryAt(epoch)
	entry.Commission = commission
	entry.EpochCredits = epochCredits
	entry.LastVoteAccountUpdateSlot = updateSlot
	if err := h.push(entry); err != nil {
		return fmt.Errorf("copy-vote-account: %w", err)
	}

	if landsInNewEpoch && epochCredits > 0 {
		if h.ValidatorAge == historyentry.SentinelUint32 {
			return fmt.Errorf("copy-vote-account: %w: validator_age already saturated", ErrArithmetic)
		}
		h.ValidatorAge++
	}
	return nil
}

// GossipDatum is the subset of a signed CRDS gossip message copy-gossip
// needs: contact info (client type, IP, version) and the wallclock
// timestamp it was signed at, in milliseconds.
type GossipDatum struct {
	ClientType      historyentry.ClientType
	IP              [4]byte
	VersionMajor    uint16
	VersionMinor    uint16
	VersionPatch    uint16
	WallclockMillis uint64
}

// CopyGossip writes IP, version, and client type for the given epoch from a
// gossip datum whose Ed25519 signature has already been verified by the
// gossip package (spec §4.2's offset/signature checks happen before this
// call; this method only enforces the timestamp freshness window and the
// not-idempotent "newer timestamp wins" rule).
//
// nowUnixSeconds is the current time; the datum's timestamp must not be more
// than 10 minutes ahead of it. It also must not be older than the last
// stored timestamp (replay protection, scenario S6).
func (h *ValidatorHistory) CopyGossip(epoch uint64, datum GossipDatum, nowUnixSeconds uint64) error {
	const futureToleranceSeconds = 600

	entry := h.entryAt(epoch)

	wallclockSeconds := datum.WallclockMillis / 1000
	if wallclockSeconds > nowUnixSeconds+futureToleranceSeconds {
		return ErrGossipDataInFuture
	}
	if entry.LastIPTimestamp != historyentry.SentinelUint64 && datum.WallclockMillis <= entry.LastIPTimestamp {
		// Not newer than what's stored: no mutation (idempotent replay).
		return nil
	}

	entry.ClientType = datum.ClientType
	entry.IP = datum.IP
	entry.VersionMajor = datum.VersionMajor
	entry.VersionMinor = datum.VersionMinor
	entry.VersionPatch = datum.VersionPatch
	entry.LastIPTimestamp = datum.WallclockMillis
	entry.LastVersionTimestamp = datum.WallclockMillis

	if err := h.push(entry); err != nil {
		return fmt.Errorf("copy-gossip: %w", err)
	}
	return nil
}

// CopyTipDistribution writes MEV commission and MEV earned for the given
// epoch. Permissionless; idempotent. Spec §4.2, supplemented by
// SPEC_FULL.md's MEVEarned tracking (grounded on original_source's
// mev_earned.rs). mevEarnedLamports replaces the stored MEV earned rather
// than adding to it; a zero leaves an already-recorded value unchanged, so
// a commission-only call does not erase it.
func (h *ValidatorHistory) CopyTipDistribution(epoch uint64, mevCommissionBps uint16, mevEarnedLamports uint64, slot uint64) error {
	entry := h.entryAt(epoch)
	entry.MEVCommission = mevCommissionBps
	if mevEarnedLamports != 0 || entry.MEVEarned == historyentry.SentinelUint64 {
		entry.MEVEarned = mevEarnedLamports
	}
	entry.LastMEVCommissionSlot = slot
	if err := h.push(entry); err != nil {
		return fmt.Errorf("copy-tip-distribution: %w", err)
	}
	return nil
}

// CopyPriorityFeeDistribution writes priority-fee commission and the
// priority-fee Merkle-root authority kind for the given epoch.
// Permissionless; idempotent. Spec §4.2.
func (h *ValidatorHistory) CopyPriorityFeeDistribution(epoch uint64, commissionBps uint16, authority historyentry.AuthorityKind) error {
	entry := h.entryAt(epoch)
	entry.PriorityFeeCommission = commissionBps
	entry.PriorityFeeMerkleRootUploadAuthority = authority
	if err := h.push(entry); err != nil {
		return fmt.Errorf("copy-priority-fee-distribution: %w", err)
	}
	return nil
}

// UpdateStakeHistory writes activated stake lamports, rank, and the
// superminority flag for the given epoch. Permissioned oracle call;
// idempotent. Spec §4.2.
func (h *ValidatorHistory) UpdateStakeHistory(epoch uint64, activatedStakeLamports uint64, rank uint32, superminority bool) error {
	entry := h.entryAt(epoch)
	entry.ActivatedStakeLamports = activatedStakeLamports
	entry.Rank = rank
	if superminority {
		entry.Superminority = 1
	} else {
		entry.Superminority = 0
	}
	if err := h.push(entry); err != nil {
		return fmt.Errorf("update-stake-history: %w", err)
	}
	return nil
}

// UpdatePriorityFeeHistory writes priority fees earned for the given epoch.
// Permissioned oracle call; idempotent. Spec §4.2.
func (h *ValidatorHistory) UpdatePriorityFeeHistory(epoch uint64, priorityFeesEarned uint64) error {
	entry := h.entryAt(epoch)
	entry.PriorityFeesEarned = priorityFeesEarned
	if err := h.push(entry); err != nil {
		return fmt.Errorf("update-priority-fee-history: %w", err)
	}
	return nil
}

// EntryAt returns the entry stored for epoch, or a default-valued entry if
// none exists yet. Exposed for callers (the keeper's feed operations) that
// need to read a field before a later feed call would otherwise overwrite
// it, without forcing every feed method to accept that field as an
// unrelated parameter.
func (h *ValidatorHistory) EntryAt(epoch uint64) historyentry.Entry {
	return h.entryAt(epoch)
}

// LatestNonDefault returns the most recent entry from head backwards for
// which isSet holds, matching spec §4.1's "reading the latest value for a
// field scans from head backwards and returns the first non-sentinel
// value".
func (h *ValidatorHistory) LatestNonDefault(isSet func(historyentry.Entry) bool) (historyentry.Entry, bool) {
	return h.Buf.LastMatching(isSet)
}

// Range returns entries for epochs [start, end], following ringbuffer.Buf's
// Range semantics.
func (h *ValidatorHistory) Range(start, end uint64) ([]ringbuffer.Option[historyentry.Entry], error) {
	return h.Buf.Range(start, end)
}

// RestoreEntry re-inserts a previously checkpointed entry, for callers
// rebuilding a ValidatorHistory from a local cache after a restart rather
// than from a live feed update.
func (h *ValidatorHistory) RestoreEntry(entry historyentry.Entry) error {
	return h.push(entry)
}
