// Package historyentry defines the per-epoch validator telemetry record
// held by each slot of a validator's ringbuffer.Buf, and the sentinel
// semantics that mark a field unset.
package historyentry

import "math"

// Sentinel values per field width. A field holding its sentinel is treated
// as "never recorded" rather than a real zero measurement.
const (
	SentinelUint64 = math.MaxUint64
	SentinelUint32 = math.MaxUint32
	SentinelUint16 = math.MaxUint16
	SentinelUint8  = math.MaxUint8
)

// ClientType enumerates the validator-reported client implementation, as
// carried in gossip version metadata.
type ClientType uint8

const (
	ClientUnknown ClientType = iota
	ClientAgave
	ClientFirelight
	ClientJitoSolana
	ClientFrankendancer
)

// AuthorityKind distinguishes who controls a Merkle-root upload authority
// for a distribution account (MEV tips, or priority fees).
type AuthorityKind uint8

const (
	AuthorityUnset AuthorityKind = iota
	AuthorityDefault
	AuthorityOverride
)

// Entry is a single epoch's worth of recorded validator telemetry. Every
// numeric field uses its width's sentinel to mean "not yet recorded for
// this epoch" (spec §3.2).
type Entry struct {
	epoch uint64 // epoch tag for ringbuffer.Entry; SentinelUint64 means "default slot"

	ActivatedStakeLamports uint64
	EpochCredits           uint64

	Commission    uint8  // 0-100, SentinelUint8 if unset
	MEVCommission uint16 // basis points 0-10000, SentinelUint16 if unset
	MEVEarned     uint64 // lamports reported by the last copy-tip-distribution call with a non-zero amount

	ClientType      ClientType
	IP              [4]byte
	VersionMajor    uint16
	VersionMinor    uint16
	VersionPatch    uint16
	Rank            uint32 // rank among validators by stake, SentinelUint32 if unset
	Superminority   uint8  // 0 or 1; SentinelUint8 if unset

	LastVoteAccountUpdateSlot uint64
	LastIPTimestamp           uint64
	LastVersionTimestamp      uint64
	LastMEVCommissionSlot     uint64

	PriorityFeeCommission uint16 // basis points, SentinelUint16 if unset
	PriorityFeesEarned    uint64

	MerkleRootUploadAuthority            AuthorityKind
	PriorityFeeMerkleRootUploadAuthority AuthorityKind
}

// Default returns an Entry stamped with epoch and every field set to its
// unset sentinel. Used by ringbuffer.Buf to fill skipped slots during a
// wrap-advance, and as the zero value for a newly created history record.
func Default(epoch uint64) Entry {
	return Entry{
		epoch:                  epoch,
		ActivatedStakeLamports: SentinelUint64,
		EpochCredits:           SentinelUint64,
		Commission:             SentinelUint8,
		MEVCommission:          SentinelUint16,
		MEVEarned:              SentinelUint64,
		Rank:                   SentinelUint32,
		Superminority:          SentinelUint8,

		LastVoteAccountUpdateSlot: SentinelUint64,
		LastIPTimestamp:           SentinelUint64,
		LastVersionTimestamp:      SentinelUint64,
		LastMEVCommissionSlot:     SentinelUint64,

		PriorityFeeCommission: SentinelUint16,
		PriorityFeesEarned:    SentinelUint64,
	}
}

// IsDefault reports whether the entry looks like a placeholder slot
// created by a ring buffer wrap-advance: activated stake, epoch credits,
// commission, MEV commission, superminority, last vote-account-update
// slot, last IP timestamp and last MEV-commission slot all hold their
// unset sentinel. The other fields are not consulted.
func (e Entry) IsDefault() bool {
	return !e.HasActivatedStake() && !e.HasEpochCredits() && !e.HasCommission() &&
		!e.HasMEVCommission() && !e.HasSuperminority() &&
		e.LastVoteAccountUpdateSlot == SentinelUint64 &&
		e.LastIPTimestamp == SentinelUint64 &&
		e.LastMEVCommissionSlot == SentinelUint64
}

// Epoch implements ringbuffer.Entry[Entry].
func (e Entry) Epoch() uint64 {
	return e.epoch
}

// WithEpoch returns a copy of e stamped with epoch. Used when merging a feed
// update into an existing same-epoch slot without losing the epoch tag.
func (e Entry) WithEpoch(epoch uint64) Entry {
	e.epoch = epoch
	return e
}

// HasCommission reports whether Commission has been recorded for this entry.
func (e Entry) HasCommission() bool { return e.Commission != SentinelUint8 }

// HasMEVCommission reports whether MEVCommission has been recorded.
func (e Entry) HasMEVCommission() bool { return e.MEVCommission != SentinelUint16 }

// HasEpochCredits reports whether EpochCredits has been recorded.
func (e Entry) HasEpochCredits() bool { return e.EpochCredits != SentinelUint64 }

// HasSuperminority reports whether the superminority flag has been recorded.
func (e Entry) HasSuperminority() bool { return e.Superminority != SentinelUint8 }

// HasActivatedStake reports whether activated stake has been recorded.
func (e Entry) HasActivatedStake() bool { return e.ActivatedStakeLamports != SentinelUint64 }
