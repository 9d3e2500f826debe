// Package account implements spec §6's bit-exact on-chain account
// layouts: fixed-width little-endian encode/decode for a validator
// history entry and the steward state account, plus the v1->v2 state
// migration. Grounded on ssz/encode.go and ssz/decode.go's manual-offset
// marshal style, adapted from SSZ framing to Solana's native packed-struct
// convention (no length prefixes, no merkleization).
package account

import (
	"encoding/binary"
	"errors"

	"github.com/solsteward/steward/historyentry"
)

// ErrSize is returned when a decode buffer's length does not match the
// expected fixed width.
var ErrSize = errors.New("account: invalid size")

// EntrySize is the packed byte width of a single historyentry.Entry.
const EntrySize = 8 + // epoch
	8 + 8 + // ActivatedStakeLamports, EpochCredits
	1 + 2 + 8 + // Commission, MEVCommission, MEVEarned
	1 + 4 + 2 + 2 + 2 + 4 + 1 + // ClientType, IP, VersionMajor/Minor/Patch, Rank, Superminority
	8 + 8 + 8 + 8 + // LastVoteAccountUpdateSlot, LastIPTimestamp, LastVersionTimestamp, LastMEVCommissionSlot
	2 + 8 + // PriorityFeeCommission, PriorityFeesEarned
	1 + 1 // MerkleRootUploadAuthority, PriorityFeeMerkleRootUploadAuthority

// MarshalEntry encodes a historyentry.Entry into its fixed EntrySize-byte
// on-chain layout.
func MarshalEntry(e historyentry.Entry) []byte {
	b := make([]byte, EntrySize)
	o := 0
	putU64 := func(v uint64) { binary.LittleEndian.PutUint64(b[o:o+8], v); o += 8 }
	putU32 := func(v uint32) { binary.LittleEndian.PutUint32(b[o:o+4], v); o += 4 }
	putU16 := func(v uint16) { binary.LittleEndian.PutUint16(b[o:o+2], v); o += 2 }
	putU8 := func(v uint8) { b[o] = v; o++ }

	putU64(e.Epoch())
	putU64(e.ActivatedStakeLamports)
	putU64(e.EpochCredits)
	putU8(e.Commission)
	putU16(e.MEVCommission)
	putU64(e.MEVEarned)
	putU8(uint8(e.ClientType))
	copy(b[o:o+4], e.IP[:])
	o += 4
	putU16(e.VersionMajor)
	putU16(e.VersionMinor)
	putU16(e.VersionPatch)
	putU32(e.Rank)
	putU8(e.Superminority)
	putU64(e.LastVoteAccountUpdateSlot)
	putU64(e.LastIPTimestamp)
	putU64(e.LastVersionTimestamp)
	putU64(e.LastMEVCommissionSlot)
	putU16(e.PriorityFeeCommission)
	putU64(e.PriorityFeesEarned)
	putU8(uint8(e.MerkleRootUploadAuthority))
	putU8(uint8(e.PriorityFeeMerkleRootUploadAuthority))
	return b
}

// UnmarshalEntry decodes a historyentry.Entry from its EntrySize-byte
// on-chain layout.
func UnmarshalEntry(data []byte) (historyentry.Entry, error) {
	if len(data) != EntrySize {
		return historyentry.Entry{}, ErrSize
	}
	o := 0
	getU64 := func() uint64 { v := binary.LittleEndian.Uint64(data[o : o+8]); o += 8; return v }
	getU32 := func() uint32 { v := binary.LittleEndian.Uint32(data[o : o+4]); o += 4; return v }
	getU16 := func() uint16 { v := binary.LittleEndian.Uint16(data[o : o+2]); o += 2; return v }
	getU8 := func() uint8 { v := data[o]; o++; return v }

	e := historyentry.Default(getU64())
	e.ActivatedStakeLamports = getU64()
	e.EpochCredits = getU64()
	e.Commission = getU8()
	e.MEVCommission = getU16()
	e.MEVEarned = getU64()
	e.ClientType = historyentry.ClientType(getU8())
	copy(e.IP[:], data[o:o+4])
	o += 4
	e.VersionMajor = getU16()
	e.VersionMinor = getU16()
	e.VersionPatch = getU16()
	e.Rank = getU32()
	e.Superminority = getU8()
	e.LastVoteAccountUpdateSlot = getU64()
	e.LastIPTimestamp = getU64()
	e.LastVersionTimestamp = getU64()
	e.LastMEVCommissionSlot = getU64()
	e.PriorityFeeCommission = getU16()
	e.PriorityFeesEarned = getU64()
	e.MerkleRootUploadAuthority = historyentry.AuthorityKind(getU8())
	e.PriorityFeeMerkleRootUploadAuthority = historyentry.AuthorityKind(getU8())
	return e, nil
}
