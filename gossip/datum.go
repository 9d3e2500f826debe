package gossip

import (
	"encoding/binary"
	"fmt"
)

// CrdsContactInfo is the subset of a CRDS ContactInfo/LegacyContactInfo
// datum copy-gossip needs: the node's identity pubkey and the wallclock it
// was stamped at (milliseconds since epoch), plus the fields history.CopyGossip
// forwards into the validator history entry.
type CrdsContactInfo struct {
	NodePubkey      [32]byte
	WallclockMillis uint64
	VersionMajor    uint16
	VersionMinor    uint16
	VersionPatch    uint16
	IP              [4]byte
}

// DecodeContactInfo parses the minimal fixed-width encoding this module
// expects for a CRDS ContactInfo datum's message bytes: node pubkey (32),
// wallclock (8, little-endian), version major/minor/patch (2 each,
// little-endian), IPv4 address (4 bytes). Richer CRDS variants (gossip
// socket table, shred version, and so on) are an external-collaborator
// concern (spec §1); only what feeds the validator history entry is parsed.
func DecodeContactInfo(message []byte) (CrdsContactInfo, error) {
	const wantLen = 32 + 8 + 2 + 2 + 2 + 4
	if len(message) < wantLen {
		return CrdsContactInfo{}, fmt.Errorf("%w: message too short for contact info (%d bytes)", ErrGossipDataInvalid, len(message))
	}
	var info CrdsContactInfo
	copy(info.NodePubkey[:], message[0:32])
	info.WallclockMillis = binary.LittleEndian.Uint64(message[32:40])
	info.VersionMajor = binary.LittleEndian.Uint16(message[40:42])
	info.VersionMinor = binary.LittleEndian.Uint16(message[42:44])
	info.VersionPatch = binary.LittleEndian.Uint16(message[44:46])
	copy(info.IP[:], message[46:50])
	return info, nil
}

// VerifyAndDecode composes Verify with DecodeContactInfo and the node-
// identity check of spec §4.2 item 3: the signer, the decoded datum's
// pubkey, and the vote account's node identity must all match.
func VerifyAndDecode(precedingInstruction Ed25519VerifyInstruction, ed25519ProgramID [32]byte, voteAccountNodeIdentity [32]byte) (CrdsContactInfo, error) {
	verified, err := Verify(precedingInstruction, ed25519ProgramID)
	if err != nil {
		return CrdsContactInfo{}, err
	}
	info, err := DecodeContactInfo(verified.Message)
	if err != nil {
		return CrdsContactInfo{}, err
	}
	if info.NodePubkey != verified.Signer || info.NodePubkey != voteAccountNodeIdentity {
		return CrdsContactInfo{}, fmt.Errorf("%w: signer, datum pubkey, and vote account identity disagree", ErrGossipDataInvalid)
	}
	return info, nil
}
