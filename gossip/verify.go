// Package gossip verifies signed CRDS (cluster replicated data store) gossip
// messages submitted alongside a copy-gossip instruction, per spec.md §4.2
// and §6. The signature check itself happens one instruction earlier in the
// same transaction (the platform's Ed25519 verify program); this package
// re-derives and checks the same offsets structure and signer identity a
// caller would have to trust otherwise.
package gossip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/ed25519"
)

// Byte layout of the preceding Ed25519 verify instruction's data, matching
// the platform's ed25519 program convention (spec §6, §4.2 item 2).
const (
	pubkeySize          = ed25519.PublicKeySize // 32
	signatureSize       = ed25519.SignatureSize  // 64
	offsetsSerializedSize = 14                     // 7 uint16 fields
	offsetsStart          = 2                      // bytemuck alignment padding
	dataStart             = offsetsSerializedSize + offsetsStart
)

// Gossip verification errors, matching spec §4.2/§7 error names.
var (
	ErrNotSigVerified    = errors.New("gossip: preceding instruction is not an ed25519 verify")
	ErrGossipDataInvalid = errors.New("gossip: offsets or signer inconsistent")
)

// Ed25519VerifyInstruction is the decoded shape of the instruction
// immediately preceding a copy-gossip call: the program ID it targets and
// its raw instruction data (offsets header followed by signature, pubkey,
// and message).
type Ed25519VerifyInstruction struct {
	ProgramID [32]byte
	Data      []byte
}

// Ed25519VerifyProgramID is the platform's well-known Ed25519 signature
// verification program address. Declared as a variable (not a const) since
// it is a 32-byte array literal supplied by the external chain client at
// wiring time, matching spec §1's "out of scope: the stake-pool primitive
// itself" boundary — this package only compares against whatever the
// collaborator says that program ID is.
var Ed25519VerifyProgramID [32]byte

// signatureOffsets mirrors Ed25519SignatureOffsets from the platform's
// ed25519 program: byte offsets (relative to this same instruction's data)
// of the signature, public key, and message, each tagged with which
// instruction in the transaction they live in.
type signatureOffsets struct {
	signatureOffset            uint16
	signatureInstructionIndex  uint16
	publicKeyOffset            uint16
	publicKeyInstructionIndex  uint16
	messageDataOffset          uint16
	messageDataSize            uint16
	messageInstructionIndex    uint16
}

func parseSignatureOffsets(data []byte) (signatureOffsets, error) {
	if len(data) < offsetsStart+offsetsSerializedSize {
		return signatureOffsets{}, fmt.Errorf("%w: instruction data too short for offsets header", ErrGossipDataInvalid)
	}
	b := data[offsetsStart : offsetsStart+offsetsSerializedSize]
	return signatureOffsets{
		signatureOffset:           binary.LittleEndian.Uint16(b[0:2]),
		signatureInstructionIndex: binary.LittleEndian.Uint16(b[2:4]),
		publicKeyOffset:           binary.LittleEndian.Uint16(b[4:6]),
		publicKeyInstructionIndex: binary.LittleEndian.Uint16(b[6:8]),
		messageDataOffset:         binary.LittleEndian.Uint16(b[8:10]),
		messageDataSize:           binary.LittleEndian.Uint16(b[10:12]),
		messageInstructionIndex:   binary.LittleEndian.Uint16(b[12:14]),
	}, nil
}

// VerifiedDatum is the result of a successful Verify call: the signer
// pubkey and the raw message bytes it signed, ready for the caller to
// bincode-equivalent-decode into a CRDS datum.
type VerifiedDatum struct {
	Signer  [32]byte
	Message []byte
}

// Verify checks that precedingInstruction is a well-formed Ed25519 verify
// instruction targeting ed25519ProgramID, that its internal offsets are
// self-consistent (signature immediately after pubkey, message immediately
// after signature, all three referencing the same instruction index), that
// the signature itself verifies under the embedded pubkey and message, and
// returns the signer and message on success.
//
// This does not check the gossip timestamp window or that the signer
// matches the target vote account's node identity; callers (history's
// CopyGossip, composed with a node-identity check) handle those per spec
// §4.2 item 3-4.
func Verify(precedingInstruction Ed25519VerifyInstruction, ed25519ProgramID [32]byte) (VerifiedDatum, error) {
	if precedingInstruction.ProgramID != ed25519ProgramID {
		return VerifiedDatum{}, ErrNotSigVerified
	}

	offsets, err := parseSignatureOffsets(precedingInstruction.Data)
	if err != nil {
		return VerifiedDatum{}, err
	}

	if offsets.signatureInstructionIndex != offsets.publicKeyInstructionIndex ||
		offsets.signatureInstructionIndex != offsets.messageInstructionIndex {
		return VerifiedDatum{}, fmt.Errorf("%w: instruction indices disagree", ErrGossipDataInvalid)
	}
	if offsets.publicKeyOffset != uint16(dataStart) {
		return VerifiedDatum{}, fmt.Errorf("%w: public key offset %d, want %d", ErrGossipDataInvalid, offsets.publicKeyOffset, dataStart)
	}
	if offsets.signatureOffset != offsets.publicKeyOffset+uint16(pubkeySize) {
		return VerifiedDatum{}, fmt.Errorf("%w: signature does not immediately follow public key", ErrGossipDataInvalid)
	}
	if offsets.messageDataOffset != offsets.signatureOffset+uint16(signatureSize) {
		return VerifiedDatum{}, fmt.Errorf("%w: message does not immediately follow signature", ErrGossipDataInvalid)
	}

	data := precedingInstruction.Data
	pkEnd := int(offsets.publicKeyOffset) + pubkeySize
	sigEnd := int(offsets.signatureOffset) + signatureSize
	msgEnd := int(offsets.messageDataOffset) + int(offsets.messageDataSize)
	if pkEnd > len(data) || sigEnd > len(data) || msgEnd > len(data) {
		return VerifiedDatum{}, fmt.Errorf("%w: offsets exceed instruction data length", ErrGossipDataInvalid)
	}

	pubkeyBytes := data[offsets.publicKeyOffset:pkEnd]
	sigBytes := data[offsets.signatureOffset:sigEnd]
	message := data[offsets.messageDataOffset:msgEnd]

	if !ed25519.Verify(ed25519.PublicKey(pubkeyBytes), message, sigBytes) {
		return VerifiedDatum{}, fmt.Errorf("%w: signature does not verify", ErrGossipDataInvalid)
	}

	var signer [32]byte
	copy(signer[:], pubkeyBytes)
	return VerifiedDatum{Signer: signer, Message: bytes.Clone(message)}, nil
}
