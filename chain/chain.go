// Package chain declares the external collaborator boundaries the
// steward keeper drives against: the Solana RPC surface, a transaction
// signer, the stake pool program, and the sources of vote-account and
// gossip data that feed validator history. No concrete Solana wire
// implementation lives here or anywhere in this module (spec.md's
// Non-goals scope the core to decision logic, not network plumbing);
// these interfaces are the seam a real RPC/wire client would satisfy.
// Grounded on rpc/backend.go's and engine/backend.go's interface-as-seam
// pattern decoupling business logic from a concrete backend.
package chain

import (
	"context"

	"github.com/solsteward/steward/gossip"
	"github.com/solsteward/steward/history"
	"github.com/solsteward/steward/historyentry"
)

// Pubkey is a 32-byte Solana public key, used as a map key by the keeper
// (a defined type rather than a bare [32]byte so map[Pubkey]... reads
// self-documenting at call sites).
type Pubkey [32]byte

// PubkeyIndexEntry pairs a validator's vote account with its node
// identity pubkey at a fixed position, mirroring the stake pool's
// on-chain validator list ordering: position is significant, since it is
// steward.State's index space.
type PubkeyIndexEntry struct {
	VoteAccount [32]byte
	NodePubkey  [32]byte
}

// EpochInfo mirrors the Solana RPC's getEpochInfo response fields the
// keeper's scheduling loop needs (spec §4.7).
type EpochInfo struct {
	Epoch        uint64
	SlotIndex    uint64
	SlotsInEpoch uint64
	AbsoluteSlot uint64
}

// Progress returns the fraction of the current epoch elapsed, in [0, 1].
func (e EpochInfo) Progress() float64 {
	if e.SlotsInEpoch == 0 {
		return 0
	}
	return float64(e.SlotIndex) / float64(e.SlotsInEpoch)
}

// RPCClient is the minimal read surface the keeper needs from a Solana
// RPC endpoint.
type RPCClient interface {
	GetEpochInfo(ctx context.Context) (EpochInfo, error)
	GetAccountData(ctx context.Context, address [32]byte) ([]byte, error)
	GetMultipleAccountData(ctx context.Context, addresses [][32]byte) ([][]byte, error)
	SendTransaction(ctx context.Context, tx []byte) (signature [64]byte, err error)
	ConfirmTransaction(ctx context.Context, signature [64]byte) (confirmed bool, err error)
}

// Signer authorizes and signs outgoing transactions on the keeper's
// behalf.
type Signer interface {
	PublicKey() [32]byte
	Sign(message []byte) [64]byte
}

// StakePoolClient is the CPI boundary into the external stake-pool
// program the steward directs (spec §1's "opaque external stake-pool
// program").
type StakePoolClient interface {
	ValidatorListLen(ctx context.Context) (int, error)
	TotalLamports(ctx context.Context) (uint64, error)
	ReserveLamports(ctx context.Context) (uint64, error)
	AddValidatorToPool(ctx context.Context, voteAccount [32]byte) error
	RemoveValidatorFromPool(ctx context.Context, voteAccount [32]byte) error
	SetPreferredWithdrawValidator(ctx context.Context, voteAccount [32]byte, clear bool) error
	IncreaseValidatorStake(ctx context.Context, voteAccount [32]byte, lamports uint64) error
	DecreaseValidatorStake(ctx context.Context, voteAccount [32]byte, lamports uint64) error
}

// VoteAccountSource supplies the per-epoch vote-account telemetry
// (activated stake, epoch credits, commission) that feeds validator
// history updates (spec §4.2).
type VoteAccountSource interface {
	VoteAccounts(ctx context.Context) ([]VoteAccountInfo, error)
}

// VoteAccountInfo is one validator's vote-account snapshot for a single
// RPC call.
type VoteAccountInfo struct {
	VoteAccount            [32]byte
	NodePubkey             [32]byte
	ActivatedStakeLamports uint64
	Commission             uint8
	EpochCredits           uint64
	RootSlot               uint64
}

// GossipSource supplies the raw ed25519-verify instruction plus
// preceding-instruction pair the gossip package needs to authenticate a
// CRDS contact-info datum (spec §4.2's gossip-originated IP/version
// telemetry) before it is trusted.
type GossipSource interface {
	PendingContactInfo(ctx context.Context) ([]GossipDatum, error)
}

// GossipDatum bundles one gossip record's verify instruction with the
// ed25519 program ID active at the time it was observed, ready for
// gossip.Verify.
type GossipDatum struct {
	Instruction      gossip.Ed25519VerifyInstruction
	Ed25519ProgramID [32]byte
}

// ValidatorHistoryClient creates the on-chain validator-history account for
// a vote account that does not have one yet (the keeper's
// create-missing-accounts step, spec §4.7).
type ValidatorHistoryClient interface {
	CreateValidatorHistoryAccount(ctx context.Context, voteAccount [32]byte) error
}

// SlotHistorySource supplies the cluster slot-history sysvar as a
// history.SlotBitmap, feeding the cluster-history update operation.
type SlotHistorySource interface {
	SlotHistoryBitmap(ctx context.Context) (history.SlotBitmap, error)
}

// TipDistributionSource supplies one validator's MEV commission and
// MEV-earned lamports for the current epoch, read from its tip-
// distribution account (spec §4.2, SPEC_FULL.md's MEV-earned supplement).
type TipDistributionSource interface {
	TipDistribution(ctx context.Context, voteAccount [32]byte) (commissionBps uint16, earnedLamports uint64, slot uint64, ok bool, err error)
}

// PriorityFeeDistributionSource supplies one validator's priority-fee
// commission and Merkle-root upload authority for the current epoch
// (SPEC_FULL.md's priority-fee distribution feed supplement).
type PriorityFeeDistributionSource interface {
	PriorityFeeDistribution(ctx context.Context, voteAccount [32]byte) (commissionBps uint16, authority historyentry.AuthorityKind, ok bool, err error)
}

// StakeRankingEntry is one validator's permissioned stake-rank snapshot,
// sourced by the oracle authority rather than read directly from a vote
// account.
type StakeRankingEntry struct {
	VoteAccount            [32]byte
	ActivatedStakeLamports uint64
	Rank                   uint32
	Superminority          bool
}

// StakeOracleSource supplies the permissioned stake-ranking snapshot that
// feeds the oracle-gated stake-upload operation (run_stake_upload in
// original_source's keeper_config.rs; requires an oracle authority keypair).
type StakeOracleSource interface {
	StakeRanking(ctx context.Context) ([]StakeRankingEntry, error)
}

// PriorityFeeOracleSource supplies the permissioned priority-fees-earned
// snapshot for the stake-upload feed's priority-fee counterpart.
type PriorityFeeOracleSource interface {
	PriorityFeesEarned(ctx context.Context, voteAccount [32]byte) (uint64, bool, error)
}
