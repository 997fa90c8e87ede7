package interfaces

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/dual-governance/ledger"
)

// AuthorizedMutator decides whether the caller of an operation may mutate
// the state guarded by it.
type AuthorizedMutator interface {
	// Authorize returns an error wrapping ErrUnauthorized if tx.Sender()
	// does not hold the role.
	Authorize(tx *ledger.Tx) error
}

// Token is the minimal fungible-ledger capability used by the protocol.
// Transfers act on behalf of tx.Sender().
type Token interface {
	Address() common.Address
	Decimals() uint8
	TotalSupply() *big.Int
	BalanceOf(account common.Address) *big.Int
	Allowance(owner, spender common.Address) *big.Int

	Transfer(tx *ledger.Tx, to common.Address, amount *big.Int) error
	TransferFrom(tx *ledger.Tx, from, to common.Address, amount *big.Int) error
	Approve(tx *ledger.Tx, spender common.Address, amount *big.Int) error
}

// VotingToken is a Token with historical voting power.
type VotingToken interface {
	Token

	// PastVotes returns the voting power of account as recorded strictly
	// before timepoint.
	PastVotes(account common.Address, timepoint uint64) *big.Int

	// PastTotalSupply returns the total supply recorded strictly before timepoint.
	PastTotalSupply(timepoint uint64) *big.Int
}

// Mintable tokens can issue new supply to an account.
type Mintable interface {
	Mint(tx *ledger.Tx, to common.Address, amount *big.Int) error
}

// RewardToken is the value token: votable and mintable for proposer rewards.
type RewardToken interface {
	VotingToken
	Mintable
}

// RegistryReader exposes the registry's read surface.
type RegistryReader interface {
	Get(key common.Hash) common.Hash
	GetMany(keys []common.Hash) []common.Hash
	ListContains(list common.Hash, account common.Address) bool
	ListContainsAll(list common.Hash, accounts []common.Address) bool
	ListMembers(list common.Hash) []common.Address
}

// RegistryMutator applies governed registry changes.
type RegistryMutator interface {
	AddToList(tx *ledger.Tx, list common.Hash, account common.Address) error
	RemoveFromList(tx *ledger.Tx, list common.Hash, account common.Address) error
	UpdateConfig(tx *ledger.Tx, key, value common.Hash) error
	Reset(tx *ledger.Tx) error
}

// Registry combines both registry surfaces.
type Registry interface {
	RegistryReader
	RegistryMutator
}

// ForfeitSink receives forfeited proposal fees and reward participation.
type ForfeitSink interface {
	Address() common.Address

	// DepositForfeit accounts for amount of cash already transferred to the sink.
	DepositForfeit(tx *ledger.Tx, epoch uint64, amount *big.Int) error

	// RecordParticipation credits weight to voter for the current reward period.
	RecordParticipation(tx *ledger.Tx, voter common.Address, weight *big.Int) error
}

// SignatureVerifier authenticates off-chain signed typed data and consumes
// per-account nonces.
type SignatureVerifier interface {
	DomainSeparator() common.Hash
	Nonces(account common.Address) uint64

	// Verify checks that sig is account's signature over structHash for
	// the current nonce, and advances the nonce.
	Verify(tx *ledger.Tx, account common.Address, structHash common.Hash, nonce, deadline uint64, sig []byte) error
}
