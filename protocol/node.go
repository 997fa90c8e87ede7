package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ruteri/dual-governance/deployer"
	"github.com/ruteri/dual-governance/governor"
	"github.com/ruteri/dual-governance/interfaces"
	"github.com/ruteri/dual-governance/ledger"
	"github.com/ruteri/dual-governance/list"
	"github.com/ruteri/dual-governance/registrar"
	"github.com/ruteri/dual-governance/token"
	"github.com/ruteri/dual-governance/vault"
)

// Node hosts a bootstrapped protocol and exposes its operations to
// transports. Every write is one ledger operation sent by the given
// account; reads see a consistent state between operations.
type Node struct {
	ledger  *ledger.Ledger
	genesis Genesis

	cash, power, zero *token.Token

	factory   *list.Factory
	registrar *registrar.Registrar
	deployer  *deployer.Deployer
	vault     *vault.Vault
	governor  *governor.Governor

	// genesisLogs are the events of the bootstrap operation, committed
	// before any subscriber could attach.
	genesisLogs []*types.Log

	log *slog.Logger
}

// SignedBallot is a vote authorized by the voter's signature and relayed
// by any account.
type SignedBallot struct {
	Voter     common.Address
	Proposal  common.Hash
	Support   interfaces.Support
	Track     interfaces.Track
	Nonce     uint64
	Deadline  uint64
	Signature []byte
}

// AuctionStatus summarizes the vault.
type AuctionStatus struct {
	Round  *interfaces.AuctionRound
	Price  *big.Int
	Unsold *big.Int
	Carry  *big.Int
}

// TokenBalance is an account's position in one token.
type TokenBalance struct {
	Token     common.Address
	Symbol    string
	Balance   *big.Int
	Votes     *big.Int
	Delegate  common.Address
	Allowance *big.Int
}

// AccountState is everything the node knows about an account.
type AccountState struct {
	Address       common.Address
	Tokens        []TokenBalance
	BallotNonce   uint64
	Participation *big.Int
	Rewards       *big.Int
}

func (n *Node) Ledger() *ledger.Ledger          { return n.ledger }
func (n *Node) Genesis() Genesis                { return n.genesis }
func (n *Node) Governor() *governor.Governor    { return n.governor }
func (n *Node) Registrar() *registrar.Registrar { return n.registrar }
func (n *Node) Vault() *vault.Vault             { return n.vault }
func (n *Node) Deployer() *deployer.Deployer    { return n.deployer }
func (n *Node) ListFactory() *list.Factory      { return n.factory }
func (n *Node) Cash() *token.Token              { return n.cash }
func (n *Node) Power() *token.Token             { return n.power }
func (n *Node) Zero() *token.Token              { return n.zero }
func (n *Node) Now() time.Time                  { return n.ledger.Now() }
func (n *Node) GenesisLogs() []*types.Log       { return n.genesisLogs }

func (n *Node) tokenAt(addr common.Address) *token.Token {
	for _, t := range []*token.Token{n.cash, n.power, n.zero} {
		if t != nil && t.Address() == addr {
			return t
		}
	}
	return nil
}

// Token returns the genesis token at addr.
func (n *Node) Token(addr common.Address) (*token.Token, error) {
	if t := n.tokenAt(addr); t != nil {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ledger.ErrContractNotFound, addr.Hex())
}

func apply[T any](ctx context.Context, n *Node, from common.Address, op func(tx *ledger.Tx) (T, error)) (T, *ledger.Receipt, error) {
	var result T
	receipt, err := n.ledger.Apply(ctx, from, func(tx *ledger.Tx) error {
		var err error
		result, err = op(tx)
		return err
	})
	if err != nil {
		var zero T
		return zero, nil, err
	}
	return result, receipt, nil
}

func read[T any](n *Node, fn func() T) T {
	var result T
	_ = n.ledger.Read(func() error {
		result = fn()
		return nil
	})
	return result
}

// Propose submits a mutation paying fee from the proposer's allowance.
func (n *Node) Propose(ctx context.Context, from common.Address, mutation interfaces.Mutation, fee *big.Int) (common.Hash, *ledger.Receipt, error) {
	return apply(ctx, n, from, func(tx *ledger.Tx) (common.Hash, error) {
		return n.governor.Propose(tx, mutation, fee)
	})
}

// CastVote records from's vote and returns its weight.
func (n *Node) CastVote(ctx context.Context, from common.Address, id common.Hash, support interfaces.Support, track interfaces.Track) (*big.Int, *ledger.Receipt, error) {
	return apply(ctx, n, from, func(tx *ledger.Tx) (*big.Int, error) {
		return n.governor.CastVote(tx, id, support, track)
	})
}

// CastVoteBySig records a signed ballot relayed by relayer.
func (n *Node) CastVoteBySig(ctx context.Context, relayer common.Address, b SignedBallot) (*big.Int, *ledger.Receipt, error) {
	return apply(ctx, n, relayer, func(tx *ledger.Tx) (*big.Int, error) {
		return n.governor.CastVoteBySig(tx, b.Voter, b.Proposal, b.Support, b.Track, b.Nonce, b.Deadline, b.Signature)
	})
}

// Resolve settles proposal id and returns its terminal state.
func (n *Node) Resolve(ctx context.Context, from common.Address, id common.Hash) (interfaces.ProposalState, *ledger.Receipt, error) {
	return apply(ctx, n, from, func(tx *ledger.Tx) (interfaces.ProposalState, error) {
		return n.governor.Resolve(tx, id)
	})
}

// OpenRound starts an auction over the unsold inventory.
func (n *Node) OpenRound(ctx context.Context, from common.Address) (*interfaces.AuctionRound, *ledger.Receipt, error) {
	return apply(ctx, n, from, func(tx *ledger.Tx) (*interfaces.AuctionRound, error) {
		return n.vault.OpenRound(tx)
	})
}

// ExpireRound closes a round whose end has passed.
func (n *Node) ExpireRound(ctx context.Context, from common.Address) (*ledger.Receipt, error) {
	_, receipt, err := apply(ctx, n, from, func(tx *ledger.Tx) (struct{}, error) {
		return struct{}{}, n.vault.ExpireRound(tx)
	})
	return receipt, err
}

// Settle buys the live round for at most maxPayment.
func (n *Node) Settle(ctx context.Context, from common.Address, maxPayment *big.Int) (*interfaces.AuctionRound, *ledger.Receipt, error) {
	return apply(ctx, n, from, func(tx *ledger.Tx) (*interfaces.AuctionRound, error) {
		return n.vault.Settle(tx, maxPayment)
	})
}

// Claim pays out from's accrued rewards.
func (n *Node) Claim(ctx context.Context, from common.Address) (*big.Int, *ledger.Receipt, error) {
	return apply(ctx, n, from, func(tx *ledger.Tx) (*big.Int, error) {
		return n.vault.Claim(tx)
	})
}

// Approve sets from's allowance for spender on tokenAddr.
func (n *Node) Approve(ctx context.Context, from, tokenAddr, spender common.Address, amount *big.Int) (*ledger.Receipt, error) {
	t, err := n.Token(tokenAddr)
	if err != nil {
		return nil, err
	}
	_, receipt, err := apply(ctx, n, from, func(tx *ledger.Tx) (struct{}, error) {
		return struct{}{}, t.Approve(tx, spender, amount)
	})
	return receipt, err
}

// Transfer moves amount of tokenAddr from from to to.
func (n *Node) Transfer(ctx context.Context, from, tokenAddr, to common.Address, amount *big.Int) (*ledger.Receipt, error) {
	t, err := n.Token(tokenAddr)
	if err != nil {
		return nil, err
	}
	_, receipt, err := apply(ctx, n, from, func(tx *ledger.Tx) (struct{}, error) {
		return struct{}{}, t.Transfer(tx, to, amount)
	})
	return receipt, err
}

// Delegate moves from's voting power on tokenAddr to delegatee.
func (n *Node) Delegate(ctx context.Context, from, tokenAddr, delegatee common.Address) (*ledger.Receipt, error) {
	t, err := n.Token(tokenAddr)
	if err != nil {
		return nil, err
	}
	_, receipt, err := apply(ctx, n, from, func(tx *ledger.Tx) (struct{}, error) {
		return struct{}{}, t.Delegate(tx, delegatee)
	})
	return receipt, err
}

// Config returns the values of keys, zero for unset keys.
func (n *Node) Config(keys ...common.Hash) []common.Hash {
	return read(n, func() []common.Hash { return n.registrar.GetMany(keys) })
}

// ListMembers returns the members of list id.
func (n *Node) ListMembers(id common.Hash) []common.Address {
	return read(n, func() []common.Address { return n.registrar.ListMembers(id) })
}

// ListContains reports whether every account is a member of list id.
func (n *Node) ListContains(id common.Hash, accounts ...common.Address) bool {
	return read(n, func() bool { return n.registrar.ListContainsAll(id, accounts) })
}

// Epoch returns the fee epoch as of now.
func (n *Node) Epoch() interfaces.EpochState {
	return read(n, func() interfaces.EpochState { return n.governor.EpochState(n.Now()) })
}

// Proposals returns every proposal with its current state.
func (n *Node) Proposals() []*interfaces.Proposal {
	return read(n, func() []*interfaces.Proposal { return n.governor.Proposals(n.Now()) })
}

// Proposal returns proposal id with its current state.
func (n *Node) Proposal(id common.Hash) (*interfaces.Proposal, error) {
	var p *interfaces.Proposal
	err := n.ledger.Read(func() error {
		var err error
		p, err = n.governor.Proposal(id, n.Now())
		return err
	})
	return p, err
}

// Auction returns the current round, its live price if open, and the
// vault's unsold inventory and carried proceeds.
func (n *Node) Auction() AuctionStatus {
	return read(n, func() AuctionStatus {
		status := AuctionStatus{Unsold: n.vault.Unsold(), Carry: n.vault.Carry()}
		if r, ok := n.vault.CurrentRound(); ok {
			status.Round = r
		}
		if price, err := n.vault.CurrentPrice(n.Now()); err == nil {
			status.Price = price
		}
		return status
	})
}

// Account returns account's balances, votes and governor allowances in
// every token, together with its ballot nonce and vault position.
func (n *Node) Account(account common.Address) AccountState {
	return read(n, func() AccountState {
		state := AccountState{
			Address:       account,
			BallotNonce:   n.governor.Nonces(account),
			Participation: n.vault.Participation(account),
			Rewards:       n.vault.Rewards(account),
		}
		for _, t := range []*token.Token{n.cash, n.power, n.zero} {
			state.Tokens = append(state.Tokens, TokenBalance{
				Token:     t.Address(),
				Symbol:    t.Symbol(),
				Balance:   t.BalanceOf(account),
				Votes:     t.GetVotes(account),
				Delegate:  t.Delegates(account),
				Allowance: t.Allowance(account, n.governor.Address()),
			})
		}
		return state
	})
}
