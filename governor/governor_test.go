package governor

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/dual-governance/access"
	"github.com/ruteri/dual-governance/erc712"
	"github.com/ruteri/dual-governance/events"
	"github.com/ruteri/dual-governance/interfaces"
	"github.com/ruteri/dual-governance/ledger"
	"github.com/ruteri/dual-governance/list"
	"github.com/ruteri/dual-governance/registrar"
	"github.com/ruteri/dual-governance/token"
	"github.com/ruteri/dual-governance/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	admin        = common.HexToAddress("0xad")
	governorAddr = common.HexToAddress("0x60")
	vaultAddr    = common.HexToAddress("0x7a")
	proposer     = common.HexToAddress("0x9909")

	// vote token holders
	v1 = common.HexToAddress("0x1001")
	v2 = common.HexToAddress("0x1002")

	// value token holders
	z1 = common.HexToAddress("0x2001")
	z2 = common.HexToAddress("0x2002")
	z3 = common.HexToAddress("0x2003")

	validators = interfaces.KeyFromString("validators")
	candidate  = common.HexToAddress("0xc0ffee")
)

func testParams() Params {
	return Params{
		ProposalFee:             big.NewInt(100),
		MinFee:                  big.NewInt(10),
		MaxFee:                  big.NewInt(1000),
		Reward:                  big.NewInt(5),
		VoteQuorumRatio:         3000,
		ValueQuorumRatio:        2000,
		VotingPeriod:            time.Hour,
		ExecutionWindow:         24 * time.Hour,
		EpochDuration:           24 * time.Hour,
		TargetProposalsPerEpoch: 2,
	}
}

type fixture struct {
	t         *testing.T
	ledger    *ledger.Ledger
	clock     *clock.Mock
	cash      *token.Token
	power     *token.Token
	zero      *token.Token
	registrar *registrar.Registrar
	vault     *vault.Vault
	governor  *Governor
	signer    *ecdsa.PrivateKey
}

type fixtureOption func(cfg *Config)

func withParams(modify func(p *Params)) fixtureOption {
	return func(cfg *Config) { modify(&cfg.Params) }
}

func withRegistrar(r interfaces.RegistryMutator) fixtureOption {
	return func(cfg *Config) { cfg.Registrar = r }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	allocator := access.NewAuthority("admin", access.Static(admin))

	signer, err := crypto.GenerateKey()
	require.NoError(t, err)

	f := &fixture{
		t:      t,
		ledger: ledger.New(clk, logger),
		clock:  clk,
		signer: signer,
		cash:   token.New(token.Config{Address: common.HexToAddress("0xca"), Name: "Cash", Allocator: allocator}),
		power:  token.New(token.Config{Address: common.HexToAddress("0x90"), Name: "Power", Allocator: allocator}),
		zero: token.New(token.Config{
			Address:   common.HexToAddress("0x2e"),
			Name:      "Zero",
			Allocator: allocator,
			Minter:    access.NewAuthority("governor", access.Static(governorAddr)),
		}),
		registrar: registrar.New(registrar.Config{
			Address: common.HexToAddress("0x4e6"),
			Admin:   admin,
			Log:     logger,
		}, list.NewFactory(common.HexToAddress("0xfac"))),
	}
	f.vault, err = vault.New(vault.Config{
		Address:  vaultAddr,
		Governor: governorAddr,
		Cash:     f.cash,
		Payment:  f.zero,
		Auction: vault.AuctionParams{
			StartPrice: big.NewInt(1000),
			FloorPrice: big.NewInt(1),
			Period:     time.Hour,
			Duration:   time.Hour,
		},
		Log: logger,
	})
	require.NoError(t, err)

	cfg := Config{
		Address:    governorAddr,
		ChainID:    big.NewInt(1),
		Start:      clk.Now(),
		CashToken:  f.cash,
		VoteToken:  f.power,
		ValueToken: f.zero,
		Registrar:  f.registrar,
		Vault:      f.vault,
		Params:     testParams(),
		Log:        logger,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	f.governor, err = New(cfg)
	require.NoError(t, err)

	signerAddr := crypto.PubkeyToAddress(signer.PublicKey)
	f.mustApply(admin, func(tx *ledger.Tx) error {
		for _, err := range []error{
			f.registrar.Initialize(tx, governorAddr),
			f.cash.Allocate(tx, map[common.Address]*big.Int{proposer: big.NewInt(10_000)}),
			f.power.Allocate(tx, map[common.Address]*big.Int{
				v1:         big.NewInt(350),
				v2:         big.NewInt(640),
				signerAddr: big.NewInt(10),
			}),
			f.zero.Allocate(tx, map[common.Address]*big.Int{
				z1: big.NewInt(150),
				z2: big.NewInt(70),
				z3: big.NewInt(780),
			}),
		} {
			if err != nil {
				return err
			}
		}
		return nil
	})
	f.mustApply(proposer, func(tx *ledger.Tx) error {
		return f.cash.Approve(tx, governorAddr, big.NewInt(10_000))
	})
	return f
}

func (f *fixture) apply(sender common.Address, op func(tx *ledger.Tx) error) (*ledger.Receipt, error) {
	return f.ledger.Apply(context.Background(), sender, op)
}

func (f *fixture) mustApply(sender common.Address, op func(tx *ledger.Tx) error) *ledger.Receipt {
	receipt, err := f.apply(sender, op)
	require.NoError(f.t, err)
	return receipt
}

func (f *fixture) propose(m interfaces.Mutation) (common.Hash, error) {
	var id common.Hash
	_, err := f.apply(proposer, func(tx *ledger.Tx) error {
		var err error
		id, err = f.governor.Propose(tx, m, f.governor.ProposalFee(tx.Time()))
		return err
	})
	return id, err
}

func (f *fixture) mustPropose(m interfaces.Mutation) common.Hash {
	id, err := f.propose(m)
	require.NoError(f.t, err)
	return id
}

func (f *fixture) vote(voter common.Address, id common.Hash, support interfaces.Support, track interfaces.Track) error {
	_, err := f.apply(voter, func(tx *ledger.Tx) error {
		_, err := f.governor.CastVote(tx, id, support, track)
		return err
	})
	return err
}

func (f *fixture) resolve(id common.Hash) (interfaces.ProposalState, error) {
	var state interfaces.ProposalState
	_, err := f.apply(admin, func(tx *ledger.Tx) error {
		var err error
		state, err = f.governor.Resolve(tx, id)
		return err
	})
	return state, err
}

func addCandidate() interfaces.Mutation {
	return interfaces.Mutation{Kind: interfaces.AddToList, List: validators, Account: candidate}
}

func requireBig(t *testing.T, expected int64, actual *big.Int) {
	t.Helper()
	require.Equal(t, 0, big.NewInt(expected).Cmp(actual), "expected %d, got %s", expected, actual)
}

func eventNames(t *testing.T, logs []*types.Log) []string {
	registry := events.NewRegistry(ABI, registrar.ABI, vault.ABI, token.ABI)
	names := make([]string, 0, len(logs))
	for _, lg := range logs {
		decoded, err := registry.Decode(lg)
		require.NoError(t, err)
		names = append(names, decoded.Name)
	}
	return names
}

// TestDualQuorumScenario tests that a proposal needs both tracks to pass.
func TestDualQuorumScenario(t *testing.T) {
	tests := []struct {
		name        string
		valueVoters []common.Address
		expected    interfaces.ProposalState
	}{
		{"value track short of quorum", []common.Address{z1}, interfaces.Defeated},
		{"both tracks clear quorum", []common.Address{z1, z2}, interfaces.Executed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			id := f.mustPropose(addCandidate())

			p, err := f.governor.Proposal(id, f.clock.Now())
			require.NoError(t, err)
			requireBig(t, 1000, p.Snapshot.TotalSupply[interfaces.VoteTrack])
			requireBig(t, 1000, p.Snapshot.TotalSupply[interfaces.ValueTrack])

			require.NoError(t, f.vote(v1, id, interfaces.For, interfaces.VoteTrack))
			for _, voter := range tt.valueVoters {
				require.NoError(t, f.vote(voter, id, interfaces.For, interfaces.ValueTrack))
			}

			f.clock.Add(time.Hour)
			state, err := f.governor.State(id, f.clock.Now())
			require.NoError(t, err)
			if tt.expected == interfaces.Executed {
				assert.Equal(t, interfaces.Succeeded, state)
			} else {
				assert.Equal(t, tt.expected, state)
			}

			state, err = f.resolve(id)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, state)
			assert.Equal(t, tt.expected == interfaces.Executed, f.registrar.ListContains(validators, candidate))
		})
	}
}

func TestDualQuorum(t *testing.T) {
	supply := func(vote, value int64) interfaces.Snapshot {
		return interfaces.Snapshot{TotalSupply: [interfaces.NumTracks]*big.Int{big.NewInt(vote), big.NewInt(value)}}
	}
	tally := func(a, b int64) [interfaces.NumTracks]*big.Int {
		return [interfaces.NumTracks]*big.Int{big.NewInt(a), big.NewInt(b)}
	}
	ratios := [interfaces.NumTracks]uint16{3000, 2000}

	tests := []struct {
		name     string
		snapshot interfaces.Snapshot
		votesFor [interfaces.NumTracks]*big.Int
		against  [interfaces.NumTracks]*big.Int
		expected error
	}{
		{"both pass", supply(1000, 1000), tally(350, 220), tally(0, 0), nil},
		{"exact quorum", supply(1000, 1000), tally(300, 200), tally(0, 0), nil},
		{"vote track short", supply(1000, 1000), tally(299, 900), tally(0, 0), interfaces.ErrQuorumNotMet},
		{"value track short", supply(1000, 1000), tally(350, 150), tally(0, 0), interfaces.ErrQuorumNotMet},
		{"tie on value track", supply(1000, 1000), tally(350, 300), tally(0, 300), interfaces.ErrMajorityNotMet},
		{"against wins vote track", supply(1000, 1000), tally(400, 300), tally(500, 0), interfaces.ErrMajorityNotMet},
		{"empty supply", supply(0, 0), tally(0, 0), tally(0, 0), interfaces.ErrMajorityNotMet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &interfaces.Proposal{Snapshot: tt.snapshot, VotesFor: tt.votesFor, VotesAgainst: tt.against}
			err := DualQuorum(p, ratios)
			if tt.expected == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.expected)
			}
		})
	}
}

// TestDualQuorumSymmetric tests that neither track can pass a proposal alone.
func TestDualQuorumSymmetric(t *testing.T) {
	ratios := [interfaces.NumTracks]uint16{5000, 5000}
	for a := int64(0); a <= 10; a++ {
		for b := int64(0); b <= 10; b++ {
			p := &interfaces.Proposal{
				Snapshot:     interfaces.Snapshot{TotalSupply: [interfaces.NumTracks]*big.Int{big.NewInt(10), big.NewInt(10)}},
				VotesFor:     [interfaces.NumTracks]*big.Int{big.NewInt(a), big.NewInt(b)},
				VotesAgainst: [interfaces.NumTracks]*big.Int{big.NewInt(10 - a), big.NewInt(10 - b)},
			}
			passes := a >= 5 && a > 10-a && b >= 5 && b > 10-b
			assert.Equal(t, passes, DualQuorum(p, ratios) == nil, "for %d/%d", a, b)
		}
	}
}

func TestQuorumVotes(t *testing.T) {
	requireBig(t, 300, QuorumVotes(big.NewInt(1000), 3000))
	requireBig(t, 1, QuorumVotes(big.NewInt(1), 1))
	requireBig(t, 0, QuorumVotes(big.NewInt(1000), 0))
}

// TestProposeFeeExactness tests that only the exact current fee is accepted.
func TestProposeFeeExactness(t *testing.T) {
	f := newFixture(t)

	for _, offered := range []*big.Int{nil, big.NewInt(99), big.NewInt(101), big.NewInt(0)} {
		_, err := f.apply(proposer, func(tx *ledger.Tx) error {
			_, err := f.governor.Propose(tx, addCandidate(), offered)
			return err
		})
		require.ErrorIs(t, err, interfaces.ErrInsufficientFee)
		var mismatch *interfaces.FeeMismatchError
		require.True(t, errors.As(err, &mismatch))
		requireBig(t, 100, mismatch.Expected)
	}
	assert.Empty(t, f.governor.Proposals(f.clock.Now()))
	assert.Equal(t, uint64(0), f.governor.EpochState(f.clock.Now()).ProposalCount)

	id := f.mustPropose(addCandidate())
	requireBig(t, 9_900, f.cash.BalanceOf(proposer))
	requireBig(t, 100, f.cash.BalanceOf(governorAddr))
	assert.Equal(t, uint64(1), f.governor.EpochState(f.clock.Now()).ProposalCount)

	p, err := f.governor.Proposal(id, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, proposer, p.Proposer)
	requireBig(t, 100, p.Fee)
	assert.Equal(t, interfaces.Active, p.State)
}

func TestProposeInvalidMutation(t *testing.T) {
	f := newFixture(t)
	for _, m := range []interfaces.Mutation{
		{Kind: interfaces.AddToList, Account: candidate},
		{Kind: interfaces.RemoveFromList, List: validators},
		{Kind: interfaces.UpdateConfig},
		{Kind: 42},
	} {
		_, err := f.propose(m)
		assert.ErrorIs(t, err, interfaces.ErrInvalidMutation)
	}
}

func TestProposeWithoutAllowanceReverts(t *testing.T) {
	f := newFixture(t)
	f.mustApply(proposer, func(tx *ledger.Tx) error {
		return f.cash.Approve(tx, governorAddr, big.NewInt(0))
	})
	_, err := f.propose(addCandidate())
	require.ErrorIs(t, err, interfaces.ErrInsufficientAllowance)
	assert.Empty(t, f.governor.Proposals(f.clock.Now()))
	assert.Equal(t, uint64(0), f.governor.EpochState(f.clock.Now()).ProposalCount)
}

func TestVotingWindow(t *testing.T) {
	f := newFixture(t, withParams(func(p *Params) { p.VotingDelay = 10 * time.Minute }))
	id := f.mustPropose(addCandidate())

	state, err := f.governor.State(id, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, interfaces.Pending, state)
	assert.ErrorIs(t, f.vote(v1, id, interfaces.For, interfaces.VoteTrack), interfaces.ErrVotingWindowNotOpen)

	f.clock.Add(10 * time.Minute)
	require.NoError(t, f.vote(v1, id, interfaces.For, interfaces.VoteTrack))
	_, err = f.resolve(id)
	assert.ErrorIs(t, err, interfaces.ErrVotingInProgress)

	f.clock.Add(time.Hour)
	assert.ErrorIs(t, f.vote(v2, id, interfaces.For, interfaces.VoteTrack), interfaces.ErrVotingWindowClosed)

	state, err = f.resolve(id)
	require.NoError(t, err)
	assert.Equal(t, interfaces.Defeated, state)

	_, err = f.resolve(id)
	assert.ErrorIs(t, err, interfaces.ErrAlreadyResolved)

	_, err = f.resolve(common.HexToHash("0x1234"))
	assert.ErrorIs(t, err, interfaces.ErrProposalNotFound)
}

// TestVoteOverwrite tests that a re-vote replaces the previous choice.
func TestVoteOverwrite(t *testing.T) {
	f := newFixture(t)
	id := f.mustPropose(addCandidate())

	require.NoError(t, f.vote(v1, id, interfaces.For, interfaces.VoteTrack))
	require.NoError(t, f.vote(v1, id, interfaces.Against, interfaces.VoteTrack))

	p, err := f.governor.Proposal(id, f.clock.Now())
	require.NoError(t, err)
	requireBig(t, 0, p.VotesFor[interfaces.VoteTrack])
	requireBig(t, 350, p.VotesAgainst[interfaces.VoteTrack])

	ballot, ok := f.governor.Ballot(id, interfaces.VoteTrack, v1)
	require.True(t, ok)
	assert.Equal(t, interfaces.Against, ballot.Support)
	requireBig(t, 350, ballot.Weight)

	// participation is recorded once per proposal
	requireBig(t, 350, f.vault.Participation(v1))
}

func TestVoteRequiresPower(t *testing.T) {
	f := newFixture(t)
	id := f.mustPropose(addCandidate())

	// v1 holds no value token, z1 holds no vote token
	assert.ErrorIs(t, f.vote(v1, id, interfaces.For, interfaces.ValueTrack), interfaces.ErrNoVotingPower)
	assert.ErrorIs(t, f.vote(z1, id, interfaces.For, interfaces.VoteTrack), interfaces.ErrNoVotingPower)
	assert.ErrorIs(t, f.vote(v1, id, interfaces.Support(7), interfaces.VoteTrack), interfaces.ErrInvalidVote)
	assert.ErrorIs(t, f.vote(v1, common.HexToHash("0x01"), interfaces.For, interfaces.VoteTrack), interfaces.ErrProposalNotFound)
}

// TestSnapshotImmunity tests that transfers after creation do not change voting weight or quorum.
func TestSnapshotImmunity(t *testing.T) {
	f := newFixture(t)
	id := f.mustPropose(addCandidate())

	f.mustApply(v2, func(tx *ledger.Tx) error {
		return f.power.Transfer(tx, v1, big.NewInt(640))
	})
	late := common.HexToAddress("0x1a7e")
	f.mustApply(admin, func(tx *ledger.Tx) error {
		return f.zero.Allocate(tx, map[common.Address]*big.Int{late: big.NewInt(5000)})
	})

	require.NoError(t, f.vote(v1, id, interfaces.For, interfaces.VoteTrack))
	ballot, _ := f.governor.Ballot(id, interfaces.VoteTrack, v1)
	requireBig(t, 350, ballot.Weight)

	require.NoError(t, f.vote(v2, id, interfaces.For, interfaces.VoteTrack))
	assert.ErrorIs(t, f.vote(late, id, interfaces.For, interfaces.ValueTrack), interfaces.ErrNoVotingPower)

	quorum, err := f.governor.Quorum(id, interfaces.ValueTrack)
	require.NoError(t, err)
	requireBig(t, 200, quorum)
}

// TestExecutedProposal tests refund and reward on execution.
func TestExecutedProposal(t *testing.T) {
	f := newFixture(t)
	id := f.mustPropose(addCandidate())
	require.NoError(t, f.vote(v1, id, interfaces.For, interfaces.VoteTrack))
	require.NoError(t, f.vote(z1, id, interfaces.For, interfaces.ValueTrack))
	require.NoError(t, f.vote(z2, id, interfaces.For, interfaces.ValueTrack))
	f.clock.Add(time.Hour)

	receipt := f.mustApply(admin, func(tx *ledger.Tx) error {
		_, err := f.governor.Resolve(tx, id)
		return err
	})
	assert.Contains(t, eventNames(t, receipt.Logs), "AddressAddedToList")
	assert.Contains(t, eventNames(t, receipt.Logs), "ProposalResolved")

	requireBig(t, 10_000, f.cash.BalanceOf(proposer))
	requireBig(t, 0, f.cash.BalanceOf(governorAddr))
	requireBig(t, 5, f.zero.BalanceOf(proposer))
	requireBig(t, 0, f.vault.Unsold())

	p, err := f.governor.Proposal(id, f.clock.Now().Add(365*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, interfaces.Executed, p.State)
	assert.True(t, p.Resolved)
}

// TestDefeatedProposalForfeitsFee tests that the fee goes to the vault.
func TestDefeatedProposalForfeitsFee(t *testing.T) {
	f := newFixture(t)
	id := f.mustPropose(addCandidate())
	require.NoError(t, f.vote(v1, id, interfaces.Against, interfaces.VoteTrack))
	f.clock.Add(time.Hour)

	state, err := f.resolve(id)
	require.NoError(t, err)
	assert.Equal(t, interfaces.Defeated, state)
	requireBig(t, 10_000-100, f.cash.BalanceOf(proposer))
	requireBig(t, 100, f.cash.BalanceOf(vaultAddr))
	requireBig(t, 100, f.vault.Unsold())
	requireBig(t, 100, f.vault.Forfeits(0))
	requireBig(t, 0, f.zero.BalanceOf(proposer))
}

// TestExpiredProposal tests that late resolution forfeits even a passing proposal.
func TestExpiredProposal(t *testing.T) {
	f := newFixture(t)
	id := f.mustPropose(addCandidate())
	require.NoError(t, f.vote(v1, id, interfaces.For, interfaces.VoteTrack))
	require.NoError(t, f.vote(z1, id, interfaces.For, interfaces.ValueTrack))
	require.NoError(t, f.vote(z2, id, interfaces.For, interfaces.ValueTrack))

	f.clock.Add(25 * time.Hour)
	state, err := f.governor.State(id, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, interfaces.Expired, state)

	state, err = f.resolve(id)
	require.NoError(t, err)
	assert.Equal(t, interfaces.Expired, state)
	assert.False(t, f.registrar.ListContains(validators, candidate))
	requireBig(t, 100, f.vault.Unsold())
}

// TestResolveUsesRecordedFee tests that fee handling ignores later fee changes.
func TestResolveUsesRecordedFee(t *testing.T) {
	f := newFixture(t, withParams(func(p *Params) { p.ExecutionWindow = 0 }))
	id := f.mustPropose(addCandidate())
	f.mustPropose(interfaces.Mutation{Kind: interfaces.UpdateConfig, Key: interfaces.KeyFromString("a")})
	f.mustPropose(interfaces.Mutation{Kind: interfaces.UpdateConfig, Key: interfaces.KeyFromString("b")})

	f.clock.Add(24 * time.Hour)
	requireBig(t, 200, f.governor.ProposalFee(f.clock.Now()))

	state, err := f.resolve(id)
	require.NoError(t, err)
	assert.Equal(t, interfaces.Defeated, state)
	requireBig(t, 100, f.vault.Forfeits(0))
}

// TestFeeAdjustment tests doubling after a busy epoch and halving after quiet ones.
func TestFeeAdjustment(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.mustPropose(interfaces.Mutation{Kind: interfaces.UpdateConfig, Key: interfaces.KeyFromString("k"), Value: common.BigToHash(big.NewInt(int64(i)))})
	}

	f.clock.Add(24 * time.Hour)
	state := f.governor.EpochState(f.clock.Now())
	assert.Equal(t, uint64(1), state.Epoch)
	assert.Equal(t, uint64(0), state.ProposalCount)
	requireBig(t, 200, state.CurrentFee)

	var id common.Hash
	receipt := f.mustApply(proposer, func(tx *ledger.Tx) error {
		var err error
		id, err = f.governor.Propose(tx, addCandidate(), big.NewInt(200))
		return err
	})
	assert.Equal(t, "ProposalFeeUpdated", eventNames(t, receipt.Logs)[0])
	p, err := f.governor.Proposal(id, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p.Epoch)

	// epoch 1 had one proposal, epochs 2 and 3 none
	f.clock.Add(3 * 24 * time.Hour)
	state = f.governor.EpochState(f.clock.Now())
	assert.Equal(t, uint64(4), state.Epoch)
	requireBig(t, 25, state.CurrentFee)
	assert.True(t, f.clock.Now().Equal(state.Start))

	// a long quiet stretch floors at the minimum
	f.clock.Add(100 * 24 * time.Hour)
	requireBig(t, 10, f.governor.ProposalFee(f.clock.Now()))
}

func TestNextFee(t *testing.T) {
	min, max := big.NewInt(10), big.NewInt(1000)
	tests := []struct {
		name     string
		fee      int64
		count    uint64
		expected int64
	}{
		{"above target doubles", 100, 5, 200},
		{"at target holds", 100, 2, 100},
		{"below target halves", 100, 1, 50},
		{"doubling capped", 600, 3, 1000},
		{"halving floored", 15, 0, 10},
		{"at max stays", 1000, 9, 1000},
		{"at min stays", 10, 0, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireBig(t, tt.expected, nextFee(big.NewInt(tt.fee), tt.count, 2, min, max))
		})
	}
}

// TestResetPolicy tests that reset proposals are exclusive with other open proposals.
func TestResetPolicy(t *testing.T) {
	f := newFixture(t, withParams(func(p *Params) { p.TargetProposalsPerEpoch = 100 }))
	reset := interfaces.Mutation{Kind: interfaces.Reset}

	id := f.mustPropose(addCandidate())
	_, err := f.propose(reset)
	assert.ErrorIs(t, err, interfaces.ErrResetBlocked)

	f.clock.Add(time.Hour)
	_, err = f.resolve(id)
	require.NoError(t, err)

	resetID := f.mustPropose(reset)
	_, err = f.propose(addCandidate())
	assert.ErrorIs(t, err, interfaces.ErrResetPending)

	// an expired reset no longer blocks
	f.clock.Add(26 * time.Hour)
	f.mustPropose(addCandidate())
	state, err := f.resolve(resetID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.Expired, state)
}

func TestExecuteReset(t *testing.T) {
	f := newFixture(t)
	f.mustApply(governorAddr, func(tx *ledger.Tx) error {
		return f.registrar.AddToList(tx, validators, candidate)
	})

	id := f.mustPropose(interfaces.Mutation{Kind: interfaces.Reset})
	require.NoError(t, f.vote(v1, id, interfaces.For, interfaces.VoteTrack))
	require.NoError(t, f.vote(z1, id, interfaces.For, interfaces.ValueTrack))
	require.NoError(t, f.vote(z2, id, interfaces.For, interfaces.ValueTrack))
	f.clock.Add(time.Hour)

	state, err := f.resolve(id)
	require.NoError(t, err)
	assert.Equal(t, interfaces.Executed, state)
	assert.False(t, f.registrar.ListContains(validators, candidate))
}

// TestResolveExecutionFailureReverts tests that a failing registry call undoes the resolution.
func TestResolveExecutionFailureReverts(t *testing.T) {
	failing := new(registrar.MockRegistry)
	failing.On("AddToList", governorAddr, validators, candidate).Return(interfaces.ErrUnauthorized)

	f := newFixture(t, withRegistrar(failing))
	id := f.mustPropose(addCandidate())
	require.NoError(t, f.vote(v1, id, interfaces.For, interfaces.VoteTrack))
	require.NoError(t, f.vote(z1, id, interfaces.For, interfaces.ValueTrack))
	require.NoError(t, f.vote(z2, id, interfaces.For, interfaces.ValueTrack))
	f.clock.Add(time.Hour)

	_, err := f.resolve(id)
	require.ErrorIs(t, err, interfaces.ErrUnauthorized)

	state, err := f.governor.State(id, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, interfaces.Succeeded, state)
	requireBig(t, 100, f.cash.BalanceOf(governorAddr))
	requireBig(t, 0, f.zero.BalanceOf(proposer))
	failing.AssertExpectations(t)
	failing.AssertNotCalled(t, "Reset", mock.Anything)
}

func (f *fixture) signBallot(id common.Hash, support interfaces.Support, track interfaces.Track, nonce, deadline uint64) []byte {
	digest, err := f.governor.BallotDigest(id, support, track, nonce, deadline)
	require.NoError(f.t, err)
	sig, err := erc712.Sign(digest, f.signer)
	require.NoError(f.t, err)
	return sig
}

func TestCastVoteBySig(t *testing.T) {
	f := newFixture(t)
	id := f.mustPropose(addCandidate())
	voter := crypto.PubkeyToAddress(f.signer.PublicKey)
	deadline := uint64(f.clock.Now().Add(time.Hour).Unix())

	castBySig := func(claimed common.Address, nonce, deadline uint64, sig []byte) error {
		_, err := f.apply(admin, func(tx *ledger.Tx) error {
			_, err := f.governor.CastVoteBySig(tx, claimed, id, interfaces.For, interfaces.VoteTrack, nonce, deadline, sig)
			return err
		})
		return err
	}

	sig := f.signBallot(id, interfaces.For, interfaces.VoteTrack, 0, deadline)
	require.NoError(t, castBySig(voter, 0, deadline, sig))
	assert.Equal(t, uint64(1), f.governor.Nonces(voter))

	ballot, ok := f.governor.Ballot(id, interfaces.VoteTrack, voter)
	require.True(t, ok)
	requireBig(t, 10, ballot.Weight)

	t.Run("replay", func(t *testing.T) {
		assert.ErrorIs(t, castBySig(voter, 0, deadline, sig), interfaces.ErrReusedNonce)
	})
	t.Run("wrong account", func(t *testing.T) {
		fresh := f.signBallot(id, interfaces.For, interfaces.VoteTrack, 1, deadline)
		assert.ErrorIs(t, castBySig(v1, 1, deadline, fresh), interfaces.ErrSignerMismatch)
	})
	t.Run("expired", func(t *testing.T) {
		past := uint64(f.clock.Now().Add(-time.Second).Unix())
		stale := f.signBallot(id, interfaces.For, interfaces.VoteTrack, 1, past)
		assert.ErrorIs(t, castBySig(voter, 1, past, stale), interfaces.ErrSignatureExpired)
	})
	t.Run("tampered", func(t *testing.T) {
		fresh := f.signBallot(id, interfaces.Against, interfaces.VoteTrack, 1, deadline)
		err := castBySig(voter, 1, deadline, fresh)
		assert.True(t, errors.Is(err, interfaces.ErrSignerMismatch) || errors.Is(err, interfaces.ErrInvalidSignature))
	})
	t.Run("raw recovery id", func(t *testing.T) {
		fresh := f.signBallot(id, interfaces.For, interfaces.VoteTrack, 1, deadline)
		fresh[64] -= 27
		assert.ErrorIs(t, castBySig(voter, 1, deadline, fresh), interfaces.ErrInvalidSignature)
	})
	assert.Equal(t, uint64(1), f.governor.Nonces(voter))
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(p *Params)
	}{
		{"fee below min", func(p *Params) { p.ProposalFee = big.NewInt(5) }},
		{"fee above max", func(p *Params) { p.ProposalFee = big.NewInt(5000) }},
		{"zero min", func(p *Params) { p.MinFee = big.NewInt(0) }},
		{"ratio above scale", func(p *Params) { p.VoteQuorumRatio = 10001 }},
		{"negative reward", func(p *Params) { p.Reward = big.NewInt(-1) }},
		{"negative delay", func(p *Params) { p.VotingDelay = -time.Second }},
	}
	require.NoError(t, testParams().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams()
			tt.modify(&p)
			assert.ErrorIs(t, p.WithDefaults().Validate(), interfaces.ErrInvalidParams)
		})
	}
}
