package governor

import (
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/dual-governance/erc712"
	"github.com/ruteri/dual-governance/events"
	"github.com/ruteri/dual-governance/interfaces"
	"github.com/ruteri/dual-governance/ledger"
)

// ABI declares the events emitted by the governor.
var ABI = events.MustParse(`[
	{"type":"event","name":"ProposalCreated","inputs":[
		{"name":"proposalId","type":"bytes32","indexed":true},
		{"name":"proposer","type":"address","indexed":true},
		{"name":"kind","type":"uint8","indexed":false},
		{"name":"mutationHash","type":"bytes32","indexed":false},
		{"name":"fee","type":"uint256","indexed":false},
		{"name":"epoch","type":"uint256","indexed":false},
		{"name":"voteStart","type":"uint256","indexed":false},
		{"name":"voteEnd","type":"uint256","indexed":false}]},
	{"type":"event","name":"VoteCast","inputs":[
		{"name":"voter","type":"address","indexed":true},
		{"name":"proposalId","type":"bytes32","indexed":true},
		{"name":"track","type":"uint8","indexed":false},
		{"name":"support","type":"uint8","indexed":false},
		{"name":"weight","type":"uint256","indexed":false}]},
	{"type":"event","name":"ProposalResolved","inputs":[
		{"name":"proposalId","type":"bytes32","indexed":true},
		{"name":"state","type":"uint8","indexed":false}]},
	{"type":"event","name":"ProposalFeeUpdated","inputs":[
		{"name":"epoch","type":"uint256","indexed":true},
		{"name":"oldFee","type":"uint256","indexed":false},
		{"name":"newFee","type":"uint256","indexed":false}]}
]`)

// BallotType is the typed-data struct signed for CastVoteBySig.
const BallotType = "Ballot(bytes32 proposalId,uint8 support,uint8 track,uint256 nonce,uint256 deadline)"

var (
	ballotTypeHash = erc712.TypeHash(BallotType)
	ballotArgs     = erc712.Arguments("bytes32", "bytes32", "uint8", "uint8", "uint256", "uint256")
)

type ballotKey struct {
	proposal common.Hash
	track    interfaces.Track
	voter    common.Address
}

// Governor runs the proposal lifecycle and the proposal fee economy.
type Governor struct {
	address common.Address
	start   time.Time
	params  Params
	ratios  [interfaces.NumTracks]uint16
	log     *slog.Logger

	cash       interfaces.Token
	voteToken  interfaces.VotingToken
	valueToken interfaces.RewardToken
	registrar  interfaces.RegistryMutator
	vault      interfaces.ForfeitSink
	signatures *erc712.Verifier

	epoch     *ledger.Value[interfaces.EpochState]
	nonce     *ledger.Value[uint64]
	proposals *ledger.Map[common.Hash, *interfaces.Proposal]
	order     *ledger.Value[[]common.Hash]
	ballots   *ledger.Map[ballotKey, interfaces.Ballot]

	// open holds unresolved proposals.
	open *ledger.Map[common.Hash, struct{}]
}

// New creates a governor. Epoch zero starts at cfg.Start.
func New(cfg Config) (*Governor, error) {
	params := cfg.Params.WithDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if cfg.CashToken == nil || cfg.VoteToken == nil || cfg.ValueToken == nil || cfg.Registrar == nil || cfg.Vault == nil {
		return nil, fmt.Errorf("%w: governor collaborators must be set", interfaces.ErrInvalidParams)
	}

	g := &Governor{
		address:    cfg.Address,
		start:      cfg.Start,
		params:     params,
		ratios:     params.Ratios(),
		log:        cfg.Log,
		cash:       cfg.CashToken,
		voteToken:  cfg.VoteToken,
		valueToken: cfg.ValueToken,
		registrar:  cfg.Registrar,
		vault:      cfg.Vault,
		signatures: erc712.NewVerifier(erc712.Domain{
			Name:              "DualGovernor",
			Version:           "1",
			ChainID:           cfg.ChainID,
			VerifyingContract: cfg.Address,
		}),
		nonce:     ledger.NewValue[uint64](0),
		proposals: ledger.NewMap[common.Hash, *interfaces.Proposal](),
		order:     ledger.NewValue[[]common.Hash](nil),
		ballots:   ledger.NewMap[ballotKey, interfaces.Ballot](),
		open:      ledger.NewMap[common.Hash, struct{}](),
	}
	start, end := g.epochBounds(0)
	g.epoch = ledger.NewValue(interfaces.EpochState{
		Start:      start,
		End:        end,
		CurrentFee: new(big.Int).Set(params.ProposalFee),
		MinFee:     new(big.Int).Set(params.MinFee),
		MaxFee:     new(big.Int).Set(params.MaxFee),
	})
	return g, nil
}

func (g *Governor) Address() common.Address { return g.address }
func (g *Governor) Params() Params          { return g.params }

// Propose creates a proposal to apply mutation and escrows feePayment,
// which must equal the current fee exactly. The proposer must have
// approved the governor for the fee on the cash token.
func (g *Governor) Propose(tx *ledger.Tx, mutation interfaces.Mutation, feePayment *big.Int) (common.Hash, error) {
	if err := mutation.Validate(); err != nil {
		return common.Hash{}, err
	}
	now := tx.Time()
	if err := g.rollover(tx, now); err != nil {
		return common.Hash{}, err
	}

	epoch := g.epoch.Get()
	if feePayment == nil || feePayment.Cmp(epoch.CurrentFee) != 0 {
		return common.Hash{}, &interfaces.FeeMismatchError{Expected: new(big.Int).Set(epoch.CurrentFee), Offered: feePayment}
	}
	if err := g.checkResetPolicy(mutation, now); err != nil {
		return common.Hash{}, err
	}

	proposer := tx.Sender()
	nonce := g.nonce.Get()
	id := crypto.Keccak256Hash(
		g.address.Bytes(),
		proposer.Bytes(),
		common.BigToHash(new(big.Int).SetUint64(nonce)).Bytes(),
		mutation.Hash().Bytes(),
	)

	timepoint := tx.Height()
	voteStart := now.Add(g.params.VotingDelay)
	p := &interfaces.Proposal{
		ID:        id,
		Mutation:  mutation,
		Proposer:  proposer,
		Fee:       new(big.Int).Set(feePayment),
		Epoch:     epoch.Epoch,
		Created:   now,
		VoteStart: voteStart,
		VoteEnd:   voteStart.Add(g.params.VotingPeriod),
		Snapshot: interfaces.Snapshot{
			Timepoint: timepoint,
			TotalSupply: [interfaces.NumTracks]*big.Int{
				interfaces.VoteTrack:  g.voteToken.PastTotalSupply(timepoint),
				interfaces.ValueTrack: g.valueToken.PastTotalSupply(timepoint),
			},
		},
		VotesFor:     [interfaces.NumTracks]*big.Int{new(big.Int), new(big.Int)},
		VotesAgainst: [interfaces.NumTracks]*big.Int{new(big.Int), new(big.Int)},
		State:        interfaces.Active,
	}
	if g.params.VotingDelay > 0 {
		p.State = interfaces.Pending
	}

	g.nonce.Set(tx, nonce+1)
	g.proposals.Set(tx, id, p)
	g.order.Set(tx, append(append([]common.Hash(nil), g.order.Get()...), id))
	g.open.Set(tx, id, struct{}{})
	epoch.ProposalCount++
	g.epoch.Set(tx, epoch)

	if err := g.emit(tx, "ProposalCreated", id, proposer, uint8(mutation.Kind), mutation.Hash(), p.Fee,
		new(big.Int).SetUint64(p.Epoch), big.NewInt(p.VoteStart.Unix()), big.NewInt(p.VoteEnd.Unix())); err != nil {
		return common.Hash{}, err
	}

	if err := g.cash.TransferFrom(tx.WithSender(g.address), proposer, g.address, p.Fee); err != nil {
		return common.Hash{}, fmt.Errorf("escrowing proposal fee: %w", err)
	}

	g.log.Info("Proposal created", "id", id, "proposer", proposer, "mutation", mutation.Kind, "fee", p.Fee, "epoch", p.Epoch)
	return id, nil
}

// rollover persists any epoch transitions up to now.
func (g *Governor) rollover(tx *ledger.Tx, now time.Time) error {
	previous := g.epoch.Get()
	next := g.advance(previous, now)
	if next.Epoch == previous.Epoch {
		return nil
	}
	g.epoch.Set(tx, next)
	if next.CurrentFee.Cmp(previous.CurrentFee) == 0 {
		return nil
	}
	g.log.Info("Proposal fee updated", "epoch", next.Epoch, "previousCount", previous.ProposalCount, "oldFee", previous.CurrentFee, "newFee", next.CurrentFee)
	return g.emit(tx, "ProposalFeeUpdated", new(big.Int).SetUint64(next.Epoch), previous.CurrentFee, next.CurrentFee)
}

// checkResetPolicy keeps resets exclusive with every other open proposal.
// Proposals past their execution window no longer count as open.
func (g *Governor) checkResetPolicy(mutation interfaces.Mutation, now time.Time) error {
	var open, resets int
	g.open.Range(func(id common.Hash, _ struct{}) bool {
		p, _ := g.proposals.Get(id)
		if expired(p, g.params.ExecutionWindow, now) {
			return true
		}
		open++
		if p.Mutation.Kind == interfaces.Reset {
			resets++
		}
		return true
	})
	switch {
	case resets > 0:
		return interfaces.ErrResetPending
	case mutation.Kind == interfaces.Reset && open > 0:
		return fmt.Errorf("%w: %d open", interfaces.ErrResetBlocked, open)
	}
	return nil
}

// CastVote records the caller's vote on track. A later vote by the same
// voter on the same track replaces the earlier one.
func (g *Governor) CastVote(tx *ledger.Tx, id common.Hash, support interfaces.Support, track interfaces.Track) (*big.Int, error) {
	return g.castVote(tx, tx.Sender(), id, support, track)
}

// CastVoteBySig records a vote signed off-line by voter. The signature
// covers the Ballot struct and consumes voter's current nonce.
func (g *Governor) CastVoteBySig(tx *ledger.Tx, voter common.Address, id common.Hash, support interfaces.Support, track interfaces.Track, nonce, deadline uint64, sig []byte) (*big.Int, error) {
	structHash, err := BallotHash(id, support, track, nonce, deadline)
	if err != nil {
		return nil, err
	}
	if err := g.signatures.Verify(tx, voter, structHash, nonce, deadline, sig); err != nil {
		return nil, err
	}
	return g.castVote(tx, voter, id, support, track)
}

func (g *Governor) castVote(tx *ledger.Tx, voter common.Address, id common.Hash, support interfaces.Support, track interfaces.Track) (*big.Int, error) {
	if !support.Valid() || !track.Valid() {
		return nil, fmt.Errorf("%w: support %d, track %d", interfaces.ErrInvalidVote, support, track)
	}
	stored, ok := g.proposals.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrProposalNotFound, id.Hex())
	}
	now := tx.Time()
	if now.Before(stored.VoteStart) {
		return nil, fmt.Errorf("%w: opens at %s", interfaces.ErrVotingWindowNotOpen, stored.VoteStart)
	}
	if stored.Resolved || !now.Before(stored.VoteEnd) {
		return nil, fmt.Errorf("%w: closed at %s", interfaces.ErrVotingWindowClosed, stored.VoteEnd)
	}

	weight := g.tokenFor(track).PastVotes(voter, stored.Snapshot.Timepoint)
	if weight.Sign() == 0 {
		return nil, interfaces.ErrNoVotingPower
	}

	p := stored.Copy()
	p.State = interfaces.Active
	key := ballotKey{proposal: id, track: track, voter: voter}
	previous, revote := g.ballots.Get(key)
	if revote {
		tally(p, previous.Support, track).Sub(tally(p, previous.Support, track), previous.Weight)
	}
	tally(p, support, track).Add(tally(p, support, track), weight)
	g.proposals.Set(tx, id, p)
	g.ballots.Set(tx, key, interfaces.Ballot{Support: support, Weight: new(big.Int).Set(weight)})

	if err := g.emit(tx, "VoteCast", voter, id, uint8(track), uint8(support), weight); err != nil {
		return nil, err
	}
	if !revote && track == interfaces.VoteTrack {
		if err := g.vault.RecordParticipation(tx.WithSender(g.address), voter, weight); err != nil {
			return nil, fmt.Errorf("recording participation: %w", err)
		}
	}

	g.log.Debug("Vote cast", "proposal", id, "voter", voter, "track", track, "support", support, "weight", weight, "revote", revote)
	return weight, nil
}

func tally(p *interfaces.Proposal, support interfaces.Support, track interfaces.Track) *big.Int {
	if support == interfaces.For {
		return p.VotesFor[track]
	}
	return p.VotesAgainst[track]
}

func (g *Governor) tokenFor(track interfaces.Track) interfaces.VotingToken {
	if track == interfaces.ValueTrack {
		return g.valueToken
	}
	return g.voteToken
}

// Resolve settles a proposal whose voting window has elapsed. Anyone may
// call it. A proposal passing the dual quorum has its mutation executed,
// its fee refunded and the reward minted to the proposer. Otherwise, or
// when called after the execution window, the fee is forfeited to the vault.
func (g *Governor) Resolve(tx *ledger.Tx, id common.Hash) (interfaces.ProposalState, error) {
	stored, ok := g.proposals.Get(id)
	if !ok {
		return 0, fmt.Errorf("%w: %s", interfaces.ErrProposalNotFound, id.Hex())
	}
	if stored.Resolved {
		return stored.State, fmt.Errorf("%w: %s", interfaces.ErrAlreadyResolved, stored.State)
	}
	now := tx.Time()
	if now.Before(stored.VoteEnd) {
		return 0, fmt.Errorf("%w: ends at %s", interfaces.ErrVotingInProgress, stored.VoteEnd)
	}

	var reason error
	state := interfaces.Executed
	if expired(stored, g.params.ExecutionWindow, now) {
		state = interfaces.Expired
	} else if reason = DualQuorum(stored, g.ratios); reason != nil {
		state = interfaces.Defeated
	}

	p := stored.Copy()
	p.State = state
	p.Resolved = true
	g.proposals.Set(tx, id, p)
	g.open.Delete(tx, id)
	if err := g.emit(tx, "ProposalResolved", id, uint8(state)); err != nil {
		return 0, err
	}

	self := tx.WithSender(g.address)
	if state == interfaces.Executed {
		if err := g.execute(self, p.Mutation); err != nil {
			return 0, fmt.Errorf("executing %s: %w", p.Mutation.Kind, err)
		}
		if err := g.cash.Transfer(self, p.Proposer, p.Fee); err != nil {
			return 0, fmt.Errorf("refunding proposal fee: %w", err)
		}
		if g.params.Reward.Sign() > 0 {
			if err := g.valueToken.Mint(self, p.Proposer, g.params.Reward); err != nil {
				return 0, fmt.Errorf("minting proposer reward: %w", err)
			}
		}
		g.log.Info("Proposal executed", "id", id, "mutation", p.Mutation.Kind, "proposer", p.Proposer)
		return state, nil
	}

	if err := g.cash.Transfer(self, g.vault.Address(), p.Fee); err != nil {
		return 0, fmt.Errorf("forfeiting proposal fee: %w", err)
	}
	if err := g.vault.DepositForfeit(self, p.Epoch, p.Fee); err != nil {
		return 0, fmt.Errorf("depositing forfeit: %w", err)
	}
	g.log.Info("Proposal not executed", "id", id, "state", state, "reason", reason, "fee", p.Fee)
	return state, nil
}

func (g *Governor) execute(tx *ledger.Tx, m interfaces.Mutation) error {
	switch m.Kind {
	case interfaces.AddToList:
		return g.registrar.AddToList(tx, m.List, m.Account)
	case interfaces.RemoveFromList:
		return g.registrar.RemoveFromList(tx, m.List, m.Account)
	case interfaces.UpdateConfig:
		return g.registrar.UpdateConfig(tx, m.Key, m.Value)
	case interfaces.Reset:
		return g.registrar.Reset(tx)
	default:
		return fmt.Errorf("%w: unknown kind %d", interfaces.ErrInvalidMutation, m.Kind)
	}
}

// Proposal returns a copy of proposal id with its state as of now.
func (g *Governor) Proposal(id common.Hash, now time.Time) (*interfaces.Proposal, error) {
	stored, ok := g.proposals.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrProposalNotFound, id.Hex())
	}
	p := stored.Copy()
	p.State = deriveState(stored, g.ratios, g.params.ExecutionWindow, now)
	return p, nil
}

// State returns the lifecycle state of proposal id as of now.
func (g *Governor) State(id common.Hash, now time.Time) (interfaces.ProposalState, error) {
	stored, ok := g.proposals.Get(id)
	if !ok {
		return 0, fmt.Errorf("%w: %s", interfaces.ErrProposalNotFound, id.Hex())
	}
	return deriveState(stored, g.ratios, g.params.ExecutionWindow, now), nil
}

// Proposals returns every proposal in creation order.
func (g *Governor) Proposals(now time.Time) []*interfaces.Proposal {
	ids := g.order.Get()
	out := make([]*interfaces.Proposal, 0, len(ids))
	for _, id := range ids {
		if p, err := g.Proposal(id, now); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// Ballot returns voter's recorded vote on track of proposal id.
func (g *Governor) Ballot(id common.Hash, track interfaces.Track, voter common.Address) (interfaces.Ballot, bool) {
	b, ok := g.ballots.Get(ballotKey{proposal: id, track: track, voter: voter})
	if !ok {
		return interfaces.Ballot{}, false
	}
	return interfaces.Ballot{Support: b.Support, Weight: new(big.Int).Set(b.Weight)}, true
}

// Quorum returns the for-votes proposal id needs on track.
func (g *Governor) Quorum(id common.Hash, track interfaces.Track) (*big.Int, error) {
	p, ok := g.proposals.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrProposalNotFound, id.Hex())
	}
	if !track.Valid() {
		return nil, fmt.Errorf("%w: track %d", interfaces.ErrInvalidVote, track)
	}
	return QuorumVotes(p.Snapshot.TotalSupply[track], g.ratios[track]), nil
}

// DomainSeparator returns the separator of signed ballots.
func (g *Governor) DomainSeparator() common.Hash { return g.signatures.DomainSeparator() }

// Nonces returns the nonce voter's next signed ballot must carry.
func (g *Governor) Nonces(voter common.Address) uint64 { return g.signatures.Nonces(voter) }

// BallotDigest returns the digest a voter signs for CastVoteBySig.
func (g *Governor) BallotDigest(id common.Hash, support interfaces.Support, track interfaces.Track, nonce, deadline uint64) (common.Hash, error) {
	structHash, err := BallotHash(id, support, track, nonce, deadline)
	if err != nil {
		return common.Hash{}, err
	}
	return g.signatures.Digest(structHash), nil
}

// BallotHash returns the struct hash of a signed ballot.
func BallotHash(id common.Hash, support interfaces.Support, track interfaces.Track, nonce, deadline uint64) (common.Hash, error) {
	return erc712.HashStruct(ballotArgs,
		ballotTypeHash,
		id,
		uint8(support),
		uint8(track),
		new(big.Int).SetUint64(nonce),
		new(big.Int).SetUint64(deadline),
	)
}

func (g *Governor) emit(tx *ledger.Tx, name string, args ...interface{}) error {
	lg, err := events.NewLog(ABI, g.address, name, args...)
	if err != nil {
		return err
	}
	tx.Emit(lg)
	return nil
}
