package governor

import (
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/dual-governance/interfaces"
)

// Default timing used when a deployment leaves it unset.
const (
	DefaultVotingPeriod  = 72 * time.Hour
	DefaultEpochDuration = 7 * 24 * time.Hour

	DefaultTargetProposalsPerEpoch = 8
)

// Params are the economic and timing parameters of a governor.
type Params struct {
	// ProposalFee is the initial fee rate; it moves within [MinFee, MaxFee].
	ProposalFee *big.Int
	MinFee      *big.Int
	MaxFee      *big.Int

	// Reward is minted in the value token to the proposer of every
	// executed proposal.
	Reward *big.Int

	// Quorum ratios in basis points of the snapshot total supply.
	VoteQuorumRatio  uint16
	ValueQuorumRatio uint16

	VotingDelay  time.Duration
	VotingPeriod time.Duration

	// ExecutionWindow bounds how long after the vote a proposal can still
	// be resolved into execution. Zero means unbounded.
	ExecutionWindow time.Duration

	EpochDuration           time.Duration
	TargetProposalsPerEpoch uint64
}

// WithDefaults fills unset timing parameters.
func (p Params) WithDefaults() Params {
	if p.VotingPeriod == 0 {
		p.VotingPeriod = DefaultVotingPeriod
	}
	if p.EpochDuration == 0 {
		p.EpochDuration = DefaultEpochDuration
	}
	if p.TargetProposalsPerEpoch == 0 {
		p.TargetProposalsPerEpoch = DefaultTargetProposalsPerEpoch
	}
	if p.Reward == nil {
		p.Reward = new(big.Int)
	}
	return p
}

// Validate checks fee bounds, ratios and timing.
func (p Params) Validate() error {
	if p.ProposalFee == nil || p.MinFee == nil || p.MaxFee == nil {
		return fmt.Errorf("%w: fee bounds must be set", interfaces.ErrInvalidParams)
	}
	if p.MinFee.Sign() <= 0 {
		return fmt.Errorf("%w: minimum fee must be positive", interfaces.ErrInvalidParams)
	}
	if p.MinFee.Cmp(p.ProposalFee) > 0 || p.ProposalFee.Cmp(p.MaxFee) > 0 {
		return fmt.Errorf("%w: fee %s outside [%s, %s]", interfaces.ErrInvalidParams, p.ProposalFee, p.MinFee, p.MaxFee)
	}
	if p.Reward != nil && p.Reward.Sign() < 0 {
		return fmt.Errorf("%w: negative reward", interfaces.ErrInvalidParams)
	}
	if p.VoteQuorumRatio > interfaces.QuorumScale || p.ValueQuorumRatio > interfaces.QuorumScale {
		return fmt.Errorf("%w: quorum ratios must not exceed %d", interfaces.ErrInvalidParams, interfaces.QuorumScale)
	}
	if p.VotingDelay < 0 || p.VotingPeriod <= 0 || p.ExecutionWindow < 0 || p.EpochDuration <= 0 {
		return fmt.Errorf("%w: invalid governor timing", interfaces.ErrInvalidParams)
	}
	return nil
}

// Ratios returns the quorum ratios indexed by track.
func (p Params) Ratios() [interfaces.NumTracks]uint16 {
	return [interfaces.NumTracks]uint16{
		interfaces.VoteTrack:  p.VoteQuorumRatio,
		interfaces.ValueTrack: p.ValueQuorumRatio,
	}
}

// Config wires a governor to its collaborators.
type Config struct {
	Address common.Address
	ChainID *big.Int

	// Start anchors epoch zero.
	Start time.Time

	CashToken  interfaces.Token
	VoteToken  interfaces.VotingToken
	ValueToken interfaces.RewardToken
	Registrar  interfaces.RegistryMutator
	Vault      interfaces.ForfeitSink

	Params Params
	Log    *slog.Logger
}
