package governor

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ruteri/dual-governance/interfaces"
)

var quorumScale = big.NewInt(interfaces.QuorumScale)

// DualQuorum returns nil if p passes on every track: votes for must reach
// ratio/10000 of the snapshot supply and strictly exceed votes against.
// Otherwise the error wraps ErrQuorumNotMet or ErrMajorityNotMet and names
// the first failing track.
func DualQuorum(p *interfaces.Proposal, ratios [interfaces.NumTracks]uint16) error {
	for _, track := range interfaces.Tracks {
		votesFor := p.VotesFor[track]
		required := new(big.Int).Mul(big.NewInt(int64(ratios[track])), p.Snapshot.TotalSupply[track])
		if new(big.Int).Mul(votesFor, quorumScale).Cmp(required) < 0 {
			return fmt.Errorf("%w on %s track: %s of %s at %d bps",
				interfaces.ErrQuorumNotMet, track, votesFor, p.Snapshot.TotalSupply[track], ratios[track])
		}
		if votesFor.Cmp(p.VotesAgainst[track]) <= 0 {
			return fmt.Errorf("%w on %s track: %s for, %s against",
				interfaces.ErrMajorityNotMet, track, votesFor, p.VotesAgainst[track])
		}
	}
	return nil
}

// QuorumVotes returns the smallest tally that satisfies ratio of supply.
func QuorumVotes(supply *big.Int, ratio uint16) *big.Int {
	q := new(big.Int).Mul(supply, big.NewInt(int64(ratio)))
	q.Add(q, big.NewInt(interfaces.QuorumScale-1))
	return q.Quo(q, quorumScale)
}

// deriveState computes the lifecycle state of an unresolved proposal at now.
func deriveState(p *interfaces.Proposal, ratios [interfaces.NumTracks]uint16, executionWindow time.Duration, now time.Time) interfaces.ProposalState {
	switch {
	case p.Resolved:
		return p.State
	case now.Before(p.VoteStart):
		return interfaces.Pending
	case now.Before(p.VoteEnd):
		return interfaces.Active
	case expired(p, executionWindow, now):
		return interfaces.Expired
	case DualQuorum(p, ratios) == nil:
		return interfaces.Succeeded
	default:
		return interfaces.Defeated
	}
}

func expired(p *interfaces.Proposal, executionWindow time.Duration, now time.Time) bool {
	return executionWindow > 0 && !now.Before(p.VoteEnd.Add(executionWindow))
}
