package governor

import (
	"math/big"
	"time"

	"github.com/ruteri/dual-governance/interfaces"
)

// nextFee applies the fee rule to one finished epoch that saw count
// proposals: above target doubles the fee, below target halves it.
func nextFee(fee *big.Int, count, target uint64, min, max *big.Int) *big.Int {
	next := new(big.Int).Set(fee)
	switch {
	case count > target:
		next.Lsh(next, 1)
		if next.Cmp(max) > 0 {
			next.Set(max)
		}
	case count < target:
		next.Rsh(next, 1)
		if next.Cmp(min) < 0 {
			next.Set(min)
		}
	}
	return next
}

// epochAt returns the index of the epoch containing t.
func (g *Governor) epochAt(t time.Time) uint64 {
	if t.Before(g.start) {
		return 0
	}
	return uint64(t.Sub(g.start) / g.params.EpochDuration)
}

func (g *Governor) epochBounds(epoch uint64) (time.Time, time.Time) {
	start := g.start.Add(time.Duration(epoch) * g.params.EpochDuration)
	return start, start.Add(g.params.EpochDuration)
}

// advance returns the epoch state as of now. Every epoch that ended since
// s contributes one application of the fee rule; epochs that were skipped
// entirely count as having no proposals.
func (g *Governor) advance(s interfaces.EpochState, now time.Time) interfaces.EpochState {
	current := g.epochAt(now)
	if current <= s.Epoch {
		return s
	}

	fee := nextFee(s.CurrentFee, s.ProposalCount, g.params.TargetProposalsPerEpoch, s.MinFee, s.MaxFee)
	for skipped := current - s.Epoch - 1; skipped > 0 && fee.Cmp(s.MinFee) > 0; skipped-- {
		next := nextFee(fee, 0, g.params.TargetProposalsPerEpoch, s.MinFee, s.MaxFee)
		if next.Cmp(fee) == 0 {
			break
		}
		fee = next
	}

	start, end := g.epochBounds(current)
	return interfaces.EpochState{
		Epoch:      current,
		Start:      start,
		End:        end,
		CurrentFee: fee,
		MinFee:     s.MinFee,
		MaxFee:     s.MaxFee,
	}
}

// EpochState returns the fee and proposal count of the epoch containing
// now. Rollovers that have not been persisted yet are applied to the copy.
func (g *Governor) EpochState(now time.Time) interfaces.EpochState {
	return copyEpoch(g.advance(g.epoch.Get(), now))
}

// ProposalFee returns the fee a proposal submitted at now must pay.
func (g *Governor) ProposalFee(now time.Time) *big.Int {
	return g.EpochState(now).CurrentFee
}

func copyEpoch(s interfaces.EpochState) interfaces.EpochState {
	s.CurrentFee = new(big.Int).Set(s.CurrentFee)
	s.MinFee = new(big.Int).Set(s.MinFee)
	s.MaxFee = new(big.Int).Set(s.MaxFee)
	return s
}
