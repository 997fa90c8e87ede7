package token

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/dual-governance/ledger"
)

// Checkpoint records a value as of the end of the operation at Timepoint.
type Checkpoint struct {
	Timepoint uint64
	Votes     *big.Int
}

// push returns a new trace with value recorded at timepoint. The input slice
// is never modified so that journaled copies stay intact.
func push(trace []Checkpoint, timepoint uint64, value *big.Int) []Checkpoint {
	next := make([]Checkpoint, len(trace), len(trace)+1)
	copy(next, trace)
	if n := len(next); n > 0 && next[n-1].Timepoint == timepoint {
		next[n-1] = Checkpoint{Timepoint: timepoint, Votes: new(big.Int).Set(value)}
		return next
	}
	return append(next, Checkpoint{Timepoint: timepoint, Votes: new(big.Int).Set(value)})
}

// lookupBefore returns the latest value recorded strictly before timepoint.
func lookupBefore(trace []Checkpoint, timepoint uint64) *big.Int {
	i := sort.Search(len(trace), func(i int) bool { return trace[i].Timepoint >= timepoint })
	if i == 0 {
		return new(big.Int)
	}
	return new(big.Int).Set(trace[i-1].Votes)
}

func latest(trace []Checkpoint) *big.Int {
	if len(trace) == 0 {
		return new(big.Int)
	}
	return new(big.Int).Set(trace[len(trace)-1].Votes)
}

// Delegates returns the account voting with account's balance.
func (t *Token) Delegates(account common.Address) common.Address {
	if account == (common.Address{}) {
		return common.Address{}
	}
	if d, ok := t.delegates.Get(account); ok {
		return d
	}
	return account
}

// Delegate moves the caller's voting power to delegatee.
func (t *Token) Delegate(tx *ledger.Tx, delegatee common.Address) error {
	delegator := tx.Sender()
	if delegatee == (common.Address{}) {
		delegatee = delegator
	}
	previous := t.Delegates(delegator)
	if previous == delegatee {
		return nil
	}
	t.delegates.Set(tx, delegator, delegatee)
	t.moveVotes(tx, previous, delegatee, t.BalanceOf(delegator))
	return t.emit(tx, "DelegateChanged", delegator, previous, delegatee)
}

// GetVotes returns the current voting power of account.
func (t *Token) GetVotes(account common.Address) *big.Int {
	trace, _ := t.votes.Get(account)
	return latest(trace)
}

// PastVotes returns account's voting power recorded strictly before timepoint.
func (t *Token) PastVotes(account common.Address, timepoint uint64) *big.Int {
	trace, _ := t.votes.Get(account)
	return lookupBefore(trace, timepoint)
}

// PastTotalSupply returns the total supply recorded strictly before timepoint.
func (t *Token) PastTotalSupply(timepoint uint64) *big.Int {
	return lookupBefore(t.supplyTrace.Get(), timepoint)
}

func (t *Token) moveVotes(tx *ledger.Tx, from, to common.Address, amount *big.Int) {
	if from == to || amount.Sign() == 0 {
		return
	}
	if from != (common.Address{}) {
		t.writeVotes(tx, from, func(v *big.Int) *big.Int { return v.Sub(v, amount) })
	}
	if to != (common.Address{}) {
		t.writeVotes(tx, to, func(v *big.Int) *big.Int { return v.Add(v, amount) })
	}
}

func (t *Token) writeVotes(tx *ledger.Tx, delegate common.Address, op func(*big.Int) *big.Int) {
	trace, _ := t.votes.Get(delegate)
	previous := latest(trace)
	updated := op(new(big.Int).Set(previous))
	t.votes.Set(tx, delegate, push(trace, tx.Height(), updated))
	// event encoding of two uint256 values cannot fail
	_ = t.emit(tx, "DelegateVotesChanged", delegate, previous, updated)
}
