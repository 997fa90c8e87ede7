// Package list implements address sets and the factory that derives one set
// per list identifier.
package list

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/dual-governance/interfaces"
	"github.com/ruteri/dual-governance/ledger"
)

// initCodeHash stands in for the init code of a list instance in CREATE2
// address derivation.
var initCodeHash = crypto.Keccak256([]byte("dual-governance/list/v1"))

// List is a set of addresses. Only its owner can mutate it.
type List struct {
	address common.Address
	id      common.Hash
	owner   interfaces.AuthorizedMutator
	members *ledger.Map[common.Address, struct{}]
}

func (l *List) Address() common.Address { return l.address }
func (l *List) ID() common.Hash         { return l.id }

// Add inserts account and reports whether the set changed.
func (l *List) Add(tx *ledger.Tx, account common.Address) (bool, error) {
	if err := l.owner.Authorize(tx); err != nil {
		return false, err
	}
	if l.members.Has(account) {
		return false, nil
	}
	l.members.Set(tx, account, struct{}{})
	return true, nil
}

// Remove deletes account and reports whether the set changed.
func (l *List) Remove(tx *ledger.Tx, account common.Address) (bool, error) {
	if err := l.owner.Authorize(tx); err != nil {
		return false, err
	}
	if !l.members.Has(account) {
		return false, nil
	}
	l.members.Delete(tx, account)
	return true, nil
}

func (l *List) Contains(account common.Address) bool {
	return l.members.Has(account)
}

func (l *List) Len() int {
	return l.members.Len()
}

// Members returns the members sorted by address.
func (l *List) Members() []common.Address {
	members := l.members.Keys()
	sort.Slice(members, func(i, j int) bool {
		return bytes.Compare(members[i].Bytes(), members[j].Bytes()) < 0
	})
	return members
}

// Factory creates List instances at addresses derived from their identifier.
type Factory struct {
	address common.Address
	lists   *ledger.Map[common.Hash, *List]
}

// NewFactory creates a factory deploying from address.
func NewFactory(address common.Address) *Factory {
	return &Factory{
		address: address,
		lists:   ledger.NewMap[common.Hash, *List](),
	}
}

func (f *Factory) Address() common.Address { return f.address }

// Derive returns the address of the list for id, whether or not it exists.
func (f *Factory) Derive(id common.Hash) common.Address {
	return crypto.CreateAddress2(f.address, id, initCodeHash)
}

// Lookup returns the list created for id.
func (f *Factory) Lookup(id common.Hash) (*List, bool) {
	return f.lists.Get(id)
}

// ListFor returns the list for id, creating it with owner on first use.
// Every identifier gets its own instance.
func (f *Factory) ListFor(tx *ledger.Tx, id common.Hash, owner interfaces.AuthorizedMutator) (*List, error) {
	if l, ok := f.lists.Get(id); ok {
		return l, nil
	}
	l := &List{
		address: f.Derive(id),
		id:      id,
		owner:   owner,
		members: ledger.NewMap[common.Address, struct{}](),
	}
	if err := tx.Register(l.address, l); err != nil {
		return nil, err
	}
	f.lists.Set(tx, id, l)
	return l, nil
}

// IDs returns the identifiers of all created lists.
func (f *Factory) IDs() []common.Hash {
	ids := f.lists.Keys()
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	return ids
}
