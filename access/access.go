// Package access implements the AuthorizedMutator capability used to gate
// privileged component entry points.
package access

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/dual-governance/interfaces"
	"github.com/ruteri/dual-governance/ledger"
)

// Resolver yields the account currently holding a role. Roles such as
// "governor" can move after construction, so they are resolved per call.
type Resolver func() common.Address

// Static returns a resolver for a fixed account.
func Static(addr common.Address) Resolver {
	return func() common.Address { return addr }
}

// Authority grants a named role to any of its resolved accounts.
type Authority struct {
	role    string
	holders []Resolver
}

// NewAuthority creates an authority for role.
func NewAuthority(role string, holders ...Resolver) *Authority {
	return &Authority{role: role, holders: holders}
}

// Authorize implements interfaces.AuthorizedMutator.
func (a *Authority) Authorize(tx *ledger.Tx) error {
	sender := tx.Sender()
	for _, holder := range a.holders {
		if addr := holder(); addr != (common.Address{}) && addr == sender {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not %s", interfaces.ErrUnauthorized, sender.Hex(), a.role)
}

var _ interfaces.AuthorizedMutator = (*Authority)(nil)
