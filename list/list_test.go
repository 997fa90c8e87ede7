package list

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/dual-governance/access"
	"github.com/ruteri/dual-governance/interfaces"
	"github.com/ruteri/dual-governance/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner   = common.HexToAddress("0x0e")
	member1 = common.HexToAddress("0x01")
	member2 = common.HexToAddress("0x02")
)

func setup(t *testing.T) (*ledger.Ledger, *Factory, *access.Authority) {
	l := ledger.New(clock.NewMock(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return l, NewFactory(common.HexToAddress("0xfac")), access.NewAuthority("owner", access.Static(owner))
}

func TestFactoryDerivation(t *testing.T) {
	l, factory, auth := setup(t)
	idA := interfaces.KeyFromString("validators")
	idB := interfaces.KeyFromString("minters")

	assert.Equal(t, factory.Derive(idA), factory.Derive(idA))
	assert.NotEqual(t, factory.Derive(idA), factory.Derive(idB))
	assert.NotEqual(t, factory.Derive(idA), NewFactory(common.HexToAddress("0xbeef")).Derive(idA))

	var a1, a2, b *List
	_, err := l.Apply(context.Background(), owner, func(tx *ledger.Tx) error {
		var err error
		if a1, err = factory.ListFor(tx, idA, auth); err != nil {
			return err
		}
		if a2, err = factory.ListFor(tx, idA, auth); err != nil {
			return err
		}
		b, err = factory.ListFor(tx, idB, auth)
		return err
	})
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)
	assert.Equal(t, factory.Derive(idA), a1.Address())
	assert.Equal(t, []common.Hash{idB, idA}, factory.IDs())

	registered, err := ledger.Lookup[*List](l, a1.Address())
	require.NoError(t, err)
	assert.Same(t, a1, registered)
}

// TestListIdempotence tests that repeated adds and removes are no-ops.
func TestListIdempotence(t *testing.T) {
	l, factory, auth := setup(t)
	id := interfaces.KeyFromString("validators")

	var lst *List
	apply := func(op func(tx *ledger.Tx) (bool, error)) bool {
		var changed bool
		_, err := l.Apply(context.Background(), owner, func(tx *ledger.Tx) error {
			var err error
			if lst == nil {
				if lst, err = factory.ListFor(tx, id, auth); err != nil {
					return err
				}
			}
			changed, err = op(tx)
			return err
		})
		require.NoError(t, err)
		return changed
	}

	assert.True(t, apply(func(tx *ledger.Tx) (bool, error) { return lst.Add(tx, member1) }))
	assert.False(t, apply(func(tx *ledger.Tx) (bool, error) { return lst.Add(tx, member1) }))
	assert.True(t, apply(func(tx *ledger.Tx) (bool, error) { return lst.Add(tx, member2) }))
	assert.Equal(t, 2, lst.Len())
	assert.Equal(t, []common.Address{member1, member2}, lst.Members())

	assert.True(t, apply(func(tx *ledger.Tx) (bool, error) { return lst.Remove(tx, member1) }))
	assert.False(t, apply(func(tx *ledger.Tx) (bool, error) { return lst.Remove(tx, member1) }))
	assert.False(t, lst.Contains(member1))
	assert.True(t, lst.Contains(member2))
}

func TestListOwnerOnly(t *testing.T) {
	l, factory, auth := setup(t)
	id := interfaces.KeyFromString("validators")

	var lst *List
	_, err := l.Apply(context.Background(), owner, func(tx *ledger.Tx) error {
		var err error
		lst, err = factory.ListFor(tx, id, auth)
		return err
	})
	require.NoError(t, err)

	_, err = l.Apply(context.Background(), member1, func(tx *ledger.Tx) error {
		_, err := lst.Add(tx, member1)
		return err
	})
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)
	assert.False(t, lst.Contains(member1))
}
