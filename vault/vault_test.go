package vault

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/dual-governance/access"
	"github.com/ruteri/dual-governance/interfaces"
	"github.com/ruteri/dual-governance/ledger"
	"github.com/ruteri/dual-governance/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	admin     = common.HexToAddress("0xad")
	governor  = common.HexToAddress("0x60")
	vaultAddr = common.HexToAddress("0x7a")
	buyer     = common.HexToAddress("0xb0")
	voter1    = common.HexToAddress("0x01")
	voter2    = common.HexToAddress("0x02")
	voter3    = common.HexToAddress("0x03")
)

func testParams() AuctionParams {
	return AuctionParams{
		StartPrice: big.NewInt(1000),
		FloorPrice: big.NewInt(100),
		Decay:      interfaces.LinearDecay,
		Period:     time.Hour,
		Duration:   2 * time.Hour,
	}
}

type fixture struct {
	t       *testing.T
	ledger  *ledger.Ledger
	clock   *clock.Mock
	cash    *token.Token
	payment *token.Token
	vault   *Vault
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithPayment(t, nil)
}

// newFixtureWithPayment builds a vault whose payment token is wrapped by wrap.
func newFixtureWithPayment(t *testing.T, wrap func(*token.Token) interfaces.Token) *fixture {
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	allocator := access.NewAuthority("admin", access.Static(admin))

	f := &fixture{
		t:       t,
		ledger:  ledger.New(clk, logger),
		clock:   clk,
		cash:    token.New(token.Config{Address: common.HexToAddress("0xca"), Name: "Cash", Allocator: allocator}),
		payment: token.New(token.Config{Address: common.HexToAddress("0x2e"), Name: "Zero", Allocator: allocator}),
	}
	var payment interfaces.Token = f.payment
	if wrap != nil {
		payment = wrap(f.payment)
	}

	v, err := New(Config{
		Address:  vaultAddr,
		Governor: governor,
		Cash:     f.cash,
		Payment:  payment,
		Auction:  testParams(),
		Log:      logger,
	})
	require.NoError(t, err)
	f.vault = v

	f.mustApply(admin, func(tx *ledger.Tx) error {
		if err := f.cash.Allocate(tx, map[common.Address]*big.Int{governor: big.NewInt(10_000)}); err != nil {
			return err
		}
		return f.payment.Allocate(tx, map[common.Address]*big.Int{buyer: big.NewInt(100_000)})
	})
	f.mustApply(buyer, func(tx *ledger.Tx) error {
		return f.payment.Approve(tx, vaultAddr, big.NewInt(100_000))
	})
	return f
}

func (f *fixture) apply(sender common.Address, op func(tx *ledger.Tx) error) error {
	_, err := f.ledger.Apply(context.Background(), sender, op)
	return err
}

func (f *fixture) mustApply(sender common.Address, op func(tx *ledger.Tx) error) {
	require.NoError(f.t, f.apply(sender, op))
}

// forfeit transfers amount of cash from the governor and deposits it, as the governor does.
func (f *fixture) forfeit(amount int64) {
	f.mustApply(governor, func(tx *ledger.Tx) error {
		if err := f.cash.Transfer(tx, vaultAddr, big.NewInt(amount)); err != nil {
			return err
		}
		return f.vault.DepositForfeit(tx, 0, big.NewInt(amount))
	})
}

func (f *fixture) participate(voter common.Address, weight int64) {
	f.mustApply(governor, func(tx *ledger.Tx) error {
		return f.vault.RecordParticipation(tx, voter, big.NewInt(weight))
	})
}

func (f *fixture) openRound() *interfaces.AuctionRound {
	var round *interfaces.AuctionRound
	f.mustApply(buyer, func(tx *ledger.Tx) error {
		var err error
		round, err = f.vault.OpenRound(tx)
		return err
	})
	return round
}

func (f *fixture) settle(max int64) (*interfaces.AuctionRound, error) {
	var round *interfaces.AuctionRound
	err := f.apply(buyer, func(tx *ledger.Tx) error {
		var err error
		round, err = f.vault.Settle(tx, big.NewInt(max))
		return err
	})
	return round, err
}

func requireBig(t *testing.T, expected int64, actual *big.Int) {
	t.Helper()
	require.Equal(t, 0, big.NewInt(expected).Cmp(actual), "expected %d, got %s", expected, actual)
}

func TestAuctionParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(p *AuctionParams)
	}{
		{"nil start", func(p *AuctionParams) { p.StartPrice = nil }},
		{"start below floor", func(p *AuctionParams) { p.StartPrice = big.NewInt(50) }},
		{"negative floor", func(p *AuctionParams) { p.FloorPrice = big.NewInt(-1) }},
		{"zero period", func(p *AuctionParams) { p.Period = 0 }},
		{"zero duration", func(p *AuctionParams) { p.Duration = 0 }},
		{"unknown decay", func(p *AuctionParams) { p.Decay = 9 }},
	}
	require.NoError(t, testParams().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams()
			tt.modify(&p)
			assert.ErrorIs(t, p.Validate(), interfaces.ErrInvalidParams)
		})
	}
}

// TestPriceMonotonic tests that both curves are non-increasing and bounded by the floor.
func TestPriceMonotonic(t *testing.T) {
	start := time.Unix(0, 0)
	for _, decay := range []interfaces.DecayKind{interfaces.LinearDecay, interfaces.ExponentialDecay} {
		t.Run(decay.String(), func(t *testing.T) {
			round := &interfaces.AuctionRound{
				StartPrice: big.NewInt(1_000_003),
				FloorPrice: big.NewInt(17),
				Decay:      decay,
				Period:     37 * time.Second,
				StartTime:  start,
			}
			prev := PriceAt(round, start.Add(-time.Minute))
			requireBig(t, 1_000_003, prev)
			for elapsed := time.Duration(0); elapsed < 2*time.Hour; elapsed += 7 * time.Second {
				price := PriceAt(round, start.Add(elapsed))
				assert.LessOrEqual(t, price.Cmp(prev), 0, "price increased at %s", elapsed)
				assert.GreaterOrEqual(t, price.Cmp(round.FloorPrice), 0, "price below floor at %s", elapsed)
				prev = price
			}
			requireBig(t, 17, prev)
		})
	}
}

func TestPriceCurves(t *testing.T) {
	start := time.Unix(0, 0)
	linear := &interfaces.AuctionRound{
		StartPrice: big.NewInt(1000), FloorPrice: big.NewInt(100),
		Decay: interfaces.LinearDecay, Period: time.Hour, StartTime: start,
	}
	requireBig(t, 550, PriceAt(linear, start.Add(30*time.Minute)))
	requireBig(t, 100, PriceAt(linear, start.Add(time.Hour)))

	exponential := &interfaces.AuctionRound{
		StartPrice: big.NewInt(1024), FloorPrice: big.NewInt(1),
		Decay: interfaces.ExponentialDecay, Period: time.Minute, StartTime: start,
	}
	requireBig(t, 512, PriceAt(exponential, start.Add(time.Minute)))
	requireBig(t, 384, PriceAt(exponential, start.Add(90*time.Second)))
	requireBig(t, 1, PriceAt(exponential, start.Add(time.Hour)))
}

func TestGovernorOnly(t *testing.T) {
	f := newFixture(t)
	err := f.apply(buyer, func(tx *ledger.Tx) error {
		return f.vault.DepositForfeit(tx, 0, big.NewInt(1))
	})
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

	err = f.apply(buyer, func(tx *ledger.Tx) error {
		return f.vault.RecordParticipation(tx, buyer, big.NewInt(1))
	})
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)
}

func TestOpenRound(t *testing.T) {
	f := newFixture(t)

	err := f.apply(buyer, func(tx *ledger.Tx) error {
		_, err := f.vault.OpenRound(tx)
		return err
	})
	assert.ErrorIs(t, err, interfaces.ErrNothingToAuction)

	f.forfeit(300)
	f.forfeit(200)
	requireBig(t, 500, f.vault.Forfeits(0))

	round := f.openRound()
	assert.Equal(t, uint64(1), round.ID)
	requireBig(t, 500, round.Inventory)
	requireBig(t, 0, f.vault.Unsold())

	err = f.apply(buyer, func(tx *ledger.Tx) error {
		_, err := f.vault.OpenRound(tx)
		return err
	})
	assert.ErrorIs(t, err, interfaces.ErrAuctionInProgress)
}

// TestSettle tests a settlement at the live price with a pro-rata distribution.
func TestSettle(t *testing.T) {
	f := newFixture(t)
	f.forfeit(500)
	f.participate(voter1, 1)
	f.participate(voter2, 2)
	f.openRound()

	f.clock.Add(30 * time.Minute)
	_, err := f.settle(549)
	require.ErrorIs(t, err, interfaces.ErrAuctionPriceNotMet)

	round, err := f.settle(10_000)
	require.NoError(t, err)
	assert.Equal(t, interfaces.RoundSettled, round.State)
	assert.Equal(t, buyer, round.Buyer)
	requireBig(t, 550, round.Price)

	requireBig(t, 500, f.cash.BalanceOf(buyer))
	requireBig(t, 100_000-550, f.payment.BalanceOf(buyer))
	requireBig(t, 550, f.payment.BalanceOf(vaultAddr))

	// 550 split 1:2 leaves one unit of dust
	requireBig(t, 183, f.vault.Rewards(voter1))
	requireBig(t, 366, f.vault.Rewards(voter2))
	requireBig(t, 1, f.vault.Carry())
	requireBig(t, 0, f.vault.Participation(voter1))

	_, err = f.settle(10_000)
	assert.ErrorIs(t, err, interfaces.ErrAuctionAlreadySettled)
}

func TestSettleWithoutParticipantsCarries(t *testing.T) {
	f := newFixture(t)
	f.forfeit(100)
	f.openRound()
	_, err := f.settle(1000)
	require.NoError(t, err)
	requireBig(t, 1000, f.vault.Carry())

	f.forfeit(100)
	f.participate(voter3, 5)
	f.openRound()
	f.clock.Add(time.Hour)
	_, err = f.settle(100)
	require.NoError(t, err)
	requireBig(t, 1100, f.vault.Rewards(voter3))
	requireBig(t, 0, f.vault.Carry())
}

// TestExpiredInventoryRollsOver tests that unsold inventory joins the next round.
func TestExpiredInventoryRollsOver(t *testing.T) {
	f := newFixture(t)
	f.forfeit(100)
	f.openRound()

	f.clock.Add(2 * time.Hour)
	_, err := f.settle(1000)
	assert.ErrorIs(t, err, interfaces.ErrAuctionExpired)

	f.forfeit(50)
	round := f.openRound()
	assert.Equal(t, uint64(2), round.ID)
	requireBig(t, 150, round.Inventory)

	first, ok := f.vault.Round(1)
	require.True(t, ok)
	assert.Equal(t, interfaces.RoundExpired, first.State)
}

func TestExpireRound(t *testing.T) {
	f := newFixture(t)
	f.forfeit(100)
	f.openRound()

	err := f.apply(buyer, func(tx *ledger.Tx) error { return f.vault.ExpireRound(tx) })
	assert.ErrorIs(t, err, interfaces.ErrAuctionInProgress)

	f.clock.Add(3 * time.Hour)
	require.NoError(t, f.apply(buyer, func(tx *ledger.Tx) error { return f.vault.ExpireRound(tx) }))
	requireBig(t, 100, f.vault.Unsold())

	_, err = f.vault.CurrentPrice(f.clock.Now())
	assert.ErrorIs(t, err, interfaces.ErrNoOpenAuction)
}

func TestClaim(t *testing.T) {
	f := newFixture(t)
	f.forfeit(100)
	f.participate(voter1, 1)
	f.openRound()
	_, err := f.settle(1000)
	require.NoError(t, err)

	require.NoError(t, f.apply(voter1, func(tx *ledger.Tx) error {
		amount, err := f.vault.Claim(tx)
		if err == nil {
			requireBig(t, 1000, amount)
		}
		return err
	}))
	requireBig(t, 1000, f.payment.BalanceOf(voter1))

	err = f.apply(voter1, func(tx *ledger.Tx) error {
		_, err := f.vault.Claim(tx)
		return err
	})
	assert.ErrorIs(t, err, interfaces.ErrNothingToClaim)
}

// TestSettleFailedPaymentReverts tests that a failing payment pull leaves the round open.
func TestSettleFailedPaymentReverts(t *testing.T) {
	failing := new(token.MockToken)
	failing.On("TransferFrom", vaultAddr, buyer, vaultAddr, mock.Anything).Return(interfaces.ErrTransferFailed)

	f := newFixtureWithPayment(t, func(*token.Token) interfaces.Token { return failing })
	f.forfeit(100)
	f.participate(voter1, 1)
	f.openRound()

	_, err := f.settle(1000)
	require.ErrorIs(t, err, interfaces.ErrTransferFailed)

	round, ok := f.vault.CurrentRound()
	require.True(t, ok)
	assert.Equal(t, interfaces.RoundOpen, round.State)
	requireBig(t, 1, f.vault.Participation(voter1))
	requireBig(t, 0, f.vault.Rewards(voter1))
	requireBig(t, 0, f.cash.BalanceOf(buyer))
	failing.AssertExpectations(t)
}

// reentrantToken calls back into the vault while collecting a payment.
type reentrantToken struct {
	*token.Token
	vault *Vault
	err   error
}

func (r *reentrantToken) TransferFrom(tx *ledger.Tx, from, to common.Address, amount *big.Int) error {
	if r.err == nil {
		_, r.err = r.vault.Settle(tx.WithSender(from), big.NewInt(1_000_000))
		if r.err == nil {
			return errors.New("reentrant settle succeeded")
		}
	}
	return r.Token.TransferFrom(tx, from, to, amount)
}

// TestSettleReentrancy tests that a nested settle from a token callback is rejected.
func TestSettleReentrancy(t *testing.T) {
	var hooked *reentrantToken
	f := newFixtureWithPayment(t, func(tok *token.Token) interfaces.Token {
		hooked = &reentrantToken{Token: tok}
		return hooked
	})
	hooked.vault = f.vault
	f.forfeit(100)
	f.openRound()

	_, err := f.settle(1000)
	require.NoError(t, err)
	assert.ErrorIs(t, hooked.err, interfaces.ErrAuctionAlreadySettled)
	requireBig(t, 100, f.cash.BalanceOf(buyer))
	requireBig(t, 100_000-1000, f.payment.BalanceOf(buyer))
}
