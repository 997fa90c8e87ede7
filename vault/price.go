package vault

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ruteri/dual-governance/interfaces"
)

// AuctionParams configures the rounds opened by a vault.
type AuctionParams struct {
	// StartPrice and FloorPrice bound the price of the whole lot.
	StartPrice *big.Int             `json:"start_price"`
	FloorPrice *big.Int             `json:"floor_price"`
	Decay      interfaces.DecayKind `json:"decay"`

	// Period is the time to reach the floor for linear decay, and the
	// half-life for exponential decay.
	Period time.Duration `json:"period"`

	// Duration is how long a round stays open.
	Duration time.Duration `json:"duration"`
}

// Validate checks the parameters for consistency.
func (p AuctionParams) Validate() error {
	switch {
	case p.StartPrice == nil || p.FloorPrice == nil:
		return fmt.Errorf("%w: auction prices must be set", interfaces.ErrInvalidParams)
	case p.FloorPrice.Sign() < 0:
		return fmt.Errorf("%w: negative floor price", interfaces.ErrInvalidParams)
	case p.StartPrice.Cmp(p.FloorPrice) < 0:
		return fmt.Errorf("%w: start price below floor", interfaces.ErrInvalidParams)
	case p.Period <= 0 || p.Duration <= 0:
		return fmt.Errorf("%w: auction period and duration must be positive", interfaces.ErrInvalidParams)
	case p.Decay != interfaces.LinearDecay && p.Decay != interfaces.ExponentialDecay:
		return fmt.Errorf("%w: unknown decay %d", interfaces.ErrInvalidParams, p.Decay)
	}
	return nil
}

// PriceAt returns the lot price of round at t. The price never increases
// over time and never drops below the floor.
func PriceAt(round *interfaces.AuctionRound, t time.Time) *big.Int {
	elapsed := t.Sub(round.StartTime)
	if elapsed <= 0 {
		return new(big.Int).Set(round.StartPrice)
	}

	var price *big.Int
	switch round.Decay {
	case interfaces.ExponentialDecay:
		price = exponentialPrice(round.StartPrice, round.Period, elapsed)
	default:
		price = linearPrice(round.StartPrice, round.FloorPrice, round.Period, elapsed)
	}
	if price.Cmp(round.FloorPrice) < 0 {
		return new(big.Int).Set(round.FloorPrice)
	}
	return price
}

// linearPrice interpolates from start to floor over period.
func linearPrice(start, floor *big.Int, period, elapsed time.Duration) *big.Int {
	if elapsed >= period {
		return new(big.Int).Set(floor)
	}
	drop := new(big.Int).Sub(start, floor)
	drop.Mul(drop, big.NewInt(int64(elapsed)))
	drop.Quo(drop, big.NewInt(int64(period)))
	return drop.Sub(start, drop)
}

// exponentialPrice halves start every half-life, interpolating linearly
// inside each half-life.
func exponentialPrice(start *big.Int, halfLife, elapsed time.Duration) *big.Int {
	halvings := uint(elapsed / halfLife)
	if halvings >= uint(start.BitLen()) {
		return new(big.Int)
	}
	rem := elapsed % halfLife

	price := new(big.Int).Rsh(start, halvings)
	drop := new(big.Int).Rsh(price, 1)
	drop.Mul(drop, big.NewInt(int64(rem)))
	drop.Quo(drop, big.NewInt(int64(halfLife)))
	return price.Sub(price, drop)
}
