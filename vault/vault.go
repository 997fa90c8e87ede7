package vault

import (
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/dual-governance/access"
	"github.com/ruteri/dual-governance/events"
	"github.com/ruteri/dual-governance/interfaces"
	"github.com/ruteri/dual-governance/ledger"
)

// ABI declares the events emitted by the vault.
var ABI = events.MustParse(`[
	{"type":"event","name":"ForfeitDeposited","inputs":[
		{"name":"epoch","type":"uint256","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"RoundOpened","inputs":[
		{"name":"round","type":"uint256","indexed":true},
		{"name":"inventory","type":"uint256","indexed":false},
		{"name":"startPrice","type":"uint256","indexed":false},
		{"name":"floorPrice","type":"uint256","indexed":false},
		{"name":"endTime","type":"uint256","indexed":false}]},
	{"type":"event","name":"RoundSettled","inputs":[
		{"name":"round","type":"uint256","indexed":true},
		{"name":"buyer","type":"address","indexed":true},
		{"name":"price","type":"uint256","indexed":false},
		{"name":"inventory","type":"uint256","indexed":false}]},
	{"type":"event","name":"RoundExpired","inputs":[
		{"name":"round","type":"uint256","indexed":true},
		{"name":"inventory","type":"uint256","indexed":false}]},
	{"type":"event","name":"RewardsDistributed","inputs":[
		{"name":"period","type":"uint256","indexed":true},
		{"name":"distributed","type":"uint256","indexed":false},
		{"name":"carried","type":"uint256","indexed":false}]},
	{"type":"event","name":"RewardClaimed","inputs":[
		{"name":"account","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]}
]`)

// Config describes a vault instance.
type Config struct {
	Address common.Address

	// Governor is the only account allowed to deposit forfeits and record
	// participation.
	Governor common.Address

	// Cash is the escrowed inventory; Payment is what buyers pay with and
	// what participants are rewarded in.
	Cash    interfaces.Token
	Payment interfaces.Token

	Auction AuctionParams
	Log     *slog.Logger
}

// Vault escrows forfeited proposal fees, sells them through sequential
// descending-price rounds and distributes the proceeds to voters.
type Vault struct {
	address common.Address
	cash    interfaces.Token
	payment interfaces.Token
	params  AuctionParams
	gov     *access.Authority
	log     *slog.Logger

	rounds     *ledger.Map[uint64, *interfaces.AuctionRound]
	roundCount *ledger.Value[uint64]
	current    *ledger.Value[uint64]
	unsold     *ledger.Value[*big.Int]
	forfeits   *ledger.Map[uint64, *big.Int]

	period        *ledger.Value[uint64]
	participation *ledger.Map[common.Address, *big.Int]
	totalWeight   *ledger.Value[*big.Int]
	carry         *ledger.Value[*big.Int]
	rewards       *ledger.Map[common.Address, *big.Int]
}

// New creates a vault with no inventory.
func New(cfg Config) (*Vault, error) {
	if err := cfg.Auction.Validate(); err != nil {
		return nil, err
	}
	return &Vault{
		address: cfg.Address,
		cash:    cfg.Cash,
		payment: cfg.Payment,
		params:  cfg.Auction,
		gov:     access.NewAuthority("governor", access.Static(cfg.Governor)),
		log:     cfg.Log,

		rounds:     ledger.NewMap[uint64, *interfaces.AuctionRound](),
		roundCount: ledger.NewValue[uint64](0),
		current:    ledger.NewValue[uint64](0),
		unsold:     ledger.NewValue(new(big.Int)),
		forfeits:   ledger.NewMap[uint64, *big.Int](),

		period:        ledger.NewValue[uint64](0),
		participation: ledger.NewMap[common.Address, *big.Int](),
		totalWeight:   ledger.NewValue(new(big.Int)),
		carry:         ledger.NewValue(new(big.Int)),
		rewards:       ledger.NewMap[common.Address, *big.Int](),
	}, nil
}

func (v *Vault) Address() common.Address { return v.address }
func (v *Vault) Params() AuctionParams   { return v.params }

// DepositForfeit implements interfaces.ForfeitSink.
func (v *Vault) DepositForfeit(tx *ledger.Tx, epoch uint64, amount *big.Int) error {
	if err := v.gov.Authorize(tx); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return interfaces.ErrInvalidAmount
	}
	v.unsold.Set(tx, new(big.Int).Add(v.unsold.Get(), amount))
	v.forfeits.Set(tx, epoch, new(big.Int).Add(v.Forfeits(epoch), amount))
	return v.emit(tx, "ForfeitDeposited", new(big.Int).SetUint64(epoch), amount)
}

// RecordParticipation implements interfaces.ForfeitSink.
func (v *Vault) RecordParticipation(tx *ledger.Tx, voter common.Address, weight *big.Int) error {
	if err := v.gov.Authorize(tx); err != nil {
		return err
	}
	if weight == nil || weight.Sign() <= 0 {
		return interfaces.ErrInvalidAmount
	}
	v.participation.Set(tx, voter, new(big.Int).Add(v.Participation(voter), weight))
	v.totalWeight.Set(tx, new(big.Int).Add(v.totalWeight.Get(), weight))
	return nil
}

// OpenRound starts a round over all unsold inventory. A live round must be
// settled or past its end first; an ended unsettled round is expired and
// its inventory carried into the new round.
func (v *Vault) OpenRound(tx *ledger.Tx) (*interfaces.AuctionRound, error) {
	if r, ok := v.CurrentRound(); ok && r.State == interfaces.RoundOpen {
		if tx.Time().Before(r.EndTime) {
			return nil, fmt.Errorf("%w: round %d ends at %s", interfaces.ErrAuctionInProgress, r.ID, r.EndTime)
		}
		if err := v.expire(tx, r); err != nil {
			return nil, err
		}
	}

	inventory := v.unsold.Get()
	if inventory.Sign() == 0 {
		return nil, interfaces.ErrNothingToAuction
	}

	id := v.roundCount.Get() + 1
	now := tx.Time()
	round := &interfaces.AuctionRound{
		ID:         id,
		StartPrice: new(big.Int).Set(v.params.StartPrice),
		FloorPrice: new(big.Int).Set(v.params.FloorPrice),
		Decay:      v.params.Decay,
		Period:     v.params.Period,
		StartTime:  now,
		EndTime:    now.Add(v.params.Duration),
		Inventory:  new(big.Int).Set(inventory),
		State:      interfaces.RoundOpen,
	}
	v.roundCount.Set(tx, id)
	v.current.Set(tx, id)
	v.rounds.Set(tx, id, round)
	v.unsold.Set(tx, new(big.Int))

	v.log.Info("Auction round opened", "round", id, "inventory", inventory, "endTime", round.EndTime)
	if err := v.emit(tx, "RoundOpened", new(big.Int).SetUint64(id), inventory,
		round.StartPrice, round.FloorPrice, big.NewInt(round.EndTime.Unix())); err != nil {
		return nil, err
	}
	return copyRound(round), nil
}

// ExpireRound closes the current round if it ended unsold.
func (v *Vault) ExpireRound(tx *ledger.Tx) error {
	r, ok := v.CurrentRound()
	if !ok || r.State != interfaces.RoundOpen {
		return interfaces.ErrNoOpenAuction
	}
	if tx.Time().Before(r.EndTime) {
		return interfaces.ErrAuctionInProgress
	}
	return v.expire(tx, r)
}

func (v *Vault) expire(tx *ledger.Tx, r *interfaces.AuctionRound) error {
	expired := copyRound(r)
	expired.State = interfaces.RoundExpired
	v.rounds.Set(tx, r.ID, expired)
	v.unsold.Set(tx, new(big.Int).Add(v.unsold.Get(), r.Inventory))
	v.log.Info("Auction round expired", "round", r.ID, "inventory", r.Inventory)
	return v.emit(tx, "RoundExpired", new(big.Int).SetUint64(r.ID), r.Inventory)
}

// Settle buys the whole lot of the current round at the live price, as
// long as it does not exceed maxPayment.
//
// The round is marked settled and the proceeds are credited before any
// token is moved, so a token callback re-entering Settle finds the round
// already settled.
func (v *Vault) Settle(tx *ledger.Tx, maxPayment *big.Int) (*interfaces.AuctionRound, error) {
	r, ok := v.CurrentRound()
	if !ok {
		return nil, interfaces.ErrNoOpenAuction
	}
	switch r.State {
	case interfaces.RoundSettled:
		return nil, fmt.Errorf("%w: round %d", interfaces.ErrAuctionAlreadySettled, r.ID)
	case interfaces.RoundExpired:
		return nil, fmt.Errorf("%w: round %d", interfaces.ErrAuctionExpired, r.ID)
	}
	now := tx.Time()
	if !now.Before(r.EndTime) {
		return nil, fmt.Errorf("%w: round %d ended at %s", interfaces.ErrAuctionExpired, r.ID, r.EndTime)
	}

	price := PriceAt(r, now)
	if maxPayment == nil || maxPayment.Cmp(price) < 0 {
		return nil, fmt.Errorf("%w: price %s, offered %v", interfaces.ErrAuctionPriceNotMet, price, maxPayment)
	}

	buyer := tx.Sender()
	settled := copyRound(r)
	settled.State = interfaces.RoundSettled
	settled.Buyer = buyer
	settled.Price = price
	settled.SettledAt = now
	v.rounds.Set(tx, r.ID, settled)

	if err := v.distribute(tx, price); err != nil {
		return nil, err
	}
	if err := v.emit(tx, "RoundSettled", new(big.Int).SetUint64(r.ID), buyer, price, r.Inventory); err != nil {
		return nil, err
	}

	self := tx.WithSender(v.address)
	if err := v.payment.TransferFrom(self, buyer, v.address, price); err != nil {
		return nil, fmt.Errorf("collecting payment: %w", err)
	}
	if err := v.cash.Transfer(self, buyer, r.Inventory); err != nil {
		return nil, fmt.Errorf("delivering inventory: %w", err)
	}

	v.log.Info("Auction round settled", "round", r.ID, "buyer", buyer, "price", price, "inventory", r.Inventory)
	return copyRound(settled), nil
}

// distribute credits proceeds plus any carried amount to the current
// period's participants pro rata and starts a new period. Rounding dust and
// proceeds without participants carry over.
func (v *Vault) distribute(tx *ledger.Tx, proceeds *big.Int) error {
	pool := new(big.Int).Add(v.carry.Get(), proceeds)
	total := v.totalWeight.Get()
	if total.Sign() == 0 {
		v.carry.Set(tx, pool)
		return nil
	}

	distributed := new(big.Int)
	for _, voter := range v.participation.Keys() {
		weight, _ := v.participation.Get(voter)
		share := new(big.Int).Mul(pool, weight)
		share.Quo(share, total)
		if share.Sign() > 0 {
			v.rewards.Set(tx, voter, new(big.Int).Add(v.Rewards(voter), share))
			distributed.Add(distributed, share)
		}
		v.participation.Delete(tx, voter)
	}
	carried := new(big.Int).Sub(pool, distributed)
	period := v.period.Get()

	v.carry.Set(tx, carried)
	v.totalWeight.Set(tx, new(big.Int))
	v.period.Set(tx, period+1)
	return v.emit(tx, "RewardsDistributed", new(big.Int).SetUint64(period), distributed, carried)
}

// Claim pays out the caller's accrued rewards.
func (v *Vault) Claim(tx *ledger.Tx) (*big.Int, error) {
	account := tx.Sender()
	amount := v.Rewards(account)
	if amount.Sign() == 0 {
		return nil, interfaces.ErrNothingToClaim
	}
	v.rewards.Delete(tx, account)
	if err := v.emit(tx, "RewardClaimed", account, amount); err != nil {
		return nil, err
	}
	if err := v.payment.Transfer(tx.WithSender(v.address), account, amount); err != nil {
		return nil, fmt.Errorf("paying rewards: %w", err)
	}
	return amount, nil
}

// Round returns a copy of round id.
func (v *Vault) Round(id uint64) (*interfaces.AuctionRound, bool) {
	r, ok := v.rounds.Get(id)
	if !ok {
		return nil, false
	}
	return copyRound(r), true
}

// CurrentRound returns the most recently opened round.
func (v *Vault) CurrentRound() (*interfaces.AuctionRound, bool) {
	id := v.current.Get()
	if id == 0 {
		return nil, false
	}
	return v.Round(id)
}

// CurrentPrice returns the price of the live round at now.
func (v *Vault) CurrentPrice(now time.Time) (*big.Int, error) {
	r, ok := v.CurrentRound()
	if !ok || r.State != interfaces.RoundOpen || !now.Before(r.EndTime) {
		return nil, interfaces.ErrNoOpenAuction
	}
	return PriceAt(r, now), nil
}

// Unsold returns the inventory not committed to a round.
func (v *Vault) Unsold() *big.Int {
	return new(big.Int).Set(v.unsold.Get())
}

// Forfeits returns the fees forfeited by proposals of epoch.
func (v *Vault) Forfeits(epoch uint64) *big.Int {
	if f, ok := v.forfeits.Get(epoch); ok {
		return new(big.Int).Set(f)
	}
	return new(big.Int)
}

// Participation returns voter's weight in the current reward period.
func (v *Vault) Participation(voter common.Address) *big.Int {
	if w, ok := v.participation.Get(voter); ok {
		return new(big.Int).Set(w)
	}
	return new(big.Int)
}

// Rewards returns the unclaimed rewards of account.
func (v *Vault) Rewards(account common.Address) *big.Int {
	if r, ok := v.rewards.Get(account); ok {
		return new(big.Int).Set(r)
	}
	return new(big.Int)
}

// Carry returns proceeds waiting for the next distribution.
func (v *Vault) Carry() *big.Int {
	return new(big.Int).Set(v.carry.Get())
}

func (v *Vault) emit(tx *ledger.Tx, name string, args ...interface{}) error {
	lg, err := events.NewLog(ABI, v.address, name, args...)
	if err != nil {
		return err
	}
	tx.Emit(lg)
	return nil
}

func copyRound(r *interfaces.AuctionRound) *interfaces.AuctionRound {
	cp := *r
	cp.StartPrice = new(big.Int).Set(r.StartPrice)
	cp.FloorPrice = new(big.Int).Set(r.FloorPrice)
	cp.Inventory = new(big.Int).Set(r.Inventory)
	if r.Price != nil {
		cp.Price = new(big.Int).Set(r.Price)
	}
	return &cp
}

var _ interfaces.ForfeitSink = (*Vault)(nil)
