package token

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/dual-governance/erc712"
	"github.com/ruteri/dual-governance/events"
	"github.com/ruteri/dual-governance/interfaces"
	"github.com/ruteri/dual-governance/ledger"
)

// ABI declares the events emitted by Token.
var ABI = events.MustParse(`[
	{"type":"event","name":"Transfer","inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}]},
	{"type":"event","name":"Approval","inputs":[
		{"name":"owner","type":"address","indexed":true},
		{"name":"spender","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}]},
	{"type":"event","name":"DelegateChanged","inputs":[
		{"name":"delegator","type":"address","indexed":true},
		{"name":"fromDelegate","type":"address","indexed":true},
		{"name":"toDelegate","type":"address","indexed":true}]},
	{"type":"event","name":"DelegateVotesChanged","inputs":[
		{"name":"delegate","type":"address","indexed":true},
		{"name":"previousBalance","type":"uint256","indexed":false},
		{"name":"newBalance","type":"uint256","indexed":false}]}
]`)

// PermitType is the typed-data struct signed by Permit callers.
const PermitType = "Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)"

var (
	permitTypeHash = erc712.TypeHash(PermitType)
	permitArgs     = erc712.Arguments("bytes32", "address", "address", "uint256", "uint256", "uint256")
)

// Config describes a token instance.
type Config struct {
	Address  common.Address
	Name     string
	Symbol   string
	Decimals uint8
	ChainID  *big.Int

	// Minter may issue new supply. A nil minter disables Mint.
	Minter interfaces.AuthorizedMutator

	// Allocator may seed genesis balances through Allocate.
	Allocator interfaces.AuthorizedMutator
}

type allowanceKey struct {
	owner, spender common.Address
}

// Token is a fungible ledger with checkpointed, delegable voting power.
//
// Accounts that never delegated vote with their own balance. Voting power
// and total supply are checkpointed at the height of every operation that
// changes them, so historical lookups are immune to later transfers.
type Token struct {
	address   common.Address
	name      string
	symbol    string
	decimals  uint8
	minter    interfaces.AuthorizedMutator
	allocator interfaces.AuthorizedMutator
	permits   *erc712.Verifier

	totalSupply *ledger.Value[*big.Int]
	balances    *ledger.Map[common.Address, *big.Int]
	allowances  *ledger.Map[allowanceKey, *big.Int]
	delegates   *ledger.Map[common.Address, common.Address]

	votes       *ledger.Map[common.Address, []Checkpoint]
	supplyTrace *ledger.Value[[]Checkpoint]
}

// New creates an empty token.
func New(cfg Config) *Token {
	return &Token{
		address:   cfg.Address,
		name:      cfg.Name,
		symbol:    cfg.Symbol,
		decimals:  cfg.Decimals,
		minter:    cfg.Minter,
		allocator: cfg.Allocator,
		permits: erc712.NewVerifier(erc712.Domain{
			Name:              cfg.Name,
			Version:           "1",
			ChainID:           cfg.ChainID,
			VerifyingContract: cfg.Address,
		}),
		totalSupply: ledger.NewValue(new(big.Int)),
		balances:    ledger.NewMap[common.Address, *big.Int](),
		allowances:  ledger.NewMap[allowanceKey, *big.Int](),
		delegates:   ledger.NewMap[common.Address, common.Address](),
		votes:       ledger.NewMap[common.Address, []Checkpoint](),
		supplyTrace: ledger.NewValue[[]Checkpoint](nil),
	}
}

func (t *Token) Address() common.Address { return t.address }
func (t *Token) Name() string            { return t.name }
func (t *Token) Symbol() string          { return t.symbol }
func (t *Token) Decimals() uint8         { return t.decimals }

func (t *Token) TotalSupply() *big.Int {
	return new(big.Int).Set(t.totalSupply.Get())
}

func (t *Token) BalanceOf(account common.Address) *big.Int {
	if b, ok := t.balances.Get(account); ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	if a, ok := t.allowances.Get(allowanceKey{owner, spender}); ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// Transfer moves amount from the caller to to.
func (t *Token) Transfer(tx *ledger.Tx, to common.Address, amount *big.Int) error {
	return t.transfer(tx, tx.Sender(), to, amount)
}

// TransferFrom moves amount from from to to using the caller's allowance.
func (t *Token) TransferFrom(tx *ledger.Tx, from, to common.Address, amount *big.Int) error {
	if err := t.spendAllowance(tx, from, tx.Sender(), amount); err != nil {
		return err
	}
	return t.transfer(tx, from, to, amount)
}

// Approve sets the caller's allowance for spender.
func (t *Token) Approve(tx *ledger.Tx, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return interfaces.ErrInvalidAmount
	}
	return t.approve(tx, tx.Sender(), spender, amount)
}

func (t *Token) IncreaseAllowance(tx *ledger.Tx, spender common.Address, added *big.Int) error {
	if added == nil || added.Sign() < 0 {
		return interfaces.ErrInvalidAmount
	}
	current := t.Allowance(tx.Sender(), spender)
	return t.approve(tx, tx.Sender(), spender, current.Add(current, added))
}

func (t *Token) DecreaseAllowance(tx *ledger.Tx, spender common.Address, subtracted *big.Int) error {
	if subtracted == nil || subtracted.Sign() < 0 {
		return interfaces.ErrInvalidAmount
	}
	current := t.Allowance(tx.Sender(), spender)
	if current.Cmp(subtracted) < 0 {
		return fmt.Errorf("%w: decreased below zero", interfaces.ErrInsufficientAllowance)
	}
	return t.approve(tx, tx.Sender(), spender, current.Sub(current, subtracted))
}

// Permit sets an allowance from an owner's signed approval.
func (t *Token) Permit(tx *ledger.Tx, owner, spender common.Address, value *big.Int, deadline uint64, sig []byte) error {
	if value == nil || value.Sign() < 0 {
		return interfaces.ErrInvalidAmount
	}
	nonce := t.permits.Nonces(owner)
	structHash, err := t.PermitHash(owner, spender, value, nonce, deadline)
	if err != nil {
		return err
	}
	if err := t.permits.Verify(tx, owner, structHash, nonce, deadline, sig); err != nil {
		return err
	}
	return t.approve(tx, owner, spender, value)
}

// PermitHash returns the struct hash an owner signs for Permit.
func (t *Token) PermitHash(owner, spender common.Address, value *big.Int, nonce, deadline uint64) (common.Hash, error) {
	return erc712.HashStruct(permitArgs, permitTypeHash, owner, spender, value,
		new(big.Int).SetUint64(nonce), new(big.Int).SetUint64(deadline))
}

// PermitDigest returns the digest to sign for PermitHash.
func (t *Token) PermitDigest(structHash common.Hash) common.Hash {
	return t.permits.Digest(structHash)
}

// Nonces returns the next permit nonce of owner.
func (t *Token) Nonces(owner common.Address) uint64 {
	return t.permits.Nonces(owner)
}

// Mint issues amount of new supply to to. Only the minter may call it.
func (t *Token) Mint(tx *ledger.Tx, to common.Address, amount *big.Int) error {
	if t.minter == nil {
		return fmt.Errorf("%w: minting disabled", interfaces.ErrUnauthorized)
	}
	if err := t.minter.Authorize(tx); err != nil {
		return err
	}
	return t.mint(tx, to, amount)
}

// Allocate mints genesis balances in address order.
func (t *Token) Allocate(tx *ledger.Tx, allocations map[common.Address]*big.Int) error {
	if t.allocator == nil {
		return fmt.Errorf("%w: allocation disabled", interfaces.ErrUnauthorized)
	}
	if err := t.allocator.Authorize(tx); err != nil {
		return err
	}
	accounts := make([]common.Address, 0, len(allocations))
	for account := range allocations {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Cmp(accounts[j]) < 0 })
	for _, account := range accounts {
		if err := t.mint(tx, account, allocations[account]); err != nil {
			return err
		}
	}
	return nil
}

func (t *Token) mint(tx *ledger.Tx, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return interfaces.ErrInvalidAmount
	}
	if to == (common.Address{}) {
		return fmt.Errorf("%w: mint to zero address", interfaces.ErrInvalidAmount)
	}
	supply := new(big.Int).Add(t.totalSupply.Get(), amount)
	t.totalSupply.Set(tx, supply)
	t.supplyTrace.Set(tx, push(t.supplyTrace.Get(), tx.Height(), supply))

	t.balances.Set(tx, to, new(big.Int).Add(t.BalanceOf(to), amount))
	t.moveVotes(tx, common.Address{}, t.Delegates(to), amount)
	return t.emit(tx, "Transfer", common.Address{}, to, amount)
}

func (t *Token) transfer(tx *ledger.Tx, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return interfaces.ErrInvalidAmount
	}
	if to == (common.Address{}) {
		return fmt.Errorf("%w: transfer to zero address", interfaces.ErrTransferFailed)
	}
	balance := t.BalanceOf(from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", interfaces.ErrInsufficientBalance, from.Hex(), balance, amount)
	}
	if from != to {
		t.balances.Set(tx, from, balance.Sub(balance, amount))
		t.balances.Set(tx, to, new(big.Int).Add(t.BalanceOf(to), amount))
		t.moveVotes(tx, t.Delegates(from), t.Delegates(to), amount)
	}
	return t.emit(tx, "Transfer", from, to, amount)
}

func (t *Token) approve(tx *ledger.Tx, owner, spender common.Address, amount *big.Int) error {
	t.allowances.Set(tx, allowanceKey{owner, spender}, new(big.Int).Set(amount))
	return t.emit(tx, "Approval", owner, spender, amount)
}

func (t *Token) spendAllowance(tx *ledger.Tx, owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return interfaces.ErrInvalidAmount
	}
	allowance := t.Allowance(owner, spender)
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s allowed %s, needs %s", interfaces.ErrInsufficientAllowance, spender.Hex(), allowance, amount)
	}
	t.allowances.Set(tx, allowanceKey{owner, spender}, allowance.Sub(allowance, amount))
	return nil
}

func (t *Token) emit(tx *ledger.Tx, name string, args ...interface{}) error {
	lg, err := events.NewLog(ABI, t.address, name, args...)
	if err != nil {
		return err
	}
	tx.Emit(lg)
	return nil
}

var _ interfaces.RewardToken = (*Token)(nil)
