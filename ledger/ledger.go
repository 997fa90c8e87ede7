package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/atomic"
)

var (
	// ErrOperationPanicked wraps a panic recovered while applying an operation.
	ErrOperationPanicked = errors.New("operation panicked")

	// ErrContractNotFound is returned when no contract is registered at an address.
	ErrContractNotFound = errors.New("contract not found")

	// ErrContractExists is returned when registering a second contract at an address.
	ErrContractExists = errors.New("contract already registered")

	// ErrContractType is returned when the contract at an address has an unexpected type.
	ErrContractType = errors.New("contract has unexpected type")
)

// Receipt describes a committed operation.
type Receipt struct {
	Height uint64
	Time   time.Time
	TxHash common.Hash
	Logs   []*types.Log
}

// Ledger serializes state-changing operations over the components it hosts.
type Ledger struct {
	mu     sync.RWMutex
	clock  clock.Clock
	height atomic.Uint64

	contracts *Map[common.Address, any]

	logFeed event.Feed
	scope   event.SubscriptionScope

	log *slog.Logger
}

// New creates an empty ledger driven by clk.
func New(clk clock.Clock, log *slog.Logger) *Ledger {
	if clk == nil {
		clk = clock.New()
	}
	return &Ledger{
		clock:     clk,
		contracts: NewMap[common.Address, any](),
		log:       log,
	}
}

// Now returns the ledger clock's current time.
func (l *Ledger) Now() time.Time {
	return l.clock.Now()
}

// Height returns the height of the last applied operation. It does not
// take the ledger lock, so it is safe to call from Read and Apply.
func (l *Ledger) Height() uint64 {
	return l.height.Load()
}

// Apply executes op as a single atomic operation on behalf of sender.
//
// If op returns an error or panics, every journaled write made during the
// operation is reverted and its logs are discarded. On success the logs are
// stamped and delivered to subscribers after the writer lock is released.
func (l *Ledger) Apply(ctx context.Context, sender common.Address, op func(tx *Tx) error) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	height := l.height.Inc()
	f := &frame{
		ledger: l,
		origin: sender,
		height: height,
		time:   l.clock.Now(),
		hash:   operationHash(height, sender),
	}
	tx := &Tx{frame: f, sender: sender}

	if err := l.run(tx, op); err != nil {
		f.journal.revert()
		l.mu.Unlock()
		l.log.Debug("Operation reverted", "height", height, "sender", sender, "err", err)
		return nil, err
	}

	for i, lg := range f.logs {
		lg.BlockNumber = height
		lg.TxHash = f.hash
		lg.Index = uint(i)
	}
	receipt := &Receipt{Height: height, Time: f.time, TxHash: f.hash, Logs: f.logs}
	l.mu.Unlock()

	l.log.Debug("Operation applied", "height", height, "sender", sender, "logs", len(receipt.Logs))
	if len(receipt.Logs) > 0 {
		l.logFeed.Send(receipt.Logs)
	}
	return receipt, nil
}

func (l *Ledger) run(tx *Tx, op func(tx *Tx) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrOperationPanicked, r)
		}
	}()
	return op(tx)
}

// Read runs fn while holding the shared lock, giving it a consistent view
// of component state between operations. fn must not call Apply.
func (l *Ledger) Read(fn func() error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fn()
}

// SubscribeLogs delivers the logs of every committed operation to ch.
func (l *Ledger) SubscribeLogs(ch chan<- []*types.Log) event.Subscription {
	return l.scope.Track(l.logFeed.Subscribe(ch))
}

// Close terminates all log subscriptions.
func (l *Ledger) Close() {
	l.scope.Close()
}

// Contract returns the component registered at addr.
func (l *Ledger) Contract(addr common.Address) (any, bool) {
	return l.contracts.Get(addr)
}

// Lookup resolves the component at addr and asserts its type.
func Lookup[T any](l *Ledger, addr common.Address) (T, error) {
	var zero T
	c, ok := l.Contract(addr)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrContractNotFound, addr.Hex())
	}
	typed, ok := c.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T", ErrContractType, addr.Hex(), c)
	}
	return typed, nil
}

func operationHash(height uint64, sender common.Address) common.Hash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height)
	return crypto.Keccak256Hash(buf[:], sender.Bytes())
}

// frame is the state shared by a Tx and every Tx derived from it.
type frame struct {
	ledger  *Ledger
	origin  common.Address
	height  uint64
	time    time.Time
	hash    common.Hash
	journal journal
	logs    []*types.Log
}

// Tx is the execution context of one operation.
type Tx struct {
	*frame
	sender common.Address
}

// Sender is the immediate caller: the external account for the outermost
// call, or the calling component for nested calls.
func (tx *Tx) Sender() common.Address { return tx.sender }

// Origin is the external account that submitted the operation.
func (tx *Tx) Origin() common.Address { return tx.origin }

// Height is the sequence number assigned to the operation.
func (tx *Tx) Height() uint64 { return tx.height }

// Time is the ledger time at which the operation executes. It is fixed for
// the whole operation.
func (tx *Tx) Time() time.Time { return tx.time }

// Hash identifies the operation.
func (tx *Tx) Hash() common.Hash { return tx.hash }

// Ledger returns the hosting ledger.
func (tx *Tx) Ledger() *Ledger { return tx.ledger }

// WithSender derives a context for a nested call made by caller. The derived
// context shares the journal and the event buffer.
func (tx *Tx) WithSender(caller common.Address) *Tx {
	return &Tx{frame: tx.frame, sender: caller}
}

// OnRevert registers undo to run if the operation fails.
func (tx *Tx) OnRevert(undo func()) {
	tx.journal.append(undo)
}

// Emit buffers an event log. Logs of failed operations are dropped.
func (tx *Tx) Emit(lg *types.Log) {
	tx.logs = append(tx.logs, lg)
}

// Register makes component resolvable at addr for the rest of the ledger's
// lifetime, unless the operation reverts.
func (tx *Tx) Register(addr common.Address, component any) error {
	if tx.ledger.contracts.Has(addr) {
		return fmt.Errorf("%w: %s", ErrContractExists, addr.Hex())
	}
	tx.ledger.contracts.Set(tx, addr, component)
	return nil
}
