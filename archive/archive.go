// Package archive keeps a persistent, queryable copy of the event logs
// committed to the ledger.
package archive

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/google/uuid"
	"github.com/ruteri/dual-governance/events"
	"github.com/ruteri/dual-governance/ledger"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	logPrefix = 'l'
	runPrefix = 'r'
)

// DefaultLimit caps queries that do not set one.
const DefaultLimit = 1000

var (
	// ErrRunNotFound is returned when querying a run the archive has no record of.
	ErrRunNotFound = errors.New("archive run not found")
	// ErrClosed is returned by Follow on a closed archive.
	ErrClosed = errors.New("archive closed")
)

// record is the stored form of a committed log.
type record struct {
	Height  uint64
	Index   uint64
	TxHash  common.Hash
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// RunInfo describes one node run recorded in the archive.
type RunInfo struct {
	ID      uuid.UUID `json:"id"`
	Started time.Time `json:"started"`
	Head    uint64    `json:"head"`
	Logs    uint64    `json:"logs"`
}

type runMeta struct {
	Started uint64
	Head    uint64
	Logs    uint64
}

// Event is an archived log, decoded when its emitter's ABI is known.
type Event struct {
	Height  uint64                 `json:"height"`
	Index   uint64                 `json:"index"`
	TxHash  common.Hash            `json:"tx_hash"`
	Address common.Address         `json:"address"`
	Name    string                 `json:"name,omitempty"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
	Topics  []common.Hash          `json:"topics"`
	Data    hexutil.Bytes          `json:"data"`
}

// Filter selects archived events. Zero values match everything.
type Filter struct {
	FromHeight uint64
	ToHeight   uint64
	Address    *common.Address
	Name       string
	Limit      int
}

// Archive persists the logs of committed ledger operations in LevelDB.
// Every node run writes under its own id, since the ledger restarts from
// genesis with each run.
type Archive struct {
	db  *leveldb.DB
	run uuid.UUID

	mu     sync.Mutex
	meta   runMeta
	closed bool

	closing   chan struct{}
	followers sync.WaitGroup

	decoder *events.Registry
	log     *slog.Logger
}

// Open opens or creates the archive database in dir and starts a new run.
func Open(dir string, decoder *events.Registry, log *slog.Logger) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	a, err := New(db, uuid.New(), time.Now(), decoder, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// New starts run in an already opened database.
func New(db *leveldb.DB, run uuid.UUID, started time.Time, decoder *events.Registry, log *slog.Logger) (*Archive, error) {
	a := &Archive{
		db:      db,
		run:     run,
		meta:    runMeta{Started: uint64(started.Unix())},
		closing: make(chan struct{}),
		decoder: decoder,
		log:     log,
	}
	if err := a.putMeta(nil); err != nil {
		return nil, err
	}
	a.log.Info("Archive run started", "run", run)
	return a, nil
}

// Run returns the id of the run being written.
func (a *Archive) Run() uuid.UUID { return a.run }

// Close stops every Follow loop, waits for their last append to finish and
// closes the underlying database.
func (a *Archive) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.closing)
	}
	a.mu.Unlock()

	a.followers.Wait()
	return a.db.Close()
}

func runKey(run uuid.UUID) []byte {
	key := make([]byte, 1+16)
	key[0] = runPrefix
	copy(key[1:], run[:])
	return key
}

func logKey(run uuid.UUID, height, index uint64) []byte {
	key := make([]byte, 1+16+8+8)
	key[0] = logPrefix
	copy(key[1:], run[:])
	binary.BigEndian.PutUint64(key[17:], height)
	binary.BigEndian.PutUint64(key[25:], index)
	return key
}

func (a *Archive) putMeta(batch *leveldb.Batch) error {
	enc, err := rlp.EncodeToBytes(&a.meta)
	if err != nil {
		return err
	}
	if batch != nil {
		batch.Put(runKey(a.run), enc)
		return nil
	}
	return a.db.Put(runKey(a.run), enc, nil)
}

// Append stores the logs of one committed operation.
func (a *Archive) Append(logs []*types.Log) error {
	if len(logs) == 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	batch := new(leveldb.Batch)
	for _, lg := range logs {
		enc, err := rlp.EncodeToBytes(&record{
			Height:  lg.BlockNumber,
			Index:   uint64(lg.Index),
			TxHash:  lg.TxHash,
			Address: lg.Address,
			Topics:  lg.Topics,
			Data:    lg.Data,
		})
		if err != nil {
			return fmt.Errorf("encoding log: %w", err)
		}
		batch.Put(logKey(a.run, lg.BlockNumber, uint64(lg.Index)), enc)
		if lg.BlockNumber > a.meta.Head {
			a.meta.Head = lg.BlockNumber
		}
		a.meta.Logs++
	}
	if err := a.putMeta(batch); err != nil {
		return err
	}
	return a.db.Write(batch, nil)
}

// Follow archives every operation committed to l until ctx is done, the
// archive is closed or the subscription fails.
func (a *Archive) Follow(ctx context.Context, l *ledger.Ledger) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	a.followers.Add(1)
	a.mu.Unlock()
	defer a.followers.Done()

	ch := make(chan []*types.Log, 64)
	sub := l.SubscribeLogs(ch)
	defer sub.Unsubscribe()

	for {
		select {
		case logs := <-ch:
			if err := a.Append(logs); err != nil {
				a.log.Error("Failed to archive logs", "height", logs[0].BlockNumber, "err", err)
			}
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			return nil
		case <-a.closing:
			return nil
		}
	}
}

// Runs lists every run recorded in the archive.
func (a *Archive) Runs() ([]RunInfo, error) {
	it := a.db.NewIterator(util.BytesPrefix([]byte{runPrefix}), nil)
	defer it.Release()

	var runs []RunInfo
	for it.Next() {
		var meta runMeta
		if err := rlp.DecodeBytes(it.Value(), &meta); err != nil {
			return nil, fmt.Errorf("decoding run: %w", err)
		}
		id, err := uuid.FromBytes(it.Key()[1:])
		if err != nil {
			return nil, err
		}
		runs = append(runs, RunInfo{
			ID:      id,
			Started: time.Unix(int64(meta.Started), 0).UTC(),
			Head:    meta.Head,
			Logs:    meta.Logs,
		})
	}
	return runs, it.Error()
}

// Query returns the events of the current run matching f in commit order.
func (a *Archive) Query(f Filter) ([]Event, error) {
	return a.QueryRun(a.run, f)
}

// QueryRun returns the events of run matching f in commit order.
func (a *Archive) QueryRun(run uuid.UUID, f Filter) ([]Event, error) {
	if ok, err := a.db.Has(runKey(run), nil); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, run)
	}

	limit := f.Limit
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}
	// ToHeight of 0 or the maximum height leaves the range open at the end of the run.
	span := util.BytesPrefix(logKey(run, 0, 0)[:1+16])
	span.Start = logKey(run, f.FromHeight, 0)
	if f.ToHeight > 0 && f.ToHeight < ^uint64(0) {
		span.Limit = logKey(run, f.ToHeight+1, 0)
	}

	it := a.db.NewIterator(span, nil)
	defer it.Release()

	var out []Event
	for it.Next() && len(out) < limit {
		var rec record
		if err := rlp.DecodeBytes(it.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decoding log: %w", err)
		}
		if f.Address != nil && rec.Address != *f.Address {
			continue
		}
		ev := a.decode(rec)
		if f.Name != "" && ev.Name != f.Name {
			continue
		}
		out = append(out, ev)
	}
	return out, it.Error()
}

func (a *Archive) decode(rec record) Event {
	ev := Event{
		Height:  rec.Height,
		Index:   rec.Index,
		TxHash:  rec.TxHash,
		Address: rec.Address,
		Topics:  rec.Topics,
		Data:    rec.Data,
	}
	if a.decoder == nil {
		return ev
	}
	decoded, err := a.decoder.Decode(&types.Log{Address: rec.Address, Topics: rec.Topics, Data: rec.Data})
	if err != nil {
		return ev
	}
	ev.Name = decoded.Name
	ev.Fields = make(map[string]interface{}, len(decoded.Fields))
	for k, v := range decoded.Fields {
		ev.Fields[k] = normalize(v)
	}
	return ev
}

// normalize converts ABI values into types with readable JSON encodings.
func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case [32]byte:
		return common.Hash(x)
	case []byte:
		return hexutil.Bytes(x)
	default:
		return v
	}
}
