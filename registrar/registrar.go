package registrar

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/dual-governance/access"
	"github.com/ruteri/dual-governance/events"
	"github.com/ruteri/dual-governance/interfaces"
	"github.com/ruteri/dual-governance/ledger"
	"github.com/ruteri/dual-governance/list"
)

// ErrAlreadyInitialized is returned by a second call to Initialize.
var ErrAlreadyInitialized = errors.New("registrar already initialized")

// ABI declares the events emitted by the registrar.
var ABI = events.MustParse(`[
	{"type":"event","name":"AddressAddedToList","inputs":[
		{"name":"list","type":"bytes32","indexed":true},
		{"name":"account","type":"address","indexed":true}]},
	{"type":"event","name":"AddressRemovedFromList","inputs":[
		{"name":"list","type":"bytes32","indexed":true},
		{"name":"account","type":"address","indexed":true}]},
	{"type":"event","name":"ConfigUpdated","inputs":[
		{"name":"key","type":"bytes32","indexed":true},
		{"name":"value","type":"bytes32","indexed":true}]},
	{"type":"event","name":"ResetExecuted","inputs":[]}
]`)

// State is a full copy of the registry contents.
type State struct {
	Lists  map[common.Hash][]common.Address `json:"lists"`
	Config map[common.Hash]common.Hash      `json:"config"`
}

// Config describes a registrar instance.
type Config struct {
	Address          common.Address
	Admin            common.Address
	GovernorDeployer common.Address
	ZeroToken        common.Address

	// PowerTokenDeployer is reported to integrators only. Power token
	// supply is fixed at genesis, so nothing on the ledger deploys through it.
	PowerTokenDeployer common.Address

	// Bootstrap is the state installed by Initialize and restored by Reset.
	Bootstrap State

	Log *slog.Logger
}

// Registrar is the governed registry of address lists and config values.
type Registrar struct {
	address            common.Address
	governorDeployer   common.Address
	powerTokenDeployer common.Address
	zeroToken          common.Address

	admin    *access.Authority
	governed *access.Authority
	owner    *access.Authority

	governor *ledger.Value[common.Address]
	factory  *list.Factory
	config   *ledger.Map[common.Hash, common.Hash]

	bootstrap State
	log       *slog.Logger
}

// New creates an uninitialized registrar. Lists are deployed by factory.
func New(cfg Config, factory *list.Factory) *Registrar {
	r := &Registrar{
		address:            cfg.Address,
		governorDeployer:   cfg.GovernorDeployer,
		powerTokenDeployer: cfg.PowerTokenDeployer,
		zeroToken:          cfg.ZeroToken,
		governor:           ledger.NewValue(common.Address{}),
		factory:            factory,
		config:             ledger.NewMap[common.Hash, common.Hash](),
		bootstrap:          copyState(cfg.Bootstrap),
		log:                cfg.Log,
	}
	r.admin = access.NewAuthority("registrar admin", access.Static(cfg.Admin))
	r.governed = access.NewAuthority("governor", r.governor.Get)
	r.owner = access.NewAuthority("registrar", access.Static(cfg.Address))
	return r
}

func (r *Registrar) Address() common.Address            { return r.address }
func (r *Registrar) Governor() common.Address           { return r.governor.Get() }
func (r *Registrar) GovernorDeployer() common.Address   { return r.governorDeployer }
func (r *Registrar) PowerTokenDeployer() common.Address { return r.powerTokenDeployer }
func (r *Registrar) ZeroToken() common.Address          { return r.zeroToken }

// Initialize binds the governor and installs the bootstrap state. It can be
// called once, by the admin.
func (r *Registrar) Initialize(tx *ledger.Tx, governor common.Address) error {
	if err := r.admin.Authorize(tx); err != nil {
		return err
	}
	if r.governor.Get() != (common.Address{}) {
		return ErrAlreadyInitialized
	}
	if governor == (common.Address{}) {
		return fmt.Errorf("%w: zero governor", interfaces.ErrInvalidParams)
	}
	r.governor.Set(tx, governor)

	for _, id := range sortedKeys(r.bootstrap.Lists) {
		for _, account := range r.bootstrap.Lists[id] {
			if err := r.addToList(tx, id, account); err != nil {
				return err
			}
		}
	}
	for _, key := range sortedKeys(r.bootstrap.Config) {
		if err := r.updateConfig(tx, key, r.bootstrap.Config[key]); err != nil {
			return err
		}
	}
	r.log.Info("Registrar initialized", "governor", governor, "lists", len(r.bootstrap.Lists), "config", len(r.bootstrap.Config))
	return nil
}

// Get returns the config value for key, or the zero value.
func (r *Registrar) Get(key common.Hash) common.Hash {
	v, _ := r.config.Get(key)
	return v
}

// GetMany returns the config values for keys, in order.
func (r *Registrar) GetMany(keys []common.Hash) []common.Hash {
	values := make([]common.Hash, len(keys))
	for i, key := range keys {
		values[i] = r.Get(key)
	}
	return values
}

// ListContains reports whether account is a member of list.
func (r *Registrar) ListContains(id common.Hash, account common.Address) bool {
	l, ok := r.factory.Lookup(id)
	return ok && l.Contains(account)
}

// ListContainsAll reports whether every account is a member of list. An
// empty account set is trivially contained.
func (r *Registrar) ListContainsAll(id common.Hash, accounts []common.Address) bool {
	for _, account := range accounts {
		if !r.ListContains(id, account) {
			return false
		}
	}
	return true
}

// ListMembers returns the members of list sorted by address.
func (r *Registrar) ListMembers(id common.Hash) []common.Address {
	l, ok := r.factory.Lookup(id)
	if !ok {
		return []common.Address{}
	}
	return l.Members()
}

// ListAddress returns the deterministic address of the list instance for id.
func (r *Registrar) ListAddress(id common.Hash) common.Address {
	return r.factory.Derive(id)
}

// AddToList adds account to list. Adding a member again is a no-op.
func (r *Registrar) AddToList(tx *ledger.Tx, id common.Hash, account common.Address) error {
	if err := r.governed.Authorize(tx); err != nil {
		return err
	}
	return r.addToList(tx, id, account)
}

// RemoveFromList removes account from list. Removing a non-member is a no-op.
func (r *Registrar) RemoveFromList(tx *ledger.Tx, id common.Hash, account common.Address) error {
	if err := r.governed.Authorize(tx); err != nil {
		return err
	}
	return r.removeFromList(tx, id, account)
}

// UpdateConfig sets key to value; the last write wins.
func (r *Registrar) UpdateConfig(tx *ledger.Tx, key, value common.Hash) error {
	if err := r.governed.Authorize(tx); err != nil {
		return err
	}
	return r.updateConfig(tx, key, value)
}

// Reset restores every list and config entry to the bootstrap state.
// Lists created after bootstrap are emptied.
func (r *Registrar) Reset(tx *ledger.Tx) error {
	if err := r.governed.Authorize(tx); err != nil {
		return err
	}

	ids := r.factory.IDs()
	for _, id := range sortedKeys(r.bootstrap.Lists) {
		if _, ok := r.factory.Lookup(id); !ok {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		desired := make(map[common.Address]struct{}, len(r.bootstrap.Lists[id]))
		for _, account := range r.bootstrap.Lists[id] {
			desired[account] = struct{}{}
		}
		for _, member := range r.ListMembers(id) {
			if _, keep := desired[member]; !keep {
				if err := r.removeFromList(tx, id, member); err != nil {
					return err
				}
			}
		}
		for _, account := range r.bootstrap.Lists[id] {
			if err := r.addToList(tx, id, account); err != nil {
				return err
			}
		}
	}

	for _, key := range r.config.Keys() {
		if _, ok := r.bootstrap.Config[key]; !ok {
			r.config.Delete(tx, key)
		}
	}
	for key, value := range r.bootstrap.Config {
		r.config.Set(tx, key, value)
	}

	if err := r.emit(tx, "ResetExecuted"); err != nil {
		return err
	}
	r.log.Info("Registry reset to bootstrap state", "height", tx.Height())
	return nil
}

// State returns a copy of the current registry contents.
func (r *Registrar) State() State {
	s := State{
		Lists:  make(map[common.Hash][]common.Address),
		Config: make(map[common.Hash]common.Hash),
	}
	for _, id := range r.factory.IDs() {
		s.Lists[id] = r.ListMembers(id)
	}
	r.config.Range(func(k, v common.Hash) bool {
		s.Config[k] = v
		return true
	})
	return s
}

// Bootstrap returns a copy of the bootstrap state.
func (r *Registrar) Bootstrap() State {
	return copyState(r.bootstrap)
}

func (r *Registrar) addToList(tx *ledger.Tx, id common.Hash, account common.Address) error {
	l, err := r.factory.ListFor(tx, id, r.owner)
	if err != nil {
		return err
	}
	added, err := l.Add(tx.WithSender(r.address), account)
	if err != nil || !added {
		return err
	}
	return r.emit(tx, "AddressAddedToList", id, account)
}

func (r *Registrar) removeFromList(tx *ledger.Tx, id common.Hash, account common.Address) error {
	l, ok := r.factory.Lookup(id)
	if !ok {
		return nil
	}
	removed, err := l.Remove(tx.WithSender(r.address), account)
	if err != nil || !removed {
		return err
	}
	return r.emit(tx, "AddressRemovedFromList", id, account)
}

func (r *Registrar) updateConfig(tx *ledger.Tx, key, value common.Hash) error {
	r.config.Set(tx, key, value)
	return r.emit(tx, "ConfigUpdated", key, value)
}

func (r *Registrar) emit(tx *ledger.Tx, name string, args ...interface{}) error {
	lg, err := events.NewLog(ABI, r.address, name, args...)
	if err != nil {
		return err
	}
	tx.Emit(lg)
	return nil
}

func copyState(s State) State {
	cp := State{
		Lists:  make(map[common.Hash][]common.Address, len(s.Lists)),
		Config: make(map[common.Hash]common.Hash, len(s.Config)),
	}
	for id, accounts := range s.Lists {
		cp.Lists[id] = append([]common.Address(nil), accounts...)
	}
	for k, v := range s.Config {
		cp.Config[k] = v
	}
	return cp
}

func sortedKeys[V any](m map[common.Hash]V) []common.Hash {
	keys := make([]common.Hash, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	return keys
}

var _ interfaces.Registry = (*Registrar)(nil)
