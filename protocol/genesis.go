package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/dual-governance/deployer"
	"github.com/ruteri/dual-governance/governor"
	"github.com/ruteri/dual-governance/interfaces"
	"github.com/ruteri/dual-governance/registrar"
	"github.com/ruteri/dual-governance/vault"
)

// Duration is a time.Duration written as a Go duration string in JSON.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// TokenGenesis describes one token and its initial distribution.
type TokenGenesis struct {
	Address  common.Address `json:"address,omitempty"`
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`

	Allocations map[common.Address]*big.Int `json:"allocations,omitempty"`

	// Delegations maps delegators to delegatees. Accounts not listed vote
	// with their own balance.
	Delegations map[common.Address]common.Address `json:"delegations,omitempty"`
}

// BootstrapGenesis is the registry content installed at initialization and
// restored by a reset. Keys are short names or 0x-prefixed bytes32 values.
type BootstrapGenesis struct {
	Lists  map[string][]common.Address `json:"lists,omitempty"`
	Config map[string]string           `json:"config,omitempty"`
}

// GovernorGenesis holds the timing of the deployed governor. Fees and
// ratios come from Genesis.Deploy.
type GovernorGenesis struct {
	VotingDelay             Duration `json:"voting_delay"`
	VotingPeriod            Duration `json:"voting_period"`
	ExecutionWindow         Duration `json:"execution_window"`
	EpochDuration           Duration `json:"epoch_duration"`
	TargetProposalsPerEpoch uint64   `json:"target_proposals_per_epoch"`
}

// AuctionGenesis configures the vault.
type AuctionGenesis struct {
	// PaymentToken is what buyers pay with and voters are rewarded in.
	// Defaults to the power token.
	PaymentToken common.Address `json:"payment_token,omitempty"`

	StartPrice *big.Int             `json:"start_price"`
	FloorPrice *big.Int             `json:"floor_price"`
	Decay      interfaces.DecayKind `json:"decay"`
	Period     Duration             `json:"period"`
	Duration   Duration             `json:"duration"`
}

// Genesis is the document a node bootstraps from.
type Genesis struct {
	ChainID *big.Int       `json:"chain_id"`
	Admin   common.Address `json:"admin"`

	Cash  TokenGenesis `json:"cash"`
	Power TokenGenesis `json:"power"`
	Zero  TokenGenesis `json:"zero"`

	ListFactory common.Address `json:"list_factory,omitempty"`
	Registrar   common.Address `json:"registrar,omitempty"`
	Deployer    common.Address `json:"deployer,omitempty"`
	Vault       common.Address `json:"vault,omitempty"`

	// PowerTokenDeployer is published through the registrar and defaults to
	// Deployer.
	PowerTokenDeployer common.Address `json:"power_token_deployer,omitempty"`

	Bootstrap BootstrapGenesis `json:"bootstrap"`

	// Deploy carries the governor fee and quorum parameters. Its token
	// addresses are filled from Cash and Power when empty.
	Deploy   deployer.DeployParams `json:"deploy"`
	Governor GovernorGenesis       `json:"governor"`
	Auction  AuctionGenesis        `json:"auction"`
}

// WithDefaults returns a copy with every unset component address derived
// from the admin address and the deploy token addresses filled in.
func (g Genesis) WithDefaults() Genesis {
	slots := []*common.Address{
		&g.Cash.Address, &g.Power.Address, &g.Zero.Address,
		&g.ListFactory, &g.Registrar, &g.Deployer, &g.Vault,
	}
	for i, addr := range slots {
		if *addr == (common.Address{}) {
			*addr = crypto.CreateAddress(g.Admin, uint64(i))
		}
	}
	if g.PowerTokenDeployer == (common.Address{}) {
		g.PowerTokenDeployer = g.Deployer
	}
	if g.Deploy.CashToken == (common.Address{}) {
		g.Deploy.CashToken = g.Cash.Address
	}
	if g.Deploy.PowerToken == (common.Address{}) {
		g.Deploy.PowerToken = g.Power.Address
	}
	if g.Auction.PaymentToken == (common.Address{}) {
		g.Auction.PaymentToken = g.Power.Address
	}
	return g
}

// Validate checks the parts of the document that are not checked by the
// components themselves. Call it on the result of WithDefaults.
func (g Genesis) Validate() error {
	if g.ChainID == nil || g.ChainID.Sign() <= 0 {
		return fmt.Errorf("%w: chain id must be positive", interfaces.ErrInvalidParams)
	}
	if g.Admin == (common.Address{}) {
		return fmt.Errorf("%w: admin must be set", interfaces.ErrInvalidParams)
	}

	seen := make(map[common.Address]string)
	for name, addr := range g.addresses() {
		if other, ok := seen[addr]; ok {
			return fmt.Errorf("%w: %s and %s share address %s", interfaces.ErrInvalidParams, name, other, addr.Hex())
		}
		seen[addr] = name
	}

	switch g.Auction.PaymentToken {
	case g.Cash.Address, g.Power.Address, g.Zero.Address:
	default:
		return fmt.Errorf("%w: auction payment token %s is not a genesis token", interfaces.ErrInvalidParams, g.Auction.PaymentToken.Hex())
	}

	if _, err := g.bootstrapState(); err != nil {
		return err
	}
	return nil
}

func (g Genesis) addresses() map[string]common.Address {
	return map[string]common.Address{
		"cash":         g.Cash.Address,
		"power":        g.Power.Address,
		"zero":         g.Zero.Address,
		"list_factory": g.ListFactory,
		"registrar":    g.Registrar,
		"deployer":     g.Deployer,
		"vault":        g.Vault,
	}
}

func (g Genesis) bootstrapState() (registrar.State, error) {
	state := registrar.State{
		Lists:  make(map[common.Hash][]common.Address, len(g.Bootstrap.Lists)),
		Config: make(map[common.Hash]common.Hash, len(g.Bootstrap.Config)),
	}
	for name, accounts := range g.Bootstrap.Lists {
		id, err := interfaces.ParseKey(name)
		if err != nil {
			return registrar.State{}, fmt.Errorf("%w: list %v", interfaces.ErrInvalidParams, err)
		}
		for _, account := range accounts {
			if account == (common.Address{}) {
				return registrar.State{}, fmt.Errorf("%w: zero account in list %s", interfaces.ErrInvalidParams, name)
			}
		}
		state.Lists[id] = append([]common.Address(nil), accounts...)
	}
	for name, value := range g.Bootstrap.Config {
		key, err := interfaces.ParseKey(name)
		if err != nil {
			return registrar.State{}, fmt.Errorf("%w: config key %v", interfaces.ErrInvalidParams, err)
		}
		v, err := interfaces.ParseKey(value)
		if err != nil {
			return registrar.State{}, fmt.Errorf("%w: config value %v", interfaces.ErrInvalidParams, err)
		}
		state.Config[key] = v
	}
	return state, nil
}

func (g Genesis) timing() governor.Params {
	return governor.Params{
		VotingDelay:             time.Duration(g.Governor.VotingDelay),
		VotingPeriod:            time.Duration(g.Governor.VotingPeriod),
		ExecutionWindow:         time.Duration(g.Governor.ExecutionWindow),
		EpochDuration:           time.Duration(g.Governor.EpochDuration),
		TargetProposalsPerEpoch: g.Governor.TargetProposalsPerEpoch,
	}
}

func (g Genesis) auctionParams() vault.AuctionParams {
	return vault.AuctionParams{
		StartPrice: g.Auction.StartPrice,
		FloorPrice: g.Auction.FloorPrice,
		Decay:      g.Auction.Decay,
		Period:     time.Duration(g.Auction.Period),
		Duration:   time.Duration(g.Auction.Duration),
	}
}

// ParseGenesis decodes a genesis document, rejecting unknown fields.
func ParseGenesis(data []byte) (*Genesis, error) {
	var g Genesis
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&g); err != nil {
		return nil, fmt.Errorf("%w: decoding genesis: %v", interfaces.ErrInvalidParams, err)
	}
	return &g, nil
}

// LoadGenesisFile reads a genesis document from disk.
func LoadGenesisFile(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis: %w", err)
	}
	return ParseGenesis(data)
}

// FetchGenesis loads a genesis document by content id from backend.
func FetchGenesis(ctx context.Context, backend interfaces.StorageBackend, id interfaces.ContentID) (*Genesis, error) {
	data, err := backend.Fetch(ctx, id, interfaces.GenesisType)
	if err != nil {
		return nil, fmt.Errorf("fetching genesis %s: %w", id, err)
	}
	return ParseGenesis(data)
}

// PublishGenesis stores g in backend and returns its content id.
func PublishGenesis(ctx context.Context, backend interfaces.StorageBackend, g *Genesis) (interfaces.ContentID, error) {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return interfaces.ContentID{}, err
	}
	return backend.Store(ctx, data, interfaces.GenesisType)
}
