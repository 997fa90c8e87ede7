// Package deployer deploys governors at addresses that can be predicted
// before deployment.
package deployer

import (
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/dual-governance/access"
	"github.com/ruteri/dual-governance/governor"
	"github.com/ruteri/dual-governance/interfaces"
	"github.com/ruteri/dual-governance/ledger"
)

// DeployParams are the per-deployment governor arguments.
type DeployParams struct {
	CashToken  common.Address `json:"cash_token"`
	PowerToken common.Address `json:"power_token"`

	ProposalFee *big.Int `json:"proposal_fee"`
	MinFee      *big.Int `json:"min_proposal_fee"`
	MaxFee      *big.Int `json:"max_proposal_fee"`
	Reward      *big.Int `json:"reward"`

	PowerQuorumRatio uint16 `json:"power_quorum_ratio"`
	ZeroQuorumRatio  uint16 `json:"zero_quorum_ratio"`
}

// Config describes a deployer instance.
type Config struct {
	Address   common.Address
	Registrar common.Address
	ZeroToken common.Address
	Vault     common.Address
	ChainID   *big.Int

	// Timing is applied to every governor deployed; its fee and ratio
	// fields are ignored.
	Timing governor.Params

	Log *slog.Logger
}

// Deployer creates governors wired to the registrar, the zero token and
// the vault. Only the registrar may deploy.
type Deployer struct {
	address   common.Address
	registrar common.Address
	zeroToken common.Address
	vault     common.Address
	chainID   *big.Int
	timing    governor.Params
	auth      *access.Authority
	log       *slog.Logger

	nonce *ledger.Value[uint64]
}

func New(cfg Config) *Deployer {
	return &Deployer{
		address:   cfg.Address,
		registrar: cfg.Registrar,
		zeroToken: cfg.ZeroToken,
		vault:     cfg.Vault,
		chainID:   cfg.ChainID,
		timing:    cfg.Timing,
		auth:      access.NewAuthority("registrar", access.Static(cfg.Registrar)),
		log:       cfg.Log,
		nonce:     ledger.NewValue[uint64](0),
	}
}

func (d *Deployer) Address() common.Address   { return d.address }
func (d *Deployer) Registrar() common.Address { return d.registrar }
func (d *Deployer) ZeroToken() common.Address { return d.zeroToken }
func (d *Deployer) Nonce() uint64             { return d.nonce.Get() }

// GetNextDeploy returns the address the next Deploy will use.
func (d *Deployer) GetNextDeploy() common.Address {
	return crypto.CreateAddress(d.address, d.nonce.Get())
}

// Params builds the governor parameters for p.
func (d *Deployer) Params(p DeployParams) governor.Params {
	params := d.timing
	params.ProposalFee = p.ProposalFee
	params.MinFee = p.MinFee
	params.MaxFee = p.MaxFee
	params.Reward = p.Reward
	params.VoteQuorumRatio = p.PowerQuorumRatio
	params.ValueQuorumRatio = p.ZeroQuorumRatio
	return params.WithDefaults()
}

// Deploy creates a governor at GetNextDeploy() and registers it in the
// ledger directory. Tokens, registrar and vault are resolved through the
// directory, so they must have been registered before.
func (d *Deployer) Deploy(tx *ledger.Tx, p DeployParams) (*governor.Governor, error) {
	if err := d.auth.Authorize(tx); err != nil {
		return nil, err
	}
	params := d.Params(p)
	if err := params.Validate(); err != nil {
		return nil, err
	}

	l := tx.Ledger()
	cash, err := ledger.Lookup[interfaces.Token](l, p.CashToken)
	if err != nil {
		return nil, fmt.Errorf("%w: cash token: %v", interfaces.ErrInvalidParams, err)
	}
	power, err := ledger.Lookup[interfaces.VotingToken](l, p.PowerToken)
	if err != nil {
		return nil, fmt.Errorf("%w: power token: %v", interfaces.ErrInvalidParams, err)
	}
	zero, err := ledger.Lookup[interfaces.RewardToken](l, d.zeroToken)
	if err != nil {
		return nil, fmt.Errorf("%w: zero token: %v", interfaces.ErrInvalidParams, err)
	}
	registry, err := ledger.Lookup[interfaces.RegistryMutator](l, d.registrar)
	if err != nil {
		return nil, fmt.Errorf("%w: registrar: %v", interfaces.ErrInvalidParams, err)
	}
	sink, err := ledger.Lookup[interfaces.ForfeitSink](l, d.vault)
	if err != nil {
		return nil, fmt.Errorf("%w: vault: %v", interfaces.ErrInvalidParams, err)
	}

	address := d.GetNextDeploy()
	g, err := governor.New(governor.Config{
		Address:    address,
		ChainID:    d.chainID,
		Start:      tx.Time(),
		CashToken:  cash,
		VoteToken:  power,
		ValueToken: zero,
		Registrar:  registry,
		Vault:      sink,
		Params:     params,
		Log:        d.log.With("governor", address),
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Register(address, g); err != nil {
		return nil, err
	}
	d.nonce.Set(tx, d.nonce.Get()+1)

	d.log.Info("Governor deployed", "address", address, "nonce", d.nonce.Get(), "fee", params.ProposalFee,
		"powerQuorum", params.VoteQuorumRatio, "zeroQuorum", params.ValueQuorumRatio)
	return g, nil
}
