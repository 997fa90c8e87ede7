package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"slices"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/dual-governance/access"
	"github.com/ruteri/dual-governance/deployer"
	"github.com/ruteri/dual-governance/ledger"
	"github.com/ruteri/dual-governance/list"
	"github.com/ruteri/dual-governance/registrar"
	"github.com/ruteri/dual-governance/token"
	"github.com/ruteri/dual-governance/vault"
)

// Bootstrap creates a ledger and deploys every component described by
// genesis in a single operation sent by the admin:
//
//  1. tokens, with genesis allocations and delegations
//  2. list factory, registrar and deployer
//  3. vault, bound to the governor address the deployer will use next
//  4. governor, deployed through the registrar
//  5. registrar initialization, installing the bootstrap lists and config
//
// A failure at any step leaves nothing deployed.
func Bootstrap(ctx context.Context, genesis *Genesis, clk clock.Clock, log *slog.Logger) (*Node, error) {
	g := genesis.WithDefaults()
	if err := g.Validate(); err != nil {
		return nil, err
	}
	bootstrap, err := g.bootstrapState()
	if err != nil {
		return nil, err
	}

	l := ledger.New(clk, log.With("component", "ledger"))
	allocator := access.NewAuthority("genesis admin", access.Static(g.Admin))

	dep := deployer.New(deployer.Config{
		Address:   g.Deployer,
		Registrar: g.Registrar,
		ZeroToken: g.Zero.Address,
		Vault:     g.Vault,
		ChainID:   g.ChainID,
		Timing:    g.timing(),
		Log:       log.With("component", "deployer"),
	})
	governorAddr := dep.GetNextDeploy()

	n := &Node{
		ledger:   l,
		genesis:  g,
		deployer: dep,
		log:      log,
	}
	n.cash = newToken(g.Cash, g.ChainID, nil, allocator)
	n.power = newToken(g.Power, g.ChainID, nil, allocator)
	n.zero = newToken(g.Zero, g.ChainID, access.NewAuthority("governor", access.Static(governorAddr)), allocator)
	n.factory = list.NewFactory(g.ListFactory)
	n.registrar = registrar.New(registrar.Config{
		Address:            g.Registrar,
		Admin:              g.Admin,
		GovernorDeployer:   g.Deployer,
		PowerTokenDeployer: g.PowerTokenDeployer,
		ZeroToken:          g.Zero.Address,
		Bootstrap:          bootstrap,
		Log:                log.With("component", "registrar"),
	}, n.factory)

	payment := n.tokenAt(g.Auction.PaymentToken)
	n.vault, err = vault.New(vault.Config{
		Address:  g.Vault,
		Governor: governorAddr,
		Cash:     n.cash,
		Payment:  payment,
		Auction:  g.auctionParams(),
		Log:      log.With("component", "vault"),
	})
	if err != nil {
		return nil, err
	}

	receipt, err := l.Apply(ctx, g.Admin, func(tx *ledger.Tx) error {
		components := []struct {
			addr      common.Address
			component any
		}{
			{g.Cash.Address, n.cash},
			{g.Power.Address, n.power},
			{g.Zero.Address, n.zero},
			{g.ListFactory, n.factory},
			{g.Registrar, n.registrar},
			{g.Deployer, dep},
			{g.Vault, n.vault},
		}
		for _, c := range components {
			if err := tx.Register(c.addr, c.component); err != nil {
				return err
			}
		}

		for _, t := range []struct {
			token   *token.Token
			genesis TokenGenesis
		}{{n.cash, g.Cash}, {n.power, g.Power}, {n.zero, g.Zero}} {
			if err := t.token.Allocate(tx, t.genesis.Allocations); err != nil {
				return fmt.Errorf("allocating %s: %w", t.genesis.Symbol, err)
			}
			for _, delegator := range sortedAddresses(t.genesis.Delegations) {
				if err := t.token.Delegate(tx.WithSender(delegator), t.genesis.Delegations[delegator]); err != nil {
					return fmt.Errorf("delegating %s: %w", t.genesis.Symbol, err)
				}
			}
		}

		gov, err := dep.Deploy(tx.WithSender(g.Registrar), g.Deploy)
		if err != nil {
			return fmt.Errorf("deploying governor: %w", err)
		}
		n.governor = gov

		return n.registrar.Initialize(tx, gov.Address())
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	n.genesisLogs = receipt.Logs

	log.Info("Protocol bootstrapped",
		"chainID", g.ChainID,
		"governor", n.governor.Address(),
		"registrar", g.Registrar,
		"vault", g.Vault,
		"height", l.Height())
	return n, nil
}

func newToken(tg TokenGenesis, chainID *big.Int, minter, allocator *access.Authority) *token.Token {
	cfg := token.Config{
		Address:   tg.Address,
		Name:      tg.Name,
		Symbol:    tg.Symbol,
		Decimals:  tg.Decimals,
		ChainID:   chainID,
		Allocator: allocator,
	}
	if minter != nil {
		cfg.Minter = minter
	}
	return token.New(cfg)
}

func sortedAddresses[V any](m map[common.Address]V) []common.Address {
	keys := make([]common.Address, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b common.Address) int { return a.Cmp(b) })
	return keys
}
