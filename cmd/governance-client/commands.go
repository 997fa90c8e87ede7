package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/dual-governance/api/clients"
	"github.com/ruteri/dual-governance/cmd/flags"
	"github.com/ruteri/dual-governance/interfaces"
	"github.com/urfave/cli/v2"
)

type command func(ctx context.Context, c *clients.GovernanceClient, cCtx *cli.Context) (any, error)

// withClient runs cmd against the configured node and prints its result
// as indented JSON.
func withClient(cmd command) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		c := clients.NewGovernanceClient(strings.TrimSuffix(cCtx.String(flags.NodeAddrFlag.Name), "/"))
		out, err := cmd(cCtx.Context, c, cCtx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 0)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

func parseID(s string) (common.Hash, error) {
	b := common.FromHex(s)
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid proposal id %q", s)
	}
	return common.BytesToHash(b), nil
}

func arg(cCtx *cli.Context, i int, name string) (string, error) {
	if cCtx.NArg() <= i {
		return "", fmt.Errorf("missing %s argument", name)
	}
	return cCtx.Args().Get(i), nil
}

func from(cCtx *cli.Context) (common.Address, error) {
	return parseAddress(cCtx.String(flagFrom.Name))
}

// resolveToken accepts a token address or the symbol of a genesis token.
func resolveToken(ctx context.Context, c *clients.GovernanceClient, s string) (common.Address, error) {
	if common.IsHexAddress(s) {
		return common.HexToAddress(s), nil
	}
	account, err := c.Account(ctx, common.Address{})
	if err != nil {
		return common.Address{}, err
	}
	for _, t := range account.Tokens {
		if strings.EqualFold(t.Symbol, s) {
			return t.Token, nil
		}
	}
	return common.Address{}, fmt.Errorf("unknown token %q", s)
}

func cmdConfig(ctx context.Context, c *clients.GovernanceClient, cCtx *cli.Context) (any, error) {
	keys := make([]common.Hash, 0, cCtx.NArg())
	for _, raw := range cCtx.Args().Slice() {
		key, err := interfaces.ParseKey(raw)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return c.Config(ctx, keys...)
}

func cmdList(ctx context.Context, c *clients.GovernanceClient, cCtx *cli.Context) (any, error) {
	raw, err := arg(cCtx, 0, "LIST")
	if err != nil {
		return nil, err
	}
	list, err := interfaces.ParseKey(raw)
	if err != nil {
		return nil, err
	}
	return c.ListMembers(ctx, list)
}

func cmdContains(ctx context.Context, c *clients.GovernanceClient, cCtx *cli.Context) (any, error) {
	raw, err := arg(cCtx, 0, "LIST")
	if err != nil {
		return nil, err
	}
	list, err := interfaces.ParseKey(raw)
	if err != nil {
		return nil, err
	}
	var accounts []common.Address
	for _, s := range cCtx.Args().Tail() {
		a, err := parseAddress(s)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return c.ListContains(ctx, list, accounts...)
}

func cmdGovernor(ctx context.Context, c *clients.GovernanceClient, _ *cli.Context) (any, error) {
	return c.Governor(ctx)
}

func cmdEpoch(ctx context.Context, c *clients.GovernanceClient, _ *cli.Context) (any, error) {
	return c.Epoch(ctx)
}

func cmdProposals(ctx context.Context, c *clients.GovernanceClient, cCtx *cli.Context) (any, error) {
	if cCtx.NArg() == 0 {
		return c.Proposals(ctx)
	}
	id, err := parseID(cCtx.Args().First())
	if err != nil {
		return nil, err
	}
	return c.Proposal(ctx, id)
}

func mutationFromFlags(cCtx *cli.Context) (interfaces.Mutation, error) {
	var m interfaces.Mutation
	if err := m.Kind.UnmarshalText([]byte(cCtx.String("kind"))); err != nil {
		return m, err
	}
	var err error
	if s := cCtx.String("list"); s != "" {
		if m.List, err = interfaces.ParseKey(s); err != nil {
			return m, err
		}
	}
	if s := cCtx.String("account"); s != "" {
		if m.Account, err = parseAddress(s); err != nil {
			return m, err
		}
	}
	if s := cCtx.String("key"); s != "" {
		if m.Key, err = interfaces.ParseKey(s); err != nil {
			return m, err
		}
	}
	if s := cCtx.String("value"); s != "" {
		if m.Value, err = interfaces.ParseKey(s); err != nil {
			return m, err
		}
	}
	return m, m.Validate()
}

func cmdPropose(ctx context.Context, c *clients.GovernanceClient, cCtx *cli.Context) (any, error) {
	sender, err := from(cCtx)
	if err != nil {
		return nil, err
	}
	mutation, err := mutationFromFlags(cCtx)
	if err != nil {
		return nil, err
	}

	var fee *big.Int
	if s := cCtx.String("fee"); s != "" {
		if fee, err = parseAmount(s); err != nil {
			return nil, err
		}
	} else {
		epoch, err := c.Epoch(ctx)
		if err != nil {
			return nil, err
		}
		fee = epoch.CurrentFee
	}

	if cCtx.Bool("approve") {
		gov, err := c.Governor(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := c.Approve(ctx, sender, gov.FeeToken, gov.Address, fee); err != nil {
			return nil, fmt.Errorf("approving fee: %w", err)
		}
	}
	return c.Propose(ctx, sender, mutation, fee)
}

func ballotFlags(cCtx *cli.Context) (common.Hash, interfaces.Support, interfaces.Track, error) {
	raw, err := arg(cCtx, 0, "ID")
	if err != nil {
		return common.Hash{}, 0, 0, err
	}
	id, err := parseID(raw)
	if err != nil {
		return common.Hash{}, 0, 0, err
	}
	support, err := interfaces.ParseSupport(cCtx.String(flagSupport.Name))
	if err != nil {
		return common.Hash{}, 0, 0, err
	}
	track, err := interfaces.ParseTrack(cCtx.String(flagTrack.Name))
	if err != nil {
		return common.Hash{}, 0, 0, err
	}
	return id, support, track, nil
}

func cmdVote(ctx context.Context, c *clients.GovernanceClient, cCtx *cli.Context) (any, error) {
	sender, err := from(cCtx)
	if err != nil {
		return nil, err
	}
	id, support, track, err := ballotFlags(cCtx)
	if err != nil {
		return nil, err
	}
	return c.Vote(ctx, sender, id, support, track)
}

func cmdSignVote(ctx context.Context, c *clients.GovernanceClient, cCtx *cli.Context) (any, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cCtx.String("private-key"), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	relayer, err := parseAddress(cCtx.String("relayer"))
	if err != nil {
		return nil, err
	}
	id, support, track, err := ballotFlags(cCtx)
	if err != nil {
		return nil, err
	}
	deadline := uint64(time.Now().Add(cCtx.Duration("valid-for")).Unix())
	ballot, err := c.SignBallot(ctx, key, id, support, track, deadline)
	if err != nil {
		return nil, err
	}
	return c.RelayVote(ctx, relayer, id, *ballot)
}

func cmdResolve(ctx context.Context, c *clients.GovernanceClient, cCtx *cli.Context) (any, error) {
	sender, err := from(cCtx)
	if err != nil {
		return nil, err
	}
	raw, err := arg(cCtx, 0, "ID")
	if err != nil {
		return nil, err
	}
	id, err := parseID(raw)
	if err != nil {
		return nil, err
	}
	return c.Resolve(ctx, sender, id)
}

func cmdAuction(ctx context.Context, c *clients.GovernanceClient, _ *cli.Context) (any, error) {
	return c.Auction(ctx)
}

func cmdOpenRound(ctx context.Context, c *clients.GovernanceClient, cCtx *cli.Context) (any, error) {
	sender, err := from(cCtx)
	if err != nil {
		return nil, err
	}
	return c.OpenRound(ctx, sender)
}

func cmdExpireRound(ctx context.Context, c *clients.GovernanceClient, cCtx *cli.Context) (any, error) {
	sender, err := from(cCtx)
	if err != nil {
		return nil, err
	}
	return c.ExpireRound(ctx, sender)
}

func cmdSettle(ctx context.Context, c *clients.GovernanceClient, cCtx *cli.Context) (any, error) {
	sender, err := from(cCtx)
	if err != nil {
		return nil, err
	}
	maxPayment, err := parseAmount(cCtx.String("max"))
	if err != nil {
		return nil, err
	}
	if cCtx.Bool("approve") {
		status, err := c.Auction(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := c.Approve(ctx, sender, status.PaymentToken, status.Vault, maxPayment); err != nil {
			return nil, fmt.Errorf("approving payment: %w", err)
		}
	}
	return c.Settle(ctx, sender, maxPayment)
}

func cmdClaim(ctx context.Context, c *clients.GovernanceClient, cCtx *cli.Context) (any, error) {
	sender, err := from(cCtx)
	if err != nil {
		return nil, err
	}
	return c.Claim(ctx, sender)
}

func cmdAccount(ctx context.Context, c *clients.GovernanceClient, cCtx *cli.Context) (any, error) {
	raw, err := arg(cCtx, 0, "ACCOUNT")
	if err != nil {
		return nil, err
	}
	account, err := parseAddress(raw)
	if err != nil {
		return nil, err
	}
	return c.Account(ctx, account)
}

type tokenArgs struct {
	from, token, to common.Address
	amount          *big.Int
}

func parseTokenArgs(ctx context.Context, c *clients.GovernanceClient, cCtx *cli.Context, withAmount bool) (tokenArgs, error) {
	var a tokenArgs
	var err error
	if a.from, err = from(cCtx); err != nil {
		return a, err
	}
	if a.token, err = resolveToken(ctx, c, cCtx.String(flagToken.Name)); err != nil {
		return a, err
	}
	if a.to, err = parseAddress(cCtx.String(flagTo.Name)); err != nil {
		return a, err
	}
	if withAmount {
		a.amount, err = parseAmount(cCtx.String(flagAmount.Name))
	}
	return a, err
}

func cmdApprove(ctx context.Context, c *clients.GovernanceClient, cCtx *cli.Context) (any, error) {
	a, err := parseTokenArgs(ctx, c, cCtx, true)
	if err != nil {
		return nil, err
	}
	return c.Approve(ctx, a.from, a.token, a.to, a.amount)
}

func cmdTransfer(ctx context.Context, c *clients.GovernanceClient, cCtx *cli.Context) (any, error) {
	a, err := parseTokenArgs(ctx, c, cCtx, true)
	if err != nil {
		return nil, err
	}
	return c.Transfer(ctx, a.from, a.token, a.to, a.amount)
}

func cmdDelegate(ctx context.Context, c *clients.GovernanceClient, cCtx *cli.Context) (any, error) {
	a, err := parseTokenArgs(ctx, c, cCtx, false)
	if err != nil {
		return nil, err
	}
	return c.Delegate(ctx, a.from, a.token, a.to)
}

func cmdEvents(ctx context.Context, c *clients.GovernanceClient, cCtx *cli.Context) (any, error) {
	q := clients.EventQuery{
		From:  cCtx.Uint64("from-height"),
		To:    cCtx.Uint64("to-height"),
		Name:  cCtx.String("name"),
		Limit: cCtx.Int("limit"),
		Run:   cCtx.String("run"),
	}
	if s := cCtx.String("address"); s != "" {
		addr, err := parseAddress(s)
		if err != nil {
			return nil, err
		}
		q.Address = &addr
	}
	return c.Events(ctx, q)
}

func cmdExportCheckpoint(ctx context.Context, c *clients.GovernanceClient, _ *cli.Context) (any, error) {
	return c.ExportCheckpoint(ctx)
}

func cmdGetCheckpoint(ctx context.Context, c *clients.GovernanceClient, cCtx *cli.Context) (any, error) {
	id, err := arg(cCtx, 0, "CONTENT_ID")
	if err != nil {
		return nil, err
	}
	return c.Checkpoint(ctx, id)
}
