package main

import (
	"log"
	"os"
	"time"

	"github.com/ruteri/dual-governance/cmd/flags"
	"github.com/urfave/cli/v2"
)

var flagFrom = &cli.StringFlag{
	Name:     "from",
	Required: true,
	Usage:    "account the operation is sent by",
}

var flagSupport = &cli.StringFlag{
	Name:  "support",
	Value: "for",
	Usage: "for or against",
}

var flagTrack = &cli.StringFlag{
	Name:  "track",
	Value: "vote",
	Usage: "vote (power token) or value (zero token)",
}

var flagToken = &cli.StringFlag{
	Name:     "token",
	Required: true,
	Usage:    "token address or symbol",
}

var flagTo = &cli.StringFlag{
	Name:     "to",
	Required: true,
	Usage:    "spender, recipient or delegatee",
}

var flagAmount = &cli.StringFlag{
	Name:     "amount",
	Required: true,
	Usage:    "token amount in base units (decimal or 0x hex)",
}

func main() {
	app := &cli.App{
		Name:  "governance-client",
		Usage: "Query and operate a dual-token governance node",
		Flags: []cli.Flag{flags.NodeAddrFlag},
		Commands: []*cli.Command{
			{
				Name:      "config",
				Usage:     "Read config values",
				ArgsUsage: "KEY...",
				Action:    withClient(cmdConfig),
			},
			{
				Name:      "list",
				Usage:     "List the members of a list",
				ArgsUsage: "LIST",
				Action:    withClient(cmdList),
			},
			{
				Name:      "contains",
				Usage:     "Check that every account is in a list",
				ArgsUsage: "LIST ACCOUNT...",
				Action:    withClient(cmdContains),
			},
			{
				Name:   "governor",
				Usage:  "Describe the governor",
				Action: withClient(cmdGovernor),
			},
			{
				Name:   "epoch",
				Usage:  "Show the current epoch and fee",
				Action: withClient(cmdEpoch),
			},
			{
				Name:      "proposals",
				Usage:     "Show all proposals, or one by id",
				ArgsUsage: "[ID]",
				Action:    withClient(cmdProposals),
			},
			{
				Name:  "propose",
				Usage: "Create a proposal, paying the current fee unless --fee is set",
				Flags: []cli.Flag{
					flagFrom,
					&cli.StringFlag{Name: "kind", Required: true, Usage: "addToList, removeFromList, updateConfig or reset"},
					&cli.StringFlag{Name: "list", Usage: "list name or bytes32 id"},
					&cli.StringFlag{Name: "account", Usage: "account to add or remove"},
					&cli.StringFlag{Name: "key", Usage: "config key"},
					&cli.StringFlag{Name: "value", Usage: "config value"},
					&cli.StringFlag{Name: "fee", Usage: "fee to pay"},
					&cli.BoolFlag{Name: "approve", Usage: "approve the fee to the governor first"},
				},
				Action: withClient(cmdPropose),
			},
			{
				Name:      "vote",
				Usage:     "Vote on a proposal",
				ArgsUsage: "ID",
				Flags:     []cli.Flag{flagFrom, flagSupport, flagTrack},
				Action:    withClient(cmdVote),
			},
			{
				Name:      "sign-vote",
				Usage:     "Sign a ballot with a local key and relay it",
				ArgsUsage: "ID",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "private-key", Required: true, Usage: "hex secp256k1 key of the voter", EnvVars: []string{"VOTER_PRIVATE_KEY"}},
					&cli.StringFlag{Name: "relayer", Required: true, Usage: "account relaying the ballot"},
					&cli.DurationFlag{Name: "valid-for", Value: time.Hour, Usage: "signature validity"},
					flagSupport,
					flagTrack,
				},
				Action: withClient(cmdSignVote),
			},
			{
				Name:      "resolve",
				Usage:     "Execute or close a finished proposal",
				ArgsUsage: "ID",
				Flags:     []cli.Flag{flagFrom},
				Action:    withClient(cmdResolve),
			},
			{
				Name:  "auction",
				Usage: "Inspect and operate the fee auction",
				Subcommands: []*cli.Command{
					{Name: "status", Action: withClient(cmdAuction)},
					{Name: "open", Flags: []cli.Flag{flagFrom}, Action: withClient(cmdOpenRound)},
					{Name: "expire", Flags: []cli.Flag{flagFrom}, Action: withClient(cmdExpireRound)},
					{
						Name: "settle",
						Flags: []cli.Flag{
							flagFrom,
							&cli.StringFlag{Name: "max", Required: true, Usage: "maximum payment"},
							&cli.BoolFlag{Name: "approve", Usage: "approve the payment to the vault first"},
						},
						Action: withClient(cmdSettle),
					},
					{Name: "claim", Flags: []cli.Flag{flagFrom}, Action: withClient(cmdClaim)},
				},
			},
			{
				Name:      "account",
				Usage:     "Show an account's balances, votes and rewards",
				ArgsUsage: "ACCOUNT",
				Action:    withClient(cmdAccount),
			},
			{
				Name:   "approve",
				Flags:  []cli.Flag{flagFrom, flagToken, flagTo, flagAmount},
				Action: withClient(cmdApprove),
			},
			{
				Name:   "transfer",
				Flags:  []cli.Flag{flagFrom, flagToken, flagTo, flagAmount},
				Action: withClient(cmdTransfer),
			},
			{
				Name:   "delegate",
				Flags:  []cli.Flag{flagFrom, flagToken, flagTo},
				Action: withClient(cmdDelegate),
			},
			{
				Name:  "events",
				Usage: "Query archived events",
				Flags: []cli.Flag{
					&cli.Uint64Flag{Name: "from-height"},
					&cli.Uint64Flag{Name: "to-height"},
					&cli.StringFlag{Name: "address"},
					&cli.StringFlag{Name: "name"},
					&cli.IntFlag{Name: "limit"},
					&cli.StringFlag{Name: "run"},
				},
				Action: withClient(cmdEvents),
			},
			{
				Name:  "checkpoint",
				Usage: "Export or fetch registry checkpoints",
				Subcommands: []*cli.Command{
					{Name: "export", Action: withClient(cmdExportCheckpoint)},
					{Name: "get", ArgsUsage: "CONTENT_ID", Action: withClient(cmdGetCheckpoint)},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
