package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/ruteri/dual-governance/archive"
	"github.com/ruteri/dual-governance/cmd/flags"
	"github.com/ruteri/dual-governance/httpserver"
	"github.com/ruteri/dual-governance/interfaces"
	"github.com/ruteri/dual-governance/protocol"
	"github.com/ruteri/dual-governance/storage"
	"github.com/urfave/cli/v2"
)

var nodeFlags = append([]cli.Flag{
	flags.ListenAddrFlag,
	flags.GenesisFileFlag,
	flags.GenesisIDFlag,
	flags.GenesisStorageFlag,
	flags.CheckpointStorageFlag,
	flags.ArchiveDirFlag,
	flags.LogServiceFlagFn("governance-node"),
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:   "governance-node",
		Usage:  "Run a dual-token governance node and serve its API",
		Flags:  nodeFlags,
		Action: runNode,
		Commands: []*cli.Command{
			{
				Name:  "publish-genesis",
				Usage: "Validate a genesis file and store it in storage backends",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flags.GenesisFileFlag.Name, Required: true, Usage: flags.GenesisFileFlag.Usage},
					&cli.StringSliceFlag{Name: "storage", Required: true, Usage: "storage backend URI; may be repeated"},
					flags.LogJsonFlag,
					flags.LogDebugFlag,
					flags.LogServiceFlagFn("governance-node"),
				},
				Action: publishGenesis,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func storageBackend(logger *slog.Logger, uris []string) (interfaces.StorageBackend, error) {
	locations, err := interfaces.ParseStorageBackendLocations(uris)
	if err != nil {
		return nil, err
	}
	return storage.NewStorageBackendFactory(logger).CreateMultiBackend(locations)
}

func loadGenesis(ctx context.Context, cCtx *cli.Context, logger *slog.Logger) (*protocol.Genesis, error) {
	if path := cCtx.String(flags.GenesisFileFlag.Name); path != "" {
		logger.Info("Loading genesis", "file", path)
		return protocol.LoadGenesisFile(path)
	}

	rawID := cCtx.String(flags.GenesisIDFlag.Name)
	uris := cCtx.StringSlice(flags.GenesisStorageFlag.Name)
	if rawID == "" || len(uris) == 0 {
		return nil, errors.New("either --genesis or --genesis-id with --genesis-storage is required")
	}
	id, err := interfaces.NewContentIDFromHex(rawID)
	if err != nil {
		return nil, fmt.Errorf("invalid genesis id: %w", err)
	}
	backend, err := storageBackend(logger, uris)
	if err != nil {
		return nil, err
	}
	logger.Info("Fetching genesis", "contentID", id.String(), "backend", backend.Name())
	return protocol.FetchGenesis(ctx, backend, id)
}

func runNode(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	ctx, cancel := context.WithCancel(cCtx.Context)
	defer cancel()

	genesis, err := loadGenesis(ctx, cCtx, logger)
	if err != nil {
		logger.Error("Failed to load genesis", "err", err)
		return err
	}

	node, err := protocol.Bootstrap(ctx, genesis, clock.New(), logger)
	if err != nil {
		logger.Error("Failed to bootstrap protocol", "err", err)
		return err
	}

	var events httpserver.EventArchive
	if dir := cCtx.String(flags.ArchiveDirFlag.Name); dir != "" {
		arch, err := archive.Open(dir, protocol.EventDecoder(), logger.With("component", "archive"))
		if err != nil {
			logger.Error("Failed to open event archive", "err", err)
			return err
		}
		// Close stops the follower below before releasing the database.
		defer func() {
			if err := arch.Close(); err != nil {
				logger.Error("Failed to close event archive", "err", err)
			}
		}()

		if err := arch.Append(node.GenesisLogs()); err != nil {
			logger.Error("Failed to archive genesis events", "err", err)
			return err
		}
		go func() {
			if err := arch.Follow(ctx, node.Ledger()); err != nil {
				logger.Error("Event archive stopped", "err", err)
			}
		}()
		events = arch
	}

	var checkpoints interfaces.StorageBackend
	if uris := cCtx.StringSlice(flags.CheckpointStorageFlag.Name); len(uris) > 0 {
		checkpoints, err = storageBackend(logger, uris)
		if err != nil {
			logger.Error("Failed to configure checkpoint storage", "err", err)
			return err
		}
	}

	cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flags.ListenAddrFlag.Name))
	server, err := httpserver.New(cfg, httpserver.NewHandler(node, events, checkpoints, logger))
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	logger.Info("Starting server")
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	cancel()
	logger.Info("Server shutdown complete", "height", node.Ledger().Height())
	return nil
}

func publishGenesis(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	genesis, err := protocol.LoadGenesisFile(cCtx.String(flags.GenesisFileFlag.Name))
	if err != nil {
		return err
	}
	backend, err := storageBackend(logger, cCtx.StringSlice("storage"))
	if err != nil {
		return err
	}
	id, err := protocol.PublishGenesis(cCtx.Context, backend, genesis)
	if err != nil {
		return err
	}
	fmt.Println(id.String())
	return nil
}
