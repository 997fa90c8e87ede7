package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/dual-governance/api"
	"github.com/ruteri/dual-governance/common"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *api.HTTPServerConfig {
	cfg := api.NewHTTPServerConfig(listenAddr, logger)
	cfg.MetricsAddr = cCtx.String(MetricsAddrFlag.Name)
	cfg.EnablePprof = cCtx.Bool(PprofFlag.Name)
	cfg.DrainDuration = time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second
	return cfg
}

var ListenAddrFlag = &cli.StringFlag{
	Name:    "listen-addr",
	Value:   "127.0.0.1:8080",
	Usage:   "address to listen on for API",
	EnvVars: []string{"LISTEN_ADDR"},
}

var NodeAddrFlag = &cli.StringFlag{
	Name:    "node",
	Value:   "http://127.0.0.1:8080",
	Usage:   "base URL of the governance node API",
	EnvVars: []string{"GOVERNANCE_NODE"},
}

var GenesisFileFlag = &cli.StringFlag{
	Name:    "genesis",
	Usage:   "path to the genesis JSON file",
	EnvVars: []string{"GENESIS_FILE"},
}

var GenesisIDFlag = &cli.StringFlag{
	Name:  "genesis-id",
	Usage: "content id of a genesis document in the genesis storage backends",
}

var GenesisStorageFlag = &cli.StringSliceFlag{
	Name:  "genesis-storage",
	Usage: "storage backend URI to fetch the genesis document from (file://, s3://, ipfs://, github://, vault://); may be repeated",
}

var CheckpointStorageFlag = &cli.StringSliceFlag{
	Name:  "checkpoint-storage",
	Usage: "storage backend URI registry checkpoints are exported to; may be repeated",
}

var ArchiveDirFlag = &cli.StringFlag{
	Name:    "archive-dir",
	Usage:   "directory of the LevelDB event archive; empty disables the archive",
	EnvVars: []string{"ARCHIVE_DIR"},
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
