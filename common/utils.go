package common

import "os"

// PackageName namespaces the node's metrics.
const PackageName = "dual_governance"

// Version is set at build time with -ldflags "-X .../common.Version=...".
var Version = "dev"

func GetEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}
