// Package storage provides a content-addressed storage system with pluggable backends.
//
// Governance nodes use it to publish and fetch two kinds of documents:
// genesis documents a node bootstraps from, and registry checkpoints
// exported from a running node. Both are identified by the SHA-256 hash of
// their bytes, so any backend holding a copy can serve them and readers
// verify what they receive.
//
//   - File system storage for local development and testing
//   - S3-compatible storage for cloud deployments
//   - IPFS storage for decentralized content
//   - GitHub storage using repository content (read-only)
//   - Vault KV v2 storage with token authentication
//
// # Storage URI Format
//
// Storage backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/governance/
//   - s3://bucket-name/prefix/?region=us-west-2
//   - ipfs://ipfs.example.com:5001/
//   - github://owner/repo?ref=main
//   - vault://TOKEN@vault.example.com:8200/secret/governance
//
// # Content Layout
//
// Path-based backends store content under a directory per content type
// ("genesis" and "checkpoints") named by the hex content ID. The IPFS
// backend stores each document as a single raw block, so its CIDv1 is
// derived from the content ID directly.
//
// # Multi-Backend Example
//
//	locations, err := interfaces.ParseStorageBackendLocations([]string{
//	    "file:///var/lib/governance/",
//	    "s3://governance-checkpoints/?region=eu-west-1",
//	})
//	if err != nil {
//	    return err
//	}
//	backend, err := storage.NewStorageBackendFactory(logger).CreateMultiBackend(locations)
package storage
