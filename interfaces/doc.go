// Package interfaces defines the types, errors and capability interfaces
// shared by the governance components, separating interface definitions
// from implementations.
//
// # Capability Interfaces
//
// Token, VotingToken and RewardToken describe the fungible ledgers backing
// cash payments and the two voting tracks. VotingToken reads are strictly
// historical: PastVotes and PastTotalSupply answer as of a ledger height
// and never change afterwards.
//
// RegistryReader and RegistryMutator split the address registrar into its
// public read surface and the governor-gated write surface. ForfeitSink is
// the vault side of the fee economy: governors deposit forfeited fees and
// record voter participation into it.
//
// AuthorizedMutator and SignatureVerifier are the access control and
// typed-data signature capabilities components compose.
//
// # Storage Interfaces
//
// StorageBackend provides content-addressed storage for genesis documents
// and registry checkpoints across multiple backend types (file, S3, IPFS,
// GitHub, Vault). StorageBackendFactory creates backends from location URIs.
//
// # Errors
//
// Every failure a component returns wraps one of the sentinel errors in
// this package, so callers match with errors.Is. Typed errors such as
// FeeMismatchError carry the offending values and match their sentinel.
package interfaces
