// Package protocol wires the governance components into a running node.
//
// A Genesis document names the tokens and their initial distribution, the
// component addresses (derived from the admin address when omitted), the
// bootstrap registry content and the governor and auction parameters.
// Bootstrap deploys everything in one ledger operation, so a node either
// starts fully wired or not at all.
//
// Node is the facade used by transports. Each write is a single ledger
// operation sent by an explicit account; reads run under the ledger's
// shared lock. Genesis documents and registry checkpoints can be published
// to and fetched from any content-addressed storage backend.
package protocol
