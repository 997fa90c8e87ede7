// Package ledger provides the single-writer, totally ordered execution
// environment that hosts the governance components.
//
// Every state-changing operation runs through Ledger.Apply, which serializes
// operations, assigns them a monotonically increasing height and executes
// them against a Tx. Writes made through the journaled containers (Map and
// Value) are undone in reverse order when the operation returns an error or
// panics, so an operation either commits completely or leaves no trace.
//
// Components call into each other by deriving a Tx with a different sender
// (Tx.WithSender), mirroring how a contract call changes msg.sender while
// sharing the enclosing transaction's journal and event log buffer.
//
// Committed event logs are stamped with the operation height and published
// on an event.Feed after the writer lock is released.
package ledger
