/*
Package api defines the wire types and server configuration shared by the
governance node's HTTP server and its clients.

Amounts in requests are hex-encoded big integers (as in Ethereum JSON-RPC),
addresses and bytes32 values are 0x-prefixed hex. Every write request names
its sender in "from"; the node applies it as a single ledger operation and
reports the operation's height and hash.

The HTTP client lives in the clients subpackage.
*/
package api
