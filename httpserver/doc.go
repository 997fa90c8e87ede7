/*
Package httpserver exposes a governance node over HTTP.

Writes are applied on behalf of the "from" account named in the request
body. Signed ballots are relayed by "from" and authenticated by the voter's
signature over the governor's domain. Every write response carries the
height and hash of the ledger operation it was applied in.

# Registry

  - GET /api/registry/config/{key} - Value of one config key
  - POST /api/registry/config - Values of several config keys
  - GET /api/registry/lists/{list} - Members of a list
  - GET /api/registry/lists/{list}/contains/{account} - Membership of one account
  - POST /api/registry/lists/{list}/contains - Membership of every listed account

Keys and list ids are either short names (at most 32 bytes) or 0x-prefixed
bytes32 values.

# Governor

  - GET /api/governor - Addresses, timing, quorum ratios and the signing domain
  - GET /api/governor/epoch - Current epoch and fee rate
  - GET /api/governor/proposals - All proposals
  - POST /api/governor/proposals - Create a proposal
  - GET /api/governor/proposals/{id} - One proposal with its derived state
  - POST /api/governor/proposals/{id}/votes - Vote as the sender
  - POST /api/governor/proposals/{id}/signed-votes - Relay a signed ballot
  - POST /api/governor/proposals/{id}/resolve - Execute or close a finished proposal

# Auction

  - GET /api/auction - Current round, live price and unsold inventory
  - POST /api/auction/rounds - Open a round over the unsold inventory
  - POST /api/auction/rounds/expire - Close a round past its end time
  - POST /api/auction/settle - Buy the current lot
  - POST /api/auction/claim - Withdraw accrued voter rewards

# Accounts and tokens

  - GET /api/accounts/{account} - Balances, votes, nonce and rewards
  - POST /api/tokens/{token}/approve
  - POST /api/tokens/{token}/transfer
  - POST /api/tokens/{token}/delegate

# Events and checkpoints

  - GET /api/events?from=&to=&address=&name=&limit=&run= - Archived events
  - POST /api/checkpoints - Store a registry checkpoint
  - GET /api/checkpoints/{content_id} - Fetch a stored checkpoint

# Operations

  - GET /livez, GET /readyz, GET /drain, GET /undrain
  - /debug/pprof when enabled
  - /metrics on the separate metrics listener

Protocol errors map onto status codes: 400 for malformed input, 403 for
unauthorized callers, 404 for unknown proposals, tokens and content, 409 for
operations the current state does not allow, 422 for fees, balances,
allowances and prices that do not cover the operation, and 503 when a
storage backend is unavailable.
*/
package httpserver
