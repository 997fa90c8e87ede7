// Package governor implements the dual-quorum governor that gates every
// registry mutation.
//
// A proposal escrows the current proposal fee and snapshots the total
// supply of the vote (power) and value (zero) tokens at its creation
// height. Holders vote on either track with the power they had before that
// height; a later vote on the same track replaces the earlier one. Once the
// voting window closes, anyone can resolve the proposal. It passes only if
// both tracks clear their quorum ratio and have strictly more votes for than
// against. Passed proposals are executed against the registrar, refunded
// and rewarded; all others forfeit their fee to the auction vault.
//
// The fee doubles after an epoch with more proposals than the target and
// halves after an epoch with fewer, within fixed bounds.
//
// A Reset proposal is exclusive: it cannot be created while other proposals
// are open, and no proposal can be created while it is open.
package governor
