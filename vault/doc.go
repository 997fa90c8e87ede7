// Package vault implements the auction vault that liquidates forfeited
// proposal fees.
//
// Fees of defeated and expired proposals are forwarded by the governor and
// accumulate as unsold inventory. Anyone can open a round over the whole
// inventory; the lot price then decays from a start price to a floor
// (linearly, or halving every period) and the first buyer whose maximum
// payment covers the live price takes the entire lot. Rounds that end
// unsold are expired and their inventory rolls into the next round.
//
// Settlement proceeds are credited to the voters who participated since
// the previous settlement, pro rata to the vote-track weight the governor
// recorded for them, and are withdrawn with Claim. Rounding dust and
// proceeds of a period without participants carry over to the next
// distribution.
package vault
