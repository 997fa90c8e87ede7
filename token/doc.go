// Package token provides the reference fungible token used for the cash,
// power and zero assets of a governance deployment.
//
// Token implements the ERC20 surface (balances, allowances, transfers and
// Approval/Transfer events), ERC5805-style checkpointed voting power with
// delegation, signed approvals (Permit) and role-gated minting. All writes
// go through the ledger journal so they revert with the enclosing operation.
//
// MockToken is a testify mock of the same capability interfaces.
package token
