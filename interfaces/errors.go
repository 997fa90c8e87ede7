package interfaces

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUnauthorized is returned when the caller lacks the role required by an operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInsufficientFee is returned when a proposal fee payment differs from the current rate.
	ErrInsufficientFee = errors.New("proposal fee does not match current rate")

	// ErrInvalidMutation is returned for proposals with a malformed registry target.
	ErrInvalidMutation = errors.New("invalid mutation")

	// ErrInvalidParams is returned for out-of-range deployment or genesis parameters.
	ErrInvalidParams = errors.New("invalid parameters")

	ErrProposalNotFound    = errors.New("proposal not found")
	ErrVotingWindowNotOpen = errors.New("voting window not open")
	ErrVotingWindowClosed  = errors.New("voting window closed")
	ErrVotingInProgress    = errors.New("voting still in progress")
	ErrAlreadyResolved     = errors.New("proposal already resolved")
	ErrNoVotingPower       = errors.New("no voting power at snapshot")
	ErrInvalidVote         = errors.New("invalid vote")

	// ErrQuorumNotMet and ErrMajorityNotMet explain why a proposal was defeated.
	ErrQuorumNotMet   = errors.New("quorum not met")
	ErrMajorityNotMet = errors.New("majority not met")

	// ErrResetBlocked is returned when a reset is proposed while other proposals are open.
	ErrResetBlocked = errors.New("reset blocked by open proposals")

	// ErrResetPending is returned when proposing while a reset proposal is open.
	ErrResetPending = errors.New("reset proposal pending")

	ErrInvalidSignature   = errors.New("invalid signature")
	ErrMalleableSignature = errors.New("malleable signature")
	ErrSignatureExpired   = errors.New("signature expired")
	ErrReusedNonce        = errors.New("reused nonce")
	ErrSignerMismatch     = errors.New("signer mismatch")

	ErrAuctionAlreadySettled = errors.New("auction already settled")
	ErrAuctionPriceNotMet    = errors.New("auction price not met")
	ErrAuctionExpired        = errors.New("auction expired")
	ErrAuctionInProgress     = errors.New("auction in progress")
	ErrNoOpenAuction         = errors.New("no open auction")
	ErrNothingToAuction      = errors.New("nothing to auction")
	ErrNothingToClaim        = errors.New("nothing to claim")

	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrTransferFailed        = errors.New("token transfer failed")
)

// FeeMismatchError reports the expected and offered proposal fee.
type FeeMismatchError struct {
	Expected *big.Int
	Offered  *big.Int
}

func (e *FeeMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, offered %s", ErrInsufficientFee, e.Expected, e.Offered)
}

func (e *FeeMismatchError) Is(target error) bool { return target == ErrInsufficientFee }

// SignatureExpiredError reports a signature used after its deadline.
type SignatureExpiredError struct {
	Deadline  time.Time
	Timestamp time.Time
}

func (e *SignatureExpiredError) Error() string {
	return fmt.Sprintf("%s: deadline %d, now %d", ErrSignatureExpired, e.Deadline.Unix(), e.Timestamp.Unix())
}

func (e *SignatureExpiredError) Is(target error) bool { return target == ErrSignatureExpired }

// ReusedNonceError reports a nonce different from the account's current one.
type ReusedNonceError struct {
	Nonce   uint64
	Current uint64
}

func (e *ReusedNonceError) Error() string {
	return fmt.Sprintf("%s: nonce %d, current %d", ErrReusedNonce, e.Nonce, e.Current)
}

func (e *ReusedNonceError) Is(target error) bool { return target == ErrReusedNonce }

// SignerMismatchError reports a valid signature by someone other than the claimed account.
type SignerMismatchError struct {
	Account common.Address
	Signer  common.Address
}

func (e *SignerMismatchError) Error() string {
	return fmt.Sprintf("%s: account %s, signer %s", ErrSignerMismatch, e.Account.Hex(), e.Signer.Hex())
}

func (e *SignerMismatchError) Is(target error) bool { return target == ErrSignerMismatch }
