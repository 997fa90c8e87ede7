package api

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ruteri/dual-governance/archive"
	"github.com/ruteri/dual-governance/interfaces"
)

// Operation summarizes the ledger operation a write request was applied in.
type Operation struct {
	Height uint64      `json:"height"`
	TxHash common.Hash `json:"tx_hash"`
	Time   time.Time   `json:"time"`
	Logs   int         `json:"logs"`
}

// SenderRequest is the body of writes that only need a sender.
type SenderRequest struct {
	From common.Address `json:"from"`
}

type ProposeRequest struct {
	From     common.Address      `json:"from"`
	Mutation interfaces.Mutation `json:"mutation"`
	Fee      *hexutil.Big        `json:"fee"`
}

type ProposeResponse struct {
	ID        common.Hash `json:"id"`
	Operation Operation   `json:"operation"`
}

type VoteRequest struct {
	From    common.Address     `json:"from"`
	Support interfaces.Support `json:"support"`
	Track   interfaces.Track   `json:"track"`
}

// SignedVoteRequest carries a ballot signed by Voter and relayed by From.
type SignedVoteRequest struct {
	From      common.Address     `json:"from"`
	Voter     common.Address     `json:"voter"`
	Support   interfaces.Support `json:"support"`
	Track     interfaces.Track   `json:"track"`
	Nonce     uint64             `json:"nonce"`
	Deadline  uint64             `json:"deadline"`
	Signature hexutil.Bytes      `json:"signature"`
}

type VoteResponse struct {
	Weight    *hexutil.Big `json:"weight"`
	Operation Operation    `json:"operation"`
}

type ResolveResponse struct {
	State     interfaces.ProposalState `json:"state"`
	Operation Operation                `json:"operation"`
}

type ProposalsResponse struct {
	Proposals []*interfaces.Proposal `json:"proposals"`
}

// GovernorResponse describes the deployed governor. Clients use the domain
// separator to build signed ballots.
type GovernorResponse struct {
	Address          common.Address        `json:"address"`
	FeeToken         common.Address        `json:"fee_token"`
	ChainID          *hexutil.Big          `json:"chain_id"`
	DomainSeparator  common.Hash           `json:"domain_separator"`
	Epoch            interfaces.EpochState `json:"epoch"`
	VotingDelay      time.Duration         `json:"voting_delay"`
	VotingPeriod     time.Duration         `json:"voting_period"`
	ExecutionWindow  time.Duration         `json:"execution_window"`
	VoteQuorumRatio  uint16                `json:"vote_quorum_ratio"`
	ValueQuorumRatio uint16                `json:"value_quorum_ratio"`
	Reward           *hexutil.Big          `json:"reward"`
}

type ConfigRequest struct {
	Keys []common.Hash `json:"keys"`
}

type ConfigResponse struct {
	Keys   []common.Hash `json:"keys"`
	Values []common.Hash `json:"values"`
}

type ListResponse struct {
	List    common.Hash      `json:"list"`
	Members []common.Address `json:"members"`
}

type ContainsRequest struct {
	Accounts []common.Address `json:"accounts"`
}

type ContainsResponse struct {
	List     common.Hash      `json:"list"`
	Accounts []common.Address `json:"accounts"`
	Contains bool             `json:"contains"`
}

// AuctionResponse describes the vault. Buyers approve PaymentToken to Vault
// before settling.
type AuctionResponse struct {
	Vault        common.Address           `json:"vault"`
	PaymentToken common.Address           `json:"payment_token"`
	Round        *interfaces.AuctionRound `json:"round,omitempty"`
	Price        *big.Int                 `json:"price,omitempty"`
	Unsold       *big.Int                 `json:"unsold"`
	Carry        *big.Int                 `json:"carry"`
}

type SettleRequest struct {
	From       common.Address `json:"from"`
	MaxPayment *hexutil.Big   `json:"max_payment"`
}

type RoundResponse struct {
	Round     *interfaces.AuctionRound `json:"round"`
	Operation Operation                `json:"operation"`
}

type ClaimResponse struct {
	Amount    *hexutil.Big `json:"amount"`
	Operation Operation    `json:"operation"`
}

// TokenRequest is the body of approve, transfer and delegate. To is the
// spender, the recipient or the delegatee respectively.
type TokenRequest struct {
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount *hexutil.Big   `json:"amount,omitempty"`
}

type OperationResponse struct {
	Operation Operation `json:"operation"`
}

type TokenBalance struct {
	Token     common.Address `json:"token"`
	Symbol    string         `json:"symbol"`
	Balance   *big.Int       `json:"balance"`
	Votes     *big.Int       `json:"votes"`
	Delegate  common.Address `json:"delegate"`
	Allowance *big.Int       `json:"governor_allowance"`
}

type AccountResponse struct {
	Address       common.Address `json:"address"`
	Tokens        []TokenBalance `json:"tokens"`
	BallotNonce   uint64         `json:"ballot_nonce"`
	Participation *big.Int       `json:"participation"`
	Rewards       *big.Int       `json:"rewards"`
}

type EventsResponse struct {
	Run    string          `json:"run"`
	Events []archive.Event `json:"events"`
}

type CheckpointResponse struct {
	ContentID string         `json:"content_id"`
	Backend   string         `json:"backend"`
	Height    uint64         `json:"height"`
	Registrar common.Address `json:"registrar"`
	Governor  common.Address `json:"governor"`
}
