package clients

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/dual-governance/api"
	"github.com/ruteri/dual-governance/erc712"
	"github.com/ruteri/dual-governance/governor"
	"github.com/ruteri/dual-governance/interfaces"
	"github.com/ruteri/dual-governance/protocol"
)

// StatusError is returned for non-200 responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("returned %d: %s", e.StatusCode, e.Body)
}

// GovernanceClient talks to a governance node's HTTP API.
type GovernanceClient struct {
	// ServerAddr is the base URL of the node
	ServerAddr string

	// Client defaults to http.DefaultClient
	Client *http.Client
}

func NewGovernanceClient(serverAddr string) *GovernanceClient {
	return &GovernanceClient{ServerAddr: serverAddr, Client: http.DefaultClient}
}

func (c *GovernanceClient) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.ServerAddr+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("could not request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s %w", method, path, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(bodyBytes))})
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not parse %s response: %w", path, err)
	}
	return nil
}

func (c *GovernanceClient) Config(ctx context.Context, keys ...common.Hash) ([]common.Hash, error) {
	var resp api.ConfigResponse
	if err := c.call(ctx, http.MethodPost, "/api/registry/config", api.ConfigRequest{Keys: keys}, &resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (c *GovernanceClient) ListMembers(ctx context.Context, list common.Hash) ([]common.Address, error) {
	var resp api.ListResponse
	if err := c.call(ctx, http.MethodGet, "/api/registry/lists/"+list.Hex(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Members, nil
}

func (c *GovernanceClient) ListContains(ctx context.Context, list common.Hash, accounts ...common.Address) (bool, error) {
	var resp api.ContainsResponse
	err := c.call(ctx, http.MethodPost, "/api/registry/lists/"+list.Hex()+"/contains", api.ContainsRequest{Accounts: accounts}, &resp)
	return resp.Contains, err
}

func (c *GovernanceClient) Governor(ctx context.Context) (*api.GovernorResponse, error) {
	var resp api.GovernorResponse
	if err := c.call(ctx, http.MethodGet, "/api/governor", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GovernanceClient) Epoch(ctx context.Context) (*interfaces.EpochState, error) {
	var resp interfaces.EpochState
	if err := c.call(ctx, http.MethodGet, "/api/governor/epoch", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GovernanceClient) Proposals(ctx context.Context) ([]*interfaces.Proposal, error) {
	var resp api.ProposalsResponse
	if err := c.call(ctx, http.MethodGet, "/api/governor/proposals", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Proposals, nil
}

func (c *GovernanceClient) Proposal(ctx context.Context, id common.Hash) (*interfaces.Proposal, error) {
	var resp interfaces.Proposal
	if err := c.call(ctx, http.MethodGet, "/api/governor/proposals/"+id.Hex(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GovernanceClient) Propose(ctx context.Context, from common.Address, mutation interfaces.Mutation, fee *big.Int) (*api.ProposeResponse, error) {
	var resp api.ProposeResponse
	req := api.ProposeRequest{From: from, Mutation: mutation, Fee: (*hexutil.Big)(fee)}
	if err := c.call(ctx, http.MethodPost, "/api/governor/proposals", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GovernanceClient) Vote(ctx context.Context, from common.Address, id common.Hash, support interfaces.Support, track interfaces.Track) (*api.VoteResponse, error) {
	var resp api.VoteResponse
	req := api.VoteRequest{From: from, Support: support, Track: track}
	if err := c.call(ctx, http.MethodPost, "/api/governor/proposals/"+id.Hex()+"/votes", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SignBallot signs a ballot for the key's account with its next nonce,
// bound to the node's governor domain.
func (c *GovernanceClient) SignBallot(ctx context.Context, key *ecdsa.PrivateKey, id common.Hash, support interfaces.Support, track interfaces.Track, deadline uint64) (*api.SignedVoteRequest, error) {
	voter := crypto.PubkeyToAddress(key.PublicKey)
	gov, err := c.Governor(ctx)
	if err != nil {
		return nil, err
	}
	account, err := c.Account(ctx, voter)
	if err != nil {
		return nil, err
	}
	structHash, err := governor.BallotHash(id, support, track, account.BallotNonce, deadline)
	if err != nil {
		return nil, err
	}
	sig, err := erc712.Sign(erc712.Digest(gov.DomainSeparator, structHash), key)
	if err != nil {
		return nil, err
	}
	return &api.SignedVoteRequest{
		Voter:     voter,
		Support:   support,
		Track:     track,
		Nonce:     account.BallotNonce,
		Deadline:  deadline,
		Signature: sig,
	}, nil
}

// RelayVote submits a signed ballot on behalf of relayer.
func (c *GovernanceClient) RelayVote(ctx context.Context, relayer common.Address, id common.Hash, ballot api.SignedVoteRequest) (*api.VoteResponse, error) {
	ballot.From = relayer
	var resp api.VoteResponse
	if err := c.call(ctx, http.MethodPost, "/api/governor/proposals/"+id.Hex()+"/signed-votes", ballot, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GovernanceClient) Resolve(ctx context.Context, from common.Address, id common.Hash) (*api.ResolveResponse, error) {
	var resp api.ResolveResponse
	if err := c.call(ctx, http.MethodPost, "/api/governor/proposals/"+id.Hex()+"/resolve", api.SenderRequest{From: from}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GovernanceClient) Auction(ctx context.Context) (*api.AuctionResponse, error) {
	var resp api.AuctionResponse
	if err := c.call(ctx, http.MethodGet, "/api/auction", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GovernanceClient) OpenRound(ctx context.Context, from common.Address) (*api.RoundResponse, error) {
	var resp api.RoundResponse
	if err := c.call(ctx, http.MethodPost, "/api/auction/rounds", api.SenderRequest{From: from}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GovernanceClient) ExpireRound(ctx context.Context, from common.Address) (*api.OperationResponse, error) {
	var resp api.OperationResponse
	if err := c.call(ctx, http.MethodPost, "/api/auction/rounds/expire", api.SenderRequest{From: from}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GovernanceClient) Settle(ctx context.Context, from common.Address, maxPayment *big.Int) (*api.RoundResponse, error) {
	var resp api.RoundResponse
	req := api.SettleRequest{From: from, MaxPayment: (*hexutil.Big)(maxPayment)}
	if err := c.call(ctx, http.MethodPost, "/api/auction/settle", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GovernanceClient) Claim(ctx context.Context, from common.Address) (*api.ClaimResponse, error) {
	var resp api.ClaimResponse
	if err := c.call(ctx, http.MethodPost, "/api/auction/claim", api.SenderRequest{From: from}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GovernanceClient) Account(ctx context.Context, account common.Address) (*api.AccountResponse, error) {
	var resp api.AccountResponse
	if err := c.call(ctx, http.MethodGet, "/api/accounts/"+account.Hex(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GovernanceClient) tokenOp(ctx context.Context, op string, tokenAddr common.Address, req api.TokenRequest) (*api.OperationResponse, error) {
	var resp api.OperationResponse
	if err := c.call(ctx, http.MethodPost, "/api/tokens/"+tokenAddr.Hex()+"/"+op, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GovernanceClient) Approve(ctx context.Context, from, tokenAddr, spender common.Address, amount *big.Int) (*api.OperationResponse, error) {
	return c.tokenOp(ctx, "approve", tokenAddr, api.TokenRequest{From: from, To: spender, Amount: (*hexutil.Big)(amount)})
}

func (c *GovernanceClient) Transfer(ctx context.Context, from, tokenAddr, to common.Address, amount *big.Int) (*api.OperationResponse, error) {
	return c.tokenOp(ctx, "transfer", tokenAddr, api.TokenRequest{From: from, To: to, Amount: (*hexutil.Big)(amount)})
}

func (c *GovernanceClient) Delegate(ctx context.Context, from, tokenAddr, delegatee common.Address) (*api.OperationResponse, error) {
	return c.tokenOp(ctx, "delegate", tokenAddr, api.TokenRequest{From: from, To: delegatee})
}

// EventQuery selects archived events. Zero values are omitted.
type EventQuery struct {
	From, To uint64
	Address  *common.Address
	Name     string
	Limit    int
	Run      string
}

func (q EventQuery) encode() string {
	v := url.Values{}
	if q.From > 0 {
		v.Set("from", strconv.FormatUint(q.From, 10))
	}
	if q.To > 0 {
		v.Set("to", strconv.FormatUint(q.To, 10))
	}
	if q.Address != nil {
		v.Set("address", q.Address.Hex())
	}
	if q.Name != "" {
		v.Set("name", q.Name)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Run != "" {
		v.Set("run", q.Run)
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

func (c *GovernanceClient) Events(ctx context.Context, q EventQuery) (*api.EventsResponse, error) {
	var resp api.EventsResponse
	if err := c.call(ctx, http.MethodGet, "/api/events"+q.encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GovernanceClient) ExportCheckpoint(ctx context.Context) (*api.CheckpointResponse, error) {
	var resp api.CheckpointResponse
	if err := c.call(ctx, http.MethodPost, "/api/checkpoints", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GovernanceClient) Checkpoint(ctx context.Context, id string) (*protocol.Checkpoint, error) {
	var resp protocol.Checkpoint
	if err := c.call(ctx, http.MethodGet, "/api/checkpoints/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
