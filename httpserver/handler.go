package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ruteri/dual-governance/api"
	"github.com/ruteri/dual-governance/archive"
	"github.com/ruteri/dual-governance/interfaces"
	"github.com/ruteri/dual-governance/ledger"
	"github.com/ruteri/dual-governance/protocol"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error { return e.Err }

func badRequest(format string, args ...any) *RequestError {
	return &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf(format, args...)}
}

// EventArchive is the read side of the event archive.
type EventArchive interface {
	Run() uuid.UUID
	Query(f archive.Filter) ([]archive.Event, error)
	QueryRun(run uuid.UUID, f archive.Filter) ([]archive.Event, error)
}

// Handler serves the governance node API.
//
// Writes are applied on behalf of the "from" account of the request body,
// the way an unlocked account signs on a development chain. Ballots relayed
// through the signed-votes route are authenticated by their signature.
type Handler struct {
	node     *protocol.Node
	events   EventArchive
	archiver interfaces.StorageBackend
	log      *slog.Logger
}

// NewHandler creates a handler for node. events and checkpoints are
// optional; their routes answer 503 when absent.
func NewHandler(node *protocol.Node, events EventArchive, checkpoints interfaces.StorageBackend, log *slog.Logger) *Handler {
	return &Handler{
		node:     node,
		events:   events,
		archiver: checkpoints,
		log:      log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/registry/config/{key}", h.HandleGetConfig)
	r.Post("/api/registry/config", h.HandleGetConfigBatch)
	r.Get("/api/registry/lists/{list}", h.HandleListMembers)
	r.Get("/api/registry/lists/{list}/contains/{account}", h.HandleListContains)
	r.Post("/api/registry/lists/{list}/contains", h.HandleListContainsBatch)

	r.Get("/api/governor", h.HandleGovernor)
	r.Get("/api/governor/epoch", h.HandleEpoch)
	r.Get("/api/governor/proposals", h.HandleProposals)
	r.Post("/api/governor/proposals", h.HandlePropose)
	r.Get("/api/governor/proposals/{id}", h.HandleProposal)
	r.Post("/api/governor/proposals/{id}/votes", h.HandleVote)
	r.Post("/api/governor/proposals/{id}/signed-votes", h.HandleSignedVote)
	r.Post("/api/governor/proposals/{id}/resolve", h.HandleResolve)

	r.Get("/api/auction", h.HandleAuction)
	r.Post("/api/auction/rounds", h.HandleOpenRound)
	r.Post("/api/auction/rounds/expire", h.HandleExpireRound)
	r.Post("/api/auction/settle", h.HandleSettle)
	r.Post("/api/auction/claim", h.HandleClaim)

	r.Get("/api/accounts/{account}", h.HandleAccount)
	r.Post("/api/tokens/{token}/approve", h.HandleApprove)
	r.Post("/api/tokens/{token}/transfer", h.HandleTransfer)
	r.Post("/api/tokens/{token}/delegate", h.HandleDelegate)

	r.Get("/api/events", h.HandleEvents)
	r.Post("/api/checkpoints", h.HandleExportCheckpoint)
	r.Get("/api/checkpoints/{content_id}", h.HandleGetCheckpoint)
}

// statusFor maps the protocol error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	switch {
	case errors.Is(err, interfaces.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrProposalNotFound),
		errors.Is(err, interfaces.ErrContentNotFound),
		errors.Is(err, ledger.ErrContractNotFound),
		errors.Is(err, archive.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrInvalidParams),
		errors.Is(err, interfaces.ErrInvalidMutation),
		errors.Is(err, interfaces.ErrInvalidVote),
		errors.Is(err, interfaces.ErrInvalidAmount),
		errors.Is(err, interfaces.ErrInvalidSignature),
		errors.Is(err, interfaces.ErrMalleableSignature),
		errors.Is(err, interfaces.ErrSignerMismatch),
		errors.Is(err, interfaces.ErrSignatureExpired):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrInsufficientFee),
		errors.Is(err, interfaces.ErrInsufficientBalance),
		errors.Is(err, interfaces.ErrInsufficientAllowance),
		errors.Is(err, interfaces.ErrAuctionPriceNotMet),
		errors.Is(err, interfaces.ErrNoVotingPower),
		errors.Is(err, interfaces.ErrTransferFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, interfaces.ErrVotingWindowNotOpen),
		errors.Is(err, interfaces.ErrVotingWindowClosed),
		errors.Is(err, interfaces.ErrVotingInProgress),
		errors.Is(err, interfaces.ErrAlreadyResolved),
		errors.Is(err, interfaces.ErrResetBlocked),
		errors.Is(err, interfaces.ErrResetPending),
		errors.Is(err, interfaces.ErrReusedNonce),
		errors.Is(err, interfaces.ErrAuctionAlreadySettled),
		errors.Is(err, interfaces.ErrAuctionExpired),
		errors.Is(err, interfaces.ErrAuctionInProgress),
		errors.Is(err, interfaces.ErrNoOpenAuction),
		errors.Is(err, interfaces.ErrNothingToAuction),
		errors.Is(err, interfaces.ErrNothingToClaim),
		errors.Is(err, interfaces.ErrReadOnlyBackend):
		return http.StatusConflict
	case errors.Is(err, interfaces.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		h.log.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	http.Error(w, err.Error(), status)
}

func (h *Handler) respond(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func decodeSender(w http.ResponseWriter, r *http.Request, v any, from func() common.Address) error {
	if err := decodeBody(w, r, v); err != nil {
		return err
	}
	if from() == (common.Address{}) {
		return badRequest("missing sender")
	}
	return nil
}

func pathKey(r *http.Request, name string) (common.Hash, error) {
	key, err := interfaces.ParseKey(r.PathValue(name))
	if err != nil {
		return common.Hash{}, badRequest("invalid %s: %v", name, err)
	}
	return key, nil
}

func pathAddress(r *http.Request, name string) (common.Address, error) {
	raw := r.PathValue(name)
	if !common.IsHexAddress(raw) {
		return common.Address{}, badRequest("invalid %s %q", name, raw)
	}
	return common.HexToAddress(raw), nil
}

func pathProposal(r *http.Request) (common.Hash, error) {
	raw, err := hexutil.Decode(r.PathValue("id"))
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, badRequest("invalid proposal id %q", r.PathValue("id"))
	}
	return common.BytesToHash(raw), nil
}

func toBig(v *hexutil.Big) *big.Int {
	if v == nil {
		return nil
	}
	return v.ToInt()
}

func operation(receipt *ledger.Receipt) api.Operation {
	return api.Operation{
		Height: receipt.Height,
		TxHash: receipt.TxHash,
		Time:   receipt.Time,
		Logs:   len(receipt.Logs),
	}
}

// HandleGetConfig returns the value of one config key.
//
// URL format: GET /api/registry/config/{key}
// The key is a short name or a 0x-prefixed bytes32.
func (h *Handler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	key, err := pathKey(r, "key")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	keys := []common.Hash{key}
	h.respond(w, api.ConfigResponse{Keys: keys, Values: h.node.Config(keys...)})
}

// HandleGetConfigBatch returns the values of several config keys in order.
func (h *Handler) HandleGetConfigBatch(w http.ResponseWriter, r *http.Request) {
	var req api.ConfigRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, api.ConfigResponse{Keys: req.Keys, Values: h.node.Config(req.Keys...)})
}

// HandleListMembers returns the members of a list in insertion order.
func (h *Handler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	list, err := pathKey(r, "list")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	members := h.node.ListMembers(list)
	if members == nil {
		members = []common.Address{}
	}
	h.respond(w, api.ListResponse{List: list, Members: members})
}

// HandleListContains reports whether one account is in a list.
func (h *Handler) HandleListContains(w http.ResponseWriter, r *http.Request) {
	list, err := pathKey(r, "list")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := pathAddress(r, "account")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	accounts := []common.Address{account}
	h.respond(w, api.ContainsResponse{List: list, Accounts: accounts, Contains: h.node.ListContains(list, accounts...)})
}

// HandleListContainsBatch reports whether every account is in a list.
func (h *Handler) HandleListContainsBatch(w http.ResponseWriter, r *http.Request) {
	list, err := pathKey(r, "list")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req api.ContainsRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, api.ContainsResponse{List: list, Accounts: req.Accounts, Contains: h.node.ListContains(list, req.Accounts...)})
}

// HandleGovernor describes the governor, including the domain separator
// signed ballots are bound to.
func (h *Handler) HandleGovernor(w http.ResponseWriter, r *http.Request) {
	gov := h.node.Governor()
	params := gov.Params()
	h.respond(w, api.GovernorResponse{
		Address:          gov.Address(),
		FeeToken:         h.node.Cash().Address(),
		ChainID:          (*hexutil.Big)(h.node.Genesis().ChainID),
		DomainSeparator:  gov.DomainSeparator(),
		Epoch:            h.node.Epoch(),
		VotingDelay:      params.VotingDelay,
		VotingPeriod:     params.VotingPeriod,
		ExecutionWindow:  params.ExecutionWindow,
		VoteQuorumRatio:  params.VoteQuorumRatio,
		ValueQuorumRatio: params.ValueQuorumRatio,
		Reward:           (*hexutil.Big)(params.Reward),
	})
}

func (h *Handler) HandleEpoch(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.node.Epoch())
}

func (h *Handler) HandleProposals(w http.ResponseWriter, r *http.Request) {
	h.respond(w, api.ProposalsResponse{Proposals: h.node.Proposals()})
}

func (h *Handler) HandleProposal(w http.ResponseWriter, r *http.Request) {
	id, err := pathProposal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.node.Proposal(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, p)
}

// HandlePropose creates a proposal. The fee must equal the current rate
// and be approved to the governor on the cash token.
//
// URL format: POST /api/governor/proposals
// Request body: {"from": "0x..", "mutation": {...}, "fee": "0x.."}
func (h *Handler) HandlePropose(w http.ResponseWriter, r *http.Request) {
	var req api.ProposeRequest
	if err := decodeSender(w, r, &req, func() common.Address { return req.From }); err != nil {
		h.fail(w, r, err)
		return
	}
	id, receipt, err := h.node.Propose(r.Context(), req.From, req.Mutation, toBig(req.Fee))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, api.ProposeResponse{ID: id, Operation: operation(receipt)})
}

// HandleVote records the sender's vote on one track.
func (h *Handler) HandleVote(w http.ResponseWriter, r *http.Request) {
	id, err := pathProposal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req api.VoteRequest
	if err := decodeSender(w, r, &req, func() common.Address { return req.From }); err != nil {
		h.fail(w, r, err)
		return
	}
	weight, receipt, err := h.node.CastVote(r.Context(), req.From, id, req.Support, req.Track)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, api.VoteResponse{Weight: (*hexutil.Big)(weight), Operation: operation(receipt)})
}

// HandleSignedVote relays a ballot signed by its voter.
func (h *Handler) HandleSignedVote(w http.ResponseWriter, r *http.Request) {
	id, err := pathProposal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req api.SignedVoteRequest
	if err := decodeSender(w, r, &req, func() common.Address { return req.From }); err != nil {
		h.fail(w, r, err)
		return
	}
	weight, receipt, err := h.node.CastVoteBySig(r.Context(), req.From, protocol.SignedBallot{
		Voter:     req.Voter,
		Proposal:  id,
		Support:   req.Support,
		Track:     req.Track,
		Nonce:     req.Nonce,
		Deadline:  req.Deadline,
		Signature: req.Signature,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, api.VoteResponse{Weight: (*hexutil.Big)(weight), Operation: operation(receipt)})
}

func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	id, err := pathProposal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req api.SenderRequest
	if err := decodeSender(w, r, &req, func() common.Address { return req.From }); err != nil {
		h.fail(w, r, err)
		return
	}
	state, receipt, err := h.node.Resolve(r.Context(), req.From, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, api.ResolveResponse{State: state, Operation: operation(receipt)})
}

// HandleAuction returns the current round with its live price and the
// vault's unsold inventory.
func (h *Handler) HandleAuction(w http.ResponseWriter, r *http.Request) {
	status := h.node.Auction()
	h.respond(w, api.AuctionResponse{
		Vault:        h.node.Vault().Address(),
		PaymentToken: h.node.Genesis().Auction.PaymentToken,
		Round:        status.Round,
		Price:        status.Price,
		Unsold:       status.Unsold,
		Carry:        status.Carry,
	})
}

func (h *Handler) HandleOpenRound(w http.ResponseWriter, r *http.Request) {
	var req api.SenderRequest
	if err := decodeSender(w, r, &req, func() common.Address { return req.From }); err != nil {
		h.fail(w, r, err)
		return
	}
	round, receipt, err := h.node.OpenRound(r.Context(), req.From)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, api.RoundResponse{Round: round, Operation: operation(receipt)})
}

func (h *Handler) HandleExpireRound(w http.ResponseWriter, r *http.Request) {
	var req api.SenderRequest
	if err := decodeSender(w, r, &req, func() common.Address { return req.From }); err != nil {
		h.fail(w, r, err)
		return
	}
	receipt, err := h.node.ExpireRound(r.Context(), req.From)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, api.OperationResponse{Operation: operation(receipt)})
}

// HandleSettle buys the current lot if its live price is within the
// sender's maximum payment, approved to the vault on the payment token.
func (h *Handler) HandleSettle(w http.ResponseWriter, r *http.Request) {
	var req api.SettleRequest
	if err := decodeSender(w, r, &req, func() common.Address { return req.From }); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.MaxPayment == nil {
		h.fail(w, r, badRequest("missing max_payment"))
		return
	}
	round, receipt, err := h.node.Settle(r.Context(), req.From, toBig(req.MaxPayment))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, api.RoundResponse{Round: round, Operation: operation(receipt)})
}

func (h *Handler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	var req api.SenderRequest
	if err := decodeSender(w, r, &req, func() common.Address { return req.From }); err != nil {
		h.fail(w, r, err)
		return
	}
	amount, receipt, err := h.node.Claim(r.Context(), req.From)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, api.ClaimResponse{Amount: (*hexutil.Big)(amount), Operation: operation(receipt)})
}

func (h *Handler) HandleAccount(w http.ResponseWriter, r *http.Request) {
	account, err := pathAddress(r, "account")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	state := h.node.Account(account)
	resp := api.AccountResponse{
		Address:       state.Address,
		BallotNonce:   state.BallotNonce,
		Participation: state.Participation,
		Rewards:       state.Rewards,
	}
	for _, t := range state.Tokens {
		resp.Tokens = append(resp.Tokens, api.TokenBalance(t))
	}
	h.respond(w, resp)
}

type tokenOp func(h *Handler, r *http.Request, token common.Address, req api.TokenRequest) (*ledger.Receipt, error)

func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request, needsAmount bool, op tokenOp) {
	token, err := pathAddress(r, "token")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req api.TokenRequest
	if err := decodeSender(w, r, &req, func() common.Address { return req.From }); err != nil {
		h.fail(w, r, err)
		return
	}
	if needsAmount && req.Amount == nil {
		h.fail(w, r, badRequest("missing amount"))
		return
	}
	receipt, err := op(h, r, token, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, api.OperationResponse{Operation: operation(receipt)})
}

func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.handleToken(w, r, true, func(h *Handler, r *http.Request, token common.Address, req api.TokenRequest) (*ledger.Receipt, error) {
		return h.node.Approve(r.Context(), req.From, token, req.To, toBig(req.Amount))
	})
}

func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	h.handleToken(w, r, true, func(h *Handler, r *http.Request, token common.Address, req api.TokenRequest) (*ledger.Receipt, error) {
		return h.node.Transfer(r.Context(), req.From, token, req.To, toBig(req.Amount))
	})
}

func (h *Handler) HandleDelegate(w http.ResponseWriter, r *http.Request) {
	h.handleToken(w, r, false, func(h *Handler, r *http.Request, token common.Address, req api.TokenRequest) (*ledger.Receipt, error) {
		return h.node.Delegate(r.Context(), req.From, token, req.To)
	})
}

// HandleEvents queries the event archive.
//
// URL format: GET /api/events?from=&to=&address=&name=&limit=&run=
// Heights are inclusive; run defaults to the node's current run.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		http.Error(w, "event archive disabled", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	var f archive.Filter
	var err error
	parseUint := func(name string) uint64 {
		if err != nil || q.Get(name) == "" {
			return 0
		}
		var v uint64
		v, err = strconv.ParseUint(q.Get(name), 10, 64)
		if err != nil {
			err = badRequest("invalid %s: %v", name, err)
		}
		return v
	}
	f.FromHeight = parseUint("from")
	f.ToHeight = parseUint("to")
	f.Limit = int(parseUint("limit"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if raw := q.Get("address"); raw != "" {
		if !common.IsHexAddress(raw) {
			h.fail(w, r, badRequest("invalid address %q", raw))
			return
		}
		addr := common.HexToAddress(raw)
		f.Address = &addr
	}
	f.Name = q.Get("name")

	run := h.events.Run()
	if raw := q.Get("run"); raw != "" {
		run, err = uuid.Parse(raw)
		if err != nil {
			h.fail(w, r, badRequest("invalid run: %v", err))
			return
		}
	}

	events, err := h.events.QueryRun(run, f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if events == nil {
		events = []archive.Event{}
	}
	h.respond(w, api.EventsResponse{Run: run.String(), Events: events})
}

// HandleExportCheckpoint stores a registry checkpoint in the configured
// storage backend.
func (h *Handler) HandleExportCheckpoint(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		http.Error(w, "checkpoint storage disabled", http.StatusServiceUnavailable)
		return
	}
	id, cp, err := h.node.ExportCheckpoint(r.Context(), h.archiver)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, api.CheckpointResponse{
		ContentID: id.String(),
		Backend:   h.archiver.Name(),
		Height:    cp.Height,
		Registrar: cp.Registrar,
		Governor:  cp.Governor,
	})
}

// HandleGetCheckpoint returns a stored checkpoint by content id.
func (h *Handler) HandleGetCheckpoint(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		http.Error(w, "checkpoint storage disabled", http.StatusServiceUnavailable)
		return
	}
	id, err := interfaces.NewContentIDFromHex(r.PathValue("content_id"))
	if err != nil {
		h.fail(w, r, badRequest("invalid content id: %v", err))
		return
	}
	cp, err := protocol.FetchCheckpoint(r.Context(), h.archiver, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, cp)
}
