package interfaces

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// QuorumScale is the denominator of quorum ratios (basis points).
const QuorumScale = 10000

// Track identifies one of the two independent voting tallies.
type Track uint8

const (
	// VoteTrack tallies the power (vote) token.
	VoteTrack Track = iota
	// ValueTrack tallies the zero (value) token.
	ValueTrack
)

// NumTracks is the number of voting tracks.
const NumTracks = 2

// Tracks lists all tracks in tally order.
var Tracks = [NumTracks]Track{VoteTrack, ValueTrack}

func (t Track) Valid() bool {
	return t == VoteTrack || t == ValueTrack
}

func (t Track) String() string {
	switch t {
	case VoteTrack:
		return "vote"
	case ValueTrack:
		return "value"
	default:
		return fmt.Sprintf("track(%d)", uint8(t))
	}
}

// ParseTrack converts a track name into a Track.
func ParseTrack(s string) (Track, error) {
	switch strings.ToLower(s) {
	case "vote", "power":
		return VoteTrack, nil
	case "value", "zero":
		return ValueTrack, nil
	default:
		return 0, fmt.Errorf("unknown track %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Track) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Track) UnmarshalText(b []byte) error {
	parsed, err := ParseTrack(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Support is a voter's choice on a proposal.
type Support uint8

const (
	Against Support = iota
	For
)

func (s Support) Valid() bool {
	return s == Against || s == For
}

func (s Support) String() string {
	if s == For {
		return "for"
	}
	return "against"
}

// ParseSupport converts "for" or "against" into a Support.
func ParseSupport(s string) (Support, error) {
	switch strings.ToLower(s) {
	case "for", "yes":
		return For, nil
	case "against", "no":
		return Against, nil
	default:
		return 0, fmt.Errorf("unknown support %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Support) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Support) UnmarshalText(b []byte) error {
	v, err := ParseSupport(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ProposalState is the lifecycle state of a proposal.
type ProposalState uint8

const (
	// Pending proposals have not reached their voting start yet.
	Pending ProposalState = iota
	// Active proposals accept votes.
	Active
	// Defeated proposals failed the dual quorum, or were resolved as such.
	Defeated
	// Succeeded proposals passed the dual quorum but are not resolved yet.
	Succeeded
	// Expired proposals were not resolved within the execution window.
	Expired
	// Executed proposals had their mutation applied to the registry.
	Executed
)

var proposalStateNames = map[ProposalState]string{
	Pending:   "pending",
	Active:    "active",
	Defeated:  "defeated",
	Succeeded: "succeeded",
	Expired:   "expired",
	Executed:  "executed",
}

func (s ProposalState) String() string {
	if name, ok := proposalStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Terminal reports whether no further transition is possible.
func (s ProposalState) Terminal() bool {
	return s == Defeated || s == Expired || s == Executed
}

// MarshalText implements encoding.TextMarshaler.
func (s ProposalState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ProposalState) UnmarshalText(b []byte) error {
	for state, name := range proposalStateNames {
		if name == string(b) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown proposal state %q", string(b))
}

// MutationKind selects the registry operation a proposal executes.
type MutationKind uint8

const (
	AddToList MutationKind = iota
	RemoveFromList
	UpdateConfig
	Reset
)

var mutationKindNames = map[MutationKind]string{
	AddToList:      "addToList",
	RemoveFromList: "removeFromList",
	UpdateConfig:   "updateConfig",
	Reset:          "reset",
}

func (k MutationKind) String() string {
	if name, ok := mutationKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("mutation(%d)", uint8(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k MutationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *MutationKind) UnmarshalText(b []byte) error {
	for kind, name := range mutationKindNames {
		if strings.EqualFold(name, string(b)) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown mutation kind %q", string(b))
}

// Mutation is the registry change carried by a proposal.
type Mutation struct {
	Kind    MutationKind   `json:"kind"`
	List    common.Hash    `json:"list,omitempty"`
	Account common.Address `json:"account,omitempty"`
	Key     common.Hash    `json:"key,omitempty"`
	Value   common.Hash    `json:"value,omitempty"`
}

// Validate rejects mutations whose target is malformed.
func (m Mutation) Validate() error {
	switch m.Kind {
	case AddToList, RemoveFromList:
		if m.List == (common.Hash{}) {
			return fmt.Errorf("%w: empty list id", ErrInvalidMutation)
		}
		if m.Account == (common.Address{}) {
			return fmt.Errorf("%w: zero account", ErrInvalidMutation)
		}
	case UpdateConfig:
		if m.Key == (common.Hash{}) {
			return fmt.Errorf("%w: empty config key", ErrInvalidMutation)
		}
	case Reset:
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidMutation, m.Kind)
	}
	return nil
}

// Hash commits to the fields relevant for the mutation kind.
func (m Mutation) Hash() common.Hash {
	switch m.Kind {
	case AddToList, RemoveFromList:
		return crypto.Keccak256Hash([]byte{byte(m.Kind)}, m.List.Bytes(), m.Account.Bytes())
	case UpdateConfig:
		return crypto.Keccak256Hash([]byte{byte(m.Kind)}, m.Key.Bytes(), m.Value.Bytes())
	default:
		return crypto.Keccak256Hash([]byte{byte(m.Kind)})
	}
}

// Snapshot fixes the voting-power reference point of a proposal.
type Snapshot struct {
	Timepoint   uint64               `json:"timepoint"`
	TotalSupply [NumTracks]*big.Int `json:"total_supply"`
}

// Proposal is a governance request to mutate the registry.
type Proposal struct {
	ID        common.Hash    `json:"id"`
	Mutation  Mutation       `json:"mutation"`
	Proposer  common.Address `json:"proposer"`
	Fee       *big.Int       `json:"fee"`
	Epoch     uint64         `json:"epoch"`
	Created   time.Time      `json:"created"`
	VoteStart time.Time      `json:"vote_start"`
	VoteEnd   time.Time      `json:"vote_end"`
	Snapshot  Snapshot       `json:"snapshot"`

	VotesFor     [NumTracks]*big.Int `json:"votes_for"`
	VotesAgainst [NumTracks]*big.Int `json:"votes_against"`

	// State is the persisted state. Derived states (Pending, Active,
	// Succeeded, Defeated, Expired before resolution) are computed by the
	// governor from the clock.
	State    ProposalState `json:"state"`
	Resolved bool          `json:"resolved"`
}

// Copy returns a deep copy so the stored proposal can be replaced atomically.
func (p *Proposal) Copy() *Proposal {
	cp := *p
	cp.Fee = new(big.Int).Set(p.Fee)
	for i := range cp.VotesFor {
		cp.VotesFor[i] = new(big.Int).Set(p.VotesFor[i])
		cp.VotesAgainst[i] = new(big.Int).Set(p.VotesAgainst[i])
		cp.Snapshot.TotalSupply[i] = new(big.Int).Set(p.Snapshot.TotalSupply[i])
	}
	return &cp
}

// Ballot is a recorded vote.
type Ballot struct {
	Support Support  `json:"support"`
	Weight  *big.Int `json:"weight"`
}

// EpochState tracks proposal volume and the fee rate for one epoch.
type EpochState struct {
	Epoch         uint64    `json:"epoch"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	CurrentFee    *big.Int  `json:"current_fee"`
	MinFee        *big.Int  `json:"min_fee"`
	MaxFee        *big.Int  `json:"max_fee"`
	ProposalCount uint64    `json:"proposal_count"`
}

// DecayKind selects an auction price curve.
type DecayKind uint8

const (
	LinearDecay DecayKind = iota
	ExponentialDecay
)

func (d DecayKind) String() string {
	if d == ExponentialDecay {
		return "exponential"
	}
	return "linear"
}

// MarshalText implements encoding.TextMarshaler.
func (d DecayKind) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DecayKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "linear", "":
		*d = LinearDecay
	case "exponential":
		*d = ExponentialDecay
	default:
		return fmt.Errorf("unknown decay kind %q", string(b))
	}
	return nil
}

// RoundState is the lifecycle state of an auction round.
type RoundState uint8

const (
	RoundOpen RoundState = iota
	RoundSettled
	RoundExpired
)

func (s RoundState) String() string {
	switch s {
	case RoundOpen:
		return "open"
	case RoundSettled:
		return "settled"
	case RoundExpired:
		return "expired"
	default:
		return fmt.Sprintf("round(%d)", uint8(s))
	}
}

// MarshalJSON encodes the state by name.
func (s RoundState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a state name.
func (s *RoundState) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for _, candidate := range []RoundState{RoundOpen, RoundSettled, RoundExpired} {
		if candidate.String() == name {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown round state %q", name)
}

// AuctionRound is one descending-price sale of escrowed inventory.
type AuctionRound struct {
	ID         uint64        `json:"id"`
	StartPrice *big.Int      `json:"start_price"`
	FloorPrice *big.Int      `json:"floor_price"`
	Decay      DecayKind     `json:"decay"`
	Period     time.Duration `json:"period"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time"`
	Inventory  *big.Int      `json:"inventory"`
	State      RoundState    `json:"state"`

	Buyer     common.Address `json:"buyer,omitempty"`
	Price     *big.Int       `json:"price,omitempty"`
	SettledAt time.Time      `json:"settled_at,omitempty"`
}

// KeyFromString encodes a short name as a left-aligned bytes32 value, the
// way list ids and config keys are usually written.
func KeyFromString(s string) common.Hash {
	var h common.Hash
	copy(h[:], s)
	return h
}

// ParseKey accepts either a 0x-prefixed 32-byte hex string or a short name.
func ParseKey(s string) (common.Hash, error) {
	if strings.HasPrefix(s, "0x") {
		b := common.FromHex(s)
		if len(b) != common.HashLength {
			return common.Hash{}, fmt.Errorf("invalid bytes32 %q", s)
		}
		return common.BytesToHash(b), nil
	}
	if len(s) > common.HashLength {
		return common.Hash{}, fmt.Errorf("name %q longer than 32 bytes", s)
	}
	return KeyFromString(s), nil
}
