package interfaces

import (
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	full := "0x" + strings.Repeat("ab", 32)

	tests := []struct {
		name    string
		input   string
		want    common.Hash
		wantErr bool
	}{
		{name: "short name", input: "validators", want: KeyFromString("validators")},
		{name: "full hex", input: full, want: common.HexToHash(full)},
		{name: "short hex", input: "0x1234", wantErr: true},
		{name: "name too long", input: strings.Repeat("x", 33), wantErr: true},
		{name: "name at limit", input: strings.Repeat("x", 32), want: KeyFromString(strings.Repeat("x", 32))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKey(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeyFromStringIsLeftAligned(t *testing.T) {
	key := KeyFromString("fee")
	assert.Equal(t, byte('f'), key[0])
	assert.Equal(t, byte('e'), key[2])
	assert.Equal(t, byte(0), key[31])
}

func TestMutationValidate(t *testing.T) {
	list := KeyFromString("validators")
	account := common.HexToAddress("0x01")

	tests := []struct {
		name     string
		mutation Mutation
		valid    bool
	}{
		{name: "add", mutation: Mutation{Kind: AddToList, List: list, Account: account}, valid: true},
		{name: "remove", mutation: Mutation{Kind: RemoveFromList, List: list, Account: account}, valid: true},
		{name: "add without list", mutation: Mutation{Kind: AddToList, Account: account}},
		{name: "remove zero account", mutation: Mutation{Kind: RemoveFromList, List: list}},
		{name: "config", mutation: Mutation{Kind: UpdateConfig, Key: KeyFromString("fee")}, valid: true},
		{name: "config zero value", mutation: Mutation{Kind: UpdateConfig, Key: KeyFromString("fee")}, valid: true},
		{name: "config without key", mutation: Mutation{Kind: UpdateConfig, Value: common.HexToHash("0x01")}},
		{name: "reset", mutation: Mutation{Kind: Reset}, valid: true},
		{name: "unknown kind", mutation: Mutation{Kind: MutationKind(9)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mutation.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidMutation)
			}
		})
	}
}

func TestMutationHashIgnoresUnusedFields(t *testing.T) {
	list := KeyFromString("validators")
	account := common.HexToAddress("0x01")

	add := Mutation{Kind: AddToList, List: list, Account: account}
	withNoise := add
	withNoise.Key = KeyFromString("ignored")
	assert.Equal(t, add.Hash(), withNoise.Hash())

	remove := add
	remove.Kind = RemoveFromList
	assert.NotEqual(t, add.Hash(), remove.Hash())

	reset := Mutation{Kind: Reset, List: list}
	assert.Equal(t, Mutation{Kind: Reset}.Hash(), reset.Hash())
}

func TestTrackAndSupportText(t *testing.T) {
	track, err := ParseTrack("POWER")
	require.NoError(t, err)
	assert.Equal(t, VoteTrack, track)

	track, err = ParseTrack("zero")
	require.NoError(t, err)
	assert.Equal(t, ValueTrack, track)

	_, err = ParseTrack("both")
	assert.Error(t, err)
	assert.False(t, Track(2).Valid())
	assert.Equal(t, "track(2)", Track(2).String())

	support, err := ParseSupport("yes")
	require.NoError(t, err)
	assert.Equal(t, For, support)
	_, err = ParseSupport("abstain")
	assert.Error(t, err)

	type ballot struct {
		Support Support `json:"support"`
		Track   Track   `json:"track"`
	}
	out, err := json.Marshal(ballot{Support: Against, Track: ValueTrack})
	require.NoError(t, err)
	assert.JSONEq(t, `{"support":"against","track":"value"}`, string(out))

	var in ballot
	require.NoError(t, json.Unmarshal([]byte(`{"support":"for","track":"vote"}`), &in))
	assert.Equal(t, ballot{Support: For, Track: VoteTrack}, in)
	assert.Error(t, json.Unmarshal([]byte(`{"support":"maybe"}`), &in))
}

func TestEnumJSON(t *testing.T) {
	var m Mutation
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"UPDATECONFIG"}`), &m))
	assert.Equal(t, UpdateConfig, m.Kind)
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"burn"}`), &m))

	out, err := json.Marshal(struct {
		State ProposalState `json:"state"`
		Round RoundState    `json:"round"`
		Decay DecayKind     `json:"decay"`
	}{Executed, RoundSettled, ExponentialDecay})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"executed","round":"settled","decay":"exponential"}`, string(out))

	var rs RoundState
	require.NoError(t, json.Unmarshal([]byte(`"expired"`), &rs))
	assert.Equal(t, RoundExpired, rs)
	assert.Error(t, json.Unmarshal([]byte(`"cancelled"`), &rs))

	var d DecayKind = ExponentialDecay
	require.NoError(t, d.UnmarshalText(nil))
	assert.Equal(t, LinearDecay, d)

	assert.True(t, Executed.Terminal())
	assert.False(t, Succeeded.Terminal())
}

func TestProposalCopyIsDeep(t *testing.T) {
	p := &Proposal{Fee: big.NewInt(100)}
	for i := range p.VotesFor {
		p.VotesFor[i] = big.NewInt(1)
		p.VotesAgainst[i] = big.NewInt(2)
		p.Snapshot.TotalSupply[i] = big.NewInt(3)
	}

	cp := p.Copy()
	cp.Fee.SetInt64(5)
	cp.VotesFor[VoteTrack].SetInt64(7)
	cp.Snapshot.TotalSupply[ValueTrack].SetInt64(9)

	assert.Equal(t, int64(100), p.Fee.Int64())
	assert.Equal(t, int64(1), p.VotesFor[VoteTrack].Int64())
	assert.Equal(t, int64(3), p.Snapshot.TotalSupply[ValueTrack].Int64())
}

func TestTypedErrorsMatchSentinels(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	assert.ErrorIs(t, &FeeMismatchError{Expected: big.NewInt(2), Offered: big.NewInt(1)}, ErrInsufficientFee)
	assert.ErrorIs(t, &SignatureExpiredError{Deadline: now, Timestamp: now.Add(time.Second)}, ErrSignatureExpired)
	assert.ErrorIs(t, &ReusedNonceError{Nonce: 1, Current: 2}, ErrReusedNonce)
	assert.ErrorIs(t, &SignerMismatchError{}, ErrSignerMismatch)

	var nonceErr *ReusedNonceError
	wrapped := errors.Join(errors.New("relay"), &ReusedNonceError{Nonce: 4, Current: 5})
	require.True(t, errors.As(wrapped, &nonceErr))
	assert.Equal(t, uint64(5), nonceErr.Current)
	assert.Contains(t, nonceErr.Error(), "nonce 4, current 5")
}
