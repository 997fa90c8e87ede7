package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ruteri/dual-governance/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStorageBackend implements interfaces.StorageBackend for testing
type MockStorageBackend struct {
	mock.Mock
	name string
}

func (m *MockStorageBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	args := m.Called(ctx, id, contentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStorageBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	args := m.Called(ctx, data, contentType)
	return args.Get(0).(interfaces.ContentID), args.Error(1)
}

func (m *MockStorageBackend) Available(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockStorageBackend) Name() string {
	return m.name
}

func (m *MockStorageBackend) LocationURI() string {
	return "mock://" + m.name
}

// stub describes how one backend behind a multi backend responds. A backend
// with neither a fetch nor a store outcome must not be reached.
type stub struct {
	unavailable bool
	fetch       []byte
	fetchErr    error
	stores      bool
	storeErr    error
}

func newMulti(t *testing.T, data []byte, contentType interfaces.ContentType, stubs ...stub) *MultiStorageBackend {
	id := interfaces.ComputeID(data)
	backends := make([]interfaces.StorageBackend, 0, len(stubs))
	for i, s := range stubs {
		b := &MockStorageBackend{name: string(rune('a' + i))}
		b.On("Available", mock.Anything).Return(!s.unavailable).Maybe()
		switch {
		case s.fetch != nil || s.fetchErr != nil:
			b.On("Fetch", mock.Anything, id, contentType).Return(s.fetch, s.fetchErr).Once()
		case s.stores:
			b.On("Store", mock.Anything, data, contentType).Return(id, nil).Once()
		case s.storeErr != nil:
			b.On("Store", mock.Anything, data, contentType).Return(interfaces.ContentID{}, s.storeErr).Once()
		}
		t.Cleanup(func() { b.AssertExpectations(t) })
		backends = append(backends, b)
	}
	return NewMultiStorageBackend(backends, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMultiStorageBackendFetchGenesis(t *testing.T) {
	genesis := []byte(`{"chain_id":1337}`)
	outage := errors.New("connection refused")

	tests := []struct {
		name    string
		stubs   []stub
		wantErr error
	}{
		{
			name:  "first backend serves",
			stubs: []stub{{fetch: genesis}, {}},
		},
		{
			name:  "falls back after a failed fetch",
			stubs: []stub{{fetchErr: outage}, {fetch: genesis}},
		},
		{
			name:  "skips unavailable backends",
			stubs: []stub{{unavailable: true}, {fetch: genesis}},
		},
		{
			name:  "rejects content that does not hash to the id",
			stubs: []stub{{fetch: []byte(`{"chain_id":1}`)}, {fetch: genesis}},
		},
		{
			name:    "every backend fails",
			stubs:   []stub{{fetchErr: outage}, {fetchErr: interfaces.ErrContentNotFound}},
			wantErr: interfaces.ErrContentNotFound,
		},
		{
			name:    "nothing available",
			stubs:   []stub{{unavailable: true}, {unavailable: true}},
			wantErr: interfaces.ErrBackendUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			multi := newMulti(t, genesis, interfaces.GenesisType, tt.stubs...)

			data, err := multi.Fetch(context.Background(), interfaces.ComputeID(genesis), interfaces.GenesisType)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, data)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, genesis, data)
		})
	}
}

func TestMultiStorageBackendStoreCheckpoint(t *testing.T) {
	checkpoint := []byte(`{"height":42}`)
	want := interfaces.ComputeID(checkpoint)

	tests := []struct {
		name    string
		stubs   []stub
		wantErr error
	}{
		{
			name:  "stores to every backend",
			stubs: []stub{{stores: true}, {stores: true}},
		},
		{
			name:  "read-only backends do not fail the export",
			stubs: []stub{{storeErr: interfaces.ErrReadOnlyBackend}, {stores: true}},
		},
		{
			name:  "unavailable backends are skipped",
			stubs: []stub{{unavailable: true}, {stores: true}},
		},
		{
			name:    "no backend accepts the write",
			stubs:   []stub{{storeErr: interfaces.ErrReadOnlyBackend}, {storeErr: errors.New("access denied")}},
			wantErr: interfaces.ErrReadOnlyBackend,
		},
		{
			name:    "nothing available",
			stubs:   []stub{{unavailable: true}},
			wantErr: interfaces.ErrBackendUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			multi := newMulti(t, checkpoint, interfaces.CheckpointType, tt.stubs...)

			id, err := multi.Store(context.Background(), checkpoint, interfaces.CheckpointType)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, interfaces.ContentID{}, id)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, want, id)
		})
	}
}

func TestMultiStorageBackendDescribe(t *testing.T) {
	multi := newMulti(t, nil, interfaces.GenesisType, stub{unavailable: true}, stub{})
	assert.True(t, multi.Available(context.Background()))
	assert.Equal(t, "multi-storage", multi.Name())
	assert.Equal(t, "multi:[mock://a,mock://b]", multi.LocationURI())

	empty := NewMultiStorageBackend(nil, nil)
	assert.False(t, empty.Available(context.Background()))
}
