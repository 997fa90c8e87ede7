package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/ruteri/dual-governance/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	backend, err := NewFileBackend(dir, testLogger())
	require.NoError(t, err)
	assert.True(t, backend.Available(ctx))
	assert.Equal(t, "file://"+dir, backend.LocationURI())

	data := []byte(`{"chain_id":1}`)
	id, err := backend.Store(ctx, data, interfaces.GenesisType)
	require.NoError(t, err)
	assert.Equal(t, interfaces.ComputeID(data), id)
	assert.FileExists(t, filepath.Join(dir, "genesis", id.String()))

	fetched, err := backend.Fetch(ctx, id, interfaces.GenesisType)
	require.NoError(t, err)
	assert.Equal(t, data, fetched)

	_, err = backend.Fetch(ctx, id, interfaces.CheckpointType)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)
}

func TestFactoryFileBackend(t *testing.T) {
	dir := t.TempDir()
	loc, err := interfaces.NewStorageBackendLocation("file://" + dir)
	require.NoError(t, err)

	backend, err := NewStorageBackendFactory(testLogger()).StorageBackendFor(loc)
	require.NoError(t, err)
	require.IsType(t, &FileBackend{}, backend)

	_, err = os.Stat(filepath.Join(dir, "checkpoints"))
	assert.NoError(t, err)
}

func TestFactoryErrors(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())
	tests := []struct {
		name string
		uri  string
	}{
		{"github without repo", "github://owner"},
		{"github nested path", "github://owner/repo/extra"},
		{"s3 without bucket", "s3:///prefix"},
		{"vault without mount", "vault://vault.example.com:8200"},
		{"ipfs bad timeout", "ipfs://localhost:5001/?timeout=soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := interfaces.NewStorageBackendLocation(tt.uri)
			require.NoError(t, err)
			_, err = factory.StorageBackendFor(loc)
			assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
		})
	}

	_, err := interfaces.NewStorageBackendLocation("onchain://0x1234")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}

func TestCreateMultiBackendSkipsInvalid(t *testing.T) {
	locations, err := interfaces.ParseStorageBackendLocations([]string{
		"github://owner",
		"file://" + t.TempDir(),
	})
	require.NoError(t, err)

	backend, err := NewStorageBackendFactory(testLogger()).CreateMultiBackend(locations)
	require.NoError(t, err)
	multi, ok := backend.(*MultiStorageBackend)
	require.True(t, ok)
	assert.Len(t, multi.backends, 1)

	locations, err = interfaces.ParseStorageBackendLocations([]string{"github://owner"})
	require.NoError(t, err)
	_, err = NewStorageBackendFactory(testLogger()).CreateMultiBackend(locations)
	assert.Error(t, err)
}

func TestFactoryVaultBackend(t *testing.T) {
	loc, err := interfaces.NewStorageBackendLocation("vault://s.token@vault.example.com:8200/secret/governance?tls=false")
	require.NoError(t, err)
	assert.Equal(t, "s.token", loc.Username())

	backend, err := NewStorageBackendFactory(testLogger()).StorageBackendFor(loc)
	require.NoError(t, err)
	vb := backend.(*VaultBackend)
	assert.Equal(t, "s.token", vb.client.Token())
	assert.Equal(t, "http://vault.example.com:8200", vb.client.Address())

	id := interfaces.ComputeID([]byte("x"))
	assert.Equal(t, "secret/data/governance/checkpoints/"+id.String(), vb.secretPath(id, interfaces.CheckpointType))
	assert.Equal(t, "vault://vault.example.com:8200/secret/governance", vb.LocationURI())
}

func TestS3ObjectKey(t *testing.T) {
	b, err := NewS3Backend("bucket", "/prefix/", "us-east-1", "", "", "", testLogger())
	require.NoError(t, err)
	id := interfaces.ComputeID([]byte("x"))
	assert.Equal(t, "prefix/genesis/"+id.String(), b.getObjectKey(id, interfaces.GenesisType))
	assert.False(t, b.hasWriteAccess)
}

func TestContentCID(t *testing.T) {
	data := []byte("hello")
	c, err := ContentCID(interfaces.ComputeID(data))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c.Version())
	assert.Equal(t, uint64(cid.Raw), c.Type())

	decoded, err := cid.Decode(c.String())
	require.NoError(t, err)
	assert.True(t, c.Equals(decoded))
}

func TestGitHubBackend(t *testing.T) {
	data := []byte(`{"entries":[]}`)
	id := interfaces.ComputeID(data)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/owner/repo":
			w.WriteHeader(http.StatusOK)
		case "/repos/owner/repo/contents/checkpoints/" + id.String():
			assert.Equal(t, "v1", r.URL.Query().Get("ref"))
			_ = json.NewEncoder(w).Encode(GitHubContent{
				Type:     "file",
				Encoding: "base64",
				Content:  base64.StdEncoding.EncodeToString(data),
			})
		case "/repos/owner/repo/contents/checkpoints/" + interfaces.ComputeID([]byte("other")).String():
			_ = json.NewEncoder(w).Encode(GitHubContent{
				Type:     "file",
				Encoding: "base64",
				Content:  base64.StdEncoding.EncodeToString(data),
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	backend := NewGitHubBackend("owner", "repo", testLogger()).WithRef("v1").WithAPIURL(srv.URL)
	assert.True(t, backend.Available(ctx))

	fetched, err := backend.Fetch(ctx, id, interfaces.CheckpointType)
	require.NoError(t, err)
	assert.Equal(t, data, fetched)

	_, err = backend.Fetch(ctx, id, interfaces.GenesisType)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	_, err = backend.Fetch(ctx, interfaces.ComputeID([]byte("other")), interfaces.CheckpointType)
	assert.ErrorContains(t, err, "hash mismatch")

	_, err = backend.Store(ctx, data, interfaces.CheckpointType)
	assert.ErrorIs(t, err, interfaces.ErrReadOnlyBackend)
}
