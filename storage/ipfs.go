package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	shell "github.com/ipfs/go-ipfs-api"
	"github.com/multiformats/go-multihash"
	"github.com/ruteri/dual-governance/interfaces"
)

// ipfsMaxContentSize is the default IPFS chunk size. Content up to this size
// is stored as a single raw block whose multihash is the SHA-256 content ID.
const ipfsMaxContentSize = 256 << 10

// IPFSBackend implements a storage backend using the InterPlanetary File System (IPFS).
// Content is added as CIDv1 raw leaves, so the CID is derived from the content ID
// without any index.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	useGateway  bool
	timeout     time.Duration
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend creates a new IPFS storage backend connected to the specified host and port.
// When useGateway is true, content is read from the HTTP gateway and the backend is read-only.
func NewIPFSBackend(host, port string, useGateway bool, timeout string, log *slog.Logger) (*IPFSBackend, error) {
	d, err := time.ParseDuration(timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid IPFS timeout %q", interfaces.ErrInvalidLocationURI, timeout)
	}

	apiURL := fmt.Sprintf("%s:%s", host, port)
	uri := fmt.Sprintf("ipfs://%s/?timeout=%s", apiURL, timeout)
	if useGateway {
		uri = fmt.Sprintf("ipfs://%s/?gateway=true&timeout=%s", apiURL, timeout)
	}

	sh := shell.NewShell(apiURL)
	sh.SetTimeout(d)

	return &IPFSBackend{
		shell:       sh,
		host:        host,
		port:        port,
		useGateway:  useGateway,
		timeout:     d,
		log:         log,
		locationURI: uri,
	}, nil
}

// ContentCID returns the CIDv1 (raw codec) addressing content with the given ID.
func ContentCID(id interfaces.ContentID) (cid.Cid, error) {
	mh, err := multihash.Encode(id[:], multihash.SHA2_256)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// Fetch retrieves data from IPFS by its content identifier.
func (b *IPFSBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	start := time.Now()
	c, err := ContentCID(id)
	if err != nil {
		return nil, err
	}

	var reader io.ReadCloser
	if b.useGateway {
		reader, err = b.gatewayGet(ctx, c)
	} else {
		reader, err = b.shell.Cat("/ipfs/" + c.String())
	}
	if err != nil {
		if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "no link named") {
			return nil, interfaces.ErrContentNotFound
		}
		b.log.Error("Failed to fetch data from IPFS",
			slog.String("cid", c.String()),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to fetch data from IPFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, ipfsMaxContentSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read data from IPFS: %w", err)
	}
	if interfaces.ComputeID(data) != id {
		return nil, fmt.Errorf("content hash mismatch for %s", c)
	}

	b.log.Debug("Fetched content from IPFS",
		slog.String("cid", c.String()),
		slog.String("type", contentType.String()),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

func (b *IPFSBackend) gatewayGet(ctx context.Context, c cid.Cid) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	url := fmt.Sprintf("http://%s:%s/ipfs/%s", b.host, b.port, c)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%s not found", c)
		}
		return nil, fmt.Errorf("gateway returned %s", resp.Status)
	}
	return &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}, nil
}

type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *cancelReadCloser) Close() error {
	defer r.cancel()
	return r.ReadCloser.Close()
}

// Store adds and pins data in IPFS and returns its content identifier.
func (b *IPFSBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)
	if b.useGateway {
		return id, interfaces.ErrReadOnlyBackend
	}
	if len(data) > ipfsMaxContentSize {
		return id, fmt.Errorf("content of %d bytes exceeds the single block limit of %d", len(data), ipfsMaxContentSize)
	}

	expected, err := ContentCID(id)
	if err != nil {
		return id, err
	}

	added, err := b.shell.Add(bytes.NewReader(data), shell.CidVersion(1), shell.RawLeaves(true), shell.Pin(true))
	if err != nil {
		return id, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if added != expected.String() {
		return id, fmt.Errorf("IPFS node returned unexpected CID %s, expected %s", added, expected)
	}

	b.log.Debug("Stored content in IPFS",
		slog.String("cid", added),
		slog.String("contentID", id.String()),
		slog.String("type", contentType.String()))

	return id, nil
}

// Available checks if the IPFS node is accessible.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	if b.useGateway {
		return true
	}
	return b.shell.IsUp()
}

// Name returns a unique identifier for this storage backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}
