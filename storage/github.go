package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ruteri/dual-governance/interfaces"
)

// GitHubBackend implements a read-only storage backend on top of a GitHub
// repository. Content lives at {type dir}/{content id hex} in the repository,
// the same layout the file backend produces, so a committed file backend
// directory can be served as is.
type GitHubBackend struct {
	owner       string
	repo        string
	ref         string
	apiURL      string
	client      *http.Client
	log         *slog.Logger
	locationURI string
}

// GitHubContent is the file object returned by GitHub's contents API.
type GitHubContent struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	SHA      string `json:"sha"`
	Size     int    `json:"size"`
}

// NewGitHubBackend creates a new GitHub storage backend reading the default branch.
func NewGitHubBackend(owner, repo string, log *slog.Logger) *GitHubBackend {
	return &GitHubBackend{
		owner:       owner,
		repo:        repo,
		apiURL:      "https://api.github.com",
		client:      &http.Client{Timeout: 30 * time.Second},
		log:         log,
		locationURI: fmt.Sprintf("github://%s/%s", owner, repo),
	}
}

// WithRef pins reads to a branch, tag or commit.
func (b *GitHubBackend) WithRef(ref string) *GitHubBackend {
	b.ref = ref
	return b
}

// WithAPIURL points the backend at a GitHub Enterprise or test server.
func (b *GitHubBackend) WithAPIURL(apiURL string) *GitHubBackend {
	b.apiURL = strings.TrimSuffix(apiURL, "/")
	return b
}

// Fetch retrieves content from the repository and verifies its hash.
func (b *GitHubBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	filePath := contentType.Dir() + "/" + id.String()

	file, err := b.fetchContent(ctx, filePath)
	if err != nil {
		return nil, err
	}

	if file.Encoding != "base64" {
		return nil, fmt.Errorf("unexpected content encoding: %s", file.Encoding)
	}

	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to decode content: %w", err)
	}

	if actual := interfaces.ComputeID(data); actual != id {
		b.log.Warn("Content hash mismatch",
			slog.String("expected", id.String()),
			slog.String("actual", actual.String()))
		return nil, fmt.Errorf("content hash mismatch")
	}

	b.log.Debug("Fetched content from GitHub",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return data, nil
}

// Store always fails: the backend is read-only.
func (b *GitHubBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	return interfaces.ComputeID(data), interfaces.ErrReadOnlyBackend
}

// Available checks if the repository is accessible.
func (b *GitHubBackend) Available(ctx context.Context) bool {
	req, err := b.newRequest(ctx, fmt.Sprintf("%s/repos/%s/%s", b.apiURL, b.owner, b.repo))
	if err != nil {
		b.log.Debug("Failed to create request", "err", err)
		return false
	}

	resp, err := b.client.Do(req)
	if err != nil {
		b.log.Debug("GitHub backend unavailable", "err", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b.log.Debug("GitHub backend unavailable", slog.String("status", resp.Status))
		return false
	}

	return true
}

// Name returns a unique identifier for this storage backend.
func (b *GitHubBackend) Name() string {
	return fmt.Sprintf("github-%s-%s", b.owner, b.repo)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *GitHubBackend) LocationURI() string {
	return b.locationURI
}

func (b *GitHubBackend) newRequest(ctx context.Context, u string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	return req, nil
}

func (b *GitHubBackend) fetchContent(ctx context.Context, filePath string) (*GitHubContent, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s", b.apiURL, b.owner, b.repo, filePath)
	if b.ref != "" {
		u += "?ref=" + url.QueryEscape(b.ref)
	}

	req, err := b.newRequest(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, interfaces.ErrContentNotFound
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("GitHub API error: %s, %s", resp.Status, string(body))
	}

	var file GitHubContent
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode content: %w", err)
	}
	if file.Type != "" && file.Type != "file" {
		return nil, fmt.Errorf("unexpected content type %q at %s", file.Type, filePath)
	}

	return &file, nil
}
