package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// DefaultGitHubAPI is the public GitHub REST endpoint
const DefaultGitHubAPI = "https://api.github.com"

// DefaultUserAgent identifies the service to GitHub
const DefaultUserAgent = "boxrender/0.1"

const maxGistFileSize = 32 << 20

// GistStore reads files from GitHub gists
type GistStore struct {
	client    *http.Client
	apiURL    string
	userAgent string
}

// NewGistStore creates a gist store. Empty apiURL and userAgent select the
// defaults.
func NewGistStore(client *http.Client, apiURL, userAgent string) *GistStore {
	if client == nil {
		client = http.DefaultClient
	}
	if apiURL == "" {
		apiURL = DefaultGitHubAPI
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &GistStore{
		client:    client,
		apiURL:    strings.TrimRight(apiURL, "/"),
		userAgent: userAgent,
	}
}

type gistResponse struct {
	Files map[string]*File `json:"files"`
}

// Files lists the files of gist id
func (g *GistStore) Files(ctx context.Context, id, token string) (Listing, error) {
	if id == "" || strings.ContainsAny(id, "/?#") {
		return nil, newError(ErrInvalidID, KindGist, id, "invalid gist id", nil)
	}
	target := g.apiURL + "/gists/" + url.PathEscape(id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, newError(ErrFetchFailed, KindGist, id, "create request", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, newError(ErrFetchFailed, KindGist, id, "request failed", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, newError(ErrNotFound, KindGist, id, "gist not found", nil)
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, newError(ErrAuthFailed, KindGist, id, "access denied", statusError(resp))
	default:
		return nil, newError(ErrFetchFailed, KindGist, id, "unexpected response", statusError(resp))
	}

	var body gistResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxGistFileSize)).Decode(&body); err != nil {
		return nil, newError(ErrFetchFailed, KindGist, id, "decode file list", err)
	}

	listing := make(Listing, len(body.Files))
	for name, f := range body.Files {
		if f == nil {
			continue
		}
		listing[name] = *f
	}
	return listing, nil
}

// Download fetches a raw gist file
func (g *GistStore) Download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, newError(ErrFetchFailed, KindGist, rawURL, "create request", err)
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, newError(ErrFetchFailed, KindGist, rawURL, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		typ := ErrFetchFailed
		if resp.StatusCode == http.StatusNotFound {
			typ = ErrNotFound
		}
		return nil, newError(typ, KindGist, rawURL, "download failed", statusError(resp))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxGistFileSize))
	if err != nil {
		return nil, newError(ErrFetchFailed, KindGist, rawURL, "read body", err)
	}
	return data, nil
}

// statusError carries the status line and the start of the body
func statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(snippet))
	if msg == "" {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
}
