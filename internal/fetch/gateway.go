// Package fetch retrieves remote documents and falls back to the last good
// copy in the cache when the source misbehaves.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/conneroisu/boxrender/internal/cache"
	"github.com/conneroisu/boxrender/internal/errors"
	"github.com/conneroisu/boxrender/internal/logging"
	"github.com/conneroisu/boxrender/internal/metrics"
)

// Outcome tells where a returned body came from
type Outcome string

const (
	// OutcomeFresh is a body fetched from the source just now
	OutcomeFresh Outcome = "fresh"
	// OutcomeCached is the last good body from the cache
	OutcomeCached Outcome = "cached"
	// OutcomeEmpty is the empty document used when nothing else is available
	OutcomeEmpty Outcome = "empty"
)

// maxBodySize bounds a single document body
const maxBodySize = 32 << 20

// cacheWriteTimeout bounds a background cache write
const cacheWriteTimeout = 5 * time.Second

var emptyDocument = []byte("{}")

// Request describes one document to fetch
type Request struct {
	// Kind labels the fetch in logs and metrics, e.g. "remote" or "local"
	Kind         string
	URL          string
	Header       map[string]string
	DisableCache bool
	// Validate, when set, must accept a body for it to count as good. It
	// runs on top of the JSON object check, for fresh and cached bodies.
	Validate func([]byte) error
}

// Result is a fetched body. Body is always a JSON object.
type Result struct {
	Body    []byte
	Outcome Outcome
	// Err is the soft failure that caused a fallback, if any
	Err error
}

// Gateway fetches documents through a cache
type Gateway struct {
	client  *http.Client
	cache   cache.Store
	logger  logging.Logger
	metrics *metrics.Metrics

	writes sync.WaitGroup
}

// NewGateway creates a gateway. A nil store disables caching and a nil
// client uses http.DefaultClient.
func NewGateway(client *http.Client, store cache.Store, logger logging.Logger, m *metrics.Metrics) *Gateway {
	if client == nil {
		client = http.DefaultClient
	}
	if store == nil {
		store = cache.NopStore{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Gateway{
		client:  client,
		cache:   store,
		logger:  logger.WithComponent("fetch"),
		metrics: m,
	}
}

// Fetch returns the document at req.URL. Transport failures, non-2xx
// responses and bodies that are not JSON objects are soft failures: the
// cached copy is returned when there is one, otherwise an empty document.
// Only cancellation of ctx is reported as an error.
func (g *Gateway) Fetch(ctx context.Context, req Request) (*Result, error) {
	logger := logging.FromContext(ctx, g.logger).With("kind", req.Kind, "url", req.URL)
	key := cache.Key(req.URL)

	body, err := g.download(ctx, req)
	if cerr := errors.FromContext(ctx.Err()); cerr != nil {
		return nil, cerr
	}

	if err == nil {
		if !req.DisableCache {
			g.store(ctx, logger, key, body)
		}
		return g.done(ctx, logger, req, &Result{Body: body, Outcome: OutcomeFresh}), nil
	}

	logger.Warn(ctx, err, "Failed to load document")

	if !req.DisableCache {
		cached, ok, cerr := g.cache.Get(ctx, key)
		switch {
		case cerr != nil:
			logger.Warn(ctx, cerr, "Failed to read document from cache")
		case ok && req.accepts(cached) == nil:
			return g.done(ctx, logger, req, &Result{Body: cached, Outcome: OutcomeCached, Err: err}), nil
		case ok:
			logger.Warn(ctx, nil, "Ignoring unusable cached document")
		}
	}

	return g.done(ctx, logger, req, &Result{Body: emptyDocument, Outcome: OutcomeEmpty, Err: err}), nil
}

// store writes body to the cache in the background. The write outlives
// ctx and its failure is only logged.
func (g *Gateway) store(ctx context.Context, logger logging.Logger, key string, body []byte) {
	g.writes.Add(1)
	go func() {
		defer g.writes.Done()

		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
		defer cancel()

		err := g.cache.Put(wctx, key, body)
		g.metrics.ObserveCacheWrite(err)
		if err != nil {
			logger.Warn(wctx, err, "Failed to store document in cache")
		}
	}()
}

// Wait blocks until every pending cache write has finished
func (g *Gateway) Wait() {
	g.writes.Wait()
}

func (g *Gateway) done(ctx context.Context, logger logging.Logger, req Request, res *Result) *Result {
	g.metrics.ObserveFetch(req.Kind, string(res.Outcome))
	logger.Debug(ctx, "Document loaded", "outcome", string(res.Outcome), "bytes", len(res.Body))
	return res
}

func (g *Gateway) download(ctx context.Context, req Request) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("body exceeds %d bytes", maxBodySize)
	}
	if err := req.accepts(body); err != nil {
		return nil, err
	}
	return body, nil
}

func (req Request) accepts(body []byte) error {
	if !isObject(body) {
		return fmt.Errorf("body is not a JSON object")
	}
	if req.Validate != nil {
		if err := req.Validate(body); err != nil {
			return fmt.Errorf("invalid document: %w", err)
		}
	}
	return nil
}

func isObject(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}
