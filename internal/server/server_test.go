package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/boxrender/internal/cache"
	"github.com/conneroisu/boxrender/internal/config"
	"github.com/conneroisu/boxrender/internal/errors"
	"github.com/conneroisu/boxrender/internal/fetch"
	"github.com/conneroisu/boxrender/internal/metrics"
	"github.com/conneroisu/boxrender/internal/renderer"
	"github.com/conneroisu/boxrender/internal/store"
)

const sampleManifest = `{
	"resources": [
		{"tag": "nodes", "from": "inline", "payload": {"outbounds": [{"type": "vmess", "tag": "hk"}, {"type": "vmess", "tag": "us"}]}}
	],
	"templates": [
		{"tag": "default", "from": "inline",
		 "payload": {"outbounds": [{"type": "selector", "tag": "proxy"}]},
		 "options": {"append": {"outbounds": {"nodes": null}}, "append_groups": {"proxy": null}}},
		{"tag": "modern", "from": "inline", "payload": {"log": {"level": "debug"}}}
	],
	"template_rules": [{"tag": "modern", "version_gte": "1.12.0"}]
}`

// memStore is an in-memory store keyed by entry id
type memStore struct {
	entries     map[string]map[string]string
	tokens      []string
	err         error
	downloadErr error
}

func (m *memStore) Files(_ context.Context, id, token string) (store.Listing, error) {
	m.tokens = append(m.tokens, token)
	if m.err != nil {
		return nil, m.err
	}
	files, ok := m.entries[id]
	if !ok {
		return nil, &store.Error{Type: store.ErrNotFound, Store: "mem", Target: id, Message: "entry not found"}
	}
	listing := store.Listing{}
	for name := range files {
		listing[name] = store.File{Filename: name, RawURL: "mem://" + id + "/" + name}
	}
	return listing, nil
}

func (m *memStore) Download(_ context.Context, rawURL string) ([]byte, error) {
	if m.downloadErr != nil {
		return nil, m.downloadErr
	}
	rest := strings.TrimPrefix(rawURL, "mem://")
	id, name, _ := strings.Cut(rest, "/")
	return []byte(m.entries[id][name]), nil
}

func newTestServer(t *testing.T, cfg config.ServerConfig, st store.Store) (*Server, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	mem := cache.NewMemoryStore(0, 0)
	r := renderer.New(fetch.NewGateway(nil, mem, nil, m), nil, m)
	s := New(&config.Config{Server: cfg, Store: config.StoreConfig{Kind: store.KindGist}}, Deps{
		Store:    st,
		Renderer: r,
		Cache:    mem,
		Metrics:  m,
	})
	return s, m
}

func sampleStore() *memStore {
	return &memStore{entries: map[string]map[string]string{
		"good":    {"config.json": sampleManifest},
		"noconf":  {"other.json": `{}`},
		"broken":  {"config.json": `{"templates": [`},
		"badrule": {"config.json": `{"templates": [{"tag": "t", "from": "inline", "options": {"append_groups": {"proxy": null}}}]}`},
	}}
}

func TestHandleRender(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		userAgent  string
		status     int
		body       string
		jsonBody   string
		contentTyp string
	}{
		{name: "missing gist", target: "/", status: http.StatusUnauthorized, body: "invalid credentials"},
		{name: "unknown gist", target: "/?gist=nope", status: http.StatusNotFound, body: "failed to fetch gist files: mem store [NotFound] nope"},
		{name: "no manifest", target: "/?gist=noconf", status: http.StatusNotFound, body: "cannot find config in gist files"},
		{name: "broken manifest", target: "/?gist=broken", status: http.StatusBadRequest, body: "invalid config"},
		{name: "render error", target: "/?gist=badrule", status: http.StatusUnprocessableEntity, body: "ERR_GROUP_NOT_FOUND"},
		{
			name:       "default template",
			target:     "/sub?gist=good&token=tok",
			status:     http.StatusOK,
			jsonBody:   `{"outbounds": [{"type": "selector", "tag": "proxy", "outbounds": ["hk", "us"]}, {"type": "vmess", "tag": "hk"}, {"type": "vmess", "tag": "us"}]}`,
			contentTyp: "application/json",
		},
		{
			name:      "template chosen by client version",
			target:    "/?gist=good",
			userAgent: "SFA/1.12.0 (sing-box/1.12.1; android)",
			status:    http.StatusOK,
			jsonBody:  `{"log": {"level": "debug"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, config.ServerConfig{}, sampleStore())

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.userAgent != "" {
				req.Header.Set("User-Agent", tt.userAgent)
			}
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Contains(t, rec.Body.String(), tt.body)
			}
			if tt.jsonBody != "" {
				assert.JSONEq(t, tt.jsonBody, rec.Body.String())
			}
			if tt.contentTyp != "" {
				assert.Equal(t, tt.contentTyp, rec.Header().Get("Content-Type"))
			}
			_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
			assert.NoError(t, err)
		})
	}
}

func TestHandleRenderFallbackToken(t *testing.T) {
	st := sampleStore()
	s, _ := newTestServer(t, config.ServerConfig{FallbackToken: "fallback"}, st)

	for _, target := range []string{"/?gist=good", "/?gist=good&token=mine"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, []string{"fallback", "mine"}, st.tokens)
}

func TestHandleRenderStoreFailure(t *testing.T) {
	tests := []struct {
		name   string
		st     *memStore
		status int
		body   string
	}{
		{
			name:   "token rejected",
			st:     &memStore{err: &store.Error{Type: store.ErrAuthFailed, Store: "gist", Target: "x", Message: "token rejected"}},
			status: http.StatusUnauthorized,
			body:   "failed to fetch gist files: gist store [AuthFailed] x: token rejected",
		},
		{
			name:   "invalid id",
			st:     &memStore{err: &store.Error{Type: store.ErrInvalidID, Store: "dir", Target: ".x", Message: "invalid entry id"}},
			status: http.StatusNotFound,
			body:   "invalid entry id",
		},
		{
			name:   "listing unreachable",
			st:     &memStore{err: fmt.Errorf("dial tcp: connection refused")},
			status: http.StatusBadRequest,
			body:   "failed to fetch gist files: dial tcp: connection refused",
		},
		{
			name: "manifest download failed",
			st: &memStore{
				entries:     map[string]map[string]string{"x": {"config.json": sampleManifest}},
				downloadErr: &store.Error{Type: store.ErrFetchFailed, Store: "gist", Target: "raw", Message: "download failed"},
			},
			status: http.StatusBadRequest,
			body:   "failed to fetch config: gist store [FetchFailed] raw: download failed",
		},
		{
			name: "manifest gone",
			st: &memStore{
				entries:     map[string]map[string]string{"x": {"config.json": sampleManifest}},
				downloadErr: &store.Error{Type: store.ErrNotFound, Store: "gist", Target: "raw", Message: "download failed"},
			},
			status: http.StatusNotFound,
			body:   "failed to fetch config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, config.ServerConfig{}, tt.st)

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?gist=x", nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
			assert.Equal(t, int64(1), s.renders.failed.Load())

			var event Event
			require.NoError(t, json.Unmarshal(<-s.hub.broadcast, &event))
			assert.Equal(t, EventRender, event.Type)
			assert.Equal(t, errors.ErrCodeStoreFailed, event.Code)
			assert.Equal(t, "error", event.Result)
		})
	}
}

func TestGating(t *testing.T) {
	tests := []struct {
		name   string
		cfg    config.ServerConfig
		host   string
		path   string
		status int
	}{
		{name: "no gates", host: "anything.example", path: "/x", status: http.StatusOK},
		{name: "matching host with port", cfg: config.ServerConfig{VerifyHostname: "sub.example.com"}, host: "SUB.example.com:8443", path: "/", status: http.StatusOK},
		{name: "unicode host matches punycode", cfg: config.ServerConfig{VerifyHostname: "例え.jp"}, host: "xn--r8jz45g.jp", path: "/", status: http.StatusOK},
		{name: "other host", cfg: config.ServerConfig{VerifyHostname: "sub.example.com"}, host: "evil.example.com", path: "/", status: http.StatusNotFound},
		{name: "matching path", cfg: config.ServerConfig{VerifyPath: "/secret"}, host: "a", path: "/secret", status: http.StatusOK},
		{name: "other path", cfg: config.ServerConfig{VerifyPath: "/secret"}, host: "a", path: "/", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, tt.cfg, sampleStore())

			req := httptest.NewRequest(http.MethodGet, tt.path+"?gist=good", nil)
			req.Host = tt.host
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNotFound {
				assert.Empty(t, rec.Body.String())
			}
		})
	}
}

func TestRequestIDIsKept(t *testing.T) {
	s, _ := newTestServer(t, config.ServerConfig{}, sampleStore())
	id := uuid.NewString()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, id)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, id, rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.NotEqual(t, "not-a-uuid", rec.Header().Get(RequestIDHeader))
}

func TestReservedEndpoints(t *testing.T) {
	s, _ := newTestServer(t, config.ServerConfig{VerifyPath: "/only-here"}, sampleStore())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/only-here?gist=good", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/only-here?gist=badrule", nil))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var health healthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
		assert.Equal(t, "ok", health.Status)
		assert.Equal(t, store.KindGist, health.Store)
	})

	t.Run("status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

		body := rec.Body.String()
		assert.Contains(t, body, "<th>Renders Ok</th><td>1</td>")
		assert.Contains(t, body, "<th>Renders Failed</th><td>1</td>")
		assert.Contains(t, body, "<th>Cache Writes</th>")
	})

	t.Run("metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `boxrender_renders_total{result="ok"} 1`)
		assert.Contains(t, rec.Body.String(), `boxrender_request_duration_seconds`)
	})
}

func TestStatusPageEscapes(t *testing.T) {
	var b strings.Builder
	snap := statusSnapshot{version: "<v>", rows: []statusRow{{"verified hostname", "<script>"}}}
	require.NoError(t, statusPage(snap).Render(context.Background(), &b))

	assert.Contains(t, b.String(), "&lt;script&gt;")
	assert.NotContains(t, b.String(), "<script>")
	assert.Contains(t, b.String(), "Verified Hostname")
}

func TestEventsFeed(t *testing.T) {
	s, _ := newTestServer(t, config.ServerConfig{}, sampleStore())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Hub().Run(ctx)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return s.Hub().Clients() == 1 }, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get(srv.URL + "/?gist=good")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	s.StoreChanged("good-entry")

	readEvent := func() Event {
		readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
		defer readCancel()
		_, data, err := conn.Read(readCtx)
		require.NoError(t, err)
		var e Event
		require.NoError(t, json.Unmarshal(data, &e))
		return e
	}

	render := readEvent()
	assert.Equal(t, EventRender, render.Type)
	assert.Equal(t, "default", render.Template)
	assert.Equal(t, metrics.ResultOK, render.Result)
	assert.NotContains(t, render.ID, "good")
	assert.False(t, render.Timestamp.IsZero())

	change := readEvent()
	assert.Equal(t, EventStoreChange, change.Type)
	assert.Equal(t, "good…[REDACTED]", change.ID)
}

func TestServeAndShutdown(t *testing.T) {
	s, _ := newTestServer(t, config.ServerConfig{}, sampleStore())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	require.NoError(t, s.Shutdown(shutdownCtx))
	require.NoError(t, <-done)

	// A second shutdown is a no-op
	assert.NoError(t, s.Shutdown(shutdownCtx))
}
