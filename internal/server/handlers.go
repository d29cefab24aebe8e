package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/idna"

	"github.com/conneroisu/boxrender/internal/errors"
	"github.com/conneroisu/boxrender/internal/logging"
	"github.com/conneroisu/boxrender/internal/manifest"
	"github.com/conneroisu/boxrender/internal/metrics"
	"github.com/conneroisu/boxrender/internal/renderer"
	"github.com/conneroisu/boxrender/internal/store"
	"github.com/conneroisu/boxrender/internal/useragent"
	"github.com/conneroisu/boxrender/internal/version"
)

// handleRender renders the manifest of the requested store entry
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx, s.logger)

	if !s.allowed(r) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	query := r.URL.Query()
	token := query.Get("token")
	if token == "" {
		token = s.config.FallbackToken
	}
	id := query.Get("gist")
	if id == "" {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	logger = logger.With("gist", logging.Redact(id))

	files, err := s.store.Files(ctx, id, token)
	if err != nil {
		s.storeFailed(ctx, w, logger, id, errors.WrapStore(err, "failed to fetch gist files"))
		return
	}

	file, ok := files[store.ManifestFile]
	if !ok {
		http.Error(w, "cannot find config in gist files", http.StatusNotFound)
		return
	}

	data, err := s.store.Download(ctx, file.RawURL)
	if err != nil {
		s.storeFailed(ctx, w, logger, id, errors.WrapStore(err, "failed to fetch config"))
		return
	}
	m, err := manifest.Parse(data)
	if err != nil {
		http.Error(w, "invalid config: "+err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.renderer.Render(ctx, renderer.Input{
		Manifest: m,
		Version:  useragent.ParseSingBoxVersion(r.UserAgent()),
		Files:    files,
	})
	if err != nil {
		s.renderFailed(ctx, w, logger, id, err)
		return
	}

	body, err := json.Marshal(res.Document)
	if err != nil {
		logger.Error(ctx, err, "Failed to encode rendered document")
		http.Error(w, "failed to encode document", http.StatusInternalServerError)
		return
	}

	s.renders.ok.Add(1)
	s.hub.Publish(Event{Type: EventRender, ID: logging.Redact(id), Template: res.Template, Result: metrics.ResultOK})

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// storeFailed answers a store failure. A rejected token is 401 and an
// unknown entry or file is 404; anything else is 400.
func (s *Server) storeFailed(ctx context.Context, w http.ResponseWriter, logger logging.Logger, id string, err *errors.RenderError) {
	logger.Warn(ctx, err, "Store request failed")

	status := http.StatusBadRequest
	if typ, ok := store.TypeOf(err); ok {
		switch typ {
		case store.ErrAuthFailed:
			status = http.StatusUnauthorized
		case store.ErrNotFound, store.ErrInvalidID:
			status = http.StatusNotFound
		}
	}

	s.renders.failed.Add(1)
	s.hub.Publish(Event{Type: EventRender, ID: logging.Redact(id), Result: metrics.ResultError, Code: err.Code})
	http.Error(w, err.Message+": "+err.Cause.Error(), status)
}

func (s *Server) renderFailed(ctx context.Context, w http.ResponseWriter, logger logging.Logger, id string, err error) {
	event := Event{Type: EventRender, ID: logging.Redact(id), Code: errors.CodeOf(err)}

	// Missing tags are mistakes in the caller's manifest
	if errors.IsNotFound(err) {
		logger.Info(ctx, "Manifest references an unknown tag", "code", event.Code, "error", err.Error())
	} else if !errors.IsCancelled(err) {
		logger.Warn(ctx, err, "Render failed", "code", event.Code)
	}

	if errors.IsCancelled(err) {
		s.renders.cancelled.Add(1)
		event.Result = metrics.ResultCancelled
		s.hub.Publish(event)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	s.renders.failed.Add(1)
	event.Result = metrics.ResultError
	s.hub.Publish(event)
	http.Error(w, err.Error(), http.StatusUnprocessableEntity)
}

// allowed applies the hostname and path gates
func (s *Server) allowed(r *http.Request) bool {
	if want := s.config.VerifyHostname; want != "" && normalizeHost(r.Host) != normalizeHost(want) {
		return false
	}
	if want := s.config.VerifyPath; want != "" && r.URL.Path != want {
		return false
	}
	return true
}

// normalizeHost strips the port and maps the host to its lowercase ASCII
// form so that unicode and punycode spellings compare equal
func normalizeHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimSpace(host), ".")
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}
	return strings.ToLower(host)
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Store   string `json:"store"`
	Uptime  string `json:"uptime"`
	Clients int    `json:"clients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:  "ok",
		Version: version.Get().Short(),
		Store:   s.kind,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Clients: s.hub.Clients(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusPage(s.snapshot()).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context(), s.logger).Error(r.Context(), err, "Failed to render status page")
		http.Error(w, fmt.Sprintf("render status: %v", err), http.StatusInternalServerError)
	}
}
