// Package server exposes the extraction service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"mediagrab/pkg/config"
	"mediagrab/pkg/errors"
	"mediagrab/pkg/extractor"
	"mediagrab/pkg/logger"
	"mediagrab/pkg/media"
	"mediagrab/pkg/scraper"
)

// Server is the public HTTP surface over the extraction service
type Server struct {
	svc  *scraper.Service
	cfg  *config.Config
	log  logger.Logger
	http *http.Server
}

// New creates the server with its routes mounted
func New(svc *scraper.Service, cfg *config.Config, log logger.Logger) *Server {
	if log == nil {
		log = logger.GetLogger()
	}
	s := &Server{svc: svc, cfg: cfg, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/extract", s.handleExtract)
	mux.HandleFunc("GET /api/debug/extract", s.handleDebugExtract)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.http = &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route table, primarily for tests
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks until the listener fails or Shutdown is called
func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.cfg.Server.Addr).Info("http server listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the configured grace period
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

// extractRequest is the POST /api/extract body
type extractRequest struct {
	URL               string `json:"url"`
	PreferHighQuality bool   `json:"prefer_high_quality"`
	SkipCache         bool   `json:"skip_cache"`
}

// extractResponse wraps a result in the success/failure envelope
type extractResponse struct {
	Success bool          `json:"success"`
	Result  *media.Result `json:"result"`
}

type debugResponse struct {
	Success bool             `json:"success"`
	Result  *media.Result    `json:"result"`
	Debug   *media.DebugInfo `json:"debug"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResult(w, media.Failure(errors.KindInvalidURL, "request body is not valid JSON"))
		return
	}
	if req.URL == "" {
		s.writeResult(w, media.Failure(errors.KindInvalidURL, "url is required"))
		return
	}

	result := s.svc.Extract(r.Context(), req.URL, extractor.Options{
		PreferHighQuality: req.PreferHighQuality,
		SkipCache:         req.SkipCache,
	})
	s.writeResult(w, result)
}

func (s *Server) handleDebugExtract(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		s.writeJSON(w, statusFor(errors.KindInvalidURL), debugResponse{
			Result: media.Failure(errors.KindInvalidURL, "url query parameter is required"),
		})
		return
	}

	opts := extractor.Options{
		PreferHighQuality: r.URL.Query().Get("prefer_high_quality") == "true",
		SkipCache:         r.URL.Query().Get("skip_cache") == "true",
	}
	result, debug := s.svc.ExtractDebug(r.Context(), rawURL, opts)
	s.writeJSON(w, statusForResult(result), debugResponse{
		Success: !result.Failed(),
		Result:  result,
		Debug:   debug,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeResult(w http.ResponseWriter, result *media.Result) {
	s.writeJSON(w, statusForResult(result), extractResponse{
		Success: !result.Failed(),
		Result:  result,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("failed to encode response")
	}
}

func statusForResult(result *media.Result) int {
	if !result.Failed() {
		return http.StatusOK
	}
	return statusFor(result.ErrorCode)
}

// statusFor maps taxonomy kinds onto HTTP statuses. Callers branch on the
// errorCode in the body; the status is a coarse signal for middleboxes.
func statusFor(kind errors.Kind) int {
	switch kind {
	case errors.KindInvalidURL, errors.KindUnsupportedPlatform:
		return http.StatusBadRequest
	case errors.KindNotFound, errors.KindDeleted, errors.KindContentRemoved:
		return http.StatusNotFound
	case errors.KindRateLimited:
		return http.StatusTooManyRequests
	case errors.KindCookieRequired, errors.KindCookieExpired, errors.KindCookieInvalid,
		errors.KindPrivateContent, errors.KindAgeRestricted:
		return http.StatusForbidden
	case errors.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
