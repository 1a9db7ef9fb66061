// Package httpapi exposes the query, write and maintenance operations over
// HTTP using a chi router.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Aman-CERP/searchgate/internal/access"
	"github.com/Aman-CERP/searchgate/internal/batch"
	"github.com/Aman-CERP/searchgate/internal/errors"
	"github.com/Aman-CERP/searchgate/internal/ingest"
	"github.com/Aman-CERP/searchgate/internal/query"
	"github.com/Aman-CERP/searchgate/internal/response"
	"github.com/Aman-CERP/searchgate/internal/storage"
	"github.com/Aman-CERP/searchgate/pkg/version"
)

// Reply messages fixed by the query contract.
const (
	ForbiddenMessage  = "Forbidden: Access is denied"
	QueryErrorMessage = "Error"
)

// maxBodyBytes bounds request bodies on the write and query routes.
const maxBodyBytes = 32 << 20

// Querier runs one query against one index.
type Querier interface {
	Execute(ctx context.Context, index, text string) (query.Result, error)
}

// Writer applies write batches and drops indexes.
type Writer interface {
	Apply(ctx context.Context, items []batch.WriteBatchItem) ingest.Report
	Drop(ctx context.Context, index string) error
}

// Sizer measures index storage.
type Sizer func() (storage.Usage, error)

// Server holds the HTTP handlers.
type Server struct {
	querier Querier
	writer  Writer
	access  *access.Controller
	sizer   Sizer
	logger  *slog.Logger

	metricsHandler    http.Handler
	metricsMiddleware func(http.Handler) http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for request and error logging.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSizer enables GET /size.
func WithSizer(fn Sizer) Option {
	return func(s *Server) { s.sizer = fn }
}

// WithMetrics mounts handler on GET /metrics and wraps every route in mw.
func WithMetrics(handler http.Handler, mw func(http.Handler) http.Handler) Option {
	return func(s *Server) {
		s.metricsHandler = handler
		s.metricsMiddleware = mw
	}
}

// NewServer creates the HTTP API server.
func NewServer(q Querier, w Writer, ac *access.Controller, opts ...Option) *Server {
	if ac == nil {
		ac = access.NewController(nil)
	}
	s := &Server{
		querier: q,
		writer:  w,
		access:  ac,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer(s.logger))
	r.Use(chimw.SetHeader("Server", version.UserAgent()))
	r.Use(requestID)
	r.Use(requestLogger(s.logger))
	if s.metricsMiddleware != nil {
		r.Use(s.metricsMiddleware)
	}

	r.Options("/query", s.handleQueryPreflight)
	r.Post("/query", s.handleQuery)
	r.Post("/index", s.handleIndex)
	r.Delete("/indexes/{indexName}", s.handleDrop)
	r.Get("/healthz", s.handleHealth)
	if s.sizer != nil {
		r.Get("/size", s.handleSize)
	}
	if s.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	}
	return r
}

// handleQueryPreflight answers OPTIONS /query with the CORS headers only.
func (s *Server) handleQueryPreflight(w http.ResponseWriter, r *http.Request) {
	headers := s.access.Headers(r.Header.Get("Origin"))
	s.write(w, r, response.Empty(headers))
}

// handleQuery handles POST /query.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	decision := s.access.Decide(origin)
	headers := decision.Headers()
	if err := decision.Err(origin); err != nil {
		attrs := append([]slog.Attr{
			slog.String("request_id", requestIDFrom(r.Context())),
		}, errors.LogAttrs(err)...)
		s.logger.LogAttrs(r.Context(), slog.LevelWarn, "origin_not_allowed", attrs...)
		s.write(w, r, response.Error(headers, http.StatusForbidden, ForbiddenMessage))
		return
	}

	var req query.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.write(w, r, response.Error(headers, http.StatusBadRequest, "Invalid request body"))
		return
	}

	res, err := s.querier.Execute(r.Context(), req.IndexName, req.Query)
	if err != nil {
		attrs := append([]slog.Attr{
			slog.String("index", req.IndexName),
			slog.String("request_id", requestIDFrom(r.Context())),
		}, errors.LogAttrs(err)...)
		s.logger.LogAttrs(r.Context(), slog.LevelError, "query_failed", attrs...)
		s.write(w, r, response.Error(headers, http.StatusInternalServerError, QueryErrorMessage))
		return
	}

	s.write(w, r, response.Success(headers, res.Response()))
}

// handleIndex handles POST /index. The body is a JSON array of write batch
// items, or one item per line. The reply is the batch report; per-index
// failures are reported inside it and do not change the status code.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	items, err := batch.DecodeBatch(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.write(w, r, response.Error(nil, http.StatusBadRequest, err.Error()))
		return
	}

	report := s.writer.Apply(r.Context(), items)
	s.write(w, r, response.Success(nil, report))
}

// handleDrop handles DELETE /indexes/{indexName}.
func (s *Server) handleDrop(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "indexName")
	if err := s.writer.Drop(r.Context(), name); err != nil {
		status := statusFor(err)
		s.logger.LogAttrs(r.Context(), slog.LevelError, "index_drop_failed",
			append([]slog.Attr{slog.String("index", name)}, errors.LogAttrs(err)...)...)
		s.write(w, r, response.Error(nil, status, http.StatusText(status)))
		return
	}
	s.write(w, r, response.Success(nil, map[string]any{"index": name, "dropped": true}))
}

type sizeResponse struct {
	storage.Usage
	TotalMB float64 `json:"totalMB"`
	Summary string  `json:"summary"`
}

// handleSize handles GET /size.
func (s *Server) handleSize(w http.ResponseWriter, r *http.Request) {
	usage, err := s.sizer()
	if err != nil {
		s.logger.Error("index_size_failed", slog.String("error", err.Error()))
		s.write(w, r, response.Error(nil, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)))
		return
	}
	s.write(w, r, response.Success(nil, sizeResponse{Usage: usage, TotalMB: usage.MB(), Summary: usage.Summary()}))
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.write(w, r, response.Success(nil, map[string]string{"status": "ok"}))
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, env response.Envelope) {
	if err := env.WriteTo(w); err != nil {
		s.logger.Debug("response_write_failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
}

// statusFor maps an error code onto an HTTP status.
func statusFor(err error) int {
	switch errors.GetCategory(err) {
	case errors.CategoryValidation:
		return http.StatusBadRequest
	case errors.CategoryResource:
		return http.StatusServiceUnavailable
	}
	if errors.HasCode(err, errors.ErrCodeIndexNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
