// Package query executes query strings against a named index and projects
// the ranked hits into the reply shape.
package query

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/Aman-CERP/searchgate/internal/engine"
	"github.com/Aman-CERP/searchgate/internal/errors"
)

// Defaults for query execution.
const (
	DefaultField = "content"
	DefaultLimit = 10
)

// LowerBoundPrefix marks a total that is only a lower bound.
const LowerBoundPrefix = "≥"

// Request is one inbound query.
type Request struct {
	IndexName string `json:"indexName"`
	Query     string `json:"query"`
}

// Result is the projected outcome of one query.
type Result struct {
	Documents  []map[string]string
	TotalCount uint64
	Relation   engine.Relation
}

// TotalDocuments renders the total, prefixed when it is a lower bound.
func (r Result) TotalDocuments() string {
	n := strconv.FormatUint(r.TotalCount, 10)
	if r.Relation == engine.RelationAtLeast {
		return LowerBoundPrefix + n
	}
	return n
}

// Response is the wire form of a Result.
type Response struct {
	Documents      []map[string]string `json:"documents"`
	TotalDocuments string              `json:"totalDocuments"`
}

// Response converts r to its wire form.
func (r Result) Response() Response {
	docs := r.Documents
	if docs == nil {
		docs = []map[string]string{}
	}
	return Response{Documents: docs, TotalDocuments: r.TotalDocuments()}
}

// Observer is notified after every query. metrics.Collectors implements it.
type Observer interface {
	QueryExecuted(index string, elapsed time.Duration, err error)
}

// Config tunes an Executor.
type Config struct {
	DefaultField string
	Limit        int
}

// Executor runs queries through an engine.
type Executor struct {
	engine   engine.Engine
	cfg      Config
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver reports every query to obs.
func WithObserver(obs Observer) Option {
	return func(e *Executor) {
		e.observer = obs
	}
}

// NewExecutor creates an Executor. Zero config values take the defaults.
func NewExecutor(eng engine.Engine, cfg Config, opts ...Option) *Executor {
	if cfg.DefaultField == "" {
		cfg.DefaultField = DefaultField
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	e := &Executor{
		engine: eng,
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute parses text, searches index and returns at most Limit documents
// in engine ranking order.
func (e *Executor) Execute(ctx context.Context, index, text string) (res Result, err error) {
	start := e.now()
	defer func() {
		if e.observer != nil {
			e.observer.QueryExecuted(index, e.now().Sub(start), err)
		}
	}()

	q, err := e.engine.ParseQuery(text, e.cfg.DefaultField)
	if err != nil {
		return Result{}, e.classify(index, err)
	}

	reader, err := e.engine.OpenReader(ctx, index)
	if err != nil {
		return Result{}, e.classify(index, err)
	}
	defer func() {
		if cerr := reader.Close(); cerr != nil {
			e.logger.Warn("index_reader_close_failed",
				slog.String("index", index),
				slog.String("error", cerr.Error()))
		}
	}()

	hits, err := reader.Search(ctx, q, e.cfg.Limit)
	if err != nil {
		return Result{}, e.classify(index, err)
	}

	res = Result{
		Documents:  make([]map[string]string, 0, len(hits.Entries)),
		TotalCount: hits.Total,
		Relation:   hits.Relation,
	}
	for _, hit := range hits.Entries {
		fields := make(map[string]string, len(hit.Fields))
		for k, v := range hit.Fields {
			fields[k] = v
		}
		res.Documents = append(res.Documents, fields)
	}

	e.logger.Debug("query_executed",
		slog.String("index", index),
		slog.Int("returned", len(res.Documents)),
		slog.String("total", res.TotalDocuments()))
	return res, nil
}

// classify maps engine errors onto error codes.
func (e *Executor) classify(index string, err error) error {
	var out *errors.Error
	switch {
	case stderrors.Is(err, engine.ErrQuerySyntax):
		out = errors.New(errors.ErrCodeQuerySyntax, "query syntax error", err)
	case stderrors.Is(err, engine.ErrInvalidName):
		out = errors.New(errors.ErrCodeInvalidIndexName, "invalid index name", err)
	case stderrors.Is(err, engine.ErrIndexNotFound):
		out = errors.New(errors.ErrCodeIndexNotFound, "index not found", err)
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return err
	default:
		out = errors.IndexIOError("failed to read index", err)
	}
	return out.WithDetail("index", index)
}
