package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	bolt "go.etcd.io/bbolt"
)

const (
	// storeDirName is the bleve data directory inside an index location.
	storeDirName = "store"

	// DefaultOpenIndexCache is the default number of bleve indexes kept open.
	DefaultOpenIndexCache = 64

	// DefaultOpenTimeout bounds the wait for an index another process has open.
	DefaultOpenTimeout = time.Second

	// deletePageSize bounds each term lookup page when deleting by term.
	deletePageSize = 500
)

// Options configures the bleve engine.
type Options struct {
	// Root is the directory holding one subdirectory per index.
	Root string
	// IdentityField is mapped untokenized so exact-term deletion is reliable.
	IdentityField string
	// DefaultField is searched by query terms that name no field.
	DefaultField string
	// CacheSize bounds the number of indexes shared by live handles.
	// An index is closed once its last handle is released, so other
	// processes on the same root can open it.
	CacheSize int
	// OpenTimeout bounds the wait on an index held open by another process.
	// Expiry is reported as ErrLocked.
	OpenTimeout time.Duration
	// Logger receives engine diagnostics. Nil uses slog.Default().
	Logger *slog.Logger
}

// openIndex is a cached bleve index with a reference count.
// Entries evicted while referenced are parked in draining and closed
// when their last handle is released.
type openIndex struct {
	name    string
	index   bleve.Index
	refs    int
	evicted bool
	dropped bool
}

// Bleve implements Engine with one bleve index per name.
type Bleve struct {
	root          string
	identityField string
	defaultField  string
	openTimeout   time.Duration
	logger        *slog.Logger

	mu       sync.Mutex
	cache    *lru.Cache[string, *openIndex]
	draining map[string]*openIndex
	closed   bool
}

var _ Engine = (*Bleve)(nil)

// NewBleve creates a bleve engine rooted at opts.Root.
func NewBleve(opts Options) (*Bleve, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("engine root is required")
	}
	if opts.IdentityField == "" {
		return nil, fmt.Errorf("identity field is required")
	}
	if opts.DefaultField == "" {
		opts.DefaultField = "content"
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultOpenIndexCache
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = DefaultOpenTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index root %s: %w", opts.Root, err)
	}

	b := &Bleve{
		root:          opts.Root,
		identityField: opts.IdentityField,
		defaultField:  opts.DefaultField,
		openTimeout:   opts.OpenTimeout,
		logger:        opts.Logger,
		draining:      make(map[string]*openIndex),
	}

	cache, err := lru.NewWithEvict[string, *openIndex](opts.CacheSize, b.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create index cache: %w", err)
	}
	b.cache = cache
	return b, nil
}

// Root returns the engine root directory.
func (b *Bleve) Root() string {
	return b.root
}

// location returns the directory of an index.
func (b *Bleve) location(name string) string {
	return filepath.Join(b.root, name)
}

// LockMarker returns the writer exclusion marker path of an index.
func (b *Bleve) LockMarker(name string) string {
	return filepath.Join(b.location(name), LockFileName)
}

// OpenWriter takes the index's exclusion marker and returns a buffered writer.
// The index is created on first write.
func (b *Bleve) OpenWriter(_ context.Context, name string) (Writer, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	lock := NewFileLock(b.LockMarker(name))
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock index %s: %w", name, err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", ErrLocked, name)
	}

	entry, err := b.acquire(name, true)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	return &bleveWriter{
		engine: b,
		name:   name,
		entry:  entry,
		lock:   lock,
		batch:  entry.index.NewBatch(),
	}, nil
}

// OpenReader returns a read handle on an existing index.
func (b *Bleve) OpenReader(_ context.Context, name string) (Reader, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	entry, err := b.acquire(name, false)
	if err != nil {
		return nil, err
	}
	return &bleveReader{engine: b, entry: entry}, nil
}

// ParseQuery parses bleve query-string syntax. Clauses naming no field are
// bound to defaultField.
func (b *Bleve) ParseQuery(text, defaultField string) (Query, error) {
	q, err := bleve.NewQueryStringQuery(text).Parse()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuerySyntax, err)
	}
	if defaultField == "" {
		defaultField = b.defaultField
	}
	bindDefaultField(q, defaultField)
	return &parsedQuery{text: text, query: q}, nil
}

// Exists reports whether name has index data.
func (b *Bleve) Exists(name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}
	info, err := os.Stat(filepath.Join(b.location(name), storeDirName))
	switch {
	case err == nil:
		return info.IsDir(), nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat index %s: %w", name, err)
	}
}

// Drop removes the index data. Open handles stay usable until released.
func (b *Bleve) Drop(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	b.mu.Lock()
	if e, ok := b.cache.Peek(name); ok {
		e.dropped = true
		b.cache.Remove(name)
	}
	if e, ok := b.draining[name]; ok {
		e.dropped = true
	}
	b.mu.Unlock()

	if err := os.RemoveAll(filepath.Join(b.location(name), storeDirName)); err != nil {
		return fmt.Errorf("failed to remove index %s: %w", name, err)
	}
	return nil
}

// Close closes every open index that has no outstanding handle.
// Referenced indexes close when their handles are released.
func (b *Bleve) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.cache.Purge()
	return nil
}

// acquire returns a referenced open index, opening or creating it as needed.
func (b *Bleve) acquire(name string, create bool) (*openIndex, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	if e, ok := b.cache.Get(name); ok {
		e.refs++
		return e, nil
	}

	// Revive an entry evicted while still in use rather than opening the
	// same bleve directory twice.
	if e, ok := b.draining[name]; ok && !e.dropped {
		delete(b.draining, name)
		e.evicted = false
		e.refs++
		b.cache.Add(name, e)
		return e, nil
	}

	idx, err := b.open(name, create)
	if err != nil {
		return nil, err
	}

	e := &openIndex{name: name, index: idx, refs: 1}
	b.cache.Add(name, e)
	return e, nil
}

// release drops a reference taken by acquire. The last release closes the
// index, which frees bleve's root.bolt lock for other processes.
func (b *Bleve) release(e *openIndex) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e.refs--
	if e.refs > 0 {
		return
	}
	if !e.evicted {
		if cur, ok := b.cache.Peek(e.name); ok && cur == e {
			b.cache.Remove(e.name) // closes through onEvict
			return
		}
	}
	if b.draining[e.name] == e {
		delete(b.draining, e.name)
	}
	b.closeIndex(e)
}

// onEvict runs with b.mu held, from cache Add, Remove or Purge.
func (b *Bleve) onEvict(name string, e *openIndex) {
	e.evicted = true
	if e.refs > 0 {
		b.draining[name] = e
		return
	}
	b.closeIndex(e)
}

func (b *Bleve) closeIndex(e *openIndex) {
	if err := e.index.Close(); err != nil {
		b.logger.Warn("index_close_failed",
			slog.String("index", e.name),
			slog.String("error", err.Error()))
	}
}

// open opens the bleve index of name, creating it when create is set.
// An index held open by another process yields ErrLocked after openTimeout.
func (b *Bleve) open(name string, create bool) (bleve.Index, error) {
	path := filepath.Join(b.location(name), storeDirName)

	idx, err := bleve.OpenUsing(path, map[string]interface{}{
		"bolt_timeout": b.openTimeout.String(),
	})
	if err == nil {
		return idx, nil
	}
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("%w: %s is open in another process", ErrLocked, name)
	}
	if err != bleve.ErrorIndexPathDoesNotExist {
		return nil, fmt.Errorf("failed to open index %s: %w", name, err)
	}
	if !create {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}

	if err := os.MkdirAll(b.location(name), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory %s: %w", name, err)
	}
	idx, err = bleve.New(path, newIndexMapping(b.identityField, b.defaultField))
	if err != nil {
		return nil, fmt.Errorf("failed to create index %s: %w", name, err)
	}
	b.logger.Info("index_created", slog.String("index", name), slog.String("path", path))
	return idx, nil
}

// bleveWriter buffers changes into one bleve batch until Commit.
type bleveWriter struct {
	engine *Bleve
	name   string
	entry  *openIndex
	lock   *FileLock
	batch  *bleve.Batch
	closed bool
}

func (w *bleveWriter) Index() string {
	return w.name
}

// DeleteByTerm deletes every document whose field holds exactly one of values.
// Pending additions keyed by an identity value are dropped from the batch too.
func (w *bleveWriter) DeleteByTerm(field string, values ...string) error {
	if w.closed {
		return ErrClosed
	}
	for _, v := range values {
		if field == w.engine.identityField {
			w.batch.Delete(v)
		}
		ids, err := w.matchingIDs(field, v)
		if err != nil {
			return err
		}
		for _, id := range ids {
			w.batch.Delete(id)
		}
	}
	return nil
}

func (w *bleveWriter) matchingIDs(field, value string) ([]string, error) {
	tq := bleve.NewTermQuery(value)
	tq.SetField(field)

	var ids []string
	for from := 0; ; from += deletePageSize {
		req := bleve.NewSearchRequestOptions(tq, deletePageSize, from, false)
		res, err := w.entry.index.Search(req)
		if err != nil {
			return nil, fmt.Errorf("failed to look up %s=%s in %s: %w", field, value, w.name, err)
		}
		for _, hit := range res.Hits {
			ids = append(ids, hit.ID)
		}
		if len(res.Hits) < deletePageSize {
			return ids, nil
		}
	}
}

// AddDocuments buffers docs. A document with an identity value is keyed by
// it, so re-adding the same identity replaces the earlier version.
func (w *bleveWriter) AddDocuments(docs []Document) error {
	if w.closed {
		return ErrClosed
	}
	for _, doc := range docs {
		id := doc.ID
		if id == "" {
			id = uuid.NewString()
		}
		data := make(map[string]interface{}, len(doc.Fields))
		for k, v := range doc.Fields {
			data[k] = v
		}
		if err := w.batch.Index(id, data); err != nil {
			return fmt.Errorf("failed to index document %s in %s: %w", id, w.name, err)
		}
	}
	return nil
}

// Commit applies the buffered batch.
func (w *bleveWriter) Commit() error {
	if w.closed {
		return ErrClosed
	}
	if w.batch.Size() == 0 {
		return nil
	}
	if err := w.entry.index.Batch(w.batch); err != nil {
		return fmt.Errorf("failed to commit %s: %w", w.name, err)
	}
	w.batch.Reset()
	return nil
}

// Close discards uncommitted changes and releases the lock marker.
func (w *bleveWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.batch.Reset()
	w.engine.release(w.entry)
	return w.lock.Unlock()
}

type bleveReader struct {
	engine *Bleve
	entry  *openIndex
	once   sync.Once
}

// Search runs q and returns up to limit hits with all stored fields.
// bleve always counts every match, so the relation is exact.
func (r *bleveReader) Search(ctx context.Context, q Query, limit int) (Hits, error) {
	pq, ok := q.(*parsedQuery)
	if !ok {
		return Hits{}, fmt.Errorf("query %q was not parsed by this engine", q.String())
	}

	req := bleve.NewSearchRequestOptions(pq.query, limit, 0, false)
	req.Fields = []string{"*"}

	res, err := r.entry.index.SearchInContext(ctx, req)
	if err != nil {
		return Hits{}, fmt.Errorf("search %s: %w", r.entry.name, err)
	}

	hits := Hits{
		Entries:  make([]Hit, 0, len(res.Hits)),
		Total:    res.Total,
		Relation: RelationExact,
	}
	for _, h := range res.Hits {
		hits.Entries = append(hits.Entries, Hit{
			ID:     h.ID,
			Score:  h.Score,
			Fields: flattenFields(h.Fields),
		})
	}
	return hits, nil
}

func (r *bleveReader) Close() error {
	r.once.Do(func() { r.engine.release(r.entry) })
	return nil
}

// parsedQuery carries a bleve query through the engine-neutral Query type.
type parsedQuery struct {
	text  string
	query query.Query
}

func (q *parsedQuery) String() string {
	return q.text
}

// bindDefaultField sets field on every leaf clause that names none.
func bindDefaultField(q query.Query, field string) {
	switch t := q.(type) {
	case *query.BooleanQuery:
		bindDefaultField(t.Must, field)
		bindDefaultField(t.Should, field)
		bindDefaultField(t.MustNot, field)
	case *query.ConjunctionQuery:
		for _, c := range t.Conjuncts {
			bindDefaultField(c, field)
		}
	case *query.DisjunctionQuery:
		for _, d := range t.Disjuncts {
			bindDefaultField(d, field)
		}
	case query.FieldableQuery:
		if t.Field() == "" {
			t.SetField(field)
		}
	}
}

// flattenFields renders stored values as strings.
func flattenFields(fields map[string]interface{}) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case []interface{}:
			parts := make([]string, len(val))
			for i, item := range val {
				parts[i] = fmt.Sprint(item)
			}
			out[k] = strings.Join(parts, ", ")
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
