// Package ingest applies write batches across named indexes.
//
// One Apply call holds at most one writer per index. Deletions of an item are
// submitted before its additions, every index commits on its own, and a
// failure on one index never stops the others. Writers are released on every
// exit path.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/searchgate/internal/batch"
	"github.com/Aman-CERP/searchgate/internal/engine"
	"github.com/Aman-CERP/searchgate/internal/errors"
)

// Acquirer hands out exclusive writers. resource.Manager implements it.
type Acquirer interface {
	AcquireWriter(ctx context.Context, index string) (engine.Writer, error)
	Release(w engine.Writer)
}

// Dropper deletes index data. engine.Engine implements it.
type Dropper interface {
	Exists(index string) (bool, error)
	Drop(index string) error
}

// Recorder persists batch reports. journal.Journal implements it.
type Recorder interface {
	Record(ctx context.Context, r Report) error
}

// Observer is notified after every batch. metrics.Collectors implements it.
type Observer interface {
	BatchApplied(r Report)
}

// Orchestrator drives partitioning and writer handling for write batches.
type Orchestrator struct {
	acquirer    Acquirer
	dropper     Dropper
	partitioner batch.Partitioner
	recorder    Recorder
	observer    Observer
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder persists every report.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithObserver reports every batch to obs.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		o.observer = obs
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock replaces the clock used for report timing.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithBatchIDs replaces the batch id generator.
func WithBatchIDs(newID func() string) Option {
	return func(o *Orchestrator) {
		o.newID = newID
	}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(acquirer Acquirer, dropper Dropper, partitioner batch.Partitioner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		acquirer:    acquirer,
		dropper:     dropper,
		partitioner: partitioner,
		logger:      slog.Default(),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// slot is the per-index state of one Apply call.
type slot struct {
	writer  engine.Writer
	outcome IndexOutcome
}

func (s *slot) fail(stage Stage, err error) {
	s.outcome.Status = StatusFailed
	s.outcome.Stage = stage
	s.outcome.Code = errors.GetCode(err)
	s.outcome.Error = err.Error()
}

func (s *slot) failed() bool {
	return s.outcome.Status == StatusFailed
}

// Apply writes items and reports the per-index outcome.
// It never fails as a whole. Cancelling ctx does not stop a started batch.
func (o *Orchestrator) Apply(ctx context.Context, items []batch.WriteBatchItem) Report {
	ctx = context.WithoutCancel(ctx)
	report := Report{
		BatchID:   o.newID(),
		StartedAt: o.now(),
		Items:     len(items),
	}

	// Group by index, first-seen order.
	var order []string
	slots := make(map[string]*slot)
	for _, item := range items {
		s, ok := slots[item.IndexName]
		if !ok {
			s = &slot{outcome: IndexOutcome{Index: item.IndexName, Status: StatusCommitted}}
			slots[item.IndexName] = s
			order = append(order, item.IndexName)
		}
		s.outcome.Items++
	}

	defer func() {
		for _, name := range order {
			if w := slots[name].writer; w != nil {
				o.acquirer.Release(w)
			}
		}
	}()

	for _, name := range order {
		s := slots[name]
		w, err := o.acquirer.AcquireWriter(ctx, name)
		if err != nil {
			s.fail(StageAcquire, err)
			o.logFailure(report.BatchID, s, err)
			continue
		}
		s.writer = w
	}

	for _, item := range items {
		s := slots[item.IndexName]
		if s.failed() {
			continue
		}
		if err := o.applyItem(s, item); err != nil {
			s.fail(StageApply, err)
			o.logFailure(report.BatchID, s, err)
		}
	}

	for _, name := range order {
		s := slots[name]
		if s.failed() {
			continue
		}
		if err := s.writer.Commit(); err != nil {
			err = errors.IndexIOError("failed to commit index", err).WithDetail("index", name)
			s.fail(StageCommit, err)
			o.logFailure(report.BatchID, s, err)
		}
	}

	for _, name := range order {
		report.Indexes = append(report.Indexes, slots[name].outcome)
	}
	report.Duration = o.now().Sub(report.StartedAt)

	o.logger.Info("batch_applied",
		slog.String("batch_id", report.BatchID),
		slog.Int("items", report.Items),
		slog.Int("indexes", len(report.Indexes)),
		slog.Int("failed", report.Failed()),
		slog.Duration("duration", report.Duration))

	if o.recorder != nil {
		if err := o.recorder.Record(ctx, report); err != nil {
			o.logger.Warn("batch_record_failed",
				slog.String("batch_id", report.BatchID),
				slog.String("error", err.Error()))
		}
	}
	if o.observer != nil {
		o.observer.BatchApplied(report)
	}
	return report
}

// applyItem submits the item's deletions, then its additions.
func (o *Orchestrator) applyItem(s *slot, item batch.WriteBatchItem) error {
	res := o.partitioner.Partition(item.Documents)
	s.outcome.Malformed += res.Malformed
	if res.Malformed > 0 {
		o.logger.Warn("malformed_entries_dropped",
			slog.String("index", item.IndexName),
			slog.Int("count", res.Malformed),
			slog.String("code", errors.ErrCodeMalformedEntry))
	}

	if len(res.Deletions) > 0 {
		if err := s.writer.DeleteByTerm(o.partitioner.IdentityField, res.Deletions...); err != nil {
			return errors.IndexIOError("failed to delete documents", err).
				WithDetail("index", item.IndexName)
		}
		s.outcome.Deleted += len(res.Deletions)
		o.logger.Debug("documents_deleted",
			slog.String("index", item.IndexName),
			slog.Any("terms", res.Deletions))
	}

	if len(res.Additions) > 0 {
		docs := make([]engine.Document, len(res.Additions))
		for i, a := range res.Additions {
			docs[i] = engine.Document{ID: a.Fields[o.partitioner.IdentityField], Fields: a.Fields}
		}
		if err := s.writer.AddDocuments(docs); err != nil {
			return errors.IndexIOError("failed to add documents", err).
				WithDetail("index", item.IndexName)
		}
		s.outcome.Added += len(docs)
	}
	return nil
}

func (o *Orchestrator) logFailure(batchID string, s *slot, err error) {
	attrs := []any{
		slog.String("batch_id", batchID),
		slog.String("index", s.outcome.Index),
		slog.String("stage", string(s.outcome.Stage)),
	}
	for _, a := range errors.LogAttrs(err) {
		attrs = append(attrs, a)
	}
	o.logger.Error("index_update_failed", attrs...)
}

// Drop removes an index. It takes the index writer under the same policy as
// Apply so a drop never races a running batch. An index with no data is
// ERR_202_INDEX_NOT_FOUND; taking its writer would create it.
func (o *Orchestrator) Drop(ctx context.Context, index string) error {
	if err := engine.ValidateName(index); err != nil {
		return errors.New(errors.ErrCodeInvalidIndexName, "invalid index name", err).
			WithDetail("index", index)
	}
	ok, err := o.dropper.Exists(index)
	if err != nil {
		return errors.IndexIOError("failed to check index", err).WithDetail("index", index)
	}
	if !ok {
		return errors.New(errors.ErrCodeIndexNotFound, "index not found", nil).
			WithDetail("index", index)
	}

	ctx = context.WithoutCancel(ctx)
	w, err := o.acquirer.AcquireWriter(ctx, index)
	if err != nil {
		return err
	}
	defer o.acquirer.Release(w)

	if err := o.dropper.Drop(index); err != nil {
		return errors.IndexIOError("failed to drop index", err).WithDetail("index", index)
	}
	o.logger.Info("index_dropped", slog.String("index", index))
	return nil
}
