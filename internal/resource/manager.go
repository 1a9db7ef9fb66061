// Package resource owns acquisition and release of per-index write handles.
//
// Writers on the same index are mutually exclusive across processes through
// the engine's lock marker. A marker left behind by a writer that did not shut
// down cleanly is reclaimed once it is older than the staleness threshold;
// live contention is retried a bounded number of times with a fixed delay.
package resource

import (
	"context"
	stderrors "errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/Aman-CERP/searchgate/internal/engine"
	"github.com/Aman-CERP/searchgate/internal/errors"
)

// Defaults for the acquisition policy.
const (
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = time.Second
	DefaultStaleAfter  = 5 * time.Minute
)

// Policy bounds writer acquisition.
type Policy struct {
	// MaxAttempts is the total number of open attempts, including the first.
	MaxAttempts int
	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration
	// StaleAfter is the lock marker age past which the marker is removed.
	StaleAfter time.Duration
}

// DefaultPolicy returns 5 attempts, 1s apart, with a 5 minute staleness threshold.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		RetryDelay:  DefaultRetryDelay,
		StaleAfter:  DefaultStaleAfter,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = DefaultRetryDelay
	}
	if p.StaleAfter <= 0 {
		p.StaleAfter = DefaultStaleAfter
	}
	return p
}

// Observer receives acquisition events. metrics.Collectors implements it.
type Observer interface {
	LockRetried(index string)
	StaleLockReclaimed(index string)
}

type nopObserver struct{}

func (nopObserver) LockRetried(string)        {}
func (nopObserver) StaleLockReclaimed(string) {}

// Manager acquires and releases writers on behalf of one process.
type Manager struct {
	engine   engine.Engine
	policy   Policy
	logger   *slog.Logger
	observer Observer

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	stat   func(name string) (fs.FileInfo, error)
	remove func(name string) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithClock replaces the wall clock used for staleness checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithSleep replaces the wait between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Manager) {
		m.sleep = sleep
	}
}

// WithRemove replaces the function that deletes a stale marker.
func WithRemove(remove func(name string) error) Option {
	return func(m *Manager) {
		m.remove = remove
	}
}

// NewManager creates a Manager over eng.
func NewManager(eng engine.Engine, policy Policy, opts ...Option) *Manager {
	m := &Manager{
		engine:   eng,
		policy:   policy.withDefaults(),
		logger:   slog.Default(),
		observer: nopObserver{},
		now:      time.Now,
		sleep:    errors.SleepContext,
		stat:     os.Stat,
		remove:   os.Remove,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Policy returns the effective acquisition policy.
func (m *Manager) Policy() Policy {
	return m.policy
}

// AcquireWriter opens the exclusive writer for index.
//
// Lock contention is retried per the policy; when the attempts run out the
// error carries ERR_301_RESOURCE_UNAVAILABLE. Any other open failure is
// returned on the first attempt without retrying.
func (m *Manager) AcquireWriter(ctx context.Context, index string) (engine.Writer, error) {
	if err := engine.ValidateName(index); err != nil {
		return nil, errors.New(errors.ErrCodeInvalidIndexName, "invalid index name", err).
			WithDetail("index", index)
	}

	cfg := errors.FixedRetryConfig(m.policy.MaxAttempts, m.policy.RetryDelay)
	cfg.RetryIf = func(err error) bool {
		return errors.HasCode(err, errors.ErrCodeIndexLocked)
	}
	cfg.Sleep = m.sleep

	attempt := 0
	w, err := errors.RetryWithResult(ctx, cfg, func() (engine.Writer, error) {
		attempt++
		if attempt > 1 {
			m.observer.LockRetried(index)
			m.logger.Debug("index_lock_retry",
				slog.String("index", index),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", m.policy.MaxAttempts))
		}
		m.reclaimStale(index)
		return m.open(ctx, index)
	})
	if err == nil {
		return w, nil
	}

	if errors.HasCode(err, errors.ErrCodeIndexLocked) {
		m.logger.Warn("index_lock_unavailable",
			slog.String("index", index),
			slog.Int("attempts", attempt))
		return nil, errors.New(errors.ErrCodeResourceUnavailable,
			"index writer unavailable after retries", err).
			WithDetail("index", index)
	}
	return nil, err
}

// open makes one attempt and classifies the engine error.
func (m *Manager) open(ctx context.Context, index string) (engine.Writer, error) {
	w, err := m.engine.OpenWriter(ctx, index)
	switch {
	case err == nil:
		return w, nil
	case stderrors.Is(err, engine.ErrLocked):
		return nil, errors.New(errors.ErrCodeIndexLocked, "index is locked", err).
			WithDetail("index", index)
	case stderrors.Is(err, engine.ErrInvalidName):
		return nil, errors.New(errors.ErrCodeInvalidIndexName, "invalid index name", err).
			WithDetail("index", index)
	default:
		return nil, errors.IndexIOError("failed to open index writer", err).
			WithDetail("index", index)
	}
}

// reclaimStale removes the lock marker when it is older than the threshold.
// Failures are logged and never stop acquisition.
func (m *Manager) reclaimStale(index string) {
	marker := m.engine.LockMarker(index)
	info, err := m.stat(marker)
	if err != nil {
		if !stderrors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("lock_marker_stat_failed",
				slog.String("index", index),
				slog.String("path", marker),
				slog.String("error", err.Error()))
		}
		return
	}

	age := m.now().Sub(info.ModTime())
	if age <= m.policy.StaleAfter {
		return
	}

	if err := m.remove(marker); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		m.logger.Warn("stale_lock_remove_failed",
			slog.String("index", index),
			slog.String("path", marker),
			slog.Duration("age", age),
			slog.String("error", err.Error()))
		return
	}
	m.observer.StaleLockReclaimed(index)
	m.logger.Info("stale_lock_removed",
		slog.String("index", index),
		slog.String("path", marker),
		slog.Duration("age", age))
}

// Release closes w. It is safe on nil and on an already released writer.
func (m *Manager) Release(w engine.Writer) {
	if w == nil {
		return
	}
	if err := w.Close(); err != nil {
		m.logger.Warn("index_writer_release_failed",
			slog.String("index", w.Index()),
			slog.String("error", err.Error()))
	}
}
