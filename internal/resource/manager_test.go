package resource

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchgate/internal/engine"
	"github.com/Aman-CERP/searchgate/internal/errors"
)

// fakeEngine scripts OpenWriter results; other methods are unused here.
type fakeEngine struct {
	root    string
	results []error
	opens   int
}

func (f *fakeEngine) OpenWriter(_ context.Context, name string) (engine.Writer, error) {
	i := f.opens
	f.opens++
	if i < len(f.results) && f.results[i] != nil {
		return nil, f.results[i]
	}
	return &fakeWriter{index: name}, nil
}

func (f *fakeEngine) OpenReader(context.Context, string) (engine.Reader, error) {
	return nil, engine.ErrIndexNotFound
}

func (f *fakeEngine) ParseQuery(string, string) (engine.Query, error) { return nil, nil }

func (f *fakeEngine) LockMarker(name string) string {
	return filepath.Join(f.root, name, engine.LockFileName)
}

func (f *fakeEngine) Exists(string) (bool, error) { return true, nil }
func (f *fakeEngine) Drop(string) error           { return nil }
func (f *fakeEngine) Close() error                { return nil }

type fakeWriter struct {
	index  string
	closes int
}

func (w *fakeWriter) Index() string                        { return w.index }
func (w *fakeWriter) DeleteByTerm(string, ...string) error { return nil }
func (w *fakeWriter) AddDocuments([]engine.Document) error { return nil }
func (w *fakeWriter) Commit() error                        { return nil }
func (w *fakeWriter) Close() error                         { w.closes++; return nil }

type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

type countingObserver struct {
	retries   int
	reclaimed int
}

func (c *countingObserver) LockRetried(string)        { c.retries++ }
func (c *countingObserver) StaleLockReclaimed(string) { c.reclaimed++ }

func writeMarker(t *testing.T, eng *fakeEngine, index string, modTime time.Time) string {
	t.Helper()
	path := eng.LockMarker(index)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
	return path
}

func lockedN(n int) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = engine.ErrLocked
	}
	return errs
}

func TestAcquireWriter_FirstAttemptSucceeds(t *testing.T) {
	eng := &fakeEngine{root: t.TempDir()}
	sleeper := &recordingSleep{}
	m := NewManager(eng, DefaultPolicy(), WithSleep(sleeper.sleep))

	w, err := m.AcquireWriter(context.Background(), "blog")

	require.NoError(t, err)
	assert.Equal(t, "blog", w.Index())
	assert.Equal(t, 1, eng.opens)
	assert.Empty(t, sleeper.delays)
}

func TestAcquireWriter_RetriesLockContention(t *testing.T) {
	// Given: the index is locked for the first two attempts
	eng := &fakeEngine{root: t.TempDir(), results: lockedN(2)}
	sleeper := &recordingSleep{}
	obs := &countingObserver{}
	m := NewManager(eng, DefaultPolicy(), WithSleep(sleeper.sleep), WithObserver(obs))

	// When: acquiring
	w, err := m.AcquireWriter(context.Background(), "blog")

	// Then: the third attempt wins after two fixed waits
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, 3, eng.opens)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, sleeper.delays)
	assert.Equal(t, 2, obs.retries)
}

func TestAcquireWriter_ExhaustedIsResourceUnavailable(t *testing.T) {
	// Given: the index stays locked
	eng := &fakeEngine{root: t.TempDir(), results: lockedN(10)}
	sleeper := &recordingSleep{}
	m := NewManager(eng, DefaultPolicy(), WithSleep(sleeper.sleep))

	// When: acquiring
	_, err := m.AcquireWriter(context.Background(), "blog")

	// Then: five attempts, four waits, ResourceUnavailable
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeResourceUnavailable, errors.GetCode(err))
	assert.ErrorIs(t, err, engine.ErrLocked)
	assert.Equal(t, 5, eng.opens)
	assert.Len(t, sleeper.delays, 4)
}

func TestAcquireWriter_IOErrorIsNotRetried(t *testing.T) {
	eng := &fakeEngine{root: t.TempDir(), results: []error{stderrors.New("disk gone")}}
	sleeper := &recordingSleep{}
	m := NewManager(eng, DefaultPolicy(), WithSleep(sleeper.sleep))

	_, err := m.AcquireWriter(context.Background(), "blog")

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeIndexIO, errors.GetCode(err))
	assert.Equal(t, 1, eng.opens)
	assert.Empty(t, sleeper.delays)
}

func TestAcquireWriter_InvalidName(t *testing.T) {
	eng := &fakeEngine{root: t.TempDir()}
	m := NewManager(eng, DefaultPolicy())

	_, err := m.AcquireWriter(context.Background(), "../etc")

	assert.Equal(t, errors.ErrCodeInvalidIndexName, errors.GetCode(err))
	assert.Zero(t, eng.opens)
}

func TestAcquireWriter_StaleMarkerIsReclaimed(t *testing.T) {
	// Given: a marker six minutes old
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	eng := &fakeEngine{root: t.TempDir()}
	path := writeMarker(t, eng, "blog", now.Add(-6*time.Minute))
	sleeper := &recordingSleep{}
	obs := &countingObserver{}
	m := NewManager(eng, DefaultPolicy(),
		WithClock(func() time.Time { return now }),
		WithSleep(sleeper.sleep),
		WithObserver(obs))

	// When: acquiring
	_, err := m.AcquireWriter(context.Background(), "blog")

	// Then: the marker is gone and no retry happened
	require.NoError(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
	assert.Equal(t, 1, eng.opens)
	assert.Empty(t, sleeper.delays)
	assert.Equal(t, 1, obs.reclaimed)
}

func TestAcquireWriter_FreshMarkerIsKept(t *testing.T) {
	// Given: a four minute old marker held by a live writer
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	eng := &fakeEngine{root: t.TempDir(), results: lockedN(10)}
	path := writeMarker(t, eng, "blog", now.Add(-4*time.Minute))
	sleeper := &recordingSleep{}
	m := NewManager(eng, DefaultPolicy(),
		WithClock(func() time.Time { return now }),
		WithSleep(sleeper.sleep))

	// When: acquiring
	_, err := m.AcquireWriter(context.Background(), "blog")

	// Then: the marker stays and the bounded schedule ran
	assert.Equal(t, errors.ErrCodeResourceUnavailable, errors.GetCode(err))
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
	assert.Len(t, sleeper.delays, 4)
}

func TestAcquireWriter_RemoveFailureIsNotFatal(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	eng := &fakeEngine{root: t.TempDir()}
	writeMarker(t, eng, "blog", now.Add(-time.Hour))
	m := NewManager(eng, DefaultPolicy(),
		WithClock(func() time.Time { return now }),
		WithRemove(func(string) error { return stderrors.New("permission denied") }))

	w, err := m.AcquireWriter(context.Background(), "blog")

	require.NoError(t, err)
	assert.NotNil(t, w)
}

func TestAcquireWriter_CancelledDuringBackoff(t *testing.T) {
	eng := &fakeEngine{root: t.TempDir(), results: lockedN(10)}
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(eng, DefaultPolicy(), WithSleep(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}))

	_, err := m.AcquireWriter(ctx, "blog")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, eng.opens)
}

func TestRelease_IsIdempotentAndNilSafe(t *testing.T) {
	m := NewManager(&fakeEngine{root: t.TempDir()}, DefaultPolicy())
	w := &fakeWriter{index: "blog"}

	m.Release(w)
	m.Release(w)
	m.Release(nil)

	assert.Equal(t, 2, w.closes)
}

func TestPolicy_Defaults(t *testing.T) {
	m := NewManager(&fakeEngine{}, Policy{})
	assert.Equal(t, DefaultPolicy(), m.Policy())
}
