package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchgate/internal/batch"
	"github.com/Aman-CERP/searchgate/internal/engine"
	"github.com/Aman-CERP/searchgate/internal/errors"
	"github.com/Aman-CERP/searchgate/internal/resource"
)

// End to end against a real bleve engine and resource manager.

func newRealStack(t *testing.T) (*engine.Bleve, *Orchestrator) {
	t.Helper()
	eng, err := engine.NewBleve(engine.Options{Root: t.TempDir(), IdentityField: "uuid", DefaultField: "content"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	mgr := resource.NewManager(eng, resource.DefaultPolicy(),
		resource.WithSleep(func(context.Context, time.Duration) error { return nil }))
	return eng, NewOrchestrator(mgr, eng, batch.NewPartitioner("uuid", "deleted"))
}

func searchAll(t *testing.T, eng *engine.Bleve, index, text string) engine.Hits {
	t.Helper()
	q, err := eng.ParseQuery(text, "content")
	require.NoError(t, err)
	r, err := eng.OpenReader(context.Background(), index)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	hits, err := r.Search(context.Background(), q, 10)
	require.NoError(t, err)
	return hits
}

func TestScenario_AddThenDelete(t *testing.T) {
	eng, o := newRealStack(t)
	ctx := context.Background()

	// Given: one added document
	report := o.Apply(ctx, []batch.WriteBatchItem{{
		IndexName: "blog",
		Documents: []batch.RawDocument{{"uuid": "u1", "title": "Hello"}},
	}})
	require.Zero(t, report.Failed())

	hits := searchAll(t, eng, "blog", "title:Hello")
	require.Len(t, hits.Entries, 1)
	assert.Equal(t, map[string]string{"uuid": "u1", "title": "Hello"}, hits.Entries[0].Fields)
	assert.Equal(t, uint64(1), hits.Total)

	// When: a deletion for the same identity arrives
	report = o.Apply(ctx, []batch.WriteBatchItem{{
		IndexName: "blog",
		Documents: []batch.RawDocument{{"deleted": true, "uuid": "u1"}},
	}})
	require.Zero(t, report.Failed())

	// Then: it is gone
	hits = searchAll(t, eng, "blog", "title:Hello")
	assert.Empty(t, hits.Entries)
	assert.Equal(t, uint64(0), hits.Total)
}

func TestScenario_UpsertInOneBatch(t *testing.T) {
	eng, o := newRealStack(t)

	o.Apply(context.Background(), []batch.WriteBatchItem{
		{IndexName: "blog", Documents: []batch.RawDocument{{"uuid": "u1", "title": "first"}}},
	})
	o.Apply(context.Background(), []batch.WriteBatchItem{
		{IndexName: "blog", Documents: []batch.RawDocument{
			{"uuid": "u1", "title": "second"},
			{"deleted": true, "uuid": "u1"},
		}},
	})

	hits := searchAll(t, eng, "blog", "uuid:u1")
	require.Len(t, hits.Entries, 1)
	assert.Equal(t, "second", hits.Entries[0].Fields["title"])
}

func TestScenario_MalformedFieldDropped(t *testing.T) {
	eng, o := newRealStack(t)

	report := o.Apply(context.Background(), []batch.WriteBatchItem{{
		IndexName: "blog",
		Documents: []batch.RawDocument{{"uuid": "u2", "title": "Partial", "slug": nil}},
	}})

	out, _ := report.Outcome("blog")
	assert.Equal(t, 1, out.Malformed)
	hits := searchAll(t, eng, "blog", "title:Partial")
	require.Len(t, hits.Entries, 1)
	assert.Equal(t, map[string]string{"uuid": "u2", "title": "Partial"}, hits.Entries[0].Fields)
}

func TestScenario_LockedIndexDoesNotBlockOthers(t *testing.T) {
	// Given: a live writer elsewhere holds "news"
	eng, o := newRealStack(t)
	holder := engine.NewFileLock(eng.LockMarker("news"))
	ok, err := holder.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer func() { _ = holder.Unlock() }()

	// When: a batch spans three indexes
	report := o.Apply(context.Background(), []batch.WriteBatchItem{
		{IndexName: "blog", Documents: []batch.RawDocument{{"uuid": "a", "title": "alpha"}}},
		{IndexName: "news", Documents: []batch.RawDocument{{"uuid": "b", "title": "beta"}}},
		{IndexName: "docs", Documents: []batch.RawDocument{{"uuid": "c", "title": "gamma"}}},
	})

	// Then: the locked index fails alone
	assert.Equal(t, 1, report.Failed())
	out, _ := report.Outcome("news")
	assert.Equal(t, StageAcquire, out.Stage)
	assert.Len(t, searchAll(t, eng, "blog", "title:alpha").Entries, 1)
	assert.Len(t, searchAll(t, eng, "docs", "title:gamma").Entries, 1)
}

func TestScenario_Drop(t *testing.T) {
	eng, o := newRealStack(t)
	o.Apply(context.Background(), []batch.WriteBatchItem{
		{IndexName: "blog", Documents: []batch.RawDocument{{"uuid": "a"}}},
	})

	require.NoError(t, o.Drop(context.Background(), "blog"))

	_, err := eng.OpenReader(context.Background(), "blog")
	assert.ErrorIs(t, err, engine.ErrIndexNotFound)
}

func TestScenario_DropNeverWrittenIndex(t *testing.T) {
	// Given: an empty root
	eng, o := newRealStack(t)

	// When: dropping an index that was never written
	err := o.Drop(context.Background(), "never-written")

	// Then: it is not found and nothing is left on disk
	assert.Equal(t, errors.ErrCodeIndexNotFound, errors.GetCode(err))
	_, statErr := os.Stat(filepath.Join(eng.Root(), "never-written"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestScenario_ClientGoneDuringLockBackoff(t *testing.T) {
	// Given: index "a" held by another writer, and a caller that disconnects
	// while the first acquisition is backing off
	eng, err := engine.NewBleve(engine.Options{Root: t.TempDir(), IdentityField: "uuid", DefaultField: "content"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	held := engine.NewFileLock(eng.LockMarker("a"))
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	t.Cleanup(func() { _ = held.Unlock() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr := resource.NewManager(eng, resource.DefaultPolicy(),
		resource.WithSleep(func(context.Context, time.Duration) error {
			cancel()
			return nil
		}))
	o := NewOrchestrator(mgr, eng, batch.NewPartitioner("uuid", "deleted"))

	// When: applying a batch for "a" and "b"
	report := o.Apply(ctx, []batch.WriteBatchItem{
		{IndexName: "a", Documents: []batch.RawDocument{{"uuid": "x"}}},
		{IndexName: "b", Documents: []batch.RawDocument{{"uuid": "y", "title": "kept"}}},
	})

	// Then: only "a" fails, on the lock, and "b" is committed
	outA, _ := report.Outcome("a")
	assert.Equal(t, StatusFailed, outA.Status)
	assert.Equal(t, errors.ErrCodeResourceUnavailable, outA.Code)
	outB, _ := report.Outcome("b")
	assert.Equal(t, StatusCommitted, outB.Status)
	assert.Len(t, searchAll(t, eng, "b", "title:kept").Entries, 1)
}
