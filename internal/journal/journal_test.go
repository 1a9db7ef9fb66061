package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchgate/internal/ingest"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "state", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndRecent(t *testing.T) {
	// Given: two recorded batches
	j := openTestJournal(t)
	ctx := context.Background()
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, j.Record(ctx, ingest.Report{
		BatchID:   "b1",
		StartedAt: started,
		Indexes: []ingest.IndexOutcome{
			{Index: "blog", Items: 2, Added: 3, Deleted: 1, Status: ingest.StatusCommitted},
			{Index: "news", Items: 1, Status: ingest.StatusFailed, Stage: ingest.StageAcquire, Error: "locked"},
		},
	}))
	require.NoError(t, j.Record(ctx, ingest.Report{
		BatchID:   "b2",
		StartedAt: started.Add(time.Minute),
		Indexes:   []ingest.IndexOutcome{{Index: "blog", Items: 1, Malformed: 2, Status: ingest.StatusCommitted}},
	}))

	// When: reading back
	all, err := j.Recent(ctx, "", 10)
	require.NoError(t, err)

	// Then: newest first with every column preserved
	require.Len(t, all, 3)
	assert.Equal(t, "b2", all[0].BatchID)
	assert.Equal(t, 2, all[0].Malformed)
	assert.Equal(t, "news", all[1].Index)
	assert.Equal(t, "failed", all[1].Status)
	assert.Equal(t, "acquire", all[1].Stage)
	assert.Equal(t, "locked", all[1].Error)
	assert.True(t, all[2].CreatedAt.Equal(started))

	blog, err := j.Recent(ctx, "blog", 1)
	require.NoError(t, err)
	require.Len(t, blog, 1)
	assert.Equal(t, "b2", blog[0].BatchID)
}

func TestRecord_EmptyReport(t *testing.T) {
	j := openTestJournal(t)
	require.NoError(t, j.Record(context.Background(), ingest.Report{BatchID: "empty"}))

	all, err := j.Recent(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(context.Background(), ingest.Report{
		BatchID: "b1", Indexes: []ingest.IndexOutcome{{Index: "blog", Status: ingest.StatusCommitted}},
	}))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = j.Close() }()
	all, err := j.Recent(context.Background(), "", 5)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
