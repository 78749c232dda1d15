package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, job *Job, want JobStatus) JobSnapshot {
	t.Helper()
	var snap JobSnapshot
	require.Eventually(t, func() bool {
		snap = job.Snapshot()
		return snap.Status == want
	}, 5*time.Second, 10*time.Millisecond, "job never reached %s", want)
	return snap
}

func TestOrchestrator_ProcessesUpload(t *testing.T) {
	s := newStack(t)
	o, err := NewOrchestrator(s.ingester, testLogger(), 2, 10, time.Hour)
	require.NoError(t, err)
	o.Start(context.Background())
	defer o.Stop()

	job, err := o.SubmitFile("notes.txt", []byte(notes), "", "")
	require.NoError(t, err)
	assert.Equal(t, DocumentID("notes.txt"), job.DocID)

	snap := waitFor(t, job, StatusCompleted)
	assert.Equal(t, "done", snap.Phase)
	assert.Positive(t, snap.Progress.RecordsStored)
	assert.Equal(t, snap.Progress.TotalChunks, snap.Progress.RecordsStored)
	assert.Empty(t, snap.Progress.Errors)
	assert.Nil(t, job.FileData())
	assert.Same(t, job, o.GetJob(job.ID))
}

func TestOrchestrator_FailedJobRecordsError(t *testing.T) {
	s := newStack(t)
	o, err := NewOrchestrator(s.ingester, testLogger(), 1, 10, time.Hour)
	require.NoError(t, err)
	o.Start(context.Background())
	defer o.Stop()

	job, err := o.SubmitFile("photo.png", []byte("not a document"), "", "")
	require.NoError(t, err)

	snap := waitFor(t, job, StatusFailed)
	assert.Equal(t, string(StatusParsing), snap.Phase)
	require.Len(t, snap.Progress.Errors, 1)
	assert.Contains(t, snap.Progress.Errors[0], "parse_error")
}

func TestOrchestrator_SourceJob(t *testing.T) {
	s := newStack(t)
	path := writeFile(t, t.TempDir(), "guide.md", "# Guide\n\nStep one is to read.")
	o, err := NewOrchestrator(s.ingester, testLogger(), 1, 10, time.Hour)
	require.NoError(t, err)
	o.Start(context.Background())
	defer o.Stop()

	job, err := o.SubmitSource(path, "")
	require.NoError(t, err)
	snap := waitFor(t, job, StatusCompleted)
	assert.Equal(t, "guide.md", snap.Filename)
	assert.Equal(t, DocumentID(path), snap.DocID)
	assert.Equal(t, path, snap.Source)
}

func TestOrchestrator_QueueFull(t *testing.T) {
	s := newStack(t)
	// Not started, so nothing drains the queue.
	o, err := NewOrchestrator(s.ingester, testLogger(), 1, 1, time.Hour)
	require.NoError(t, err)

	_, err = o.SubmitFile("a.txt", []byte("one"), "", "")
	require.NoError(t, err)
	job, err := o.SubmitFile("b.txt", []byte("two"), "", "")
	require.Error(t, err)

	snap := job.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "queue_full", snap.Phase)
	assert.Equal(t, 1, o.QueueDepth())
}

func TestOrchestrator_SubmitAfterStop(t *testing.T) {
	s := newStack(t)
	o, err := NewOrchestrator(s.ingester, testLogger(), 1, 4, time.Hour)
	require.NoError(t, err)
	o.Start(context.Background())
	o.Stop()
	o.Stop()

	_, err = o.SubmitFile("a.txt", []byte("one"), "", "")
	assert.Error(t, err)
}

func TestOrchestrator_StopFailsQueuedJobs(t *testing.T) {
	s := newStack(t)
	// Not started, so every job is still buffered at Stop.
	o, err := NewOrchestrator(s.ingester, testLogger(), 1, 4, time.Hour)
	require.NoError(t, err)

	a, err := o.SubmitFile("a.txt", []byte("one"), "", "")
	require.NoError(t, err)
	b, err := o.SubmitSource("/tmp/b.txt", "")
	require.NoError(t, err)
	o.Stop()

	for _, job := range []*Job{a, b} {
		snap := job.Snapshot()
		assert.Equal(t, StatusFailed, snap.Status)
		assert.Equal(t, "shutdown", snap.Phase)
		assert.Len(t, snap.Progress.Errors, 1)
	}
	assert.Zero(t, o.QueueDepth())
}

func TestOrchestrator_SourceJobTimeoutCoversFetch(t *testing.T) {
	s := newStack(t)
	s.ingester.Timeout = 100 * time.Millisecond
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(2 * time.Second):
		}
		w.Write([]byte(notes))
	}))
	defer srv.Close()

	o, err := NewOrchestrator(s.ingester, testLogger(), 1, 4, time.Hour)
	require.NoError(t, err)
	o.Start(context.Background())
	defer o.Stop()

	job, err := o.SubmitSource(srv.URL+"/notes.txt", "")
	require.NoError(t, err)
	snap := waitFor(t, job, StatusFailed)
	assert.Equal(t, string(StatusParsing), snap.Phase)
	require.Len(t, snap.Progress.Errors, 1)
	assert.Contains(t, snap.Progress.Errors[0], "deadline exceeded")

	n, err := s.store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewOrchestrator_Validation(t *testing.T) {
	s := newStack(t)
	_, err := NewOrchestrator(nil, testLogger(), 1, 1, time.Hour)
	assert.Error(t, err)
	_, err = NewOrchestrator(s.ingester, testLogger(), 0, 1, time.Hour)
	assert.Error(t, err)
}
