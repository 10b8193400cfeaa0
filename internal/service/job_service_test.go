package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossamaweb/auto-vid/internal/apperr"
	"github.com/ossamaweb/auto-vid/internal/config"
	"github.com/ossamaweb/auto-vid/internal/jobspec"
	"github.com/ossamaweb/auto-vid/internal/jobstore"
	"github.com/ossamaweb/auto-vid/internal/model"
)

const submitSpec = `{
  "assets": {"video": {"id": "v", "source": "s3://media/in/v.mp4"}},
  "timeline": [{"start": 1, "type": "tts", "data": {"text": "hi"}}],
  "output": {"filename": "out"},
  "metadata": {"projectId": "p1", "title": "Demo"}
}`

// recordingStore remembers every id it created.
type recordingStore struct {
	*jobstore.MemoryStore
	created   []string
	updateErr error
}

func (s *recordingStore) Update(ctx context.Context, id string, u model.JobUpdate) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	return s.MemoryStore.Update(ctx, id, u)
}

func (s *recordingStore) Create(ctx context.Context, job *model.Job) error {
	s.created = append(s.created, job.JobID)
	return s.MemoryStore.Create(ctx, job)
}

func newTestJobs(q *fakeQueue) (*JobService, *recordingStore) {
	store := &recordingStore{MemoryStore: jobstore.NewMemoryStore()}
	svc := NewJobService(store, q, jobspec.NewParser(config.StandardDefaults()),
		config.QueueConfig{Name: "render", MaxRetry: 3}, 7*24*time.Hour, nopLogger())
	svc.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return svc, store
}

func TestSubmit(t *testing.T) {
	q := &fakeQueue{}
	svc, store := newTestJobs(q)

	resp, err := svc.Submit(context.Background(), &model.SubmitJobRequest{JobSpec: json.RawMessage(submitSpec)})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSubmitted, resp.Status)
	assert.NotEmpty(t, resp.JobID)

	job, err := store.Get(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSubmitted, job.Status)
	assert.Equal(t, time.Date(2026, 5, 8, 12, 0, 0, 0, time.UTC), job.TTL)
	assert.JSONEq(t, `{"projectId":"p1","title":"Demo"}`, string(job.JobInfo))
	assert.Nil(t, job.Output.URL)

	require.Len(t, q.tasks, 1)
	assert.Equal(t, TaskTypeRender, q.tasks[0].Type())
	var payload model.RenderTaskPayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &payload))
	assert.Equal(t, resp.JobID, payload.JobID)
	assert.JSONEq(t, submitSpec, string(payload.JobSpec))
}

func TestSubmit_CallerJobInfoWins(t *testing.T) {
	svc, store := newTestJobs(&fakeQueue{})
	resp, err := svc.Submit(context.Background(), &model.SubmitJobRequest{
		JobSpec: json.RawMessage(submitSpec),
		JobInfo: json.RawMessage(`{"user":"u-1"}`),
	})
	require.NoError(t, err)

	job, err := store.Get(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"user":"u-1"}`, string(job.JobInfo))
}

func TestSubmit_InvalidSpecCreatesNothing(t *testing.T) {
	q := &fakeQueue{}
	svc, _ := newTestJobs(q)

	_, err := svc.Submit(context.Background(), &model.SubmitJobRequest{JobSpec: json.RawMessage(`{"assets":{}}`)})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, ok := jobspec.IssuesOf(err)
	assert.True(t, ok)
	assert.Empty(t, q.tasks)
}

func TestSubmit_EnqueueFailureFailsJob(t *testing.T) {
	svc, store := newTestJobs(&fakeQueue{err: errors.New("redis down")})

	_, err := svc.Submit(context.Background(), &model.SubmitJobRequest{JobSpec: json.RawMessage(submitSpec)})
	require.Error(t, err)

	require.Len(t, store.created, 1)
	job, err := store.Get(context.Background(), store.created[0])
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.NotNil(t, job.CompletedAt)
}

func TestSubmit_EnqueueFailureRecordWriteIsLogged(t *testing.T) {
	svc, store := newTestJobs(&fakeQueue{err: errors.New("redis down")})
	store.updateErr = errors.New("table unavailable")
	var buf bytes.Buffer
	svc.log = zerolog.New(&buf)

	_, err := svc.Submit(context.Background(), &model.SubmitJobRequest{JobSpec: json.RawMessage(submitSpec)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")

	require.Len(t, store.created, 1)
	logged := buf.String()
	assert.Contains(t, logged, "failed to record enqueue failure")
	assert.Contains(t, logged, "table unavailable")
	assert.Contains(t, logged, store.created[0])
}

func TestTransitions(t *testing.T) {
	svc, store := newTestJobs(&fakeQueue{})
	ctx := context.Background()
	resp, err := svc.Submit(ctx, &model.SubmitJobRequest{JobSpec: json.RawMessage(submitSpec)})
	require.NoError(t, err)
	id := resp.JobID

	require.NoError(t, svc.MarkProcessing(ctx, id))
	require.NoError(t, svc.MarkRetrying(ctx, id, errors.New("fetch: connection reset")))
	job, _ := store.Get(ctx, id)
	assert.Equal(t, model.JobStatusRetrying, job.Status)
	assert.Equal(t, "fetch: connection reset", *job.Error)
	assert.Nil(t, job.CompletedAt)

	require.NoError(t, svc.MarkProcessing(ctx, id))
	url, uri, size, dur := "https://x/out.mp4", "s3://media/out.mp4", int64(42), 9.96
	_, err = svc.MarkCompleted(ctx, id, model.JobOutput{URL: &url, StorageURI: &uri, Size: &size, Duration: &dur}, 12346*time.Millisecond)
	require.NoError(t, err)

	job, _ = store.Get(ctx, id)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Nil(t, job.Error, "an earlier transient error leaves no trace")
	require.NotNil(t, job.CompletedAt)
	assert.Equal(t, 12.35, *job.ProcessingTime)
	assert.Equal(t, uri, *job.Output.StorageURI)

	_, err = svc.MarkFailed(ctx, "missing", errors.New("x"), time.Second)
	assert.ErrorIs(t, err, jobstore.ErrJobNotFound)
}
