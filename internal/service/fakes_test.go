package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ossamaweb/auto-vid/internal/apperr"
	"github.com/ossamaweb/auto-vid/internal/client"
	"github.com/ossamaweb/auto-vid/internal/config"
	"github.com/ossamaweb/auto-vid/internal/jobspec"
	"github.com/ossamaweb/auto-vid/internal/media"
)

func noWait(int) time.Duration { return 0 }

func parseSpec(t *testing.T, raw string) *jobspec.JobSpec {
	t.Helper()
	spec, err := jobspec.NewParser(config.StandardDefaults()).Parse([]byte(raw))
	require.NoError(t, err)
	return spec
}

// memObjects is an in-memory object store keyed by s3 URI.
type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	getErrs []error // returned in order before objects are served
	// dropAfter bodies deliver a partial read then fail with the error, in
	// order, before whole objects are served.
	dropAfter []error
	putErr    error
}

// droppedBody yields some bytes and then a transport error.
type droppedBody struct {
	sent bool
	err  error
}

func (b *droppedBody) Read(p []byte) (int, error) {
	if !b.sent {
		b.sent = true
		return copy(p, "partial"), nil
	}
	return 0, b.err
}

func (b *droppedBody) Close() error { return nil }

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (m *memObjects) Get(_ context.Context, uri string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.getErrs) > 0 {
		err := m.getErrs[0]
		m.getErrs = m.getErrs[1:]
		return nil, err
	}
	data, ok := m.objects[uri]
	if ok && len(m.dropAfter) > 0 {
		err := m.dropAfter[0]
		m.dropAfter = m.dropAfter[1:]
		return &droppedBody{err: err}, nil
	}
	if !ok {
		return nil, apperr.Errorf(apperr.KindNotFound, "s3 get", "%s not found", uri)
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (m *memObjects) PutFile(_ context.Context, path, uri, _ string) (string, error) {
	if m.putErr != nil {
		return "", m.putErr
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[uri] = data
	return uri, nil
}

func (m *memObjects) Presign(_ context.Context, uri string, ttl time.Duration) (string, error) {
	return "https://signed.example.com/" + strings.TrimPrefix(uri, "s3://") + "?ttl=" + ttl.String(), nil
}

var _ client.ObjectStore = (*memObjects)(nil)

// fakeTTS records requests and returns fixed bytes.
type fakeTTS struct {
	mu   sync.Mutex
	reqs []client.SpeechRequest
	err  error
}

func (f *fakeTTS) Synthesize(_ context.Context, req client.SpeechRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader("ID3-speech")), nil
}

// fakeMedia answers probes by file base name and "renders" by writing a
// placeholder file.
type fakeMedia struct {
	mu        sync.Mutex
	durations map[string]float64
	rendered  []media.RenderRequest
	renderErr error
}

func (f *fakeMedia) Probe(_ context.Context, path string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	base := filepath.Base(path)
	if d, ok := f.durations[base]; ok {
		return d, nil
	}
	if strings.HasPrefix(base, "tts_") {
		return f.durations["tts"], nil
	}
	return 0, errors.New("unknown media " + base)
}

func (f *fakeMedia) Render(_ context.Context, req media.RenderRequest) error {
	f.mu.Lock()
	f.rendered = append(f.rendered, req)
	f.mu.Unlock()
	if f.renderErr != nil {
		return f.renderErr
	}
	return os.WriteFile(req.OutputPath, []byte("rendered-video"), 0o644)
}

// fakeQueue captures enqueued tasks.
type fakeQueue struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	q.opts = append(q.opts, opts)
	return &asynq.TaskInfo{ID: "task", Queue: "render"}, nil
}

func nopLogger() zerolog.Logger { return zerolog.Nop() }
