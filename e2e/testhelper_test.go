package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ossamaweb/auto-vid/internal/config"
	"github.com/ossamaweb/auto-vid/internal/handler"
	"github.com/ossamaweb/auto-vid/internal/jobspec"
	"github.com/ossamaweb/auto-vid/internal/jobstore"
	"github.com/ossamaweb/auto-vid/internal/media"
	"github.com/ossamaweb/auto-vid/internal/middleware"
	"github.com/ossamaweb/auto-vid/internal/model"
	"github.com/ossamaweb/auto-vid/internal/service"
	"github.com/ossamaweb/auto-vid/internal/worker"
	"github.com/ossamaweb/auto-vid/pkg/response"
)

// captureQueue holds enqueued tasks so a test can hand them to the worker.
type captureQueue struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (q *captureQueue) EnqueueContext(_ context.Context, t *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
	return &asynq.TaskInfo{Type: t.Type()}, nil
}

func (q *captureQueue) take(t *testing.T) *asynq.Task {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	require.NotEmpty(t, q.tasks, "nothing was enqueued")
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	return task
}

// fakeMedia stands in for ffmpeg: durations are keyed by file basename.
type fakeMedia struct {
	durations map[string]float64
}

func (m fakeMedia) Probe(_ context.Context, path string) (float64, error) {
	if d, ok := m.durations[filepath.Base(path)]; ok {
		return d, nil
	}
	return 0, os.ErrNotExist
}

func (m fakeMedia) Render(_ context.Context, req media.RenderRequest) error {
	return os.WriteFile(req.OutputPath, []byte("rendered-video"), 0o644)
}

// hookRecorder is a webhook receiver.
type hookRecorder struct {
	mu       sync.Mutex
	payloads []model.WebhookPayload
	headers  []http.Header
}

func (h *hookRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var p model.WebhookPayload
	_ = json.NewDecoder(r.Body).Decode(&p)
	h.mu.Lock()
	h.payloads = append(h.payloads, p)
	h.headers = append(h.headers, r.Header.Clone())
	h.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (h *hookRecorder) received() []model.WebhookPayload {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.WebhookPayload(nil), h.payloads...)
}

// testApp wires the API and the worker the way cmd/server does, with
// in-process fakes for the queue, ffmpeg and the job table.
type testApp struct {
	app     *fiber.App
	queue   *captureQueue
	worker  *worker.RenderWorker
	hooks   *hookRecorder
	hookURL string
	assets  string
	outDir  string
}

func setupApp(t *testing.T) *testApp {
	t.Helper()
	log := zerolog.Nop()

	// The limiter fails open when Redis is unreachable.
	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	t.Cleanup(func() { redisClient.Close() })

	defaults := config.StandardDefaults()
	parser := jobspec.NewParser(defaults)
	store := jobstore.NewMemoryStore()
	queue := &captureQueue{}
	jobs := service.NewJobService(store, queue, parser, config.QueueConfig{Name: "render", MaxRetry: 3}, time.Hour, log)

	fm := fakeMedia{durations: map[string]float64{
		"video.mp4": 8,
		"intro.mp3": 3,
		"final.mp4": 8,
	}}
	pipeline := service.NewRenderService(
		service.NewAssetService(nil, config.RetryConfig{Attempts: 2, BaseDelay: time.Millisecond}, log),
		service.NewTimelineService(nil, fm, defaults, log),
		fm,
		service.NewUploadService(nil, &config.StorageConfig{}, log),
		log,
	)
	notifier := service.NewNotificationService(config.WebhookConfig{
		RetryConfig: config.RetryConfig{Attempts: 2, BaseDelay: time.Millisecond, Timeout: 5 * time.Second},
	}, log)

	hooks := &hookRecorder{}
	hookSrv := httptest.NewServer(hooks)
	t.Cleanup(hookSrv.Close)

	jobHandler := handler.NewJobHandler(jobs, log)
	rateLimiter := middleware.NewRateLimiter(redisClient, log)

	app := fiber.New(fiber.Config{ErrorHandler: response.ErrorHandler})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	api := app.Group("/api")
	api.Post("/jobs", rateLimiter.SubmitLimit(10000), jobHandler.Submit)
	api.Get("/jobs/:jobId", jobHandler.Status)

	assets := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(assets, "video.mp4"), []byte("video"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(assets, "intro.mp3"), []byte("audio"), 0o644))

	return &testApp{
		app:     app,
		queue:   queue,
		worker:  worker.NewRenderWorker(jobs, parser, pipeline, notifier, t.TempDir(), log),
		hooks:   hooks,
		hookURL: hookSrv.URL + "/hooks/render",
		assets:  assets,
		outDir:  t.TempDir(),
	}
}

// doRequest performs a request against the test app.
func doRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, path, bodyReader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

// parseJSON decodes the response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var result map[string]any
	require.NoError(t, json.Unmarshal(b, &result), "body: %s", b)
	return result
}
