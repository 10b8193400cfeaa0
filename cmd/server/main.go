package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ossamaweb/auto-vid/internal/client"
	"github.com/ossamaweb/auto-vid/internal/config"
	"github.com/ossamaweb/auto-vid/internal/handler"
	"github.com/ossamaweb/auto-vid/internal/jobspec"
	"github.com/ossamaweb/auto-vid/internal/jobstore"
	"github.com/ossamaweb/auto-vid/internal/logging"
	"github.com/ossamaweb/auto-vid/internal/media"
	"github.com/ossamaweb/auto-vid/internal/metrics"
	"github.com/ossamaweb/auto-vid/internal/middleware"
	"github.com/ossamaweb/auto-vid/internal/service"
	"github.com/ossamaweb/auto-vid/internal/worker"
	"github.com/ossamaweb/auto-vid/pkg/response"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := logging.New(cfg.Log)
	if !cfg.RunsAPI() && !cfg.RunsWorker() {
		log.Fatal().Str("mode", cfg.Server.Mode).Msg("server mode must be all, api or worker")
	}
	metrics.MustRegister()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis not available")
	}

	store, err := jobstore.Open(ctx, &cfg.JobStore, redisClient)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.JobStore.Driver).Msg("failed to open job store")
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	parser := jobspec.NewParser(cfg.Defaults)
	jobs := service.NewJobService(store, asynqClient, parser, cfg.Queue, cfg.JobStore.TTL, log)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.RunsAPI() {
		app := newApp(cfg, jobs, redisClient, log)
		g.Go(func() error {
			addr := ":" + cfg.Server.Port
			log.Info().Str("addr", addr).Str("mode", cfg.Server.Mode).Msg("server starting")
			return app.Listen(addr)
		})
		g.Go(func() error {
			<-ctx.Done()
			log.Info().Msg("shutting down server")
			return app.ShutdownWithTimeout(10 * time.Second)
		})
	}

	if cfg.RunsWorker() {
		renderWorker, err := newRenderWorker(ctx, cfg, jobs, parser, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build render worker")
		}
		g.Go(func() error {
			return runWorkerServer(ctx, cfg, redisOpt, renderWorker, log)
		})

		var purger jobstore.Purger
		if p, ok := store.(jobstore.Purger); ok {
			purger = p
		}
		janitor := worker.NewJanitor(cfg.Worker.WorkDir, cfg.Worker.StaleAfter, purger, log)
		g.Go(func() error {
			return runJanitor(ctx, janitor, cfg.Worker.JanitorSchedule, log)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

func newApp(cfg *config.Config, jobs *service.JobService, redisClient *redis.Client, log zerolog.Logger) *fiber.App {
	jobHandler := handler.NewJobHandler(jobs, log)
	rateLimiter := middleware.NewRateLimiter(redisClient, log)

	app := fiber.New(fiber.Config{
		ErrorHandler:          response.ErrorHandler,
		BodyLimit:             10 * 1024 * 1024,
		DisableStartupMessage: cfg.Server.Env == "production",
	})

	app.Use(recover.New())
	app.Use(middleware.RequestLogger(log))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	api.Post("/jobs", rateLimiter.SubmitLimit(cfg.RateLimit.SubmitPerMin), jobHandler.Submit)
	api.Get("/jobs/:jobId", jobHandler.Status)

	return app
}

func newRenderWorker(ctx context.Context, cfg *config.Config, jobs *service.JobService, parser *jobspec.Parser, log zerolog.Logger) (*worker.RenderWorker, error) {
	objects, err := client.NewS3Client(ctx, &cfg.Storage)
	if err != nil {
		return nil, err
	}
	tts, err := client.NewPollyClient(ctx, &cfg.Polly, &cfg.Storage)
	if err != nil {
		return nil, err
	}
	ffmpeg := media.NewFFmpeg(&cfg.Media, log)

	pipeline := service.NewRenderService(
		service.NewAssetService(objects, cfg.Fetch, log),
		service.NewTimelineService(tts, ffmpeg, cfg.Defaults, log),
		ffmpeg,
		service.NewUploadService(objects, &cfg.Storage, log),
		log,
	)
	notifier := service.NewNotificationService(cfg.Webhook, log)

	return worker.NewRenderWorker(jobs, parser, pipeline, notifier, cfg.Worker.WorkDir, log), nil
}

func runWorkerServer(ctx context.Context, cfg *config.Config, redisOpt asynq.RedisClientOpt, w *worker.RenderWorker, log zerolog.Logger) error {
	concurrency := cfg.Worker.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{cfg.Queue.Name: 1},
		Logger:      logging.NewAsynqLogger(log),
		LogLevel:    logging.AsynqLevel(cfg.Log.Level),
		BaseContext: func() context.Context { return log.WithContext(context.Background()) },
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeRender, w.ProcessTask)

	if err := srv.Start(mux); err != nil {
		return err
	}
	log.Info().Str("queue", cfg.Queue.Name).Int("concurrency", concurrency).Msg("worker started")

	<-ctx.Done()
	srv.Shutdown()
	log.Info().Msg("worker stopped")
	return nil
}

func runJanitor(ctx context.Context, janitor *worker.Janitor, schedule string, log zerolog.Logger) error {
	c := cron.New()
	if err := janitor.Schedule(ctx, c, schedule); err != nil {
		return err
	}
	c.Start()
	log.Info().Str("schedule", schedule).Msg("janitor scheduled")

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
