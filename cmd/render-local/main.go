// Command render-local renders one job spec file on this machine and
// delivers the result to a local directory. No queue or job table is used.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ossamaweb/auto-vid/internal/client"
	"github.com/ossamaweb/auto-vid/internal/config"
	"github.com/ossamaweb/auto-vid/internal/jobspec"
	"github.com/ossamaweb/auto-vid/internal/logging"
	"github.com/ossamaweb/auto-vid/internal/media"
	"github.com/ossamaweb/auto-vid/internal/model"
	"github.com/ossamaweb/auto-vid/internal/service"
)

func main() {
	specPath := flag.String("spec", "", "path to a YAML or JSON job spec")
	outDir := flag.String("out", "./out", "directory the rendered video is written to")
	keep := flag.Bool("keep", false, "keep the work directory after rendering")
	flag.Parse()

	if *specPath == "" {
		fmt.Fprintln(os.Stderr, "usage: render-local -spec job.yaml [-out ./out]")
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	log := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	job, err := run(ctx, cfg, *specPath, *outDir, *keep, log)
	if job != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(job)
	}
	if err != nil {
		log.Error().Err(err).Msg("render failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, specPath, outDir string, keep bool, log zerolog.Logger) (*model.Job, error) {
	raw, err := readSpec(specPath)
	if err != nil {
		return nil, err
	}
	spec, err := jobspec.NewParser(cfg.Defaults).Parse(raw)
	if err != nil {
		return nil, err
	}

	absOut, err := filepath.Abs(outDir)
	if err != nil {
		return nil, err
	}
	spec.Output.Destination = absOut

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

	jobID := uuid.NewString()
	workDir := filepath.Join(cfg.Worker.WorkDir, jobID)
	if !keep {
		defer os.RemoveAll(workDir)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}

	jobLog := logging.ForJob(log, jobID)
	started := time.Now().UTC()
	job := &model.Job{
		JobID:       jobID,
		Status:      model.JobStatusProcessing,
		SubmittedAt: started,
		UpdatedAt:   started,
	}
	if spec.Metadata != nil {
		if info, err := json.Marshal(spec.Metadata); err == nil {
			job.JobInfo = info
		}
	}

	out, runErr := pipeline.Run(jobLog.WithContext(ctx), spec, workDir)

	now := time.Now().UTC()
	seconds := model.ProcessingSeconds(now.Sub(started))
	u := model.JobUpdate{
		UpdatedAt:      now,
		CompletedAt:    &now,
		ProcessingTime: &seconds,
	}
	if runErr != nil {
		msg := runErr.Error()
		u.Status = model.JobStatusFailed
		u.Error = &msg
	} else {
		u.Status = model.JobStatusCompleted
		u.Output = out
	}
	*job = job.Apply(u)
	return job, runErr
}

// readSpec loads a spec file as JSON. YAML files are decoded and re-encoded
// so the parser sees the same document either way.
func readSpec(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("invalid yaml in %s: %w", path, err)
		}
		return json.Marshal(doc)
	default:
		return raw, nil
	}
}
