package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ossamaweb/auto-vid/internal/jobspec"
	"github.com/ossamaweb/auto-vid/internal/media"
	"github.com/ossamaweb/auto-vid/internal/metrics"
	"github.com/ossamaweb/auto-vid/internal/model"
)

// RenderService runs one job end to end inside a work directory: fetch,
// compile, encode and deliver. It does not touch the job record.
type RenderService struct {
	assets   AssetFetcher
	timeline *TimelineService
	renderer media.Renderer
	uploader Uploader
	log      zerolog.Logger
}

func NewRenderService(assets AssetFetcher, timeline *TimelineService, renderer media.Renderer, uploader Uploader, log zerolog.Logger) *RenderService {
	return &RenderService{
		assets:   assets,
		timeline: timeline,
		renderer: renderer,
		uploader: uploader,
		log:      log,
	}
}

// Run produces and delivers the video described by spec. Errors keep the
// classification given at the collaborator that raised them.
func (s *RenderService) Run(ctx context.Context, spec *jobspec.JobSpec, workDir string) (*model.JobOutput, error) {
	log := zerolog.Ctx(ctx)
	if log.GetLevel() == zerolog.Disabled {
		log = &s.log
	}

	// Audio first: it is cheaper to fail on a missing clip than after
	// pulling a large video.
	audio := make(map[string]string, len(spec.Assets.Audio))
	for i, a := range spec.Assets.Audio {
		dir := filepath.Join(workDir, "assets", "audio", strconv.Itoa(i))
		path, err := s.assets.Fetch(ctx, a.Source, dir)
		if err != nil {
			return nil, fmt.Errorf("audio asset %s: %w", a.ID, err)
		}
		audio[a.ID] = path
	}
	video, err := s.assets.Fetch(ctx, spec.Assets.Video.Source, filepath.Join(workDir, "assets", "video"))
	if err != nil {
		return nil, fmt.Errorf("video asset %s: %w", spec.Assets.Video.ID, err)
	}
	log.Info().Int("audio_assets", len(audio)).Msg("assets fetched")

	videoDuration, err := s.renderer.Probe(ctx, video)
	if err != nil {
		return nil, fmt.Errorf("video asset %s: %w", spec.Assets.Video.ID, err)
	}

	started := time.Now()
	plan, err := s.timeline.Compile(ctx, spec, audio, videoDuration, filepath.Join(workDir, "tts"))
	if err != nil {
		return nil, err
	}

	outPath := filepath.Join(workDir, "output", OutputFilename(spec.Output.Filename))
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := s.renderer.Render(ctx, media.RenderRequest{
		VideoPath:  video,
		Mix:        plan,
		OutputPath: outPath,
		Encoding:   encodingOf(spec.Output.Encoding),
	}); err != nil {
		return nil, err
	}
	metrics.ObserveRender(time.Since(started))
	log.Info().Float64("duration", videoDuration).Msg("video rendered")

	outDuration, err := s.renderer.Probe(ctx, outPath)
	if err != nil {
		return nil, err
	}

	d, err := s.uploader.Deliver(ctx, outPath, spec.Output.Destination, spec.Output.Filename)
	if err != nil {
		return nil, err
	}

	out := model.JobOutput{
		StorageURI:   &d.StorageURI,
		URLExpiresAt: d.ExpiresAt,
		Duration:     &outDuration,
		Size:         &d.Size,
	}
	if d.URL != "" {
		out.URL = &d.URL
	}
	return &out, nil
}

func encodingOf(e *jobspec.Encoding) media.Encoding {
	if e == nil {
		return media.Encoding{}
	}
	enc := media.Encoding{
		Preset:       e.Preset,
		VideoBitrate: e.Bitrate,
		AudioBitrate: e.AudioBitrate,
	}
	if e.FPS != nil {
		enc.FPS = *e.FPS
	}
	return enc
}
