package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ossamaweb/auto-vid/internal/apperr"
	"github.com/ossamaweb/auto-vid/internal/config"
	"github.com/ossamaweb/auto-vid/internal/mix"
)

// Encoding carries the caller's encoder overrides. Empty values keep the
// encoder defaults.
type Encoding struct {
	Preset       string
	VideoBitrate string
	AudioBitrate string
	FPS          float64
}

type RenderRequest struct {
	VideoPath  string
	Mix        *mix.Mix
	OutputPath string
	Encoding   Encoding
}

// Prober reports the duration of a media file in seconds.
type Prober interface {
	Probe(ctx context.Context, path string) (float64, error)
}

// Renderer muxes a source video with a planned audio track.
type Renderer interface {
	Prober
	Render(ctx context.Context, req RenderRequest) error
}

// FFmpeg shells out to ffmpeg and ffprobe.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	sampleRate  int
	log         zerolog.Logger
}

func NewFFmpeg(cfg *config.MediaConfig, log zerolog.Logger) *FFmpeg {
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 44100
	}
	return &FFmpeg{
		ffmpegPath:  cfg.FFmpegPath,
		ffprobePath: cfg.FFprobePath,
		sampleRate:  rate,
		log:         log.With().Str("component", "ffmpeg").Logger(),
	}
}

func (f *FFmpeg) Probe(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=nokey=1:noprint_wrappers=1",
		path,
	}
	out, err := f.output(ctx, f.ffprobePath, args...)
	if err != nil {
		return 0, err
	}
	value := strings.TrimSpace(out)
	if value == "" || value == "N/A" {
		return 0, apperr.Errorf(apperr.KindValidation, "probe", "%s has no duration", path)
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, apperr.Validation("probe", fmt.Errorf("failed to parse duration %q: %w", value, err))
	}
	return parsed, nil
}

func (f *FFmpeg) Render(ctx context.Context, req RenderRequest) error {
	if req.Mix == nil {
		return apperr.Errorf(apperr.KindUnknown, "render", "no audio plan")
	}
	args := f.renderArgs(req)
	f.log.Debug().Strs("args", args).Msg("running ffmpeg")
	_, err := f.output(ctx, f.ffmpegPath, args...)
	return err
}

func (f *FFmpeg) renderArgs(req RenderRequest) []string {
	graph := BuildAudioGraph(req.Mix, 1, f.sampleRate)

	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", req.VideoPath}
	for _, in := range graph.Inputs {
		args = append(args, "-i", in)
	}
	args = append(args,
		"-filter_complex", graph.Filter,
		"-map", "0:v:0",
		"-map", "["+graph.Output+"]",
		"-c:v", "libx264",
	)
	enc := req.Encoding
	if enc.Preset != "" {
		args = append(args, "-preset", enc.Preset)
	}
	if enc.VideoBitrate != "" {
		args = append(args, "-b:v", enc.VideoBitrate)
	}
	if enc.FPS > 0 {
		args = append(args, "-r", sec(enc.FPS))
	}
	args = append(args, "-c:a", "aac")
	if enc.AudioBitrate != "" {
		args = append(args, "-b:a", enc.AudioBitrate)
	}
	args = append(args,
		"-t", sec(req.Mix.Duration),
		"-movflags", "+faststart",
		req.OutputPath,
	)
	return args
}

func (f *FFmpeg) output(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		wrapped := fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(stderr.String()))
		if ctx.Err() != nil {
			return "", apperr.Transient(name, wrapped)
		}
		return "", apperr.E(apperr.KindUnknown, name, wrapped)
	}
	return stdout.String(), nil
}
