package service

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ossamaweb/auto-vid/internal/apperr"
	"github.com/ossamaweb/auto-vid/internal/client"
	"github.com/ossamaweb/auto-vid/internal/config"
	"github.com/ossamaweb/auto-vid/internal/jobspec"
	"github.com/ossamaweb/auto-vid/internal/media"
	"github.com/ossamaweb/auto-vid/internal/mix"
)

// TimelineService compiles a job's timeline into an audio plan: it
// synthesizes speech, places every clip, sequences the background music and
// ducks it under foreground events.
type TimelineService struct {
	tts      client.SpeechSynthesizer
	prober   media.Prober
	defaults config.Defaults
	log      zerolog.Logger
}

func NewTimelineService(tts client.SpeechSynthesizer, prober media.Prober, defaults config.Defaults, log zerolog.Logger) *TimelineService {
	return &TimelineService{
		tts:      tts,
		prober:   prober,
		defaults: defaults,
		log:      log.With().Str("component", "timeline").Logger(),
	}
}

// Compile builds the mix for a video of videoDuration seconds. audio maps
// audio asset ids to fetched local files; speech files are written to
// workDir.
func (s *TimelineService) Compile(ctx context.Context, spec *jobspec.JobSpec, audio map[string]string, videoDuration float64, workDir string) (*mix.Mix, error) {
	m := &mix.Mix{Duration: videoDuration}
	var ducking []mix.DuckingRange

	for i, ev := range spec.Timeline {
		start := *ev.Start
		var (
			path       string
			volume     float64
			level      *float64
			fade       float64
			err        error
			outOfRange = start >= videoDuration
		)

		switch data := ev.Data().(type) {
		case *jobspec.TTSData:
			if outOfRange {
				break
			}
			path, err = s.synthesize(ctx, data, i, start, workDir)
			volume = valueOr(data.Volume, s.defaults.TTSVolume)
			level = data.DuckingLevel
			fade = valueOr(data.DuckingFadeDuration, s.defaults.DuckingFadeDuration)
		case *jobspec.AudioData:
			var ok bool
			if path, ok = audio[data.AssetID]; !ok {
				return nil, apperr.Errorf(apperr.KindValidation, "compile timeline", "timeline[%d]: audio asset %q was not fetched", i, data.AssetID)
			}
			volume = valueOr(data.Volume, s.defaults.AudioVolume)
			level = data.DuckingLevel
			fade = valueOr(data.DuckingFadeDuration, s.defaults.DuckingFadeDuration)
		default:
			return nil, apperr.Errorf(apperr.KindValidation, "compile timeline", "timeline[%d]: unsupported event type %q", i, ev.Type)
		}
		if err != nil {
			return nil, err
		}
		if outOfRange {
			s.log.Warn().Int("index", i).Float64("start", start).Float64("video_duration", videoDuration).
				Msg("event starts after the video ends, dropped")
			continue
		}

		duration, err := s.prober.Probe(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("timeline[%d]: %w", i, err)
		}
		if duration <= 0 {
			s.log.Warn().Int("index", i).Str("path", path).Msg("clip has no audio, dropped")
			continue
		}

		m.Clips = append(m.Clips, mix.Clip{
			Path:     path,
			Start:    start,
			Duration: math.Min(duration, videoDuration-start),
			Volume:   volume,
		})
		if level != nil {
			ducking = append(ducking, mix.DuckingRange{
				Start:        start,
				End:          start + duration,
				Level:        *level,
				FadeDuration: fade,
			})
		}
	}

	bed, err := s.backgroundMusic(ctx, spec.BackgroundMusic, audio, videoDuration)
	if err != nil {
		return nil, err
	}
	if bed != nil {
		bed.Ducking = mix.ClipRanges(mix.MergeDuckingRanges(ducking), videoDuration)
		m.Bed = bed
	}

	s.log.Debug().Int("clips", len(m.Clips)).Bool("music", m.Bed != nil).
		Int("ducking_ranges", len(ducking)).Msg("timeline compiled")
	return m, nil
}

func (s *TimelineService) synthesize(ctx context.Context, data *jobspec.TTSData, index int, start float64, workDir string) (string, error) {
	req := client.SpeechRequest{
		Text:     data.Text,
		VoiceID:  s.defaults.VoiceID,
		Engine:   s.defaults.Engine,
		TextType: s.defaults.TextType,
	}
	if pc := data.ProviderConfig; pc != nil {
		req.VoiceID = stringOr(pc.VoiceID, req.VoiceID)
		req.Engine = stringOr(pc.Engine, req.Engine)
		req.TextType = stringOr(pc.TextType, req.TextType)
		req.LanguageCode = pc.LanguageCode
	}

	body, err := s.tts.Synthesize(ctx, req)
	if err != nil {
		return "", fmt.Errorf("timeline[%d]: %w", index, err)
	}
	defer body.Close()

	path := filepath.Join(workDir, speechFilename(index, start))
	if err := streamError("synthesize speech", writeFile(path, body)); err != nil {
		return "", err
	}
	return path, nil
}

// speechFilename keys a synthesized clip by its timeline index and start so
// two events never share a file.
func speechFilename(index int, start float64) string {
	return fmt.Sprintf("tts_%d_%s.mp3", index, strconv.FormatFloat(start, 'f', -1, 64))
}

func (s *TimelineService) backgroundMusic(ctx context.Context, bg *jobspec.BackgroundMusic, audio map[string]string, target float64) (*mix.Bed, error) {
	if bg == nil || len(bg.Playlist) == 0 {
		return nil, nil
	}

	durations := make(map[string]float64)
	tracks := make([]mix.Track, 0, len(bg.Playlist))
	for _, id := range bg.Playlist {
		path, ok := audio[id]
		if !ok {
			s.log.Warn().Str("asset_id", id).Msg("playlist entry has no fetched asset, skipped")
			continue
		}
		d, seen := durations[path]
		if !seen {
			var err error
			if d, err = s.prober.Probe(ctx, path); err != nil {
				return nil, fmt.Errorf("background music %s: %w", id, err)
			}
			durations[path] = d
		}
		if d <= 0 {
			continue
		}
		tracks = append(tracks, mix.Track{Path: path, Duration: d})
	}

	loop := s.defaults.MusicLoop
	if bg.Loop != nil {
		loop = *bg.Loop
	}
	return mix.SequenceBackgroundMusic(tracks, mix.SequenceParams{
		Target:    target,
		Volume:    valueOr(bg.Volume, s.defaults.MusicVolume),
		Loop:      loop,
		Crossfade: valueOr(bg.CrossfadeDuration, s.defaults.CrossfadeDuration),
	}), nil
}

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func stringOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
