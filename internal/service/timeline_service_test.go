package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossamaweb/auto-vid/internal/apperr"
	"github.com/ossamaweb/auto-vid/internal/client"
	"github.com/ossamaweb/auto-vid/internal/config"
	"github.com/ossamaweb/auto-vid/internal/mix"
)

const duckingSpec = `{
  "assets": {
    "video": {"id": "main", "source": "/in/video.mp4"},
    "audio": [
      {"id": "music1", "source": "/in/m1.mp3"},
      {"id": "whoosh", "source": "/in/whoosh.wav"}
    ]
  },
  "backgroundMusic": {"playlist": ["music1"]},
  "timeline": [
    {"start": 0, "type": "tts", "data": {"text": "Hello", "duckingLevel": 0.2}},
    {"start": 3, "type": "audio", "data": {"assetId": "whoosh", "volume": 0.8, "duckingLevel": 0.4, "duckingFadeDuration": 0.5}}
  ],
  "output": {"filename": "result"}
}`

var duckingAudio = map[string]string{
	"music1": "/work/assets/audio/0/m1.mp3",
	"whoosh": "/work/assets/audio/1/whoosh.wav",
}

func newTestTimeline(tts client.SpeechSynthesizer) (*TimelineService, *fakeMedia) {
	fm := &fakeMedia{durations: map[string]float64{"tts": 5, "whoosh.wav": 5, "m1.mp3": 4}}
	return NewTimelineService(tts, fm, config.StandardDefaults(), nopLogger()), fm
}

func TestCompile_OverlappingDuckingMergesUnderMusic(t *testing.T) {
	tts := &fakeTTS{}
	svc, _ := newTestTimeline(tts)
	workDir := t.TempDir()

	m, err := svc.Compile(context.Background(), parseSpec(t, duckingSpec), duckingAudio, 10, workDir)
	require.NoError(t, err)

	assert.Equal(t, 10.0, m.Duration)
	assert.Equal(t, []mix.Clip{
		{Path: filepath.Join(workDir, "tts_0_0.mp3"), Start: 0, Duration: 5, Volume: 1.0},
		{Path: duckingAudio["whoosh"], Start: 3, Duration: 5, Volume: 0.8},
	}, m.Clips)

	require.NotNil(t, m.Bed)
	assert.Equal(t, 10.0, m.Bed.Duration)
	assert.Equal(t, 0.3, m.Bed.Volume)
	assert.Equal(t, []mix.DuckingRange{{Start: 0, End: 8, Level: 0.2, FadeDuration: 0.5}}, m.Bed.Ducking)

	require.Len(t, tts.reqs, 1)
	assert.Equal(t, client.SpeechRequest{Text: "Hello", VoiceID: "Joanna", Engine: "neural", TextType: "text"}, tts.reqs[0])
}

func TestCompile_BoundsEverythingToVideo(t *testing.T) {
	svc, _ := newTestTimeline(&fakeTTS{})

	m, err := svc.Compile(context.Background(), parseSpec(t, duckingSpec), duckingAudio, 2, t.TempDir())
	require.NoError(t, err)

	require.Len(t, m.Clips, 1, "the event at 3s starts after a 2s video")
	assert.Equal(t, 2.0, m.Clips[0].Duration)
	require.NotNil(t, m.Bed)
	assert.Equal(t, []mix.DuckingRange{{Start: 0, End: 2, Level: 0.2, FadeDuration: 0}}, m.Bed.Ducking)
}

func TestCompile_NothingAudibleIsSilent(t *testing.T) {
	svc, _ := newTestTimeline(&fakeTTS{})
	spec := parseSpec(t, `{
	  "assets": {"video": {"id": "v", "source": "/in/v.mp4"}},
	  "timeline": [],
	  "output": {"filename": "quiet"}
	}`)

	m, err := svc.Compile(context.Background(), spec, nil, 7.5, t.TempDir())
	require.NoError(t, err)
	assert.True(t, m.Silent())
	assert.Equal(t, 7.5, m.Duration)
}

func TestCompile_MissingAssetIsPermanent(t *testing.T) {
	svc, _ := newTestTimeline(&fakeTTS{})
	audio := map[string]string{"music1": duckingAudio["music1"]}

	_, err := svc.Compile(context.Background(), parseSpec(t, duckingSpec), audio, 10, t.TempDir())
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCompile_SpeechErrorKeepsKind(t *testing.T) {
	svc, _ := newTestTimeline(&fakeTTS{err: apperr.Transient("polly synthesize", errors.New("throttled"))})

	_, err := svc.Compile(context.Background(), parseSpec(t, duckingSpec), duckingAudio, 10, t.TempDir())
	assert.True(t, apperr.IsTransient(err))
}

func TestCompile_UnresolvedPlaylistHasNoBed(t *testing.T) {
	svc, _ := newTestTimeline(&fakeTTS{})
	audio := map[string]string{"whoosh": duckingAudio["whoosh"]}

	m, err := svc.Compile(context.Background(), parseSpec(t, duckingSpec), audio, 10, t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, m.Bed)
	assert.Len(t, m.Clips, 2)
}

func TestSpeechFilename(t *testing.T) {
	assert.Equal(t, "tts_0_0.mp3", speechFilename(0, 0))
	assert.Equal(t, "tts_2_3.5.mp3", speechFilename(2, 3.5))
}
