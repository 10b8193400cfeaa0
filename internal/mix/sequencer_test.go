package mix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceLoopsSingleTrack(t *testing.T) {
	bed := SequenceBackgroundMusic(
		[]Track{{Path: "m.mp3", Duration: 4}},
		SequenceParams{Target: 10, Volume: 0.3, Loop: true, Crossfade: 2},
	)
	require.NotNil(t, bed)

	assert.Equal(t, 10.0, bed.Duration)
	assert.InDelta(t, 10.0, bed.Covered(), 1e-9)
	assert.Equal(t, 0.3, bed.Volume)
	assert.Equal(t, []Segment{
		{Path: "m.mp3", Offset: 0, Duration: 4, FadeIn: 0, FadeOut: 2},
		{Path: "m.mp3", Offset: 2, Duration: 4, FadeIn: 2, FadeOut: 2},
		{Path: "m.mp3", Offset: 4, Duration: 4, FadeIn: 2, FadeOut: 2},
		{Path: "m.mp3", Offset: 6, Duration: 4, FadeIn: 2, FadeOut: 0},
	}, bed.Segments)
}

func TestSequenceShortTrackUsesFullCrossfade(t *testing.T) {
	bed := SequenceBackgroundMusic(
		[]Track{{Path: "s.mp3", Duration: 3}},
		SequenceParams{Target: 10, Loop: true, Crossfade: 2},
	)
	require.NotNil(t, bed)
	require.Len(t, bed.Segments, 8)

	for i, seg := range bed.Segments {
		assert.Equal(t, float64(i), seg.Offset, "segment %d", i)
		assert.Equal(t, 3.0, seg.Duration, "segment %d", i)
		if i > 0 {
			assert.Equal(t, 2.0, seg.FadeIn, "segment %d", i)
		}
		if i < len(bed.Segments)-1 {
			assert.Equal(t, 2.0, seg.FadeOut, "segment %d", i)
		}
	}
	assert.Equal(t, 0.0, bed.Segments[0].FadeIn)
	assert.Equal(t, 0.0, bed.Segments[7].FadeOut)
	assert.InDelta(t, 10.0, bed.Covered(), 1e-9)
}

func TestSequenceTrackNoLongerThanCrossfadeStillAdvances(t *testing.T) {
	bed := SequenceBackgroundMusic(
		[]Track{{Path: "blip.mp3", Duration: 2}},
		SequenceParams{Target: 5, Loop: true, Crossfade: 2},
	)
	require.NotNil(t, bed)
	require.Greater(t, len(bed.Segments), 1)
	assert.Equal(t, 1.0, bed.Segments[1].Offset)
	assert.Equal(t, 1.0, bed.Segments[1].FadeIn)
	assert.Equal(t, 1.0, bed.Segments[0].FadeOut)
}

func TestSequenceDurationAlwaysTarget(t *testing.T) {
	tests := []struct {
		name   string
		tracks []Track
		params SequenceParams
	}{
		{"long single track", []Track{{"a", 30}}, SequenceParams{Target: 10, Loop: true, Crossfade: 2}},
		{"two tracks no crossfade", []Track{{"a", 3}, {"b", 5}}, SequenceParams{Target: 17, Loop: true}},
		{"no loop runs out", []Track{{"a", 3}, {"b", 3}}, SequenceParams{Target: 10, Loop: false, Crossfade: 1}},
		{"crossfade longer than track", []Track{{"a", 1.5}}, SequenceParams{Target: 9, Loop: true, Crossfade: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bed := SequenceBackgroundMusic(tt.tracks, tt.params)
			require.NotNil(t, bed)
			assert.Equal(t, tt.params.Target, bed.Duration)
			for i := 1; i < len(bed.Segments); i++ {
				assert.Greater(t, bed.Segments[i].End(), bed.Segments[i-1].End(), "coverage must advance")
			}
		})
	}
}

func TestSequenceNoLoopStopsAfterPlaylist(t *testing.T) {
	bed := SequenceBackgroundMusic(
		[]Track{{"a", 3}, {"b", 3}},
		SequenceParams{Target: 10, Loop: false, Crossfade: 1},
	)
	require.NotNil(t, bed)
	require.Len(t, bed.Segments, 2)
	assert.Equal(t, 2.0, bed.Segments[1].Offset)
	assert.InDelta(t, 5.0, bed.Covered(), 1e-9)
}

func TestSequenceStopsOnSubSecondTail(t *testing.T) {
	bed := SequenceBackgroundMusic(
		[]Track{{"a", 9.5}},
		SequenceParams{Target: 10, Loop: true, Crossfade: 2},
	)
	require.NotNil(t, bed)
	require.Len(t, bed.Segments, 1)
	assert.Equal(t, 2.0, bed.Segments[0].FadeOut)
}

func TestSequenceTrimsLastTrackToNeededLength(t *testing.T) {
	bed := SequenceBackgroundMusic(
		[]Track{{"a", 8}, {"b", 60}},
		SequenceParams{Target: 12, Loop: true, Crossfade: 2},
	)
	require.NotNil(t, bed)
	require.Len(t, bed.Segments, 2)
	// remaining 4s plus the 2s overlap
	assert.Equal(t, 6.0, bed.Segments[1].Duration)
	assert.Equal(t, 6.0, bed.Segments[1].Offset)
	assert.InDelta(t, 12.0, bed.Covered(), 1e-9)
}

func TestSequenceNothingToPlace(t *testing.T) {
	assert.Nil(t, SequenceBackgroundMusic(nil, SequenceParams{Target: 10, Loop: true}))
	assert.Nil(t, SequenceBackgroundMusic([]Track{{"a", 0}}, SequenceParams{Target: 10, Loop: true}))
	assert.Nil(t, SequenceBackgroundMusic([]Track{{"a", 5}}, SequenceParams{Target: 0, Loop: true}))
}
