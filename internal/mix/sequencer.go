package mix

import "math"

// minTailGap is the shortest uncovered tail worth another track.
const minTailGap = 1.0

// Track is a background music file with its probed length.
type Track struct {
	Path     string
	Duration float64
}

// Segment is one placement of a track on the bed timeline. Duration seconds
// are taken from the start of the file.
type Segment struct {
	Path     string  `json:"path"`
	Offset   float64 `json:"offset"`
	Duration float64 `json:"duration"`
	FadeIn   float64 `json:"fadeIn"`
	FadeOut  float64 `json:"fadeOut"`
}

func (s Segment) End() float64 {
	return s.Offset + s.Duration
}

// Bed is the sequenced background track. It always renders to exactly
// Duration seconds: gaps are filled with silence and overhang is cut.
type Bed struct {
	Segments []Segment      `json:"segments"`
	Volume   float64        `json:"volume"`
	Duration float64        `json:"duration"`
	Ducking  []DuckingRange `json:"ducking,omitempty"`
}

// Covered is the end of the last placed segment.
func (b *Bed) Covered() float64 {
	var end float64
	for _, s := range b.Segments {
		end = math.Max(end, s.End())
	}
	return end
}

type SequenceParams struct {
	Target    float64
	Volume    float64
	Loop      bool
	Crossfade float64
}

// SequenceBackgroundMusic lays tracks end to end, overlapping consecutive
// placements by the crossfade, until Target is covered. It returns nil when
// there is nothing to place.
func SequenceBackgroundMusic(tracks []Track, p SequenceParams) *Bed {
	if len(tracks) == 0 || p.Target <= 0 {
		return nil
	}
	crossfade := math.Max(p.Crossfade, 0)

	var segments []Segment
	covered := 0.0
	idx := 0
	skipped := 0
	for covered < p.Target {
		remaining := p.Target - covered
		if len(segments) > 0 && remaining < minTailGap {
			break
		}
		if idx >= len(tracks) {
			if !p.Loop {
				break
			}
			idx = 0
		}
		tr := tracks[idx]
		idx++
		if tr.Duration <= 0 {
			skipped++
			if skipped >= len(tracks) {
				break
			}
			continue
		}
		skipped = 0

		usable := math.Min(tr.Duration, remaining+crossfade)
		seg := Segment{Path: tr.Path, Duration: usable}
		advance := usable
		if n := len(segments); n > 0 {
			xf := crossfade
			if usable <= crossfade {
				// A track no longer than the crossfade would never move
				// coverage forward; overlap it by half instead.
				xf = usable / 2
			}
			seg.Offset = covered - xf
			seg.FadeIn = xf
			segments[n-1].FadeOut = xf
			advance = usable - xf
		}
		if covered+advance < p.Target {
			seg.FadeOut = math.Min(crossfade, usable)
		}
		segments = append(segments, seg)
		covered += advance
	}

	if len(segments) == 0 {
		return nil
	}
	return &Bed{Segments: segments, Volume: p.Volume, Duration: p.Target}
}
