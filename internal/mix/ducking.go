// Package mix plans the audio track of a render: where every clip sits on the
// timeline, how the background bed is sequenced and where it is ducked. It
// does no audio I/O; media turns a Mix into an encoder invocation.
package mix

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"strings"
)

// DuckingRange lowers the background bed to Level between Start and End,
// ramping over FadeDuration seconds at each edge.
type DuckingRange struct {
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Level        float64 `json:"duckingLevel"`
	FadeDuration float64 `json:"fadeDuration"`
}

// MergeDuckingRanges returns a sorted, non-overlapping set of ranges. Ranges
// that overlap or touch collapse into one that keeps the lowest level and the
// longest fade. The input is not modified.
func MergeDuckingRanges(ranges []DuckingRange) []DuckingRange {
	if len(ranges) == 0 {
		return nil
	}
	sorted := slices.Clone(ranges)
	slices.SortStableFunc(sorted, func(a, b DuckingRange) int {
		return cmp.Compare(a.Start, b.Start)
	})

	merged := make([]DuckingRange, 0, len(sorted))
	cur := sorted[0]
	for _, next := range sorted[1:] {
		if next.Start <= cur.End {
			cur.End = math.Max(cur.End, next.End)
			cur.Level = math.Min(cur.Level, next.Level)
			cur.FadeDuration = math.Max(cur.FadeDuration, next.FadeDuration)
			continue
		}
		merged = append(merged, cur)
		cur = next
	}
	return append(merged, cur)
}

// ClipRanges bounds ranges to [0, limit], dropping the ones left empty.
func ClipRanges(ranges []DuckingRange, limit float64) []DuckingRange {
	out := make([]DuckingRange, 0, len(ranges))
	for _, r := range ranges {
		r.Start = math.Max(r.Start, 0)
		r.End = math.Min(r.End, limit)
		if r.End > r.Start {
			out = append(out, r)
		}
	}
	return out
}

// fade is the ramp length actually used; a ramp never exceeds half the range.
func (r DuckingRange) fade() float64 {
	return math.Min(r.FadeDuration, (r.End-r.Start)/2)
}

// GainAt is the bed gain at time t under one range.
func (r DuckingRange) GainAt(t float64) float64 {
	if t < r.Start || t > r.End {
		return 1
	}
	f := r.fade()
	if f <= 0 {
		return r.Level
	}
	ramp := math.Min(1, math.Min((t-r.Start)/f, (r.End-t)/f))
	return 1 - (1-r.Level)*ramp
}

// GainAt evaluates the envelope of merged ranges at time t.
func GainAt(ranges []DuckingRange, t float64) float64 {
	for _, r := range ranges {
		if t >= r.Start && t <= r.End {
			return r.GainAt(t)
		}
	}
	return 1
}

// GainExpr renders merged ranges as an ffmpeg volume expression in t. The
// ranges must not overlap, so at most one term is non-zero at any time.
func GainExpr(ranges []DuckingRange) string {
	if len(ranges) == 0 {
		return "1"
	}
	var b strings.Builder
	b.WriteString("1")
	for _, r := range ranges {
		s, e := num(r.Start), num(r.End)
		depth := num(1 - r.Level)
		b.WriteString("-between(t," + s + "," + e + ")*" + depth)
		if f := r.fade(); f > 0 {
			fs := num(f)
			b.WriteString("*min(1,min((t-" + s + ")/" + fs + ",(" + e + "-t)/" + fs + "))")
		}
	}
	return b.String()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
