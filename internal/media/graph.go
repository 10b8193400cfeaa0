package media

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ossamaweb/auto-vid/internal/mix"
)

// AudioGraph is the audio half of an ffmpeg invocation: extra input files in
// order and a filter_complex whose output pad is Output.
type AudioGraph struct {
	Inputs []string
	Filter string
	Output string
}

// BuildAudioGraph compiles a mix plan into a filter graph. Input indexes start
// at firstInput because earlier inputs (the video) belong to the caller.
func BuildAudioGraph(m *mix.Mix, firstInput, sampleRate int) AudioGraph {
	const out = "aout"
	g := AudioGraph{Output: out}
	format := fmt.Sprintf("aformat=sample_rates=%d:channel_layouts=stereo", sampleRate)
	total := sec(m.Duration)

	if m.Silent() {
		g.Filter = fmt.Sprintf("anullsrc=r=%d:cl=stereo,atrim=duration=%s[%s]", sampleRate, total, out)
		return g
	}

	var chains []string
	var layers []string
	next := firstInput

	if bed := m.Bed; bed != nil && len(bed.Segments) > 0 {
		var pads []string
		for i, s := range bed.Segments {
			g.Inputs = append(g.Inputs, s.Path)
			filters := []string{
				"atrim=duration=" + sec(s.Duration),
				"asetpts=PTS-STARTPTS",
				format,
			}
			if s.FadeIn > 0 {
				filters = append(filters, fmt.Sprintf("afade=t=in:st=0:d=%s", sec(s.FadeIn)))
			}
			if s.FadeOut > 0 {
				filters = append(filters, fmt.Sprintf("afade=t=out:st=%s:d=%s", sec(s.Duration-s.FadeOut), sec(s.FadeOut)))
			}
			filters = append(filters, delay(s.Offset))
			pad := fmt.Sprintf("s%d", i)
			chains = append(chains, fmt.Sprintf("[%d:a]%s[%s]", next, strings.Join(filters, ","), pad))
			pads = append(pads, "["+pad+"]")
			next++
		}

		bedFilters := []string{
			"volume=" + sec(bed.Volume),
			fmt.Sprintf("volume='%s':eval=frame", mix.GainExpr(bed.Ducking)),
			"apad",
			"atrim=duration=" + sec(bed.Duration),
		}
		chains = append(chains, strings.Join(pads, "")+mixOf(len(pads))+strings.Join(bedFilters, ",")+"[bed]")
		layers = append(layers, "[bed]")
	}

	for i, c := range m.Clips {
		g.Inputs = append(g.Inputs, c.Path)
		pad := fmt.Sprintf("c%d", i)
		chains = append(chains, fmt.Sprintf("[%d:a]%s,volume=%s,%s[%s]", next, format, sec(c.Volume), delay(c.Start), pad))
		layers = append(layers, "["+pad+"]")
		next++
	}

	chains = append(chains, strings.Join(layers, "")+mixOf(len(layers))+"apad,atrim=duration="+total+"["+out+"]")
	g.Filter = strings.Join(chains, ";")
	return g
}

// mixOf returns the amix prefix for n pads, or a pass-through for one.
func mixOf(n int) string {
	if n == 1 {
		return "anull,"
	}
	return fmt.Sprintf("amix=inputs=%d:duration=longest:dropout_transition=0:normalize=0,", n)
}

func delay(offset float64) string {
	ms := int64(math.Round(math.Max(offset, 0) * 1000))
	return "adelay=delays=" + strconv.FormatInt(ms, 10) + ":all=1"
}

func sec(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
