package mix

// Clip is a foreground sound placed at Start for Duration seconds.
type Clip struct {
	Path     string  `json:"path"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Volume   float64 `json:"volume"`
}

func (c Clip) End() float64 {
	return c.Start + c.Duration
}

// Mix is the complete audio plan for one render, bounded to Duration.
type Mix struct {
	Duration float64 `json:"duration"`
	Bed      *Bed    `json:"bed,omitempty"`
	Clips    []Clip  `json:"clips,omitempty"`
}

// Silent reports whether the plan has no audible source, in which case the
// renderer synthesizes silence of Duration seconds.
func (m *Mix) Silent() bool {
	return m.Bed == nil && len(m.Clips) == 0
}
