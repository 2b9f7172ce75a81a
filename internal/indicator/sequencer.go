package indicator

// Sequencer tracks the active light pattern and resolves the color to show
// at a given time. A blip overlays the base pattern until it expires.
//
// Commands arrive without a timestamp, so a new pattern is anchored at the
// first Tick after it was set.
type Sequencer struct {
	seq        []Color
	intervalMs int64
	startMs    int64
	anchored   bool

	blipColor   Color
	blipMs      int64
	blipUntilMs int64
	blipPending bool
	blipActive  bool

	nowMs int64
}

// NewSequencer returns a sequencer showing solid black
func NewSequencer() *Sequencer {
	return &Sequencer{seq: []Color{Black}}
}

// SetColor switches to a solid color
func (s *Sequencer) SetColor(c Color) {
	s.seq = []Color{c}
	s.intervalMs = 0
	s.anchored = false
}

// Flash switches to a cycling pattern. An empty sequence means off and a
// non-positive interval holds the first color.
func (s *Sequencer) Flash(seq []Color, intervalMs int) {
	if len(seq) == 0 {
		s.SetColor(Black)
		return
	}
	s.seq = append([]Color(nil), seq...)
	s.intervalMs = int64(intervalMs)
	s.anchored = false
}

// Blip schedules a momentary pulse
func (s *Sequencer) Blip(durationMs int, c Color) {
	if durationMs <= 0 {
		return
	}
	s.blipColor = c
	s.blipMs = int64(durationMs)
	s.blipPending = true
}

// Advance moves the sequencer clock to nowMs
func (s *Sequencer) Advance(nowMs int64) {
	s.nowMs = nowMs
	if !s.anchored {
		s.startMs = nowMs
		s.anchored = true
	}
	if s.blipPending {
		s.blipUntilMs = nowMs + s.blipMs
		s.blipPending = false
		s.blipActive = true
	}
	if s.blipActive && nowMs >= s.blipUntilMs {
		s.blipActive = false
	}
}

// Current returns the color to show at the last advanced time
func (s *Sequencer) Current() Color {
	if s.blipActive {
		return s.blipColor
	}
	if len(s.seq) == 1 || s.intervalMs <= 0 {
		return s.seq[0]
	}
	step := (s.nowMs - s.startMs) / s.intervalMs
	return s.seq[step%int64(len(s.seq))]
}
