package indicator

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var consolePalette = map[Color]lipgloss.Color{
	Black:  lipgloss.Color("#303030"),
	Red:    lipgloss.Color("#ff3030"),
	Yellow: lipgloss.Color("#ffd700"),
	Green:  lipgloss.Color("#30ff30"),
	White:  lipgloss.Color("#ffffff"),
}

// Console renders the race light as a colored lamp on a terminal.
// It writes one line each time the visible color changes.
type Console struct {
	out    io.Writer
	seq    *Sequencer
	styles map[Color]lipgloss.Style
	shown  Color
	drawn  bool
}

// NewConsole returns a console indicator writing to w
func NewConsole(w io.Writer) *Console {
	renderer := lipgloss.NewRenderer(w)

	styles := make(map[Color]lipgloss.Style, len(consolePalette))
	for c, fg := range consolePalette {
		styles[c] = renderer.NewStyle().Foreground(fg).Bold(true)
	}

	return &Console{
		out:    w,
		seq:    NewSequencer(),
		styles: styles,
	}
}

func (c *Console) SetColor(color Color) { c.seq.SetColor(color) }

func (c *Console) Flash(seq []Color, intervalMs int) { c.seq.Flash(seq, intervalMs) }

func (c *Console) Blip(durationMs int, color Color) { c.seq.Blip(durationMs, color) }

// Tick advances the pattern and redraws the lamp when its color changed
func (c *Console) Tick(nowMs int64) {
	c.seq.Advance(nowMs)

	color := c.seq.Current()
	if c.drawn && color == c.shown {
		return
	}
	c.shown = color
	c.drawn = true

	style, ok := c.styles[color]
	if !ok {
		style = c.styles[Black]
	}
	fmt.Fprintf(c.out, "%s %s\n", style.Render("●"), color)
}
