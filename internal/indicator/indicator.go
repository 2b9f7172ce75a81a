// Package indicator drives the shared race light.
//
// Every variant implements the same Indicator capability; the race
// controller only ever talks to the interface.
package indicator

import (
	"errors"
	"fmt"
	"io"
)

// Color is one of the colors the race light can show
type Color int

const (
	Black Color = iota // off
	Red
	Yellow
	Green
	White
)

var colorNames = [...]string{"off", "red", "yellow", "green", "white"}

func (c Color) String() string {
	if c < Black || int(c) >= len(colorNames) {
		return fmt.Sprintf("Color(%d)", int(c))
	}
	return colorNames[c]
}

// Indicator is the capability set of a race light
type Indicator interface {
	// SetColor shows a solid color until the next command
	SetColor(c Color)
	// Flash cycles through seq, holding each color for intervalMs
	Flash(seq []Color, intervalMs int)
	// Blip shows c for durationMs, then returns to the current pattern
	Blip(durationMs int, c Color)
	// Tick advances time-based patterns to nowMs
	Tick(nowMs int64)
}

// ErrUnknownIndicator is returned by New for an unsupported kind
var ErrUnknownIndicator = errors.New("unknown indicator kind")

// New returns the indicator variant configured by kind.
// w receives console output and may be nil for kinds that don't print.
func New(kind string, w io.Writer) (Indicator, error) {
	switch kind {
	case "none", "":
		return NoIndicator{}, nil
	case "console":
		if w == nil {
			return nil, fmt.Errorf("console indicator needs a writer")
		}
		return NewConsole(w), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownIndicator, kind)
	}
}

// NoIndicator ignores all commands; used when no light is wired
type NoIndicator struct{}

func (NoIndicator) SetColor(Color)     {}
func (NoIndicator) Flash([]Color, int) {}
func (NoIndicator) Blip(int, Color)    {}
func (NoIndicator) Tick(int64)         {}
