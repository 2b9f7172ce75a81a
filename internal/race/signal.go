package race

import "github.com/lanerace/racecontrol/internal/indicator"

// Signal is the light pattern for a reported status. A single color with
// no interval is shown solid; anything else flashes.
type Signal struct {
	Seq        []indicator.Color
	IntervalMs int
}

func solid(c indicator.Color) Signal {
	return Signal{Seq: []indicator.Color{c}}
}

func flash(intervalMs int, seq ...indicator.Color) Signal {
	return Signal{Seq: seq, IntervalMs: intervalMs}
}

var signals = map[Status]Signal{
	Waiting:          solid(indicator.Black),
	PrepReadyToStart: flash(250, indicator.White, indicator.Black),
	ReadyToStart:     flash(250, indicator.White, indicator.Black),
	Ready:            solid(indicator.Red),
	Set:              solid(indicator.Yellow),
	Go:               solid(indicator.Green),
	Racing:           solid(indicator.Green),
	OffTrack:         flash(250, indicator.Yellow, indicator.Black),
	FinalLap:         flash(250, indicator.Yellow, indicator.Red),
	Winner:           flash(50, indicator.White, indicator.Black),
}

// SignalFor returns the light pattern for s. Show Winner and Disqualify
// carry a third slot that lights only when statusTrack is the configured
// highlight lane.
func SignalFor(s Status, highlightLane, statusTrack int) (Signal, bool) {
	switch s {
	case ShowWinner:
		return highlightSignal(indicator.Green, highlightLane, statusTrack), true
	case Disqualify:
		return highlightSignal(indicator.Red, highlightLane, statusTrack), true
	}
	sig, ok := signals[s]
	return sig, ok
}

func highlightSignal(c indicator.Color, highlightLane, statusTrack int) Signal {
	slot := indicator.Black
	if highlightLane > 0 && statusTrack == highlightLane {
		slot = c
	}
	return flash(125, c, indicator.Black, slot, indicator.Black, indicator.Black, indicator.Black)
}

// Apply sends the signal to an indicator
func (sig Signal) Apply(ind indicator.Indicator) {
	if len(sig.Seq) == 1 && sig.IntervalMs == 0 {
		ind.SetColor(sig.Seq[0])
		return
	}
	ind.Flash(sig.Seq, sig.IntervalMs)
}
