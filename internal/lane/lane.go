// Package lane defines what a per-lane monitor reports to the race
// controller, and provides a monitor fed by externally injected events.
package lane

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/lanerace/racecontrol/internal/telemetry"
)

// EventKind identifies a lane event
type EventKind int

const (
	// LapCompleted reports Laps completed laps since the last poll
	LapCompleted EventKind = iota + 1
	// OffTrack reports the car leaving (On) or returning to the track
	OffTrack
	// Ready reports the lane signalled readiness
	Ready
	// Disqualified reports a lane infraction
	Disqualified
	// ColorChanged reports a significant, persistent color sensor change
	ColorChanged
)

func (k EventKind) String() string {
	switch k {
	case LapCompleted:
		return "lap"
	case OffTrack:
		return "offtrack"
	case Ready:
		return "ready"
	case Disqualified:
		return "disqualified"
	case ColorChanged:
		return "color"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one lane observation
type Event struct {
	Kind  EventKind
	Laps  int
	On    bool
	Color telemetry.RGB
}

// Monitor is polled once per tick for the events seen on its lane.
// An empty result means nothing happened or the sensor had no reading.
type Monitor interface {
	Poll(nowMs int64) []Event
}

// ErrUnknownLane is returned when routing an event to a lane that does not exist
var ErrUnknownLane = errors.New("unknown lane")

// Simulator is a Monitor whose events are injected from other goroutines
// and handed to the controller on the next poll.
type Simulator struct {
	mu      sync.Mutex
	pending []Event
}

// NewSimulator returns an empty simulator
func NewSimulator() *Simulator {
	return &Simulator{}
}

// Inject queues an event for the next poll
func (s *Simulator) Inject(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, ev)
}

// Poll drains the queued events
func (s *Simulator) Poll(int64) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	events := s.pending
	s.pending = nil
	return events
}

// Bank holds one simulator per lane id
type Bank struct {
	lanes map[int]*Simulator
}

// NewBank creates simulators for count lanes numbered from start
func NewBank(start, count int) *Bank {
	b := &Bank{lanes: make(map[int]*Simulator, count)}
	for i := 0; i < count; i++ {
		b.lanes[start+i] = NewSimulator()
	}
	return b
}

// RouteLane injects ev into the simulator for lane id
func (b *Bank) RouteLane(id int, ev Event) error {
	sim, ok := b.lanes[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownLane, id)
	}
	sim.Inject(ev)
	return nil
}

// Monitors returns the simulators ordered by lane id
func (b *Bank) Monitors() []Monitor {
	ids := make([]int, 0, len(b.lanes))
	for id := range b.lanes {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	monitors := make([]Monitor, 0, len(ids))
	for _, id := range ids {
		monitors = append(monitors, b.lanes[id])
	}
	return monitors
}
