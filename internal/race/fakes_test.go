package race

import (
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lanerace/racecontrol/internal/indicator"
	"github.com/lanerace/racecontrol/internal/lane"
)

type indicatorCall struct {
	kind  string
	color indicator.Color
	seq   []indicator.Color
	ms    int
}

type recordingIndicator struct {
	calls []indicatorCall
	ticks int
}

func (r *recordingIndicator) SetColor(c indicator.Color) {
	r.calls = append(r.calls, indicatorCall{kind: "solid", color: c})
}

func (r *recordingIndicator) Flash(seq []indicator.Color, intervalMs int) {
	r.calls = append(r.calls, indicatorCall{kind: "flash", seq: seq, ms: intervalMs})
}

func (r *recordingIndicator) Blip(durationMs int, c indicator.Color) {
	r.calls = append(r.calls, indicatorCall{kind: "blip", color: c, ms: durationMs})
}

func (r *recordingIndicator) Tick(int64) { r.ticks++ }

func (r *recordingIndicator) last() indicatorCall {
	if len(r.calls) == 0 {
		return indicatorCall{}
	}
	return r.calls[len(r.calls)-1]
}

func (r *recordingIndicator) count(kind string) int {
	n := 0
	for _, c := range r.calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

type recordingPublisher struct {
	raw  []string
	race []string
	fail bool
}

var errSendFailed = errors.New("network unreachable")

func (p *recordingPublisher) SendRaw(msg string) error {
	p.raw = append(p.raw, msg)
	if p.fail {
		return errSendFailed
	}
	return nil
}

func (p *recordingPublisher) SendRace(msg string) error {
	p.race = append(p.race, msg)
	if p.fail {
		return errSendFailed
	}
	return nil
}

func (p *recordingPublisher) statusMessages() []string {
	var out []string
	for _, m := range p.race {
		if strings.Contains(m, `"status"`) {
			out = append(out, m)
		}
	}
	return out
}

type queueInbox struct {
	items [][]byte
}

func (q *queueInbox) push(s string) { q.items = append(q.items, []byte(s)) }

func (q *queueInbox) Receive() ([]byte, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

type testRig struct {
	c     *Controller
	ind   *recordingIndicator
	pub   *recordingPublisher
	inbox *queueInbox
	lanes *lane.Bank
}

func testOptions(laps int) Options {
	return Options{
		Laps:               laps,
		TrackCount:         2,
		TrackStart:         1,
		HighlightLane:      2,
		PreRaceStageTicks:  2000,
		OffTrackResetTicks: 10000,
	}
}

func newTestRig(t *testing.T, laps int) *testRig {
	t.Helper()
	rig := &testRig{
		ind:   &recordingIndicator{},
		pub:   &recordingPublisher{},
		inbox: &queueInbox{},
		lanes: lane.NewBank(1, 2),
	}
	c, err := New(testOptions(laps), Deps{
		Indicator: rig.ind,
		Publisher: rig.pub,
		Monitors:  rig.lanes.Monitors(),
		Inboxes:   []Inbox{rig.inbox},
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	rig.c = c
	return rig
}

// startRace ticks every 100 units from zero until the race is Racing and
// returns the tick at which it started
func (r *testRig) startRace(t *testing.T) int64 {
	t.Helper()
	for now := int64(0); now <= 20000; now += 100 {
		r.c.Tick(now)
		if r.c.Status() == Racing {
			return now
		}
	}
	t.Fatal("race never reached Racing")
	return 0
}
