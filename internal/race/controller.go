// Package race arbitrates the state of a multi-lane timed race.
//
// A Controller is driven by one Tick call per control cycle. Each tick it
// polls the lane monitors, applies lane events, recomputes the race status,
// reports status changes to the indicator and telemetry, and handles at
// most one inbound command. All race state is owned by the goroutine
// calling Tick; other goroutines read it through Snapshot.
package race

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"github.com/lanerace/racecontrol/internal/config"
	"github.com/lanerace/racecontrol/internal/indicator"
	"github.com/lanerace/racecontrol/internal/lane"
	"github.com/lanerace/racecontrol/internal/telemetry"
)

const readyBlipMs = 125

// Publisher sends telemetry. Delivery is fire-and-forget: errors are
// logged and never change race state.
type Publisher interface {
	SendRaw(msg string) error
	SendRace(msg string) error
}

// Inbox yields inbound control bytes without blocking
type Inbox interface {
	Receive() ([]byte, bool)
}

// Options configure the race rules
type Options struct {
	Laps       int
	TrackCount int
	TrackStart int
	// HighlightLane lights the third slot of the winner and disqualify
	// patterns when it is the lane of record; 0 disables it.
	HighlightLane      int
	PreRaceStageTicks  int64
	OffTrackResetTicks int64
}

// OptionsFromConfig builds race options from configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Laps:               cfg.Race.Laps,
		TrackCount:         cfg.Race.TrackCount,
		TrackStart:         cfg.Race.TrackStart,
		HighlightLane:      cfg.Race.HighlightLane,
		PreRaceStageTicks:  cfg.Timing.PreRaceStageTicks,
		OffTrackResetTicks: cfg.Timing.OffTrackResetTicks,
	}
}

// Deps are the controller's collaborators. Nil Indicator and Publisher
// are replaced with no-ops. Monitors, when given, must be one per lane in
// lane order.
type Deps struct {
	Indicator indicator.Indicator
	Publisher Publisher
	Monitors  []lane.Monitor
	Inboxes   []Inbox
	Logger    zerolog.Logger
}

// Controller owns the race status and per-lane results
type Controller struct {
	opts      Options
	indicator indicator.Indicator
	publisher Publisher
	monitors  []lane.Monitor
	inboxes   []Inbox
	logger    zerolog.Logger

	raceStatus            Status
	lastRaceStatus        Status
	lastRaceStatusTicks   int64
	lastStatusChangeTicks int64
	ticksRaceStarted      int64
	carsFinished          int
	trackStatusID         int
	tracksReady           int
	advanceRequested      bool
	primed                bool
	now                   int64
	raceID                string

	tracks   []Track
	snapshot atomic.Pointer[Snapshot]
}

// New creates a controller in the Waiting stage
func New(opts Options, deps Deps) (*Controller, error) {
	if opts.Laps < 1 {
		return nil, fmt.Errorf("race needs at least one lap, got %d", opts.Laps)
	}
	if opts.TrackCount < 1 {
		return nil, fmt.Errorf("race needs at least one track, got %d", opts.TrackCount)
	}
	if len(deps.Monitors) != 0 && len(deps.Monitors) != opts.TrackCount {
		return nil, fmt.Errorf("got %d lane monitors for %d tracks", len(deps.Monitors), opts.TrackCount)
	}
	if opts.TrackStart < 1 {
		opts.TrackStart = 1
	}

	c := &Controller{
		opts:           opts,
		indicator:      deps.Indicator,
		publisher:      deps.Publisher,
		monitors:       deps.Monitors,
		inboxes:        deps.Inboxes,
		logger:         deps.Logger.With().Str("component", "race").Logger(),
		raceStatus:     Waiting,
		lastRaceStatus: statusUnset,
		tracks:         make([]Track, opts.TrackCount),
	}
	if c.indicator == nil {
		c.indicator = indicator.NoIndicator{}
	}
	if c.publisher == nil {
		c.publisher = discardPublisher{}
	}
	for i := range c.tracks {
		c.tracks[i].ID = opts.TrackStart + i
	}

	return c, nil
}

// Tick advances the whole race by one control cycle
func (c *Controller) Tick(now int64) {
	c.now = now

	for i, m := range c.monitors {
		for _, ev := range m.Poll(now) {
			c.applyLaneEvent(&c.tracks[i], ev)
		}
	}

	c.StatusCheck(now)
	c.drainInbox()
	c.indicator.Tick(now)
	c.publishSnapshot()
}

func (c *Controller) applyLaneEvent(t *Track, ev lane.Event) {
	switch ev.Kind {
	case lane.LapCompleted:
		if ev.Laps <= 0 || !c.raceStatus.IsRacingOrPostRace() || c.raceStatus == Disqualify || t.Lap >= c.opts.Laps {
			return
		}
		// multi-lap jumps stop at the race distance
		t.Lap = min(t.Lap+ev.Laps, c.opts.Laps)
		c.TrackLapChanged(t, c.now)
	case lane.OffTrack:
		if t.IsOfftrack != ev.On {
			c.logger.Debug().Int("track", t.ID).Bool("offtrack", ev.On).Msg("off-track changed")
		}
		t.IsOfftrack = ev.On
	case lane.Ready:
		c.TrackReady(t)
	case lane.Disqualified:
		c.Disqualify(t)
	case lane.ColorChanged:
		c.ColorChanged(t, ev.Color)
	default:
		c.logger.Debug().Int("track", t.ID).Stringer("kind", ev.Kind).Msg("ignoring unknown lane event")
	}
}

// StatusCheck advances pre-race stages, computes the reportable status and
// reports it when it changed
func (c *Controller) StatusCheck(now int64) {
	if !c.primed {
		c.lastRaceStatusTicks = now
		c.lastStatusChangeTicks = now
		c.primed = true
	}

	if c.raceStatus.IsPreRace() &&
		(c.raceStatus == Go || c.advanceRequested || now-c.lastRaceStatusTicks >= c.opts.PreRaceStageTicks) {
		c.advanceRequested = false
		c.raceStatus++

		if c.raceStatus == Racing {
			c.StartRace(now)
		}
	}

	reportable := c.raceStatus
	if reportable == Racing && c.anyOffTrack() {
		reportable = OffTrack
	}

	if reportable == c.lastRaceStatus {
		if reportable != OffTrack || now-c.lastStatusChangeTicks < c.opts.OffTrackResetTicks {
			return
		}
		c.logger.Warn().
			Str("race_id", c.raceID).
			Int64("offtrack_ticks", now-c.lastStatusChangeTicks).
			Msg("car off track too long, race abandoned")
		c.raceStatus = Waiting
		c.tracksReady = 0
		reportable = Waiting
	}

	c.lastStatusChangeTicks = now
	c.lastRaceStatusTicks = now
	c.lastRaceStatus = reportable

	c.logger.Info().Str("status", reportable.String()).Int64("tick", now).Msg("status changed")
	c.sendRace(0, "status", reportable.String())

	if sig, ok := SignalFor(reportable, c.opts.HighlightLane, c.trackStatusID); ok {
		sig.Apply(c.indicator)
	}
}

func (c *Controller) anyOffTrack() bool {
	for i := range c.tracks {
		if c.tracks[i].IsOfftrack {
			return true
		}
	}
	return false
}

// StartRace resets all lane results and starts the race clock
func (c *Controller) StartRace(now int64) {
	c.ticksRaceStarted = now
	for i := range c.tracks {
		c.tracks[i].reset()
	}
	c.carsFinished = 0
	c.trackStatusID = 0
	c.raceID = ksuid.New().String()

	c.logger.Info().Str("race_id", c.raceID).Int("laps", c.opts.Laps).Msg("race started")
}

// TrackLapChanged arbitrates a lane's new lap count at tick now. It
// returns whether the lane has completed the race.
func (c *Controller) TrackLapChanged(t *Track, now int64) bool {
	if c.raceStatus == Racing && t.Lap == c.opts.Laps-1 {
		c.raceStatus = FinalLap
		c.logger.Info().Int("track", t.ID).Msg("final lap")
		c.sendRaceInt(t.ID, "finallap", t.ID)
	}

	// With a one-lap race there is no final-lap announcement to open the finish.
	finishOpen := c.raceStatus.acceptsFinishers() || (c.opts.Laps == 1 && c.raceStatus == Racing)

	if finishOpen && t.Lap == c.opts.Laps && !t.Finished {
		t.Finished = true
		t.FinishTicks = now
		c.carsFinished++

		if c.carsFinished == 1 {
			c.trackStatusID = t.ID
			c.logger.Info().
				Str("race_id", c.raceID).
				Int("track", t.ID).
				Int64("race_ticks", c.RaceTime(t.FinishTicks)).
				Msg("winner")
			c.sendRaceInt(t.ID, "winner", t.ID)
		} else {
			c.logger.Info().
				Int("track", t.ID).
				Int("position", c.carsFinished).
				Int64("race_ticks", c.RaceTime(t.FinishTicks)).
				Msg("finished")
		}

		c.raceStatus = ShowWinner
	}

	return t.Lap == c.opts.Laps
}

// TrackReady counts a lane's readiness, up to the number of tracks, and
// acknowledges it with a short green pulse
func (c *Controller) TrackReady(t *Track) {
	if c.tracksReady >= c.opts.TrackCount {
		return
	}
	c.tracksReady++
	c.indicator.Blip(readyBlipMs, indicator.Green)
	c.logger.Debug().Int("track", t.ID).Int("ready", c.tracksReady).Msg("track ready")
}

// Disqualify ends the race for everyone, recording the offending lane
func (c *Controller) Disqualify(t *Track) {
	c.trackStatusID = t.ID
	c.raceStatus = Disqualify
	c.logger.Warn().Str("race_id", c.raceID).Int("track", t.ID).Msg("disqualified")
	c.sendRaceInt(t.ID, "disqualified", t.ID)
}

// ColorChanged reports a significant color sensor change on the raw channel
func (c *Controller) ColorChanged(t *Track, rgb telemetry.RGB) {
	hex := telemetry.HexColor(rgb)
	c.logger.Debug().Int("track", t.ID).Str("color", hex).Msg("color sensor significant change")

	msg, err := telemetry.RawColorMessage(t.ID, hex)
	if err != nil {
		c.logger.Warn().Err(err).Int("track", t.ID).Msg("dropping color message")
		return
	}
	if err := c.publisher.SendRaw(msg); err != nil {
		c.logger.Debug().Err(err).Msg("raw telemetry send failed")
	}
}

// HandleCommand applies one inbound control command. Only the Go stage,
// by name or ordinal, is recognized; it makes the next status check
// advance one pre-race stage. Anything else is ignored.
func (c *Controller) HandleCommand(data []byte) {
	text := strings.TrimSpace(string(data))
	st, err := ParseStatus(text)
	if err != nil || st != Go {
		c.logger.Debug().Str("input", text).Msg("ignoring control input")
		return
	}
	if !c.raceStatus.IsPreRace() {
		c.logger.Debug().Stringer("status", c.raceStatus).Msg("go ignored, race already started")
		return
	}
	c.advanceRequested = true
	c.logger.Info().Msg("go requested")
}

func (c *Controller) drainInbox() {
	for _, in := range c.inboxes {
		if data, ok := in.Receive(); ok {
			c.HandleCommand(data)
			return
		}
	}
}

func (c *Controller) sendRace(track int, key, value string) {
	msg, err := telemetry.RaceMessage(track, key, value)
	c.publishRace(msg, err)
}

func (c *Controller) sendRaceInt(track int, key string, value int) {
	msg, err := telemetry.RaceMessageInt(track, key, value)
	c.publishRace(msg, err)
}

func (c *Controller) publishRace(msg string, err error) {
	if err != nil {
		c.logger.Warn().Err(err).Msg("dropping race message")
		return
	}
	if err := c.publisher.SendRace(msg); err != nil {
		c.logger.Debug().Err(err).Msg("race telemetry send failed")
	}
}

// RaceTime returns the ticks elapsed between race start and finishLine
func (c *Controller) RaceTime(finishLine int64) int64 {
	return finishLine - c.ticksRaceStarted
}

// Status returns the authoritative race stage
func (c *Controller) Status() Status { return c.raceStatus }

// ReportedStatus returns the last status sent to listeners
func (c *Controller) ReportedStatus() Status { return c.lastRaceStatus }

// IsRacing reports whether the race is in Racing through Winner
func (c *Controller) IsRacing() bool { return c.raceStatus.IsRacing() }

// IsRacingOrPostRace reports whether the race has started
func (c *Controller) IsRacingOrPostRace() bool { return c.raceStatus.IsRacingOrPostRace() }

// IsInCountdown reports whether the race is in the Ready..Set (or ..Go) window
func (c *Controller) IsInCountdown(includeGo bool) bool {
	return c.raceStatus.IsInCountdown(includeGo)
}

// CarsFinished returns how many lanes completed the current race
func (c *Controller) CarsFinished() int { return c.carsFinished }

// TracksReady returns how many lanes signalled readiness
func (c *Controller) TracksReady() int { return c.tracksReady }

// StatusTrack returns the lane of the last winner or disqualification
func (c *Controller) StatusTrack() int { return c.trackStatusID }

// Track returns the lane with the given id, or nil
func (c *Controller) Track(id int) *Track {
	i := id - c.opts.TrackStart
	if i < 0 || i >= len(c.tracks) {
		return nil
	}
	return &c.tracks[i]
}

type discardPublisher struct{}

func (discardPublisher) SendRaw(string) error  { return nil }
func (discardPublisher) SendRace(string) error { return nil }
