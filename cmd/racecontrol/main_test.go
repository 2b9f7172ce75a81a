package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanerace/racecontrol/internal/config"
	"github.com/lanerace/racecontrol/internal/control"
	"github.com/lanerace/racecontrol/internal/lane"
	"github.com/lanerace/racecontrol/internal/race"
)

func newSimulation(t *testing.T, cfg *config.Config, dqLane int) (*simulation, *printPublisher, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	lanes := lane.NewBank(cfg.Race.TrackStart, cfg.Race.TrackCount)
	server := control.NewServer(cfg.Network.Control, lanes, zerolog.Nop())
	publisher := newPrintPublisher(&out)

	controller, err := race.New(race.OptionsFromConfig(cfg), race.Deps{
		Publisher: publisher,
		Monitors:  lanes.Monitors(),
		Inboxes:   []race.Inbox{server},
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	return &simulation{
		controller: controller,
		control:    server,
		steps:      buildScript(cfg, dqLane),
		interval:   int64(cfg.Timing.TickIntervalMs),
	}, publisher, &out
}

func TestBuildScript(t *testing.T) {
	cfg := config.Default()
	steps := buildScript(cfg, 0)

	var ready, laps int
	for _, s := range steps {
		switch {
		case !s.afterStart:
			ready++
		case len(s.line) > 4 && s.line[:4] == "lap ":
			laps++
		}
	}
	assert.Equal(t, cfg.Race.TrackCount, ready)
	assert.Equal(t, cfg.Race.TrackCount*cfg.Race.Laps, laps)

	for _, s := range steps {
		_, err := control.Parse(s.line)
		assert.NoError(t, err, "script line %q must parse", s.line)
	}
}

func TestSimulationRunsToResult(t *testing.T) {
	cfg := config.Default()
	sim, _, out := newSimulation(t, cfg, 0)

	end := sim.run()
	assert.Less(t, end, int64(maxSimTicks))

	snap := sim.controller.Snapshot()
	assert.Equal(t, race.ShowWinner.String(), snap.Status)
	assert.Equal(t, cfg.Race.TrackCount, snap.CarsFinished)
	assert.Equal(t, cfg.Race.TrackStart, snap.StatusTrack, "first lane wins")
	assert.NotEmpty(t, snap.RaceID)

	text := out.String()
	assert.Contains(t, text, `{ "status": "Racing" }`)
	assert.Contains(t, text, `{ "status": "Off-Track" }`)
	assert.Contains(t, text, `{ "track": 1, "finallap": 1 }`)
	assert.Contains(t, text, `{ "track": 1, "winner": 1 }`)
	assert.Contains(t, text, `{ "track": 2, "color": "#ff6600" }`)
}

func TestSimulationDisqualification(t *testing.T) {
	cfg := config.Default()
	sim, _, out := newSimulation(t, cfg, 2)

	sim.run()

	snap := sim.controller.Snapshot()
	assert.Equal(t, race.Disqualify.String(), snap.Status)
	assert.Equal(t, 2, snap.StatusTrack)
	assert.Contains(t, out.String(), `{ "track": 2, "disqualified": 2 }`)
}

func TestSimulationSingleLap(t *testing.T) {
	cfg := config.Default()
	cfg.Race.Laps = 1
	sim, _, _ := newSimulation(t, cfg, 0)

	sim.run()

	snap := sim.controller.Snapshot()
	assert.Equal(t, cfg.Race.TrackCount, snap.CarsFinished)
	assert.Equal(t, 1, snap.StatusTrack)
}

func TestPrintResults(t *testing.T) {
	var out bytes.Buffer
	printResults(&out, race.Snapshot{
		RaceID:      "2abc",
		Status:      "Show Winner",
		StatusTrack: 1,
		Tracks: []race.TrackSnapshot{
			{ID: 1, Lap: 3, Finished: true, RaceTicks: 7500},
			{ID: 2, Lap: 2},
		},
	}, 17520, 12)

	text := out.String()
	assert.Contains(t, text, "Results")
	assert.Contains(t, text, "* lane 1  laps 3  finished in 7500 ticks")
	assert.Contains(t, text, "  lane 2  laps 2  did not finish")
	assert.Contains(t, text, "12 messages")
}

func TestSimulateCommand(t *testing.T) {
	t.Setenv("RACECONTROL_CONFIG", "")
	t.Setenv("RACECONTROL_INDICATOR", "none")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs([]string{"simulate"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Results")
	assert.Contains(t, out.String(), "status Show Winner")
}

func TestRunTicksStopsOnContext(t *testing.T) {
	controller, err := race.New(race.OptionsFromConfig(config.Default()), race.Deps{Logger: zerolog.Nop()})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = runTicks(ctx, controller, time.Millisecond, make(chan error), zerolog.Nop())
	assert.NoError(t, err)
	assert.Equal(t, race.Waiting.String(), controller.Snapshot().Status)
}

func TestRunTicksReturnsServerError(t *testing.T) {
	controller, err := race.New(race.OptionsFromConfig(config.Default()), race.Deps{Logger: zerolog.Nop()})
	require.NoError(t, err)

	serveErr := make(chan error, 1)
	boom := errors.New("address already in use")
	serveErr <- boom

	err = runTicks(context.Background(), controller, time.Hour, serveErr, zerolog.Nop())
	assert.ErrorIs(t, err, boom)
}
