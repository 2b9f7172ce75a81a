package main

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/lanerace/racecontrol/internal/config"
	"github.com/lanerace/racecontrol/internal/control"
	"github.com/lanerace/racecontrol/internal/indicator"
	"github.com/lanerace/racecontrol/internal/lane"
	"github.com/lanerace/racecontrol/internal/logging"
	"github.com/lanerace/racecontrol/internal/race"
)

const (
	lapSpacingTicks  = 2500
	laneSpacingTicks = 300
	maxSimTicks      = 10 * 60 * 1000
)

var (
	simRealtime bool
	simDQLane   int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a scripted race through the controller and print the telemetry",
	Long: `simulate drives the controller on a virtual clock with a scripted race:
every lane signals ready, one car leaves the track briefly, then the lanes
complete their laps in order. Telemetry is printed instead of broadcast.`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().BoolVar(&simRealtime, "realtime", false, "sleep one tick interval between ticks")
	simulateCmd.Flags().IntVar(&simDQLane, "dq", 0, "disqualify this lane during the race")
}

// printPublisher writes telemetry to the terminal
type printPublisher struct {
	out   io.Writer
	raw   lipgloss.Style
	race  lipgloss.Style
	count int
}

func newPrintPublisher(out io.Writer) *printPublisher {
	r := lipgloss.NewRenderer(out)
	return &printPublisher{
		out:  out,
		raw:  r.NewStyle().Foreground(lipgloss.Color("6")),
		race: r.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
	}
}

func (p *printPublisher) SendRaw(msg string) error {
	p.count++
	_, err := fmt.Fprintf(p.out, "%s %s\n", p.raw.Render("raw "), msg)
	return err
}

func (p *printPublisher) SendRace(msg string) error {
	p.count++
	_, err := fmt.Fprintf(p.out, "%s %s\n", p.race.Render("race"), msg)
	return err
}

// scriptStep is one control line submitted at a tick. Steps marked
// afterStart are timed from the tick the race started.
type scriptStep struct {
	at         int64
	afterStart bool
	line       string
}

// buildScript lays out a race where lanes finish in lane order
func buildScript(cfg *config.Config, dqLane int) []scriptStep {
	start, count, laps := cfg.Race.TrackStart, cfg.Race.TrackCount, cfg.Race.Laps

	var steps []scriptStep
	for i := 0; i < count; i++ {
		steps = append(steps, scriptStep{at: 500 + int64(i)*200, line: fmt.Sprintf("ready %d", start+i)})
	}

	last := start + count - 1
	steps = append(steps,
		scriptStep{at: 1200, afterStart: true, line: fmt.Sprintf("offtrack %d on", last)},
		scriptStep{at: 1400, afterStart: true, line: fmt.Sprintf("color %d #ff6600", last)},
		scriptStep{at: 1800, afterStart: true, line: fmt.Sprintf("offtrack %d off", last)},
	)

	if dqLane > 0 {
		steps = append(steps, scriptStep{at: lapSpacingTicks + 100, afterStart: true, line: fmt.Sprintf("dq %d", dqLane)})
	}

	for lap := 1; lap <= laps; lap++ {
		for i := 0; i < count; i++ {
			steps = append(steps, scriptStep{
				at:         int64(lap)*lapSpacingTicks + int64(i)*laneSpacingTicks,
				afterStart: true,
				line:       fmt.Sprintf("lap %d", start+i),
			})
		}
	}
	return steps
}

// simulation runs a script against a controller on a virtual clock
type simulation struct {
	controller *race.Controller
	control    *control.Server
	steps      []scriptStep
	interval   int64
	realtime   bool
}

// run ticks until every lane finished, a lane was disqualified or the
// time limit passed. It returns the final tick.
func (s *simulation) run() int64 {
	var startedAt int64 = -1
	next := 0

	for now := int64(0); now <= maxSimTicks; now += s.interval {
		for next < len(s.steps) {
			step := s.steps[next]
			if step.afterStart && startedAt < 0 {
				break
			}
			at := step.at
			if step.afterStart {
				at += startedAt
			}
			if at > now {
				break
			}
			s.control.Submit(step.line)
			next++
		}

		s.controller.Tick(now)

		if startedAt < 0 && s.controller.IsRacing() {
			startedAt = now
		}
		snap := s.controller.Snapshot()
		if s.controller.Status() == race.Disqualify || snap.CarsFinished == len(snap.Tracks) {
			return now
		}

		if s.realtime {
			time.Sleep(time.Duration(s.interval) * time.Millisecond)
		}
	}
	return maxSimTicks
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, logCloser, err := logging.New(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logCloser.Close()

	out := cmd.OutOrStdout()
	ind, err := indicator.New(cfg.Indicator.Kind, out)
	if err != nil {
		return err
	}

	lanes := lane.NewBank(cfg.Race.TrackStart, cfg.Race.TrackCount)
	controlServer := control.NewServer(cfg.Network.Control, lanes, logger)
	defer controlServer.Close()

	publisher := newPrintPublisher(out)
	controller, err := race.New(race.OptionsFromConfig(cfg), race.Deps{
		Indicator: ind,
		Publisher: publisher,
		Monitors:  lanes.Monitors(),
		Inboxes:   []race.Inbox{controlServer},
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	sim := &simulation{
		controller: controller,
		control:    controlServer,
		steps:      buildScript(cfg, simDQLane),
		interval:   int64(cfg.Timing.TickIntervalMs),
		realtime:   simRealtime,
	}
	end := sim.run()

	printResults(out, controller.Snapshot(), end, publisher.count)
	return nil
}

func printResults(out io.Writer, snap race.Snapshot, end int64, messages int) {
	r := lipgloss.NewRenderer(out)
	header := r.NewStyle().Bold(true).Underline(true)

	fmt.Fprintln(out)
	fmt.Fprintln(out, header.Render("Results"))
	fmt.Fprintf(out, "race %s  status %s  after %d ticks  %d messages\n", snap.RaceID, snap.Status, end, messages)
	for _, t := range snap.Tracks {
		result := "did not finish"
		if t.Finished {
			result = fmt.Sprintf("finished in %d ticks", t.RaceTicks)
		}
		marker := " "
		if t.ID == snap.StatusTrack {
			marker = "*"
		}
		fmt.Fprintf(out, "%s lane %d  laps %d  %s\n", marker, t.ID, t.Lap, result)
	}
}
