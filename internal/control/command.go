package control

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lanerace/racecontrol/internal/lane"
	"github.com/lanerace/racecontrol/internal/race"
	"github.com/lanerace/racecontrol/internal/telemetry"
)

// ErrUnknownCommand is returned for input that is neither a lane command
// nor a race stage
var ErrUnknownCommand = errors.New("unknown command")

// Target says where a parsed command goes
type Target int

const (
	// ToRace commands are queued for the race controller
	ToRace Target = iota + 1
	// ToLane commands are injected into a lane monitor
	ToLane
)

// Command is one parsed control line
type Command struct {
	Target Target
	Lane   int
	Event  lane.Event
	// Raw is the trimmed line, forwarded as-is for ToRace commands
	Raw string
}

// Parse reads one control line.
//
//	go | <stage ordinal> | <stage name>   race command
//	lap <lane> [count]                    lap(s) completed
//	offtrack <lane> on|off                car left or returned to the track
//	ready <lane>                          lane ready
//	dq <lane>                             disqualify lane
//	color <lane> #rrggbb                  color sensor change
func Parse(line string) (Command, error) {
	raw := strings.TrimSpace(line)
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty line", ErrUnknownCommand)
	}

	verb := strings.ToLower(fields[0])
	switch verb {
	case "lap", "offtrack", "ready", "dq", "disqualify", "color":
		return parseLaneCommand(verb, fields[1:])
	}

	if _, err := race.ParseStatus(raw); err != nil {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, raw)
	}
	return Command{Target: ToRace, Raw: raw}, nil
}

func parseLaneCommand(verb string, args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, fmt.Errorf("%s: missing lane", verb)
	}
	id, err := strconv.Atoi(args[0])
	if err != nil || id < 1 {
		return Command{}, fmt.Errorf("%s: invalid lane %q", verb, args[0])
	}

	cmd := Command{Target: ToLane, Lane: id}
	switch verb {
	case "lap":
		laps := 1
		if len(args) > 1 {
			laps, err = strconv.Atoi(args[1])
			if err != nil || laps < 1 {
				return Command{}, fmt.Errorf("lap: invalid count %q", args[1])
			}
		}
		cmd.Event = lane.Event{Kind: lane.LapCompleted, Laps: laps}
	case "offtrack":
		if len(args) < 2 {
			return Command{}, fmt.Errorf("offtrack: missing on|off")
		}
		on, err := parseSwitch(args[1])
		if err != nil {
			return Command{}, err
		}
		cmd.Event = lane.Event{Kind: lane.OffTrack, On: on}
	case "ready":
		cmd.Event = lane.Event{Kind: lane.Ready}
	case "dq", "disqualify":
		cmd.Event = lane.Event{Kind: lane.Disqualified}
	case "color":
		if len(args) < 2 {
			return Command{}, fmt.Errorf("color: missing #rrggbb")
		}
		rgb, err := parseHexColor(args[1])
		if err != nil {
			return Command{}, err
		}
		cmd.Event = lane.Event{Kind: lane.ColorChanged, Color: rgb}
	}
	return cmd, nil
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("offtrack: expected on|off, got %q", s)
}

func parseHexColor(s string) (telemetry.RGB, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return telemetry.RGB{}, fmt.Errorf("color: expected #rrggbb, got %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return telemetry.RGB{}, fmt.Errorf("color: expected #rrggbb, got %q", s)
	}
	return telemetry.RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}
