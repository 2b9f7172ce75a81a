package race

import (
	"fmt"
	"strconv"
	"strings"
)

// Status is a race stage. The order of the constants is load-bearing:
// range checks compare ordinals, so never reorder without updating the
// helpers below.
type Status int

const (
	Waiting Status = iota
	PrepReadyToStart
	ReadyToStart
	Ready
	Set
	Go
	Racing
	// OffTrack is never stored as the race status; it only overlays
	// Racing in what gets reported.
	OffTrack
	FinalLap
	Winner
	ShowWinner
	Disqualify
)

// statusUnset marks that nothing has been reported yet
const statusUnset Status = -1

var statusNames = [...]string{
	"Waiting",
	"Prep Ready to Start",
	"Ready to Start",
	"Ready",
	"Set",
	"Go",
	"Racing",
	"Off-Track",
	"Final Lap",
	"Winner",
	"Show Winner",
	"Disqualify",
}

func (s Status) String() string {
	if s < Waiting || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// IsPreRace reports whether s is before Racing
func (s Status) IsPreRace() bool {
	return s < Racing
}

// IsRacing reports whether s is any racing stage, Racing through Winner
func (s Status) IsRacing() bool {
	return s >= Racing && s <= Winner
}

// IsRacingOrPostRace reports whether s is Racing or later
func (s Status) IsRacingOrPostRace() bool {
	return s >= Racing
}

// IsInCountdown reports whether s is Ready or later and before Go,
// or up to and including Go when includeGo is set
func (s Status) IsInCountdown(includeGo bool) bool {
	if s < Ready {
		return false
	}
	if includeGo {
		return s <= Go
	}
	return s < Go
}

// acceptsFinishers reports whether a lane reaching the final lap count
// finishes the race in stage s
func (s Status) acceptsFinishers() bool {
	return s >= FinalLap && s <= ShowWinner
}

// ParseStatus accepts a stage ordinal ("5") or name ("go", "Final Lap",
// "off-track"). Case, spaces, dashes and underscores are ignored in names.
func ParseStatus(text string) (Status, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return statusUnset, fmt.Errorf("empty status")
	}

	if n, err := strconv.Atoi(text); err == nil {
		s := Status(n)
		if s < Waiting || int(s) >= len(statusNames) {
			return statusUnset, fmt.Errorf("status ordinal %d out of range", n)
		}
		return s, nil
	}

	want := normalizeName(text)
	for i, name := range statusNames {
		if normalizeName(name) == want {
			return Status(i), nil
		}
	}
	return statusUnset, fmt.Errorf("unknown status %q", text)
}

func normalizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_':
			return -1
		}
		return r
	}, strings.ToLower(name))
}
