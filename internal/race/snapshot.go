package race

// Snapshot is a read-only copy of the race state taken at the end of a tick
type Snapshot struct {
	RaceID         string          `json:"raceId,omitempty"`
	Tick           int64           `json:"tick"`
	Status         string          `json:"status"`
	ReportedStatus string          `json:"reportedStatus"`
	Laps           int             `json:"laps"`
	TracksReady    int             `json:"tracksReady"`
	CarsFinished   int             `json:"carsFinished"`
	StatusTrack    int             `json:"statusTrack,omitempty"`
	RaceTicks      int64           `json:"raceTicks"`
	Tracks         []TrackSnapshot `json:"tracks"`
}

// TrackSnapshot is one lane in a Snapshot
type TrackSnapshot struct {
	ID        int   `json:"id"`
	Lap       int   `json:"lap"`
	OffTrack  bool  `json:"offTrack"`
	Finished  bool  `json:"finished"`
	RaceTicks int64 `json:"raceTicks,omitempty"`
}

func (c *Controller) buildSnapshot() *Snapshot {
	reported := c.lastRaceStatus
	if reported == statusUnset {
		reported = c.raceStatus
	}

	snap := &Snapshot{
		RaceID:         c.raceID,
		Tick:           c.now,
		Status:         c.raceStatus.String(),
		ReportedStatus: reported.String(),
		Laps:           c.opts.Laps,
		TracksReady:    c.tracksReady,
		CarsFinished:   c.carsFinished,
		StatusTrack:    c.trackStatusID,
		Tracks:         make([]TrackSnapshot, len(c.tracks)),
	}
	if c.raceStatus.IsRacing() {
		snap.RaceTicks = c.RaceTime(c.now)
	}

	for i, t := range c.tracks {
		ts := TrackSnapshot{
			ID:       t.ID,
			Lap:      t.Lap,
			OffTrack: t.IsOfftrack,
			Finished: t.Finished,
		}
		if t.Finished {
			ts.RaceTicks = c.RaceTime(t.FinishTicks)
		}
		snap.Tracks[i] = ts
	}
	return snap
}

func (c *Controller) publishSnapshot() {
	c.snapshot.Store(c.buildSnapshot())
}

// Snapshot returns the state published by the last Tick. It is safe to
// call from any goroutine.
func (c *Controller) Snapshot() Snapshot {
	if snap := c.snapshot.Load(); snap != nil {
		return *snap
	}
	return Snapshot{
		Status:         Waiting.String(),
		ReportedStatus: Waiting.String(),
		Laps:           c.opts.Laps,
		Tracks:         []TrackSnapshot{},
	}
}
