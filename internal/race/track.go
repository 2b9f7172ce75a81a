package race

// Track is the controller's record of one lane
type Track struct {
	ID         int
	Lap        int
	IsOfftrack bool
	Finished   bool
	// FinishTicks is the tick at which the lane completed the race
	FinishTicks int64
}

// reset clears race results for a new race. Off-track is sensor state and
// survives.
func (t *Track) reset() {
	t.Lap = 0
	t.Finished = false
	t.FinishTicks = 0
}
