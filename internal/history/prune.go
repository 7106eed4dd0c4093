package history

// Prune returns the transitions worth keeping at nowSecs. Entries in the
// future are always dropped. Entries older than RetentionSecs are dropped
// unless they are the last entry, which anchors the current state.
//
// When every entry lies in the future the result is empty.
func Prune(transitions []Transition, nowSecs int64) []Transition {
	kept := make([]Transition, 0, len(transitions))
	for i, t := range transitions {
		if t.WallTimeSecs > nowSecs {
			continue
		}
		if t.WallTimeSecs < nowSecs-RetentionSecs && i != len(transitions)-1 {
			continue
		}
		kept = append(kept, t)
	}
	return kept
}
