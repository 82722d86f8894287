package streams

// Notable decides if $next has to be announced. $prev is the snapshot of the
// last announcement, nil if the streamer was never seen live.
func Notable(prev *Snapshot, next Snapshot) bool {
	if !next.Live {
		return false
	}
	if prev == nil || !prev.Live {
		return true
	}
	return prev.Title != next.Title || prev.Category != next.Category
}

// Observe runs Notable and returns the baseline to keep for the next comparison.
// The baseline moves on notable snapshots and when the streamer goes offline.
func Observe(prev *Snapshot, next Snapshot) (bool, *Snapshot) {
	notable := Notable(prev, next)
	if notable || !next.Live {
		return notable, &next
	}
	return false, prev
}
