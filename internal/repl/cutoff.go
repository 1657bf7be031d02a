package repl

import "time"

// DefaultChangelogMaxAge is how long a revocation must be kept before every
// replica is assumed to have seen it.
const DefaultChangelogMaxAge = 7 * 24 * time.Hour

// TrimCutoff returns the Cid below which revocation tombstones can be
// forgotten: now minus the changelog window, with a nil server id so that
// every server's changes at exactly that instant are kept.
func TrimCutoff(now time.Time, maxAge time.Duration) Cid {
	ts := now.Sub(time.Unix(0, 0)) - maxAge
	if ts < 0 {
		ts = 0
	}
	return NewCount(ts)
}
