// Package repl holds the causal identifiers supplied by the replication layer.
// The value-set engine only compares them; it never generates them on its own.
package repl

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Cid is a change identifier: the logical timestamp of a change together with
// the server that originated it. Cids are totally ordered, timestamp first and
// server id second, so two servers never produce equal Cids.
type Cid struct {
	TS       time.Duration `json:"ts"`     // TS время изменения относительно Unix epoch
	ServerID uuid.UUID     `json:"s_uuid"` // ServerID идентификатор сервера-источника
}

// New creates a Cid from a server id and a timestamp since the Unix epoch.
func New(serverID uuid.UUID, ts time.Duration) Cid {
	return Cid{TS: ts, ServerID: serverID}
}

// NewZero returns the smallest possible Cid.
func NewZero() Cid {
	return Cid{}
}

// NewCount returns a Cid with a nil server id and the given timestamp.
// Mostly useful for tests and for trim cutoffs.
func NewCount(ts time.Duration) Cid {
	return Cid{TS: ts}
}

// Compare returns -1, 0 or +1 depending on whether c sorts before, equal to
// or after other.
func (c Cid) Compare(other Cid) int {
	switch {
	case c.TS < other.TS:
		return -1
	case c.TS > other.TS:
		return 1
	}
	return bytes.Compare(c.ServerID[:], other.ServerID[:])
}

// Less reports whether c sorts before other.
func (c Cid) Less(other Cid) bool {
	return c.Compare(other) < 0
}

// Equal reports whether c and other identify the same change.
func (c Cid) Equal(other Cid) bool {
	return c.TS == other.TS && c.ServerID == other.ServerID
}

// Time converts the Cid timestamp into a UTC instant.
func (c Cid) Time() time.Time {
	return time.Unix(0, 0).Add(c.TS).UTC()
}

// String implements fmt.Stringer.
func (c Cid) String() string {
	return fmt.Sprintf("%s-%024d", c.ServerID, c.TS.Nanoseconds())
}

// Parse reads a Cid in the format produced by String.
func Parse(s string) (Cid, error) {
	// 36 символов uuid, затем '-' и счетчик
	if len(s) < 38 || s[36] != '-' {
		return Cid{}, fmt.Errorf("invalid cid %q", s)
	}

	serverID, err := uuid.Parse(s[:36])
	if err != nil {
		return Cid{}, fmt.Errorf("invalid cid server id: %w", err)
	}

	ns, err := strconv.ParseInt(s[37:], 10, 64)
	if err != nil || ns < 0 {
		return Cid{}, fmt.Errorf("invalid cid timestamp %q", s[37:])
	}

	return New(serverID, time.Duration(ns)), nil
}
