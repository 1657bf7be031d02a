package repl

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock issues strictly increasing Cids for one server. It follows the
// Lamport rule: local time never moves backwards and remote Cids push it
// forward. The engine never calls it; it serves the CLI and tests.
type Clock struct {
	now      func() time.Time
	last     time.Duration // последний выданный timestamp
	serverID uuid.UUID     // уникальный идентификатор сервера
	mu       sync.Mutex
}

// NewClock creates a clock with a random server id.
func NewClock() *Clock {
	return NewClockWithServerID(uuid.New())
}

// NewClockWithServerID creates a clock for a known server id. Used when the
// server id comes from configuration or in tests.
func NewClockWithServerID(serverID uuid.UUID) *Clock {
	return &Clock{
		now:      time.Now,
		serverID: serverID,
	}
}

// Tick returns a new Cid that is greater than every Cid issued or observed before.
func (c *Clock) Tick() Cid {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.now().Sub(time.Unix(0, 0))
	if ts <= c.last {
		ts = c.last + 1
	}
	c.last = ts

	return New(c.serverID, ts)
}

// Update moves the clock forward after observing a Cid from another server.
// counter = max(local, remote) + 1
func (c *Clock) Update(remote Cid) Cid {
	c.mu.Lock()
	defer c.mu.Unlock()

	if remote.TS > c.last {
		c.last = remote.TS
	}
	c.last++

	return New(c.serverID, c.last)
}

// ServerID returns the server id the clock stamps into every Cid.
func (c *Clock) ServerID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.serverID
}

// Last returns the timestamp of the newest Cid issued or observed.
func (c *Clock) Last() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.last
}

// Restore sets the last issued timestamp, e.g. after a restart.
func (c *Clock) Restore(last time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.last = last
}
