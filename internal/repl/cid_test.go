package repl

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCid_Compare(t *testing.T) {
	serverA := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	serverB := uuid.MustParse("00000000-0000-0000-0000-00000000000b")

	tests := []struct {
		name     string
		self     Cid
		other    Cid
		expected int
	}{
		{
			name:     "timestamp smaller",
			self:     New(serverB, 1),
			other:    New(serverA, 2),
			expected: -1,
		},
		{
			name:     "timestamp greater",
			self:     New(serverA, 3),
			other:    New(serverB, 2),
			expected: 1,
		},
		{
			name:     "equal timestamps, server id breaks tie",
			self:     New(serverA, 2),
			other:    New(serverB, 2),
			expected: -1,
		},
		{
			name:     "identical",
			self:     New(serverA, 2),
			other:    New(serverA, 2),
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.self.Compare(tt.other))
			assert.Equal(t, -tt.expected, tt.other.Compare(tt.self))
			assert.Equal(t, tt.expected < 0, tt.self.Less(tt.other))
			assert.Equal(t, tt.expected == 0, tt.self.Equal(tt.other))
		})
	}
}

func TestCid_Time(t *testing.T) {
	c := NewCount(90 * time.Second)

	assert.Equal(t, time.Date(1970, 1, 1, 0, 1, 30, 0, time.UTC), c.Time())
	assert.Equal(t, time.UTC, c.Time().Location())
}

func TestCid_ParseRoundTrip(t *testing.T) {
	c := New(uuid.New(), 1234567*time.Millisecond)

	parsed, err := Parse(c.String())
	require.NoError(t, err)
	assert.True(t, c.Equal(parsed))
}

func TestParse_Invalid(t *testing.T) {
	for _, s := range []string{"", "nope", uuid.New().String() + "-abc", uuid.New().String() + "--1"} {
		_, err := Parse(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestTrimCutoff(t *testing.T) {
	now := time.Unix(1_000_000, 0)

	cutoff := TrimCutoff(now, time.Hour)
	assert.Equal(t, (1_000_000*time.Second)-time.Hour, cutoff.TS)
	assert.Equal(t, uuid.Nil, cutoff.ServerID)

	// Окно больше, чем прошло с epoch, - cutoff не уходит в минус
	assert.Equal(t, NewZero(), TrimCutoff(time.Unix(10, 0), time.Hour))
}
