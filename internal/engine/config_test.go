package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollConfigMinutes(t *testing.T) {
	assert.Equal(t, 5, PollConfig{}.Minutes())
	assert.Equal(t, 1, NewPollConfig(1).Minutes())
	assert.Equal(t, 15, NewPollConfig(15).Minutes())
	assert.Equal(t, 5, NewPollConfig(7).Minutes())
	assert.Equal(t, 10*time.Second, NewPollConfig(10).Interval(time.Second))
	assert.Equal(t, "every 10 min", NewPollConfig(10).String())
}

func TestParsePollConfig(t *testing.T) {
	for in, want := range map[string]int{"": 5, "0": 5, "-3": 5, "1": 1, "10": 10} {
		cfg, err := ParsePollConfig(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, cfg.Minutes(), in)
	}

	_, err := ParsePollConfig("7")
	assert.Error(t, err)
	_, err = ParsePollConfig("soon")
	assert.Error(t, err)
}

func TestClockMonotonic(t *testing.T) {
	c := NewClock()
	assert.Zero(t, c.Current())
	a := c.Next()
	b := c.Next()
	assert.EqualValues(t, 1, a)
	assert.Greater(t, b, a)
	assert.Equal(t, b, c.Current())
}
