package engine

import (
	"fmt"
	"strconv"
	"time"
)

// DefaultIntervalMinutes applies when the configured interval is unset or
// not one of AllowedIntervals.
const DefaultIntervalMinutes = 5

// AllowedIntervals are the refresh intervals offered in settings, in minutes.
var AllowedIntervals = []int{1, 5, 10, 15}

// PollConfig is the polling configuration handed to the scheduler. The zero
// value means "default".
type PollConfig struct {
	IntervalMinutes int
}

func NewPollConfig(minutes int) PollConfig {
	return PollConfig{IntervalMinutes: minutes}
}

// Minutes returns the effective interval, falling back to the default for
// values outside the allowed set.
func (c PollConfig) Minutes() int {
	for _, m := range AllowedIntervals {
		if c.IntervalMinutes == m {
			return m
		}
	}
	return DefaultIntervalMinutes
}

// Interval scales Minutes by unit (time.Minute outside tests).
func (c PollConfig) Interval(unit time.Duration) time.Duration {
	return time.Duration(c.Minutes()) * unit
}

func (c PollConfig) String() string {
	return fmt.Sprintf("every %d min", c.Minutes())
}

// ParsePollConfig reads a persisted interval. Empty or non-positive input
// yields the default; other values outside the allowed set are an error.
func ParsePollConfig(s string) (PollConfig, error) {
	if s == "" {
		return PollConfig{}, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return PollConfig{}, fmt.Errorf("parse refresh interval %q: %w", s, err)
	}
	if n <= 0 {
		return PollConfig{}, nil
	}
	for _, m := range AllowedIntervals {
		if n == m {
			return PollConfig{IntervalMinutes: n}, nil
		}
	}
	return PollConfig{}, fmt.Errorf("refresh interval %d not one of %v", n, AllowedIntervals)
}
