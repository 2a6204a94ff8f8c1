package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/sadopc/beebar/internal/beeminder"
)

// DefaultDelays is the backoff between confirmation checks after the
// immediate one. Together with the immediate check the budget is about 110s.
var DefaultDelays = []time.Duration{
	5 * time.Second,
	15 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// Outcome is how a submission ended.
type Outcome int

const (
	// OutcomeConfirmed: a refresh showed the server had applied the write.
	OutcomeConfirmed Outcome = iota
	// OutcomeUnconfirmed: the backoff budget ran out without a match.
	OutcomeUnconfirmed
	// OutcomeCancelled: superseded, cancelled, or the engine shut down.
	OutcomeCancelled
	// OutcomeFailed: the write itself failed; no confirmation was attempted.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeUnconfirmed:
		return "unconfirmed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

// RefreshFunc fetches the goal list and applies it to the store.
type RefreshFunc func(ctx context.Context) ([]beeminder.Goal, error)

// Confirmer re-polls after a successful write until the recalculated goal is
// observed, the delays run out, or ctx is cancelled.
type Confirmer struct {
	Delays  []time.Duration
	Refresh RefreshFunc
	Logger  *slog.Logger
}

// Run checks once immediately, then once after each delay, then does one
// final refresh if nothing matched. It returns the outcome and the number of
// refreshes issued. Cancellation during a sleep returns at once without
// another network call.
func (c Confirmer) Run(ctx context.Context, previous beeminder.Goal, value float64) (Outcome, int) {
	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("goal", previous.Slug, "value", value)

	attempts := 0
	check := func() (matched, cancelled bool) {
		if ctx.Err() != nil {
			return false, true
		}
		attempts++
		goals, err := c.Refresh(ctx)
		if ctx.Err() != nil {
			return false, true
		}
		if err != nil {
			logger.Debug("confirmation refresh failed", "attempt", attempts, "err", err)
			return false, false
		}
		for _, g := range goals {
			if g.ID == previous.ID {
				return Matches(previous, g, value), false
			}
		}
		return false, false
	}

	matched, cancelled := check()
	if cancelled {
		return OutcomeCancelled, attempts
	}
	if matched {
		logger.Info("datapoint confirmed", "attempts", attempts)
		return OutcomeConfirmed, attempts
	}

	for _, d := range c.Delays {
		if !sleep(ctx, d) {
			return OutcomeCancelled, attempts
		}
		matched, cancelled = check()
		if cancelled {
			return OutcomeCancelled, attempts
		}
		if matched {
			logger.Info("datapoint confirmed", "attempts", attempts)
			return OutcomeConfirmed, attempts
		}
	}

	// Best effort: stop reporting the write as pending either way.
	matched, cancelled = check()
	switch {
	case cancelled:
		return OutcomeCancelled, attempts
	case matched:
		logger.Info("datapoint confirmed", "attempts", attempts)
		return OutcomeConfirmed, attempts
	}
	logger.Warn("datapoint not confirmed within budget", "attempts", attempts)
	return OutcomeUnconfirmed, attempts
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
