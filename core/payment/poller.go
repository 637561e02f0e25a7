package payment

import (
	"context"
	"time"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxPolls     = 60

	// PollTimeout is reported when the poller gives up before a terminal status.
	PollTimeout = "timeout"
)

// PollResult is handed to the poller's done callback: Status is completed, failed or timeout.
type PollResult struct {
	Status string
	Polls  int
	Err    error // last check error, if any
}

// Poller calls a status check on a fixed interval until it reports a settled status.
type Poller struct {
	Interval time.Duration
	MaxPolls int
}

func NewPoller(interval time.Duration, maxPolls int) Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}
	return Poller{Interval: interval, MaxPolls: maxPolls}
}

// Run blocks until check returns completed or failed, MaxPolls checks ran without one, or ctx is done.
// done is called exactly once in the first two cases and never when ctx ends the run.
// Check errors count as a non-terminal poll.
func (p Poller) Run(ctx context.Context, check func(ctx context.Context) (string, error), done func(PollResult)) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	var lastErr error
	for polls := 1; polls <= p.MaxPolls; polls++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status, err := check(ctx)
		if ctx.Err() != nil {
			return
		}
		lastErr = err
		if err == nil && (status == StatusCompleted || status == StatusFailed) {
			done(PollResult{Status: status, Polls: polls})
			return
		}
	}
	done(PollResult{Status: PollTimeout, Polls: p.MaxPolls, Err: lastErr})
}
