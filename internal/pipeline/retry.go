package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"NewsCrawler/internal/limiter"
)

type taskState int

const (
	statePending taskState = iota
	stateAttempting
	stateExhausted
	stateAbandoned
)

// Outcome describes how a retried operation ended.
type Outcome struct {
	Attempts  int
	Exhausted bool
}

// Retries is the number of attempts after the first.
func (o Outcome) Retries() int {
	if o.Attempts == 0 {
		return 0
	}
	return o.Attempts - 1
}

// Retrier runs an operation once plus up to maxRetries more times while it
// fails transiently. Every attempt is preceded by a jittered delay.
type Retrier struct {
	maxRetries int
	jitter     limiter.Jitter
	logger     *slog.Logger
}

func NewRetrier(maxRetries int, jitter limiter.Jitter, logger *slog.Logger) *Retrier {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Retrier{
		maxRetries: maxRetries,
		jitter:     jitter,
		logger:     orDiscard(logger).With("component", "retry"),
	}
}

func (r *Retrier) MaxRetries() int {
	return r.maxRetries
}

// Do drives one task through Pending -> Attempting -> (done | Pending |
// Exhausted | Abandoned). Non-transient errors are returned as is; an
// exhausted budget wraps ErrRetriesExhausted around the last error.
func (r *Retrier) Do(ctx context.Context, target string, op func(context.Context) error) (Outcome, error) {
	var (
		out     Outcome
		lastErr error
		state   = statePending
	)
	for {
		switch state {
		case statePending:
			delay, err := r.jitter.Sleep(ctx)
			if err != nil {
				if lastErr == nil {
					lastErr = err
				}
				return out, fmt.Errorf("%s: cancelled after %d attempts: %w", target, out.Attempts, lastErr)
			}
			if out.Attempts > 0 {
				r.logger.Warn("retrying", "url", target, "attempt", out.Attempts+1,
					"delay", delay, "error", lastErr)
			}
			state = stateAttempting

		case stateAttempting:
			out.Attempts++
			lastErr = op(ctx)
			switch {
			case lastErr == nil:
				return out, nil
			case !IsTransient(lastErr):
				state = stateAbandoned
			case out.Attempts > r.maxRetries:
				state = stateExhausted
			default:
				state = statePending
			}

		case stateExhausted:
			out.Exhausted = true
			return out, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, out.Attempts, lastErr)

		case stateAbandoned:
			return out, lastErr
		}
	}
}
