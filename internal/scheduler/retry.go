package scheduler

import (
	"context"
	"errors"
	"time"

	"SignalSentinel/internal/analyzer"
	"SignalSentinel/internal/collector"
	"SignalSentinel/internal/config"
	"SignalSentinel/internal/notifier"

	"github.com/rs/zerolog"
)

// retry runs fn up to policy.MaxAttempts times with exponential backoff.
// Only temporary fetch and notification failures are retried. Waiting stops
// early when ctx ends or the scheduler starts draining.
func (s *Scheduler) retry(ctx context.Context, policy config.Retry, op string, log zerolog.Logger, fn func(context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts-1 || !retryable(err) {
			break
		}

		wait := backoff(policy, i)
		s.metrics.RecordRetry(op)
		log.Warn().Err(err).
			Str("op", op).
			Int("attempt", i+1).
			Int("max_attempts", attempts).
			Dur("backoff", wait).
			Msg("step failed, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-s.drain:
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

// backoff returns base * 2^attempt, capped at the policy maximum.
func backoff(policy config.Retry, attempt int) time.Duration {
	d := policy.BaseDelay << uint(attempt)
	if policy.MaxDelay > 0 && (d > policy.MaxDelay || d <= 0) {
		d = policy.MaxDelay
	}
	return d
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ae *analyzer.AnalysisError
	if errors.As(err, &ae) {
		return false
	}
	var fe *collector.FetchError
	if errors.As(err, &fe) {
		return fe.Temporary
	}
	var ne *notifier.NotificationError
	if errors.As(err, &ne) {
		return ne.Temporary
	}
	return true
}
