package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/gn-clipper/news-clipper/internal/domain"
	"github.com/gn-clipper/news-clipper/internal/logger"
)

// Policy describes bounded exponential backoff with jitter.
type Policy struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
	Jitter      float64       `mapstructure:"jitter"`
}

// DefaultPolicy is used wherever a component has no explicit retry settings.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    60 * time.Second,
		Multiplier:  2,
		Jitter:      0.2,
	}
}

// Classifier reports whether an error should be retried.
type Classifier func(error) bool

// Retrier applies a Policy to an operation.
type Retrier struct {
	policy      Policy
	isRetryable Classifier
	log         logger.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// New builds a Retrier. A nil classifier retries domain.TransientError only.
func New(policy Policy, classifier Classifier, log logger.Logger) *Retrier {
	if classifier == nil {
		classifier = domain.IsTransient
	}
	return &Retrier{
		policy:      policy.normalized(),
		isRetryable: classifier,
		log:         logger.Ensure(log),
		sleep:       sleepCtx,
	}
}

// Policy returns the effective policy.
func (r *Retrier) Policy() Policy { return r.policy }

// Do runs op until it succeeds, fails with a non-retryable error, exhausts the attempts,
// or ctx is done. The last error is returned wrapped.
func (r *Retrier) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	var (
		lastErr error
		bo      = r.backOff()
	)
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 1 {
				r.log.InfoObj("operation succeeded after retry", "retry_success", map[string]any{
					"operation": name,
					"attempt":   attempt,
				})
			}
			return nil
		}

		retryable := r.isRetryable(lastErr)
		if !retryable {
			return lastErr
		}
		if attempt == r.policy.MaxAttempts {
			break
		}

		delay := bo.NextBackOff()
		r.log.WarnObj("operation attempt failed, backing off", "retry_backoff", map[string]any{
			"operation": name,
			"attempt":   attempt,
			"delay_ms":  delay.Milliseconds(),
			"error":     lastErr.Error(),
		})
		if err := r.sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s retry cancelled: %w (last error: %w)", name, err, lastErr)
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, r.policy.MaxAttempts, lastErr)
}

// backOff builds a fresh exponential schedule for one Do call.
func (r *Retrier) backOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.policy.BaseDelay
	bo.Multiplier = r.policy.Multiplier
	bo.RandomizationFactor = r.policy.Jitter
	bo.MaxInterval = r.policy.MaxDelay
	if bo.MaxInterval <= 0 {
		bo.MaxInterval = time.Duration(math.MaxInt64)
	}
	bo.Reset()
	return bo
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = def.Jitter
	}
	return p
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
