package attendance

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/waqasmani/hris-autoclock/internal/config"
)

// loginBackoff spaces out login attempts after consecutive failures. A
// disabled policy always allows the next attempt.
type loginBackoff struct {
	policy    *backoff.ExponentialBackOff
	notBefore time.Time
	failures  int
}

func newLoginBackoff(cfg config.BackoffConfig) *loginBackoff {
	if !cfg.Enabled {
		return &loginBackoff{}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	b.Multiplier = cfg.Multiplier
	b.RandomizationFactor = cfg.Randomization
	b.MaxElapsedTime = 0
	b.Reset()

	return &loginBackoff{policy: b}
}

func (b *loginBackoff) Ready(now time.Time) bool {
	return b.policy == nil || !now.Before(b.notBefore)
}

// Failed records a failed login at now and returns the delay before the next
// attempt is allowed.
func (b *loginBackoff) Failed(now time.Time) time.Duration {
	b.failures++
	if b.policy == nil {
		return 0
	}
	d := b.policy.NextBackOff()
	if d == backoff.Stop {
		d = b.policy.MaxInterval
	}
	b.notBefore = now.Add(d)
	return d
}

func (b *loginBackoff) Succeeded() {
	b.failures = 0
	b.notBefore = time.Time{}
	if b.policy != nil {
		b.policy.Reset()
	}
}

// NextAttempt returns when the next login is allowed, nil when it already is.
func (b *loginBackoff) NextAttempt(now time.Time) *time.Time {
	if b.Ready(now) {
		return nil
	}
	t := b.notBefore
	return &t
}
