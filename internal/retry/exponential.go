package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// Exponential implements base * multiplier^attempt capped at MaxDelay, with
// a finite attempt cap. It wraps cenkalti/backoff/v4's ExponentialBackOff
// for the actual interval arithmetic rather than hand-rolling it.
type Exponential struct {
	Base       time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	Attempts   int
}

// NewLLMExponential returns an exponential strategy sized for LLM API calls
// (the LLM pass runner uses NewLLMFixed instead): base 2s, multiplier 2,
// capped at 60s, up to 5 attempts.
func NewLLMExponential() *Exponential {
	return &Exponential{
		Base:       2 * time.Second,
		Multiplier: 2.0,
		MaxDelay:   60 * time.Second,
		Attempts:   5,
	}
}

func (e *Exponential) MaxAttempts() int { return e.Attempts }

func (e *Exponential) ShouldRetry(err error, attempt int) bool {
	if types.IsCancelled(err) {
		return false
	}
	return attempt < e.Attempts
}

func (e *Exponential) DelayFor(attempt int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     e.Base,
		RandomizationFactor: 0,
		Multiplier:          e.Multiplier,
		MaxInterval:         e.MaxDelay,
		MaxElapsedTime:      0, // disabled: this strategy tracks attempts, not elapsed wall time
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	var delay time.Duration
	for i := 0; i <= attempt; i++ {
		delay = b.NextBackOff()
	}
	if delay > e.MaxDelay {
		delay = e.MaxDelay
	}
	return delay
}
