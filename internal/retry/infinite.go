package retry

import (
	"time"

	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// Infinite is the TTS retry strategy: unbounded attempts, only cancellation
// terminates the loop. Delay schedule is 10s, 30s, then 30s * 3^(n-1),
// capped at 10 minutes.
type Infinite struct {
	MaxDelay time.Duration
}

func NewTTSInfinite() *Infinite {
	return &Infinite{MaxDelay: 10 * time.Minute}
}

func (i *Infinite) MaxAttempts() int { return 0 }

func (i *Infinite) ShouldRetry(err error, attempt int) bool {
	return !types.IsCancelled(err)
}

func (i *Infinite) DelayFor(attempt int) time.Duration {
	var delay time.Duration
	switch {
	case attempt == 0:
		delay = 10 * time.Second
	case attempt == 1:
		delay = 30 * time.Second
	default:
		delay = 30 * time.Second
		for n := 0; n < attempt-1 && delay < i.MaxDelay; n++ {
			delay *= 3
		}
	}
	if delay > i.MaxDelay {
		delay = i.MaxDelay
	}
	return delay
}
