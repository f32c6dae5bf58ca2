package retry

import (
	"time"

	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// Linear delays by base + increment*attempt, up to a finite attempt cap.
type Linear struct {
	Base      time.Duration
	Increment time.Duration
	Attempts  int
}

func (l *Linear) MaxAttempts() int { return l.Attempts }

func (l *Linear) ShouldRetry(err error, attempt int) bool {
	if types.IsCancelled(err) {
		return false
	}
	return attempt < l.Attempts
}

func (l *Linear) DelayFor(attempt int) time.Duration {
	return l.Base + l.Increment*time.Duration(attempt)
}
