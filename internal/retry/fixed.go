package retry

import (
	"time"

	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// Fixed retries against an explicit delay schedule; the attempt count is the
// length of the schedule.
type Fixed struct {
	Delays []time.Duration
}

// NewLLMFixed returns the fixed-delay schedule used by the LLM pass runner:
// 1s, 3s, 5s, 10s, 30s, 60s, 120s, 300s, 600s.
func NewLLMFixed() *Fixed {
	return &Fixed{
		Delays: []time.Duration{
			1 * time.Second,
			3 * time.Second,
			5 * time.Second,
			10 * time.Second,
			30 * time.Second,
			60 * time.Second,
			120 * time.Second,
			300 * time.Second,
			600 * time.Second,
		},
	}
}

func (f *Fixed) MaxAttempts() int { return len(f.Delays) }

func (f *Fixed) ShouldRetry(err error, attempt int) bool {
	if types.IsCancelled(err) {
		return false
	}
	return attempt < len(f.Delays)
}

func (f *Fixed) DelayFor(attempt int) time.Duration {
	if attempt < 0 || attempt >= len(f.Delays) {
		return f.Delays[len(f.Delays)-1]
	}
	return f.Delays[attempt]
}
