// Package llmpass runs the two LLM passes, Extract and Assign, each
// dispatching text blocks to a bounded concurrency pool with per-block
// retries driven by the retry engine.
package llmpass

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mvoss-dev/narrationcast/internal/metrics"
	"github.com/mvoss-dev/narrationcast/internal/provider"
	"github.com/mvoss-dev/narrationcast/internal/retry"
	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// ProgressFunc is invoked after each block completes (success or exhausted
// failure) with the running completed count and the pass total.
type ProgressFunc func(completed, total int)

// Runner drives the Extract and Assign passes over a set of text blocks.
type Runner struct {
	client      provider.LLMClient
	concurrency int
	strategy    retry.Strategy
}

// New builds a pass runner bound to one LLM client. concurrency is clamped
// to [1, 10], matching the llmThreads configuration range.
func New(client provider.LLMClient, concurrency int) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > 10 {
		concurrency = 10
	}
	return &Runner{
		client:      client,
		concurrency: concurrency,
		strategy:    retry.NewLLMFixed(),
	}
}

// blockResult pairs a block's ordinal position with its outcome, so results
// can be reassembled in block order even though dispatch is unordered.
type blockResult[T any] struct {
	index int
	value T
	err   error
}

// Extract runs the character-extraction pass over every block, returning one
// Character list per block in block order. knownCast grows as blocks are
// known to complete is not required here: each block only ever sees the
// cast known before the pass started, per the aggregator's block-local
// extraction contract.
func (r *Runner) Extract(ctx context.Context, blocks []types.TextBlock, knownCast []string, progress ProgressFunc) ([][]types.Character, error) {
	results := make([][]types.Character, len(blocks))
	var completed int
	var mu sync.Mutex

	err := r.runBounded(ctx, len(blocks), func(ctx context.Context, i int) error {
		block := blocks[i]
		var resp *provider.ExtractResponse
		started := time.Now()
		call := 0
		opErr := retry.Execute(ctx, r.strategy, func(ctx context.Context) error {
			if call > 0 {
				metrics.LLMRetries.WithLabelValues("extract").Inc()
			}
			call++
			var callErr error
			resp, callErr = r.client.Extract(ctx, provider.ExtractRequest{
				BlockText: joinSentences(block.Sentences),
				KnownCast: knownCast,
			})
			if callErr != nil {
				return callErr
			}
			return validateExtractResponse(resp)
		})
		metrics.LLMBlockDuration.WithLabelValues("extract").Observe(time.Since(started).Seconds())

		mu.Lock()
		completed++
		if progress != nil {
			progress(completed, len(blocks))
		}
		mu.Unlock()

		if opErr != nil {
			return fmt.Errorf("block %d: %w", block.BlockIndex, wrapLLMError(opErr))
		}
		results[i] = resp.Characters
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Assign runs the speaker-assignment pass over every block against the
// already-resolved cast, returning the flattened, sentence-ordered
// assignment list.
func (r *Runner) Assign(ctx context.Context, blocks []types.TextBlock, cast []types.Character, progress ProgressFunc) ([]types.SpeakerAssignment, error) {
	results := make([][]types.SpeakerAssignment, len(blocks))
	var completed int
	var mu sync.Mutex

	err := r.runBounded(ctx, len(blocks), func(ctx context.Context, i int) error {
		block := blocks[i]
		var resp *provider.AssignResponse
		started := time.Now()
		call := 0
		opErr := retry.Execute(ctx, r.strategy, func(ctx context.Context) error {
			if call > 0 {
				metrics.LLMRetries.WithLabelValues("assign").Inc()
			}
			call++
			var callErr error
			resp, callErr = r.client.Assign(ctx, provider.AssignRequest{
				BlockText: joinSentences(block.Sentences),
				Sentences: block.Sentences,
				Cast:      cast,
			})
			if callErr != nil {
				return callErr
			}
			return validateAssignResponse(resp, block, cast)
		})
		metrics.LLMBlockDuration.WithLabelValues("assign").Observe(time.Since(started).Seconds())

		mu.Lock()
		completed++
		if progress != nil {
			progress(completed, len(blocks))
		}
		mu.Unlock()

		if opErr != nil {
			return fmt.Errorf("block %d: %w", block.BlockIndex, wrapLLMError(opErr))
		}
		results[i] = resp.Assignments
		return nil
	})
	if err != nil {
		return nil, err
	}

	var flattened []types.SpeakerAssignment
	for _, perBlock := range results {
		flattened = append(flattened, perBlock...)
	}
	return flattened, nil
}

// runBounded dispatches n independent block calls to r.concurrency workers,
// aborting on the first block that fails after exhausting retries (or on
// cancellation) and returning that error.
func (r *Runner) runBounded(ctx context.Context, n int, call func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, r.concurrency)
	errCh := make(chan error, n)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		select {
		case <-runCtx.Done():
			errCh <- types.NewConversionError(types.ErrConversionCancelled, "llm pass cancelled before dispatch", runCtx.Err())
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := call(runCtx, i); err != nil {
				errCh <- err
				cancel() // stop dispatching further blocks once one has failed for good
			}
		}(i)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		return err
	}
	return nil
}

func joinSentences(sentences []types.Sentence) string {
	var sb []byte
	for i, s := range sentences {
		if i > 0 {
			sb = append(sb, '\n')
		}
		sb = append(sb, []byte(fmt.Sprintf("%d: %s", s.Index, s.Text))...)
	}
	return string(sb)
}

// wrapLLMError tags a bare transport error with the LLM_API_ERROR kind when
// it is not already one of the taxonomy's ConversionError kinds, so the
// pipeline runner can uniformly branch on Kind.
func wrapLLMError(err error) error {
	if _, ok := err.(*types.ConversionError); ok {
		return err
	}
	return types.NewConversionError(types.ErrLLMAPIError, "llm call failed", err)
}
