package llmpass

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mvoss-dev/narrationcast/internal/provider"
	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// fakeLLMClient lets each test script the Extract/Assign call sequence.
type fakeLLMClient struct {
	mu          sync.Mutex
	extractCall func(callN int) (*provider.ExtractResponse, error)
	assignCall  func(callN int) (*provider.AssignResponse, error)
	extractN    int32
	assignN     int32
}

func (f *fakeLLMClient) Name() string { return "fake" }
func (f *fakeLLMClient) Close() error { return nil }

func (f *fakeLLMClient) Extract(ctx context.Context, req provider.ExtractRequest) (*provider.ExtractResponse, error) {
	n := int(atomic.AddInt32(&f.extractN, 1)) - 1
	return f.extractCall(n)
}

func (f *fakeLLMClient) Assign(ctx context.Context, req provider.AssignRequest) (*provider.AssignResponse, error) {
	n := int(atomic.AddInt32(&f.assignN, 1)) - 1
	return f.assignCall(n)
}

func blocksOf(n int) []types.TextBlock {
	blocks := make([]types.TextBlock, n)
	for i := range blocks {
		blocks[i] = types.TextBlock{
			BlockIndex:         i,
			SentenceStartIndex: i,
			Sentences:          []types.Sentence{{Index: i, Text: "Hello there."}},
		}
	}
	return blocks
}

func TestExtractAggregatesInBlockOrder(t *testing.T) {
	client := &fakeLLMClient{
		extractCall: func(callN int) (*provider.ExtractResponse, error) {
			return &provider.ExtractResponse{Characters: []types.Character{
				{CanonicalName: "Alice", Gender: types.GenderFemale},
			}}, nil
		},
	}
	runner := New(client, 2)

	results, err := runner.Extract(context.Background(), blocksOf(5), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 block results, got %d", len(results))
	}
	for i, r := range results {
		if len(r) != 1 || r[0].CanonicalName != "Alice" {
			t.Fatalf("block %d: unexpected result %+v", i, r)
		}
	}
}

func TestExtractRetriesMalformedResponseThenSucceeds(t *testing.T) {
	client := &fakeLLMClient{
		extractCall: func(callN int) (*provider.ExtractResponse, error) {
			if callN < 2 {
				return &provider.ExtractResponse{Characters: []types.Character{{CanonicalName: ""}}}, nil
			}
			return &provider.ExtractResponse{Characters: []types.Character{{CanonicalName: "Bob", Gender: types.GenderMale}}}, nil
		},
	}
	runner := New(client, 1)
	runner.strategy = &testFixed{delays: []int{0, 0, 0}}

	results, err := runner.Extract(context.Background(), blocksOf(1), nil, nil)
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if results[0][0].CanonicalName != "Bob" {
		t.Fatalf("unexpected result: %+v", results[0])
	}
}

func TestExtractFailsAfterExhaustingRetries(t *testing.T) {
	client := &fakeLLMClient{
		extractCall: func(callN int) (*provider.ExtractResponse, error) {
			return &provider.ExtractResponse{Characters: []types.Character{{CanonicalName: "X", Gender: "alien"}}}, nil
		},
	}
	runner := New(client, 1)
	runner.strategy = &testFixed{delays: []int{0, 0}}

	_, err := runner.Extract(context.Background(), blocksOf(1), nil, nil)
	if err == nil {
		t.Fatal("expected failure after exhausting retries")
	}
}

func TestAssignValidatesSpeakerAgainstCast(t *testing.T) {
	cast := []types.Character{{CanonicalName: "Narrator"}, {CanonicalName: "Alice"}}
	client := &fakeLLMClient{
		assignCall: func(callN int) (*provider.AssignResponse, error) {
			return &provider.AssignResponse{Assignments: []types.SpeakerAssignment{
				{SentenceIndex: 0, SpeakerCanonicalName: "Alice"},
			}}, nil
		},
	}
	runner := New(client, 2)

	results, err := runner.Assign(context.Background(), blocksOf(1), cast, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].SpeakerCanonicalName != "Alice" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestAssignRejectsUnknownSpeaker(t *testing.T) {
	cast := []types.Character{{CanonicalName: "Narrator"}}
	client := &fakeLLMClient{
		assignCall: func(callN int) (*provider.AssignResponse, error) {
			return &provider.AssignResponse{Assignments: []types.SpeakerAssignment{
				{SentenceIndex: 0, SpeakerCanonicalName: "Ghost"},
			}}, nil
		},
	}
	runner := New(client, 1)
	runner.strategy = &testFixed{delays: []int{0}}

	_, err := runner.Assign(context.Background(), blocksOf(1), cast, nil)
	if err == nil {
		t.Fatal("expected validation failure for unknown speaker")
	}
}

func TestProgressCallbackReportsEveryBlock(t *testing.T) {
	client := &fakeLLMClient{
		extractCall: func(callN int) (*provider.ExtractResponse, error) {
			return &provider.ExtractResponse{}, nil
		},
	}
	runner := New(client, 3)

	var mu sync.Mutex
	var seen []int
	_, err := runner.Extract(context.Background(), blocksOf(4), nil, func(completed, total int) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, completed)
		if total != 4 {
			t.Fatalf("expected total 4, got %d", total)
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 4 {
		t.Fatalf("expected 4 progress calls, got %d", len(seen))
	}
}

// testFixed is a minimal zero-delay retry.Strategy for deterministic tests.
type testFixed struct{ delays []int }

func (f *testFixed) MaxAttempts() int { return len(f.delays) }
func (f *testFixed) ShouldRetry(err error, attempt int) bool {
	if types.IsCancelled(err) {
		return false
	}
	return attempt < len(f.delays)
}
func (f *testFixed) DelayFor(attempt int) time.Duration { return 0 }
