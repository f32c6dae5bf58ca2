package provider

import (
	"context"
	"testing"

	"github.com/mvoss-dev/narrationcast/internal/audiomerge"
	"github.com/mvoss-dev/narrationcast/pkg/types"
)

func TestStubLLMClientExtractReturnsNarrator(t *testing.T) {
	client := NewStubLLMClient(types.LLMProviderConfig{Name: "stub"})
	resp, err := client.Extract(context.Background(), ExtractRequest{BlockText: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Characters) != 1 || resp.Characters[0].CanonicalName != types.ReservedNarrator {
		t.Fatalf("expected a single Narrator character, got %+v", resp.Characters)
	}
}

func TestStubLLMClientAssignCoversEverySentence(t *testing.T) {
	client := NewStubLLMClient(types.LLMProviderConfig{Name: "stub"})
	sentences := []types.Sentence{{Index: 0, Text: "a"}, {Index: 1, Text: "b"}}

	resp, err := client.Assign(context.Background(), AssignRequest{Sentences: sentences})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Assignments) != len(sentences) {
		t.Fatalf("expected one assignment per sentence, got %d", len(resp.Assignments))
	}
}

func TestStubTTSConnectionLifecycleTransitionsState(t *testing.T) {
	conn := NewStubTTSConnection(types.TTSProviderConfig{Name: "stub"})
	if conn.State() != types.WorkerTerminated {
		t.Fatalf("expected initial state terminated, got %s", conn.State())
	}

	if err := conn.Open(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conn.State() != types.WorkerIdle {
		t.Fatalf("expected idle after open, got %s", conn.State())
	}

	fragment, err := conn.Send(context.Background(), types.SynthesisTask{PartIndex: 3, Text: "hello world"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fragment.PartIndex != 3 || len(fragment.Bytes) == 0 {
		t.Fatalf("expected non-empty audio for part 3, got %+v", fragment)
	}
	if conn.State() != types.WorkerIdle {
		t.Fatalf("expected idle after send completes, got %s", conn.State())
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conn.State() != types.WorkerTerminated {
		t.Fatalf("expected terminated after close, got %s", conn.State())
	}
}

func TestStubAudioBackendPassesNonWAVBytesThrough(t *testing.T) {
	backend := NewStubAudioBackend()

	available, err := backend.Load(context.Background())
	if err != nil || !available {
		t.Fatalf("expected backend to report available, got available=%v err=%v", available, err)
	}

	input := []byte("STUB_AUDIO:not a wav file")
	out, err := backend.Process(context.Background(), input, audiomerge.ProcessOptions{SilenceRemoval: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != string(input) {
		t.Fatalf("expected pass-through bytes, got %q", out)
	}
}
