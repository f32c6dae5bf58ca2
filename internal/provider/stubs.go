package provider

import (
	"bytes"
	"context"

	"github.com/go-audio/wav"

	"github.com/mvoss-dev/narrationcast/internal/audiomerge"
	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// StubLLMClient returns a single-character fallback response, used when no
// real LLM endpoint is configured (local development, unit tests).
type StubLLMClient struct {
	name   string
	config types.LLMProviderConfig
}

func NewStubLLMClient(config types.LLMProviderConfig) *StubLLMClient {
	return &StubLLMClient{name: config.Name, config: config}
}

func (s *StubLLMClient) Name() string { return s.name }
func (s *StubLLMClient) Close() error { return nil }

func (s *StubLLMClient) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	return &ExtractResponse{Characters: []types.Character{
		{CanonicalName: types.ReservedNarrator, Gender: types.GenderUnknown},
	}}, nil
}

func (s *StubLLMClient) Assign(ctx context.Context, req AssignRequest) (*AssignResponse, error) {
	assignments := make([]types.SpeakerAssignment, 0, len(req.Sentences))
	for _, sentence := range req.Sentences {
		assignments = append(assignments, types.SpeakerAssignment{
			SentenceIndex:        sentence.Index,
			SpeakerCanonicalName: types.ReservedNarrator,
		})
	}
	return &AssignResponse{Assignments: assignments}, nil
}

// StubTTSConnection returns deterministic placeholder audio without dialing
// a real websocket, used the same way as StubLLMClient.
type StubTTSConnection struct {
	config types.TTSProviderConfig
	state  types.WorkerState
}

func NewStubTTSConnection(config types.TTSProviderConfig) *StubTTSConnection {
	return &StubTTSConnection{config: config, state: types.WorkerTerminated}
}

func (s *StubTTSConnection) Open(ctx context.Context) error {
	s.state = types.WorkerIdle
	return nil
}

func (s *StubTTSConnection) Send(ctx context.Context, task types.SynthesisTask) (*types.AudioFragment, error) {
	s.state = types.WorkerWorking
	defer func() { s.state = types.WorkerIdle }()
	preview := task.Text
	if len(preview) > 16 {
		preview = preview[:16]
	}
	return &types.AudioFragment{
		PartIndex: task.PartIndex,
		Bytes:     []byte("STUB_AUDIO:" + preview),
	}, nil
}

func (s *StubTTSConnection) Close() error {
	s.state = types.WorkerTerminated
	return nil
}

func (s *StubTTSConnection) State() types.WorkerState { return s.state }

// StubAudioBackend is the default audiomerge.AudioBackend: Process is a
// pass-through that only validates the merged bytes decode as a well-formed
// WAV container before handing them back unchanged. Non-WAV output
// (mp3/opus formats) passes through untouched too. Real silence removal and
// loudness normalization belong to an external processing service.
type StubAudioBackend struct{}

func NewStubAudioBackend() *StubAudioBackend { return &StubAudioBackend{} }

func (s *StubAudioBackend) Load(ctx context.Context) (bool, error) { return true, nil }

func (s *StubAudioBackend) Process(ctx context.Context, chunks []byte, opts audiomerge.ProcessOptions) ([]byte, error) {
	decoder := wav.NewDecoder(bytes.NewReader(chunks))
	if !decoder.IsValidFile() {
		return chunks, nil
	}
	return chunks, nil
}
