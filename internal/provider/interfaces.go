package provider

import (
	"context"
	"strings"

	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// LLMClient is the transport contract consumed by the LLM pass runner.
// A single client is shared across concurrent Extract/Assign calls; the
// concrete implementation is responsible for its own connection pooling.
type LLMClient interface {
	Name() string

	// Extract runs the character-extraction pass over one text block,
	// returning the characters it found (with their Narrator/System
	// entries only ever implied, never invented by the caller).
	Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error)

	// Assign runs the speaker-assignment pass over one text block against
	// the already-aggregated cast, returning one assignment per sentence.
	Assign(ctx context.Context, req AssignRequest) (*AssignResponse, error)

	Close() error
}

// ExtractRequest carries one block's text plus the already-known cast so the
// model reuses existing names instead of inventing variants.
type ExtractRequest struct {
	BlockText  string
	KnownCast  []string
	Language   string
}

type ExtractResponse struct {
	Characters []types.Character
}

// AssignRequest carries one block's sentences plus the full resolved cast.
type AssignRequest struct {
	BlockText string
	Sentences []types.Sentence
	Cast      []types.Character
}

type AssignResponse struct {
	Assignments []types.SpeakerAssignment
}

// TTSConnection is one persistent, stateful synthesis connection owned by a
// single pool worker. Open must be called before Send; Close releases the
// underlying transport. State reports the worker state machine position
// (idle/working/reconnecting/terminated) the owning worker should reflect.
type TTSConnection interface {
	Open(ctx context.Context) error
	Send(ctx context.Context, task types.SynthesisTask) (*types.AudioFragment, error)
	Close() error
	State() types.WorkerState
}

// TTSConnectionFactory builds a fresh TTSConnection. The worker pool calls it
// once per worker; a worker reconnects by closing and reopening that same
// connection rather than building a new one.
type TTSConnectionFactory func() (TTSConnection, error)

// Voice describes one catalog entry as reported by a TTS provider's voice
// listing, prior to conversion into types.Voice by the voice pool builder.
type Voice struct {
	ID          string
	Name        string
	Languages   []string
	Gender      string
	Accent      string
	Description string
}

// ToVoiceCatalog converts a provider's raw voice listing into the catalog
// shape the voice pool and voice assigner consume. An unrecognized
// or empty gender string becomes GenderUnknown rather than a guess.
func ToVoiceCatalog(voices []Voice) []types.Voice {
	out := make([]types.Voice, 0, len(voices))
	for _, v := range voices {
		locale := ""
		if len(v.Languages) > 0 {
			locale = v.Languages[0]
		}
		out = append(out, types.Voice{
			FullValue: v.ID,
			Locale:    locale,
			Gender:    parseGender(v.Gender),
			Name:      v.Name,
		})
	}
	return out
}

func parseGender(s string) types.Gender {
	switch strings.ToLower(s) {
	case "male":
		return types.GenderMale
	case "female":
		return types.GenderFemale
	default:
		return types.GenderUnknown
	}
}
