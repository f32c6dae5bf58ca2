package llmpass

import (
	"strings"

	"github.com/mvoss-dev/narrationcast/internal/provider"
	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// validGenders is the allowed gender vocabulary for an Extract response.
var validGenders = map[types.Gender]bool{
	types.GenderMale:    true,
	types.GenderFemale:  true,
	types.GenderUnknown: true,
}

// validateExtractResponse enforces the Extract validation rule: every
// character must carry a canonical name and a gender from the allowed set.
func validateExtractResponse(resp *provider.ExtractResponse) error {
	if resp == nil {
		return types.NewConversionError(types.ErrLLMValidationError, "extract response was nil", nil)
	}
	for i, c := range resp.Characters {
		if strings.TrimSpace(c.CanonicalName) == "" {
			return types.NewConversionError(types.ErrLLMValidationError, "extract response character has empty canonical_name", nil).
				WithContext("index", i)
		}
		if !validGenders[c.Gender] {
			return types.NewConversionError(types.ErrLLMValidationError, "extract response character has invalid gender", nil).
				WithContext("canonical_name", c.CanonicalName).
				WithContext("gender", string(c.Gender))
		}
	}
	return nil
}

// validateAssignResponse enforces the Assign validation rule: exactly one
// assignment per input sentence and every speaker code must resolve to a
// known cast member.
func validateAssignResponse(resp *provider.AssignResponse, block types.TextBlock, cast []types.Character) error {
	if resp == nil {
		return types.NewConversionError(types.ErrLLMValidationError, "assign response was nil", nil)
	}
	if len(resp.Assignments) != len(block.Sentences) {
		return types.NewConversionError(types.ErrLLMValidationError, "assign response count does not match sentence count", nil).
			WithContext("expected", len(block.Sentences)).
			WithContext("got", len(resp.Assignments))
	}

	known := make(map[string]bool, len(cast))
	for _, c := range cast {
		known[strings.ToLower(c.CanonicalName)] = true
	}

	wantIndex := make(map[int]bool, len(block.Sentences))
	for _, s := range block.Sentences {
		wantIndex[s.Index] = true
	}

	seen := make(map[int]bool, len(resp.Assignments))
	for _, a := range resp.Assignments {
		if !wantIndex[a.SentenceIndex] {
			return types.NewConversionError(types.ErrLLMValidationError, "assign response references a sentence index outside this block", nil).
				WithContext("sentence_index", a.SentenceIndex)
		}
		if seen[a.SentenceIndex] {
			return types.NewConversionError(types.ErrLLMValidationError, "assign response assigns the same sentence index more than once", nil).
				WithContext("sentence_index", a.SentenceIndex)
		}
		seen[a.SentenceIndex] = true
		if !known[strings.ToLower(a.SpeakerCanonicalName)] {
			return types.NewConversionError(types.ErrLLMValidationError, "assign response used a speaker code absent from the cast", nil).
				WithContext("speaker", a.SpeakerCanonicalName)
		}
	}
	return nil
}
