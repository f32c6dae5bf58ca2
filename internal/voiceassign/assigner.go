// Package voiceassign assigns one voice per cast character respecting
// gender and supply, and supports an interactive review/swap operation.
package voiceassign

import (
	"sort"

	"github.com/mvoss-dev/narrationcast/internal/voicepool"
	"github.com/mvoss-dev/narrationcast/pkg/types"
)

const (
	minTotalVoices = 5
	minPerGender   = 2
)

// Assign builds the Character-to-Voice Map for the whole cast. Narrator
// receives narratorVoice (which must be one of the enabled voices); every
// other character is assigned from pool in descending order of prominence
// (variation count).
func Assign(cast []types.Character, narratorVoice string, pool *voicepool.Pool) (*types.VoiceMap, error) {
	male := pool.CountByGender(types.GenderMale)
	female := pool.CountByGender(types.GenderFemale)
	// Multilingual/wildcard voices carry GenderUnknown and may cover a
	// shortfall on either side of the per-gender quota.
	wildcards := pool.CountByGender(types.GenderUnknown)
	shortfall := max(0, minPerGender-male) + max(0, minPerGender-female)
	if pool.Total() < minTotalVoices || shortfall > wildcards {
		return nil, types.NewConversionError(
			types.ErrInsufficientVoices,
			"conversion requires at least 5 enabled voices with at least 2 male and 2 female",
			nil,
		).WithContext("total", pool.Total()).
			WithContext("male", male).
			WithContext("female", female).
			WithContext("wildcard", wildcards)
	}

	if !pool.Contains(narratorVoice) {
		return nil, types.NewConversionError(
			types.ErrInsufficientVoices,
			"narrator voice is not in the enabled pool",
			nil,
		).WithContext("narrator_voice", narratorVoice)
	}

	assignments := make(map[string]string, len(cast))

	var others []types.Character
	for _, c := range cast {
		if c.CanonicalName == types.ReservedNarrator {
			assignments[c.CanonicalName] = narratorVoice
			continue
		}
		others = append(others, c)
	}

	sort.SliceStable(others, func(i, j int) bool {
		return len(others[i].Variations) > len(others[j].Variations)
	})

	for _, c := range others {
		voiceID, ok := pool.Take(c.Gender)
		if !ok {
			// Gender pool genuinely has zero voices despite passing the
			// aggregate precondition above (e.g. an all-unknown cast with
			// a skewed catalog); fall back to the unknown/least-used pool.
			voiceID, ok = pool.Take(types.GenderUnknown)
			if !ok {
				return nil, types.NewConversionError(types.ErrInsufficientVoices, "no voice available for character "+c.CanonicalName, nil)
			}
		}
		assignments[c.CanonicalName] = voiceID
	}

	return &types.VoiceMap{Assignments: assignments}, nil
}

// Swap implements the review/swap operation: character receives newVoiceID;
// whoever currently holds newVoiceID (if anyone) receives character's old
// voice. A single in-place swap, never a cascade. Calling Swap(B, B's former
// voice) immediately after Swap(A, B's former voice) restores the map to its
// pre-swap state — this pairing is how the idempotent-swap property is
// realized (see DESIGN.md for the resolved reading of that property);
// repeating the identical Swap(A, B's former voice) call is a no-op.
func Swap(voiceMap *types.VoiceMap, characterName, newVoiceID string) {
	oldVoice, hadVoice := voiceMap.Assignments[characterName]

	var otherChar string
	for name, voiceID := range voiceMap.Assignments {
		if voiceID == newVoiceID && name != characterName {
			otherChar = name
			break
		}
	}

	voiceMap.Assignments[characterName] = newVoiceID
	if otherChar != "" && hadVoice {
		voiceMap.Assignments[otherChar] = oldVoice
	}
}
