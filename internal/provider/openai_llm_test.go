package provider

import "testing"

func TestParseCharacterArrayToleratesSurroundingProse(t *testing.T) {
	response := "Sure, here is the cast:\n" +
		`[{"canonical_name":"Alice","variations":["Ali"],"gender":"female"},` +
		`{"canonical_name":"Bob","gender":"male"}]` +
		"\nLet me know if you need anything else."

	characters, err := parseCharacterArray(response)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(characters) != 2 {
		t.Fatalf("expected 2 characters, got %d: %+v", len(characters), characters)
	}
	if characters[0].CanonicalName != "Alice" || characters[0].Variations[0] != "Ali" {
		t.Fatalf("unexpected first character: %+v", characters[0])
	}
}

func TestParseCharacterArrayDefaultsUnknownGender(t *testing.T) {
	response := `[{"canonical_name":"Mx. Sam","gender":"nonbinary"}]`
	characters, err := parseCharacterArray(response)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if characters[0].Gender != "unknown" {
		t.Fatalf("expected unrecognized gender values to fall back to unknown, got %s", characters[0].Gender)
	}
}

func TestParseCharacterArrayFailsWithoutAnyArray(t *testing.T) {
	if _, err := parseCharacterArray("I couldn't find any characters."); err == nil {
		t.Fatal("expected an error when no JSON array is present")
	}
}

func TestParseAssignmentArrayParsesIndexedSpeakers(t *testing.T) {
	response := `[{"sentence_index":0,"speaker_canonical_name":"Narrator"},{"sentence_index":1,"speaker_canonical_name":"Alice"}]`
	assignments, err := parseAssignmentArray(response)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(assignments) != 2 || assignments[1].SpeakerCanonicalName != "Alice" || assignments[1].SentenceIndex != 1 {
		t.Fatalf("unexpected assignments: %+v", assignments)
	}
}
