// Package splitter segments narrative text into sentences and packs them
// into token-budgeted blocks for LLM passes, with paragraph detection,
// quote suppression, abbreviation exceptions, ellipsis handling and
// clause-separator fallback for oversized sentences.
package splitter

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// abbreviations do not terminate a sentence even when followed by `. `.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "inc": true, "ltd": true,
	"т": true, "п": true, "д": true, "г": true, "гг": true,
	"др": true, "пр": true, "ул": true, "и": true,
}

// clauseSeparators are tried in order, most-preferred first, when an
// oversized sentence must be split by clause fallback.
var clauseSeparators = []string{"; ", ", ", " — ", " - ", " "}

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

const (
	quoteStraight = '"'
	quoteOpenCurly  = '“' // “
	quoteCloseCurly = '”' // ”
	quoteGuillemetOpen  = '«' // «
	quoteGuillemetClose = '»' // »
)

func isQuoteChar(r rune) bool {
	switch r {
	case quoteStraight, quoteOpenCurly, quoteCloseCurly, quoteGuillemetOpen, quoteGuillemetClose:
		return true
	}
	return false
}

// Split breaks text into Sentences, assigning a stable global index to each.
func Split(text string) []types.Sentence {
	paragraphs := paragraphBreak.Split(text, -1)

	var sentences []types.Sentence
	idx := 0
	for _, para := range paragraphs {
		for _, raw := range splitParagraphIntoSentences(para) {
			trimmed := strings.TrimSpace(raw)
			if !hasLetterOrDigit(trimmed) {
				continue
			}
			sentences = append(sentences, types.Sentence{Index: idx, Text: trimmed})
			idx++
		}
	}
	return sentences
}

// splitParagraphIntoSentences applies terminator scanning within a single
// paragraph: quote-suppressed `.!?…` followed by whitespace or end-of-text,
// with abbreviation exceptions and run-of-periods-as-ellipsis handling.
func splitParagraphIntoSentences(para string) []string {
	runes := []rune(para)
	var out []string
	start := 0
	quoteDepth := 0

	flushUpTo := func(end int) {
		if end > start {
			out = append(out, string(runes[start:end]))
		}
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if isQuoteChar(r) {
			if quoteDepth > 0 {
				quoteDepth--
			} else {
				quoteDepth++
			}
			continue
		}
		if quoteDepth > 0 {
			continue
		}
		if !isTerminatorRune(r) {
			continue
		}

		// Absorb a run of terminator runes (e.g. "..." or "?!") as one
		// terminator; runs of >=3 periods count as a single ellipsis.
		j := i
		for j+1 < len(runes) && isTerminatorRune(runes[j+1]) {
			j++
		}

		// Check end-of-text or trailing whitespace.
		boundaryOK := j+1 >= len(runes) || unicode.IsSpace(runes[j+1])
		if !boundaryOK {
			i = j
			continue
		}

		if r == '.' && isAbbreviationBefore(runes, i) {
			i = j
			continue
		}

		flushUpTo(j + 1)
		start = j + 1
		i = j
	}
	flushUpTo(len(runes))
	return out
}

func isTerminatorRune(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…' // …
}

// isAbbreviationBefore reports whether the word immediately preceding the
// period at position i (exclusive) matches the fixed abbreviation set.
func isAbbreviationBefore(runes []rune, i int) bool {
	end := i
	start := end
	for start > 0 && !unicode.IsSpace(runes[start-1]) && runes[start-1] != '.' {
		start--
	}
	word := strings.ToLower(string(runes[start:end]))
	return abbreviations[word]
}

func hasLetterOrDigit(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// approxTokens approximates a text's token count as characters/4.
func approxTokens(s string) int {
	return len(s) / 4
}

// PackBlocks greedily packs sentences into blocks respecting budget (an
// approximate token count). Any single sentence exceeding budget is split
// by clause-separator fallback; each fragment occupies its own block and
// keeps the original sentence's index.
func PackBlocks(sentences []types.Sentence, budget int) []types.TextBlock {
	var blocks []types.TextBlock
	var current []types.Sentence
	currentTokens := 0
	blockIndex := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		blocks = append(blocks, types.TextBlock{
			BlockIndex:         blockIndex,
			SentenceStartIndex: current[0].Index,
			Sentences:          current,
		})
		blockIndex++
		current = nil
		currentTokens = 0
	}

	for _, s := range sentences {
		tokens := approxTokens(s.Text)
		if tokens > budget {
			flush()
			for _, fragment := range splitOversizedSentence(s, budget) {
				blocks = append(blocks, types.TextBlock{
					BlockIndex:         blockIndex,
					SentenceStartIndex: fragment.Index,
					Sentences:          []types.Sentence{fragment},
				})
				blockIndex++
			}
			continue
		}
		if currentTokens+tokens > budget && len(current) > 0 {
			flush()
		}
		current = append(current, s)
		currentTokens += tokens
	}
	flush()
	return blocks
}

// splitOversizedSentence splits s by clause separators, preferring the
// rightmost separator past the half-budget mark, repeating until every
// fragment fits. Every fragment keeps s's original sentence index.
func splitOversizedSentence(s types.Sentence, budget int) []types.Sentence {
	text := s.Text
	if approxTokens(text) <= budget {
		return []types.Sentence{s}
	}

	halfBudgetChars := (budget * 4) / 2
	for _, sep := range clauseSeparators {
		if idx := rightmostSeparatorPast(text, sep, halfBudgetChars); idx >= 0 {
			left := strings.TrimSpace(text[:idx])
			right := strings.TrimSpace(text[idx+len(sep):])
			if left == "" || right == "" {
				continue
			}
			var out []types.Sentence
			out = append(out, splitOversizedSentence(types.Sentence{Index: s.Index, Text: left}, budget)...)
			out = append(out, splitOversizedSentence(types.Sentence{Index: s.Index, Text: right}, budget)...)
			return out
		}
	}
	// No separator could split it further (e.g. a single giant word);
	// emit as-is rather than looping forever.
	return []types.Sentence{s}
}

// rightmostSeparatorPast finds the rightmost occurrence of sep at or after
// position minIndex, falling back to the rightmost occurrence anywhere if
// none exists past minIndex.
func rightmostSeparatorPast(text, sep string, minIndex int) int {
	last := -1
	searchFrom := 0
	for {
		i := strings.Index(text[searchFrom:], sep)
		if i < 0 {
			break
		}
		abs := searchFrom + i
		if abs >= minIndex {
			last = abs
		} else if last < 0 {
			last = abs // fallback candidate if nothing past minIndex is found
		}
		searchFrom = abs + len(sep)
	}
	return last
}
