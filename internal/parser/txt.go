package parser

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// TXTParser segments plain text into chapters by heading detection and into
// paragraphs by blank lines.
type TXTParser struct{}

// NewTXTParser creates a new TXT parser
func NewTXTParser() *TXTParser {
	return &TXTParser{}
}

// headingPrefixes mark a line as a chapter heading regardless of casing.
var headingPrefixes = []string{
	"chapter ", "part ", "section ", "prologue", "epilogue", "introduction",
}

// Parse extracts chapters from plain text. A heading line closes the current
// chapter (or titles it, when no content has accumulated yet); consecutive
// non-blank lines join into one paragraph.
func (p *TXTParser) Parse(ctx context.Context, data []byte) ([]*types.Chapter, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")

	var chapters []*types.Chapter
	current := &types.Chapter{Number: 1, Title: "Main Content", TOCPath: []string{"Main Content"}}
	var paragraph []string

	flushParagraph := func() {
		if len(paragraph) > 0 {
			current.Paragraphs = append(current.Paragraphs, strings.Join(paragraph, " "))
			paragraph = nil
		}
	}

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)

		if line == "" {
			flushParagraph()
			continue
		}

		if p.isChapterHeading(line) {
			flushParagraph()
			if len(current.Paragraphs) == 0 {
				// Heading before any content: title the chapter in place.
				current.Title = line
				current.TOCPath = []string{line}
				continue
			}
			chapters = append(chapters, current)
			current = &types.Chapter{
				Number:  len(chapters) + 1,
				Title:   line,
				TOCPath: []string{line},
			}
			continue
		}

		paragraph = append(paragraph, line)
	}
	flushParagraph()

	if len(current.Paragraphs) > 0 {
		chapters = append(chapters, current)
	}
	if len(chapters) == 0 {
		return nil, fmt.Errorf("no content found in text file")
	}
	return chapters, nil
}

// isChapterHeading reports whether a line reads like a chapter boundary: a
// known heading keyword, or a short all-caps / mostly-title-case line.
func (p *TXTParser) isChapterHeading(line string) bool {
	if line == "" {
		return false
	}

	lower := strings.ToLower(line)
	for _, prefix := range headingPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}

	return len(line) < 60 && (isAllCaps(line) || isTitleCase(line))
}

func isAllCaps(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

func isTitleCase(s string) bool {
	words := strings.Fields(s)
	if len(words) == 0 {
		return false
	}
	capitalized := 0
	for _, word := range words {
		for _, r := range word {
			if unicode.IsUpper(r) {
				capitalized++
			}
			break
		}
	}
	return float64(capitalized)/float64(len(words)) > 0.7
}

// SupportedFormats returns the formats this parser supports
func (p *TXTParser) SupportedFormats() []string {
	return []string{"txt"}
}
