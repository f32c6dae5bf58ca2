package parser

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// PDFParser extracts text from PDF documents with uncompressed content
// streams: it collects the literal strings fed to the Tj/TJ text-showing
// operators. Compressed or image-only PDFs yield an explicit error rather
// than silent empty output; no PDF library exists in this project's
// dependency set to handle those.
type PDFParser struct{}

// NewPDFParser creates a new PDF parser
func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

var (
	// textBlockRe captures one BT ... ET text object.
	textBlockRe = regexp.MustCompile(`(?s)BT(.*?)ET`)
	// showTextRe captures the literal string argument of a Tj operator or
	// the string members of a TJ array, with escapes intact.
	showTextRe = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)`)
	pdfEscapes = strings.NewReplacer(`\(`, "(", `\)`, ")", `\\`, `\`, `\n`, "\n", `\r`, "", `\t`, " ")
)

// Parse extracts the document's visible text as a single chapter, one
// paragraph per text object.
func (p *PDFParser) Parse(ctx context.Context, data []byte) ([]*types.Chapter, error) {
	if !strings.HasPrefix(string(data[:min(8, len(data))]), "%PDF-") {
		return nil, fmt.Errorf("not a pdf document")
	}

	var paragraphs []string
	for _, block := range textBlockRe.FindAllSubmatch(data, -1) {
		var parts []string
		for _, m := range showTextRe.FindAllSubmatch(block[1], -1) {
			if s := pdfEscapes.Replace(string(m[1])); strings.TrimSpace(s) != "" {
				parts = append(parts, s)
			}
		}
		if text := strings.Join(strings.Fields(strings.Join(parts, " ")), " "); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}

	if len(paragraphs) == 0 {
		return nil, fmt.Errorf("no extractable text: content streams are compressed or image-only")
	}

	return []*types.Chapter{{
		Number:     1,
		Title:      "Main Content",
		TOCPath:    []string{"Main Content"},
		Paragraphs: paragraphs,
	}}, nil
}

// SupportedFormats returns the formats this parser supports
func (p *PDFParser) SupportedFormats() []string {
	return []string{"pdf"}
}
