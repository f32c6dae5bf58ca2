// Package parser turns uploaded source documents (plain text, EPUB, PDF)
// into chapters ready for conversion. It is a thin supporting layer: the
// pipeline only ever sees the chapter titles and joined paragraph text.
package parser

import (
	"context"

	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// Parser extracts chapters from one document format.
type Parser interface {
	// Parse extracts chapters and text from the document
	Parse(ctx context.Context, data []byte) ([]*types.Chapter, error)

	// SupportedFormats returns the file formats this parser supports
	SupportedFormats() []string
}

// Factory resolves a Parser for a format name.
type Factory interface {
	// GetParser returns a parser for the given format
	GetParser(format string) (Parser, error)
}
