package parser

import (
	"fmt"
	"strings"
)

// DefaultFactory maps lowercase format names to their parsers.
type DefaultFactory struct {
	parsers map[string]Parser
}

// NewFactory registers the built-in parsers (txt, epub, pdf).
func NewFactory() Factory {
	f := &DefaultFactory{parsers: make(map[string]Parser)}
	for _, p := range []Parser{NewTXTParser(), NewEPUBParser(), NewPDFParser()} {
		for _, format := range p.SupportedFormats() {
			f.parsers[strings.ToLower(format)] = p
		}
	}
	return f
}

// GetParser returns the parser registered for format, case-insensitively.
func (f *DefaultFactory) GetParser(format string) (Parser, error) {
	p, ok := f.parsers[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	return p, nil
}
