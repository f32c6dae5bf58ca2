package parser

import "testing"

func TestFactoryResolvesRegisteredFormats(t *testing.T) {
	factory := NewFactory()
	for _, format := range []string{"txt", "epub", "pdf", "TXT", "Epub"} {
		p, err := factory.GetParser(format)
		if err != nil || p == nil {
			t.Fatalf("expected parser for %q, got %v %v", format, p, err)
		}
	}
}

func TestFactoryRejectsUnknownFormat(t *testing.T) {
	if _, err := NewFactory().GetParser("docx"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
