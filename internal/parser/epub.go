package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// EPUBParser extracts chapters from an EPUB container. An EPUB is a ZIP of
// XHTML documents; each content document becomes one chapter, in archive
// path order (which follows spine order in the common single-directory
// layout). No EPUB library exists in this project's dependency set, so the
// extraction sticks to archive/zip plus tag stripping.
type EPUBParser struct{}

// NewEPUBParser creates a new ePUB parser
func NewEPUBParser() *EPUBParser {
	return &EPUBParser{}
}

var (
	titleTagRe   = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	headingTagRe = regexp.MustCompile(`(?is)<h[1-3][^>]*>(.*?)</h[1-3]>`)
	paraTagRe    = regexp.MustCompile(`(?is)<p[^>]*>(.*?)</p>`)
	anyTagRe     = regexp.MustCompile(`(?s)<[^>]*>`)
)

// Parse extracts one chapter per XHTML content document in the archive.
func (p *EPUBParser) Parse(ctx context.Context, data []byte) ([]*types.Chapter, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open epub container: %w", err)
	}

	var docs []*zip.File
	for _, file := range archive.File {
		name := strings.ToLower(file.Name)
		if strings.HasSuffix(name, ".xhtml") || strings.HasSuffix(name, ".html") || strings.HasSuffix(name, ".htm") {
			docs = append(docs, file)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })

	var chapters []*types.Chapter
	for _, doc := range docs {
		reader, err := doc.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", doc.Name, err)
		}
		content, err := io.ReadAll(reader)
		reader.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", doc.Name, err)
		}

		chapter := p.parseDocument(string(content), len(chapters)+1)
		if chapter != nil {
			chapters = append(chapters, chapter)
		}
	}

	if len(chapters) == 0 {
		return nil, fmt.Errorf("no readable content documents in epub")
	}
	return chapters, nil
}

// parseDocument converts one XHTML document into a chapter, or nil when it
// carries no prose (cover pages, empty navigation documents).
func (p *EPUBParser) parseDocument(content string, number int) *types.Chapter {
	title := fmt.Sprintf("Chapter %d", number)
	if m := headingTagRe.FindStringSubmatch(content); m != nil {
		if t := stripTags(m[1]); t != "" {
			title = t
		}
	} else if m := titleTagRe.FindStringSubmatch(content); m != nil {
		if t := stripTags(m[1]); t != "" {
			title = t
		}
	}

	var paragraphs []string
	for _, m := range paraTagRe.FindAllStringSubmatch(content, -1) {
		if text := stripTags(m[1]); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	if len(paragraphs) == 0 {
		// No <p> markup; treat every stripped markup boundary as a
		// potential paragraph break instead.
		raw := html.UnescapeString(anyTagRe.ReplaceAllString(content, "\n"))
		for _, block := range strings.Split(raw, "\n") {
			if block = strings.Join(strings.Fields(block), " "); block != "" && block != title {
				paragraphs = append(paragraphs, block)
			}
		}
	}
	if len(paragraphs) == 0 {
		return nil
	}

	return &types.Chapter{
		Number:     number,
		Title:      title,
		TOCPath:    []string{title},
		Paragraphs: paragraphs,
	}
}

// stripTags removes markup and collapses whitespace in an XHTML fragment.
func stripTags(fragment string) string {
	text := anyTagRe.ReplaceAllString(fragment, " ")
	text = html.UnescapeString(text)
	return strings.Join(strings.Fields(text), " ")
}

// SupportedFormats returns the formats this parser supports
func (p *EPUBParser) SupportedFormats() []string {
	return []string{"epub"}
}
