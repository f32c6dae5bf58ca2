package util

import (
	"fmt"
	"strings"
)

// SanitizeFilename folds a chapter or book title into a safe storage
// filename component: lowercased, path separators and spaces replaced,
// never empty.
func SanitizeFilename(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return "chapter"
	}
	replacer := strings.NewReplacer("/", "-", "\\", "-", " ", "_")
	return strings.ToLower(replacer.Replace(title))
}

// OutputFilename returns the destination filename for one merged chapter in
// the requested container format.
func OutputFilename(title, format string) string {
	return fmt.Sprintf("%s.%s", SanitizeFilename(title), format)
}

// OutputFormats returns the list of supported output container formats.
func OutputFormats() []string {
	return []string{"mp3", "opus", "wav"}
}
