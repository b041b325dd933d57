package utils

import (
	"regexp"
	"strings"
)

var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// SanitizeFilename removes characters that are invalid in file paths.
func SanitizeFilename(name string) string {
	sanitized := invalidFilenameChars.ReplaceAllString(name, "")
	// Trailing spaces and periods break Windows shares.
	sanitized = strings.TrimRight(sanitized, " .")
	return sanitized
}
