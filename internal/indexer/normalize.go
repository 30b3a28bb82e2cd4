package indexer

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	spaceRe      = regexp.MustCompile(`[ \t]+`)
	pageNumberRe = regexp.MustCompile(`^\s*(?:page\s+)?\d{1,4}(?:\s*/\s*\d{1,4})?\s*$`)
)

// NormalizeText collapses runs of spaces and tabs within lines and trims each
// line, dropping leading and trailing blank lines. Blank lines inside the
// text are kept so paragraph structure survives.
func NormalizeText(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRe.ReplaceAllString(line, " "))
	}
	start, end := 0, len(lines)
	for start < end && lines[start] == "" {
		start++
	}
	for end > start && lines[end-1] == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}

// IsPageNumberLine reports whether a line is a bare page number such as
// "12", "page 3" or "3 / 18".
func IsPageNumberLine(line string) bool {
	return pageNumberRe.MatchString(strings.ToLower(line))
}

// CanonicalForHash reduces text to a canonical form for duplicate detection:
// empty and page-number lines are dropped, trailing periods stripped, the
// remaining lines joined with ". ", lowercased, and whitespace collapsed.
// Cosmetic differences between two renderings of the same content cancel out.
func CanonicalForHash(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || IsPageNumberLine(line) {
			continue
		}
		kept = append(kept, strings.TrimRight(line, "."))
	}
	joined := strings.ToLower(strings.Join(kept, ". "))
	return strings.TrimSpace(spaceRe.ReplaceAllString(joined, " "))
}

// Fingerprint returns the sha1 hex digest of the canonical form of text.
func Fingerprint(text string) string {
	sum := sha1.Sum([]byte(CanonicalForHash(text)))
	return hex.EncodeToString(sum[:])
}
