package indexer

import (
	"strings"
	"unicode/utf8"

	"corpus-ai/internal/extract"
)

const (
	// DefaultBoilerplateMinFrac is the fraction of pages a line must appear
	// on before it counts as boilerplate.
	DefaultBoilerplateMinFrac = 0.6
	// SlidesBoilerplateMinFrac is the stricter fraction used for slide
	// decks, where genuine content repeats more often.
	SlidesBoilerplateMinFrac = 0.7
	// BoilerplateMaxLineLen caps how long a repeated line can be and still
	// count as boilerplate. Long repeated lines are usually real content.
	BoilerplateMaxLineLen = 120
)

// BoilerplateMinFrac picks the repetition threshold for a source kind.
func BoilerplateMinFrac(kind extract.SourceKind) float64 {
	if kind == extract.KindSlides {
		return SlidesBoilerplateMinFrac
	}
	return DefaultBoilerplateMinFrac
}

// FindBoilerplateLines returns the set of lines that repeat across at least
// minFrac of the blocks, ignoring lines longer than BoilerplateMaxLineLen.
// Headers, footers and confidentiality banners show up this way because the
// same line prints on nearly every page.
func FindBoilerplateLines(blocks []extract.ContentBlock, minFrac float64) map[string]struct{} {
	if len(blocks) < 2 {
		return nil
	}

	counts := make(map[string]int)
	for _, block := range blocks {
		seen := make(map[string]struct{})
		for _, line := range strings.Split(block.Text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || utf8.RuneCountInString(line) > BoilerplateMaxLineLen {
				continue
			}
			// Count each line once per block
			if _, ok := seen[line]; ok {
				continue
			}
			seen[line] = struct{}{}
			counts[line]++
		}
	}

	threshold := int(minFrac * float64(len(blocks)))
	if threshold < 2 {
		threshold = 2
	}

	boiler := make(map[string]struct{})
	for line, n := range counts {
		if n >= threshold {
			boiler[line] = struct{}{}
		}
	}
	if len(boiler) == 0 {
		return nil
	}
	return boiler
}

// DropBoilerplate removes boilerplate lines from every block and normalizes
// the remainder. Blocks whose text empties out are kept with empty text so
// locator ordering is preserved; the chunker skips them.
func DropBoilerplate(blocks []extract.ContentBlock, boiler map[string]struct{}) []extract.ContentBlock {
	if len(boiler) == 0 {
		out := make([]extract.ContentBlock, len(blocks))
		for i, block := range blocks {
			block.Text = NormalizeText(block.Text)
			out[i] = block
		}
		return out
	}

	out := make([]extract.ContentBlock, len(blocks))
	for i, block := range blocks {
		var kept []string
		for _, line := range strings.Split(block.Text, "\n") {
			if _, ok := boiler[strings.TrimSpace(line)]; ok {
				continue
			}
			kept = append(kept, line)
		}
		block.Text = NormalizeText(strings.Join(kept, "\n"))
		out[i] = block
	}
	return out
}
