package indexer

import (
	"strings"
	"unicode/utf8"

	"corpus-ai/internal/extract"
)

const (
	// DefaultChunkTargetRunes is the upper bound on chunk size. Sized for
	// embedding models with a few-thousand-token context.
	DefaultChunkTargetRunes = 1800
	// DefaultChunkOverlapRunes is carried from the tail of one chunk into
	// the next so sentences near a boundary are retrievable from both.
	DefaultChunkOverlapRunes = 350
	// DefaultChunkMinWords drops fragments too short to embed usefully.
	DefaultChunkMinWords = 8
)

// ChunkerOptions tunes the sliding-window chunker. Zero values take the
// package defaults.
type ChunkerOptions struct {
	TargetRunes  int
	OverlapRunes int
	MinWords     int
}

// Chunker cuts extracted content blocks into retrieval-sized chunks along
// sentence boundaries. Windows never cross a block boundary, so every chunk
// has a single locator and section.
type Chunker struct {
	opts ChunkerOptions
}

// NewChunker creates a chunker, filling unset options with defaults.
func NewChunker(opts ChunkerOptions) *Chunker {
	if opts.TargetRunes <= 0 {
		opts.TargetRunes = DefaultChunkTargetRunes
	}
	if opts.OverlapRunes < 0 || opts.OverlapRunes >= opts.TargetRunes {
		opts.OverlapRunes = DefaultChunkOverlapRunes
	}
	if opts.MinWords <= 0 {
		opts.MinWords = DefaultChunkMinWords
	}
	return &Chunker{opts: opts}
}

// ChunkBlocks converts content blocks into ordered chunks. Prose is windowed
// along sentence boundaries with overlap; table markup becomes standalone
// table chunks split along row boundaries and exempt from the word minimum.
func (c *Chunker) ChunkBlocks(blocks []extract.ContentBlock) []Chunk {
	var chunks []Chunk
	for _, block := range blocks {
		if text := strings.TrimSpace(block.Text); text != "" {
			for _, windowText := range c.windowSentences(splitSentences(text)) {
				if countWords(windowText) < c.opts.MinWords {
					continue
				}
				chunks = append(chunks, Chunk{
					Locator: block.Locator,
					Section: block.Locator.Section,
					Text:    windowText,
				})
			}
		}
		if markup := strings.TrimSpace(block.TableMarkup); markup != "" {
			for _, tableText := range c.windowRows(markup) {
				chunks = append(chunks, Chunk{
					Locator: block.Locator,
					Section: block.Locator.Section,
					Text:    tableText,
					IsTable: true,
				})
			}
		}
	}
	for i := range chunks {
		chunks[i].Ord = i
	}
	return chunks
}

// windowSentences packs sentences into windows of at most TargetRunes,
// seeding each new window with the trailing sentences of the previous one up
// to OverlapRunes.
func (c *Chunker) windowSentences(sentences []string) []string {
	var out []string
	var window []string
	windowRunes := 0

	flush := func() {
		text := strings.TrimSpace(strings.Join(window, " "))
		if text != "" {
			out = append(out, text)
		}
	}

	for _, sentence := range sentences {
		n := utf8.RuneCountInString(sentence)

		// A single sentence beyond the target is hard-split.
		if n > c.opts.TargetRunes {
			if len(window) > 0 {
				flush()
				window, windowRunes = nil, 0
			}
			out = append(out, hardSplit(sentence, c.opts.TargetRunes)...)
			continue
		}

		if windowRunes+n > c.opts.TargetRunes && len(window) > 0 {
			flush()
			window, windowRunes = overlapTail(window, c.opts.OverlapRunes)
		}
		window = append(window, sentence)
		windowRunes += n + 1
	}
	if len(window) > 0 {
		flush()
	}
	return out
}

// windowRows packs table rows into windows of at most TargetRunes. Rows stay
// intact; a table never mixes with prose.
func (c *Chunker) windowRows(markup string) []string {
	rows := strings.Split(markup, "\n")
	var out []string
	var window []string
	windowRunes := 0

	for _, row := range rows {
		n := utf8.RuneCountInString(row)
		if windowRunes+n > c.opts.TargetRunes && len(window) > 0 {
			out = append(out, strings.Join(window, "\n"))
			window, windowRunes = nil, 0
		}
		window = append(window, row)
		windowRunes += n + 1
	}
	if len(window) > 0 {
		out = append(out, strings.Join(window, "\n"))
	}
	return out
}

// overlapTail returns the trailing sentences of a window whose combined size
// stays within limit, along with their rune count.
func overlapTail(window []string, limit int) ([]string, int) {
	if limit <= 0 {
		return nil, 0
	}
	total := 0
	start := len(window)
	for start > 0 {
		n := utf8.RuneCountInString(window[start-1]) + 1
		if total+n > limit {
			break
		}
		total += n
		start--
	}
	tail := make([]string, len(window)-start)
	copy(tail, window[start:])
	return tail, total
}

// hardSplit cuts text into pieces of at most limit runes.
func hardSplit(text string, limit int) []string {
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += limit {
		end := start + limit
		if end > len(runes) {
			end = len(runes)
		}
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			out = append(out, piece)
		}
	}
	return out
}

// splitSentences breaks text into sentences. Newlines always end a sentence;
// within a line, terminal punctuation followed by a space does.
func splitSentences(text string) []string {
	var sentences []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		runes := []rune(line)
		start := 0
		for i := 0; i < len(runes); i++ {
			if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
				continue
			}
			// Consume a punctuation run, then split if a space follows
			j := i
			for j+1 < len(runes) && (runes[j+1] == '.' || runes[j+1] == '!' || runes[j+1] == '?') {
				j++
			}
			if j+1 < len(runes) && runes[j+1] == ' ' {
				sentence := strings.TrimSpace(string(runes[start : j+1]))
				if sentence != "" {
					sentences = append(sentences, sentence)
				}
				start = j + 2
			}
			i = j
		}
		if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
			sentences = append(sentences, rest)
		}
	}
	return sentences
}

func countWords(text string) int {
	return len(strings.Fields(text))
}
