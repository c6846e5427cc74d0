package retrieval

import (
	"strings"
	"unicode/utf8"
)

// Default chunking parameters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators is the split preference: paragraph, line, word, character.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Chunker splits text into overlapping chunks of at most Size characters.
//
// Text is split on the first separator that occurs in it; pieces still larger
// than Size are split recursively with the remaining separators. Adjacent
// pieces are then merged back up to Size, carrying up to Overlap characters
// of trailing context into the next chunk.
type Chunker struct {
	Size       int
	Overlap    int
	Separators []string
}

// NewChunker returns a Chunker with the default separators. Non-positive
// size falls back to DefaultChunkSize; overlap is clamped to [0, size).
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 5
	}
	return &Chunker{Size: size, Overlap: overlap, Separators: DefaultSeparators}
}

// Split returns the chunks of text in document order.
func (c *Chunker) Split(text string) []string {
	seps := c.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	return c.split(text, seps)
}

func (c *Chunker) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" {
			sep = s
			break
		}
		if strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = splitRunes(text)
	} else {
		pieces = strings.Split(text, sep)
	}

	var (
		final []string
		good  []string
	)
	for _, p := range pieces {
		if p == "" {
			continue
		}
		if length(p) < c.Size {
			good = append(good, p)
			continue
		}
		if len(good) > 0 {
			final = append(final, c.merge(good, sep)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, p)
		} else {
			final = append(final, c.split(p, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, c.merge(good, sep)...)
	}
	return final
}

// merge joins pieces into chunks of at most Size characters, keeping up to
// Overlap characters of the previous chunk at the start of the next one.
func (c *Chunker) merge(pieces []string, sep string) []string {
	sepLen := length(sep)
	var (
		chunks  []string
		current []string
		total   int
	)
	joinedLen := func(extra int) int {
		if len(current) > 0 {
			return total + extra + sepLen
		}
		return total + extra
	}

	for _, p := range pieces {
		l := length(p)
		if joinedLen(l) > c.Size && len(current) > 0 {
			if chunk := strings.TrimSpace(strings.Join(current, sep)); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for total > c.Overlap || (joinedLen(l) > c.Size && total > 0) {
				total -= length(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}
		if len(current) > 0 {
			total += sepLen
		}
		current = append(current, p)
		total += l
	}
	if chunk := strings.TrimSpace(strings.Join(current, sep)); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func length(s string) int { return utf8.RuneCountInString(s) }

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
