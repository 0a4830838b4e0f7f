// Package chunker splits raw document text into overlapping token-bounded
// segments for embedding and retrieval.
package chunker

import "strings"

// Defaults for chunk sizing. Tokens are approximated, not counted by a real
// tokenizer, so these are deliberately conservative for embedding models with
// larger context windows.
const (
	DefaultMaxTokens = 500
	DefaultOverlap   = 50
)

// Tokenizer estimates the token cost of a single word.
type Tokenizer interface {
	Tokens(word string) int
}

// HeuristicTokenizer approximates tokens as ceil(len(word) / 4). This tracks
// the behaviour of common BPE vocabularies closely enough for chunk sizing.
type HeuristicTokenizer struct{}

func (HeuristicTokenizer) Tokens(word string) int {
	return (len(word) + 3) / 4
}

// Chunk is one bounded contiguous slice of a document's text.
type Chunk struct {
	Index int
	Text  string
}

// Chunker accumulates whitespace-separated words into overlapping chunks.
type Chunker struct {
	maxTokens int
	overlap   int
	tok       Tokenizer
}

// New returns a Chunker with the given limits. Non-positive values fall back
// to the defaults; a nil tokenizer falls back to the heuristic one.
func New(maxTokens, overlap int, tok Tokenizer) *Chunker {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if tok == nil {
		tok = HeuristicTokenizer{}
	}
	return &Chunker{maxTokens: maxTokens, overlap: overlap, tok: tok}
}

// Split breaks text into chunks of at most maxTokens estimated tokens each.
// Consecutive chunks share the trailing overlap/4 words of the previous chunk.
// Splitting is deterministic for fixed input and parameters. Empty input
// yields no chunks; text under the limit yields exactly one.
func (c *Chunker) Split(text string) []Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	overlapWords := c.overlap / 4

	var chunks []Chunk
	var current []string
	currentTokens := 0

	emit := func() {
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  strings.Join(current, " "),
		})
		// Seed the next chunk with the trailing overlap words of this one.
		tail := overlapWords
		if tail > len(current) {
			tail = len(current)
		}
		seed := make([]string, tail)
		copy(seed, current[len(current)-tail:])
		current = seed
		currentTokens = 0
		for _, w := range current {
			currentTokens += c.tok.Tokens(w)
		}
	}

	for _, w := range words {
		t := c.tok.Tokens(w)
		if currentTokens+t > c.maxTokens && len(current) > 0 {
			emit()
		}
		current = append(current, w)
		currentTokens += t
	}

	if len(current) > 0 {
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  strings.Join(current, " "),
		})
	}

	return chunks
}
