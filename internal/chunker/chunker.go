package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/filingrag/internal/doctree"
)

// Config controls chunking behavior. Sizes are measured in characters.
type Config struct {
	ChunkSize    int // Target maximum chunk size.
	ChunkOverlap int // Overlap carried between consecutive chunks.
	MinChunk     int // Chunks shorter than this are dropped.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    800,
		ChunkOverlap: 160,
		MinChunk:     200,
	}
}

// Separators are tried in order; the first one present in a span is used to
// split it, and oversized pieces recurse with the remaining separators.
var Separators = []string{
	"\n\n", // paragraphs
	"\n",   // lines
	". ",   // sentences
	"; ",   // clauses
	", ",
	" ",
	"", // characters
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.ChunkOverlap <= 0 {
		c.ChunkOverlap = d.ChunkOverlap
	}
	if c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 5
	}
	if c.MinChunk <= 0 {
		c.MinChunk = d.MinChunk
	}
	return c
}

// Header formats the bracketed context line for a section.
func Header(code, title string) string {
	if title == "" {
		return code
	}
	return code + " - " + title
}

// ChunkText splits text into overlapping windows, drops low-signal chunks
// and prefixes each survivor with "[header]\n" when header is non-empty.
func ChunkText(text, header string, cfg Config) []string {
	cfg = cfg.withDefaults()
	s := splitter{size: cfg.ChunkSize, overlap: cfg.ChunkOverlap}

	var out []string
	for _, c := range s.split(text, Separators) {
		c = strings.TrimSpace(c)
		if utf8.RuneCountInString(c) < cfg.MinChunk || c == "" {
			continue
		}
		if header != "" {
			c = "[" + header + "]\n" + c
		}
		out = append(out, c)
	}
	return out
}

// ChunkSection chunks one section, using its code and title as the header.
func ChunkSection(sec doctree.Section, title string, cfg Config) []doctree.Chunk {
	texts := ChunkText(sec.Text, Header(sec.Code, title), cfg)
	chunks := make([]doctree.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = doctree.Chunk{Text: t, Index: i, Section: sec.Code}
	}
	return chunks
}

type splitter struct {
	size    int
	overlap int
}

func (s splitter) split(text string, seps []string) []string {
	sep := seps[len(seps)-1]
	var rest []string
	for i, c := range seps {
		if c == "" {
			sep = c
			break
		}
		if strings.Contains(text, c) {
			sep = c
			rest = seps[i+1:]
			break
		}
	}

	var (
		final []string
		good  []string
	)
	for _, piece := range splitKeep(text, sep) {
		if runeLen(piece) < s.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good)...)
	}
	return final
}

// merge packs pieces into windows no longer than size, carrying up to
// overlap characters of trailing pieces into the next window.
func (s splitter) merge(pieces []string) []string {
	var (
		docs  []string
		cur   []string
		total int
	)
	for _, p := range pieces {
		n := runeLen(p)
		if total+n > s.size && len(cur) > 0 {
			if doc := strings.TrimSpace(strings.Join(cur, "")); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.overlap || (total+n > s.size && total > 0) {
				total -= runeLen(cur[0])
				cur = cur[1:]
			}
		}
		cur = append(cur, p)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(cur, "")); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeep splits on sep and keeps the separator at the start of every
// piece after the first. An empty sep splits into characters.
func splitKeep(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, len(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
