package chunker

import (
	"fmt"
	"log/slog"
	"strconv"
	"unicode"

	"github.com/poiesic/coverwise/core"
)

// Metadata keys the chunker adds to every chunk.
const (
	MetaDocumentID   = "doc_id"
	MetaChunkIndex   = "chunk_index"
	MetaStrategy     = "strategy"
	MetaSectionTitle = "section_title"
)

// Chunk is a bounded span of source text. StartChar and EndChar are rune
// offsets into the original text; Text equals that slice of the source.
type Chunk struct {
	ID        string
	Text      string
	Index     int
	StartChar int
	EndChar   int
	Metadata  map[string]string
}

// Len returns the chunk length in runes.
func (c Chunk) Len() int {
	return c.EndChar - c.StartChar
}

// span is a half-open rune range with an optional section title.
type span struct {
	start, end int
	title      string
}

func (s span) size() int { return s.end - s.start }

// Chunker splits policy text into overlapping, section-aware chunks.
type Chunker struct {
	cfg    Config
	logger *slog.Logger
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chunker) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// New creates a Chunker. A zero Strategy means hybrid.
func New(cfg Config, opts ...Option) (*Chunker, error) {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyHybrid
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Chunker{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "chunker")
	return c, nil
}

// Config returns the chunker's configuration.
func (c *Chunker) Config() Config {
	return c.cfg
}

// Chunk splits text into chunks. Identical input and configuration always
// produce identical chunks, ids included. Blank input yields no chunks.
func (c *Chunker) Chunk(text, docID string, metadata map[string]string) []Chunk {
	runes := []rune(text)
	if isBlank(runes, 0, len(runes)) {
		return []Chunk{}
	}

	var spans []span
	switch c.cfg.Strategy {
	case StrategyFixedSize:
		spans = c.fixedSize(runes, span{start: 0, end: len(runes)})
	case StrategySentence:
		spans = c.accumulate(runes, sentenceSpans(runes))
	case StrategyParagraph:
		spans = c.accumulate(runes, paragraphSpans(runes))
	case StrategySemantic:
		spans = c.semantic(runes)
	default:
		spans = c.hybrid(runes)
	}

	chunks := make([]Chunk, 0, len(spans))
	for _, s := range spans {
		s = trimSpan(runes, s)
		if s.size() == 0 {
			continue
		}
		chunks = append(chunks, c.newChunk(runes, s, len(chunks), docID, metadata))
	}

	c.logger.Debug("chunked document",
		"doc_id", docID,
		"strategy", c.cfg.Strategy,
		"runes", len(runes),
		"chunks", len(chunks))
	return chunks
}

func (c *Chunker) newChunk(runes []rune, s span, index int, docID string, metadata map[string]string) Chunk {
	text := string(runes[s.start:s.end])

	meta := make(map[string]string, len(metadata)+4)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[MetaDocumentID] = docID
	meta[MetaChunkIndex] = strconv.Itoa(index)
	meta[MetaStrategy] = string(c.cfg.Strategy)
	if s.title != "" {
		meta[MetaSectionTitle] = s.title
	}

	return Chunk{
		ID:        ChunkID(docID, index, text),
		Text:      text,
		Index:     index,
		StartChar: s.start,
		EndChar:   s.end,
		Metadata:  meta,
	}
}

// ChunkID derives a stable identifier from the document, position and content.
func ChunkID(docID string, index int, text string) string {
	digest := uint64(core.IDFromContent(text))
	key := fmt.Sprintf("%s:%d:%016x", docID, index, digest)
	return fmt.Sprintf("%016x", uint64(core.IDFromContent(key)))
}

// fixedSize slides a window of ChunkSize runes over s, stepping back by
// ChunkOverlap. A window ends at its last space when that space lies beyond
// MinChunkSize into the window; otherwise the cut is hard.
func (c *Chunker) fixedSize(runes []rune, s span) []span {
	var out []span
	start := s.start
	for start < s.end {
		end := min(start+c.cfg.ChunkSize, s.end)
		if end < s.end {
			for k := end - 1; k-start > c.cfg.MinChunkSize; k-- {
				if unicode.IsSpace(runes[k]) {
					end = k
					break
				}
			}
		}
		out = append(out, span{start: start, end: end, title: s.title})
		if end >= s.end {
			break
		}
		next := end - c.cfg.ChunkOverlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// accumulate packs consecutive units into chunks no longer than ChunkSize.
// A unit that alone exceeds ChunkSize is fixed-size split.
func (c *Chunker) accumulate(runes []rune, units []span) []span {
	var out []span
	var buf *span
	flush := func() {
		if buf != nil {
			out = append(out, *buf)
			buf = nil
		}
	}

	for _, u := range units {
		if u.size() > c.cfg.ChunkSize {
			flush()
			out = append(out, c.fixedSize(runes, u)...)
			continue
		}
		if buf != nil && u.end-buf.start > c.cfg.ChunkSize {
			flush()
		}
		if buf == nil {
			b := u
			buf = &b
			continue
		}
		buf.end = u.end
	}
	flush()
	return out
}

// semantic splits on section headers and fixed-size splits oversized sections.
func (c *Chunker) semantic(runes []rune) []span {
	var out []span
	for _, s := range sectionSpans(runes) {
		if s.size() > c.cfg.ChunkSize {
			out = append(out, c.fixedSize(runes, s)...)
			continue
		}
		out = append(out, s)
	}
	return out
}

// hybrid runs semantic chunking, then merges runs of small chunks. A run is
// emitted once its accumulated size reaches ChunkSize, when a full-size
// chunk interrupts it, or at the end of the text.
func (c *Chunker) hybrid(runes []rune) []span {
	var out []span
	var run []span
	accumulated := 0
	flush := func() {
		if len(run) == 0 {
			return
		}
		merged := span{start: run[0].start, end: run[len(run)-1].end}
		for _, s := range run {
			if s.title != "" {
				merged.title = s.title
				break
			}
		}
		out = append(out, merged)
		run = run[:0]
		accumulated = 0
	}

	for _, s := range c.semantic(runes) {
		trimmed := trimSpan(runes, s)
		if trimmed.size() >= c.cfg.MinChunkSize {
			flush()
			out = append(out, s)
			continue
		}
		if trimmed.size() == 0 {
			continue
		}
		run = append(run, s)
		accumulated += trimmed.size()
		if accumulated >= c.cfg.ChunkSize {
			flush()
		}
	}
	flush()
	return out
}

func trimSpan(runes []rune, s span) span {
	for s.start < s.end && unicode.IsSpace(runes[s.start]) {
		s.start++
	}
	for s.end > s.start && unicode.IsSpace(runes[s.end-1]) {
		s.end--
	}
	return s
}

func isBlank(runes []rune, start, end int) bool {
	for _, r := range runes[start:end] {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
