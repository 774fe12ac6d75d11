package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newChunker(t *testing.T, cfg Config) *Chunker {
	t.Helper()
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown strategy", func(c *Config) { c.Strategy = "recursive" }, true},
		{"zero size", func(c *Config) { c.ChunkSize = 0 }, true},
		{"negative overlap", func(c *Config) { c.ChunkOverlap = -1 }, true},
		{"overlap equals size", func(c *Config) { c.ChunkOverlap = c.ChunkSize }, true},
		{"min above size", func(c *Config) { c.MinChunkSize = c.ChunkSize + 1 }, true},
		{"zero min", func(c *Config) { c.MinChunkSize = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewDefaultsStrategy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = ""
	c := newChunker(t, cfg)
	assert.Equal(t, StrategyHybrid, c.Config().Strategy)

	_, err := New(Config{Strategy: StrategyFixedSize})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEmptyInput(t *testing.T) {
	for _, s := range []Strategy{StrategyFixedSize, StrategySentence, StrategyParagraph, StrategySemantic, StrategyHybrid} {
		cfg := DefaultConfig()
		cfg.Strategy = s
		c := newChunker(t, cfg)

		chunks := c.Chunk("", "doc", nil)
		assert.NotNil(t, chunks, s)
		assert.Empty(t, chunks, s)
		assert.Empty(t, c.Chunk(" \n\t\n  ", "doc", nil), s)
	}
}

func TestFixedSizeScenario(t *testing.T) {
	cfg := Config{Strategy: StrategyFixedSize, ChunkSize: 512, ChunkOverlap: 50, MinChunkSize: 100}
	c := newChunker(t, cfg)

	t.Run("text with spaces breaks between words", func(t *testing.T) {
		text := strings.Repeat("abcdefghi ", 100)
		require.Len(t, []rune(text), 1000)

		chunks := c.Chunk(text, "doc-1", nil)
		require.Len(t, chunks, 3)
		for i, ch := range chunks {
			if i < len(chunks)-1 {
				assert.LessOrEqual(t, ch.Len(), 512)
			}
			assert.False(t, strings.HasPrefix(ch.Text, " "))
			assert.True(t, strings.HasSuffix(ch.Text, "i"), "chunk %d should end on a word boundary", i)
		}
		for i := 1; i < len(chunks); i++ {
			overlap := chunks[i-1].EndChar - chunks[i].StartChar
			assert.InDelta(t, 50, overlap, 2, "overlap between chunk %d and %d", i-1, i)
		}
	})

	t.Run("text without spaces uses hard cuts", func(t *testing.T) {
		text := strings.Repeat("x", 1000)
		chunks := c.Chunk(text, "doc-2", nil)
		require.Len(t, chunks, 3)
		assert.Equal(t, 0, chunks[0].StartChar)
		assert.Equal(t, 512, chunks[0].EndChar)
		assert.Equal(t, 462, chunks[1].StartChar)
		assert.Equal(t, 974, chunks[1].EndChar)
		assert.Equal(t, 924, chunks[2].StartChar)
		assert.Equal(t, 1000, chunks[2].EndChar)
	})

	t.Run("space too early in window is ignored", func(t *testing.T) {
		text := "ab " + strings.Repeat("y", 700)
		chunks := c.Chunk(text, "doc-3", nil)
		require.NotEmpty(t, chunks)
		assert.Equal(t, 512, chunks[0].EndChar)
	})
}

func TestSentenceStrategy(t *testing.T) {
	c := newChunker(t, Config{Strategy: StrategySentence, ChunkSize: 30, MinChunkSize: 5})
	text := "First sentence here. Second one is here! Third? yes lower. Fourth."

	chunks := c.Chunk(text, "doc", nil)
	assert.Equal(t, []string{
		"First sentence here.",
		"Second one is here!",
		"Third? yes lower. Fourth.",
	}, texts(chunks))
}

func TestSentenceStrategySplitsLongSentence(t *testing.T) {
	c := newChunker(t, Config{Strategy: StrategySentence, ChunkSize: 20, MinChunkSize: 5})
	text := "Short one. Z" + strings.Repeat("z", 44) + "."

	chunks := c.Chunk(text, "doc", nil)
	require.GreaterOrEqual(t, len(chunks), 3)
	assert.Equal(t, "Short one.", chunks[0].Text)
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.Len(), 20)
	}
}

func TestParagraphStrategy(t *testing.T) {
	text := "Para one.\n\nPara two.\n  \nPara three."

	small := newChunker(t, Config{Strategy: StrategyParagraph, ChunkSize: 12, MinChunkSize: 1})
	assert.Equal(t, []string{"Para one.", "Para two.", "Para three."}, texts(small.Chunk(text, "doc", nil)))

	large := newChunker(t, Config{Strategy: StrategyParagraph, ChunkSize: 100, MinChunkSize: 1})
	chunks := large.Chunk(text, "doc", nil)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
}

const sectionedPolicy = `Preamble text about the policy.
# What is Covered
Pistons and crankshaft are covered.
EXCLUSIONS
Turbochargers are excluded.
3.1 Claims Procedure
Notify us within 30 days.`

func TestSemanticStrategy(t *testing.T) {
	c := newChunker(t, Config{Strategy: StrategySemantic, ChunkSize: 512, MinChunkSize: 100})

	chunks := c.Chunk(sectionedPolicy, "doc", map[string]string{"policy_id": "P1"})
	require.Len(t, chunks, 4)

	assert.Equal(t, "Preamble text about the policy.", chunks[0].Text)
	_, hasTitle := chunks[0].Metadata[MetaSectionTitle]
	assert.False(t, hasTitle)

	assert.Equal(t, "What is Covered", chunks[1].Metadata[MetaSectionTitle])
	assert.True(t, strings.HasPrefix(chunks[1].Text, "# What is Covered"))
	assert.Equal(t, "EXCLUSIONS", chunks[2].Metadata[MetaSectionTitle])
	assert.Equal(t, "3.1 Claims Procedure", chunks[3].Metadata[MetaSectionTitle])

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, "P1", ch.Metadata["policy_id"])
		assert.Equal(t, "doc", ch.Metadata[MetaDocumentID])
		assert.Equal(t, string(StrategySemantic), ch.Metadata[MetaStrategy])
	}
}

func TestSemanticStrategySplitsLongSections(t *testing.T) {
	c := newChunker(t, Config{Strategy: StrategySemantic, ChunkSize: 100, ChunkOverlap: 10, MinChunkSize: 20})
	text := "DEFINITIONS\n" + strings.Repeat("A term means a thing. ", 20)

	chunks := c.Chunk(text, "doc", nil)
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.Len(), 100)
		assert.Equal(t, "DEFINITIONS", ch.Metadata[MetaSectionTitle])
	}
}

func TestHybridMergesSmallSections(t *testing.T) {
	c := newChunker(t, DefaultConfig())

	chunks := c.Chunk(sectionedPolicy, "doc", nil)
	require.Len(t, chunks, 1)
	assert.Equal(t, sectionedPolicy, chunks[0].Text)
	assert.Equal(t, "What is Covered", chunks[0].Metadata[MetaSectionTitle])
}

func TestHybridKeepsLargeSections(t *testing.T) {
	c := newChunker(t, DefaultConfig())
	large := "# Coverage\n" + strings.Repeat("Engine components are covered. ", 8)
	text := "DEFINITIONS\nWear means gradual loss.\n" + large + "\nEXCLUSIONS\nTurbo."

	chunks := c.Chunk(text, "doc", nil)
	require.Len(t, chunks, 3)
	assert.Equal(t, "DEFINITIONS\nWear means gradual loss.", chunks[0].Text)
	assert.Equal(t, strings.TrimSpace(large), chunks[1].Text)
	assert.Equal(t, "EXCLUSIONS\nTurbo.", chunks[2].Text)
}

func TestHybridFlushesWhenRunReachesChunkSize(t *testing.T) {
	c := newChunker(t, Config{Strategy: StrategyHybrid, ChunkSize: 60, ChunkOverlap: 0, MinChunkSize: 40})
	var b strings.Builder
	for range 6 {
		b.WriteString("# Part\nShort body text.\n")
	}

	chunks := c.Chunk(b.String(), "doc", nil)
	require.Len(t, chunks, 2)
}

func TestHeaderDetection(t *testing.T) {
	tests := []struct {
		line  string
		title string
		ok    bool
	}{
		{"## Engine Coverage", "Engine Coverage", true},
		{"WHAT IS NOT COVERED", "WHAT IS NOT COVERED", true},
		{"Exclusions:", "Exclusions:", true},
		{"2.3 Deductibles", "2.3 Deductibles", true},
		{"Section 4 Claims", "Section 4 Claims", true},
		{"IV. Termination", "IV. Termination", true},
		{"The engine is covered for wear.", "", false},
		{"#", "", false},
		{"OK", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		title, ok := headerTitle(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.title, title, tt.line)
	}
}

func TestChunkIDsAreDeterministic(t *testing.T) {
	c := newChunker(t, DefaultConfig())
	text := strings.Repeat("Engine parts are covered. ", 60)

	a := c.Chunk(text, "doc", nil)
	b := c.Chunk(text, "doc", nil)
	require.Equal(t, a, b)

	other := c.Chunk(text, "other-doc", nil)
	require.Equal(t, len(a), len(other))
	assert.NotEqual(t, a[0].ID, other[0].ID)
	assert.Len(t, a[0].ID, 16)
}

func TestUnicodeOffsets(t *testing.T) {
	c := newChunker(t, Config{Strategy: StrategyFixedSize, ChunkSize: 10, ChunkOverlap: 2, MinChunkSize: 0})
	text := "Prämie für Schäden über 500€ ist gedeckt"
	runes := []rune(text)
	for _, ch := range c.Chunk(text, "doc", nil) {
		assert.Equal(t, string(runes[ch.StartChar:ch.EndChar]), ch.Text)
		assert.LessOrEqual(t, ch.Len(), 10)
	}
}

var fragments = []string{
	"word ", "Policy ", "covered. ", "Excluded! ", "EXCLUSIONS\n", "\n\n", "# Header\n",
	"Deductible $500. ", "1. Item\n", " ", "x", "ü", "Why? ", "\n",
}

func strategyGen() *rapid.Generator[Strategy] {
	return rapid.SampledFrom([]Strategy{StrategyFixedSize, StrategySentence, StrategyParagraph, StrategySemantic, StrategyHybrid})
}

func TestChunkingProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		parts := rapid.SliceOfN(rapid.SampledFrom(fragments), 0, 300).Draw(t, "parts")
		text := strings.Join(parts, "")
		size := rapid.IntRange(8, 300).Draw(t, "size")
		cfg := Config{
			Strategy:     strategyGen().Draw(t, "strategy"),
			ChunkSize:    size,
			ChunkOverlap: rapid.IntRange(0, size-1).Draw(t, "overlap"),
			MinChunkSize: rapid.IntRange(0, size).Draw(t, "min"),
		}
		c, err := New(cfg)
		if err != nil {
			t.Fatal(err)
		}

		runes := []rune(text)
		first := c.Chunk(text, "doc", nil)
		second := c.Chunk(text, "doc", nil)
		if len(first) != len(second) {
			t.Fatalf("re-chunking produced %d then %d chunks", len(first), len(second))
		}
		seen := make(map[string]bool)
		for i, ch := range first {
			if ch.ID != second[i].ID || ch.Text != second[i].Text ||
				ch.StartChar != second[i].StartChar || ch.EndChar != second[i].EndChar {
				t.Fatalf("chunk %d differs between runs", i)
			}
			if ch.Index != i {
				t.Fatalf("chunk %d has index %d", i, ch.Index)
			}
			if ch.StartChar < 0 || ch.EndChar > len(runes) || ch.StartChar >= ch.EndChar {
				t.Fatalf("chunk %d has bad offsets [%d,%d)", i, ch.StartChar, ch.EndChar)
			}
			if string(runes[ch.StartChar:ch.EndChar]) != ch.Text {
				t.Fatalf("chunk %d text does not match its offsets", i)
			}
			if strings.TrimSpace(ch.Text) != ch.Text || ch.Text == "" {
				t.Fatalf("chunk %d is not trimmed: %q", i, ch.Text)
			}
			if cfg.Strategy != StrategyHybrid && ch.Len() > cfg.ChunkSize {
				t.Fatalf("chunk %d has %d runes, limit %d", i, ch.Len(), cfg.ChunkSize)
			}
			if seen[ch.ID] {
				t.Fatalf("duplicate chunk id %s", ch.ID)
			}
			seen[ch.ID] = true
		}
	})
}
