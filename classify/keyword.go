package classify

import (
	"context"
	"regexp"
	"strings"

	"github.com/poiesic/coverwise/core"
)

type family struct {
	chunkType core.ChunkType
	pattern   *regexp.Regexp
}

func phrases(words ...string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(w), " ", `\s+`)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// families is scanned top to bottom; order is the priority.
var families = []family{
	{core.ChunkTypeExclusion, phrases(
		"does not cover", "do not cover", "will not cover", "not covered",
		"excluded", "exclusion", "exclusions", "excludes", "not payable",
		"not eligible", "we will not pay", "no coverage", "not include",
		"not included", "except for",
	)},
	{core.ChunkTypeDefinition, phrases(
		"means", "defined as", "refers to", "definition", "definitions",
		"shall mean", "is defined",
	)},
	{core.ChunkTypeLimitation, phrases(
		"limit", "limits", "limited to", "limitation", "cap", "capped",
		"deductible", "not exceed", "not to exceed", "maximum", "up to",
		"per year", "per claim", "sub-limit",
	)},
	{core.ChunkTypeInclusion, phrases(
		"we will pay", "covered", "we cover", "covers", "coverage includes",
		"is included", "are included", "benefit", "benefits", "eligible",
		"reimburse", "reimbursed",
	)},
	{core.ChunkTypeProcedure, phrases(
		"must", "shall", "notify", "claim within", "submit", "in order to",
		"procedure", "required to", "contact",
	)},
}

// KeywordClassifier is the deterministic rule-based classifier.
type KeywordClassifier struct{}

// NewKeywordClassifier returns the keyword classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// Classify returns the highest-priority family that matches text.
func (k *KeywordClassifier) Classify(_ context.Context, text string) core.ChunkType {
	return classifyKeywords(text)
}

// ClassifyBatch classifies every text. Results never carry Fallback.
func (k *KeywordClassifier) ClassifyBatch(_ context.Context, texts []string) []Result {
	out := make([]Result, len(texts))
	for i, text := range texts {
		out[i] = Result{Type: classifyKeywords(text)}
	}
	return out
}

func classifyKeywords(text string) core.ChunkType {
	if strings.TrimSpace(text) == "" {
		return core.ChunkTypeRawText
	}
	for _, f := range families {
		if f.pattern.MatchString(text) {
			return f.chunkType
		}
	}
	return core.ChunkTypeRawText
}
