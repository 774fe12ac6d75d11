// Package rerank re-scores an initial retrieval candidate set.
//
// HeuristicReranker needs no model. It rewards query term overlap, domain
// vocabulary shared by query and passage, section-header openings, currency
// amounts and moderate passage length, then blends that score with the
// retrieval score.
package rerank

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/poiesic/coverwise/search"
)

// Candidate is one first-pass retrieval result.
type Candidate struct {
	ChunkID  string
	Text     string
	Score    float64
	Metadata map[string]string
}

// Result is a re-scored candidate. Rank starts at 1.
type Result struct {
	ChunkID       string
	Text          string
	OriginalScore float64
	RerankScore   float64
	FinalScore    float64
	Rank          int
	Metadata      map[string]string
}

// Reranker re-orders candidates for a query and keeps at most topK.
// A cross-encoder implementation can satisfy the same interface.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Candidate, topK int) ([]Result, error)
}

const (
	DefaultOriginalWeight = 0.4
	DefaultRerankWeight   = 0.6

	overlapWeight   = 0.4
	substringBonus  = 0.05
	domainTermBonus = 0.1
	structureBonus  = 0.1
	currencyBonus   = 0.1
	moderateLength  = 0.05
	shortPenalty    = -0.1
)

// DefaultDomainTerms maps coverage vocabulary to a boost factor.
var DefaultDomainTerms = map[string]float64{
	"covered":        1.5,
	"coverage":       1.2,
	"excluded":       2.0,
	"exclusion":      2.0,
	"not covered":    2.0,
	"deductible":     1.5,
	"cap":            1.3,
	"limit":          1.3,
	"maximum":        1.2,
	"reimbursement":  1.2,
	"copay":          1.2,
	"waiting period": 1.2,
	"claim":          1.0,
	"premium":        1.0,
	"warranty":       1.0,
}

var (
	currencyPattern = regexp.MustCompile(`(?i)([$€£]\s?\d[\d,]*(\.\d+)?|\b\d[\d,]*(\.\d+)?\s?(usd|eur|gbp|dollars)\b)`)
	numberedHeader  = regexp.MustCompile(`^(\d+(\.\d+)*[.)]?|section\s+\d+|article\s+\d+)\s`)

	sectionKeywords = []string{
		"exclusions", "coverage", "covered items", "definitions", "limitations",
		"conditions", "benefits", "deductibles", "claims", "what is covered",
		"what is not covered",
	}
)

// HeuristicReranker scores passages with lexical and structural signals.
type HeuristicReranker struct {
	originalWeight float64
	rerankWeight   float64
	domainTerms    []domainTerm
	logger         *slog.Logger
}

type domainTerm struct {
	term  string
	boost float64
}

// sortedTerms orders the vocabulary by term so scores are summed in the same
// order on every call.
func sortedTerms(terms map[string]float64) []domainTerm {
	out := make([]domainTerm, 0, len(terms))
	for _, term := range slices.Sorted(maps.Keys(terms)) {
		out = append(out, domainTerm{term: term, boost: terms[term]})
	}
	return out
}

var _ Reranker = (*HeuristicReranker)(nil)

// Option configures a HeuristicReranker.
type Option func(*HeuristicReranker) error

// WithLogger sets the logger. A nil logger falls back to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(r *HeuristicReranker) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger.With("component", "reranker")
		return nil
	}
}

// WithWeights sets the blend of original and rerank scores.
func WithWeights(original, rerank float64) Option {
	return func(r *HeuristicReranker) error {
		if original < 0 || rerank < 0 || original+rerank == 0 {
			return fmt.Errorf("invalid rerank weights: original=%v rerank=%v", original, rerank)
		}
		r.originalWeight, r.rerankWeight = original, rerank
		return nil
	}
}

// WithDomainTerms replaces the domain vocabulary and its boost factors.
func WithDomainTerms(terms map[string]float64) Option {
	return func(r *HeuristicReranker) error {
		r.domainTerms = sortedTerms(terms)
		return nil
	}
}

// NewHeuristicReranker creates a reranker with default weights and terms.
func NewHeuristicReranker(opts ...Option) (*HeuristicReranker, error) {
	r := &HeuristicReranker{
		originalWeight: DefaultOriginalWeight,
		rerankWeight:   DefaultRerankWeight,
		domainTerms:    sortedTerms(DefaultDomainTerms),
		logger:         slog.Default().With("component", "reranker"),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Rerank scores every candidate, sorts by final score (stable) and keeps
// topK. topK <= 0 keeps all.
func (r *HeuristicReranker) Rerank(ctx context.Context, query string, candidates []Candidate, topK int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryTokens := uniqueTokens(search.ContentTokens(query))
	queryLower := strings.ToLower(query)

	results := make([]Result, len(candidates))
	for i, c := range candidates {
		score := r.Score(queryLower, queryTokens, c.Text)
		results[i] = Result{
			ChunkID:       c.ChunkID,
			Text:          c.Text,
			OriginalScore: c.Score,
			RerankScore:   score,
			FinalScore:    r.originalWeight*c.Score + r.rerankWeight*score,
			Metadata:      maps.Clone(c.Metadata),
		}
	}

	slices.SortStableFunc(results, func(a, b Result) int {
		switch {
		case a.FinalScore > b.FinalScore:
			return -1
		case a.FinalScore < b.FinalScore:
			return 1
		}
		return 0
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	for i := range results {
		results[i].Rank = i + 1
	}

	r.logger.Debug("reranked candidates", "candidates", len(candidates), "returned", len(results))
	return results, nil
}

// Score returns the heuristic relevance of text in [0,1]. queryLower is the
// lowercased query and queryTokens its distinct content tokens.
func (r *HeuristicReranker) Score(queryLower string, queryTokens []string, text string) float64 {
	textLower := strings.ToLower(text)
	score := 0.0

	if len(queryTokens) > 0 {
		textTokens := make(map[string]bool)
		for _, t := range search.Tokenize(text) {
			textTokens[t] = true
		}
		matched := 0
		for _, q := range queryTokens {
			if textTokens[q] {
				matched++
			}
			if strings.Contains(textLower, q) {
				score += substringBonus
			}
		}
		score += overlapWeight * float64(matched) / float64(len(queryTokens))
	}

	for _, d := range r.domainTerms {
		if containsTerm(queryLower, d.term) && containsTerm(textLower, d.term) {
			score += domainTermBonus * d.boost
		}
	}

	if startsWithStructure(text) {
		score += structureBonus
	}
	if currencyPattern.MatchString(text) {
		score += currencyBonus
	}

	switch n := len([]rune(strings.TrimSpace(text))); {
	case n < 50:
		score += shortPenalty
	case n >= 100 && n <= 500:
		score += moderateLength
	}

	return max(0, min(1, score))
}

// containsTerm matches term in lowercased s on word boundaries.
func containsTerm(s, term string) bool {
	for from := 0; ; {
		i := strings.Index(s[from:], term)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(term)
		before, _ := utf8.DecodeLastRuneInString(s[:start])
		after, _ := utf8.DecodeRuneInString(s[end:])
		if isBoundary(before) && isBoundary(after) {
			return true
		}
		from = start + 1
	}
}

// isBoundary treats utf8.RuneError (start or end of string) as a boundary.
func isBoundary(r rune) bool {
	return r == utf8.RuneError || (!unicode.IsLetter(r) && !unicode.IsDigit(r))
}

func startsWithStructure(text string) bool {
	first, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	first = strings.TrimSpace(first)
	if first == "" {
		return false
	}
	if strings.HasPrefix(first, "#") || numberedHeader.MatchString(strings.ToLower(first)) {
		return true
	}
	lower := strings.ToLower(first)
	for _, kw := range sectionKeywords {
		if strings.HasPrefix(lower, kw) {
			return true
		}
	}
	letters, upper := 0, 0
	for _, c := range first {
		if unicode.IsLetter(c) {
			letters++
			if unicode.IsUpper(c) {
				upper++
			}
		}
	}
	return letters >= 3 && letters == upper && len([]rune(first)) <= 80
}

func uniqueTokens(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
