package search

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/poiesic/coverwise/core"
)

// Mode selects how candidates are scored.
type Mode string

const (
	ModeKeyword  Mode = "keyword"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

// ParseMode converts a flag or config value to a Mode. Empty means hybrid.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeHybrid, nil
	case ModeKeyword, ModeSemantic, ModeHybrid:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

const (
	// MetadataPolicyID is the metadata key used for policy filtering.
	MetadataPolicyID = "policy_id"

	DefaultKeywordWeight  = 0.3
	DefaultSemanticWeight = 0.7

	// DefaultKeywordNormalizer divides raw BM25 scores before clamping to [0,1].
	DefaultKeywordNormalizer = 10.0

	DefaultTopK = 10
)

// Document is one searchable chunk.
type Document struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  map[string]string
}

// Request describes a search.
type Request struct {
	Query          string
	QueryEmbedding []float32
	Mode           Mode
	TopK           int
	MinScore       float64

	// PolicyID restricts candidates to documents with that policy_id
	// metadata. Empty searches every document.
	PolicyID string
}

// Result is one ranked match. KeywordScore and SemanticScore are each in
// [0,1]; Score is the value the mode ranks by.
type Result struct {
	ChunkID       string
	Text          string
	Score         float64
	KeywordScore  float64
	SemanticScore float64
	Metadata      map[string]string
}

// Engine combines BM25 keyword scoring with embedding similarity.
// It is safe for concurrent use; a search started after a write returns
// observes that write.
type Engine struct {
	mu       sync.RWMutex
	docs     []Document
	byID     map[string]int
	byPolicy map[string][]int
	dims     int
	bm25     *BM25

	k1, b          float64
	keywordWeight  float64
	semanticWeight float64
	normalizer     float64
	monitor        SearchMonitor
	logger         *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger.With("component", "hybrid-search")
		return nil
	}
}

// WithWeights sets the hybrid fusion weights.
func WithWeights(keyword, semantic float64) Option {
	return func(e *Engine) error {
		if keyword < 0 || semantic < 0 || keyword+semantic == 0 {
			return fmt.Errorf("%w: keyword=%v semantic=%v", ErrInvalidWeights, keyword, semantic)
		}
		e.keywordWeight = keyword
		e.semanticWeight = semantic
		return nil
	}
}

// WithBM25Params sets k1 and b for the keyword index.
func WithBM25Params(k1, b float64) Option {
	return func(e *Engine) error {
		e.k1, e.b = k1, b
		return nil
	}
}

// WithKeywordNormalizer sets the divisor applied to raw BM25 scores.
func WithKeywordNormalizer(n float64) Option {
	return func(e *Engine) error {
		if n <= 0 {
			return fmt.Errorf("keyword normalizer must be positive, got %v", n)
		}
		e.normalizer = n
		return nil
	}
}

// WithMonitor installs a monitor that observes every search.
func WithMonitor(m SearchMonitor) Option {
	return func(e *Engine) error {
		if m == nil {
			m = &noopMonitor{}
		}
		e.monitor = m
		return nil
	}
}

// NewEngine creates an empty engine.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		byID:           map[string]int{},
		byPolicy:       map[string][]int{},
		k1:             DefaultK1,
		b:              DefaultB,
		keywordWeight:  DefaultKeywordWeight,
		semanticWeight: DefaultSemanticWeight,
		normalizer:     DefaultKeywordNormalizer,
		monitor:        &noopMonitor{},
		logger:         slog.Default().With("component", "hybrid-search"),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.bm25 = NewBM25(e.k1, e.b)
	return e, nil
}

// AddDocuments adds documents whose ids are not already present and refits
// the keyword index. Existing ids are skipped, never overwritten. The batch
// is validated before anything is added. It returns the number added.
func (e *Engine) AddDocuments(docs []Document) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dims := e.dims
	for _, d := range docs {
		if d.ID == "" {
			return 0, ErrEmptyDocumentID
		}
		if len(d.Embedding) == 0 {
			continue
		}
		if dims == 0 {
			dims = len(d.Embedding)
		} else if len(d.Embedding) != dims {
			return 0, fmt.Errorf("%w: document %s has %d dimensions, expected %d",
				ErrDimensionMismatch, d.ID, len(d.Embedding), dims)
		}
	}

	added := 0
	for _, d := range docs {
		if _, exists := e.byID[d.ID]; exists {
			e.logger.Debug("skipping document already indexed", "id", d.ID)
			continue
		}
		d.Metadata = maps.Clone(d.Metadata)
		d.Embedding = slices.Clone(d.Embedding)
		e.byID[d.ID] = len(e.docs)
		e.docs = append(e.docs, d)
		added++
	}
	if added == 0 {
		return 0, nil
	}

	e.dims = dims
	e.rebuild()
	e.logger.Debug("added documents", "added", added, "skipped", len(docs)-added, "total", len(e.docs))
	return added, nil
}

// RemoveDocument deletes a document and refits the keyword index.
func (e *Engine) RemoveDocument(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i, ok := e.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	e.docs = slices.Delete(e.docs, i, i+1)
	e.rebuild()
	return nil
}

// RemoveDocuments deletes every listed document that is indexed, refitting
// once. Unknown ids are ignored. It returns the number removed.
func (e *Engine) RemoveDocuments(ids ...string) int {
	if len(ids) == 0 {
		return 0
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	before := len(e.docs)
	e.docs = slices.DeleteFunc(e.docs, func(d Document) bool {
		_, ok := drop[d.ID]
		return ok
	})
	removed := before - len(e.docs)
	if removed > 0 {
		e.rebuild()
	}
	return removed
}

// RemovePolicy deletes every document of a policy and returns how many
// were removed.
func (e *Engine) RemovePolicy(policyID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	before := len(e.docs)
	e.docs = slices.DeleteFunc(e.docs, func(d Document) bool {
		return d.Metadata[MetadataPolicyID] == policyID
	})
	removed := before - len(e.docs)
	if removed > 0 {
		e.rebuild()
	}
	return removed
}

// Len returns the number of indexed documents.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.docs)
}

// Has reports whether id is indexed.
func (e *Engine) Has(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.byID[id]
	return ok
}

// rebuild recomputes the id and policy indexes and refits BM25.
// Callers hold the write lock.
func (e *Engine) rebuild() {
	e.byID = make(map[string]int, len(e.docs))
	e.byPolicy = make(map[string][]int)
	texts := make([]string, len(e.docs))
	for i, d := range e.docs {
		e.byID[d.ID] = i
		if p := d.Metadata[MetadataPolicyID]; p != "" {
			e.byPolicy[p] = append(e.byPolicy[p], i)
		}
		texts[i] = d.Text
	}
	if len(e.docs) == 0 {
		e.dims = 0
	}
	e.bm25.Fit(texts)
}

// Search ranks documents for req.
func (e *Engine) Search(ctx context.Context, req Request) ([]Result, error) {
	started := time.Now()
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return nil, err
	}
	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	e.monitor.Start(req)

	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(req.QueryEmbedding) > 0 && e.dims > 0 && len(req.QueryEmbedding) != e.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			ErrDimensionMismatch, len(req.QueryEmbedding), e.dims)
	}

	if mode != ModeKeyword && len(req.QueryEmbedding) == 0 {
		e.logger.Warn("no query embedding, falling back to keyword search", "mode", mode)
		e.monitor.Degraded(mode, ModeKeyword)
		mode = ModeKeyword
	}

	candidates := e.candidates(req.PolicyID)
	e.monitor.AfterCandidateFilter(req.PolicyID, len(candidates))

	var keywordScores, semanticScores map[int]float64
	if mode != ModeSemantic {
		keywordScores = e.keywordScores(req.Query, candidates)
		e.monitor.AfterKeywordScoring(len(keywordScores))
	}
	if mode != ModeKeyword {
		semanticScores = e.semanticScores(req.QueryEmbedding, candidates)
		e.monitor.AfterSemanticScoring(len(semanticScores))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]Result, 0)
	for _, i := range candidates {
		kw, sem := keywordScores[i], semanticScores[i]
		var score float64
		switch mode {
		case ModeKeyword:
			score = kw
		case ModeSemantic:
			score = sem
		default:
			score = e.keywordWeight*kw + e.semanticWeight*sem
		}
		if score <= 0 || score < req.MinScore {
			continue
		}
		d := e.docs[i]
		results = append(results, Result{
			ChunkID:       d.ID,
			Text:          d.Text,
			Score:         score,
			KeywordScore:  kw,
			SemanticScore: sem,
			Metadata:      maps.Clone(d.Metadata),
		})
	}

	slices.SortStableFunc(results, func(a, b Result) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if len(results) > topK {
		results = results[:topK]
	}

	e.monitor.Finish(mode, results, time.Since(started))
	return results, nil
}

// candidates returns document indexes in insertion order.
func (e *Engine) candidates(policyID string) []int {
	if policyID != "" {
		return e.byPolicy[policyID]
	}
	all := make([]int, len(e.docs))
	for i := range all {
		all[i] = i
	}
	return all
}

func (e *Engine) keywordScores(query string, candidates []int) map[int]float64 {
	tokens := Tokenize(query)
	scores := make(map[int]float64, len(candidates))
	if len(tokens) == 0 {
		return scores
	}
	for _, i := range candidates {
		raw := e.bm25.scoreTokens(tokens, i)
		if raw <= 0 {
			continue
		}
		scores[i] = min(raw/e.normalizer, 1)
	}
	return scores
}

func (e *Engine) semanticScores(query []float32, candidates []int) map[int]float64 {
	scores := make(map[int]float64, len(candidates))
	for _, i := range candidates {
		sim, ok := core.CosineSimilarity(query, e.docs[i].Embedding)
		if !ok || sim <= 0 {
			continue
		}
		scores[i] = sim
	}
	return scores
}
