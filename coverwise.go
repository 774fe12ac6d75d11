// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package coverwise wires the coverage engine, policy storage and hybrid
// retrieval into a single Service.
package coverwise

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/poiesic/coverwise/ai"
	"github.com/poiesic/coverwise/ai/factory"
	"github.com/poiesic/coverwise/chunker"
	"github.com/poiesic/coverwise/classify"
	"github.com/poiesic/coverwise/config"
	"github.com/poiesic/coverwise/core"
	"github.com/poiesic/coverwise/coverage"
	"github.com/poiesic/coverwise/ingestion"
	"github.com/poiesic/coverwise/metrics"
	"github.com/poiesic/coverwise/policy"
	"github.com/poiesic/coverwise/rerank"
	"github.com/poiesic/coverwise/search"
	"github.com/poiesic/coverwise/storage"
	"github.com/poiesic/coverwise/storage/badger"
	"github.com/poiesic/coverwise/storage/memory"
	"golang.org/x/sync/errgroup"
)

// rerankPoolFactor widens the first-pass candidate set handed to the reranker.
const rerankPoolFactor = 3

// Service answers coverage questions against structured policies and
// retrieves supporting policy text.
type Service struct {
	cfg          *config.Config
	provider     ai.AIProvider
	ownsProvider bool
	embedder     ai.Embedder
	backend      *badger.Backend
	index        storage.VectorIndex
	policies     storage.PolicyRepository
	engine       *search.Engine
	reranker     rerank.Reranker
	pipeline     *ingestion.Pipeline
	metrics      *metrics.Collector
	clock        func() time.Time
	baseLogger   *slog.Logger // untagged; handed to components that add their own
	logger       *slog.Logger

	mu       sync.RWMutex
	coverage map[string]*coverage.Engine
	closed   bool
}

// NewService builds every component from the configuration, restores stored
// policies and chunks, and loads the configured policy files. When nothing
// is stored or configured the built-in default policy is loaded.
func NewService(ctx context.Context, opts ...Option) (*Service, error) {
	options := &serviceOptions{
		config: config.Default(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}
	cfg := options.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:      cfg,
		clock:      options.clock,
		baseLogger: options.logger,
		logger:     options.logger.With("component", "service"),
		coverage:   make(map[string]*coverage.Engine),
	}
	if err := s.init(ctx, options); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) init(ctx context.Context, options *serviceOptions) error {
	cfg := s.cfg
	logger := options.logger

	s.provider = options.provider
	if s.provider == nil {
		provider, err := factory.NewProvider(cfg.AIConfig())
		if err != nil {
			return fmt.Errorf("creating AI provider: %w", err)
		}
		s.provider = provider
		s.ownsProvider = true
	}
	s.embedder = s.provider.Embedder()
	dims := s.embedder.Dimensions()

	if err := s.openStorage(dims); err != nil {
		return err
	}
	s.metrics = metrics.NewCollector(cfg.Metrics.Namespace, options.registerer, logger)

	engine, err := search.NewEngine(
		search.WithLogger(logger),
		search.WithWeights(cfg.Search.KeywordWeight, cfg.Search.SemanticWeight),
		search.WithBM25Params(cfg.Search.K1, cfg.Search.B),
		search.WithKeywordNormalizer(cfg.Search.KeywordNormalizer),
		search.WithMonitor(s.metrics),
	)
	if err != nil {
		return err
	}
	s.engine = engine

	if cfg.Rerank.Enabled {
		r, err := rerank.NewHeuristicReranker(
			rerank.WithLogger(logger),
			rerank.WithWeights(cfg.Rerank.OriginalWeight, cfg.Rerank.RerankWeight),
		)
		if err != nil {
			return err
		}
		s.reranker = r
	}

	splitter, err := chunker.New(cfg.Chunker, chunker.WithLogger(logger))
	if err != nil {
		return err
	}
	classifier, err := s.newClassifier(logger)
	if err != nil {
		return err
	}
	pipelineOpts := []ingestion.Option{
		ingestion.WithLogger(logger),
		ingestion.WithBatchSize(cfg.Ingestion.BatchSize),
		ingestion.WithRetries(cfg.Ingestion.Retries),
		ingestion.WithSearchEngine(s.engine),
		ingestion.WithObserver(s.metrics),
	}
	if cfg.Ingestion.PoolSize > 0 {
		pipelineOpts = append(pipelineOpts, ingestion.WithPoolSize(cfg.Ingestion.PoolSize))
	}
	s.pipeline, err = ingestion.NewPipeline(splitter, classifier, s.embedder, s.index, pipelineOpts...)
	if err != nil {
		return err
	}

	if err := s.restore(ctx); err != nil {
		return err
	}
	for _, path := range cfg.Policies.Files {
		if _, err := s.LoadPolicyFile(ctx, path); err != nil {
			return err
		}
	}
	if len(s.PolicyIDs()) == 0 {
		if err := s.install(policy.Default()); err != nil {
			return err
		}
		s.logger.Info("no policies configured, loaded default policy", "policy_id", policy.DefaultPolicyID)
	}
	return nil
}

// openStorage opens badger at DataDir, or in-memory stores when it is empty.
// A persisted index built with another dimensionality fails here.
func (s *Service) openStorage(dims int) error {
	if s.cfg.DataDir == "" {
		index, err := memory.NewVectorIndex(dims)
		if err != nil {
			return err
		}
		s.index = index
		s.policies = memory.NewPolicyRepository()
		return nil
	}

	backend, err := badger.OpenBackend(s.cfg.DataDir, false)
	if err != nil {
		return fmt.Errorf("opening %s: %w", s.cfg.DataDir, err)
	}
	s.backend = backend
	index, err := badger.NewVectorIndex(backend, dims)
	if err != nil {
		return err
	}
	s.index = index
	s.policies = badger.NewPolicyRepository(backend)
	return nil
}

func (s *Service) newClassifier(logger *slog.Logger) (classify.Classifier, error) {
	if !s.cfg.Classifier.UseLLM {
		return classify.NewKeywordClassifier(), nil
	}
	return classify.NewLLMClassifier(s.provider.Generator(),
		classify.WithLogger(logger),
		classify.WithBatchSize(s.cfg.Classifier.BatchSize),
		classify.WithRateLimit(s.cfg.Classifier.RequestsPerSecond, 1),
	)
}

// restore loads stored policies and rebuilds the search engine from the
// vector index.
func (s *Service) restore(ctx context.Context) error {
	docs, err := s.policies.ListPolicies(ctx)
	if err != nil {
		return fmt.Errorf("listing stored policies: %w", err)
	}
	for _, doc := range docs {
		if err := s.install(doc); err != nil {
			s.logger.Error("skipping invalid stored policy", "policy_id", doc.Meta.ID, "err", err)
		}
	}

	chunks, err := s.index.ListChunks(ctx, "")
	if err != nil {
		return fmt.Errorf("listing stored chunks: %w", err)
	}
	searchDocs := make([]search.Document, len(chunks))
	for i, c := range chunks {
		searchDocs[i] = ingestion.SearchDocument(c)
	}
	if _, err := s.engine.AddDocuments(searchDocs); err != nil {
		return fmt.Errorf("indexing stored chunks: %w", err)
	}
	if len(docs) > 0 || len(chunks) > 0 {
		s.logger.Info("restored state", "policies", len(docs), "chunks", len(chunks))
	}
	return nil
}

// install builds a coverage engine for doc and swaps it in.
func (s *Service) install(doc *core.PolicyDocument) error {
	engine, err := coverage.NewEngine(coverage.WithLogger(s.baseLogger), coverage.WithClock(s.clock))
	if err != nil {
		return err
	}
	if err := engine.Load(doc); err != nil {
		return err
	}
	s.mu.Lock()
	s.coverage[doc.Meta.ID] = engine
	s.mu.Unlock()
	return nil
}

// LoadPolicy validates doc, stores it and makes it available for coverage
// checks, replacing any policy with the same id.
func (s *Service) LoadPolicy(ctx context.Context, doc *core.PolicyDocument) error {
	if s.isClosed() {
		return ErrClosed
	}
	if err := core.ValidatePolicyDocument(doc); err != nil {
		return err
	}
	if err := s.policies.SavePolicy(ctx, doc); err != nil {
		return fmt.Errorf("saving policy %s: %w", doc.Meta.ID, err)
	}
	return s.install(doc)
}

// LoadPolicyFile reads a YAML or JSON policy file and loads it.
func (s *Service) LoadPolicyFile(ctx context.Context, path string) (*core.PolicyDocument, error) {
	doc, err := policy.Load(path)
	if err != nil {
		return nil, err
	}
	if err := s.LoadPolicy(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// WatchPolicyFile loads path and reloads it on every change until ctx is
// done. A change that fails to load leaves the current policy in place.
func (s *Service) WatchPolicyFile(ctx context.Context, path string, opts ...policy.Option) error {
	opts = append([]policy.Option{policy.WithLogger(s.baseLogger)}, opts...)
	w, err := policy.NewWatcher(path, func(doc *core.PolicyDocument) {
		if err := s.LoadPolicy(ctx, doc); err != nil {
			s.logger.Error("error loading changed policy", "path", path, "err", err)
		}
	}, opts...)
	if err != nil {
		return err
	}
	if err := s.LoadPolicy(ctx, w.Current()); err != nil {
		w.Close()
		return err
	}
	return w.Run(ctx)
}

// Policy returns a copy of a loaded policy.
func (s *Service) Policy(id string) (*core.PolicyDocument, error) {
	engine, ok := s.coverageEngine(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, id)
	}
	return engine.Policy(), nil
}

// PolicyIDs returns the ids of every loaded policy, sorted.
func (s *Service) PolicyIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.coverage))
	for id := range s.coverage {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *Service) coverageEngine(id string) (*coverage.Engine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	engine, ok := s.coverage[id]
	return engine, ok
}

// CheckCoverage decides whether item is covered by the policy. For an
// unknown policy it returns a well-formed unknown result together with
// ErrPolicyNotFound.
func (s *Service) CheckCoverage(policyID, item string) (*core.CoverageCheckResult, error) {
	engine, ok := s.coverageEngine(policyID)
	if !ok {
		s.metrics.RecordCoverageCheck(core.StatusUnknown)
		return &core.CoverageCheckResult{
			ItemName: item,
			Status:   core.StatusUnknown,
			Reason:   fmt.Sprintf("Policy %s is not loaded", policyID),
		}, fmt.Errorf("%w: %s", ErrPolicyNotFound, policyID)
	}
	result, err := engine.CheckCoverage(item)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordCoverageCheck(result.Status)
	return result, nil
}

// CheckMany checks several items against one policy.
func (s *Service) CheckMany(policyID string, items []string) ([]*core.CoverageCheckResult, error) {
	results := make([]*core.CoverageCheckResult, len(items))
	for i, item := range items {
		result, err := s.CheckCoverage(policyID, item)
		if err != nil && !errors.Is(err, ErrPolicyNotFound) {
			return nil, err
		}
		results[i] = result
		if err != nil {
			return results[:i+1], err
		}
	}
	return results, nil
}

// Ingest chunks, classifies, embeds and indexes a policy document.
func (s *Service) Ingest(ctx context.Context, req ingestion.Request) (*ingestion.Report, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	return s.pipeline.Ingest(ctx, req)
}

// IngestAsync queues a document and returns its job id.
func (s *Service) IngestAsync(ctx context.Context, req ingestion.Request) (string, error) {
	if s.isClosed() {
		return "", ErrClosed
	}
	return s.pipeline.IngestAsync(ctx, req)
}

// Job returns the state of an asynchronous ingestion.
func (s *Service) Job(id string) (ingestion.Job, error) {
	return s.pipeline.Jobs().Get(id)
}

// RemoveDocument deletes every chunk of one ingested document.
func (s *Service) RemoveDocument(ctx context.Context, policyID, documentID string) (int, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}
	return s.pipeline.RemoveDocument(ctx, policyID, documentID)
}

// Query describes a retrieval request.
type Query struct {
	Text     string
	PolicyID string // empty searches every policy
	Mode     search.Mode
	TopK     int
	MinScore float64
}

// Retrieve finds the policy passages most relevant to a query. The query is
// embedded while a keyword search runs alongside; if embedding fails the
// keyword results are used. Results are reranked when reranking is enabled.
func (s *Service) Retrieve(ctx context.Context, q Query) ([]rerank.Result, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	if q.Text == "" {
		return nil, ErrEmptyQuery
	}
	mode, err := search.ParseMode(string(q.Mode))
	if err != nil {
		return nil, err
	}
	q.Mode = mode
	topK := q.TopK
	if topK <= 0 {
		topK = s.cfg.Search.TopK
	}
	fetch := topK
	if s.reranker != nil {
		fetch = topK * rerankPoolFactor
	}
	req := search.Request{
		Query:    q.Text,
		Mode:     q.Mode,
		TopK:     fetch,
		MinScore: q.MinScore,
		PolicyID: q.PolicyID,
	}

	var hits []search.Result
	if q.Mode == search.ModeKeyword {
		if hits, err = s.engine.Search(ctx, req); err != nil {
			return nil, err
		}
	} else {
		var (
			embedding []float32
			embedErr  error
			keyword   []search.Result
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			embedding, embedErr = s.embedder.EmbedText(gctx, q.Text)
			return nil
		})
		g.Go(func() error {
			kreq := req
			kreq.Mode = search.ModeKeyword
			var kerr error
			keyword, kerr = s.engine.Search(gctx, kreq)
			return kerr
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}

		if embedErr == nil {
			embedErr = ai.CheckDimensions([][]float32{embedding}, s.embedder.Dimensions())
		}
		if embedErr != nil {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			s.logger.Warn("query embedding failed, using keyword results", "mode", q.Mode, "err", embedErr)
			s.metrics.Degraded(q.Mode, search.ModeKeyword)
			hits = keyword
		} else {
			req.QueryEmbedding = embedding
			if hits, err = s.engine.Search(ctx, req); err != nil {
				return nil, err
			}
		}
	}

	if s.reranker == nil {
		return passthrough(hits, topK), nil
	}
	candidates := make([]rerank.Candidate, len(hits))
	for i, h := range hits {
		candidates[i] = rerank.Candidate{ChunkID: h.ChunkID, Text: h.Text, Score: h.Score, Metadata: h.Metadata}
	}
	return s.reranker.Rerank(ctx, q.Text, candidates, topK)
}

// passthrough ranks search hits as-is when no reranker is configured.
func passthrough(hits []search.Result, topK int) []rerank.Result {
	if len(hits) > topK {
		hits = hits[:topK]
	}
	out := make([]rerank.Result, len(hits))
	for i, h := range hits {
		out[i] = rerank.Result{
			ChunkID:       h.ChunkID,
			Text:          h.Text,
			OriginalScore: h.Score,
			FinalScore:    h.Score,
			Rank:          i + 1,
			Metadata:      h.Metadata,
		}
	}
	return out
}

// RemovePolicy unloads a policy and deletes its stored document and chunks.
// It returns the number of chunks removed.
func (s *Service) RemovePolicy(ctx context.Context, id string) (int, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}
	s.mu.Lock()
	_, loaded := s.coverage[id]
	delete(s.coverage, id)
	s.mu.Unlock()

	if err := s.policies.DeletePolicy(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}
	removed, err := s.index.DeleteByPolicy(ctx, id)
	if err != nil {
		return 0, err
	}
	s.engine.RemovePolicy(id)
	if !loaded && removed == 0 {
		return 0, fmt.Errorf("%w: %s", ErrPolicyNotFound, id)
	}
	s.logger.Info("removed policy", "policy_id", id, "chunks", removed)
	return removed, nil
}

// Metrics returns the service's metric collector.
func (s *Service) Metrics() *metrics.Collector {
	return s.metrics
}

// Index returns the vector index, for maintenance tasks such as re-embedding.
func (s *Service) Index() storage.VectorIndex {
	return s.index
}

// SearchEngine returns the hybrid search engine.
func (s *Service) SearchEngine() *search.Engine {
	return s.engine
}

func (s *Service) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Close releases every component. It is safe to call more than once.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	if s.pipeline != nil {
		s.pipeline.Release()
	}
	if s.provider != nil && s.ownsProvider {
		if err := s.provider.Close(); err != nil {
			s.logger.Error("error closing AI provider", "err", err)
		}
	}
	if s.index != nil {
		if err := s.index.Close(); err != nil {
			s.logger.Error("error closing vector index", "err", err)
			errs = append(errs, err)
		}
	}
	if s.policies != nil {
		if err := s.policies.Close(); err != nil {
			s.logger.Error("error closing policy repository", "err", err)
			errs = append(errs, err)
		}
	}
	if s.backend != nil {
		if err := s.backend.Close(); err != nil {
			s.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
