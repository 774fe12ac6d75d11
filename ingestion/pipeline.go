package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/coverwise/ai"
	"github.com/poiesic/coverwise/chunker"
	"github.com/poiesic/coverwise/classify"
	"github.com/poiesic/coverwise/core"
	"github.com/poiesic/coverwise/search"
	"github.com/poiesic/coverwise/storage"
)

const (
	// DefaultBatchSize is the number of chunks sent per embedding request.
	DefaultBatchSize = 32

	// DefaultRetries is the number of extra per-chunk attempts after a
	// batch embedding request fails.
	DefaultRetries = 2
)

// Metadata keys the pipeline adds to every stored chunk.
const (
	MetaPolicyID   = search.MetadataPolicyID
	MetaDocumentID = "document_id"
	MetaChunkType  = "chunk_type"
	MetaCategory   = "category"
	MetaPageNumber = "page_number"
)

// Pipeline orchestrates the ingestion of policy documents.
// It chunks, classifies and embeds text, then indexes the result.
type Pipeline struct {
	chunker       *chunker.Chunker
	classifyProc  processor
	embeddingProc processor
	embedder      ai.Embedder
	index         storage.VectorIndex
	engine        *search.Engine
	embeddingPool *ants.Pool
	jobPool       *ants.Pool
	jobs          *JobTracker
	observer      Observer
	batchSize     int
	retries       int
	logger        *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pools
		if p.embeddingPool != nil {
			p.embeddingPool.Release()
		}
		if p.jobPool != nil {
			p.jobPool.Release()
		}

		embeddingPool, err := ants.NewPool(size)
		if err != nil {
			return err
		}

		jobPool, err := ants.NewPool(size)
		if err != nil {
			embeddingPool.Release()
			return err
		}

		p.embeddingPool = embeddingPool
		p.jobPool = jobPool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithBatchSize sets how many chunks are embedded per request.
// Default is DefaultBatchSize.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return fmt.Errorf("batch size must be positive, got %d", size)
		}
		p.batchSize = size
		return nil
	}
}

// WithRetries sets the number of extra per-chunk embedding attempts.
// Default is DefaultRetries.
func WithRetries(n int) Option {
	return func(p *Pipeline) error {
		if n < 0 {
			n = 0
		}
		p.retries = n
		return nil
	}
}

// WithSearchEngine also indexes chunks in a hybrid search engine.
func WithSearchEngine(engine *search.Engine) Option {
	return func(p *Pipeline) error {
		p.engine = engine
		return nil
	}
}

// WithObserver sets the receiver of ingestion events.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) error {
		if o == nil {
			o = noopObserver{}
		}
		p.observer = o
		return nil
	}
}

// WithJobTracker shares a job tracker between pipelines.
// Default is a tracker owned by the pipeline.
func WithJobTracker(t *JobTracker) Option {
	return func(p *Pipeline) error {
		if t != nil {
			p.jobs = t
		}
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline. The embedder must produce
// vectors of the index's dimensionality.
func NewPipeline(
	splitter *chunker.Chunker,
	classifier classify.Classifier,
	embedder ai.Embedder,
	index storage.VectorIndex,
	opts ...Option,
) (*Pipeline, error) {
	if splitter == nil {
		return nil, ErrChunkerRequired
	}
	if classifier == nil {
		return nil, ErrClassifierRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}
	if embedder.Dimensions() != index.Dimensions() {
		return nil, fmt.Errorf("%w: embedder %d, index %d",
			ErrDimensionMismatch, embedder.Dimensions(), index.Dimensions())
	}

	p := &Pipeline{
		chunker:   splitter,
		embedder:  embedder,
		index:     index,
		jobs:      NewJobTracker(),
		observer:  noopObserver{},
		batchSize: DefaultBatchSize,
		retries:   DefaultRetries,
		logger:    slog.Default(),
	}

	poolSize := runtime.NumCPU() / 2
	opts = append([]Option{WithPoolSize(poolSize)}, opts...)

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "ingestion")

	// Create processors after options are applied (so they get final config)
	embeddingProc, err := newEmbeddingProcessor(embedder, p.embeddingPool,
		index.Dimensions(), p.batchSize, p.retries, p.logger)
	if err != nil {
		p.Release()
		return nil, err
	}
	p.embeddingProc = embeddingProc
	p.classifyProc = newClassifyProcessor(classifier, p.observer, p.logger)

	return p, nil
}

// Request describes one document to ingest.
type Request struct {
	PolicyID   string
	DocumentID string
	Text       string
	Category   string
	PageNumber int               // 0 when unknown
	Metadata   map[string]string // copied onto every chunk
}

func (r Request) validate() error {
	if strings.TrimSpace(r.PolicyID) == "" {
		return fmt.Errorf("%w: policy id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.DocumentID) == "" {
		return fmt.Errorf("%w: document id is required", ErrInvalidRequest)
	}
	return nil
}

// Ingest chunks, classifies, embeds and indexes one document, replacing any
// chunks from a previous ingestion of the same document. Chunks that fail
// are listed in the report; the error is non-nil only when the document as a
// whole could not be ingested. Previous chunks are kept if no new chunk
// could be embedded.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Report, error) {
	started := time.Now()
	if err := req.validate(); err != nil {
		return nil, err
	}

	report := &Report{PolicyID: req.PolicyID, DocumentID: req.DocumentID}
	chunks := p.buildChunks(req)
	report.Chunks = len(chunks)
	if len(chunks) == 0 {
		return report, fmt.Errorf("%w: %s", ErrEmptyDocument, req.DocumentID)
	}

	p.classifyProc.process(ctx, chunks)
	for _, c := range chunks {
		if c.Metadata[MetaClassifierFallback] == "true" {
			report.Fallbacks++
		}
		c.Metadata[MetaChunkType] = string(c.Type)
	}

	report.Failures = p.embeddingProc.process(ctx, chunks)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	failed := make(map[int]struct{}, len(report.Failures))
	for _, f := range report.Failures {
		failed[f.Index] = struct{}{}
	}
	embedded := make([]*core.DocumentChunk, 0, len(chunks)-len(failed))
	for i, c := range chunks {
		if _, ok := failed[i]; !ok {
			embedded = append(embedded, c)
		}
	}

	if len(embedded) > 0 {
		if err := p.store(ctx, req, chunks, embedded, report); err != nil {
			p.finish(report, started)
			return report, err
		}
	} else {
		p.logger.Warn("no chunks embedded, keeping previous version", "policy_id", req.PolicyID, "document_id", req.DocumentID)
	}

	p.finish(report, started)
	p.logger.Info("ingested document",
		"policy_id", req.PolicyID,
		"document_id", req.DocumentID,
		"chunks", report.Chunks,
		"stored", report.Stored,
		"replaced", report.Replaced,
		"failed", len(report.Failures),
		"duration", report.Duration)
	return report, nil
}

// store writes embedded chunks and removes stale chunks of the same document.
func (p *Pipeline) store(ctx context.Context, req Request, all, embedded []*core.DocumentChunk, report *Report) error {
	previous, err := p.index.ListChunks(ctx, req.PolicyID)
	if err != nil {
		return fmt.Errorf("listing previous chunks: %w", err)
	}

	if err := p.index.AddMany(ctx, embedded...); err != nil {
		for i, c := range all {
			if c.Embedding != nil {
				report.Failures = append(report.Failures, ChunkFailure{Index: i, ChunkID: c.ID, Stage: StageStore, Err: err})
			}
		}
		return fmt.Errorf("storing chunks: %w", err)
	}
	report.Stored = len(embedded)

	current := make(map[string]struct{}, len(embedded))
	for _, c := range embedded {
		current[c.ID] = struct{}{}
	}
	var previousIDs []string
	for _, c := range previous {
		if c.DocumentID != req.DocumentID {
			continue
		}
		previousIDs = append(previousIDs, c.ID)
		if _, ok := current[c.ID]; ok {
			continue
		}
		if err := p.index.Delete(ctx, c.ID); err != nil {
			p.logger.Error("error removing stale chunk", "chunk_id", c.ID, "err", err)
			continue
		}
		report.Replaced++
	}

	if p.engine == nil {
		return nil
	}
	p.engine.RemoveDocuments(previousIDs...)
	docs := make([]search.Document, len(embedded))
	for i, c := range embedded {
		docs[i] = SearchDocument(c)
	}
	if _, err := p.engine.AddDocuments(docs); err != nil {
		p.logger.Error("error indexing chunks for search", "err", err)
		for i, c := range all {
			if _, ok := current[c.ID]; ok {
				report.Failures = append(report.Failures, ChunkFailure{Index: i, ChunkID: c.ID, Stage: StageIndex, Err: err})
			}
		}
	}
	return nil
}

// SearchDocument converts a stored chunk into a hybrid search document.
func SearchDocument(c *core.DocumentChunk) search.Document {
	return search.Document{ID: c.ID, Text: c.Text, Embedding: c.Embedding, Metadata: c.Metadata}
}

func (p *Pipeline) finish(report *Report, started time.Time) {
	report.Duration = time.Since(started)
	if report.Stored > 0 {
		p.observer.ChunksIngested(report.Stored)
	}
	for _, f := range report.Failures {
		p.observer.ChunkFailed(f.Stage)
	}
}

func (p *Pipeline) buildChunks(req Request) []*core.DocumentChunk {
	// Chunk ids are derived from the policy and document so identical
	// documents under different policies never collide.
	key := req.PolicyID + "/" + req.DocumentID
	pieces := p.chunker.Chunk(req.Text, key, req.Metadata)

	chunks := make([]*core.DocumentChunk, len(pieces))
	for i, piece := range pieces {
		meta := maps.Clone(piece.Metadata)
		meta[MetaPolicyID] = req.PolicyID
		meta[MetaDocumentID] = req.DocumentID
		meta[chunker.MetaDocumentID] = req.DocumentID
		if req.Category != "" {
			meta[MetaCategory] = req.Category
		}
		if req.PageNumber > 0 {
			meta[MetaPageNumber] = strconv.Itoa(req.PageNumber)
		}
		chunks[i] = &core.DocumentChunk{
			ID:           piece.ID,
			Text:         piece.Text,
			Type:         core.ChunkTypeRawText,
			PolicyID:     req.PolicyID,
			DocumentID:   req.DocumentID,
			Category:     req.Category,
			PageNumber:   req.PageNumber,
			SectionTitle: piece.Metadata[chunker.MetaSectionTitle],
			Metadata:     meta,
		}
	}
	return chunks
}

// IngestAsync queues a document for ingestion and returns the job id.
// The job outlives ctx's cancellation but keeps its values.
func (p *Pipeline) IngestAsync(ctx context.Context, req Request) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}

	id := p.jobs.create(req)
	jobCtx := context.WithoutCancel(ctx)
	err := p.jobPool.Submit(func() {
		p.jobs.start(id)
		report, err := p.Ingest(jobCtx, req)
		if err != nil {
			p.logger.Error("error ingesting document", "job_id", id, "err", err)
		}
		p.jobs.finish(id, report, err)
	})
	if err != nil {
		p.jobs.finish(id, nil, err)
		return id, err
	}
	return id, nil
}

// Jobs returns the tracker for asynchronous ingestions.
func (p *Pipeline) Jobs() *JobTracker {
	return p.jobs
}

// RemoveDocument deletes every chunk of a document from the index and the
// search engine. It returns the number of chunks removed from the index.
func (p *Pipeline) RemoveDocument(ctx context.Context, policyID, documentID string) (int, error) {
	var ids []string
	if p.engine != nil {
		chunks, err := p.index.ListChunks(ctx, policyID)
		if err != nil {
			return 0, err
		}
		for _, c := range chunks {
			if c.DocumentID == documentID {
				ids = append(ids, c.ID)
			}
		}
	}

	n, err := p.index.DeleteByDocument(ctx, policyID, documentID)
	if err != nil {
		return n, err
	}
	if p.engine != nil {
		p.engine.RemoveDocuments(ids...)
	}
	return n, nil
}

// Release releases resources including worker pools.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.embeddingPool != nil {
		p.embeddingPool.Release()
	}
	if p.jobPool != nil {
		p.jobPool.Release()
	}
}
