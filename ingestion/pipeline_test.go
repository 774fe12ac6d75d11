package ingestion

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/coverwise/ai"
	"github.com/poiesic/coverwise/ai/mock"
	"github.com/poiesic/coverwise/chunker"
	"github.com/poiesic/coverwise/classify"
	"github.com/poiesic/coverwise/core"
	"github.com/poiesic/coverwise/search"
	"github.com/poiesic/coverwise/storage"
	"github.com/poiesic/coverwise/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDims = 8

// One chunk per paragraph with the test chunker.
const wording = "Engine pistons are covered up to the cap.\n\n" +
	"Turbo chargers are excluded from cover.\n\n" +
	"A deductible of 500 applies to each claim."

// recordingObserver implements Observer for testing
type recordingObserver struct {
	mu        sync.Mutex
	ingested  int
	failed    map[Stage]int
	fallbacks int
}

func (o *recordingObserver) ChunksIngested(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ingested += n
}

func (o *recordingObserver) ChunkFailed(stage Stage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failed == nil {
		o.failed = make(map[Stage]int)
	}
	o.failed[stage]++
}

func (o *recordingObserver) ClassifierFallback() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fallbacks++
}

// fallbackClassifier implements classify.Classifier, always reporting a fallback
type fallbackClassifier struct{}

func (fallbackClassifier) Classify(context.Context, string) core.ChunkType {
	return core.ChunkTypeRawText
}

func (fallbackClassifier) ClassifyBatch(_ context.Context, texts []string) []classify.Result {
	out := make([]classify.Result, len(texts))
	for i := range out {
		out[i] = classify.Result{Type: core.ChunkTypeRawText, Fallback: true, Err: errors.New("llm down")}
	}
	return out
}

type fixture struct {
	pipeline *Pipeline
	embedder *mock.MockEmbedder
	index    storage.VectorIndex
	engine   *search.Engine
	observer *recordingObserver
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	splitter, err := chunker.New(chunker.Config{
		Strategy:     chunker.StrategyParagraph,
		ChunkSize:    60,
		ChunkOverlap: 0,
		MinChunkSize: 0,
	})
	require.NoError(t, err)

	index, err := memory.NewVectorIndex(testDims)
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })

	engine, err := search.NewEngine()
	require.NoError(t, err)

	f := &fixture{
		embedder: mock.NewMockEmbedderWithDimensions(testDims),
		index:    index,
		engine:   engine,
		observer: &recordingObserver{},
	}
	opts = append([]Option{WithSearchEngine(engine), WithObserver(f.observer)}, opts...)
	f.pipeline, err = NewPipeline(splitter, classify.NewKeywordClassifier(), f.embedder, index, opts...)
	require.NoError(t, err)
	t.Cleanup(f.pipeline.Release)
	return f
}

func TestNewPipelineValidation(t *testing.T) {
	splitter, err := chunker.New(chunker.DefaultConfig())
	require.NoError(t, err)
	index, err := memory.NewVectorIndex(testDims)
	require.NoError(t, err)
	embedder := mock.NewMockEmbedderWithDimensions(testDims)
	classifier := classify.NewKeywordClassifier()

	tests := []struct {
		name       string
		splitter   *chunker.Chunker
		classifier classify.Classifier
		embedder   ai.Embedder
		index      storage.VectorIndex
		wantErr    error
	}{
		{"missing chunker", nil, classifier, embedder, index, ErrChunkerRequired},
		{"missing classifier", splitter, nil, embedder, index, ErrClassifierRequired},
		{"missing embedder", splitter, classifier, nil, index, ErrEmbedderRequired},
		{"missing index", splitter, classifier, embedder, nil, ErrIndexRequired},
		{"dimension mismatch", splitter, classifier, mock.NewMockEmbedderWithDimensions(4), index, ErrDimensionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPipeline(tt.splitter, tt.classifier, tt.embedder, tt.index)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err = NewPipeline(splitter, classifier, embedder, index, WithBatchSize(0))
	assert.Error(t, err)
}

func TestIngest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.pipeline.Ingest(ctx, Request{
		PolicyID:   "POL-1",
		DocumentID: "wording.txt",
		Text:       wording,
		Category:   "Engine",
		PageNumber: 3,
		Metadata:   map[string]string{"source": "upload"},
	})
	require.NoError(t, err)
	require.NoError(t, report.Err())

	assert.Equal(t, 3, report.Chunks)
	assert.Equal(t, 3, report.Stored)
	assert.Zero(t, report.Replaced)
	assert.Zero(t, report.Fallbacks)
	assert.Equal(t, 3, f.engine.Len())
	assert.Equal(t, 3, f.observer.ingested)

	chunks, err := f.index.ListChunks(ctx, "POL-1")
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	types := make(map[core.ChunkType]bool)
	for _, c := range chunks {
		types[c.Type] = true
		assert.Equal(t, "POL-1", c.PolicyID)
		assert.Equal(t, "wording.txt", c.DocumentID)
		assert.Equal(t, "Engine", c.Category)
		assert.Equal(t, 3, c.PageNumber)
		assert.Len(t, c.Embedding, testDims)
		assert.Equal(t, "upload", c.Metadata["source"])
		assert.Equal(t, "POL-1", c.Metadata[MetaPolicyID])
		assert.Equal(t, "3", c.Metadata[MetaPageNumber])
		assert.Equal(t, string(c.Type), c.Metadata[MetaChunkType])
		assert.True(t, f.engine.Has(c.ID))
	}
	assert.True(t, types[core.ChunkTypeExclusion])
	assert.True(t, types[core.ChunkTypeLimitation])

	results, err := f.engine.Search(ctx, search.Request{Query: "turbo", Mode: search.ModeKeyword, PolicyID: "POL-1"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Text, "Turbo")
}

func TestIngestRequestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Ingest(ctx, Request{DocumentID: "d", Text: wording})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.pipeline.Ingest(ctx, Request{PolicyID: "P", Text: wording})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	report, err := f.pipeline.Ingest(ctx, Request{PolicyID: "P", DocumentID: "d", Text: "  \n\n "})
	assert.ErrorIs(t, err, ErrEmptyDocument)
	assert.Zero(t, report.Chunks)
}

func TestIngestIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := Request{PolicyID: "POL-1", DocumentID: "wording.txt", Text: wording}

	_, err := f.pipeline.Ingest(ctx, req)
	require.NoError(t, err)
	first, err := f.index.ListChunks(ctx, "POL-1")
	require.NoError(t, err)

	report, err := f.pipeline.Ingest(ctx, req)
	require.NoError(t, err)
	assert.Zero(t, report.Replaced)

	second, err := f.index.ListChunks(ctx, "POL-1")
	require.NoError(t, err)
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
	assert.Equal(t, 3, f.engine.Len())
}

func TestIngestReplacesPreviousVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Ingest(ctx, Request{PolicyID: "POL-1", DocumentID: "wording.txt", Text: wording})
	require.NoError(t, err)
	_, err = f.pipeline.Ingest(ctx, Request{PolicyID: "POL-1", DocumentID: "other.txt", Text: "Roadside assistance is included."})
	require.NoError(t, err)

	revised := "Engine pistons are covered up to the cap.\n\nFlux capacitors are excluded."
	report, err := f.pipeline.Ingest(ctx, Request{PolicyID: "POL-1", DocumentID: "wording.txt", Text: revised})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Stored)
	assert.Equal(t, 2, report.Replaced)

	count, err := f.index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, 3, f.engine.Len())

	results, err := f.engine.Search(ctx, search.Request{Query: "turbo", Mode: search.ModeKeyword})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIngestSameDocumentIDAcrossPolicies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, policyID := range []string{"POL-1", "POL-2"} {
		_, err := f.pipeline.Ingest(ctx, Request{PolicyID: policyID, DocumentID: "wording.txt", Text: wording})
		require.NoError(t, err)
	}

	count, err := f.index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, count)
}

func TestIngestRetriesChunksAfterBatchFailure(t *testing.T) {
	f := newFixture(t, WithRetries(1))
	ctx := context.Background()

	var mu sync.Mutex
	attempts := make(map[string]int)
	f.embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("batch endpoint unavailable")
	}
	f.embedder.EmbedTextFunc = func(_ context.Context, text string) ([]float32, error) {
		mu.Lock()
		attempts[text]++
		mu.Unlock()
		if strings.Contains(text, "Turbo") {
			return nil, errors.New("rejected input")
		}
		return mock.GenerateDeterministicVector(text, testDims), nil
	}

	report, err := f.pipeline.Ingest(ctx, Request{PolicyID: "POL-1", DocumentID: "wording.txt", Text: wording})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Chunks)
	assert.Equal(t, 2, report.Stored)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, 1, report.Failures[0].Index)
	assert.Equal(t, StageEmbed, report.Failures[0].Stage)
	assert.ErrorContains(t, report.Err(), "rejected input")
	assert.Equal(t, 2, attempts["Turbo chargers are excluded from cover."])
	assert.Equal(t, 1, f.observer.failed[StageEmbed])
	assert.Equal(t, 2, f.engine.Len())
}

func TestIngestRejectsWrongDimensionVectors(t *testing.T) {
	f := newFixture(t)
	f.embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			dims := testDims
			if i == 0 {
				dims = testDims - 1
			}
			out[i] = mock.GenerateDeterministicVector(text, dims)
		}
		return out, nil
	}

	report, err := f.pipeline.Ingest(context.Background(), Request{PolicyID: "POL-1", DocumentID: "wording.txt", Text: wording})
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0], ai.ErrDimensionMismatch)
	assert.Equal(t, 2, report.Stored)
}

func TestIngestKeepsPreviousVersionWhenNothingEmbeds(t *testing.T) {
	f := newFixture(t, WithRetries(0))
	ctx := context.Background()

	_, err := f.pipeline.Ingest(ctx, Request{PolicyID: "POL-1", DocumentID: "wording.txt", Text: wording})
	require.NoError(t, err)

	f.embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("down")
	}
	f.embedder.EmbedTextFunc = func(context.Context, string) ([]float32, error) {
		return nil, errors.New("down")
	}

	report, err := f.pipeline.Ingest(ctx, Request{PolicyID: "POL-1", DocumentID: "wording.txt", Text: "Something new entirely."})
	require.NoError(t, err)
	assert.Zero(t, report.Stored)
	assert.Len(t, report.Failures, 1)

	count, err := f.index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestIngestSplitsIntoBatches(t *testing.T) {
	f := newFixture(t, WithBatchSize(2))

	var mu sync.Mutex
	var sizes []int
	f.embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		mu.Lock()
		sizes = append(sizes, len(texts))
		mu.Unlock()
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.GenerateDeterministicVector(text, testDims)
		}
		return out, nil
	}

	report, err := f.pipeline.Ingest(context.Background(), Request{PolicyID: "POL-1", DocumentID: "wording.txt", Text: wording})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Stored)
	assert.ElementsMatch(t, []int{2, 1}, sizes)
}

func TestIngestCountsClassifierFallbacks(t *testing.T) {
	splitter, err := chunker.New(chunker.DefaultConfig())
	require.NoError(t, err)
	index, err := memory.NewVectorIndex(testDims)
	require.NoError(t, err)
	observer := &recordingObserver{}

	p, err := NewPipeline(splitter, fallbackClassifier{}, mock.NewMockEmbedderWithDimensions(testDims), index,
		WithObserver(observer), WithPoolSize(1))
	require.NoError(t, err)
	defer p.Release()

	report, err := p.Ingest(context.Background(), Request{PolicyID: "P", DocumentID: "d", Text: "A single short clause."})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fallbacks)
	assert.Equal(t, 1, observer.fallbacks)

	chunks, err := index.ListChunks(context.Background(), "P")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "true", chunks[0].Metadata[MetaClassifierFallback])
}

func TestIngestCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.embedder.EmbedTextsFunc = func(ctx context.Context, _ []string) ([][]float32, error) {
		return nil, ctx.Err()
	}

	_, err := f.pipeline.Ingest(ctx, Request{PolicyID: "POL-1", DocumentID: "wording.txt", Text: wording})
	assert.ErrorIs(t, err, context.Canceled)

	count, err := f.index.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIngestAsync(t *testing.T) {
	f := newFixture(t)

	id, err := f.pipeline.IngestAsync(context.Background(), Request{PolicyID: "POL-1", DocumentID: "wording.txt", Text: wording})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		job, err := f.pipeline.Jobs().Get(id)
		return err == nil && job.Status == JobSucceeded
	}, 5*time.Second, 10*time.Millisecond)

	job, err := f.pipeline.Jobs().Get(id)
	require.NoError(t, err)
	assert.Equal(t, "POL-1", job.PolicyID)
	require.NotNil(t, job.Report)
	assert.Equal(t, 3, job.Report.Stored)
	assert.False(t, job.Finished.Before(job.Created))

	assert.True(t, f.pipeline.Jobs().Forget(id))
	_, err = f.pipeline.Jobs().Get(id)
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = f.pipeline.IngestAsync(context.Background(), Request{Text: wording})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestIngestAsyncFailureIsRecorded(t *testing.T) {
	f := newFixture(t)

	id, err := f.pipeline.IngestAsync(context.Background(), Request{PolicyID: "P", DocumentID: "d", Text: " "})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := f.pipeline.Jobs().Get(id)
		return err == nil && job.Status == JobFailed
	}, 5*time.Second, 10*time.Millisecond)

	job, err := f.pipeline.Jobs().Get(id)
	require.NoError(t, err)
	assert.ErrorIs(t, job.Err, ErrEmptyDocument)
}

func TestRemoveDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Ingest(ctx, Request{PolicyID: "POL-1", DocumentID: "wording.txt", Text: wording})
	require.NoError(t, err)
	_, err = f.pipeline.Ingest(ctx, Request{PolicyID: "POL-1", DocumentID: "other.txt", Text: "Roadside assistance is included."})
	require.NoError(t, err)

	n, err := f.pipeline.RemoveDocument(ctx, "POL-1", "wording.txt")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, f.engine.Len())

	count, err := f.index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
