package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/poiesic/coverwise/ai"
	"github.com/poiesic/coverwise/core"
	"golang.org/x/time/rate"
)

const (
	// MaxBatchSize is the most chunks sent in one generation request.
	MaxBatchSize = 20

	// DefaultRequestsPerSecond bounds the request rate to the generator.
	DefaultRequestsPerSecond = 2.0

	defaultParseAttempts = 2
)

// LLMClassifier classifies chunks with a text generator and falls back to
// keyword rules per chunk.
type LLMClassifier struct {
	generator     ai.TextGenerator
	fallback      *KeywordClassifier
	batchSize     int
	parseAttempts int
	limiter       *rate.Limiter
	logger        *slog.Logger
}

// Option configures an LLMClassifier.
type Option func(*LLMClassifier) error

// WithLogger sets the logger. A nil logger falls back to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *LLMClassifier) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger.With("component", "llm-classifier")
		return nil
	}
}

// WithBatchSize sets how many chunks go into one request (1..MaxBatchSize).
func WithBatchSize(n int) Option {
	return func(c *LLMClassifier) error {
		if n < 1 || n > MaxBatchSize {
			return fmt.Errorf("%w: %d", ErrInvalidBatchSize, n)
		}
		c.batchSize = n
		return nil
	}
}

// WithRateLimit sets the request rate and burst. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *LLMClassifier) error {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return nil
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		return nil
	}
}

// NewLLMClassifier creates a classifier backed by generator.
func NewLLMClassifier(generator ai.TextGenerator, opts ...Option) (*LLMClassifier, error) {
	c := &LLMClassifier{
		generator:     generator,
		fallback:      NewKeywordClassifier(),
		batchSize:     MaxBatchSize,
		parseAttempts: defaultParseAttempts,
		limiter:       rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), 1),
		logger:        slog.Default().With("component", "llm-classifier"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Classify classifies one chunk.
func (c *LLMClassifier) Classify(ctx context.Context, text string) core.ChunkType {
	return c.ClassifyBatch(ctx, []string{text})[0].Type
}

// ClassifyBatch classifies texts in requests of at most the batch size.
func (c *LLMClassifier) ClassifyBatch(ctx context.Context, texts []string) []Result {
	out := make([]Result, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		c.classifyChunkBatch(ctx, texts[start:end], out[start:end])
	}
	return out
}

type classification struct {
	Index int    `json:"index"`
	Type  string `json:"type"`
}

type classificationReply struct {
	Classifications []classification `json:"classifications"`
}

func (c *LLMClassifier) classifyChunkBatch(ctx context.Context, texts []string, out []Result) {
	labels, err := c.requestLabels(ctx, texts)
	if err != nil {
		c.logger.Warn("classifier request failed, using keyword rules", "chunks", len(texts), "err", err)
		for i, text := range texts {
			out[i] = Result{Type: classifyKeywords(text), Fallback: true, Err: err}
		}
		return
	}

	fallbacks := 0
	for i, text := range texts {
		label, ok := labels[i]
		if !ok {
			out[i] = Result{Type: classifyKeywords(text), Fallback: true, Err: ErrMissingLabel}
			fallbacks++
			continue
		}
		chunkType, perr := core.ParseChunkType(label)
		if perr != nil {
			out[i] = Result{Type: classifyKeywords(text), Fallback: true, Err: perr}
			fallbacks++
			continue
		}
		out[i] = Result{Type: chunkType}
	}
	if fallbacks > 0 {
		c.logger.Debug("classifier reply incomplete", "chunks", len(texts), "fallbacks", fallbacks)
	}
}

// requestLabels returns the reply's labels keyed by batch index.
func (c *LLMClassifier) requestLabels(ctx context.Context, texts []string) (map[int]string, error) {
	prompt := buildPrompt(texts)

	var lastErr error
	for attempt := 0; attempt < c.parseAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		response, err := c.generator.Generate(ctx, prompt)
		if err != nil {
			return nil, err
		}

		labels, err := parseReply(response, len(texts))
		if err == nil {
			return labels, nil
		}
		lastErr = err
		c.logger.Warn("error parsing classifier response",
			"attempt", attempt+1,
			"response", response,
			"err", err)
	}
	return nil, lastErr
}

func parseReply(response string, n int) (map[int]string, error) {
	text := stripCodeFence(response)
	if text == "" {
		return nil, ErrEmptyResponse
	}
	text = repairJSON(extractObject(text))

	var reply classificationReply
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	labels := make(map[int]string, len(reply.Classifications))
	for _, c := range reply.Classifications {
		if c.Index < 0 || c.Index >= n {
			continue
		}
		if _, dup := labels[c.Index]; dup {
			continue
		}
		labels[c.Index] = c.Type
	}
	return labels, nil
}
