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

package ingestion

import (
	"context"
	"log/slog"

	"github.com/poiesic/coverwise/classify"
	"github.com/poiesic/coverwise/core"
)

// processor is an internal interface for one enrichment stage of the pipeline.
// Implementations mutate the chunks in place and report the ones they could
// not handle; the index in each failure is the chunk's position in chunks.
type processor interface {
	process(ctx context.Context, chunks []*core.DocumentChunk) []ChunkFailure
}

// MetaClassifierFallback is set to "true" on chunks labelled by the keyword
// fallback instead of the configured classifier.
const MetaClassifierFallback = "classifier_fallback"

// classifyProcessor labels chunks with their semantic type.
type classifyProcessor struct {
	classifier classify.Classifier
	observer   Observer
	logger     *slog.Logger
}

var _ processor = (*classifyProcessor)(nil)

func newClassifyProcessor(classifier classify.Classifier, observer Observer, logger *slog.Logger) *classifyProcessor {
	return &classifyProcessor{
		classifier: classifier,
		observer:   observer,
		logger:     logger.With("processor", "classify"),
	}
}

// process never fails a chunk: the classifier always yields a label.
func (cp *classifyProcessor) process(ctx context.Context, chunks []*core.DocumentChunk) []ChunkFailure {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	results := cp.classifier.ClassifyBatch(ctx, texts)
	fallbacks := 0
	for i, c := range chunks {
		if i >= len(results) {
			c.Type = core.ChunkTypeRawText
			continue
		}
		c.Type = results[i].Type
		if results[i].Fallback {
			fallbacks++
			c.Metadata[MetaClassifierFallback] = "true"
			cp.observer.ClassifierFallback()
		}
	}
	if fallbacks > 0 {
		cp.logger.Warn("classifier fell back to keywords", "chunks", fallbacks, "total", len(chunks))
	}
	return nil
}
