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

import "errors"

var (
	// ErrChunkerRequired is returned when a chunker is not provided.
	ErrChunkerRequired = errors.New("chunker required")

	// ErrClassifierRequired is returned when a classifier is not provided.
	ErrClassifierRequired = errors.New("classifier required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrIndexRequired is returned when a vector index is not provided.
	ErrIndexRequired = errors.New("vector index required")

	// ErrDimensionMismatch is returned when the embedder and index disagree
	// on vector length.
	ErrDimensionMismatch = errors.New("embedder and index dimensions differ")

	// ErrInvalidRequest is returned for a request missing a policy or document id.
	ErrInvalidRequest = errors.New("invalid ingestion request")

	// ErrEmptyDocument is returned when a document produces no chunks.
	ErrEmptyDocument = errors.New("document produced no chunks")

	// ErrJobNotFound is returned for an unknown job id.
	ErrJobNotFound = errors.New("ingestion job not found")
)
