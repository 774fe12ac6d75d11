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

package search

import "errors"

var (
	// ErrEmptyDocumentID is returned when a document has no id.
	ErrEmptyDocumentID = errors.New("document id required")

	// ErrDocumentNotFound is returned when removing an unknown document.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrDimensionMismatch is returned when an embedding's length differs from
	// the engine's established dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrUnknownMode is returned for an unrecognised search mode.
	ErrUnknownMode = errors.New("unknown search mode")

	// ErrInvalidWeights is returned for negative fusion weights or weights
	// that sum to zero.
	ErrInvalidWeights = errors.New("invalid fusion weights")
)
