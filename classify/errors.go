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

package classify

import "errors"

var (
	// ErrEmptyResponse is recorded when the generator returns no text.
	ErrEmptyResponse = errors.New("empty classifier response")

	// ErrMalformedResponse is recorded when the reply cannot be parsed as JSON.
	ErrMalformedResponse = errors.New("malformed classifier response")

	// ErrMissingLabel is recorded for a chunk the reply did not label.
	ErrMissingLabel = errors.New("chunk missing from classifier response")

	// ErrInvalidBatchSize is returned for a batch size outside 1..MaxBatchSize.
	ErrInvalidBatchSize = errors.New("invalid classifier batch size")
)
