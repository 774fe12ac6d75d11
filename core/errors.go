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


package core

import "errors"

var (
	// ErrInvalidPolicy indicates a PolicyDocument failed validation.
	ErrInvalidPolicy = errors.New("invalid policy document")

	// ErrEmptyPolicyID indicates the policy has no identifier.
	ErrEmptyPolicyID = errors.New("policy id cannot be empty")

	// ErrInvalidPolicyStatus indicates an unknown PolicyStatus value.
	ErrInvalidPolicyStatus = errors.New("invalid policy status")

	// ErrInvalidValidityPeriod indicates the end date precedes the start date.
	ErrInvalidValidityPeriod = errors.New("validity period ends before it starts")

	// ErrEmptyCategoryName indicates a coverage category without a name.
	ErrEmptyCategoryName = errors.New("coverage category name cannot be empty")

	// ErrNegativeAmount indicates a negative deductible or cap.
	ErrNegativeAmount = errors.New("financial amounts cannot be negative")

	// ErrInvalidCoverageCap indicates a cap that is neither numeric nor "Unlimited".
	ErrInvalidCoverageCap = errors.New("invalid coverage cap")

	// ErrInvalidChunk indicates a DocumentChunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrEmptyChunkID indicates the chunk ID field is empty.
	ErrEmptyChunkID = errors.New("chunk id cannot be empty")

	// ErrEmptyContent indicates the chunk text is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidChunkType indicates an unknown ChunkType label.
	ErrInvalidChunkType = errors.New("invalid chunk type")
)
