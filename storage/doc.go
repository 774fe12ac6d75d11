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

// Package storage defines the persistence contracts for coverwise.
//
// VectorIndex holds embedded policy chunks and answers cosine-similarity
// queries with optional policy, chunk type and category filters.
// PolicyRepository holds structured policy documents.
//
// Two backends implement both contracts:
//
//   - storage/memory: maps guarded by a RWMutex, lost on restart
//   - storage/badger: BadgerDB, durable, drop-in for the memory backend
//
// Public constructors return interfaces where a single implementation is
// expected to be swapped for another:
//
//	index, err := memory.NewVectorIndex(768)  // returns storage.VectorIndex
//
// # Dimensionality
//
// An index has a fixed dimensionality chosen when it is created. Adding or
// searching with a vector of a different length returns ErrDimensionMismatch.
// The badger backend records the dimensionality on first open and refuses to
// open with a different value, so a changed embedding model is caught at
// startup rather than producing meaningless similarity scores.
//
// # Shared tests
//
// storage/storagetest runs the same behaviour suite against every backend.
package storage
