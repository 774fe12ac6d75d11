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

// Package search provides keyword, semantic and hybrid retrieval over
// policy chunks.
//
// BM25 is a plain Okapi BM25 index. Engine holds the chunk corpus, refits
// BM25 on every add or remove, and answers Search in three modes:
//   - keyword: BM25 score divided by a fixed normalizer and clamped to [0,1]
//   - semantic: cosine similarity, negatives clamped to 0
//   - hybrid: keywordWeight*keyword + semanticWeight*semantic
//
// A policy filter narrows the candidate set before any scoring. Results with
// a score of zero or below MinScore are dropped. A semantic or hybrid search without a
// query embedding degrades to keyword mode and reports it to the monitor.
package search
