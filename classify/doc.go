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

// Package classify assigns a core.ChunkType to policy text.
//
// KeywordClassifier scans keyword families in a fixed priority order:
// exclusion, definition, limitation, inclusion, procedure. The first family
// with a match decides the type; text with no match is raw_text. Exclusion
// language comes first so that "not covered" never reads as an inclusion.
//
// LLMClassifier sends batches of up to 20 chunks to an ai.TextGenerator and
// parses a JSON reply. Any failure (generator error, unparseable reply,
// missing or unknown label) falls back to the keyword classifier for the
// affected chunks and is reported through Result.Fallback.
package classify
