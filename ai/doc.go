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


// Package ai provides abstractions for the model-backed services used by
// coverwise: text embeddings for the vector index and text generation for
// chunk classification.
//
// # Interfaces
//
//   - Embedder: turns text into fixed-length vectors
//   - TextGenerator: produces a completion for a prompt
//   - AIProvider: bundles both behind one lifecycle
//
// # Implementation Packages
//
//   - ai/openai: any OpenAI-compatible API (OpenAI, Ollama, vLLM)
//   - ai/hashing: offline feature-hashing embedder with no generator
//   - ai/mock: test doubles
//   - ai/factory: picks one of the above from Config.Provider
//
// Public constructors return interface types. Mock constructors return
// concrete types so tests can reach CallCount, Reset and the Func hooks.
//
//	provider, err := factory.NewProvider(ai.NewConfig(ai.WithProvider(ai.ProviderHashing)))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "engine pistons")
//
// Every vector an Embedder returns has exactly Dimensions() elements;
// CheckDimensions verifies batches returned by remote services.
package ai
