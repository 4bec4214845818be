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


// Package ai provides the text embedding abstraction used by plexrec.
//
// An Embedder maps a sequence of strings to fixed-length vectors. It owns
// the choice of model and device and knows nothing about catalogs: the
// recommendation engine decides what text to embed and when.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible APIs (Ollama, LocalAI, vLLM) via langchaingo
//   - ai/hashing: offline deterministic feature-hashing embedder
//   - ai/mock: test doubles with call counting
//
// Public constructors (openai.NewEmbedder, hashing.NewEmbedder) return the
// ai.Embedder interface. Test utility constructors (mock.NewMockEmbedder)
// return concrete types so tests can inspect call counts.
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithEmbeddingModel("nomic-embed-text"))
//	embedder, err := openai.NewEmbedder(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	vectors, err := embedder.EmbedTexts(ctx, []string{"Inception . Dreams . Sci-Fi"})
package ai
