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


package recommend

import "errors"

var (
	// ErrLoaderRequired is returned when creating an engine without a catalog loader.
	ErrLoaderRequired = errors.New("catalog loader is required")

	// ErrCacheRequired is returned when creating an engine without an embedding cache.
	ErrCacheRequired = errors.New("embedding cache is required")

	// ErrRepositoryRequired is returned when creating a cache without a repository.
	ErrRepositoryRequired = errors.New("embedding cache repository is required")

	// ErrEmbedderRequired is returned when an embedder is nil.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrPersistFailed is returned by an explicit rebuild whose result could not be saved.
	ErrPersistFailed = errors.New("failed to persist embeddings")
)
