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

// Recommendation engine error taxonomy
var (
	// ErrCatalogUnavailable indicates the loader could not supply a catalog for a kind.
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	// ErrCacheCorrupt indicates persisted embedding artifacts are unreadable or misaligned.
	// It is recovered locally by rebuilding and never returned to engine callers.
	ErrCacheCorrupt = errors.New("embedding cache corrupt")

	// ErrOutOfRange indicates an item position outside the catalog.
	ErrOutOfRange = errors.New("item position out of range")

	// ErrEmbeddingFailure indicates the embedder could not produce vectors.
	ErrEmbeddingFailure = errors.New("embedding failure")

	// ErrInvalidKind indicates an unknown catalog kind.
	ErrInvalidKind = errors.New("invalid catalog kind")

	// ErrEmptyTitle indicates an item without a usable title.
	ErrEmptyTitle = errors.New("title cannot be empty")

	// ErrInvalidHistoryEntry indicates a HistoryEntry failed validation.
	ErrInvalidHistoryEntry = errors.New("invalid history entry")
)
