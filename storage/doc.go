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


// Package storage provides the storage abstraction layer for plexrec.
//
// It defines repository interfaces that decouple persistence from the
// recommendation engine, plus the binary encodings shared by backends.
//
// # Constructor Return Type Pattern
//
// Public constructors in backend packages return the interface:
//
//	repo, err := filecache.NewRepository(dataDir)  // storage.EmbeddingCacheRepository
//	repo, err := badger.NewCacheRepository(path)    // storage.EmbeddingCacheRepository
//	hist, err := sqlite.OpenHistory(path)           // storage.HistoryRepository
//
// Internal constructors may return concrete types.
//
// # Architecture
//
//   - EmbeddingCacheRepository: matrix + alignment per catalog kind
//   - HistoryRepository: append-only selection log
//
// Backends:
//
//   - storage/filecache: <data_dir>/embeddings/<kind>_emb.bin + <kind>_idx.csv
//   - storage/badger: embmat:<kind> and embidx:<kind> keys in one transaction
//   - storage/sqlite: history table via sqlx and modernc.org/sqlite
//
// # Encoding
//
// Matrices are encoded with mus-go: a magic header, model and device
// strings, creation time, row and column counts, then row-major float32s.
// Alignment indexes are a varint count followed by varint positions.
//
// # Thread Safety
//
// All repository implementations must be safe for concurrent use.
package storage
