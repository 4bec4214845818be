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

import (
	"fmt"
	"strings"
	"time"
)

// ValidateKind checks that k is one of the supported catalog partitions.
func ValidateKind(k Kind) error {
	switch k {
	case KindMovies, KindSeries, KindAnime:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidKind, string(k))
}

// ValidateCatalog validates a Catalog according to loader guarantees.
//
// Validation rules:
//   - Kind must be valid
//   - Every item must have a non-empty trimmed Title
//   - Item positions must match their row order
func ValidateCatalog(c *Catalog) error {
	if c == nil {
		return fmt.Errorf("%w: catalog is nil", ErrCatalogUnavailable)
	}
	if err := ValidateKind(c.Kind); err != nil {
		return err
	}
	for i := range c.Items {
		if strings.TrimSpace(c.Items[i].Title) == "" {
			return fmt.Errorf("%w: row %d", ErrEmptyTitle, i)
		}
		if c.Items[i].Position != i {
			return fmt.Errorf("%w: row %d has position %d", ErrCatalogUnavailable, i, c.Items[i].Position)
		}
	}
	return nil
}

// ValidateHistoryEntry validates a HistoryEntry before it is appended.
//
// Validation rules:
//   - Kind must be valid
//   - ItemTitle must not be empty
//   - Timestamp, when set, must not be in the future
func ValidateHistoryEntry(e *HistoryEntry) error {
	if e == nil {
		return fmt.Errorf("%w: entry is nil", ErrInvalidHistoryEntry)
	}
	if err := ValidateKind(e.Kind); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidHistoryEntry, err)
	}
	if e.ItemTitle == "" {
		return fmt.Errorf("%w: %w", ErrInvalidHistoryEntry, ErrEmptyTitle)
	}
	if !e.Timestamp.IsZero() && e.Timestamp.After(time.Now()) {
		return fmt.Errorf("%w: timestamp cannot be in the future", ErrInvalidHistoryEntry)
	}
	return nil
}
