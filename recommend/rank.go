package recommend

import (
	"cmp"
	"slices"

	"github.com/poiesic/plexrec/ai"
)

// NoExclude disables self-exclusion in Rank.
const NoExclude = -1

// Scored is a matrix row position with its similarity to the query.
type Scored struct {
	Position int
	Score    float32
}

// Rank scores every row of matrix against query by cosine similarity and
// returns the best topK, highest first. Equal scores keep ascending row
// order. When exclude is a row position, the top topK+1 are taken, that row
// is removed if present, and the result is truncated to topK. topK is
// clamped to the row count; topK <= 0 yields an empty slice.
func Rank(query []float32, matrix [][]float32, topK int, exclude int) []Scored {
	if topK <= 0 || len(matrix) == 0 {
		return []Scored{}
	}
	topK = min(topK, len(matrix))

	scored := make([]Scored, len(matrix))
	for i, row := range matrix {
		scored[i] = Scored{Position: i, Score: ai.CosineSimilarity(query, row)}
	}
	slices.SortStableFunc(scored, func(a, b Scored) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if exclude < 0 {
		return scored[:topK]
	}

	head := scored[:min(topK+1, len(scored))]
	out := make([]Scored, 0, topK)
	for _, s := range head {
		if s.Position == exclude {
			continue
		}
		out = append(out, s)
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}
