package recommend

import (
	"cmp"
	"slices"

	"github.com/poiesic/plexrec/core"
)

func rating(it *core.Item) *float64     { return it.Rating }
func popularity(it *core.Item) *float64 { return it.Popularity }

// topByField returns the first topK items ordered by field descending.
// Items without a value sort after every item with one; ties keep
// catalog order.
func topByField(items []core.Item, topK int, field func(*core.Item) *float64) []core.Item {
	if topK <= 0 {
		return []core.Item{}
	}
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b core.Item) int {
		va, vb := field(&a), field(&b)
		switch {
		case va == nil && vb == nil:
			return 0
		case va == nil:
			return 1
		case vb == nil:
			return -1
		}
		return cmp.Compare(*vb, *va)
	})
	return sorted[:min(topK, len(sorted))]
}

func head(items []core.Item, topK int) []core.Item {
	if topK <= 0 {
		return []core.Item{}
	}
	return slices.Clone(items[:min(topK, len(items))])
}
