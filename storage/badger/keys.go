package badger

import "github.com/poiesic/plexrec/core"

// Key prefixes for the embedding cache.
const (
	embeddingMatrixPrefix    = "embmat"
	embeddingAlignmentPrefix = "embidx"
)

// makeMatrixKey generates the key holding the encoded matrix for kind.
func makeMatrixKey(kind core.Kind) []byte {
	return []byte(embeddingMatrixPrefix + ":" + string(kind))
}

// makeAlignmentKey generates the key holding the alignment index for kind.
func makeAlignmentKey(kind core.Kind) []byte {
	return []byte(embeddingAlignmentPrefix + ":" + string(kind))
}
