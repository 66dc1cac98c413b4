package repository

import (
	"math"

	"github.com/m-mizutani/aiguide/pkg/interfaces"
	"github.com/m-mizutani/goerr/v2"
)

// Repository is a restaurant vector store that owns a connection
type Repository interface {
	interfaces.VectorStore

	// Close releases the underlying client
	Close() error
}

var (
	errInvalidLimit      = goerr.New("limit must be positive")
	errEmptyEmbedding    = goerr.New("embedding is empty")
	errDimensionMismatch = goerr.New("embedding dimension mismatch")
)

func validateSearch(embedding []float32, k int) error {
	if k <= 0 {
		return goerr.Wrap(errInvalidLimit, "invalid search limit", goerr.V("k", k))
	}
	if len(embedding) == 0 {
		return goerr.Wrap(errEmptyEmbedding, "invalid search embedding")
	}
	return nil
}

// cosineSimilarity returns the cosine of the angle between a and b, 0 for zero vectors
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
