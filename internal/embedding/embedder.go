// Package embedding turns message text into vectors: an ONNX model in
// production, a deterministic word-hash embedder for tests and model-less
// runs, and a ristretto cache that wraps either.
package embedding

import "context"

// Embedder produces vector embeddings for text. Implementations must be
// deterministic: the same text embeds to the same vector for the lifetime
// of the process, which is what makes cached vectors safe to reuse.
type Embedder interface {
	// Embed returns the L2-normalized vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in order; one failure fails the batch.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector width every Embed call produces.
	Dimensions() int

	Close() error
}
