// Package fake provides a deterministic hash-based embedder for tests.
package fake

import (
	"context"
	"crypto/sha256"
	"encoding/binary"

	"github.com/fablecast/fablecast/pkg/adapters/embedding"
)

// Embedder derives fixed-size vectors from SHA-256 of the input, so
// identical passages always map to identical vectors.
type Embedder struct {
	dim int
}

// New returns a fake embedder with the given dimension (>= 4).
func New(dim int) *Embedder {
	if dim < 4 {
		dim = 4
	}
	return &Embedder{dim: dim}
}

func (e *Embedder) Name() string { return "fake" }

func (e *Embedder) Embed(_ context.Context, inputs []string) ([]embedding.Vector, error) {
	out := make([]embedding.Vector, len(inputs))
	for i, s := range inputs {
		h := sha256.Sum256([]byte(s))
		vec := make(embedding.Vector, e.dim)
		for j := 0; j < e.dim; j++ {
			off := (j * 4) % len(h)
			u := binary.LittleEndian.Uint32(h[off : off+4])
			// Scale to [0,1) then shift to [-0.5, 0.5).
			vec[j] = (float32(u&0x7FFFFFFF) / float32(1<<31)) - 0.5
		}
		out[i] = vec
	}
	return out, nil
}
