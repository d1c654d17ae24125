package embedprovider

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
)

// StaticEmbedder produces deterministic, hash-based embeddings with no
// network dependency. It exists for offline corpus builds and tests where a
// real embedding model is unavailable or undesirable; it has no notion of
// semantic similarity beyond exact and near-exact token overlap.
type StaticEmbedder struct {
	dimensions int
}

// NewStaticEmbedder creates a StaticEmbedder with the given output dimension.
// A dimensions <= 0 uses StaticDimensions.
func NewStaticEmbedder(dimensions int) *StaticEmbedder {
	if dimensions <= 0 {
		dimensions = StaticDimensions
	}
	return &StaticEmbedder{dimensions: dimensions}
}

// Embed hashes text into a deterministic unit vector of the configured
// dimension. Identical text always yields an identical vector.
func (s *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, s.dimensions)
	block := []byte(text)
	counter := uint32(0)
	for i := 0; i < s.dimensions; i++ {
		if i%8 == 0 {
			counter++
		}
		h := sha256.Sum256(append(block, byteOf(counter)...))
		bits := binary.LittleEndian.Uint32(h[(i%8)*4 : (i%8)*4+4])
		vec[i] = float32(bits)/float32(1<<32) - 0.5
	}
	return normalizeVector(vec), nil
}

// EmbedBatch embeds each text independently.
func (s *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (s *StaticEmbedder) Dimensions() int { return s.dimensions }

// ModelName identifies this embedder for logging and cache-key purposes.
func (s *StaticEmbedder) ModelName() string { return "static-hash" }

// Available always returns true: the static embedder has no external
// dependency to be unavailable.
func (s *StaticEmbedder) Available(ctx context.Context) bool { return true }

// Close is a no-op.
func (s *StaticEmbedder) Close() error { return nil }

// SetBatchIndex is a no-op; the static embedder has no thermal timeout
// progression to track.
func (s *StaticEmbedder) SetBatchIndex(idx int) {}

// SetFinalBatch is a no-op for the same reason.
func (s *StaticEmbedder) SetFinalBatch(isFinal bool) {}

var _ Embedder = (*StaticEmbedder)(nil)

func byteOf(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
