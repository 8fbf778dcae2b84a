package embed

import (
	"context"
	"hash/fnv"
	"sync/atomic"
)

// Mock returns deterministic vectors derived from an FNV hash of the text.
type Mock struct {
	Dims int
	Err  error

	calls atomic.Int64
	texts atomic.Int64
}

// NewMock creates a mock embedder producing dims-length vectors.
func NewMock(dims int) *Mock {
	return &Mock{Dims: dims}
}

// Calls returns how many provider calls were made.
func (m *Mock) Calls() int { return int(m.calls.Load()) }

// Texts returns how many texts were embedded.
func (m *Mock) Texts() int { return int(m.texts.Load()) }

func (m *Mock) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *Mock) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	if m.Err != nil {
		return nil, m.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.texts.Add(int64(len(texts)))
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = mockVector(text, m.Dims)
	}
	return out, nil
}

func mockVector(text string, dims int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	state := h.Sum64() | 1

	vec := make([]float32, dims)
	for i := range vec {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		vec[i] = float32(state%2000)/1000 - 1
	}
	return vec
}

var _ Embedder = (*Mock)(nil)
