// Package embed wraps text embedding providers behind a single handle whose
// availability is decided once at startup.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/bookroad/config"
)

// ErrUnavailable is returned by a handle whose provider could not be set up.
var ErrUnavailable = errors.New("embed: embedder unavailable")

// Embedder turns text into vectors.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates embeddings for texts, in input order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Handle is the injected embedding dependency. An unavailable handle makes
// callers skip embedding work instead of failing.
type Handle struct {
	embedder  Embedder
	dims      int
	batchSize int
	err       error
}

// NewHandle wraps an embedder that must return vectors of dims length.
// A dims of zero disables the length check.
func NewHandle(e Embedder, dims, batchSize int) *Handle {
	if e == nil {
		return Unavailable(errors.New("no embedder configured"))
	}
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Handle{embedder: e, dims: dims, batchSize: batchSize}
}

// Unavailable returns a handle that reports cause from every call.
func Unavailable(cause error) *Handle {
	return &Handle{err: cause}
}

// Open builds the configured provider and probes it once. Any failure yields
// an unavailable handle; the process keeps running without embeddings.
func Open(ctx context.Context, cfg *config.Config) *Handle {
	var (
		e   Embedder
		err error
	)
	switch cfg.EmbeddingProvider {
	case "none":
		err = errors.New("embedding provider disabled")
	case "openai":
		e, err = NewOpenAI(cfg)
	default:
		e, err = NewLangchain(cfg)
	}
	if err != nil {
		slog.Warn("embedder unavailable", slog.String("provider", cfg.EmbeddingProvider), slog.Any("error", err))
		return Unavailable(err)
	}

	h := NewHandle(e, cfg.EmbeddingDimensions, cfg.EmbeddingBatchSize)
	if err := h.Probe(ctx); err != nil {
		slog.Warn("embedder probe failed",
			slog.String("provider", cfg.EmbeddingProvider),
			slog.String("model", cfg.EmbeddingModel),
			slog.Any("error", err),
		)
		return Unavailable(err)
	}
	slog.Info("embedder ready",
		slog.String("provider", cfg.EmbeddingProvider),
		slog.String("model", cfg.EmbeddingModel),
		slog.Int("dimensions", cfg.EmbeddingDimensions),
	)
	return h
}

// Available reports whether embeddings can be produced.
func (h *Handle) Available() bool {
	return h != nil && h.err == nil && h.embedder != nil
}

// Err returns why the handle is unavailable, or nil.
func (h *Handle) Err() error {
	if h == nil {
		return ErrUnavailable
	}
	return h.err
}

// Probe embeds a short text and checks the vector length.
func (h *Handle) Probe(ctx context.Context) error {
	_, err := h.EmbedText(ctx, "목차")
	return err
}

// EmbedText embeds one text.
func (h *Handle) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if !h.Available() {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, h.Err())
	}
	vec, err := h.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := h.check(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedTexts embeds texts in provider batches and returns vectors in input
// order.
func (h *Handle) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if !h.Available() {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, h.Err())
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += h.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+h.batchSize, len(texts))
		vecs, err := h.embedder.EmbedTexts(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embed batch %d-%d: got %d vectors", start, end, len(vecs))
		}
		for _, vec := range vecs {
			if err := h.check(vec); err != nil {
				return nil, err
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (h *Handle) check(vec []float32) error {
	if len(vec) == 0 {
		return errors.New("embedder returned an empty vector")
	}
	if h.dims > 0 && len(vec) != h.dims {
		return fmt.Errorf("embedding has %d dimensions, want %d", len(vec), h.dims)
	}
	return nil
}
