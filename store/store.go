// Package store defines persistence for book records and their chapters.
package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/aluiziolira/bookroad/models"
)

// ErrNotFound is returned when a book does not exist.
var ErrNotFound = errors.New("store: not found")

// Store persists books and chapters. Every write is scoped to one ISBN and
// is an upsert, a full replace or a gap fill, so re-running a stage is safe.
type Store interface {
	Close() error

	// ExistingISBNs returns the subset of isbns already stored.
	ExistingISBNs(ctx context.Context, isbns []string) (map[string]struct{}, error)

	// UpsertBook inserts or updates a book keyed by ISBN and reports whether
	// it was created. A changed summary clears the stored summary embedding.
	UpsertBook(ctx context.Context, b *models.BookRecord) (bool, error)
	GetBook(ctx context.Context, isbn string) (*models.BookRecord, error)
	BooksWithTOC(ctx context.Context) ([]*models.BookRecord, error)

	// ReplaceChapters swaps the chapter set and the parse flag atomically.
	ReplaceChapters(ctx context.Context, isbn string, chapters []models.ChapterRecord, tocFailed bool) error
	MarkTOCParsingFailed(ctx context.Context, isbn string, failed bool) error
	Chapters(ctx context.Context, isbn string) ([]models.ChapterRecord, error)

	SetSummaryEmbedding(ctx context.Context, isbn string, vec []float32) error
	SetChapterEmbeddings(ctx context.Context, vecs map[int64][]float32) error
}

// EncodeVector packs a vector as little-endian float32 values.
func EncodeVector(vec []float32) []byte {
	if vec == nil {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector reverses EncodeVector. An empty blob decodes to nil.
func DecodeVector(buf []byte) ([]float32, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec, nil
}
