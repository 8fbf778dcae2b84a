// Package memstore is an in-memory store.Store for tests and dry runs.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/aluiziolira/bookroad/models"
	"github.com/aluiziolira/bookroad/parser"
	"github.com/aluiziolira/bookroad/store"
)

// Store keeps books and chapters in maps guarded by one mutex.
type Store struct {
	mu       sync.RWMutex
	nextID   int64
	books    map[string]models.BookRecord
	chapters map[string][]models.ChapterRecord
	chapter  map[int64]string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:   1,
		books:    make(map[string]models.BookRecord),
		chapters: make(map[string][]models.ChapterRecord),
		chapter:  make(map[int64]string),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

func (s *Store) ExistingISBNs(_ context.Context, isbns []string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	existing := make(map[string]struct{})
	for _, isbn := range isbns {
		if _, ok := s.books[isbn]; ok {
			existing[isbn] = struct{}{}
		}
	}
	return existing, nil
}

func (s *Store) UpsertBook(_ context.Context, b *models.BookRecord) (bool, error) {
	if err := parser.ValidateBook(b); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	rec := copyBook(*b)
	rec.UpdatedAt = now

	prev, ok := s.books[b.ISBN]
	if !ok {
		rec.CreatedAt = now
		rec.TOCParsingFailed = false
		rec.SummaryEmbedding = nil
		s.books[b.ISBN] = rec
		return true, nil
	}

	rec.CreatedAt = prev.CreatedAt
	rec.TOCParsingFailed = prev.TOCParsingFailed
	rec.SummaryEmbedding = nil
	if prev.Summary == rec.Summary {
		rec.SummaryEmbedding = prev.SummaryEmbedding
	}
	s.books[b.ISBN] = rec
	return false, nil
}

func (s *Store) GetBook(_ context.Context, isbn string) (*models.BookRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.books[isbn]
	if !ok {
		return nil, fmt.Errorf("book %s: %w", isbn, store.ErrNotFound)
	}
	out := copyBook(b)
	return &out, nil
}

func (s *Store) BooksWithTOC(_ context.Context) ([]*models.BookRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var books []*models.BookRecord
	for _, b := range s.books {
		if b.HasTOC() {
			out := copyBook(b)
			books = append(books, &out)
		}
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ISBN < books[j].ISBN })
	return books, nil
}

func (s *Store) ReplaceChapters(_ context.Context, isbn string, chapters []models.ChapterRecord, tocFailed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.books[isbn]
	if !ok {
		return fmt.Errorf("book %s: %w", isbn, store.ErrNotFound)
	}
	b.TOCParsingFailed = tocFailed
	s.books[isbn] = b

	for _, old := range s.chapters[isbn] {
		delete(s.chapter, old.ID)
	}
	replaced := make([]models.ChapterRecord, len(chapters))
	for i, ch := range chapters {
		ch.ID = s.nextID
		s.nextID++
		ch.BookISBN = isbn
		ch.TitleEmbedding = nil
		replaced[i] = ch
		s.chapter[ch.ID] = isbn
	}
	sort.SliceStable(replaced, func(i, j int) bool { return replaced[i].Order < replaced[j].Order })
	s.chapters[isbn] = replaced
	return nil
}

func (s *Store) MarkTOCParsingFailed(_ context.Context, isbn string, failed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.books[isbn]
	if !ok {
		return fmt.Errorf("book %s: %w", isbn, store.ErrNotFound)
	}
	b.TOCParsingFailed = failed
	s.books[isbn] = b
	return nil
}

func (s *Store) Chapters(_ context.Context, isbn string) ([]models.ChapterRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.chapters[isbn]
	if len(src) == 0 {
		return nil, nil
	}
	out := make([]models.ChapterRecord, len(src))
	for i, ch := range src {
		ch.TitleEmbedding = slices.Clone(ch.TitleEmbedding)
		out[i] = ch
	}
	return out, nil
}

func (s *Store) SetSummaryEmbedding(_ context.Context, isbn string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.books[isbn]
	if !ok {
		return fmt.Errorf("book %s: %w", isbn, store.ErrNotFound)
	}
	b.SummaryEmbedding = slices.Clone(vec)
	s.books[isbn] = b
	return nil
}

func (s *Store) SetChapterEmbeddings(_ context.Context, vecs map[int64][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, vec := range vecs {
		isbn, ok := s.chapter[id]
		if !ok {
			continue
		}
		chapters := s.chapters[isbn]
		for i := range chapters {
			if chapters[i].ID == id {
				chapters[i].TitleEmbedding = slices.Clone(vec)
				break
			}
		}
	}
	return nil
}

func copyBook(b models.BookRecord) models.BookRecord {
	if b.PublicationDate != nil {
		t := *b.PublicationDate
		b.PublicationDate = &t
	}
	if b.PageCount != nil {
		n := *b.PageCount
		b.PageCount = &n
	}
	b.AuthorsJSON = slices.Clone(b.AuthorsJSON)
	b.SummaryEmbedding = slices.Clone(b.SummaryEmbedding)
	return b
}

var _ store.Store = (*Store)(nil)
