// Package storetest holds behaviour checks shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aluiziolira/bookroad/models"
	"github.com/aluiziolira/bookroad/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory opens an empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Book returns a valid record for isbn.
func Book(isbn string) *models.BookRecord {
	pub := time.Date(2019, 6, 10, 0, 0, 0, 0, time.UTC)
	pages := 512
	return &models.BookRecord{
		ISBN:                 isbn,
		Title:                "혼자 공부하는 파이썬",
		Author:               "윤인성",
		Summary:              "파이썬 입문서",
		Subtitle:             "1:1 과외하듯",
		Publisher:            "한빛미디어",
		PublicationDate:      &pub,
		PageCount:            &pages,
		AuthorsJSON:          json.RawMessage(`[{"authorName":"윤인성"}]`),
		FullDescription:      "전체 설명",
		PublisherDescription: "출판사 설명",
		RawTOC:               "Chapter 01 시작하기",
	}
}

// Run exercises the store.Store contract against stores built by open.
func Run(t *testing.T, open Factory) {
	t.Run("upsert and get", func(t *testing.T) { testUpsertGet(t, open(t)) })
	t.Run("summary change clears embedding", func(t *testing.T) { testSummaryInvalidation(t, open(t)) })
	t.Run("existing isbns", func(t *testing.T) { testExisting(t, open(t)) })
	t.Run("replace chapters", func(t *testing.T) { testReplaceChapters(t, open(t)) })
	t.Run("embeddings", func(t *testing.T) { testEmbeddings(t, open(t)) })
	t.Run("books with toc", func(t *testing.T) { testBooksWithTOC(t, open(t)) })
	t.Run("missing book", func(t *testing.T) { testMissing(t, open(t)) })
}

func testUpsertGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	b := Book("9791162241882")

	created, err := s.UpsertBook(ctx, b)
	require.NoError(t, err)
	assert.True(t, created)

	got, err := s.GetBook(ctx, b.ISBN)
	require.NoError(t, err)
	assert.Equal(t, b.Title, got.Title)
	assert.Equal(t, b.Subtitle, got.Subtitle)
	assert.Equal(t, b.PublisherDescription, got.PublisherDescription)
	require.NotNil(t, got.PublicationDate)
	assert.Equal(t, "2019-06-10", got.PublicationDate.Format("2006-01-02"))
	require.NotNil(t, got.PageCount)
	assert.Equal(t, 512, *got.PageCount)
	assert.JSONEq(t, string(b.AuthorsJSON), string(got.AuthorsJSON))
	assert.False(t, got.TOCParsingFailed)
	assert.Nil(t, got.SummaryEmbedding)

	b.Title = "혼자 공부하는 파이썬 (개정판)"
	b.PageCount = nil
	created, err = s.UpsertBook(ctx, b)
	require.NoError(t, err)
	assert.False(t, created)

	got, err = s.GetBook(ctx, b.ISBN)
	require.NoError(t, err)
	assert.Equal(t, "혼자 공부하는 파이썬 (개정판)", got.Title)
	assert.Nil(t, got.PageCount)

	_, err = s.UpsertBook(ctx, &models.BookRecord{ISBN: "123", Title: "bad"})
	assert.Error(t, err)
}

func testSummaryInvalidation(t *testing.T, s store.Store) {
	ctx := context.Background()
	b := Book("9791162241882")
	_, err := s.UpsertBook(ctx, b)
	require.NoError(t, err)
	require.NoError(t, s.SetSummaryEmbedding(ctx, b.ISBN, []float32{1, 2, 3}))

	_, err = s.UpsertBook(ctx, b)
	require.NoError(t, err)
	got, err := s.GetBook(ctx, b.ISBN)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, got.SummaryEmbedding, "unchanged summary keeps its embedding")

	b.Summary = "새 요약"
	_, err = s.UpsertBook(ctx, b)
	require.NoError(t, err)
	got, err = s.GetBook(ctx, b.ISBN)
	require.NoError(t, err)
	assert.Nil(t, got.SummaryEmbedding)
}

func testExisting(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, isbn := range []string{"9791162241882", "9788966260959"} {
		_, err := s.UpsertBook(ctx, Book(isbn))
		require.NoError(t, err)
	}

	got, err := s.ExistingISBNs(ctx, []string{"9791162241882", "9788931463576", "9788966260959"})
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"9791162241882": {}, "9788966260959": {}}, got)

	got, err = s.ExistingISBNs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testReplaceChapters(t *testing.T, s store.Store) {
	ctx := context.Background()
	isbn := "9791162241882"
	_, err := s.UpsertBook(ctx, Book(isbn))
	require.NoError(t, err)

	first := []models.ChapterRecord{
		{Order: 1, Level: 1, Number: "1", Title: "기초"},
		{Order: 2, Level: 2, Number: "1", Title: "시작하기"},
		{Order: 3, Level: 4, Number: "1.1", Title: "설치"},
	}
	require.NoError(t, s.ReplaceChapters(ctx, isbn, first, false))

	got, err := s.Chapters(ctx, isbn)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, ch := range got {
		assert.Equal(t, i+1, ch.Order)
		assert.Equal(t, isbn, ch.BookISBN)
		assert.NotZero(t, ch.ID)
		assert.Nil(t, ch.TitleEmbedding)
	}
	assert.Equal(t, "설치", got[2].Title)
	assert.Equal(t, "1.1", got[2].Number)

	require.NoError(t, s.ReplaceChapters(ctx, isbn, first[:1], false))
	got, err = s.Chapters(ctx, isbn)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, s.ReplaceChapters(ctx, isbn, nil, true))
	got, err = s.Chapters(ctx, isbn)
	require.NoError(t, err)
	assert.Empty(t, got)
	book, err := s.GetBook(ctx, isbn)
	require.NoError(t, err)
	assert.True(t, book.TOCParsingFailed)

	require.NoError(t, s.MarkTOCParsingFailed(ctx, isbn, false))
	book, err = s.GetBook(ctx, isbn)
	require.NoError(t, err)
	assert.False(t, book.TOCParsingFailed)
}

func testEmbeddings(t *testing.T, s store.Store) {
	ctx := context.Background()
	isbn := "9791162241882"
	_, err := s.UpsertBook(ctx, Book(isbn))
	require.NoError(t, err)
	require.NoError(t, s.ReplaceChapters(ctx, isbn, []models.ChapterRecord{
		{Order: 1, Level: 2, Number: "1", Title: "시작하기"},
		{Order: 2, Level: 2, Number: "2", Title: "자료형"},
	}, false))

	chapters, err := s.Chapters(ctx, isbn)
	require.NoError(t, err)
	require.NoError(t, s.SetChapterEmbeddings(ctx, map[int64][]float32{chapters[0].ID: {0.5, 0.25}}))
	require.NoError(t, s.SetChapterEmbeddings(ctx, nil))

	chapters, err = s.Chapters(ctx, isbn)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, chapters[0].TitleEmbedding)
	assert.Nil(t, chapters[1].TitleEmbedding)

	require.NoError(t, s.SetSummaryEmbedding(ctx, isbn, []float32{9}))
	book, err := s.GetBook(ctx, isbn)
	require.NoError(t, err)
	assert.Equal(t, []float32{9}, book.SummaryEmbedding)
}

func testBooksWithTOC(t *testing.T, s store.Store) {
	ctx := context.Background()
	withTOC := Book("9791162241882")
	noTOC := Book("9788966260959")
	noTOC.RawTOC = ""
	for _, b := range []*models.BookRecord{noTOC, withTOC} {
		_, err := s.UpsertBook(ctx, b)
		require.NoError(t, err)
	}

	books, err := s.BooksWithTOC(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, withTOC.ISBN, books[0].ISBN)
}

func testMissing(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.GetBook(ctx, "9791162241882")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.True(t, errors.Is(s.ReplaceChapters(ctx, "9791162241882", nil, true), store.ErrNotFound))
	assert.True(t, errors.Is(s.SetSummaryEmbedding(ctx, "9791162241882", []float32{1}), store.ErrNotFound))
}
