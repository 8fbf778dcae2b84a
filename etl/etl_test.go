package etl

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/bookroad/config"
	"github.com/aluiziolira/bookroad/embed"
	"github.com/aluiziolira/bookroad/models"
	"github.com/aluiziolira/bookroad/store/memstore"
	"github.com/aluiziolira/bookroad/store/storetest"
	"github.com/aluiziolira/bookroad/vectorstore"
)

func TestDescriptionFallback(t *testing.T) {
	tests := []struct {
		name string
		book *models.BookRecord
		want string
	}{
		{name: "summary first", book: &models.BookRecord{Summary: "요약", FullDescription: "전체", PublisherDescription: "출판사"}, want: "요약"},
		{name: "full description", book: &models.BookRecord{Summary: "  ", FullDescription: "전체", PublisherDescription: "출판사"}, want: "전체"},
		{name: "publisher description", book: &models.BookRecord{PublisherDescription: "출판사 설명"}, want: "출판사 설명"},
		{name: "none", book: &models.BookRecord{}, want: ""},
		{name: "nil book", book: nil, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Description(tt.book))
		})
	}
}

func TestCompositeText(t *testing.T) {
	book := &models.BookRecord{Title: "운영체제 입문", PublisherDescription: "출판사 설명"}
	node := &models.OutlineNode{Title: "운영체제의 개요", Level: 2, Number: "1"}
	assert.Equal(t, "도서명: 운영체제 입문. 챕터: 운영체제의 개요. 책소개: 출판사 설명", CompositeText(book, node))
}

type etlFixture struct {
	store   *memstore.Store
	vectors *vectorstore.Store
	mock    *embed.Mock
	cfg     *config.Config
}

func newETLFixture(t *testing.T) *etlFixture {
	t.Helper()
	ctx := context.Background()

	st := memstore.New()
	first := storetest.Book("9791162241882")
	first.RawTOC = "들어가기 전 안내\n제1장 운영체제의 개요\n1.1 운영체제의 역할 ..... 15\n찾아보기"
	second := storetest.Book("9788966260959")
	second.Title = "네트워크 입문"
	second.Summary = ""
	second.FullDescription = ""
	second.PublisherDescription = "출판사 설명"
	second.RawTOC = "Chapter 01 시작하기"
	noTOC := storetest.Book("9788931463576")
	noTOC.RawTOC = ""
	for _, b := range []*models.BookRecord{first, second, noTOC} {
		_, err := st.UpsertBook(ctx, b)
		require.NoError(t, err)
	}

	vectors, err := vectorstore.Open("", true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { vectors.Close() })

	cfg := config.DefaultConfig()
	cfg.OutputDir = filepath.Join(t.TempDir(), "parsing_results")
	cfg.Workers = 2

	return &etlFixture{store: st, vectors: vectors, mock: embed.NewMock(8), cfg: cfg}
}

func readDiagnosticCSV(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}), "missing utf-8 bom in %s", path)
	rows, err := csv.NewReader(bytes.NewReader(data[3:])).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRunnerLoadsChunksAndDiagnostics(t *testing.T) {
	f := newETLFixture(t)
	ctx := context.Background()
	runner := NewRunner(f.store, f.vectors, embed.NewHandle(f.mock, 8, 2), f.cfg, nil)

	report, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Books)
	assert.Equal(t, 3, report.Nodes)
	assert.Equal(t, 1, report.Failures)
	assert.Equal(t, 3, report.Chunks)
	assert.True(t, report.Embedded)

	chunks, err := f.vectors.All(ctx)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, ch := range chunks {
		assert.Equal(t, uint64(i+1), ch.ID)
		assert.Len(t, ch.Embedding, 8)
	}
	// BooksWithTOC is ordered by isbn, so the second fixture comes first.
	assert.Equal(t, "9788966260959", chunks[0].ISBN)
	assert.Equal(t, "도서명: 네트워크 입문. 챕터: 시작하기. 책소개: 출판사 설명", chunks[0].CompositeText)
	assert.Equal(t, "운영체제의 개요", chunks[1].ChapterTitle)
	assert.Equal(t, 2, chunks[1].Level)
	assert.Equal(t, "1.1", chunks[2].Number)
	assert.Equal(t, 4, chunks[2].Level)

	nodes := readDiagnosticCSV(t, filepath.Join(f.cfg.OutputDir, NodesFile))
	require.Len(t, nodes, 4)
	assert.Equal(t, []string{"isbn", "level", "number", "title", "source_line"}, nodes[0])
	assert.Equal(t, []string{"9791162241882", "4", "1.1", "운영체제의 역할", "3"}, nodes[3])

	failures := readDiagnosticCSV(t, filepath.Join(f.cfg.OutputDir, FailuresFile))
	require.Len(t, failures, 2)
	assert.Equal(t, []string{"9791162241882", "1", "들어가기 전 안내"}, failures[1])

	logData, err := os.ReadFile(filepath.Join(f.cfg.OutputDir, FailuresLogFile))
	require.NoError(t, err)
	assert.Equal(t, "ISBN: 9791162241882, Line: 1, Content: 들어가기 전 안내\n", string(logData))
}

func TestRunnerReplacesInsteadOfAppending(t *testing.T) {
	f := newETLFixture(t)
	ctx := context.Background()
	runner := NewRunner(f.store, f.vectors, embed.NewHandle(f.mock, 8, 16), f.cfg, nil)

	_, err := runner.Run(ctx)
	require.NoError(t, err)
	_, err = runner.Run(ctx)
	require.NoError(t, err)

	n, err := f.vectors.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRunnerWithoutEmbedderKeepsVectors(t *testing.T) {
	f := newETLFixture(t)
	ctx := context.Background()
	require.NoError(t, f.vectors.Load(ctx, []vectorstore.Chunk{{ISBN: "9791162241882", ChapterTitle: "이전 적재"}}))

	runner := NewRunner(f.store, f.vectors, embed.Unavailable(errors.New("model not loaded")), f.cfg, nil)
	report, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.False(t, report.Embedded)
	assert.Equal(t, 3, report.Nodes)

	n, err := f.vectors.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n, "vector store must not be truncated without embeddings")
	assert.FileExists(t, filepath.Join(f.cfg.OutputDir, NodesFile))
}

func TestRunnerEmbedderErrorKeepsVectors(t *testing.T) {
	f := newETLFixture(t)
	ctx := context.Background()
	require.NoError(t, f.vectors.Load(ctx, []vectorstore.Chunk{{ISBN: "9791162241882"}}))
	f.mock.Err = errors.New("connection refused")

	_, err := NewRunner(f.store, f.vectors, embed.NewHandle(f.mock, 8, 16), f.cfg, nil).Run(ctx)
	require.Error(t, err)

	n, err := f.vectors.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunnerNoBooks(t *testing.T) {
	vectors, err := vectorstore.Open("", true, nil)
	require.NoError(t, err)
	defer vectors.Close()

	cfg := config.DefaultConfig()
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")
	mock := embed.NewMock(8)

	report, err := NewRunner(memstore.New(), vectors, embed.NewHandle(mock, 8, 16), cfg, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Books)
	assert.Zero(t, mock.Calls())
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, NodesFile))
}
