package etl

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/aluiziolira/bookroad/config"
	"github.com/aluiziolira/bookroad/embed"
	"github.com/aluiziolira/bookroad/metrics"
	"github.com/aluiziolira/bookroad/models"
	"github.com/aluiziolira/bookroad/parser"
	"github.com/aluiziolira/bookroad/pipeline"
	"github.com/aluiziolira/bookroad/vectorstore"
)

// Diagnostic file names written under the output directory.
const (
	NodesFile       = "structured_toc_nodes.csv"
	FailuresFile    = "parsing_failures.csv"
	FailuresLogFile = "parsing_failures.log"
	ActivityLogFile = "parsing_activity.log"
)

// Source lists the books whose raw table of contents is non-empty.
type Source interface {
	BooksWithTOC(ctx context.Context) ([]*models.BookRecord, error)
}

// Sink replaces the whole chunk set.
type Sink interface {
	Replace(ctx context.Context, chunks []vectorstore.Chunk) error
}

// Report summarises one batch run.
type Report struct {
	Books    int
	Nodes    int
	Failures int
	Chunks   int
	Embedded bool
	Elapsed  time.Duration
}

// Runner executes extract, parse, diagnostics, embed and load.
type Runner struct {
	source    Source
	vectors   Sink
	embedder  *embed.Handle
	outputDir string
	workers   int
	metrics   *metrics.Metrics
}

// NewRunner wires a batch run. A nil embedder stops the run after the
// diagnostics are written.
func NewRunner(src Source, vectors Sink, h *embed.Handle, cfg *config.Config, m *metrics.Metrics) *Runner {
	if h == nil {
		h = embed.Unavailable(embed.ErrUnavailable)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Runner{
		source:    src,
		vectors:   vectors,
		embedder:  h,
		outputDir: cfg.OutputDir,
		workers:   workers,
		metrics:   m,
	}
}

// Run rebuilds the vector store. The store is only truncated once every
// chunk has been embedded.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{}
	slog.Info("etl started", slog.String("output_dir", r.outputDir))

	books, err := r.source.BooksWithTOC(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract books: %w", err)
	}
	report.Books = len(books)
	if len(books) == 0 {
		slog.Warn("no books with a table of contents, etl stopping")
		report.Elapsed = time.Since(start)
		return report, nil
	}

	outlines, err := r.parseAll(ctx, books)
	if err != nil {
		return nil, err
	}

	var (
		nodes    []*models.OutlineNode
		failures []*models.ParseFailure
		owners   []*models.BookRecord
	)
	for i, o := range outlines {
		for _, n := range o.Nodes {
			nodes = append(nodes, n)
			owners = append(owners, books[i])
		}
		for j := range o.Failures {
			failures = append(failures, &o.Failures[j])
		}
	}
	report.Nodes = len(nodes)
	report.Failures = len(failures)
	r.metrics.AddUnmatched(len(failures))
	slog.Info("toc parsing complete",
		slog.Int("books", len(books)),
		slog.Int("nodes", len(nodes)),
		slog.Int("failures", len(failures)),
	)

	r.writeDiagnostics(nodes, failures)

	if len(nodes) == 0 {
		slog.Warn("no headings parsed, etl stopping")
		report.Elapsed = time.Since(start)
		return report, nil
	}
	if !r.embedder.Available() {
		slog.Error("embedding model not available, skipping embedding and load", slog.Any("error", r.embedder.Err()))
		report.Elapsed = time.Since(start)
		return report, nil
	}

	chunks, err := r.embedChunks(ctx, nodes, owners)
	if err != nil {
		return nil, err
	}
	if err := r.vectors.Replace(ctx, chunks); err != nil {
		return nil, fmt.Errorf("load vector store: %w", err)
	}
	r.metrics.SetChunks(len(chunks))

	report.Chunks = len(chunks)
	report.Embedded = true
	report.Elapsed = time.Since(start)
	slog.Info("etl finished",
		slog.Int("chunks", report.Chunks),
		slog.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

// parseAll parses every book on a worker pool and returns outlines in book
// order.
func (r *Runner) parseAll(ctx context.Context, books []*models.BookRecord) ([]*parser.Outline, error) {
	pool, err := ants.NewPool(r.workers)
	if err != nil {
		return nil, fmt.Errorf("create parse pool: %w", err)
	}
	defer pool.Release()

	outlines := make([]*parser.Outline, len(books))
	var wg sync.WaitGroup
	for i, b := range books {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			outlines[i] = parser.ParseTOC(b.ISBN, b.RawTOC)
		}); err != nil {
			wg.Done()
			wg.Wait()
			return nil, fmt.Errorf("submit parse of %s: %w", b.ISBN, err)
		}
	}
	wg.Wait()
	return outlines, nil
}

func (r *Runner) embedChunks(ctx context.Context, nodes []*models.OutlineNode, owners []*models.BookRecord) ([]vectorstore.Chunk, error) {
	texts := make([]string, len(nodes))
	for i, n := range nodes {
		texts[i] = CompositeText(owners[i], n)
	}
	slog.Info("embedding composite texts", slog.Int("count", len(texts)))

	vecs, err := r.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed composite texts: %w", err)
	}

	chunks := make([]vectorstore.Chunk, len(nodes))
	for i, n := range nodes {
		chunks[i] = vectorstore.Chunk{
			ID:            uint64(i + 1),
			ISBN:          n.ISBN,
			Level:         n.Level,
			Number:        n.Number,
			ChapterTitle:  n.Title,
			CompositeText: texts[i],
			Embedding:     vecs[i],
		}
	}
	return chunks, nil
}

// writeDiagnostics writes the node and failure tables. Failures are logged;
// they do not stop the run.
func (r *Runner) writeDiagnostics(nodes []*models.OutlineNode, failures []*models.ParseFailure) {
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		slog.Error("create output directory", slog.String("dir", r.outputDir), slog.Any("error", err))
		return
	}

	if len(nodes) > 0 {
		path := filepath.Join(r.outputDir, NodesFile)
		if err := writeCSV(path, nodes); err != nil {
			slog.Error("save parsed nodes", slog.String("path", path), slog.Any("error", err))
		} else {
			slog.Info("saved parsed nodes", slog.String("path", path), slog.Int("rows", len(nodes)))
		}
	}

	if len(failures) > 0 {
		csvPath := filepath.Join(r.outputDir, FailuresFile)
		if err := writeCSV(csvPath, failures); err != nil {
			slog.Error("save parse failures", slog.String("path", csvPath), slog.Any("error", err))
		}
		logPath := filepath.Join(r.outputDir, FailuresLogFile)
		if err := writeFailureLog(logPath, failures); err != nil {
			slog.Error("save parse failure log", slog.String("path", logPath), slog.Any("error", err))
		} else {
			slog.Info("saved parse failures", slog.String("csv", csvPath), slog.String("log", logPath), slog.Int("rows", len(failures)))
		}
	}
}

func writeCSV[T pipeline.Record](path string, rows []T) error {
	w, err := pipeline.NewCSVWriter[T](path, true)
	if err != nil {
		return err
	}
	if err := w.Write(rows); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func writeFailureLog(path string, failures []*models.ParseFailure) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, pf := range failures {
		fmt.Fprintf(w, "ISBN: %s, Line: %d, Content: %s\n", pf.ISBN, pf.LineNum, pf.Content)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
