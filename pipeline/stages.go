package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/aluiziolira/bookroad/catalog"
	"github.com/aluiziolira/bookroad/config"
	"github.com/aluiziolira/bookroad/embed"
	"github.com/aluiziolira/bookroad/metrics"
	"github.com/aluiziolira/bookroad/models"
	"github.com/aluiziolira/bookroad/parser"
	"github.com/aluiziolira/bookroad/store"
)

// errMalformedRecord marks a lookup whose payload cannot be persisted.
var errMalformedRecord = errors.New("malformed record")

// Catalog is the lookup half of the catalog client used by the fetch stage.
type Catalog interface {
	ItemLookup(ctx context.Context, isbn string) (*catalog.Item, error)
}

// Stages holds the fetch, parse and embed steps for one ISBN. A Stages value
// keeps no per-ISBN state, so one instance serves every worker.
type Stages struct {
	catalog  Catalog
	store    store.Store
	embedder *embed.Handle
	limiter  *RateLimiter
	metrics  *metrics.Metrics

	attempts uint
	backoff  time.Duration
}

// NewStages wires the stages. A nil embedder behaves as an unavailable one.
func NewStages(c Catalog, st store.Store, h *embed.Handle, limiter *RateLimiter, cfg *config.Config, m *metrics.Metrics) *Stages {
	if h == nil {
		h = embed.Unavailable(embed.ErrUnavailable)
	}
	if limiter == nil {
		limiter = NewRateLimiter(cfg.FetchRatePerMinute, 1)
	}
	attempts := cfg.FetchAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Stages{
		catalog:  c,
		store:    st,
		embedder: h,
		limiter:  limiter,
		metrics:  m,
		attempts: uint(attempts),
		backoff:  cfg.FetchBackoff,
	}
}

// Fetch looks isbn up in the catalog and upserts the book. Transient catalog
// and store faults retry the whole unit with a fixed backoff.
func (s *Stages) Fetch(ctx context.Context, isbn string) models.StageResult {
	if !parser.IsISBN13(isbn) {
		return models.Skipped(isbn, fmt.Sprintf("not an isbn-13: %q", isbn))
	}

	err := retry.Do(
		func() error {
			if err := s.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			item, err := s.catalog.ItemLookup(ctx, isbn)
			if err != nil {
				var limited catalog.ErrRateLimited
				if errors.As(err, &limited) {
					s.limiter.Record429()
				}
				if catalog.IsTransient(err) {
					return err
				}
				return retry.Unrecoverable(err)
			}

			rec := item.Record()
			rec.ISBN = isbn
			if err := parser.ValidateBook(rec); err != nil {
				return retry.Unrecoverable(fmt.Errorf("%w: %v", errMalformedRecord, err))
			}
			created, err := s.store.UpsertBook(ctx, rec)
			if err != nil {
				return fmt.Errorf("upsert book: %w", err)
			}
			slog.Debug("book fetched",
				slog.String("isbn", isbn),
				slog.Bool("created", created),
				slog.Bool("has_toc", rec.HasTOC()),
			)
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.backoff),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.metrics.IncRetries()
			slog.Warn("fetch retry",
				slog.String("isbn", isbn),
				slog.Uint64("attempt", uint64(n+1)),
				slog.String("error_type", catalog.ErrorType(err)),
				slog.Any("error", err),
			)
		}),
	)
	if err == nil {
		return models.Success(isbn)
	}

	var malformed catalog.ErrMalformed
	if errors.Is(err, errMalformedRecord) || errors.As(err, &malformed) {
		slog.Warn("fetch skipped", slog.String("isbn", isbn), slog.Any("reason", err))
		return models.Skipped(isbn, err.Error())
	}
	slog.Error("fetch failed", slog.String("isbn", isbn), slog.Any("error", err))
	return models.Failed(isbn, err)
}

// Parse rebuilds the chapter rows of the book fetched by prev. A book with no
// recognisable headings is flagged and stored with zero chapters.
func (s *Stages) Parse(ctx context.Context, prev models.StageResult) models.StageResult {
	isbn := prev.ISBN
	if r, ok := guard(prev); !ok {
		return r
	}

	book, err := s.store.GetBook(ctx, isbn)
	if err != nil {
		slog.Error("parse: load book", slog.String("isbn", isbn), slog.Any("error", err))
		return models.Failed(isbn, fmt.Errorf("load book: %w", err))
	}

	outline := parser.ParseTOC(isbn, book.RawTOC)
	chapters := outline.Chapters()
	s.metrics.AddUnmatched(len(outline.Failures))

	tocFailed := len(chapters) == 0
	if err := s.store.ReplaceChapters(ctx, isbn, chapters, tocFailed); err != nil {
		if markErr := s.store.MarkTOCParsingFailed(ctx, isbn, true); markErr != nil {
			slog.Warn("parse: flag toc failure", slog.String("isbn", isbn), slog.Any("error", markErr))
		}
		slog.Error("parse: replace chapters", slog.String("isbn", isbn), slog.Any("error", err))
		return models.Failed(isbn, fmt.Errorf("replace chapters: %w", err))
	}

	slog.Debug("toc parsed",
		slog.String("isbn", isbn),
		slog.Int("chapters", len(chapters)),
		slog.Int("unmatched", len(outline.Failures)),
		slog.Bool("toc_parsing_failed", tocFailed),
	)
	return models.Success(isbn)
}

// Embed fills the summary and chapter embeddings that are still missing.
// Running it twice issues no embedding calls the second time.
func (s *Stages) Embed(ctx context.Context, prev models.StageResult) models.StageResult {
	isbn := prev.ISBN
	if r, ok := guard(prev); !ok {
		return r
	}
	if !s.embedder.Available() {
		return models.Skipped(isbn, "embedder unavailable")
	}

	book, err := s.store.GetBook(ctx, isbn)
	if err != nil {
		return models.Failed(isbn, fmt.Errorf("load book: %w", err))
	}
	if book.SummaryEmbedding == nil && strings.TrimSpace(book.Summary) != "" {
		vec, err := s.embedder.EmbedText(ctx, book.Summary)
		if err != nil {
			return models.Failed(isbn, fmt.Errorf("embed summary: %w", err))
		}
		if err := s.store.SetSummaryEmbedding(ctx, isbn, vec); err != nil {
			return models.Failed(isbn, fmt.Errorf("store summary embedding: %w", err))
		}
	}

	chapters, err := s.store.Chapters(ctx, isbn)
	if err != nil {
		return models.Failed(isbn, fmt.Errorf("load chapters: %w", err))
	}
	var (
		ids   []int64
		texts []string
	)
	for _, ch := range chapters {
		if ch.TitleEmbedding != nil {
			continue
		}
		ids = append(ids, ch.ID)
		texts = append(texts, ch.EmbeddingText())
	}
	if len(texts) == 0 {
		return models.Success(isbn)
	}

	vecs, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return models.Failed(isbn, fmt.Errorf("embed chapters: %w", err))
	}
	byID := make(map[int64][]float32, len(ids))
	for i, id := range ids {
		byID[id] = vecs[i]
	}
	if err := s.store.SetChapterEmbeddings(ctx, byID); err != nil {
		return models.Failed(isbn, fmt.Errorf("store chapter embeddings: %w", err))
	}
	slog.Debug("chapters embedded", slog.String("isbn", isbn), slog.Int("count", len(ids)))
	return models.Success(isbn)
}

// guard turns a non-success or non-isbn input into a Skipped result.
func guard(prev models.StageResult) (models.StageResult, bool) {
	if !prev.OK() {
		return models.Skipped(prev.ISBN, "upstream "+prev.Status.String()), false
	}
	if !parser.IsISBN13(prev.ISBN) {
		return models.Skipped(prev.ISBN, fmt.Sprintf("not an isbn-13: %q", prev.ISBN)), false
	}
	return prev, true
}
