// Package sqlite implements store.Store on SQLite through modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aluiziolira/bookroad/models"
	"github.com/aluiziolira/bookroad/parser"
	"github.com/aluiziolira/bookroad/store"
)

// maxInParams bounds the placeholders in one IN clause.
const maxInParams = 500

type sqliteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path with WAL journaling
// and foreign keys enabled, and applies the schema.
func Open(ctx context.Context, path string) (store.Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One connection serialises writers; the pragmas above then hold for
	// every statement.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS books (
	isbn TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	author TEXT,
	summary TEXT,
	subtitle TEXT,
	publisher TEXT,
	publication_date TEXT,
	page_count INTEGER,
	authors_json TEXT,
	full_description TEXT,
	publisher_description TEXT,
	raw_toc TEXT,
	toc_parsing_failed INTEGER NOT NULL DEFAULT 0,
	summary_embedding BLOB,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chapters (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	book_isbn TEXT NOT NULL,
	chapter_order INTEGER NOT NULL,
	level INTEGER NOT NULL,
	number TEXT,
	title TEXT NOT NULL,
	title_embedding BLOB,
	UNIQUE(book_isbn, chapter_order),
	FOREIGN KEY(book_isbn) REFERENCES books(isbn) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_chapters_book ON chapters(book_isbn);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func (s *sqliteStore) ExistingISBNs(ctx context.Context, isbns []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	for start := 0; start < len(isbns); start += maxInParams {
		end := min(start+maxInParams, len(isbns))
		chunk := isbns[start:end]

		args := make([]any, len(chunk))
		for i, isbn := range chunk {
			args[i] = isbn
		}
		query := `SELECT isbn FROM books WHERE isbn IN (` + placeholders(len(chunk)) + `)`

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query existing isbns: %w", err)
		}
		for rows.Next() {
			var isbn string
			if err := rows.Scan(&isbn); err != nil {
				rows.Close()
				return nil, err
			}
			existing[isbn] = struct{}{}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return existing, nil
}

func (s *sqliteStore) UpsertBook(ctx context.Context, b *models.BookRecord) (bool, error) {
	if err := parser.ValidateBook(b); err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM books WHERE isbn = ?`, b.ISBN).Scan(&exists)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	const stmt = `
INSERT INTO books (
	isbn, title, author, summary, subtitle, publisher, publication_date, page_count,
	authors_json, full_description, publisher_description, raw_toc, created_at, updated_at
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(isbn) DO UPDATE SET
	title=excluded.title,
	author=excluded.author,
	summary_embedding=CASE WHEN books.summary IS excluded.summary THEN books.summary_embedding ELSE NULL END,
	summary=excluded.summary,
	subtitle=excluded.subtitle,
	publisher=excluded.publisher,
	publication_date=excluded.publication_date,
	page_count=excluded.page_count,
	authors_json=excluded.authors_json,
	full_description=excluded.full_description,
	publisher_description=excluded.publisher_description,
	raw_toc=excluded.raw_toc,
	updated_at=excluded.updated_at;
`
	_, err = tx.ExecContext(ctx, stmt,
		b.ISBN,
		b.Title,
		b.Author,
		b.Summary,
		b.Subtitle,
		b.Publisher,
		formatDate(b.PublicationDate),
		nullableInt(b.PageCount),
		nullableJSON(b.AuthorsJSON),
		b.FullDescription,
		b.PublisherDescription,
		b.RawTOC,
		now,
		now,
	)
	if err != nil {
		return false, fmt.Errorf("upsert book %s: %w", b.ISBN, err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return exists == 0, nil
}

const bookColumns = `isbn, title, author, summary, subtitle, publisher, publication_date, page_count,
	authors_json, full_description, publisher_description, raw_toc, toc_parsing_failed,
	summary_embedding, created_at, updated_at`

func (s *sqliteStore) GetBook(ctx context.Context, isbn string) (*models.BookRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE isbn = ?`, isbn)
	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("book %s: %w", isbn, store.ErrNotFound)
	}
	return b, err
}

func (s *sqliteStore) BooksWithTOC(ctx context.Context) ([]*models.BookRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+bookColumns+`
FROM books
WHERE raw_toc IS NOT NULL AND raw_toc != ''
ORDER BY isbn;
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []*models.BookRecord
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func (s *sqliteStore) ReplaceChapters(ctx context.Context, isbn string, chapters []models.ChapterRecord, tocFailed bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE books SET toc_parsing_failed = ?, updated_at = ? WHERE isbn = ?`,
		tocFailed, time.Now().UTC().Format(time.RFC3339Nano), isbn)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("book %s: %w", isbn, store.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chapters WHERE book_isbn = ?`, isbn); err != nil {
		return err
	}
	if len(chapters) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chapters (book_isbn, chapter_order, level, number, title)
VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, ch := range chapters {
			if _, err := stmt.ExecContext(ctx, isbn, ch.Order, ch.Level, ch.Number, ch.Title); err != nil {
				return fmt.Errorf("insert chapter %d of %s: %w", ch.Order, isbn, err)
			}
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) MarkTOCParsingFailed(ctx context.Context, isbn string, failed bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE books SET toc_parsing_failed = ? WHERE isbn = ?`, failed, isbn)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("book %s: %w", isbn, store.ErrNotFound)
	}
	return nil
}

func (s *sqliteStore) Chapters(ctx context.Context, isbn string) ([]models.ChapterRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, book_isbn, chapter_order, level, COALESCE(number, ''), title, title_embedding
FROM chapters
WHERE book_isbn = ?
ORDER BY chapter_order;
`, isbn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chapters []models.ChapterRecord
	for rows.Next() {
		var (
			ch   models.ChapterRecord
			blob []byte
		)
		if err := rows.Scan(&ch.ID, &ch.BookISBN, &ch.Order, &ch.Level, &ch.Number, &ch.Title, &blob); err != nil {
			return nil, err
		}
		if ch.TitleEmbedding, err = store.DecodeVector(blob); err != nil {
			return nil, fmt.Errorf("chapter %d embedding: %w", ch.ID, err)
		}
		chapters = append(chapters, ch)
	}
	return chapters, rows.Err()
}

func (s *sqliteStore) SetSummaryEmbedding(ctx context.Context, isbn string, vec []float32) error {
	res, err := s.db.ExecContext(ctx, `UPDATE books SET summary_embedding = ? WHERE isbn = ?`, store.EncodeVector(vec), isbn)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("book %s: %w", isbn, store.ErrNotFound)
	}
	return nil
}

func (s *sqliteStore) SetChapterEmbeddings(ctx context.Context, vecs map[int64][]float32) error {
	if len(vecs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE chapters SET title_embedding = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for id, vec := range vecs {
		if _, err := stmt.ExecContext(ctx, store.EncodeVector(vec), id); err != nil {
			return fmt.Errorf("set chapter %d embedding: %w", id, err)
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (*models.BookRecord, error) {
	var (
		b                                        models.BookRecord
		author, summary, subtitle, publisher     sql.NullString
		pubDate, authors, fullDesc, pubDesc, toc sql.NullString
		pageCount                                sql.NullInt64
		embedding                                []byte
		createdAt, updatedAt                     string
	)
	err := row.Scan(&b.ISBN, &b.Title, &author, &summary, &subtitle, &publisher, &pubDate, &pageCount,
		&authors, &fullDesc, &pubDesc, &toc, &b.TOCParsingFailed, &embedding, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	b.Author = author.String
	b.Summary = summary.String
	b.Subtitle = subtitle.String
	b.Publisher = publisher.String
	b.FullDescription = fullDesc.String
	b.PublisherDescription = pubDesc.String
	b.RawTOC = toc.String
	b.PublicationDate = parser.ParsePubDate(pubDate.String)
	if pageCount.Valid {
		b.PageCount = parser.PageCount(int(pageCount.Int64))
	}
	if authors.Valid && authors.String != "" {
		b.AuthorsJSON = json.RawMessage(authors.String)
	}
	if b.SummaryEmbedding, err = store.DecodeVector(embedding); err != nil {
		return nil, fmt.Errorf("book %s summary embedding: %w", b.ISBN, err)
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	b.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &b, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(parser.PubDateLayout)
}

func nullableInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
