// Package vectorstore keeps embedded TOC chunks in BadgerDB. Each ETL run
// replaces the whole chunk set.
package vectorstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

var chunkPrefix = []byte("chunk/")

// Chunk is one embedded chapter with the text that produced its vector.
type Chunk struct {
	ID            uint64    `json:"id"`
	ISBN          string    `json:"isbn"`
	Level         int       `json:"level"`
	Number        string    `json:"number"`
	ChapterTitle  string    `json:"chapter_title"`
	CompositeText string    `json:"composite_text"`
	Embedding     []float32 `json:"embedding"`
}

// Store wraps a BadgerDB instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// Open opens the store at dir, creating it if needed. inMemory ignores dir.
func Open(dir string, inMemory bool, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create vector store directory: %w", err)
		}
		info, err := os.Stat(dir)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", dir)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLoggerAdapter{logger: logger.With(slog.String("component", "badger"))}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Truncate removes every chunk. The database holds nothing else.
func (s *Store) Truncate() error {
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("truncate chunks: %w", err)
	}
	return nil
}

// Load writes chunks, assigning ids 1..n in slice order when a chunk has none.
func (s *Store) Load(ctx context.Context, chunks []Chunk) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for i := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		ch := chunks[i]
		if ch.ID == 0 {
			ch.ID = uint64(i + 1)
		}
		val, err := json.Marshal(ch)
		if err != nil {
			return fmt.Errorf("encode chunk %d: %w", ch.ID, err)
		}
		if err := wb.Set(chunkKey(ch.ID), val); err != nil {
			return fmt.Errorf("write chunk %d: %w", ch.ID, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush chunks: %w", err)
	}
	return nil
}

// Replace truncates the store and loads chunks, so repeated runs never
// accumulate stale rows.
func (s *Store) Replace(ctx context.Context, chunks []Chunk) error {
	if err := s.Truncate(); err != nil {
		return err
	}
	if err := s.Load(ctx, chunks); err != nil {
		return err
	}
	s.logger.Info("vector store loaded", slog.Int("chunks", len(chunks)))
	return nil
}

// All returns every chunk in id order.
func (s *Store) All(ctx context.Context) ([]Chunk, error) {
	var chunks []Chunk
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = chunkPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var ch Chunk
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ch)
			})
			if err != nil {
				return fmt.Errorf("decode chunk %x: %w", it.Item().Key(), err)
			}
			chunks = append(chunks, ch)
		}
		return nil
	})
	return chunks, err
}

// Count returns the number of stored chunks.
func (s *Store) Count() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = chunkPrefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func chunkKey(id uint64) []byte {
	key := make([]byte, len(chunkPrefix)+8)
	copy(key, chunkPrefix)
	binary.BigEndian.PutUint64(key[len(chunkPrefix):], id)
	return key
}
