package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/aluiziolira/bookroad/parser"
	"github.com/aluiziolira/bookroad/store"
)

// Dedup removes candidates that are malformed or already persisted.
type Dedup struct {
	store store.Store
}

// NewDedup creates a filter over st.
func NewDedup(st store.Store) *Dedup {
	return &Dedup{store: st}
}

// Filter flattens the per-category candidate lists and returns the sorted
// ISBNs not yet in the store. All-duplicate input yields an empty slice.
func (d *Dedup) Filter(ctx context.Context, candidates [][]string) ([]string, error) {
	unique := make(map[string]struct{})
	invalid := 0
	for _, group := range candidates {
		for _, isbn := range group {
			isbn = parser.NormalizeISBN(isbn)
			if !parser.IsISBN13(isbn) {
				invalid++
				continue
			}
			unique[isbn] = struct{}{}
		}
	}
	if len(unique) == 0 {
		return []string{}, nil
	}

	flat := make([]string, 0, len(unique))
	for isbn := range unique {
		flat = append(flat, isbn)
	}
	sort.Strings(flat)

	existing, err := d.store.ExistingISBNs(ctx, flat)
	if err != nil {
		return nil, fmt.Errorf("dedup: query existing isbns: %w", err)
	}

	fresh := make([]string, 0, len(flat)-len(existing))
	for _, isbn := range flat {
		if _, ok := existing[isbn]; !ok {
			fresh = append(fresh, isbn)
		}
	}
	slog.Info("dedup complete",
		slog.Int("candidates", len(flat)),
		slog.Int("invalid", invalid),
		slog.Int("existing", len(existing)),
		slog.Int("new", len(fresh)),
	)
	return fresh, nil
}
