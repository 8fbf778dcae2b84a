// Package discovery collects candidate ISBNs for a catalog category by
// running list and keyword-search strategies against the catalog.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aluiziolira/bookroad/catalog"
	"github.com/aluiziolira/bookroad/config"
)

// Catalog is the subset of the catalog client discovery needs.
type Catalog interface {
	ItemList(ctx context.Context, list catalog.ListType, categoryID, page, pageSize int) (*catalog.ListResponse, error)
	ItemSearch(ctx context.Context, query string, categoryID, page, pageSize int) (*catalog.ListResponse, error)
}

// Strategy is one paged query against the catalog.
type Strategy struct {
	Name  string
	fetch func(ctx context.Context, categoryID, page, pageSize int) (*catalog.ListResponse, error)
}

// Engine runs every strategy for a category and unions the results.
type Engine struct {
	catalog    Catalog
	strategies []Strategy

	pageSize   int
	maxResults int
	delay      time.Duration
	errorDelay time.Duration
}

// New builds an engine with the bestseller and new-release lists followed by
// one sales-ranked search per configured keyword.
func New(c Catalog, cfg *config.Config) *Engine {
	e := &Engine{
		catalog:    c,
		pageSize:   cfg.PageSize,
		maxResults: cfg.MaxResultsPerStrategy,
		delay:      cfg.StrategyDelay,
		errorDelay: cfg.StrategyErrorDelay,
	}
	e.strategies = append(e.strategies, e.listStrategy(catalog.ListBestseller), e.listStrategy(catalog.ListNewAll))
	for _, kw := range cfg.Keywords {
		e.strategies = append(e.strategies, e.searchStrategy(kw))
	}
	return e
}

// Strategies returns the strategy names in execution order.
func (e *Engine) Strategies() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name
	}
	return names
}

// Discover returns the sorted set of well-formed ISBN-13s found for
// categoryID. A failing strategy is logged and skipped; only an invalid
// category or a cancelled context is reported as an error.
func (e *Engine) Discover(ctx context.Context, categoryID int) ([]string, error) {
	if categoryID <= 0 {
		return nil, fmt.Errorf("invalid category id %d", categoryID)
	}

	found := make(map[string]struct{})
	failed := 0
	for _, strategy := range e.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		before := len(found)
		err := e.run(ctx, strategy, categoryID, found)
		pause := e.delay
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			pause = e.errorDelay
			slog.Warn("discovery strategy failed",
				slog.Int("category", categoryID),
				slog.String("strategy", strategy.Name),
				slog.Any("error", err),
			)
		} else {
			slog.Debug("discovery strategy done",
				slog.Int("category", categoryID),
				slog.String("strategy", strategy.Name),
				slog.Int("new", len(found)-before),
			)
		}

		if err := sleep(ctx, pause); err != nil {
			return nil, err
		}
	}

	isbns := make([]string, 0, len(found))
	for isbn := range found {
		isbns = append(isbns, isbn)
	}
	sort.Strings(isbns)

	slog.Info("category discovered",
		slog.Int("category", categoryID),
		slog.Int("isbns", len(isbns)),
		slog.Int("failed_strategies", failed),
	)
	return isbns, nil
}

// run pages through one strategy, adding ISBNs to found as pages arrive so a
// later page failure keeps earlier results.
func (e *Engine) run(ctx context.Context, s Strategy, categoryID int, found map[string]struct{}) error {
	for page := 1; ; page++ {
		resp, err := s.fetch(ctx, categoryID, page, e.pageSize)
		if err != nil {
			return fmt.Errorf("%s page %d: %w", s.Name, page, err)
		}
		if len(resp.Items) == 0 {
			return nil
		}
		for _, item := range resp.Items {
			if isbn, ok := item.ValidISBN(); ok {
				found[isbn] = struct{}{}
			}
		}

		seen := page * e.pageSize
		if resp.TotalResults <= seen || seen >= e.maxResults {
			return nil
		}
	}
}

func (e *Engine) listStrategy(list catalog.ListType) Strategy {
	return Strategy{
		Name: "list:" + string(list),
		fetch: func(ctx context.Context, categoryID, page, pageSize int) (*catalog.ListResponse, error) {
			return e.catalog.ItemList(ctx, list, categoryID, page, pageSize)
		},
	}
}

func (e *Engine) searchStrategy(keyword string) Strategy {
	return Strategy{
		Name: "search:" + keyword,
		fetch: func(ctx context.Context, categoryID, page, pageSize int) (*catalog.ListResponse, error) {
			return e.catalog.ItemSearch(ctx, keyword, categoryID, page, pageSize)
		},
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
