package pipeline

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/bookroad/config"
	"github.com/aluiziolira/bookroad/metrics"
	"github.com/aluiziolira/bookroad/models"
)

// ErrNoCategories is returned by Run for an empty category list.
var ErrNoCategories = config.ErrNoCategories

// Discoverer finds candidate ISBNs for one catalog category.
type Discoverer interface {
	Discover(ctx context.Context, categoryID int) ([]string, error)
}

// Dispatcher accepts jobs for the per-ISBN chain.
type Dispatcher interface {
	Process(jobs ...Job) error
}

// Coordinator runs discovery over a set of categories, filters the union
// against the store and hands new ISBNs to the dispatcher.
type Coordinator struct {
	discovery   Discoverer
	dedup       *Dedup
	dispatch    Dispatcher
	limiter     *RateLimiter
	concurrency int
	metrics     *metrics.Metrics

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// NewCoordinator wires a coordinator. Category tasks share one limiter at
// cfg.DiscoveryRatePerMinute.
func NewCoordinator(d Discoverer, dedup *Dedup, dispatch Dispatcher, cfg *config.Config, m *metrics.Metrics) *Coordinator {
	concurrency := cfg.CategoryConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Coordinator{
		discovery:   d,
		dedup:       dedup,
		dispatch:    dispatch,
		limiter:     NewRateLimiter(cfg.DiscoveryRatePerMinute, 1),
		concurrency: concurrency,
		metrics:     m,
		entropy:     ulid.Monotonic(rand.Reader, 0),
	}
}

// Run discovers every category in parallel and dispatches the ISBNs not yet
// stored. It returns once jobs are queued, without waiting for the chains.
func (c *Coordinator) Run(ctx context.Context, categories []int) (*models.RunResult, error) {
	categories, err := config.ValidateCategories(categories)
	if err != nil {
		return nil, err
	}

	result := &models.RunResult{
		RunID:      c.newRunID(),
		Categories: categories,
		StartTime:  time.Now(),
	}
	logger := slog.With(slog.String("run_id", result.RunID))
	logger.Info("discovery run started", slog.Any("categories", categories))

	found := make([][]string, len(categories))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, id := range categories {
		g.Go(func() error {
			if err := c.limiter.Wait(gctx); err != nil {
				return err
			}
			isbns, err := c.discovery.Discover(gctx, id)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.Warn("category discovery failed", slog.Int("category", id), slog.Any("error", err))
				return nil
			}
			found[i] = isbns
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("discover categories: %w", err)
	}

	union := make(map[string]struct{})
	for _, isbns := range found {
		for _, isbn := range isbns {
			union[isbn] = struct{}{}
		}
	}
	result.Discovered = len(union)
	c.metrics.AddDiscovered(len(union))

	fresh, err := c.dedup.Filter(ctx, found)
	if err != nil {
		return nil, err
	}
	result.New = len(fresh)

	if len(fresh) == 0 {
		result.NothingToDo = true
		result.EndTime = time.Now()
		logger.Info("nothing to do", slog.Int("discovered", result.Discovered))
		return result, nil
	}

	jobs := make([]Job, len(fresh))
	for i, isbn := range fresh {
		jobs[i] = Job{RunID: result.RunID, ISBN: isbn}
	}
	if err := c.dispatch.Process(jobs...); err != nil {
		result.EndTime = time.Now()
		return result, fmt.Errorf("dispatch: %w", err)
	}
	result.Dispatched = len(jobs)
	result.EndTime = time.Now()

	logger.Info("discovery run dispatched",
		slog.Int("discovered", result.Discovered),
		slog.Int("new", result.New),
		slog.Duration("elapsed", result.EndTime.Sub(result.StartTime)),
	)
	return result, nil
}

func (c *Coordinator) newRunID() string {
	c.entropyMu.Lock()
	defer c.entropyMu.Unlock()
	return ulid.MustNew(ulid.Now(), c.entropy).String()
}
