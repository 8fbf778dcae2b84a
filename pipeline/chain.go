package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/aluiziolira/bookroad/metrics"
	"github.com/aluiziolira/bookroad/models"
)

// Runner executes the whole per-ISBN chain.
type Runner interface {
	Run(ctx context.Context, runID, isbn string) *models.ChainOutcome
}

// Chain runs fetch, parse and embed in order. Only the StageResult of one
// stage is handed to the next.
type Chain struct {
	stages  *Stages
	metrics *metrics.Metrics
}

// NewChain creates a chain over stages.
func NewChain(stages *Stages, m *metrics.Metrics) *Chain {
	return &Chain{stages: stages, metrics: m}
}

// Run executes the chain for isbn and reports every stage's result.
func (c *Chain) Run(ctx context.Context, runID, isbn string) *models.ChainOutcome {
	start := time.Now()

	fetched := c.stages.Fetch(ctx, isbn)
	c.record("fetch", fetched)
	parsed := c.stages.Parse(ctx, fetched)
	c.record("parse", parsed)
	embedded := c.stages.Embed(ctx, parsed)
	c.record("embed", embedded)

	out := models.NewChainOutcome(runID, isbn, fetched, parsed, embedded, time.Since(start))
	slog.Info("chain finished",
		slog.String("run_id", runID),
		slog.String("isbn", isbn),
		slog.String("fetch", out.FetchState),
		slog.String("parse", out.ParseState),
		slog.String("embed", out.EmbedState),
		slog.Duration("elapsed", out.Duration),
	)
	return out
}

func (c *Chain) record(stage string, r models.StageResult) {
	c.metrics.IncStage(stage, r.Status.String())
}

var _ Runner = (*Chain)(nil)
