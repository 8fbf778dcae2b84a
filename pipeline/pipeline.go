// Package pipeline runs the per-ISBN fetch, parse and embed chain on a pool
// of workers and coordinates discovery runs that feed it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/bookroad/config"
	"github.com/aluiziolira/bookroad/models"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when workers do not drain in time.
	ErrPipelineCloseTimeout = errors.New("pipeline: close timed out")
)

// drainTimeout bounds how long Close waits for queued chains.
var drainTimeout = 30 * time.Minute

// Job asks for one chain run of ISBN within discovery run RunID.
type Job struct {
	RunID string
	ISBN  string
}

// Pipeline fans jobs out to workers, each running one whole chain per ISBN,
// and writes the outcomes in batches.
type Pipeline struct {
	ctx    context.Context
	cancel context.CancelFunc

	runner    Runner
	writer    ReportWriter
	jobCh     chan Job
	batchSize int

	wg sync.WaitGroup

	seen *lru.Cache[string, struct{}]

	counters counters

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline. Workers inherit ctx; writer may be nil when
// no report is wanted.
func NewPipeline(ctx context.Context, runner Runner, writer ReportWriter, cfg *config.Config) *Pipeline {
	if ctx == nil {
		ctx = context.Background()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	buffer := cfg.PipelineBufferSize
	if buffer <= 0 {
		buffer = 512
	}
	size := cfg.DedupeMaxSize
	if size <= 0 {
		size = 100000
	}
	seen, err := lru.New[string, struct{}](size)
	if err != nil {
		panic(fmt.Sprintf("pipeline: create seen cache: %v", err))
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Pipeline{
		ctx:       ctx,
		cancel:    cancel,
		runner:    runner,
		writer:    writer,
		jobCh:     make(chan Job, buffer),
		batchSize: batchSize,
		seen:      seen,
		counters:  newCounters(),
		shutdown:  make(chan struct{}),
	}
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues jobs. It blocks while the buffer is full.
func (p *Pipeline) Process(jobs ...Job) error {
	if len(jobs) == 0 {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, job := range jobs {
		if job.ISBN == "" {
			continue
		}
		if err := p.enqueue(job); err != nil {
			return err
		}
	}
	return nil
}

// Close stops intake and waits up to drainTimeout for queued chains.
func (p *Pipeline) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	return p.Shutdown(ctx)
}

// Shutdown stops intake and waits for queued chains until ctx is done. On
// timeout running chains are cancelled.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.jobCh)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return p.Err()
	case <-ctx.Done():
		p.cancel()
		return fmt.Errorf("%w: %v", ErrPipelineCloseTimeout, ctx.Err())
	}
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.counters.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				snapshot := p.GetMetrics()
				outcomes := snapshot["outcomes"].(map[string]int)
				slog.Info("pipeline progress",
					slog.Int64("processed", snapshot["processed_chains"].(int64)),
					slog.Int64("duplicates", snapshot["duplicates"].(int64)),
					slog.Int("succeeded", outcomes[outcomeSucceeded]),
					slog.Int("skipped", outcomes[outcomeSkipped]),
					slog.Int("failed", outcomes[outcomeFailed]),
					slog.Int("queued", len(p.jobCh)),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]*models.ChainOutcome, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 || p.writer == nil {
			batch = batch[:0]
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for job := range p.jobCh {
		if p.duplicate(job) {
			continue
		}
		if p.ctx.Err() != nil {
			continue
		}

		outcome := p.runner.Run(p.ctx, job.RunID, job.ISBN)
		p.counters.record(outcome)

		batch = append(batch, outcome)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write report batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write report batch: %w", err))
	}
}

// duplicate reports whether job already ran in the same discovery run.
func (p *Pipeline) duplicate(job Job) bool {
	found, _ := p.seen.ContainsOrAdd(job.RunID+"/"+job.ISBN, struct{}{})
	if found {
		p.counters.addDuplicate()
		return true
	}
	return false
}

func (p *Pipeline) enqueue(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.jobCh <- job:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.jobCh)
	})
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

const (
	outcomeSucceeded = "succeeded"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
)

type counters struct {
	mu         sync.Mutex
	processed  int64
	duplicates int64
	outcomes   map[string]int
}

func newCounters() counters {
	return counters{
		outcomes: make(map[string]int),
	}
}

func (c *counters) record(o *models.ChainOutcome) {
	kind := outcomeSkipped
	switch {
	case o.Succeeded():
		kind = outcomeSucceeded
	case o.Fetch.Status == models.StatusFailed,
		o.Parse.Status == models.StatusFailed,
		o.Embed.Status == models.StatusFailed:
		kind = outcomeFailed
	}

	c.mu.Lock()
	c.processed++
	c.outcomes[kind]++
	c.mu.Unlock()
}

func (c *counters) addDuplicate() {
	c.mu.Lock()
	c.duplicates++
	c.mu.Unlock()
}

func (c *counters) snapshot() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	outcomes := make(map[string]int, len(c.outcomes))
	for k, v := range c.outcomes {
		outcomes[k] = v
	}

	return map[string]interface{}{
		"processed_chains": c.processed,
		"duplicates":       c.duplicates,
		"outcomes":         outcomes,
	}
}
