package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/granobox/spool/internal/config"
	"github.com/granobox/spool/internal/db"
	"github.com/granobox/spool/internal/logging"
	"github.com/granobox/spool/internal/metrics"
	"github.com/granobox/spool/internal/notify"
)

// TickResult summarises one pass over a pending batch.
type TickResult struct {
	Fetched int
	Printed int
	Retried int
	Failed  int
	Errored int
	Skipped bool
}

func (r TickResult) changed() bool {
	return r.Printed+r.Retried+r.Failed+r.Errored > 0
}

type outcome string

const (
	outcomePrinted outcome = "printed"
	outcomeRetry   outcome = "retry"
	outcomeFailed  outcome = "failed"
	outcomeError   outcome = "error"
	outcomeNone    outcome = ""
)

// Processor drains the pending queue on a fixed interval, one job at a time.
type Processor struct {
	store    JobStore
	printer  Printer
	notifier Notifier
	config   *config.QueueConfig
	logger   *zap.Logger

	tickMu  sync.Mutex
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewProcessor(store JobStore, printer Printer, notifier Notifier, cfg *config.QueueConfig, logger *zap.Logger) *Processor {
	if cfg == nil {
		cfg = &config.Default().Queue
	}

	return &Processor{
		store:    store,
		printer:  printer,
		notifier: notifier,
		config:   cfg,
		logger:   logging.OrNop(logger).With(zap.String("component", "queue")),
	}
}

// Start runs one tick immediately and then one per TickInterval until ctx is
// cancelled or Stop is called.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop(ctx, p.stopCh)

	p.logger.Info("queue processor started",
		zap.Duration("interval", p.config.TickInterval),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("max_retries", p.config.MaxRetries))
	return nil
}

// Stop halts the ticker and waits for an in-flight tick to finish.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("queue processor stopped")
}

func (p *Processor) loop(ctx context.Context, stopCh chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.TickInterval)
	defer ticker.Stop()

	p.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			p.runTick(ctx)
		}
	}
}

func (p *Processor) runTick(ctx context.Context) {
	if _, err := p.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Error("queue tick failed", zap.Error(err))
	}
}

// Tick processes at most BatchSize pending jobs, oldest first. A tick that
// starts while another is still running returns immediately with Skipped set.
func (p *Processor) Tick(ctx context.Context) (TickResult, error) {
	var result TickResult
	if !p.tickMu.TryLock() {
		result.Skipped = true
		p.logger.Debug("previous tick still running, skipping")
		return result, nil
	}
	defer p.tickMu.Unlock()

	start := time.Now()
	defer func() {
		metrics.TickDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	jobs, err := p.store.FetchPendingBatch(ctx, p.config.BatchSize)
	if err != nil {
		return result, fmt.Errorf("failed to fetch pending jobs: %w", err)
	}
	result.Fetched = len(jobs)

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			break
		}
		switch p.processJob(ctx, job) {
		case outcomePrinted:
			result.Printed++
		case outcomeRetry:
			result.Retried++
		case outcomeFailed:
			result.Failed++
		case outcomeError:
			result.Errored++
		}
	}

	if result.changed() {
		p.publishDepth(ctx)
		p.broadcast(notify.QueueUpdated())
	}

	if result.Fetched > 0 {
		p.logger.Debug("queue tick complete",
			zap.Int("fetched", result.Fetched),
			zap.Int("printed", result.Printed),
			zap.Int("retried", result.Retried),
			zap.Int("failed", result.Failed),
			zap.Int("errored", result.Errored))
	}

	return result, nil
}

func (p *Processor) processJob(ctx context.Context, job *db.PrintJob) outcome {
	log := p.logger.With(zap.Int64("job_id", job.ID), zap.Int("retry_count", job.RetryCount))

	commands, cfg, err := DecodeJob(job)
	if err != nil {
		return p.markError(ctx, job, err, log)
	}

	printCtx := ctx
	if p.config.PrintTimeout > 0 {
		var cancel context.CancelFunc
		printCtx, cancel = context.WithTimeout(ctx, p.config.PrintTimeout)
		defer cancel()
	}

	ok, err := p.printer.Print(printCtx, commands, cfg)
	if err != nil {
		return p.markError(ctx, job, err, log)
	}

	if ok {
		if err := p.store.MarkPrinted(ctx, job.ID); err != nil {
			log.Error("failed to mark job printed", zap.Error(err))
			return outcomeNone
		}
		metrics.PrintAttemptsTotal.WithLabelValues(string(outcomePrinted)).Inc()
		log.Info("job printed")
		p.broadcast(notify.PrintSuccess(job.ID))
		return outcomePrinted
	}

	next := job.RetryCount + 1
	result := outcomeRetry
	if next >= p.config.MaxRetries {
		reason := fmt.Sprintf("print failed after %d attempts", next)
		if err := p.store.MarkFailed(ctx, job.ID, next, reason); err != nil {
			log.Error("failed to mark job failed", zap.Error(err))
			return outcomeNone
		}
		result = outcomeFailed
		log.Warn("job failed, retries exhausted", zap.Int("attempts", next))
	} else {
		if err := p.store.MarkRetry(ctx, job.ID, next); err != nil {
			log.Error("failed to record retry", zap.Error(err))
			return outcomeNone
		}
		log.Warn("print attempt failed, will retry", zap.Int("attempts", next))
	}

	metrics.PrintAttemptsTotal.WithLabelValues(string(result)).Inc()
	p.broadcast(notify.PrintError(job.ID))
	return result
}

func (p *Processor) markError(ctx context.Context, job *db.PrintJob, cause error, log *zap.Logger) outcome {
	log.Error("job cannot be printed", zap.Error(cause))
	if err := p.store.MarkError(ctx, job.ID, cause.Error()); err != nil {
		log.Error("failed to mark job error", zap.Error(err))
		return outcomeNone
	}
	metrics.PrintAttemptsTotal.WithLabelValues(string(outcomeError)).Inc()
	p.broadcast(notify.PrintError(job.ID))
	return outcomeError
}

func (p *Processor) publishDepth(ctx context.Context) {
	stats, err := p.store.QueueStats(ctx)
	if err != nil {
		p.logger.Warn("failed to read queue stats", zap.Error(err))
		return
	}
	metrics.SetQueueDepth(stats.Pending, stats.Printed, stats.Failed, stats.Error)
}

func (p *Processor) broadcast(evt notify.Event) {
	if p.notifier != nil {
		p.notifier.Broadcast(evt)
	}
}
