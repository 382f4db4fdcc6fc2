// Package coordinatorsvc implements the Coordinator (§4.4): claims pending
// tips, ensures the Processing Worker is awake and ready, fans work out in
// bounded-concurrency batches, persists results, and invokes the Promotion
// Engine for every location touched by the run.
package coordinatorsvc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/likealocal/tips-pipeline/internal/gateway"
	"github.com/likealocal/tips-pipeline/internal/model"
	"github.com/likealocal/tips-pipeline/internal/promotion"
	"github.com/likealocal/tips-pipeline/internal/wake"
	"github.com/likealocal/tips-pipeline/internal/workerapi"
)

// Params configures one Run (§4.4).
type Params struct {
	WakeEnabled         bool
	PromotionEnabled    bool
	BatchSize           int
	Fanout              int
	PerRunLimit         int
	MaxAttemptsPerBatch int
	ShutdownGrace       time.Duration
	Promotion           promotion.Config
}

// RunResult summarizes one completed run (§4.4.1).
type RunResult struct {
	RunID             string
	Claimed           int
	Processed         int
	Failed            int
	LocationsPromoted int
}

// batchDispatcher is the subset of *WorkerClient the Coordinator depends
// on, narrowed to an interface so tests can substitute a fake worker
// without a real HTTP server.
type batchDispatcher interface {
	ProcessBatch(ctx context.Context, batchIndex int, items []workerapi.BatchItem) ([]workerapi.BatchResult, error)
}

// Coordinator drives one processing run end-to-end.
type Coordinator struct {
	gw     gateway.Gateway
	worker batchDispatcher
	waker  *wake.Driver
	wakeCf wake.Config
	log    zerolog.Logger
}

// New builds a Coordinator. waker may be nil when wake is permanently
// disabled for this deployment (e.g. the worker never sleeps).
func New(gw gateway.Gateway, worker batchDispatcher, waker *wake.Driver, wakeCf wake.Config, log zerolog.Logger) *Coordinator {
	return &Coordinator{gw: gw, worker: worker, waker: waker, wakeCf: wakeCf, log: log}
}

// Run executes §4.4 steps 1-6 once.
func (c *Coordinator) Run(ctx context.Context, p Params) (*RunResult, error) {
	runID := uuid.NewString()
	log := c.log.With().Str("run_id", runID).Logger()
	result := &RunResult{RunID: runID}

	tips, err := c.gw.ClaimPending(ctx, p.PerRunLimit)
	if err != nil {
		return result, err
	}
	result.Claimed = len(tips)
	if len(tips) == 0 {
		log.Info().Msg("coordinator: nothing pending, run is a no-op")
		return result, nil
	}
	log.Info().Int("claimed", len(tips)).Msg("coordinator: claimed pending tips")

	if err := c.ensureReady(ctx, p.WakeEnabled, log); err != nil {
		c.compensate(context.Background(), tips, log, "worker unavailable")
		return result, &runAbortedError{cause: err}
	}

	batches := partition(tips, p.BatchSize)
	outcome := c.dispatchAll(ctx, batches, p, log)
	result.Processed = outcome.processed
	result.Failed = outcome.failed

	if len(outcome.incomplete) > 0 {
		c.compensate(context.Background(), outcome.incomplete, log, "run ended before batch completed")
	}

	if p.PromotionEnabled {
		locations := distinctLocations(tips)
		for _, locID := range locations {
			if err := c.promoteLocation(ctx, locID, p.Promotion); err != nil {
				log.Error().Err(err).Int64("location_id", locID).Msg("coordinator: promotion failed")
				continue
			}
			result.LocationsPromoted++
		}
	}

	log.Info().
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Int("locations_promoted", result.LocationsPromoted).
		Msg("coordinator: run complete")
	return result, nil
}

// ensureReady runs the Wake Protocol (§4.2) when enabled, or a single probe
// otherwise.
func (c *Coordinator) ensureReady(ctx context.Context, wakeEnabled bool, log zerolog.Logger) error {
	if c.waker == nil {
		return nil
	}
	if err := c.waker.Run(ctx, c.wakeCf, wakeEnabled); err != nil {
		var unavailable *wake.ErrWorkerUnavailable
		if errors.As(err, &unavailable) {
			return fmt.Errorf("%w: %s", ErrWorkerUnavailable, unavailable.Reason)
		}
		return err
	}
	return nil
}

func partition(tips []model.Tip, batchSize int) [][]model.Tip {
	if batchSize <= 0 {
		batchSize = len(tips)
	}
	var batches [][]model.Tip
	for i := 0; i < len(tips); i += batchSize {
		end := i + batchSize
		if end > len(tips) {
			end = len(tips)
		}
		batches = append(batches, tips[i:end])
	}
	return batches
}

// stringOrEmpty reads a nullable DB-backed field (a tip's detected language
// is unset until the first processing attempt).
func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func distinctLocations(tips []model.Tip) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	for _, t := range tips {
		if !seen[t.LocationID] {
			seen[t.LocationID] = true
			out = append(out, t.LocationID)
		}
	}
	return out
}

type dispatchOutcome struct {
	processed  int
	failed     int
	incomplete []model.Tip // claimed tips whose batch never resolved (cancellation) or whose result/failure write failed
}

// dispatchAll partitions work across a bounded pool of size p.Fanout,
// implemented as goroutines drained through a buffered channel semaphore —
// the same bounded-concurrency shape the teacher's outbox worker uses for
// its single poll-and-process loop, generalized here to N concurrent
// batches instead of one ticker tick at a time.
//
// ShutdownGrace only starts counting once ctx is actually cancelled: a
// normal, un-canceled run waits out every batch regardless of how long it
// takes. If the grace period still expires with goroutines in flight, their
// batches are recorded incomplete here so Run compensates them back to
// pending — §7 requires no tip be left in processing once the run exits.
func (c *Coordinator) dispatchAll(ctx context.Context, batches [][]model.Tip, p Params, log zerolog.Logger) dispatchOutcome {
	sem := make(chan struct{}, p.Fanout)
	var wg sync.WaitGroup
	var mu sync.Mutex
	outcome := dispatchOutcome{}
	batchDone := make([]bool, len(batches))

	for i, batch := range batches {
		select {
		case <-ctx.Done():
			mu.Lock()
			outcome.incomplete = append(outcome.incomplete, batch...)
			mu.Unlock()
			continue
		default:
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(idx int, batch []model.Tip) {
			defer wg.Done()
			defer func() { <-sem }()

			processed, failed, unresolved := c.dispatchBatch(ctx, idx, batch, p, log)
			mu.Lock()
			outcome.processed += processed
			outcome.failed += failed
			outcome.incomplete = append(outcome.incomplete, unresolved...)
			batchDone[idx] = true
			mu.Unlock()
		}(i, batch)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return outcome
	case <-ctx.Done():
	}

	select {
	case <-done:
	case <-time.After(p.ShutdownGrace):
		log.Warn().Dur("grace", p.ShutdownGrace).Msg("coordinator: shutdown grace period expired with batches still in flight")
	}

	mu.Lock()
	defer mu.Unlock()
	for idx, batch := range batches {
		if !batchDone[idx] {
			outcome.incomplete = append(outcome.incomplete, batch...)
		}
	}
	return outcome
}

// dispatchBatch sends one batch to the worker and records each item's
// result. On a transport failure that survives every retry, every tip in
// the batch is recorded failed with reason "batch_exhausted" (§7).
func (c *Coordinator) dispatchBatch(ctx context.Context, idx int, batch []model.Tip, p Params, log zerolog.Logger) (processed, failed int, unresolved []model.Tip) {
	items := make([]workerapi.BatchItem, len(batch))
	byID := make(map[int64]model.Tip, len(batch))
	for i, t := range batch {
		items[i] = workerapi.BatchItem{ID: t.ID, Text: t.RawText, SourceLanguage: stringOrEmpty(t.DetectedLanguage)}
		byID[t.ID] = t
	}

	results, err := c.worker.ProcessBatch(ctx, idx, items)
	if err != nil {
		log.Error().Err(err).Int("batch", idx).Msg("coordinator: batch exhausted retries")
		for _, t := range batch {
			if ferr := c.gw.RecordFailure(ctx, t.ID, "batch_exhausted"); ferr != nil {
				log.Error().Err(ferr).Int64("tip_id", t.ID).Msg("coordinator: record_failure also failed")
				unresolved = append(unresolved, t)
				continue
			}
			failed++
		}
		return processed, failed, unresolved
	}

	for _, r := range results {
		tip, ok := byID[r.ID]
		if !ok {
			log.Warn().Int64("tip_id", r.ID).Msg("coordinator: worker returned unknown tip id, ignoring")
			continue
		}
		if r.Error != "" {
			if err := c.gw.RecordFailure(ctx, tip.ID, r.Error); err != nil {
				log.Error().Err(err).Int64("tip_id", tip.ID).Msg("coordinator: record_failure error")
				unresolved = append(unresolved, tip)
				continue
			}
			failed++
			continue
		}
		if err := c.gw.RecordResult(ctx, tip.ID, r.DetectedLanguage, r.TranslatedText, r.Vector); err != nil {
			log.Error().Err(err).Int64("tip_id", tip.ID).Msg("coordinator: record_result error")
			unresolved = append(unresolved, tip)
			continue
		}
		processed++
	}
	return processed, failed, unresolved
}

// compensate reverts tips to pending (the §4.4/§7 compensating transition).
func (c *Coordinator) compensate(ctx context.Context, tips []model.Tip, log zerolog.Logger, reason string) {
	if len(tips) == 0 {
		return
	}
	ids := make([]int64, len(tips))
	for i, t := range tips {
		ids[i] = t.ID
	}
	if err := c.gw.CompensateToPending(ctx, ids); err != nil {
		log.Error().Err(err).Msg("coordinator: compensation failed")
		return
	}
	log.Info().Int("count", len(ids)).Str("reason", reason).Msg("coordinator: compensated tips to pending")
}

// promoteLocation runs the Promotion Engine for one location and replaces
// its stored promotion set. An empty processed set is a silent no-op
// (§7 PromotionInputEmpty): existing promotions are retained.
func (c *Coordinator) promoteLocation(ctx context.Context, locationID int64, cfg promotion.Config) error {
	processed, err := c.gw.ListProcessed(ctx, locationID)
	if err != nil {
		return err
	}
	if len(processed) == 0 {
		return nil
	}
	promotions := promotion.Cluster(processed, cfg)
	for i := range promotions {
		promotions[i].LocationID = locationID
	}
	return c.gw.ReplacePromotions(ctx, locationID, promotions)
}

// runAbortedError wraps ErrPipelineAborted with the underlying cause
// (typically ErrWorkerUnavailable) so callers can unwrap to either.
type runAbortedError struct {
	cause error
}

func (e *runAbortedError) Error() string {
	return ErrPipelineAborted.Error() + ": " + e.cause.Error()
}

func (e *runAbortedError) Unwrap() []error {
	return []error{ErrPipelineAborted, e.cause}
}
