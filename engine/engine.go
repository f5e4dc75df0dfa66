// Package engine orchestrates parallel translation of a project's entries:
// it partitions the eligible entry list into contiguous chunks, runs one
// worker goroutine per chunk, and aggregates their events into global
// progress through a single dispatcher goroutine.
package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MoriTranslates/rpgmaker-translator/client"
	"github.com/MoriTranslates/rpgmaker-translator/project"
)

// Mode selects which entries a run processes and which client call is made.
type Mode string

const (
	// ModeTranslate processes untranslated entries via Translate.
	ModeTranslate Mode = "translate"
	// ModePolish runs a grammar pass over translated/reviewed entries.
	ModePolish Mode = "polish"
)

// DefaultWorkers is the default worker pool size. Two workers keep a
// local model busy without thrashing its KV cache.
const DefaultWorkers = 2

// DefaultCheckpointInterval is how many successful translations trigger
// one checkpoint callback.
const DefaultCheckpointInterval = 25

// Engine runs translation workers over disjoint chunks of a project's
// entries. A single Engine is reused across runs; concurrent runs are
// rejected.
type Engine struct {
	client          client.Client
	hooks           Hooks
	log             *zap.Logger
	workers         int
	checkpointEvery int

	running   atomic.Bool
	cancelled atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets the worker pool size (minimum 1).
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.workers = n
		}
	}
}

// WithCheckpointInterval sets the checkpoint cadence in successful
// translations.
func WithCheckpointInterval(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.checkpointEvery = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// New creates an Engine. Hooks may have nil callbacks.
func New(c client.Client, hooks Hooks, opts ...Option) *Engine {
	e := &Engine{
		client:          c,
		hooks:           hooks,
		log:             zap.NewNop(),
		workers:         DefaultWorkers,
		checkpointEvery: DefaultCheckpointInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsRunning reports whether a run is in progress.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// Cancel asks all active workers to stop after their current item. It
// does not block; OnFinished still fires once every worker has exited.
func (e *Engine) Cancel() {
	e.cancelled.Store(true)
}

// Run starts a translation or polish run over the given entries and
// returns immediately; completion is signaled through hooks.OnFinished.
//
// A Run while another is active is rejected as a no-op. A run whose
// eligibility filter leaves nothing to do fires OnFinished right away.
func (e *Engine) Run(ctx context.Context, entries []*project.Entry, mode Mode) {
	if !e.running.CompareAndSwap(false, true) {
		e.log.Debug("run rejected: already running")
		return
	}
	e.cancelled.Store(false)

	eligible := filterEligible(entries, mode)
	if len(eligible) == 0 {
		e.running.Store(false)
		e.emitFinished()
		return
	}

	runID := uuid.NewString()
	n := e.workers
	if n > len(eligible) {
		n = len(eligible)
	}
	chunks := SplitChunks(eligible, n)

	e.log.Info("starting run",
		zap.String("run_id", runID),
		zap.String("mode", string(mode)),
		zap.Int("eligible", len(eligible)),
		zap.Int("workers", len(chunks)))

	// Buffered so workers rarely block on the dispatcher; correctness
	// does not depend on the size because the dispatcher drains until
	// the last terminal event.
	events := make(chan workerEvent, 4*len(chunks))

	var wg sync.WaitGroup
	for _, chunk := range chunks {
		w := &worker{
			client:    e.client,
			chunk:     chunk,
			mode:      mode,
			cancelled: &e.cancelled,
			events:    events,
			log:       e.log,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.run(ctx)
		}()
	}

	go e.dispatch(events, &wg, len(chunks), len(eligible), runID)
}

// dispatch is the single consumer of worker events. All aggregation state
// and all entry mutations from results live here, so no locking is needed
// anywhere in the event path.
func (e *Engine) dispatch(events <-chan workerEvent, wg *sync.WaitGroup, workers, total int, runID string) {
	var progress, completed, doneWorkers int

	for ev := range events {
		switch ev.kind {
		case evItemProcessed:
			if ev.markSkipped {
				ev.entry.Status = project.StatusSkipped
			}
			progress++
			if e.hooks.OnProgress != nil {
				e.hooks.OnProgress(progress, total, ev.text)
			}

		case evEntryDone:
			ev.entry.SetTranslation(ev.text)
			if e.hooks.OnEntryDone != nil {
				e.hooks.OnEntryDone(ev.entry.ID, ev.text)
			}
			completed++
			if completed%e.checkpointEvery == 0 && e.hooks.OnCheckpoint != nil {
				e.hooks.OnCheckpoint()
			}

		case evItemError:
			if e.hooks.OnError != nil {
				e.hooks.OnError(ev.entry.ID, ev.text)
			}

		case evWorkerDone:
			doneWorkers++
			if doneWorkers == workers {
				// Join every worker goroutine before declaring the run
				// finished: no worker may still be running when the
				// caller observes completion.
				wg.Wait()
				e.log.Info("run finished",
					zap.String("run_id", runID),
					zap.Int("processed", progress),
					zap.Int("completed", completed))
				e.running.Store(false)
				e.emitFinished()
				return
			}
		}
	}
}

func (e *Engine) emitFinished() {
	if e.hooks.OnFinished != nil {
		e.hooks.OnFinished()
	}
}

// filterEligible applies the mode's eligibility predicate, preserving
// entry order.
func filterEligible(entries []*project.Entry, mode Mode) []*project.Entry {
	var out []*project.Entry
	for _, e := range entries {
		switch mode {
		case ModePolish:
			if e.HasTranslation() {
				out = append(out, e)
			}
		default:
			if e.Status == project.StatusUntranslated {
				out = append(out, e)
			}
		}
	}
	return out
}
