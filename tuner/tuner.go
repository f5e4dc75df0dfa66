// Package tuner finds the throughput-optimal batch size for a translation
// client with a three-round tournament:
//
//	Round 1 (Survey):  test [5, 10, 15, 20, 25, 30] — one batch each
//	Round 2 (Semis):   top 3 → 3 batches each, average entries/sec
//	Round 3 (Finals):  top 2 → 3 more batches each, combined avg → winner
//
// Calibration traffic is real work: every translated entry is applied to
// the project and emitted through hooks, never thrown away. Rounds 2 and 3
// average multiple runs to smooth out variance, which matters when
// throughput differences are small (1.1 vs 1.0 eps).
package tuner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MoriTranslates/rpgmaker-translator/client"
	"github.com/MoriTranslates/rpgmaker-translator/project"
)

// SurveySteps are the candidate batch sizes tested once each in round 1.
var SurveySteps = []int{5, 10, 15, 20, 25, 30}

const (
	// Reps is how many batches each finalist runs in rounds 2 and 3.
	Reps = 3
	// WarmupSize is how many entries prime the model's KV cache before
	// the first measurement.
	WarmupSize = 2
	// MinEntries is the minimum eligible entries to attempt calibration:
	// warmup + one full survey (2 + 5+10+15+20+25+30). The threshold is
	// inclusive — exactly MinEntries proceeds.
	MinEntries = 107
)

// Sample is one measured calibration batch. Never mutated after creation.
type Sample struct {
	// BatchSize is the number of entries requested in the batch.
	BatchSize int
	// Throughput is successfully translated entries per second; zero when
	// the batch failed or nothing succeeded.
	Throughput float64
	// Elapsed is the batch's wall-clock duration.
	Elapsed time.Duration
}

// Hooks receives calibration events. The tuner is strictly sequential, so
// all callbacks fire from its single goroutine, in order. Nil callbacks
// are skipped.
type Hooks struct {
	// OnStatus fires with a human-readable progress message per step.
	OnStatus func(message string)
	// OnItemProcessed fires once per translated entry with a preview.
	OnItemProcessed func(preview string)
	// OnEntryDone fires for each kept translation, after it has been
	// applied to the entry.
	OnEntryDone func(id, translation string)
	// OnStepDone fires after each measured batch.
	OnStepDone func(batchSize int, eps float64, elapsed time.Duration)
	// OnError fires for recovered failures (a failed batch, a panic).
	OnError func(message string)
}

// Tuner runs the batch-size tournament over a prefix of the project's
// untranslated entries. It is single-use: create a fresh Tuner per
// calibration run.
type Tuner struct {
	client  client.Client
	entries []*project.Entry
	hooks   Hooks
	log     *zap.Logger

	cancelled atomic.Bool
	consumed  int
}

// Option configures a Tuner.
type Option func(*Tuner)

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tuner) {
		if l != nil {
			t.log = l
		}
	}
}

// New creates a Tuner over the given entries. Entries are consumed
// sequentially from the front of the eligible subset; their translations
// are kept.
func New(c client.Client, entries []*project.Entry, hooks Hooks, opts ...Option) *Tuner {
	t := &Tuner{
		client:  c,
		entries: entries,
		hooks:   hooks,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Cancel asks the tuner to stop at the next batch boundary. The in-flight
// batch still completes; its results are kept.
func (t *Tuner) Cancel() {
	t.cancelled.Store(true)
}

// ConsumedCount is the number of entries translated during calibration.
func (t *Tuner) ConsumedCount() int {
	return t.consumed
}

// Run executes the tournament and returns the winning batch size. It
// always returns a usable size: any unexpected failure is recovered once
// at this boundary and resolved to the smallest survey size.
func (t *Tuner) Run(ctx context.Context) (winner int) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("tuner panic", zap.Any("panic", r))
			t.errorf("calibration failed: %v", r)
			winner = SurveySteps[0]
		}
	}()
	return t.run(ctx)
}

func (t *Tuner) run(ctx context.Context) int {
	runID := uuid.NewString()

	// Cloud APIs have no VRAM constraint — take the largest size as-is.
	if t.client.IsCloud() {
		t.log.Info("cloud client detected, skipping calibration",
			zap.String("run_id", runID), zap.Int("batch_size", 30))
		return SurveySteps[len(SurveySteps)-1]
	}

	available := eligibleEntries(t.entries)
	if len(available) < MinEntries {
		t.log.Info("too few untranslated entries to calibrate",
			zap.String("run_id", runID),
			zap.Int("have", len(available)), zap.Int("need", MinEntries))
		return 1
	}

	offset := 0

	// Warmup: prime the KV cache. Not recorded as a sample.
	if !t.stopped(ctx) && offset+WarmupSize <= len(available) {
		t.status("Warming up model...")
		warmup := available[offset : offset+WarmupSize]
		offset += WarmupSize
		if _, err := t.translateAndEmit(ctx, warmup); err != nil {
			t.log.Warn("warmup failed", zap.String("run_id", runID), zap.Error(err))
			t.errorf("warmup failed: %v", err)
			return SurveySteps[0]
		}
	}

	// Round 1: survey — every candidate size once.
	var r1 []Sample
	for _, size := range SurveySteps {
		if t.stopped(ctx) {
			break
		}
		if offset+size > len(available) {
			t.log.Info("survey out of entries", zap.Int("size", size))
			break
		}
		batch := available[offset : offset+size]
		offset += size

		t.status(fmt.Sprintf("R1 Survey: batch=%d (%d/%d) [%d translated]",
			size, len(r1)+1, len(SurveySteps), t.consumed))

		s := t.timedTranslate(ctx, batch, size)
		r1 = append(r1, s)
		t.stepDone(s)
		t.log.Info("survey step",
			zap.Int("batch", size),
			zap.Float64("eps", s.Throughput),
			zap.Duration("elapsed", s.Elapsed))
	}

	if len(r1) == 0 {
		return SurveySteps[0]
	}

	top3 := topSizes(r1, 3)
	t.status(fmt.Sprintf("R1 done — top 3: %v [%d translated]", top3, t.consumed))

	// Round 2: semifinals — top 3, Reps batches each.
	r2 := t.runRound(ctx, "R2 Semis", top3, available, &offset)
	r2avg := averageBySize(top3, r2)
	if len(r2avg) == 0 {
		optimal := top3[0]
		t.log.Info("semifinals had no data, using survey winner", zap.Int("batch_size", optimal))
		t.status(fmt.Sprintf("Optimal batch_size=%d (R1 only)", optimal))
		return optimal
	}

	top2 := rankSizes(top3, r2avg, 2)
	t.status(fmt.Sprintf("R2 done — top 2: %v [%d translated]", top2, t.consumed))

	// Round 3: finals — top 2, Reps more batches each.
	r3 := t.runRound(ctx, "R3 Finals", top2, available, &offset)

	// Winner: combine every finalist sample from rounds 2 and 3.
	combined := make(map[int]float64)
	for _, size := range top2 {
		all := append(append([]Sample{}, r2[size]...), r3[size]...)
		if len(all) > 0 {
			combined[size] = averageThroughput(all)
			t.log.Info("finals combined",
				zap.Int("batch", size),
				zap.Float64("avg_eps", combined[size]),
				zap.Int("samples", len(all)))
		}
	}

	var optimal int
	switch {
	case len(combined) > 0:
		optimal = bestSize(combined)
	case len(r2avg) > 0:
		optimal = bestSize(r2avg)
	default:
		optimal = top3[0]
	}

	t.log.Info("tuner winner",
		zap.String("run_id", runID),
		zap.Int("batch_size", optimal),
		zap.Int("consumed", t.consumed))
	t.status(fmt.Sprintf("Winner: batch_size=%d [%d translated]", optimal, t.consumed))
	return optimal
}

// runRound measures up to Reps batches per size, consuming entries from
// available starting at *offset. A size stops early when entries run out;
// failed batches are recorded as zero-throughput samples.
func (t *Tuner) runRound(ctx context.Context, label string, sizes []int, available []*project.Entry, offset *int) map[int][]Sample {
	samples := make(map[int][]Sample)

	for _, size := range sizes {
		if t.stopped(ctx) {
			break
		}
		for rep := 0; rep < Reps; rep++ {
			if t.stopped(ctx) {
				break
			}
			if *offset+size > len(available) {
				t.log.Info("round out of entries",
					zap.String("round", label), zap.Int("size", size), zap.Int("rep", rep))
				break
			}
			batch := available[*offset : *offset+size]
			*offset += size

			t.status(fmt.Sprintf("%s: batch=%d (rep %d/%d) [%d translated]",
				label, size, rep+1, Reps, t.consumed))

			s := t.timedTranslate(ctx, batch, size)
			samples[size] = append(samples[size], s)
			t.stepDone(s)
		}
	}
	return samples
}

// timedTranslate measures one batch. A client failure becomes a
// zero-throughput sample so a failing candidate loses the ranking instead
// of crashing the tournament.
func (t *Tuner) timedTranslate(ctx context.Context, batch []*project.Entry, size int) Sample {
	start := time.Now()
	success, err := t.translateAndEmit(ctx, batch)
	elapsed := time.Since(start)
	if err != nil {
		t.log.Warn("calibration batch failed", zap.Int("batch", size), zap.Error(err))
		t.errorf("batch=%d failed: %v", size, err)
		return Sample{BatchSize: size}
	}

	var eps float64
	if elapsed > 0 && success > 0 {
		eps = float64(success) / elapsed.Seconds()
	}
	return Sample{BatchSize: size, Throughput: eps, Elapsed: elapsed}
}

// translateAndEmit translates entries via one TranslateBatch call, applies
// successful results and emits them, and returns the success count.
func (t *Tuner) translateAndEmit(ctx context.Context, entries []*project.Entry) (int, error) {
	items := make([]client.BatchItem, len(entries))
	byKey := make(map[string]*project.Entry, len(entries))
	for i, e := range entries {
		key := fmt.Sprintf("Line%d", i+1)
		items[i] = client.BatchItem{Key: key, Text: e.Original, Context: e.Context, Field: e.Field}
		byKey[key] = e
	}

	results, err := t.client.TranslateBatch(ctx, items, nil)
	if err != nil {
		return 0, err
	}

	success := 0
	for key, translation := range results {
		e := byKey[key]
		if e == nil || translation == "" {
			continue
		}
		e.SetTranslation(translation)
		if t.hooks.OnItemProcessed != nil {
			t.hooks.OnItemProcessed(project.Preview(translation))
		}
		if t.hooks.OnEntryDone != nil {
			t.hooks.OnEntryDone(e.ID, translation)
		}
		success++
	}

	t.consumed += success
	return success, nil
}

func (t *Tuner) stopped(ctx context.Context) bool {
	return t.cancelled.Load() || ctx.Err() != nil
}

func (t *Tuner) status(msg string) {
	if t.hooks.OnStatus != nil {
		t.hooks.OnStatus(msg)
	}
}

func (t *Tuner) errorf(format string, args ...any) {
	if t.hooks.OnError != nil {
		t.hooks.OnError(fmt.Sprintf(format, args...))
	}
}

func (t *Tuner) stepDone(s Sample) {
	if t.hooks.OnStepDone != nil {
		t.hooks.OnStepDone(s.BatchSize, s.Throughput, s.Elapsed)
	}
}

// eligibleEntries selects untranslated entries with non-empty source text,
// preserving order.
func eligibleEntries(entries []*project.Entry) []*project.Entry {
	var out []*project.Entry
	for _, e := range entries {
		if e.Status == project.StatusUntranslated && strings.TrimSpace(e.Original) != "" {
			out = append(out, e)
		}
	}
	return out
}

// topSizes ranks round-1 samples by throughput descending and returns up
// to n distinct batch sizes. The sort is stable, so equal throughputs keep
// survey order.
func topSizes(samples []Sample, n int) []int {
	ranked := append([]Sample{}, samples...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Throughput > ranked[j].Throughput
	})

	var sizes []int
	seen := make(map[int]bool)
	for _, s := range ranked {
		if seen[s.BatchSize] {
			continue
		}
		seen[s.BatchSize] = true
		sizes = append(sizes, s.BatchSize)
		if len(sizes) == n {
			break
		}
	}
	return sizes
}

// averageBySize computes per-size average throughput over collected
// samples. Sizes with no samples are absent from the result.
func averageBySize(order []int, samples map[int][]Sample) map[int]float64 {
	avg := make(map[int]float64)
	for _, size := range order {
		if list := samples[size]; len(list) > 0 {
			avg[size] = averageThroughput(list)
		}
	}
	return avg
}

func averageThroughput(samples []Sample) float64 {
	var sum float64
	for _, s := range samples {
		sum += s.Throughput
	}
	return sum / float64(len(samples))
}

// rankSizes orders the given sizes by their average throughput descending
// and returns the top n. The sort is stable over the incoming order, so
// ties keep their prior ranking.
func rankSizes(order []int, avg map[int]float64, n int) []int {
	ranked := make([]int, 0, len(order))
	for _, size := range order {
		if _, ok := avg[size]; ok {
			ranked = append(ranked, size)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return avg[ranked[i]] > avg[ranked[j]]
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// bestSize picks the size with the highest average throughput. Ties go to
// the larger batch: more shared context per request is assumed to help
// quality at equal speed. That is documented policy, not a measured
// property.
func bestSize(avg map[int]float64) int {
	best := 0
	for size, eps := range avg {
		if best == 0 || eps > avg[best] || (eps == avg[best] && size > best) {
			best = size
		}
	}
	return best
}
