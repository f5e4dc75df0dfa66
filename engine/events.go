package engine

import "github.com/MoriTranslates/rpgmaker-translator/project"

// Hooks receives engine events. Every callback is invoked from the
// engine's single dispatcher goroutine, in per-worker order, so hooks may
// touch shared state without locking — but they must not block for long,
// since they stall progress aggregation for all workers.
//
// Nil callbacks are skipped.
type Hooks struct {
	// OnProgress fires once per processed item (including skips) with the
	// monotonically increasing global counter and a short text preview.
	OnProgress func(current, total int, preview string)
	// OnEntryDone fires for each successful translation, after the result
	// has been applied to the entry.
	OnEntryDone func(id, translation string)
	// OnError fires for a per-item client failure. The run continues.
	OnError func(id, message string)
	// OnCheckpoint fires every time the successful-completion counter
	// crosses a multiple of the checkpoint interval.
	OnCheckpoint func()
	// OnFinished fires exactly once per run, after all workers have been
	// joined. It also fires for a run with zero eligible entries.
	OnFinished func()
}

type eventKind int

const (
	// evItemProcessed: one item was handled (translated, skipped or failed
	// source-side). Drives the global progress counter.
	evItemProcessed eventKind = iota
	// evEntryDone: one item was successfully translated.
	evEntryDone
	// evItemError: the client failed for one item.
	evItemError
	// evWorkerDone: a worker's terminal event. Exactly one per worker.
	evWorkerDone
)

// workerEvent is the internal message workers send to the dispatcher.
// text carries the preview (evItemProcessed), the translation
// (evEntryDone) or the error message (evItemError).
//
// Workers never mutate entries themselves: markSkipped asks the
// dispatcher to flag an empty-source entry as skipped. Keeping every
// entry mutation in the dispatcher means a checkpoint save can read the
// whole collection without racing a worker.
type workerEvent struct {
	kind        eventKind
	entry       *project.Entry
	text        string
	markSkipped bool
}
