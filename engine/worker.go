package engine

import (
	"context"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/MoriTranslates/rpgmaker-translator/client"
	"github.com/MoriTranslates/rpgmaker-translator/project"
)

// worker processes one chunk of entries sequentially against the
// translation client. It owns its chunk exclusively for the duration of
// the run, so it may mutate entry status without locking; results flow
// back through the event channel and are applied by the dispatcher.
type worker struct {
	client    client.Client
	chunk     []*project.Entry
	mode      Mode
	cancelled *atomic.Bool
	events    chan<- workerEvent
	log       *zap.Logger
}

// run processes the chunk. It always sends exactly one evWorkerDone,
// whether the chunk completed, was cancelled, or was empty.
func (w *worker) run(ctx context.Context) {
	defer func() {
		w.events <- workerEvent{kind: evWorkerDone}
	}()

	for _, e := range w.chunk {
		if w.cancelled.Load() || ctx.Err() != nil {
			return
		}

		if w.mode == ModePolish {
			if !e.HasTranslation() {
				w.events <- workerEvent{kind: evItemProcessed, entry: e, text: "(skipped)"}
				continue
			}
		} else {
			if e.Status != project.StatusUntranslated {
				w.events <- workerEvent{kind: evItemProcessed, entry: e, text: "(skipped)"}
				continue
			}
			if strings.TrimSpace(e.Original) == "" {
				w.events <- workerEvent{kind: evItemProcessed, entry: e, text: "(empty)", markSkipped: true}
				continue
			}
		}

		source := e.Original
		if w.mode == ModePolish {
			source = e.Translation
		}
		w.events <- workerEvent{kind: evItemProcessed, entry: e, text: project.Preview(source)}

		var result string
		var err error
		if w.mode == ModePolish {
			result, err = w.client.Polish(ctx, e.Translation)
		} else {
			result, err = w.client.Translate(ctx, client.TranslateRequest{
				Text:    e.Original,
				Context: e.Context,
				Field:   e.Field,
			})
		}
		if err != nil {
			// A single item's failure never aborts the chunk.
			w.log.Warn("translation failed",
				zap.String("id", e.ID),
				zap.Error(err))
			w.events <- workerEvent{kind: evItemError, entry: e, text: err.Error()}
			continue
		}

		w.events <- workerEvent{kind: evEntryDone, entry: e, text: result}
	}
}
