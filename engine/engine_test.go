package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MoriTranslates/rpgmaker-translator/client"
	"github.com/MoriTranslates/rpgmaker-translator/project"
)

// fakeClient scripts per-call behavior for engine tests.
type fakeClient struct {
	mu        sync.Mutex
	calls     int
	translate func(req client.TranslateRequest) (string, error)
	polish    func(text string) (string, error)
}

func (f *fakeClient) Translate(ctx context.Context, req client.TranslateRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.translate != nil {
		return f.translate(req)
	}
	return "EN:" + req.Text, nil
}

func (f *fakeClient) Polish(ctx context.Context, text string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.polish != nil {
		return f.polish(text)
	}
	return "polished:" + text, nil
}

func (f *fakeClient) TranslateBatch(ctx context.Context, items []client.BatchItem, history []client.Exchange) (map[string]string, error) {
	return nil, fmt.Errorf("not used by engine")
}

func (f *fakeClient) IsCloud() bool { return false }

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func makeEntries(n int) []*project.Entry {
	entries := make([]*project.Entry, n)
	for i := range entries {
		entries[i] = &project.Entry{
			ID:       fmt.Sprintf("Map001.json/Ev1/p0/dialog_%d", i),
			Original: fmt.Sprintf("テキスト%d", i),
			Status:   project.StatusUntranslated,
		}
	}
	return entries
}

// runToCompletion runs the engine and blocks until OnFinished.
func runToCompletion(t *testing.T, eng *Engine, done <-chan struct{}, entries []*project.Entry, mode Mode) {
	t.Helper()
	eng.Run(context.Background(), entries, mode)
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not finish")
	}
}

func TestRunTranslatesAll(t *testing.T) {
	entries := makeEntries(7)
	fc := &fakeClient{}

	var progress []int
	finished := 0
	done := make(chan struct{})
	hooks := Hooks{
		OnProgress: func(current, total int, preview string) {
			progress = append(progress, current)
			assert.Equal(t, 7, total)
		},
		OnFinished: func() {
			finished++
			close(done)
		},
	}

	eng := New(fc, hooks, WithWorkers(2))
	runToCompletion(t, eng, done, entries, ModeTranslate)

	for i, e := range entries {
		assert.Equal(t, project.StatusTranslated, e.Status, "entry %d", i)
		assert.Equal(t, "EN:"+e.Original, e.Translation, "entry %d", i)
	}
	assert.Equal(t, 1, finished)
	assert.Equal(t, 7, fc.callCount())
	assert.False(t, eng.IsRunning())

	// Progress is a single monotonically increasing counter across workers.
	require.Len(t, progress, 7)
	for i, p := range progress {
		assert.Equal(t, i+1, p)
	}
}

func TestCheckpointCadence(t *testing.T) {
	entries := makeEntries(77)
	fc := &fakeClient{}

	checkpoints := 0
	done := make(chan struct{})
	hooks := Hooks{
		OnCheckpoint: func() { checkpoints++ },
		OnFinished:   func() { close(done) },
	}

	eng := New(fc, hooks, WithWorkers(4), WithCheckpointInterval(25))
	runToCompletion(t, eng, done, entries, ModeTranslate)

	// 77 successes at interval 25: after the 25th, 50th and 75th.
	assert.Equal(t, 3, checkpoints)
}

func TestPerItemErrorContinues(t *testing.T) {
	entries := makeEntries(6)
	fc := &fakeClient{
		translate: func(req client.TranslateRequest) (string, error) {
			if req.Text == "テキスト2" || req.Text == "テキスト4" {
				return "", fmt.Errorf("server exploded")
			}
			return "EN:" + req.Text, nil
		},
	}

	var failedIDs []string
	var progress int
	done := make(chan struct{})
	hooks := Hooks{
		OnProgress: func(current, total int, preview string) { progress = current },
		OnError: func(id, message string) {
			failedIDs = append(failedIDs, id)
			assert.Contains(t, message, "server exploded")
		},
		OnFinished: func() { close(done) },
	}

	eng := New(fc, hooks, WithWorkers(1))
	runToCompletion(t, eng, done, entries, ModeTranslate)

	assert.Equal(t, []string{entries[2].ID, entries[4].ID}, failedIDs)
	assert.Equal(t, project.StatusUntranslated, entries[2].Status)
	assert.Equal(t, project.StatusUntranslated, entries[4].Status)
	assert.Equal(t, project.StatusTranslated, entries[0].Status)
	// Failed items still count toward progress.
	assert.Equal(t, 6, progress)
}

func TestEmptySourceMarkedSkipped(t *testing.T) {
	entries := makeEntries(3)
	entries[1].Original = "   \n  "
	fc := &fakeClient{}

	var progress int
	done := make(chan struct{})
	hooks := Hooks{
		OnProgress: func(current, total int, preview string) { progress = current },
		OnFinished: func() { close(done) },
	}

	eng := New(fc, hooks, WithWorkers(1))
	runToCompletion(t, eng, done, entries, ModeTranslate)

	assert.Equal(t, project.StatusSkipped, entries[1].Status)
	assert.Empty(t, entries[1].Translation)
	// The empty entry never reaches the client but still counts as processed.
	assert.Equal(t, 2, fc.callCount())
	assert.Equal(t, 3, progress)
}

func TestPolishEligibility(t *testing.T) {
	entries := makeEntries(4)
	entries[0].Status = project.StatusTranslated
	entries[0].Translation = "Hello"
	entries[1].Status = project.StatusReviewed
	entries[1].Translation = "World"
	// entries[2] untranslated, entries[3] translated but empty text.
	entries[3].Status = project.StatusTranslated
	entries[3].Translation = "   "

	fc := &fakeClient{}
	done := make(chan struct{})
	eng := New(fc, Hooks{OnFinished: func() { close(done) }}, WithWorkers(2))
	runToCompletion(t, eng, done, entries, ModePolish)

	assert.Equal(t, "polished:Hello", entries[0].Translation)
	assert.Equal(t, "polished:World", entries[1].Translation)
	// A polish pass never downgrades review status.
	assert.Equal(t, project.StatusReviewed, entries[1].Status)
	assert.Equal(t, project.StatusUntranslated, entries[2].Status)
	assert.Equal(t, "   ", entries[3].Translation)
	assert.Equal(t, 2, fc.callCount())
}

func TestZeroEligibleFiresFinished(t *testing.T) {
	entries := makeEntries(2)
	entries[0].Status = project.StatusTranslated
	entries[0].Translation = "done"
	entries[1].Status = project.StatusSkipped

	finished := 0
	eng := New(&fakeClient{}, Hooks{OnFinished: func() { finished++ }})
	eng.Run(context.Background(), entries, ModeTranslate)

	assert.Equal(t, 1, finished)
	assert.False(t, eng.IsRunning())
}

func TestConcurrentRunRejected(t *testing.T) {
	entries := makeEntries(3)
	started := make(chan struct{}, 3)
	proceed := make(chan struct{})
	fc := &fakeClient{
		translate: func(req client.TranslateRequest) (string, error) {
			started <- struct{}{}
			<-proceed
			return "EN:" + req.Text, nil
		},
	}

	finished := 0
	done := make(chan struct{})
	eng := New(fc, Hooks{OnFinished: func() {
		finished++
		close(done)
	}}, WithWorkers(1))

	eng.Run(context.Background(), entries, ModeTranslate)
	<-started
	assert.True(t, eng.IsRunning())

	// Second run while the first is active is a no-op.
	other := makeEntries(2)
	eng.Run(context.Background(), other, ModeTranslate)

	close(proceed)
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not finish")
	}

	assert.Equal(t, 1, finished)
	assert.Equal(t, project.StatusUntranslated, other[0].Status)
	assert.Equal(t, project.StatusUntranslated, other[1].Status)
}

func TestCancelStopsBetweenItems(t *testing.T) {
	entries := makeEntries(4)
	started := make(chan struct{}, 4)
	proceed := make(chan struct{}, 4)
	fc := &fakeClient{
		translate: func(req client.TranslateRequest) (string, error) {
			started <- struct{}{}
			<-proceed
			return "EN:" + req.Text, nil
		},
	}

	done := make(chan struct{})
	eng := New(fc, Hooks{OnFinished: func() { close(done) }}, WithWorkers(1))

	eng.Run(context.Background(), entries, ModeTranslate)
	<-started

	// Cancel while the first item is in flight, then let it finish. The
	// worker must complete the current item and stop before the next one.
	eng.Cancel()
	proceed <- struct{}{}

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not finish after cancel")
	}

	assert.Equal(t, project.StatusTranslated, entries[0].Status)
	assert.Equal(t, project.StatusUntranslated, entries[1].Status)
	assert.Equal(t, 1, fc.callCount())
	assert.False(t, eng.IsRunning())
}

func TestRunAfterCancelWorks(t *testing.T) {
	entries := makeEntries(2)
	fc := &fakeClient{}

	done := make(chan struct{})
	eng := New(fc, Hooks{OnFinished: func() { close(done) }}, WithWorkers(1))

	// A stale cancel from a previous run must not poison the next one.
	eng.Cancel()
	runToCompletion(t, eng, done, entries, ModeTranslate)

	assert.Equal(t, project.StatusTranslated, entries[0].Status)
	assert.Equal(t, project.StatusTranslated, entries[1].Status)
}
