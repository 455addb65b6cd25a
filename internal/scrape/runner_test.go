package scrape

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pkaris/listbridge/internal/media"
)

type nopSink struct{}

func (nopSink) Publish(context.Context, media.Entry) error { return nil }

type scrapeCall struct {
	source   media.Source
	username string
}

// fakeAdapter records every Scrape call and can fail or stall per username.
type fakeAdapter struct {
	mu      sync.Mutex
	source  media.Source
	calls   []scrapeCall
	failFor map[string]error
	block   chan struct{}
}

func (a *fakeAdapter) Source() media.Source { return a.source }

func (a *fakeAdapter) Scrape(_ context.Context, username string, _ media.Sink) error {
	if a.block != nil {
		<-a.block
	}
	a.mu.Lock()
	a.calls = append(a.calls, scrapeCall{source: a.source, username: username})
	a.mu.Unlock()
	if err := a.failFor[username]; err != nil {
		return err
	}
	return nil
}

func (a *fakeAdapter) recorded() []scrapeCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]scrapeCall, len(a.calls))
	copy(out, a.calls)
	return out
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []scrapeCall
}

func (n *recordingNotifier) NotifyError(_ context.Context, source media.Source, username string, _ error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, scrapeCall{source: source, username: username})
}

func TestRunPass_VisitsTargetsInOrder(t *testing.T) {
	films := &fakeAdapter{source: media.SourceLetterboxd}
	anime := &fakeAdapter{source: media.SourceMAL}

	r := New([]Target{
		{Adapter: films, Usernames: []string{"alice", "bob"}},
		{Adapter: anime, Usernames: []string{"carol"}},
	}, nopSink{}, nil, time.Hour, zap.NewNop())

	r.RunPass(context.Background())

	require.Equal(t, []scrapeCall{
		{source: media.SourceLetterboxd, username: "alice"},
		{source: media.SourceLetterboxd, username: "bob"},
	}, films.recorded())
	require.Equal(t, []scrapeCall{
		{source: media.SourceMAL, username: "carol"},
	}, anime.recorded())
}

func TestRunPass_FailureIsScopedToUsername(t *testing.T) {
	adapter := &fakeAdapter{
		source:  media.SourceMAL,
		failFor: map[string]error{"alice": errors.New("listing 500")},
	}
	notifier := &recordingNotifier{}

	r := New([]Target{
		{Adapter: adapter, Usernames: []string{"alice", "bob"}},
	}, nopSink{}, notifier, time.Hour, zap.NewNop())

	r.RunPass(context.Background())

	assert.Len(t, adapter.recorded(), 2, "bob is still scraped after alice fails")
	require.Len(t, notifier.calls, 1)
	assert.Equal(t, scrapeCall{source: media.SourceMAL, username: "alice"}, notifier.calls[0])
}

func TestRunPass_OverlappingPassIsSkipped(t *testing.T) {
	block := make(chan struct{})
	adapter := &fakeAdapter{source: media.SourceMAL, block: block}

	r := New([]Target{
		{Adapter: adapter, Usernames: []string{"alice"}},
	}, nopSink{}, nil, time.Hour, zap.NewNop())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.RunPass(context.Background())
	}()

	// Wait for the first pass to take the lock and stall inside Scrape.
	require.Eventually(t, func() bool {
		if r.mu.TryLock() {
			r.mu.Unlock()
			return false
		}
		return true
	}, time.Second, 5*time.Millisecond)

	// Overlapping trigger returns immediately without scraping.
	r.RunPass(context.Background())
	assert.Empty(t, adapter.recorded())

	close(block)
	wg.Wait()
	assert.Len(t, adapter.recorded(), 1)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	adapter := &fakeAdapter{source: media.SourceMAL}
	r := New([]Target{
		{Adapter: adapter, Usernames: []string{"alice"}},
	}, nopSink{}, nil, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	// The immediate pass plus at least one ticked pass.
	require.Eventually(t, func() bool {
		return len(adapter.recorded()) >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
