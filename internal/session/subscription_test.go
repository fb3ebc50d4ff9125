package session

import (
	"context"
	"sync"
	"testing"

	"filmware-sync/internal/record"
	"filmware-sync/internal/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectingSink struct {
	mu   sync.Mutex
	msgs []map[string]any
}

func (c *collectingSink) Send(msg map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *collectingSink) all() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.msgs...)
}

type fakeFetcher struct {
	rows map[string][]stream.Event
	// when set, FetchInitial blocks until hold is closed, so tests can
	// inject live events mid-fetch
	hold chan struct{}
}

func (f *fakeFetcher) FetchInitial(_ context.Context, kind record.KindSpec, _ record.Query) ([]stream.Event, error) {
	if f.hold != nil {
		<-f.hold
	}
	return f.rows[kind.Kind], nil
}

func topicSpecs(t *testing.T) []FilterSpec {
	t.Helper()
	specs, err := ParseFilters(map[string]KindRequest{
		"topics": {Match: "*"},
	})
	require.NoError(t, err)
	return specs
}

// TestSubscription_BufferedEventsFlushAfterSync tests the buffering-to-live
// transition: fetch rows first, then the sync marker, then events that
// arrived during the fetch, in arrival order
func TestSubscription_BufferedEventsFlushAfterSync(t *testing.T) {
	sink := &collectingSink{}
	sub := NewSubscription("m1", topicSpecs(t), sink)

	fetchRow := stream.Event{"type": stream.KindTopic, "seqno": int64(1), "name": "fetched"}
	fetcher := &fakeFetcher{rows: map[string][]stream.Event{stream.KindTopic: {fetchRow}}}

	// live events land before the fetch completes
	sub.Put(stream.Event{"type": stream.KindTopic, "seqno": int64(2), "name": "live-a"})
	sub.Put(stream.Event{"type": stream.KindTopic, "seqno": int64(3), "name": "live-b"})

	require.NoError(t, sub.FetchInitial(context.Background(), fetcher))

	// and events after the flush are delivered directly
	sub.Put(stream.Event{"type": stream.KindTopic, "seqno": int64(4), "name": "live-c"})

	got := sink.all()
	require.Len(t, got, 5)
	assert.Equal(t, "fetched", got[0]["name"])
	assert.Equal(t, "sync", got[1]["type"])
	assert.Equal(t, "live-a", got[2]["name"])
	assert.Equal(t, "live-b", got[3]["name"])
	assert.Equal(t, "live-c", got[4]["name"])
	for _, msg := range got {
		assert.Equal(t, "m1", msg["mux_id"])
	}
}

// TestSubscription_PredicateFiltersKinds tests that events outside the
// declared kinds never reach the sink
func TestSubscription_PredicateFiltersKinds(t *testing.T) {
	sink := &collectingSink{}
	sub := NewSubscription("m1", topicSpecs(t), sink)
	fetcher := &fakeFetcher{}
	require.NoError(t, sub.FetchInitial(context.Background(), fetcher))

	sub.Put(stream.Event{"type": stream.KindComment, "seqno": int64(1)})
	sub.Put(stream.Event{"type": stream.KindTopic, "seqno": int64(2)})

	got := sink.all()
	require.Len(t, got, 2) // sync + the topic
	assert.Equal(t, "sync", got[0]["type"])
	assert.Equal(t, stream.KindTopic, got[1]["type"])
}

// TestSubscription_MatchValueFilters tests the single-field equality match
func TestSubscription_MatchValueFilters(t *testing.T) {
	specs, err := ParseFilters(map[string]KindRequest{
		"reports": {Match: "project", Value: "p-1"},
	})
	require.NoError(t, err)

	sink := &collectingSink{}
	sub := NewSubscription("m1", specs, sink)
	require.NoError(t, sub.FetchInitial(context.Background(), &fakeFetcher{}))

	sub.Put(stream.Event{"type": stream.KindReport, "project": "p-2"})
	sub.Put(stream.Event{"type": stream.KindReport, "project": "p-1"})

	got := sink.all()
	require.Len(t, got, 2)
	assert.Equal(t, "p-1", got[1]["project"])
}

// TestSubscription_ConcurrentPutDuringFetch tests that no event is dropped
// in the window around the buffering-to-live flip
func TestSubscription_ConcurrentPutDuringFetch(t *testing.T) {
	sink := &collectingSink{}
	sub := NewSubscription("m1", topicSpecs(t), sink)
	fetcher := &fakeFetcher{hold: make(chan struct{})}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sub.FetchInitial(context.Background(), fetcher)
	}()

	const n = 100
	var puts sync.WaitGroup
	puts.Add(1)
	go func() {
		defer puts.Done()
		for i := 0; i < n; i++ {
			sub.Put(stream.Event{"type": stream.KindTopic, "seqno": int64(i)})
		}
	}()

	close(fetcher.hold)
	puts.Wait()
	<-done

	seen := 0
	for _, msg := range sink.all() {
		if msg["type"] == stream.KindTopic {
			seen++
		}
	}
	assert.Equal(t, n, seen)
}
