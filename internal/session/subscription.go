package session

import (
	"context"
	"sync"

	"filmware-sync/internal/record"
	"filmware-sync/internal/stream"
)

// RecordFetcher runs the initial cursor-bounded query for one kind.
type RecordFetcher interface {
	FetchInitial(ctx context.Context, kind record.KindSpec, q record.Query) ([]stream.Event, error)
}

// Subscription is one multiplexed filter over the connection. It starts in
// the buffering state: live events that match are parked while the initial
// fetch streams out, so the client never sees a live sequence number it has
// not been caught up to. FetchInitial ends with an atomic flush: sync
// marker, parked events in arrival order, then direct live delivery.
// Duplicates across the fetch/live boundary are expected; clients
// de-duplicate by version id.
type Subscription struct {
	muxID string
	specs []FilterSpec
	sink  Sink

	mu        sync.Mutex
	buffering bool
	buffer    []stream.Event
}

func NewSubscription(muxID string, specs []FilterSpec, sink Sink) *Subscription {
	return &Subscription{
		muxID:     muxID,
		specs:     specs,
		sink:      sink,
		buffering: true,
	}
}

func (s *Subscription) MuxID() string {
	return s.muxID
}

// Put receives one access-filtered live event from the monitor. Must not
// block; the sink enqueues without blocking and the buffer is in-memory.
func (s *Subscription) Put(ev stream.Event) {
	if !s.matches(ev) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buffering {
		s.buffer = append(s.buffer, ev)
		return
	}
	s.sink.Send(s.tag(ev))
}

func (s *Subscription) matches(ev stream.Event) bool {
	for _, spec := range s.specs {
		if spec.Matches(ev) {
			return true
		}
	}
	return false
}

// FetchInitial streams the initial snapshot for every spec, then flips the
// subscription live. The flush happens under the same lock that guards
// Put, so no event can land in the gap between the sync marker and live
// delivery.
func (s *Subscription) FetchInitial(ctx context.Context, fetcher RecordFetcher) error {
	for _, spec := range s.specs {
		rows, err := fetcher.FetchInitial(ctx, spec.Kind, spec.Query)
		if err != nil {
			return err
		}
		for _, row := range rows {
			s.sink.Send(s.tag(row))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink.Send(syncMessage(s.muxID))
	for _, ev := range s.buffer {
		s.sink.Send(s.tag(ev))
	}
	s.buffer = nil
	s.buffering = false
	return nil
}

// tag copies the event with this subscription's mux_id attached.
func (s *Subscription) tag(ev stream.Event) map[string]any {
	out := make(map[string]any, len(ev)+1)
	for k, v := range ev {
		out[k] = v
	}
	out["mux_id"] = s.muxID
	return out
}
