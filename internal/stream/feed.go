package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Listener receives raw change events from the feed. Notify is called
// synchronously from the feed loop and must never block; it may only
// classify and enqueue.
type Listener interface {
	Notify(ev Event)
}

// Feed is the process-wide change feed. Every server publishes its
// committed writes to one redis channel; each process subscribes once and
// fans events out to the registered per-connection listeners.
type Feed struct {
	client  *redis.Client
	channel string

	mu        sync.Mutex
	listeners map[Listener]struct{}
	// snapshot is rebuilt on registration changes so the fan-out loop
	// iterates without holding the lock
	snapshot []Listener
}

func NewFeed(client *redis.Client, channel string) *Feed {
	return &Feed{
		client:    client,
		channel:   channel,
		listeners: make(map[Listener]struct{}),
	}
}

// Register adds a listener. It must be called before the caller takes its
// authorization snapshot, so no event falls between snapshot and delivery.
func (f *Feed) Register(l Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners[l] = struct{}{}
	f.rebuild()
}

func (f *Feed) Unregister(l Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.listeners, l)
	f.rebuild()
}

// rebuild must be called with mu held.
func (f *Feed) rebuild() {
	snap := make([]Listener, 0, len(f.listeners))
	for l := range f.listeners {
		snap = append(snap, l)
	}
	f.snapshot = snap
}

func (f *Feed) current() []Listener {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot
}

// Publish emits a change event to every server's feed. Callers publish only
// after the owning transaction commits.
func (f *Feed) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel, payload).Err()
}

// Run consumes the redis subscription until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	pubsub := f.client.Subscribe(ctx, f.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// a closed channel without cancellation means the redis
				// connection died; sessions must not keep running on a
				// dead feed
				return errors.New("change feed subscription closed")
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Error().Err(err).Msg("undecodable change event")
				continue
			}
			for _, l := range f.current() {
				l.Notify(ev)
			}
		}
	}
}
