package stream

import (
	"context"
	"sync"

	"filmware-sync/internal/errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type State int

const (
	StateUnconfigured State = iota
	StateConfigured
	StateBooted
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "Unconfigured"
	case StateConfigured:
		return "Configured"
	case StateBooted:
		return "Booted"
	default:
		return "InvalidState"
	}
}

// Expander resolves a change notification that carries only a version id
// into the full record it refers to.
type Expander interface {
	ExpandReport(ctx context.Context, version uuid.UUID) (Event, error)
}

// Subscriber receives access-filtered record events. Put must not assume
// any particular goroutine; it is called from the monitor's async loop.
type Subscriber interface {
	Put(ev Event)
}

// Monitor guards one connection's authorization snapshot. Until Configure
// is called it buffers administrative events, because the bootem conditions
// are not known yet. Once configured, every administrative event is checked
// against the bootem rules; the first match moves the monitor to its
// terminal Booted state and fails the owning session, forcing the client to
// reconnect and re-authenticate. Record events that survive the project
// filter are fanned out to the registered subscribers.
type Monitor struct {
	expander Expander

	mu           sync.Mutex
	state        State
	session      string
	account      string
	users        map[string]struct{}
	projects     map[string]struct{}
	preconfigure []Event
	queue        []Event
	subs         map[Subscriber]struct{}
	subsSnapshot []Subscriber

	wake chan struct{}
	boot chan string
}

func NewMonitor(expander Expander) *Monitor {
	return &Monitor{
		expander: expander,
		subs:     make(map[Subscriber]struct{}),
		wake:     make(chan struct{}, 1),
		boot:     make(chan string, 1),
	}
}

// Notify classifies one raw event and enqueues it. It runs synchronously on
// the feed loop and never blocks.
func (m *Monitor) Notify(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateBooted {
		return
	}

	kind := ev.Type()
	if m.state == StateUnconfigured {
		if IsAdminKind(kind) {
			// bootem conditions aren't known yet; evaluated on Configure
			m.preconfigure = append(m.preconfigure, ev)
		}
		return
	}

	if IsAdminKind(kind) {
		if reason := m.checkBootem(ev); reason != "" {
			m.bootLocked(reason)
		}
		// administrative events are never forwarded to subscribers
		return
	}

	if !IsRecordKind(kind) {
		return
	}
	m.queue = append(m.queue, ev)
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// bootLocked must be called with mu held.
func (m *Monitor) bootLocked(reason string) {
	m.state = StateBooted
	select {
	case m.boot <- reason:
	default:
	}
}

// Configure installs the authorization snapshot and replays any events that
// arrived before it was known. A replayed event can reboot immediately, in
// which case the returned error is the same one Run would have produced.
func (m *Monitor) Configure(session, account uuid.UUID, users, projects []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = session.String()
	m.account = account.String()
	m.users = make(map[string]struct{}, len(users))
	for _, u := range users {
		m.users[u.String()] = struct{}{}
	}
	m.projects = make(map[string]struct{}, len(projects))
	for _, p := range projects {
		m.projects[p.String()] = struct{}{}
	}
	m.state = StateConfigured

	buffered := m.preconfigure
	m.preconfigure = nil
	for _, ev := range buffered {
		if reason := m.checkBootem(ev); reason != "" {
			m.bootLocked(reason)
			return errors.NewRebootError(reason)
		}
	}
	return nil
}

// checkBootem evaluates the three reboot rules in their fixed order; the
// first match wins. It must be called with mu held.
func (m *Monitor) checkBootem(ev Event) string {
	switch ev.Type() {
	case KindUser:
		account := ev.String("account")
		user := ev.String("user")
		_, known := m.users[user]
		if account == m.account && !known {
			return "account membership changed"
		}
		if known && account != m.account {
			return "account membership changed"
		}
	case KindPermission:
		enable := ev.Bool("enable")
		user := ev.String("user")
		project := ev.String("project")
		_, ours := m.users[user]
		_, have := m.projects[project]
		if enable && ours && !have {
			return "permission set changed"
		}
		if !enable && have {
			return "permission set changed"
		}
	case KindSession:
		if ev.String("session") == m.session && !ev.Bool("valid") {
			return "session invalidated"
		}
	}
	return ""
}

// AddSubscriber registers a subscription for live delivery.
func (m *Monitor) AddSubscriber(s Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[s] = struct{}{}
	m.rebuildSubs()
}

func (m *Monitor) RemoveSubscriber(s Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, s)
	m.rebuildSubs()
}

// rebuildSubs must be called with mu held.
func (m *Monitor) rebuildSubs() {
	snap := make([]Subscriber, 0, len(m.subs))
	for s := range m.subs {
		snap = append(snap, s)
	}
	m.subsSnapshot = snap
}

// Run is the monitor's async path: it expands queued events, applies the
// project filter, and delivers survivors to subscribers. It returns a
// RebootError when the authorization snapshot goes stale.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case reason := <-m.boot:
			return errors.NewRebootError(reason)
		case <-m.wake:
			if err := m.drain(ctx); err != nil {
				return err
			}
		}
	}
}

func (m *Monitor) drain(ctx context.Context) error {
	m.mu.Lock()
	queue := m.queue
	m.queue = nil
	subs := m.subsSnapshot
	m.mu.Unlock()

	for _, ev := range queue {
		// report notifications carry only the version id; expand them
		// before filtering or delivery
		if ev.Type() == KindReport && ev["seqno"] == nil {
			version, err := uuid.Parse(ev.String("version"))
			if err != nil {
				log.Error().Str("version", ev.String("version")).Msg("malformed report notification")
				continue
			}
			expanded, err := m.expander.ExpandReport(ctx, version)
			if err != nil {
				return err
			}
			ev = expanded
		}

		m.mu.Lock()
		_, ok := m.projects[ev.String("project")]
		m.mu.Unlock()
		if !ok {
			continue
		}

		for _, sub := range subs {
			sub.Put(ev)
		}
	}
	return nil
}
