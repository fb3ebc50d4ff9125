package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"filmware-sync/internal/domain"
	"filmware-sync/internal/errors"
	"filmware-sync/internal/identity"
	"filmware-sync/internal/record"
	"filmware-sync/internal/stream"
	"filmware-sync/internal/taskgroup"
	"filmware-sync/internal/utils"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Session drives one websocket connection: authenticate, install the
// access monitor, then multiplex subscriptions and uploads until something
// tears the connection down. Every long-running responsibility is one
// operation under a single task group, so none of them can outlive the
// connection.
type Session struct {
	conn     *websocket.Conn
	identity identity.Service
	records  record.Service
	feed     *stream.Feed

	writer  *Writer
	monitor *stream.Monitor
	grant   *domain.Session
	user    uuid.UUID

	mu       sync.Mutex
	subs     map[string]*Subscription
	projects map[string]struct{}

	fail    chan error
	fetches sync.WaitGroup
}

func New(conn *websocket.Conn, identitySvc identity.Service, records record.Service, feed *stream.Feed) *Session {
	return &Session{
		conn:     conn,
		identity: identitySvc,
		records:  records,
		feed:     feed,
		subs:     make(map[string]*Subscription),
		fail:     make(chan error, 1),
	}
}

// Run owns the connection from first frame to teardown. Expected endings
// (client misbehavior, reboot, expiry, disconnect) are logged and absorbed;
// only genuinely unexpected errors propagate.
func (s *Session) Run(ctx context.Context) error {
	s.writer = NewWriter(s.conn)
	s.monitor = stream.NewMonitor(s.records)

	// register before resolving the identity snapshot: an access change
	// racing the snapshot query must land in the monitor's preconfigure
	// buffer, not vanish
	s.feed.Register(s.monitor)
	defer s.feed.Unregister(s.monitor)

	grant, err := s.authenticate(ctx)
	if err != nil {
		return s.finish(err)
	}

	// the store may have changed between authentication and here; check the
	// grant again and only then trust the snapshot
	grant, err = s.identity.ValidateSession(ctx, grant.Session, grant.Token)
	if err != nil {
		_ = s.conn.WriteJSON(resultFailure())
		return s.finish(err)
	}
	snapshot, err := s.identity.Snapshot(ctx, grant.Account)
	if err != nil {
		_ = s.conn.WriteJSON(resultFailure())
		return s.finish(err)
	}
	s.grant = grant
	s.user = snapshot.User
	s.projects = make(map[string]struct{}, len(snapshot.Projects))
	for _, p := range snapshot.Projects {
		s.projects[p.String()] = struct{}{}
	}

	if err := s.conn.WriteJSON(resultSuccess(snapshot.User, grant.Session, grant.Token, grant.Expiry)); err != nil {
		return s.finish(err)
	}

	if err := s.monitor.Configure(grant.Session, grant.Account, snapshot.Users, snapshot.Projects); err != nil {
		return s.finish(err)
	}

	err = taskgroup.Run(ctx,
		s.monitor.Run,
		s.writer.Run,
		s.read,
		s.expiry,
		s.waitFail,
	)
	s.fetches.Wait()
	return s.finish(err)
}

// finish classifies a teardown cause. Everything that is a normal way for
// a connection to end is logged and swallowed.
func (s *Session) finish(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.IsTransportError(err):
		log.Debug().Err(err).Msg("connection dropped")
		return nil
	case errors.IsRebootError(err):
		log.Info().Err(err).Msg("session booted")
		return nil
	case errors.IsUserError(err):
		log.Info().Err(err).Msg("client protocol error")
		return nil
	default:
		log.Error().Err(err).Msg("session failed")
		return err
	}
}

// authenticate loops over auth frames until one succeeds. Bad credentials
// get a failure result and another try; anything malformed ends the
// connection.
func (s *Session) authenticate(ctx context.Context) (*domain.Session, error) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		msg, err := parseAuthMessage(data)
		if err != nil {
			return nil, err
		}

		var grant *domain.Session
		var authErr error
		switch msg.Type {
		case "password":
			var password string
			password, authErr = msg.password()
			if authErr == nil {
				var account *domain.Account
				account, authErr = s.identity.VerifyPassword(ctx, msg.Email, password)
				if authErr == nil {
					grant, authErr = s.identity.MintSession(ctx, account.Account)
				}
			}
		case "session":
			var sessionID uuid.UUID
			var token []byte
			sessionID, token, authErr = msg.credentials()
			if authErr == nil {
				grant, authErr = s.identity.ValidateSession(ctx, sessionID, token)
			}
		}

		if authErr != nil {
			if errors.IsUserError(authErr) {
				if err := s.conn.WriteJSON(resultFailure()); err != nil {
					return nil, err
				}
				continue
			}
			return nil, authErr
		}
		return grant, nil
	}
}

// read is the inbound dispatcher. ReadMessage is not cancellable, so a
// helper goroutine closes the socket when the group tears down.
func (s *Session) read(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		msg, err := ParseClientMessage(data)
		if err != nil {
			return err
		}

		switch msg.Type {
		case "subscribe":
			err = s.handleSubscribe(ctx, msg, true)
		case "fetch":
			err = s.handleSubscribe(ctx, msg, false)
		case "close":
			err = s.handleClose(msg)
		case "upload":
			err = s.handleUpload(ctx, msg)
		}
		if err != nil {
			return err
		}
	}
}

// handleSubscribe creates a subscription. Live subscriptions register with
// the monitor before the fetch starts, so events arriving mid-fetch are
// buffered instead of lost. The fetch itself runs off the reader loop; its
// failure fails the whole session through the fail channel.
func (s *Session) handleSubscribe(ctx context.Context, msg *ClientMessage, live bool) error {
	specs, err := ParseFilters(msg.Kinds)
	if err != nil {
		return err
	}

	sub := NewSubscription(msg.MuxID, specs, s.writer)
	s.mu.Lock()
	if _, ok := s.subs[msg.MuxID]; ok {
		s.mu.Unlock()
		return errors.NewUserError(fmt.Sprintf("duplicate mux_id (%s)", msg.MuxID))
	}
	s.subs[msg.MuxID] = sub
	s.mu.Unlock()

	if live {
		s.monitor.AddSubscriber(sub)
	}

	s.fetches.Add(1)
	go func() {
		defer s.fetches.Done()
		if err := sub.FetchInitial(ctx, s); err != nil {
			s.failWith(err)
		}
	}()
	return nil
}

// FetchInitial scopes the shared fetch to this connection: project-tagged
// record rows outside the authorization snapshot are dropped. The snapshot
// is fixed for the connection's lifetime; changes to it reboot the session
// instead of widening the filter. Administrative kinds are exempt even when
// the row carries a project column (a permission row's project is part of
// the permission, not a visibility scope).
func (s *Session) FetchInitial(ctx context.Context, kind record.KindSpec, q record.Query) ([]stream.Event, error) {
	rows, err := s.records.FetchInitial(ctx, kind, q)
	if err != nil {
		return nil, err
	}
	if !stream.IsRecordKind(kind.Kind) {
		return rows, nil
	}
	visible := rows[:0]
	for _, row := range rows {
		if project, ok := row["project"].(string); ok {
			if _, member := s.projects[project]; !member {
				continue
			}
		}
		visible = append(visible, row)
	}
	return visible, nil
}

func (s *Session) handleClose(msg *ClientMessage) error {
	s.mu.Lock()
	sub, ok := s.subs[msg.MuxID]
	if ok {
		delete(s.subs, msg.MuxID)
	}
	s.mu.Unlock()
	if !ok {
		return errors.NewUserError(fmt.Sprintf("unknown mux_id (%s)", msg.MuxID))
	}

	s.monitor.RemoveSubscriber(sub)
	s.writer.Send(closedMessage(msg.MuxID))
	return nil
}

func (s *Session) handleUpload(ctx context.Context, msg *ClientMessage) error {
	// upload mux_ids share the subscription namespace; colliding with a
	// live subscription would let its ack masquerade as stream traffic
	s.mu.Lock()
	_, taken := s.subs[msg.MuxID]
	s.mu.Unlock()
	if taken {
		return errors.NewUserError(fmt.Sprintf("duplicate mux_id (%s)", msg.MuxID))
	}

	if err := s.records.Upload(ctx, s.user, msg.Objects); err != nil {
		return err
	}
	s.writer.Send(uploadedMessage(msg.MuxID))
	return nil
}

// expiry forces teardown at the grant's stored expiry instant; activity
// does not extend it.
func (s *Session) expiry(ctx context.Context) error {
	timer := time.NewTimer(time.Until(s.grant.Expiry))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.NewUserError(fmt.Sprintf("session expired at %s", utils.FormatTime(s.grant.Expiry)))
	}
}

func (s *Session) failWith(err error) {
	select {
	case s.fail <- err:
	default:
	}
}

func (s *Session) waitFail(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-s.fail:
		return err
	}
}
