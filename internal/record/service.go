package record

import (
	"context"
	"encoding/json"
	"fmt"

	"filmware-sync/internal/errors"
	"filmware-sync/internal/stream"
	"filmware-sync/internal/utils"
	"filmware-sync/internal/version"
	"filmware-sync/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Publisher pushes a committed change onto the shared change feed.
type Publisher interface {
	Publish(ctx context.Context, ev stream.Event) error
}

// ReportHeads is the computed head set of one report's version history.
type ReportHeads struct {
	Report   string   `json:"report"`
	Heads    []string `json:"heads"`
	Conflict bool     `json:"conflict"`
	Blocked  int      `json:"blocked"`
}

type Service interface {
	FetchInitial(ctx context.Context, kind KindSpec, q Query) ([]stream.Event, error)
	Upload(ctx context.Context, user uuid.UUID, objects []map[string]any) error
	ExpandReport(ctx context.Context, ver uuid.UUID) (stream.Event, error)
	ReportHeads(ctx context.Context, project, report uuid.UUID) (*ReportHeads, error)
}

type ServiceImpl struct {
	repo      Repository
	publisher Publisher
	pool      *worker.Pool
	srvID     string
}

// NewService creates a record service. The pool must be a single-worker
// pool so published events keep their commit order.
func NewService(repo Repository, publisher Publisher, pool *worker.Pool, srvID string) Service {
	return &ServiceImpl{repo: repo, publisher: publisher, pool: pool, srvID: srvID}
}

func (s *ServiceImpl) FetchInitial(ctx context.Context, kind KindSpec, q Query) ([]stream.Event, error) {
	return s.repo.FetchInitial(ctx, kind, q)
}

// Upload parses, stores, and announces one batch of new record versions.
// Publication happens off the request path; a duplicate version id is not
// an error and produces no event.
func (s *ServiceImpl) Upload(ctx context.Context, user uuid.UUID, objects []map[string]any) error {
	batch, err := ParseUpload(objects, user, s.srvID, utils.Now())
	if err != nil {
		return err
	}
	if batch.Empty() {
		return nil
	}

	events, err := s.repo.InsertBatch(ctx, batch)
	if err != nil {
		return err
	}

	if len(events) > 0 {
		s.pool.Submit(func(ctx context.Context) error {
			for _, ev := range events {
				if err := s.publisher.Publish(ctx, ev); err != nil {
					return fmt.Errorf("publish %s event: %w", ev.Type(), err)
				}
			}
			return nil
		})
	}
	return nil
}

// ExpandReport resolves a compact report notification into the full row,
// for delivery on the live stream.
func (s *ServiceImpl) ExpandReport(ctx context.Context, ver uuid.UUID) (stream.Event, error) {
	report, err := s.repo.ReportByVersion(ctx, ver)
	if err != nil {
		return nil, err
	}
	return ReportEvent(*report), nil
}

// ReportHeads replays a report's stored versions through the history graph
// and returns the current head set.
func (s *ServiceImpl) ReportHeads(ctx context.Context, project, report uuid.UUID) (*ReportHeads, error) {
	rows, err := s.repo.ReportVersions(ctx, project, report)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.ErrNotFound(fmt.Errorf("report %s has no versions", report))
	}

	versions := make([]version.Version, 0, len(rows))
	for _, row := range rows {
		supersedes, err := parseModifies(row.Modifies)
		if err != nil {
			// a malformed modifies column is a stored-data bug; treat the
			// version as an original rather than failing the whole report
			log.Warn().Err(err).Str("version", row.Version.String()).Msg("malformed modifies column")
			supersedes = nil
		}
		versions = append(versions, version.Version{ID: row.Version, Supersedes: supersedes})
	}

	graph := version.Build(versions)
	heads := graph.Heads()
	out := &ReportHeads{
		Report:   report.String(),
		Heads:    make([]string, 0, len(heads)),
		Conflict: graph.Conflicted(),
		Blocked:  graph.Blocked(),
	}
	for _, h := range heads {
		out.Heads = append(out.Heads, h.String())
	}
	return out, nil
}

// parseModifies decodes the jsonb supersedes list of a report version.
// The column is either null (an original) or a list of version id strings.
func parseModifies(raw []byte) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		// "false" is the legacy encoding for an original
		var b bool
		if json.Unmarshal(raw, &b) == nil && !b {
			return nil, nil
		}
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(ids))
	for _, s := range ids {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
