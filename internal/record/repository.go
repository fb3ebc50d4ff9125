package record

import (
	"context"
	stderrors "errors"
	"fmt"

	"filmware-sync/internal/domain"
	"filmware-sync/internal/errors"
	"filmware-sync/internal/stream"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	FetchInitial(ctx context.Context, kind KindSpec, q Query) ([]stream.Event, error)
	ReportByVersion(ctx context.Context, version uuid.UUID) (*domain.Report, error)
	ReportVersions(ctx context.Context, project, report uuid.UUID) ([]domain.Report, error)
	InsertBatch(ctx context.Context, batch *Batch) ([]stream.Event, error)
}

type RepositoryImpl struct {
	db *gorm.DB
}

// NewRepository creates a record repository over the given database handle
func NewRepository(db *gorm.DB) Repository {
	return &RepositoryImpl{db: db}
}

// scoped builds the shared fetch query: exclude rows already covered by a
// since cursor, optionally restrict to one matchable column, order by seqno.
func (r *RepositoryImpl) scoped(ctx context.Context, q Query) *gorm.DB {
	tx := r.db.WithContext(ctx)
	for _, c := range q.Since {
		tx = tx.Where("NOT (srv_id = ? AND seqno <= ?)", c.SrvID, c.Seqno)
	}
	if q.Match != "" && q.Match != "*" {
		// q.Match is validated against KindSpec.Matchables before it gets
		// here, so interpolating the column name is safe; quoted because
		// "user" is a reserved word
		tx = tx.Where(fmt.Sprintf("%q = ?", q.Match), q.Value)
	}
	return tx.Order("seqno ASC")
}

func (r *RepositoryImpl) FetchInitial(ctx context.Context, kind KindSpec, q Query) ([]stream.Event, error) {
	if !kind.Matchable(q.Match) {
		return nil, errors.NewUserError(fmt.Sprintf("cannot match %s on %q", kind.Field, q.Match))
	}

	var events []stream.Event
	switch kind.Kind {
	case stream.KindProject:
		var rows []domain.Project
		if err := r.scoped(ctx, q).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			events = append(events, ProjectEvent(row))
		}
	case stream.KindAccount:
		var rows []domain.Account
		if err := r.scoped(ctx, q).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			events = append(events, AccountEvent(row))
		}
	case stream.KindUser:
		var rows []domain.User
		if err := r.scoped(ctx, q).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			events = append(events, UserEvent(row))
		}
	case stream.KindPermission:
		var rows []domain.Permission
		if err := r.scoped(ctx, q).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			events = append(events, PermissionEvent(row))
		}
	case stream.KindReport:
		var rows []domain.Report
		if err := r.scoped(ctx, q).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			events = append(events, ReportEvent(row))
		}
	case stream.KindTopic:
		var rows []domain.Topic
		if err := r.scoped(ctx, q).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			events = append(events, TopicEvent(row))
		}
	case stream.KindComment:
		var rows []domain.Comment
		if err := r.scoped(ctx, q).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			events = append(events, CommentEvent(row))
		}
	default:
		return nil, fmt.Errorf("unknown record kind %q", kind.Kind)
	}
	return events, nil
}

func (r *RepositoryImpl) ReportByVersion(ctx context.Context, version uuid.UUID) (*domain.Report, error) {
	var report domain.Report
	err := r.db.WithContext(ctx).Where("version = ?", version).First(&report).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrNotFound(err)
		}
		return nil, err
	}
	return &report, nil
}

// ReportVersions returns every version of one report, oldest first.
func (r *RepositoryImpl) ReportVersions(ctx context.Context, project, report uuid.UUID) ([]domain.Report, error) {
	var rows []domain.Report
	err := r.db.WithContext(ctx).
		Where("project = ? AND report = ?", project, report).
		Order("seqno ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// InsertBatch writes one upload atomically. Versions are immutable, so a
// conflicting version id means the row was already uploaded and the insert
// is silently skipped. Only rows actually written produce events.
func (r *RepositoryImpl) InsertBatch(ctx context.Context, batch *Batch) ([]stream.Event, error) {
	onVersionConflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "version"}},
		DoNothing: true,
	}

	var events []stream.Event
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range batch.Reports {
			result := tx.Clauses(onVersionConflict).Create(&batch.Reports[i])
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected > 0 {
				events = append(events, ReportNotification(batch.Reports[i].Version))
			}
		}
		for i := range batch.Topics {
			result := tx.Clauses(onVersionConflict).Create(&batch.Topics[i])
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected > 0 {
				events = append(events, TopicEvent(batch.Topics[i]))
			}
		}
		for i := range batch.Comments {
			result := tx.Clauses(onVersionConflict).Create(&batch.Comments[i])
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected > 0 {
				events = append(events, CommentEvent(batch.Comments[i]))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}
