package identity

import (
	"context"

	"filmware-sync/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the interface for identity data access
type Repository interface {
	FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	CreateAccountWithUser(ctx context.Context, account *domain.Account, user *domain.User) error
	UsersByAccount(ctx context.Context, account uuid.UUID) ([]domain.User, error)
	PermissionsForUsers(ctx context.Context, users []uuid.UUID) ([]domain.Permission, error)
	CreatePermission(ctx context.Context, perm *domain.Permission) error
	CreateProject(ctx context.Context, project *domain.Project) error
	CreateSession(ctx context.Context, session *domain.Session) error
	SessionByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	InvalidateSession(ctx context.Context, id uuid.UUID) error
	InvalidateAccountSessions(ctx context.Context, account uuid.UUID) ([]domain.Session, error)
}

type RepositoryImpl struct {
	db *gorm.DB
}

// NewRepository creates a new identity repository
func NewRepository(db *gorm.DB) Repository {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	var account domain.Account
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *RepositoryImpl) FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	err := r.db.WithContext(ctx).Where("account = ?", id).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *RepositoryImpl) FindUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).Where(`"user" = ?`, id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateAccountWithUser writes the account and its primary user atomically
func (r *RepositoryImpl) CreateAccountWithUser(ctx context.Context, account *domain.Account, user *domain.User) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(account).Error; err != nil {
			return err
		}
		return tx.Create(user).Error
	})
}

func (r *RepositoryImpl) UsersByAccount(ctx context.Context, account uuid.UUID) ([]domain.User, error) {
	var users []domain.User
	err := r.db.WithContext(ctx).
		Where("account = ?", account).
		Order("seqno ASC").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// PermissionsForUsers returns the permission log for a set of users in
// replay order. Submission time breaks before seqno so replicated rows
// replay the same everywhere.
func (r *RepositoryImpl) PermissionsForUsers(ctx context.Context, users []uuid.UUID) ([]domain.Permission, error) {
	if len(users) == 0 {
		return nil, nil
	}
	var perms []domain.Permission
	err := r.db.WithContext(ctx).
		Where(`"user" IN ?`, users).
		Order("submissiontime ASC, seqno ASC").
		Find(&perms).Error
	if err != nil {
		return nil, err
	}
	return perms, nil
}

func (r *RepositoryImpl) CreatePermission(ctx context.Context, perm *domain.Permission) error {
	return r.db.WithContext(ctx).Create(perm).Error
}

func (r *RepositoryImpl) CreateProject(ctx context.Context, project *domain.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

func (r *RepositoryImpl) CreateSession(ctx context.Context, session *domain.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *RepositoryImpl) SessionByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	var session domain.Session
	err := r.db.WithContext(ctx).Where("session = ?", id).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *RepositoryImpl) InvalidateSession(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("session = ?", id).
		Update("valid", false).Error
}

// InvalidateAccountSessions flips every live session of an account and
// returns the sessions it touched, so each can be announced.
func (r *RepositoryImpl) InvalidateAccountSessions(ctx context.Context, account uuid.UUID) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account = ? AND valid", account).Find(&sessions).Error; err != nil {
			return err
		}
		if len(sessions) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, len(sessions))
		for i, s := range sessions {
			ids[i] = s.Session
		}
		return tx.Model(&domain.Session{}).
			Where("session IN ?", ids).
			Update("valid", false).Error
	})
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		sessions[i].Valid = false
	}
	return sessions, nil
}
