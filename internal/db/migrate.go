package db

import (
	"filmware-sync/internal/domain"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Migrate runs database migrations
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&domain.Account{},
		&domain.User{},
		&domain.Project{},
		&domain.Permission{},
		&domain.Session{},
		&domain.Report{},
		&domain.Topic{},
		&domain.Comment{},
	)
	if err != nil {
		return err
	}

	log.Info().Msg("database schema migrated successfully")
	return nil
}
