package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bayy420-999/whatsapp-sender/internal/domain"
)

// GormStore persists sessions in Postgres, one row per session.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Save(ctx context.Context, session *domain.BulkSendSession) error {
	if session == nil {
		return fmt.Errorf("%w: session is required", domain.ErrValidation)
	}

	model, err := sessionModelFromDomain(session)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(model).Error
}

func (s *GormStore) Get(ctx context.Context, id string) (*domain.BulkSendSession, error) {
	var model SessionModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sessionModelToDomain(&model)
}

func (s *GormStore) LoadAll(ctx context.Context) ([]domain.BulkSendSession, error) {
	var models []SessionModel
	err := s.db.WithContext(ctx).
		Order("start_time DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	sessions := make([]domain.BulkSendSession, 0, len(models))
	for i := range models {
		session, err := sessionModelToDomain(&models[i])
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, nil
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&SessionModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *GormStore) ExportAll(ctx context.Context, path string) error {
	sessions, err := s.LoadAll(ctx)
	if err != nil {
		return err
	}
	return exportSessions(path, sessions)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ Store = (*GormStore)(nil)
