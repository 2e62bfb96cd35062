package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bayy420-999/whatsapp-sender/internal/domain"
)

// jsonColumn round-trips arbitrary JSON through a jsonb column.
type jsonColumn []byte

func (j jsonColumn) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "null", nil
	}
	return string(j), nil
}

func (j *jsonColumn) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		*j = append((*j)[:0], v...)
		return nil
	case string:
		*j = jsonColumn(v)
		return nil
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}

// SessionModel is the persistence model for the bulk_send_sessions table.
type SessionModel struct {
	ID                string               `gorm:"type:varchar(64);primaryKey"`
	StartTime         time.Time            `gorm:"type:timestamptz;not null;index"`
	EndTime           *time.Time           `gorm:"type:timestamptz"`
	TotalContacts     int                  `gorm:"not null"`
	CompletedContacts int                  `gorm:"not null"`
	FailedContacts    int                  `gorm:"not null"`
	PendingContacts   int                  `gorm:"not null"`
	Status            domain.SessionStatus `gorm:"type:varchar(20);not null"`
	Results           jsonColumn           `gorm:"type:jsonb;not null"`
	DelaySettings     jsonColumn           `gorm:"type:jsonb;not null"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (SessionModel) TableName() string {
	return "bulk_send_sessions"
}

func sessionModelFromDomain(s *domain.BulkSendSession) (*SessionModel, error) {
	if s == nil {
		return nil, nil
	}

	results := s.Results
	if results == nil {
		results = []domain.SendResult{}
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session results: %w", err)
	}
	settingsJSON, err := json.Marshal(s.DelaySettings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal delay settings: %w", err)
	}

	return &SessionModel{
		ID:                s.ID,
		StartTime:         s.StartTime,
		EndTime:           s.EndTime,
		TotalContacts:     s.TotalContacts,
		CompletedContacts: s.CompletedContacts,
		FailedContacts:    s.FailedContacts,
		PendingContacts:   s.PendingContacts,
		Status:            s.Status,
		Results:           resultsJSON,
		DelaySettings:     settingsJSON,
	}, nil
}

func sessionModelToDomain(m *SessionModel) (*domain.BulkSendSession, error) {
	if m == nil {
		return nil, nil
	}

	var results []domain.SendResult
	if len(m.Results) > 0 {
		if err := json.Unmarshal(m.Results, &results); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session results: %w", err)
		}
	}
	var settings domain.DelaySettings
	if len(m.DelaySettings) > 0 {
		if err := json.Unmarshal(m.DelaySettings, &settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal delay settings: %w", err)
		}
	}

	return &domain.BulkSendSession{
		ID:                m.ID,
		StartTime:         m.StartTime,
		EndTime:           m.EndTime,
		TotalContacts:     m.TotalContacts,
		CompletedContacts: m.CompletedContacts,
		FailedContacts:    m.FailedContacts,
		PendingContacts:   m.PendingContacts,
		Results:           results,
		Status:            m.Status,
		DelaySettings:     settings,
	}, nil
}
