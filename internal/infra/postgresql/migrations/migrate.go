package migrations

import (
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// bulkSendSession is a frozen copy of the session row shape at migration
// time. The live model lives in the store package; migrations keep their own
// copy so later model changes cannot rewrite history.
type bulkSendSession struct {
	ID                string `gorm:"primaryKey;size:64"`
	StartTime         time.Time
	EndTime           *time.Time
	TotalContacts     int
	CompletedContacts int
	FailedContacts    int
	PendingContacts   int
	Results           string `gorm:"type:jsonb"`
	Status            string `gorm:"size:20"`
	DelaySettings     string `gorm:"type:jsonb"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (bulkSendSession) TableName() string { return "bulk_send_sessions" }

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_bulk_send_sessions",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&bulkSendSession{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_bulk_send_sessions_start_time ON bulk_send_sessions (start_time DESC)`,
					`CREATE INDEX IF NOT EXISTS idx_bulk_send_sessions_status ON bulk_send_sessions (status)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&bulkSendSession{})
			},
		},
	})

	return m.Migrate()
}
