// Package store persists full bulk send session snapshots keyed by session
// id. Writes happen after every state transition, so the contract is
// write-heavy and read-rarely; every save overwrites the prior snapshot.
package store

import (
	"context"

	"github.com/bayy420-999/whatsapp-sender/internal/domain"
)

// Store is the durable session persistence port.
type Store interface {
	// Save writes the full session snapshot, replacing any prior version.
	Save(ctx context.Context, session *domain.BulkSendSession) error
	// Get returns one session by id, or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.BulkSendSession, error)
	// LoadAll returns every persisted session, newest StartTime first.
	LoadAll(ctx context.Context) ([]domain.BulkSendSession, error)
	// Delete removes one session permanently, or returns domain.ErrNotFound.
	Delete(ctx context.Context, id string) error
	// ExportAll writes a consolidated snapshot of all sessions to one artifact.
	ExportAll(ctx context.Context, path string) error
	Close() error
}
