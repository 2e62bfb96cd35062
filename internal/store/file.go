package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/bayy420-999/whatsapp-sender/internal/domain"
)

const sessionFileExt = ".json"

// FileStore keeps one JSON document per session id in a directory. Writes go
// through a temp file and rename, so a crash never leaves a torn snapshot.
type FileStore struct {
	dir    string
	logger *zap.Logger
}

func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("%w: store directory is required for the file driver", domain.ErrValidation)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FileStore{dir: dir, logger: logger}, nil
}

func (s *FileStore) Save(_ context.Context, session *domain.BulkSendSession) error {
	if session == nil || strings.TrimSpace(session.ID) == "" {
		return fmt.Errorf("%w: session with an id is required", domain.ErrValidation)
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", session.ID, err)
	}
	return writeFileAtomic(s.path(session.ID), data)
}

func (s *FileStore) Get(_ context.Context, id string) (*domain.BulkSendSession, error) {
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var session domain.BulkSendSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", id, err)
	}
	return &session, nil
}

func (s *FileStore) LoadAll(ctx context.Context) ([]domain.BulkSendSession, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	sessions := make([]domain.BulkSendSession, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), sessionFileExt) {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), sessionFileExt)
		session, err := s.Get(ctx, id)
		if err != nil {
			// One unreadable record should not hide the rest.
			s.logger.Warn("skipping unreadable session record",
				zap.String("sessionId", id),
				zap.Error(err),
			)
			continue
		}
		sessions = append(sessions, *session)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
	return sessions, nil
}

func (s *FileStore) Delete(_ context.Context, id string) error {
	err := os.Remove(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return domain.ErrNotFound
	}
	return err
}

func (s *FileStore) ExportAll(ctx context.Context, path string) error {
	sessions, err := s.LoadAll(ctx)
	if err != nil {
		return err
	}
	return exportSessions(path, sessions)
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+sessionFileExt)
}

// exportSessions writes the consolidated backup artifact shared by all
// drivers: a single JSON array, newest session first.
func exportSessions(path string, sessions []domain.BulkSendSession) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: export path is required", domain.ErrValidation)
	}
	if sessions == nil {
		sessions = []domain.BulkSendSession{}
	}

	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sessions export: %w", err)
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

var _ Store = (*FileStore)(nil)
