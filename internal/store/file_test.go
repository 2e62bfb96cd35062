package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/bayy420-999/whatsapp-sender/internal/domain"
)

func sampleSession(id string, start time.Time) *domain.BulkSendSession {
	return &domain.BulkSendSession{
		ID:                id,
		StartTime:         start,
		TotalContacts:     2,
		CompletedContacts: 1,
		FailedContacts:    1,
		Results: []domain.SendResult{
			{Contact: domain.Contact{Name: "A", Phone: "0811"}, Template: "promo", Status: domain.ResultStatusSuccess, Timestamp: start, MessageID: "m1"},
			{Contact: domain.Contact{Name: "B", Phone: "0812"}, Template: "promo", Status: domain.ResultStatusFailed, Timestamp: start, Error: "blocked"},
		},
		Status:        domain.SessionStatusCompleted,
		DelaySettings: domain.DelaySettings{
			MinDelay: 3,
			MaxDelay: 8,
			Rules:    []domain.DelayRule{{Kind: domain.RuleKindEveryNMessages, EveryN: 10, Min: 120, Max: 300}},
		},
	}
}

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	fileStore, err := NewFileStore(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return fileStore
}

func TestFileStore_SaveGetRoundTrip(t *testing.T) {
	t.Parallel()

	fileStore := newTestFileStore(t)
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	session := sampleSession("session_1_aaaa", start)

	if err := fileStore.Save(context.Background(), session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := fileStore.Get(context.Background(), "session_1_aaaa")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.ID != session.ID || got.Status != session.Status {
		t.Fatalf("got %+v, want %+v", got, session)
	}
	if len(got.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(got.Results))
	}
	if got.Results[1].Error != "blocked" {
		t.Fatalf("result error = %q, want blocked", got.Results[1].Error)
	}
	if !reflect.DeepEqual(got.DelaySettings, session.DelaySettings) {
		t.Fatalf("delay settings = %+v, want %+v", got.DelaySettings, session.DelaySettings)
	}
	if !got.CountersConsistent() {
		t.Fatal("expected consistent counters after round trip")
	}
}

func TestFileStore_SaveOverwrites(t *testing.T) {
	t.Parallel()

	fileStore := newTestFileStore(t)
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	session := sampleSession("session_2_bbbb", start)

	if err := fileStore.Save(context.Background(), session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	session.Status = domain.SessionStatusInterrupted
	if err := fileStore.Save(context.Background(), session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := fileStore.Get(context.Background(), "session_2_bbbb")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.SessionStatusInterrupted {
		t.Fatalf("status = %q, want interrupted", got.Status)
	}
}

func TestFileStore_GetMissing(t *testing.T) {
	t.Parallel()

	fileStore := newTestFileStore(t)
	if _, err := fileStore.Get(context.Background(), "session_0_none"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestFileStore_LoadAllNewestFirst(t *testing.T) {
	t.Parallel()

	fileStore := newTestFileStore(t)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"session_1_old", "session_2_mid", "session_3_new"} {
		session := sampleSession(id, base.Add(time.Duration(i)*time.Hour))
		if err := fileStore.Save(context.Background(), session); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	sessions, err := fileStore.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("sessions = %d, want 3", len(sessions))
	}
	if sessions[0].ID != "session_3_new" || sessions[2].ID != "session_1_old" {
		t.Fatalf("order = %s, %s, %s; want newest first", sessions[0].ID, sessions[1].ID, sessions[2].ID)
	}
}

func TestFileStore_LoadAllSkipsCorruptRecords(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fileStore, err := NewFileStore(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	session := sampleSession("session_1_good", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	if err := fileStore.Save(context.Background(), session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "session_2_bad.json"), []byte("{torn"), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sessions, err := fileStore.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "session_1_good" {
		t.Fatalf("sessions = %+v, want only the readable record", sessions)
	}
}

func TestFileStore_Delete(t *testing.T) {
	t.Parallel()

	fileStore := newTestFileStore(t)
	session := sampleSession("session_1_gone", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	if err := fileStore.Save(context.Background(), session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := fileStore.Delete(context.Background(), "session_1_gone"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := fileStore.Get(context.Background(), "session_1_gone"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if err := fileStore.Delete(context.Background(), "session_1_gone"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound on second delete", err)
	}
}

func TestFileStore_ExportAll(t *testing.T) {
	t.Parallel()

	fileStore := newTestFileStore(t)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"session_1_a", "session_2_b"} {
		if err := fileStore.Save(context.Background(), sampleSession(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	exportPath := filepath.Join(t.TempDir(), "export.json")
	if err := fileStore.ExportAll(context.Background(), exportPath); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var exported []domain.BulkSendSession
	if err := json.Unmarshal(data, &exported); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exported) != 2 {
		t.Fatalf("exported = %d sessions, want 2", len(exported))
	}
	if exported[0].ID != "session_2_b" {
		t.Fatalf("first exported = %s, want the newest", exported[0].ID)
	}
}

func TestSessionModelRoundTrip(t *testing.T) {
	t.Parallel()

	session := sampleSession("session_9_zzzz", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))

	model, err := sessionModelFromDomain(session)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model.ID != session.ID {
		t.Fatalf("model id = %q, want %q", model.ID, session.ID)
	}

	back, err := sessionModelToDomain(model)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back.Status != session.Status || len(back.Results) != len(session.Results) {
		t.Fatalf("round trip mismatch: %+v", back)
	}
	if !reflect.DeepEqual(back.DelaySettings, session.DelaySettings) {
		t.Fatalf("delay settings = %+v, want %+v", back.DelaySettings, session.DelaySettings)
	}
	if !back.CountersConsistent() {
		t.Fatal("expected consistent counters after round trip")
	}
}
