package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/bayy420-999/whatsapp-sender/internal/domain"
	"github.com/bayy420-999/whatsapp-sender/internal/engine"
	"github.com/bayy420-999/whatsapp-sender/internal/store"
	"github.com/bayy420-999/whatsapp-sender/internal/transport"
)

// okMessenger acknowledges every send.
type okMessenger struct {
	mu    sync.Mutex
	sends int
}

func (m *okMessenger) SendText(context.Context, string, string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends++
	return "msg-1", nil
}

func (m *okMessenger) SendMedia(context.Context, string, string, string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends++
	return "msg-2", nil
}

type testApp struct {
	app      *fiber.App
	sessions store.Store
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	sessions, err := store.NewFileStore(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	blastEngine, err := engine.New(&okMessenger{}, sessions, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
	defaults := domain.DelaySettings{MinDelay: 1, MaxDelay: 2}
	if err := RegisterSessionRoutes(app, context.Background(), blastEngine, sessions, defaults, zap.NewNop()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return &testApp{app: app, sessions: sessions}
}

func (ta *testApp) request(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ta.app.Test(req, 5000)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return resp.StatusCode, data
}

// waitTerminal polls until the session leaves the running status.
func (ta *testApp) waitTerminal(t *testing.T, id string) domain.BulkSendSession {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		session, err := ta.sessions.Get(context.Background(), id)
		if err == nil && session.Status.IsTerminal() {
			return *session
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session %s never reached a terminal status", id)
	return domain.BulkSendSession{}
}

func blastBody() map[string]any {
	return map[string]any{
		"contacts":  []map[string]string{{"name": "Ana", "phone": "081234567890"}},
		"templates": []map[string]string{{"name": "promo", "content": "hello"}},
	}
}

func TestStartBlast(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)

	status, body := ta.request(t, fiber.MethodPost, "/v1/blasts", blastBody())
	if status != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", status, body)
	}

	var accepted struct {
		SessionID string `json:"sessionId"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(body, &accepted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accepted.SessionID == "" {
		t.Fatal("expected a session id")
	}
	if accepted.Status != "running" {
		t.Fatalf("status = %q, want running", accepted.Status)
	}

	session := ta.waitTerminal(t, accepted.SessionID)
	if session.Status != domain.SessionStatusCompleted {
		t.Fatalf("final status = %q, want completed", session.Status)
	}
	if session.CompletedContacts != 1 {
		t.Fatalf("completed = %d, want 1", session.CompletedContacts)
	}
}

func TestStartBlast_ValidationErrors(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)

	testCases := []struct {
		name string
		body map[string]any
	}{
		{name: "no contacts", body: map[string]any{
			"templates": []map[string]string{{"name": "promo", "content": "hi"}},
		}},
		{name: "no templates", body: map[string]any{
			"contacts": []map[string]string{{"name": "Ana", "phone": "0812"}},
		}},
		{name: "bad delay settings", body: map[string]any{
			"contacts":      []map[string]string{{"name": "Ana", "phone": "0812"}},
			"templates":     []map[string]string{{"name": "promo", "content": "hi"}},
			"delaySettings": map[string]int{"minDelay": 10, "maxDelay": 5},
		}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			status, body := ta.request(t, fiber.MethodPost, "/v1/blasts", tc.body)
			if status != fiber.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", status, body)
			}
		})
	}
}

func TestGetAndListSessions(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)

	status, body := ta.request(t, fiber.MethodPost, "/v1/blasts", blastBody())
	if status != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202", status)
	}
	var accepted struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(body, &accepted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ta.waitTerminal(t, accepted.SessionID)

	status, body = ta.request(t, fiber.MethodGet, "/v1/sessions/"+accepted.SessionID, nil)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	var session domain.BulkSendSession
	if err := json.Unmarshal(body, &session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.ID != accepted.SessionID || len(session.Results) != 1 {
		t.Fatalf("session = %+v", session)
	}

	status, body = ta.request(t, fiber.MethodGet, "/v1/sessions", nil)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	var list struct {
		Data []struct {
			ID      string `json:"id"`
			Status  string `json:"status"`
			Running bool   `json:"running"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].ID != accepted.SessionID {
		t.Fatalf("list = %+v", list)
	}
	if list.Data[0].Running {
		t.Fatal("terminal session should not report running")
	}
}

func TestGetSession_NotFound(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	status, _ := ta.request(t, fiber.MethodGet, "/v1/sessions/session_0_none", nil)
	if status != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
}

func TestDeleteSession(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)

	status, body := ta.request(t, fiber.MethodPost, "/v1/blasts", blastBody())
	if status != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202", status)
	}
	var accepted struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(body, &accepted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ta.waitTerminal(t, accepted.SessionID)

	status, _ = ta.request(t, fiber.MethodDelete, "/v1/sessions/"+accepted.SessionID, nil)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}

	status, _ = ta.request(t, fiber.MethodDelete, "/v1/sessions/"+accepted.SessionID, nil)
	if status != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404 on second delete", status)
	}
}

func TestInterruptSession_NotRunning(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	status, _ := ta.request(t, fiber.MethodPost, "/v1/sessions/session_0_none/interrupt", nil)
	if status != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
}

func TestResumeBlast_NotFound(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	status, _ := ta.request(t, fiber.MethodPost, "/v1/blasts/session_0_none/resume", blastBody())
	if status != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
}

func TestResumeBlast_ExhaustedReturnsPersistedID(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)

	status, body := ta.request(t, fiber.MethodPost, "/v1/blasts", blastBody())
	if status != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202", status)
	}
	var accepted struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(body, &accepted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ta.waitTerminal(t, accepted.SessionID)

	// Every contact already has a result; resume has nothing to do.
	status, body = ta.request(t, fiber.MethodPost, "/v1/blasts/"+accepted.SessionID+"/resume", blastBody())
	if status != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", status, body)
	}
	var resumed struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(body, &resumed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resumed.SessionID != accepted.SessionID {
		t.Fatalf("session id = %q, want the original %q", resumed.SessionID, accepted.SessionID)
	}
}

func TestExportSessions(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)

	status, body := ta.request(t, fiber.MethodPost, "/v1/blasts", blastBody())
	if status != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202", status)
	}
	var accepted struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(body, &accepted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ta.waitTerminal(t, accepted.SessionID)

	exportPath := filepath.Join(t.TempDir(), "export.json")
	status, _ = ta.request(t, fiber.MethodPost, "/v1/sessions/export", map[string]string{"path": exportPath})
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}

	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var exported []domain.BulkSendSession
	if err := json.Unmarshal(data, &exported); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exported) != 1 {
		t.Fatalf("exported = %d sessions, want 1", len(exported))
	}

	status, _ = ta.request(t, fiber.MethodPost, "/v1/sessions/export", map[string]string{"path": "  "})
	if status != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for empty path", status)
	}
}
