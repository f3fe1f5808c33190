package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/cloudintake/sentinel/internal/auth/token"
	"github.com/cloudintake/sentinel/internal/classify"
	"github.com/cloudintake/sentinel/internal/config"
	"github.com/cloudintake/sentinel/internal/db/models"
	"github.com/cloudintake/sentinel/internal/health"
	"github.com/cloudintake/sentinel/internal/notify"
	"github.com/cloudintake/sentinel/internal/orchestrator"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := gdb.AutoMigrate(&models.Account{}, &models.ConnectionHealth{}, &models.UploadTask{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return gdb
}

func TestSubmitUploadHandler(t *testing.T) {
	gdb := newTestDB(t)

	var enqueued []string
	handler := SubmitUploadHandler(gdb, func(taskID string) { enqueued = append(enqueued, taskID) })

	body := `{"user_id":"u1","provider":"google_drive","file_name":"report.pdf","size_bytes":2048,"mime_type":"application/pdf","source_path":"/staged/abc"}`
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "queued" || resp["task_id"] == "" {
		t.Fatalf("response = %v", resp)
	}
	if len(enqueued) != 1 || enqueued[0] != resp["task_id"] {
		t.Fatalf("enqueued = %v, want the new task", enqueued)
	}

	var task models.UploadTask
	if err := gdb.First(&task, "id = ?", resp["task_id"]).Error; err != nil {
		t.Fatalf("task not persisted: %v", err)
	}
	if task.FileName != "report.pdf" || task.SizeBytes != 2048 {
		t.Fatalf("task = %+v", task)
	}
}

func TestSubmitUploadHandlerRejectsIncomplete(t *testing.T) {
	gdb := newTestDB(t)
	handler := SubmitUploadHandler(gdb, func(string) {})

	tests := []struct {
		name string
		body string
	}{
		{name: "bad json", body: "{"},
		{name: "missing user", body: `{"provider":"google_drive","file_name":"a.pdf"}`},
		{name: "missing file name", body: `{"user_id":"u1","provider":"google_drive"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler(w, req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestListUploadsHandler(t *testing.T) {
	gdb := newTestDB(t)
	gdb.Create(&models.UploadTask{
		ID: "t1", UserID: "u1", Provider: "google_drive", FileName: "a.pdf",
		ErrorType:            string(classify.KindTokenExpired),
		ErrorMessage:         classify.KindTokenExpired.Policy().UserMessage,
		RequiresReconnection: true,
		Attempts:             2,
	})
	gdb.Create(&models.UploadTask{
		ID: "t2", UserID: "u1", Provider: "google_drive", FileName: "b.pdf",
		ProviderFileID: "drive-1",
	})
	gdb.Create(&models.UploadTask{ID: "t3", UserID: "u2", Provider: "google_drive", FileName: "c.pdf"})

	handler := ListUploadsHandler(gdb)
	req := httptest.NewRequest(http.MethodGet, "/api/uploads?user=u1&provider=google_drive", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Uploads []struct {
			ID                   string `json:"id"`
			ErrorType            string `json:"error_type"`
			UserMessage          string `json:"user_message"`
			RequiresReconnection bool   `json:"requires_reconnection"`
		} `json:"uploads"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("count = %d, want 2 (other user's task excluded)", resp.Count)
	}
	for _, view := range resp.Uploads {
		if view.ID == "t1" {
			if view.ErrorType != string(classify.KindTokenExpired) || view.UserMessage == "" || !view.RequiresReconnection {
				t.Fatalf("blocked task view = %+v", view)
			}
		}
	}
}

func TestListUploadsHandlerRequiresParams(t *testing.T) {
	handler := ListUploadsHandler(newTestDB(t))
	req := httptest.NewRequest(http.MethodGet, "/api/uploads?user=u1", nil)
	w := httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestBulkRetryHandler(t *testing.T) {
	gdb := newTestDB(t)
	gdb.Create(&models.UploadTask{
		ID: "t1", UserID: "u1", Provider: "google_drive", FileName: "a.pdf",
		ErrorType: string(classify.KindFileTooLarge),
	})

	tracker := health.NewTracker(gdb)
	tokens := token.NewManager(gdb, tracker)
	notifier := notify.NewDispatcher(notify.LogTransport{}, time.Minute, "http://localhost")
	orch := orchestrator.New(gdb, tokens, tracker, notifier, config.Default())

	var enqueued []string
	orch.SetEnqueue(func(taskID string) { enqueued = append(enqueued, taskID) })

	handler := BulkRetryHandler(orch)
	req := httptest.NewRequest(http.MethodPost, "/api/uploads/retry",
		strings.NewReader(`{"user_id":"u1","provider":"google_drive"}`))
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["requeued_count"] != 1 || len(enqueued) != 1 {
		t.Fatalf("requeued = %v, enqueued = %v", resp, enqueued)
	}
}

func TestHealthStatusHandler(t *testing.T) {
	gdb := newTestDB(t)
	tracker := health.NewTracker(gdb)
	if _, err := tracker.RecordFailure("u1", "google_drive", classify.KindTokenExpired, "revoked"); err != nil {
		t.Fatalf("record failure: %v", err)
	}

	handler := HealthStatusHandler(tracker)
	req := httptest.NewRequest(http.MethodGet, "/api/health?user=u1&provider=google_drive", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var snap struct {
		Status               string `json:"status"`
		RequiresReconnection bool   `json:"requires_reconnection"`
		ConsecutiveFailures  int    `json:"consecutive_failures"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if snap.Status != string(models.ConsolidatedAuthRequired) || !snap.RequiresReconnection || snap.ConsecutiveFailures != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestDisconnectHandler(t *testing.T) {
	gdb := newTestDB(t)
	gdb.Create(&models.Account{
		ID: "acc-1", UserID: "u1", Provider: "google_drive",
		AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour),
	})

	tracker := health.NewTracker(gdb)
	tokens := token.NewManager(gdb, tracker)

	handler := DisconnectHandler(tokens)
	req := httptest.NewRequest(http.MethodDelete, "/api/connections",
		strings.NewReader(`{"user_id":"u1","provider":"google_drive"}`))
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var count int64
	gdb.Model(&models.Account{}).Count(&count)
	if count != 0 {
		t.Fatalf("account still stored after disconnect")
	}
}

func TestRefreshHandlerStatusMapping(t *testing.T) {
	gdb := newTestDB(t)
	tracker := health.NewTracker(gdb)
	tokens := token.NewManager(gdb, tracker)

	handler := RefreshHandler(tokens)

	// No account: 404.
	req := httptest.NewRequest(http.MethodPost, "/api/refresh",
		strings.NewReader(`{"user_id":"ghost","provider":"google_drive"}`))
	w := httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for unconnected provider", w.Code)
	}

	// Valid unexpired token: 200 without touching the refresh endpoint.
	gdb.Create(&models.Account{
		ID: "acc-1", UserID: "u1", Provider: "google_drive",
		AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour),
	})
	req = httptest.NewRequest(http.MethodPost, "/api/refresh",
		strings.NewReader(`{"user_id":"u1","provider":"google_drive"}`))
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
}
