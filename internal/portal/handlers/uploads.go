package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cloudintake/sentinel/internal/db/models"
	"github.com/cloudintake/sentinel/internal/orchestrator"
)

type submitUploadRequest struct {
	UserID     string `json:"user_id"`
	Provider   string `json:"provider"`
	FileName   string `json:"file_name"`
	SizeBytes  int64  `json:"size_bytes"`
	MimeType   string `json:"mime_type"`
	SourcePath string `json:"source_path"`
}

// SubmitUploadHandler accepts a new upload task from the intake portal and
// hands it to the worker queue.
func SubmitUploadHandler(gdb *gorm.DB, enqueue func(taskID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitUploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.UserID == "" || req.Provider == "" || req.FileName == "" {
			http.Error(w, "user_id, provider and file_name are required", http.StatusBadRequest)
			return
		}

		task := models.UploadTask{
			ID:         uuid.New().String(),
			UserID:     req.UserID,
			Provider:   req.Provider,
			FileName:   req.FileName,
			SizeBytes:  req.SizeBytes,
			MimeType:   req.MimeType,
			SourcePath: req.SourcePath,
		}
		if err := gdb.Create(&task).Error; err != nil {
			http.Error(w, "Failed to create task: "+err.Error(), http.StatusInternalServerError)
			return
		}

		enqueue(task.ID)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"task_id": task.ID,
			"status":  "queued",
		})
	}
}

type uploadView struct {
	ID                   string `json:"id"`
	FileName             string `json:"file_name"`
	ProviderFileID       string `json:"provider_file_id,omitempty"`
	ErrorType            string `json:"error_type,omitempty"`
	UserMessage          string `json:"user_message,omitempty"`
	RequiresReconnection bool   `json:"requires_reconnection"`
	Attempts             int    `json:"attempts"`
}

// ListUploadsHandler returns the user's upload tasks with their rendered
// error context for the dashboard.
func ListUploadsHandler(gdb *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user")
		prov := r.URL.Query().Get("provider")
		if userID == "" || prov == "" {
			http.Error(w, "user and provider query parameters are required", http.StatusBadRequest)
			return
		}

		var tasks []models.UploadTask
		if err := gdb.Where("user_id = ? AND provider = ?", userID, prov).
			Order("created_at DESC").Find(&tasks).Error; err != nil {
			http.Error(w, "Failed to list tasks: "+err.Error(), http.StatusInternalServerError)
			return
		}

		views := make([]uploadView, 0, len(tasks))
		for _, task := range tasks {
			views = append(views, uploadView{
				ID:                   task.ID,
				FileName:             task.FileName,
				ProviderFileID:       task.ProviderFileID,
				ErrorType:            task.ErrorType,
				UserMessage:          task.ErrorMessage,
				RequiresReconnection: task.RequiresReconnection,
				Attempts:             task.Attempts,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"uploads": views,
			"count":   len(views),
		})
	}
}

type bulkRetryRequest struct {
	UserID   string `json:"user_id"`
	Provider string `json:"provider"`
}

// BulkRetryHandler requeues every blocked upload for a pair on explicit user
// request.
func BulkRetryHandler(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkRetryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.UserID == "" || req.Provider == "" {
			http.Error(w, "user_id and provider are required", http.StatusBadRequest)
			return
		}

		requeued, err := orch.BulkRetry(r.Context(), req.UserID, req.Provider)
		if err != nil {
			http.Error(w, "Bulk retry failed: "+err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"requeued_count": requeued,
		})
	}
}
