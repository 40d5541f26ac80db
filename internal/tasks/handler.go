package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/brightkind/clinic-platform/internal/auth"
	"github.com/brightkind/clinic-platform/internal/compliance"
	"github.com/brightkind/clinic-platform/pkg/logging"
)

// Notifier lets the handler tell a staff member about a new assignment.
// May be nil when email delivery is not configured.
type Notifier interface {
	NotifyTaskAssigned(ctx context.Context, assigneeID, assignerName, title string, dueAt *time.Time) error
}

// Handler exposes the task HTTP surface.
type Handler struct {
	repo     Repository
	audit    *compliance.AuditService
	notifier Notifier
	logger   *logging.Logger
	now      func() time.Time
}

func NewHandler(repo Repository, audit *compliance.AuditService, notifier Notifier, logger *logging.Logger) *Handler {
	if repo == nil {
		panic("tasks: repository cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, audit: audit, notifier: notifier, logger: logger, now: time.Now}
}

// Create handles POST /api/tasks.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := h.now().UTC()
	task := &Task{
		ID:                uuid.NewString(),
		Title:             req.Title,
		Description:       req.Description,
		AssigneeID:        req.AssigneeID,
		ClientID:          req.ClientID,
		Status:            StatusOpen,
		IsSystemGenerated: req.IsSystemGenerated,
		DueAt:             req.DueAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	var assignerName string
	if id, ok := auth.IdentityFromContext(r.Context()); ok {
		task.CreatedBy = id.UserID
		assignerName = id.Name
	}
	if err := h.repo.Create(r.Context(), task); err != nil {
		h.logger.Error("task create failed", "error", err)
		http.Error(w, "Failed to create task", http.StatusInternalServerError)
		return
	}
	h.audit.Record(r.Context(), compliance.ActionCreate, "task", task.ID, task.Title)
	h.notifyAssigned(r.Context(), task, assignerName)
	writeJSON(w, http.StatusCreated, task)
}

// Update handles PUT /api/tasks/{id}. Moving a task to completed stamps
// CompletedAt; reopening clears it.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Task not found", http.StatusNotFound)
			return
		}
		h.logger.Error("task lookup failed", "id", id, "error", err)
		http.Error(w, "Failed to load task", http.StatusInternalServerError)
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	prevAssignee := task.AssigneeID
	if req.Title != "" {
		task.Title = req.Title
	}
	if req.Description != "" {
		task.Description = req.Description
	}
	if req.AssigneeID != "" {
		task.AssigneeID = req.AssigneeID
	}
	if req.DueAt != nil {
		task.DueAt = req.DueAt
	}
	if req.Status != "" {
		if !ValidStatus(req.Status) {
			http.Error(w, ErrInvalidStatus.Error(), http.StatusBadRequest)
			return
		}
		if req.Status == StatusCompleted && task.Status != StatusCompleted {
			done := h.now().UTC()
			task.CompletedAt = &done
		}
		if req.Status == StatusOpen {
			task.CompletedAt = nil
		}
		task.Status = req.Status
	}

	task.UpdatedAt = h.now().UTC()
	if err := h.repo.Update(r.Context(), task); err != nil {
		h.logger.Error("task update failed", "id", id, "error", err)
		http.Error(w, "Failed to update task", http.StatusInternalServerError)
		return
	}
	h.audit.Record(r.Context(), compliance.ActionUpdate, "task", task.ID, string(task.Status))
	if task.AssigneeID != prevAssignee {
		assignerName := ""
		if id, ok := auth.IdentityFromContext(r.Context()); ok {
			assignerName = id.Name
		}
		h.notifyAssigned(r.Context(), task, assignerName)
	}
	writeJSON(w, http.StatusOK, task)
}

// Delete handles DELETE /api/tasks/{id}. System-generated tasks are
// protected: only a Super Admin may remove one, everyone else gets 403 and
// the task survives.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Task not found", http.StatusNotFound)
			return
		}
		h.logger.Error("task lookup failed", "id", id, "error", err)
		http.Error(w, "Failed to load task", http.StatusInternalServerError)
		return
	}

	if task.IsSystemGenerated {
		identity, _ := auth.IdentityFromContext(r.Context())
		if !identity.Role.CanDeleteSystemTask() {
			http.Error(w, "Only a Super Admin can delete a system-generated task", http.StatusForbidden)
			return
		}
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		h.logger.Error("task delete failed", "id", id, "error", err)
		http.Error(w, "Failed to delete task", http.StatusInternalServerError)
		return
	}
	h.audit.Record(r.Context(), compliance.ActionDelete, "task", id, task.Title)
	w.WriteHeader(http.StatusNoContent)
}

// Get handles GET /api/tasks/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Task not found", http.StatusNotFound)
			return
		}
		h.logger.Error("task lookup failed", "id", id, "error", err)
		http.Error(w, "Failed to load task", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// List handles GET /api/tasks. Optional query param: assigneeId.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var (
		items []Task
		err   error
	)
	if assigneeID := r.URL.Query().Get("assigneeId"); assigneeID != "" {
		items, err = h.repo.ListByAssignee(r.Context(), assigneeID)
	} else {
		items, err = h.repo.List(r.Context())
	}
	if err != nil {
		h.logger.Error("task list failed", "error", err)
		http.Error(w, "Failed to list tasks", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// notifyAssigned emails the assignee. Best effort: the task write already
// succeeded, so delivery problems are only logged.
func (h *Handler) notifyAssigned(ctx context.Context, task *Task, assignerName string) {
	if h.notifier == nil || task.AssigneeID == "" || task.AssigneeID == task.CreatedBy {
		return
	}
	if err := h.notifier.NotifyTaskAssigned(ctx, task.AssigneeID, assignerName, task.Title, task.DueAt); err != nil {
		h.logger.Warn("task assignment notification failed", "taskId", task.ID, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
