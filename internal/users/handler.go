package users

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/brightkind/clinic-platform/internal/auth"
	"github.com/brightkind/clinic-platform/internal/compliance"
	"github.com/brightkind/clinic-platform/pkg/logging"
)

// Handler exposes the staff directory HTTP surface. Mutations require a role
// that can manage users; reads are open to all authenticated staff.
type Handler struct {
	repo   Repository
	audit  *compliance.AuditService
	logger *logging.Logger
	now    func() time.Time
}

func NewHandler(repo Repository, audit *compliance.AuditService, logger *logging.Logger) *Handler {
	if repo == nil {
		panic("users: repository cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, audit: audit, logger: logger, now: time.Now}
}

type upsertRequest struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Title  string `json:"title"`
	Active *bool  `json:"active"`
}

// Create handles POST /api/users.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.requireManager(w, r) {
		return
	}
	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		http.Error(w, ErrMissingName.Error(), http.StatusBadRequest)
		return
	}

	now := h.now().UTC()
	u := &User{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Email:     req.Email,
		Role:      auth.ParseRole(req.Role),
		Title:     req.Title,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.repo.Put(r.Context(), u); err != nil {
		h.logger.Error("user create failed", "error", err)
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}
	h.audit.Record(r.Context(), compliance.ActionCreate, "user", u.ID, u.Name)
	writeJSON(w, http.StatusCreated, u)
}

// Update handles PUT /api/users/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.requireManager(w, r) {
		return
	}
	id := chi.URLParam(r, "id")
	u, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		h.logger.Error("user lookup failed", "id", id, "error", err)
		http.Error(w, "Failed to load user", http.StatusInternalServerError)
		return
	}

	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name != "" {
		u.Name = req.Name
	}
	if req.Email != "" {
		u.Email = req.Email
	}
	if req.Role != "" {
		u.Role = auth.ParseRole(req.Role)
	}
	if req.Title != "" {
		u.Title = req.Title
	}
	if req.Active != nil {
		u.Active = *req.Active
	}
	u.UpdatedAt = h.now().UTC()

	if err := h.repo.Put(r.Context(), u); err != nil {
		h.logger.Error("user update failed", "id", id, "error", err)
		http.Error(w, "Failed to update user", http.StatusInternalServerError)
		return
	}
	h.audit.Record(r.Context(), compliance.ActionUpdate, "user", u.ID, u.Name)
	writeJSON(w, http.StatusOK, u)
}

// Delete handles DELETE /api/users/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.requireManager(w, r) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		h.logger.Error("user delete failed", "id", id, "error", err)
		http.Error(w, "Failed to delete user", http.StatusInternalServerError)
		return
	}
	h.audit.Record(r.Context(), compliance.ActionDelete, "user", id, "")
	w.WriteHeader(http.StatusNoContent)
}

// Get handles GET /api/users/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	u, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		h.logger.Error("user lookup failed", "id", id, "error", err)
		http.Error(w, "Failed to load user", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// List handles GET /api/users.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("user list failed", "error", err)
		http.Error(w, "Failed to list users", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// Me handles GET /api/users/me, returning the caller's resolved identity.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

func (h *Handler) requireManager(w http.ResponseWriter, r *http.Request) bool {
	identity, _ := auth.IdentityFromContext(r.Context())
	if !identity.Role.CanManageUsers() {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
