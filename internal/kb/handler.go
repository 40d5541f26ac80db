package kb

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/brightkind/clinic-platform/internal/auth"
	"github.com/brightkind/clinic-platform/pkg/logging"
)

// Handler exposes the knowledge base HTTP surface.
type Handler struct {
	repo   Repository
	logger *logging.Logger
	now    func() time.Time
}

func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if repo == nil {
		panic("kb: repository cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger, now: time.Now}
}

type upsertRequest struct {
	Title    string   `json:"title"`
	Category string   `json:"category"`
	Body     string   `json:"body"`
	Tags     []string `json:"tags"`
}

// Create handles POST /api/kb.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		http.Error(w, ErrMissingTitle.Error(), http.StatusBadRequest)
		return
	}

	now := h.now().UTC()
	a := &Article{
		ID:        uuid.NewString(),
		Title:     req.Title,
		Category:  req.Category,
		Body:      req.Body,
		Tags:      req.Tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		a.CreatedBy = identity.UserID
	}
	if err := h.repo.Put(r.Context(), a); err != nil {
		h.logger.Error("article create failed", "error", err)
		http.Error(w, "Failed to create article", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// Update handles PUT /api/kb/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Article not found", http.StatusNotFound)
			return
		}
		h.logger.Error("article lookup failed", "id", id, "error", err)
		http.Error(w, "Failed to load article", http.StatusInternalServerError)
		return
	}

	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title != "" {
		a.Title = req.Title
	}
	if req.Category != "" {
		a.Category = req.Category
	}
	if req.Body != "" {
		a.Body = req.Body
	}
	if req.Tags != nil {
		a.Tags = req.Tags
	}
	a.UpdatedAt = h.now().UTC()

	if err := h.repo.Put(r.Context(), a); err != nil {
		h.logger.Error("article update failed", "id", id, "error", err)
		http.Error(w, "Failed to update article", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Delete handles DELETE /api/kb/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Article not found", http.StatusNotFound)
			return
		}
		h.logger.Error("article delete failed", "id", id, "error", err)
		http.Error(w, "Failed to delete article", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Get handles GET /api/kb/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Article not found", http.StatusNotFound)
			return
		}
		h.logger.Error("article lookup failed", "id", id, "error", err)
		http.Error(w, "Failed to load article", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// List handles GET /api/kb. Optional query params: category, q (matched
// against title and tags, case-insensitive).
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("article list failed", "error", err)
		http.Error(w, "Failed to list articles", http.StatusInternalServerError)
		return
	}

	category := r.URL.Query().Get("category")
	query := strings.ToLower(r.URL.Query().Get("q"))
	if category != "" || query != "" {
		filtered := items[:0]
		for _, a := range items {
			if category != "" && !strings.EqualFold(a.Category, category) {
				continue
			}
			if query != "" && !matchesQuery(&a, query) {
				continue
			}
			filtered = append(filtered, a)
		}
		items = filtered
	}
	writeJSON(w, http.StatusOK, items)
}

func matchesQuery(a *Article, query string) bool {
	if strings.Contains(strings.ToLower(a.Title), query) {
		return true
	}
	for _, tag := range a.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
