package reports

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
	"github.com/brightkind/clinic-platform/internal/documents"
	"github.com/brightkind/clinic-platform/pkg/logging"
)

// Handler exposes the progress report HTTP surface.
type Handler struct {
	repo   Repository
	docs   *documents.Service
	audit  *compliance.AuditService
	logger *logging.Logger
	now    func() time.Time
}

func NewHandler(repo Repository, docs *documents.Service, audit *compliance.AuditService, logger *logging.Logger) *Handler {
	if repo == nil {
		panic("reports: repository cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, docs: docs, audit: audit, logger: logger, now: time.Now}
}

// Create handles POST /api/reports. The finished report is mirrored into the
// client's document as an assessment section, best effort.
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
	rp := &Report{
		ID:          uuid.NewString(),
		ClientID:    req.ClientID,
		ClientName:  req.ClientName,
		Title:       req.Title,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		Summary:     req.Summary,
		Goals:       req.Goals,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	identity, _ := auth.IdentityFromContext(r.Context())
	rp.CreatedBy = identity.UserID

	if err := h.repo.Create(r.Context(), rp); err != nil {
		h.logger.Error("report create failed", "error", err)
		http.Error(w, "Failed to create report", http.StatusInternalServerError)
		return
	}
	h.audit.Record(r.Context(), compliance.ActionCreate, "report", rp.ID, rp.Title)

	if h.docs.Enabled() {
		h.docs.AppendBestEffort(r.Context(), documents.AppendRequest{
			ClientID:   rp.ClientID,
			ClientName: rp.ClientName,
			UserID:     identity.UserID,
			UserName:   identity.Name,
			Kind:       documents.SectionAssessment,
			Data: map[string]any{
				"title":   rp.Title,
				"period":  strings.TrimSpace(rp.PeriodStart + " to " + rp.PeriodEnd),
				"summary": rp.Summary,
				"goals":   strings.Join(rp.Goals, "; "),
			},
			OccurredAt: now,
		})
	}

	writeJSON(w, http.StatusCreated, rp)
}

// Update handles PUT /api/reports/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rp, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Report not found", http.StatusNotFound)
			return
		}
		h.logger.Error("report lookup failed", "id", id, "error", err)
		http.Error(w, "Failed to load report", http.StatusInternalServerError)
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title != "" {
		rp.Title = req.Title
	}
	if req.PeriodStart != "" {
		rp.PeriodStart = req.PeriodStart
	}
	if req.PeriodEnd != "" {
		rp.PeriodEnd = req.PeriodEnd
	}
	if req.Summary != "" {
		rp.Summary = req.Summary
	}
	if req.Goals != nil {
		rp.Goals = req.Goals
	}
	rp.UpdatedAt = h.now().UTC()

	if err := h.repo.Update(r.Context(), rp); err != nil {
		h.logger.Error("report update failed", "id", id, "error", err)
		http.Error(w, "Failed to update report", http.StatusInternalServerError)
		return
	}
	h.audit.Record(r.Context(), compliance.ActionUpdate, "report", rp.ID, rp.Title)
	writeJSON(w, http.StatusOK, rp)
}

// Delete handles DELETE /api/reports/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Report not found", http.StatusNotFound)
			return
		}
		h.logger.Error("report delete failed", "id", id, "error", err)
		http.Error(w, "Failed to delete report", http.StatusInternalServerError)
		return
	}
	h.audit.Record(r.Context(), compliance.ActionDelete, "report", id, "")
	w.WriteHeader(http.StatusNoContent)
}

// Get handles GET /api/reports/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rp, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Report not found", http.StatusNotFound)
			return
		}
		h.logger.Error("report lookup failed", "id", id, "error", err)
		http.Error(w, "Failed to load report", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rp)
}

// List handles GET /api/reports?clientId=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		http.Error(w, "clientId is required", http.StatusBadRequest)
		return
	}
	items, err := h.repo.ListByClient(r.Context(), clientID)
	if err != nil {
		h.logger.Error("report list failed", "client_id", clientID, "error", err)
		http.Error(w, "Failed to list reports", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
