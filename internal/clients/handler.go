package clients

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/brightkind/clinic-platform/internal/auth"
	"github.com/brightkind/clinic-platform/internal/compliance"
	"github.com/brightkind/clinic-platform/internal/documents"
	"github.com/brightkind/clinic-platform/pkg/logging"
)

// Handler exposes the client record HTTP surface.
type Handler struct {
	repo   Repository
	docs   *documents.Service
	audit  *compliance.AuditService
	logger *logging.Logger
	now    func() time.Time
}

func NewHandler(repo Repository, docs *documents.Service, audit *compliance.AuditService, logger *logging.Logger) *Handler {
	if repo == nil {
		panic("clients: repository cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:   repo,
		docs:   docs,
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
}

// Create handles POST /api/clients. The client's document is generated as a
// side effect when the documents integration is configured; a document
// failure never fails the record creation.
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
	c := &Client{
		ID:                 uuid.NewString(),
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		Email:              req.Email,
		Phone:              req.Phone,
		DateOfBirth:        req.DateOfBirth,
		Address:            req.Address,
		Status:             req.Status,
		PrimaryClinicianID: req.PrimaryClinicianID,
		TeamClinicianIDs:   req.TeamClinicianIDs,
		EmergencyContact:   req.EmergencyContact,
		Demographics:       req.Demographics,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	identity, _ := auth.IdentityFromContext(r.Context())
	c.CreatedBy = identity.UserID

	if err := h.repo.Create(r.Context(), c); err != nil {
		h.logger.Error("client create failed", "error", err)
		http.Error(w, "Failed to create client", http.StatusInternalServerError)
		return
	}
	h.audit.Record(r.Context(), compliance.ActionCreate, "client", c.ID, c.FullName())

	if h.docs.Enabled() {
		if doc, err := h.docs.Ensure(r.Context(), c.ID, c.FullName(), identity.UserID); err != nil {
			h.logger.Warn("client document generation failed", "client_id", c.ID, "error", err)
		} else {
			c.DocumentID = doc.DocumentID
			c.DocumentURL = doc.DocumentURL
			if err := h.repo.SetDocument(r.Context(), c.ID, doc.DocumentID, doc.DocumentURL); err != nil {
				h.logger.Warn("persisting client document link failed", "client_id", c.ID, "error", err)
			}
		}
		if len(c.Demographics) > 0 {
			h.appendDemographics(r, c, identity)
		}
	}

	writeJSON(w, http.StatusCreated, c)
}

// Update handles PUT /api/clients/{id}. A demographics change is mirrored
// into the client's document as a new dated section.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Client not found", http.StatusNotFound)
			return
		}
		h.logger.Error("client lookup failed", "id", id, "error", err)
		http.Error(w, "Failed to load client", http.StatusInternalServerError)
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.FirstName != "" {
		c.FirstName = req.FirstName
	}
	if req.LastName != "" {
		c.LastName = req.LastName
	}
	if req.Email != "" {
		c.Email = req.Email
	}
	if req.Phone != "" {
		c.Phone = req.Phone
	}
	if req.DateOfBirth != "" {
		c.DateOfBirth = req.DateOfBirth
	}
	if req.Address != "" {
		c.Address = req.Address
	}
	if req.Status != "" {
		if !ValidStatus(req.Status) {
			http.Error(w, ErrInvalidStatus.Error(), http.StatusBadRequest)
			return
		}
		c.Status = req.Status
	}
	if req.PrimaryClinicianID != "" {
		c.PrimaryClinicianID = req.PrimaryClinicianID
	}
	if req.TeamClinicianIDs != nil {
		c.TeamClinicianIDs = req.TeamClinicianIDs
	}
	if req.EmergencyContact != nil {
		c.EmergencyContact = req.EmergencyContact
	}
	demographicsChanged := req.Demographics != nil
	if demographicsChanged {
		c.Demographics = req.Demographics
	}

	c.UpdatedAt = h.now().UTC()
	if err := h.repo.Update(r.Context(), c); err != nil {
		h.logger.Error("client update failed", "id", id, "error", err)
		http.Error(w, "Failed to update client", http.StatusInternalServerError)
		return
	}
	h.audit.Record(r.Context(), compliance.ActionUpdate, "client", c.ID, c.FullName())

	if demographicsChanged && h.docs.Enabled() {
		identity, _ := auth.IdentityFromContext(r.Context())
		h.appendDemographics(r, c, identity)
	}

	writeJSON(w, http.StatusOK, c)
}

// Delete handles DELETE /api/clients/{id}. Removing a record outright is an
// admin operation; clinicians discharge clients via a status update instead.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	if !identity.Role.CanManageUsers() {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Client not found", http.StatusNotFound)
			return
		}
		h.logger.Error("client delete failed", "id", id, "error", err)
		http.Error(w, "Failed to delete client", http.StatusInternalServerError)
		return
	}
	h.audit.Record(r.Context(), compliance.ActionDelete, "client", id, "")
	w.WriteHeader(http.StatusNoContent)
}

// Get handles GET /api/clients/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Client not found", http.StatusNotFound)
			return
		}
		h.logger.Error("client lookup failed", "id", id, "error", err)
		http.Error(w, "Failed to load client", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// List handles GET /api/clients. Optional query param: clinicianId restricts
// the result to that clinician's caseload.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var (
		items []Client
		err   error
	)
	if clinicianID := r.URL.Query().Get("clinicianId"); clinicianID != "" {
		items, err = h.repo.ListByClinician(r.Context(), clinicianID)
	} else {
		items, err = h.repo.List(r.Context())
	}
	if err != nil {
		h.logger.Error("client list failed", "error", err)
		http.Error(w, "Failed to list clients", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) appendDemographics(r *http.Request, c *Client, identity auth.Identity) {
	h.docs.AppendBestEffort(r.Context(), documents.AppendRequest{
		ClientID:   c.ID,
		ClientName: c.FullName(),
		UserID:     identity.UserID,
		UserName:   identity.Name,
		Kind:       documents.SectionDemographics,
		Data:       c.Demographics,
		OccurredAt: h.now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
