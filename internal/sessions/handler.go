package sessions

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/brightkind/clinic-platform/internal/auth"
	"github.com/brightkind/clinic-platform/internal/calendar"
	"github.com/brightkind/clinic-platform/internal/compliance"
	"github.com/brightkind/clinic-platform/internal/documents"
	"github.com/brightkind/clinic-platform/pkg/logging"
)

// maxAttachmentBytes caps one upload at 25 MiB.
const maxAttachmentBytes = 25 << 20

// Handler exposes the session note HTTP surface.
type Handler struct {
	repo        Repository
	attachments *AttachmentStore
	sync        *calendar.Service
	docs        *documents.Service
	audit       *compliance.AuditService
	logger      *logging.Logger
	now         func() time.Time
}

func NewHandler(repo Repository, attachments *AttachmentStore, sync *calendar.Service, docs *documents.Service, audit *compliance.AuditService, logger *logging.Logger) *Handler {
	if repo == nil {
		panic("sessions: repository cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:        repo,
		attachments: attachments,
		sync:        sync,
		docs:        docs,
		audit:       audit,
		logger:      logger,
		now:         time.Now,
	}
}

// Create handles POST /api/sessions. The note is numbered, persisted, then
// mirrored to calendars and the client's document. Both mirrors are best
// effort: the note is the source of truth and has already been written.
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
	start, err := time.Parse(time.RFC3339, req.StartAt)
	if err != nil {
		http.Error(w, "dateOfSession must be RFC 3339", http.StatusBadRequest)
		return
	}

	prior, err := h.repo.CountByClient(r.Context(), req.ClientID)
	if err != nil {
		h.logger.Error("session count failed", "client_id", req.ClientID, "error", err)
		http.Error(w, "Failed to number session", http.StatusInternalServerError)
		return
	}

	now := h.now().UTC()
	note := &Note{
		ID:              uuid.NewString(),
		ClientID:        req.ClientID,
		ClientName:      req.ClientName,
		ClinicianID:     req.ClinicianID,
		ClinicianName:   req.ClinicianName,
		SessionNumber:   prior + 1,
		Type:            req.Type,
		StartAt:         start,
		DurationMinutes: req.DurationMinutes,
		Location:        req.Location,
		Content:         req.Content,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	identity, _ := auth.IdentityFromContext(r.Context())
	note.CreatedBy = identity.UserID

	if err := h.repo.Create(r.Context(), note); err != nil {
		h.logger.Error("session create failed", "error", err)
		http.Error(w, "Failed to create session note", http.StatusInternalServerError)
		return
	}
	h.audit.Record(r.Context(), compliance.ActionCreate, "session", note.ID, note.Type)
	h.syncCalendar(r, note, calendar.OpCreate)
	h.appendToDocument(r, note, identity)

	writeJSON(w, http.StatusCreated, note)
}

// Update handles PUT /api/sessions/{id}. The session number is fixed at
// creation and never changes here.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	note, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Session note not found", http.StatusNotFound)
			return
		}
		h.logger.Error("session lookup failed", "id", id, "error", err)
		http.Error(w, "Failed to load session note", http.StatusInternalServerError)
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Type != "" {
		note.Type = req.Type
	}
	if req.StartAt != "" {
		start, err := time.Parse(time.RFC3339, req.StartAt)
		if err != nil {
			http.Error(w, "dateOfSession must be RFC 3339", http.StatusBadRequest)
			return
		}
		note.StartAt = start
	}
	if req.DurationMinutes != 0 {
		note.DurationMinutes = req.DurationMinutes
	}
	if req.Location != "" {
		note.Location = req.Location
	}
	if req.Content != "" {
		note.Content = req.Content
	}

	note.UpdatedAt = h.now().UTC()
	if err := h.repo.Update(r.Context(), note); err != nil {
		h.logger.Error("session update failed", "id", id, "error", err)
		http.Error(w, "Failed to update session note", http.StatusInternalServerError)
		return
	}
	h.audit.Record(r.Context(), compliance.ActionUpdate, "session", note.ID, note.Type)
	h.syncCalendar(r, note, calendar.OpUpdate)

	writeJSON(w, http.StatusOK, note)
}

// Delete handles DELETE /api/sessions/{id}. Mirrored calendar events and
// stored attachments go with the note.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	note, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Session note not found", http.StatusNotFound)
			return
		}
		h.logger.Error("session lookup failed", "id", id, "error", err)
		http.Error(w, "Failed to load session note", http.StatusInternalServerError)
		return
	}

	h.syncCalendar(r, note, calendar.OpDelete)
	for _, key := range note.AttachmentKeys {
		if err := h.attachments.Delete(r.Context(), key); err != nil {
			h.logger.Warn("attachment delete failed", "session_id", id, "s3_key", key, "error", err)
		}
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		h.logger.Error("session delete failed", "id", id, "error", err)
		http.Error(w, "Failed to delete session note", http.StatusInternalServerError)
		return
	}
	h.audit.Record(r.Context(), compliance.ActionDelete, "session", id, note.Type)
	w.WriteHeader(http.StatusNoContent)
}

// Get handles GET /api/sessions/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	note, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Session note not found", http.StatusNotFound)
			return
		}
		h.logger.Error("session lookup failed", "id", id, "error", err)
		http.Error(w, "Failed to load session note", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// List handles GET /api/sessions?clientId=. The client id is required; notes
// are never listed clinic-wide.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		http.Error(w, "clientId is required", http.StatusBadRequest)
		return
	}
	items, err := h.repo.ListByClient(r.Context(), clientID)
	if err != nil {
		h.logger.Error("session list failed", "client_id", clientID, "error", err)
		http.Error(w, "Failed to list session notes", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// UploadAttachment handles POST /api/sessions/{id}/attachments. The raw file
// is the request body; the original name rides in the filename query param.
func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	if !h.attachments.Enabled() {
		http.Error(w, "Attachment storage is not configured", http.StatusNotImplemented)
		return
	}
	id := chi.URLParam(r, "id")
	note, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Session note not found", http.StatusNotFound)
			return
		}
		h.logger.Error("session lookup failed", "id", id, "error", err)
		http.Error(w, "Failed to load session note", http.StatusInternalServerError)
		return
	}

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		http.Error(w, "filename is required", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAttachmentBytes+1))
	if err != nil {
		http.Error(w, "Failed to read upload", http.StatusBadRequest)
		return
	}
	if len(body) > maxAttachmentBytes {
		http.Error(w, "Attachment too large", http.StatusRequestEntityTooLarge)
		return
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key, err := h.attachments.Put(r.Context(), id, filename, contentType, body)
	if err != nil {
		h.logger.Error("attachment upload failed", "session_id", id, "error", err)
		http.Error(w, "Failed to store attachment", http.StatusBadGateway)
		return
	}
	keys := append(note.AttachmentKeys, key)
	if err := h.repo.SetAttachmentKeys(r.Context(), id, keys); err != nil {
		h.logger.Error("persisting attachment key failed", "session_id", id, "error", err)
		http.Error(w, "Failed to record attachment", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"key": key, "attachmentKeys": keys})
}

// DownloadAttachment handles GET /api/sessions/{id}/attachments?key=. The
// key must belong to the note; arbitrary object keys are rejected.
func (h *Handler) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	note, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Session note not found", http.StatusNotFound)
			return
		}
		h.logger.Error("session lookup failed", "id", id, "error", err)
		http.Error(w, "Failed to load session note", http.StatusInternalServerError)
		return
	}

	key := r.URL.Query().Get("key")
	owned := false
	for _, k := range note.AttachmentKeys {
		if k == key {
			owned = true
			break
		}
	}
	if !owned {
		http.Error(w, "Attachment not found", http.StatusNotFound)
		return
	}

	body, contentType, err := h.attachments.Get(r.Context(), key)
	if err != nil {
		h.logger.Error("attachment fetch failed", "session_id", id, "s3_key", key, "error", err)
		http.Error(w, "Failed to fetch attachment", http.StatusBadGateway)
		return
	}
	defer body.Close()
	w.Header().Set("Content-Type", contentType)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("attachment stream interrupted", "session_id", id, "s3_key", key, "error", err)
	}
}

func (h *Handler) syncCalendar(r *http.Request, note *Note, op calendar.Operation) {
	if h.sync == nil {
		return
	}
	src := calendar.EventSource{
		Kind:          calendar.SourceSession,
		ID:            note.ID,
		ClientName:    note.ClientName,
		ClinicianID:   note.ClinicianID,
		ClinicianName: note.ClinicianName,
		Type:          note.Type,
		Location:      note.Location,
		Notes:         note.Content,
		Start:         note.StartAt,
		End:           note.EndAt(),
		EventIDs:      note.CalendarEventIDs,
	}
	res := h.sync.SyncAppointment(r.Context(), src, op, note.CreatedBy)
	if res.Failed > 0 {
		h.logger.Warn("calendar sync partially failed",
			"session_id", note.ID, "operation", op, "failed", res.Failed)
	}
	if op == calendar.OpDelete {
		if err := h.repo.SetCalendarEventIDs(r.Context(), note.ID, nil); err != nil && !errors.Is(err, ErrNotFound) {
			h.logger.Warn("clearing calendar event ids failed", "session_id", note.ID, "error", err)
		}
		note.CalendarEventIDs = nil
		return
	}
	if len(res.EventIDs) > 0 {
		if err := h.repo.SetCalendarEventIDs(r.Context(), note.ID, res.EventIDs); err != nil {
			h.logger.Warn("persisting calendar event ids failed", "session_id", note.ID, "error", err)
		}
		note.CalendarEventIDs = res.EventIDs
	}
}

func (h *Handler) appendToDocument(r *http.Request, note *Note, identity auth.Identity) {
	if !h.docs.Enabled() {
		return
	}
	h.docs.AppendBestEffort(r.Context(), documents.AppendRequest{
		ClientID:   note.ClientID,
		ClientName: note.ClientName,
		UserID:     identity.UserID,
		UserName:   identity.Name,
		Kind:       documents.SectionSession,
		Data: map[string]any{
			"sessionNumber": note.SessionNumber,
			"type":          note.Type,
			"dateOfSession": note.StartAt.Format("January 2, 2006 at 3:04 PM"),
			"duration":      note.DurationMinutes,
			"location":      note.Location,
			"content":       note.Content,
		},
		OccurredAt: note.StartAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
