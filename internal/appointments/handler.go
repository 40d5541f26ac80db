package appointments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/brightkind/clinic-platform/internal/auth"
	"github.com/brightkind/clinic-platform/internal/calendar"
	"github.com/brightkind/clinic-platform/internal/compliance"
	"github.com/brightkind/clinic-platform/pkg/logging"
)

// Notifier lets the handler tell a clinician about schedule changes.
// May be nil when email delivery is not configured.
type Notifier interface {
	NotifyAppointmentCancelled(ctx context.Context, clinicianID, clientName string, startAt time.Time) error
}

// Handler exposes the appointment HTTP surface.
type Handler struct {
	repo     Repository
	sync     *calendar.Service
	audit    *compliance.AuditService
	notifier Notifier
	policy   ConflictPolicy
	logger   *logging.Logger
	now      func() time.Time
}

func NewHandler(repo Repository, sync *calendar.Service, audit *compliance.AuditService, notifier Notifier, policy ConflictPolicy, logger *logging.Logger) *Handler {
	if repo == nil {
		panic("appointments: repository cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:     repo,
		sync:     sync,
		audit:    audit,
		notifier: notifier,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

// Create handles POST /api/appointments. The slot is validated and checked
// for conflicts one final time before persisting; the live check the client
// ran while editing may be stale by the time the form is submitted.
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

	win := Window{
		ClinicianID:     req.ClinicianID,
		ClinicianName:   req.ClinicianName,
		ClientID:        req.ClientID,
		Location:        req.Location,
		Start:           start,
		DurationMinutes: req.DurationMinutes,
	}
	if err := ValidateWindow(win, h.now(), h.policy); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := h.checkWindow(r, win)
	if err != nil {
		h.logger.Error("conflict lookup failed", "error", err)
		http.Error(w, "Failed to check conflicts", http.StatusInternalServerError)
		return
	}
	if res.HasConflict {
		writeJSON(w, http.StatusConflict, res)
		return
	}

	now := h.now().UTC()
	appt := &Appointment{
		ID:              uuid.NewString(),
		ClientID:        req.ClientID,
		ClientName:      req.ClientName,
		ClinicianID:     req.ClinicianID,
		ClinicianName:   req.ClinicianName,
		Type:            req.Type,
		Status:          req.Status,
		StartAt:         start,
		DurationMinutes: req.DurationMinutes,
		Location:        req.Location,
		Content:         req.Content,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if id, ok := auth.IdentityFromContext(r.Context()); ok {
		appt.CreatedBy = id.UserID
	}
	if err := h.repo.Create(r.Context(), appt); err != nil {
		h.logger.Error("appointment create failed", "error", err)
		http.Error(w, "Failed to create appointment", http.StatusInternalServerError)
		return
	}
	h.audit.Record(r.Context(), compliance.ActionCreate, "appointment", appt.ID, appt.Type)
	h.syncCalendar(r, appt, calendar.OpCreate)

	writeJSON(w, http.StatusCreated, appt)
}

// Update handles PUT /api/appointments/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	appt, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("appointment lookup failed", "id", id, "error", err)
		http.Error(w, "Failed to load appointment", http.StatusInternalServerError)
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	prevStatus := appt.Status
	if req.Type != "" {
		appt.Type = req.Type
	}
	if req.Status != "" {
		if !ValidStatus(req.Status) {
			http.Error(w, ErrInvalidStatus.Error(), http.StatusBadRequest)
			return
		}
		appt.Status = req.Status
	}
	if req.StartAt != "" {
		start, err := time.Parse(time.RFC3339, req.StartAt)
		if err != nil {
			http.Error(w, "dateOfSession must be RFC 3339", http.StatusBadRequest)
			return
		}
		appt.StartAt = start
	}
	if req.DurationMinutes != 0 {
		appt.DurationMinutes = req.DurationMinutes
	}
	if req.Location != "" {
		appt.Location = req.Location
	}
	if req.Content != "" {
		appt.Content = req.Content
	}

	// A rescheduled slot re-runs the full window check. Validation applies
	// only when the slot moved; an unchanged past appointment can still have
	// its notes or status edited.
	if req.StartAt != "" || req.DurationMinutes != 0 {
		win := Window{
			ClinicianID:     appt.ClinicianID,
			ClinicianName:   appt.ClinicianName,
			ClientID:        appt.ClientID,
			Location:        appt.Location,
			Start:           appt.StartAt,
			DurationMinutes: appt.DurationMinutes,
			ExcludeID:       appt.ID,
		}
		if err := ValidateWindow(win, h.now(), h.policy); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		res, err := h.checkWindow(r, win)
		if err != nil {
			h.logger.Error("conflict lookup failed", "error", err)
			http.Error(w, "Failed to check conflicts", http.StatusInternalServerError)
			return
		}
		if res.HasConflict {
			writeJSON(w, http.StatusConflict, res)
			return
		}
	}

	appt.UpdatedAt = h.now().UTC()
	if err := h.repo.Update(r.Context(), appt); err != nil {
		h.logger.Error("appointment update failed", "id", id, "error", err)
		http.Error(w, "Failed to update appointment", http.StatusInternalServerError)
		return
	}
	h.audit.Record(r.Context(), compliance.ActionUpdate, "appointment", appt.ID, string(appt.Status))

	op := calendar.OpUpdate
	if appt.Status == StatusCancelled {
		op = calendar.OpDelete
		if prevStatus != StatusCancelled {
			h.notifyCancelled(r.Context(), appt)
		}
	}
	h.syncCalendar(r, appt, op)

	writeJSON(w, http.StatusOK, appt)
}

// Delete handles DELETE /api/appointments/{id}. The record is kept with a
// cancelled status so the schedule history survives; mirrored calendar
// events are removed.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	appt, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("appointment lookup failed", "id", id, "error", err)
		http.Error(w, "Failed to load appointment", http.StatusInternalServerError)
		return
	}

	appt.Status = StatusCancelled
	appt.UpdatedAt = h.now().UTC()
	if err := h.repo.Update(r.Context(), appt); err != nil {
		h.logger.Error("appointment cancel failed", "id", id, "error", err)
		http.Error(w, "Failed to cancel appointment", http.StatusInternalServerError)
		return
	}
	h.audit.Record(r.Context(), compliance.ActionDelete, "appointment", appt.ID, appt.Type)
	h.syncCalendar(r, appt, calendar.OpDelete)
	h.notifyCancelled(r.Context(), appt)

	w.WriteHeader(http.StatusNoContent)
}

// Get handles GET /api/appointments/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	appt, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("appointment lookup failed", "id", id, "error", err)
		http.Error(w, "Failed to load appointment", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// List handles GET /api/appointments. Optional query params: from, to
// (RFC 3339, defaulting to a two-month window around now) and clinicianId.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	from := now.AddDate(0, -1, 0)
	to := now.AddDate(0, 1, 0)
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "from must be RFC 3339", http.StatusBadRequest)
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "to must be RFC 3339", http.StatusBadRequest)
			return
		}
		to = t
	}

	var (
		items []Appointment
		err   error
	)
	if clinicianID := r.URL.Query().Get("clinicianId"); clinicianID != "" {
		items, err = h.repo.ListByClinician(r.Context(), clinicianID, from, to)
	} else {
		items, err = h.repo.ListByRange(r.Context(), from, to)
	}
	if err != nil {
		h.logger.Error("appointment list failed", "error", err)
		http.Error(w, "Failed to list appointments", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// checkConflictsRequest is the body for the live conflict probe.
type checkConflictsRequest struct {
	ClinicianID     string `json:"clinicianId"`
	ClinicianName   string `json:"clinicianName"`
	ClientID        string `json:"clientId"`
	Location        string `json:"location"`
	StartAt         string `json:"dateOfSession"`
	DurationMinutes int    `json:"duration"`
	ExcludeID       string `json:"excludeId"`
}

// CheckConflicts handles POST /api/appointments/check-conflicts. The client
// calls this while the scheduling form is being edited; it never mutates
// anything.
func (h *Handler) CheckConflicts(w http.ResponseWriter, r *http.Request) {
	var req checkConflictsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartAt)
	if err != nil {
		http.Error(w, "dateOfSession must be RFC 3339", http.StatusBadRequest)
		return
	}
	win := Window{
		ClinicianID:     req.ClinicianID,
		ClinicianName:   req.ClinicianName,
		ClientID:        req.ClientID,
		Location:        req.Location,
		Start:           start,
		DurationMinutes: req.DurationMinutes,
		ExcludeID:       req.ExcludeID,
	}
	res, err := h.checkWindow(r, win)
	if err != nil {
		h.logger.Error("conflict lookup failed", "error", err)
		http.Error(w, "Failed to check conflicts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// checkWindow loads the appointments that could plausibly overlap the window
// and runs the pure conflict check against them. The lookup is widened by the
// maximum slot length so long-running earlier slots are still compared.
func (h *Handler) checkWindow(r *http.Request, win Window) (ConflictResult, error) {
	widen := time.Duration(h.policy.MaxDurationMinutes) * time.Minute
	existing, err := h.repo.ListByRange(r.Context(), win.Start.Add(-widen), win.End())
	if err != nil {
		return ConflictResult{}, err
	}
	return CheckConflicts(win, existing, h.policy), nil
}

// syncCalendar mirrors the appointment to connected calendars. Sync is best
// effort: the appointment write has already succeeded, so failures here are
// logged and the new event ids, if any, are persisted.
func (h *Handler) syncCalendar(r *http.Request, appt *Appointment, op calendar.Operation) {
	if h.sync == nil {
		return
	}
	src := calendar.EventSource{
		Kind:          calendar.SourceAppointment,
		ID:            appt.ID,
		ClientName:    appt.ClientName,
		ClinicianID:   appt.ClinicianID,
		ClinicianName: appt.ClinicianName,
		Type:          appt.Type,
		Location:      appt.Location,
		Notes:         appt.Content,
		Start:         appt.StartAt,
		End:           appt.EndAt(),
		EventIDs:      appt.CalendarEventIDs,
	}
	res := h.sync.SyncAppointment(r.Context(), src, op, appt.CreatedBy)
	if res.Failed > 0 {
		h.logger.Warn("calendar sync partially failed",
			"appointment_id", appt.ID, "operation", op, "failed", res.Failed)
	}
	if op == calendar.OpDelete {
		if err := h.repo.SetCalendarEventIDs(r.Context(), appt.ID, nil); err != nil {
			h.logger.Warn("clearing calendar event ids failed", "appointment_id", appt.ID, "error", err)
		}
		appt.CalendarEventIDs = nil
		return
	}
	if len(res.EventIDs) > 0 {
		if err := h.repo.SetCalendarEventIDs(r.Context(), appt.ID, res.EventIDs); err != nil {
			h.logger.Warn("persisting calendar event ids failed", "appointment_id", appt.ID, "error", err)
		}
		appt.CalendarEventIDs = res.EventIDs
	}
}

// notifyCancelled emails the clinician about the freed slot. Skipped when
// the clinician cancelled their own appointment.
func (h *Handler) notifyCancelled(ctx context.Context, appt *Appointment) {
	if h.notifier == nil {
		return
	}
	if id, ok := auth.IdentityFromContext(ctx); ok && id.UserID == appt.ClinicianID {
		return
	}
	if err := h.notifier.NotifyAppointmentCancelled(ctx, appt.ClinicianID, appt.ClientName, appt.StartAt); err != nil {
		h.logger.Warn("cancellation notification failed", "appointment_id", appt.ID, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
