package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/brightkind/clinic-platform/internal/auth"
	"github.com/brightkind/clinic-platform/pkg/logging"
)

// EventIDStore persists the per-recipient event ids produced by a sync back
// onto the source record. Satisfied by the appointment and session stores.
type EventIDStore interface {
	SetCalendarEventIDs(ctx context.Context, sourceID string, eventIDs map[string]string) error
}

// Handler exposes the calendar sync HTTP surface.
type Handler struct {
	service  *Service
	conns    ConnectionRepository
	backfill BackfillSource
	eventIDs EventIDStore
	logger   *logging.Logger
}

func NewHandler(service *Service, conns ConnectionRepository, backfill BackfillSource, eventIDs EventIDStore, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service:  service,
		conns:    conns,
		backfill: backfill,
		eventIDs: eventIDs,
		logger:   logger,
	}
}

// syncRequest mirrors the front end's sync-appointment body.
type syncRequest struct {
	Appointment struct {
		ID               string            `json:"id"`
		Kind             string            `json:"kind"`
		ClientName       string            `json:"clientName"`
		ClinicianID      string            `json:"clinicianId"`
		ClinicianName    string            `json:"clinicianName"`
		Type             string            `json:"type"`
		Location         string            `json:"location"`
		Content          string            `json:"content"`
		DateOfSession    time.Time         `json:"dateOfSession"`
		Duration         int               `json:"duration"`
		CalendarEventIDs map[string]string `json:"calendarEventIds"`
	} `json:"appointment"`
	Operation     Operation `json:"operation"`
	CreatorUserID string    `json:"creatorUserId"`
}

// SyncAppointment handles POST /api/calendar/sync-appointment.
func (h *Handler) SyncAppointment(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !ValidOperation(req.Operation) {
		http.Error(w, ErrInvalidOperation.Error(), http.StatusBadRequest)
		return
	}
	if req.Appointment.ID == "" {
		http.Error(w, "appointment.id is required", http.StatusBadRequest)
		return
	}

	kind := SourceAppointment
	if req.Appointment.Kind == string(SourceSession) {
		kind = SourceSession
	}
	src := EventSource{
		Kind:          kind,
		ID:            req.Appointment.ID,
		ClientName:    req.Appointment.ClientName,
		ClinicianID:   req.Appointment.ClinicianID,
		ClinicianName: req.Appointment.ClinicianName,
		Type:          req.Appointment.Type,
		Location:      req.Appointment.Location,
		Notes:         req.Appointment.Content,
		Start:         req.Appointment.DateOfSession,
		End:           req.Appointment.DateOfSession.Add(time.Duration(req.Appointment.Duration) * time.Minute),
		EventIDs:      req.Appointment.CalendarEventIDs,
	}

	result := h.service.SyncAppointment(r.Context(), src, req.Operation, req.CreatorUserID)
	if h.eventIDs != nil && len(result.EventIDs) > 0 {
		if err := h.eventIDs.SetCalendarEventIDs(r.Context(), src.ID, result.EventIDs); err != nil {
			h.logger.Warn("failed to persist calendar event ids", "source_id", src.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// SyncExisting handles POST /api/calendar/sync-existing: it backfills all
// upcoming appointments into a newly connected user's calendar.
func (h *Handler) SyncExisting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	result, err := h.service.BackfillUser(r.Context(), h.backfill, req.UserID)
	if err != nil {
		if err == ErrConnectionNotFound {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error("backfill failed", "user_id", req.UserID, "error", err)
		http.Error(w, "backfill failed", http.StatusInternalServerError)
		return
	}

	if h.eventIDs != nil {
		for sourceID, eventID := range result.EventIDs {
			if err := h.eventIDs.SetCalendarEventIDs(r.Context(), sourceID, map[string]string{req.UserID: eventID}); err != nil {
				h.logger.Warn("failed to persist backfilled event id",
					"source_id", sourceID, "user_id", req.UserID, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// connectionRequest carries the token set captured at sign-in.
type connectionRequest struct {
	UserID       string    `json:"userId"`
	UserName     string    `json:"userName"`
	UserEmail    string    `json:"userEmail"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	Scope        string    `json:"scope"`
	TokenExpiry  time.Time `json:"tokenExpiry"`
}

// UpsertConnection handles PUT /api/calendar/connection.
func (h *Handler) UpsertConnection(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.AccessToken == "" {
		http.Error(w, "userId and accessToken are required", http.StatusBadRequest)
		return
	}

	existing, err := h.conns.Get(r.Context(), req.UserID)
	now := time.Now().UTC()
	conn := &Connection{
		UserID:       req.UserID,
		UserName:     req.UserName,
		UserEmail:    req.UserEmail,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		Scope:        req.Scope,
		TokenExpiry:  req.TokenExpiry,
		ConnectedAt:  now,
	}
	if err == nil {
		conn.ConnectedAt = existing.ConnectedAt
		if conn.RefreshToken == "" {
			// Google only returns the refresh token on first consent.
			conn.RefreshToken = existing.RefreshToken
		}
	}

	if err := h.conns.Put(r.Context(), conn); err != nil {
		h.logger.Error("failed to store calendar connection", "user_id", req.UserID, "error", err)
		http.Error(w, "failed to store connection", http.StatusInternalServerError)
		return
	}

	h.logger.Info("calendar connection stored", "user_id", req.UserID)
	writeJSON(w, http.StatusOK, conn)
}

// DeleteConnection handles DELETE /api/calendar/connection/{userID} style
// removals; only the user themselves or an admin may disconnect.
func (h *Handler) DeleteConnection(w http.ResponseWriter, r *http.Request, userID string) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	if identity.UserID != userID && !identity.Role.CanManageUsers() {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if err := h.conns.Delete(r.Context(), userID); err != nil {
		if err == ErrConnectionNotFound {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "failed to delete connection", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// connectionHealth is one row of the debug dump.
type connectionHealth struct {
	UserID      string    `json:"userId"`
	UserName    string    `json:"userName,omitempty"`
	TokenExpiry time.Time `json:"tokenExpiry"`
	Expired     bool      `json:"expired"`
	HasRefresh  bool      `json:"hasRefreshToken"`
}

// Debug handles GET /api/debug/calendar: a diagnostic dump of connection and
// sync health. Silent mirror failures are only visible here.
func (h *Handler) Debug(w http.ResponseWriter, r *http.Request) {
	conns, err := h.conns.List(r.Context())
	if err != nil {
		http.Error(w, "failed to list connections", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	health := make([]connectionHealth, 0, len(conns))
	for i := range conns {
		c := &conns[i]
		health = append(health, connectionHealth{
			UserID:      c.UserID,
			UserName:    c.UserName,
			TokenExpiry: c.TokenExpiry,
			Expired:     c.Expired(now),
			HasRefresh:  c.RefreshToken != "",
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"connections":    health,
		"connectedUsers": len(health),
		"recentSyncs":    h.service.RecentResults(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
