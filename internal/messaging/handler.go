package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/brightkind/clinic-platform/internal/auth"
	"github.com/brightkind/clinic-platform/pkg/logging"
)

var upgrader = websocket.Upgrader{
	// Origin checking happens in the CORS middleware; everything reaching
	// this handler already passed it.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Notifier records an inbox item for participants who were not the sender.
// May be nil.
type Notifier interface {
	NotifyNewMessage(ctx context.Context, recipientIDs []string, senderName, subject, threadID string)
}

// Handler exposes the messaging HTTP surface.
type Handler struct {
	store    Store
	hub      *Hub
	notifier Notifier
	logger   *logging.Logger
	now      func() time.Time
}

func NewHandler(store Store, hub *Hub, notifier Notifier, logger *logging.Logger) *Handler {
	if store == nil {
		panic("messaging: store cannot be nil")
	}
	if hub == nil {
		panic("messaging: hub cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, hub: hub, notifier: notifier, logger: logger, now: time.Now}
}

// CreateThread handles POST /api/messages/threads. The creator is always a
// participant, listed or not.
func (h *Handler) CreateThread(w http.ResponseWriter, r *http.Request) {
	var req CreateThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	identity, _ := auth.IdentityFromContext(r.Context())
	participants := req.ParticipantIDs
	found := false
	for _, id := range participants {
		if id == identity.UserID {
			found = true
			break
		}
	}
	if !found && identity.UserID != "" {
		participants = append(participants, identity.UserID)
	}

	now := h.now().UTC()
	t := &Thread{
		ID:             uuid.NewString(),
		Subject:        req.Subject,
		ParticipantIDs: participants,
		ClientID:       req.ClientID,
		CreatedBy:      identity.UserID,
		CreatedAt:      now,
		LastMessageAt:  now,
	}
	if err := h.store.CreateThread(r.Context(), t); err != nil {
		h.logger.Error("thread create failed", "error", err)
		http.Error(w, "Failed to create thread", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// ListThreads handles GET /api/messages/threads, scoped to the caller.
func (h *Handler) ListThreads(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	items, err := h.store.ListThreads(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("thread list failed", "error", err)
		http.Error(w, "Failed to list threads", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// PostMessage handles POST /api/messages/threads/{id}. The stored message is
// also pushed to the thread's live subscribers.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	t, identity, ok := h.loadThreadForCaller(w, r)
	if !ok {
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		http.Error(w, ErrMissingBody.Error(), http.StatusBadRequest)
		return
	}

	m := &Message{
		ID:         uuid.NewString(),
		ThreadID:   t.ID,
		SenderID:   identity.UserID,
		SenderName: identity.Name,
		Body:       req.Body,
		CreatedAt:  h.now().UTC(),
	}
	if err := h.store.AddMessage(r.Context(), m); err != nil {
		h.logger.Error("message write failed", "thread_id", t.ID, "error", err)
		http.Error(w, "Failed to post message", http.StatusInternalServerError)
		return
	}

	t.LastMessageAt = m.CreatedAt
	if err := h.store.TouchThread(r.Context(), t); err != nil {
		h.logger.Warn("thread timestamp update failed", "thread_id", t.ID, "error", err)
	}
	h.hub.Publish(*m)
	if h.notifier != nil {
		recipients := make([]string, 0, len(t.ParticipantIDs))
		for _, id := range t.ParticipantIDs {
			if id != identity.UserID {
				recipients = append(recipients, id)
			}
		}
		h.notifier.NotifyNewMessage(r.Context(), recipients, identity.Name, t.Subject, t.ID)
	}

	writeJSON(w, http.StatusCreated, m)
}

// ListMessages handles GET /api/messages/threads/{id}.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	t, _, ok := h.loadThreadForCaller(w, r)
	if !ok {
		return
	}
	items, err := h.store.ListMessages(r.Context(), t.ID)
	if err != nil {
		h.logger.Error("message list failed", "thread_id", t.ID, "error", err)
		http.Error(w, "Failed to list messages", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// Stream handles GET /api/messages/threads/{id}/stream, upgrading to a
// websocket that receives each new message as JSON.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	t, _, ok := h.loadThreadForCaller(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "thread_id", t.ID, "error", err)
		return
	}
	ch, unsubscribe := h.hub.Subscribe(t.ID)
	go serveSubscriber(conn, ch, unsubscribe, h.logger)
}

func (h *Handler) loadThreadForCaller(w http.ResponseWriter, r *http.Request) (*Thread, auth.Identity, bool) {
	id := chi.URLParam(r, "id")
	t, err := h.store.GetThread(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrThreadNotFound) {
			http.Error(w, "Thread not found", http.StatusNotFound)
			return nil, auth.Identity{}, false
		}
		h.logger.Error("thread lookup failed", "id", id, "error", err)
		http.Error(w, "Failed to load thread", http.StatusInternalServerError)
		return nil, auth.Identity{}, false
	}
	identity, _ := auth.IdentityFromContext(r.Context())
	if !t.HasParticipant(identity.UserID) {
		http.Error(w, ErrNotParticipant.Error(), http.StatusForbidden)
		return nil, auth.Identity{}, false
	}
	return t, identity, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
