package documents

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/brightkind/clinic-platform/pkg/logging"
)

// Handler exposes the document HTTP surface.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Generate handles POST /api/documents/generate: it creates the client's
// document if missing and returns the mapping.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID   string `json:"clientId"`
		ClientName string `json:"clientName"`
		UserID     string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ClientID == "" {
		http.Error(w, "clientId is required", http.StatusBadRequest)
		return
	}

	doc, err := h.service.Ensure(r.Context(), req.ClientID, req.ClientName, req.UserID)
	if err != nil {
		h.logger.Error("document generate failed", "client_id", req.ClientID, "error", err)
		http.Error(w, "document generation failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// Append handles POST /api/documents/append. Unlike the in-process
// best-effort path, the explicit endpoint reports failures so the front end
// can retry manually.
func (h *Handler) Append(w http.ResponseWriter, r *http.Request) {
	var req AppendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ClientID == "" {
		http.Error(w, "clientId is required", http.StatusBadRequest)
		return
	}

	doc, err := h.service.Append(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidSectionKind) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("document append failed", "client_id", req.ClientID, "error", err)
		http.Error(w, "document append failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// Probe handles GET /api/documents/append?clientId=: the existence check the
// front end uses before offering a "create document" action.
func (h *Handler) Probe(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		http.Error(w, "clientId is required", http.StatusBadRequest)
		return
	}

	doc, ok, err := h.service.Exists(r.Context(), clientID)
	if err != nil {
		h.logger.Error("document mapping lookup failed", "client_id", clientID, "error", err)
		http.Error(w, "document lookup failed", http.StatusInternalServerError)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"exists": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"exists":      true,
		"documentId":  doc.DocumentID,
		"documentUrl": doc.DocumentURL,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
