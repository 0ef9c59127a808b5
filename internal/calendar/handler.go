package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/wolfman30/leadqual-platform/internal/apperr"
	"github.com/wolfman30/leadqual-platform/internal/tenancy"
	"github.com/wolfman30/leadqual-platform/pkg/logging"
)

// Connector runs the OAuth consent flow.
type Connector interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, userID, code string) (*Credential, error)
}

// Handler lets an authenticated owner connect or disconnect their calendar.
type Handler struct {
	connector Connector
	store     CredentialStore
	logger    *logging.Logger
}

func NewHandler(connector Connector, store CredentialStore, logger *logging.Logger) *Handler {
	if connector == nil || store == nil {
		panic("calendar: connector and store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{connector: connector, store: store, logger: logger}
}

var errMissingUser = apperr.Validation("user is required", map[string]string{"user_id": "required"})

// ConnectURL handles GET /api/calendar/connect.
func (h *Handler) ConnectURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := tenancy.UserIDFromContext(r.Context())
	if !ok {
		apperr.WriteHTTP(w, errMissingUser)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": h.connector.AuthCodeURL(userID)})
}

type exchangeRequest struct {
	Code       string `json:"code"`
	CalendarID string `json:"calendar_id"`
}

// SaveCredential handles POST /api/calendar/credentials.
func (h *Handler) SaveCredential(w http.ResponseWriter, r *http.Request) {
	userID, ok := tenancy.UserIDFromContext(r.Context())
	if !ok {
		apperr.WriteHTTP(w, errMissingUser)
		return
	}
	var req exchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		apperr.WriteHTTP(w, apperr.Validation("authorization code is required", map[string]string{"code": "required"}))
		return
	}
	cred, err := h.connector.Exchange(r.Context(), userID, req.Code)
	if err != nil {
		h.logger.Warn("calendar exchange failed", "error", err, "user_id", userID)
		apperr.WriteHTTP(w, err)
		return
	}
	if req.CalendarID != "" {
		cred.CalendarID = req.CalendarID
	}
	if err := h.store.SaveCredential(r.Context(), *cred); err != nil {
		apperr.WriteHTTP(w, err)
		return
	}
	h.logger.Info("calendar connected", "user_id", userID, "calendar_id", cred.Calendar())
	writeJSON(w, http.StatusCreated, map[string]string{"calendar_id": cred.Calendar()})
}

// DeleteCredential handles DELETE /api/calendar/credentials.
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	userID, ok := tenancy.UserIDFromContext(r.Context())
	if !ok {
		apperr.WriteHTTP(w, errMissingUser)
		return
	}
	if err := h.store.DeleteCredential(r.Context(), userID); err != nil {
		apperr.WriteHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
