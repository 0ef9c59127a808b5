package business

import (
	"encoding/json"
	"net/http"

	"github.com/wolfman30/leadqual-platform/internal/apperr"
	"github.com/wolfman30/leadqual-platform/internal/tenancy"
	"github.com/wolfman30/leadqual-platform/pkg/logging"
)

// Handler exposes business settings to the owning user.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a settings handler.
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

var errNoBusiness = apperr.Validation("business context required", nil)

type hoursPayload struct {
	Hours []Hours `json:"hours"`
}

// GetHours handles GET /api/business/hours
func (h *Handler) GetHours(w http.ResponseWriter, r *http.Request) {
	businessID, ok := tenancy.BusinessIDFromContext(r.Context())
	if !ok {
		apperr.WriteHTTP(w, errNoBusiness)
		return
	}
	hours, err := h.repo.ListHours(r.Context(), businessID)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}
	if hours == nil {
		hours = []Hours{}
	}
	writeJSON(w, http.StatusOK, hoursPayload{Hours: hours})
}

// PutHours handles PUT /api/business/hours, replacing the weekly schedule.
func (h *Handler) PutHours(w http.ResponseWriter, r *http.Request) {
	businessID, ok := tenancy.BusinessIDFromContext(r.Context())
	if !ok {
		apperr.WriteHTTP(w, errNoBusiness)
		return
	}
	var req hoursPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteHTTP(w, apperr.Validation("invalid request body", nil))
		return
	}
	if err := h.repo.ReplaceHours(r.Context(), businessID, req.Hours); err != nil {
		apperr.WriteHTTP(w, err)
		return
	}
	h.logger.Info("business hours replaced", "business_id", businessID, "entries", len(req.Hours))
	h.GetHours(w, r)
}

// GetAssistant handles GET /api/business/assistant
func (h *Handler) GetAssistant(w http.ResponseWriter, r *http.Request) {
	businessID, ok := tenancy.BusinessIDFromContext(r.Context())
	if !ok {
		apperr.WriteHTTP(w, errNoBusiness)
		return
	}
	cfg, err := h.repo.GetAssistantConfig(r.Context(), businessID)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// PutAssistant handles PUT /api/business/assistant
func (h *Handler) PutAssistant(w http.ResponseWriter, r *http.Request) {
	businessID, ok := tenancy.BusinessIDFromContext(r.Context())
	if !ok {
		apperr.WriteHTTP(w, errNoBusiness)
		return
	}
	var cfg AssistantConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		apperr.WriteHTTP(w, apperr.Validation("invalid request body", nil))
		return
	}
	cfg.BusinessID = businessID
	if err := h.repo.SaveAssistantConfig(r.Context(), &cfg); err != nil {
		apperr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
