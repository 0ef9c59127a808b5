package conversation

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/leadqual-platform/internal/apperr"
	"github.com/wolfman30/leadqual-platform/internal/leads"
	"github.com/wolfman30/leadqual-platform/internal/tenancy"
	"github.com/wolfman30/leadqual-platform/pkg/logging"
)

// Handler exposes conversation history, closing and job status over HTTP.
type Handler struct {
	service *Service
	jobs    JobRecorder
	logger  *logging.Logger
}

func NewHandler(service *Service, jobs JobRecorder, logger *logging.Logger) *Handler {
	if service == nil {
		panic("conversation: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, jobs: jobs, logger: logger}
}

type messagesResponse struct {
	Messages []Message `json:"messages"`
	Offset   int       `json:"offset"`
	Limit    int       `json:"limit"`
}

// Messages handles GET /api/conversations/{conversationID}/messages.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	businessID, ok := tenancy.BusinessIDFromContext(r.Context())
	if !ok {
		apperr.WriteHTTP(w, leads.ErrMissingBusiness)
		return
	}
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)

	msgs, err := h.service.History(r.Context(), businessID, chi.URLParam(r, "conversationID"), offset, limit)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, messagesResponse{Messages: msgs, Offset: offset, Limit: limit})
}

// Close handles POST /api/conversations/{conversationID}/close.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	businessID, ok := tenancy.BusinessIDFromContext(r.Context())
	if !ok {
		apperr.WriteHTTP(w, leads.ErrMissingBusiness)
		return
	}
	conv, err := h.service.CloseConversation(r.Context(), businessID, chi.URLParam(r, "conversationID"))
	if err != nil {
		h.logger.Warn("failed to close conversation", "error", err, "business_id", businessID)
		apperr.WriteHTTP(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, conv)
}

// JobStatus handles GET /api/jobs/{jobID}.
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	businessID, ok := tenancy.BusinessIDFromContext(r.Context())
	if !ok {
		apperr.WriteHTTP(w, leads.ErrMissingBusiness)
		return
	}
	if h.jobs == nil {
		apperr.WriteHTTP(w, ErrJobNotFound)
		return
	}
	job, err := h.jobs.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}
	if job.BusinessID != "" && job.BusinessID != businessID {
		apperr.WriteHTTP(w, ErrJobNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
