package leads

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/leadqual-platform/internal/apperr"
	"github.com/wolfman30/leadqual-platform/internal/tenancy"
	"github.com/wolfman30/leadqual-platform/pkg/logging"
)

// Handler handles HTTP requests for leads
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a new leads handler
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

// CreateLead handles POST /api/leads. The business comes from the API key.
func (h *Handler) CreateLead(w http.ResponseWriter, r *http.Request) {
	var req CreateLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteHTTP(w, apperr.Validation("invalid request body", nil))
		return
	}

	businessID, ok := tenancy.BusinessIDFromContext(r.Context())
	if !ok {
		apperr.WriteHTTP(w, ErrMissingBusiness)
		return
	}
	req.BusinessID = businessID

	lead, err := h.repo.Create(r.Context(), &req)
	if err != nil {
		h.logger.Warn("failed to create lead", "error", err, "business_id", businessID)
		apperr.WriteHTTP(w, err)
		return
	}

	h.logger.Info("lead created", "lead_id", lead.ID, "business_id", businessID, "channel", lead.Channel)
	writeJSON(w, http.StatusCreated, lead)
}

// ListLeadsResponse is the response for listing leads
type ListLeadsResponse struct {
	Leads  []*Lead `json:"leads"`
	Count  int     `json:"count"`
	Offset int     `json:"offset"`
	Limit  int     `json:"limit"`
}

// ListLeads handles GET /api/leads
func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	businessID, ok := tenancy.BusinessIDFromContext(r.Context())
	if !ok {
		apperr.WriteHTTP(w, ErrMissingBusiness)
		return
	}

	filter := ListFilter{Limit: 50}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 100 {
			filter.Limit = limit
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		status, err := ParseStatus(statusStr)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		filter.Status = status
	}

	list, err := h.repo.ListByBusiness(r.Context(), businessID, filter)
	if err != nil {
		h.logger.Error("failed to list leads", "error", err, "business_id", businessID)
		apperr.WriteHTTP(w, err)
		return
	}
	if list == nil {
		list = []*Lead{}
	}
	writeJSON(w, http.StatusOK, ListLeadsResponse{
		Leads:  list,
		Count:  len(list),
		Offset: filter.Offset,
		Limit:  filter.Limit,
	})
}

// GetLead handles GET /api/leads/{leadID}
func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	businessID, ok := tenancy.BusinessIDFromContext(r.Context())
	if !ok {
		apperr.WriteHTTP(w, ErrMissingBusiness)
		return
	}
	lead, err := h.repo.GetByID(r.Context(), businessID, chi.URLParam(r, "leadID"))
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles PATCH /api/leads/{leadID}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	businessID, ok := tenancy.BusinessIDFromContext(r.Context())
	if !ok {
		apperr.WriteHTTP(w, ErrMissingBusiness)
		return
	}
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteHTTP(w, apperr.Validation("invalid request body", nil))
		return
	}
	status, err := ParseStatus(req.Status)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}

	leadID := chi.URLParam(r, "leadID")
	if _, err := h.repo.GetByID(r.Context(), businessID, leadID); err != nil {
		apperr.WriteHTTP(w, err)
		return
	}
	if err := h.repo.UpdateStatus(r.Context(), leadID, status); err != nil {
		apperr.WriteHTTP(w, err)
		return
	}
	lead, err := h.repo.GetByID(r.Context(), businessID, leadID)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}
	h.logger.Info("lead status updated", "lead_id", leadID, "status", status)
	writeJSON(w, http.StatusOK, lead)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
