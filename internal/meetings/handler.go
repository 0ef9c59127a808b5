package meetings

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/leadqual-platform/internal/apperr"
	"github.com/wolfman30/leadqual-platform/internal/availability"
	"github.com/wolfman30/leadqual-platform/internal/tenancy"
	"github.com/wolfman30/leadqual-platform/pkg/logging"
)

var errMissingBusiness = apperr.Validation("business is required", map[string]string{"business_id": "required"})

// Handler exposes availability and booking over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if service == nil {
		panic("meetings: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

type slotsResponse struct {
	Slots           []availability.Slot `json:"slots"`
	DurationMinutes int                 `json:"duration_minutes"`
}

// Availability handles GET /api/availability?from=&to=&duration=.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	businessID, ok := tenancy.BusinessIDFromContext(r.Context())
	if !ok {
		apperr.WriteHTTP(w, errMissingBusiness)
		return
	}
	q := r.URL.Query()
	fromDay, err := parseDay(q.Get("from"))
	if err != nil {
		apperr.WriteHTTP(w, apperr.Validation("invalid from", map[string]string{"from": err.Error()}))
		return
	}
	toDay, err := parseDay(q.Get("to"))
	if err != nil {
		apperr.WriteHTTP(w, apperr.Validation("invalid to", map[string]string{"to": err.Error()}))
		return
	}
	loc, err := h.service.Location(r.Context(), businessID)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}
	from, to := fromDay.start(loc), toDay.start(loc)
	duration := 0
	if raw := q.Get("duration"); raw != "" {
		duration, err = strconv.Atoi(raw)
		if err != nil || duration <= 0 {
			apperr.WriteHTTP(w, apperr.Validation("invalid duration", map[string]string{"duration": "must be a positive number of minutes"}))
			return
		}
	}

	slots, err := h.service.AvailableSlots(r.Context(), businessID, from, to, duration)
	if err != nil {
		h.logger.Warn("availability lookup failed", "error", err, "business_id", businessID)
		apperr.WriteHTTP(w, err)
		return
	}
	if duration == 0 && len(slots) > 0 {
		duration = int(slots[0].End.Sub(slots[0].Start).Minutes())
	}
	writeJSON(w, http.StatusOK, slotsResponse{Slots: slots, DurationMinutes: duration})
}

// Book handles POST /api/meetings.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	businessID, ok := tenancy.BusinessIDFromContext(r.Context())
	if !ok {
		apperr.WriteHTTP(w, errMissingBusiness)
		return
	}
	var req BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteHTTP(w, apperr.Validation("invalid request body", nil))
		return
	}
	req.BusinessID = businessID

	meeting, err := h.service.BookMeeting(r.Context(), req)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, meeting)
}

// List handles GET /api/meetings.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	businessID, ok := tenancy.BusinessIDFromContext(r.Context())
	if !ok {
		apperr.WriteHTTP(w, errMissingBusiness)
		return
	}
	q := r.URL.Query()
	filter := ListFilter{Limit: 50}
	if raw := q.Get("status"); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		filter.Status = status
	}
	fromRaw, toRaw := q.Get("from"), q.Get("to")
	if fromRaw != "" || toRaw != "" {
		loc, err := h.service.Location(r.Context(), businessID)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		if fromRaw != "" {
			from, err := parseDay(fromRaw)
			if err != nil {
				apperr.WriteHTTP(w, apperr.Validation("invalid from", map[string]string{"from": err.Error()}))
				return
			}
			filter.From = from.start(loc)
		}
		if toRaw != "" {
			to, err := parseDay(toRaw)
			if err != nil {
				apperr.WriteHTTP(w, apperr.Validation("invalid to", map[string]string{"to": err.Error()}))
				return
			}
			filter.To = to.end(loc)
		}
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 && limit <= 200 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil && offset >= 0 {
		filter.Offset = offset
	}

	list, err := h.service.List(r.Context(), businessID, filter)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}
	if list == nil {
		list = []*Meeting{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"meetings": list, "count": len(list)})
}

// Cancel handles POST /api/meetings/{meetingID}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	businessID, ok := tenancy.BusinessIDFromContext(r.Context())
	if !ok {
		apperr.WriteHTTP(w, errMissingBusiness)
		return
	}
	meeting, err := h.service.CancelMeeting(r.Context(), businessID, chi.URLParam(r, "meetingID"))
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meeting)
}

// dayParam is a query bound: either an exact instant or a calendar date
// that still has to be placed in the business zone.
type dayParam struct {
	at       time.Time
	dateOnly bool
}

// start is the instant itself, or local midnight opening the date.
func (d dayParam) start(loc *time.Location) time.Time {
	if !d.dateOnly {
		return d.at
	}
	return time.Date(d.at.Year(), d.at.Month(), d.at.Day(), 0, 0, 0, 0, loc)
}

// end is the instant itself, or local midnight closing the date.
func (d dayParam) end(loc *time.Location) time.Time {
	if !d.dateOnly {
		return d.at
	}
	return time.Date(d.at.Year(), d.at.Month(), d.at.Day()+1, 0, 0, 0, 0, loc)
}

// parseDay accepts RFC 3339 instants or bare YYYY-MM-DD dates.
func parseDay(raw string) (dayParam, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return dayParam{}, errRequired
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return dayParam{at: t}, nil
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return dayParam{}, errBadDate
	}
	return dayParam{at: d, dateOnly: true}, nil
}

type paramError string

func (e paramError) Error() string { return string(e) }

const (
	errRequired paramError = "required"
	errBadDate  paramError = "expected YYYY-MM-DD or RFC 3339"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
