package meetings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/leadqual-platform/internal/tenancy"
)

func authed(r *http.Request, businessID string) *http.Request {
	return r.WithContext(tenancy.WithBusinessID(r.Context(), businessID))
}

func TestHandler_AvailabilityBookAndCancel(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.service(), nil)

	rec := httptest.NewRecorder()
	h.Availability(rec, authed(httptest.NewRequest(http.MethodGet, "/api/availability?from=2026-03-02&to=2026-03-02&duration=30", nil), "biz-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var slots slotsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&slots))
	require.Len(t, slots.Slots, 2)

	body := `{"lead_id":"` + f.lead.ID + `","start":"2026-03-02T09:00:00Z","end":"2026-03-02T09:30:00Z"}`
	rec = httptest.NewRecorder()
	h.Book(rec, authed(httptest.NewRequest(http.MethodPost, "/api/meetings", strings.NewReader(body)), "biz-1"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var booked Meeting
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&booked))

	rec = httptest.NewRecorder()
	h.Book(rec, authed(httptest.NewRequest(http.MethodPost, "/api/meetings", strings.NewReader(body)), "biz-1"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	h.List(rec, authed(httptest.NewRequest(http.MethodGet, "/api/meetings?status=scheduled", nil), "biz-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), booked.ID)

	req := authed(httptest.NewRequest(http.MethodPost, "/api/meetings/"+booked.ID+"/cancel", nil), "biz-1")
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("meetingID", booked.ID)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec = httptest.NewRecorder()
	h.Cancel(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"cancelled"`)
}

func TestHandler_AvailabilityValidation(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.service(), nil)

	cases := []struct {
		name  string
		query string
	}{
		{"missing from", "?to=2026-03-02"},
		{"bad date", "?from=March&to=2026-03-02"},
		{"bad duration", "?from=2026-03-02&to=2026-03-02&duration=-5"},
		{"reversed range", "?from=2026-03-05&to=2026-03-02"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Availability(rec, authed(httptest.NewRequest(http.MethodGet, "/api/availability"+tc.query, nil), "biz-1"))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandler_RequiresBusiness(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.service(), nil)
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/meetings", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func (f *fixture) moveBusinessTo(t *testing.T, tz string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(tz)
	require.NoError(t, err)
	biz, err := f.businesses.GetBusiness(context.Background(), "biz-1")
	require.NoError(t, err)
	biz.Timezone = tz
	f.businesses.SaveBusiness(*biz, "")
	return loc
}

func listMeetings(t *testing.T, h *Handler, query string) []Meeting {
	t.Helper()
	rec := httptest.NewRecorder()
	h.List(rec, authed(httptest.NewRequest(http.MethodGet, "/api/meetings"+query, nil), "biz-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Meetings []Meeting `json:"meetings"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Meetings
}

func TestHandler_AvailabilityBareDateInFarEastZone(t *testing.T) {
	f := newFixture(t)
	auckland := f.moveBusinessTo(t, "Pacific/Auckland")
	h := NewHandler(f.service(), nil)

	rec := httptest.NewRecorder()
	h.Availability(rec, authed(httptest.NewRequest(http.MethodGet, "/api/availability?from=2026-03-02&to=2026-03-02&duration=30", nil), "biz-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp slotsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	require.Len(t, resp.Slots, 2)
	want := time.Date(2026, 3, 2, 9, 0, 0, 0, auckland)
	assert.True(t, resp.Slots[0].Start.Equal(want), "first slot %s, want %s", resp.Slots[0].Start, want)
}

func TestHandler_ListBareDateCoversWholeLocalDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	morning := &Meeting{BusinessID: "biz-1", LeadID: f.lead.ID, StartAt: monday.Add(9 * time.Hour), EndAt: monday.Add(9*time.Hour + 30*time.Minute)}
	nextDay := &Meeting{BusinessID: "biz-1", LeadID: f.lead.ID, StartAt: monday.Add(33 * time.Hour), EndAt: monday.Add(33*time.Hour + 30*time.Minute)}
	require.NoError(t, f.repo.Create(ctx, morning))
	require.NoError(t, f.repo.Create(ctx, nextDay))
	h := NewHandler(f.service(), nil)

	got := listMeetings(t, h, "?from=2026-03-02&to=2026-03-02")
	require.Len(t, got, 1)
	assert.Equal(t, morning.ID, got[0].ID)

	got = listMeetings(t, h, "?from=2026-03-02T09:15:00Z")
	require.Len(t, got, 2)
}

func TestHandler_ListBareDateUsesBusinessZone(t *testing.T) {
	f := newFixture(t)
	auckland := f.moveBusinessTo(t, "Pacific/Auckland")
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, auckland)
	local := &Meeting{BusinessID: "biz-1", LeadID: f.lead.ID, StartAt: start, EndAt: start.Add(30 * time.Minute)}
	require.NoError(t, f.repo.Create(context.Background(), local))
	h := NewHandler(f.service(), nil)

	got := listMeetings(t, h, "?from=2026-03-02&to=2026-03-02")
	require.Len(t, got, 1)
	assert.Equal(t, local.ID, got[0].ID)

	assert.Empty(t, listMeetings(t, h, "?from=2026-03-01&to=2026-03-01"))
}
