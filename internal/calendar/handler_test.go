package calendar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/leadqual-platform/internal/tenancy"
)

type stubConnector struct {
	code string
}

func (s *stubConnector) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (s *stubConnector) Exchange(ctx context.Context, userID, code string) (*Credential, error) {
	s.code = code
	return &Credential{UserID: userID, RefreshToken: "rt-" + code}, nil
}

func TestHandler_ConnectAndSave(t *testing.T) {
	store := NewInMemoryCredentialStore()
	conn := &stubConnector{}
	h := NewHandler(conn, store, nil)

	ctx := tenancy.WithUserID(context.Background(), "owner-1")
	req := httptest.NewRequest(http.MethodGet, "/api/calendar/connect", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ConnectURL(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "state=owner-1")

	req = httptest.NewRequest(http.MethodPost, "/api/calendar/credentials", strings.NewReader(`{"code":"abc","calendar_id":"team"}`)).WithContext(ctx)
	rec = httptest.NewRecorder()
	h.SaveCredential(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	cred, err := store.GetCredential(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "rt-abc", cred.RefreshToken)
	assert.Equal(t, "team", cred.CalendarID)
}

func TestHandler_RequiresUser(t *testing.T) {
	h := NewHandler(&stubConnector{}, NewInMemoryCredentialStore(), nil)
	rec := httptest.NewRecorder()
	h.SaveCredential(rec, httptest.NewRequest(http.MethodPost, "/api/calendar/credentials", strings.NewReader(`{"code":"abc"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
