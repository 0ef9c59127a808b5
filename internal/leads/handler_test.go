package leads

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/leadqual-platform/internal/tenancy"
	"github.com/wolfman30/leadqual-platform/pkg/logging"
)

func withBusiness(req *http.Request, businessID string) *http.Request {
	return req.WithContext(tenancy.WithBusinessID(req.Context(), businessID))
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestCreateLead_Success(t *testing.T) {
	repo := NewInMemoryRepository()
	handler := NewHandler(repo, logging.Default())

	body, _ := json.Marshal(CreateLeadRequest{Name: "John Doe", Phone: "+15551234567", Channel: "whatsapp", Source: "website"})
	req := withBusiness(httptest.NewRequest(http.MethodPost, "/api/leads", bytes.NewReader(body)), "biz-1")
	w := httptest.NewRecorder()

	handler.CreateLead(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	var lead Lead
	if err := json.NewDecoder(w.Body).Decode(&lead); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if lead.BusinessID != "biz-1" || lead.Channel != ChannelWhatsApp || lead.Status != StatusNew {
		t.Fatalf("unexpected lead: %+v", lead)
	}
}

func TestCreateLead_MissingContact(t *testing.T) {
	handler := NewHandler(NewInMemoryRepository(), logging.Default())

	req := withBusiness(httptest.NewRequest(http.MethodPost, "/api/leads", strings.NewReader(`{"name":"John"}`)), "biz-1")
	w := httptest.NewRecorder()
	handler.CreateLead(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "phone or email is required") {
		t.Fatalf("expected field detail in body, got %s", w.Body.String())
	}
}

func TestCreateLead_InvalidJSON(t *testing.T) {
	handler := NewHandler(NewInMemoryRepository(), logging.Default())
	req := withBusiness(httptest.NewRequest(http.MethodPost, "/api/leads", strings.NewReader(`{`)), "biz-1")
	w := httptest.NewRecorder()
	handler.CreateLead(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestListLeads_FiltersByStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	a, _ := repo.Create(ctx, &CreateLeadRequest{BusinessID: "biz-1", Name: "A", Email: "a@example.com"})
	_, _ = repo.Create(ctx, &CreateLeadRequest{BusinessID: "biz-1", Name: "B", Email: "b@example.com"})
	_ = repo.UpdateStatus(ctx, a.ID, StatusQualified)

	handler := NewHandler(repo, logging.Default())
	req := withBusiness(httptest.NewRequest(http.MethodGet, "/api/leads?status=qualified&limit=10", nil), "biz-1")
	w := httptest.NewRecorder()
	handler.ListLeads(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp ListLeadsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || resp.Leads[0].ID != a.ID || resp.Limit != 10 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestUpdateStatus_RejectsRegression(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	lead, _ := repo.Create(ctx, &CreateLeadRequest{BusinessID: "biz-1", Name: "A", Email: "a@example.com"})
	_ = repo.UpdateStatus(ctx, lead.ID, StatusConverted)

	handler := NewHandler(repo, logging.Default())
	req := httptest.NewRequest(http.MethodPatch, "/api/leads/"+lead.ID+"/status", strings.NewReader(`{"status":"new"}`))
	req = withBusiness(withURLParam(req, "leadID", lead.ID), "biz-1")
	w := httptest.NewRecorder()
	handler.UpdateStatus(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetLead_OtherBusinessIsNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	lead, _ := repo.Create(ctx, &CreateLeadRequest{BusinessID: "biz-1", Name: "A", Email: "a@example.com"})

	handler := NewHandler(repo, logging.Default())
	req := httptest.NewRequest(http.MethodGet, "/api/leads/"+lead.ID, nil)
	req = withBusiness(withURLParam(req, "leadID", lead.ID), "biz-2")
	w := httptest.NewRecorder()
	handler.GetLead(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
