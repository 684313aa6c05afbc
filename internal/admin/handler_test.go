package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"leadfunnel_backend/internal/booking"
	"leadfunnel_backend/internal/conversation"
	apphttp "leadfunnel_backend/internal/http"
	"leadfunnel_backend/internal/leadstate"
	"leadfunnel_backend/internal/objection"
	"leadfunnel_backend/internal/transfer"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticLoader struct {
	entries []objection.Entry
	err     error
}

func (l staticLoader) LoadActive(context.Context) ([]objection.Entry, error) {
	return l.entries, l.err
}

type fakeResumer struct {
	known uuid.UUID
}

func (f fakeResumer) Resume(_ context.Context, id uuid.UUID) (transfer.Transfer, error) {
	if id != f.known {
		return transfer.Transfer{}, transfer.ErrNotFound
	}
	return transfer.Transfer{ID: id, Status: transfer.StatusCompleted}, nil
}

type fixture struct {
	engine     *gin.Engine
	leads      *leadstate.MemoryStore
	convs      *conversation.MemoryStore
	transferID uuid.UUID
}

func newFixture(t *testing.T, loader objection.Loader) *fixture {
	t.Helper()
	leads := leadstate.NewMemoryStore()
	convs := conversation.NewMemoryStore(leads)
	advisors := booking.NewMemoryAdvisorStore(booking.Advisor{
		LocationID:  "loc-puebla",
		Name:        "Ana Ruiz",
		BookingLink: "https://link.superleads.mx/widget/booking/ana",
		Active:      true,
	})
	id := uuid.New()

	m := NewModule(Deps{
		Objections:    objection.NewCache(loader, logger.Discard()),
		Advisors:      advisors,
		Leads:         leads,
		Conversations: convs,
		Transfers:     fakeResumer{known: id},
		Validator:     validator.New(),
		Log:           logger.Discard(),
	})

	r := gin.New()
	m.RegisterRoutes(&apphttp.RouterContext{Engine: r, Admin: r.Group("/api/v1/admin")})
	return &fixture{engine: r, leads: leads, convs: convs, transferID: id}
}

func (f *fixture) do(method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestRefreshObjections(t *testing.T) {
	f := newFixture(t, staticLoader{entries: []objection.Entry{
		{Category: "precio", Keywords: []string{"caro"}, ResponseTemplate: "Tenemos becas.", Active: true},
	}})

	w := f.do(http.MethodPost, "/api/v1/admin/objections/refresh")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp RefreshObjectionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Entries != 1 {
		t.Fatalf("expected one entry, got %d", resp.Entries)
	}
}

func TestRefreshObjectionsFailure(t *testing.T) {
	f := newFixture(t, staticLoader{err: errors.New("connection refused")})

	w := f.do(http.MethodPost, "/api/v1/admin/objections/refresh")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestListAdvisors(t *testing.T) {
	f := newFixture(t, staticLoader{})

	if w := f.do(http.MethodGet, "/api/v1/admin/advisors"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without locationId, got %d", w.Code)
	}

	w := f.do(http.MethodGet, "/api/v1/admin/advisors?locationId=loc-puebla")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Items []booking.Advisor `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Name != "Ana Ruiz" {
		t.Fatalf("unexpected advisors: %+v", resp.Items)
	}

	w = f.do(http.MethodGet, "/api/v1/admin/advisors?locationId=loc-none")
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || len(resp.Items) != 0 {
		t.Fatalf("expected empty list, got %s", w.Body.String())
	}
}

func TestGetLead(t *testing.T) {
	f := newFixture(t, staticLoader{})
	ctx := context.Background()

	if w := f.do(http.MethodGet, "/api/v1/admin/leads/c1"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown lead, got %d", w.Code)
	}

	if _, err := f.leads.Update(ctx, "c1", leadstate.Captured{Campus: "Puebla"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	w := f.do(http.MethodGet, "/api/v1/admin/leads/c1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp LeadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Lead.Captured.Campus != "Puebla" || resp.Conversation != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}

	if _, err := f.convs.GetOrCreate(ctx, "c1", "loc-puebla", "WhatsApp"); err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if _, err := f.convs.AppendMessage(ctx, conversation.Message{ContactID: "c1", Role: conversation.RoleIncoming, Content: "Hola"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	w = f.do(http.MethodGet, "/api/v1/admin/leads/c1")
	resp = LeadResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Conversation == nil || len(resp.Messages) != 1 || resp.Messages[0].Content != "Hola" {
		t.Fatalf("expected conversation with one message, got %+v", resp)
	}
}

func TestRetryTransfer(t *testing.T) {
	f := newFixture(t, staticLoader{})

	if w := f.do(http.MethodPost, "/api/v1/admin/transfers/not-a-uuid/retry"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w := f.do(http.MethodPost, "/api/v1/admin/transfers/"+uuid.NewString()+"/retry"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	w := f.do(http.MethodPost, "/api/v1/admin/transfers/"+f.transferID.String()+"/retry")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}
