package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/logger"
)

type testConfig struct{ baseURL string }

func (c testConfig) GetCRMBaseURL() string        { return c.baseURL }
func (c testConfig) GetCRMTimeout() time.Duration { return 2 * time.Second }
func (c testConfig) GetCRMRateLimit() float64     { return 0 }
func (c testConfig) GetCRMMaxAttempts() int       { return 3 }

type tokens map[string]string

func (t tokens) Token(locationID string) string { return t[locationID] }

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(testConfig{baseURL: srv.URL}, tokens{"loc-a": "tok-a", "loc-b": "tok-b"}, logger.Discard())
	c.policy.BaseDelay = time.Millisecond
	return c
}

func TestSendMessageUsesLocationToken(t *testing.T) {
	var got sendMessagePayload
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations/messages" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok-b" || r.Header.Get("Version") != versionConversations {
			t.Errorf("unexpected headers %v", r.Header)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	})

	if err := c.SendMessage(context.Background(), "loc-b", "c1", "IG", "hola"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.Type != "IG" || got.ContactID != "c1" || got.Message != "hola" || got.Subject != replySubject {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	if err := c.AddTags(context.Background(), "loc-a", "c1", "Lead Tibio"); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	})

	err := c.AddNote(context.Background(), "loc-a", "c1", "nota")
	if err == nil || apperr.IsTransient(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestMissingCredentialIsInvariant(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected")
	})
	err := c.SendMessage(context.Background(), "unknown", "c1", "WhatsApp", "hola")
	if !apperr.Is(err, apperr.KindInvariant) {
		t.Fatalf("expected invariant error, got %v", err)
	}
}

func TestUpdateContactPayload(t *testing.T) {
	var got contactPayload
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/contacts/c1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
	})

	err := c.UpdateContact(context.Background(), "loc-a", "c1", ContactFields{
		FullName: "Ana María López",
		Phone:    "2221234567",
		Email:    "ana@example.com",
		Program:  "Primaria",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.FirstName != "Ana" || got.LastName != "María López" || got.Phone != "+522221234567" {
		t.Fatalf("unexpected contact payload %+v", got)
	}
	if len(got.CustomFields) != 1 || got.CustomFields[0].Key != ProgramFieldKey || got.CustomFields[0].Value != "Primaria" {
		t.Fatalf("unexpected custom fields %+v", got.CustomFields)
	}
}

func TestCreateContactAndDuplicateLookup(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/contacts/search/duplicate" && r.URL.Query().Get("email") != "":
			_, _ = w.Write([]byte(`{"contact":null}`))
		case r.URL.Path == "/contacts/search/duplicate":
			if r.URL.Query().Get("number") != "+522221234567" {
				t.Errorf("unexpected number %q", r.URL.Query().Get("number"))
			}
			_, _ = w.Write([]byte(`{"contact":{"id":"existing"}}`))
		case r.URL.Path == "/contacts/" && r.Method == http.MethodPost:
			_, _ = w.Write([]byte(`{"contact":{"id":"created"}}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.String())
		}
	})

	id, found, err := c.FindDuplicate(context.Background(), "loc-b", ContactFields{Phone: "2221234567", Email: "ana@example.com"})
	if err != nil || !found || id != "existing" {
		t.Fatalf("expected phone duplicate, got %q %v %v", id, found, err)
	}

	id, err = c.CreateContact(context.Background(), "loc-b", NewContact{ContactFields: ContactFields{FullName: "Ana"}, Tags: []string{"Transferido"}})
	if err != nil || id != "created" {
		t.Fatalf("expected created id, got %q (%v)", id, err)
	}
}

func TestAssignedUserID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"contact":{"id":"c1","assignedTo":"user-7"}}`))
	})
	got, err := c.AssignedUserID(context.Background(), "loc-a", "c1")
	if err != nil || got != "user-7" {
		t.Fatalf("expected user-7, got %q (%v)", got, err)
	}
}
