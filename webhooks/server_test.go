package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/osmi-labs/cardlink/core"
)

type stubIngestor struct {
	err     error
	serials []string
	events  []string
}

func (s *stubIngestor) Ingest(_ context.Context, serial string, event string) error {
	s.serials = append(s.serials, serial)
	s.events = append(s.events, event)
	return s.err
}

type stubJournal struct {
	requests []core.RequestEvent
}

func (s *stubJournal) AppendRequest(_ context.Context, event core.RequestEvent) error {
	s.requests = append(s.requests, event)
	return nil
}

func (s *stubJournal) AppendSerial(context.Context, core.SerialEvent) error { return nil }

func (s *stubJournal) AppendUpstreamCall(context.Context, core.UpstreamCallEvent) error { return nil }

func newTestServer(t *testing.T, ingestor *stubIngestor, journal *stubJournal, cfg ServerConfig) *Server {
	t.Helper()
	processor, err := NewProcessor(ingestor, journal, nil)
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	server, err := NewServer(cfg, processor, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return server
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestWebhookGET_Success(t *testing.T) {
	ingestor := &stubIngestor{}
	journal := &stubJournal{}
	server := newTestServer(t, ingestor, journal, ServerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/webhook?serial=ABC123-X9&event=cardcreate", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["status"] != "success" {
		t.Fatalf("unexpected body: %v", body)
	}
	if len(ingestor.serials) != 1 || ingestor.serials[0] != "ABC123-X9" {
		t.Fatalf("unexpected ingest calls: %v", ingestor.serials)
	}
	if len(journal.requests) != 1 || journal.requests[0].Method != http.MethodGet {
		t.Fatalf("expected a journaled request, got %+v", journal.requests)
	}
}

func TestWebhookPOST_ReadsFormValues(t *testing.T) {
	ingestor := &stubIngestor{}
	server := newTestServer(t, ingestor, &stubJournal{}, ServerConfig{})

	form := url.Values{"serial": {"DEF456"}, "event": {"cardcreate"}}
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(ingestor.serials) != 1 || ingestor.serials[0] != "DEF456" {
		t.Fatalf("unexpected ingest calls: %v", ingestor.serials)
	}
}

func TestWebhook_MissingParams(t *testing.T) {
	ingestor := &stubIngestor{}
	server := newTestServer(t, ingestor, &stubJournal{}, ServerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/webhook?serial=ABC123", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(ingestor.serials) != 0 {
		t.Fatalf("ingestor must not run without both params")
	}
}

func TestWebhook_ValidationErrorIs400(t *testing.T) {
	ingestor := &stubIngestor{err: core.NewValidationError("core: unsupported event \"x\"")}
	journal := &stubJournal{}
	server := newTestServer(t, ingestor, journal, ServerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/webhook?serial=ABC123&event=x", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(journal.requests) != 1 || journal.requests[0].Error == "" {
		t.Fatalf("failed requests must be journaled with their error, got %+v", journal.requests)
	}
}

func TestWebhook_TransientErrorIs500(t *testing.T) {
	ingestor := &stubIngestor{err: core.NewTransientUpstreamError("core: identity resolution failed")}
	server := newTestServer(t, ingestor, &stubJournal{}, ServerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/webhook?serial=ABC123&event=cardcreate", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "event processing failed; queued for retry" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestWebhook_PersistenceErrorDoesNotPromiseRetry(t *testing.T) {
	ingestor := &stubIngestor{err: core.NewPersistenceError("core: retry enqueue failed: database is locked")}
	server := newTestServer(t, ingestor, &stubJournal{}, ServerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/webhook?serial=ABC123&event=cardcreate", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	msg, _ := body["error"].(string)
	if msg != "event processing failed" {
		t.Fatalf("an unparked event must not be reported as queued, got %v", body)
	}
}

func TestWebhookAuth_AnonymousPassesThrough(t *testing.T) {
	ingestor := &stubIngestor{}
	server := newTestServer(t, ingestor, &stubJournal{}, ServerConfig{Username: "hook", Password: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/webhook?serial=ABC123&event=cardcreate", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous requests pass through, got %d", rec.Code)
	}
}

func TestWebhookAuth_WrongCredentialsRejected(t *testing.T) {
	ingestor := &stubIngestor{}
	server := newTestServer(t, ingestor, &stubJournal{}, ServerConfig{Username: "hook", Password: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/webhook?serial=ABC123&event=cardcreate", nil)
	req.SetBasicAuth("hook", "wrong")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate header")
	}
	if len(ingestor.serials) != 0 {
		t.Fatalf("rejected requests must not reach the ingestor")
	}
}

func TestWebhookAuth_CorrectCredentialsAccepted(t *testing.T) {
	ingestor := &stubIngestor{}
	server := newTestServer(t, ingestor, &stubJournal{}, ServerConfig{Username: "hook", Password: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/webhook?serial=ABC123&event=cardcreate", nil)
	req.SetBasicAuth("hook", "secret")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, &stubIngestor{}, &stubJournal{}, ServerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "healthy" {
		t.Fatalf("unexpected body: %v", body)
	}
	if _, ok := body["timestamp"].(string); !ok {
		t.Fatalf("expected a timestamp, got %v", body["timestamp"])
	}
}
