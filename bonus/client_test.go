package bonus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	client, err := NewClient(Config{
		BaseURL: ts.URL,
		APIKey:  "bonus-key",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient(Config{APIKey: "k"}); err == nil {
		t.Fatalf("expected error without base url")
	}
	if _, err := NewClient(Config{BaseURL: "https://example.com"}); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestDisburse_PostsGrantRequest(t *testing.T) {
	var gotKey string
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	})

	if err := client.Disburse(context.Background(), "+10000000001", 200, "MAIL SUBSCRIBE"); err != nil {
		t.Fatalf("disburse: %v", err)
	}
	if gotKey != "bonus-key" {
		t.Fatalf("expected api key header, got %q", gotKey)
	}
	if gotBody["number"] != "+10000000001" || gotBody["sum"] != float64(200) || gotBody["comment"] != "MAIL SUBSCRIBE" {
		t.Fatalf("unexpected body: %v", gotBody)
	}
}

func TestDisburse_AcceptsAny2xx(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	if err := client.Disburse(context.Background(), "+1000", 10, "x"); err != nil {
		t.Fatalf("202 must succeed: %v", err)
	}
}

func TestDisburse_NonSuccessStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if err := client.Disburse(context.Background(), "+1000", 10, "x"); err == nil {
		t.Fatalf("expected error for 503")
	}
}

func TestDisburse_InputValidation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if err := client.Disburse(context.Background(), "  ", 10, "x"); err == nil {
		t.Fatalf("expected error for blank number")
	}
	if err := client.Disburse(context.Background(), "+1000", 0, "x"); err == nil {
		t.Fatalf("expected error for non-positive sum")
	}
}
