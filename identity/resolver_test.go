package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestResolver(t *testing.T, handler http.HandlerFunc) (*Resolver, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	resolver, err := NewResolver(Config{
		BaseURL: ts.URL,
		APIKey:  "test-key",
	})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	return resolver, ts
}

func TestNewResolver_Validation(t *testing.T) {
	if _, err := NewResolver(Config{APIKey: "k"}); err == nil {
		t.Fatalf("expected error without base url")
	}
	if _, err := NewResolver(Config{BaseURL: "https://example.com"}); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestResolve_MapsProfileFields(t *testing.T) {
	var gotQuery map[string]string
	resolver, _ := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"number":  r.URL.Query().Get("number"),
			"api_key": r.URL.Query().Get("api_key"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"email": "jane@example.com",
			"phone": "+10000000001",
			"first_name": "Jane",
			"last_name": "Doe",
			"birth_date": "1990-04-01",
			"gender": "f",
			"card_number": "ABC123",
			"balance": 42.5,
			"check_count": 7,
			"average_check": 13.25,
			"register_date": "2021-01-05",
			"last_visit_date": "2024-02-10",
			"resto_id": 12,
			"osmi_setup": true,
			"segments": [{"name": "vip"}, {"name": "brunch"}]
		}`))
	})

	profile, err := resolver.Resolve(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if gotQuery["number"] != "ABC123" || gotQuery["api_key"] != "test-key" {
		t.Fatalf("unexpected query: %v", gotQuery)
	}
	if profile.Email != "jane@example.com" || profile.Phone != "+10000000001" {
		t.Fatalf("unexpected contact fields: %+v", profile)
	}
	if profile.FirstName != "Jane" || profile.LastName != "Doe" {
		t.Fatalf("unexpected name fields: %+v", profile)
	}
	if profile.Balance != 42.5 || profile.CheckCount != 7 || profile.RestoID != 12 {
		t.Fatalf("unexpected numeric fields: %+v", profile)
	}
	if !profile.OsmiSetup {
		t.Fatalf("expected osmi_setup true")
	}
	if len(profile.Segments) != 2 || profile.Segments[0] != "vip" {
		t.Fatalf("unexpected segments: %v", profile.Segments)
	}
	if profile.Raw["email"] != "jane@example.com" {
		t.Fatalf("raw payload must be retained")
	}
}

func TestResolve_ToleratesStringNumerics(t *testing.T) {
	resolver, _ := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"email":"a@b.c","balance":"10.5","check_count":"3","osmi_setup":"true"}`))
	})

	profile, err := resolver.Resolve(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if profile.Balance != 10.5 || profile.CheckCount != 3 || !profile.OsmiSetup {
		t.Fatalf("string numerics must be coerced: %+v", profile)
	}
}

func TestResolve_NonOKStatusIsNotFound(t *testing.T) {
	resolver, _ := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := resolver.Resolve(context.Background(), "ABC123")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
	var notFound *ProfileNotFoundError
	if !errors.As(err, &notFound) || notFound.Cause == nil {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestResolve_MalformedBody(t *testing.T) {
	resolver, _ := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	if _, err := resolver.Resolve(context.Background(), "ABC123"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestResolve_RequiresSerial(t *testing.T) {
	resolver, _ := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	if _, err := resolver.Resolve(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for blank serial")
	}
}
