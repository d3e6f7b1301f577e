package secdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const sampleTickerMap = `{
  "0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."},
  "1": {"cik_str": 789019, "ticker": "MSFT", "title": "Microsoft Corp"}
}`

func TestResolveKnownTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleTickerMap))
	}))
	defer srv.Close()

	r := NewTickerResolver("handspread-test (test@example.com)")
	r.url = srv.URL

	cik, err := r.Resolve(context.Background(), "aapl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cik != "0000320193" {
		t.Errorf("cik = %q, want 0000320193", cik)
	}
}

func TestResolveUnknownTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleTickerMap))
	}))
	defer srv.Close()

	r := NewTickerResolver("handspread-test (test@example.com)")
	r.url = srv.URL

	_, err := r.Resolve(context.Background(), "ZZZZ")
	if err == nil {
		t.Error("expected error for unknown ticker")
	}
}
