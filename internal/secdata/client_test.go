package secdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const sampleFacts = `{
  "cik": 320193,
  "entityName": "Example Inc",
  "facts": {
    "us-gaap": {
      "Revenues": {
        "units": {
          "USD": [
            {"end": "2024-09-28", "val": 220000000000, "accn": "0000320193-24-000001", "fy": 2024, "fp": "FY", "form": "10-K", "filed": "2024-11-01"},
            {"end": "2023-09-30", "val": 187000000000, "accn": "0000320193-23-000001", "fy": 2023, "fp": "FY", "form": "10-K", "filed": "2023-11-01"}
          ]
        }
      },
      "OperatingIncomeLoss": {
        "units": {
          "USD": [
            {"end": "2024-09-28", "val": 60000000000, "accn": "0000320193-24-000001", "fy": 2024, "fp": "FY", "form": "10-K", "filed": "2024-11-01"},
            {"end": "2023-09-30", "val": 50000000000, "accn": "0000320193-23-000001", "fy": 2023, "fp": "FY", "form": "10-K", "filed": "2023-11-01"}
          ]
        }
      },
      "DepreciationDepletionAndAmortization": {
        "units": {
          "USD": [
            {"end": "2024-09-28", "val": 11000000000, "accn": "0000320193-24-000001", "fy": 2024, "fp": "FY", "form": "10-K", "filed": "2024-11-01"},
            {"end": "2023-09-30", "val": 10000000000, "accn": "0000320193-23-000001", "fy": 2023, "fp": "FY", "form": "10-K", "filed": "2023-11-01"}
          ]
        }
      },
      "EarningsPerShareDiluted": {
        "units": {
          "USD/shares": [
            {"end": "2024-09-28", "val": 8.0, "accn": "0000320193-24-000001", "fy": 2024, "fp": "FY", "form": "10-K", "filed": "2024-11-01"},
            {"end": "2023-09-30", "val": 1.5, "accn": "0000320193-23-000001", "fy": 2023, "fp": "FY", "form": "10-K", "filed": "2023-11-01"}
          ]
        }
      }
    }
  }
}`

func newTestClient(t *testing.T, body string) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	c := NewClient("handspread-test (test@example.com)")
	c.http = srv.Client()
	c.baseURLFmt = srv.URL + "/%s"
	return c, srv
}

func TestFetchExtractsLTMAndPriorPeriod(t *testing.T) {
	c, srv := newTestClient(t, sampleFacts)
	defer srv.Close()

	periods, err := c.Fetch(context.Background(), "320193")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rev, ok := periods.LTM["revenue"]
	if !ok || rev.Value == nil || *rev.Value != 220000000000 {
		t.Fatalf("expected LTM revenue 220e9, got %v", rev.Value)
	}
	priorRev, ok := periods.LTMMinus1["revenue"]
	if !ok || priorRev.Value == nil || *priorRev.Value != 187000000000 {
		t.Fatalf("expected LTM-1 revenue 187e9, got %v", priorRev.Value)
	}
}

func TestFetchDerivesEBITDA(t *testing.T) {
	c, srv := newTestClient(t, sampleFacts)
	defer srv.Close()

	periods, err := c.Fetch(context.Background(), "320193")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ebitda, ok := periods.LTM["ebitda"]
	if !ok || ebitda.Value == nil || *ebitda.Value != 71000000000 {
		t.Fatalf("expected derived ebitda 71e9, got %v", ebitda.Value)
	}
}

func TestFetchPeriodSelectsLTMAndPrior(t *testing.T) {
	c, srv := newTestClient(t, sampleFacts)
	defer srv.Close()

	ltm, err := c.FetchPeriod(context.Background(), "320193", PeriodLTM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rev := ltm["revenue"]; rev.Value == nil || *rev.Value != 220000000000 {
		t.Fatalf("expected ltm revenue 220e9, got %v", rev.Value)
	}

	prior, err := c.FetchPeriod(context.Background(), "320193", PeriodLTMMinus1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rev := prior["revenue"]; rev.Value == nil || *rev.Value != 187000000000 {
		t.Fatalf("expected ltm-1 revenue 187e9, got %v", rev.Value)
	}
}

func TestFetchPeriodCoalescesConcurrentCalls(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		time.Sleep(10 * time.Millisecond) // widen the window so both goroutines are in flight together
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleFacts))
	}))
	defer srv.Close()

	c := NewClient("handspread-test (test@example.com)")
	c.baseURLFmt = srv.URL + "/%s"

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.FetchPeriod(context.Background(), "320193", PeriodLTM) }()
	go func() { defer wg.Done(); c.FetchPeriod(context.Background(), "320193", PeriodLTMMinus1) }()
	wg.Wait()

	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("expected concurrent ltm/ltm-1 fetches for one CIK to coalesce into 1 HTTP call, got %d", got)
	}
}

func TestFetchFlagsSplitContamination(t *testing.T) {
	c, srv := newTestClient(t, sampleFacts)
	defer srv.Close()

	periods, err := c.Fetch(context.Background(), "320193")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eps := periods.LTM["eps_diluted"]
	found := false
	for _, w := range eps.Warnings {
		if w == "Possible stock split contamination" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected split-contamination warning on eps_diluted (8.0 vs 1.5), got %v", eps.Warnings)
	}
}
