package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	apperrors "restock-monitor/internal/errors"
	"restock-monitor/internal/resilience"
)

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_ParsesStock(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api-gateway/v1/catalog/items/stock" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("id") != "265193" || r.URL.Query().Get("storeId") != "3223" {
			t.Errorf("Unexpected query %s", r.URL.RawQuery)
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("Expected a User-Agent header")
		}
		w.Write([]byte(`{"stock": 7, "unit": "pcs"}`))
	})

	f := NewHTTPFetcher(Config{BaseURL: srv.URL}, zerolog.Nop())
	qty, err := f.Fetch(context.Background(), "265193", "3223")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if qty != 7 {
		t.Errorf("Expected 7, got %d", qty)
	}
}

func TestFetch_MissingStockIsZero(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	qty, err := NewHTTPFetcher(Config{BaseURL: srv.URL}, zerolog.Nop()).Fetch(context.Background(), "1", "2")
	if err != nil || qty != 0 {
		t.Fatalf("Expected 0, got %d (%v)", qty, err)
	}
}

func TestFetch_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"stock": 3}`},
		{"not found", http.StatusNotFound, ``},
		{"malformed", http.StatusOK, `<html>blocked</html>`},
		{"negative", http.StatusOK, `{"stock": -2}`},
		{"fractional", http.StatusOK, `{"stock": 1.5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := NewHTTPFetcher(Config{BaseURL: srv.URL}, zerolog.Nop()).Fetch(context.Background(), "1", "2")
			if !apperrors.IsFetchError(err) {
				t.Fatalf("Expected FetchError, got %v", err)
			}
		})
	}
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	f := NewHTTPFetcher(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, zerolog.Nop())
	start := time.Now()
	_, err := f.Fetch(context.Background(), "1", "2")
	if !apperrors.IsFetchError(err) {
		t.Fatalf("Expected FetchError, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("Timeout not applied")
	}
}

func TestFetch_CircuitOpenIsFetchError(t *testing.T) {
	calls := 0
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})

	breakers := resilience.NewGroup("lenta", resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		Timeout:          time.Hour,
	})
	f := NewHTTPFetcher(Config{BaseURL: srv.URL, Breakers: breakers}, zerolog.Nop())

	if _, err := f.Fetch(context.Background(), "1", "2"); !apperrors.IsFetchError(err) {
		t.Fatalf("Expected FetchError, got %v", err)
	}
	_, err := f.Fetch(context.Background(), "1", "2")
	if !apperrors.IsFetchError(err) || !apperrors.Is(err, apperrors.ErrCircuitOpen) {
		t.Fatalf("Expected circuit-open FetchError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected a single upstream call, got %d", calls)
	}
}

func TestFetch_BreakerPerProduct(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") == "bad" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"stock": 3}`))
	})

	breakers := resilience.NewGroup("lenta", resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		Timeout:          time.Hour,
	})
	f := NewHTTPFetcher(Config{BaseURL: srv.URL, Breakers: breakers}, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.Fetch(ctx, "bad", "1")
	}
	if _, err := f.Fetch(ctx, "bad", "1"); !apperrors.Is(err, apperrors.ErrCircuitOpen) {
		t.Fatalf("Expected the failing product's circuit to be open, got %v", err)
	}

	qty, err := f.Fetch(ctx, "good", "1")
	if err != nil || qty != 3 {
		t.Fatalf("Healthy product must not be rejected, got %d (%v)", qty, err)
	}
	// Same product in another store has its own breaker.
	if _, err := f.Fetch(ctx, "bad", "2"); apperrors.Is(err, apperrors.ErrCircuitOpen) {
		t.Errorf("Breaker leaked across stores: %v", err)
	}
}
