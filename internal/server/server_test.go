package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"restock-monitor/internal/audit"
	"restock-monitor/internal/monitor"
	"restock-monitor/internal/resilience"
)

type fakeScheduler struct {
	mu    sync.Mutex
	runs  int
	last  *monitor.Report
	next  time.Time
	items []monitor.ItemReport
}

func (f *fakeScheduler) Trigger(ctx context.Context) monitor.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	r := monitor.Report{CycleID: "cycle-1", Items: f.items}
	f.last = &r
	return r
}

func (f *fakeScheduler) LastReport() (monitor.Report, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return monitor.Report{}, false
	}
	return *f.last, true
}

func (f *fakeScheduler) Running() bool { return false }

func (f *fakeScheduler) Next(t time.Time) time.Time { return f.next }

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

type bufferCloser struct{ strings.Builder }

func (b *bufferCloser) Close() error { return nil }

func body(t *testing.T, s *Server, method, path string) (int, string) {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest(method, path, nil))
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(data)
}

func TestBannerAndHealth(t *testing.T) {
	s := New(&fakeScheduler{}, zerolog.Nop())

	if code, text := body(t, s, "GET", "/"); code != 200 || text != Banner {
		t.Errorf("GET / = %d %q", code, text)
	}
	if code, text := body(t, s, "GET", "/health"); code != 200 || text != "OK" {
		t.Errorf("GET /health = %d %q", code, text)
	}
}

func TestHealth_StorageDown(t *testing.T) {
	s := New(&fakeScheduler{}, zerolog.Nop(), WithPinger(fakePinger{err: errors.New("disk I/O error")}))

	code, text := body(t, s, "GET", "/health")
	if code != 503 || strings.Contains(text, "disk") {
		t.Errorf("Expected an opaque 503, got %d %q", code, text)
	}
}

func TestCheckNow(t *testing.T) {
	sched := &fakeScheduler{items: []monitor.ItemReport{
		{ItemID: "hw_265193", Outcome: monitor.OutcomeRestock, Quantity: 7},
	}}
	buf := &bufferCloser{}
	s := New(sched, zerolog.Nop(), WithAudit(audit.NewLoggerWithWriter(buf)))

	for _, method := range []string{"GET", "POST"} {
		code, text := body(t, s, method, "/check-now")
		if code != 200 {
			t.Fatalf("%s /check-now = %d", method, code)
		}

		var sum reportSummary
		if err := json.Unmarshal([]byte(text), &sum); err != nil {
			t.Fatalf("Response is not a report: %v", err)
		}
		if sum.CycleID != "cycle-1" || sum.Restocks != 1 || len(sum.Items) != 1 || sum.Items[0].Outcome != monitor.OutcomeRestock {
			t.Errorf("Unexpected report %+v", sum)
		}
		if q := sum.Items[0].Quantity; q == nil || *q != 7 {
			t.Errorf("Expected quantity 7, got %v", q)
		}
	}

	if sched.runs != 2 {
		t.Errorf("Expected 2 triggered cycles, got %d", sched.runs)
	}
	if !strings.Contains(buf.String(), `"event_type":"MANUAL_CHECK"`) {
		t.Errorf("Expected a manual check audit entry, got %s", buf.String())
	}
}

func TestStatus(t *testing.T) {
	next := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)
	sched := &fakeScheduler{next: next}
	s := New(sched, zerolog.Nop())

	_, text := body(t, s, "GET", "/status")
	var resp statusResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("Invalid status JSON: %v", err)
	}
	if !resp.NextRun.Equal(next) || resp.LastReport != nil {
		t.Errorf("Unexpected status before any run: %+v", resp)
	}

	body(t, s, "POST", "/check-now")
	_, text = body(t, s, "GET", "/status")
	resp = statusResponse{}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("Invalid status JSON: %v", err)
	}
	if resp.LastReport == nil || resp.LastReport.CycleID != "cycle-1" {
		t.Errorf("Expected the last report, got %+v", resp)
	}
}

func TestCheckNow_HidesErrorDetail(t *testing.T) {
	sched := &fakeScheduler{items: []monitor.ItemReport{
		{ItemID: "a", Outcome: monitor.OutcomeFetchFailed, Error: "fetch error [100@1]: transport: dial tcp 10.0.0.7:443: connection refused"},
		{ItemID: "b", Outcome: monitor.OutcomeRecorded, Quantity: 4},
	}}
	var logs strings.Builder
	s := New(sched, zerolog.New(&logs))

	code, text := body(t, s, "POST", "/check-now")
	if code != 200 {
		t.Fatalf("POST /check-now = %d", code)
	}
	if strings.Contains(text, "10.0.0.7") || strings.Contains(text, "connection refused") {
		t.Errorf("Error detail leaked into the response: %s", text)
	}

	var sum reportSummary
	if err := json.Unmarshal([]byte(text), &sum); err != nil {
		t.Fatalf("Invalid report JSON: %v", err)
	}
	if sum.Failed != 1 || sum.Recorded != 1 || sum.Items[0].Quantity != nil {
		t.Errorf("Unexpected summary %+v", sum)
	}

	// The detail and the request scope end up in the log instead.
	out := logs.String()
	if !strings.Contains(out, "connection refused") || !strings.Contains(out, `"operation":"POST /check-now"`) || !strings.Contains(out, `"request_id"`) {
		t.Errorf("Expected request-scoped error log, got %s", out)
	}
}

type fakeBreakers []resilience.CircuitBreakerStats

func (f fakeBreakers) Stats() []resilience.CircuitBreakerStats { return f }

func TestStatus_ListsBreakers(t *testing.T) {
	s := New(&fakeScheduler{}, zerolog.Nop(), WithBreakers(fakeBreakers{
		{Name: "catalog/265193@3223", State: resilience.CircuitOpen, TotalRequests: 8, TotalFailures: 5, TotalRejected: 3},
	}))

	_, text := body(t, s, "GET", "/status")
	var resp statusResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("Invalid status JSON: %v", err)
	}
	if len(resp.Breakers) != 1 {
		t.Fatalf("Expected one breaker, got %+v", resp.Breakers)
	}
	b := resp.Breakers[0]
	if b.State != resilience.CircuitOpen || b.FailureRate != 62.5 || b.Rejected != 3 {
		t.Errorf("Unexpected breaker status %+v", b)
	}
}

func TestUnknownRoute(t *testing.T) {
	s := New(&fakeScheduler{}, zerolog.Nop())

	if code, _ := body(t, s, "GET", "/missing"); code != 404 {
		t.Errorf("Expected 404, got %d", code)
	}
}
