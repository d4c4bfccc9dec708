package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"restock-monitor/internal/config"
	apperrors "restock-monitor/internal/errors"
	"restock-monitor/internal/models"
	"restock-monitor/internal/monitor"
	"restock-monitor/internal/resilience"
)

const testConfig = `
[[items]]
id = "hw_265193"
display_name = "Hot Wheels Basic Car"
product_id = "265193"
store_id = "3223"
store_label = "Lenta"

[schedule]
times = ["07:00", "15:00"]
timezone = "UTC"

[fetcher]
base_url = "%s"
timeout = "2s"

[storage]
path = "%s"

[bot]
enabled = false

[server]
enabled = false

[logging]
console = false
file = false

[notifications]
enabled = false
`

// setupConfig writes a config directory whose fetcher points at a catalog
// stub answering the given quantities in order.
func setupConfig(t *testing.T, quantities ...int) string {
	t.Helper()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := int(atomic.AddInt32(&calls, 1)) - 1
		if i >= len(quantities) {
			i = len(quantities) - 1
		}
		fmt.Fprintf(w, `{"stock": %d}`, quantities[i])
	}))
	t.Cleanup(srv.Close)
	return writeConfig(t, srv.URL)
}

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(testConfig, baseURL, filepath.Join(dir, "restock.db"))
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd(zerolog.Nop())
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version", "--json")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}

	var v map[string]string
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("Invalid JSON %q: %v", out, err)
	}
	if v["version"] != Version {
		t.Errorf("Expected version %s, got %v", Version, v)
	}
}

func TestConfigPath(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, "config", "path", "--config", dir)
	if err != nil {
		t.Fatalf("config path failed: %v", err)
	}
	if strings.TrimSpace(out) != dir {
		t.Errorf("Expected %s, got %q", dir, out)
	}
}

func TestConfigValidate(t *testing.T) {
	out, err := run(t, "config", "validate", "--config", setupConfig(t, 1))
	if err != nil {
		t.Fatalf("validate failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Configuration is valid") {
		t.Errorf("Unexpected output %q", out)
	}

	// An empty directory gets a template, which still needs editing.
	if _, err := run(t, "config", "validate", "--config", t.TempDir()); err == nil {
		t.Error("Expected validation to fail for a fresh template")
	}
}

func TestConfigShow_MasksToken(t *testing.T) {
	dir := setupConfig(t, 1)
	t.Setenv("TELEGRAM_BOT_TOKEN", "123456:ABCDEFGHIJKLMNOP")

	out, err := run(t, "config", "show", "--config", dir)
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if strings.Contains(out, "ABCDEFGHIJKLMNOP") {
		t.Errorf("Token leaked in output:\n%s", out)
	}
	if !strings.Contains(out, "hw_265193") {
		t.Errorf("Expected tracked item in output:\n%s", out)
	}
}

func TestCheck_DetectsRestockAcrossRuns(t *testing.T) {
	dir := setupConfig(t, 3, 7)

	out, err := run(t, "check", "--json", "--config", dir)
	if err != nil {
		t.Fatalf("First check failed: %v", err)
	}
	var first monitor.Report
	if err := json.Unmarshal([]byte(out), &first); err != nil {
		t.Fatalf("Invalid report JSON: %v\n%s", err, out)
	}
	if len(first.Items) != 1 || first.Items[0].Outcome != monitor.OutcomeRecorded || first.Items[0].Quantity != 3 {
		t.Fatalf("Expected baseline sample, got %+v", first.Items)
	}

	out, err = run(t, "check", "--json", "--config", dir)
	if err != nil {
		t.Fatalf("Second check failed: %v", err)
	}
	var second monitor.Report
	if err := json.Unmarshal([]byte(out), &second); err != nil {
		t.Fatalf("Invalid report JSON: %v", err)
	}
	it := second.Items[0]
	if it.Outcome != monitor.OutcomeRestock || it.Event == nil || it.Event.Delta != 4 {
		t.Fatalf("Expected a restock of +4, got %+v", it)
	}

	out, err = run(t, "restocks", "--json", "--config", dir)
	if err != nil {
		t.Fatalf("restocks failed: %v", err)
	}
	var events []models.RestockEvent
	if err := json.Unmarshal([]byte(out), &events); err != nil {
		t.Fatalf("Invalid restocks JSON: %v", err)
	}
	if len(events) != 1 || events[0].PreviousQuantity != 3 || events[0].NewQuantity != 7 {
		t.Fatalf("Unexpected restock log %+v", events)
	}
	// No channel is enabled, so delivery fails and is recorded as such.
	if events[0].DeliveryStatus != models.DeliveryFailed {
		t.Errorf("Expected failed delivery, got %s", events[0].DeliveryStatus)
	}
}

func TestStats(t *testing.T) {
	dir := setupConfig(t, 5)

	out, err := run(t, "stats", "--config", dir)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if !strings.Contains(out, "No data for the selected period") {
		t.Errorf("Expected the no-data message, got %q", out)
	}

	if _, err := run(t, "check", "--config", dir); err != nil {
		t.Fatalf("check failed: %v", err)
	}
	out, err = run(t, "stats", "--period", "month", "--config", dir)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if !strings.Contains(out, "Month statistics") || !strings.Contains(out, "5") {
		t.Errorf("Unexpected statistics output:\n%s", out)
	}

	if _, err := run(t, "stats", "--period", "year", "--config", dir); !apperrors.Is(err, apperrors.ErrUnknownPeriod) {
		t.Errorf("Expected ErrUnknownPeriod, got %v", err)
	}
}

func TestStock(t *testing.T) {
	dir := setupConfig(t, 12)

	out, err := run(t, "stock", "--config", dir)
	if err != nil {
		t.Fatalf("stock failed: %v", err)
	}
	if !strings.Contains(out, "12 pcs.") {
		t.Errorf("Unexpected output %q", out)
	}

	if _, err := run(t, "stock", "missing", "--config", dir); !apperrors.Is(err, apperrors.ErrItemNotFound) {
		t.Errorf("Expected ErrItemNotFound, got %v", err)
	}

	// The on-demand query leaves no sample behind.
	out, err = run(t, "stats", "--json", "--config", dir)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if strings.TrimSpace(out) != "null" {
		t.Errorf("Expected no samples, got %s", out)
	}
}

func TestRuntime_QueryFailuresDoNotTripCycle(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 5 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"stock": 3}`)
	}))
	t.Cleanup(srv.Close)

	cfg, err := config.Load(writeConfig(t, srv.URL))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	rt, err := newRuntime(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to build runtime: %v", err)
	}
	defer rt.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := rt.query.Current(ctx, "hw_265193"); !apperrors.IsFetchError(err) {
			t.Fatalf("Query %d: expected FetchError, got %v", i, err)
		}
	}

	report := rt.cycle.Run(ctx)
	if it := report.Items[0]; it.Outcome != monitor.OutcomeRecorded || it.Quantity != 3 {
		t.Fatalf("Expected the cycle to record 3, got %+v", it)
	}
	if state := rt.breakers.Get("265193@3223").State(); state != resilience.CircuitClosed {
		t.Errorf("Cycle breaker must stay closed, got %s", state)
	}
}
