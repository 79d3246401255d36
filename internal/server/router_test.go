package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openjobspec/ojs-cron/internal/core"
	"github.com/openjobspec/ojs-cron/internal/metrics"
	"github.com/openjobspec/ojs-cron/internal/runlog"
	"github.com/openjobspec/ojs-cron/internal/runner"
)

func newTestServer(t *testing.T, cfg Config, store runlog.Store) string {
	t.Helper()

	reg := core.NewRegistry()
	payload := core.PayloadFunc(func(context.Context) error { return nil })
	if err := reg.Add("job.a", core.ScheduleSpec{RunEveryMins: 10}, payload); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	m := metrics.New()
	m.Init(core.Version, cfg.Store)
	r := runner.New(store, runner.WithObserver(m))

	ts := httptest.NewServer(NewRouter(cfg, RouterDeps{
		Registry: reg,
		Store:    store,
		Runner:   r,
		Metrics:  m.Handler(),
	}))
	t.Cleanup(ts.Close)
	return ts.URL
}

func do(t *testing.T, method, url string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body error = %v", err)
	}
	return resp, body
}

func TestRouter_HealthAndRequestID(t *testing.T) {
	url := newTestServer(t, testConfig(), runlog.NewMemoryStore())

	resp, body := do(t, http.MethodGet, url+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("missing X-Request-Id header")
	}
	var health map[string]any
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if health["version"] != core.Version || health["store"] != StoreMemory {
		t.Errorf("health = %v, want version %s store memory", health, core.Version)
	}
}

func TestRouter_ManualRunThenRunsAndMetrics(t *testing.T) {
	store := runlog.NewMemoryStore()
	url := newTestServer(t, testConfig(), store)

	resp, body := do(t, http.MethodPost, url+"/v1/jobs/job.a/run", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("run status = %d, want %d: %s", resp.StatusCode, http.StatusOK, body)
	}
	var run struct {
		Outcome struct {
			Status string `json:"status"`
		} `json:"outcome"`
	}
	if err := json.Unmarshal(body, &run); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if run.Outcome.Status != "succeeded" {
		t.Fatalf("outcome status = %q, want succeeded", run.Outcome.Status)
	}

	// Not due again within ten minutes.
	_, body = do(t, http.MethodPost, url+"/v1/jobs/job.a/run", nil)
	if !strings.Contains(string(body), `"status":"skipped"`) {
		t.Fatalf("second run body = %s, want skipped", body)
	}
	if got := store.Count(); got != 1 {
		t.Fatalf("entries = %d, want 1", got)
	}

	resp, body = do(t, http.MethodGet, url+"/v1/jobs/job.a/runs", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("runs status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var runs struct {
		Runs []map[string]any `json:"runs"`
	}
	if err := json.Unmarshal(body, &runs); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(runs.Runs) != 1 || runs.Runs[0]["is_success"] != true {
		t.Fatalf("runs = %v, want one successful run", runs.Runs)
	}

	_, body = do(t, http.MethodGet, url+"/metrics", nil)
	if !strings.Contains(string(body), `ojs_cron_job_runs_total{job="job.a",outcome="succeeded"} 1`) {
		t.Errorf("metrics missing succeeded run counter:\n%s", body)
	}
}

func TestRouter_APIKey(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = "secret"
	url := newTestServer(t, cfg, runlog.NewMemoryStore())

	resp, _ := do(t, http.MethodGet, url+"/v1/jobs", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("without key status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	resp, _ = do(t, http.MethodGet, url+"/v1/jobs", map[string]string{"Authorization": "Bearer secret"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("with key status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	resp, _ = do(t, http.MethodGet, url+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want %d (health is unauthenticated)", resp.StatusCode, http.StatusOK)
	}
}

func TestRouter_NATSEndToEnd(t *testing.T) {
	cfg := testConfig()
	cfg.Store = StoreNATS
	cfg.Lock = LockNATS
	cfg.NatsURL = natsURL()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	b, err := OpenBackend(ctx, cfg, nil)
	if err != nil {
		t.Skipf("skipping integration test; NATS unavailable at %s: %v", cfg.NatsURL, err)
	}
	t.Cleanup(func() { _ = b.Close() })

	code := "it-router-" + core.NewUUIDv7()
	reg := core.NewRegistry()
	if err := reg.Add(code, core.ScheduleSpec{RunEveryMins: 60}, core.PayloadFunc(func(context.Context) error { return nil })); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	opts := []runner.Option{runner.WithLocker(b.Locker)}
	for _, o := range b.Observers {
		opts = append(opts, runner.WithObserver(o))
	}
	ts := httptest.NewServer(NewRouter(cfg, RouterDeps{
		Registry: reg,
		Store:    b.Store,
		Runner:   runner.New(b.Store, opts...),
		Checks:   b.Checks,
	}))
	t.Cleanup(ts.Close)

	resp, body := do(t, http.MethodPost, ts.URL+"/v1/jobs/"+code+"/run", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"status":"succeeded"`) {
		t.Fatalf("run = %d %s, want succeeded", resp.StatusCode, body)
	}
	resp, body = do(t, http.MethodPost, ts.URL+"/v1/jobs/"+code+"/run", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"status":"skipped"`) {
		t.Fatalf("second run = %d %s, want skipped", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodGet, ts.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health = %d %s, want ok", resp.StatusCode, body)
	}
}

func natsURL() string {
	if u := getEnv("NATS_URL", ""); u != "" {
		return u
	}
	return "nats://localhost:4222"
}
