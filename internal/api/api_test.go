package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewatch/pulsewatch/internal/actions"
	"github.com/pulsewatch/pulsewatch/internal/auth"
	"github.com/pulsewatch/pulsewatch/internal/logstream"
	"github.com/pulsewatch/pulsewatch/internal/models"
	"github.com/pulsewatch/pulsewatch/internal/scan"
	"github.com/pulsewatch/pulsewatch/internal/store"
)

type fixture struct {
	router      http.Handler
	store       *store.Store
	broadcaster *logstream.Broadcaster
	scanner     *scan.Orchestrator
}

func newFixture(t *testing.T, token string, scanCommand ...string) *fixture {
	t.Helper()
	if len(scanCommand) == 0 {
		scanCommand = []string{"/bin/sh", "-c", "sleep 0.2"}
	}

	broadcaster := logstream.New(64, nil)
	reportStore := store.New(20, nil, nil)
	scanner := scan.New(scanCommand, time.Minute, broadcaster, nil)
	dispatcher := actions.New([]string{t.TempDir()}, 0, broadcaster, nil)

	router := Router(Deps{
		Store:        reportStore,
		Orchestrator: scanner,
		Dispatcher:   dispatcher,
		Broadcaster:  broadcaster,
		AuthSvc:      auth.NewService(token),
		Logger:       nil,
	})
	return &fixture{
		router:      router,
		store:       reportStore,
		broadcaster: broadcaster,
		scanner:     scanner,
	}
}

func (fx *fixture) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for n := 0; n+1 < len(headers); n += 2 {
		req.Header.Set(headers[n], headers[n+1])
	}

	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)
	return w
}

func sampleReport(host string) models.Report {
	cpu := 25.0
	diskPct := 40.0
	return models.Report{
		Host:       host,
		IP:         "10.1.0.7",
		OS:         "Debian 13",
		Timestamp:  time.Now().UTC(),
		CPUPercent: &cpu,
		Disks: []models.DiskUsage{
			{Mount: "/", Used: 40, Free: 60, Total: 100, Percent: &diskPct},
		},
		ProcessCount: 120,
	}
}

func TestIngestAndLatest(t *testing.T) {
	fx := newFixture(t, "")

	for _, path := range []string{"/upload", "/api/report"} {
		w := fx.do(http.MethodPost, path, sampleReport("web01"))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := fx.do(http.MethodGet, "/data", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report models.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "web01", report.Host)
	require.NotNil(t, report.Score)
	assert.GreaterOrEqual(t, *report.Score, 0)
	assert.LessOrEqual(t, *report.Score, 100)
}

func TestIngestInvalidBody(t *testing.T) {
	fx := newFixture(t, "")

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestMissingHost(t *testing.T) {
	fx := newFixture(t, "")

	w := fx.do(http.MethodPost, "/upload", models.Report{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLatestEmptyStore(t *testing.T) {
	fx := newFixture(t, "")

	w := fx.do(http.MethodGet, "/data", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLatestByHostFilter(t *testing.T) {
	fx := newFixture(t, "")
	fx.do(http.MethodPost, "/upload", sampleReport("web01"))
	fx.do(http.MethodPost, "/upload", sampleReport("db01"))

	w := fx.do(http.MethodGet, "/data?host=db01", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report models.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "db01", report.Host)

	assert.Equal(t, http.StatusNotFound, fx.do(http.MethodGet, "/data?host=ghost", nil).Code)
}

func TestHistoryEndpoint(t *testing.T) {
	fx := newFixture(t, "")

	w := fx.do(http.MethodGet, "/history?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String(), "empty history is an empty array, not an error")

	for n := 0; n < 3; n++ {
		fx.do(http.MethodPost, "/upload", sampleReport(fmt.Sprintf("host-%d", n)))
	}

	w = fx.do(http.MethodGet, "/history?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []models.HistoryEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "host-1", entries[0].Host)
	assert.Equal(t, "host-2", entries[1].Host)

	assert.Equal(t, http.StatusBadRequest, fx.do(http.MethodGet, "/history?limit=abc", nil).Code)
}

func TestHostsEndpoint(t *testing.T) {
	fx := newFixture(t, "")
	fx.do(http.MethodPost, "/upload", sampleReport("web01"))
	fx.do(http.MethodPost, "/upload", sampleReport("db01"))

	w := fx.do(http.MethodGet, "/hosts", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var hosts []models.HostSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hosts))
	require.Len(t, hosts, 2)
	assert.Equal(t, "db01", hosts[0].Host)
}

func TestScanLifecycle(t *testing.T) {
	fx := newFixture(t, "")

	w := fx.do(http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status models.ScanStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.False(t, status.Running)

	w = fx.do(http.MethodPost, "/start-scan", map[string]string{"mode": "partial"})
	assert.Equal(t, http.StatusAccepted, w.Code)

	// A second start while running is rejected, not queued.
	w = fx.do(http.MethodPost, "/start-scan", map[string]string{"mode": "full"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = fx.do(http.MethodGet, "/status", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Running)
	assert.Equal(t, "partial", status.Mode)

	fx.scanner.Wait()

	w = fx.do(http.MethodPost, "/start-scan", map[string]string{"mode": "partial"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	fx.scanner.Wait()
}

func TestStartScanInvalidMode(t *testing.T) {
	fx := newFixture(t, "")

	w := fx.do(http.MethodPost, "/start-scan", map[string]string{"mode": "everything"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConcurrentStartScan(t *testing.T) {
	fx := newFixture(t, "")

	const callers = 6
	codes := make([]int, callers)
	var wg sync.WaitGroup
	for n := 0; n < callers; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			codes[n] = fx.do(http.MethodPost, "/start-scan", map[string]string{"mode": "full"}).Code
		}(n)
	}
	wg.Wait()

	accepted := 0
	for _, code := range codes {
		switch code {
		case http.StatusAccepted:
			accepted++
		case http.StatusConflict:
		default:
			t.Fatalf("unexpected status %d", code)
		}
	}
	assert.Equal(t, 1, accepted)
	fx.scanner.Wait()
}

func TestActionClearTemp(t *testing.T) {
	fx := newFixture(t, "")

	w := fx.do(http.MethodPost, "/action/clear_temp", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result models.ActionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "ok", result.Status)
}

func TestActionKillUnknownPid(t *testing.T) {
	fx := newFixture(t, "")

	w := fx.do(http.MethodPost, "/action/kill", map[string]int{"pid": -1})
	assert.Equal(t, http.StatusNotFound, w.Code)

	var result models.ActionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "error", result.Status)
	assert.NotEmpty(t, result.Detail)
}

func TestActionBoost(t *testing.T) {
	fx := newFixture(t, "")

	w := fx.do(http.MethodPost, "/action/boost", map[string]string{"mode": "soft"})
	require.Equal(t, http.StatusOK, w.Code)

	var result models.ActionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "ok", result.Status)
	assert.NotEmpty(t, result.Steps)

	w = fx.do(http.MethodPost, "/action/boost", map[string]string{"mode": "turbo"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBearerTokenGuardsMutatingRoutes(t *testing.T) {
	fx := newFixture(t, "secret-token")

	// Reads stay open.
	assert.Equal(t, http.StatusNotFound, fx.do(http.MethodGet, "/data", nil).Code)

	w := fx.do(http.MethodPost, "/upload", sampleReport("web01"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = fx.do(http.MethodPost, "/upload", sampleReport("web01"),
		"Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = fx.do(http.MethodPost, "/upload", sampleReport("web01"),
		"Authorization", "Bearer secret-token")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestArchiveRoutesDisabled(t *testing.T) {
	fx := newFixture(t, "")

	assert.Equal(t, http.StatusNotFound, fx.do(http.MethodGet, "/api/reports", nil).Code)
	assert.Equal(t, http.StatusNotFound, fx.do(http.MethodGet, "/api/reports/abc", nil).Code)
}

func TestHealthEndpoint(t *testing.T) {
	fx := newFixture(t, "")

	w := fx.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}

func TestContentTypeRejected(t *testing.T) {
	fx := newFixture(t, "")

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("host=web01"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSSEStreamDeliversPublishedLines(t *testing.T) {
	fx := newFixture(t, "")

	server := httptest.NewServer(fx.router)
	defer server.Close()

	resp, err := http.Get(server.URL + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Wait for the subscriber to attach before publishing.
	require.Eventually(t, func() bool {
		return fx.broadcaster.SubscriberCount() == 1
	}, time.Second, 10*time.Millisecond)

	fx.broadcaster.Publish("hello dashboards")

	reader := bufio.NewReader(resp.Body)
	deadline := time.After(2 * time.Second)
	lineCh := make(chan string, 1)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(line, "data: ") {
				lineCh <- line
				return
			}
		}
	}()

	select {
	case line := <-lineCh:
		var logLine models.LogLine
		payload := strings.TrimPrefix(strings.TrimSpace(line), "data: ")
		require.NoError(t, json.Unmarshal([]byte(payload), &logLine))
		assert.Equal(t, "hello dashboards", logLine.Message)
	case <-deadline:
		t.Fatal("no SSE event received")
	}
}
