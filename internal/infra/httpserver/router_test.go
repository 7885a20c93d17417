package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	appanalysis "github.com/bryanwahyu/fusioncloud/internal/application/analysis"
	"github.com/bryanwahyu/fusioncloud/internal/config"
	domain "github.com/bryanwahyu/fusioncloud/internal/domain/analysis"
	"github.com/bryanwahyu/fusioncloud/internal/middleware"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var now = time.Date(2025, 6, 7, 8, 9, 10, 0, time.UTC)

type stubInvoker struct {
	mu    sync.Mutex
	texts []string
	out   domain.Output
	err   error
}

func (s *stubInvoker) Invoke(ctx context.Context, text string) (domain.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return s.out, s.err
}

type stubNotifier struct {
	mu   sync.Mutex
	msgs []domain.NotificationMessage
	err  error
}

func (s *stubNotifier) Notify(ctx context.Context, msg domain.NotificationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return s.err
}

type stubProber config.Probe

func (p stubProber) Probe() config.Probe { return config.Probe(p) }

func newTestRouter(inv *stubInvoker, n domain.Notifier, disableFallback bool) http.Handler {
	svc := &appanalysis.Service{
		Invoker:         inv,
		Notifier:        n,
		Selector:        domain.FixedSelector(domain.ThreatMedium),
		Clock:           fixedClock{now},
		Log:             zerolog.Nop(),
		DisableFallback: disableFallback,
	}
	probe := stubProber{Missing: []string{config.EnvSlackWebhookURL}, Complete: false}
	return NewRouter(svc, probe, zerolog.Nop(), Options{
		MaxBodyBytes: 4096,
		Checkers: map[string]middleware.HealthChecker{
			"analyzer": middleware.CheckerFunc(func(ctx context.Context) error { return nil }),
		},
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, out
}

func TestAnalyze_Unstructured(t *testing.T) {
	inv := &stubInvoker{out: domain.Output{Stdout: "WARNING: repeated failures\n\nTop matching CVEs:\nCVE-2023-1234\n\nNext paragraph"}}
	h := newTestRouter(inv, nil, false)

	rec, body := do(t, h, http.MethodPost, "/api/analyze", `{"logText":"Failed password for root"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, body = %s", rec.Code, rec.Body.String())
	}
	if body["threatLevel"] != "medium" {
		t.Errorf("threatLevel = %v, want medium", body["threatLevel"])
	}
	if body["cveExcerpt"] != "CVE-2023-1234" {
		t.Errorf("cveExcerpt = %v", body["cveExcerpt"])
	}
	if body["timestamp"] != "2025-06-07T08:09:10Z" {
		t.Errorf("timestamp = %v", body["timestamp"])
	}
	if _, ok := body["synthetic"]; ok {
		t.Error("real result must not be marked synthetic")
	}
	if _, ok := body["notified"]; ok {
		t.Error("notified must be absent when not requested")
	}
	if len(inv.texts) != 1 || inv.texts[0] != "Failed password for root" {
		t.Errorf("invoked with %q", inv.texts)
	}
}

func TestAnalyze_StructuredPassThrough(t *testing.T) {
	inv := &stubInvoker{out: domain.Output{Stdout: `{"analysis":"CRITICAL: root login","threat_level":"high","cve_data":"CVE-2024-1","status":"success"}`}}
	h := newTestRouter(inv, nil, false)

	rec, body := do(t, h, http.MethodPost, "/api/analyze", `{"logText":"x"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	for k, want := range map[string]any{
		"analysis":     "CRITICAL: root login",
		"threat_level": "high",
		"cve_data":     "CVE-2024-1",
		"status":       "success",
		"threatLevel":  "high",
		"cveExcerpt":   "CVE-2024-1",
	} {
		if body[k] != want {
			t.Errorf("%s = %v, want %v", k, body[k], want)
		}
	}
}

func TestAnalyze_StructuredFieldsNotOverwritten(t *testing.T) {
	inv := &stubInvoker{out: domain.Output{Stdout: `{"analysis":"fine","threatLevel":"Low Risk","timestamp":"yesterday"}`}}
	h := newTestRouter(inv, nil, false)

	_, body := do(t, h, http.MethodPost, "/api/analyze", `{"logText":"x"}`)
	if body["threatLevel"] != "Low Risk" || body["timestamp"] != "yesterday" {
		t.Errorf("body = %v, analyzer fields must pass through verbatim", body)
	}
	if v, ok := body["cveExcerpt"]; !ok || v != nil {
		t.Errorf("cveExcerpt = %v (present %v), want null", v, ok)
	}
}

func TestAnalyze_BlankRejectedBeforeInvocation(t *testing.T) {
	inv := &stubInvoker{}
	h := newTestRouter(inv, nil, false)

	for _, payload := range []string{`{"logText":"   "}`, `{}`, `{"logText":42}`, `not json`} {
		rec, body := do(t, h, http.MethodPost, "/api/analyze", payload)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: code = %d, want 400", payload, rec.Code)
		}
		if body["error"] == nil || body["details"] == nil {
			t.Errorf("%s: body = %v, want {error, details}", payload, body)
		}
	}
	if len(inv.texts) != 0 {
		t.Errorf("invoker called %d times, want 0", len(inv.texts))
	}
}

func TestAnalyze_FallbackResult(t *testing.T) {
	inv := &stubInvoker{err: &domain.InvocationError{Err: errors.New("exit status 1")}}
	n := &stubNotifier{}
	h := newTestRouter(inv, n, false)

	rec, body := do(t, h, http.MethodPost, "/api/analyze", `{"logText":"x","sendToSlack":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if body["synthetic"] != true || body["threatLevel"] != "medium" {
		t.Errorf("body = %v, want synthetic medium", body)
	}
	if body["notified"] != true {
		t.Errorf("notified = %v, want true", body["notified"])
	}
	if len(n.msgs) != 1 {
		t.Errorf("notifications = %d, want 1", len(n.msgs))
	}
}

func TestAnalyze_FallbackDisabled(t *testing.T) {
	inv := &stubInvoker{err: &domain.DiagnosticError{Stderr: "Traceback"}}
	h := newTestRouter(inv, nil, true)

	rec, body := do(t, h, http.MethodPost, "/api/analyze", `{"logText":"x"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("code = %d, want 502", rec.Code)
	}
	if body["error"] != "analysis failed" || !strings.Contains(body["details"].(string), "Traceback") {
		t.Errorf("body = %v", body)
	}
}

func TestAnalyze_NotificationFailureStillSucceeds(t *testing.T) {
	inv := &stubInvoker{out: domain.Output{Stdout: "all quiet"}}
	n := &stubNotifier{err: &domain.NotificationError{StatusCode: 500}}
	h := newTestRouter(inv, n, false)

	rec, body := do(t, h, http.MethodPost, "/api/analyze", `{"logText":"x","sendNotification":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if body["notified"] != false || body["threatLevel"] != "low" {
		t.Errorf("body = %v", body)
	}
}

func TestAnalyze_DocumentUpload(t *testing.T) {
	inv := &stubInvoker{out: domain.Output{Stdout: "ok"}}
	h := newTestRouter(inv, nil, false)

	send := func(name, content string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, _ := mw.CreateFormFile("file", name)
		fw.Write([]byte(content))
		mw.WriteField("sendNotification", "false")
		mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/api/analyze", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := send("../auth-events.json", `{"user":"root","attempts":[1,2]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["fileName"] != "auth-events.json" {
		t.Errorf("fileName = %v", body["fileName"])
	}
	want := "{\n  \"attempts\": [\n    1,\n    2\n  ],\n  \"user\": \"root\"\n}"
	if len(inv.texts) != 1 || inv.texts[0] != want {
		t.Errorf("invoked with %q, want %q", inv.texts, want)
	}

	rec = send("broken.json", `{"user":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid document code = %d, want 400", rec.Code)
	}
	if len(inv.texts) != 1 {
		t.Errorf("invalid document reached the analyzer")
	}
}

func TestAnalyze_BodyTooLarge(t *testing.T) {
	h := newTestRouter(&stubInvoker{}, nil, false)
	big := `{"logText":"` + strings.Repeat("a", 8192) + `"}`

	rec, _ := do(t, h, http.MethodPost, "/api/analyze", big)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("code = %d, want 413", rec.Code)
	}
}

func TestCheckEnv(t *testing.T) {
	h := newTestRouter(&stubInvoker{}, nil, false)

	rec, body := do(t, h, http.MethodGet, "/api/check-env", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	missing, _ := body["missing"].([]any)
	if body["complete"] != false || len(missing) != 1 || missing[0] != config.EnvSlackWebhookURL {
		t.Errorf("body = %v", body)
	}
}

func TestNotify(t *testing.T) {
	n := &stubNotifier{}
	h := newTestRouter(&stubInvoker{}, n, false)

	for _, path := range []string{"/api/notify", "/api/slack"} {
		rec, body := do(t, h, http.MethodPost, path, `{"message":"CRITICAL THREAT: root login"}`)
		if rec.Code != http.StatusOK || body["success"] != true {
			t.Errorf("%s: code = %d body = %v", path, rec.Code, body)
		}
	}
	if len(n.msgs) != 2 || n.msgs[0].Text != "CRITICAL THREAT: root login" {
		t.Errorf("messages = %+v", n.msgs)
	}
}

func TestNotify_Errors(t *testing.T) {
	tests := []struct {
		name     string
		notifier domain.Notifier
		body     string
		want     int
	}{
		{"missing message", &stubNotifier{}, `{}`, http.StatusBadRequest},
		{"not configured", nil, `{"message":"hi"}`, http.StatusInternalServerError},
		{"sink failure", &stubNotifier{err: &domain.NotificationError{StatusCode: 404}}, `{"message":"hi"}`, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(&stubInvoker{}, tt.notifier, false)
			rec, _ := do(t, h, http.MethodPost, "/api/notify", tt.body)
			if rec.Code != tt.want {
				t.Errorf("code = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestRouter(&stubInvoker{}, nil, false)
	for _, path := range []string{"/health", "/ready", "/live", "/metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: code = %d", path, rec.Code)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestRouter(&stubInvoker{}, nil, false)
	req := httptest.NewRequest(http.MethodOptions, "/api/analyze", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}
