package core

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"agroalerts/internal/types"
)

func TestRecoverer_NoPanic(t *testing.T) {
	srv, _ := NewServer(testConfig(), testLogger())
	handler := srv.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("expected pass-through status 418, got %d", rec.Code)
	}
}

func TestRecoverer_FallsBackToResponseHeaderRequestID(t *testing.T) {
	srv, _ := NewServer(testConfig(), testLogger())
	handler := srv.Recoverer(RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler failed")
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var resp APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	want := rec.Header().Get("X-Request-Id")
	if want == "" || resp.Error.RequestID != want {
		t.Errorf("expected request ID %q, got %q", want, resp.Error.RequestID)
	}
}

func TestRecoverer_PanicWithError(t *testing.T) {
	buf := &strings.Builder{}
	srv, _ := NewServer(testConfig(), slog.New(slog.NewJSONHandler(buf, nil)))
	handler := srv.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("nil map write"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/forecast/next-week", nil)
	req = req.WithContext(types.WithRequestID(req.Context(), "req-42"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}
	var resp APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body is not valid JSON: %v (%s)", err, rec.Body.String())
	}
	if resp.Error.RequestID != "req-42" {
		t.Errorf("expected request ID req-42, got %q", resp.Error.RequestID)
	}
	if strings.Contains(rec.Body.String(), "nil map write") {
		t.Error("panic value must not leak to the client")
	}
	if !strings.Contains(buf.String(), "panic recovered") || !strings.Contains(buf.String(), "nil map write") {
		t.Errorf("panic should be logged, got: %s", buf.String())
	}
}

func TestSecurityHeadersMiddleware_PassesThrough(t *testing.T) {
	srv, _ := NewServer(testConfig(), testLogger())
	called := false
	handler := srv.SecurityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !called {
		t.Error("next handler was not called")
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("expected Cache-Control no-store, got %q", rec.Header().Get("Cache-Control"))
	}
}

func TestMetricsMiddleware_RecordsStatus(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    int
	}{
		{
			name:    "explicit status",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			want:    http.StatusBadGateway,
		},
		{
			name:    "implicit 200 on write",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) },
			want:    http.StatusOK,
		},
		{
			name:    "nothing written",
			handler: func(w http.ResponseWriter, r *http.Request) {},
			want:    http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := NewServer(testConfig(), testLogger())
			metrics := &mockHTTPMetrics{}
			srv.Metrics = metrics

			srv.MetricsMiddleware(tt.handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

			if len(metrics.calls) != 1 {
				t.Fatalf("expected 1 call, got %d", len(metrics.calls))
			}
			if metrics.calls[0].status != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, metrics.calls[0].status)
			}
		})
	}
}

func TestMetricsMiddleware_NilCollector_PassesThrough(t *testing.T) {
	srv, _ := NewServer(testConfig(), testLogger())
	called := false
	handler := srv.MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("next handler was not called")
	}
}

func TestRequestLogger_LogsRequestMetadata(t *testing.T) {
	buf := &strings.Builder{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler := RequestLogger(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/v1/fields/F1/alerts", nil)
	req = req.WithContext(types.WithRequestID(req.Context(), "req-7"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{"request completed", `"method":"GET"`, "/v1/fields/F1/alerts", `"request_id":"req-7"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log should contain %s, got: %s", want, out)
		}
	}
}

func TestRequestLogger_RedactsHeaders(t *testing.T) {
	buf := &strings.Builder{}
	logger := slog.New(slog.NewJSONHandler(buf, nil))

	handler := RequestLogger(logger, []string{"authorization", "X-API-Key"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer secret_token_123")
	req.Header.Set("X-Api-Key", "super_secret")
	req.Header.Set("Accept", "application/json")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if strings.Contains(out, "secret_token_123") || strings.Contains(out, "super_secret") {
		t.Errorf("redacted header values leaked: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Error("redacted headers should show [REDACTED]")
	}
	if !strings.Contains(out, "application/json") {
		t.Error("non-redacted Accept header should appear in log")
	}
}

func TestRequestLogger_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusBadGateway, "ERROR"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			buf := &strings.Builder{}
			logger := slog.New(slog.NewJSONHandler(buf, nil))
			handler := RequestLogger(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

			if !strings.Contains(buf.String(), `"level":"`+tt.level+`"`) {
				t.Errorf("expected level %s, got: %s", tt.level, buf.String())
			}
		})
	}
}

func TestEscapeJSON(t *testing.T) {
	got := escapeJSON("line1\n\"quoted\"\t\\")
	want := `line1\n\"quoted\"\t\\`
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
