package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestNormalizePath проверяет замену UUID-сегментов.
func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/api/v1/books", "/api/v1/books"},
		{"/api/v1/books/a1b2c3d4-e5f6-4890-abcd-ef1234567890", "/api/v1/books/{id}"},
		{"/api/v1/books/a1b2c3d4-e5f6-4890-abcd-ef1234567890/content", "/api/v1/books/{id}/content"},
		{"/api/v1/books/not-a-uuid", "/api/v1/books/not-a-uuid"},
		// 36 символов, но не UUID
		{"/" + strings.Repeat("x", 36), "/" + strings.Repeat("x", 36)},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.in); got != tt.want {
			t.Errorf("%s: ожидалось %s, получено %s", tt.in, tt.want, got)
		}
	}
}

// TestMetricsMiddleware_PassesStatus проверяет, что статус не теряется.
func TestMetricsMiddleware_PassesStatus(t *testing.T) {
	h := MetricsMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/books", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("ожидался 418, получен %d", rec.Code)
	}
}

// TestRequestLogger_ProbeLevel проверяет понижение уровня для probes.
func TestRequestLogger_ProbeLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if buf.Len() != 0 {
		t.Errorf("probe не должен логироваться на info: %s", buf.String())
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/books", nil))
	if !strings.Contains(buf.String(), "path=/api/v1/books") || !strings.Contains(buf.String(), "status=200") {
		t.Errorf("ожидалась запись о запросе: %s", buf.String())
	}
}
