package middleware_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dhairyamittal28106-alt/nexus-relay/internal/server/middleware"
)

func TestRequestLoggerPassesThroughAndTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := middleware.Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
		middleware.RequestMetadataMiddleware(),
		middleware.NewRequestLogger(logger),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/chat/U1/U2", nil)
	req.RemoteAddr = "203.0.113.7:5050"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("Expected downstream handler status %d, got %d", http.StatusTeapot, rec.Code)
	}

	line := buf.String()
	if !strings.Contains(line, "component=http") {
		t.Errorf("Expected log line tagged with component=http, got %q", line)
	}
	if !strings.Contains(line, "ip=203.0.113.7") {
		t.Errorf("Expected client IP in log line, got %q", line)
	}
	if !strings.Contains(line, "elapsed=") {
		t.Errorf("Expected handler duration in log line, got %q", line)
	}
}
