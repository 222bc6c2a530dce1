package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func TestAuthMiddleware_JSONErrors(t *testing.T) {
	env := newTestEnv()

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing", "", "missing authorization"},
		{"not bearer", "Basic " + testKey, "missing authorization"},
		{"wrong key", "Bearer wrong", "invalid api key"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			env.srv.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected application/json, got %q", ct)
			}
			if got := decodeBody(t, rec)["error"]; got != tc.want {
				t.Errorf("expected error %q, got %v", tc.want, got)
			}
		})
	}
}

func TestRequestLogger_RequestIDAndRoute(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(log))
	r.Get("/api/filings/{accession}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/filings/0000320193-23-000106", nil))

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["route"] != "/api/filings/{accession}" {
		t.Errorf("expected route pattern, got %v", line["route"])
	}
	if line["path"] != "/api/filings/0000320193-23-000106" {
		t.Errorf("expected request path, got %v", line["path"])
	}
	if id, _ := line["request_id"].(string); id == "" {
		t.Errorf("expected request_id, got %v", line["request_id"])
	}
	if line["status"] != float64(http.StatusNotFound) {
		t.Errorf("expected status 404, got %v", line["status"])
	}
	if line["level"] != "INFO" {
		t.Errorf("expected INFO level, got %v", line["level"])
	}
}

func TestRequestLogger_ServerErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(RequestLogger(log))
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		jsonError(w, "boom", http.StatusInternalServerError)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	if !strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Errorf("expected ERROR level for 500, got %s", buf.String())
	}
}
