package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sentinel-iam/sentinel/pkg/observability"
)

func TestRequestID_Generated(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = observability.GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if seen == "" {
		t.Fatal("expected a generated request id in context")
	}
	if got := rec.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("expected response header %q to match context id %q", got, seen)
	}
}

func TestRequestID_Propagated(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = observability.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "caller-supplied")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "caller-supplied" {
		t.Errorf("expected caller-supplied id, got %q", seen)
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.InfoLevel, &buf)

	router := mux.NewRouter()
	router.Use(Logging(logger))
	router.HandleFunc("/permissions/check", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}).Methods("POST")

	req := httptest.NewRequest("POST", "/permissions/check", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("access log is not JSON: %v (%s)", err, buf.String())
	}
	if entry["status"] != float64(401) {
		t.Errorf("expected status 401 in log, got %v", entry["status"])
	}
	if entry["path"] != "/permissions/check" {
		t.Errorf("expected path in log, got %v", entry["path"])
	}
}

func TestMetrics_RouteTemplateLabel(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := observability.NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(Metrics(m))
	router.HandleFunc("/admin/grants/{id:[0-9]+}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods("DELETE")

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("DELETE", "/admin/grants/42", nil))

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	var found bool
	for _, family := range families {
		if family.GetName() != "sentinel_http_requests_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "path" {
					if !strings.Contains(label.GetValue(), "{id") {
						t.Errorf("expected route template label, got %q", label.GetValue())
					}
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("expected sentinel_http_requests_total to be recorded")
	}
}
