package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

type stubQuerier struct {
	records    []*PermissionCheckLog
	lastFilter QueryFilter
	err        error
}

func (s *stubQuerier) Query(ctx context.Context, filter QueryFilter) ([]*PermissionCheckLog, error) {
	s.lastFilter = filter
	return s.records, s.err
}

func newAuditRouter(store Querier) *mux.Router {
	router := mux.NewRouter()
	NewHandler(store).RegisterRoutes(router)
	return router
}

func TestHandleQuery(t *testing.T) {
	store := &stubQuerier{records: []*PermissionCheckLog{
		{ID: 1, SubjectID: "u-1", Resource: "orders", Allowed: true, CheckedAt: time.Now()},
	}}
	router := newAuditRouter(store)

	req := httptest.NewRequest("GET", "/admin/audit/checks?subjectId=u-1&allowed=true&limit=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if store.lastFilter.SubjectID != "u-1" {
		t.Errorf("subjectId filter not applied: %+v", store.lastFilter)
	}
	if store.lastFilter.Allowed == nil || !*store.lastFilter.Allowed {
		t.Errorf("allowed filter not applied: %+v", store.lastFilter)
	}
	if store.lastFilter.Limit != 10 {
		t.Errorf("limit filter not applied: %+v", store.lastFilter)
	}

	var body struct {
		Checks []PermissionCheckLog `json:"checks"`
		Count  int                  `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Count != 1 || len(body.Checks) != 1 {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestHandleQuery_BadFilter(t *testing.T) {
	router := newAuditRouter(&stubQuerier{})

	req := httptest.NewRequest("GET", "/admin/audit/checks?allowed=maybe", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Errorf("expected 400 for bad filter, got %d", rec.Code)
	}
}

func TestHandleQuery_StoreError(t *testing.T) {
	router := newAuditRouter(&stubQuerier{err: fmt.Errorf("connection refused")})

	req := httptest.NewRequest("GET", "/admin/audit/checks", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != 500 {
		t.Errorf("expected 500 for store error, got %d", rec.Code)
	}
}

func TestHandleExport_NDJSON(t *testing.T) {
	store := &stubQuerier{records: []*PermissionCheckLog{
		{ID: 1, SubjectID: "u-1", Allowed: true},
		{ID: 2, SubjectID: "u-2", Allowed: false},
	}}
	router := newAuditRouter(store)

	req := httptest.NewRequest("GET", "/admin/audit/checks/export", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("expected NDJSON content type, got %q", ct)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 NDJSON lines, got %d", len(lines))
	}
	for _, line := range lines {
		var decoded PermissionCheckLog
		if err := json.Unmarshal([]byte(line), &decoded); err != nil {
			t.Errorf("invalid NDJSON line %q: %v", line, err)
		}
	}
}

func TestHandleExport_CSV(t *testing.T) {
	store := &stubQuerier{records: []*PermissionCheckLog{
		{ID: 1, SubjectID: "u-1", Resource: "orders", Allowed: true, CheckedAt: time.Now()},
	}}
	router := newAuditRouter(store)

	req := httptest.NewRequest("GET", "/admin/audit/checks/export?format=csv", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("expected CSV content type, got %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "id,checked_at,subject_id") {
		t.Errorf("expected CSV header, got %q", rec.Body.String())
	}
}
