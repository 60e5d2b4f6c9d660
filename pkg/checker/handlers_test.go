package checker

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/sentinel-iam/sentinel/pkg/grants"
	"github.com/sentinel-iam/sentinel/pkg/scope"
	"github.com/sentinel-iam/sentinel/pkg/token"
)

func newTestRouter(f *testFixture) *mux.Router {
	router := mux.NewRouter()
	NewHandler(f.service).RegisterRoutes(router)
	return router
}

func postJSON(t *testing.T, router *mux.Router, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// A user holding read and create but not update asks for all three: the
// body is a map keyed by the canonical scope codes, nothing else.
func TestCheckEndpoint(t *testing.T) {
	f := newFixture([]grants.EffectivePermission{
		{System: "portal", ResourceID: 10, ResourceCode: "orders", Scopes: scope.NewSet("r", "c"), Source: grants.SourceDirect, SourceID: "u-1"},
	})
	router := newTestRouter(f)

	rec := postJSON(t, router, "/permissions/check", `{
		"clientId": "portal",
		"clientSecret": "portal-secret",
		"idToken": "raw-id-token",
		"accessToken": "raw-token",
		"resource": "orders",
		"scopes": "@r@c@u"
	}`)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]ScopeDecision
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body) != 3 {
		t.Fatalf("expected exactly the 3 requested scope keys, got %v", body)
	}
	if !body["@r"].Allowed || !body["@c"].Allowed || body["@u"].Allowed {
		t.Errorf("unexpected scope decisions: %v", body)
	}
	if len(f.audit.records) != 1 {
		t.Errorf("expected 1 audit record, got %d", len(f.audit.records))
	}
}

// Error responses keep the per-scope map shape: every requested scope key
// is present, denied, and carries the error code.
func TestCheckEndpoint_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(f *testFixture)
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "malformed body",
			body:       `{`,
			wantStatus: 400,
			wantCode:   CodeInvalidRequest,
		},
		{
			name:       "missing fields",
			body:       `{"clientId": "portal"}`,
			wantStatus: 400,
			wantCode:   CodeInvalidRequest,
		},
		{
			name:       "bad client secret",
			body:       `{"clientId":"portal","clientSecret":"wrong","idToken":"t","accessToken":"t","resource":"orders"}`,
			wantStatus: 401,
			wantCode:   CodeInvalidClient,
		},
		{
			name: "expired token",
			setup: func(f *testFixture) {
				f.service.validator = &fakeValidator{err: &token.ValidationError{Kind: token.KindExpired}}
			},
			body:       `{"clientId":"portal","clientSecret":"portal-secret","idToken":"t","accessToken":"t","resource":"orders"}`,
			wantStatus: 401,
			wantCode:   CodeTokenExpired,
		},
		{
			name: "unknown user",
			setup: func(f *testFixture) {
				f.service.validator = &fakeValidator{claims: &token.Claims{Subject: "ghost"}}
			},
			body:       `{"clientId":"portal","clientSecret":"portal-secret","idToken":"t","accessToken":"t","resource":"orders"}`,
			wantStatus: 404,
			wantCode:   CodeUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(nil)
			if tt.setup != nil {
				tt.setup(f)
			}
			router := newTestRouter(f)

			rec := postJSON(t, router, "/permissions/check", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}

			var body map[string]ScopeDecision
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if len(body) == 0 {
				t.Fatal("expected per-scope decisions in the error body")
			}
			for key, decision := range body {
				if decision.Allowed {
					t.Errorf("scope %s: error responses must deny", key)
				}
				if decision.Error != tt.wantCode {
					t.Errorf("scope %s: expected error %s, got %q", key, tt.wantCode, decision.Error)
				}
			}
		})
	}
}

// Requests without a scope list fail with a decision for every standard
// scope, so callers can still parse the usual shape.
func TestCheckEndpoint_FailureWithoutScopeList(t *testing.T) {
	f := newFixture(nil)
	router := newTestRouter(f)

	rec := postJSON(t, router, "/permissions/check",
		`{"clientId":"portal","clientSecret":"wrong","idToken":"t","accessToken":"t","resource":"orders"}`)

	if rec.Code != 401 {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]ScopeDecision
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	for _, key := range []string{"@r", "@c", "@u", "@d", "@e"} {
		decision, ok := body[key]
		if !ok {
			t.Fatalf("expected key %s in error body, got %v", key, body)
		}
		if decision.Allowed || decision.Error != CodeInvalidClient {
			t.Errorf("scope %s: expected denied with invalid_client, got %+v", key, decision)
		}
	}
}

func TestQueryEndpoint(t *testing.T) {
	f := newFixture([]grants.EffectivePermission{
		{System: "portal", ResourceID: 10, ResourceCode: "orders", Scopes: scope.NewSet("r"), Source: grants.SourceDirect, SourceID: "u-1"},
		{System: "billing", ResourceID: 30, ResourceCode: "invoices", Scopes: scope.NewSet("e"), Source: grants.SourceGroup, SourceID: "g-fin"},
	})
	router := newTestRouter(f)

	rec := postJSON(t, router, "/permissions/query", `{
		"clientId": "portal",
		"clientSecret": "portal-secret",
		"idToken": "raw-id-token",
		"accessToken": "raw-token"
	}`)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp QueryResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.SubjectID != "u-1" {
		t.Errorf("expected subject u-1, got %q", resp.SubjectID)
	}
	if len(resp.Systems) != 2 {
		t.Fatalf("expected systems from every client, got %+v", resp.Systems)
	}
	if got := resp.Systems["portal"]["orders"]; len(got) != 1 || got[0] != "@r" {
		t.Errorf("unexpected portal/orders scopes: %v", got)
	}
	if got := resp.Systems["billing"]["invoices"]; len(got) != 1 || got[0] != "@e" {
		t.Errorf("unexpected billing/invoices scopes: %v", got)
	}
}
