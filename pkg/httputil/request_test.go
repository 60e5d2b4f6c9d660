package httputil

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseJSON(t *testing.T) {
	r := httptest.NewRequest("POST", "/permissions/check", strings.NewReader(`{"client_id":"app"}`))

	var body struct {
		ClientID string `json:"client_id"`
	}
	if err := ParseJSON(r, &body); err != nil {
		t.Fatalf("ParseJSON failed: %v", err)
	}
	if body.ClientID != "app" {
		t.Errorf("expected client_id app, got %q", body.ClientID)
	}
}

func TestParseJSON_Invalid(t *testing.T) {
	r := httptest.NewRequest("POST", "/permissions/check", strings.NewReader(`{`))

	var body map[string]string
	if err := ParseJSON(r, &body); err == nil {
		t.Fatal("expected error for truncated JSON")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "10.1.2.3:51234",
			want:       "10.1.2.3",
		},
		{
			name:       "x-forwarded-for single",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7"},
			want:       "203.0.113.7",
		},
		{
			name:       "x-forwarded-for chain takes first hop",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.2"},
			want:       "203.0.113.7",
		},
		{
			name:       "x-real-ip",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Real-IP": "198.51.100.4"},
			want:       "198.51.100.4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
