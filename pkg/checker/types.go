package checker

import (
	"encoding/json"
	"net/http"
)

// CheckRequest is the body of POST /permissions/check
type CheckRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	IDToken      string `json:"idToken"`
	AccessToken  string `json:"accessToken"`
	Resource     string `json:"resource"`
	// Scopes is the requested scope set in any accepted encoding. Blank
	// means "check every standard scope".
	Scopes string `json:"scopes,omitempty"`
}

// Token returns the credential that gets validated. Both tokens are
// required inputs; the access token carries the subject.
func (r *CheckRequest) Token() string {
	return r.AccessToken
}

// ScopeDecision is the verdict for one requested scope. Failed checks
// attach the error to every scope so callers always parse the same shape.
type ScopeDecision struct {
	Allowed          bool   `json:"allowed"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"errorDescription,omitempty"`
}

// CheckResponse is the outcome of a permission check. On the wire it is
// the per-scope map alone, keyed by canonical "@code" form; the remaining
// fields drive the HTTP status, metrics and the audit row.
type CheckResponse struct {
	Allowed      bool
	SubjectID    string
	Resource     string
	Scopes       map[string]ScopeDecision
	ErrorCode    string
	ErrorMessage string
}

// MarshalJSON emits only the per-scope decision map
func (r *CheckResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Scopes)
}

// UnmarshalJSON reads a wire body back into the decision map
func (r *CheckResponse) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &r.Scopes)
}

// QueryRequest is the body of POST /permissions/query. It carries the same
// credentials as a check but no resource: the response lists everything the
// subject can reach, anywhere.
type QueryRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	IDToken      string `json:"idToken"`
	AccessToken  string `json:"accessToken"`
}

// Token returns the credential that gets validated
func (r *QueryRequest) Token() string {
	return r.AccessToken
}

// QueryResponse groups the subject's effective permissions by system, then
// resource, then canonical scope list
type QueryResponse struct {
	SubjectID    string                         `json:"subjectId,omitempty"`
	Systems      map[string]map[string][]string `json:"systems"`
	ErrorCode    string                         `json:"errorCode,omitempty"`
	ErrorMessage string                         `json:"errorMessage,omitempty"`
}

// Stable error codes returned by the check API.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeInvalidClient      = "invalid_client"
	CodeInvalidToken       = "invalid_token"
	CodeInvalidSignature   = "invalid_signature"
	CodeInvalidIssuer      = "invalid_issuer"
	CodeInvalidAudience    = "invalid_audience"
	CodeTokenExpired       = "token_expired"
	CodeTokenRevoked       = "token_revoked"
	CodeUserNotFound       = "user_not_found"
	CodeConfigurationError = "configuration_error"
	CodeServerError        = "server_error"
)

// HTTPStatus maps a stable error code to its HTTP status. An empty code
// means success. Every token validation failure is an authentication
// fault, so the distinct token codes share the 401 class.
func HTTPStatus(code string) int {
	switch code {
	case "":
		return http.StatusOK
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeInvalidClient, CodeInvalidToken, CodeInvalidSignature,
		CodeInvalidIssuer, CodeInvalidAudience, CodeTokenExpired, CodeTokenRevoked:
		return http.StatusUnauthorized
	case CodeUserNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// RequestMeta carries transport-level detail into the audit trail
type RequestMeta struct {
	IPAddress string
	UserAgent string
	RequestID string
}
