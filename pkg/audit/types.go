// Package audit records every permission check the service performs. A row
// is written for each check regardless of outcome, including rejected and
// failed requests.
package audit

import "time"

// PermissionCheckLog is one audit row describing a single permission check
type PermissionCheckLog struct {
	ID               int64     `json:"id,omitempty"`
	SubjectID        string    `json:"subjectId,omitempty"`
	ClientID         string    `json:"clientId,omitempty"`
	Resource         string    `json:"resource,omitempty"`
	RequestedScopes  string    `json:"requestedScopes,omitempty"`
	GrantedScopes    string    `json:"grantedScopes,omitempty"`
	Allowed          bool      `json:"allowed"`
	ErrorCode        string    `json:"errorCode,omitempty"`
	ErrorMessage     string    `json:"errorMessage,omitempty"`
	ProcessingTimeMs int64     `json:"processingTimeMs"`
	IPAddress        string    `json:"ipAddress,omitempty"`
	UserAgent        string    `json:"userAgent,omitempty"`
	RequestID        string    `json:"requestId,omitempty"`
	CheckedAt        time.Time `json:"checkedAt"`
}

// QueryFilter narrows audit queries. Zero values mean "no filter".
type QueryFilter struct {
	SubjectID string
	ClientID  string
	Resource  string
	ErrorCode string
	// Allowed filters by outcome when non-nil.
	Allowed *bool
	Since   *time.Time
	Until   *time.Time
	// Limit caps the result set; 0 applies the default limit.
	Limit  int
	Offset int
}

// DefaultQueryLimit bounds unfiltered audit queries
const DefaultQueryLimit = 100

// MaxQueryLimit is the hard cap on a single audit query
const MaxQueryLimit = 1000
