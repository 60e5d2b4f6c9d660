package token

import (
	"fmt"
	"time"
)

// ErrorKind classifies why a token failed validation. Kinds are stable and
// map onto the API error codes returned by the check endpoint.
type ErrorKind string

const (
	// KindMalformed means the token could not be parsed as a JWT at all.
	KindMalformed ErrorKind = "malformed"
	// KindInvalidIssuer means the iss claim does not match the configured issuer.
	KindInvalidIssuer ErrorKind = "invalid_issuer"
	// KindInvalidSignature means the signature did not verify against the
	// issuer's published keys.
	KindInvalidSignature ErrorKind = "invalid_signature"
	// KindExpired means the token's exp claim is in the past. Expiry is
	// evaluated with zero clock skew tolerance.
	KindExpired ErrorKind = "expired"
	// KindInvalidAudience means the configured audience is absent from aud.
	KindInvalidAudience ErrorKind = "invalid_audience"
	// KindRevoked means the token's jti appears in the revocation store.
	KindRevoked ErrorKind = "revoked"
	// KindConfiguration means issuer metadata or keys could not be obtained.
	KindConfiguration ErrorKind = "configuration"
)

// ValidationError is a token validation failure with a stable kind
type ValidationError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token validation failed (%s): %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("token validation failed (%s): %s", e.Kind, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, message string, err error) *ValidationError {
	return &ValidationError{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the validation error kind, or "" for other errors
func KindOf(err error) ErrorKind {
	if ve, ok := err.(*ValidationError); ok {
		return ve.Kind
	}
	return ""
}

// Claims holds the verified claims the checker needs from a token
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	JTI       string
	ClientID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenType distinguishes revocation records for ID and access tokens
type TokenType string

const (
	TypeAccess TokenType = "access"
	TypeID     TokenType = "id"
)

// RevokedToken is a revocation record keyed by the token's jti
type RevokedToken struct {
	JTI            string    `json:"jti"`
	SubjectID      string    `json:"subjectId,omitempty"`
	ClientID       string    `json:"clientId,omitempty"`
	TokenType      TokenType `json:"tokenType"`
	ExpirationTime time.Time `json:"expirationTime"`
	RevokedAt      time.Time `json:"revokedAt"`
	Reason         string    `json:"reason,omitempty"`
	RevokedBy      string    `json:"revokedBy,omitempty"`
}
