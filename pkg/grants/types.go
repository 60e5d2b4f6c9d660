package grants

import (
	"fmt"
	"time"

	"github.com/sentinel-iam/sentinel/pkg/scope"
)

// SubjectType identifies what kind of subject holds a grant
type SubjectType string

const (
	SubjectUser         SubjectType = "user"
	SubjectGroup        SubjectType = "group"
	SubjectOrganization SubjectType = "organization"
)

// Valid reports whether the subject type is one of the known kinds
func (s SubjectType) Valid() bool {
	switch s {
	case SubjectUser, SubjectGroup, SubjectOrganization:
		return true
	}
	return false
}

// Grant assigns scopes on a resource to a subject. Organization grants with
// InheritToChildren set also apply to users in descendant organizations.
type Grant struct {
	ID                int64       `json:"id"`
	SubjectType       SubjectType `json:"subjectType"`
	SubjectID         string      `json:"subjectId"`
	SubjectName       string      `json:"subjectName,omitempty"`
	ResourceID        int64       `json:"resourceId"`
	ClientID          string      `json:"clientId,omitempty"`
	ResourceCode      string      `json:"resourceCode,omitempty"`
	Scopes            scope.Set   `json:"-"`
	InheritToChildren bool        `json:"inheritToChildren"`
	IsEnabled         bool        `json:"isEnabled"`
	GrantedBy         string      `json:"grantedBy,omitempty"`
	GrantedAt         time.Time   `json:"grantedAt"`
	ExpiresAt         *time.Time  `json:"expiresAt,omitempty"`
}

// Validate checks the fields required to persist a grant
func (g *Grant) Validate() error {
	if !g.SubjectType.Valid() {
		return fmt.Errorf("invalid subject type: %q", g.SubjectType)
	}
	if g.SubjectID == "" {
		return fmt.Errorf("subject id is required")
	}
	if g.ResourceID == 0 {
		return fmt.Errorf("resource id is required")
	}
	if len(g.Scopes) == 0 {
		return fmt.Errorf("at least one scope is required")
	}
	return nil
}

// Source identifies how an effective permission was obtained
type Source string

const (
	// SourceDirect means the user holds the grant themselves.
	SourceDirect Source = "direct"
	// SourceGroup means the grant came through group membership.
	SourceGroup Source = "group"
	// SourceOrganization means the grant came through organization
	// membership, possibly inherited from an ancestor organization.
	SourceOrganization Source = "organization"
)

// EffectivePermission is the merged outcome of all grants a single subject
// contributes on a single resource. Permissions from different sources are
// kept separate; their scopes combine by union with no precedence between
// sources.
type EffectivePermission struct {
	// System is the client that owns the resource.
	System       string    `json:"system"`
	ResourceID   int64     `json:"resourceId"`
	ResourceCode string    `json:"resourceCode"`
	Scopes       scope.Set `json:"-"`
	Source       Source    `json:"source"`
	SourceID     string    `json:"sourceId"`
	SourceName   string    `json:"sourceName,omitempty"`
}

// ScopeCodes returns the permission's scopes in canonical sorted order
func (p *EffectivePermission) ScopeCodes() []string {
	return p.Scopes.Codes()
}
