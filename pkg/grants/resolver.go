// Package grants stores permission grants and resolves them into the
// effective permissions a user holds on registered resources.
//
// Resolution is union-only: every applicable grant contributes its scopes
// and no grant ever subtracts from another. Organization grants reach users
// in descendant organizations through the materialized organization path,
// so inheritance costs a prefix comparison instead of a tree walk.
package grants

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sentinel-iam/sentinel/pkg/directory"
	"github.com/sentinel-iam/sentinel/pkg/scope"
)

// DirectorySource is the subset of the directory the resolver reads
type DirectorySource interface {
	GetUserGroupIDs(ctx context.Context, userID string) ([]string, error)
	GetUserOrganizations(ctx context.Context, userID string) ([]directory.Organization, error)
	GetResourceByCode(ctx context.Context, clientID, code string) (*directory.Resource, error)
}

// GrantSource is the subset of the grant store the resolver reads
type GrantSource interface {
	GetActiveGrantsForResource(ctx context.Context, resourceID int64, userID string, groupIDs, orgIDs []string) ([]Grant, error)
	GetActiveGrantsForSubject(ctx context.Context, userID string, groupIDs, orgIDs []string) ([]Grant, error)
}

// Resolver computes effective permissions
type Resolver struct {
	directory DirectorySource
	grants    GrantSource
}

// NewResolver creates an effective permission resolver
func NewResolver(dir DirectorySource, grants GrantSource) *Resolver {
	return &Resolver{directory: dir, grants: grants}
}

// subjectContext is the candidate subject set collected once per resolution
type subjectContext struct {
	userID   string
	groupIDs []string
	// memberOrgIDs are the organizations the user belongs to directly.
	memberOrgIDs map[string]bool
	// orgs are the user's organizations with their materialized paths.
	orgs []directory.Organization
	// candidateOrgIDs are the member organizations plus every ancestor
	// named in their paths. Grants held by any other organization cannot
	// apply to this user.
	candidateOrgIDs []string
}

func (r *Resolver) collectSubjects(ctx context.Context, userID string) (*subjectContext, error) {
	groupIDs, err := r.directory.GetUserGroupIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to collect groups: %w", err)
	}

	orgs, err := r.directory.GetUserOrganizations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to collect organizations: %w", err)
	}

	sc := &subjectContext{
		userID:       userID,
		groupIDs:     groupIDs,
		memberOrgIDs: make(map[string]bool, len(orgs)),
		orgs:         orgs,
	}

	seen := make(map[string]bool)
	for _, org := range orgs {
		sc.memberOrgIDs[org.ID] = true
		for _, id := range strings.Split(strings.Trim(org.Path, "/"), "/") {
			if id != "" && !seen[id] {
				seen[id] = true
				sc.candidateOrgIDs = append(sc.candidateOrgIDs, id)
			}
		}
	}
	sort.Strings(sc.candidateOrgIDs)

	return sc, nil
}

// orgGrantApplies reports whether an organization grant reaches this user:
// either the user is a direct member of the granting organization, or the
// granting organization is a strict ancestor of a member organization and
// the grant propagates to children.
func (sc *subjectContext) orgGrantApplies(g *Grant) bool {
	if sc.memberOrgIDs[g.SubjectID] {
		return true
	}
	if !g.InheritToChildren {
		return false
	}
	marker := "/" + g.SubjectID + "/"
	for _, org := range sc.orgs {
		if org.ID != g.SubjectID && strings.Contains(org.Path, marker) {
			return true
		}
	}
	return false
}

// ResolveResource computes the effective permissions a user holds on one of
// a client's resources. An unknown or disabled resource resolves to no
// permissions rather than an error.
func (r *Resolver) ResolveResource(ctx context.Context, userID, clientID, resourceCode string) ([]EffectivePermission, error) {
	resource, err := r.directory.GetResourceByCode(ctx, clientID, resourceCode)
	if err != nil {
		return nil, err
	}
	if resource == nil || !resource.IsEnabled {
		return nil, nil
	}

	sc, err := r.collectSubjects(ctx, userID)
	if err != nil {
		return nil, err
	}

	rows, err := r.grants.GetActiveGrantsForResource(ctx, resource.ID, sc.userID, sc.groupIDs, sc.candidateOrgIDs)
	if err != nil {
		return nil, err
	}

	for i := range rows {
		rows[i].ClientID = resource.ClientID
		rows[i].ResourceCode = resource.Code
	}
	return merge(rows, sc), nil
}

// ResolveAll computes the effective permissions a user holds on every
// resource they can reach, across all clients
func (r *Resolver) ResolveAll(ctx context.Context, userID string) ([]EffectivePermission, error) {
	sc, err := r.collectSubjects(ctx, userID)
	if err != nil {
		return nil, err
	}

	rows, err := r.grants.GetActiveGrantsForSubject(ctx, sc.userID, sc.groupIDs, sc.candidateOrgIDs)
	if err != nil {
		return nil, err
	}

	return merge(rows, sc), nil
}

// UnionScopes collapses effective permissions into the single scope set the
// user holds on the resource
func UnionScopes(perms []EffectivePermission) scope.Set {
	union := scope.NewSet()
	for _, p := range perms {
		union = union.Union(p.Scopes)
	}
	return union
}

// merge folds applicable grants into effective permissions, one per
// (resource, source, source subject), with scopes combined by union
func merge(rows []Grant, sc *subjectContext) []EffectivePermission {
	type key struct {
		resourceID int64
		source     Source
		sourceID   string
	}

	merged := make(map[key]*EffectivePermission)
	var order []key

	for i := range rows {
		g := &rows[i]

		var source Source
		switch g.SubjectType {
		case SubjectUser:
			source = SourceDirect
		case SubjectGroup:
			source = SourceGroup
		case SubjectOrganization:
			if !sc.orgGrantApplies(g) {
				continue
			}
			source = SourceOrganization
		default:
			continue
		}

		k := key{resourceID: g.ResourceID, source: source, sourceID: g.SubjectID}
		if existing, ok := merged[k]; ok {
			existing.Scopes = existing.Scopes.Union(g.Scopes)
			continue
		}
		merged[k] = &EffectivePermission{
			System:       g.ClientID,
			ResourceID:   g.ResourceID,
			ResourceCode: g.ResourceCode,
			Scopes:       scope.NewSet(g.Scopes.Codes()...),
			Source:       source,
			SourceID:     g.SubjectID,
			SourceName:   g.SubjectName,
		}
		order = append(order, k)
	}

	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.resourceID != b.resourceID {
			return a.resourceID < b.resourceID
		}
		if a.source != b.source {
			return a.source < b.source
		}
		return a.sourceID < b.sourceID
	})

	perms := make([]EffectivePermission, 0, len(order))
	for _, k := range order {
		perms = append(perms, *merged[k])
	}
	return perms
}
