package grants

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/sentinel-iam/sentinel/pkg/directory"
	"github.com/sentinel-iam/sentinel/pkg/httputil"
	"github.com/sentinel-iam/sentinel/pkg/scope"
)

// ResourceLookup resolves grant targets; *directory.Store implements it
type ResourceLookup interface {
	GetResourceByCode(ctx context.Context, clientID, code string) (*directory.Resource, error)
	GetOrganizationsByIDs(ctx context.Context, ids []string) ([]directory.Organization, error)
}

// GrantWriter is the store surface the admin API writes through
type GrantWriter interface {
	CreateGrant(ctx context.Context, grant *Grant) error
	CreateGrantBatch(ctx context.Context, batch []*Grant) (*BatchResult, error)
	GetGrant(ctx context.Context, grantID int64) (*Grant, error)
	DeleteGrant(ctx context.Context, grantID int64) (bool, error)
	ListGrantsForSubject(ctx context.Context, subjectType SubjectType, subjectID string) ([]Grant, error)
}

// Invalidator drops cached permission resolutions after grant changes.
// The checker service implements it.
type Invalidator interface {
	InvalidateGrantChange(ctx context.Context, subjectType SubjectType, subjectID string)
}

// Handler exposes the grant administration API
type Handler struct {
	store       GrantWriter
	directory   ResourceLookup
	invalidator Invalidator
}

// NewHandler creates a grant admin handler. invalidator may be nil when no
// permission cache is configured.
func NewHandler(store GrantWriter, dir ResourceLookup, invalidator Invalidator) *Handler {
	return &Handler{store: store, directory: dir, invalidator: invalidator}
}

// RegisterRoutes mounts the grant admin endpoints
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/admin/grants", h.handleCreate).Methods("POST")
	router.HandleFunc("/admin/grants/batch", h.handleCreateBatch).Methods("POST")
	router.HandleFunc("/admin/grants/{id:[0-9]+}", h.handleDelete).Methods("DELETE")
	router.HandleFunc("/admin/subjects/{type}/{id}/grants", h.handleListForSubject).Methods("GET")
}

// createGrantRequest is one grant in wire form
type createGrantRequest struct {
	SubjectType       string     `json:"subjectType"`
	SubjectID         string     `json:"subjectId"`
	SubjectName       string     `json:"subjectName,omitempty"`
	ClientID          string     `json:"clientId"`
	Resource          string     `json:"resource"`
	Scopes            string     `json:"scopes"`
	InheritToChildren bool       `json:"inheritToChildren"`
	GrantedBy         string     `json:"grantedBy,omitempty"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty"`
}

// grantView is the outbound form of a grant with scopes in canonical wire
// encoding
type grantView struct {
	*Grant
	Scopes string `json:"scopes"`
}

func viewOf(g *Grant) grantView {
	return grantView{Grant: g, Scopes: scope.Encode(g.Scopes)}
}

func (h *Handler) buildGrant(ctx context.Context, req *createGrantRequest) (*Grant, error) {
	subjectType := SubjectType(req.SubjectType)
	if !subjectType.Valid() {
		return nil, errors.New("subjectType must be user, group or organization")
	}
	if req.SubjectID == "" {
		return nil, errors.New("subjectId is required")
	}
	if req.ClientID == "" || req.Resource == "" {
		return nil, errors.New("clientId and resource are required")
	}

	scopes := scope.Decode(req.Scopes)
	if len(scopes) == 0 {
		return nil, errors.New("at least one scope is required")
	}

	resource, err := h.directory.GetResourceByCode(ctx, req.ClientID, req.Resource)
	if err != nil {
		return nil, err
	}
	if resource == nil {
		return nil, errors.New("unknown resource: " + req.ClientID + "/" + req.Resource)
	}

	if subjectType == SubjectOrganization {
		orgs, err := h.directory.GetOrganizationsByIDs(ctx, []string{req.SubjectID})
		if err != nil {
			return nil, err
		}
		if len(orgs) == 0 {
			return nil, errors.New("unknown organization: " + req.SubjectID)
		}
	}

	return &Grant{
		SubjectType:       subjectType,
		SubjectID:         req.SubjectID,
		SubjectName:       req.SubjectName,
		ResourceID:        resource.ID,
		ClientID:          resource.ClientID,
		ResourceCode:      resource.Code,
		Scopes:            scopes,
		InheritToChildren: req.InheritToChildren,
		IsEnabled:         true,
		GrantedBy:         req.GrantedBy,
		ExpiresAt:         req.ExpiresAt,
	}, nil
}

// handleCreate serves POST /admin/grants
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createGrantRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, "request body is not valid JSON")
		return
	}

	grant, err := h.buildGrant(r.Context(), &req)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.store.CreateGrant(r.Context(), grant); err != nil {
		httputil.WriteInternalError(w, errors.New("failed to create grant"))
		return
	}

	h.invalidate(r.Context(), grant.SubjectType, grant.SubjectID)
	httputil.WriteCreated(w, viewOf(grant))
}

// handleCreateBatch serves POST /admin/grants/batch
func (h *Handler) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Grants []createGrantRequest `json:"grants"`
	}
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, "request body is not valid JSON")
		return
	}
	if len(req.Grants) == 0 {
		httputil.WriteBadRequest(w, "grants must not be empty")
		return
	}

	// The batch is all-or-nothing: a single bad entry rejects the whole
	// batch before anything is stored.
	batch := make([]*Grant, 0, len(req.Grants))
	for i := range req.Grants {
		grant, err := h.buildGrant(r.Context(), &req.Grants[i])
		if err != nil {
			httputil.WriteSuccess(w, &BatchResult{
				Failed: len(req.Grants),
				Errors: []string{
					fmt.Sprintf("grant %d: %v", i, err),
					"batch rejected: no grants were persisted",
				},
			})
			return
		}
		batch = append(batch, grant)
	}

	result, err := h.store.CreateGrantBatch(r.Context(), batch)
	if err != nil {
		httputil.WriteInternalError(w, errors.New("failed to store grant batch"))
		return
	}

	if result.Granted > 0 {
		for _, grant := range batch {
			h.invalidate(r.Context(), grant.SubjectType, grant.SubjectID)
		}
	}

	httputil.WriteSuccess(w, result)
}

// handleDelete serves DELETE /admin/grants/{id}
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid grant id")
		return
	}

	grant, err := h.store.GetGrant(r.Context(), id)
	if err != nil {
		httputil.WriteInternalError(w, errors.New("failed to look up grant"))
		return
	}
	if grant == nil {
		httputil.WriteNotFound(w, "grant not found")
		return
	}

	if _, err := h.store.DeleteGrant(r.Context(), id); err != nil {
		httputil.WriteInternalError(w, errors.New("failed to delete grant"))
		return
	}

	h.invalidate(r.Context(), grant.SubjectType, grant.SubjectID)
	httputil.WriteNoContent(w)
}

// handleListForSubject serves GET /admin/subjects/{type}/{id}/grants
func (h *Handler) handleListForSubject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	subjectType := SubjectType(vars["type"])
	if !subjectType.Valid() {
		httputil.WriteBadRequest(w, "subject type must be user, group or organization")
		return
	}

	grants, err := h.store.ListGrantsForSubject(r.Context(), subjectType, vars["id"])
	if err != nil {
		httputil.WriteInternalError(w, errors.New("failed to list grants"))
		return
	}

	views := make([]grantView, len(grants))
	for i := range grants {
		views[i] = viewOf(&grants[i])
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"grants": views,
		"count":  len(views),
	})
}

func (h *Handler) invalidate(ctx context.Context, subjectType SubjectType, subjectID string) {
	if h.invalidator != nil {
		h.invalidator.InvalidateGrantChange(ctx, subjectType, subjectID)
	}
}
