package token

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sentinel-iam/sentinel/pkg/httputil"
)

// Handler exposes the token revocation admin API
type Handler struct {
	store *RevocationStore
}

// NewHandler creates a revocation admin handler
func NewHandler(store *RevocationStore) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts the revocation endpoints
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/admin/tokens/revoke", h.handleRevoke).Methods("POST")
	router.HandleFunc("/admin/tokens/revoke/{jti}", h.handleGet).Methods("GET")
	router.HandleFunc("/admin/tokens/revoke/{jti}", h.handleUnrevoke).Methods("DELETE")
}

// revokeRequest is the body of POST /admin/tokens/revoke
type revokeRequest struct {
	JTI            string    `json:"jti"`
	SubjectID      string    `json:"subjectId,omitempty"`
	ClientID       string    `json:"clientId,omitempty"`
	TokenType      string    `json:"tokenType,omitempty"`
	ExpirationTime time.Time `json:"expirationTime"`
	Reason         string    `json:"reason,omitempty"`
	RevokedBy      string    `json:"revokedBy,omitempty"`
}

// handleRevoke serves POST /admin/tokens/revoke. Revoking an
// already-revoked jti succeeds without changing the original record.
func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, "request body is not valid JSON")
		return
	}
	if req.JTI == "" {
		httputil.WriteBadRequest(w, "jti is required")
		return
	}
	if req.ExpirationTime.IsZero() {
		httputil.WriteBadRequest(w, "expirationTime is required")
		return
	}
	tokenType := TokenType(req.TokenType)
	switch tokenType {
	case "", TypeAccess, TypeID:
	default:
		httputil.WriteBadRequest(w, "tokenType must be access or id")
		return
	}

	record := RevokedToken{
		JTI:            req.JTI,
		SubjectID:      req.SubjectID,
		ClientID:       req.ClientID,
		TokenType:      tokenType,
		ExpirationTime: req.ExpirationTime,
		Reason:         req.Reason,
		RevokedBy:      req.RevokedBy,
	}
	if err := h.store.Revoke(r.Context(), record); err != nil {
		httputil.WriteInternalError(w, errors.New("failed to revoke token"))
		return
	}

	httputil.WriteCreated(w, map[string]string{"jti": req.JTI, "status": "revoked"})
}

// handleGet serves GET /admin/tokens/revoke/{jti}
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	jti := mux.Vars(r)["jti"]

	record, err := h.store.GetRevocation(r.Context(), jti)
	if err != nil {
		httputil.WriteInternalError(w, errors.New("failed to look up revocation"))
		return
	}
	if record == nil {
		httputil.WriteNotFound(w, "no revocation for jti")
		return
	}

	httputil.WriteSuccess(w, record)
}

// handleUnrevoke serves DELETE /admin/tokens/revoke/{jti}
func (h *Handler) handleUnrevoke(w http.ResponseWriter, r *http.Request) {
	jti := mux.Vars(r)["jti"]

	existed, err := h.store.Unrevoke(r.Context(), jti)
	if err != nil {
		httputil.WriteInternalError(w, errors.New("failed to remove revocation"))
		return
	}
	if !existed {
		httputil.WriteNotFound(w, "no revocation for jti")
		return
	}

	httputil.WriteNoContent(w)
}
