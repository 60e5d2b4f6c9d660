package checker

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sentinel-iam/sentinel/pkg/httputil"
	"github.com/sentinel-iam/sentinel/pkg/observability"
	"github.com/sentinel-iam/sentinel/pkg/scope"
)

// Handler exposes the permission check API
type Handler struct {
	service *Service
}

// NewHandler creates a checker API handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the check endpoints
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/permissions/check", h.handleCheck).Methods("POST")
	router.HandleFunc("/permissions/query", h.handleQuery).Methods("POST")
}

// handleCheck serves POST /permissions/check
func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		// No scope list survives a parse failure, so the denial covers
		// the standard set.
		resp := failure(scope.StandardSet(), &stageError{CodeInvalidRequest, "request body is not valid JSON"})
		httputil.WriteJSON(w, HTTPStatus(resp.ErrorCode), resp)
		return
	}

	resp := h.service.Check(r.Context(), &req, metaFrom(r))
	httputil.WriteJSON(w, HTTPStatus(resp.ErrorCode), resp)
}

// handleQuery serves POST /permissions/query
func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		resp := &QueryResponse{ErrorCode: CodeInvalidRequest, ErrorMessage: "request body is not valid JSON"}
		httputil.WriteJSON(w, HTTPStatus(resp.ErrorCode), resp)
		return
	}

	resp := h.service.Query(r.Context(), &req, metaFrom(r))
	httputil.WriteJSON(w, HTTPStatus(resp.ErrorCode), resp)
}

func metaFrom(r *http.Request) RequestMeta {
	return RequestMeta{
		IPAddress: httputil.ClientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: observability.GetRequestID(r.Context()),
	}
}
