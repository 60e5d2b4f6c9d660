package audit

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/sentinel-iam/sentinel/pkg/httputil"
)

// Querier serves audit queries; *DBLogger implements it
type Querier interface {
	Query(ctx context.Context, filter QueryFilter) ([]*PermissionCheckLog, error)
}

// Handler exposes the audit query API
type Handler struct {
	store Querier
}

// NewHandler creates an audit API handler
func NewHandler(store Querier) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts the audit endpoints
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/admin/audit/checks", h.handleQuery).Methods("GET")
	router.HandleFunc("/admin/audit/checks/export", h.handleExport).Methods("GET")
}

// handleQuery serves GET /admin/audit/checks
func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	records, err := h.store.Query(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, errors.New("failed to query audit records"))
		return
	}
	if records == nil {
		records = []*PermissionCheckLog{}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"checks": records,
		"count":  len(records),
	})
}

// handleExport serves GET /admin/audit/checks/export. Format defaults to
// NDJSON; "format=csv" selects CSV.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if filter.Limit == 0 {
		filter.Limit = MaxQueryLimit
	}

	records, err := h.store.Query(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, errors.New("failed to query audit records"))
		return
	}

	switch r.URL.Query().Get("format") {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="permission-checks.csv"`)
		WriteCSV(w, records)
	default:
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Content-Disposition", `attachment; filename="permission-checks.ndjson"`)
		WriteNDJSON(w, records)
	}
}

func filterFromQuery(r *http.Request) (QueryFilter, error) {
	q := r.URL.Query()
	filter := QueryFilter{
		SubjectID: q.Get("subjectId"),
		ClientID:  q.Get("clientId"),
		Resource:  q.Get("resource"),
		ErrorCode: q.Get("errorCode"),
	}

	if v := q.Get("allowed"); v != "" {
		allowed, err := strconv.ParseBool(v)
		if err != nil {
			return filter, err
		}
		filter.Allowed = &allowed
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, err
		}
		filter.Since = &t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, err
		}
		filter.Until = &t
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return filter, err
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			return filter, err
		}
		filter.Offset = offset
	}

	return filter, nil
}
