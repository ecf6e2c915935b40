package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ashureev/pagedesk/internal/domain"
	"github.com/ashureev/pagedesk/internal/remote"
	"github.com/go-chi/chi/v5"
)

const (
	defaultRecordLimit = 20
	maxRecordLimit     = 200
)

// recordDoctypes maps URL slugs to the backend doctypes the desk may read.
var recordDoctypes = map[string]string{
	"accounts":         "Facebook Account",
	"settings":         "Facebook Settings",
	"lead-logs":        "Facebook Lead Log",
	"message-logs":     "Facebook Message Log",
	"shop-orders":      "Facebook Shop Order",
	"campaign-metrics": "Facebook Campaign Metric",
}

// RecordsHandler exposes read-only access to integration settings and logs.
type RecordsHandler struct {
	*Handler
}

// NewRecordsHandler creates a records handler.
func NewRecordsHandler(base *Handler) *RecordsHandler {
	return &RecordsHandler{Handler: base}
}

// RegisterRoutes registers the record routes on the /api router.
func (h *RecordsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/records/{doctype}", func(r chi.Router) {
		r.Get("/", h.ListRecords)
		r.Get("/{name}", h.GetRecord)
	})
}

func doctypeFromRequest(r *http.Request) (string, bool) {
	doctype, ok := recordDoctypes[chi.URLParam(r, "doctype")]
	return doctype, ok
}

// ListRecords lists records. Query: fields (comma separated), filters (JSON
// object), order_by and limit.
func (h *RecordsHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	doctype, ok := doctypeFromRequest(r)
	if !ok {
		Error(w, http.StatusNotFound, "unknown record type")
		return
	}
	limit, err := intQuery(r, "limit", defaultRecordLimit, maxRecordLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	query := remote.RecordQuery{
		Doctype: doctype,
		OrderBy: q.Get("order_by"),
		Limit:   limit,
	}
	if fields := q.Get("fields"); fields != "" {
		for _, f := range strings.Split(fields, ",") {
			if f = strings.TrimSpace(f); f != "" {
				query.Fields = append(query.Fields, f)
			}
		}
	}
	if filters := q.Get("filters"); filters != "" {
		if err := json.Unmarshal([]byte(filters), &query.Filters); err != nil {
			writeError(w, &domain.ValidationError{Problems: []string{"filters must be a JSON object"}})
			return
		}
	}

	records, err := h.backend.ListRecords(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []remote.Record{}
	}
	JSON(w, http.StatusOK, map[string]any{"doctype": doctype, "records": records})
}

// GetRecord returns one record.
func (h *RecordsHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	doctype, ok := doctypeFromRequest(r)
	if !ok {
		Error(w, http.StatusNotFound, "unknown record type")
		return
	}
	record, err := h.backend.GetRecord(r.Context(), doctype, chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, record)
}
