package http

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/inkwell/contractflow/internal/domain"
)

// AuditHandler handles audit trail reads
type AuditHandler struct {
	audit AuditUseCase
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(audit AuditUseCase) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// RegisterRoutes registers audit routes
func (h *AuditHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/contracts/{id}/audit", h.QueryAudit).Methods("GET")
	router.HandleFunc("/contracts/{id}/audit/verify", h.VerifyChain).Methods("GET")
}

type auditPage struct {
	Entries []*domain.AuditEntry `json:"entries"`
	Total   int                  `json:"total"`
	Offset  int                  `json:"offset"`
}

// QueryAudit returns one page of the audit trail. Supported query
// parameters: actor_id, action, from, to (RFC 3339), limit, offset.
func (h *AuditHandler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r.URL.Query())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	entries, total, err := h.audit.Query(r.Context(), mux.Vars(r)["id"], UserID(r.Context()), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []*domain.AuditEntry{}
	}
	writeSuccess(w, http.StatusOK, "Audit log retrieved successfully", auditPage{
		Entries: entries,
		Total:   total,
		Offset:  filter.Offset,
	})
}

// VerifyChain recomputes the contract's audit hash chain
func (h *AuditHandler) VerifyChain(w http.ResponseWriter, r *http.Request) {
	report, err := h.audit.Verify(r.Context(), mux.Vars(r)["id"], UserID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Audit chain verified", report)
}

func parseAuditFilter(q url.Values) (domain.AuditFilter, error) {
	var f domain.AuditFilter

	if v := q.Get("actor_id"); v != "" {
		f.ActorID = &v
	}
	if v := q.Get("action"); v != "" {
		action := domain.AuditAction(v)
		f.Action = &action
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, domain.Validation("from", "must be an RFC 3339 timestamp")
		}
		f.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, domain.Validation("to", "must be an RFC 3339 timestamp")
		}
		f.To = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, domain.Validation("limit", "must be a non-negative integer")
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, domain.Validation("offset", "must be a non-negative integer")
		}
		f.Offset = n
	}
	return f, nil
}
