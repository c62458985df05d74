package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/inkwell/contractflow/internal/domain"
)

// Envelope is the body of every API response.
type Envelope struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
	Code    string      `json:"code,omitempty"`
}

const (
	codeInvalidRequest = "INVALID_REQUEST"
	codeUnauthorized   = "UNAUTHORIZED"
	codeRateLimited    = "RATE_LIMITED"
	codeInternal       = "INTERNAL_ERROR"
	codeNotFound       = "NOT_FOUND"
)

// statusByCode maps the engine's error taxonomy onto HTTP.
var statusByCode = map[domain.ErrorCode]int{
	domain.CodeValidation:            http.StatusBadRequest,
	domain.CodePermissionDenied:      http.StatusForbidden,
	domain.CodeNotACollaborator:      http.StatusForbidden,
	domain.CodeContractNotFound:      http.StatusNotFound,
	domain.CodeCollaboratorNotFound:  http.StatusNotFound,
	domain.CodeVersionNotFound:       http.StatusNotFound,
	domain.CodeDuplicateCollaborator: http.StatusConflict,
	domain.CodeOwnerCannotBeRemoved:  http.StatusConflict,
	domain.CodeLastOwnerDemotion:     http.StatusConflict,
	domain.CodeInvalidTransition:     http.StatusConflict,
	domain.CodeInvalidStageForWrite:  http.StatusConflict,
	domain.CodeStaleDraftConflict:    http.StatusConflict,
	domain.CodeNotPublished:          http.StatusConflict,
	domain.CodeInvalidRoleAssignment: http.StatusUnprocessableEntity,
	domain.CodeAuditWriteFailure:     http.StatusServiceUnavailable,
}

func writeJSON(w http.ResponseWriter, statusCode int, env Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(env)
}

func writeSuccess(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	writeJSON(w, statusCode, Envelope{Status: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, Envelope{Status: false, Message: message, Code: code})
}

// staleDraftData is returned with a 409 so the client can reconcile.
type staleDraftData struct {
	Current *domain.Draft `json:"current"`
}

// writeDomainError translates an engine error. Untyped errors become 500
// without leaking their text.
func writeDomainError(w http.ResponseWriter, err error) {
	var stale *domain.StaleDraftError
	if errors.As(err, &stale) {
		writeJSON(w, http.StatusConflict, Envelope{
			Status:  false,
			Message: domain.ErrStaleDraftConflict.Message,
			Data:    staleDraftData{Current: stale.Current},
			Code:    string(domain.CodeStaleDraftConflict),
		})
		return
	}

	var de *domain.Error
	if !errors.As(err, &de) {
		writeError(w, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	status, ok := statusByCode[de.Code]
	if !ok {
		status = http.StatusInternalServerError
	}

	message := de.Message
	if de.Code == domain.CodeValidation && de.Details != "" {
		message = de.Message + ": " + de.Details
	}
	writeError(w, status, string(de.Code), message)
}
