package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/inkwell/contractflow/internal/domain"
	"github.com/inkwell/contractflow/internal/logger"
	"github.com/inkwell/contractflow/internal/ports"
	"github.com/inkwell/contractflow/internal/usecase"
)

// maxRequestBytes leaves room for JSON escaping around a maximum-size body.
const maxRequestBytes = 2*usecase.MaxBodyBytes + 4096

// DraftHandler handles live draft reads and autosaves
type DraftHandler struct {
	drafts  DraftUseCase
	limiter ports.Limiter
	logger  logger.Logger
}

// NewDraftHandler creates a new draft handler. A nil limiter disables throttling.
func NewDraftHandler(drafts DraftUseCase, limiter ports.Limiter, log logger.Logger) *DraftHandler {
	return &DraftHandler{drafts: drafts, limiter: limiter, logger: log}
}

// RegisterRoutes registers draft routes
func (h *DraftHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/contracts/{id}/draft", h.GetDraft).Methods("GET")
	router.HandleFunc("/contracts/{id}/draft", h.SaveDraft).Methods("PUT")
}

type saveDraftRequest struct {
	Stage        domain.Stage `json:"stage"`
	Body         string       `json:"body"`
	VersionToken string       `json:"version_token"`
}

// GetDraft returns the live draft of the current stage, rendered when ?render=true
func (h *DraftHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	actorID := UserID(r.Context())

	if render, _ := strconv.ParseBool(r.URL.Query().Get("render")); render {
		rendered, err := h.drafts.Render(r.Context(), id, actorID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, "Draft rendered successfully", rendered)
		return
	}

	draft, err := h.drafts.Current(r.Context(), id, actorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Draft retrieved successfully", draft)
}

// SaveDraft replaces the live draft. A stale version_token yields 409 with
// the current server draft in data.current.
func (h *DraftHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	actorID := UserID(r.Context())

	if h.limiter != nil {
		key := fmt.Sprintf("autosave:%s:%s", actorID, id)
		allowed, err := h.limiter.Allow(r.Context(), key)
		if err != nil {
			h.logger.Warn(r.Context(), "Autosave limiter unavailable", map[string]interface{}{
				"contract_id": id,
				"error":       err.Error(),
			})
		} else if !allowed {
			logger.LogSecurityEvent(r.Context(), h.logger, "autosave_rate_limited", "LOW", map[string]interface{}{
				"contract_id": id,
			})
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, codeRateLimited, "Too many saves. Please slow down.")
			return
		}
	}

	var req saveDraftRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	draft, err := h.drafts.Save(r.Context(), id, req.Stage, req.Body, actorID, req.VersionToken)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Draft saved successfully", draft)
}
