package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/inkwell/contractflow/internal/domain"
)

// VersionHandler handles version history requests
type VersionHandler struct {
	versions VersionUseCase
}

// NewVersionHandler creates a new version handler
func NewVersionHandler(versions VersionUseCase) *VersionHandler {
	return &VersionHandler{versions: versions}
}

// RegisterRoutes registers version routes
func (h *VersionHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/contracts/{id}/versions", h.ListVersions).Methods("GET")
	router.HandleFunc("/contracts/{id}/versions", h.Checkpoint).Methods("POST")
	router.HandleFunc("/contracts/{id}/versions/{vid}", h.GetVersion).Methods("GET")
	router.HandleFunc("/contracts/{id}/versions/{vid}/rollback", h.Rollback).Methods("POST")
}

type checkpointRequest struct {
	Summary string `json:"summary"`
}

// ListVersions lists versions in sequence order
func (h *VersionHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.versions.List(r.Context(), mux.Vars(r)["id"], UserID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if versions == nil {
		versions = []*domain.Version{}
	}
	writeSuccess(w, http.StatusOK, "Versions retrieved successfully", versions)
}

// Checkpoint snapshots the live draft into a new version
func (h *VersionHandler) Checkpoint(w http.ResponseWriter, r *http.Request) {
	var req checkpointRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	v, err := h.versions.Checkpoint(r.Context(), mux.Vars(r)["id"], UserID(r.Context()), req.Summary)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Version created successfully", v)
}

// GetVersion returns one version
func (h *VersionHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	v, err := h.versions.Get(r.Context(), vars["id"], vars["vid"], UserID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Version retrieved successfully", v)
}

// Rollback seeds the live draft from a version
func (h *VersionHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	draft, err := h.versions.Rollback(r.Context(), vars["id"], vars["vid"], UserID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Draft restored from version", draft)
}
