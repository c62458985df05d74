package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/inkwell/contractflow/internal/domain"
)

// ContractHandler handles contract, permission and transition requests
type ContractHandler struct {
	contracts   ContractUseCase
	permissions PermissionUseCase
	stages      StageUseCase
}

// NewContractHandler creates a new contract handler
func NewContractHandler(contracts ContractUseCase, permissions PermissionUseCase, stages StageUseCase) *ContractHandler {
	return &ContractHandler{
		contracts:   contracts,
		permissions: permissions,
		stages:      stages,
	}
}

// RegisterRoutes registers contract routes
func (h *ContractHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/contracts", h.CreateContract).Methods("POST")
	router.HandleFunc("/contracts", h.ListContracts).Methods("GET")
	router.HandleFunc("/contracts/{id}", h.GetContract).Methods("GET")
	router.HandleFunc("/contracts/{id}", h.UpdateContract).Methods("PATCH")
	router.HandleFunc("/contracts/{id}", h.ArchiveContract).Methods("DELETE")
	router.HandleFunc("/contracts/{id}/permissions", h.GetPermissions).Methods("GET")
	router.HandleFunc("/contracts/{id}/transitions", h.Transition).Methods("POST")
	router.HandleFunc("/contracts/{id}/published", h.GetPublished).Methods("GET")
}

type transitionRequest struct {
	Action string `json:"action"`
	Note   string `json:"note"`
}

type publishedResponse struct {
	ContractID string `json:"contract_id"`
	Body       string `json:"body"`
}

// CreateContract handles contract creation
func (h *ContractHandler) CreateContract(w http.ResponseWriter, r *http.Request) {
	var req domain.ContractDetails
	if !decodeJSON(w, r, &req) {
		return
	}

	contract, err := h.contracts.Create(r.Context(), UserID(r.Context()), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Contract created successfully", contract)
}

// ListContracts lists the contracts the caller collaborates on
func (h *ContractHandler) ListContracts(w http.ResponseWriter, r *http.Request) {
	contracts, err := h.contracts.ListForUser(r.Context(), UserID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if contracts == nil {
		contracts = []*domain.Contract{}
	}
	writeSuccess(w, http.StatusOK, "Contracts retrieved successfully", contracts)
}

// GetContract returns a contract with the caller's effective permission
func (h *ContractHandler) GetContract(w http.ResponseWriter, r *http.Request) {
	view, err := h.contracts.Get(r.Context(), mux.Vars(r)["id"], UserID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Contract retrieved successfully", view)
}

// UpdateContract updates business fields while in Draft
func (h *ContractHandler) UpdateContract(w http.ResponseWriter, r *http.Request) {
	var req domain.ContractDetails
	if !decodeJSON(w, r, &req) {
		return
	}

	contract, err := h.contracts.UpdateDetails(r.Context(), mux.Vars(r)["id"], UserID(r.Context()), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Contract updated successfully", contract)
}

// ArchiveContract soft-deletes a contract
func (h *ContractHandler) ArchiveContract(w http.ResponseWriter, r *http.Request) {
	if err := h.contracts.Archive(r.Context(), mux.Vars(r)["id"], UserID(r.Context())); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPermissions returns the caller's effective permission. Clients may use
// it to shape their UI; the server re-checks on every mutation.
func (h *ContractHandler) GetPermissions(w http.ResponseWriter, r *http.Request) {
	perm, err := h.permissions.Evaluate(r.Context(), UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Permissions evaluated successfully", perm)
}

// Transition applies a workflow action
func (h *ContractHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	action, err := domain.ParseAction(req.Action)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	contract, err := h.stages.Transition(r.Context(), mux.Vars(r)["id"], action, UserID(r.Context()), req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Transition applied successfully", contract)
}

// GetPublished returns the published body
func (h *ContractHandler) GetPublished(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	body, err := h.contracts.PublishedBody(r.Context(), id, UserID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Published body retrieved successfully", publishedResponse{ContractID: id, Body: body})
}

// decodeJSON reads a bounded JSON body, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid request body")
		return false
	}
	return true
}
