package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/inkwell/contractflow/internal/domain"
)

// CollaboratorHandler handles collaborator and ownership requests
type CollaboratorHandler struct {
	collaborators CollaboratorUseCase
}

// NewCollaboratorHandler creates a new collaborator handler
func NewCollaboratorHandler(collaborators CollaboratorUseCase) *CollaboratorHandler {
	return &CollaboratorHandler{collaborators: collaborators}
}

// RegisterRoutes registers collaborator routes
func (h *CollaboratorHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/contracts/{id}/collaborators", h.ListCollaborators).Methods("GET")
	router.HandleFunc("/contracts/{id}/collaborators", h.AddCollaborator).Methods("POST")
	router.HandleFunc("/contracts/{id}/ownership", h.TransferOwnership).Methods("POST")
	router.HandleFunc("/collaborators/{cid}", h.UpdateRole).Methods("PATCH")
	router.HandleFunc("/collaborators/{cid}", h.RemoveCollaborator).Methods("DELETE")
}

type addCollaboratorRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

type transferOwnershipRequest struct {
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
}

// ListCollaborators lists a contract's collaborators
func (h *CollaboratorHandler) ListCollaborators(w http.ResponseWriter, r *http.Request) {
	list, err := h.collaborators.List(r.Context(), mux.Vars(r)["id"], UserID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if list == nil {
		list = []*domain.Collaborator{}
	}
	writeSuccess(w, http.StatusOK, "Collaborators retrieved successfully", list)
}

// AddCollaborator binds a user to a contract with a role
func (h *CollaboratorHandler) AddCollaborator(w http.ResponseWriter, r *http.Request) {
	var req addCollaboratorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	c, err := h.collaborators.Add(r.Context(), mux.Vars(r)["id"], req.UserID, role, UserID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Collaborator added successfully", c)
}

// UpdateRole changes a collaborator's role
func (h *CollaboratorHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	c, err := h.collaborators.UpdateRole(r.Context(), mux.Vars(r)["cid"], role, UserID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Collaborator role updated successfully", c)
}

// RemoveCollaborator unbinds a collaborator
func (h *CollaboratorHandler) RemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	if err := h.collaborators.Remove(r.Context(), mux.Vars(r)["cid"], UserID(r.Context())); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TransferOwnership moves ownership between two collaborators. from_user_id
// defaults to the caller.
func (h *CollaboratorHandler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req transferOwnershipRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	actorID := UserID(r.Context())
	from := req.FromUserID
	if from == "" {
		from = actorID
	}

	if err := h.collaborators.TransferOwnership(r.Context(), mux.Vars(r)["id"], from, req.ToUserID, actorID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Ownership transferred successfully", nil)
}
