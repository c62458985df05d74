package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable identifier callers can branch on.
type ErrorCode string

const (
	CodePermissionDenied      ErrorCode = "PERMISSION_DENIED"
	CodeNotACollaborator      ErrorCode = "NOT_A_COLLABORATOR"
	CodeDuplicateCollaborator ErrorCode = "DUPLICATE_COLLABORATOR"
	CodeOwnerCannotBeRemoved  ErrorCode = "OWNER_CANNOT_BE_REMOVED"
	CodeLastOwnerDemotion     ErrorCode = "LAST_OWNER_DEMOTION"
	CodeInvalidRoleAssignment ErrorCode = "INVALID_ROLE_ASSIGNMENT"
	CodeInvalidTransition     ErrorCode = "INVALID_TRANSITION"
	CodeInvalidStageForWrite  ErrorCode = "INVALID_STAGE_FOR_WRITE"
	CodeStaleDraftConflict    ErrorCode = "STALE_DRAFT_CONFLICT"
	CodeVersionNotFound       ErrorCode = "VERSION_NOT_FOUND"
	CodeAuditWriteFailure     ErrorCode = "AUDIT_WRITE_FAILURE"
	CodeContractNotFound      ErrorCode = "CONTRACT_NOT_FOUND"
	CodeCollaboratorNotFound  ErrorCode = "COLLABORATOR_NOT_FOUND"
	CodeNotPublished          ErrorCode = "NOT_PUBLISHED"
	CodeValidation            ErrorCode = "VALIDATION_FAILED"
)

// Error is the engine's typed error. Two errors are equal under errors.Is
// when their codes match, so sentinels below can be wrapped with details.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDetails returns a copy of e carrying extra context.
func (e *Error) WithDetails(format string, args ...interface{}) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: fmt.Sprintf(format, args...)}
}

var (
	ErrPermissionDenied      = &Error{Code: CodePermissionDenied, Message: "you do not have permission to perform this action on this contract"}
	ErrNotACollaborator      = &Error{Code: CodeNotACollaborator, Message: "user is not a collaborator on this contract"}
	ErrDuplicateCollaborator = &Error{Code: CodeDuplicateCollaborator, Message: "user is already a collaborator on this contract"}
	ErrOwnerCannotBeRemoved  = &Error{Code: CodeOwnerCannotBeRemoved, Message: "the owner cannot be removed; transfer ownership first"}
	ErrLastOwnerDemotion     = &Error{Code: CodeLastOwnerDemotion, Message: "this change would leave the contract without an owner"}
	ErrInvalidRoleAssignment = &Error{Code: CodeInvalidRoleAssignment, Message: "ownership can only be granted by transferring it"}
	ErrInvalidTransition     = &Error{Code: CodeInvalidTransition, Message: "this action is not allowed in the contract's current stage"}
	ErrInvalidStageForWrite  = &Error{Code: CodeInvalidStageForWrite, Message: "drafts can only be saved for the contract's current stage"}
	ErrStaleDraftConflict    = &Error{Code: CodeStaleDraftConflict, Message: "someone else saved more recent changes"}
	ErrVersionNotFound       = &Error{Code: CodeVersionNotFound, Message: "version not found"}
	ErrAuditWriteFailure     = &Error{Code: CodeAuditWriteFailure, Message: "the action could not be recorded and was rolled back"}
	ErrContractNotFound      = &Error{Code: CodeContractNotFound, Message: "contract not found"}
	ErrCollaboratorNotFound  = &Error{Code: CodeCollaboratorNotFound, Message: "collaborator not found"}
	ErrNotPublished          = &Error{Code: CodeNotPublished, Message: "contract has not been published"}
	ErrValidation            = &Error{Code: CodeValidation, Message: "invalid request"}
)

// StaleDraftError is returned by a draft save whose version token no longer
// matches. Current holds the server-side draft the caller must reconcile with.
type StaleDraftError struct {
	Current *Draft
}

func (e *StaleDraftError) Error() string {
	return ErrStaleDraftConflict.Error()
}

func (e *StaleDraftError) Is(target error) bool {
	return ErrStaleDraftConflict.Is(target)
}

// AuditFailure wraps the storage error that prevented an audit write.
func AuditFailure(cause error) error {
	return fmt.Errorf("%w: %v", ErrAuditWriteFailure, cause)
}

// CodeOf extracts the taxonomy code from err, or "" for untyped errors.
func CodeOf(err error) ErrorCode {
	var stale *StaleDraftError
	if errors.As(err, &stale) {
		return CodeStaleDraftConflict
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Validation builds a validation error for a single field.
func Validation(field, reason string) error {
	return ErrValidation.WithDetails("%s: %s", field, reason)
}
