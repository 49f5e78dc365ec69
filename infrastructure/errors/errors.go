// Package errors provides the structured error taxonomy used across the
// invoice pipeline.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the behavioral category a caller switches on. It intentionally
// stays small: every component that can fail reports one of these, never a
// raw error, so the orchestrator and stage workers can decide whether to
// retry, dead-letter, or surface the failure without string-matching.
type Kind string

const (
	// KindTransient covers failures expected to succeed on retry: network
	// blips, a saturated external collaborator, a lock held elsewhere.
	KindTransient Kind = "transient"
	// KindInvalidInput covers malformed or incomplete data supplied to a
	// component (a document with no extractable fields, a negative amount).
	KindInvalidInput Kind = "invalid_input"
	// KindInvalidTransition covers a requested workflow state change that
	// the transition table does not allow from the record's current state.
	KindInvalidTransition Kind = "invalid_transition"
	// KindIntegrityError covers a tamper or corruption finding, such as an
	// audit event whose checksum no longer matches its content.
	KindIntegrityError Kind = "integrity_error"
	// KindNotFound covers a lookup against a known-absent resource.
	KindNotFound Kind = "not_found"
	// KindConflict covers a write that collides with concurrent state, such
	// as two workers both claiming the same approval task.
	KindConflict Kind = "conflict"
)

// ErrorCode identifies the precise failure within a Kind.
type ErrorCode string

const (
	ErrCodeTransientIO         ErrorCode = "PIPE_1001"
	ErrCodeCollaboratorTimeout ErrorCode = "PIPE_1002"
	ErrCodeBusUnavailable      ErrorCode = "PIPE_1003"
	ErrCodeInvalidDocument     ErrorCode = "PIPE_2001"
	ErrCodeMissingField        ErrorCode = "PIPE_2002"
	ErrCodeInvalidAmount       ErrorCode = "PIPE_2003"
	ErrCodeInvalidRule         ErrorCode = "PIPE_2004"
	ErrCodeBadTransition       ErrorCode = "PIPE_3001"
	ErrCodeTerminalState       ErrorCode = "PIPE_3002"
	ErrCodeChecksumMismatch    ErrorCode = "PIPE_4001"
	ErrCodeInvoiceNotFound     ErrorCode = "PIPE_5001"
	ErrCodeVendorNotFound      ErrorCode = "PIPE_5002"
	ErrCodeTaskNotFound        ErrorCode = "PIPE_5003"
	ErrCodeWorkflowNotFound    ErrorCode = "PIPE_5004"
	ErrCodeDuplicateTask       ErrorCode = "PIPE_6001"
	ErrCodeConcurrentUpdate    ErrorCode = "PIPE_6002"
	ErrCodeAlreadyProcessed    ErrorCode = "PIPE_6003"
)

// ServiceError is a structured error carrying a Kind, a code, a human
// message, an HTTP status for the (out-of-scope) API surface to read, and
// optional structured details.
type ServiceError struct {
	Kind       Kind                   `json:"kind"`
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds a structured detail and returns the same error for chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Retryable reports whether the bus/orchestrator should attempt a retry.
func (e *ServiceError) Retryable() bool {
	return e.Kind == KindTransient
}

func New(kind Kind, code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{Kind: kind, Code: code, Message: message, HTTPStatus: httpStatus}
}

func Wrap(kind Kind, code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{Kind: kind, Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// Transient errors

func Transient(operation string, err error) *ServiceError {
	return Wrap(KindTransient, ErrCodeTransientIO, "transient failure, retry expected to succeed", http.StatusServiceUnavailable, err).
		WithDetails("operation", operation)
}

func CollaboratorTimeout(collaborator string, err error) *ServiceError {
	return Wrap(KindTransient, ErrCodeCollaboratorTimeout, "external collaborator call timed out", http.StatusGatewayTimeout, err).
		WithDetails("collaborator", collaborator)
}

func BusUnavailable(err error) *ServiceError {
	return Wrap(KindTransient, ErrCodeBusUnavailable, "event bus unavailable", http.StatusServiceUnavailable, err)
}

// Invalid input errors

func InvalidDocument(reason string) *ServiceError {
	return New(KindInvalidInput, ErrCodeInvalidDocument, "invoice document is invalid", http.StatusUnprocessableEntity).
		WithDetails("reason", reason)
}

func MissingField(field string) *ServiceError {
	return New(KindInvalidInput, ErrCodeMissingField, "required field missing", http.StatusUnprocessableEntity).
		WithDetails("field", field)
}

func InvalidAmount(field string, value interface{}) *ServiceError {
	return New(KindInvalidInput, ErrCodeInvalidAmount, "amount is invalid", http.StatusUnprocessableEntity).
		WithDetails("field", field).
		WithDetails("value", value)
}

func InvalidRule(ruleID, reason string) *ServiceError {
	return New(KindInvalidInput, ErrCodeInvalidRule, "approval rule is invalid", http.StatusBadRequest).
		WithDetails("rule_id", ruleID).
		WithDetails("reason", reason)
}

// Invalid transition errors

func BadTransition(from, action, workflowID string) *ServiceError {
	return New(KindInvalidTransition, ErrCodeBadTransition, "transition not permitted from current state", http.StatusConflict).
		WithDetails("from", from).
		WithDetails("action", action).
		WithDetails("workflow_id", workflowID)
}

func TerminalState(state string) *ServiceError {
	return New(KindInvalidTransition, ErrCodeTerminalState, "workflow is already in a terminal state", http.StatusConflict).
		WithDetails("state", state)
}

// Integrity errors

func ChecksumMismatch(resourceType, resourceID string) *ServiceError {
	return New(KindIntegrityError, ErrCodeChecksumMismatch, "checksum verification failed", http.StatusInternalServerError).
		WithDetails("resource_type", resourceType).
		WithDetails("resource_id", resourceID)
}

// Not found errors

func InvoiceNotFound(id string) *ServiceError {
	return New(KindNotFound, ErrCodeInvoiceNotFound, "invoice not found", http.StatusNotFound).WithDetails("id", id)
}

func VendorNotFound(id string) *ServiceError {
	return New(KindNotFound, ErrCodeVendorNotFound, "vendor not found", http.StatusNotFound).WithDetails("id", id)
}

func TaskNotFound(id string) *ServiceError {
	return New(KindNotFound, ErrCodeTaskNotFound, "approval task not found", http.StatusNotFound).WithDetails("id", id)
}

func WorkflowNotFound(id string) *ServiceError {
	return New(KindNotFound, ErrCodeWorkflowNotFound, "workflow record not found", http.StatusNotFound).WithDetails("id", id)
}

// Conflict errors

func DuplicateTask(invoiceID string) *ServiceError {
	return New(KindConflict, ErrCodeDuplicateTask, "approval task already open for invoice", http.StatusConflict).
		WithDetails("invoice_id", invoiceID)
}

func ConcurrentUpdate(resourceType, resourceID string) *ServiceError {
	return New(KindConflict, ErrCodeConcurrentUpdate, "resource modified concurrently", http.StatusConflict).
		WithDetails("resource_type", resourceType).
		WithDetails("resource_id", resourceID)
}

func AlreadyProcessed(eventID string) *ServiceError {
	return New(KindConflict, ErrCodeAlreadyProcessed, "event already processed", http.StatusConflict).
		WithDetails("event_id", eventID)
}

// Helper functions

func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// GetKind returns the Kind of err, or "" if err is not a ServiceError.
func GetKind(err error) Kind {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.Kind
	}
	return ""
}

// IsRetryable reports whether err is a ServiceError whose Kind is transient.
func IsRetryable(err error) bool {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.Retryable()
	}
	return false
}
