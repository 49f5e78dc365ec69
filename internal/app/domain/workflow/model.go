// Package workflow holds the invoice lifecycle transition table and the
// per-invoice append-only history of transitions. The state machine itself
// (internal/app/services/workflow) is the only writer.
package workflow

import (
	"time"

	"github.com/R3E-Network/service_layer/internal/app/domain/invoice"
)

// Action is a named trigger accepted by the state machine.
type Action string

const (
	ActionStartProcessing   Action = "start_processing"
	ActionReportError       Action = "report_error"
	ActionCompleteOCR       Action = "complete_ocr"
	ActionCompleteExtract   Action = "complete_extraction"
	ActionValidate          Action = "validate"
	ActionRequestReview     Action = "request_review"
	ActionApprove           Action = "approve"
	ActionReject            Action = "reject"
	ActionRequestPayment    Action = "request_payment"
	ActionConfirmPayment    Action = "confirm_payment"
	ActionArchive           Action = "archive"
	ActionRetry             Action = "retry"
)

// Transition is a single edge in the table: From -> (Action) -> To.
type Transition struct {
	From   invoice.State
	Action Action
	To     invoice.State
}

// Table is the total transition function from spec §4.6. Any (state, action)
// pair not present here is invalid.
var Table = []Transition{
	{invoice.StateUploaded, ActionStartProcessing, invoice.StateProcessing},

	{invoice.StateUploaded, ActionReportError, invoice.StateError},
	{invoice.StateProcessing, ActionReportError, invoice.StateError},
	{invoice.StateOCRComplete, ActionReportError, invoice.StateError},
	{invoice.StateExtracted, ActionReportError, invoice.StateError},
	{invoice.StatePaymentPending, ActionReportError, invoice.StateError},

	{invoice.StateProcessing, ActionCompleteOCR, invoice.StateOCRComplete},
	{invoice.StateOCRComplete, ActionCompleteExtract, invoice.StateExtracted},
	{invoice.StateExtracted, ActionValidate, invoice.StateValidated},
	{invoice.StateValidated, ActionRequestReview, invoice.StateReviewPending},
	{invoice.StateValidated, ActionApprove, invoice.StateApproved},
	{invoice.StateReviewPending, ActionApprove, invoice.StateApproved},
	{invoice.StateReviewPending, ActionReject, invoice.StateRejected},
	{invoice.StateApproved, ActionRequestPayment, invoice.StatePaymentPending},
	{invoice.StatePaymentPending, ActionConfirmPayment, invoice.StatePaid},
	{invoice.StatePaid, ActionArchive, invoice.StateArchived},
	{invoice.StateRejected, ActionArchive, invoice.StateArchived},
	{invoice.StateRejected, ActionRetry, invoice.StateUploaded},
	{invoice.StateError, ActionRetry, invoice.StateUploaded},
	{invoice.StateError, ActionArchive, invoice.StateArchived},
}

// StateTransition is one recorded entry in a WorkflowRecord's history.
type StateTransition struct {
	From      invoice.State
	To        invoice.State
	Action    Action
	Timestamp time.Time
	Actor     string
	Comment   string
	Metadata  map[string]string
}

// Record is the per-invoice workflow state: current state plus the
// append-only history that produced it. Invariant: History's last entry's
// To equals State, and every entry appears in Table.
type Record struct {
	InvoiceID  string
	State      invoice.State
	History    []StateTransition
	AssignedTo string
	DueDate    time.Time
}
