// Package sla holds the per-invoice SLA record and escalation ladder types.
package sla

import "time"

// Status is the recomputed-on-query SLA state.
type Status string

const (
	StatusOnTrack  Status = "on_track"
	StatusWarning  Status = "warning"
	StatusBreached Status = "breached"
	StatusExpired  Status = "expired"
)

// EscalationLevel is a rung on the monotone escalation ladder.
type EscalationLevel string

const (
	EscalationNone      EscalationLevel = "none"
	EscalationReminder  EscalationLevel = "reminder"
	EscalationManager   EscalationLevel = "manager"
	EscalationDirector  EscalationLevel = "director"
	EscalationExecutive EscalationLevel = "executive"
)

// rank orders escalation levels for the monotonicity invariant.
var rank = map[EscalationLevel]int{
	EscalationNone:      0,
	EscalationReminder:  1,
	EscalationManager:   2,
	EscalationDirector:  3,
	EscalationExecutive: 4,
}

// AtLeast reports whether l is the same rung as or past other.
func (l EscalationLevel) AtLeast(other EscalationLevel) bool {
	return rank[l] >= rank[other]
}

// Stage names the pipeline phase an SLA timer is tracking.
type Stage string

const (
	StageProcessing Stage = "processing"
	StageReview     Stage = "review"
	StageApproval   Stage = "approval"
)

// Record is the live SLA timer for one invoice at one stage.
type Record struct {
	InvoiceID       string
	Stage           Stage
	CreatedAt       time.Time
	Deadline        time.Time
	Status          Status
	EscalationLevel EscalationLevel
	ReminderCount   int
	LastReminderAt  time.Time
	BreachedAt      time.Time
}

// CompletionSummary is returned by Complete when an SLA record is removed.
type CompletionSummary struct {
	InvoiceID             string
	ProcessingTime        time.Duration
	WasBreached           bool
	FinalEscalationLevel  EscalationLevel
	ReminderCount         int
}
