// Package approval holds the ApprovalTask entity and the programmable rules
// engine's data model (Rule, Condition, Action).
package approval

import "time"

// Status is the lifecycle of a single approval task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusEscalated Status = "escalated"
	StatusExpired   Status = "expired"
)

// Priority ranks how urgently a task needs attention.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// SLAStatus mirrors sla.Status for the subset an approval task surfaces
// directly; kept as its own type so this package has no dependency on sla.
type SLAStatus string

const (
	SLAOnTrack  SLAStatus = "on_track"
	SLAWarning  SLAStatus = "warning"
	SLABreached SLAStatus = "breached"
)

// Task is a single pending-or-decided approval request on an invoice.
// Invariant: at most one Task with Status == StatusPending per InvoiceID;
// once a task reaches a terminal status (approved/rejected/expired) it is
// never mutated again.
type Task struct {
	ID         string
	InvoiceID  string
	TenantID   string
	Status     Status
	Priority   Priority

	AssignedTo   string
	AssignedRole string
	DueDate      time.Time
	SLAStatus    SLAStatus

	Action         string
	DecisionActor  string
	DecisionAt     time.Time
	Comments       string
	DelegatedTo    string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsTerminal reports whether the task can no longer change.
func (t Task) IsTerminal() bool {
	switch t.Status {
	case StatusApproved, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// ConditionLogic combines a rule's conditions.
type ConditionLogic string

const (
	LogicAND ConditionLogic = "AND"
	LogicOR  ConditionLogic = "OR"
)

// Operator is a comparison applied between a resolved field value and a
// condition's literal value.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpGreaterThan Operator = "gt"
	OpLessThan    Operator = "lt"
	OpGTE         Operator = "gte"
	OpLTE         Operator = "lte"
	OpContains    Operator = "contains"
	OpInList      Operator = "in_list"
	OpMatchesRE   Operator = "matches_regex"
)

// Condition tests one dotted field path against a literal value.
type Condition struct {
	FieldPath string
	Operator  Operator
	Value     any
}

// ActionType names an action a matched rule emits.
type ActionType string

const (
	ActionRequireApproval  ActionType = "require_approval"
	ActionAssignTo         ActionType = "assign_to"
	ActionAutoApprove      ActionType = "auto_approve"
	ActionAutoReject       ActionType = "auto_reject"
	ActionEscalate         ActionType = "escalate"
	ActionAddTag           ActionType = "add_tag"
	ActionSetPriority      ActionType = "set_priority"
	ActionSendNotification ActionType = "send_notification"
)

// IsTerminal reports whether this action type short-circuits rule
// evaluation once matched (auto_approve / auto_reject).
func (a ActionType) IsTerminal() bool {
	return a == ActionAutoApprove || a == ActionAutoReject
}

// RuleAction is one action emitted by a matched rule, with an optional
// parameter (approval level, actor, tag, priority, escalation target).
type RuleAction struct {
	Type  ActionType
	Param string
}

// Rule is one entry in the prioritized, ordered rules list.
type Rule struct {
	ID             string
	Name           string
	Conditions     []Condition
	ConditionLogic ConditionLogic
	Actions        []RuleAction
	Priority       int
	Active         bool
}
