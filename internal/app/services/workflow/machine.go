// Package workflow implements the invoice lifecycle state machine
// (component C6): transition validation against the total table in
// internal/app/domain/workflow, history recording, and registrable
// state-entry hooks.
package workflow

import (
	"context"
	"time"

	"github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
	"github.com/R3E-Network/service_layer/internal/app/domain/invoice"
	"github.com/R3E-Network/service_layer/internal/app/domain/workflow"
	"github.com/R3E-Network/service_layer/internal/app/storage"
)

// EntryHook runs synchronously when a transition lands on state. A hook
// failure is logged and swallowed — it never rolls back the transition.
type EntryHook func(ctx context.Context, record workflow.Record) error

// transitionIndex maps (From, Action) to the resulting state for O(1)
// lookups against the total transition table.
type transitionKey struct {
	from   invoice.State
	action workflow.Action
}

var transitionIndex = buildIndex()

func buildIndex() map[transitionKey]invoice.State {
	idx := make(map[transitionKey]invoice.State, len(workflow.Table))
	for _, t := range workflow.Table {
		idx[transitionKey{t.From, t.Action}] = t.To
	}
	return idx
}

// Machine owns transition validation, history, and state-entry hooks.
type Machine struct {
	store storage.WorkflowStore
	log   *logging.Logger
	hooks map[invoice.State][]EntryHook
	now   func() time.Time
}

func New(store storage.WorkflowStore, log *logging.Logger) *Machine {
	return &Machine{store: store, log: log, hooks: make(map[invoice.State][]EntryHook), now: time.Now}
}

// OnEnter registers a hook to run whenever a transition lands on state.
func (m *Machine) OnEnter(state invoice.State, hook EntryHook) {
	m.hooks[state] = append(m.hooks[state], hook)
}

// Init creates the initial workflow record for a newly uploaded invoice.
func (m *Machine) Init(ctx context.Context, invoiceID string) (workflow.Record, error) {
	record := workflow.Record{InvoiceID: invoiceID, State: invoice.StateUploaded}
	return m.store.Save(ctx, record)
}

// Fire applies action to invoiceID's current state. actor/comment/metadata
// are recorded on the appended StateTransition.
func (m *Machine) Fire(ctx context.Context, invoiceID string, action workflow.Action, actor, comment string, metadata map[string]string) (workflow.Record, error) {
	record, err := m.store.Get(ctx, invoiceID)
	if err != nil {
		return workflow.Record{}, err
	}

	to, ok := transitionIndex[transitionKey{record.State, action}]
	if !ok {
		return workflow.Record{}, errors.BadTransition(string(record.State), string(action), invoiceID)
	}

	transition := workflow.StateTransition{
		From: record.State, To: to, Action: action,
		Timestamp: m.now(), Actor: actor, Comment: comment, Metadata: metadata,
	}
	record.State = to
	record.History = append(record.History, transition)

	saved, err := m.store.Save(ctx, record)
	if err != nil {
		return workflow.Record{}, err
	}

	m.runHooks(ctx, saved)
	return saved, nil
}

// CanFire reports whether action is valid from the record's current state,
// without mutating anything — used by the orchestrator to branch without
// risking a BadTransition error.
func (m *Machine) CanFire(state invoice.State, action workflow.Action) bool {
	_, ok := transitionIndex[transitionKey{state, action}]
	return ok
}

func (m *Machine) runHooks(ctx context.Context, record workflow.Record) {
	for _, hook := range m.hooks[record.State] {
		if err := hook(ctx, record); err != nil {
			m.log.Error(ctx, "workflow entry hook failed", err, map[string]interface{}{
				"invoice_id": record.InvoiceID, "state": string(record.State),
			})
		}
	}
}

// Get returns the current workflow record.
func (m *Machine) Get(ctx context.Context, invoiceID string) (workflow.Record, error) {
	return m.store.Get(ctx, invoiceID)
}

// IsTerminal reports whether state is ARCHIVED, the only state with no
// outgoing transitions in the table — callers use this to decide whether
// further automated processing makes sense.
func IsTerminal(state invoice.State) bool {
	switch state {
	case invoice.StateArchived:
		return true
	default:
		return false
	}
}
