package risk

import (
	"testing"

	"github.com/R3E-Network/service_layer/internal/app/domain/approval"
)

func TestEvaluateAutoApproveStopsFurtherRules(t *testing.T) {
	rules := []approval.Rule{
		{
			ID: "low-value-auto-approve", Priority: 10, Active: true,
			Conditions:     []approval.Condition{{FieldPath: "amount", Operator: approval.OpLTE, Value: 100.0}},
			ConditionLogic: approval.LogicAND,
			Actions:        []approval.RuleAction{{Type: approval.ActionAutoApprove}},
		},
		{
			ID: "always-notify", Priority: 1, Active: true,
			Conditions:     []approval.Condition{{FieldPath: "amount", Operator: approval.OpGTE, Value: 0.0}},
			ConditionLogic: approval.LogicAND,
			Actions:        []approval.RuleAction{{Type: approval.ActionSendNotification}},
		},
	}
	tree := FieldTree{"amount": 50.0}

	actions := NewRuleEngine(rules).Evaluate(tree)

	if len(actions) != 1 || actions[0].Type != approval.ActionAutoApprove {
		t.Fatalf("expected only the auto-approve action, got %+v", actions)
	}
}

func TestEvaluateAggregatesNonTerminalActionsAcrossMatches(t *testing.T) {
	rules := []approval.Rule{
		{
			ID: "require-approval", Priority: 5, Active: true,
			Conditions:     []approval.Condition{{FieldPath: "amount", Operator: approval.OpGreaterThan, Value: 1000.0}},
			ConditionLogic: approval.LogicAND,
			Actions:        []approval.RuleAction{{Type: approval.ActionRequireApproval, Param: "manager"}},
		},
		{
			ID: "escalate-high-risk", Priority: 3, Active: true,
			Conditions:     []approval.Condition{{FieldPath: "risk.level", Operator: approval.OpEquals, Value: "high"}},
			ConditionLogic: approval.LogicAND,
			Actions:        []approval.RuleAction{{Type: approval.ActionEscalate, Param: "director"}},
		},
		{
			ID: "inactive-rule", Priority: 100, Active: false,
			Conditions:     []approval.Condition{{FieldPath: "amount", Operator: approval.OpGTE, Value: 0.0}},
			ConditionLogic: approval.LogicAND,
			Actions:        []approval.RuleAction{{Type: approval.ActionAutoReject}},
		},
	}
	tree := FieldTree{"amount": 5000.0, "risk": map[string]any{"level": "high"}}

	actions := NewRuleEngine(rules).Evaluate(tree)

	if len(actions) != 2 {
		t.Fatalf("expected two aggregated non-terminal actions, got %+v", actions)
	}
	if actions[0].Type != approval.ActionRequireApproval || actions[1].Type != approval.ActionEscalate {
		t.Fatalf("expected priority-descending order, got %+v", actions)
	}
}

func TestEvaluateORLogicMatchesOnAnyCondition(t *testing.T) {
	rules := []approval.Rule{
		{
			ID: "vendor-or-amount", Priority: 1, Active: true,
			ConditionLogic: approval.LogicOR,
			Conditions: []approval.Condition{
				{FieldPath: "vendor.name", Operator: approval.OpContains, Value: "acme"},
				{FieldPath: "amount", Operator: approval.OpGreaterThan, Value: 999999.0},
			},
			Actions: []approval.RuleAction{{Type: approval.ActionAddTag, Param: "acme-watch"}},
		},
	}
	tree := FieldTree{"amount": 10.0, "vendor": map[string]any{"name": "Acme Corp"}}

	actions := NewRuleEngine(rules).Evaluate(tree)

	if len(actions) != 1 || actions[0].Param != "acme-watch" {
		t.Fatalf("expected OR-matched tag action, got %+v", actions)
	}
}

func TestEvaluateInListAndRegexOperators(t *testing.T) {
	rules := []approval.Rule{
		{
			ID: "flagged-currency", Priority: 1, Active: true,
			ConditionLogic: approval.LogicAND,
			Conditions:     []approval.Condition{{FieldPath: "currency", Operator: approval.OpInList, Value: []any{"XYZ", "ABC"}}},
			Actions:        []approval.RuleAction{{Type: approval.ActionAddTag, Param: "odd-currency"}},
		},
		{
			ID: "invoice-number-pattern", Priority: 1, Active: true,
			ConditionLogic: approval.LogicAND,
			Conditions:     []approval.Condition{{FieldPath: "invoice_number", Operator: approval.OpMatchesRE, Value: `^INV-\d{4}$`}},
			Actions:        []approval.RuleAction{{Type: approval.ActionAddTag, Param: "well-formed-number"}},
		},
	}
	tree := FieldTree{"currency": "ABC", "invoice_number": "INV-2024"}

	actions := NewRuleEngine(rules).Evaluate(tree)

	if len(actions) != 2 {
		t.Fatalf("expected both rules to match, got %+v", actions)
	}
}

func TestEvaluateNoActiveRulesReturnsNoActions(t *testing.T) {
	rules := []approval.Rule{
		{ID: "inactive", Priority: 10, Active: false, Conditions: []approval.Condition{{FieldPath: "amount", Operator: approval.OpGTE, Value: 0.0}}, Actions: []approval.RuleAction{{Type: approval.ActionAutoReject}}},
	}
	actions := NewRuleEngine(rules).Evaluate(FieldTree{"amount": 10.0})
	if len(actions) != 0 {
		t.Fatalf("expected no actions, got %+v", actions)
	}
}
