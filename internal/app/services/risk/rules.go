package risk

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/R3E-Network/service_layer/internal/app/domain/approval"
)

// RuleEngine evaluates the prioritized, ordered approval rules list against
// one invoice's FieldTree.
type RuleEngine struct {
	rules []approval.Rule
}

func NewRuleEngine(rules []approval.Rule) *RuleEngine {
	return &RuleEngine{rules: rules}
}

// Evaluate filters by Active, sorts by Priority descending, and evaluates
// each rule in order. Non-terminal actions from every matched rule
// accumulate; evaluation stops as soon as a matched rule emits a terminal
// action (auto_approve / auto_reject).
func (e *RuleEngine) Evaluate(tree FieldTree) []approval.RuleAction {
	active := make([]approval.Rule, 0, len(e.rules))
	for _, r := range e.rules {
		if r.Active {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].Priority > active[j].Priority })

	var actions []approval.RuleAction
	for _, rule := range active {
		if !e.matches(rule, tree) {
			continue
		}
		actions = append(actions, rule.Actions...)
		if hasTerminalAction(rule.Actions) {
			break
		}
	}
	return actions
}

func hasTerminalAction(actions []approval.RuleAction) bool {
	for _, a := range actions {
		if a.Type.IsTerminal() {
			return true
		}
	}
	return false
}

func (e *RuleEngine) matches(rule approval.Rule, tree FieldTree) bool {
	if len(rule.Conditions) == 0 {
		return false
	}
	switch rule.ConditionLogic {
	case approval.LogicOR:
		for _, c := range rule.Conditions {
			if evaluateCondition(c, tree) {
				return true
			}
		}
		return false
	default: // AND, and the zero value
		for _, c := range rule.Conditions {
			if !evaluateCondition(c, tree) {
				return false
			}
		}
		return true
	}
}

func evaluateCondition(c approval.Condition, tree FieldTree) bool {
	actual, ok := Resolve(tree, c.FieldPath)
	if !ok {
		return false
	}
	switch c.Operator {
	case approval.OpEquals:
		return fmt.Sprint(actual) == fmt.Sprint(c.Value)
	case approval.OpNotEquals:
		return fmt.Sprint(actual) != fmt.Sprint(c.Value)
	case approval.OpGreaterThan:
		a, b, ok := asFloats(actual, c.Value)
		return ok && a > b
	case approval.OpLessThan:
		a, b, ok := asFloats(actual, c.Value)
		return ok && a < b
	case approval.OpGTE:
		a, b, ok := asFloats(actual, c.Value)
		return ok && a >= b
	case approval.OpLTE:
		a, b, ok := asFloats(actual, c.Value)
		return ok && a <= b
	case approval.OpContains:
		return strings.Contains(strings.ToLower(fmt.Sprint(actual)), strings.ToLower(fmt.Sprint(c.Value)))
	case approval.OpInList:
		list, ok := c.Value.([]any)
		if !ok {
			return false
		}
		for _, item := range list {
			if fmt.Sprint(item) == fmt.Sprint(actual) {
				return true
			}
		}
		return false
	case approval.OpMatchesRE:
		pattern, ok := c.Value.(string)
		if !ok {
			return false
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(fmt.Sprint(actual))
	default:
		return false
	}
}

func asFloats(a, b any) (float64, float64, bool) {
	af, ok := toFloat(a)
	if !ok {
		return 0, 0, false
	}
	bf, ok := toFloat(b)
	if !ok {
		return 0, 0, false
	}
	return af, bf, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
