package rule

import (
	"encoding/json"
	"fmt"

	"stratify/internal/types"
)

// Condition is one comparison inside a rule, with the original JSON
// field names. The logical operator links this condition to the next;
// parenthesis markers encode the author's explicit grouping.
type Condition struct {
	StartParenthesis bool   `json:"start_parenthesis"`
	LeftOperand      string `json:"left_operand"`
	Operator         string `json:"operator"`
	RightOperand     string `json:"right_operand"`
	EndParenthesis   bool   `json:"end_parenthesis"`
	LogicalOperator  string `json:"logical_operator"`
}

// Order is one order descriptor emitted when its rule's conditions
// hold. Amount and Price are operand expressions evaluated against the
// current row.
type Order struct {
	Type   types.OrderType `json:"type"`
	Side   types.Side      `json:"side"`
	Amount string          `json:"amount"`
	Price  string          `json:"price"`
}

// OrderCondition pairs a condition chain with its resulting orders.
type OrderCondition struct {
	Conditions []Condition `json:"conditions"`
	Orders     []Order     `json:"orders"`
}

// ParseRuleSet decodes the order-conditions JSON stored on an execution.
func ParseRuleSet(raw string) ([]OrderCondition, error) {
	if raw == "" {
		return nil, nil
	}
	var rules []OrderCondition
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		return nil, fmt.Errorf("order conditions: %w", err)
	}
	return rules, nil
}

// CompilationError means the rule set is malformed; the execution never
// starts.
type CompilationError struct {
	Reason string
	Token  string
}

func (e *CompilationError) Error() string {
	if e.Token == "" {
		return "rule compilation failed: " + e.Reason
	}
	return fmt.Sprintf("rule compilation failed: %s (near %q)", e.Reason, e.Token)
}

func compileErr(reason, token string) error {
	return &CompilationError{Reason: reason, Token: token}
}
