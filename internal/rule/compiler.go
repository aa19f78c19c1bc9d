package rule

import (
	"math"

	"stratify/internal/types"
)

// boolNode is a compiled condition chain. Evaluation is a pure function
// of the current and immediately preceding row.
type boolNode interface {
	eval(cur, prev Lookup) bool
}

type condNode struct {
	l, r expr
	op   string
}

func (c condNode) eval(cur, prev Lookup) bool {
	switch c.op {
	case "crossabove":
		return cross(c.l, c.r, cur, prev, true)
	case "crossunder":
		return cross(c.l, c.r, cur, prev, false)
	}
	lv, rv := c.l.eval(cur), c.r.eval(cur)
	switch c.op {
	case "==":
		return lv == rv
	case "!=":
		return lv != rv
	case "<":
		return lv < rv
	case "<=":
		return lv <= rv
	case ">":
		return lv > rv
	case ">=":
		return lv >= rv
	}
	return false
}

// cross holds when L was on or past R at the previous step and strictly
// beyond it now. False whenever either side is undefined at either step,
// which also makes crossabove and crossunder mutually exclusive.
func cross(l, r expr, cur, prev Lookup, above bool) bool {
	lp, rp := l.eval(prev), r.eval(prev)
	lc, rc := l.eval(cur), r.eval(cur)
	if math.IsNaN(lp) || math.IsNaN(rp) || math.IsNaN(lc) || math.IsNaN(rc) {
		return false
	}
	if above {
		return lp <= rp && lc > rc
	}
	return lp >= rp && lc < rc
}

type logicalNode struct {
	op   string
	l, r boolNode
}

func (n logicalNode) eval(cur, prev Lookup) bool {
	lv, rv := n.l.eval(cur, prev), n.r.eval(cur, prev)
	switch n.op {
	case "and":
		return lv && rv
	case "or":
		return lv || rv
	case "xor":
		return lv != rv
	}
	return false
}

// CompiledOrder evaluates its amount/price expressions against the
// current row and produces the intent handed to the ledger.
type CompiledOrder struct {
	Type   types.OrderType
	Side   types.Side
	amount expr
	price  expr
}

func (o CompiledOrder) Intent(cur Lookup) types.OrderIntent {
	intent := types.OrderIntent{Type: o.Type, Side: o.Side}
	if o.amount != nil {
		intent.Amount = o.amount.eval(cur)
	}
	if o.price != nil {
		intent.Price = o.price.eval(cur)
	}
	return intent
}

// CompiledRule is one rule's boolean evaluator plus its order emitters.
type CompiledRule struct {
	cond   boolNode
	Orders []CompiledOrder
}

// Holds evaluates the compiled condition chain for one step.
func (r CompiledRule) Holds(cur, prev Lookup) bool {
	return r.cond.eval(cur, prev)
}

var comparisonOps = map[string]bool{
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
	"crossabove": true, "crossunder": true,
}

var logicalOps = map[string]bool{"and": true, "or": true, "xor": true}

// Compile turns a structured rule set into executable evaluators and
// order emitters over the known column vocabulary. Any reference
// outside that vocabulary, unbalanced parentheses, or a missing or
// trailing connective fails with a CompilationError.
func Compile(rules []OrderCondition, knownColumns []string) ([]CompiledRule, error) {
	known := make(map[string]bool, len(knownColumns))
	for _, c := range knownColumns {
		known[c] = true
	}

	compiled := make([]CompiledRule, 0, len(rules))
	for _, rc := range rules {
		cond, err := compileConditions(rc.Conditions, known)
		if err != nil {
			return nil, err
		}
		orders, err := compileOrders(rc.Orders, known)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, CompiledRule{cond: cond, Orders: orders})
	}
	return compiled, nil
}

type condFrame struct {
	node    boolNode
	pending string
}

func (f *condFrame) attach(n boolNode) error {
	if f.node == nil {
		f.node = n
		return nil
	}
	if f.pending == "" {
		return compileErr("missing logical operator between conditions", "")
	}
	f.node = logicalNode{op: f.pending, l: f.node, r: n}
	f.pending = ""
	return nil
}

func compileConditions(conds []Condition, known map[string]bool) (boolNode, error) {
	if len(conds) == 0 {
		return nil, compileErr("rule has no conditions", "")
	}

	stack := []*condFrame{{}}
	for i, c := range conds {
		if !comparisonOps[c.Operator] {
			return nil, compileErr("unknown comparison operator", c.Operator)
		}
		left, err := parseExpr(c.LeftOperand, known)
		if err != nil {
			return nil, err
		}
		right, err := parseExpr(c.RightOperand, known)
		if err != nil {
			return nil, err
		}

		if c.StartParenthesis {
			stack = append(stack, &condFrame{})
		}
		top := stack[len(stack)-1]
		if err := top.attach(condNode{l: left, r: right, op: c.Operator}); err != nil {
			return nil, err
		}
		if c.EndParenthesis {
			if len(stack) == 1 {
				return nil, compileErr("unbalanced parentheses", "")
			}
			sub := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if err := stack[len(stack)-1].attach(sub.node); err != nil {
				return nil, err
			}
		}

		last := i == len(conds)-1
		switch {
		case c.LogicalOperator == "" && !last:
			return nil, compileErr("missing logical operator between conditions", "")
		case c.LogicalOperator != "" && last:
			return nil, compileErr("trailing logical operator", c.LogicalOperator)
		case c.LogicalOperator != "":
			if !logicalOps[c.LogicalOperator] {
				return nil, compileErr("unknown logical operator", c.LogicalOperator)
			}
			stack[len(stack)-1].pending = c.LogicalOperator
		}
	}
	if len(stack) != 1 {
		return nil, compileErr("unbalanced parentheses", "")
	}
	return stack[0].node, nil
}

func compileOrders(orders []Order, known map[string]bool) ([]CompiledOrder, error) {
	out := make([]CompiledOrder, 0, len(orders))
	for _, o := range orders {
		co := CompiledOrder{Type: o.Type, Side: o.Side}
		switch o.Type {
		case types.OrderCancelAll:
			// no operands
		case types.OrderMarket, types.OrderLimit:
			if o.Side != types.SideBuy && o.Side != types.SideSell {
				return nil, compileErr("unknown order side", string(o.Side))
			}
			amount, err := parseExpr(o.Amount, known)
			if err != nil {
				return nil, err
			}
			co.amount = amount
			if o.Type == types.OrderLimit {
				price, err := parseExpr(o.Price, known)
				if err != nil {
					return nil, err
				}
				co.price = price
			}
		default:
			return nil, compileErr("unknown order type", string(o.Type))
		}
		out = append(out, co)
	}
	return out, nil
}
