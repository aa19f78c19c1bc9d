package rule

import (
	"errors"
	"math"
	"testing"

	"stratify/internal/types"
)

var knownCols = []string{"open", "high", "low", "close", "volume", "SMA_20", "SMA_50", "position_amount"}

func row(vals map[string]float64) Lookup {
	return func(name string) float64 {
		if v, ok := vals[name]; ok {
			return v
		}
		return math.NaN()
	}
}

func cond(left, op, right, logical string) Condition {
	return Condition{LeftOperand: left, Operator: op, RightOperand: right, LogicalOperator: logical}
}

func compileOne(t *testing.T, conds []Condition) CompiledRule {
	t.Helper()
	rules, err := Compile([]OrderCondition{{Conditions: conds}}, knownCols)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return rules[0]
}

func wantCompileErr(t *testing.T, conds []Condition, reason string) {
	t.Helper()
	_, err := Compile([]OrderCondition{{Conditions: conds}}, knownCols)
	var ce *CompilationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CompilationError, got %v", err)
	}
	if ce.Reason != reason {
		t.Fatalf("reason: got %q, want %q", ce.Reason, reason)
	}
}

func TestComparisons(t *testing.T) {
	cur := row(map[string]float64{"close": 10, "SMA_20": 8})
	prev := row(map[string]float64{"close": 9, "SMA_20": 8})

	cases := []struct {
		op   string
		want bool
	}{
		{">", true}, {">=", true}, {"<", false}, {"<=", false}, {"==", false}, {"!=", true},
	}
	for _, tc := range cases {
		r := compileOne(t, []Condition{cond("close", tc.op, "SMA_20", "")})
		if got := r.Holds(cur, prev); got != tc.want {
			t.Errorf("close %s SMA_20: got %v, want %v", tc.op, got, tc.want)
		}
	}
}

func TestCrossAbove(t *testing.T) {
	r := compileOne(t, []Condition{cond("SMA_20", "crossabove", "SMA_50", "")})

	// Was below, now above: holds.
	cur := row(map[string]float64{"SMA_20": 11, "SMA_50": 10})
	prev := row(map[string]float64{"SMA_20": 9, "SMA_50": 10})
	if !r.Holds(cur, prev) {
		t.Error("crossabove must hold when L moved from <=R to >R")
	}
	// Was equal, now above: holds.
	prevEq := row(map[string]float64{"SMA_20": 10, "SMA_50": 10})
	if !r.Holds(cur, prevEq) {
		t.Error("crossabove must hold from equality")
	}
	// Already above: does not hold.
	prevAbove := row(map[string]float64{"SMA_20": 10.5, "SMA_50": 10})
	if r.Holds(cur, prevAbove) {
		t.Error("crossabove must not hold when already above")
	}
}

func TestCrossOpsMutuallyExclusiveAndNaNFalse(t *testing.T) {
	above := compileOne(t, []Condition{cond("SMA_20", "crossabove", "SMA_50", "")})
	under := compileOne(t, []Condition{cond("SMA_20", "crossunder", "SMA_50", "")})

	grid := []float64{-1, 0, 1}
	for _, p := range grid {
		for _, c := range grid {
			cur := row(map[string]float64{"SMA_20": c, "SMA_50": 0})
			prev := row(map[string]float64{"SMA_20": p, "SMA_50": 0})
			if above.Holds(cur, prev) && under.Holds(cur, prev) {
				t.Fatalf("crossabove and crossunder both hold at prev=%v cur=%v", p, c)
			}
		}
	}

	// Undefined on either side of either step: both false.
	cur := row(map[string]float64{"SMA_20": 11, "SMA_50": 10})
	prevNaN := row(map[string]float64{"SMA_50": 10}) // SMA_20 missing
	if above.Holds(cur, prevNaN) || under.Holds(cur, prevNaN) {
		t.Error("cross ops must be false when an operand is undefined")
	}
}

func TestLogicalLeftToRightNoPrecedence(t *testing.T) {
	// false and false or true, strictly left-to-right:
	// (false and false) or true = true. With and-precedence it would
	// also be true, so check the mirror: true or false and false =
	// (true or false) and false = false left-to-right.
	r := compileOne(t, []Condition{
		cond("close", ">", "0", "or"),  // true
		cond("close", "<", "0", "and"), // false
		cond("close", "<", "0", ""),    // false
	})
	cur := row(map[string]float64{"close": 5})
	prev := cur
	if r.Holds(cur, prev) {
		t.Error("left-to-right: (true or false) and false must be false")
	}
}

func TestXor(t *testing.T) {
	r := compileOne(t, []Condition{
		cond("close", ">", "0", "xor"),
		cond("close", ">", "10", ""),
	})
	cur := row(map[string]float64{"close": 5})
	if !r.Holds(cur, cur) {
		t.Error("true xor false must be true")
	}
	cur = row(map[string]float64{"close": 20})
	if r.Holds(cur, cur) {
		t.Error("true xor true must be false")
	}
}

func TestParenthesisGrouping(t *testing.T) {
	// true and (false or true) = true; without the explicit group the
	// left-to-right reading (true and false) or true is also true, so
	// test the distinguishing shape: false and (true or true).
	conds := []Condition{
		cond("close", "<", "0", "and"), // false
		{StartParenthesis: true, LeftOperand: "close", Operator: ">", RightOperand: "0", LogicalOperator: "or"}, // true
		{LeftOperand: "close", Operator: ">", RightOperand: "1", EndParenthesis: true},                          // true
	}
	r := compileOne(t, conds)
	cur := row(map[string]float64{"close": 5})
	if r.Holds(cur, cur) {
		t.Error("false and (true or true) must be false")
	}
}

func TestCompileErrors(t *testing.T) {
	wantCompileErr(t, []Condition{cond("nope", ">", "0", "")}, "unknown column reference")
	wantCompileErr(t, []Condition{cond("close", "~", "0", "")}, "unknown comparison operator")
	wantCompileErr(t, []Condition{
		cond("close", ">", "0", ""),
		cond("close", "<", "0", ""),
	}, "missing logical operator between conditions")
	wantCompileErr(t, []Condition{cond("close", ">", "0", "and")}, "trailing logical operator")
	wantCompileErr(t, []Condition{
		{LeftOperand: "close", Operator: ">", RightOperand: "0", EndParenthesis: true},
	}, "unbalanced parentheses")
	wantCompileErr(t, []Condition{
		{StartParenthesis: true, LeftOperand: "close", Operator: ">", RightOperand: "0"},
	}, "unbalanced parentheses")
	wantCompileErr(t, nil, "rule has no conditions")
	// Colon-style tokens are rejected outright.
	wantCompileErr(t, []Condition{cond("close[0:2]", ">", "0", "")}, "disallowed token")
}

func TestOperandExpressions(t *testing.T) {
	r := compileOne(t, []Condition{cond("(close - SMA_20) / SMA_20", ">", "0.05", "")})
	cur := row(map[string]float64{"close": 11, "SMA_20": 10})
	if !r.Holds(cur, cur) {
		t.Error("(11-10)/10 > 0.05 must hold")
	}
	cur = row(map[string]float64{"close": 10.2, "SMA_20": 10})
	if r.Holds(cur, cur) {
		t.Error("(10.2-10)/10 > 0.05 must not hold")
	}
}

func TestBuiltinCalls(t *testing.T) {
	r := compileOne(t, []Condition{cond("max(close, SMA_20)", "==", "min(abs(0 - 12), 20)", "")})
	cur := row(map[string]float64{"close": 12, "SMA_20": 10})
	if !r.Holds(cur, cur) {
		t.Error("max(12,10) == min(abs(-12),20) must hold")
	}
}

func TestOrderEmitters(t *testing.T) {
	rules, err := Compile([]OrderCondition{{
		Conditions: []Condition{cond("close", ">", "0", "")},
		Orders: []Order{
			{Type: types.OrderMarket, Side: types.SideBuy, Amount: "position_amount + 10"},
			{Type: types.OrderLimit, Side: types.SideSell, Amount: "5", Price: "close * 1.02"},
			{Type: types.OrderCancelAll},
		},
	}}, knownCols)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	cur := row(map[string]float64{"close": 100, "position_amount": 2})

	orders := rules[0].Orders
	if got := orders[0].Intent(cur); got.Amount != 12 || got.Side != types.SideBuy {
		t.Errorf("market intent: got %+v", got)
	}
	if got := orders[1].Intent(cur); got.Amount != 5 || got.Price != 102 {
		t.Errorf("limit intent: got %+v", got)
	}
	if got := orders[2].Intent(cur); got.Type != types.OrderCancelAll {
		t.Errorf("cancel intent: got %+v", got)
	}
}

func TestOrderValidation(t *testing.T) {
	_, err := Compile([]OrderCondition{{
		Conditions: []Condition{cond("close", ">", "0", "")},
		Orders:     []Order{{Type: types.OrderMarket, Side: "hold", Amount: "1"}},
	}}, knownCols)
	var ce *CompilationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CompilationError for bad side, got %v", err)
	}

	_, err = Compile([]OrderCondition{{
		Conditions: []Condition{cond("close", ">", "0", "")},
		Orders:     []Order{{Type: types.OrderLimit, Side: types.SideBuy, Amount: "1", Price: "oops"}},
	}}, knownCols)
	if !errors.As(err, &ce) {
		t.Fatalf("expected CompilationError for unknown price column, got %v", err)
	}
}

func TestDivisionByZeroIsUndefined(t *testing.T) {
	r := compileOne(t, []Condition{cond("close / volume", ">", "0", "")})
	cur := row(map[string]float64{"close": 10, "volume": 0})
	if r.Holds(cur, cur) {
		t.Error("division by zero must not satisfy a comparison")
	}
}
