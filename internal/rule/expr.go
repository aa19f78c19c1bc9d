package rule

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Lookup resolves a column or ledger field name to its value for one
// row; unknown names resolve to NaN.
type Lookup func(name string) float64

// expr is a typed node interpreted each step. Only arithmetic, the two
// builtin calls and name/literal leaves exist; there is no way to reach
// arbitrary code from a compiled rule.
type expr interface {
	eval(row Lookup) float64
}

type literal float64

func (l literal) eval(Lookup) float64 { return float64(l) }

type column string

func (c column) eval(row Lookup) float64 { return row(string(c)) }

type binary struct {
	op   byte
	l, r expr
}

func (b binary) eval(row Lookup) float64 {
	lv, rv := b.l.eval(row), b.r.eval(row)
	switch b.op {
	case '+':
		return lv + rv
	case '-':
		return lv - rv
	case '*':
		return lv * rv
	case '/':
		if rv == 0 {
			return math.NaN()
		}
		return lv / rv
	}
	return math.NaN()
}

type negate struct{ e expr }

func (n negate) eval(row Lookup) float64 { return -n.e.eval(row) }

type call struct {
	fn   string
	args []expr
}

func (c call) eval(row Lookup) float64 {
	switch c.fn {
	case "abs":
		return math.Abs(c.args[0].eval(row))
	case "min":
		return math.Min(c.args[0].eval(row), c.args[1].eval(row))
	case "max":
		return math.Max(c.args[0].eval(row), c.args[1].eval(row))
	}
	return math.NaN()
}

var builtins = map[string]int{"abs": 1, "min": 2, "max": 2}

// parseExpr compiles one operand expression over the known column
// vocabulary. Anything outside literals, known names, arithmetic and
// the builtins is a compilation error.
func parseExpr(src string, known map[string]bool) (expr, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &exprParser{toks: toks, known: known}
	e, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, compileErr("unexpected trailing token", p.peek())
	}
	return e, nil
}

type exprParser struct {
	toks  []string
	pos   int
	known map[string]bool
}

func (p *exprParser) done() bool { return p.pos >= len(p.toks) }

func (p *exprParser) peek() string {
	if p.done() {
		return ""
	}
	return p.toks[p.pos]
}

func (p *exprParser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *exprParser) parseSum() (expr, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for p.peek() == "+" || p.peek() == "-" {
		op := p.next()[0]
		right, err := p.parseProduct()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *exprParser) parseProduct() (expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek() == "*" || p.peek() == "/" {
		op := p.next()[0]
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *exprParser) parseUnary() (expr, error) {
	if p.peek() == "-" {
		p.next()
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return negate{e: e}, nil
	}
	return p.parseAtom()
}

func (p *exprParser) parseAtom() (expr, error) {
	tok := p.next()
	switch {
	case tok == "":
		return nil, compileErr("unexpected end of expression", "")
	case tok == "(":
		e, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		if p.next() != ")" {
			return nil, compileErr("unbalanced parentheses in expression", tok)
		}
		return e, nil
	case isNumber(tok):
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, compileErr("malformed numeric literal", tok)
		}
		return literal(v), nil
	case isIdent(tok):
		if arity, ok := builtins[tok]; ok {
			return p.parseCall(tok, arity)
		}
		if !p.known[tok] {
			return nil, compileErr("unknown column reference", tok)
		}
		return column(tok), nil
	}
	return nil, compileErr("disallowed token", tok)
}

func (p *exprParser) parseCall(fn string, arity int) (expr, error) {
	if p.next() != "(" {
		return nil, compileErr("expected '(' after builtin", fn)
	}
	args := make([]expr, 0, arity)
	for i := 0; i < arity; i++ {
		if i > 0 {
			if p.next() != "," {
				return nil, compileErr("expected ',' in builtin arguments", fn)
			}
		}
		a, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	if p.next() != ")" {
		return nil, compileErr("unbalanced parentheses in expression", fn)
	}
	return call{fn: fn, args: args}, nil
}

func tokenize(src string) ([]string, error) {
	var toks []string
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case strings.IndexByte("+-*/(),", c) >= 0:
			toks = append(toks, string(c))
			i++
		case c >= '0' && c <= '9' || c == '.':
			j := i
			for j < len(src) && (src[j] >= '0' && src[j] <= '9' || src[j] == '.') {
				j++
			}
			toks = append(toks, src[i:j])
			i = j
		case unicode.IsLetter(rune(c)) || c == '_':
			j := i
			for j < len(src) && (unicode.IsLetter(rune(src[j])) || unicode.IsDigit(rune(src[j])) || src[j] == '_') {
				j++
			}
			toks = append(toks, src[i:j])
			i = j
		default:
			return nil, compileErr("disallowed token", string(c))
		}
	}
	if len(toks) == 0 {
		return nil, compileErr("empty expression", "")
	}
	return toks, nil
}

func isNumber(tok string) bool {
	return tok != "" && (tok[0] >= '0' && tok[0] <= '9' || tok[0] == '.')
}

func isIdent(tok string) bool {
	return tok != "" && (unicode.IsLetter(rune(tok[0])) || tok[0] == '_')
}
