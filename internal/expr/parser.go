package expr

import (
	"strconv"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/num"
)

// node is an AST node. The node set is closed: literals, identifiers,
// unary/binary operators, comparison chains, boolean operators, the
// conditional expression and calls to whitelisted functions.
type node interface {
	eval(env map[string]*apd.Decimal) (*apd.Decimal, error)
}

type (
	numberNode struct{ value *apd.Decimal }

	identNode struct{ name string }

	unaryNode struct {
		op      string // "-", "+" or "not"
		operand node
	}

	binaryNode struct {
		op          string
		left, right node
	}

	// compareNode is a Python-style chain: a < b <= c means a < b and b <= c.
	compareNode struct {
		operands []node
		ops      []string
	}

	boolNode struct {
		op       string // "and" or "or"
		operands []node
	}

	condNode struct {
		cond, then, otherwise node
	}

	callNode struct {
		fn   string
		args []node
	}
)

var comparisonOps = map[string]bool{
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
}

// parser is a recursive-descent parser over the token stream. Precedence,
// loosest first: if-else, or, and, not, comparisons, + -, * / // %,
// unary sign, ** (right-associative).
type parser struct {
	toks []token
	pos  int
	src  string
}

func parse(src string) (node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, src: src}
	if p.peek().kind == tokEOF {
		return nil, errs.New(errs.CodeEvaluation, "empty expression")
	}
	n, err := p.conditional()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %q", t.text)
	}
	return n, nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isKeyword(word string) bool {
	t := p.peek()
	return t.kind == tokIdent && t.text == word
}

func (p *parser) isOp(ops ...string) bool {
	t := p.peek()
	if t.kind != tokOp {
		return false
	}
	for _, op := range ops {
		if t.text == op {
			return true
		}
	}
	return false
}

func (p *parser) errorf(t token, format string, args ...any) error {
	e := errs.New(errs.CodeEvaluation, format, args...)
	return e.WithDetail("expression", p.src).WithDetail("offset", strconv.Itoa(t.pos))
}

func (p *parser) conditional() (node, error) {
	then, err := p.or()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword("if") {
		return then, nil
	}
	p.next()
	cond, err := p.or()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword("else") {
		return nil, p.errorf(p.peek(), "expected 'else' in conditional expression")
	}
	p.next()
	otherwise, err := p.conditional()
	if err != nil {
		return nil, err
	}
	return &condNode{cond: cond, then: then, otherwise: otherwise}, nil
}

func (p *parser) or() (node, error) {
	return p.boolChain("or", p.and)
}

func (p *parser) and() (node, error) {
	return p.boolChain("and", p.not)
}

func (p *parser) boolChain(word string, operand func() (node, error)) (node, error) {
	first, err := operand()
	if err != nil {
		return nil, err
	}
	operands := []node{first}
	for p.isKeyword(word) {
		p.next()
		n, err := operand()
		if err != nil {
			return nil, err
		}
		operands = append(operands, n)
	}
	if len(operands) == 1 {
		return first, nil
	}
	return &boolNode{op: word, operands: operands}, nil
}

func (p *parser) not() (node, error) {
	if p.isKeyword("not") {
		p.next()
		operand, err := p.not()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: "not", operand: operand}, nil
	}
	return p.comparison()
}

func (p *parser) comparison() (node, error) {
	first, err := p.arith()
	if err != nil {
		return nil, err
	}
	cmp := &compareNode{operands: []node{first}}
	for p.peek().kind == tokOp && comparisonOps[p.peek().text] {
		op := p.next().text
		n, err := p.arith()
		if err != nil {
			return nil, err
		}
		cmp.ops = append(cmp.ops, op)
		cmp.operands = append(cmp.operands, n)
	}
	if len(cmp.ops) == 0 {
		return first, nil
	}
	return cmp, nil
}

func (p *parser) arith() (node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.isOp("+", "-") {
		op := p.next().text
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) term() (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*", "/", "//", "%") {
		op := p.next().text
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) unary() (node, error) {
	if p.isOp("-", "+") {
		op := p.next().text
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: op, operand: operand}, nil
	}
	return p.power()
}

// power binds tighter than a unary sign on its left and looser on its
// right, so -2**2 is -(2**2) and 2**-1 is 2**(-1).
func (p *parser) power() (node, error) {
	base, err := p.atom()
	if err != nil {
		return nil, err
	}
	if !p.isOp("**") {
		return base, nil
	}
	p.next()
	exp, err := p.unary()
	if err != nil {
		return nil, err
	}
	return &binaryNode{op: "**", left: base, right: exp}, nil
}

func (p *parser) atom() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		d, err := num.Parse(t.text)
		if err != nil {
			return nil, p.errorf(t, "invalid number literal %q", t.text)
		}
		return &numberNode{value: d}, nil
	case tokLParen:
		n, err := p.conditional()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, p.errorf(p.peek(), "expected ')'")
		}
		p.next()
		return n, nil
	case tokIdent:
		switch t.text {
		case "True":
			return &numberNode{value: num.FromInt(1)}, nil
		case "False":
			return &numberNode{value: num.Zero()}, nil
		case "None", "if", "else", "and", "or", "not", "in", "is":
			return nil, p.errorf(t, "unexpected keyword %q", t.text)
		}
		if p.peek().kind == tokLParen {
			return p.call(t)
		}
		return &identNode{name: t.text}, nil
	case tokEOF:
		return nil, p.errorf(t, "unexpected end of expression")
	default:
		return nil, p.errorf(t, "unexpected %q", t.text)
	}
}

func (p *parser) call(name token) (node, error) {
	if _, ok := functions[name.text]; !ok {
		return nil, p.errorf(name, "function %q is not allowed", name.text)
	}
	p.next() // (
	c := &callNode{fn: name.text}
	if p.peek().kind == tokRParen {
		p.next()
		return c, nil
	}
	for {
		arg, err := p.conditional()
		if err != nil {
			return nil, err
		}
		c.args = append(c.args, arg)
		if p.peek().kind == tokComma {
			p.next()
			continue
		}
		if p.peek().kind != tokRParen {
			return nil, p.errorf(p.peek(), "expected ',' or ')' in call to %s", name.text)
		}
		p.next()
		return c, nil
	}
}
