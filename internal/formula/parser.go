package formula

import (
	"math"
)

// ============================================================================
// 递归下降解析器
// ============================================================================
//
// 文法（优先级从低到高）：
//   expr       := ternary
//   ternary    := comparison [ '?' ternary ':' ternary ]
//   comparison := additive [ ('<'|'<='|'>'|'>='|'=='|'!=') additive ]
//   additive   := multiply { ('+'|'-') multiply }
//   multiply   := unary { ('*'|'/') unary }
//   unary      := [ '-' ] primary
//   primary    := NUMBER | VARIABLE | '(' expr ')'
//
// ============================================================================

type node interface {
	eval(env *evalEnv) (float64, error)
}

type evalEnv struct {
	formula  string
	bindings map[string]float64
}

type numberNode struct {
	value float64
}

func (n *numberNode) eval(*evalEnv) (float64, error) {
	return n.value, nil
}

type variableNode struct {
	name string
}

func (n *variableNode) eval(env *evalEnv) (float64, error) {
	v, ok := env.bindings[n.name]
	if !ok {
		// Compute 入口已经整体校验过一次，这里兜底
		return 0, &MissingVariableError{
			Formula:  env.formula,
			Missing:  n.name,
			Provided: sortedKeys(env.bindings),
		}
	}
	if math.IsNaN(v) {
		return 0, &EvaluationError{Formula: env.formula, Reason: "operand {" + n.name + "} is NaN"}
	}
	return v, nil
}

type binaryNode struct {
	op          tokenKind
	left, right node
}

func (n *binaryNode) eval(env *evalEnv) (float64, error) {
	l, err := n.left.eval(env)
	if err != nil {
		return 0, err
	}
	r, err := n.right.eval(env)
	if err != nil {
		return 0, err
	}

	switch n.op {
	case tokPlus:
		return l + r, nil
	case tokMinus:
		return l - r, nil
	case tokStar:
		return l * r, nil
	case tokSlash:
		if r == 0 {
			return 0, &EvaluationError{Formula: env.formula, Reason: "division by zero"}
		}
		return l / r, nil
	case tokLT:
		return boolVal(l < r), nil
	case tokLE:
		return boolVal(l <= r), nil
	case tokGT:
		return boolVal(l > r), nil
	case tokGE:
		return boolVal(l >= r), nil
	case tokEQ:
		return boolVal(l == r), nil
	case tokNE:
		return boolVal(l != r), nil
	}
	return 0, &EvaluationError{Formula: env.formula, Reason: "unknown operator"}
}

type ternaryNode struct {
	cond, then, otherwise node
}

func (n *ternaryNode) eval(env *evalEnv) (float64, error) {
	c, err := n.cond.eval(env)
	if err != nil {
		return 0, err
	}
	if c != 0 {
		return n.then.eval(env)
	}
	return n.otherwise.eval(env)
}

type negateNode struct {
	operand node
}

func (n *negateNode) eval(env *evalEnv) (float64, error) {
	v, err := n.operand.eval(env)
	if err != nil {
		return 0, err
	}
	return -v, nil
}

func boolVal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ----------------------------------------------------------------------------

type parser struct {
	formula string
	tokens  []token
	pos     int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) parseExpr() (node, error) {
	return p.parseTernary()
}

func (p *parser) parseTernary() (node, error) {
	cond, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokQuestion {
		return cond, nil
	}
	p.next() // consume '?'

	then, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokColon {
		return nil, syntaxErr(p.formula, "expected ':' in ternary expression at position %d", p.peek().pos)
	}
	p.next() // consume ':'

	otherwise, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	return &ternaryNode{cond: cond, then: then, otherwise: otherwise}, nil
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	switch p.peek().kind {
	case tokLT, tokLE, tokGT, tokGE, tokEQ, tokNE:
		op := p.next().kind
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &binaryNode{op: op, left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		k := p.peek().kind
		if k != tokPlus && k != tokMinus {
			return left, nil
		}
		op := p.next().kind
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		k := p.peek().kind
		if k != tokStar && k != tokSlash {
			return left, nil
		}
		op := p.next().kind
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	if p.peek().kind == tokMinus {
		p.next()
		// 只允许一个负号，"--x" 属于相邻运算符错误
		operand, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &negateNode{operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return &numberNode{value: t.value}, nil
	case tokVariable:
		return &variableNode{name: t.name}, nil
	case tokLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, syntaxErr(p.formula, "unbalanced parentheses: missing ')' at position %d", p.peek().pos)
		}
		p.next()
		return inner, nil
	case tokEOF:
		return nil, syntaxErr(p.formula, "unexpected end of formula (missing operand)")
	default:
		return nil, syntaxErr(p.formula, "unexpected token at position %d (adjacent or misplaced operator)", t.pos)
	}
}
