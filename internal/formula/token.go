package formula

import (
	"fmt"
	"strconv"
)

// ============================================================================
// 词法分析器
// ============================================================================
//
// 计费公式的受限语法只包含：
//   数字字面量（整数/小数）、{变量名}、四则运算符、比较运算符、
//   括号、三元表达式 cond ? a : b
//
// 【安全】不允许函数调用、字符串、赋值等任何其他语法，
// 公式来自业务方配置，绝不能交给通用表达式引擎执行
//
// ============================================================================

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokVariable
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokLParen
	tokRParen
	tokQuestion
	tokColon
	tokLT
	tokLE
	tokGT
	tokGE
	tokEQ
	tokNE
	tokEOF
)

type token struct {
	kind  tokenKind
	value float64 // tokNumber
	name  string  // tokVariable
	pos   int
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentPart(c byte) bool {
	return isLetter(c) || isDigit(c) || c == '_'
}

// tokenize 把公式拆成 token 序列，语法非法时返回 *SyntaxError
func tokenize(formula string) ([]token, error) {
	var tokens []token
	i := 0
	n := len(formula)

	for i < n {
		c := formula[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case isDigit(c) || c == '.':
			start := i
			dots := 0
			for i < n && (isDigit(formula[i]) || formula[i] == '.') {
				if formula[i] == '.' {
					dots++
				}
				i++
			}
			lit := formula[start:i]
			if dots > 1 || lit == "." {
				return nil, syntaxErr(formula, "invalid number %q at position %d", lit, start)
			}
			v, err := strconv.ParseFloat(lit, 64)
			if err != nil {
				return nil, syntaxErr(formula, "invalid number %q at position %d", lit, start)
			}
			tokens = append(tokens, token{kind: tokNumber, value: v, pos: start})

		case c == '{':
			start := i
			i++
			identStart := i
			for i < n && formula[i] != '}' {
				i++
			}
			if i >= n {
				return nil, syntaxErr(formula, "unbalanced braces: missing '}' for '{' at position %d", start)
			}
			name := formula[identStart:i]
			i++ // consume '}'
			if err := checkIdentifier(formula, name, start); err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokVariable, name: name, pos: start})

		case c == '+':
			tokens = append(tokens, token{kind: tokPlus, pos: i})
			i++
		case c == '-':
			tokens = append(tokens, token{kind: tokMinus, pos: i})
			i++
		case c == '*':
			tokens = append(tokens, token{kind: tokStar, pos: i})
			i++
		case c == '/':
			tokens = append(tokens, token{kind: tokSlash, pos: i})
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, pos: i})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, pos: i})
			i++
		case c == '?':
			tokens = append(tokens, token{kind: tokQuestion, pos: i})
			i++
		case c == ':':
			tokens = append(tokens, token{kind: tokColon, pos: i})
			i++

		case c == '<':
			if i+1 < n && formula[i+1] == '=' {
				tokens = append(tokens, token{kind: tokLE, pos: i})
				i += 2
			} else {
				tokens = append(tokens, token{kind: tokLT, pos: i})
				i++
			}
		case c == '>':
			if i+1 < n && formula[i+1] == '=' {
				tokens = append(tokens, token{kind: tokGE, pos: i})
				i += 2
			} else {
				tokens = append(tokens, token{kind: tokGT, pos: i})
				i++
			}
		case c == '=':
			if i+1 < n && formula[i+1] == '=' {
				tokens = append(tokens, token{kind: tokEQ, pos: i})
				i += 2
			} else {
				return nil, syntaxErr(formula, "unexpected '=' at position %d (use '==' for comparison)", i)
			}
		case c == '!':
			if i+1 < n && formula[i+1] == '=' {
				tokens = append(tokens, token{kind: tokNE, pos: i})
				i += 2
			} else {
				return nil, syntaxErr(formula, "unexpected '!' at position %d (use '!=' for comparison)", i)
			}
		case c == '}':
			return nil, syntaxErr(formula, "unbalanced braces: unexpected '}' at position %d", i)

		default:
			return nil, syntaxErr(formula, "unexpected character %q at position %d", string(c), i)
		}
	}

	tokens = append(tokens, token{kind: tokEOF, pos: n})
	return tokens, nil
}

// checkIdentifier 校验变量名：非空、首字符为字母、其余为字母/数字/下划线
func checkIdentifier(formula, name string, pos int) error {
	if name == "" {
		return syntaxErr(formula, "empty variable name at position %d", pos)
	}
	if !isLetter(name[0]) {
		return syntaxErr(formula, "invalid variable name %q: must start with a letter", name)
	}
	for j := 1; j < len(name); j++ {
		if !isIdentPart(name[j]) {
			return syntaxErr(formula, "invalid variable name %q: illegal character %q", name, string(name[j]))
		}
	}
	return nil
}

func syntaxErr(formula, format string, args ...any) *SyntaxError {
	return &SyntaxError{Formula: formula, Message: fmt.Sprintf(format, args...)}
}
