// Package formula 实现计费公式的解析与求值。
//
// 业务方可以在费用配置里写类似 "{token}*0.001+10" 的公式，
// 扣费时用运行期变量求出实际费用。语法被刻意限制在算术运算的子集，
// 详见 token.go 的说明。
package formula

import (
	"math"
	"sort"
)

// Compiled 编译后的公式，可以用不同的变量绑定反复求值，无需重新解析
type Compiled struct {
	formula string
	root    node
	vars    []string
}

// Parse 解析公式，返回可复用的编译结果
func Parse(formula string) (*Compiled, error) {
	if formula == "" {
		return nil, syntaxErr(formula, "formula is empty")
	}

	tokens, err := tokenize(formula)
	if err != nil {
		return nil, err
	}

	p := &parser{formula: formula, tokens: tokens}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, syntaxErr(formula, "unexpected token at position %d (missing operator)", p.peek().pos)
	}

	return &Compiled{
		formula: formula,
		root:    root,
		vars:    collectVariables(tokens),
	}, nil
}

// Formula 返回原始公式文本
func (c *Compiled) Formula() string { return c.formula }

// Variables 返回公式引用的变量集合（去重，首次出现顺序）
func (c *Compiled) Variables() []string {
	out := make([]string, len(c.vars))
	copy(out, c.vars)
	return out
}

// Compute 用给定绑定求值。纯函数，可并发调用。
// 缺少变量返回 *MissingVariableError，除零或 NaN 返回 *EvaluationError。
func (c *Compiled) Compute(bindings map[string]float64) (float64, error) {
	for _, name := range c.vars {
		if _, ok := bindings[name]; !ok {
			return 0, &MissingVariableError{
				Formula:  c.formula,
				Missing:  name,
				Provided: sortedKeys(bindings),
			}
		}
	}

	result, err := c.root.eval(&evalEnv{formula: c.formula, bindings: bindings})
	if err != nil {
		return 0, err
	}
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, &EvaluationError{Formula: c.formula, Reason: "result is not a finite number"}
	}
	return result, nil
}

// Validate 校验公式语法，配置加载阶段调用，失败返回 *SyntaxError
func Validate(formula string) error {
	_, err := Parse(formula)
	return err
}

// ExtractVariables 返回公式引用的变量集合，不求值
func ExtractVariables(formula string) ([]string, error) {
	c, err := Parse(formula)
	if err != nil {
		return nil, err
	}
	return c.Variables(), nil
}

// Evaluate 一次性解析并求值，公式只用一次时的便捷入口
func Evaluate(formula string, bindings map[string]float64) (float64, error) {
	c, err := Parse(formula)
	if err != nil {
		return 0, err
	}
	return c.Compute(bindings)
}

func collectVariables(tokens []token) []string {
	var vars []string
	seen := make(map[string]struct{})
	for _, t := range tokens {
		if t.kind != tokVariable {
			continue
		}
		if _, ok := seen[t.name]; ok {
			continue
		}
		seen[t.name] = struct{}{}
		vars = append(vars, t.name)
	}
	return vars
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
