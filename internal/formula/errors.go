package formula

import (
	"fmt"
	"strings"
)

// SyntaxError 公式语法错误（配置错误的一种，在配置校验阶段就会暴露）
type SyntaxError struct {
	Formula string
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid formula %q: %s", e.Formula, e.Message)
}

// MissingVariableError 公式引用的变量没有提供绑定值
type MissingVariableError struct {
	Formula  string
	Missing  string
	Provided []string
}

func (e *MissingVariableError) Error() string {
	provided := "none"
	if len(e.Provided) > 0 {
		provided = strings.Join(e.Provided, ", ")
	}
	return fmt.Sprintf("missing variable %q for formula %q (provided: %s)", e.Missing, e.Formula, provided)
}

// EvaluationError 公式求值错误（除零、NaN 操作数等）
type EvaluationError struct {
	Formula string
	Reason  string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("failed to evaluate formula %q: %s", e.Formula, e.Reason)
}

// UndefinedActionError 费用配置中不存在该操作
type UndefinedActionError struct {
	Action string
}

func (e *UndefinedActionError) Error() string {
	return fmt.Sprintf("no cost configured for action %q", e.Action)
}
