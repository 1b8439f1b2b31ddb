package formula

import (
	"fmt"
	"math"
)

// DefaultTier 费用配置里兜底档位的保留名
const DefaultTier = "default"

// CostValue 单个费用配置项：固定数值或动态公式，二选一
type CostValue struct {
	amount  float64
	formula string
	dynamic bool
}

// Fixed 构造固定费用
func Fixed(amount float64) CostValue {
	return CostValue{amount: amount}
}

// Dynamic 构造公式费用
func Dynamic(expr string) CostValue {
	return CostValue{formula: expr, dynamic: true}
}

// ValueOf 把配置原始值转成 CostValue：数字 → 固定费用，字符串 → 公式
func ValueOf(raw any) (CostValue, error) {
	switch v := raw.(type) {
	case float64:
		return Fixed(v), nil
	case float32:
		return Fixed(float64(v)), nil
	case int:
		return Fixed(float64(v)), nil
	case int64:
		return Fixed(float64(v)), nil
	case string:
		return Dynamic(v), nil
	default:
		return CostValue{}, fmt.Errorf("cost value must be a number or a formula string, got %T", raw)
	}
}

func (v CostValue) IsDynamic() bool { return v.dynamic }
func (v CostValue) Amount() float64 { return v.amount }
func (v CostValue) Formula() string { return v.formula }

// ActionCosts 某个操作按档位划分的费用，必须包含 "default" 档
type ActionCosts map[string]CostValue

// CostTable 操作 → 档位 → 费用
type CostTable map[string]ActionCosts

// resolve 解析 action + tier 对应的费用项：优先档位专属，回退 default
func resolve(table CostTable, action, tier string) (CostValue, ActionCosts, error) {
	costs, ok := table[action]
	if !ok {
		return CostValue{}, nil, &UndefinedActionError{Action: action}
	}
	if tier != "" {
		if v, ok := costs[tier]; ok {
			return v, costs, nil
		}
	}
	v, ok := costs[DefaultTier]
	if !ok {
		return CostValue{}, nil, &UndefinedActionError{Action: action}
	}
	return v, costs, nil
}

// Calculate 计算一次扣费的实际费用。
//
// 固定费用直接返回（忽略 bindings）。公式费用用 bindings 求值；
// bindings 为 nil 且 default 档是固定数值时回退到该数值（这是显式策略，
// 不算错误），否则返回 *MissingVariableError。
// 结果四舍五入到 2 位小数并下限截断为 0。
func Calculate(table CostTable, action, tier string, bindings map[string]float64) (float64, error) {
	entry, costs, err := resolve(table, action, tier)
	if err != nil {
		return 0, err
	}

	if !entry.IsDynamic() {
		return round2(entry.amount), nil
	}

	if bindings == nil {
		if def, ok := costs[DefaultTier]; ok && !def.IsDynamic() {
			return round2(def.amount), nil
		}
		c, err := Parse(entry.formula)
		if err != nil {
			return 0, err
		}
		missing := ""
		if vars := c.Variables(); len(vars) > 0 {
			missing = vars[0]
		}
		return 0, &MissingVariableError{Formula: entry.formula, Missing: missing}
	}

	result, err := Evaluate(entry.formula, bindings)
	if err != nil {
		return 0, err
	}
	return round2(result), nil
}

// IsDynamic 判断 action + tier 解析后的费用项是否为公式
func IsDynamic(table CostTable, action, tier string) bool {
	entry, _, err := resolve(table, action, tier)
	if err != nil {
		return false
	}
	return entry.IsDynamic()
}

// round2 四舍五入到 2 位小数，并截断负值
func round2(v float64) float64 {
	v = math.Round(v*100) / 100
	if v < 0 {
		return 0
	}
	return v
}
