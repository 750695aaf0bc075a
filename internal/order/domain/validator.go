package domain

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	refdomain "github.com/wyfcoding/ordergateway/internal/referencedata/domain"
)

// ratioTolerance 步长/价格刻度倍数判定的容差，对 value/step 的比值生效
// 沿用既有的 1e-6 启发式，改为精确十进制取模会移动接受边界
var ratioTolerance = decimal.New(1, -6)

// quantizeScale 量化结果保留的小数位数
const quantizeScale = 8

// RulesProvider 交易规则来源（通常是参考数据缓存）
type RulesProvider interface {
	GetRules(ctx context.Context, symbol string) (*refdomain.SymbolRules, error)
}

// Validator 订单校验器，是"订单是否合法"的唯一裁决方
type Validator struct {
	rules       RulesProvider
	quoteSuffix string
}

// NewValidator 创建校验器
func NewValidator(rules RulesProvider, quoteSuffix string) *Validator {
	return &Validator{
		rules:       rules,
		quoteSuffix: quoteSuffix,
	}
}

// Validate 按固定顺序校验订单意图，首个失败即返回
// 校验顺序：符号后缀、方向、数量为正、价格为正、最小数量、步长倍数、价格刻度倍数
func (v *Validator) Validate(ctx context.Context, intent OrderIntent) error {
	if !strings.HasSuffix(intent.Symbol, v.quoteSuffix) {
		return &ValidationError{
			Code:    CodeUnsupportedSymbol,
			Field:   "symbol",
			Message: fmt.Sprintf("only %s pairs are supported, got %q", v.quoteSuffix, intent.Symbol),
		}
	}

	if !intent.Side.Valid() {
		return &ValidationError{
			Code:    CodeInvalidSide,
			Field:   "side",
			Message: fmt.Sprintf("side must be BUY or SELL, got %q", intent.Side),
		}
	}

	if intent.Quantity.LessThanOrEqual(decimal.Zero) {
		return &ValidationError{
			Code:    CodeInvalidQuantity,
			Field:   "quantity",
			Message: "quantity must be > 0",
		}
	}

	if intent.HasPrice() && intent.Price.LessThanOrEqual(decimal.Zero) {
		return &ValidationError{
			Code:    CodeInvalidPrice,
			Field:   "price",
			Message: "price must be > 0",
		}
	}
	if intent.HasStopPrice() && intent.StopPrice.LessThanOrEqual(decimal.Zero) {
		return &ValidationError{
			Code:    CodeInvalidPrice,
			Field:   "stop_price",
			Message: "stop price must be > 0",
		}
	}

	// 零值编码"未设置"，按订单类型强制要求对应价格存在且为正，
	// 否则零价格的 LIMIT/条件单会绕过正数与刻度校验
	switch intent.Type {
	case OrderTypeLimit:
		if intent.Price.LessThanOrEqual(decimal.Zero) {
			return &ValidationError{
				Code:    CodeInvalidPrice,
				Field:   "price",
				Message: "limit orders require price > 0",
			}
		}
	case OrderTypeTakeProfitMarket, OrderTypeStopMarket:
		if intent.StopPrice.LessThanOrEqual(decimal.Zero) {
			return &ValidationError{
				Code:    CodeInvalidPrice,
				Field:   "stop_price",
				Message: "conditional orders require stop price > 0",
			}
		}
	}

	rules, err := v.rules.GetRules(ctx, intent.Symbol)
	if err != nil {
		return err
	}

	if intent.Quantity.LessThan(rules.MinQty) {
		return &ValidationError{
			Code:    CodeBelowMinQuantity,
			Field:   "quantity",
			Message: fmt.Sprintf("quantity %s is less than minimum quantity %s", intent.Quantity, rules.MinQty),
		}
	}

	if !isMultipleOf(intent.Quantity, rules.StepSize) {
		return &ValidationError{
			Code:    CodeStepSizeViolation,
			Field:   "quantity",
			Message: fmt.Sprintf("quantity %s must be a multiple of step size %s", intent.Quantity, rules.StepSize),
		}
	}

	if intent.HasPrice() && !isMultipleOf(intent.Price, rules.TickSize) {
		return &ValidationError{
			Code:    CodeTickSizeViolation,
			Field:   "price",
			Message: fmt.Sprintf("price %s must be a multiple of tick size %s", intent.Price, rules.TickSize),
		}
	}
	if intent.HasStopPrice() && !isMultipleOf(intent.StopPrice, rules.TickSize) {
		return &ValidationError{
			Code:    CodeTickSizeViolation,
			Field:   "stop_price",
			Message: fmt.Sprintf("stop price %s must be a multiple of tick size %s", intent.StopPrice, rules.TickSize),
		}
	}

	return nil
}

// Normalize 把意图的数量与价格向下量化到合法值，再包装为 NormalizedOrder
// 量化是有损且尽力而为的；规则获取失败时原样返回，由后续校验给出最终裁决
func (v *Validator) Normalize(ctx context.Context, intent OrderIntent) NormalizedOrder {
	rules, err := v.rules.GetRules(ctx, intent.Symbol)
	if err != nil {
		return NormalizedOrder{Intent: intent}
	}

	intent.Quantity = quantizeKeepPositive(intent.Quantity, rules.StepSize)
	if intent.HasPrice() {
		intent.Price = quantizeKeepPositive(intent.Price, rules.TickSize)
	}
	if intent.HasStopPrice() {
		intent.StopPrice = quantizeKeepPositive(intent.StopPrice, rules.TickSize)
	}
	return NormalizedOrder{Intent: intent}
}

// quantizeKeepPositive 向下量化，但拒绝把正值量化成零：
// 零值意味着"未设置"，量化出零会让后续校验误判价格缺失，
// 保留原值交由校验以刻度/步长违规拒绝
func quantizeKeepPositive(value, step decimal.Decimal) decimal.Decimal {
	quantized := QuantizeDown(value, step)
	if quantized.IsZero() && value.IsPositive() {
		return value
	}
	return quantized
}

// QuantizeDown 将 value 向下取整到 step 的整数倍，结果保留 8 位小数
// step 不为正时原样返回，永不失败
func QuantizeDown(value, step decimal.Decimal) decimal.Decimal {
	if step.LessThanOrEqual(decimal.Zero) {
		return value
	}
	return value.Div(step).Floor().Mul(step).Round(quantizeScale)
}

// isMultipleOf 判断 value 是否为 step 的整数倍（比值容差 1e-6）
func isMultipleOf(value, step decimal.Decimal) bool {
	if step.LessThanOrEqual(decimal.Zero) {
		return true
	}
	ratio := value.Div(step)
	return ratio.Sub(ratio.Round(0)).Abs().LessThanOrEqual(ratioTolerance)
}
