// Package domain 参考数据服务的领域模型：交易对的精度规则
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnknownSymbol 交易所不认识该交易对
var ErrUnknownSymbol = errors.New("unknown symbol")

// SymbolRules 交易对的交易精度规则
// 来自交易所元数据的 PRICE_FILTER 和 LOT_SIZE 过滤器，获取后不可变
type SymbolRules struct {
	// 交易对符号
	Symbol string `json:"symbol"`
	// 最小价格增量，所有价格必须是其整数倍
	TickSize decimal.Decimal `json:"tick_size"`
	// 最小数量增量，所有数量必须是其整数倍
	StepSize decimal.Decimal `json:"step_size"`
	// 最小下单数量
	MinQty decimal.Decimal `json:"min_qty"`
	// 最小下单价格
	MinPrice decimal.Decimal `json:"min_price"`
	// 获取时间
	FetchedAt time.Time `json:"fetched_at"`
}

// FilterSource 交易所元数据来源
type FilterSource interface {
	// GetSymbolFilters 远程获取交易对的精度规则
	GetSymbolFilters(ctx context.Context, symbol string) (*SymbolRules, error)
}

// FetchError 规则获取失败（远程调用或解析失败）
type FetchError struct {
	Symbol string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch trading rules for %s: %v", e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
