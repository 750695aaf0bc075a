// Package domain 订单服务的领域模型
package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Side 订单方向
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid 是否合法方向
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderType 订单类型
type OrderType string

const (
	OrderTypeMarket           OrderType = "MARKET"
	OrderTypeLimit            OrderType = "LIMIT"
	OrderTypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
	OrderTypeStopMarket       OrderType = "STOP_MARKET"
)

// TimeInForce 订单有效期
type TimeInForce string

const (
	// TimeInForceGTC Good Till Cancel
	TimeInForceGTC TimeInForce = "GTC"
)

// OrderIntent 用户意图的一笔订单，校验通过前不会触达交易所
type OrderIntent struct {
	// 交易对符号
	Symbol string
	// 买卖方向
	Side Side
	// 订单类型
	Type OrderType
	// 数量
	Quantity decimal.Decimal
	// 限价（LIMIT 使用，零值表示未设置）
	Price decimal.Decimal
	// 触发价（TAKE_PROFIT_MARKET / STOP_MARKET 使用，零值表示未设置）
	StopPrice decimal.Decimal
	// 是否只减仓
	ReduceOnly bool
	// 有效期（LIMIT 使用）
	TimeInForce TimeInForce
}

// HasPrice 是否携带限价
func (i OrderIntent) HasPrice() bool {
	return !i.Price.IsZero()
}

// HasStopPrice 是否携带触发价
func (i OrderIntent) HasStopPrice() bool {
	return !i.StopPrice.IsZero()
}

// NormalizedOrder 数量和价格已按规则量化的订单
// 提交前仍会重新校验，不信任调用方
type NormalizedOrder struct {
	Intent OrderIntent
}

// OrderAck 交易所的下单回执
type OrderAck struct {
	// 交易所订单 ID
	OrderID int64 `json:"order_id"`
	// 客户端订单 ID
	ClientOrderID string `json:"client_order_id"`
	// 交易对符号
	Symbol string `json:"symbol"`
	// 订单状态
	Status string `json:"status"`
	// 已成交数量
	ExecutedQty decimal.Decimal `json:"executed_qty"`
	// 平均成交价
	AvgPrice decimal.Decimal `json:"avg_price"`
	// 交易所更新时间
	UpdateTime time.Time `json:"update_time"`
}

// ExchangeGateway 交易所接入网关
type ExchangeGateway interface {
	// CreateOrder 提交一笔订单，恰好触发一次交易所下单调用
	CreateOrder(ctx context.Context, order NormalizedOrder) (*OrderAck, error)
	// LastPrice 查询最新成交价
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	// Ping 连通性探测
	Ping(ctx context.Context) error
}
