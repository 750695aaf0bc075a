// Package domain 订单服务领域事件
package domain

import "time"

// DomainEvent 领域事件
type DomainEvent interface {
	EventName() string
	OccurredAt() time.Time
}

// OrderSubmittedEvent 订单提交成功事件
type OrderSubmittedEvent struct {
	OrderID   int64     `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Type      string    `json:"type"`
	Quantity  string    `json:"quantity"`
	Price     string    `json:"price,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *OrderSubmittedEvent) EventName() string     { return "ordergateway.order_submitted" }
func (e *OrderSubmittedEvent) OccurredAt() time.Time { return e.Timestamp }

// OrderRejectedEvent 订单被交易所拒绝事件
type OrderRejectedEvent struct {
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Type      string    `json:"type"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *OrderRejectedEvent) EventName() string     { return "ordergateway.order_rejected" }
func (e *OrderRejectedEvent) OccurredAt() time.Time { return e.Timestamp }

// ConditionalPairPlacedEvent 条件单对全部生效事件
type ConditionalPairPlacedEvent struct {
	Symbol            string    `json:"symbol"`
	TakeProfitOrderID int64     `json:"take_profit_order_id"`
	StopLossOrderID   int64     `json:"stop_loss_order_id"`
	Timestamp         time.Time `json:"timestamp"`
}

func (e *ConditionalPairPlacedEvent) EventName() string {
	return "ordergateway.conditional_pair_placed"
}
func (e *ConditionalPairPlacedEvent) OccurredAt() time.Time { return e.Timestamp }
