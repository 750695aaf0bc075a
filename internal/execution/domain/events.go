// Package domain 执行服务领域事件
package domain

import "time"

// DomainEvent 领域事件
type DomainEvent interface {
	EventName() string
	OccurredAt() time.Time
}

// TwapRunStartedEvent TWAP 执行开始事件
type TwapRunStartedEvent struct {
	RunID         string    `json:"run_id"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	TotalQuantity string    `json:"total_quantity"`
	ChunkCount    int       `json:"chunk_count"`
	Timestamp     time.Time `json:"timestamp"`
}

func (e *TwapRunStartedEvent) EventName() string     { return "ordergateway.twap_run_started" }
func (e *TwapRunStartedEvent) OccurredAt() time.Time { return e.Timestamp }

// TwapChunkExecutedEvent TWAP 子单成交事件
type TwapChunkExecutedEvent struct {
	RunID     string    `json:"run_id"`
	Index     int       `json:"index"`
	OrderID   int64     `json:"order_id"`
	Quantity  string    `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *TwapChunkExecutedEvent) EventName() string     { return "ordergateway.twap_chunk_executed" }
func (e *TwapChunkExecutedEvent) OccurredAt() time.Time { return e.Timestamp }

// TwapRunFinishedEvent TWAP 执行结束事件（完成或中止）
type TwapRunFinishedEvent struct {
	RunID       string    `json:"run_id"`
	Status      string    `json:"status"`
	AbortReason string    `json:"abort_reason,omitempty"`
	ExecutedQty string    `json:"executed_qty"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e *TwapRunFinishedEvent) EventName() string     { return "ordergateway.twap_run_finished" }
func (e *TwapRunFinishedEvent) OccurredAt() time.Time { return e.Timestamp }
