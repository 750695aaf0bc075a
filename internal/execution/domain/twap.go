// Package domain 执行服务的领域模型：TWAP 计划与执行记录
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	orderdomain "github.com/wyfcoding/ordergateway/internal/order/domain"
)

// MinChunkInterval 子单之间的最小间隔
const MinChunkInterval = 2 * time.Second

var (
	// ErrInvalidTotalQuantity 总数量必须为正
	ErrInvalidTotalQuantity = errors.New("total quantity must be > 0")
	// ErrTooFewChunks 至少拆成两个子单
	ErrTooFewChunks = errors.New("chunk count must be >= 2")
	// ErrWindowTooShort 执行窗口不足以保证子单间隔
	ErrWindowTooShort = errors.New("duration too short for chunk count")
)

// Plan TWAP 执行计划，构造通过后不可变
type Plan struct {
	// 执行 ID
	RunID string `json:"run_id"`
	// 交易对符号
	Symbol string `json:"symbol"`
	// 买卖方向
	Side orderdomain.Side `json:"side"`
	// 总数量
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	// 子单数量
	ChunkCount int `json:"chunk_count"`
	// 执行窗口
	Duration time.Duration `json:"duration"`
}

// NewPlan 创建执行计划，校验不变量：chunkCount >= 2 且窗口保证每个子单至少 2 秒间隔
func NewPlan(runID, symbol string, side orderdomain.Side, totalQuantity decimal.Decimal, chunkCount int, duration time.Duration) (*Plan, error) {
	if totalQuantity.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidTotalQuantity
	}
	if chunkCount < 2 {
		return nil, ErrTooFewChunks
	}
	if duration < time.Duration(chunkCount)*MinChunkInterval {
		return nil, fmt.Errorf("%w: need >= %s for %d chunks, got %s",
			ErrWindowTooShort, time.Duration(chunkCount)*MinChunkInterval, chunkCount, duration)
	}
	return &Plan{
		RunID:         runID,
		Symbol:        symbol,
		Side:          side,
		TotalQuantity: totalQuantity,
		ChunkCount:    chunkCount,
		Duration:      duration,
	}, nil
}

// ChunkQuantity 单个子单的名义数量，提交前还会按最新步长重新量化
func (p *Plan) ChunkQuantity() decimal.Decimal {
	return p.TotalQuantity.Div(decimal.NewFromInt(int64(p.ChunkCount)))
}

// Interval 子单之间的间隔
func (p *Plan) Interval() time.Duration {
	return p.Duration / time.Duration(p.ChunkCount)
}

// RunStatus 执行状态
type RunStatus string

const (
	// RunStatusIdle 计划已建立，尚未开始
	RunStatusIdle RunStatus = "IDLE"
	// RunStatusRunning 执行中
	RunStatusRunning RunStatus = "RUNNING"
	// RunStatusCompleted 所有子单执行完毕
	RunStatusCompleted RunStatus = "COMPLETED"
	// RunStatusAborted 某个子单失败或被取消，剩余子单不再尝试
	RunStatusAborted RunStatus = "ABORTED"
)

// Terminal 是否终态
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusAborted
}

// ChunkOutcome 单个子单的执行结果
type ChunkOutcome struct {
	// 序号，从 1 开始
	Index int `json:"index"`
	// 实际提交数量（量化后）
	Quantity decimal.Decimal `json:"quantity"`
	// 交易所订单 ID（成功时）
	OrderID int64 `json:"order_id,omitempty"`
	// 失败原因（失败时）
	Error string `json:"error,omitempty"`
	// 是否成功
	Succeeded bool `json:"succeeded"`
	// 执行时间
	ExecutedAt time.Time `json:"executed_at"`
}

// Run TWAP 执行记录，终态后不再变化
// 已成交的子单不回滚：市价单一旦成交不可逆
type Run struct {
	// 执行计划
	Plan *Plan `json:"plan"`
	// 当前状态
	Status RunStatus `json:"status"`
	// 按顺序记录的子单结果
	Chunks []ChunkOutcome `json:"chunks"`
	// 中止原因（Aborted 时）
	AbortReason string `json:"abort_reason,omitempty"`
	// 开始时间
	StartedAt time.Time `json:"started_at,omitempty"`
	// 结束时间
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// NewRun 建立执行记录
func NewRun(plan *Plan) *Run {
	return &Run{
		Plan:   plan,
		Status: RunStatusIdle,
		Chunks: make([]ChunkOutcome, 0, plan.ChunkCount),
	}
}

// Begin 进入执行状态
func (r *Run) Begin(at time.Time) {
	if r.Status != RunStatusIdle {
		return
	}
	r.Status = RunStatusRunning
	r.StartedAt = at
}

// RecordSuccess 记录一个成功的子单；最后一个子单成功后进入 Completed
func (r *Run) RecordSuccess(index int, quantity decimal.Decimal, orderID int64, at time.Time) {
	if r.Status != RunStatusRunning {
		return
	}
	r.Chunks = append(r.Chunks, ChunkOutcome{
		Index:      index,
		Quantity:   quantity,
		OrderID:    orderID,
		Succeeded:  true,
		ExecutedAt: at,
	})
	if index >= r.Plan.ChunkCount {
		r.Status = RunStatusCompleted
		r.FinishedAt = at
	}
}

// RecordFailure 记录失败的子单并中止：剩余子单永不尝试
func (r *Run) RecordFailure(index int, quantity decimal.Decimal, reason string, at time.Time) {
	if r.Status != RunStatusRunning {
		return
	}
	r.Chunks = append(r.Chunks, ChunkOutcome{
		Index:      index,
		Quantity:   quantity,
		Error:      reason,
		ExecutedAt: at,
	})
	r.Status = RunStatusAborted
	r.AbortReason = reason
	r.FinishedAt = at
}

// Abort 不记录子单直接中止（取消或前置检查失败）
func (r *Run) Abort(reason string, at time.Time) {
	if r.Status.Terminal() {
		return
	}
	r.Status = RunStatusAborted
	r.AbortReason = reason
	r.FinishedAt = at
}

// ExecutedQuantity 已成交的总数量
func (r *Run) ExecutedQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, c := range r.Chunks {
		if c.Succeeded {
			total = total.Add(c.Quantity)
		}
	}
	return total
}

// Clone 返回执行记录的深拷贝，供并发读取
func (r *Run) Clone() *Run {
	cp := *r
	cp.Chunks = make([]ChunkOutcome, len(r.Chunks))
	copy(cp.Chunks, r.Chunks)
	return &cp
}
