// Package application 执行应用层：TWAP 调度
package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/ordergateway/internal/execution/domain"
	orderdomain "github.com/wyfcoding/ordergateway/internal/order/domain"
	"github.com/wyfcoding/ordergateway/pkg/logger"
	"github.com/wyfcoding/ordergateway/pkg/metrics"
	"github.com/wyfcoding/ordergateway/pkg/mq"
)

// OrderSubmitter 子单提交方（订单应用服务）
type OrderSubmitter interface {
	SubmitMarket(ctx context.Context, symbol string, side orderdomain.Side, quantity decimal.Decimal) (*orderdomain.OrderAck, error)
}

// Manager TWAP 执行管理器
// 每个执行在独立 goroutine 中串行提交子单，首个失败即中止
type Manager struct {
	submitter OrderSubmitter
	rules     orderdomain.RulesProvider
	publisher mq.EventPublisher
	metrics   *metrics.Metrics
	now       func() time.Time
	// after 间隔等待钩子，测试中替换
	after func(d time.Duration) <-chan time.Time

	mu   sync.RWMutex
	runs map[string]*runHandle
}

type runHandle struct {
	mu     sync.Mutex
	run    *domain.Run
	cancel context.CancelFunc
}

// NewManager 创建 TWAP 管理器
func NewManager(submitter OrderSubmitter, rules orderdomain.RulesProvider, publisher mq.EventPublisher, m *metrics.Metrics) *Manager {
	return &Manager{
		submitter: submitter,
		rules:     rules,
		publisher: publisher,
		metrics:   m,
		now:       time.Now,
		after:     time.After,
		runs:      make(map[string]*runHandle),
	}
}

// Start 开始执行计划，立即返回 run_id，执行在后台进行
// 执行不挂在请求 context 下，取消只通过 Cancel 显式触发
func (m *Manager) Start(plan *domain.Plan) string {
	runCtx, cancel := context.WithCancel(context.Background())
	h := &runHandle{
		run:    domain.NewRun(plan),
		cancel: cancel,
	}

	m.mu.Lock()
	m.runs[plan.RunID] = h
	m.mu.Unlock()

	go m.execute(runCtx, h)
	return plan.RunID
}

// GetRun 返回执行记录的快照
func (m *Manager) GetRun(runID string) (*domain.Run, bool) {
	m.mu.RLock()
	h, ok := m.runs[runID]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.run.Clone(), true
}

// Cancel 请求取消执行；已终态的执行返回 false
func (m *Manager) Cancel(runID string) bool {
	m.mu.RLock()
	h, ok := m.runs[runID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	h.mu.Lock()
	terminal := h.run.Status.Terminal()
	h.mu.Unlock()
	if terminal {
		return false
	}
	h.cancel()
	return true
}

// execute TWAP 主循环：每个子单提交前按最新规则重新量化数量，
// 提交失败立即中止，子单间按固定间隔等待，等待期间可被取消
func (m *Manager) execute(ctx context.Context, h *runHandle) {
	plan := h.run.Plan
	interval := plan.Interval()
	nominal := plan.ChunkQuantity()

	h.mu.Lock()
	h.run.Begin(m.now())
	h.mu.Unlock()

	if m.metrics != nil {
		m.metrics.TwapRunsActive.Inc()
		defer m.metrics.TwapRunsActive.Dec()
	}

	m.publish(ctx, &domain.TwapRunStartedEvent{
		RunID:         plan.RunID,
		Symbol:        plan.Symbol,
		Side:          string(plan.Side),
		TotalQuantity: plan.TotalQuantity.String(),
		ChunkCount:    plan.ChunkCount,
		Timestamp:     m.now(),
	})
	logger.Info(ctx, "TWAP run started",
		"run_id", plan.RunID,
		"symbol", plan.Symbol,
		"chunks", plan.ChunkCount,
		"interval", interval,
		"chunk_qty", nominal.String(),
	)

	for i := 1; i <= plan.ChunkCount; i++ {
		if err := ctx.Err(); err != nil {
			m.abort(ctx, h, "cancelled")
			return
		}

		// 每次提交前取最新规则量化，防止执行途中规则变化
		quantity, err := m.quantizedChunk(ctx, plan.Symbol, nominal)
		if err != nil {
			m.fail(ctx, h, i, nominal, err)
			return
		}

		ack, err := m.submitter.SubmitMarket(ctx, plan.Symbol, plan.Side, quantity)
		if err != nil {
			m.fail(ctx, h, i, quantity, err)
			return
		}

		h.mu.Lock()
		h.run.RecordSuccess(i, quantity, ack.OrderID, m.now())
		finished := h.run.Status.Terminal()
		h.mu.Unlock()

		if m.metrics != nil {
			m.metrics.TwapChunksTotal.WithLabelValues("success").Inc()
		}
		m.publish(ctx, &domain.TwapChunkExecutedEvent{
			RunID:     plan.RunID,
			Index:     i,
			OrderID:   ack.OrderID,
			Quantity:  quantity.String(),
			Timestamp: m.now(),
		})
		logger.Info(ctx, "TWAP chunk executed",
			"run_id", plan.RunID,
			"chunk", fmt.Sprintf("%d/%d", i, plan.ChunkCount),
			"order_id", ack.OrderID,
			"quantity", quantity.String(),
		)

		if finished {
			break
		}

		select {
		case <-m.after(interval):
		case <-ctx.Done():
			m.abort(ctx, h, "cancelled")
			return
		}
	}

	m.finish(ctx, h)
}

// quantizedChunk 将名义子单数量按最新步长向下量化
func (m *Manager) quantizedChunk(ctx context.Context, symbol string, nominal decimal.Decimal) (decimal.Decimal, error) {
	rules, err := m.rules.GetRules(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	quantity := orderdomain.QuantizeDown(nominal, rules.StepSize)
	if quantity.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("chunk quantity %s quantizes to zero with step size %s", nominal, rules.StepSize)
	}
	return quantity, nil
}

func (m *Manager) fail(ctx context.Context, h *runHandle, index int, quantity decimal.Decimal, err error) {
	h.mu.Lock()
	h.run.RecordFailure(index, quantity, err.Error(), m.now())
	h.mu.Unlock()

	if m.metrics != nil {
		m.metrics.TwapChunksTotal.WithLabelValues("failure").Inc()
	}
	logger.Error(ctx, "TWAP chunk failed, aborting run",
		"run_id", h.run.Plan.RunID,
		"chunk", index,
		"error", err,
	)
	m.finish(ctx, h)
}

func (m *Manager) abort(ctx context.Context, h *runHandle, reason string) {
	h.mu.Lock()
	h.run.Abort(reason, m.now())
	h.mu.Unlock()

	logger.Info(ctx, "TWAP run aborted",
		"run_id", h.run.Plan.RunID,
		"reason", reason,
	)
	m.finish(ctx, h)
}

func (m *Manager) finish(ctx context.Context, h *runHandle) {
	// 取消的执行也要发出终态事件，剥离取消信号避免发布本身被取消
	ctx = context.WithoutCancel(ctx)

	h.mu.Lock()
	status := h.run.Status
	reason := h.run.AbortReason
	executed := h.run.ExecutedQuantity()
	runID := h.run.Plan.RunID
	h.mu.Unlock()

	m.publish(ctx, &domain.TwapRunFinishedEvent{
		RunID:       runID,
		Status:      string(status),
		AbortReason: reason,
		ExecutedQty: executed.String(),
		Timestamp:   m.now(),
	})
	logger.Info(ctx, "TWAP run finished",
		"run_id", runID,
		"status", string(status),
		"executed_qty", executed.String(),
	)
}

// publish 发布领域事件，失败只记日志
func (m *Manager) publish(ctx context.Context, event domain.DomainEvent) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(ctx, event.EventName(), "", event); err != nil {
		logger.Error(ctx, "failed to publish event",
			"event", event.EventName(),
			"error", err,
		)
	}
}
