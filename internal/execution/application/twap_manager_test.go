package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/ordergateway/internal/execution/domain"
	orderdomain "github.com/wyfcoding/ordergateway/internal/order/domain"
	refdomain "github.com/wyfcoding/ordergateway/internal/referencedata/domain"
)

type fakeSubmitter struct {
	mu sync.Mutex
	// failAt 第 n 次调用返回错误，0 表示全部成功
	failAt    int
	calls     int
	submitted []decimal.Decimal
	// firstCall 首次提交时关闭
	firstCall chan struct{}
	once      sync.Once
}

func newFakeSubmitter(failAt int) *fakeSubmitter {
	return &fakeSubmitter{failAt: failAt, firstCall: make(chan struct{})}
}

func (f *fakeSubmitter) SubmitMarket(ctx context.Context, symbol string, side orderdomain.Side, quantity decimal.Decimal) (*orderdomain.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.once.Do(func() { close(f.firstCall) })
	if f.failAt > 0 && f.calls == f.failAt {
		return nil, &orderdomain.RejectionError{Code: -2019, Reason: "margin is insufficient"}
	}
	f.submitted = append(f.submitted, quantity)
	return &orderdomain.OrderAck{OrderID: int64(100 + f.calls), Symbol: symbol, Status: "FILLED"}, nil
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixedRulesProvider struct {
	step string
	err  error
}

func (p *fixedRulesProvider) GetRules(ctx context.Context, symbol string) (*refdomain.SymbolRules, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &refdomain.SymbolRules{
		Symbol:   symbol,
		TickSize: decimal.RequireFromString("0.10"),
		StepSize: decimal.RequireFromString(p.step),
		MinQty:   decimal.RequireFromString(p.step),
	}, nil
}

// immediateAfter 让子单间隔立即结束，测试不真正等待
func immediateAfter(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

// blockedAfter 间隔永不结束，只能通过取消退出
func blockedAfter(time.Duration) <-chan time.Time {
	return make(chan time.Time)
}

func waitForTerminal(t *testing.T, m *Manager, runID string) *domain.Run {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("twap run did not reach a terminal state in time")
		case <-time.After(5 * time.Millisecond):
		}
		run, ok := m.GetRun(runID)
		require.True(t, ok)
		if run.Status.Terminal() {
			return run
		}
	}
}

func mustPlan(t *testing.T, total string, chunks int, window time.Duration) *domain.Plan {
	t.Helper()
	plan, err := domain.NewPlan("run-test", "BTCUSDT", orderdomain.SideBuy,
		decimal.RequireFromString(total), chunks, window)
	require.NoError(t, err)
	return plan
}

func TestTwapRunCompletes(t *testing.T) {
	submitter := newFakeSubmitter(0)
	manager := NewManager(submitter, &fixedRulesProvider{step: "0.001"}, nil, nil)
	manager.after = immediateAfter

	runID := manager.Start(mustPlan(t, "1.0", 5, 60*time.Second))
	run := waitForTerminal(t, manager, runID)

	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, 5, submitter.callCount())
	assert.Len(t, run.Chunks, 5)
	for _, c := range run.Chunks {
		assert.True(t, c.Succeeded)
		assert.True(t, c.Quantity.Equal(decimal.RequireFromString("0.2")))
	}
	assert.True(t, run.ExecutedQuantity().Equal(decimal.RequireFromString("1.0")))
}

func TestTwapAbortsOnChunkFailure(t *testing.T) {
	submitter := newFakeSubmitter(3)
	manager := NewManager(submitter, &fixedRulesProvider{step: "0.001"}, nil, nil)
	manager.after = immediateAfter

	runID := manager.Start(mustPlan(t, "1.0", 5, 60*time.Second))
	run := waitForTerminal(t, manager, runID)

	assert.Equal(t, domain.RunStatusAborted, run.Status)
	assert.NotEmpty(t, run.AbortReason)
	// 第 3 个子单失败后第 4、5 个永不尝试
	assert.Equal(t, 3, submitter.callCount())
	assert.Len(t, run.Chunks, 3)
	assert.True(t, run.Chunks[0].Succeeded)
	assert.True(t, run.Chunks[1].Succeeded)
	assert.False(t, run.Chunks[2].Succeeded)
	assert.True(t, run.ExecutedQuantity().Equal(decimal.RequireFromString("0.4")))
}

func TestTwapChunksAreQuantized(t *testing.T) {
	submitter := newFakeSubmitter(0)
	// 总量 1.0 拆 3 份，名义数量 0.333... 量化到 0.333
	manager := NewManager(submitter, &fixedRulesProvider{step: "0.001"}, nil, nil)
	manager.after = immediateAfter

	runID := manager.Start(mustPlan(t, "1.0", 3, 30*time.Second))
	run := waitForTerminal(t, manager, runID)

	require.Equal(t, domain.RunStatusCompleted, run.Status)
	for _, c := range run.Chunks {
		assert.True(t, c.Quantity.Equal(decimal.RequireFromString("0.333")),
			"chunk quantity %s must be floored to the step", c.Quantity)
	}
}

func TestTwapAbortsWhenRulesUnavailable(t *testing.T) {
	submitter := newFakeSubmitter(0)
	manager := NewManager(submitter, &fixedRulesProvider{err: errors.New("exchange down")}, nil, nil)
	manager.after = immediateAfter

	runID := manager.Start(mustPlan(t, "1.0", 2, 10*time.Second))
	run := waitForTerminal(t, manager, runID)

	assert.Equal(t, domain.RunStatusAborted, run.Status)
	assert.Equal(t, 0, submitter.callCount(), "no order may be placed without trading rules")
}

func TestTwapCancelDuringInterval(t *testing.T) {
	submitter := newFakeSubmitter(0)
	manager := NewManager(submitter, &fixedRulesProvider{step: "0.001"}, nil, nil)
	manager.after = blockedAfter

	runID := manager.Start(mustPlan(t, "1.0", 5, 60*time.Second))

	// 等第一个子单提交完成，此时循环停在间隔等待上
	select {
	case <-submitter.firstCall:
	case <-time.After(3 * time.Second):
		t.Fatal("first chunk was never submitted")
	}

	require.True(t, manager.Cancel(runID))
	run := waitForTerminal(t, manager, runID)

	assert.Equal(t, domain.RunStatusAborted, run.Status)
	assert.Equal(t, "cancelled", run.AbortReason)
	assert.Equal(t, 1, submitter.callCount())
}

type recordingPublisher struct {
	mu     sync.Mutex
	events map[string]error
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{events: make(map[string]error)}
}

func (p *recordingPublisher) Publish(ctx context.Context, topic, key string, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events[topic] = ctx.Err()
	return nil
}

func (p *recordingPublisher) ctxErrFor(topic string) (error, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	err, ok := p.events[topic]
	return err, ok
}

func TestTwapCancelStillPublishesFinishedEvent(t *testing.T) {
	submitter := newFakeSubmitter(0)
	publisher := newRecordingPublisher()
	manager := NewManager(submitter, &fixedRulesProvider{step: "0.001"}, publisher, nil)
	manager.after = blockedAfter

	runID := manager.Start(mustPlan(t, "1.0", 5, 60*time.Second))

	select {
	case <-submitter.firstCall:
	case <-time.After(3 * time.Second):
		t.Fatal("first chunk was never submitted")
	}

	require.True(t, manager.Cancel(runID))
	waitForTerminal(t, manager, runID)

	// 终态在发布之前落地，事件稍后到达
	deadline := time.After(3 * time.Second)
	for {
		if ctxErr, published := publisher.ctxErrFor("ordergateway.twap_run_finished"); published {
			assert.NoError(t, ctxErr, "the terminal event must not be published on the cancelled run context")
			return
		}
		select {
		case <-deadline:
			t.Fatal("the terminal event was never published after cancellation")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestTwapCancelAfterCompletionReturnsFalse(t *testing.T) {
	submitter := newFakeSubmitter(0)
	manager := NewManager(submitter, &fixedRulesProvider{step: "0.001"}, nil, nil)
	manager.after = immediateAfter

	runID := manager.Start(mustPlan(t, "0.4", 2, 10*time.Second))
	waitForTerminal(t, manager, runID)

	assert.False(t, manager.Cancel(runID))
}

func TestGetRunUnknownID(t *testing.T) {
	manager := NewManager(newFakeSubmitter(0), &fixedRulesProvider{step: "0.001"}, nil, nil)
	_, ok := manager.GetRun("missing")
	assert.False(t, ok)
	assert.False(t, manager.Cancel("missing"))
}
