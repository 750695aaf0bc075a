package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	orderdomain "github.com/wyfcoding/ordergateway/internal/order/domain"
)

func TestNewPlanValidation(t *testing.T) {
	tests := []struct {
		name       string
		total      string
		chunkCount int
		duration   time.Duration
		wantErr    error
	}{
		{"valid plan", "1.0", 5, 60 * time.Second, nil},
		{"minimum window accepted", "1.0", 5, 10 * time.Second, nil},
		{"zero quantity", "0", 5, 60 * time.Second, ErrInvalidTotalQuantity},
		{"negative quantity", "-1", 5, 60 * time.Second, ErrInvalidTotalQuantity},
		{"single chunk", "1.0", 1, 60 * time.Second, ErrTooFewChunks},
		{"window too short", "1.0", 5, 8 * time.Second, ErrWindowTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := NewPlan("run-1", "BTCUSDT", orderdomain.SideBuy,
				decimal.RequireFromString(tt.total), tt.chunkCount, tt.duration)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, plan)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, plan)
		})
	}
}

func TestPlanChunkQuantityAndInterval(t *testing.T) {
	plan, err := NewPlan("run-1", "BTCUSDT", orderdomain.SideBuy,
		decimal.RequireFromString("1.0"), 5, 60*time.Second)
	require.NoError(t, err)

	assert.True(t, plan.ChunkQuantity().Equal(decimal.RequireFromString("0.2")),
		"1.0 split into 5 chunks gives 0.2, got %s", plan.ChunkQuantity())
	assert.Equal(t, 12*time.Second, plan.Interval())
}

func TestRunLifecycleCompleted(t *testing.T) {
	plan, err := NewPlan("run-1", "BTCUSDT", orderdomain.SideBuy,
		decimal.RequireFromString("0.4"), 2, 10*time.Second)
	require.NoError(t, err)

	run := NewRun(plan)
	assert.Equal(t, RunStatusIdle, run.Status)

	now := time.Unix(1_700_000_000, 0)
	run.Begin(now)
	assert.Equal(t, RunStatusRunning, run.Status)

	chunk := decimal.RequireFromString("0.2")
	run.RecordSuccess(1, chunk, 101, now.Add(time.Second))
	assert.Equal(t, RunStatusRunning, run.Status)

	run.RecordSuccess(2, chunk, 102, now.Add(2*time.Second))
	assert.Equal(t, RunStatusCompleted, run.Status)
	assert.True(t, run.Status.Terminal())
	assert.Len(t, run.Chunks, 2)
	assert.True(t, run.ExecutedQuantity().Equal(decimal.RequireFromString("0.4")))
}

func TestRunLifecycleAbortedOnFailure(t *testing.T) {
	plan, err := NewPlan("run-1", "BTCUSDT", orderdomain.SideSell,
		decimal.RequireFromString("1.0"), 5, 60*time.Second)
	require.NoError(t, err)

	run := NewRun(plan)
	now := time.Unix(1_700_000_000, 0)
	run.Begin(now)

	chunk := decimal.RequireFromString("0.2")
	run.RecordSuccess(1, chunk, 101, now)
	run.RecordSuccess(2, chunk, 102, now)
	run.RecordFailure(3, chunk, "insufficient margin", now)

	assert.Equal(t, RunStatusAborted, run.Status)
	assert.Equal(t, "insufficient margin", run.AbortReason)
	assert.Len(t, run.Chunks, 3)
	assert.True(t, run.ExecutedQuantity().Equal(decimal.RequireFromString("0.4")),
		"only the two successful chunks count")

	// 终态后不再接受新记录
	run.RecordSuccess(4, chunk, 104, now)
	assert.Len(t, run.Chunks, 3)
	assert.Equal(t, RunStatusAborted, run.Status)
}

func TestRunAbortWithoutChunk(t *testing.T) {
	plan, err := NewPlan("run-1", "BTCUSDT", orderdomain.SideBuy,
		decimal.RequireFromString("1.0"), 2, 10*time.Second)
	require.NoError(t, err)

	run := NewRun(plan)
	now := time.Unix(1_700_000_000, 0)
	run.Begin(now)
	run.Abort("cancelled", now)

	assert.Equal(t, RunStatusAborted, run.Status)
	assert.Equal(t, "cancelled", run.AbortReason)
	assert.Empty(t, run.Chunks)

	// 已终态的 Abort 是幂等的
	run.Abort("other reason", now.Add(time.Second))
	assert.Equal(t, "cancelled", run.AbortReason)
}

func TestRunCloneIsIndependent(t *testing.T) {
	plan, err := NewPlan("run-1", "BTCUSDT", orderdomain.SideBuy,
		decimal.RequireFromString("1.0"), 2, 10*time.Second)
	require.NoError(t, err)

	run := NewRun(plan)
	now := time.Unix(1_700_000_000, 0)
	run.Begin(now)
	run.RecordSuccess(1, decimal.RequireFromString("0.5"), 101, now)

	snapshot := run.Clone()
	run.RecordSuccess(2, decimal.RequireFromString("0.5"), 102, now)

	assert.Len(t, snapshot.Chunks, 1)
	assert.Len(t, run.Chunks, 2)
	assert.Equal(t, RunStatusRunning, snapshot.Status)
}
