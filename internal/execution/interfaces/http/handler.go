// Package http 执行服务 HTTP 接口
package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/ordergateway/internal/execution/application"
	"github.com/wyfcoding/ordergateway/internal/execution/domain"
	orderdomain "github.com/wyfcoding/ordergateway/internal/order/domain"
)

// TwapHandler TWAP 执行 HTTP 处理器
type TwapHandler struct {
	manager *application.Manager
}

// NewTwapHandler 创建 TWAP 处理器
func NewTwapHandler(manager *application.Manager) *TwapHandler {
	return &TwapHandler{manager: manager}
}

// RegisterRoutes 注册路由
func (h *TwapHandler) RegisterRoutes(r *gin.RouterGroup) {
	twap := r.Group("/twap")
	{
		twap.POST("", h.StartRun)
		twap.GET("/:run_id", h.GetRun)
		twap.POST("/:run_id/cancel", h.CancelRun)
	}
}

// startTwapRequest TWAP 执行请求
type startTwapRequest struct {
	Symbol        string `json:"symbol" binding:"required"`
	Side          string `json:"side" binding:"required"`
	TotalQuantity string `json:"total_quantity" binding:"required"`
	ChunkCount    int    `json:"chunk_count" binding:"required"`
	// 执行窗口（秒）
	DurationSeconds int `json:"duration_seconds" binding:"required"`
}

// StartRun 创建并启动 TWAP 执行，立即返回 run_id
func (h *TwapHandler) StartRun(c *gin.Context) {
	var req startTwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	total, err := decimal.NewFromString(req.TotalQuantity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid total_quantity: " + err.Error()})
		return
	}
	side := orderdomain.Side(req.Side)
	if !side.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be BUY or SELL"})
		return
	}

	plan, err := domain.NewPlan(
		uuid.New().String(),
		req.Symbol,
		side,
		total,
		req.ChunkCount,
		time.Duration(req.DurationSeconds)*time.Second,
	)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTotalQuantity) ||
			errors.Is(err, domain.ErrTooFewChunks) ||
			errors.Is(err, domain.ErrWindowTooShort) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	runID := h.manager.Start(plan)
	c.JSON(http.StatusAccepted, gin.H{
		"run_id":         runID,
		"chunk_quantity": plan.ChunkQuantity().String(),
		"interval":       plan.Interval().String(),
	})
}

// GetRun 查询执行状态快照
func (h *TwapHandler) GetRun(c *gin.Context) {
	runID := c.Param("run_id")
	run, ok := h.manager.GetRun(runID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "twap run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// CancelRun 取消进行中的执行；已终态返回 409
func (h *TwapHandler) CancelRun(c *gin.Context) {
	runID := c.Param("run_id")
	if _, ok := h.manager.GetRun(runID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "twap run not found"})
		return
	}
	if !h.manager.Cancel(runID) {
		c.JSON(http.StatusConflict, gin.H{"error": "twap run already finished"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "cancelling": true})
}
