// Package http 订单服务 HTTP 接口
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/ordergateway/internal/order/application"
	"github.com/wyfcoding/ordergateway/internal/order/domain"
	refdomain "github.com/wyfcoding/ordergateway/internal/referencedata/domain"
)

// OrderHandler 订单 HTTP 处理器
type OrderHandler struct {
	service *application.Service
}

// NewOrderHandler 创建订单处理器
func NewOrderHandler(service *application.Service) *OrderHandler {
	return &OrderHandler{service: service}
}

// RegisterRoutes 注册路由
func (h *OrderHandler) RegisterRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders")
	{
		orders.POST("/market", h.PlaceMarket)
		orders.POST("/limit", h.PlaceLimit)
		orders.POST("/conditional-pair", h.PlaceConditionalPair)
	}
	r.GET("/symbols/:symbol/price", h.LastPrice)
}

// marketOrderRequest 市价单请求
// 数量与价格用字符串传递，避免 JSON 浮点数带来的精度损失
type marketOrderRequest struct {
	Symbol   string `json:"symbol" binding:"required"`
	Side     string `json:"side" binding:"required"`
	Quantity string `json:"quantity" binding:"required"`
	Quantize bool   `json:"quantize"`
}

// PlaceMarket 提交市价单
func (h *OrderHandler) PlaceMarket(c *gin.Context) {
	var req marketOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quantity: " + err.Error()})
		return
	}

	ack, err := h.service.PlaceMarket(c.Request.Context(), application.PlaceMarketCommand{
		Symbol:   req.Symbol,
		Side:     domain.Side(req.Side),
		Quantity: quantity,
		Quantize: req.Quantize,
	})
	if err != nil {
		respondOrderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ack)
}

// limitOrderRequest 限价单请求
type limitOrderRequest struct {
	Symbol   string `json:"symbol" binding:"required"`
	Side     string `json:"side" binding:"required"`
	Quantity string `json:"quantity" binding:"required"`
	Price    string `json:"price" binding:"required"`
	Quantize bool   `json:"quantize"`
}

// PlaceLimit 提交 GTC 限价单
func (h *OrderHandler) PlaceLimit(c *gin.Context) {
	var req limitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quantity: " + err.Error()})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price: " + err.Error()})
		return
	}

	ack, err := h.service.PlaceLimit(c.Request.Context(), application.PlaceLimitCommand{
		Symbol:   req.Symbol,
		Side:     domain.Side(req.Side),
		Quantity: quantity,
		Price:    price,
		Quantize: req.Quantize,
	})
	if err != nil {
		respondOrderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ack)
}

// conditionalPairRequest 条件单对请求
type conditionalPairRequest struct {
	Symbol            string `json:"symbol" binding:"required"`
	Side              string `json:"side" binding:"required"`
	Quantity          string `json:"quantity" binding:"required"`
	TakeProfitTrigger string `json:"take_profit_trigger" binding:"required"`
	StopLossTrigger   string `json:"stop_loss_trigger" binding:"required"`
	Quantize          bool   `json:"quantize"`
}

// PlaceConditionalPair 下一对止盈/止损条件单
// 止盈腿生效而止损腿失败时返回 207，响应中带已生效的止盈回执
func (h *OrderHandler) PlaceConditionalPair(c *gin.Context) {
	var req conditionalPairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quantity: " + err.Error()})
		return
	}
	tpTrigger, err := decimal.NewFromString(req.TakeProfitTrigger)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid take_profit_trigger: " + err.Error()})
		return
	}
	slTrigger, err := decimal.NewFromString(req.StopLossTrigger)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stop_loss_trigger: " + err.Error()})
		return
	}

	result, err := h.service.PlaceConditionalPair(c.Request.Context(), application.PlaceConditionalPairCommand{
		Symbol:            req.Symbol,
		Side:              domain.Side(req.Side),
		Quantity:          quantity,
		TakeProfitTrigger: tpTrigger,
		StopLossTrigger:   slTrigger,
		Quantize:          req.Quantize,
	})
	if err != nil {
		var partial *domain.PartialFailureError
		if errors.As(err, &partial) {
			c.JSON(http.StatusMultiStatus, gin.H{
				"take_profit": partial.TakeProfit,
				"stop_loss":   nil,
				"error":       partial.Error(),
			})
			return
		}
		respondOrderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// LastPrice 查询最新成交价
func (h *OrderHandler) LastPrice(c *gin.Context) {
	symbol := c.Param("symbol")
	price, err := h.service.LastPrice(c.Request.Context(), symbol)
	if err != nil {
		respondOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "price": price.String()})
}

// respondOrderError 按错误类别映射 HTTP 状态码：
// 本地校验失败 400，未知交易对 404，交易所拒绝 422，网络失败 502
func respondOrderError(c *gin.Context, err error) {
	if ve, ok := domain.AsValidationError(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": ve.Message,
			"code":  string(ve.Code),
			"field": ve.Field,
		})
		return
	}
	if errors.Is(err, refdomain.ErrUnknownSymbol) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	var rejection *domain.RejectionError
	if errors.As(err, &rejection) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": rejection.Reason,
			"code":  rejection.Code,
		})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}
