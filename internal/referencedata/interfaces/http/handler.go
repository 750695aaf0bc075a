// Package http 参考数据服务 HTTP 接口
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/ordergateway/internal/referencedata/application"
	"github.com/wyfcoding/ordergateway/internal/referencedata/domain"
)

// RulesHandler 交易规则 HTTP 处理器
type RulesHandler struct {
	cache *application.RulesCache
}

// NewRulesHandler 创建规则处理器
func NewRulesHandler(cache *application.RulesCache) *RulesHandler {
	return &RulesHandler{cache: cache}
}

// RegisterRoutes 注册路由
func (h *RulesHandler) RegisterRoutes(r *gin.RouterGroup) {
	symbols := r.Group("/symbols")
	{
		symbols.GET("/:symbol/rules", h.GetRules)
		symbols.DELETE("/:symbol/rules", h.EvictRules)
	}
}

// GetRules 查询交易对的精度规则（缓存未命中时远程获取）
func (h *RulesHandler) GetRules(c *gin.Context) {
	symbol := c.Param("symbol")
	rules, err := h.cache.GetRules(c.Request.Context(), symbol)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownSymbol) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rules)
}

// EvictRules 移除交易对的缓存规则，下次访问重新获取
func (h *RulesHandler) EvictRules(c *gin.Context) {
	symbol := c.Param("symbol")
	h.cache.Evict(symbol)
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "evicted": true})
}
