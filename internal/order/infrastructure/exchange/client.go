// Package exchange USDT 本位合约交易所的 REST 接入
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/ordergateway/internal/order/domain"
	refdomain "github.com/wyfcoding/ordergateway/internal/referencedata/domain"
	"github.com/wyfcoding/ordergateway/pkg/logger"
	"github.com/wyfcoding/ordergateway/pkg/metrics"
)

// 交易所错误码
const (
	codeUnknownSymbol = -1121
)

// Config 交易所客户端配置
type Config struct {
	// REST 基础地址
	BaseURL string
	// API Key
	APIKey string
	// API Secret，用于 HMAC-SHA256 签名
	APISecret string
	// 签名请求的有效窗口（毫秒）
	RecvWindow int64
	// 单次请求超时
	Timeout time.Duration
}

// Client 交易所 REST 客户端
// 同时实现订单网关和规则元数据来源两个端口
type Client struct {
	http    *resty.Client
	cfg     Config
	metrics *metrics.Metrics
	now     func() time.Time
}

var _ domain.ExchangeGateway = (*Client)(nil)
var _ refdomain.FilterSource = (*Client)(nil)

// NewClient 创建交易所客户端
func NewClient(cfg Config, m *metrics.Metrics) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("X-MBX-APIKEY", cfg.APIKey)
	return &Client{
		http:    httpClient,
		cfg:     cfg,
		metrics: m,
		now:     time.Now,
	}
}

// Ping 连通性探测
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/fapi/v1/ping")
	c.observe("ping", err == nil && !resp.IsError())
	if err != nil {
		return &domain.TransportError{Op: "ping", Err: err}
	}
	if resp.IsError() {
		return &domain.TransportError{Op: "ping", Err: fmt.Errorf("status %d", resp.StatusCode())}
	}
	return nil
}

// GetSymbolFilters 拉取交易对的精度规则
// 未知交易对返回 ErrUnknownSymbol，其余失败包装为 FetchError
func (c *Client) GetSymbolFilters(ctx context.Context, symbol string) (*refdomain.SymbolRules, error) {
	start := c.now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		Get("/fapi/v1/exchangeInfo")
	c.observeDuration("exchange_info", start, err == nil && !resp.IsError())
	if err != nil {
		return nil, &refdomain.FetchError{Symbol: symbol, Err: err}
	}
	if resp.IsError() {
		if apiErr, ok := parseAPIError(resp.Body()); ok && apiErr.Code == codeUnknownSymbol {
			return nil, refdomain.ErrUnknownSymbol
		}
		return nil, &refdomain.FetchError{Symbol: symbol, Err: fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body())}
	}

	var info exchangeInfoResponse
	if err := json.Unmarshal(resp.Body(), &info); err != nil {
		return nil, &refdomain.FetchError{Symbol: symbol, Err: err}
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		rules, err := parseFilters(s)
		if err != nil {
			return nil, &refdomain.FetchError{Symbol: symbol, Err: err}
		}
		rules.FetchedAt = c.now()
		return rules, nil
	}
	return nil, refdomain.ErrUnknownSymbol
}

// parseFilters 从 PRICE_FILTER 和 LOT_SIZE 过滤器中提取规则
func parseFilters(s symbolInfo) (*refdomain.SymbolRules, error) {
	rules := &refdomain.SymbolRules{Symbol: s.Symbol}
	var hasPrice, hasLot bool
	for _, f := range s.Filters {
		switch f.FilterType {
		case "PRICE_FILTER":
			tick, err := decimal.NewFromString(f.TickSize)
			if err != nil {
				return nil, fmt.Errorf("parse tickSize %q: %w", f.TickSize, err)
			}
			minPrice, err := decimal.NewFromString(f.MinPrice)
			if err != nil {
				return nil, fmt.Errorf("parse minPrice %q: %w", f.MinPrice, err)
			}
			rules.TickSize = tick
			rules.MinPrice = minPrice
			hasPrice = true
		case "LOT_SIZE":
			step, err := decimal.NewFromString(f.StepSize)
			if err != nil {
				return nil, fmt.Errorf("parse stepSize %q: %w", f.StepSize, err)
			}
			minQty, err := decimal.NewFromString(f.MinQty)
			if err != nil {
				return nil, fmt.Errorf("parse minQty %q: %w", f.MinQty, err)
			}
			rules.StepSize = step
			rules.MinQty = minQty
			hasLot = true
		}
	}
	if !hasPrice || !hasLot {
		return nil, fmt.Errorf("symbol %s missing PRICE_FILTER or LOT_SIZE filter", s.Symbol)
	}
	return rules, nil
}

// LastPrice 查询最新成交价
func (c *Client) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	start := c.now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		Get("/fapi/v1/ticker/price")
	c.observeDuration("ticker_price", start, err == nil && !resp.IsError())
	if err != nil {
		return decimal.Zero, &domain.TransportError{Op: "ticker_price", Err: err}
	}
	if resp.IsError() {
		if apiErr, ok := parseAPIError(resp.Body()); ok && apiErr.Code == codeUnknownSymbol {
			return decimal.Zero, refdomain.ErrUnknownSymbol
		}
		return decimal.Zero, &domain.TransportError{Op: "ticker_price", Err: fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body())}
	}

	var ticker tickerPriceResponse
	if err := json.Unmarshal(resp.Body(), &ticker); err != nil {
		return decimal.Zero, &domain.TransportError{Op: "ticker_price", Err: err}
	}
	price, err := decimal.NewFromString(ticker.Price)
	if err != nil {
		return decimal.Zero, &domain.TransportError{Op: "ticker_price", Err: fmt.Errorf("parse price %q: %w", ticker.Price, err)}
	}
	return price, nil
}

// CreateOrder 签名下单
// 网络失败包装为 TransportError，交易所业务拒绝包装为 RejectionError
func (c *Client) CreateOrder(ctx context.Context, order domain.NormalizedOrder) (*domain.OrderAck, error) {
	intent := order.Intent
	params := url.Values{}
	params.Set("symbol", intent.Symbol)
	params.Set("side", string(intent.Side))
	params.Set("type", string(intent.Type))
	params.Set("quantity", intent.Quantity.String())
	if intent.HasPrice() {
		params.Set("price", intent.Price.String())
	}
	if intent.HasStopPrice() {
		params.Set("stopPrice", intent.StopPrice.String())
	}
	if intent.TimeInForce != "" {
		params.Set("timeInForce", string(intent.TimeInForce))
	}
	if intent.ReduceOnly {
		params.Set("reduceOnly", "true")
	}
	params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	if c.cfg.RecvWindow > 0 {
		params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
	}

	// 签名覆盖编码后的参数串，参数以表单体原样发送以保持签名字节序
	payload := params.Encode()
	payload += "&signature=" + c.sign(payload)

	start := c.now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(payload).
		Post("/fapi/v1/order")
	c.observeDuration("create_order", start, err == nil && !resp.IsError())
	if err != nil {
		return nil, &domain.TransportError{Op: "create_order", Err: err}
	}
	if resp.IsError() {
		if apiErr, ok := parseAPIError(resp.Body()); ok {
			return nil, &domain.RejectionError{Code: apiErr.Code, Reason: apiErr.Msg}
		}
		return nil, &domain.TransportError{Op: "create_order", Err: fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body())}
	}

	var result orderResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, &domain.TransportError{Op: "create_order", Err: err}
	}
	ack, err := toAck(result)
	if err != nil {
		return nil, &domain.TransportError{Op: "create_order", Err: err}
	}
	logger.Debug(ctx, "exchange order created",
		"order_id", ack.OrderID,
		"symbol", ack.Symbol,
		"status", ack.Status,
	)
	return ack, nil
}

func toAck(r orderResponse) (*domain.OrderAck, error) {
	executed := decimal.Zero
	if r.ExecutedQty != "" {
		var err error
		executed, err = decimal.NewFromString(r.ExecutedQty)
		if err != nil {
			return nil, fmt.Errorf("parse executedQty %q: %w", r.ExecutedQty, err)
		}
	}
	avgPrice := decimal.Zero
	if r.AvgPrice != "" {
		var err error
		avgPrice, err = decimal.NewFromString(r.AvgPrice)
		if err != nil {
			return nil, fmt.Errorf("parse avgPrice %q: %w", r.AvgPrice, err)
		}
	}
	return &domain.OrderAck{
		OrderID:       r.OrderID,
		ClientOrderID: r.ClientOrderID,
		Symbol:        r.Symbol,
		Status:        r.Status,
		ExecutedQty:   executed,
		AvgPrice:      avgPrice,
		UpdateTime:    time.UnixMilli(r.UpdateTime),
	}, nil
}

// sign 对查询串做 HMAC-SHA256 签名，输出十六进制
func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func parseAPIError(body []byte) (*apiError, bool) {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Code == 0 {
		return nil, false
	}
	return &apiErr, true
}

func (c *Client) observe(endpoint string, ok bool) {
	if c.metrics == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	c.metrics.ExchangeRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
}

func (c *Client) observeDuration(endpoint string, start time.Time, ok bool) {
	c.observe(endpoint, ok)
	if c.metrics == nil {
		return
	}
	c.metrics.ExchangeRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
