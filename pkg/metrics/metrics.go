// Package metrics 提供 Prometheus helper，包含网关常用 counter/gauge/histogram
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/ordergateway/pkg/logger"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal prometheus.Counter
	// HTTP 请求耗时
	HTTPRequestDuration prometheus.Histogram

	// 交易所调用计数（按端点、结果）
	ExchangeRequestsTotal *prometheus.CounterVec
	// 交易所调用耗时（按端点）
	ExchangeRequestDuration *prometheus.HistogramVec

	// 提交成功的订单数（按订单类型）
	OrdersSubmittedTotal *prometheus.CounterVec
	// 交易所拒绝的订单数
	OrdersRejectedTotal prometheus.Counter
	// 本地校验失败数（按失败码）
	ValidationFailuresTotal *prometheus.CounterVec

	// 进行中的 TWAP 执行数
	TwapRunsActive prometheus.Gauge
	// TWAP 子单计数（按结果）
	TwapChunksTotal *prometheus.CounterVec
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		ExchangeRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "exchange_requests_total",
			Help:      "Total requests to the exchange REST API",
		}, []string{"endpoint", "outcome"}),
		ExchangeRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "exchange_request_duration_seconds",
			Help:      "Exchange REST request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),

		OrdersSubmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "orders_submitted_total",
			Help:      "Orders acknowledged by the exchange",
		}, []string{"order_type"}),
		OrdersRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "orders_rejected_total",
			Help:      "Orders rejected by the exchange",
		}),
		ValidationFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "validation_failures_total",
			Help:      "Order intents rejected by local validation",
		}, []string{"code"}),

		TwapRunsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "twap_runs_active",
			Help:      "TWAP runs currently executing",
		}),
		TwapChunksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "twap_chunks_total",
			Help:      "TWAP child orders by outcome",
		}, []string{"outcome"}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ExchangeRequestsTotal,
		m.ExchangeRequestDuration,
		m.OrdersSubmittedTotal,
		m.OrdersRejectedTotal,
		m.ValidationFailuresTotal,
		m.TwapRunsActive,
		m.TwapChunksTotal,
	}

	for _, c := range collectors {
		if err := prometheus.DefaultRegisterer.Register(c); err != nil {
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}

	logger.Info(context.Background(), "Metrics registered successfully")
	return nil
}

// StartHTTPServer 启动 Prometheus HTTP 服务器
func StartHTTPServer(port int, path string) error {
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info(context.Background(), "Starting Prometheus HTTP server", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error(context.Background(), "Failed to start Prometheus HTTP server", "error", err)
		}
	}()

	return nil
}
