// Package application 订单应用层：提交、条件单对编排
package application

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/ordergateway/internal/order/domain"
	"github.com/wyfcoding/ordergateway/pkg/logger"
	"github.com/wyfcoding/ordergateway/pkg/metrics"
	"github.com/wyfcoding/ordergateway/pkg/mq"
)

// Service 订单应用服务
type Service struct {
	validator *domain.Validator
	gateway   domain.ExchangeGateway
	publisher mq.EventPublisher
	metrics   *metrics.Metrics
}

// NewService 创建订单应用服务
func NewService(validator *domain.Validator, gateway domain.ExchangeGateway, publisher mq.EventPublisher, m *metrics.Metrics) *Service {
	return &Service{
		validator: validator,
		gateway:   gateway,
		publisher: publisher,
		metrics:   m,
	}
}

// PlaceMarketCommand 市价单命令
type PlaceMarketCommand struct {
	Symbol   string
	Side     domain.Side
	Quantity decimal.Decimal
	// Quantize 提交前先把数量向下量化到合法值
	Quantize bool
}

// PlaceMarket 提交市价单
func (s *Service) PlaceMarket(ctx context.Context, cmd PlaceMarketCommand) (*domain.OrderAck, error) {
	intent := domain.OrderIntent{
		Symbol:   cmd.Symbol,
		Side:     cmd.Side,
		Type:     domain.OrderTypeMarket,
		Quantity: cmd.Quantity,
	}
	if cmd.Quantize {
		intent = s.validator.Normalize(ctx, intent).Intent
	}
	return s.Submit(ctx, domain.NormalizedOrder{Intent: intent})
}

// PlaceLimitCommand 限价单命令
type PlaceLimitCommand struct {
	Symbol   string
	Side     domain.Side
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Quantize bool
}

// PlaceLimit 提交 GTC 限价单
func (s *Service) PlaceLimit(ctx context.Context, cmd PlaceLimitCommand) (*domain.OrderAck, error) {
	intent := domain.OrderIntent{
		Symbol:      cmd.Symbol,
		Side:        cmd.Side,
		Type:        domain.OrderTypeLimit,
		Quantity:    cmd.Quantity,
		Price:       cmd.Price,
		TimeInForce: domain.TimeInForceGTC,
	}
	if cmd.Quantize {
		intent = s.validator.Normalize(ctx, intent).Intent
	}
	return s.Submit(ctx, domain.NormalizedOrder{Intent: intent})
}

// SubmitMarket 为执行引擎提交一笔市价子单，不做量化（调用方自行量化）
func (s *Service) SubmitMarket(ctx context.Context, symbol string, side domain.Side, quantity decimal.Decimal) (*domain.OrderAck, error) {
	return s.Submit(ctx, domain.NormalizedOrder{Intent: domain.OrderIntent{
		Symbol:   symbol,
		Side:     side,
		Type:     domain.OrderTypeMarket,
		Quantity: quantity,
	}})
}

// Submit 重新校验后提交订单，每次调用恰好触发一次交易所下单
// 不信任调用方给出的 NormalizedOrder，校验是提交的前置条件
func (s *Service) Submit(ctx context.Context, order domain.NormalizedOrder) (*domain.OrderAck, error) {
	intent := order.Intent

	if err := s.validator.Validate(ctx, intent); err != nil {
		if ve, ok := domain.AsValidationError(err); ok {
			if s.metrics != nil {
				s.metrics.ValidationFailuresTotal.WithLabelValues(string(ve.Code)).Inc()
			}
			logger.Info(ctx, "order rejected by validation",
				"symbol", intent.Symbol,
				"code", string(ve.Code),
				"field", ve.Field,
			)
		}
		return nil, err
	}

	ack, err := s.gateway.CreateOrder(ctx, order)
	if err != nil {
		var rejection *domain.RejectionError
		if errors.As(err, &rejection) {
			if s.metrics != nil {
				s.metrics.OrdersRejectedTotal.Inc()
			}
			s.publish(ctx, &domain.OrderRejectedEvent{
				Symbol:    intent.Symbol,
				Side:      string(intent.Side),
				Type:      string(intent.Type),
				Reason:    err.Error(),
				Timestamp: time.Now(),
			})
		}
		logger.Error(ctx, "order submission failed",
			"symbol", intent.Symbol,
			"type", string(intent.Type),
			"error", err,
		)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.OrdersSubmittedTotal.WithLabelValues(string(intent.Type)).Inc()
	}
	s.publish(ctx, &domain.OrderSubmittedEvent{
		OrderID:   ack.OrderID,
		Symbol:    intent.Symbol,
		Side:      string(intent.Side),
		Type:      string(intent.Type),
		Quantity:  intent.Quantity.String(),
		Price:     priceString(intent),
		Timestamp: time.Now(),
	})
	logger.Info(ctx, "order submitted",
		"order_id", ack.OrderID,
		"symbol", intent.Symbol,
		"side", string(intent.Side),
		"type", string(intent.Type),
		"quantity", intent.Quantity.String(),
	)
	return ack, nil
}

// ConditionalPairResult 条件单对的下单结果
type ConditionalPairResult struct {
	TakeProfit *domain.OrderAck `json:"take_profit"`
	StopLoss   *domain.OrderAck `json:"stop_loss"`
}

// PlaceConditionalPairCommand 条件单对命令
type PlaceConditionalPairCommand struct {
	Symbol            string
	Side              domain.Side
	Quantity          decimal.Decimal
	TakeProfitTrigger decimal.Decimal
	StopLossTrigger   decimal.Decimal
	Quantize          bool
}

// PlaceConditionalPair 下一对 OCO 式条件单：先止盈后止损，两腿都是只减仓
// 止盈腿失败则不再尝试止损腿；止盈成功而止损失败时返回 PartialFailureError，
// 已生效的止盈腿不会被自动撤销
func (s *Service) PlaceConditionalPair(ctx context.Context, cmd PlaceConditionalPairCommand) (*ConditionalPairResult, error) {
	tpIntent := domain.OrderIntent{
		Symbol:     cmd.Symbol,
		Side:       cmd.Side,
		Type:       domain.OrderTypeTakeProfitMarket,
		Quantity:   cmd.Quantity,
		StopPrice:  cmd.TakeProfitTrigger,
		ReduceOnly: true,
	}
	slIntent := domain.OrderIntent{
		Symbol:     cmd.Symbol,
		Side:       cmd.Side,
		Type:       domain.OrderTypeStopMarket,
		Quantity:   cmd.Quantity,
		StopPrice:  cmd.StopLossTrigger,
		ReduceOnly: true,
	}
	if cmd.Quantize {
		tpIntent = s.validator.Normalize(ctx, tpIntent).Intent
		slIntent = s.validator.Normalize(ctx, slIntent).Intent
	}

	// 两个触发价都先独立校验，避免一腿生效后才发现另一腿非法
	if err := s.validator.Validate(ctx, tpIntent); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(ctx, slIntent); err != nil {
		return nil, err
	}

	tpAck, err := s.Submit(ctx, domain.NormalizedOrder{Intent: tpIntent})
	if err != nil {
		return nil, err
	}

	slAck, err := s.Submit(ctx, domain.NormalizedOrder{Intent: slIntent})
	if err != nil {
		logger.Error(ctx, "conditional pair partially placed",
			"symbol", cmd.Symbol,
			"take_profit_order_id", tpAck.OrderID,
			"stop_loss_error", err,
		)
		return &ConditionalPairResult{TakeProfit: tpAck},
			&domain.PartialFailureError{TakeProfit: tpAck, StopLossErr: err}
	}

	s.publish(ctx, &domain.ConditionalPairPlacedEvent{
		Symbol:            cmd.Symbol,
		TakeProfitOrderID: tpAck.OrderID,
		StopLossOrderID:   slAck.OrderID,
		Timestamp:         time.Now(),
	})
	return &ConditionalPairResult{TakeProfit: tpAck, StopLoss: slAck}, nil
}

// LastPrice 查询最新成交价
func (s *Service) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return s.gateway.LastPrice(ctx, symbol)
}

// publish 发布领域事件，失败只记日志不影响主流程
func (s *Service) publish(ctx context.Context, event domain.DomainEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event.EventName(), "", event); err != nil {
		logger.Error(ctx, "failed to publish event",
			"event", event.EventName(),
			"error", err,
		)
	}
}

func priceString(intent domain.OrderIntent) string {
	if intent.HasPrice() {
		return intent.Price.String()
	}
	if intent.HasStopPrice() {
		return intent.StopPrice.String()
	}
	return ""
}
