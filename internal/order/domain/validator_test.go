package domain

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	refdomain "github.com/wyfcoding/ordergateway/internal/referencedata/domain"
)

type stubRulesProvider struct {
	rules map[string]*refdomain.SymbolRules
	err   error
}

func (s *stubRulesProvider) GetRules(ctx context.Context, symbol string) (*refdomain.SymbolRules, error) {
	if s.err != nil {
		return nil, s.err
	}
	r, ok := s.rules[symbol]
	if !ok {
		return nil, refdomain.ErrUnknownSymbol
	}
	return r, nil
}

func btcRules() *refdomain.SymbolRules {
	return &refdomain.SymbolRules{
		Symbol:   "BTCUSDT",
		TickSize: decimal.RequireFromString("0.10"),
		StepSize: decimal.RequireFromString("0.001"),
		MinQty:   decimal.RequireFromString("0.001"),
		MinPrice: decimal.RequireFromString("0.10"),
	}
}

func newTestValidator() *Validator {
	provider := &stubRulesProvider{rules: map[string]*refdomain.SymbolRules{
		"BTCUSDT": btcRules(),
	}}
	return NewValidator(provider, "USDT")
}

func TestValidate(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name     string
		intent   OrderIntent
		wantCode ValidationCode
	}{
		{
			name: "valid market order",
			intent: OrderIntent{
				Symbol:   "BTCUSDT",
				Side:     SideBuy,
				Type:     OrderTypeMarket,
				Quantity: decimal.RequireFromString("0.002"),
			},
		},
		{
			name: "valid limit order",
			intent: OrderIntent{
				Symbol:      "BTCUSDT",
				Side:        SideSell,
				Type:        OrderTypeLimit,
				Quantity:    decimal.RequireFromString("0.01"),
				Price:       decimal.RequireFromString("42000.50"),
				TimeInForce: TimeInForceGTC,
			},
		},
		{
			name: "non-quote symbol rejected before rules lookup",
			intent: OrderIntent{
				Symbol:   "BTCETH",
				Side:     SideBuy,
				Type:     OrderTypeMarket,
				Quantity: decimal.RequireFromString("0.002"),
			},
			wantCode: CodeUnsupportedSymbol,
		},
		{
			name: "invalid side",
			intent: OrderIntent{
				Symbol:   "BTCUSDT",
				Side:     Side("HOLD"),
				Type:     OrderTypeMarket,
				Quantity: decimal.RequireFromString("0.002"),
			},
			wantCode: CodeInvalidSide,
		},
		{
			name: "zero quantity",
			intent: OrderIntent{
				Symbol:   "BTCUSDT",
				Side:     SideBuy,
				Type:     OrderTypeMarket,
				Quantity: decimal.Zero,
			},
			wantCode: CodeInvalidQuantity,
		},
		{
			name: "negative quantity",
			intent: OrderIntent{
				Symbol:   "BTCUSDT",
				Side:     SideBuy,
				Type:     OrderTypeMarket,
				Quantity: decimal.RequireFromString("-0.002"),
			},
			wantCode: CodeInvalidQuantity,
		},
		{
			name: "negative price",
			intent: OrderIntent{
				Symbol:   "BTCUSDT",
				Side:     SideBuy,
				Type:     OrderTypeLimit,
				Quantity: decimal.RequireFromString("0.002"),
				Price:    decimal.RequireFromString("-1"),
			},
			wantCode: CodeInvalidPrice,
		},
		{
			name: "limit order with zero price",
			intent: OrderIntent{
				Symbol:   "BTCUSDT",
				Side:     SideBuy,
				Type:     OrderTypeLimit,
				Quantity: decimal.RequireFromString("0.002"),
				Price:    decimal.Zero,
			},
			wantCode: CodeInvalidPrice,
		},
		{
			name: "take profit without stop price",
			intent: OrderIntent{
				Symbol:   "BTCUSDT",
				Side:     SideSell,
				Type:     OrderTypeTakeProfitMarket,
				Quantity: decimal.RequireFromString("0.002"),
			},
			wantCode: CodeInvalidPrice,
		},
		{
			name: "stop market with zero stop price",
			intent: OrderIntent{
				Symbol:    "BTCUSDT",
				Side:      SideSell,
				Type:      OrderTypeStopMarket,
				Quantity:  decimal.RequireFromString("0.002"),
				StopPrice: decimal.Zero,
			},
			wantCode: CodeInvalidPrice,
		},
		{
			name: "quantity below minimum",
			intent: OrderIntent{
				Symbol:   "BTCUSDT",
				Side:     SideBuy,
				Type:     OrderTypeMarket,
				Quantity: decimal.RequireFromString("0.0005"),
			},
			wantCode: CodeBelowMinQuantity,
		},
		{
			name: "quantity not a step multiple",
			intent: OrderIntent{
				Symbol:   "BTCUSDT",
				Side:     SideBuy,
				Type:     OrderTypeMarket,
				Quantity: decimal.RequireFromString("0.0015"),
			},
			wantCode: CodeStepSizeViolation,
		},
		{
			name: "price not a tick multiple",
			intent: OrderIntent{
				Symbol:   "BTCUSDT",
				Side:     SideBuy,
				Type:     OrderTypeLimit,
				Quantity: decimal.RequireFromString("0.002"),
				Price:    decimal.RequireFromString("42000.55"),
			},
			wantCode: CodeTickSizeViolation,
		},
		{
			name: "stop price not a tick multiple",
			intent: OrderIntent{
				Symbol:    "BTCUSDT",
				Side:      SideSell,
				Type:      OrderTypeStopMarket,
				Quantity:  decimal.RequireFromString("0.002"),
				StopPrice: decimal.RequireFromString("41000.07"),
			},
			wantCode: CodeTickSizeViolation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(context.Background(), tt.intent)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			ve, ok := AsValidationError(err)
			require.True(t, ok, "expected a validation error, got %v", err)
			assert.Equal(t, tt.wantCode, ve.Code)
		})
	}
}

func TestValidateUnknownSymbolFromRules(t *testing.T) {
	v := newTestValidator()
	err := v.Validate(context.Background(), OrderIntent{
		Symbol:   "DOGEUSDT",
		Side:     SideBuy,
		Type:     OrderTypeMarket,
		Quantity: decimal.RequireFromString("1"),
	})
	assert.ErrorIs(t, err, refdomain.ErrUnknownSymbol)
}

func TestValidateIsIdempotent(t *testing.T) {
	v := newTestValidator()
	intent := OrderIntent{
		Symbol:   "BTCUSDT",
		Side:     SideBuy,
		Type:     OrderTypeMarket,
		Quantity: decimal.RequireFromString("0.002"),
	}
	for i := 0; i < 3; i++ {
		assert.NoError(t, v.Validate(context.Background(), intent))
	}
}

func TestQuantizeDown(t *testing.T) {
	tests := []struct {
		name  string
		value string
		step  string
		want  string
	}{
		{"already a multiple", "0.002", "0.001", "0.002"},
		{"floors to nearest step", "0.0015", "0.001", "0.001"},
		{"price tick", "42000.55", "0.10", "42000.5"},
		{"float artifact cleaned up", "0.30000000000000004", "0.1", "0.3"},
		{"smaller than step", "0.0004", "0.001", "0"},
		{"non-positive step returns value", "1.2345", "0", "1.2345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QuantizeDown(decimal.RequireFromString(tt.value), decimal.RequireFromString(tt.step))
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"QuantizeDown(%s, %s) = %s, want %s", tt.value, tt.step, got, tt.want)
		})
	}
}

func TestQuantizeDownProperties(t *testing.T) {
	step := decimal.RequireFromString("0.001")
	values := []string{"0.0019", "1.23456789", "100.000999", "0.001"}

	for _, raw := range values {
		value := decimal.RequireFromString(raw)
		got := QuantizeDown(value, step)

		assert.True(t, got.LessThanOrEqual(value), "result %s must not exceed input %s", got, value)
		assert.True(t, got.Mod(step).IsZero(), "result %s must be a multiple of %s", got, step)
	}
}

func TestNormalizeThenValidate(t *testing.T) {
	v := newTestValidator()
	intent := OrderIntent{
		Symbol:   "BTCUSDT",
		Side:     SideBuy,
		Type:     OrderTypeLimit,
		Quantity: decimal.RequireFromString("0.0019"),
		Price:    decimal.RequireFromString("42000.55"),
	}

	normalized := v.Normalize(context.Background(), intent)
	assert.True(t, normalized.Intent.Quantity.Equal(decimal.RequireFromString("0.001")))
	assert.True(t, normalized.Intent.Price.Equal(decimal.RequireFromString("42000.5")))
	assert.NoError(t, v.Validate(context.Background(), normalized.Intent))
}

func TestNormalizeRefusesToZeroOutPositiveValues(t *testing.T) {
	v := newTestValidator()

	// 0.05 在 0.10 刻度下向下量化得零，量化放弃，校验以刻度违规拒绝
	intent := OrderIntent{
		Symbol:   "BTCUSDT",
		Side:     SideBuy,
		Type:     OrderTypeLimit,
		Quantity: decimal.RequireFromString("0.002"),
		Price:    decimal.RequireFromString("0.05"),
	}
	normalized := v.Normalize(context.Background(), intent)
	assert.True(t, normalized.Intent.Price.Equal(decimal.RequireFromString("0.05")),
		"a positive price must never be normalized to zero")

	err := v.Validate(context.Background(), normalized.Intent)
	ve, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, CodeTickSizeViolation, ve.Code)

	// 数量同理：0.0004 在 0.001 步长下保留原值，以低于最小数量拒绝
	intent = OrderIntent{
		Symbol:   "BTCUSDT",
		Side:     SideBuy,
		Type:     OrderTypeMarket,
		Quantity: decimal.RequireFromString("0.0004"),
	}
	normalized = v.Normalize(context.Background(), intent)
	assert.True(t, normalized.Intent.Quantity.Equal(decimal.RequireFromString("0.0004")))

	err = v.Validate(context.Background(), normalized.Intent)
	ve, ok = AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, CodeBelowMinQuantity, ve.Code)
}

func TestNormalizeKeepsIntentOnRulesFailure(t *testing.T) {
	provider := &stubRulesProvider{err: refdomain.ErrUnknownSymbol}
	v := NewValidator(provider, "USDT")

	intent := OrderIntent{
		Symbol:   "BTCUSDT",
		Side:     SideBuy,
		Type:     OrderTypeMarket,
		Quantity: decimal.RequireFromString("0.0019"),
	}
	normalized := v.Normalize(context.Background(), intent)
	assert.True(t, normalized.Intent.Quantity.Equal(intent.Quantity))
}
