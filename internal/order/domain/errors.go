package domain

import (
	"errors"
	"fmt"
)

// ValidationCode 本地校验失败的分类码
type ValidationCode string

const (
	CodeUnsupportedSymbol ValidationCode = "UNSUPPORTED_SYMBOL"
	CodeInvalidSide       ValidationCode = "INVALID_SIDE"
	CodeInvalidQuantity   ValidationCode = "INVALID_QUANTITY"
	CodeInvalidPrice      ValidationCode = "INVALID_PRICE"
	CodeBelowMinQuantity  ValidationCode = "BELOW_MIN_QUANTITY"
	CodeStepSizeViolation ValidationCode = "STEP_SIZE_VIOLATION"
	CodeTickSizeViolation ValidationCode = "TICK_SIZE_VIOLATION"
)

// ValidationError 订单未通过本地校验
// 属于预期内的高频结果，用带标签的错误值而非异常表达
type ValidationError struct {
	// 分类码
	Code ValidationCode
	// 违规字段
	Field string
	// 说明
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed [%s] %s: %s", e.Code, e.Field, e.Message)
}

// AsValidationError 判断并提取校验错误
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// RejectionError 结构合法的订单被交易所拒绝（保证金、杠杆、市场状态等）
type RejectionError struct {
	// 交易所错误码
	Code int64
	// 交易所给出的原因
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("exchange rejected order (code %d): %s", e.Code, e.Reason)
}

// TransportError 网络或超时导致的调用失败
type TransportError struct {
	// 操作名
	Op string
	// 底层错误
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("exchange transport failure on %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PartialFailureError 条件单对部分成功：止盈腿已在交易所生效，止损腿下单失败
// 网关不自动撤销已生效的腿，由调用方决定撤单或重试
type PartialFailureError struct {
	// 已生效的止盈回执
	TakeProfit *OrderAck
	// 止损腿的失败原因
	StopLossErr error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("take-profit order %d is live but stop-loss failed: %v", e.TakeProfit.OrderID, e.StopLossErr)
}

func (e *PartialFailureError) Unwrap() error {
	return e.StopLossErr
}
